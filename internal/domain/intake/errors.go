package intake

import "errors"

// Sentinel error kinds for submissions. Analysis failures pass through as
// *analysis.Error values.
var (
	// ErrValidation rejects caller input before any I/O.
	ErrValidation = errors.New("invalid submission")
	// ErrBusy rejects a submission while another is in flight.
	ErrBusy = errors.New("submission already in flight")
	// ErrStoreWrite means the analysis succeeded but persisting it failed.
	// The analysis result is discarded.
	ErrStoreWrite = errors.New("candidate write failed")
	// ErrPanicked means the analyzer or writer panicked mid-submission.
	ErrPanicked = errors.New("submission panicked")
)
