package export

import "errors"

// ErrWorkbook marks failures while building or writing the workbook.
var ErrWorkbook = errors.New("export workbook failed")
