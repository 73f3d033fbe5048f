// Package analysis turns a role description and CV text into a validated
// CandidateAnalysis using an external structured-output service.
package analysis

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"

	"github.com/okian/shortlist/internal/domain/model"
	"github.com/okian/shortlist/pkg/logger"
)

const defaultMaxLogLength = 300

// Request is one outbound call to the analysis service.
type Request struct {
	SystemInstruction string
	Prompt            string
}

// Generator performs the transport round-trip and returns the structured
// answer as serialized text, unwrapped from the service's envelope.
// Any returned error is treated as a transport failure.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// Analyzer is the contract consumed by the intake coordinator.
type Analyzer interface {
	Analyze(ctx context.Context, roleDescription, cvText string) (model.CandidateAnalysis, error)
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

// WithMaxLogLength bounds prompt and response previews in debug logs.
func WithMaxLogLength(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxLogLen = n
		}
	}
}

// WithObserver registers a callback receiving each call's latency and error.
func WithObserver(fn func(latency time.Duration, err error)) Option {
	return func(c *Client) {
		c.observe = fn
	}
}

// Client implements Analyzer. It performs exactly one attempt per call.
type Client struct {
	gen       Generator
	validate  *validator.Validate
	log       logger.Logger
	maxLogLen int
	observe   func(time.Duration, error)
}

// New returns a Client using gen for transport.
func New(gen Generator, opts ...Option) *Client {
	c := &Client{
		gen:       gen,
		validate:  NewValidator(),
		log:       logger.NamedOrNop("analysis"),
		maxLogLen: defaultMaxLogLength,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Analyze sends both texts to the service and returns the validated result.
// Failures are *Error values of kind ErrTransport or ErrMalformedResponse.
// An empty CV is sent as-is and left for the service and validation to reject.
func (c *Client) Analyze(ctx context.Context, roleDescription, cvText string) (model.CandidateAnalysis, error) {
	req := Request{
		SystemInstruction: SystemInstruction(),
		Prompt:            BuildPrompt(roleDescription, cvText),
	}

	c.log.Debug(ctx, "analysis request",
		logger.Int("prompt_length", utf8.RuneCountInString(req.Prompt)),
		logger.String("cv_preview", logger.TruncateForLog(cvText, c.maxLogLen)),
	)

	start := time.Now()
	raw, err := c.gen.Generate(ctx, req)
	if err != nil {
		err = transportError(fmt.Errorf("generate: %w", err))
		c.done(ctx, start, err)
		return model.CandidateAnalysis{}, err
	}

	c.log.Debug(ctx, "analysis response",
		logger.Int("response_length", utf8.RuneCountInString(raw)),
		logger.String("response_preview", logger.TruncateForLog(raw, c.maxLogLen)),
	)

	out, err := Decode(c.validate, raw)
	c.done(ctx, start, err)
	if err != nil {
		return model.CandidateAnalysis{}, err
	}
	return out, nil
}

func (c *Client) done(ctx context.Context, start time.Time, err error) {
	latency := time.Since(start)
	if c.observe != nil {
		c.observe(latency, err)
	}
	if err != nil {
		c.log.Warn(ctx, "analysis failed",
			logger.String("kind", KindOf(err)),
			logger.Error(err),
		)
	}
}
