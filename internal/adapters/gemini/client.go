// Package gemini implements the analysis transport on the Google GenAI SDK.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/okian/shortlist/internal/domain/analysis"
)

const (
	defaultModel   = "gemini-2.0-flash"
	defaultTimeout = 60 * time.Second
)

// models is the slice of *genai.Models the generator needs.
type models interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Option configures a Generator.
type Option func(*Generator)

// WithModel overrides the model name.
func WithModel(model string) Option {
	return func(g *Generator) {
		if model = strings.TrimSpace(model); model != "" {
			g.modelName = model
		}
	}
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) Option {
	return func(g *Generator) {
		if t >= 0 {
			g.temperature = genai.Ptr(float32(t))
		}
	}
}

// WithTimeout bounds each call.
func WithTimeout(d time.Duration) Option {
	return func(g *Generator) {
		if d > 0 {
			g.timeout = d
		}
	}
}

// Generator implements analysis.Generator against the Gemini API.
type Generator struct {
	models      models
	modelName   string
	temperature *float32
	timeout     time.Duration
}

var _ analysis.Generator = (*Generator)(nil)

// NewGenerator creates a Generator configured for the Gemini API backend.
func NewGenerator(ctx context.Context, apiKey string, opts ...Option) (*Generator, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("gemini api key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	return newGenerator(client.Models, opts...), nil
}

func newGenerator(m models, opts ...Option) *Generator {
	g := &Generator{
		models:    m,
		modelName: defaultModel,
		timeout:   defaultTimeout,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate sends the request with the declared response schema and returns
// the text of the first candidate. An answer with no text yields "" so the
// caller can classify it as a contract violation.
func (g *Generator) Generate(ctx context.Context, req analysis.Request) (string, error) {
	if g == nil || g.models == nil {
		return "", errors.New("gemini generator is not initialized")
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	cfg := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   responseSchema(),
		Temperature:      g.temperature,
	}
	if s := strings.TrimSpace(req.SystemInstruction); s != "" {
		cfg.SystemInstruction = genai.NewContentFromText(s, genai.RoleUser)
	}

	resp, err := g.models.GenerateContent(ctx, g.modelName, genai.Text(req.Prompt), cfg)
	if err != nil {
		var apiErr genai.APIError
		if errors.As(err, &apiErr) {
			return "", fmt.Errorf("gemini api %d %s: %w", apiErr.Code, apiErr.Status, err)
		}
		return "", fmt.Errorf("generate content: %w", err)
	}

	return firstText(resp), nil
}

// Model returns the configured model name.
func (g *Generator) Model() string {
	if g == nil {
		return ""
	}
	return g.modelName
}

func firstText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		var b strings.Builder
		for _, part := range candidate.Content.Parts {
			if part == nil || part.Thought {
				continue
			}
			b.WriteString(part.Text)
		}
		if out := strings.TrimSpace(b.String()); out != "" {
			return out
		}
	}
	return ""
}
