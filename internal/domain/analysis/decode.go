package analysis

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/okian/shortlist/internal/domain/model"
)

// payload is the wire form of the structured answer. Pointers distinguish a
// missing field from a zero value.
type payload struct {
	Name                   *string  `json:"name" validate:"required,nonblank"`
	Summary                *string  `json:"summary" validate:"required"`
	Score                  *int     `json:"score" validate:"required,min=1,max=100"`
	OverallMatch           *int     `json:"overallMatch" validate:"required,min=0,max=100"`
	RoleFit                *int     `json:"roleFit" validate:"required,min=0,max=100"`
	Experience             *int     `json:"experience" validate:"required,min=0,max=100"`
	Qualification          *int     `json:"qualification" validate:"required,min=0,max=100"`
	SpecialTraits          []string `json:"specialTraits" validate:"required,min=2,max=3,dive,nonblank"`
	FitReason              *string  `json:"fitReason" validate:"required"`
	ImprovementAreas       *string  `json:"improvementAreas" validate:"required"`
	NextStepRecommendation *string  `json:"nextStepRecommendation" validate:"required"`
}

// NewValidator returns a validator that reports json field names and knows
// the nonblank tag.
func NewValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("nonblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	return v
}

// Decode parses the structured answer text and validates every field's
// presence, type and range. Unknown fields are ignored but trailing data after
// the object is rejected. Any failure wraps ErrMalformedResponse.
func Decode(v *validator.Validate, raw string) (model.CandidateAnalysis, error) {
	text := extractJSON(raw)
	if text == "" {
		return model.CandidateAnalysis{}, malformedError(errors.New("empty payload"))
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(text)))
	var p payload
	if err := dec.Decode(&p); err != nil {
		return model.CandidateAnalysis{}, malformedError(fmt.Errorf("decode payload: %w", err))
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return model.CandidateAnalysis{}, malformedError(errors.New("unexpected data after payload"))
	}

	if err := v.Struct(&p); err != nil {
		return model.CandidateAnalysis{}, malformedError(describe(err))
	}

	return model.CandidateAnalysis{
		Name:                   strings.TrimSpace(*p.Name),
		Summary:                strings.TrimSpace(*p.Summary),
		Score:                  *p.Score,
		OverallMatch:           *p.OverallMatch,
		RoleFit:                *p.RoleFit,
		Experience:             *p.Experience,
		Qualification:          *p.Qualification,
		SpecialTraits:          trimAll(p.SpecialTraits),
		FitReason:              strings.TrimSpace(*p.FitReason),
		ImprovementAreas:       strings.TrimSpace(*p.ImprovementAreas),
		NextStepRecommendation: strings.TrimSpace(*p.NextStepRecommendation),
	}, nil
}

// describe flattens validator errors into one readable message.
func describe(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fe.Field()+" is missing")
		case "nonblank":
			msgs = append(msgs, fe.Field()+" is blank")
		default:
			msgs = append(msgs, fmt.Sprintf("%s fails %s=%s (got %v)", fe.Field(), fe.Tag(), fe.Param(), fe.Value()))
		}
	}
	return fmt.Errorf("invalid payload: %s", strings.Join(msgs, "; "))
}

// extractJSON strips markdown code fences some models wrap around JSON.
func extractJSON(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		raw = strings.TrimPrefix(raw, "```json")
		raw = strings.TrimPrefix(raw, "```")
		raw = strings.TrimSpace(raw)
		if idx := strings.LastIndex(raw, "```"); idx != -1 {
			raw = raw[:idx]
		}
	}
	return strings.TrimSpace(raw)
}

func trimAll(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.TrimSpace(s)
	}
	return out
}
