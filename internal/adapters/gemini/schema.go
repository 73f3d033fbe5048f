package gemini

import "google.golang.org/genai"

// responseSchema declares the structured answer. Every property is required.
func responseSchema() *genai.Schema {
	text := func(desc string) *genai.Schema {
		return &genai.Schema{Type: genai.TypeString, Description: desc}
	}
	percent := func(desc string, lo float64) *genai.Schema {
		return &genai.Schema{
			Type:        genai.TypeInteger,
			Description: desc,
			Minimum:     genai.Ptr(lo),
			Maximum:     genai.Ptr(100.0),
		}
	}

	order := []string{
		"name", "summary", "score", "overallMatch", "roleFit", "experience",
		"qualification", "specialTraits", "fitReason", "improvementAreas", "nextStepRecommendation",
	}

	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"name":          text("Full name of the candidate"),
			"summary":       text("One-sentence summary of the candidate"),
			"score":         percent("Overall score from 1 to 100", 1),
			"overallMatch":  percent("Overall match percentage", 0),
			"roleFit":       percent("Role fit percentage", 0),
			"experience":    percent("Experience percentage", 0),
			"qualification": percent("Qualification percentage", 0),
			"specialTraits": {
				Type:        genai.TypeArray,
				Description: "2-3 short, key positive tags",
				Items:       &genai.Schema{Type: genai.TypeString},
				MinItems:    genai.Ptr[int64](2),
				MaxItems:    genai.Ptr[int64](3),
			},
			"fitReason":              text("Why the candidate fits or does not fit the role"),
			"improvementAreas":       text("Gaps relative to the role"),
			"nextStepRecommendation": text(`Recommended next step, e.g. "Invite for the interview"`),
		},
		Required:         order,
		PropertyOrdering: order,
	}
}
