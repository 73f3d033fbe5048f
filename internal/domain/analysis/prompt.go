package analysis

import (
	_ "embed"
	"strings"
)

//go:embed prompt.md
var systemInstruction string

const userTemplate = "Role Description: {{ROLE}}\n\nCandidate CV Text: {{CV}}\n\n" +
	"Analyze this CV and return the structured JSON data. " +
	"Ensure all percentage scores are integers (1-100) and that the summary is one sentence."

// SystemInstruction is the fixed evaluator framing sent with every request.
func SystemInstruction() string {
	return strings.TrimSpace(systemInstruction)
}

// BuildPrompt embeds both texts verbatim into the user turn.
func BuildPrompt(roleDescription, cvText string) string {
	r := strings.NewReplacer("{{ROLE}}", roleDescription, "{{CV}}", cvText)
	return r.Replace(userTemplate)
}
