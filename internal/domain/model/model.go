// Package model contains domain models passed between layers.
package model

import "time"

// Role is a job opening candidates are evaluated against.
// Records are append-only: once created they are never mutated.
type Role struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"` // used verbatim as analysis context
	CreatedAt   time.Time `json:"createdAt"`
}

// CandidateAnalysis is the normalized output of the analysis service.
// Score is in [1,100]; the four match metrics are in [0,100].
type CandidateAnalysis struct {
	Name                   string   `json:"name"`
	Summary                string   `json:"summary"`
	Score                  int      `json:"score"`
	OverallMatch           int      `json:"overallMatch"`
	RoleFit                int      `json:"roleFit"`
	Experience             int      `json:"experience"`
	Qualification          int      `json:"qualification"`
	SpecialTraits          []string `json:"specialTraits"` // 2-3 short tags
	FitReason              string   `json:"fitReason"`
	ImprovementAreas       string   `json:"improvementAreas"`
	NextStepRecommendation string   `json:"nextStepRecommendation"`
}

// Candidate is one CV submission and its analysis, tied to exactly one Role.
type Candidate struct {
	ID     string `json:"id"`
	RoleID string `json:"roleId"`
	CVText string `json:"cvText"` // stored verbatim for download
	CandidateAnalysis
	CreatedAt time.Time `json:"createdAt"`
}

// NewCandidate merges an analysis with its submission context. The id is
// left empty; the store assigns it.
func NewCandidate(roleID, cvText string, a CandidateAnalysis, createdAt time.Time) Candidate {
	a.SpecialTraits = append([]string(nil), a.SpecialTraits...)
	return Candidate{
		RoleID:            roleID,
		CVText:            cvText,
		CandidateAnalysis: a,
		CreatedAt:         createdAt,
	}
}

// Draft is the caller's pending submission input.
type Draft struct {
	RoleID string `json:"roleId"`
	CVText string `json:"cvText"`
}
