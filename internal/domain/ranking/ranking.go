// Package ranking derives the displayed views from replicated snapshots.
// Every function is pure and recomputes from the full input.
package ranking

import (
	"cmp"
	"math"
	"slices"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/okian/shortlist/internal/domain/model"
)

// AllRoles disables role filtering.
const AllRoles = "all"

// Sort keys.
const (
	SortScore = "score"
	SortName  = "name"
)

// UnknownRole is shown for candidates whose role is not (yet) known.
const UnknownRole = "Unknown Role"

// Stats summarizes a candidate list.
type Stats struct {
	Count        int `json:"count"`
	AverageScore int `json:"averageScore"`
}

// Engine holds the collation locale for name sorting.
type Engine struct {
	tag language.Tag
}

// New returns an Engine collating names for locale (BCP 47). Unparseable
// locales fall back to English.
func New(locale string) *Engine {
	tag, err := language.Parse(locale)
	if err != nil {
		tag = language.English
	}
	return &Engine{tag: tag}
}

// RankedCandidates filters by roleFilter (a role id or AllRoles) and sorts by
// sortKey. Score sorts descending and name ascending; both are stable and an
// unknown key keeps the input order. The input is never modified.
func (e *Engine) RankedCandidates(candidates []model.Candidate, roleFilter, sortKey string) []model.Candidate {
	out := make([]model.Candidate, 0, len(candidates))
	for _, c := range candidates {
		if roleFilter == AllRoles || c.RoleID == roleFilter {
			out = append(out, c)
		}
	}

	switch sortKey {
	case SortScore:
		slices.SortStableFunc(out, func(a, b model.Candidate) int {
			return cmp.Compare(b.Score, a.Score)
		})
	case SortName:
		// collate.Collator keeps a buffer and is not safe for concurrent use
		col := collate.New(e.tag)
		slices.SortStableFunc(out, func(a, b model.Candidate) int {
			return col.CompareString(a.Name, b.Name)
		})
	}
	return out
}

// AggregateStats returns the count and the rounded mean score; the mean of
// an empty list is 0.
func AggregateStats(candidates []model.Candidate) Stats {
	if len(candidates) == 0 {
		return Stats{}
	}
	sum := 0
	for _, c := range candidates {
		sum += c.Score
	}
	return Stats{
		Count:        len(candidates),
		AverageScore: int(math.Round(float64(sum) / float64(len(candidates)))),
	}
}

// CandidateCountForRole counts candidates attached to roleID.
func CandidateCountForRole(candidates []model.Candidate, roleID string) int {
	n := 0
	for _, c := range candidates {
		if c.RoleID == roleID {
			n++
		}
	}
	return n
}

// RoleTitle resolves roleID against roles, falling back to UnknownRole.
func RoleTitle(roles []model.Role, roleID string) string {
	for _, r := range roles {
		if r.ID == roleID {
			return r.Title
		}
	}
	return UnknownRole
}

// Partition groups candidates by role. Candidates whose role id is not in
// roles land in the returned remainder.
func Partition(roles []model.Role, candidates []model.Candidate) (map[string][]model.Candidate, []model.Candidate) {
	byRole := make(map[string][]model.Candidate, len(roles))
	for _, r := range roles {
		byRole[r.ID] = nil
	}
	var rest []model.Candidate
	for _, c := range candidates {
		if _, ok := byRole[c.RoleID]; ok {
			byRole[c.RoleID] = append(byRole[c.RoleID], c)
			continue
		}
		rest = append(rest, c)
	}
	return byRole, rest
}

// RoleSummary is a role with its derived candidate count.
type RoleSummary struct {
	model.Role
	CandidateCount int `json:"candidateCount"`
}

// Summaries attaches derived candidate counts to roles, keeping role order.
func Summaries(roles []model.Role, candidates []model.Candidate) []RoleSummary {
	out := make([]RoleSummary, len(roles))
	for i, r := range roles {
		out[i] = RoleSummary{Role: r, CandidateCount: CandidateCountForRole(candidates, r.ID)}
	}
	return out
}
