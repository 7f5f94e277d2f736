package dedupe

import (
	"strings"

	"github.com/conorfennell/decksmith/internal/domain"
)

// MaxCandidates is the most candidates one filter pass will let through.
const MaxCandidates = 15

// Normalize cleans a card front for uniqueness comparison. It lowercases,
// trims whitespace, and normalizes line endings so that cosmetic variants
// of the same front compare equal.
func Normalize(front string) string {
	f := strings.ToLower(front)
	f = strings.TrimSpace(f)
	f = strings.ReplaceAll(f, "\r\n", "\n")
	return f
}

// Seen builds a normalized set from existing card fronts.
func Seen(fronts []string) map[string]struct{} {
	seen := make(map[string]struct{}, len(fronts))
	for _, f := range fronts {
		seen[Normalize(f)] = struct{}{}
	}
	return seen
}

// Filter returns the candidates whose normalized front is not in seen,
// preserving order, capped at MaxCandidates. Each accepted candidate's
// front is added to seen, so later candidates in the same batch dedupe
// against earlier ones and the caller's set stays current for the next
// batch.
func Filter(seen map[string]struct{}, candidates []domain.Candidate) []domain.Candidate {
	var kept []domain.Candidate
	for _, c := range candidates {
		if len(kept) == MaxCandidates {
			break
		}
		front := Normalize(c.Front)
		if _, dup := seen[front]; dup {
			continue
		}
		seen[front] = struct{}{}
		kept = append(kept, c)
	}
	return kept
}
