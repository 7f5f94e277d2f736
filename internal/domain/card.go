package domain

import "time"

// Grade is the user's verdict on a reviewed card.
type Grade string

const (
	GradeEasy Grade = "easy"
	GradeHard Grade = "hard"
)

// Valid reports whether g is one of the known grades.
func (g Grade) Valid() bool {
	return g == GradeEasy || g == GradeHard
}

// Card is an accepted flashcard in the permanent deck.
// Cards are immutable once created.
type Card struct {
	ID        string
	Front     string
	Back      string
	Context   string
	CreatedAt time.Time
}

// Box holds the Leitner state for a card. Every accepted card has
// exactly one box; BoxIndex is 1, 2 or 3.
type Box struct {
	CardID     string
	BoxIndex   int
	NextReview time.Time
}

// Review is an append-only record of one grading event.
type Review struct {
	ID         string
	CardID     string
	Grade      Grade
	ReviewedAt time.Time
}

// CardProposal is a suggested flashcard awaiting acceptance. It is
// deleted when accepted into the deck.
type CardProposal struct {
	ID        string
	SessionID string
	Front     string
	Back      string
	Context   string
	CreatedAt time.Time
}

// ImportSession groups proposals produced from one content import.
type ImportSession struct {
	ID        string
	CreatedAt time.Time
}

// Candidate is a proposed flashcard as produced by a card source (the
// AI proposer or a markdown deck), before deduplication and persistence.
// Context is optional: markdown decks may omit it, while the AI proposer
// is expected to fill it from the source text.
type Candidate struct {
	Front   string `json:"front" validate:"required"`
	Back    string `json:"back" validate:"required"`
	Context string `json:"context"`
}

// DateOf truncates t to its calendar date in UTC. Review scheduling
// works in whole days, so boxes always store midnight timestamps.
func DateOf(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
