// Package leitner implements the 3-box spaced-repetition scheduler.
// Cards move up a box on "easy" (capped at box 3) and drop back to
// box 1 on "hard". The review interval depends on the box the card
// lands in: box 1 reviews after 1 day, box 2 after 3, box 3 after 7.
package leitner

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/conorfennell/decksmith/internal/domain"
)

// MaxBox is the highest box; cards graded easy there stay put.
const MaxBox = 3

// intervalDays maps a resulting box index to the days until the next review.
var intervalDays = map[int]int{
	1: 1,
	2: 3,
	3: 7,
}

// Advance applies one grading to a box index and returns the new box
// state. today must be a calendar date (see domain.DateOf).
func Advance(current int, grade domain.Grade, today time.Time) domain.Box {
	next := 1
	if grade == domain.GradeEasy {
		next = current + 1
		if next > MaxBox {
			next = MaxBox
		}
	}
	return domain.Box{
		BoxIndex:   next,
		NextReview: today.AddDate(0, 0, intervalDays[next]),
	}
}

// Store is the persistence the scheduler needs.
type Store interface {
	// NextDueCard returns one card whose box is due on or before today,
	// or nil if none is due.
	NextDueCard(today time.Time) (*domain.Card, error)
	// FindBox returns the box for a card, or nil if the card has none.
	FindBox(cardID string) (*domain.Box, error)
	// SaveGrade appends the review and updates the box in one transaction.
	SaveGrade(review domain.Review, box domain.Box) error
}

// Scheduler serves due cards and applies grading transitions.
type Scheduler struct {
	store Store
	now   func() time.Time
}

// New creates a scheduler backed by store.
func New(store Store) *Scheduler {
	return &Scheduler{store: store, now: time.Now}
}

// NextDue returns the next card due for review, or nil if the deck has
// no due cards. It never mutates state. Selection order is earliest
// next_review first, then lowest card ID, so repeated calls without an
// intervening grade return the same card.
func (s *Scheduler) NextDue() (*domain.Card, error) {
	card, err := s.store.NextDueCard(domain.DateOf(s.now()))
	if err != nil {
		return nil, fmt.Errorf("next due card: %w", err)
	}
	return card, nil
}

// Grade records a review for the card and moves its box. It returns
// false without mutating anything when the card has no box. The review
// append and box update are one atomic unit; on a storage failure the
// whole call fails with nothing written.
func (s *Scheduler) Grade(cardID string, grade domain.Grade) (bool, error) {
	if !grade.Valid() {
		return false, fmt.Errorf("unknown grade %q", grade)
	}
	box, err := s.store.FindBox(cardID)
	if err != nil {
		return false, fmt.Errorf("find box for card %s: %w", cardID, err)
	}
	if box == nil {
		return false, nil
	}

	now := s.now().UTC()
	next := Advance(box.BoxIndex, grade, domain.DateOf(now))
	next.CardID = cardID

	review := domain.Review{
		ID:         uuid.NewString(),
		CardID:     cardID,
		Grade:      grade,
		ReviewedAt: now,
	}
	if err := s.store.SaveGrade(review, next); err != nil {
		return false, fmt.Errorf("save grade for card %s: %w", cardID, err)
	}
	return true, nil
}
