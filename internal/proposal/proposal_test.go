package proposal

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/conorfennell/decksmith/internal/domain"
	"github.com/conorfennell/decksmith/internal/leitner"
	"github.com/conorfennell/decksmith/internal/storage"
)

type fakeProposer struct {
	candidates []domain.Candidate
	err        error
	gotLevel   string
	gotSeen    map[string]struct{}
}

func (f *fakeProposer) Propose(_ context.Context, _, level string, existing map[string]struct{}) ([]domain.Candidate, error) {
	f.gotLevel = level
	f.gotSeen = existing
	return f.candidates, f.err
}

func newManager(t *testing.T, proposer Proposer) (*Manager, *storage.DB) {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewManager(db, proposer), db
}

func candidate(front string) domain.Candidate {
	return domain.Candidate{Front: front, Back: "back of " + front, Context: "ctx"}
}

func TestProposeCards(t *testing.T) {
	t.Run("persists deduplicated candidates", func(t *testing.T) {
		proposer := &fakeProposer{candidates: []domain.Candidate{
			candidate("uno"),
			candidate("Uno"),
			candidate("dos"),
		}}
		m, _ := newManager(t, proposer)
		session, err := m.CreateSession()
		if err != nil {
			t.Fatalf("Failed to create session: %v", err)
		}

		proposals, err := m.ProposeCards(context.Background(), session.ID, "texto", "B1")
		if err != nil {
			t.Fatalf("Failed to propose cards: %v", err)
		}
		if len(proposals) != 2 {
			t.Fatalf("Expected 2 proposals, got %d", len(proposals))
		}
		if proposals[0].Front != "uno" || proposals[1].Front != "dos" {
			t.Errorf("Expected order preserved, got %+v", proposals)
		}
		if proposer.gotLevel != "B1" {
			t.Errorf("Expected level to be passed to the proposer, got %q", proposer.gotLevel)
		}

		listed, err := m.ListProposals(session.ID)
		if err != nil {
			t.Fatalf("Failed to list proposals: %v", err)
		}
		if len(listed) != 2 {
			t.Errorf("Expected 2 persisted proposals, got %d", len(listed))
		}
	})

	t.Run("later batches dedupe against earlier proposals", func(t *testing.T) {
		proposer := &fakeProposer{candidates: []domain.Candidate{candidate("uno")}}
		m, _ := newManager(t, proposer)
		session, _ := m.CreateSession()

		if _, err := m.ProposeCards(context.Background(), session.ID, "texto", "B1"); err != nil {
			t.Fatalf("First batch failed: %v", err)
		}
		proposals, err := m.ProposeCards(context.Background(), session.ID, "texto", "B1")
		if err != nil {
			t.Fatalf("Second batch failed: %v", err)
		}
		if len(proposals) != 0 {
			t.Errorf("Expected duplicate front to be dropped, got %d proposals", len(proposals))
		}
		if _, ok := proposer.gotSeen["uno"]; !ok {
			t.Error("Expected existing proposal fronts to reach the proposer")
		}
	})

	t.Run("caps one call at 15 proposals", func(t *testing.T) {
		var candidates []domain.Candidate
		for i := 0; i < 20; i++ {
			candidates = append(candidates, candidate(fmt.Sprintf("front-%d", i)))
		}
		m, _ := newManager(t, &fakeProposer{candidates: candidates})
		session, _ := m.CreateSession()

		proposals, err := m.ProposeCards(context.Background(), session.ID, "texto", "B1")
		if err != nil {
			t.Fatalf("Failed to propose cards: %v", err)
		}
		if len(proposals) != 15 {
			t.Errorf("Expected 15 proposals, got %d", len(proposals))
		}
	})

	t.Run("proposer failure is terminal", func(t *testing.T) {
		m, _ := newManager(t, &fakeProposer{err: errors.New("model timeout")})
		session, _ := m.CreateSession()

		_, err := m.ProposeCards(context.Background(), session.ID, "texto", "B1")
		if !errors.Is(err, ErrSource) {
			t.Fatalf("Expected ErrSource, got %v", err)
		}
		listed, _ := m.ListProposals(session.ID)
		if len(listed) != 0 {
			t.Errorf("Expected nothing persisted after proposer failure, got %d", len(listed))
		}
	})

	t.Run("malformed candidate persists nothing", func(t *testing.T) {
		proposer := &fakeProposer{candidates: []domain.Candidate{
			candidate("bueno"),
			{Front: "sin back", Context: "ctx"},
		}}
		m, _ := newManager(t, proposer)
		session, _ := m.CreateSession()

		_, err := m.ProposeCards(context.Background(), session.ID, "texto", "B1")
		if !errors.Is(err, ErrSource) {
			t.Fatalf("Expected ErrSource for malformed candidate, got %v", err)
		}
		listed, _ := m.ListProposals(session.ID)
		if len(listed) != 0 {
			t.Errorf("Expected no partial persistence, got %d proposals", len(listed))
		}
	})

	t.Run("candidate without context persists nothing", func(t *testing.T) {
		proposer := &fakeProposer{candidates: []domain.Candidate{
			candidate("bueno"),
			{Front: "sin contexto", Back: "without context"},
		}}
		m, _ := newManager(t, proposer)
		session, _ := m.CreateSession()

		_, err := m.ProposeCards(context.Background(), session.ID, "texto", "B1")
		if !errors.Is(err, ErrSource) {
			t.Fatalf("Expected ErrSource for a candidate without context, got %v", err)
		}
		listed, _ := m.ListProposals(session.ID)
		if len(listed) != 0 {
			t.Errorf("Expected no partial persistence, got %d proposals", len(listed))
		}
	})

	t.Run("unknown session fails", func(t *testing.T) {
		m, _ := newManager(t, &fakeProposer{})
		_, err := m.ProposeCards(context.Background(), "nope", "texto", "B1")
		if !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("Expected ErrNotFound, got %v", err)
		}
	})
}

func TestAddCandidates(t *testing.T) {
	t.Run("context is optional for deck candidates", func(t *testing.T) {
		m, _ := newManager(t, &fakeProposer{})
		session, _ := m.CreateSession()

		proposals, err := m.AddCandidates(session.ID, []domain.Candidate{
			{Front: "el perro", Back: "the dog"},
			candidate("la casa"),
		})
		if err != nil {
			t.Fatalf("Failed to add candidates: %v", err)
		}
		if len(proposals) != 2 {
			t.Fatalf("Expected 2 proposals, got %d", len(proposals))
		}
		if proposals[0].Context != "" {
			t.Errorf("Expected empty context preserved, got %q", proposals[0].Context)
		}
	})

	t.Run("front and back stay required", func(t *testing.T) {
		m, _ := newManager(t, &fakeProposer{})
		session, _ := m.CreateSession()

		_, err := m.AddCandidates(session.ID, []domain.Candidate{{Front: "sin back"}})
		if !errors.Is(err, ErrSource) {
			t.Errorf("Expected ErrSource for a candidate without a back, got %v", err)
		}
	})
}

func TestAcceptProposals(t *testing.T) {
	proposer := &fakeProposer{candidates: []domain.Candidate{candidate("uno"), candidate("dos")}}
	m, db := newManager(t, proposer)
	session, _ := m.CreateSession()
	proposals, err := m.ProposeCards(context.Background(), session.ID, "texto", "B1")
	if err != nil {
		t.Fatalf("Failed to propose cards: %v", err)
	}

	count, err := m.AcceptProposals([]string{proposals[0].ID, "unknown-id"})
	if err != nil {
		t.Fatalf("Failed to accept proposals: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected 1 accepted, got %d", count)
	}

	remaining, _ := m.ListProposals(session.ID)
	if len(remaining) != 1 || remaining[0].Front != "dos" {
		t.Errorf("Expected only 'dos' to remain, got %+v", remaining)
	}

	card, err := db.NextDueCard(domain.DateOf(time.Now()))
	if err != nil {
		t.Fatalf("Failed to get due card: %v", err)
	}
	if card == nil || card.Front != "uno" {
		t.Errorf("Expected the accepted card to be due today, got %+v", card)
	}
}

// Full lifecycle: accept today, review it, then it is out of the due
// queue until its new date.
func TestAcceptThenReviewScenario(t *testing.T) {
	proposer := &fakeProposer{candidates: []domain.Candidate{candidate("lograr")}}
	m, db := newManager(t, proposer)
	session, _ := m.CreateSession()
	proposals, err := m.ProposeCards(context.Background(), session.ID, "texto", "B1")
	if err != nil {
		t.Fatalf("Failed to propose cards: %v", err)
	}
	if _, err := m.AcceptProposals([]string{proposals[0].ID}); err != nil {
		t.Fatalf("Failed to accept proposal: %v", err)
	}

	scheduler := leitner.New(db)
	card, err := scheduler.NextDue()
	if err != nil {
		t.Fatalf("Failed to get next due card: %v", err)
	}
	if card == nil {
		t.Fatal("Expected the freshly accepted card to be due")
	}

	ok, err := scheduler.Grade(card.ID, domain.GradeEasy)
	if err != nil || !ok {
		t.Fatalf("Expected grading to succeed, got ok=%v err=%v", ok, err)
	}

	box, err := db.FindBox(card.ID)
	if err != nil {
		t.Fatalf("Failed to find box: %v", err)
	}
	today := domain.DateOf(time.Now())
	if box.BoxIndex != 2 || !box.NextReview.Equal(today.AddDate(0, 0, 3)) {
		t.Errorf("Expected box 2 due in 3 days, got %+v", box)
	}

	// No longer due today.
	next, err := scheduler.NextDue()
	if err != nil {
		t.Fatalf("Failed to get next due card: %v", err)
	}
	if next != nil {
		t.Errorf("Expected no due card after promotion, got %+v", next)
	}
}
