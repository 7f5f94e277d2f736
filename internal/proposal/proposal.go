// Package proposal manages the lifecycle of suggested flashcards: it
// turns candidates from a card source into de-duplicated proposal
// records and later promotes accepted proposals into permanent cards.
package proposal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/conorfennell/decksmith/internal/dedupe"
	"github.com/conorfennell/decksmith/internal/domain"
)

// ErrSource indicates the external card proposer failed or returned
// unusable data. Nothing is persisted for the failed call.
var ErrSource = errors.New("card source failed")

// Proposer generates card candidates from fetched text. existing holds
// the normalized fronts already taken; implementations may pre-filter
// against it, but the manager enforces deduplication and the candidate
// cap regardless.
type Proposer interface {
	Propose(ctx context.Context, content, level string, existing map[string]struct{}) ([]domain.Candidate, error)
}

// Store is the persistence the manager needs.
type Store interface {
	InsertSession(session domain.ImportSession) error
	FindSession(id string) (*domain.ImportSession, error)
	InsertProposals(proposals []domain.CardProposal) error
	ListProposals(sessionID string) ([]domain.CardProposal, error)
	ListFronts() ([]string, error)
	AcceptProposals(ids []string, now time.Time) (int, error)
}

// Manager converts candidates into proposals and proposals into cards.
type Manager struct {
	store    Store
	proposer Proposer
	validate *validator.Validate
	now      func() time.Time
}

// NewManager creates a manager backed by store, using proposer for AI
// generation.
func NewManager(store Store, proposer Proposer) *Manager {
	return &Manager{
		store:    store,
		proposer: proposer,
		validate: validator.New(),
		now:      time.Now,
	}
}

// CreateSession creates and persists a new import session.
func (m *Manager) CreateSession() (domain.ImportSession, error) {
	session := domain.ImportSession{
		ID:        uuid.NewString(),
		CreatedAt: m.now().UTC(),
	}
	if err := m.store.InsertSession(session); err != nil {
		return domain.ImportSession{}, fmt.Errorf("create session: %w", err)
	}
	return session, nil
}

// ProposeCards asks the proposer for candidates from the fetched text,
// de-duplicates them against every front already in the store, and
// persists the survivors as proposals scoped to the session. A proposer
// failure or a malformed candidate is terminal: the call fails with
// ErrSource and persists nothing.
func (m *Manager) ProposeCards(ctx context.Context, sessionID, content, level string) ([]domain.CardProposal, error) {
	if _, err := m.store.FindSession(sessionID); err != nil {
		return nil, fmt.Errorf("propose cards: %w", err)
	}

	seen, err := m.seenFronts()
	if err != nil {
		return nil, fmt.Errorf("propose cards: %w", err)
	}

	candidates, err := m.proposer.Propose(ctx, content, level, seen)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSource, err)
	}
	// The proposer is told to quote the source text; a candidate without
	// context means it did not follow the format.
	for _, c := range candidates {
		if c.Context == "" {
			return nil, fmt.Errorf("%w: malformed candidate %q: missing context", ErrSource, c.Front)
		}
	}

	return m.addCandidates(sessionID, seen, candidates)
}

// AddCandidates runs externally sourced candidates (e.g. a markdown
// deck) through the same dedupe-and-persist path as AI candidates.
func (m *Manager) AddCandidates(sessionID string, candidates []domain.Candidate) ([]domain.CardProposal, error) {
	if _, err := m.store.FindSession(sessionID); err != nil {
		return nil, fmt.Errorf("add candidates: %w", err)
	}
	seen, err := m.seenFronts()
	if err != nil {
		return nil, fmt.Errorf("add candidates: %w", err)
	}
	return m.addCandidates(sessionID, seen, candidates)
}

func (m *Manager) addCandidates(sessionID string, seen map[string]struct{}, candidates []domain.Candidate) ([]domain.CardProposal, error) {
	for _, c := range candidates {
		if err := m.validate.Struct(c); err != nil {
			return nil, fmt.Errorf("%w: malformed candidate %q: %v", ErrSource, c.Front, err)
		}
	}

	kept := dedupe.Filter(seen, candidates)

	now := m.now().UTC()
	proposals := make([]domain.CardProposal, 0, len(kept))
	for _, c := range kept {
		proposals = append(proposals, domain.CardProposal{
			ID:        uuid.NewString(),
			SessionID: sessionID,
			Front:     c.Front,
			Back:      c.Back,
			Context:   c.Context,
			CreatedAt: now,
		})
	}

	if err := m.store.InsertProposals(proposals); err != nil {
		return nil, fmt.Errorf("persist proposals: %w", err)
	}

	slog.Info("proposals persisted",
		"session_id", sessionID,
		"candidates", len(candidates),
		"kept", len(proposals),
	)
	return proposals, nil
}

// ListProposals returns all proposals for a session in creation order.
func (m *Manager) ListProposals(sessionID string) ([]domain.CardProposal, error) {
	return m.store.ListProposals(sessionID)
}

// AcceptProposals promotes each resolvable proposal into a card with a
// fresh box in box 1, due today. Unknown IDs are skipped. Returns the
// number of proposals converted; on a storage failure the whole batch
// rolls back.
func (m *Manager) AcceptProposals(ids []string) (int, error) {
	count, err := m.store.AcceptProposals(ids, m.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("accept proposals: %w", err)
	}
	slog.Info("proposals accepted", "requested", len(ids), "accepted", count)
	return count, nil
}

// seenFronts builds the deduplication set from every card and proposal
// front in the store.
func (m *Manager) seenFronts() (map[string]struct{}, error) {
	fronts, err := m.store.ListFronts()
	if err != nil {
		return nil, fmt.Errorf("list fronts: %w", err)
	}
	return dedupe.Seen(fronts), nil
}
