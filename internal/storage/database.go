package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // Registers the sqlite driver

	"github.com/conorfennell/decksmith/internal/domain"
)

// ErrNotFound is returned by direct lookups when the record does not exist.
var ErrNotFound = errors.New("record not found")

// DB wraps the SQL database connection.
type DB struct {
	conn *sql.DB
}

// Open creates a new database connection and ensures the schema is up to date.
// Foreign keys are enabled for referential integrity, and a busy timeout
// covers concurrent access from overlapping requests.
func Open(dsn string) (*DB, error) {
	db, err := sql.Open("sqlite", dsn+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &DB{conn: db}, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// InsertSession persists a new import session.
func (db *DB) InsertSession(session domain.ImportSession) error {
	_, err := db.conn.Exec(`
		INSERT INTO import_sessions (id, created_at)
		VALUES (?, ?)
	`, session.ID, session.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert session %s: %w", session.ID, err)
	}
	return nil
}

// FindSession retrieves an import session by ID. Returns ErrNotFound if
// no such session exists.
func (db *DB) FindSession(id string) (*domain.ImportSession, error) {
	var s domain.ImportSession
	row := db.conn.QueryRow(`
		SELECT id, created_at
		FROM import_sessions WHERE id = ?
	`, id)

	if err := row.Scan(&s.ID, &s.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("session %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to find session %s: %w", id, err)
	}
	return &s, nil
}

// InsertProposals persists a batch of card proposals in one transaction.
func (db *DB) InsertProposals(proposals []domain.CardProposal) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, p := range proposals {
		_, err := tx.Exec(`
			INSERT INTO card_proposals (id, session_id, front, back, context, created_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`, p.ID, p.SessionID, p.Front, p.Back, p.Context, p.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to insert proposal %s: %w", p.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit proposals: %w", err)
	}
	return nil
}

// ListProposals returns all proposals for a session in creation order.
// An unknown session yields an empty list, not an error.
func (db *DB) ListProposals(sessionID string) ([]domain.CardProposal, error) {
	rows, err := db.conn.Query(`
		SELECT id, session_id, front, back, context, created_at
		FROM card_proposals
		WHERE session_id = ?
		ORDER BY created_at ASC, rowid ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list proposals for session %s: %w", sessionID, err)
	}
	defer rows.Close()

	var proposals []domain.CardProposal
	for rows.Next() {
		p, err := scanProposal(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan proposal row: %w", err)
		}
		proposals = append(proposals, p)
	}
	return proposals, rows.Err()
}

// ListFronts returns every front in the store: permanent cards and all
// pending proposals across every session. The proposal manager feeds
// this into the deduplication set.
func (db *DB) ListFronts() ([]string, error) {
	rows, err := db.conn.Query(`
		SELECT front FROM cards
		UNION ALL
		SELECT front FROM card_proposals
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list fronts: %w", err)
	}
	defer rows.Close()

	var fronts []string
	for rows.Next() {
		var f string
		if err := rows.Scan(&f); err != nil {
			return nil, fmt.Errorf("failed to scan front row: %w", err)
		}
		fronts = append(fronts, f)
	}
	return fronts, rows.Err()
}

// AcceptProposals converts each resolvable proposal into a card with a
// fresh box in box 1, due today, and deletes the proposal. IDs without a
// matching proposal are skipped. The whole batch is one transaction: a
// failure part-way rolls back every conversion.
func (db *DB) AcceptProposals(ids []string, now time.Time) (int, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	today := domain.DateOf(now)
	accepted := 0
	for _, id := range ids {
		var front, back string
		var context sql.NullString
		row := tx.QueryRow(`
			SELECT front, back, context FROM card_proposals WHERE id = ?
		`, id)
		if err := row.Scan(&front, &back, &context); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				continue
			}
			return 0, fmt.Errorf("failed to load proposal %s: %w", id, err)
		}

		cardID := uuid.NewString()
		if _, err := tx.Exec(`
			INSERT INTO cards (id, front, back, context, created_at)
			VALUES (?, ?, ?, ?, ?)
		`, cardID, front, back, context, now); err != nil {
			return 0, fmt.Errorf("failed to insert card for proposal %s: %w", id, err)
		}
		if _, err := tx.Exec(`
			INSERT INTO boxes (card_id, box_index, next_review)
			VALUES (?, 1, ?)
		`, cardID, today); err != nil {
			return 0, fmt.Errorf("failed to insert box for proposal %s: %w", id, err)
		}
		if _, err := tx.Exec(`
			DELETE FROM card_proposals WHERE id = ?
		`, id); err != nil {
			return 0, fmt.Errorf("failed to delete proposal %s: %w", id, err)
		}
		accepted++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit accepted proposals: %w", err)
	}
	return accepted, nil
}

// NextDueCard returns one card whose box is due on or before today, or
// nil if no card is due. Ordering is earliest next_review first, then
// lowest card ID, so the selection is deterministic.
func (db *DB) NextDueCard(today time.Time) (*domain.Card, error) {
	var c domain.Card
	var context sql.NullString
	row := db.conn.QueryRow(`
		SELECT c.id, c.front, c.back, c.context, c.created_at
		FROM cards c
		JOIN boxes b ON b.card_id = c.id
		WHERE b.next_review <= ?
		ORDER BY b.next_review ASC, c.id ASC
		LIMIT 1
	`, today)

	err := row.Scan(&c.ID, &c.Front, &c.Back, &context, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find next due card: %w", err)
	}
	c.Context = context.String
	return &c, nil
}

// FindBox retrieves the box for a card, or nil if the card has none.
func (db *DB) FindBox(cardID string) (*domain.Box, error) {
	var b domain.Box
	row := db.conn.QueryRow(`
		SELECT card_id, box_index, next_review
		FROM boxes WHERE card_id = ?
	`, cardID)

	if err := row.Scan(&b.CardID, &b.BoxIndex, &b.NextReview); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find box for card %s: %w", cardID, err)
	}
	return &b, nil
}

// SaveGrade appends a review and updates the card's box in one
// transaction. A failure leaves neither record written.
func (db *DB) SaveGrade(review domain.Review, box domain.Box) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`
		INSERT INTO reviews (id, card_id, grade, reviewed_at)
		VALUES (?, ?, ?, ?)
	`, review.ID, review.CardID, string(review.Grade), review.ReviewedAt); err != nil {
		return fmt.Errorf("failed to insert review for card %s: %w", review.CardID, err)
	}

	res, err := tx.Exec(`
		UPDATE boxes
		SET box_index = ?, next_review = ?
		WHERE card_id = ?
	`, box.BoxIndex, box.NextReview, box.CardID)
	if err != nil {
		return fmt.Errorf("failed to update box for card %s: %w", box.CardID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("box for card %s: %w", box.CardID, ErrNotFound)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit grade for card %s: %w", review.CardID, err)
	}
	return nil
}

// ListReviews returns the full grading history for a card, oldest first.
func (db *DB) ListReviews(cardID string) ([]domain.Review, error) {
	rows, err := db.conn.Query(`
		SELECT id, card_id, grade, reviewed_at
		FROM reviews
		WHERE card_id = ?
		ORDER BY reviewed_at ASC, rowid ASC
	`, cardID)
	if err != nil {
		return nil, fmt.Errorf("failed to list reviews for card %s: %w", cardID, err)
	}
	defer rows.Close()

	var reviews []domain.Review
	for rows.Next() {
		var r domain.Review
		var grade string
		if err := rows.Scan(&r.ID, &r.CardID, &grade, &r.ReviewedAt); err != nil {
			return nil, fmt.Errorf("failed to scan review row: %w", err)
		}
		r.Grade = domain.Grade(grade)
		reviews = append(reviews, r)
	}
	return reviews, rows.Err()
}

func scanProposal(rows *sql.Rows) (domain.CardProposal, error) {
	var p domain.CardProposal
	var context sql.NullString
	err := rows.Scan(&p.ID, &p.SessionID, &p.Front, &p.Back, &context, &p.CreatedAt)
	p.Context = context.String
	return p, err
}
