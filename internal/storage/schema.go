package storage

const schema = `
-- 'import_sessions' groups proposals produced by one content import.
CREATE TABLE IF NOT EXISTS import_sessions (
    id TEXT PRIMARY KEY,
    created_at DATETIME NOT NULL
);

-- 'cards' holds the permanent deck. Rows are immutable once written.
CREATE TABLE IF NOT EXISTS cards (
    id TEXT PRIMARY KEY,
    front TEXT NOT NULL,
    back TEXT NOT NULL,
    context TEXT,
    created_at DATETIME NOT NULL
);

-- 'boxes' is the Leitner state, one row per card.
CREATE TABLE IF NOT EXISTS boxes (
    card_id TEXT PRIMARY KEY,
    box_index INTEGER NOT NULL DEFAULT 1,
    next_review DATETIME NOT NULL,

    FOREIGN KEY(card_id) REFERENCES cards(id)
);

-- 'reviews' is the append-only grading log. Rows are never updated
-- or deleted.
CREATE TABLE IF NOT EXISTS reviews (
    id TEXT PRIMARY KEY,
    card_id TEXT NOT NULL,
    grade TEXT NOT NULL,
    reviewed_at DATETIME NOT NULL,

    FOREIGN KEY(card_id) REFERENCES cards(id)
);

-- 'card_proposals' are suggestions awaiting acceptance; a row is
-- deleted when its card is accepted into the deck.
CREATE TABLE IF NOT EXISTS card_proposals (
    id TEXT PRIMARY KEY,
    session_id TEXT NOT NULL,
    front TEXT NOT NULL,
    back TEXT NOT NULL,
    context TEXT,
    created_at DATETIME NOT NULL,

    FOREIGN KEY(session_id) REFERENCES import_sessions(id)
);
`
