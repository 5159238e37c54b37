package sqlite

// Schema defines the SQLite schema for the three memory tiers. All
// statements are idempotent so the schema can be applied on every open.
//
// Array- and object-valued fields (topics, messages, fact values) are
// stored as JSON text; effective-importance math is computed in Go, not
// SQL, because modernc.org/sqlite lacks pow().
const Schema = `
CREATE TABLE IF NOT EXISTS facts (
	user_id    TEXT NOT NULL,
	category   TEXT NOT NULL,
	key        TEXT NOT NULL,
	value      TEXT NOT NULL,
	source     TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL,
	PRIMARY KEY (user_id, category, key)
);

CREATE TABLE IF NOT EXISTS micro_memories (
	id                  TEXT PRIMARY KEY,
	user_id             TEXT NOT NULL,
	summary             TEXT NOT NULL,
	topics              TEXT,
	primary_emotion     TEXT,
	emotional_intensity REAL NOT NULL DEFAULT 0,
	message_count       INTEGER NOT NULL DEFAULT 0,
	messages            TEXT,
	importance          REAL NOT NULL,
	created_at          TIMESTAMP NOT NULL,
	consolidated        INTEGER NOT NULL DEFAULT 0,
	consolidated_at     TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_micro_user_created
	ON micro_memories(user_id, created_at);

CREATE INDEX IF NOT EXISTS idx_micro_user_unconsolidated
	ON micro_memories(user_id, consolidated, created_at);

CREATE TABLE IF NOT EXISTS super_memories (
	id                TEXT PRIMARY KEY,
	user_id           TEXT NOT NULL,
	summary           TEXT NOT NULL,
	themes            TEXT,
	topics            TEXT,
	dominant_emotion  TEXT,
	average_intensity REAL NOT NULL DEFAULT 0,
	distribution      TEXT,
	source_memory_ids TEXT NOT NULL,
	range_start       TIMESTAMP NOT NULL,
	range_end         TIMESTAMP NOT NULL,
	created_at        TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_super_user_created
	ON super_memories(user_id, created_at);
`
