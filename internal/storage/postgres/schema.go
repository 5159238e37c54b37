package postgres

// Schema defines the PostgreSQL schema for the three memory tiers. All
// statements use IF NOT EXISTS so the schema can be applied on every open.
const Schema = `
CREATE TABLE IF NOT EXISTS facts (
	user_id    TEXT NOT NULL,
	category   TEXT NOT NULL,
	key        TEXT NOT NULL,
	value      JSONB NOT NULL,
	source     TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (user_id, category, key)
);

CREATE TABLE IF NOT EXISTS micro_memories (
	id                  TEXT PRIMARY KEY,
	user_id             TEXT NOT NULL,
	summary             TEXT NOT NULL,
	topics              JSONB,
	primary_emotion     TEXT,
	emotional_intensity DOUBLE PRECISION NOT NULL DEFAULT 0,
	message_count       INTEGER NOT NULL DEFAULT 0,
	messages            JSONB,
	importance          DOUBLE PRECISION NOT NULL,
	created_at          TIMESTAMPTZ NOT NULL,
	consolidated        BOOLEAN NOT NULL DEFAULT FALSE,
	consolidated_at     TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_micro_user_created
	ON micro_memories(user_id, created_at);

CREATE INDEX IF NOT EXISTS idx_micro_user_unconsolidated
	ON micro_memories(user_id, consolidated, created_at);

CREATE TABLE IF NOT EXISTS super_memories (
	id                TEXT PRIMARY KEY,
	user_id           TEXT NOT NULL,
	summary           TEXT NOT NULL,
	themes            JSONB,
	topics            JSONB,
	dominant_emotion  TEXT,
	average_intensity DOUBLE PRECISION NOT NULL DEFAULT 0,
	distribution      JSONB,
	source_memory_ids JSONB NOT NULL,
	range_start       TIMESTAMPTZ NOT NULL,
	range_end         TIMESTAMPTZ NOT NULL,
	created_at        TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_super_user_created
	ON super_memories(user_id, created_at);
`
