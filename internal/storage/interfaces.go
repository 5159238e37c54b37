// Package storage provides composable storage interfaces for the Evermem
// memory tiers.
//
// The storage layer is designed with small, focused interfaces that can be
// implemented independently and composed as needed. All data is partitioned
// per user: every operation takes a userID and no record is ever visible
// across users.
package storage

import (
	"context"
	"time"

	"github.com/evermem/evermem/pkg/types"
)

// FactStore persists durable facts keyed by (category, key) per user.
type FactStore interface {
	// SetFact upserts a fact. A write to an existing (category, key)
	// overwrites value, source, and updated_at while preserving the
	// original created_at. Returns the stored fact.
	SetFact(ctx context.Context, userID string, fact *types.PersistentFact) (*types.PersistentFact, error)

	// GetFact retrieves a fact by category and key.
	// Returns ErrNotFound if the fact doesn't exist.
	GetFact(ctx context.Context, userID string, category types.FactCategory, key string) (*types.PersistentFact, error)

	// ListFacts returns all facts for a user, optionally filtered by
	// category (empty category means no filter), ordered by category then key.
	ListFacts(ctx context.Context, userID string, category types.FactCategory) ([]*types.PersistentFact, error)

	// DeleteFact removes a fact. Facts are meant to persist; this exists
	// only for explicit user requests. Returns ErrNotFound if absent.
	DeleteFact(ctx context.Context, userID string, category types.FactCategory, key string) error

	// CountFacts returns the total fact count and a per-category breakdown.
	CountFacts(ctx context.Context, userID string) (types.FactStats, error)
}

// MicroMemoryStore persists session summaries subject to decay.
type MicroMemoryStore interface {
	// AppendMicro stores a new micro-memory. The record's ID must be set
	// by the caller and its consolidated flag must be false.
	AppendMicro(ctx context.Context, userID string, m *types.MicroMemory) error

	// GetMicro retrieves a micro-memory by ID.
	// Returns ErrNotFound if it doesn't exist.
	GetMicro(ctx context.Context, userID, id string) (*types.MicroMemory, error)

	// ListRecentMicro returns up to limit unconsolidated micro-memories
	// ordered by created_at descending (newest first).
	ListRecentMicro(ctx context.Context, userID string, limit int) ([]*types.MicroMemory, error)

	// ListUnconsolidated returns up to limit micro-memories whose
	// consolidated flag is false, ordered by created_at ascending (oldest
	// first). The ordering is load-bearing: consolidation batches must be
	// contiguous in time so a super-memory's date range is meaningful.
	ListUnconsolidated(ctx context.Context, userID string, limit int) ([]*types.MicroMemory, error)

	// CountUnconsolidated returns the number of unconsolidated records.
	CountUnconsolidated(ctx context.Context, userID string) (int, error)

	// SearchMicroByTopic returns micro-memories tagged with the given
	// topic, newest first.
	SearchMicroByTopic(ctx context.Context, userID, topic string, limit int) ([]*types.MicroMemory, error)

	// ListForPrune returns the decay-relevant fields (id, importance,
	// created_at) of every micro-memory for the user, consolidated or not.
	ListForPrune(ctx context.Context, userID string) ([]PruneCandidate, error)

	// DeleteMicro removes the given micro-memories in a single
	// transaction. IDs that no longer exist are skipped; the count of
	// rows actually deleted is returned.
	DeleteMicro(ctx context.Context, userID string, ids []string) (int, error)

	// MicroCounts returns total/consolidated/unconsolidated counts.
	MicroCounts(ctx context.Context, userID string) (types.MicroStats, error)
}

// SuperMemoryStore persists consolidated pattern records. Append-only.
type SuperMemoryStore interface {
	// AppendSuper stores a new super-memory.
	AppendSuper(ctx context.Context, userID string, s *types.SuperMemory) error

	// ListRecentSuper returns up to limit super-memories, newest first.
	ListRecentSuper(ctx context.Context, userID string, limit int) ([]*types.SuperMemory, error)

	// ListSuperByTheme returns super-memories carrying the given theme,
	// newest first.
	ListSuperByTheme(ctx context.Context, userID, theme string, limit int) ([]*types.SuperMemory, error)

	// CountSuper returns the number of super-memories.
	CountSuper(ctx context.Context, userID string) (int, error)
}

// ConsolidationStore commits a consolidation as one atomic unit:
// the super-memory insert and the marking of its source batch are never
// observable half-applied.
type ConsolidationStore interface {
	// CommitConsolidation marks every record in sourceIDs consolidated
	// and inserts the super-memory, in a single transaction.
	//
	// The update re-validates that every source record still exists and
	// is still unconsolidated; if any record was consolidated or pruned
	// since batch selection, the whole transaction rolls back with
	// ErrConsolidationConflict and no state changes.
	CommitConsolidation(ctx context.Context, userID string, super *types.SuperMemory, sourceIDs []string) error
}

// Store aggregates all memory-tier storage plus account-level operations.
type Store interface {
	FactStore
	MicroMemoryStore
	SuperMemoryStore
	ConsolidationStore

	// ListUsers returns the distinct user IDs present in any tier.
	// Used by the decay sweeper.
	ListUsers(ctx context.Context) ([]string, error)

	// DeleteUser removes every record belonging to the user across all
	// three tiers, in a single transaction.
	DeleteUser(ctx context.Context, userID string) error

	// Close releases any resources held by the store.
	Close() error
}

// PruneCandidate carries the fields the decay sweeper needs to decide
// whether a micro-memory has fallen below the eviction floor. The decay
// math itself lives in the engine and is computed in Go, never in SQL.
type PruneCandidate struct {
	ID         string
	Importance float64
	CreatedAt  time.Time
}
