package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/evermem/evermem/internal/storage"
)

// consolidationBackend is the slice of the storage contract the
// consolidator needs.
type consolidationBackend interface {
	storage.MicroMemoryStore
	storage.ConsolidationStore
}

// Consolidator merges batches of micro-memories into super-memories once a
// user crosses the unconsolidated threshold. At most one consolidation runs
// per user at a time; concurrent callers observe a no-op.
type Consolidator struct {
	store      consolidationBackend
	summarizer Summarizer
	config     Config
	ids        *idGenerator
	now        func() time.Time

	mu       sync.Mutex
	inFlight map[string]bool
}

// NewConsolidator creates a consolidator over the given backend.
func NewConsolidator(store consolidationBackend, summarizer Summarizer, config Config) *Consolidator {
	c := &Consolidator{
		store:      store,
		summarizer: summarizer,
		config:     config,
		ids:        newIDGenerator(),
		now:        time.Now,
		inFlight:   make(map[string]bool),
	}
	return c
}

// tryAcquire marks the user in-flight. Returns false if a consolidation is
// already running for them.
func (c *Consolidator) tryAcquire(userID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inFlight[userID] {
		return false
	}
	c.inFlight[userID] = true
	return true
}

func (c *Consolidator) release(userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.inFlight, userID)
}

// MaybeConsolidate consolidates the user's oldest unconsolidated batch if
// the threshold is met. It returns the new super-memory ID, or "" when
// nothing was done (below threshold, or another consolidation in flight —
// neither is an error).
//
// No storage lock is held while the summarizer runs; instead the commit
// re-validates that the whole batch is still unconsolidated and rolls back
// with storage.ErrConsolidationConflict if a concurrent prune or commit
// touched it. A conflicted or failed batch stays untouched and is retried
// on a later trigger.
func (c *Consolidator) MaybeConsolidate(ctx context.Context, userID string) (string, error) {
	if userID == "" {
		return "", fmt.Errorf("%w: user ID is required", storage.ErrInvalidInput)
	}

	if !c.tryAcquire(userID) {
		return "", nil
	}
	defer c.release(userID)

	count, err := c.store.CountUnconsolidated(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("consolidation: failed to count unconsolidated: %w", err)
	}
	if count < c.config.ConsolidationThreshold {
		return "", nil
	}

	batch, err := c.store.ListUnconsolidated(ctx, userID, c.config.BatchSize)
	if err != nil {
		return "", fmt.Errorf("consolidation: failed to select batch: %w", err)
	}
	if len(batch) < c.config.BatchSize {
		// The threshold check raced a prune; never consolidate a partial batch.
		return "", nil
	}

	summaryCtx, cancel := context.WithTimeout(ctx, c.config.SummarizerTimeout)
	super, err := c.summarizer.Consolidate(summaryCtx, batch)
	cancel()
	if err != nil {
		return "", fmt.Errorf("consolidation: summarizer failed, batch untouched: %w", err)
	}
	if super == nil || super.Summary == "" {
		return "", fmt.Errorf("consolidation: summarizer returned empty result, batch untouched")
	}

	super.ID = c.ids.NewID()
	super.CreatedAt = c.now().UTC()

	// Batch metadata is derived here, not trusted from the summarizer.
	// The batch is ordered oldest first.
	sourceIDs := make([]string, len(batch))
	for i, m := range batch {
		sourceIDs[i] = m.ID
	}
	super.SourceMemoryIDs = sourceIDs
	super.RangeStart = batch[0].CreatedAt
	super.RangeEnd = batch[len(batch)-1].CreatedAt

	if err := c.store.CommitConsolidation(ctx, userID, super, sourceIDs); err != nil {
		if errors.Is(err, storage.ErrConsolidationConflict) {
			log.Printf("consolidation: commit conflict for user %s, batch will be retried: %v", userID, err)
		}
		return "", fmt.Errorf("consolidation: commit failed: %w", err)
	}

	log.Printf("consolidation: created super-memory %s for user %s from %d micro-memories",
		super.ID, userID, len(sourceIDs))

	return super.ID, nil
}
