package engine

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/evermem/evermem/internal/storage"
)

// sweeperBackend is the slice of the storage contract the sweeper needs.
type sweeperBackend interface {
	ListUsers(ctx context.Context) ([]string, error)
	ListForPrune(ctx context.Context, userID string) ([]storage.PruneCandidate, error)
	DeleteMicro(ctx context.Context, userID string, ids []string) (int, error)
}

// Sweeper prunes micro-memories whose effective importance has decayed
// below the eviction floor. Consolidated and unconsolidated records are
// treated the same: once a record's content has been folded into a
// super-memory, nothing is lost by pruning the source, and an
// unconsolidated record below the floor has simply stopped mattering.
type Sweeper struct {
	store  sweeperBackend
	config Config
	now    func() time.Time
}

// NewSweeper creates a sweeper over the given backend.
func NewSweeper(store sweeperBackend, config Config) *Sweeper {
	return &Sweeper{
		store:  store,
		config: config,
		now:    time.Now,
	}
}

// Sweep prunes one user's expired micro-memories in a single delete
// transaction and returns the number removed. It is safe to re-run and to
// cancel; a cancelled sweep deletes nothing.
func (s *Sweeper) Sweep(ctx context.Context, userID string) (int, error) {
	candidates, err := s.store.ListForPrune(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("sweep: failed to list candidates: %w", err)
	}

	now := s.now()
	var expired []string
	for _, c := range candidates {
		effective := EffectiveImportance(c.Importance, c.CreatedAt, now, s.config.HalfLifeDays)
		if effective < s.config.EvictionFloor {
			expired = append(expired, c.ID)
		}
	}

	if len(expired) == 0 {
		return 0, nil
	}

	deleted, err := s.store.DeleteMicro(ctx, userID, expired)
	if err != nil {
		return 0, fmt.Errorf("sweep: failed to delete expired records: %w", err)
	}

	log.Printf("sweep: pruned %d expired micro-memories for user %s", deleted, userID)
	return deleted, nil
}

// SweepAll runs one sweep pass over every known user. A failure for one
// user is logged and does not stop the pass.
func (s *Sweeper) SweepAll(ctx context.Context) (int, error) {
	users, err := s.store.ListUsers(ctx)
	if err != nil {
		return 0, fmt.Errorf("sweep: failed to list users: %w", err)
	}

	total := 0
	for _, userID := range users {
		if ctx.Err() != nil {
			return total, ctx.Err()
		}

		deleted, err := s.Sweep(ctx, userID)
		if err != nil {
			log.Printf("ERROR: sweep failed for user %s: %v", userID, err)
			continue
		}
		total += deleted
	}

	return total, nil
}

// Run sweeps all users on the given interval until the context is
// cancelled.
func (s *Sweeper) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Printf("sweep: running every %v", interval)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := s.SweepAll(ctx); err != nil && ctx.Err() == nil {
				log.Printf("ERROR: sweep pass failed: %v", err)
			}
		}
	}
}
