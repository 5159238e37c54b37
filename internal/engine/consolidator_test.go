package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/evermem/evermem/internal/storage"
	"github.com/evermem/evermem/internal/storage/sqlite"
	"github.com/evermem/evermem/pkg/types"
)

// stubSummarizer returns a fixed draft and optionally runs a hook while
// the "LLM call" is in progress, to stage races against the commit.
type stubSummarizer struct {
	err     error
	summary string
	hook    func(batch []*types.MicroMemory)

	mu    sync.Mutex
	calls int
}

func (s *stubSummarizer) Consolidate(_ context.Context, batch []*types.MicroMemory) (*types.SuperMemory, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()

	if s.hook != nil {
		s.hook(batch)
	}
	if s.err != nil {
		return nil, s.err
	}

	summary := s.summary
	if summary == "" {
		summary = "a consolidated stretch of conversations"
	}

	return &types.SuperMemory{Summary: summary}, nil
}

func (s *stubSummarizer) SummarizeSession(_ context.Context, transcript *types.SessionTranscript) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	if s.summary != "" {
		return s.summary, nil
	}
	return "a session summary", nil
}

func newEngineTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.NewStore(":memory:")
	if err != nil {
		t.Fatalf("failed to open test store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

// seedMicros appends n unconsolidated micro-memories with ascending
// created_at, one minute apart.
func seedMicros(t *testing.T, store *sqlite.Store, userID string, n int, base time.Time) []string {
	t.Helper()
	ids := make([]string, n)
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("micro-%03d", i)
		ids[i] = id
		err := store.AppendMicro(context.Background(), userID, &types.MicroMemory{
			ID:         id,
			Summary:    fmt.Sprintf("session %d about work and family", i),
			Topics:     []string{"work"},
			Emotional:  types.EmotionalContext{PrimaryEmotion: "content", Intensity: 0.4},
			Importance: 6,
			CreatedAt:  base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("failed to seed micro-memory: %v", err)
		}
	}
	return ids
}

func TestMaybeConsolidateBelowThreshold(t *testing.T) {
	store := newEngineTestStore(t)
	summarizer := &stubSummarizer{}
	c := NewConsolidator(store, summarizer, DefaultConfig())

	seedMicros(t, store, "u1", 9, time.Now().UTC().Add(-time.Hour))

	superID, err := c.MaybeConsolidate(context.Background(), "u1")
	if err != nil {
		t.Fatalf("MaybeConsolidate failed: %v", err)
	}
	if superID != "" {
		t.Errorf("below threshold should be a no-op, got super %s", superID)
	}
	if summarizer.calls != 0 {
		t.Errorf("summarizer should not run below threshold, ran %d times", summarizer.calls)
	}
}

func TestMaybeConsolidateCreatesSuper(t *testing.T) {
	store := newEngineTestStore(t)
	c := NewConsolidator(store, &stubSummarizer{}, DefaultConfig())

	base := time.Now().UTC().Add(-time.Hour)
	ids := seedMicros(t, store, "u1", 10, base)

	superID, err := c.MaybeConsolidate(context.Background(), "u1")
	if err != nil {
		t.Fatalf("MaybeConsolidate failed: %v", err)
	}
	if superID == "" {
		t.Fatal("expected a super-memory to be created")
	}

	supers, err := store.ListRecentSuper(context.Background(), "u1", 10)
	if err != nil {
		t.Fatalf("ListRecentSuper failed: %v", err)
	}
	if len(supers) != 1 {
		t.Fatalf("expected 1 super-memory, got %d", len(supers))
	}

	super := supers[0]
	if len(super.SourceMemoryIDs) != 10 {
		t.Fatalf("expected 10 source IDs, got %d", len(super.SourceMemoryIDs))
	}
	// Batch is the oldest-first selection.
	for i, id := range ids {
		if super.SourceMemoryIDs[i] != id {
			t.Errorf("source ID %d: got %s, want %s", i, super.SourceMemoryIDs[i], id)
		}
	}
	if !super.RangeStart.Equal(base) {
		t.Errorf("range start: got %v, want %v", super.RangeStart, base)
	}

	stats, err := store.MicroCounts(context.Background(), "u1")
	if err != nil {
		t.Fatalf("MicroCounts failed: %v", err)
	}
	if stats.Unconsolidated != 0 || stats.Consolidated != 10 {
		t.Errorf("expected 0 unconsolidated / 10 consolidated, got %+v", stats)
	}
}

func TestMaybeConsolidateSummarizerFailureLeavesBatchUntouched(t *testing.T) {
	store := newEngineTestStore(t)
	c := NewConsolidator(store, &stubSummarizer{err: errors.New("model offline")}, DefaultConfig())

	seedMicros(t, store, "u1", 10, time.Now().UTC().Add(-time.Hour))

	if _, err := c.MaybeConsolidate(context.Background(), "u1"); err == nil {
		t.Fatal("expected summarizer failure to surface")
	}

	count, err := store.CountUnconsolidated(context.Background(), "u1")
	if err != nil {
		t.Fatalf("CountUnconsolidated failed: %v", err)
	}
	if count != 10 {
		t.Errorf("failed consolidation must leave the batch untouched, got %d unconsolidated", count)
	}

	supers, _ := store.ListRecentSuper(context.Background(), "u1", 10)
	if len(supers) != 0 {
		t.Errorf("no super-memory should exist after a failed consolidation, got %d", len(supers))
	}
}

func TestMaybeConsolidateConflictsWithConcurrentPrune(t *testing.T) {
	store := newEngineTestStore(t)

	// While the summarizer is "running", a prune removes a batch member.
	summarizer := &stubSummarizer{
		hook: func(batch []*types.MicroMemory) {
			if _, err := store.DeleteMicro(context.Background(), "u1", []string{batch[0].ID}); err != nil {
				t.Errorf("staged prune failed: %v", err)
			}
		},
	}
	c := NewConsolidator(store, summarizer, DefaultConfig())

	seedMicros(t, store, "u1", 10, time.Now().UTC().Add(-time.Hour))

	_, err := c.MaybeConsolidate(context.Background(), "u1")
	if !errors.Is(err, storage.ErrConsolidationConflict) {
		t.Fatalf("expected ErrConsolidationConflict, got %v", err)
	}

	// The commit rolled back: the 9 survivors are still unconsolidated
	// and no super-memory was written.
	count, _ := store.CountUnconsolidated(context.Background(), "u1")
	if count != 9 {
		t.Errorf("expected 9 unconsolidated survivors, got %d", count)
	}
	supers, _ := store.ListRecentSuper(context.Background(), "u1", 10)
	if len(supers) != 0 {
		t.Errorf("rolled-back commit must not write a super-memory, got %d", len(supers))
	}
}

func TestMaybeConsolidateConcurrentCallsProduceOneSuper(t *testing.T) {
	store := newEngineTestStore(t)

	// Hold the summarizer long enough for both goroutines to overlap.
	summarizer := &stubSummarizer{
		hook: func([]*types.MicroMemory) { time.Sleep(50 * time.Millisecond) },
	}
	c := NewConsolidator(store, summarizer, DefaultConfig())

	seedMicros(t, store, "u1", 10, time.Now().UTC().Add(-time.Hour))

	var wg sync.WaitGroup
	results := make([]string, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			superID, err := c.MaybeConsolidate(context.Background(), "u1")
			if err != nil {
				t.Errorf("concurrent MaybeConsolidate failed: %v", err)
			}
			results[i] = superID
		}(i)
	}
	wg.Wait()

	created := 0
	for _, r := range results {
		if r != "" {
			created++
		}
	}
	if created != 1 {
		t.Errorf("exactly one call should create a super-memory, got %d", created)
	}

	count, _ := store.CountSuper(context.Background(), "u1")
	if count != 1 {
		t.Errorf("expected exactly 1 super-memory, got %d", count)
	}
	stats, _ := store.MicroCounts(context.Background(), "u1")
	if stats.Consolidated != 10 {
		t.Errorf("expected exactly 10 consolidated records, got %d", stats.Consolidated)
	}
}

func TestMaybeConsolidateDisjointSources(t *testing.T) {
	store := newEngineTestStore(t)
	c := NewConsolidator(store, &stubSummarizer{}, DefaultConfig())

	seedMicros(t, store, "u1", 10, time.Now().UTC().Add(-2*time.Hour))
	if _, err := c.MaybeConsolidate(context.Background(), "u1"); err != nil {
		t.Fatalf("first consolidation failed: %v", err)
	}

	// Second wave of sessions, second consolidation.
	for i := 0; i < 10; i++ {
		err := store.AppendMicro(context.Background(), "u1", &types.MicroMemory{
			ID:         fmt.Sprintf("wave2-%03d", i),
			Summary:    "later session",
			Importance: 5,
			CreatedAt:  time.Now().UTC().Add(-time.Hour).Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("failed to seed second wave: %v", err)
		}
	}
	if _, err := c.MaybeConsolidate(context.Background(), "u1"); err != nil {
		t.Fatalf("second consolidation failed: %v", err)
	}

	supers, err := store.ListRecentSuper(context.Background(), "u1", 10)
	if err != nil {
		t.Fatalf("ListRecentSuper failed: %v", err)
	}
	if len(supers) != 2 {
		t.Fatalf("expected 2 super-memories, got %d", len(supers))
	}

	seen := make(map[string]bool)
	for _, super := range supers {
		for _, id := range super.SourceMemoryIDs {
			if seen[id] {
				t.Errorf("source %s appears in more than one super-memory", id)
			}
			seen[id] = true
		}
	}
}
