package sqlite

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/evermem/evermem/internal/storage"
	"github.com/evermem/evermem/pkg/types"
)

// newTestStore creates an in-memory SQLite store for testing.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(":memory:")
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func newMicro(id string, createdAt time.Time) *types.MicroMemory {
	return &types.MicroMemory{
		ID:      id,
		Summary: "session summary " + id,
		Topics:  []string{"work", "pets"},
		Emotional: types.EmotionalContext{
			PrimaryEmotion: "positive",
			Intensity:      0.4,
		},
		MessageCount: 6,
		Importance:   5.0,
		CreatedAt:    createdAt,
	}
}

func TestSetFactUpsertPreservesIdentity(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first, err := store.SetFact(ctx, "user-1", &types.PersistentFact{
		Category: types.CategoryIdentity,
		Key:      "name",
		Value:    "Ant",
		Source:   types.SourceConversation,
	})
	if err != nil {
		t.Fatalf("first SetFact failed: %v", err)
	}

	// Overwrite the same (category, key) with a new value and source.
	second, err := store.SetFact(ctx, "user-1", &types.PersistentFact{
		Category:  types.CategoryIdentity,
		Key:       "name",
		Value:     "Anthony",
		Source:    types.SourceUserDirect,
		UpdatedAt: first.UpdatedAt.Add(time.Minute),
	})
	if err != nil {
		t.Fatalf("second SetFact failed: %v", err)
	}

	if second.Value != "Anthony" {
		t.Errorf("expected overwritten value, got %v", second.Value)
	}
	if second.Source != types.SourceUserDirect {
		t.Errorf("expected overwritten source, got %q", second.Source)
	}
	if !second.CreatedAt.Equal(first.CreatedAt) {
		t.Errorf("expected created_at preserved: %v vs %v", second.CreatedAt, first.CreatedAt)
	}
	if !second.UpdatedAt.After(first.UpdatedAt) {
		t.Errorf("expected updated_at to advance: %v vs %v", second.UpdatedAt, first.UpdatedAt)
	}

	// Idempotence: exactly one record exists for the (category, key).
	facts, err := store.ListFacts(ctx, "user-1", types.CategoryIdentity)
	if err != nil {
		t.Fatalf("ListFacts failed: %v", err)
	}
	if len(facts) != 1 {
		t.Fatalf("expected exactly 1 fact, got %d", len(facts))
	}
}

func TestGetFactNotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.GetFact(context.Background(), "user-1", types.CategoryStatus, "is_veteran")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSetFactRejectsUnknownCategory(t *testing.T) {
	store := newTestStore(t)

	_, err := store.SetFact(context.Background(), "user-1", &types.PersistentFact{
		Category: "mood",
		Key:      "today",
		Value:    "fine",
		Source:   types.SourceConversation,
	})
	if !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

func TestFactsAreIsolatedPerUser(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.SetFact(ctx, "user-a", &types.PersistentFact{
		Category: types.CategoryStatus, Key: "is_veteran", Value: true, Source: types.SourceOnboarding,
	}); err != nil {
		t.Fatalf("SetFact failed: %v", err)
	}

	_, err := store.GetFact(ctx, "user-b", types.CategoryStatus, "is_veteran")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected other user's fact to be invisible, got %v", err)
	}
}

func TestListUnconsolidatedOrderedOldestFirst(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	// Insert out of order.
	for _, i := range []int{2, 0, 1} {
		m := newMicro(fmt.Sprintf("mm-%d", i), base.Add(time.Duration(i)*time.Hour))
		if err := store.AppendMicro(ctx, "user-1", m); err != nil {
			t.Fatalf("AppendMicro failed: %v", err)
		}
	}

	got, err := store.ListUnconsolidated(ctx, "user-1", 10)
	if err != nil {
		t.Fatalf("ListUnconsolidated failed: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 records, got %d", len(got))
	}
	for i, want := range []string{"mm-0", "mm-1", "mm-2"} {
		if got[i].ID != want {
			t.Errorf("position %d: expected %s, got %s", i, want, got[i].ID)
		}
	}
}

func TestCommitConsolidationMarksBatchAndWritesSuper(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	var ids []string
	for i := 0; i < 3; i++ {
		id := fmt.Sprintf("mm-%d", i)
		ids = append(ids, id)
		if err := store.AppendMicro(ctx, "user-1", newMicro(id, base.Add(time.Duration(i)*time.Hour))); err != nil {
			t.Fatalf("AppendMicro failed: %v", err)
		}
	}

	super := &types.SuperMemory{
		ID:              "sm-1",
		Summary:         "a pattern emerged",
		Themes:          []string{"work_career"},
		SourceMemoryIDs: ids,
		RangeStart:      base,
		RangeEnd:        base.Add(2 * time.Hour),
	}

	if err := store.CommitConsolidation(ctx, "user-1", super, ids); err != nil {
		t.Fatalf("CommitConsolidation failed: %v", err)
	}

	left, err := store.CountUnconsolidated(ctx, "user-1")
	if err != nil {
		t.Fatalf("CountUnconsolidated failed: %v", err)
	}
	if left != 0 {
		t.Errorf("expected 0 unconsolidated after commit, got %d", left)
	}

	supers, err := store.ListRecentSuper(ctx, "user-1", 5)
	if err != nil {
		t.Fatalf("ListRecentSuper failed: %v", err)
	}
	if len(supers) != 1 {
		t.Fatalf("expected 1 super-memory, got %d", len(supers))
	}
	if len(supers[0].SourceMemoryIDs) != 3 {
		t.Errorf("expected 3 source ids, got %v", supers[0].SourceMemoryIDs)
	}

	m, err := store.GetMicro(ctx, "user-1", "mm-0")
	if err != nil {
		t.Fatalf("GetMicro failed: %v", err)
	}
	if !m.Consolidated || m.ConsolidatedAt == nil {
		t.Error("expected batch member to be marked consolidated with a timestamp")
	}
}

func TestCommitConsolidationConflictRollsBack(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 2; i++ {
		if err := store.AppendMicro(ctx, "user-1", newMicro(fmt.Sprintf("mm-%d", i), base.Add(time.Duration(i)*time.Hour))); err != nil {
			t.Fatalf("AppendMicro failed: %v", err)
		}
	}

	// Simulate a concurrent prune removing one batch member before commit.
	if _, err := store.DeleteMicro(ctx, "user-1", []string{"mm-1"}); err != nil {
		t.Fatalf("DeleteMicro failed: %v", err)
	}

	super := &types.SuperMemory{
		ID:              "sm-1",
		Summary:         "should not be written",
		SourceMemoryIDs: []string{"mm-0", "mm-1"},
		RangeStart:      base,
		RangeEnd:        base.Add(time.Hour),
	}

	err := store.CommitConsolidation(ctx, "user-1", super, []string{"mm-0", "mm-1"})
	if !errors.Is(err, storage.ErrConsolidationConflict) {
		t.Fatalf("expected ErrConsolidationConflict, got %v", err)
	}

	// The surviving record must remain unconsolidated and no super written.
	m, err := store.GetMicro(ctx, "user-1", "mm-0")
	if err != nil {
		t.Fatalf("GetMicro failed: %v", err)
	}
	if m.Consolidated {
		t.Error("expected rollback to leave mm-0 unconsolidated")
	}

	count, err := store.CountSuper(ctx, "user-1")
	if err != nil {
		t.Fatalf("CountSuper failed: %v", err)
	}
	if count != 0 {
		t.Errorf("expected no super-memories after rollback, got %d", count)
	}
}

func TestCommitConsolidationRefusesDoubleMark(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	ids := []string{"mm-0", "mm-1"}
	for i, id := range ids {
		if err := store.AppendMicro(ctx, "user-1", newMicro(id, base.Add(time.Duration(i)*time.Hour))); err != nil {
			t.Fatalf("AppendMicro failed: %v", err)
		}
	}

	super := &types.SuperMemory{
		ID: "sm-1", Summary: "first", SourceMemoryIDs: ids,
		RangeStart: base, RangeEnd: base.Add(time.Hour),
	}
	if err := store.CommitConsolidation(ctx, "user-1", super, ids); err != nil {
		t.Fatalf("first commit failed: %v", err)
	}

	again := &types.SuperMemory{
		ID: "sm-2", Summary: "second", SourceMemoryIDs: ids,
		RangeStart: base, RangeEnd: base.Add(time.Hour),
	}
	err := store.CommitConsolidation(ctx, "user-1", again, ids)
	if !errors.Is(err, storage.ErrConsolidationConflict) {
		t.Fatalf("expected ErrConsolidationConflict on reused batch, got %v", err)
	}
}

func TestSearchMicroByTopic(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	withTopic := newMicro("mm-0", base)
	withTopic.Topics = []string{"health", "goals"}
	without := newMicro("mm-1", base.Add(time.Hour))
	without.Topics = []string{"work"}

	for _, m := range []*types.MicroMemory{withTopic, without} {
		if err := store.AppendMicro(ctx, "user-1", m); err != nil {
			t.Fatalf("AppendMicro failed: %v", err)
		}
	}

	got, err := store.SearchMicroByTopic(ctx, "user-1", "health", 10)
	if err != nil {
		t.Fatalf("SearchMicroByTopic failed: %v", err)
	}
	if len(got) != 1 || got[0].ID != "mm-0" {
		t.Errorf("expected only mm-0, got %+v", got)
	}
}

func TestDeleteUserCascades(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	if _, err := store.SetFact(ctx, "user-1", &types.PersistentFact{
		Category: types.CategoryIdentity, Key: "name", Value: "Ant", Source: types.SourceOnboarding,
	}); err != nil {
		t.Fatalf("SetFact failed: %v", err)
	}
	if err := store.AppendMicro(ctx, "user-1", newMicro("mm-0", base)); err != nil {
		t.Fatalf("AppendMicro failed: %v", err)
	}
	if err := store.AppendSuper(ctx, "user-1", &types.SuperMemory{
		ID: "sm-0", Summary: "pattern", SourceMemoryIDs: []string{"mm-x"},
		RangeStart: base, RangeEnd: base,
	}); err != nil {
		t.Fatalf("AppendSuper failed: %v", err)
	}

	if err := store.DeleteUser(ctx, "user-1"); err != nil {
		t.Fatalf("DeleteUser failed: %v", err)
	}

	stats, err := store.CountFacts(ctx, "user-1")
	if err != nil {
		t.Fatalf("CountFacts failed: %v", err)
	}
	micro, err := store.MicroCounts(ctx, "user-1")
	if err != nil {
		t.Fatalf("MicroCounts failed: %v", err)
	}
	supers, err := store.CountSuper(ctx, "user-1")
	if err != nil {
		t.Fatalf("CountSuper failed: %v", err)
	}

	if stats.Total != 0 || micro.Total != 0 || supers != 0 {
		t.Errorf("expected cascade deletion, got facts=%d micro=%d super=%d",
			stats.Total, micro.Total, supers)
	}

	users, err := store.ListUsers(ctx)
	if err != nil {
		t.Fatalf("ListUsers failed: %v", err)
	}
	if len(users) != 0 {
		t.Errorf("expected no users after deletion, got %v", users)
	}
}

func TestMicroCountsAndPruneListing(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 4; i++ {
		if err := store.AppendMicro(ctx, "user-1", newMicro(fmt.Sprintf("mm-%d", i), base.Add(time.Duration(i)*time.Hour))); err != nil {
			t.Fatalf("AppendMicro failed: %v", err)
		}
	}

	ids := []string{"mm-0", "mm-1"}
	super := &types.SuperMemory{
		ID: "sm-1", Summary: "pattern", SourceMemoryIDs: ids,
		RangeStart: base, RangeEnd: base.Add(time.Hour),
	}
	if err := store.CommitConsolidation(ctx, "user-1", super, ids); err != nil {
		t.Fatalf("CommitConsolidation failed: %v", err)
	}

	stats, err := store.MicroCounts(ctx, "user-1")
	if err != nil {
		t.Fatalf("MicroCounts failed: %v", err)
	}
	if stats.Total != 4 || stats.Consolidated != 2 || stats.Unconsolidated != 2 {
		t.Errorf("unexpected counts: %+v", stats)
	}

	// Prune listing includes consolidated and unconsolidated records alike.
	candidates, err := store.ListForPrune(ctx, "user-1")
	if err != nil {
		t.Fatalf("ListForPrune failed: %v", err)
	}
	if len(candidates) != 4 {
		t.Errorf("expected 4 prune candidates, got %d", len(candidates))
	}
}
