package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/evermem/evermem/pkg/types"
)

// fakeGenerator returns canned responses and records prompts.
type fakeGenerator struct {
	response string
	err      error
	prompts  []string
}

func (f *fakeGenerator) Complete(_ context.Context, prompt string) (string, error) {
	f.prompts = append(f.prompts, prompt)
	if f.err != nil {
		return "", f.err
	}
	return f.response, nil
}

func (f *fakeGenerator) GetModel() string { return "fake" }

func TestServiceSummarizeSession(t *testing.T) {
	gen := &fakeGenerator{response: `{"summary":"the user talked about their garden"}`}
	svc := NewService(gen, ServiceConfig{})

	transcript := &types.SessionTranscript{
		SessionID: "s1",
		Messages: []types.Message{
			{Role: "user", Content: "my roses finally bloomed"},
			{Role: "assistant", Content: "that's wonderful news"},
		},
	}

	summary, err := svc.SummarizeSession(context.Background(), transcript)
	if err != nil {
		t.Fatalf("SummarizeSession failed: %v", err)
	}
	if summary != "the user talked about their garden" {
		t.Errorf("unexpected summary: %q", summary)
	}
	if len(gen.prompts) != 1 {
		t.Fatalf("expected 1 prompt, got %d", len(gen.prompts))
	}
}

func TestServiceSummarizeSessionEmptyTranscript(t *testing.T) {
	svc := NewService(&fakeGenerator{}, ServiceConfig{})

	if _, err := svc.SummarizeSession(context.Background(), &types.SessionTranscript{}); err == nil {
		t.Error("expected error for empty transcript")
	}
}

func TestServiceConsolidate(t *testing.T) {
	gen := &fakeGenerator{response: `{"summary":"two weeks of conversations about family and work"}`}
	svc := NewService(gen, ServiceConfig{})

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	batch := []*types.MicroMemory{
		{ID: "m1", Summary: "stress at work", Topics: []string{"work"},
			Emotional: types.EmotionalContext{PrimaryEmotion: "anxious", Intensity: 0.7},
			CreatedAt: base},
		{ID: "m2", Summary: "a calm visit with family", Topics: []string{"family", "work"},
			Emotional: types.EmotionalContext{PrimaryEmotion: "content", Intensity: 0.5},
			CreatedAt: base.Add(48 * time.Hour)},
		{ID: "m3", Summary: "another tough day on the job", Topics: []string{"work"},
			Emotional: types.EmotionalContext{PrimaryEmotion: "anxious", Intensity: 0.6},
			CreatedAt: base.Add(24 * time.Hour)},
	}

	super, err := svc.Consolidate(context.Background(), batch)
	if err != nil {
		t.Fatalf("Consolidate failed: %v", err)
	}

	if super.Summary != "two weeks of conversations about family and work" {
		t.Errorf("unexpected summary: %q", super.Summary)
	}
	if super.ID != "" {
		t.Errorf("draft should have no ID, got %q", super.ID)
	}
	if len(super.SourceMemoryIDs) != 3 || super.SourceMemoryIDs[0] != "m1" || super.SourceMemoryIDs[2] != "m3" {
		t.Errorf("source IDs should preserve batch order: %v", super.SourceMemoryIDs)
	}
	if !super.RangeStart.Equal(base) {
		t.Errorf("range start should be oldest created_at, got %v", super.RangeStart)
	}
	if !super.RangeEnd.Equal(base.Add(48 * time.Hour)) {
		t.Errorf("range end should be newest created_at, got %v", super.RangeEnd)
	}
	if super.Patterns.DominantEmotion != "anxious" {
		t.Errorf("expected dominant emotion anxious, got %q", super.Patterns.DominantEmotion)
	}
	if len(super.Topics) == 0 || super.Topics[0] != "work" {
		t.Errorf("expected work as most frequent topic, got %v", super.Topics)
	}
}

func TestServiceConsolidateGeneratorFailure(t *testing.T) {
	genErr := errors.New("provider down")
	svc := NewService(&fakeGenerator{err: genErr}, ServiceConfig{})

	batch := []*types.MicroMemory{{ID: "m1", Summary: "s", CreatedAt: time.Now()}}

	if _, err := svc.Consolidate(context.Background(), batch); !errors.Is(err, genErr) {
		t.Errorf("expected wrapped generator error, got %v", err)
	}
}

func TestServiceConsolidateEmptyBatch(t *testing.T) {
	svc := NewService(&fakeGenerator{}, ServiceConfig{})

	if _, err := svc.Consolidate(context.Background(), nil); err == nil {
		t.Error("expected error for empty batch")
	}
}
