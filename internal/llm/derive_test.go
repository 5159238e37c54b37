package llm

import (
	"reflect"
	"testing"
	"time"

	"github.com/evermem/evermem/pkg/types"
)

func micro(summary string, topics []string, emotion string, intensity float64) *types.MicroMemory {
	return &types.MicroMemory{
		ID:      summary,
		Summary: summary,
		Topics:  topics,
		Emotional: types.EmotionalContext{
			PrimaryEmotion: emotion,
			Intensity:      intensity,
		},
		CreatedAt: time.Now().UTC(),
	}
}

func TestDeriveThemesRequiresRecurrence(t *testing.T) {
	batch := []*types.MicroMemory{
		micro("talked about a stressful day at work", nil, "", 0),
		micro("worried about a project deadline at the job", nil, "", 0),
		micro("mentioned a new hobby once", nil, "", 0),
	}

	themes := deriveThemes(batch)

	if !reflect.DeepEqual(themes, []string{"work_career"}) {
		t.Errorf("expected only work_career, got %v", themes)
	}
}

func TestDeriveThemesCountsMemoryOncePerTheme(t *testing.T) {
	// One memory hitting several keywords of the same theme counts once.
	batch := []*types.MicroMemory{
		micro("work work job career project professional", nil, "", 0),
		micro("gardening and the weather", nil, "", 0),
	}

	if themes := deriveThemes(batch); len(themes) != 0 {
		t.Errorf("single memory should not establish a theme, got %v", themes)
	}
}

func TestDeriveTopicsOrderedByFrequency(t *testing.T) {
	batch := []*types.MicroMemory{
		micro("a", []string{"garden", "family"}, "", 0),
		micro("b", []string{"garden", "chess"}, "", 0),
		micro("c", []string{"garden", "family"}, "", 0),
	}

	topics := deriveTopics(batch)

	expected := []string{"garden", "family", "chess"}
	if !reflect.DeepEqual(topics, expected) {
		t.Errorf("expected %v, got %v", expected, topics)
	}
}

func TestDeriveTopicsCapsAtTen(t *testing.T) {
	var batch []*types.MicroMemory
	topics := []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j", "k", "l"}
	batch = append(batch, micro("x", topics, "", 0))

	if got := deriveTopics(batch); len(got) != 10 {
		t.Errorf("expected 10 topics, got %d", len(got))
	}
}

func TestDeriveEmotionalPatterns(t *testing.T) {
	batch := []*types.MicroMemory{
		micro("a", nil, "content", 0.4),
		micro("b", nil, "content", 0.6),
		micro("c", nil, "anxious", 0.8),
		micro("d", nil, "", 0), // no emotion recorded, skipped
	}

	patterns := deriveEmotionalPatterns(batch)

	if patterns.DominantEmotion != "content" {
		t.Errorf("expected dominant emotion content, got %q", patterns.DominantEmotion)
	}
	if patterns.AverageIntensity < 0.59 || patterns.AverageIntensity > 0.61 {
		t.Errorf("expected average intensity ~0.6, got %f", patterns.AverageIntensity)
	}
	if patterns.Distribution["content"] != 2 || patterns.Distribution["anxious"] != 1 {
		t.Errorf("unexpected distribution: %v", patterns.Distribution)
	}
}

func TestDeriveEmotionalPatternsEmpty(t *testing.T) {
	batch := []*types.MicroMemory{micro("a", nil, "", 0)}

	patterns := deriveEmotionalPatterns(batch)
	if patterns.DominantEmotion != "" || patterns.Distribution != nil {
		t.Errorf("expected zero-value patterns, got %+v", patterns)
	}
}
