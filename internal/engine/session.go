package engine

import (
	"strings"

	"github.com/evermem/evermem/pkg/types"
)

// Session analysis is deliberately cheap and deterministic: keyword
// heuristics over the user's messages. The LLM writes the narrative
// summary; it never gets to decide how important a session was.

var emotionKeywords = []struct {
	emotion   string
	intensity float64
	keywords  []string
}{
	{"negative", 0.7, []string{"sad", "upset", "depressed", "down"}},
	{"positive", 0.6, []string{"happy", "great", "excited", "wonderful"}},
	{"anxious", 0.7, []string{"worried", "anxious", "nervous", "scared"}},
}

var topicKeywords = map[string][]string{
	"work":          {"work", "job", "career", "office", "project", "meeting"},
	"relationships": {"friend", "family", "partner", "relationship", "dating"},
	"health":        {"health", "doctor", "medicine", "exercise", "sleep"},
	"hobbies":       {"hobby", "game", "movie", "book", "music", "sport"},
	"emotions":      {"feel", "emotion", "mood", "anxiety", "depression"},
	"pets":          {"dog", "cat", "pet", "animal"},
	"goals":         {"goal", "plan", "dream", "ambition", "aspiration"},
	"values":        {"value", "important", "matter", "meaningful", "purpose"},
}

// analyzeEmotions detects the session's primary emotion and average
// intensity from the user's messages. Sessions with no emotional keywords
// come back neutral at zero intensity.
func analyzeEmotions(messages []types.Message) types.EmotionalContext {
	counts := make(map[string]int)
	var intensitySum float64
	var hits int

	for _, msg := range messages {
		if msg.Role != "user" {
			continue
		}
		content := strings.ToLower(msg.Content)

		for _, ek := range emotionKeywords {
			for _, kw := range ek.keywords {
				if strings.Contains(content, kw) {
					counts[ek.emotion]++
					intensitySum += ek.intensity
					hits++
					break
				}
			}
		}
	}

	if hits == 0 {
		return types.EmotionalContext{PrimaryEmotion: "neutral", Intensity: 0.0}
	}

	primary := ""
	best := 0
	for emotion, count := range counts {
		if count > best || (count == best && emotion < primary) {
			primary = emotion
			best = count
		}
	}

	return types.EmotionalContext{
		PrimaryEmotion: primary,
		Intensity:      intensitySum / float64(hits),
	}
}

// analyzeTopics tags the session with topics whose keywords appear in any
// of the user's messages. Results are in a stable order.
func analyzeTopics(messages []types.Message) []string {
	var combined strings.Builder
	for _, msg := range messages {
		if msg.Role == "user" {
			combined.WriteString(strings.ToLower(msg.Content))
			combined.WriteString(" ")
		}
	}
	text := combined.String()

	// Fixed iteration order keeps topic lists reproducible across runs.
	order := []string{"work", "relationships", "health", "hobbies", "emotions", "pets", "goals", "values"}

	var topics []string
	for _, topic := range order {
		for _, kw := range topicKeywords[topic] {
			if strings.Contains(text, kw) {
				topics = append(topics, topic)
				break
			}
		}
	}

	return topics
}

// sessionImportance scores a session on the [1, 10] importance scale:
// 5.0 base, +2.0 for emotionally intense sessions, +1.5 when values come
// up, +0.5 per topic (capped at +2.0), +1.0 for long sessions.
func sessionImportance(emotional types.EmotionalContext, topics []string, messageCount int) float64 {
	importance := 5.0

	if emotional.Intensity > 0.5 {
		importance += 2.0
	}

	for _, topic := range topics {
		if topic == "values" {
			importance += 1.5
			break
		}
	}

	topicBonus := float64(len(topics)) * 0.5
	if topicBonus > 2.0 {
		topicBonus = 2.0
	}
	importance += topicBonus

	if messageCount > 20 {
		importance += 1.0
	}

	return ClampImportance(importance)
}
