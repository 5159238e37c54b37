package llm

import (
	"sort"
	"strings"

	"github.com/evermem/evermem/pkg/types"
)

// themeKeywords maps recurring life themes to the keywords that signal them
// in a session summary.
var themeKeywords = map[string][]string{
	"personal_growth":  {"growth", "learning", "change", "progress", "development"},
	"relationships":    {"friend", "family", "partner", "relationship", "social"},
	"work_career":      {"work", "job", "career", "project", "professional"},
	"health_wellness":  {"health", "exercise", "wellness", "sleep", "fitness"},
	"emotions":         {"feeling", "emotion", "mood", "stress", "anxiety", "happiness"},
	"hobbies_interests": {"hobby", "interest", "passion", "enjoy", "fun"},
}

// deriveThemes returns themes whose keywords appear in at least two of the
// batch's summaries. A keyword hitting once is noise; twice is a pattern.
func deriveThemes(batch []*types.MicroMemory) []string {
	themeCounts := make(map[string]int)
	for _, m := range batch {
		summary := strings.ToLower(m.Summary)
		for theme, keywords := range themeKeywords {
			for _, kw := range keywords {
				if strings.Contains(summary, kw) {
					themeCounts[theme]++
					break
				}
			}
		}
	}

	var themes []string
	for theme, count := range themeCounts {
		if count >= 2 {
			themes = append(themes, theme)
		}
	}
	sort.Strings(themes)

	return themes
}

// deriveTopics returns the batch's topics ordered by frequency, most
// frequent first, capped at ten. Ties break alphabetically so the result
// is stable.
func deriveTopics(batch []*types.MicroMemory) []string {
	topicCounts := make(map[string]int)
	for _, m := range batch {
		for _, topic := range m.Topics {
			topicCounts[topic]++
		}
	}

	topics := make([]string, 0, len(topicCounts))
	for topic := range topicCounts {
		topics = append(topics, topic)
	}
	sort.Slice(topics, func(i, j int) bool {
		if topicCounts[topics[i]] != topicCounts[topics[j]] {
			return topicCounts[topics[i]] > topicCounts[topics[j]]
		}
		return topics[i] < topics[j]
	})

	if len(topics) > 10 {
		topics = topics[:10]
	}

	return topics
}

// deriveEmotionalPatterns aggregates the batch's emotional contexts into a
// dominant emotion, average intensity, and per-emotion distribution.
// Memories with no recorded emotion are skipped.
func deriveEmotionalPatterns(batch []*types.MicroMemory) types.EmotionalPatterns {
	distribution := make(map[string]int)
	var intensitySum float64
	var counted int

	for _, m := range batch {
		if m.Emotional.PrimaryEmotion == "" {
			continue
		}
		distribution[m.Emotional.PrimaryEmotion]++
		intensitySum += m.Emotional.Intensity
		counted++
	}

	if counted == 0 {
		return types.EmotionalPatterns{}
	}

	dominant := ""
	best := 0
	for emotion, count := range distribution {
		if count > best || (count == best && emotion < dominant) {
			dominant = emotion
			best = count
		}
	}

	return types.EmotionalPatterns{
		DominantEmotion:  dominant,
		AverageIntensity: intensitySum / float64(counted),
		Distribution:     distribution,
	}
}
