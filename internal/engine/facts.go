package engine

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/evermem/evermem/pkg/types"
)

// FactCandidate is a fact extracted from a user message, ready to be
// upserted with source=conversation.
type FactCandidate struct {
	Category types.FactCategory
	Key      string
	Value    interface{}
}

var (
	namePatterns     = []string{"my name is ", "i'm called ", "call me ", "name's "}
	nicknamePatterns = []string{"my nickname is ", "but call me ", "nickname is ", "people call me "}
	locationPatterns = []string{"i live in ", "i'm from ", "living in ", "based in "}
	jobPatterns      = []string{"i work as a ", "i work as ", "i'm a ", "i am a ", "i'm an ", "i am an ", "my job is ", "working as "}

	petPatterns = []struct {
		petType  string
		patterns []string
	}{
		{"dog", []string{"my dog", "i have a dog", "got a dog", "and a dog", "dog called", "dog named"}},
		{"cat", []string{"my cat", "i have a cat", "got a cat", "and a cat", "cat called", "cat named"}},
		{"pet", []string{"my pet", "i have a pet", "got a pet"}},
	}

	spousePatterns = []struct {
		relation string
		patterns []string
	}{
		{"wife", []string{"my wife"}},
		{"husband", []string{"my husband"}},
		{"partner", []string{"my partner"}},
		{"spouse", []string{"my spouse"}},
	}

	colorKeywords = []string{
		"red", "blue", "green", "yellow", "purple", "orange",
		"pink", "black", "white", "brown", "gray", "grey", "silver", "gold",
	}

	marriedDurationRe = regexp.MustCompile(`married.*?(\d+|one|two|three|four|five|six|seven|eight|nine|ten)\s*(year|month)`)
	ageRe             = regexp.MustCompile(`\bi(?:'m| am)\s+(\d{1,3})(?:\s+years?\s+old)?\b`)
)

// ExtractFacts scans one user message for durable personal facts: name,
// nickname, location, pets, spouse or partner, occupation, retirement,
// favorite color, marriage duration, and age. It is pattern matching, not
// understanding; a miss costs nothing because the same fact will come up
// again in a later conversation.
func ExtractFacts(message string) []FactCandidate {
	var facts []FactCandidate
	lower := strings.ToLower(message)

	if name, ok := wordAfterAny(message, lower, namePatterns); ok {
		facts = append(facts, FactCandidate{types.CategoryIdentity, "name", name})
	}

	if nickname, ok := wordAfterAny(message, lower, nicknamePatterns); ok {
		facts = append(facts, FactCandidate{types.CategoryIdentity, "nickname", nickname})
	}

	for _, pp := range petPatterns {
		if !containsAny(lower, pp.patterns) {
			continue
		}
		if name, ok := wordAfterAny(message, lower, []string{"named ", "called "}); ok {
			facts = append(facts, FactCandidate{
				types.CategoryRelationships,
				fmt.Sprintf("pet_%s_%s", pp.petType, strings.ToLower(name)),
				map[string]interface{}{"type": pp.petType, "name": name},
			})
		} else {
			facts = append(facts, FactCandidate{
				types.CategoryRelationships,
				"has_" + pp.petType,
				true,
			})
		}
		break
	}

	if strings.Contains(lower, "favorite color") || strings.Contains(lower, "favourite color") {
		for _, color := range colorKeywords {
			if strings.Contains(lower, color) {
				facts = append(facts, FactCandidate{types.CategoryPreferences, "favorite_color", color})
				break
			}
		}
	}

	for _, pattern := range locationPatterns {
		idx := strings.Index(lower, pattern)
		if idx == -1 {
			continue
		}
		rest := message[idx+len(pattern):]
		// City names can be multi-word; stop at punctuation.
		location := strings.TrimSpace(splitAtAny(rest, ",.!?"))
		if len(location) > 2 {
			facts = append(facts, FactCandidate{types.CategoryIdentity, "location", titleCase(location)})
			break
		}
	}

	for _, sp := range spousePatterns {
		if !containsAny(lower, sp.patterns) {
			continue
		}
		if name, ok := wordAfterAny(message, lower, []string{"called ", "is "}); ok {
			facts = append(facts, FactCandidate{types.CategoryRelationships, sp.relation, name})
		}
		break
	}

	if strings.Contains(lower, "married") {
		if m := marriedDurationRe.FindStringSubmatch(lower); m != nil {
			facts = append(facts, FactCandidate{
				types.CategoryRelationships, "married_duration",
				fmt.Sprintf("%s %ss", m[1], m[2]),
			})
		}
	}

	for _, pattern := range jobPatterns {
		idx := strings.Index(lower, pattern)
		if idx == -1 {
			continue
		}
		rest := message[idx+len(pattern):]
		occupation := strings.TrimSpace(splitAtAny(rest, ",.!?"))
		if len(occupation) > 2 && !startsWithDigit(occupation) {
			facts = append(facts, FactCandidate{types.CategoryStatus, "occupation", occupation})
			break
		}
	}

	if strings.Contains(lower, "retired") {
		facts = append(facts, FactCandidate{types.CategoryStatus, "retired", true})
	}

	if m := ageRe.FindStringSubmatch(lower); m != nil {
		if age, err := strconv.Atoi(m[1]); err == nil && age >= 1 && age <= 120 {
			facts = append(facts, FactCandidate{types.CategoryIdentity, "age", age})
		}
	}

	return facts
}

// wordAfterAny returns the first clean single-word value following any of
// the patterns: alphabetic, longer than one rune, capitalized.
func wordAfterAny(original, lower string, patterns []string) (string, bool) {
	for _, pattern := range patterns {
		idx := strings.Index(lower, pattern)
		if idx == -1 {
			continue
		}
		rest := strings.TrimSpace(original[idx+len(pattern):])
		rest = strings.SplitN(rest, ",", 2)[0]
		fields := strings.Fields(rest)
		if len(fields) == 0 {
			continue
		}
		word := strings.Trim(fields[0], ".,!?")
		if len(word) > 1 && isAlpha(word) {
			return capitalize(word), true
		}
	}
	return "", false
}

func containsAny(s string, patterns []string) bool {
	for _, p := range patterns {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}

// splitAtAny returns s truncated at the first occurrence of any rune in cutset.
func splitAtAny(s, cutset string) string {
	if idx := strings.IndexAny(s, cutset); idx != -1 {
		return s[:idx]
	}
	return s
}

func startsWithDigit(s string) bool {
	return len(s) > 0 && s[0] >= '0' && s[0] <= '9'
}

func isAlpha(s string) bool {
	for _, r := range s {
		if !unicode.IsLetter(r) {
			return false
		}
	}
	return len(s) > 0
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	runes := []rune(strings.ToLower(s))
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}

func titleCase(s string) string {
	fields := strings.Fields(s)
	for i, f := range fields {
		fields[i] = capitalize(f)
	}
	return strings.Join(fields, " ")
}

// OnboardingData carries the answers collected during onboarding that map
// to persistent facts.
type OnboardingData struct {
	CompanionName      string            `json:"companion_name"`
	CommunicationStyle string            `json:"communication_style"`
	EmotionalPacing    string            `json:"emotional_pacing"`
	IsVeteran          *bool             `json:"is_veteran"`
	ServiceBranch      string            `json:"service_branch"`
	ServiceCountry     string            `json:"service_country"`
	LifeChapter        string            `json:"life_chapter"`
	SourcesOfMeaning   []string          `json:"sources_of_meaning"`
	EffectiveSupport   []string          `json:"effective_support"`
	CoreValues         []string          `json:"core_values"`
	ValueDefinitions   map[string]string `json:"value_definitions"`
}

// onboardingFacts maps onboarding answers to fact candidates. Empty fields
// are skipped; service details are only kept for veterans.
func onboardingFacts(data OnboardingData) []FactCandidate {
	var facts []FactCandidate

	if data.CompanionName != "" {
		facts = append(facts, FactCandidate{types.CategoryPreferences, "companion_name", data.CompanionName})
	}
	if data.CommunicationStyle != "" {
		facts = append(facts, FactCandidate{types.CategoryPreferences, "communication_style", data.CommunicationStyle})
	}
	if data.EmotionalPacing != "" {
		facts = append(facts, FactCandidate{types.CategoryPreferences, "emotional_pacing", data.EmotionalPacing})
	}

	if data.IsVeteran != nil {
		facts = append(facts, FactCandidate{types.CategoryStatus, "is_veteran", *data.IsVeteran})
		if *data.IsVeteran {
			if data.ServiceBranch != "" {
				facts = append(facts, FactCandidate{types.CategoryStatus, "service_branch", data.ServiceBranch})
			}
			if data.ServiceCountry != "" {
				facts = append(facts, FactCandidate{types.CategoryStatus, "service_country", data.ServiceCountry})
			}
		}
	}

	if data.LifeChapter != "" {
		facts = append(facts, FactCandidate{types.CategoryValues, "life_chapter", data.LifeChapter})
	}
	if len(data.SourcesOfMeaning) > 0 {
		facts = append(facts, FactCandidate{types.CategoryValues, "sources_of_meaning", data.SourcesOfMeaning})
	}
	if len(data.EffectiveSupport) > 0 {
		facts = append(facts, FactCandidate{types.CategoryPreferences, "effective_support", data.EffectiveSupport})
	}
	if len(data.CoreValues) > 0 {
		facts = append(facts, FactCandidate{types.CategoryValues, "core_values", data.CoreValues})
	}
	if len(data.ValueDefinitions) > 0 {
		facts = append(facts, FactCandidate{types.CategoryValues, "value_definitions", data.ValueDefinitions})
	}

	return facts
}
