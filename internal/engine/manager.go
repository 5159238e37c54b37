package engine

import (
	"context"
	"fmt"
	"hash/fnv"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/evermem/evermem/internal/storage"
	"github.com/evermem/evermem/pkg/types"
)

// lockStripes is the number of per-user mutex stripes. Writes for the same
// user serialize on one stripe; unrelated users almost never collide.
const lockStripes = 64

// relevantScanLimit is how many recent unconsolidated records BuildContext
// scores when ranking by effective importance.
const relevantScanLimit = 100

// SummarizerService bundles both summarizer roles; llm.Service satisfies it.
type SummarizerService interface {
	Summarizer
	SessionSummarizer
}

// Manager is the facade over the three memory tiers. The conversational
// layer talks only to this type: context assembly before a reply, session
// ingestion at session end, fact management, stats, and account deletion.
type Manager struct {
	store        storage.Store
	summarizer   SummarizerService
	consolidator *Consolidator
	config       Config
	ids          *idGenerator
	now          func() time.Time

	userLocks [lockStripes]sync.Mutex
}

// NewManager creates the memory manager facade.
func NewManager(store storage.Store, summarizer SummarizerService, config Config) (*Manager, error) {
	if store == nil {
		return nil, fmt.Errorf("storage backend is required")
	}
	if summarizer == nil {
		return nil, fmt.Errorf("summarizer is required")
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Manager{
		store:        store,
		summarizer:   summarizer,
		consolidator: NewConsolidator(store, summarizer, config),
		config:       config,
		ids:          newIDGenerator(),
		now:          time.Now,
	}, nil
}

func (m *Manager) lockFor(userID string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(userID))
	return &m.userLocks[h.Sum32()%lockStripes]
}

// BuildContext assembles the memory view for the start of a reply: all
// persistent facts, a recent window of unconsolidated micro-memories
// (newest first), a relevance ranking by effective importance, and the
// latest super-memory. It never mutates anything, and a failing tier is
// reported in Degraded rather than failing the call.
func (m *Manager) BuildContext(ctx context.Context, userID string, recentLimit, relevantLimit int) (*types.MemoryContext, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user ID is required", storage.ErrInvalidInput)
	}

	mc := &types.MemoryContext{}
	now := m.now()

	facts, err := m.store.ListFacts(ctx, userID, "")
	if err != nil {
		log.Printf("ERROR: context assembly: fact tier read failed for user %s: %v", userID, err)
		mc.Degraded = append(mc.Degraded, "facts")
	} else {
		mc.Facts = facts
	}

	micros, err := m.store.ListRecentMicro(ctx, userID, relevantScanLimit)
	if err != nil {
		log.Printf("ERROR: context assembly: micro tier read failed for user %s: %v", userID, err)
		mc.Degraded = append(mc.Degraded, "micro")
	} else {
		scored := make([]types.ScoredMemory, 0, len(micros))
		for _, micro := range micros {
			effective := EffectiveImportance(micro.Importance, micro.CreatedAt, now, m.config.HalfLifeDays)
			if effective < m.config.EvictionFloor {
				continue // expired; the sweeper just hasn't caught up
			}
			scored = append(scored, types.ScoredMemory{MicroMemory: micro, EffectiveImportance: effective})
		}

		// scored is already newest-first from the store.
		mc.Recent = clipScored(scored, recentLimit)

		byImportance := make([]types.ScoredMemory, len(scored))
		copy(byImportance, scored)
		sort.SliceStable(byImportance, func(i, j int) bool {
			return byImportance[i].EffectiveImportance > byImportance[j].EffectiveImportance
		})
		mc.Relevant = clipScored(byImportance, relevantLimit)
	}

	supers, err := m.store.ListRecentSuper(ctx, userID, 1)
	if err != nil {
		log.Printf("ERROR: context assembly: super tier read failed for user %s: %v", userID, err)
		mc.Degraded = append(mc.Degraded, "super")
	} else if len(supers) > 0 {
		mc.LatestSuper = supers[0]
	}

	return mc, nil
}

func clipScored(s []types.ScoredMemory, limit int) []types.ScoredMemory {
	limit = storage.NormalizeLimit(limit)
	if len(s) > limit {
		s = s[:limit]
	}
	if len(s) == 0 {
		return nil
	}
	return s
}

// EndSession turns a finished session into a micro-memory: summarize,
// analyze, persist, auto-extract facts, and maybe consolidate. It returns
// the new micro-memory ID, or "" for transcripts too short to matter.
//
// Persistence failure is the only error surfaced. The summary falls back
// to a counted placeholder when the summarizer fails, fact extraction and
// consolidation failures are logged and swallowed, and the write itself
// runs under context.WithoutCancel so a cancelled request cannot lose the
// session.
func (m *Manager) EndSession(ctx context.Context, userID string, transcript *types.SessionTranscript) (string, error) {
	if userID == "" {
		return "", fmt.Errorf("%w: user ID is required", storage.ErrInvalidInput)
	}
	if transcript == nil || len(transcript.Messages) < m.config.MinSessionMessages {
		return "", nil
	}

	if transcript.SessionID == "" {
		transcript.SessionID = uuid.New().String()
	}

	summary := m.summarizeSession(ctx, userID, transcript)

	emotional := analyzeEmotions(transcript.Messages)
	topics := analyzeTopics(transcript.Messages)
	importance := sessionImportance(emotional, topics, len(transcript.Messages))

	messages := transcript.Messages
	if m.config.MaxStoredMessages >= 0 && len(messages) > m.config.MaxStoredMessages {
		messages = messages[len(messages)-m.config.MaxStoredMessages:]
	}

	micro := &types.MicroMemory{
		ID:           m.ids.NewID(),
		Summary:      summary,
		Topics:       topics,
		Emotional:    emotional,
		MessageCount: len(transcript.Messages),
		Messages:     messages,
		Importance:   ClampImportance(importance),
		CreatedAt:    m.now().UTC(),
	}

	// The session must survive the caller hanging up mid-request.
	persistCtx := context.WithoutCancel(ctx)

	lock := m.lockFor(userID)
	lock.Lock()
	err := m.store.AppendMicro(persistCtx, userID, micro)
	if err == nil {
		m.extractSessionFacts(persistCtx, userID, transcript.Messages)
	}
	lock.Unlock()

	if err != nil {
		return "", fmt.Errorf("failed to persist session memory: %w", err)
	}

	log.Printf("session %s ended for user %s: micro-memory %s (importance %.1f, %d messages)",
		transcript.SessionID, userID, micro.ID, micro.Importance, micro.MessageCount)

	if _, err := m.consolidator.MaybeConsolidate(persistCtx, userID); err != nil {
		log.Printf("ERROR: consolidation after session %s: %v", transcript.SessionID, err)
	}

	return micro.ID, nil
}

// summarizeSession asks the summarizer for a narrative summary, falling
// back to a counted placeholder so a flaky provider never blocks ingestion.
func (m *Manager) summarizeSession(ctx context.Context, userID string, transcript *types.SessionTranscript) string {
	summaryCtx, cancel := context.WithTimeout(ctx, m.config.SummarizerTimeout)
	defer cancel()

	summary, err := m.summarizer.SummarizeSession(summaryCtx, transcript)
	if err != nil {
		log.Printf("ERROR: session summary failed for user %s, using fallback: %v", userID, err)
		return fmt.Sprintf("Conversation with %d messages", len(transcript.Messages))
	}
	return summary
}

// extractSessionFacts runs fact extraction over the user's messages.
// Extraction failures are logged, never surfaced; a missed fact will come
// up again.
func (m *Manager) extractSessionFacts(ctx context.Context, userID string, messages []types.Message) {
	for _, msg := range messages {
		if msg.Role != "user" {
			continue
		}
		for _, candidate := range ExtractFacts(msg.Content) {
			fact := &types.PersistentFact{
				Category: candidate.Category,
				Key:      candidate.Key,
				Value:    candidate.Value,
				Source:   types.SourceConversation,
			}
			if _, err := m.store.SetFact(ctx, userID, fact); err != nil {
				log.Printf("ERROR: failed to store extracted fact %s/%s for user %s: %v",
					candidate.Category, candidate.Key, userID, err)
			}
		}
	}
}

// MaybeConsolidate exposes the consolidation trigger for maintenance and
// manual runs. Same semantics as the automatic post-session trigger.
func (m *Manager) MaybeConsolidate(ctx context.Context, userID string) (string, error) {
	return m.consolidator.MaybeConsolidate(ctx, userID)
}

// ImportOnboardingFacts seeds the fact store from onboarding answers with
// source=onboarding. It returns the number of facts written.
func (m *Manager) ImportOnboardingFacts(ctx context.Context, userID string, data OnboardingData) (int, error) {
	if userID == "" {
		return 0, fmt.Errorf("%w: user ID is required", storage.ErrInvalidInput)
	}

	imported := 0
	for _, candidate := range onboardingFacts(data) {
		fact := &types.PersistentFact{
			Category: candidate.Category,
			Key:      candidate.Key,
			Value:    candidate.Value,
			Source:   types.SourceOnboarding,
		}
		if _, err := m.store.SetFact(ctx, userID, fact); err != nil {
			return imported, fmt.Errorf("failed to import onboarding fact %s/%s: %w",
				candidate.Category, candidate.Key, err)
		}
		imported++
	}

	log.Printf("imported %d onboarding facts for user %s", imported, userID)
	return imported, nil
}

// SetFact upserts a persistent fact on the user's behalf.
func (m *Manager) SetFact(ctx context.Context, userID string, category types.FactCategory, key string, value interface{}, source types.FactSource) (*types.PersistentFact, error) {
	if source == "" {
		source = types.SourceUserDirect
	}
	return m.store.SetFact(ctx, userID, &types.PersistentFact{
		Category: category,
		Key:      key,
		Value:    value,
		Source:   source,
	})
}

// GetFact returns one persistent fact, or storage.ErrNotFound.
func (m *Manager) GetFact(ctx context.Context, userID string, category types.FactCategory, key string) (*types.PersistentFact, error) {
	return m.store.GetFact(ctx, userID, category, key)
}

// ListFacts returns the user's facts, optionally filtered by category.
func (m *Manager) ListFacts(ctx context.Context, userID string, category types.FactCategory) ([]*types.PersistentFact, error) {
	return m.store.ListFacts(ctx, userID, category)
}

// DeleteFact removes a fact. Facts never decay; this is the only path by
// which one disappears, and it exists for explicit user requests.
func (m *Manager) DeleteFact(ctx context.Context, userID string, category types.FactCategory, key string) error {
	return m.store.DeleteFact(ctx, userID, category, key)
}

// SearchMicroByTopic returns recent micro-memories tagged with the topic.
func (m *Manager) SearchMicroByTopic(ctx context.Context, userID, topic string, limit int) ([]*types.MicroMemory, error) {
	return m.store.SearchMicroByTopic(ctx, userID, topic, limit)
}

// ListSuperByTheme returns super-memories carrying the given theme.
func (m *Manager) ListSuperByTheme(ctx context.Context, userID, theme string, limit int) ([]*types.SuperMemory, error) {
	return m.store.ListSuperByTheme(ctx, userID, theme, limit)
}

// GetStats reports read-only counts for every tier.
func (m *Manager) GetStats(ctx context.Context, userID string) (*types.Stats, error) {
	factStats, err := m.store.CountFacts(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to count facts: %w", err)
	}

	microStats, err := m.store.MicroCounts(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to count micro-memories: %w", err)
	}

	superCount, err := m.store.CountSuper(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to count super-memories: %w", err)
	}

	return &types.Stats{
		Facts: factStats,
		Micro: microStats,
		Super: types.SuperStats{Total: superCount},
	}, nil
}

// DeleteUser removes every record the user owns, across all tiers, in one
// transaction.
func (m *Manager) DeleteUser(ctx context.Context, userID string) error {
	lock := m.lockFor(userID)
	lock.Lock()
	defer lock.Unlock()

	if err := m.store.DeleteUser(ctx, userID); err != nil {
		return fmt.Errorf("failed to delete user data: %w", err)
	}

	log.Printf("deleted all memory tiers for user %s", userID)
	return nil
}
