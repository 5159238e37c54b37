package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/evermem/evermem/internal/storage"
	"github.com/evermem/evermem/pkg/types"
)

const microColumns = `id, summary, topics, primary_emotion, emotional_intensity,
	message_count, messages, importance, created_at, consolidated, consolidated_at`

// AppendMicro stores a new micro-memory.
func (s *Store) AppendMicro(ctx context.Context, userID string, m *types.MicroMemory) error {
	if m == nil {
		return storage.ErrInvalidInput
	}
	if userID == "" {
		return fmt.Errorf("%w: user ID is required", storage.ErrInvalidInput)
	}
	if m.ID == "" {
		return fmt.Errorf("%w: micro-memory ID is required", storage.ErrInvalidInput)
	}
	if m.Summary == "" {
		return fmt.Errorf("%w: micro-memory summary is required", storage.ErrInvalidInput)
	}

	topicsJSON, err := marshalOrNil(m.Topics)
	if err != nil {
		return fmt.Errorf("postgres: failed to marshal topics: %w", err)
	}
	messagesJSON, err := marshalOrNil(m.Messages)
	if err != nil {
		return fmt.Errorf("postgres: failed to marshal messages: %w", err)
	}

	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO micro_memories (
			id, user_id, summary, topics, primary_emotion, emotional_intensity,
			message_count, messages, importance, created_at, consolidated, consolidated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	if _, err := s.db.ExecContext(ctx, query,
		m.ID, userID, m.Summary, topicsJSON,
		nullableString(m.Emotional.PrimaryEmotion), m.Emotional.Intensity,
		m.MessageCount, messagesJSON, m.Importance, m.CreatedAt,
		m.Consolidated, nullableTime(m.ConsolidatedAt),
	); err != nil {
		return fmt.Errorf("postgres: failed to append micro-memory: %w", err)
	}

	return nil
}

// GetMicro retrieves a micro-memory by ID.
func (s *Store) GetMicro(ctx context.Context, userID, id string) (*types.MicroMemory, error) {
	if userID == "" || id == "" {
		return nil, fmt.Errorf("%w: user ID and memory ID are required", storage.ErrInvalidInput)
	}

	query := "SELECT " + microColumns + " FROM micro_memories WHERE user_id = $1 AND id = $2"

	m, err := scanMicro(s.db.QueryRowContext(ctx, query, userID, id))
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to get micro-memory: %w", err)
	}

	return m, nil
}

// ListRecentMicro returns up to limit unconsolidated micro-memories,
// newest first.
func (s *Store) ListRecentMicro(ctx context.Context, userID string, limit int) ([]*types.MicroMemory, error) {
	query := "SELECT " + microColumns + ` FROM micro_memories
		WHERE user_id = $1 AND consolidated = FALSE
		ORDER BY created_at DESC
		LIMIT $2`

	return s.queryMicros(ctx, query, userID, storage.NormalizeLimit(limit))
}

// ListUnconsolidated returns up to limit unconsolidated micro-memories,
// oldest first. Consolidation batches depend on this ordering.
func (s *Store) ListUnconsolidated(ctx context.Context, userID string, limit int) ([]*types.MicroMemory, error) {
	query := "SELECT " + microColumns + ` FROM micro_memories
		WHERE user_id = $1 AND consolidated = FALSE
		ORDER BY created_at ASC
		LIMIT $2`

	return s.queryMicros(ctx, query, userID, storage.NormalizeLimit(limit))
}

// CountUnconsolidated returns the number of unconsolidated micro-memories.
func (s *Store) CountUnconsolidated(ctx context.Context, userID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM micro_memories WHERE user_id = $1 AND consolidated = FALSE",
		userID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("postgres: failed to count unconsolidated: %w", err)
	}
	return count, nil
}

// SearchMicroByTopic returns micro-memories tagged with the topic, newest
// first, using JSONB containment on the topics array.
func (s *Store) SearchMicroByTopic(ctx context.Context, userID, topic string, limit int) ([]*types.MicroMemory, error) {
	topicJSON, err := json.Marshal([]string{topic})
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to marshal topic: %w", err)
	}

	query := "SELECT " + microColumns + ` FROM micro_memories
		WHERE user_id = $1 AND topics @> $2
		ORDER BY created_at DESC
		LIMIT $3`

	return s.queryMicros(ctx, query, userID, string(topicJSON), storage.NormalizeLimit(limit))
}

// ListForPrune returns the decay-relevant fields of every micro-memory for
// the user, consolidated or not.
func (s *Store) ListForPrune(ctx context.Context, userID string) ([]storage.PruneCandidate, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, importance, created_at FROM micro_memories WHERE user_id = $1",
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to list prune candidates: %w", err)
	}
	defer rows.Close()

	var candidates []storage.PruneCandidate
	for rows.Next() {
		var c storage.PruneCandidate
		if err := rows.Scan(&c.ID, &c.Importance, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: failed to scan prune candidate: %w", err)
		}
		candidates = append(candidates, c)
	}

	return candidates, rows.Err()
}

// DeleteMicro removes the given micro-memories in a single transaction.
func (s *Store) DeleteMicro(ctx context.Context, userID string, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("postgres: failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := fmt.Sprintf(
		"DELETE FROM micro_memories WHERE user_id = $1 AND id IN (%s)",
		placeholders(2, len(ids)),
	)

	args := make([]interface{}, 0, len(ids)+1)
	args = append(args, userID)
	for _, id := range ids {
		args = append(args, id)
	}

	result, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("postgres: failed to delete micro-memories: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("postgres: failed to get rows affected: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("postgres: failed to commit deletion: %w", err)
	}

	return int(n), nil
}

// MicroCounts returns total/consolidated/unconsolidated counts.
func (s *Store) MicroCounts(ctx context.Context, userID string) (types.MicroStats, error) {
	var stats types.MicroStats
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE consolidated)
		FROM micro_memories WHERE user_id = $1
	`, userID).Scan(&stats.Total, &stats.Consolidated)
	if err != nil {
		return stats, fmt.Errorf("postgres: failed to count micro-memories: %w", err)
	}

	stats.Unconsolidated = stats.Total - stats.Consolidated
	return stats, nil
}

// CommitConsolidation marks the source batch consolidated and inserts the
// super-memory in one transaction; rolls back with
// storage.ErrConsolidationConflict if the batch changed since selection.
func (s *Store) CommitConsolidation(ctx context.Context, userID string, super *types.SuperMemory, sourceIDs []string) error {
	if super == nil || len(sourceIDs) == 0 {
		return storage.ErrInvalidInput
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("postgres: failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	markQuery := fmt.Sprintf(`
		UPDATE micro_memories
		SET consolidated = TRUE, consolidated_at = $1
		WHERE user_id = $2 AND consolidated = FALSE AND id IN (%s)
	`, placeholders(3, len(sourceIDs)))

	args := make([]interface{}, 0, len(sourceIDs)+2)
	args = append(args, time.Now().UTC(), userID)
	for _, id := range sourceIDs {
		args = append(args, id)
	}

	result, err := tx.ExecContext(ctx, markQuery, args...)
	if err != nil {
		return fmt.Errorf("postgres: failed to mark batch consolidated: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("postgres: failed to get rows affected: %w", err)
	}

	if int(n) != len(sourceIDs) {
		return fmt.Errorf("%w: expected to mark %d records, marked %d",
			storage.ErrConsolidationConflict, len(sourceIDs), n)
	}

	if err := insertSuper(ctx, tx, userID, super); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("postgres: failed to commit consolidation: %w", err)
	}

	return nil
}

func (s *Store) queryMicros(ctx context.Context, query string, args ...interface{}) ([]*types.MicroMemory, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query micro-memories: %w", err)
	}
	defer rows.Close()

	var memories []*types.MicroMemory
	for rows.Next() {
		m, err := scanMicro(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: failed to scan micro-memory: %w", err)
		}
		memories = append(memories, m)
	}

	return memories, rows.Err()
}

func scanMicro(row rowScanner) (*types.MicroMemory, error) {
	var m types.MicroMemory
	var topicsJSON, messagesJSON, primaryEmotion sql.NullString
	var consolidatedAt sql.NullTime

	if err := row.Scan(
		&m.ID, &m.Summary, &topicsJSON, &primaryEmotion, &m.Emotional.Intensity,
		&m.MessageCount, &messagesJSON, &m.Importance, &m.CreatedAt,
		&m.Consolidated, &consolidatedAt,
	); err != nil {
		return nil, err
	}

	if primaryEmotion.Valid {
		m.Emotional.PrimaryEmotion = primaryEmotion.String
	}
	if consolidatedAt.Valid {
		m.ConsolidatedAt = &consolidatedAt.Time
	}

	if topicsJSON.Valid && topicsJSON.String != "" {
		if err := json.Unmarshal([]byte(topicsJSON.String), &m.Topics); err != nil {
			return nil, fmt.Errorf("failed to unmarshal topics: %w", err)
		}
	}
	if messagesJSON.Valid && messagesJSON.String != "" {
		if err := json.Unmarshal([]byte(messagesJSON.String), &m.Messages); err != nil {
			return nil, fmt.Errorf("failed to unmarshal messages: %w", err)
		}
	}

	return &m, nil
}

// placeholders returns n comma-separated $k markers starting at $start.
func placeholders(start, n int) string {
	parts := make([]string, n)
	for i := 0; i < n; i++ {
		parts[i] = fmt.Sprintf("$%d", start+i)
	}
	return strings.Join(parts, ", ")
}
