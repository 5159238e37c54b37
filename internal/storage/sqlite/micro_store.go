package sqlite

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
		return fmt.Errorf("sqlite: failed to marshal topics: %w", err)
	}
	messagesJSON, err := marshalOrNil(m.Messages)
	if err != nil {
		return fmt.Errorf("sqlite: failed to marshal messages: %w", err)
	}

	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO micro_memories (
			id, user_id, summary, topics, primary_emotion, emotional_intensity,
			message_count, messages, importance, created_at, consolidated, consolidated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	if _, err := s.db.ExecContext(ctx, query,
		m.ID, userID, m.Summary, topicsJSON,
		nullableString(m.Emotional.PrimaryEmotion), m.Emotional.Intensity,
		m.MessageCount, messagesJSON, m.Importance, m.CreatedAt,
		boolToInt(m.Consolidated), nullableTime(m.ConsolidatedAt),
	); err != nil {
		return fmt.Errorf("sqlite: failed to append micro-memory: %w", err)
	}

	return nil
}

// GetMicro retrieves a micro-memory by ID.
func (s *Store) GetMicro(ctx context.Context, userID, id string) (*types.MicroMemory, error) {
	if userID == "" || id == "" {
		return nil, fmt.Errorf("%w: user ID and memory ID are required", storage.ErrInvalidInput)
	}

	query := "SELECT " + microColumns + " FROM micro_memories WHERE user_id = ? AND id = ?"

	m, err := scanMicro(s.db.QueryRowContext(ctx, query, userID, id))
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to get micro-memory: %w", err)
	}

	return m, nil
}

// ListRecentMicro returns up to limit unconsolidated micro-memories,
// newest first.
func (s *Store) ListRecentMicro(ctx context.Context, userID string, limit int) ([]*types.MicroMemory, error) {
	query := "SELECT " + microColumns + ` FROM micro_memories
		WHERE user_id = ? AND consolidated = 0
		ORDER BY created_at DESC
		LIMIT ?`

	return s.queryMicros(ctx, query, userID, storage.NormalizeLimit(limit))
}

// ListUnconsolidated returns up to limit unconsolidated micro-memories,
// oldest first. Consolidation batches depend on this ordering.
func (s *Store) ListUnconsolidated(ctx context.Context, userID string, limit int) ([]*types.MicroMemory, error) {
	query := "SELECT " + microColumns + ` FROM micro_memories
		WHERE user_id = ? AND consolidated = 0
		ORDER BY created_at ASC
		LIMIT ?`

	return s.queryMicros(ctx, query, userID, storage.NormalizeLimit(limit))
}

// CountUnconsolidated returns the number of unconsolidated micro-memories.
func (s *Store) CountUnconsolidated(ctx context.Context, userID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM micro_memories WHERE user_id = ? AND consolidated = 0",
		userID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("sqlite: failed to count unconsolidated: %w", err)
	}
	return count, nil
}

// SearchMicroByTopic returns micro-memories tagged with the topic, newest
// first. Topics are stored as a JSON array; the match uses json_each.
func (s *Store) SearchMicroByTopic(ctx context.Context, userID, topic string, limit int) ([]*types.MicroMemory, error) {
	query := "SELECT " + microColumns + ` FROM micro_memories
		WHERE user_id = ?
		  AND topics IS NOT NULL
		  AND EXISTS (SELECT 1 FROM json_each(micro_memories.topics) WHERE json_each.value = ?)
		ORDER BY created_at DESC
		LIMIT ?`

	rows, err := s.db.QueryContext(ctx, query, userID, topic, storage.NormalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to search by topic: %w", err)
	}
	defer rows.Close()

	return collectMicros(rows)
}

// ListForPrune returns the decay-relevant fields of every micro-memory for
// the user, consolidated or not.
func (s *Store) ListForPrune(ctx context.Context, userID string) ([]storage.PruneCandidate, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, importance, created_at FROM micro_memories WHERE user_id = ?",
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to list prune candidates: %w", err)
	}
	defer rows.Close()

	var candidates []storage.PruneCandidate
	for rows.Next() {
		var c storage.PruneCandidate
		if err := rows.Scan(&c.ID, &c.Importance, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("sqlite: failed to scan prune candidate: %w", err)
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
		return 0, fmt.Errorf("sqlite: failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := fmt.Sprintf(
		"DELETE FROM micro_memories WHERE user_id = ? AND id IN (%s)",
		placeholders(len(ids)),
	)

	args := make([]interface{}, 0, len(ids)+1)
	args = append(args, userID)
	for _, id := range ids {
		args = append(args, id)
	}

	result, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("sqlite: failed to delete micro-memories: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlite: failed to get rows affected: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("sqlite: failed to commit deletion: %w", err)
	}

	return int(n), nil
}

// MicroCounts returns total/consolidated/unconsolidated counts.
func (s *Store) MicroCounts(ctx context.Context, userID string) (types.MicroStats, error) {
	var stats types.MicroStats
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(consolidated), 0)
		FROM micro_memories WHERE user_id = ?
	`, userID).Scan(&stats.Total, &stats.Consolidated)
	if err != nil {
		return stats, fmt.Errorf("sqlite: failed to count micro-memories: %w", err)
	}

	stats.Unconsolidated = stats.Total - stats.Consolidated
	return stats, nil
}

// CommitConsolidation marks the source batch consolidated and inserts the
// super-memory in one transaction. If any source record is missing or
// already consolidated, the transaction rolls back with
// storage.ErrConsolidationConflict.
func (s *Store) CommitConsolidation(ctx context.Context, userID string, super *types.SuperMemory, sourceIDs []string) error {
	if super == nil || len(sourceIDs) == 0 {
		return storage.ErrInvalidInput
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	markQuery := fmt.Sprintf(`
		UPDATE micro_memories
		SET consolidated = 1, consolidated_at = ?
		WHERE user_id = ? AND consolidated = 0 AND id IN (%s)
	`, placeholders(len(sourceIDs)))

	args := make([]interface{}, 0, len(sourceIDs)+2)
	args = append(args, now, userID)
	for _, id := range sourceIDs {
		args = append(args, id)
	}

	result, err := tx.ExecContext(ctx, markQuery, args...)
	if err != nil {
		return fmt.Errorf("sqlite: failed to mark batch consolidated: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: failed to get rows affected: %w", err)
	}

	// Precondition: the whole batch must still be unconsolidated. Anything
	// less means a record was pruned or consolidated since selection.
	if int(n) != len(sourceIDs) {
		return fmt.Errorf("%w: expected to mark %d records, marked %d",
			storage.ErrConsolidationConflict, len(sourceIDs), n)
	}

	if err := insertSuper(ctx, tx, userID, super); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: failed to commit consolidation: %w", err)
	}

	return nil
}

// queryMicros runs a micro-memory query and collects the results.
func (s *Store) queryMicros(ctx context.Context, query string, args ...interface{}) ([]*types.MicroMemory, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to query micro-memories: %w", err)
	}
	defer rows.Close()

	return collectMicros(rows)
}

func collectMicros(rows *sql.Rows) ([]*types.MicroMemory, error) {
	var memories []*types.MicroMemory
	for rows.Next() {
		m, err := scanMicro(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: failed to scan micro-memory: %w", err)
		}
		memories = append(memories, m)
	}
	return memories, rows.Err()
}

func scanMicro(row rowScanner) (*types.MicroMemory, error) {
	var m types.MicroMemory
	var topicsJSON, messagesJSON, primaryEmotion sql.NullString
	var consolidated int
	var consolidatedAt sql.NullTime

	if err := row.Scan(
		&m.ID, &m.Summary, &topicsJSON, &primaryEmotion, &m.Emotional.Intensity,
		&m.MessageCount, &messagesJSON, &m.Importance, &m.CreatedAt,
		&consolidated, &consolidatedAt,
	); err != nil {
		return nil, err
	}

	m.Consolidated = consolidated != 0
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

// placeholders returns n comma-separated "?" markers.
func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func marshalOrNil(v interface{}) (interface{}, error) {
	switch t := v.(type) {
	case []string:
		if len(t) == 0 {
			return nil, nil
		}
	case []types.Message:
		if len(t) == 0 {
			return nil, nil
		}
	case map[string]int:
		if len(t) == 0 {
			return nil, nil
		}
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nullableTime(t *time.Time) interface{} {
	if t == nil || t.IsZero() {
		return nil
	}
	return *t
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
