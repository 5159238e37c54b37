package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/evermem/evermem/internal/storage"
	"github.com/evermem/evermem/pkg/types"
)

const superColumns = `id, summary, themes, topics, dominant_emotion,
	average_intensity, distribution, source_memory_ids, range_start, range_end, created_at`

// AppendSuper stores a new super-memory. Super-memories are append-only;
// no update or delete statements exist for this table outside of account
// deletion.
func (s *Store) AppendSuper(ctx context.Context, userID string, super *types.SuperMemory) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := insertSuper(ctx, tx, userID, super); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: failed to commit super-memory: %w", err)
	}

	return nil
}

// insertSuper writes a super-memory row inside an existing transaction.
// Shared between AppendSuper and CommitConsolidation.
func insertSuper(ctx context.Context, tx *sql.Tx, userID string, super *types.SuperMemory) error {
	if super == nil {
		return storage.ErrInvalidInput
	}
	if userID == "" {
		return fmt.Errorf("%w: user ID is required", storage.ErrInvalidInput)
	}
	if super.ID == "" {
		return fmt.Errorf("%w: super-memory ID is required", storage.ErrInvalidInput)
	}
	if super.Summary == "" {
		return fmt.Errorf("%w: super-memory summary is required", storage.ErrInvalidInput)
	}
	if len(super.SourceMemoryIDs) == 0 {
		return fmt.Errorf("%w: source memory IDs are required", storage.ErrInvalidInput)
	}

	themesJSON, err := marshalOrNil(super.Themes)
	if err != nil {
		return fmt.Errorf("sqlite: failed to marshal themes: %w", err)
	}
	topicsJSON, err := marshalOrNil(super.Topics)
	if err != nil {
		return fmt.Errorf("sqlite: failed to marshal topics: %w", err)
	}
	sourceIDsJSON, err := json.Marshal(super.SourceMemoryIDs)
	if err != nil {
		return fmt.Errorf("sqlite: failed to marshal source memory ids: %w", err)
	}

	var distributionJSON interface{}
	if len(super.Patterns.Distribution) > 0 {
		data, err := json.Marshal(super.Patterns.Distribution)
		if err != nil {
			return fmt.Errorf("sqlite: failed to marshal emotion distribution: %w", err)
		}
		distributionJSON = string(data)
	}

	if super.CreatedAt.IsZero() {
		super.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO super_memories (
			id, user_id, summary, themes, topics, dominant_emotion,
			average_intensity, distribution, source_memory_ids,
			range_start, range_end, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	if _, err := tx.ExecContext(ctx, query,
		super.ID, userID, super.Summary, themesJSON, topicsJSON,
		nullableString(super.Patterns.DominantEmotion),
		super.Patterns.AverageIntensity, distributionJSON,
		string(sourceIDsJSON), super.RangeStart, super.RangeEnd, super.CreatedAt,
	); err != nil {
		return fmt.Errorf("sqlite: failed to insert super-memory: %w", err)
	}

	return nil
}

// ListRecentSuper returns up to limit super-memories, newest first.
func (s *Store) ListRecentSuper(ctx context.Context, userID string, limit int) ([]*types.SuperMemory, error) {
	query := "SELECT " + superColumns + ` FROM super_memories
		WHERE user_id = ?
		ORDER BY created_at DESC
		LIMIT ?`

	rows, err := s.db.QueryContext(ctx, query, userID, storage.NormalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to list super-memories: %w", err)
	}
	defer rows.Close()

	return collectSupers(rows)
}

// ListSuperByTheme returns super-memories carrying the theme, newest first.
func (s *Store) ListSuperByTheme(ctx context.Context, userID, theme string, limit int) ([]*types.SuperMemory, error) {
	query := "SELECT " + superColumns + ` FROM super_memories
		WHERE user_id = ?
		  AND themes IS NOT NULL
		  AND EXISTS (SELECT 1 FROM json_each(super_memories.themes) WHERE json_each.value = ?)
		ORDER BY created_at DESC
		LIMIT ?`

	rows, err := s.db.QueryContext(ctx, query, userID, theme, storage.NormalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to list super-memories by theme: %w", err)
	}
	defer rows.Close()

	return collectSupers(rows)
}

// CountSuper returns the number of super-memories for the user.
func (s *Store) CountSuper(ctx context.Context, userID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM super_memories WHERE user_id = ?",
		userID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("sqlite: failed to count super-memories: %w", err)
	}
	return count, nil
}

func collectSupers(rows *sql.Rows) ([]*types.SuperMemory, error) {
	var memories []*types.SuperMemory
	for rows.Next() {
		sm, err := scanSuper(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: failed to scan super-memory: %w", err)
		}
		memories = append(memories, sm)
	}
	return memories, rows.Err()
}

func scanSuper(row rowScanner) (*types.SuperMemory, error) {
	var sm types.SuperMemory
	var themesJSON, topicsJSON, distributionJSON, dominantEmotion sql.NullString
	var sourceIDsJSON string

	if err := row.Scan(
		&sm.ID, &sm.Summary, &themesJSON, &topicsJSON, &dominantEmotion,
		&sm.Patterns.AverageIntensity, &distributionJSON, &sourceIDsJSON,
		&sm.RangeStart, &sm.RangeEnd, &sm.CreatedAt,
	); err != nil {
		return nil, err
	}

	if dominantEmotion.Valid {
		sm.Patterns.DominantEmotion = dominantEmotion.String
	}
	if themesJSON.Valid && themesJSON.String != "" {
		if err := json.Unmarshal([]byte(themesJSON.String), &sm.Themes); err != nil {
			return nil, fmt.Errorf("failed to unmarshal themes: %w", err)
		}
	}
	if topicsJSON.Valid && topicsJSON.String != "" {
		if err := json.Unmarshal([]byte(topicsJSON.String), &sm.Topics); err != nil {
			return nil, fmt.Errorf("failed to unmarshal topics: %w", err)
		}
	}
	if distributionJSON.Valid && distributionJSON.String != "" {
		if err := json.Unmarshal([]byte(distributionJSON.String), &sm.Patterns.Distribution); err != nil {
			return nil, fmt.Errorf("failed to unmarshal emotion distribution: %w", err)
		}
	}
	if err := json.Unmarshal([]byte(sourceIDsJSON), &sm.SourceMemoryIDs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal source memory ids: %w", err)
	}

	return &sm, nil
}
