package postgres

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
	average_intensity, emotion_distribution, source_memory_ids,
	range_start, range_end, created_at`

// AppendSuper stores a super-memory outside a consolidation commit.
// Import paths use this; normal consolidation goes through
// CommitConsolidation.
func (s *Store) AppendSuper(ctx context.Context, userID string, super *types.SuperMemory) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("postgres: failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := insertSuper(ctx, tx, userID, super); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("postgres: failed to commit super-memory: %w", err)
	}

	return nil
}

// insertSuper writes a super-memory inside an existing transaction. Shared
// with CommitConsolidation so the consolidation commit stays atomic.
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
		return fmt.Errorf("%w: super-memory needs source memory IDs", storage.ErrInvalidInput)
	}

	themesJSON, err := marshalOrNil(super.Themes)
	if err != nil {
		return fmt.Errorf("postgres: failed to marshal themes: %w", err)
	}
	topicsJSON, err := marshalOrNil(super.Topics)
	if err != nil {
		return fmt.Errorf("postgres: failed to marshal topics: %w", err)
	}
	distributionJSON, err := marshalOrNil(super.Patterns.Distribution)
	if err != nil {
		return fmt.Errorf("postgres: failed to marshal emotion distribution: %w", err)
	}
	sourceIDsJSON, err := json.Marshal(super.SourceMemoryIDs)
	if err != nil {
		return fmt.Errorf("postgres: failed to marshal source memory IDs: %w", err)
	}

	if super.CreatedAt.IsZero() {
		super.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO super_memories (
			id, user_id, summary, themes, topics, dominant_emotion,
			average_intensity, emotion_distribution, source_memory_ids,
			range_start, range_end, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	if _, err := tx.ExecContext(ctx, query,
		super.ID, userID, super.Summary, themesJSON, topicsJSON,
		nullableString(super.Patterns.DominantEmotion), super.Patterns.AverageIntensity,
		distributionJSON, string(sourceIDsJSON),
		super.RangeStart, super.RangeEnd, super.CreatedAt,
	); err != nil {
		return fmt.Errorf("postgres: failed to insert super-memory: %w", err)
	}

	return nil
}

// ListRecentSuper returns up to limit super-memories, newest first.
func (s *Store) ListRecentSuper(ctx context.Context, userID string, limit int) ([]*types.SuperMemory, error) {
	query := "SELECT " + superColumns + ` FROM super_memories
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2`

	return s.querySupers(ctx, query, userID, storage.NormalizeLimit(limit))
}

// ListSuperByTheme returns super-memories containing the theme, newest first.
func (s *Store) ListSuperByTheme(ctx context.Context, userID, theme string, limit int) ([]*types.SuperMemory, error) {
	themeJSON, err := json.Marshal([]string{theme})
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to marshal theme: %w", err)
	}

	query := "SELECT " + superColumns + ` FROM super_memories
		WHERE user_id = $1 AND themes @> $2
		ORDER BY created_at DESC
		LIMIT $3`

	return s.querySupers(ctx, query, userID, string(themeJSON), storage.NormalizeLimit(limit))
}

// CountSuper returns the number of super-memories for the user.
func (s *Store) CountSuper(ctx context.Context, userID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM super_memories WHERE user_id = $1",
		userID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("postgres: failed to count super-memories: %w", err)
	}
	return count, nil
}

func (s *Store) querySupers(ctx context.Context, query string, args ...interface{}) ([]*types.SuperMemory, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query super-memories: %w", err)
	}
	defer rows.Close()

	var supers []*types.SuperMemory
	for rows.Next() {
		sm, err := scanSuper(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: failed to scan super-memory: %w", err)
		}
		supers = append(supers, sm)
	}

	return supers, rows.Err()
}

func scanSuper(row rowScanner) (*types.SuperMemory, error) {
	var sm types.SuperMemory
	var themesJSON, topicsJSON, distributionJSON, sourceIDsJSON sql.NullString
	var dominantEmotion sql.NullString

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
	if sourceIDsJSON.Valid && sourceIDsJSON.String != "" {
		if err := json.Unmarshal([]byte(sourceIDsJSON.String), &sm.SourceMemoryIDs); err != nil {
			return nil, fmt.Errorf("failed to unmarshal source memory IDs: %w", err)
		}
	}

	return &sm, nil
}
