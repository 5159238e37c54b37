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

// SetFact upserts a fact, replacing value, source, and updated_at on
// conflict while preserving created_at.
func (s *Store) SetFact(ctx context.Context, userID string, fact *types.PersistentFact) (*types.PersistentFact, error) {
	if fact == nil {
		return nil, storage.ErrInvalidInput
	}
	if userID == "" {
		return nil, fmt.Errorf("%w: user ID is required", storage.ErrInvalidInput)
	}
	if !fact.Category.IsValid() {
		return nil, fmt.Errorf("%w: unknown fact category %q", storage.ErrInvalidInput, fact.Category)
	}
	if fact.Key == "" {
		return nil, fmt.Errorf("%w: fact key is required", storage.ErrInvalidInput)
	}

	valueJSON, err := json.Marshal(fact.Value)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to marshal fact value: %w", err)
	}

	now := time.Now().UTC()
	if fact.UpdatedAt.IsZero() {
		fact.UpdatedAt = now
	}
	if fact.CreatedAt.IsZero() {
		fact.CreatedAt = fact.UpdatedAt
	}

	query := `
		INSERT INTO facts (user_id, category, key, value, source, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id, category, key) DO UPDATE SET
			value = EXCLUDED.value,
			source = EXCLUDED.source,
			updated_at = EXCLUDED.updated_at
	`

	if _, err := s.db.ExecContext(ctx, query,
		userID, string(fact.Category), fact.Key, string(valueJSON),
		string(fact.Source), fact.CreatedAt, fact.UpdatedAt,
	); err != nil {
		return nil, fmt.Errorf("postgres: failed to set fact: %w", err)
	}

	return s.GetFact(ctx, userID, fact.Category, fact.Key)
}

// GetFact retrieves a fact by category and key.
func (s *Store) GetFact(ctx context.Context, userID string, category types.FactCategory, key string) (*types.PersistentFact, error) {
	if userID == "" || key == "" {
		return nil, fmt.Errorf("%w: user ID and key are required", storage.ErrInvalidInput)
	}

	query := `
		SELECT category, key, value, source, created_at, updated_at
		FROM facts
		WHERE user_id = $1 AND category = $2 AND key = $3
	`

	fact, err := scanFact(s.db.QueryRowContext(ctx, query, userID, string(category), key))
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to get fact: %w", err)
	}

	return fact, nil
}

// ListFacts returns all facts for a user, optionally filtered by category.
func (s *Store) ListFacts(ctx context.Context, userID string, category types.FactCategory) ([]*types.PersistentFact, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user ID is required", storage.ErrInvalidInput)
	}

	query := `
		SELECT category, key, value, source, created_at, updated_at
		FROM facts
		WHERE user_id = $1
	`
	args := []interface{}{userID}

	if category != "" {
		query += " AND category = $2"
		args = append(args, string(category))
	}
	query += " ORDER BY category, key"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to list facts: %w", err)
	}
	defer rows.Close()

	var facts []*types.PersistentFact
	for rows.Next() {
		fact, err := scanFact(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: failed to scan fact: %w", err)
		}
		facts = append(facts, fact)
	}

	return facts, rows.Err()
}

// DeleteFact removes a fact (explicit user request only).
func (s *Store) DeleteFact(ctx context.Context, userID string, category types.FactCategory, key string) error {
	result, err := s.db.ExecContext(ctx,
		"DELETE FROM facts WHERE user_id = $1 AND category = $2 AND key = $3",
		userID, string(category), key,
	)
	if err != nil {
		return fmt.Errorf("postgres: failed to delete fact: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("postgres: failed to get rows affected: %w", err)
	}
	if n == 0 {
		return storage.ErrNotFound
	}

	return nil
}

// CountFacts returns the total fact count and a per-category breakdown.
func (s *Store) CountFacts(ctx context.Context, userID string) (types.FactStats, error) {
	stats := types.FactStats{ByCategory: make(map[types.FactCategory]int)}

	rows, err := s.db.QueryContext(ctx,
		"SELECT category, COUNT(*) FROM facts WHERE user_id = $1 GROUP BY category",
		userID,
	)
	if err != nil {
		return stats, fmt.Errorf("postgres: failed to count facts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var category string
		var count int
		if err := rows.Scan(&category, &count); err != nil {
			return stats, fmt.Errorf("postgres: failed to scan fact count: %w", err)
		}
		stats.ByCategory[types.FactCategory(category)] = count
		stats.Total += count
	}

	return stats, rows.Err()
}

func scanFact(row rowScanner) (*types.PersistentFact, error) {
	var fact types.PersistentFact
	var category, source, valueJSON string

	if err := row.Scan(&category, &fact.Key, &valueJSON, &source, &fact.CreatedAt, &fact.UpdatedAt); err != nil {
		return nil, err
	}

	fact.Category = types.FactCategory(category)
	fact.Source = types.FactSource(source)

	if err := json.Unmarshal([]byte(valueJSON), &fact.Value); err != nil {
		return nil, fmt.Errorf("failed to unmarshal fact value: %w", err)
	}

	return &fact, nil
}
