// Package kvstore provides the database-backed implementation of the
// relationship record store.
package kvstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"friendMeshAPI/internal/relationship"
)

// PostgresStore keeps every relationship record as one row keyed by
// (record_kind, user_id), with the member set as a jsonb array and a
// monotonically increasing revision. The conditional UPDATE on the revision
// column is the compare-and-swap primitive the concurrency controller
// relies on.
type PostgresStore struct {
	db *pgxpool.Pool
}

func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the backing table if it does not exist yet.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS relationship_records (
		record_kind TEXT NOT NULL,
		user_id     TEXT NOT NULL,
		members     JSONB NOT NULL DEFAULT '[]',
		revision    BIGINT NOT NULL DEFAULT 1,
		updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (record_kind, user_id)
	)
	`
	if _, err := s.db.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to create relationship_records table: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, kind relationship.Kind, userID string) (relationship.Record, error) {
	query := `
	SELECT members, revision
	FROM relationship_records
	WHERE record_kind = $1 AND user_id = $2
	`

	var raw []byte
	var revision int64
	err := s.db.QueryRow(ctx, query, string(kind), userID).Scan(&raw, &revision)
	if errors.Is(err, pgx.ErrNoRows) {
		return relationship.Record{}, nil
	}
	if err != nil {
		return relationship.Record{}, fmt.Errorf("failed to read record %s/%s: %w", kind, userID, err)
	}

	var members []string
	if err := json.Unmarshal(raw, &members); err != nil {
		return relationship.Record{}, fmt.Errorf("corrupt record %s/%s: %w", kind, userID, err)
	}
	return relationship.Record{Members: members, Revision: revision}, nil
}

func (s *PostgresStore) CompareAndPut(ctx context.Context, kind relationship.Kind, userID string, members []string, expected int64) error {
	if members == nil {
		members = []string{}
	}
	raw, err := json.Marshal(members)
	if err != nil {
		return fmt.Errorf("failed to encode record %s/%s: %w", kind, userID, err)
	}

	if expected == 0 {
		query := `
		INSERT INTO relationship_records (record_kind, user_id, members, revision)
		VALUES ($1, $2, $3, 1)
		ON CONFLICT (record_kind, user_id) DO NOTHING
		`
		tag, err := s.db.Exec(ctx, query, string(kind), userID, raw)
		if err != nil {
			return fmt.Errorf("failed to insert record %s/%s: %w", kind, userID, err)
		}
		if tag.RowsAffected() == 0 {
			return relationship.ErrRevisionConflict
		}
		return nil
	}

	query := `
	UPDATE relationship_records
	SET members = $3, revision = revision + 1, updated_at = NOW()
	WHERE record_kind = $1 AND user_id = $2 AND revision = $4
	`
	tag, err := s.db.Exec(ctx, query, string(kind), userID, raw, expected)
	if err != nil {
		return fmt.Errorf("failed to update record %s/%s: %w", kind, userID, err)
	}
	if tag.RowsAffected() == 0 {
		return relationship.ErrRevisionConflict
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, kind relationship.Kind, userID string) error {
	query := `DELETE FROM relationship_records WHERE record_kind = $1 AND user_id = $2`
	if _, err := s.db.Exec(ctx, query, string(kind), userID); err != nil {
		return fmt.Errorf("failed to delete record %s/%s: %w", kind, userID, err)
	}
	return nil
}
