package subscriber

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// SQLiteStore keeps subscribers in the subscribers table.
// The schema is created by the embedded migrations.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a store over an open, migrated database.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// Load returns chat ids ordered by registration position.
func (s *SQLiteStore) Load(ctx context.Context) ([]ID, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT chat_id FROM subscribers ORDER BY position")
	if err != nil {
		return nil, fmt.Errorf("querying subscribers: %w", err)
	}
	defer rows.Close()

	ids := []ID{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning subscriber: %w", err)
		}
		ids = append(ids, ID(id))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating subscribers: %w", err)
	}
	return ids, nil
}

// Save rewrites the table in one transaction.
// Existing rows keep their original created_at.
func (s *SQLiteStore) Save(ctx context.Context, ids []ID) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	created := make(map[int64]string)
	rows, err := tx.QueryContext(ctx, "SELECT chat_id, created_at FROM subscribers")
	if err != nil {
		return fmt.Errorf("querying subscribers: %w", err)
	}
	for rows.Next() {
		var id int64
		var at string
		if err := rows.Scan(&id, &at); err != nil {
			rows.Close() //nolint:errcheck,gosec // already failing
			return fmt.Errorf("scanning subscriber: %w", err)
		}
		created[id] = at
	}
	if err := rows.Close(); err != nil {
		return fmt.Errorf("closing rows: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM subscribers"); err != nil {
		return fmt.Errorf("clearing subscribers: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		"INSERT INTO subscribers (position, chat_id, created_at) VALUES (?, ?, ?)")
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC().Format(time.RFC3339)
	for pos, id := range ids {
		at, ok := created[int64(id)]
		if !ok {
			at = now
		}
		if _, err := stmt.ExecContext(ctx, pos, int64(id), at); err != nil {
			return fmt.Errorf("inserting subscriber %d: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing subscribers: %w", err)
	}
	return nil
}
