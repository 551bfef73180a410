package checkpoint

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"reportjudge/internal/domain"
)

// SQLiteStore keeps processed ids in one table and the progress counters in a single-row table.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

func OpenSQLite(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create checkpoint dir: %w", err)
	}
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, err
	}
	// One writer keeps marks serialized.
	db.SetMaxOpenConns(1)

	schema := `
	CREATE TABLE IF NOT EXISTS processed_reports (
		report_id    TEXT PRIMARY KEY,
		item_index   INTEGER NOT NULL,
		processed_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS checkpoint_progress (
		id            INTEGER PRIMARY KEY CHECK (id = 1),
		current_index INTEGER NOT NULL DEFAULT 0,
		total_files   INTEGER NOT NULL DEFAULT 0,
		updated_at    DATETIME
	);
	`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init checkpoint schema: %w", err)
	}
	return &SQLiteStore{db: db, now: time.Now}, nil
}

func (s *SQLiteStore) Has(ctx context.Context, id string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM processed_reports WHERE report_id = ?`, id).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *SQLiteStore) MarkProcessed(ctx context.Context, id string, index, total int) error {
	now := s.now().UTC()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO processed_reports (report_id, item_index, processed_at) VALUES (?, ?, ?)
		 ON CONFLICT(report_id) DO UPDATE SET item_index = excluded.item_index, processed_at = excluded.processed_at`,
		id, index, now,
	); err != nil {
		return fmt.Errorf("mark %s processed: %w", id, err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO checkpoint_progress (id, current_index, total_files, updated_at) VALUES (1, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET current_index = excluded.current_index, total_files = excluded.total_files, updated_at = excluded.updated_at`,
		index, total, now,
	); err != nil {
		return fmt.Errorf("update checkpoint progress: %w", err)
	}
	return tx.Commit()
}

func (s *SQLiteStore) Snapshot(ctx context.Context) (domain.Checkpoint, error) {
	cp := domain.Checkpoint{ProcessedIDs: []string{}}

	var updated sql.NullTime
	err := s.db.QueryRowContext(ctx, `SELECT current_index, total_files, updated_at FROM checkpoint_progress WHERE id = 1`).
		Scan(&cp.CurrentIndex, &cp.TotalFiles, &updated)
	if err != nil && err != sql.ErrNoRows {
		return cp, err
	}
	if updated.Valid {
		cp.UpdatedAt = updated.Time.UTC()
	}

	rows, err := s.db.QueryContext(ctx, `SELECT report_id FROM processed_reports ORDER BY processed_at, item_index`)
	if err != nil {
		return cp, err
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return cp, err
		}
		cp.ProcessedIDs = append(cp.ProcessedIDs, id)
	}
	return cp, rows.Err()
}

func (s *SQLiteStore) Clear(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.ExecContext(ctx, `DELETE FROM processed_reports`); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM checkpoint_progress`); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
