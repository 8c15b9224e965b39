package database

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/rickgao/position-monitor/internal/model"
)

// SQLiteSource loads positions from an embedded SQLite database.
type SQLiteSource struct {
	db    *sql.DB
	table string
}

// NewSQLiteSource opens (or creates) the SQLite database at path. Use
// ":memory:" for a private in-memory database.
func NewSQLiteSource(ctx context.Context, path, table string) (*SQLiteSource, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// An in-memory database lives only as long as its connection.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &SQLiteSource{db: db, table: table}, nil
}

// LoadPositions reads every row of the positions table.
func (s *SQLiteSource) LoadPositions(ctx context.Context) ([]model.Record, error) {
	rows, err := s.db.QueryContext(ctx, selectPositionsSQL(s.table))
	if err != nil {
		return nil, fmt.Errorf("query positions: %w", err)
	}
	defer rows.Close()

	var out []model.Record
	for rows.Next() {
		rec, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate positions: %w", err)
	}
	return out, nil
}

// SavePositions creates the table if needed and upserts records.
func (s *SQLiteSource) SavePositions(ctx context.Context, records []model.Record) error {
	if _, err := s.db.ExecContext(ctx, createPositionsSQL(s.table)); err != nil {
		return fmt.Errorf("create table: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, upsertPositionSQL(s.table, false))
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		if _, err := stmt.ExecContext(ctx, positionArgs(r)...); err != nil {
			return fmt.Errorf("upsert position %s: %w", r.ID, err)
		}
	}
	return tx.Commit()
}

// Close closes the database.
func (s *SQLiteSource) Close() {
	if s.db != nil {
		s.db.Close()
	}
}
