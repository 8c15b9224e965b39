package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rickgao/position-monitor/internal/config"
	"github.com/rickgao/position-monitor/internal/model"
)

// PGSource loads positions from PostgreSQL.
type PGSource struct {
	pool  *pgxpool.Pool
	table string
}

// NewPGSource connects to PostgreSQL.
func NewPGSource(ctx context.Context, cfg config.DBConfig, table string) (*PGSource, error) {
	pool, err := Connect(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &PGSource{pool: pool, table: table}, nil
}

// LoadPositions reads every row of the positions table.
func (s *PGSource) LoadPositions(ctx context.Context) ([]model.Record, error) {
	rows, err := s.pool.Query(ctx, selectPositionsSQL(s.table))
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
func (s *PGSource) SavePositions(ctx context.Context, records []model.Record) error {
	if _, err := s.pool.Exec(ctx, createPositionsSQL(s.table)); err != nil {
		return fmt.Errorf("create table: %w", err)
	}

	if len(records) == 0 {
		return nil
	}

	query := upsertPositionSQL(s.table, true)
	batch := &pgx.Batch{}
	for _, r := range records {
		batch.Queue(query, positionArgs(r)...)
	}

	// A batch outside a transaction runs as one implicit transaction.
	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()

	for _, r := range records {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("upsert position %s: %w", r.ID, err)
		}
	}
	return nil
}

// Ping verifies the connection is healthy.
func (s *PGSource) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

// Close closes the connection pool.
func (s *PGSource) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}
