package database

import (
	"context"
	"fmt"

	"github.com/rickgao/position-monitor/internal/config"
	"github.com/rickgao/position-monitor/internal/model"
)

// Loader reads the initial position snapshot.
type Loader interface {
	LoadPositions(ctx context.Context) ([]model.Record, error)
	Close()
}

// Store is a Loader that can also write positions back.
type Store interface {
	Loader
	SavePositions(ctx context.Context, records []model.Record) error
}

var (
	_ Store = (*PGSource)(nil)
	_ Store = (*SQLiteSource)(nil)
)

// Open returns the loader for the configured driver. The driver must not
// be empty; callers seed demo data in that case.
func Open(ctx context.Context, cfg config.DatabaseConfig) (Store, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		return NewPGSource(ctx, cfg.Postgres, cfg.Table)
	case config.DriverSQLite:
		return NewSQLiteSource(ctx, cfg.SQLite.Path, cfg.Table)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

func selectPositionsSQL(table string) string {
	return `SELECT id, instrument, entity, row_id, portfolio,
		market_value, exposure, exp_weight, pnl_dtd, pnl_mtd, pnl_ytd
		FROM ` + table + ` ORDER BY id`
}

func createPositionsSQL(table string) string {
	return `CREATE TABLE IF NOT EXISTS ` + table + ` (
		id           TEXT PRIMARY KEY,
		instrument   TEXT NOT NULL,
		entity       TEXT NOT NULL,
		row_id       TEXT NOT NULL,
		portfolio    TEXT NOT NULL,
		market_value DOUBLE PRECISION NOT NULL,
		exposure     DOUBLE PRECISION NOT NULL,
		exp_weight   DOUBLE PRECISION NOT NULL,
		pnl_dtd      DOUBLE PRECISION NOT NULL,
		pnl_mtd      DOUBLE PRECISION NOT NULL,
		pnl_ytd      DOUBLE PRECISION NOT NULL
	)`
}

// upsertPositionSQL builds the upsert statement. numbered selects
// PostgreSQL $N placeholders over SQLite's ?.
func upsertPositionSQL(table string, numbered bool) string {
	values := "?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?"
	if numbered {
		values = "$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11"
	}
	return `INSERT INTO ` + table + ` (id, instrument, entity, row_id, portfolio,
		market_value, exposure, exp_weight, pnl_dtd, pnl_mtd, pnl_ytd)
		VALUES (` + values + `)
		ON CONFLICT (id) DO UPDATE SET
			instrument = excluded.instrument,
			entity = excluded.entity,
			row_id = excluded.row_id,
			portfolio = excluded.portfolio,
			market_value = excluded.market_value,
			exposure = excluded.exposure,
			exp_weight = excluded.exp_weight,
			pnl_dtd = excluded.pnl_dtd,
			pnl_mtd = excluded.pnl_mtd,
			pnl_ytd = excluded.pnl_ytd`
}

// rowScanner is satisfied by pgx.Rows and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

type positionRow struct {
	id, instrument, entity, rowID, portfolio string
	marketValue, exposure, expWeight         float64
	pnlDtd, pnlMtd, pnlYtd                   float64
}

func scanPosition(rows rowScanner) (model.Record, error) {
	var p positionRow
	err := rows.Scan(
		&p.id, &p.instrument, &p.entity, &p.rowID, &p.portfolio,
		&p.marketValue, &p.exposure, &p.expWeight,
		&p.pnlDtd, &p.pnlMtd, &p.pnlYtd,
	)
	if err != nil {
		return model.Record{}, fmt.Errorf("scan position: %w", err)
	}
	return p.record(), nil
}

func (p positionRow) record() model.Record {
	return model.Record{
		ID: p.id,
		Numbers: map[string]float64{
			model.FieldMarketValue: p.marketValue,
			model.FieldExposure:    p.exposure,
			model.FieldExpWeight:   p.expWeight,
			model.FieldPnlDtd:      p.pnlDtd,
			model.FieldPnlMtd:      p.pnlMtd,
			model.FieldPnlYtd:      p.pnlYtd,
		},
		Labels: map[string]string{
			model.FieldInstrument: p.instrument,
			model.FieldEntity:     p.entity,
			model.FieldRowID:      p.rowID,
			model.FieldPortfolio:  p.portfolio,
		},
	}
}

func positionArgs(r model.Record) []any {
	return []any{
		r.ID,
		r.Labels[model.FieldInstrument],
		r.Labels[model.FieldEntity],
		r.Labels[model.FieldRowID],
		r.Labels[model.FieldPortfolio],
		r.Numbers[model.FieldMarketValue],
		r.Numbers[model.FieldExposure],
		r.Numbers[model.FieldExpWeight],
		r.Numbers[model.FieldPnlDtd],
		r.Numbers[model.FieldPnlMtd],
		r.Numbers[model.FieldPnlYtd],
	}
}
