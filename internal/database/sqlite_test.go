package database

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rickgao/position-monitor/internal/config"
	"github.com/rickgao/position-monitor/internal/model"
)

func position(id, instrument string, marketValue, pnlDtd float64) model.Record {
	return model.Record{
		ID: id,
		Numbers: map[string]float64{
			model.FieldMarketValue: marketValue,
			model.FieldExposure:    marketValue,
			model.FieldExpWeight:   4.83,
			model.FieldPnlDtd:      pnlDtd,
			model.FieldPnlMtd:      -34567.89,
			model.FieldPnlYtd:      -45678.90,
		},
		Labels: map[string]string{
			model.FieldInstrument: instrument,
			model.FieldEntity:     "Growth Ventures Inc",
			model.FieldRowID:      "POS-" + id,
			model.FieldPortfolio:  "EV Innovation",
		},
	}
}

func openMemory(t *testing.T) *SQLiteSource {
	t.Helper()
	s, err := NewSQLiteSource(context.Background(), ":memory:", "positions")
	if err != nil {
		t.Fatalf("NewSQLiteSource failed: %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

func TestSQLiteSource_SaveAndLoad(t *testing.T) {
	ctx := context.Background()
	s := openMemory(t)

	want := []model.Record{
		position("2", "MSFT US Equity", 1876234.12, -8432.55),
		position("1", "AAPL US Equity", 2547832.45, 15234.67),
	}
	if err := s.SavePositions(ctx, want); err != nil {
		t.Fatalf("SavePositions failed: %v", err)
	}

	got, err := s.LoadPositions(ctx)
	if err != nil {
		t.Fatalf("LoadPositions failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}

	// Ordered by id.
	if got[0].ID != "1" || got[1].ID != "2" {
		t.Errorf("ids = %s,%s, want 1,2", got[0].ID, got[1].ID)
	}
	if v := got[0].Numbers[model.FieldMarketValue]; v != 2547832.45 {
		t.Errorf("marketValue = %v, want 2547832.45", v)
	}
	if v := got[1].Numbers[model.FieldPnlDtd]; v != -8432.55 {
		t.Errorf("pnlDtd = %v, want -8432.55", v)
	}
	if v := got[1].Labels[model.FieldInstrument]; v != "MSFT US Equity" {
		t.Errorf("instrument = %q, want MSFT US Equity", v)
	}
	if len(got[0].Numbers) != 6 || len(got[0].Labels) != 4 {
		t.Errorf("record shape = %d numbers, %d labels, want 6, 4", len(got[0].Numbers), len(got[0].Labels))
	}
}

func TestSQLiteSource_SaveUpserts(t *testing.T) {
	ctx := context.Background()
	s := openMemory(t)

	if err := s.SavePositions(ctx, []model.Record{position("1", "AAPL US Equity", 100, 0)}); err != nil {
		t.Fatalf("SavePositions failed: %v", err)
	}
	if err := s.SavePositions(ctx, []model.Record{position("1", "AAPL US Equity", 105, 0)}); err != nil {
		t.Fatalf("SavePositions failed: %v", err)
	}

	got, err := s.LoadPositions(ctx)
	if err != nil {
		t.Fatalf("LoadPositions failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("len = %d, want 1", len(got))
	}
	if v := got[0].Numbers[model.FieldMarketValue]; v != 105 {
		t.Errorf("marketValue = %v, want 105", v)
	}
}

func TestSQLiteSource_MissingTable(t *testing.T) {
	s := openMemory(t)

	_, err := s.LoadPositions(context.Background())
	if err == nil {
		t.Fatal("expected error for missing table")
	}
	if !strings.Contains(err.Error(), "query positions") {
		t.Errorf("error should be wrapped, got %v", err)
	}
}

func TestOpen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "seed.db")

	seed, err := NewSQLiteSource(ctx, path, "book")
	if err != nil {
		t.Fatalf("NewSQLiteSource failed: %v", err)
	}
	if err := seed.SavePositions(ctx, []model.Record{position("4", "TSLA US Equity", 987654.32, -15678.90)}); err != nil {
		t.Fatalf("SavePositions failed: %v", err)
	}
	seed.Close()

	loader, err := Open(ctx, config.DatabaseConfig{
		Driver: config.DriverSQLite,
		Table:  "book",
		SQLite: config.SQLiteConfig{Path: path},
	})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer loader.Close()

	got, err := loader.LoadPositions(ctx)
	if err != nil {
		t.Fatalf("LoadPositions failed: %v", err)
	}
	if len(got) != 1 || got[0].ID != "4" {
		t.Errorf("got %+v, want one record with id 4", got)
	}

	if _, err := Open(ctx, config.DatabaseConfig{Driver: "mysql"}); err == nil {
		t.Error("expected error for unsupported driver")
	}
}
