// Package storage provides the historical data sources (SQLite and Parquet
// candle stores) and the report sink for run results.
package storage

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/glebarez/go-sqlite"

	"backtest_go/internal/domain"
	"backtest_go/pkg/quant"
)

var _ domain.CandleSource = (*CandleStore)(nil)

// CandleStore persists candles in SQLite, keyed (symbol, interval, ts).
type CandleStore struct {
	db *sql.DB
}

// NewCandleStore opens (creating if needed) a SQLite candle database with
// WAL mode enabled.
func NewCandleStore(dbPath string) (*CandleStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA cache_size=-2000;", // 2MB cache
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return nil, fmt.Errorf("failed to set pragma %s: %w", pragma, err)
		}
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS candles (
			symbol   TEXT NOT NULL,
			interval TEXT NOT NULL,
			ts       INTEGER NOT NULL,
			open     INTEGER NOT NULL,
			high     INTEGER NOT NULL,
			low      INTEGER NOT NULL,
			close    INTEGER NOT NULL,
			volume   INTEGER NOT NULL,
			PRIMARY KEY (symbol, interval, ts)
		);
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to create candles table: %w", err)
	}

	return &CandleStore{db: db}, nil
}

// SaveCandles upserts a batch of candles in one transaction. Re-saving the
// same (symbol, interval, ts) overwrites the previous row.
func (s *CandleStore) SaveCandles(ctx context.Context, candles []domain.Candle) error {
	if len(candles) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO candles (symbol, interval, ts, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(symbol, interval, ts) DO UPDATE SET
			open=excluded.open, high=excluded.high, low=excluded.low,
			close=excluded.close, volume=excluded.volume`)
	if err != nil {
		return fmt.Errorf("failed to prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, c := range candles {
		if _, err := stmt.ExecContext(ctx,
			c.Symbol, c.Interval, int64(c.Ts),
			int64(c.OpenMicros), int64(c.HighMicros), int64(c.LowMicros),
			int64(c.CloseMicros), int64(c.VolumeSats),
		); err != nil {
			return fmt.Errorf("failed to upsert candle %s@%d: %w", c.Symbol, c.Ts, err)
		}
	}
	return tx.Commit()
}

// QueryCandles returns candles for [start, end], ordered by timestamp.
func (s *CandleStore) QueryCandles(ctx context.Context, symbol, interval string, start, end quant.TimeStamp) ([]domain.Candle, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT symbol, interval, ts, open, high, low, close, volume
		FROM candles
		WHERE symbol = ? AND interval = ? AND ts BETWEEN ? AND ?
		ORDER BY ts ASC`,
		symbol, interval, int64(start), int64(end))
	if err != nil {
		return nil, fmt.Errorf("failed to query candles: %w", err)
	}
	defer rows.Close()

	var candles []domain.Candle
	for rows.Next() {
		c, err := scanCandle(rows)
		if err != nil {
			return nil, err
		}
		candles = append(candles, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return candles, nil
}

// LatestCandle returns the most recent candle, or nil when none exists.
func (s *CandleStore) LatestCandle(ctx context.Context, symbol, interval string) (*domain.Candle, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT symbol, interval, ts, open, high, low, close, volume
		FROM candles
		WHERE symbol = ? AND interval = ?
		ORDER BY ts DESC LIMIT 1`,
		symbol, interval)
	if err != nil {
		return nil, fmt.Errorf("failed to query latest candle: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	c, err := scanCandle(rows)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func scanCandle(rows *sql.Rows) (domain.Candle, error) {
	var (
		c                    domain.Candle
		ts, o, h, l, cl, vol int64
	)
	if err := rows.Scan(&c.Symbol, &c.Interval, &ts, &o, &h, &l, &cl, &vol); err != nil {
		return domain.Candle{}, fmt.Errorf("failed to scan candle: %w", err)
	}
	c.Ts = quant.TimeStamp(ts)
	c.OpenMicros = quant.PriceMicros(o)
	c.HighMicros = quant.PriceMicros(h)
	c.LowMicros = quant.PriceMicros(l)
	c.CloseMicros = quant.PriceMicros(cl)
	c.VolumeSats = quant.QtySats(vol)
	return c, nil
}

// Close closes the database connection.
func (s *CandleStore) Close() error {
	return s.db.Close()
}
