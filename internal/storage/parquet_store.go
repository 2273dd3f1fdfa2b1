package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/parquet-go/parquet-go"

	"backtest_go/internal/domain"
	"backtest_go/pkg/quant"
)

var _ domain.CandleSource = (*ParquetStore)(nil)

// ParquetStore keeps candles in Parquet files on disk, one file per symbol
// and year:
//
//	<DataDir>/candles/<SYMBOL>/<YYYY>.parquet
//
// Writes merge with the existing file and deduplicate by (interval, ts), so
// re-ingesting overlapping ranges is safe.
type ParquetStore struct {
	DataDir string
}

// NewParquetStore creates a ParquetStore rooted at dataDir.
func NewParquetStore(dataDir string) *ParquetStore {
	return &ParquetStore{DataDir: dataDir}
}

// CandleRecord is the on-disk Parquet schema. Prices stay int64 micros so a
// round trip through the file is lossless.
type CandleRecord struct {
	Symbol   string `parquet:"symbol"`
	Interval string `parquet:"interval"`
	Ts       int64  `parquet:"ts,timestamp(microsecond)"`
	Open     int64  `parquet:"open"`
	High     int64  `parquet:"high"`
	Low      int64  `parquet:"low"`
	Close    int64  `parquet:"close"`
	Volume   int64  `parquet:"volume"`
}

// WriteCandles writes candles grouped by symbol and year, merging with any
// existing file contents.
func (s *ParquetStore) WriteCandles(_ context.Context, candles []domain.Candle) error {
	if len(candles) == 0 {
		return nil
	}

	type key struct {
		symbol string
		year   int
	}
	groups := make(map[key][]CandleRecord)
	for _, c := range candles {
		k := key{symbol: c.Symbol, year: c.Ts.Time().UTC().Year()}
		groups[k] = append(groups[k], CandleRecord{
			Symbol:   c.Symbol,
			Interval: c.Interval,
			Ts:       int64(c.Ts),
			Open:     int64(c.OpenMicros),
			High:     int64(c.HighMicros),
			Low:      int64(c.LowMicros),
			Close:    int64(c.CloseMicros),
			Volume:   int64(c.VolumeSats),
		})
	}

	for k, records := range groups {
		path := s.candlePath(k.symbol, k.year)

		existing, _ := readParquetFile[CandleRecord](path)
		merged := mergeCandleRecords(existing, records)

		if err := writeParquetFile(path, merged); err != nil {
			return fmt.Errorf("writing candles for %s/%d: %w", k.symbol, k.year, err)
		}
	}
	return nil
}

// QueryCandles reads candles for [start, end] across the year files the
// window spans. Missing year files are skipped.
func (s *ParquetStore) QueryCandles(_ context.Context, symbol, interval string, start, end quant.TimeStamp) ([]domain.Candle, error) {
	var candles []domain.Candle
	for year := start.Time().UTC().Year(); year <= end.Time().UTC().Year(); year++ {
		records, err := readParquetFile[CandleRecord](s.candlePath(symbol, year))
		if err != nil {
			continue
		}
		for _, r := range records {
			ts := quant.TimeStamp(r.Ts)
			if r.Interval == interval && ts >= start && ts <= end {
				candles = append(candles, recordToCandle(r))
			}
		}
	}
	sort.Slice(candles, func(i, j int) bool { return candles[i].Ts < candles[j].Ts })
	return candles, nil
}

// LatestCandle scans the symbol's year files newest-first and returns the
// most recent candle, or nil when none exists.
func (s *ParquetStore) LatestCandle(_ context.Context, symbol, interval string) (*domain.Candle, error) {
	dir := filepath.Join(s.DataDir, "candles", strings.ToUpper(symbol))
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".parquet") {
			names = append(names, e.Name())
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(names)))

	for _, name := range names {
		records, err := readParquetFile[CandleRecord](filepath.Join(dir, name))
		if err != nil {
			continue
		}
		var latest *CandleRecord
		for i := range records {
			r := &records[i]
			if r.Interval == interval && (latest == nil || r.Ts > latest.Ts) {
				latest = r
			}
		}
		if latest != nil {
			c := recordToCandle(*latest)
			return &c, nil
		}
	}
	return nil, nil
}

func (s *ParquetStore) candlePath(symbol string, year int) string {
	return filepath.Join(s.DataDir, "candles", strings.ToUpper(symbol), fmt.Sprintf("%d.parquet", year))
}

func recordToCandle(r CandleRecord) domain.Candle {
	return domain.Candle{
		Symbol:      r.Symbol,
		Interval:    r.Interval,
		Ts:          quant.TimeStamp(r.Ts),
		OpenMicros:  quant.PriceMicros(r.Open),
		HighMicros:  quant.PriceMicros(r.High),
		LowMicros:   quant.PriceMicros(r.Low),
		CloseMicros: quant.PriceMicros(r.Close),
		VolumeSats:  quant.QtySats(r.Volume),
	}
}

func writeParquetFile[T any](path string, records []T) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return parquet.WriteFile(path, records)
}

func readParquetFile[T any](path string) ([]T, error) {
	return parquet.ReadFile[T](path)
}

// mergeCandleRecords deduplicates by (interval, ts), preferring incoming
// records over existing ones. Results are sorted by timestamp.
func mergeCandleRecords(existing, incoming []CandleRecord) []CandleRecord {
	type key struct {
		interval string
		ts       int64
	}
	seen := make(map[key]CandleRecord, len(existing)+len(incoming))
	for _, r := range existing {
		seen[key{r.Interval, r.Ts}] = r
	}
	for _, r := range incoming {
		seen[key{r.Interval, r.Ts}] = r
	}

	merged := make([]CandleRecord, 0, len(seen))
	for _, r := range seen {
		merged = append(merged, r)
	}
	sort.Slice(merged, func(i, j int) bool {
		return merged[i].Ts < merged[j].Ts
	})
	return merged
}
