package storage

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"backtest_go/internal/results"
)

// ReportWriter persists run results as JSON files in a directory, one file
// per run.
type ReportWriter struct {
	dir string
}

// NewReportWriter creates a report writer rooted at dir.
func NewReportWriter(dir string) *ReportWriter {
	return &ReportWriter{dir: dir}
}

// Save writes the result to disk and returns the file path.
func (w *ReportWriter) Save(res *results.Result) (string, error) {
	if err := os.MkdirAll(w.dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create report dir: %w", err)
	}

	filename := fmt.Sprintf("result_%d.json", res.GeneratedAt.UnixNano())
	path := filepath.Join(w.dir, filename)

	data, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal result: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write result: %w", err)
	}

	slog.Info("Result saved",
		slog.String("strategy", res.Meta.StrategyName),
		slog.String("path", path))
	return path, nil
}

// LoadLatest loads the most recent result from disk. Returns nil if no
// result exists yet.
func (w *ReportWriter) LoadLatest() (*results.Result, error) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read report dir: %w", err)
	}

	var latestPath string
	var latestNanos int64
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		var nanos int64
		if _, err := fmt.Sscanf(entry.Name(), "result_%d.json", &nanos); err != nil {
			continue
		}
		if nanos > latestNanos {
			latestNanos = nanos
			latestPath = filepath.Join(w.dir, entry.Name())
		}
	}
	if latestPath == "" {
		return nil, nil
	}

	data, err := os.ReadFile(latestPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read result: %w", err)
	}
	var res results.Result
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, fmt.Errorf("failed to unmarshal result: %w", err)
	}
	return &res, nil
}
