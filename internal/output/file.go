package output

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"farmsat/internal/types"
)

// DatedPath returns {dir}/output_{YYYY-MM-DD}.csv.
func DatedPath(dir string, runDate time.Time) string {
	return filepath.Join(dir, "output_"+runDate.Format(DateLayout)+".csv")
}

// WriteFile writes the table to path, creating the parent directory if it
// does not exist. The file is written to a temporary name and renamed into
// place, so a failed run never leaves a truncated table behind.
func WriteFile(path string, table *TableWriter, records []types.EnrichedRecord) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating output directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".output-*.csv")
	if err != nil {
		return fmt.Errorf("creating output file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := table.Write(tmp, records); err != nil {
		tmp.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("moving output into place: %w", err)
	}
	return nil
}
