// Package store provides crash-safe report persistence using JSON files,
// plus the Postgres activity source.
//
// Each account's latest metrics are stored as a separate file:
// report_<account>.json. The resolution snapshot is cached in
// resolutions.json with its fetch time, so repeated runs within the
// configured max age skip the bulk markets download. Writes use atomic file
// replacement (write to .tmp, then rename) to prevent corruption from
// partial writes or crashes mid-save.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"polymarket-pnl/pkg/types"
)

const resolutionFile = "resolutions.json"

// Store persists reports and the resolution cache to JSON files in a
// designated directory. All operations are mutex-protected to prevent
// concurrent file corruption.
type Store struct {
	dir string
	mu  sync.Mutex // serializes all file operations
}

// Open creates a store backed by the given directory.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Close is a no-op for file-based storage.
func (s *Store) Close() error {
	return nil
}

// SaveReport atomically persists the latest metrics for an account,
// replacing any previous report.
func (s *Store) SaveReport(m types.AccountMetrics) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	return s.writeAtomic(reportFile(m.Account), data)
}

// LoadReport restores the latest report for an account from disk.
// Returns nil, nil if no saved report exists.
func (s *Store) LoadReport(account string) (*types.AccountMetrics, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(filepath.Join(s.dir, reportFile(account)))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read report: %w", err)
	}

	var m types.AccountMetrics
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("unmarshal report: %w", err)
	}
	return &m, nil
}

// ListReports loads every persisted report, in directory order.
func (s *Store) ListReports() ([]types.AccountMetrics, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read store dir: %w", err)
	}

	var out []types.AccountMetrics
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasPrefix(name, "report_") || !strings.HasSuffix(name, ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.dir, name))
		if err != nil {
			return nil, fmt.Errorf("read report %s: %w", name, err)
		}
		var m types.AccountMetrics
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("unmarshal report %s: %w", name, err)
		}
		out = append(out, m)
	}
	return out, nil
}

// resolutionCache is the on-disk shape of the resolution snapshot.
type resolutionCache struct {
	SavedAt time.Time            `json:"saved_at"`
	Payouts map[string][]float64 `json:"payouts"`
}

// SaveResolutions atomically persists the parsed resolution snapshot with
// the current time.
func (s *Store) SaveResolutions(payouts map[string][]float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(resolutionCache{SavedAt: time.Now().UTC(), Payouts: payouts})
	if err != nil {
		return fmt.Errorf("marshal resolutions: %w", err)
	}
	return s.writeAtomic(resolutionFile, data)
}

// LoadResolutions restores a cached resolution snapshot no older than
// maxAge. Returns nil, nil when there is no usable cache (missing, stale,
// or corrupt); a corrupt cache is discarded rather than surfaced, since the
// caller can always refetch.
func (s *Store) LoadResolutions(maxAge time.Duration) (map[string][]float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(filepath.Join(s.dir, resolutionFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read resolutions: %w", err)
	}

	var cache resolutionCache
	if err := json.Unmarshal(data, &cache); err != nil {
		return nil, nil
	}
	if time.Since(cache.SavedAt) > maxAge {
		return nil, nil
	}
	return cache.Payouts, nil
}

// writeAtomic writes to a .tmp file first, then renames over the target so
// the file is never left in a partial state (crash-safe). Callers hold the
// mutex.
func (s *Store) writeAtomic(name string, data []byte) error {
	path := filepath.Join(s.dir, name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return os.Rename(tmp, path)
}

func reportFile(account string) string {
	return "report_" + strings.ToLower(account) + ".json"
}
