package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/jaisveenkaur/insiteforge/internal/metrics"
)

// FileStore persists one record per identity as JSON files under a
// directory. Writes go to a temp file first and are renamed into
// place, so concurrent readers never observe a partial record.
type FileStore struct {
	dir      string
	themeCap int
	logger   *zap.Logger
	mu       sync.Mutex
}

// NewFileStore creates the backing directory if needed.
func NewFileStore(path string, themeCap int, logger *zap.Logger) (*FileStore, error) {
	// A file path is accepted for compatibility; its directory is used
	// and the base name becomes the default identity's record.
	dir := path
	if filepath.Ext(path) != "" {
		dir = filepath.Dir(path)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create memory dir: %w", err)
	}
	return &FileStore{dir: dir, themeCap: themeCap, logger: logger}, nil
}

func (s *FileStore) recordPath(key string) string {
	if key == "" {
		key = "default"
	}
	return filepath.Join(s.dir, "domain_memory_"+sanitizeKey(key)+".json")
}

func sanitizeKey(key string) string {
	out := make([]rune, 0, len(key))
	for _, r := range key {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			out = append(out, r)
		default:
			out = append(out, '_')
		}
	}
	return string(out)
}

// Load reads the persisted record, or returns an empty one when the
// file is missing or unreadable.
func (s *FileStore) Load(ctx context.Context, key string) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.recordPath(key))
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("memory record unreadable, starting empty",
				zap.String("path", s.recordPath(key)), zap.Error(err))
			metrics.MemoryLoadFailures.Inc()
		}
		return Empty(), nil
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		s.logger.Warn("memory record corrupt, starting empty",
			zap.String("path", s.recordPath(key)), zap.Error(err))
		metrics.MemoryLoadFailures.Inc()
		return Empty(), nil
	}
	return &rec, nil
}

// Update merges the run summary under the store mutex and atomically
// replaces the record file.
func (s *FileStore) Update(ctx context.Context, key string, summary RunSummary) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.Load(ctx, key)
	if err != nil {
		return nil, err
	}
	updated := merge(rec, summary, s.themeCap)

	data, err := json.MarshalIndent(updated, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal memory record: %w", err)
	}

	path := s.recordPath(key)
	tmp, err := os.CreateTemp(s.dir, ".memory-*.json")
	if err != nil {
		return nil, fmt.Errorf("create temp memory file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return nil, fmt.Errorf("write memory record: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return nil, fmt.Errorf("close memory record: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return nil, fmt.Errorf("replace memory record: %w", err)
	}

	s.logger.Info("domain memory updated",
		zap.String("key", key),
		zap.Int("kpis", len(updated.PreferredKPIs)),
		zap.Int("themes", len(updated.PastThemes)),
	)
	metrics.MemoryUpdates.Inc()
	return updated, nil
}

func (s *FileStore) Close() error { return nil }
