package dlq

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/telhawk-systems/trailhawk/common/logging"
	"github.com/telhawk-systems/trailhawk/internal/models"
)

// DefaultPath is used when no directory is configured.
const DefaultPath = "/var/lib/trailhawk/dlq"

// FileQueue writes one JSON file per failed record.
type FileQueue struct {
	basePath string
	logger   *logging.Logger
	mu       sync.Mutex
	written  atomic.Uint64
}

// NewFileQueue creates the directory if needed.
func NewFileQueue(basePath string, logger *logging.Logger) (*FileQueue, error) {
	if basePath == "" {
		basePath = DefaultPath
	}
	if logger == nil {
		logger = logging.Default()
	}

	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("create dlq directory: %w", err)
	}

	return &FileQueue{basePath: basePath, logger: logger}, nil
}

// Write implements Writer.
func (q *FileQueue) Write(ctx context.Context, backend string, record *models.PersistenceRecord, cause error) error {
	if q == nil {
		return nil
	}

	failed := newFailedRecord(backend, record, cause)
	data, err := json.MarshalIndent(failed, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal dlq entry: %w", err)
	}

	filename := fmt.Sprintf("failed_%d_%s.json", failed.Timestamp.UnixNano(), failed.ID)

	q.mu.Lock()
	defer q.mu.Unlock()

	if err := os.WriteFile(filepath.Join(q.basePath, filename), data, 0o644); err != nil {
		return fmt.Errorf("write dlq entry: %w", err)
	}

	q.written.Add(1)
	q.logger.InfoContext(ctx, "DLQ: wrote failed record",
		"file", filename,
		logging.Store(backend),
		logging.EventID(eventID(record)),
	)
	return nil
}

// List returns up to limit entries, oldest first. limit <= 0 returns all.
func (q *FileQueue) List(ctx context.Context, limit int) ([]FailedRecord, error) {
	if q == nil {
		return nil, ErrDisabled
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	files, err := q.entries()
	if err != nil {
		return nil, err
	}

	var records []FailedRecord
	for _, name := range files {
		if limit > 0 && len(records) >= limit {
			break
		}

		data, err := os.ReadFile(filepath.Join(q.basePath, name))
		if err != nil {
			q.logger.ErrorContext(ctx, "failed to read DLQ file", "file", name, logging.Error(err))
			continue
		}

		var failed FailedRecord
		if err := json.Unmarshal(data, &failed); err != nil {
			q.logger.ErrorContext(ctx, "failed to parse DLQ file", "file", name, logging.Error(err))
			continue
		}
		records = append(records, failed)
	}

	return records, nil
}

// Delete removes the entry with the given ID.
func (q *FileQueue) Delete(ctx context.Context, id string) error {
	if q == nil {
		return ErrDisabled
	}

	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("invalid dlq entry id %q: %w", id, err)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	matches, err := filepath.Glob(filepath.Join(q.basePath, fmt.Sprintf("failed_*_%s.json", id)))
	if err != nil {
		return fmt.Errorf("search dlq files: %w", err)
	}
	if len(matches) == 0 {
		return fmt.Errorf("dlq entry %s not found", id)
	}

	for _, match := range matches {
		if err := os.Remove(match); err != nil {
			return fmt.Errorf("delete dlq file: %w", err)
		}
	}
	return nil
}

// Purge removes every entry and returns how many were deleted.
func (q *FileQueue) Purge(ctx context.Context) (int, error) {
	if q == nil {
		return 0, ErrDisabled
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	files, err := q.entries()
	if err != nil {
		return 0, err
	}

	deleted := 0
	for _, name := range files {
		if err := os.Remove(filepath.Join(q.basePath, name)); err != nil {
			q.logger.ErrorContext(ctx, "failed to delete DLQ file", "file", name, logging.Error(err))
			continue
		}
		deleted++
	}

	q.logger.InfoContext(ctx, "DLQ: purged entries", logging.Count(deleted))
	return deleted, nil
}

// Stats returns queue counters.
func (q *FileQueue) Stats(ctx context.Context) map[string]any {
	if q == nil {
		return map[string]any{"enabled": false, "backend": "file"}
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	stats := map[string]any{
		"enabled":   true,
		"backend":   "file",
		"written":   q.written.Load(),
		"base_path": q.basePath,
	}

	files, err := q.entries()
	if err != nil {
		stats["error"] = err.Error()
		stats["pending_files"] = 0
		return stats
	}
	stats["pending_files"] = len(files)
	return stats
}

// entries lists entry file names sorted by write time. Caller holds mu.
func (q *FileQueue) entries() ([]string, error) {
	dirEntries, err := os.ReadDir(q.basePath)
	if err != nil {
		return nil, fmt.Errorf("read dlq directory: %w", err)
	}

	var names []string
	for _, e := range dirEntries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), "failed_") || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.SliceStable(names, func(i, j int) bool { return fileTimestamp(names[i]) < fileTimestamp(names[j]) })
	return names, nil
}

func fileTimestamp(name string) int64 {
	parts := strings.SplitN(strings.TrimPrefix(name, "failed_"), "_", 2)
	ts, _ := strconv.ParseInt(parts[0], 10, 64)
	return ts
}

func eventID(record *models.PersistenceRecord) string {
	if record == nil {
		return ""
	}
	return record.EventID
}
