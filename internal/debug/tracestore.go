// Package debug implements the developer debug console backend: persisted
// run traces, admin sessions, the unit registry, run orchestration, and
// LLM trace explanations.
package debug

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Hanny658/Meta-Recommendation/internal/model"
	"github.com/Hanny658/Meta-Recommendation/internal/sanitize"
)

// ErrRunNotFound is returned when a run id has no readable trace file.
var ErrRunNotFound = errors.New("debug: run not found")

const listRunsLimit = 50

// TraceStore persists run records as one JSON file per run under a
// directory. All mutations go through the store lock, so concurrent
// event appends against the same run never lose writes.
type TraceStore struct {
	dir    string
	logger *slog.Logger

	mu sync.Mutex
}

// NewTraceStore creates the trace directory if needed.
func NewTraceStore(dir string, logger *slog.Logger) (*TraceStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("debug: create trace dir: %w", err)
	}
	return &TraceStore{dir: dir, logger: logger}, nil
}

func (s *TraceStore) path(runID string) string {
	return filepath.Join(s.dir, runID+".json")
}

// CreateRun persists a fresh queued record and returns it.
func (s *TraceStore) CreateRun(kind model.RunKind, config map[string]any) (*model.RunRecord, error) {
	now := time.Now().UTC()
	rec := &model.RunRecord{
		ID:        uuid.NewString(),
		Kind:      kind,
		Status:    model.RunStatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
		Config:    config,
		Events:    []model.RunEvent{},
		Artifacts: map[string]any{},
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.write(rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// Load reads one run record. A corrupted trace file is reported as
// absent rather than surfacing a decode error to callers.
func (s *TraceStore) Load(runID string) (*model.RunRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(runID)
}

// Mutate applies fn to a run record under the store lock and persists
// the result. UpdatedAt is refreshed on every save.
func (s *TraceStore) Mutate(runID string, fn func(*model.RunRecord)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.load(runID)
	if err != nil {
		return err
	}
	fn(rec)
	return s.write(rec)
}

// AppendEvent records one event on a run. The event data is sanitized
// before it touches disk, and the timestamp is assigned here.
func (s *TraceStore) AppendEvent(runID string, ev model.RunEvent) error {
	ev.Timestamp = time.Now().UTC()
	ev.Data = sanitize.Value(ev.Data)
	return s.Mutate(runID, func(rec *model.RunRecord) {
		rec.Events = append(rec.Events, ev)
	})
}

// RecordArtifact attaches a named artifact to a run. Artifact failures
// never fail the surrounding workflow; they are logged and dropped.
func (s *TraceStore) RecordArtifact(runID, name string, value any) {
	err := s.Mutate(runID, func(rec *model.RunRecord) {
		if rec.Artifacts == nil {
			rec.Artifacts = map[string]any{}
		}
		rec.Artifacts[name] = sanitize.Value(value)
	})
	if err != nil {
		s.logger.Warn("artifact not recorded", "run_id", runID, "artifact", name, "error", err)
	}
}

// ListRuns returns up to 50 run summaries, most recently modified first.
// Unparsable files are skipped.
func (s *TraceStore) ListRuns() ([]model.RunSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("debug: read trace dir: %w", err)
	}

	type candidate struct {
		runID string
		mtime time.Time
	}
	candidates := make([]candidate, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		candidates = append(candidates, candidate{
			runID: strings.TrimSuffix(name, ".json"),
			mtime: info.ModTime(),
		})
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].mtime.After(candidates[j].mtime)
	})

	summaries := make([]model.RunSummary, 0, min(len(candidates), listRunsLimit))
	for _, c := range candidates {
		if len(summaries) == listRunsLimit {
			break
		}
		rec, err := s.load(c.runID)
		if err != nil {
			s.logger.Warn("skipping unreadable trace", "run_id", c.runID, "error", err)
			continue
		}
		summaries = append(summaries, rec.Summary())
	}
	return summaries, nil
}

// load and write require s.mu.

func (s *TraceStore) load(runID string) (*model.RunRecord, error) {
	raw, err := os.ReadFile(s.path(runID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrRunNotFound
		}
		return nil, fmt.Errorf("debug: read trace %s: %w", runID, err)
	}
	var rec model.RunRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("debug: decode trace %s: %w", runID, ErrRunNotFound)
	}
	return &rec, nil
}

// write replaces the trace file atomically: readers see either the old
// or the new complete document, never a partial write.
func (s *TraceStore) write(rec *model.RunRecord) error {
	rec.UpdatedAt = time.Now().UTC()

	raw, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("debug: encode trace %s: %w", rec.ID, err)
	}

	tmp, err := os.CreateTemp(s.dir, rec.ID+".*.tmp")
	if err != nil {
		return fmt.Errorf("debug: write trace %s: %w", rec.ID, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("debug: write trace %s: %w", rec.ID, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("debug: write trace %s: %w", rec.ID, err)
	}
	if err := os.Rename(tmpName, s.path(rec.ID)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("debug: write trace %s: %w", rec.ID, err)
	}
	return nil
}
