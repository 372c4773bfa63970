// Package history records completed hands. Sinks receive every engine
// transition from the tables they observe and flush one record per hand
// when HAND_END arrives.
package history

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/cardfelt/holdemd/internal/engine"
)

// HandRecord is the persisted form of one completed hand.
type HandRecord struct {
	TableID    string           `json:"tableId"`
	HandNumber int              `json:"handNumber"`
	DealerSeat int              `json:"dealerSeat"`
	EndedAt    time.Time        `json:"endedAt"`
	Events     []engine.Event   `json:"events"`
	Stacks     map[string]int64 `json:"stacks"`
	Pots       []engine.PotResult `json:"pots"`
}

func buildRecord(tableID string, final *engine.State, ev engine.Event, now time.Time) HandRecord {
	stacks := make(map[string]int64, len(final.Seats))
	for _, p := range final.Seats {
		stacks[p.ID] = p.Stack
	}
	return HandRecord{
		TableID:    tableID,
		HandNumber: final.HandNum,
		DealerSeat: final.DealerSeat,
		EndedAt:    now,
		Events:     append([]engine.Event(nil), final.Events...),
		Stacks:     stacks,
		Pots:       ev.Pots,
	}
}

// MemorySink keeps the latest snapshot and recent hand records per
// table, for the admin surface and tests.
type MemorySink struct {
	mu     sync.RWMutex
	limit  int
	latest map[string]*engine.State
	hands  map[string][]HandRecord
}

// NewMemorySink creates a memory sink retaining up to limit hands per
// table (0 means unlimited).
func NewMemorySink(limit int) *MemorySink {
	return &MemorySink{
		limit:  limit,
		latest: make(map[string]*engine.State),
		hands:  make(map[string][]HandRecord),
	}
}

// Record implements the table sink.
func (m *MemorySink) Record(tableID string, tr engine.Transition) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latest[tableID] = tr.State
	if tr.Event.Type != engine.EventHandEnd {
		return
	}
	rec := buildRecord(tableID, tr.State, tr.Event, time.Now())
	hands := append(m.hands[tableID], rec)
	if m.limit > 0 && len(hands) > m.limit {
		hands = hands[len(hands)-m.limit:]
	}
	m.hands[tableID] = hands
}

// Latest returns the most recent snapshot seen for a table.
func (m *MemorySink) Latest(tableID string) (*engine.State, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.latest[tableID]
	return s, ok
}

// Hands returns the retained hand records for a table.
func (m *MemorySink) Hands(tableID string) []HandRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]HandRecord(nil), m.hands[tableID]...)
}

// Forget drops everything retained for a table.
func (m *MemorySink) Forget(tableID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.latest, tableID)
	delete(m.hands, tableID)
}

// FileSink appends one JSON line per completed hand to a per-table file
// under its directory. Write failures are logged, never fatal: hand
// history is best effort.
type FileSink struct {
	dir    string
	logger *log.Logger

	mu    sync.Mutex
	files map[string]*os.File
}

// NewFileSink creates a file sink writing under dir.
func NewFileSink(dir string, logger *log.Logger) (*FileSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("history: create directory: %w", err)
	}
	return &FileSink{
		dir:    dir,
		logger: logger.WithPrefix("history"),
		files:  make(map[string]*os.File),
	}, nil
}

// Record implements the table sink.
func (f *FileSink) Record(tableID string, tr engine.Transition) {
	if tr.Event.Type != engine.EventHandEnd {
		return
	}
	rec := buildRecord(tableID, tr.State, tr.Event, time.Now())
	line, err := json.Marshal(rec)
	if err != nil {
		f.logger.Error("failed to encode hand record", "table", tableID, "error", err)
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	file, err := f.fileFor(tableID)
	if err != nil {
		f.logger.Error("failed to open hand history file", "table", tableID, "error", err)
		return
	}
	if _, err := file.Write(append(line, '\n')); err != nil {
		f.logger.Error("failed to write hand record", "table", tableID, "error", err)
	}
}

func (f *FileSink) fileFor(tableID string) (*os.File, error) {
	if file, ok := f.files[tableID]; ok {
		return file, nil
	}
	path := filepath.Join(f.dir, fmt.Sprintf("hands_%s.jsonl", tableID))
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	f.files[tableID] = file
	return file, nil
}

// Close closes all open hand history files.
func (f *FileSink) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	var firstErr error
	for id, file := range f.files {
		if err := file.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(f.files, id)
	}
	return firstErr
}
