package ingest

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/FKhadivpour/RAG-Application/internal/helper"
)

// LogEntry marks a document whose delete-then-upsert sequence has started but
// not finished. Entries still present after a restart identify documents that
// need re-ingestion.
type LogEntry struct {
	DocumentID string    `json:"document_id"`
	RunID      string    `json:"run_id"`
	StartedAt  time.Time `json:"started_at"`
}

// Log is the small on-disk ingestion journal: JSON lines, one per open entry.
// Begin appends before the index delete; Clear rewrites the file without the
// entry after a successful upsert.
type Log struct {
	path string

	mu   sync.Mutex
	open map[string]LogEntry
}

// OpenLog loads any entries left open by a previous run.
func OpenLog(path string) (*Log, error) {
	l := &Log{path: path, open: make(map[string]LogEntry)}

	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return l, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open ingestion log: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var entry LogEntry
		if err := json.Unmarshal(line, &entry); err != nil {
			return nil, fmt.Errorf("failed to parse ingestion log: %w", err)
		}
		l.open[entry.DocumentID] = entry
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read ingestion log: %w", err)
	}
	return l, nil
}

// Begin records that a document's replacement is in flight.
func (l *Log) Begin(documentID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	runID, err := helper.GenerateUUID()
	if err != nil {
		return err
	}
	entry := LogEntry{DocumentID: documentID, RunID: runID, StartedAt: time.Now().UTC()}

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to append ingestion log: %w", err)
	}
	defer f.Close()

	encoded, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode ingestion log entry: %w", err)
	}
	if _, err := f.Write(append(encoded, '\n')); err != nil {
		return fmt.Errorf("failed to append ingestion log: %w", err)
	}

	l.open[documentID] = entry
	return nil
}

// Clear drops the document's entry after a successful upsert.
func (l *Log) Clear(documentID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	delete(l.open, documentID)
	return l.rewrite()
}

// Pending lists documents whose previous ingestion never completed.
func (l *Log) Pending() []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	ids := make([]string, 0, len(l.open))
	for id := range l.open {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (l *Log) rewrite() error {
	f, err := os.Create(l.path)
	if err != nil {
		return fmt.Errorf("failed to rewrite ingestion log: %w", err)
	}
	defer f.Close()

	for _, entry := range l.open {
		encoded, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("failed to encode ingestion log entry: %w", err)
		}
		if _, err := f.Write(append(encoded, '\n')); err != nil {
			return fmt.Errorf("failed to rewrite ingestion log: %w", err)
		}
	}
	return nil
}
