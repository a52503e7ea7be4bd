// Package audit appends a durable, append-only NDJSON trail of sub-order
// lifecycle events that the engine records (creation, acceptance, rejection
// and trades), independent of and outliving the in-memory/snapshot store.
// The reconciler writes no entries, and a hub-forced rejection is not logged.
package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yourusername/broker/internal/model"
)

// Entry is one sub-order lifecycle event.
type Entry struct {
	ID         string               `json:"id"`
	SubOrderID int64                `json:"subOrderId"`
	Timestamp  time.Time            `json:"timestamp"`
	Event      string               `json:"event"` // e.g. CREATED, ACCEPTED, TRADE, REJECTED
	Status     model.SubOrderStatus `json:"status"`
	Detail     string               `json:"detail,omitempty"`
}

// Logger is a thread-safe, append-only writer of Entry records in NDJSON.
type Logger struct {
	filePath string
	mu       sync.Mutex
}

// New opens (creating if necessary) an audit log at filePath.
func New(filePath string) (*Logger, error) {
	if err := os.MkdirAll(filepath.Dir(filePath), 0o700); err != nil {
		return nil, fmt.Errorf("creating audit log directory: %w", err)
	}
	return &Logger{filePath: filePath}, nil
}

// Log appends entry to the log, assigning it an id if it has none.
func (l *Logger) Log(entry Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}

	file, err := os.OpenFile(l.filePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("opening audit log: %w", err)
	}
	defer file.Close()

	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshaling audit entry: %w", err)
	}
	if _, err := file.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("writing audit entry: %w", err)
	}
	return file.Sync()
}

// ReadAll reads the full log, skipping any malformed trailing line left by
// a crash mid-write.
func (l *Logger) ReadAll() ([]Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	data, err := os.ReadFile(l.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading audit log: %w", err)
	}

	var entries []Entry
	start := 0
	for i := 0; i < len(data); i++ {
		if data[i] != '\n' {
			continue
		}
		if i > start {
			var entry Entry
			if err := json.Unmarshal(data[start:i], &entry); err == nil {
				entries = append(entries, entry)
			}
		}
		start = i + 1
	}
	if start < len(data) {
		var entry Entry
		if err := json.Unmarshal(data[start:], &entry); err == nil {
			entries = append(entries, entry)
		}
	}
	return entries, nil
}
