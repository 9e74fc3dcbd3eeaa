// Package audit provides the append-only decision trail. Every
// normalization, plan, fallback and dispatch outcome is recorded as a
// JSON-lines entry with a monotonic sequence number.
package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// EntryType defines the type of trail entry
type EntryType string

const (
	EntryEventNormalized EntryType = "event-normalized"
	EntryNormalizeFailed EntryType = "normalize-failed"
	EntryPlanProposed    EntryType = "plan-proposed"
	EntryPlanFallback    EntryType = "plan-fallback"
	EntryActionResult    EntryType = "action-result"
	EntryBatchComplete   EntryType = "batch-complete"
)

// Entry represents a single trail entry
type Entry struct {
	Timestamp time.Time       `json:"timestamp"`
	Sequence  int64           `json:"sequence"`
	Type      EntryType       `json:"type"`
	EventID   string          `json:"event_id,omitempty"`
	Data      json.RawMessage `json:"data"`
	Error     string          `json:"error,omitempty"`
}

// Config controls trail file rotation and retention
type Config struct {
	MaxFileSize   int64
	RetentionDays int
}

// DefaultConfig returns sane trail defaults
func DefaultConfig() Config {
	return Config{
		MaxFileSize:   64 * 1024 * 1024,
		RetentionDays: 30,
	}
}

// Trail is the append-only audit log. Appends are atomic per entry and
// safe under concurrent writers from multiple pipeline instances.
type Trail struct {
	mu       sync.Mutex
	file     *os.File
	writer   *bufio.Writer
	sequence int64
	dir      string
	config   Config
}

// Open creates or opens a trail in the specified directory
func Open(dir string) (*Trail, error) {
	return OpenWithConfig(dir, DefaultConfig())
}

// OpenWithConfig opens a trail with explicit rotation settings
func OpenWithConfig(dir string, config Config) (*Trail, error) {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create trail directory: %w", err)
	}

	t := &Trail{dir: dir, config: config}
	t.sequence = loadLastSequence(dir)

	if err := t.openNewFile(); err != nil {
		return nil, err
	}
	return t, nil
}

// openNewFile starts a fresh trail file named after the next sequence
func (t *Trail) openNewFile() error {
	filename := fmt.Sprintf("reitti-%s-%08d.trail",
		time.Now().UTC().Format("20060102-150405"), t.sequence+1)
	path := filepath.Join(t.dir, filename)

	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0640) // #nosec G304
	if err != nil {
		return fmt.Errorf("failed to open trail file: %w", err)
	}

	t.file = file
	t.writer = bufio.NewWriter(file)
	return nil
}

// Close flushes and closes the trail
func (t *Trail) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.writer.Flush(); err != nil {
		return err
	}
	return t.file.Close()
}

// Append adds an entry to the trail
func (t *Trail) Append(entryType EntryType, eventID string, data interface{}) error {
	return t.append(entryType, eventID, data, nil)
}

// AppendError adds an entry carrying an error to the trail
func (t *Trail) AppendError(entryType EntryType, eventID string, data interface{}, errToLog error) error {
	return t.append(entryType, eventID, data, errToLog)
}

func (t *Trail) append(entryType EntryType, eventID string, data interface{}, errToLog error) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	jsonData, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal data: %w", err)
	}

	t.sequence++
	entry := Entry{
		Timestamp: time.Now(),
		Sequence:  t.sequence,
		Type:      entryType,
		EventID:   eventID,
		Data:      jsonData,
	}
	if errToLog != nil {
		entry.Error = errToLog.Error()
	}

	return t.writeEntry(entry)
}

// writeEntry writes a single entry and rotates when the file is full
func (t *Trail) writeEntry(entry Entry) error {
	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal entry: %w", err)
	}

	if _, err := t.writer.Write(line); err != nil {
		return fmt.Errorf("failed to write entry: %w", err)
	}
	if _, err := t.writer.WriteString("\n"); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	// Flush immediately for durability
	if err := t.writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush: %w", err)
	}
	if err := t.file.Sync(); err != nil {
		return err
	}

	return t.rotateIfNeeded()
}

// rotateIfNeeded starts a new file once the current one exceeds the
// size limit. Sequence numbers continue across files.
func (t *Trail) rotateIfNeeded() error {
	if t.config.MaxFileSize <= 0 {
		return nil
	}
	info, err := t.file.Stat()
	if err != nil {
		return nil
	}
	if info.Size() < t.config.MaxFileSize {
		return nil
	}

	if err := t.file.Close(); err != nil {
		return fmt.Errorf("failed to close trail file for rotation: %w", err)
	}
	return t.openNewFile()
}

// Sequence returns the last assigned sequence number
func (t *Trail) Sequence() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sequence
}

// trailFiles lists trail files in a directory, oldest first
func trailFiles(dir string) []string {
	files, err := filepath.Glob(filepath.Join(dir, "reitti-*.trail"))
	if err != nil {
		return nil
	}
	return files
}

// loadLastSequence scans existing trail files for the highest sequence
// so appends continue where the previous run stopped
func loadLastSequence(dir string) int64 {
	var last int64
	for _, file := range trailFiles(dir) {
		reader, err := NewReader(file)
		if err != nil {
			continue
		}
		for {
			entry, err := reader.Next()
			if err != nil {
				break
			}
			if entry.Sequence > last {
				last = entry.Sequence
			}
		}
		_ = reader.Close()
	}
	return last
}
