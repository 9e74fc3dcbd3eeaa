package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"
)

// Reader reads trail entries sequentially from a single file
type Reader struct {
	file    *os.File
	scanner *bufio.Scanner
}

// NewReader opens a trail file for reading
func NewReader(path string) (*Reader, error) {
	file, err := os.Open(path) // #nosec G304
	if err != nil {
		return nil, fmt.Errorf("failed to open trail file: %w", err)
	}

	scanner := bufio.NewScanner(file)
	// Entries carry raw event payloads, allow long lines
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	return &Reader{file: file, scanner: scanner}, nil
}

// Next returns the next entry, or io.EOF when the file is exhausted.
// Truncated trailing lines from a crashed writer are skipped.
func (r *Reader) Next() (*Entry, error) {
	for r.scanner.Scan() {
		line := r.scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var entry Entry
		if err := json.Unmarshal(line, &entry); err != nil {
			continue
		}
		return &entry, nil
	}

	if err := r.scanner.Err(); err != nil {
		return nil, err
	}
	return nil, io.EOF
}

// Close closes the underlying file
func (r *Reader) Close() error {
	return r.file.Close()
}

// Replay walks every entry recorded since a point in time, across all
// trail files in the directory, in sequence order within each file.
// The handler stopping with an error stops the replay.
func Replay(dir string, since time.Time, handler func(*Entry) error) error {
	for _, path := range trailFiles(dir) {
		reader, err := NewReader(path)
		if err != nil {
			return err
		}

		err = replayFile(reader, since, handler)
		_ = reader.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

func replayFile(reader *Reader, since time.Time, handler func(*Entry) error) error {
	for {
		entry, err := reader.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if entry.Timestamp.Before(since) {
			continue
		}
		if err := handler(entry); err != nil {
			return err
		}
	}
}

// EntriesForEvent collects every trail entry recorded for one event,
// the full decision history from normalization to dispatch outcomes.
func EntriesForEvent(dir, eventID string) ([]*Entry, error) {
	var entries []*Entry
	err := Replay(dir, time.Time{}, func(e *Entry) error {
		if e.EventID == eventID {
			entries = append(entries, e)
		}
		return nil
	})
	return entries, err
}
