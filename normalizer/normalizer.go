// Package normalizer turns raw security telemetry into canonical events.
package normalizer

import (
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/yairfalse/reitti/types"
)

// Format identifies the declared shape of a raw input
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
	FormatLog  Format = "log"
)

// FormatForPath guesses a format from a file name extension
func FormatForPath(path string) (Format, bool) {
	switch {
	case strings.HasSuffix(path, ".json"):
		return FormatJSON, true
	case strings.HasSuffix(path, ".csv"):
		return FormatCSV, true
	case strings.HasSuffix(path, ".log"), strings.HasSuffix(path, ".txt"):
		return FormatLog, true
	}
	return "", false
}

// Normalizer parses raw inputs into canonical events. Stateless and safe
// for concurrent use; the ingestion sequence number is caller-supplied.
type Normalizer struct {
	now func() time.Time
}

// New creates a normalizer using wall-clock ingestion time
func New() *Normalizer {
	return &Normalizer{now: time.Now}
}

// NewWithClock creates a normalizer with a fixed clock, for tests
func NewWithClock(now func() time.Time) *Normalizer {
	return &Normalizer{now: now}
}

// Normalize parses one raw record into a canonical event. seq is the
// record's position in its ingestion batch and feeds event ID derivation
// so re-ingesting the same content yields distinct IDs.
func (n *Normalizer) Normalize(raw []byte, format Format, seq int) (*types.CanonicalEvent, error) {
	if len(strings.TrimSpace(string(raw))) == 0 {
		return nil, &types.NormalizationError{Reason: types.NormalizeEmpty, Format: string(format)}
	}

	switch format {
	case FormatJSON:
		return n.normalizeJSON(raw, seq)
	case FormatCSV:
		return n.normalizeCSV(raw, seq)
	case FormatLog:
		return n.normalizeLog(raw, seq)
	}
	return nil, &types.NormalizationError{Reason: types.NormalizeUnsupported, Format: string(format)}
}

// Batch splits a whole file into records and normalizes each one.
// A bad record yields an error at its index, never aborts the batch.
func (n *Normalizer) Batch(data []byte, format Format) ([]*types.CanonicalEvent, []error) {
	records, err := splitRecords(data, format)
	if err != nil {
		return nil, []error{err}
	}

	var events []*types.CanonicalEvent
	var errs []error
	for i, rec := range records {
		event, err := n.Normalize(rec, format, i)
		if err != nil {
			errs = append(errs, fmt.Errorf("record %d: %w", i, err))
			continue
		}
		events = append(events, event)
	}
	return events, errs
}

// splitRecords breaks file content into per-record raw payloads. JSON
// arrays split per element, CSV rows are rejoined with their header so
// each record stands alone, logs split per line.
func splitRecords(data []byte, format Format) ([][]byte, error) {
	switch format {
	case FormatJSON:
		trimmed := strings.TrimSpace(string(data))
		if strings.HasPrefix(trimmed, "[") {
			var items []json.RawMessage
			if err := json.Unmarshal(data, &items); err != nil {
				return nil, &types.NormalizationError{Reason: types.NormalizeMalformed, Format: string(format), Err: err}
			}
			records := make([][]byte, len(items))
			for i, item := range items {
				records[i] = item
			}
			return records, nil
		}
		return [][]byte{data}, nil

	case FormatCSV:
		lines := nonEmptyLines(data)
		if len(lines) < 2 {
			return nil, &types.NormalizationError{Reason: types.NormalizeMalformed, Format: string(format),
				Err: fmt.Errorf("csv requires a header row and at least one record")}
		}
		header := lines[0]
		records := make([][]byte, 0, len(lines)-1)
		for _, line := range lines[1:] {
			records = append(records, []byte(header+"\n"+line))
		}
		return records, nil

	case FormatLog:
		lines := nonEmptyLines(data)
		records := make([][]byte, 0, len(lines))
		for _, line := range lines {
			records = append(records, []byte(line))
		}
		return records, nil
	}
	return nil, &types.NormalizationError{Reason: types.NormalizeUnsupported, Format: string(format)}
}

func nonEmptyLines(data []byte) []string {
	var lines []string
	for _, line := range strings.Split(string(data), "\n") {
		if strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

func (n *Normalizer) normalizeJSON(raw []byte, seq int) (*types.CanonicalEvent, error) {
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, &types.NormalizationError{Reason: types.NormalizeMalformed, Format: string(FormatJSON), Err: err}
	}
	return n.build(fields, raw, seq), nil
}

func (n *Normalizer) normalizeCSV(raw []byte, seq int) (*types.CanonicalEvent, error) {
	reader := csv.NewReader(strings.NewReader(string(raw)))
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, &types.NormalizationError{Reason: types.NormalizeMalformed, Format: string(FormatCSV), Err: err}
	}
	if len(rows) < 2 {
		return nil, &types.NormalizationError{Reason: types.NormalizeMalformed, Format: string(FormatCSV),
			Err: fmt.Errorf("csv record requires a header row")}
	}

	header, row := rows[0], rows[1]
	fields := make(map[string]any, len(header))
	for i, name := range header {
		if i < len(row) {
			fields[name] = row[i]
		}
	}
	return n.build(fields, raw, seq), nil
}

func (n *Normalizer) normalizeLog(raw []byte, seq int) (*types.CanonicalEvent, error) {
	fields := parseSyslogLine(string(raw))
	if fields == nil {
		// Not syslog shaped, keep the line as free text
		fields = map[string]any{"message": string(raw)}
	}
	return n.build(fields, raw, seq), nil
}

// build maps parsed fields into the canonical shape via the alias table,
// then sweeps the full raw text for indicators
func (n *Normalizer) build(fields map[string]any, raw []byte, seq int) *types.CanonicalEvent {
	event := &types.CanonicalEvent{
		EventType:  "unknown",
		Severity:   types.SeverityUnknown,
		Indicators: make(map[string][]string),
		Raw:        json.RawMessage(mustRawJSON(fields, raw)),
	}

	applyAliases(event, fields)
	extractIndicators(event, raw)

	if event.EventID == "" {
		event.EventID = deriveEventID(raw, seq)
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = n.now()
	}
	return event
}

// mustRawJSON preserves the original record verbatim when it already is
// JSON, otherwise wraps the source text so Raw stays valid JSON
func mustRawJSON(fields map[string]any, raw []byte) []byte {
	if json.Valid(raw) {
		return raw
	}
	wrapped, err := json.Marshal(map[string]any{"raw_text": string(raw), "fields": fields})
	if err != nil {
		quoted, _ := json.Marshal(string(raw))
		return quoted
	}
	return wrapped
}

// deriveEventID hashes raw content plus batch sequence so IDs are unique
// per batch without relying on wall-clock time
func deriveEventID(raw []byte, seq int) string {
	sum := sha256.Sum256(raw)
	return fmt.Sprintf("evt-%s-%d", hex.EncodeToString(sum[:6]), seq)
}
