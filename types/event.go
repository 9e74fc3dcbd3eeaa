package types

import (
	"encoding/json"
	"time"
)

// Severity is the ordered severity scale for security events
type Severity string

const (
	SeverityUnknown  Severity = "unknown"
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// severityRank orders severities for comparison; unknown ranks as low
var severityRank = map[Severity]int{
	SeverityUnknown:  1,
	SeverityLow:      1,
	SeverityMedium:   2,
	SeverityHigh:     3,
	SeverityCritical: 4,
}

// Rank returns the numeric order of a severity. Unknown ranks as low.
func (s Severity) Rank() int {
	if r, ok := severityRank[s]; ok {
		return r
	}
	return severityRank[SeverityLow]
}

// AtLeast reports whether s is at or above other on the severity scale
func (s Severity) AtLeast(other Severity) bool {
	return s.Rank() >= other.Rank()
}

// ParseSeverity normalizes a raw severity string. Anything unrecognized
// maps to unknown, never to an error.
func ParseSeverity(raw string) Severity {
	switch Severity(raw) {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return Severity(raw)
	}
	return SeverityUnknown
}

// Indicator kinds extracted from events
const (
	IndicatorIP       = "ip"
	IndicatorDomain   = "domain"
	IndicatorHash     = "hash"
	IndicatorURL      = "url"
	IndicatorHostname = "hostname"
)

// CanonicalEvent is the normalized record every ingested input becomes.
// Created once by the normalizer and read-only afterwards; Raw holds the
// original source record verbatim for audit and re-processing.
type CanonicalEvent struct {
	EventID        string              `json:"event_id"`
	Timestamp      time.Time           `json:"timestamp"`
	EventType      string              `json:"event_type"`
	Severity       Severity            `json:"severity"`
	Indicators     map[string][]string `json:"indicators,omitempty"`
	AffectedAssets []string            `json:"affected_assets,omitempty"`
	Raw            json.RawMessage     `json:"raw"`
}

// HasIndicator reports whether the event carries at least one indicator
// of the given kind
func (e *CanonicalEvent) HasIndicator(kind string) bool {
	return len(e.Indicators[kind]) > 0
}

// FirstIndicator returns the first value of the given indicator kind,
// or "" when none exists
func (e *CanonicalEvent) FirstIndicator(kind string) string {
	if vals := e.Indicators[kind]; len(vals) > 0 {
		return vals[0]
	}
	return ""
}
