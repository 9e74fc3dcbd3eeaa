package normalizer

import (
	"fmt"
	"strings"
	"time"

	"github.com/yairfalse/reitti/types"
)

// Canonical slots a source field can map to
const (
	slotEventID   = "event_id"
	slotTimestamp = "timestamp"
	slotEventType = "event_type"
	slotSeverity  = "severity"
	slotAsset     = "asset"
)

// fieldAliases is the fixed alias table mapping source field names to
// canonical slots or indicator kinds. Matching is case-insensitive.
// Sources: Windows event log, syslog, Cisco ASA, Palo Alto, CrowdStrike,
// Splunk CIM and generic JSON feeds.
var fieldAliases = map[string]string{
	// Event identifiers
	"id":        slotEventID,
	"event_id":  slotEventID,
	"eventid":   slotEventID,
	"evt_id":    slotEventID,
	"record_id": slotEventID,

	// Timestamps
	"timestamp":      slotTimestamp,
	"time":           slotTimestamp,
	"@timestamp":     slotTimestamp,
	"_time":          slotTimestamp,
	"event_time":     slotTimestamp,
	"log_time":       slotTimestamp,
	"time_generated": slotTimestamp,
	"timecreated":    slotTimestamp,

	// Event type
	"event_type":     slotEventType,
	"type":           slotEventType,
	"category":       slotEventType,
	"alert_type":     slotEventType,
	"detection_type": slotEventType,
	"event_category": slotEventType,

	// Severity
	"severity":     slotSeverity,
	"level":        slotSeverity,
	"priority":     slotSeverity,
	"criticality":  slotSeverity,
	"risk_level":   slotSeverity,
	"threat_level": slotSeverity,

	// IP indicators
	"ip":             types.IndicatorIP,
	"src_ip":         types.IndicatorIP,
	"source_ip":      types.IndicatorIP,
	"srcip":          types.IndicatorIP,
	"src":            types.IndicatorIP,
	"client_ip":      types.IndicatorIP,
	"ipaddress":      types.IndicatorIP,
	"dst_ip":         types.IndicatorIP,
	"dest_ip":        types.IndicatorIP,
	"destination_ip": types.IndicatorIP,
	"dst":            types.IndicatorIP,
	"target_ip":      types.IndicatorIP,
	"server_ip":      types.IndicatorIP,

	// Domain indicators
	"domain":             types.IndicatorDomain,
	"dns_domain":         types.IndicatorDomain,
	"destination_domain": types.IndicatorDomain,
	"fqdn":               types.IndicatorDomain,
	"query":              types.IndicatorDomain,

	// Hash indicators
	"md5":         types.IndicatorHash,
	"sha1":        types.IndicatorHash,
	"sha256":      types.IndicatorHash,
	"file_hash":   types.IndicatorHash,
	"hash":        types.IndicatorHash,
	"md5string":   types.IndicatorHash,
	"sha256string": types.IndicatorHash,

	// URL indicators
	"url":         types.IndicatorURL,
	"uri":         types.IndicatorURL,
	"request_url": types.IndicatorURL,

	// Affected assets
	"hostname":      slotAsset,
	"host":          slotAsset,
	"computer":      slotAsset,
	"computer_name": slotAsset,
	"computername":  slotAsset,
	"machine_name":  slotAsset,
	"endpoint":      slotAsset,
	"dest":          slotAsset,
}

// severityAliases maps raw severity spellings onto the canonical scale
var severityAliases = map[string]types.Severity{
	"low":           types.SeverityLow,
	"info":          types.SeverityLow,
	"informational": types.SeverityLow,
	"notice":        types.SeverityLow,
	"debug":         types.SeverityLow,
	"medium":        types.SeverityMedium,
	"moderate":      types.SeverityMedium,
	"warning":       types.SeverityMedium,
	"warn":          types.SeverityMedium,
	"high":          types.SeverityHigh,
	"error":         types.SeverityHigh,
	"major":         types.SeverityHigh,
	"critical":      types.SeverityCritical,
	"emergency":     types.SeverityCritical,
	"alert":         types.SeverityCritical,
	"severe":        types.SeverityCritical,
}

// timestampLayouts tried in order when parsing source timestamps
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	time.Stamp, // syslog RFC3164, no year
}

// applyAliases walks parsed fields through the alias table, filling the
// canonical slots and indicator sets. Unknown fields stay in Raw only.
func applyAliases(event *types.CanonicalEvent, fields map[string]any) {
	for name, value := range fields {
		str := stringify(value)
		if str == "" {
			continue
		}

		target, ok := fieldAliases[strings.ToLower(name)]
		if !ok {
			continue
		}

		switch target {
		case slotEventID:
			if event.EventID == "" {
				event.EventID = str
			}
		case slotTimestamp:
			if event.Timestamp.IsZero() {
				if ts, ok := parseTimestamp(str); ok {
					event.Timestamp = ts
				}
			}
		case slotEventType:
			if event.EventType == "" || event.EventType == "unknown" {
				event.EventType = str
			}
		case slotSeverity:
			if event.Severity == types.SeverityUnknown {
				event.Severity = normalizeSeverity(str)
			}
		case slotAsset:
			event.AffectedAssets = appendUnique(event.AffectedAssets, str)
			addIndicator(event, types.IndicatorHostname, str)
		default:
			// target is an indicator kind
			addIndicator(event, target, str)
		}
	}
}

func normalizeSeverity(raw string) types.Severity {
	if sev, ok := severityAliases[strings.ToLower(strings.TrimSpace(raw))]; ok {
		return sev
	}
	return types.ParseSeverity(strings.ToLower(strings.TrimSpace(raw)))
}

func parseTimestamp(raw string) (time.Time, bool) {
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

func stringify(value any) string {
	switch v := value.(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		if v == float64(int64(v)) {
			return fmt.Sprintf("%d", int64(v))
		}
		return fmt.Sprintf("%g", v)
	case bool:
		return fmt.Sprintf("%t", v)
	case nil:
		return ""
	}
	return ""
}

func addIndicator(event *types.CanonicalEvent, kind, value string) {
	event.Indicators[kind] = appendUnique(event.Indicators[kind], value)
}

func appendUnique(values []string, value string) []string {
	for _, existing := range values {
		if existing == value {
			return values
		}
	}
	return append(values, value)
}
