package normalizer

import (
	"regexp"
	"strconv"
)

// Syslog line parsing, RFC3164 and RFC5424 best effort. Anything that
// does not match either shape falls back to free-text handling.
var (
	rfc3164Pattern = regexp.MustCompile(`^<(\d+)>(\w{3}\s+\d{1,2}\s+\d{2}:\d{2}:\d{2})\s+(\S+)\s+([^\s:\[]+)(?:\[(\d+)\])?:\s*(.*)$`)
	rfc5424Pattern = regexp.MustCompile(`^<(\d+)>(\d+)\s+(\S+)\s+(\S+)\s+(\S+)\s+(\S+)\s+(\S+)\s+(.*)$`)
)

// syslogSeverities maps RFC severity codes to canonical severity names,
// run through the severity alias table afterwards
var syslogSeverities = map[int]string{
	0: "emergency",
	1: "alert",
	2: "critical",
	3: "error",
	4: "warning",
	5: "notice",
	6: "info",
	7: "debug",
}

// parseSyslogLine extracts structured fields from a syslog line, or
// returns nil when the line matches neither RFC shape
func parseSyslogLine(line string) map[string]any {
	if m := rfc3164Pattern.FindStringSubmatch(line); m != nil {
		fields := map[string]any{
			"timestamp": m[2],
			"hostname":  m[3],
			"program":   m[4],
			"message":   m[6],
		}
		applyPriority(fields, m[1])
		if m[5] != "" {
			fields["pid"] = m[5]
		}
		return fields
	}

	if m := rfc5424Pattern.FindStringSubmatch(line); m != nil {
		fields := map[string]any{
			"timestamp": m[3],
			"hostname":  m[4],
			"program":   m[5],
			"message":   m[8],
		}
		applyPriority(fields, m[1])
		return fields
	}

	return nil
}

// applyPriority decodes the syslog priority into facility and severity
func applyPriority(fields map[string]any, priority string) {
	pri, err := strconv.Atoi(priority)
	if err != nil {
		return
	}
	fields["facility"] = strconv.Itoa(pri / 8)
	if name, ok := syslogSeverities[pri%8]; ok {
		fields["severity"] = name
	}
}
