package normalizer

import (
	"regexp"
	"strings"

	"github.com/yairfalse/reitti/types"
)

// Indicator extraction patterns applied to the full raw record text.
// Field-level aliases take precedence; this sweep catches indicators
// buried inside free-text messages.
var (
	ipPattern     = regexp.MustCompile(`\b(?:[0-9]{1,3}\.){3}[0-9]{1,3}\b`)
	urlPattern    = regexp.MustCompile(`https?://[^\s"'<>]+`)
	md5Pattern    = regexp.MustCompile(`\b[a-fA-F0-9]{32}\b`)
	sha1Pattern   = regexp.MustCompile(`\b[a-fA-F0-9]{40}\b`)
	sha256Pattern = regexp.MustCompile(`\b[a-fA-F0-9]{64}\b`)
	domainPattern = regexp.MustCompile(`\b[a-zA-Z0-9][a-zA-Z0-9-]{0,61}(?:\.[a-zA-Z0-9][a-zA-Z0-9-]{0,61})+\b`)
)

// extractIndicators sweeps the raw record for IPs, URLs, hashes and
// domains and merges them into the event's indicator sets
func extractIndicators(event *types.CanonicalEvent, raw []byte) {
	text := string(raw)

	for _, ip := range ipPattern.FindAllString(text, -1) {
		if validIPv4(ip) {
			addIndicator(event, types.IndicatorIP, ip)
		}
	}

	for _, url := range urlPattern.FindAllString(text, -1) {
		addIndicator(event, types.IndicatorURL, strings.TrimRight(url, ".,;)"))
	}

	// Longest hashes first so a sha256 is not also matched as md5
	for _, hash := range sha256Pattern.FindAllString(text, -1) {
		addIndicator(event, types.IndicatorHash, strings.ToLower(hash))
	}
	for _, hash := range sha1Pattern.FindAllString(text, -1) {
		if !containsSubstring(event.Indicators[types.IndicatorHash], hash) {
			addIndicator(event, types.IndicatorHash, strings.ToLower(hash))
		}
	}
	for _, hash := range md5Pattern.FindAllString(text, -1) {
		if !containsSubstring(event.Indicators[types.IndicatorHash], hash) {
			addIndicator(event, types.IndicatorHash, strings.ToLower(hash))
		}
	}

	for _, domain := range domainPattern.FindAllString(text, -1) {
		if plausibleDomain(domain, event) {
			addIndicator(event, types.IndicatorDomain, strings.ToLower(domain))
		}
	}
}

// validIPv4 rejects dotted quads with octets above 255
func validIPv4(ip string) bool {
	octets := strings.Split(ip, ".")
	if len(octets) != 4 {
		return false
	}
	for _, octet := range octets {
		if len(octet) > 1 && octet[0] == '0' {
			return false
		}
		val := 0
		for _, c := range octet {
			val = val*10 + int(c-'0')
		}
		if val > 255 {
			return false
		}
	}
	return true
}

// plausibleDomain filters out matches that are really IPs, hostnames
// already captured as assets, or file names
func plausibleDomain(candidate string, event *types.CanonicalEvent) bool {
	if ipPattern.MatchString(candidate) {
		return false
	}
	// Require an alphabetic TLD of at least two characters
	idx := strings.LastIndex(candidate, ".")
	tld := candidate[idx+1:]
	if len(tld) < 2 {
		return false
	}
	for _, c := range tld {
		if (c < 'a' || c > 'z') && (c < 'A' || c > 'Z') {
			return false
		}
	}
	// Common file extensions are not domains
	switch strings.ToLower(tld) {
	case "exe", "dll", "json", "csv", "log", "txt", "php", "html", "ps1", "bat", "sh", "py":
		return false
	}
	for _, asset := range event.AffectedAssets {
		if strings.EqualFold(asset, candidate) {
			return false
		}
	}
	return true
}

// containsSubstring reports whether any existing value contains the
// candidate, so md5/sha1 windows inside longer hashes are skipped
func containsSubstring(values []string, candidate string) bool {
	lower := strings.ToLower(candidate)
	for _, v := range values {
		if strings.Contains(v, lower) {
			return true
		}
	}
	return false
}
