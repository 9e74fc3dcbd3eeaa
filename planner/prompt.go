package planner

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/yairfalse/reitti/registry"
	"github.com/yairfalse/reitti/types"
)

// maxRawBytes bounds how much of the original record goes into the
// prompt; oversized payloads are truncated, the event summary stays
const maxRawBytes = 4096

// systemPrompt enumerates exactly the services and operations the model
// may reference. The model is never shown a service it cannot use.
func systemPrompt(reg *registry.Registry) string {
	var b strings.Builder
	b.WriteString("You are a security operations analyst deciding which response services to invoke for a security event.\n\n")
	b.WriteString("Available services and their operations:\n")
	for _, svc := range reg.Services() {
		fmt.Fprintf(&b, "- %s: %s\n", svc.Name, strings.Join(svc.Capabilities, ", "))
	}
	b.WriteString(`
Only reference services and operations from the list above.

Respond with a single JSON object:
{
  "actions": [{"service": "<name>", "operation": "<operation>", "parameters": {...}}],
  "reasoning": "<why these actions>",
  "severity": "low|medium|high|critical",
  "priority": <1-5, lower is more urgent>
}

Return an empty actions array when no service call is warranted.`)
	return b.String()
}

// userPrompt embeds the canonical event and the operator instruction
func userPrompt(event *types.CanonicalEvent, instruction string) string {
	summary := map[string]any{
		"event_id":        event.EventID,
		"timestamp":       event.Timestamp,
		"event_type":      event.EventType,
		"severity":        event.Severity,
		"indicators":      event.Indicators,
		"affected_assets": event.AffectedAssets,
	}
	summaryJSON, _ := json.MarshalIndent(summary, "", "  ")

	raw := string(event.Raw)
	if len(raw) > maxRawBytes {
		raw = raw[:maxRawBytes] + "... [truncated]"
	}

	var b strings.Builder
	b.WriteString("Security event:\n")
	b.Write(summaryJSON)
	b.WriteString("\n\nOriginal record:\n")
	b.WriteString(raw)
	b.WriteString("\n\nOperator instruction: ")
	if instruction == "" {
		b.WriteString("(none)")
	} else {
		b.WriteString(instruction)
	}
	return b.String()
}
