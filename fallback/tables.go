package fallback

import "github.com/yairfalse/reitti/types"

// KeywordRule adds an action when any of its keywords appears in the
// operator instruction (case-insensitive substring match)
type KeywordRule struct {
	Keywords  []string
	Service   string
	Operation string
	Category  types.ActionCategory
	// ParamKey names the parameter filled from the event; ParamKind
	// selects which indicator kind feeds it. Empty means no parameter.
	ParamKey  string
	ParamKind string
}

// IndicatorRule adds an enrichment action whenever the event carries an
// indicator of the given kind, instruction or not
type IndicatorRule struct {
	Kind      string
	Service   string
	Operation string
	ParamKey  string
}

// Tables is the complete immutable rule set driving the fallback engine.
// Tests substitute alternate tables without touching the logic.
type Tables struct {
	Keywords   []KeywordRule
	Indicators []IndicatorRule

	// TicketSeverity is the minimum severity that forces a ticket action
	TicketService   string
	TicketOperation string
	TicketSeverity  types.Severity

	MaxActions int
}

// DefaultTables returns the stock rule set wired to the well-known
// service names. Services absent from the registry are dropped later by
// orchestrator validation, so a trimmed deployment still works.
func DefaultTables() Tables {
	return Tables{
		Keywords: []KeywordRule{
			{
				Keywords:  []string{"malicious", "reputation", "scan", "virus", "threat", "check"},
				Service:   "virustotal",
				Operation: "ip_report",
				Category:  types.CategoryEnrichment,
				ParamKey:  "ip",
				ParamKind: types.IndicatorIP,
			},
			{
				Keywords:  []string{"malicious", "reputation", "scan", "virus", "threat", "check"},
				Service:   "virustotal",
				Operation: "domain_report",
				Category:  types.CategoryEnrichment,
				ParamKey:  "domain",
				ParamKind: types.IndicatorDomain,
			},
			{
				Keywords:  []string{"sandbox", "detonate", "analyse", "analyze"},
				Service:   "cloud_ivx",
				Operation: "lookup_hashes",
				Category:  types.CategoryEnrichment,
				ParamKey:  "hash",
				ParamKind: types.IndicatorHash,
			},
			{
				Keywords:  []string{"ticket", "incident", "servicenow", "escalate"},
				Service:   "servicenow",
				Operation: "create_record",
				Category:  types.CategoryTicketing,
			},
			{
				Keywords:  []string{"endpoint", "terminal", "host", "investigate", "forensic"},
				Service:   "cyberreason",
				Operation: "get_pylum_id",
				Category:  types.CategoryInvestigation,
				ParamKey:  "hostname",
				ParamKind: types.IndicatorHostname,
			},
		},
		Indicators: []IndicatorRule{
			{Kind: types.IndicatorIP, Service: "virustotal", Operation: "ip_report", ParamKey: "ip"},
			{Kind: types.IndicatorDomain, Service: "virustotal", Operation: "domain_report", ParamKey: "domain"},
			{Kind: types.IndicatorHash, Service: "cloud_ivx", Operation: "lookup_hashes", ParamKey: "hash"},
		},
		TicketService:   "servicenow",
		TicketOperation: "create_record",
		TicketSeverity:  types.SeverityHigh,
		MaxActions:      5,
	}
}
