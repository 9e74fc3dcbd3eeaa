package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Meta is the capability-discovery payload every service exposes at /meta
type Meta struct {
	ServerName   string   `json:"server_name"`
	Capabilities []string `json:"capabilities"`
}

// DiscoveryResult reports one service's advertised capabilities against
// its declared set
type DiscoveryResult struct {
	Service    string   `json:"service"`
	Online     bool     `json:"online"`
	Advertised []string `json:"advertised,omitempty"`
	Missing    []string `json:"missing,omitempty"` // declared but not advertised
	Error      string   `json:"error,omitempty"`
}

// Discoverer probes service /meta endpoints
type Discoverer struct {
	registry *Registry
	client   *http.Client
}

// NewDiscoverer creates a discoverer with a bounded probe timeout
func NewDiscoverer(registry *Registry, timeout time.Duration) *Discoverer {
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	return &Discoverer{
		registry: registry,
		client:   &http.Client{Timeout: timeout},
	}
}

// Discover probes every registered service and reports capability drift.
// Offline services are reported, never fatal.
func (d *Discoverer) Discover(ctx context.Context) []DiscoveryResult {
	results := make([]DiscoveryResult, 0, len(d.registry.Names()))
	for _, svc := range d.registry.Services() {
		results = append(results, d.probe(ctx, svc))
	}
	return results
}

func (d *Discoverer) probe(ctx context.Context, svc *Service) DiscoveryResult {
	result := DiscoveryResult{Service: svc.Name}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, svc.Endpoint+"/meta", nil)
	if err != nil {
		result.Error = err.Error()
		return result
	}

	resp, err := d.client.Do(req)
	if err != nil {
		result.Error = err.Error()
		return result
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		result.Error = fmt.Sprintf("meta endpoint returned %d", resp.StatusCode)
		return result
	}

	var meta Meta
	if err := json.NewDecoder(resp.Body).Decode(&meta); err != nil {
		result.Error = fmt.Sprintf("invalid meta payload: %v", err)
		return result
	}

	result.Online = true
	result.Advertised = meta.Capabilities

	advertised := make(map[string]struct{}, len(meta.Capabilities))
	for _, op := range meta.Capabilities {
		advertised[op] = struct{}{}
	}
	for _, op := range svc.Capabilities {
		if _, ok := advertised[op]; !ok {
			result.Missing = append(result.Missing, op)
		}
	}
	return result
}
