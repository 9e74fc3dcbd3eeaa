// Package registry holds the static directory of capability services.
package registry

import (
	"fmt"
	"sort"
	"time"

	"github.com/yairfalse/reitti/config"
)

// Service is one entry in the capability registry
type Service struct {
	Name         string
	Endpoint     string
	Capabilities []string
	AuthHeader   string
	authValue    string
	Timeout      time.Duration

	capabilitySet map[string]struct{}
}

// AuthValue returns the secret header value. Kept behind a method so it
// never ends up in a struct dump or log field by accident.
func (s *Service) AuthValue() string { return s.authValue }

// HasCapability reports whether the service declares the operation
func (s *Service) HasCapability(operation string) bool {
	_, ok := s.capabilitySet[operation]
	return ok
}

// Registry is the read-only directory of known services. Built once from
// configuration at startup and shared across all pipeline instances
// without locking.
type Registry struct {
	services map[string]*Service
	names    []string
}

// New builds a registry from service configuration
func New(services map[string]config.ServiceConfig) (*Registry, error) {
	if len(services) == 0 {
		return nil, fmt.Errorf("registry requires at least one service")
	}

	reg := &Registry{services: make(map[string]*Service, len(services))}
	for name, svc := range services {
		caps := make(map[string]struct{}, len(svc.Capabilities))
		for _, op := range svc.Capabilities {
			caps[op] = struct{}{}
		}
		reg.services[name] = &Service{
			Name:          name,
			Endpoint:      svc.Endpoint,
			Capabilities:  append([]string(nil), svc.Capabilities...),
			AuthHeader:    svc.AuthHeader,
			authValue:     svc.ResolveAuth(),
			Timeout:       svc.Timeout,
			capabilitySet: caps,
		}
		reg.names = append(reg.names, name)
	}
	sort.Strings(reg.names)
	return reg, nil
}

// Lookup returns the service entry by name
func (r *Registry) Lookup(name string) (*Service, bool) {
	svc, ok := r.services[name]
	return svc, ok
}

// Has reports whether the service declares the operation
func (r *Registry) Has(service, operation string) bool {
	svc, ok := r.services[service]
	if !ok {
		return false
	}
	return svc.HasCapability(operation)
}

// Services returns all entries in stable name order
func (r *Registry) Services() []*Service {
	out := make([]*Service, 0, len(r.names))
	for _, name := range r.names {
		out = append(out, r.services[name])
	}
	return out
}

// Names returns the sorted service names
func (r *Registry) Names() []string {
	return append([]string(nil), r.names...)
}
