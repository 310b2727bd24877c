package plugin

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/hearthd/sandboxd/internal/logging"
	"github.com/hearthd/sandboxd/internal/protocol"
)

// Registry maps domain names to built-in integration implementations and
// resolves setup requests against them and the on-disk manifests.
type Registry struct {
	mu           sync.RWMutex
	integrations map[string]any
	manifestDir  string
	log          *logging.Logger
}

// NewRegistry creates a registry reading manifests from manifestDir.
func NewRegistry(manifestDir string, log *logging.Logger) *Registry {
	if log == nil {
		log = logging.NewNop()
	}
	return &Registry{
		integrations: make(map[string]any),
		manifestDir:  manifestDir,
		log:          log.Named("registry"),
	}
}

// Register adds an implementation under a domain name. The value is probed
// for the Integration entry point at resolution time, mirroring how the
// host probes modules for their expected entry point.
func (r *Registry) Register(domain string, impl any) error {
	if domain == "" {
		return fmt.Errorf("plugin: domain cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.integrations[domain]; exists {
		return fmt.Errorf("plugin: domain %q already registered", domain)
	}
	r.integrations[domain] = impl
	return nil
}

// Has reports whether a module is available under the given name.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.integrations[name]
	return ok
}

// Domains returns the registered domain names, sorted.
func (r *Registry) Domains() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.integrations))
	for d := range r.integrations {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

// Resolution is the outcome of resolving a domain for setup. Failure is
// empty on success; otherwise it carries the classification reported in
// setup_failed, with Detail as the human-readable reason.
type Resolution struct {
	Integration    Integration
	Manifest       *Manifest
	Failure        protocol.ErrorType
	Detail         string
	MissingPackage string
}

// OK reports whether resolution succeeded.
func (res Resolution) OK() bool { return res.Failure == "" }

// Resolve locates the integration for a domain and classifies any failure
// explicitly:
//
//	no manifest and no registered implementation → integration_not_found
//	manifest unreadable or invalid               → import_error
//	manifest requires an unavailable module      → missing_dependency
//	module present but no entry point            → invalid_integration
func (r *Registry) Resolve(domain string) Resolution {
	manifest, err := LoadManifest(r.manifestDir, domain)
	if err != nil && errors.Is(err, ErrNoManifest) {
		manifest, err = nil, nil
	}

	r.mu.RLock()
	impl, registered := r.integrations[domain]
	r.mu.RUnlock()

	if manifest == nil && err == nil && !registered {
		return Resolution{
			Failure: protocol.ErrIntegrationNotFound,
			Detail:  fmt.Sprintf("integration %q not found in plugin registry", domain),
		}
	}
	if err != nil {
		r.log.Error("manifest import failed", zap.String("domain", domain), zap.Error(err))
		return Resolution{
			Failure: protocol.ErrImportError,
			Detail:  fmt.Sprintf("failed to import integration %q: %v", domain, err),
		}
	}

	if manifest != nil {
		for _, req := range manifest.Requires {
			if req == domain || r.Has(req) {
				continue
			}
			return Resolution{
				Failure:        protocol.ErrMissingDependency,
				Detail:         fmt.Sprintf("integration %q requires module %q which is not available", domain, req),
				MissingPackage: req,
			}
		}
	}

	if !registered {
		return Resolution{
			Failure: protocol.ErrInvalidIntegration,
			Detail:  fmt.Sprintf("integration %q has no registered implementation for its manifest", domain),
		}
	}
	integ, ok := impl.(Integration)
	if !ok {
		return Resolution{
			Failure: protocol.ErrInvalidIntegration,
			Detail:  fmt.Sprintf("integration %q has no setup entry point", domain),
		}
	}

	return Resolution{Integration: integ, Manifest: manifest}
}
