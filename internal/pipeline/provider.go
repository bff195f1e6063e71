package pipeline

import (
	"net/http"
	"sync"
	"time"

	"github.com/sells-group/prequal-cli/internal/config"
	"github.com/sells-group/prequal-cli/internal/model"
)

// DocumentPolicy decides how document download failures affect the stage.
type DocumentPolicy string

const (
	// PolicyAllOrNothing fails the stage on any single download failure.
	PolicyAllOrNothing DocumentPolicy = "all_or_nothing"
	// PolicyBestEffort logs and skips per-document failures; the stage fails
	// only when fewer than the configured minimum (default 1) succeeded out
	// of a non-empty reference set.
	PolicyBestEffort DocumentPolicy = "best_effort"
)

// BuildFunc turns a raw provider response body (and, for header-aware
// providers, the response headers) into bundled data. It must be pure:
// identical bodies yield identical resources.
type BuildFunc func(body []byte, header http.Header) (model.BundledData, error)

// Descriptor declares everything the pipeline needs to know about one
// external provider. Credentials and base URLs come from config; the shape
// knowledge lives here.
type Descriptor struct {
	// Name is the canonical provider identifier used in status maps and logs.
	Name string
	// Path is the endpoint template; the company identifier is substituted
	// for %s.
	Path string
	// ResponseKey is the top-level JSON key the provider contract promises.
	ResponseKey string
	// RequiresAuth makes the requester fail fast when no token is configured.
	RequiresAuth bool
	// Policy is the provider's built-in document failure policy; config may
	// override it.
	Policy DocumentPolicy
	// MinDocumentBytes rejects smaller downloads. Zero means the package
	// default.
	MinDocumentBytes int
	// Accepts lists permitted document formats ("pdf", "jpeg", "png").
	// Empty means PDF only.
	Accepts []string
	// ConnectTimeout/ReadTimeout bound document and resource fetches. Zero
	// means the package defaults (10s connect, 30s read).
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	// UseHeaders passes response headers into Build for the provider class
	// that versions its payloads via headers.
	UseHeaders bool
	// Build parses the response body.
	Build BuildFunc
}

// EffectivePolicy resolves the document policy, letting config override the
// built-in default so the policy is visible configuration, not an accident
// of control flow.
func (d Descriptor) EffectivePolicy(pc config.ProviderConfig) DocumentPolicy {
	switch DocumentPolicy(pc.DocumentPolicy) {
	case PolicyAllOrNothing, PolicyBestEffort:
		return DocumentPolicy(pc.DocumentPolicy)
	default:
		return d.Policy
	}
}

// Registry maps provider names to descriptors. New providers register; there
// is no subclassing.
type Registry struct {
	mu          sync.RWMutex
	descriptors map[string]Descriptor
}

// NewRegistry creates an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{descriptors: make(map[string]Descriptor)}
}

// Register adds or replaces a provider descriptor.
func (r *Registry) Register(d Descriptor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.descriptors[d.Name] = d
}

// Get returns a descriptor by name.
func (r *Registry) Get(name string) (Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.descriptors[name]
	return d, ok
}

// List returns all registered provider names.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.descriptors))
	for name := range r.descriptors {
		names = append(names, name)
	}
	return names
}
