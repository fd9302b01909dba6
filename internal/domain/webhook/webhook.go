// Package webhook defines the inbound webhook sources that feed
// trigger events into the dispatch pipeline.
package webhook

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"

	"github.com/Strob0t/RuleForge/internal/domain/trigger"
)

// Scheme identifies how a source authenticates its deliveries.
type Scheme string

const (
	SchemeHMAC  Scheme = "hmac-sha256" // body signature, GitHub style
	SchemeToken Scheme = "token"       // static header token, GitLab style
)

// Source describes one accepted webhook sender. The secret is resolved
// from the environment at startup and never persisted.
type Source struct {
	Name            string // path segment under /webhooks/
	SignatureHeader string // header carrying the signature or token
	Scheme          Scheme
	Secret          string
	TriggerPrefix   string // prepended to the provider event kind
	EventHeader     string // header carrying the provider event kind
	DeliveryHeader  string // header carrying the provider delivery id
}

// TriggerName builds the trigger name for a provider event kind,
// e.g. a github source with kind "push" yields "github.push".
func (s Source) TriggerName(kind string) string {
	prefix := s.TriggerPrefix
	if prefix == "" {
		prefix = s.Name
	}
	if kind == "" {
		kind = "event"
	}
	return prefix + "." + kind
}

// Delivery is one inbound webhook delivery after transport handling:
// the adapter has already verified the signature and extracted the
// provider event kind and delivery id from the headers.
type Delivery struct {
	Source     string
	Kind       string // provider event kind, e.g. "push"
	DeliveryID string // provider delivery id, empty when not sent
	Body       []byte // raw JSON payload
}

// Event converts the delivery into a trigger event for src. A JSON
// object body becomes the event payload; any other body is kept whole
// under a "body" key so snippets can still reach it.
func (d Delivery) Event(src Source) trigger.Event {
	var payload map[string]any
	if len(d.Body) > 0 {
		if err := json.Unmarshal(d.Body, &payload); err != nil || payload == nil {
			payload = map[string]any{"body": string(d.Body)}
		}
	}
	ev := trigger.New(src.TriggerName(d.Kind), payload)
	ev.Source = src.Name
	return ev
}

// Hash returns the dedup key for the delivery: the provider's delivery
// id when present, else a digest of the body. Providers reuse the id
// on redelivery, so both paths collapse retries.
func (d Delivery) Hash() string {
	if d.DeliveryID != "" {
		return d.DeliveryID
	}
	sum := sha256.Sum256(d.Body)
	return hex.EncodeToString(sum[:])
}

// Registry holds the configured sources keyed by name.
type Registry struct {
	sources map[string]Source
}

// NewRegistry builds a registry from the given sources. Later entries
// with the same name replace earlier ones.
func NewRegistry(sources ...Source) *Registry {
	r := &Registry{sources: make(map[string]Source, len(sources))}
	for _, s := range sources {
		r.sources[s.Name] = s
	}
	return r
}

// Lookup returns the source registered under name.
func (r *Registry) Lookup(name string) (Source, bool) {
	s, ok := r.sources[name]
	return s, ok
}

// Names returns the registered source names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.sources))
	for name := range r.sources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
