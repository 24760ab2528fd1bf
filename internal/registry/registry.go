package registry

import (
	"fmt"
	"sort"
	"strings"
)

// Identity names one of the personas the bot can speak as. The set is fixed
// at startup; every identity stored in a session must resolve here.
type Identity string

const (
	Concierge        Identity = "ConciergeAgent"
	AzureVM          Identity = "AzureVMAgent"
	CatalogCreation  Identity = "CatalogCreationAgent"
	CatalogVariables Identity = "CatalogVariablesAgent"
)

// Context carries the per-turn inputs an instruction builder may use.
// Builders are pure functions of this value.
type Context struct {
	UserID      string
	DisplayName string
	TurnCount   int
}

// Descriptor is everything the orchestrator needs to know about one identity.
// Descriptors are read-only after Register; handoffs reference identities,
// never other descriptors.
type Descriptor struct {
	Identity     Identity
	Description  string
	Instructions func(Context) string
	Operations   []string
	Handoffs     []Identity
}

func (d Descriptor) PermitsOperation(name string) bool {
	for _, op := range d.Operations {
		if op == name {
			return true
		}
	}
	return false
}

func (d Descriptor) PermitsHandoff(target Identity) bool {
	for _, h := range d.Handoffs {
		if h == target {
			return true
		}
	}
	return false
}

var ErrUnknownIdentity = fmt.Errorf("unknown agent identity")

// ConfigurationError reports an invalid registry at startup. It never occurs
// during a turn.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "registry configuration: " + e.Reason
}

type Registry struct {
	defaultID   Identity
	descriptors map[Identity]Descriptor
}

func New(defaultID Identity) *Registry {
	return &Registry{
		defaultID:   defaultID,
		descriptors: map[Identity]Descriptor{},
	}
}

func (r *Registry) Register(d Descriptor) {
	r.descriptors[d.Identity] = d
}

// Resolve looks up the descriptor for an identity.
func (r *Registry) Resolve(id Identity) (Descriptor, error) {
	d, ok := r.descriptors[id]
	if !ok {
		return Descriptor{}, fmt.Errorf("%w: %q", ErrUnknownIdentity, id)
	}
	return d, nil
}

// ResolveOrDefault substitutes the default identity for anything the registry
// does not know, so a stale session entry degrades instead of failing a turn.
func (r *Registry) ResolveOrDefault(id Identity) (Identity, Descriptor) {
	if d, err := r.Resolve(id); err == nil {
		return id, d
	}
	d, _ := r.Resolve(r.defaultID)
	return r.defaultID, d
}

func (r *Registry) Default() Identity {
	return r.defaultID
}

func (r *Registry) Identities() []Identity {
	out := make([]Identity, 0, len(r.descriptors))
	for id := range r.descriptors {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Validate checks the registry is internally consistent: the default identity
// exists, every descriptor has instructions, and every handoff target is
// registered. Call once at startup; a non-nil error is fatal.
func (r *Registry) Validate() error {
	if strings.TrimSpace(string(r.defaultID)) == "" {
		return &ConfigurationError{Reason: "default identity is empty"}
	}
	if _, ok := r.descriptors[r.defaultID]; !ok {
		return &ConfigurationError{Reason: fmt.Sprintf("default identity %q is not registered", r.defaultID)}
	}
	for id, d := range r.descriptors {
		if d.Instructions == nil {
			return &ConfigurationError{Reason: fmt.Sprintf("identity %q has no instruction builder", id)}
		}
		for _, target := range d.Handoffs {
			if _, ok := r.descriptors[target]; !ok {
				return &ConfigurationError{Reason: fmt.Sprintf("identity %q hands off to unregistered %q", id, target)}
			}
		}
	}
	return nil
}
