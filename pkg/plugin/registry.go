package plugin

import (
	"fmt"

	"firestige.xyz/pktkit/internal/core"
)

// Descriptor is one (kind, code) → dissector binding.
type Descriptor struct {
	Kind      core.Kind
	Code      core.Code
	Dissector Dissector
}

func (d Descriptor) String() string {
	return fmt.Sprintf("%s/%d → %s", d.Kind, d.Code, d.Dissector.Name())
}

// Registry maps (kind, code) pairs to dissectors.
//
// Registration happens at setup time. Once sealed the registry is read-only
// and safe for concurrent lookups without locking.
type Registry interface {
	Lookuper
	// Register inserts or overwrites the binding for (kind, code).
	Register(kind core.Kind, code core.Code, d Dissector) error
	// Dissector finds a registered dissector by protocol name.
	Dissector(name string) (Dissector, bool)
	// Entries returns every binding sorted by kind then code.
	Entries() []Descriptor
	Seal()
	Sealed() bool
	// Clone returns an unsealed copy.
	Clone() Registry
}

var globalRegistry Registry

// SetRegistry installs the process-scoped registry.
func SetRegistry(r Registry) {
	globalRegistry = r
}

// Default returns the process-scoped registry, or nil before one is installed.
func Default() Registry {
	return globalRegistry
}

// Register binds a dissector in the process-scoped registry.
func Register(kind core.Kind, code core.Code, d Dissector) error {
	if globalRegistry == nil {
		return fmt.Errorf("registry not initialized")
	}
	return globalRegistry.Register(kind, code, d)
}

// Lookup resolves (kind, code) in the process-scoped registry.
func Lookup(kind core.Kind, code core.Code) (Dissector, bool) {
	if globalRegistry == nil {
		return nil, false
	}
	return globalRegistry.Lookup(kind, code)
}

// Entries lists the bindings of the process-scoped registry.
func Entries() []Descriptor {
	if globalRegistry == nil {
		return nil
	}
	return globalRegistry.Entries()
}
