// Package plugin implements the protocol registry and dissector loading.
package plugin

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"firestige.xyz/pktkit/internal/core"
	"firestige.xyz/pktkit/internal/log"
	plugin "firestige.xyz/pktkit/pkg/plugin"
)

type registryKey struct {
	kind core.Kind
	code core.Code
}

type registryImpl struct {
	mu         sync.RWMutex
	sealed     atomic.Bool
	dissectors map[registryKey]plugin.Dissector // map[(kind, code)] = dissector
	names      map[string]plugin.Dissector      // map[protocolName] = last dissector registered under it
}

// NewRegistry returns an empty, unsealed registry.
func NewRegistry() *registryImpl {
	return &registryImpl{
		dissectors: make(map[registryKey]plugin.Dissector),
		names:      make(map[string]plugin.Dissector),
	}
}

func init() {
	plugin.SetRegistry(NewRegistry())
}

func (r *registryImpl) Register(kind core.Kind, code core.Code, d plugin.Dissector) error {
	if d == nil {
		return fmt.Errorf("nil dissector for %s/%d", kind, code)
	}
	if kind == "" {
		return fmt.Errorf("dissector '%s' registered with empty kind", d.Name())
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sealed.Load() {
		return fmt.Errorf("register %s/%d: %w", kind, code, core.ErrRegistrySealed)
	}

	k := registryKey{kind: kind, code: code}
	if prev, exists := r.dissectors[k]; exists && prev.Name() != d.Name() {
		log.GetLogger().WithFields(map[string]interface{}{
			"kind": kind,
			"code": code,
			"old":  prev.Name(),
			"new":  d.Name(),
		}).Debug("Dissector binding overridden")
	}
	r.dissectors[k] = d
	r.names[d.Name()] = d
	return nil
}

// Lookup is lock-free once the registry is sealed.
func (r *registryImpl) Lookup(kind core.Kind, code core.Code) (plugin.Dissector, bool) {
	if !r.sealed.Load() {
		r.mu.RLock()
		defer r.mu.RUnlock()
	}
	d, ok := r.dissectors[registryKey{kind: kind, code: code}]
	return d, ok
}

func (r *registryImpl) Dissector(name string) (plugin.Dissector, bool) {
	if !r.sealed.Load() {
		r.mu.RLock()
		defer r.mu.RUnlock()
	}
	d, ok := r.names[name]
	return d, ok
}

func (r *registryImpl) Entries() []plugin.Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries := make([]plugin.Descriptor, 0, len(r.dissectors))
	for k, d := range r.dissectors {
		entries = append(entries, plugin.Descriptor{Kind: k.kind, Code: k.code, Dissector: d})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Kind != entries[j].Kind {
			return entries[i].Kind < entries[j].Kind
		}
		return entries[i].Code < entries[j].Code
	})
	return entries
}

func (r *registryImpl) Seal() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sealed.Store(true)
}

func (r *registryImpl) Sealed() bool {
	return r.sealed.Load()
}

func (r *registryImpl) Clone() plugin.Registry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c := NewRegistry()
	for k, d := range r.dissectors {
		c.dissectors[k] = d
	}
	for name, d := range r.names {
		c.names[name] = d
	}
	return c
}
