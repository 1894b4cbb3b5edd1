/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package bundle is the registry of code bundles that can be loaded into a simulated network.
//
// A bundle groups the flows and responders of one application under a name.
// Bundles register themselves, typically from an init function, and networks
// load them by name. A name that does not resolve prevents the network from starting.
package bundle

import (
	"sort"
	"sync"

	"github.com/pkg/errors"
	"google.golang.org/protobuf/proto"

	"github.com/hyperledger-labs/bnsim/pkg/flow"
)

// FlowFactory builds a flow from its (optional) arguments.
type FlowFactory func(args proto.Message) (flow.Flow, error)

// Bundle is a named collection of flows and responders.
type Bundle struct {
	Name       string
	Flows      map[string]FlowFactory
	Responders []flow.Responder
}

func (b *Bundle) validate() error {
	if b.Name == "" {
		return errors.Errorf("bundle has no name")
	}

	kinds := map[flow.Kind]struct{}{}
	for _, r := range b.Responders {
		if r.Kind == "" || r.New == nil {
			return errors.Errorf("bundle %s has an incomplete responder registration", b.Name)
		}
		if _, ok := kinds[r.Kind]; ok {
			return errors.Errorf("bundle %s registers kind %s twice", b.Name, r.Kind)
		}
		kinds[r.Kind] = struct{}{}
	}

	for name, factory := range b.Flows {
		if factory == nil {
			return errors.Errorf("bundle %s has no factory for flow %s", b.Name, name)
		}
	}

	return nil
}

// Registry maps bundle names to bundles. It is safe for concurrent use.
type Registry struct {
	mutex   sync.RWMutex
	bundles map[string]*Bundle
}

// Default is the registry used when none is configured explicitly.
var Default = NewRegistry()

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		bundles: map[string]*Bundle{},
	}
}

// Register adds b to the registry.
func (r *Registry) Register(b *Bundle) error {
	if err := b.validate(); err != nil {
		return err
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	if _, ok := r.bundles[b.Name]; ok {
		return errors.Errorf("bundle %s already registered", b.Name)
	}
	r.bundles[b.Name] = b
	return nil
}

// MustRegister is like Register but panics on error.
func (r *Registry) MustRegister(b *Bundle) {
	if err := r.Register(b); err != nil {
		panic(err)
	}
}

// Names returns the registered bundle names in sorted order.
func (r *Registry) Names() []string {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	names := make([]string, 0, len(r.bundles))
	for name := range r.bundles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Resolve looks up every name, failing on the first unknown one.
func (r *Registry) Resolve(names []string) (Set, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	set := make(Set, 0, len(names))
	loaded := map[string]struct{}{}
	for _, name := range names {
		b, ok := r.bundles[name]
		if !ok {
			return nil, errors.Errorf("bundle %s cannot be resolved", name)
		}
		if _, ok := loaded[name]; ok {
			continue
		}
		loaded[name] = struct{}{}
		set = append(set, b)
	}
	return set, nil
}

// Set is an ordered list of resolved bundles.
type Set []*Bundle

// Names returns the names of the bundles in the set.
func (s Set) Names() []string {
	names := make([]string, len(s))
	for i, b := range s {
		names[i] = b.Name
	}
	return names
}

// Flow returns the factory registered under name by the first bundle providing it.
func (s Set) Flow(name string) (FlowFactory, bool) {
	for _, b := range s {
		if factory, ok := b.Flows[name]; ok {
			return factory, true
		}
	}
	return nil, false
}

// Responder returns the responder for kind from the first bundle providing it.
func (s Set) Responder(kind flow.Kind) (flow.Responder, bool) {
	for _, b := range s {
		for _, r := range b.Responders {
			if r.Kind == kind {
				return r, true
			}
		}
	}
	return flow.Responder{}, false
}
