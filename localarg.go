// SPDX-FileCopyrightText: 2021 The Go Language Server Authors
// SPDX-License-Identifier: BSD-3-Clause

package rpcbridge

import (
	"reflect"
	"sync"
)

// ContextResolver derives a parameter value from the transport context
// handed to Bridge.Call. It runs once per matching parameter per
// invocation, after overload resolution and before the method is called
// (§4.G, §4.I step 4 "inject context-resolved ones").
type ContextResolver func(ctx interface{}) (reflect.Value, error)

type localArgEntry struct {
	argType          reflect.Type
	contextInterface reflect.Type
	resolve          ContextResolver
}

// LocalArgRegistry is the process-wide mapping from a native parameter
// type to the resolver that supplies it from the transport context (§4.G).
// Parameters whose declared type is registered here are stripped from the
// wire signature entirely: the overload resolver never sees them, and the
// client never sends a value for that slot.
//
// Registration is keyed by (argType, contextInterface) rather than by
// argType alone, since two entry points serving different transports may
// want the same native parameter type resolved differently.
type LocalArgRegistry struct {
	mu      sync.RWMutex
	entries []localArgEntry
}

// NewLocalArgRegistry builds an empty registry. Most programs share the
// process-wide DefaultLocalArgs instead of constructing their own.
func NewLocalArgRegistry() *LocalArgRegistry {
	return &LocalArgRegistry{}
}

// DefaultLocalArgs is the process-wide registry consulted by Bridge
// instances that don't override it, mirroring the "process-wide mapping"
// language of §4.G.
var DefaultLocalArgs = NewLocalArgRegistry()

// Register binds argType to resolve whenever a method parameter of exactly
// that type appears and the active call's context implements
// contextInterface. contextInterface may be nil to match any context.
func (l *LocalArgRegistry) Register(argType, contextInterface reflect.Type, resolve ContextResolver) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, localArgEntry{argType: argType, contextInterface: contextInterface, resolve: resolve})
}

// IsContextResolved reports whether t would be stripped from the wire
// signature for some context, regardless of which context is actually in
// play -- used when building listMethods output, which must never include
// context-resolved parameters (§8 invariant).
func (l *LocalArgRegistry) IsContextResolved(t reflect.Type) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, e := range l.entries {
		if e.argType == t {
			return true
		}
	}
	return false
}

// Resolve finds the entry for t whose contextInterface is satisfied by
// ctx's dynamic type and runs its resolver. handled is false only when t
// is not registered as context-resolved at all, meaning it is an ordinary
// wire parameter for this call; once any entry names t, handled is always
// true (matching IsContextResolved, which strips t from the wire
// signature unconditionally), and a context that satisfies none of t's
// registered entries is reported as an error rather than silently treated
// as a wire parameter.
func (l *LocalArgRegistry) Resolve(t reflect.Type, ctx interface{}) (value reflect.Value, handled bool, err error) {
	l.mu.RLock()
	entries := append([]localArgEntry(nil), l.entries...)
	l.mu.RUnlock()

	ctxType := reflect.TypeOf(ctx)
	registered := false
	for _, e := range entries {
		if e.argType != t {
			continue
		}
		registered = true
		if e.contextInterface != nil {
			if ctxType == nil || !ctxType.Implements(e.contextInterface) {
				continue
			}
		}
		v, err := e.resolve(ctx)
		return v, true, err
	}
	if registered {
		return reflect.Value{}, true, errUnmarshal("no local-arg resolver for %s matches context %T", t, ctx)
	}
	return reflect.Value{}, false, nil
}
