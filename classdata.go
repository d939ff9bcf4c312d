// SPDX-FileCopyrightText: 2021 The Go Language Server Authors
// SPDX-License-Identifier: BSD-3-Clause

package rpcbridge

import (
	"reflect"
	"sync"
)

// MethodKey identifies an overload set within a ClassData: a method name
// plus its full (native) arity, before any context-resolved parameters are
// stripped by the local-arg controller (§4.G). Collisions under this key
// are overloads and are kept together as a slice.
type MethodKey struct {
	Name  string
	Arity int
}

// Method is one reflectively-discovered candidate for a MethodKey.
type Method struct {
	// Func is the unbound method, as returned by reflect.Type.Method: its
	// Func.Type has the receiver as In(0).
	Func reflect.Method
	// ArgTypes are the method's in-arg types, receiver excluded.
	ArgTypes []reflect.Type
}

// ClassData is the cached reflective description of a Go type (§4.E): its
// public method set, keyed by (name, arity) so overloads share an entry.
// Go has no separate "static method" concept; a type registered via
// Bridge.RegisterClass is invoked against a fresh zero value of that type
// rather than a caller-supplied instance, so the same method set doubles
// as both methodMap and staticMethodMap from the spec's original split --
// which table a call resolved through (objectMap vs classMap) decides the
// receiver, not the method lookup itself.
type ClassData struct {
	methods map[MethodKey][]Method
}

// Lookup returns the overload set for (name, arity), or ok=false if none.
func (cd *ClassData) Lookup(name string, arity int) ([]Method, bool) {
	ms, ok := cd.methods[MethodKey{Name: name, Arity: arity}]
	return ms, ok
}

// Names returns every exposed method name, deduplicated, for
// system.listMethods (§4.I).
func (cd *ClassData) Names() []string {
	seen := make(map[string]struct{}, len(cd.methods))
	var out []string
	for k := range cd.methods {
		if _, ok := seen[k.Name]; ok {
			continue
		}
		seen[k.Name] = struct{}{}
		out = append(out, k.Name)
	}
	return out
}

// AllMethods returns every reflectively-discovered Method across every
// overload set, in no particular order -- used by callers (the verbose
// system.listMethods path, HasMethod) that need to re-derive arity
// through the local-arg controller rather than trust the native
// MethodKey, since native arity includes context-resolved parameters
// that never appear on the wire (§4.G).
func (cd *ClassData) AllMethods() []Method {
	out := make([]Method, 0, len(cd.methods))
	for _, ms := range cd.methods {
		out = append(out, ms...)
	}
	return out
}

var (
	classDataMu    sync.Mutex
	classDataCache = make(map[reflect.Type]*ClassData)
)

// analyzeClass builds the ClassData for t, consulting (and populating) the
// process-wide memo. The memo is populate-once: concurrent callers may both
// compute a ClassData for the same type, but only the first result is kept,
// matching vanadium's reflectRegistry.set ("this race is benign; the info
// for a given type never changes").
func analyzeClass(t reflect.Type) *ClassData {
	classDataMu.Lock()
	if cd, ok := classDataCache[t]; ok {
		classDataMu.Unlock()
		return cd
	}
	classDataMu.Unlock()

	cd := buildClassData(t)

	classDataMu.Lock()
	if existing, ok := classDataCache[t]; ok {
		cd = existing
	} else {
		classDataCache[t] = cd
	}
	classDataMu.Unlock()
	return cd
}

func buildClassData(t reflect.Type) *ClassData {
	methods := make(map[MethodKey][]Method)
	for i := 0; i < t.NumMethod(); i++ {
		m := t.Method(i)
		if m.PkgPath != "" {
			continue // unexported
		}
		mtype := m.Type
		argTypes := make([]reflect.Type, 0, mtype.NumIn()-1)
		for a := 1; a < mtype.NumIn(); a++ {
			argTypes = append(argTypes, mtype.In(a))
		}
		key := MethodKey{Name: m.Name, Arity: len(argTypes)}
		methods[key] = append(methods[key], Method{Func: m, ArgTypes: argTypes})
	}
	return &ClassData{methods: methods}
}

// classDataFor returns the ClassData for the type of instance, boxing a
// non-pointer value's type the same way reflect.TypeOf would -- callers
// pass either a live instance (object registration) or a zero value of a
// registered class (class registration).
func classDataFor(instance interface{}) *ClassData {
	return analyzeClass(reflect.TypeOf(instance))
}
