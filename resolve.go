// SPDX-FileCopyrightText: 2021 The Go Language Server Authors
// SPDX-License-Identifier: BSD-3-Clause

package rpcbridge

import "reflect"

// wireArgTypes returns method's parameter types with any context-resolved
// slots (§4.G) removed, plus a parallel map from wire-position back to the
// original ArgTypes index, needed to re-inject context values at the right
// slots during invocation.
func wireArgTypes(m Method, localArgs *LocalArgRegistry) (wire []reflect.Type, wireToNative []int) {
	for i, t := range m.ArgTypes {
		if localArgs.IsContextResolved(t) {
			continue
		}
		wire = append(wire, t)
		wireToNative = append(wireToNative, i)
	}
	return wire, wireToNative
}

// resolveOverload implements §4.F: locate the overload set for (name,
// wire-arity), then, when more than one candidate survives arity
// filtering, score each by tryUnmarshal-per-parameter and break ties by
// specificity.
func resolveOverload(cd *ClassData, localArgs *LocalArgRegistry, registry *Registry, state *SerializerState, name string, params []*Value) (Method, []reflect.Type, error) {
	wireArity := len(params)

	// A method's native arity varies once context-resolved params are
	// excluded, so candidates can't be looked up by native arity alone;
	// scan every overload of this name and keep the ones whose wire arity
	// matches.
	var candidates []Method
	var candidateWireTypes [][]reflect.Type
	for key, ms := range cd.methods {
		if key.Name != name {
			continue
		}
		for _, m := range ms {
			wire, _ := wireArgTypes(m, localArgs)
			if len(wire) != wireArity {
				continue
			}
			candidates = append(candidates, m)
			candidateWireTypes = append(candidateWireTypes, wire)
		}
	}

	if len(candidates) == 0 {
		return Method{}, nil, errNoMethod("no method %q with %d argument(s)", name, wireArity)
	}
	if len(candidates) == 1 {
		return candidates[0], candidateWireTypes[0], nil
	}

	type scored struct {
		idx   int
		match ObjectMatch
	}
	var survivors []scored
	for i, wire := range candidateWireTypes {
		worstMatch := MatchExact
		ok := true
		for p, t := range wire {
			m, matchOK := registry.TryUnmarshal(state, t, params[p])
			if !matchOK {
				ok = false
				break
			}
			worstMatch = worse(worstMatch, m)
		}
		if ok {
			survivors = append(survivors, scored{idx: i, match: worstMatch})
		}
	}
	if len(survivors) == 0 {
		return Method{}, nil, errNoMethod("no overload of %q matches the given argument types", name)
	}

	best := survivors[0]
	var tied []scored
	for _, s := range survivors {
		switch {
		case s.match < best.match:
			best = s
			tied = []scored{s}
		case s.match == best.match:
			tied = append(tied, s)
		}
	}
	if len(tied) == 1 {
		return candidates[tied[0].idx], candidateWireTypes[tied[0].idx], nil
	}

	winner := tied[0]
	bestNarrower := -1
	for _, s := range tied {
		narrower := 0
		for _, other := range tied {
			if other.idx == s.idx {
				continue
			}
			if allAssignableFrom(candidateWireTypes[other.idx], candidateWireTypes[s.idx]) {
				narrower++
			}
		}
		if narrower > bestNarrower {
			bestNarrower = narrower
			winner = s
		}
	}
	return candidates[winner.idx], candidateWireTypes[winner.idx], nil
}

// allAssignableFrom reports whether every type in narrower is assignable
// to the corresponding type in wider, i.e. narrower is at least as
// specific at every parameter position (§4.F step 4 "this one is narrower").
func allAssignableFrom(wider, narrower []reflect.Type) bool {
	if len(wider) != len(narrower) {
		return false
	}
	for i := range wider {
		if !narrower[i].AssignableTo(wider[i]) {
			return false
		}
	}
	return true
}
