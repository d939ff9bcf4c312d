// SPDX-FileCopyrightText: 2021 The Go Language Server Authors
// SPDX-License-Identifier: BSD-3-Clause

package rpcbridge

import "reflect"

// ObjectMatch scores how well a JSON node matches a target Go type during
// overload resolution (§3, §4.F). Lower is better; -1 is exact.
type ObjectMatch int

const (
	// MatchExact means the JSON shape and the target type line up with no
	// coercion needed (e.g. a JSON number into a float64).
	MatchExact ObjectMatch = -1
	// MatchCompatible means a coercion is required but safe (e.g. a JSON
	// number into an int, or a numeric string into an int).
	MatchCompatible ObjectMatch = 0
)

// worse returns the larger (weaker) of two matches, per §4.F step 3 ("max
// of two matches is the worse of the two").
func worse(a, b ObjectMatch) ObjectMatch {
	if a > b {
		return a
	}
	return b
}

// Codec converts between native Go values and Value trees (§4.A-C). Each
// codec declares, via a Registry entry, which native kinds and which JSON
// Kinds it claims; choosing the codec for a pairing is the Registry's job
// (see lookup below), not the codec's.
type Codec interface {
	// TryUnmarshal is a cheap compatibility check used by overload
	// resolution (§4.F). It must not mutate state beyond recording the
	// node for cycle detection and must not materialize heavyweight
	// values. ok is false (UNMARSHAL_MISMATCH) when the codec cannot
	// possibly produce target from node.
	TryUnmarshal(state *SerializerState, target reflect.Type, node *Value) (m ObjectMatch, ok bool)

	// Unmarshal actually constructs the native value. It returns an
	// UNMARSHAL_BAD_VALUE-flavored *Error on conversion failure.
	Unmarshal(state *SerializerState, target reflect.Type, node *Value) (reflect.Value, error)

	// Marshal produces a Value for a native value already known to match
	// this codec. It returns a MARSHAL_UNSUPPORTED-flavored *Error if
	// asked to marshal something it turns out not to support after all.
	Marshal(state *SerializerState, path Path, native reflect.Value) (*Value, error)
}

// Registry indexes codecs by the native type and/or JSON shape they claim,
// and dispatches TryUnmarshal/Unmarshal/Marshal (§4.B). It is populated at
// construction and treated as immutable thereafter, so reads need no lock
// (§5 "Codec registry ... treated as immutable thereafter; reads are
// lock-free").
type Registry struct {
	// byType matches an exact reflect.Type to its marshal codec; checked
	// before falling back to byKind so user-registered bean types win over
	// the generic struct codec.
	byType map[reflect.Type]Codec
	// byKind is consulted for marshal when byType has no exact hit; the
	// key is the native value's reflect.Kind.
	byKind map[reflect.Kind]Codec
	// fallback handles struct/interface/pointer kinds not covered above
	// (the bean codec) and is tried last for both directions.
	fallback Codec
	// refs, when set, lets Reference/CallableReference classification
	// (§4.C) preempt the normal byType/byKind lookup.
	refs ReferenceHost
	// beanClasses resolves a wire javaClass hint to a concrete registered
	// struct type, keyed the same way javaClassName names a type on the
	// wire, so the bean codec can honor an incoming javaClass override
	// (§4.A-C "may override the static target").
	beanClasses map[string]reflect.Type
}

// NewRegistry builds the registry with the built-in codecs from §4.C
// wired in. Callers may append further codecs with RegisterType before
// first use; the registry is not safe to mutate concurrently with bridge
// dispatch once serving traffic.
func NewRegistry() *Registry {
	r := &Registry{
		byType: make(map[reflect.Type]Codec),
		byKind: make(map[reflect.Kind]Codec),
	}
	registerBuiltins(r)
	return r
}

// RegisterType binds codec as the marshal/unmarshal codec for exactly
// native type t (e.g. time.Time, or a user value type).
func (r *Registry) RegisterType(t reflect.Type, codec Codec) {
	r.byType[t] = codec
}

// RegisterKind binds codec as the marshal/unmarshal codec for every native
// value of reflect.Kind k that has no more specific byType entry.
func (r *Registry) RegisterKind(k reflect.Kind, codec Codec) {
	r.byKind[k] = codec
}

// SetFallback installs the catch-all codec (the bean codec in this
// module) used when no byType/byKind entry applies.
func (r *Registry) SetFallback(codec Codec) { r.fallback = codec }

// RegisterBeanClass makes t resolvable by name (javaClassName(t)) as a
// javaClass override target for the bean codec: an incoming object whose
// static field/param type is an interface, but whose JSON carries
// {"javaClass": "<name>", ...}, unmarshals into t instead of failing.
// Concrete-to-concrete overrides are never honored -- Go structs have no
// structural subtyping, so the only sound override target is an
// interface the registered type implements.
func (r *Registry) RegisterBeanClass(t reflect.Type) {
	if r.beanClasses == nil {
		r.beanClasses = make(map[string]reflect.Type)
	}
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	r.beanClasses[javaClassName(t)] = t
}

// beanClassByName looks up a previously registered bean class by its
// javaClassName.
func (r *Registry) beanClassByName(name string) (reflect.Type, bool) {
	t, ok := r.beanClasses[name]
	return t, ok
}

// lookup finds the codec responsible for target, consulting byType, then
// the enum check, then byKind, then the fallback (§4.A-C
// "canSerialize(nativeClass, jsonClass) returns true iff the codec is a
// match").
func (r *Registry) lookup(t reflect.Type) Codec {
	if t == nil {
		return r.fallback
	}
	if c, ok := r.byType[t]; ok {
		return c
	}
	// Enum-by-name (§4.A-C) is interface-based rather than kind-keyed, so
	// it must preempt byKind -- otherwise e.g. a "type Color int" enum
	// would be claimed by the plain int codec first.
	if _, ok := asEnumParser(t); ok {
		return enumCodec{}
	}
	if c, ok := r.byKind[t.Kind()]; ok {
		return c
	}
	return r.fallback
}

// isBoxablePointer reports whether t is a pointer type with no
// codec registered for the exact pointer type itself (i.e. not a
// Reference/CallableReference class and not *Value raw pass-through) --
// those cases are handled by their own codec and must not be unwrapped
// generically. Everything else that is a pointer is treated as a "boxed"
// nullable value per §4.A-C ("null is compatible with reference types and
// boxed numbers").
func (r *Registry) isBoxablePointer(t reflect.Type) bool {
	if t.Kind() != reflect.Ptr {
		return false
	}
	if _, explicit := r.byType[t]; explicit {
		return false
	}
	if r.refs != nil {
		if _, ok := r.refs.ClassifyReference(t); ok {
			return false
		}
	}
	return true
}

// TryUnmarshal finds the codec for target and asks it for a match score;
// ok is false when no codec claims the pairing at all.
func (r *Registry) TryUnmarshal(state *SerializerState, target reflect.Type, node *Value) (ObjectMatch, bool) {
	if _, _, ok := isReferenceShape(node); ok && r.refs != nil {
		return referenceCodec{host: r.refs}.TryUnmarshal(state, target, node)
	}
	if r.isBoxablePointer(target) {
		if node.IsNull() {
			return MatchExact, true
		}
		return r.TryUnmarshal(state, target.Elem(), node)
	}
	c := r.lookup(target)
	if c == nil {
		return 0, false
	}
	return c.TryUnmarshal(state, target, node)
}

// Unmarshal finds the codec for target and constructs the native value.
func (r *Registry) Unmarshal(state *SerializerState, target reflect.Type, node *Value) (reflect.Value, error) {
	if _, _, ok := isReferenceShape(node); ok && r.refs != nil {
		return referenceCodec{host: r.refs}.Unmarshal(state, target, node)
	}
	if r.isBoxablePointer(target) {
		if node.IsNull() {
			return reflect.Zero(target), nil
		}
		inner, err := r.Unmarshal(state, target.Elem(), node)
		if err != nil {
			return reflect.Value{}, err
		}
		ptr := reflect.New(target.Elem())
		ptr.Elem().Set(inner)
		return ptr, nil
	}
	c := r.lookup(target)
	if c == nil {
		return reflect.Value{}, errUnmarshal("no codec registered for %s", target)
	}
	return c.Unmarshal(state, target, node)
}

// Marshal finds the codec for native's type and produces a Value.
func (r *Registry) Marshal(state *SerializerState, path Path, native reflect.Value) (*Value, error) {
	if !native.IsValid() {
		return Null(), nil
	}
	if r.refs != nil {
		t := native.Type()
		if _, ok := r.refs.ClassifyReference(t); ok {
			return referenceCodec{host: r.refs}.Marshal(state, path, native)
		}
	}
	if r.isBoxablePointer(native.Type()) {
		if native.IsNil() {
			return Null(), nil
		}
		// Identity/cycle tracking must happen on the pointer itself, not on
		// the dereferenced value handed to the element codec below: Go's
		// struct-by-value semantics mean a *T is the only thing that can
		// actually be shared or cyclic, so EnterNode belongs here rather
		// than inside the bean/struct codec (which never sees the pointer).
		fresh, leave, err := state.EnterNode(native, path)
		if err != nil {
			return nil, err
		}
		defer leave()
		if !fresh {
			return Null(), nil
		}
		return r.Marshal(state, path, native.Elem())
	}
	c := r.lookup(native.Type())
	if c == nil {
		return nil, errMarshal("no codec registered for %s", native.Type())
	}
	return c.Marshal(state, path, native)
}
