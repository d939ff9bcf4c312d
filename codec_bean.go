// SPDX-FileCopyrightText: 2021 The Go Language Server Authors
// SPDX-License-Identifier: BSD-3-Clause

package rpcbridge

import (
	"reflect"

	"github.com/mitchellh/mapstructure"
)

// beanCodec is the catch-all "bean" codec (§4.A-C): it enumerates a
// struct's exported fields, marshals each non-nil value recursively
// (nulls are skipped on the wire to keep it compact), and unmarshals by
// decoding the JSON object into the struct's fields with
// github.com/mitchellh/mapstructure, the same decode-a-map-into-a-struct
// shape hector's config loader uses. Unknown JSON keys are ignored,
// mirroring the spec's bean codec.
//
// Per §9's Open Question, all non-null field values are serialized
// faithfully -- including zero values like 0, "", and false -- rather
// than the legacy "falsy means absent" behavior, which the spec calls out
// as a likely bug.
type beanCodec struct {
	registry *Registry
}

// javaClassField is the JSON key used to resolve an explicit "javaClass"
// hint on an incoming object to a concrete registered type (§4.A-C "a
// javaClass hint in the JSON object ... may override the static target").
const javaClassField = "javaClass"

// resolveHint reads node's javaClass hint, if any, and resolves it
// against the registry's bean class table. It only ever returns a type
// when the hint is actually usable as target: either target is an
// interface the resolved type implements (the override case), or the
// resolved type is target itself (a no-op hint on an already-concrete
// field, which is the common case when a value just echoes its own
// class name back).
func (c beanCodec) resolveHint(target reflect.Type, node *Value) (reflect.Type, bool) {
	hint, ok := node.Get(javaClassField)
	if !ok || hint.Kind != KindString {
		return nil, false
	}
	resolved, ok := c.registry.beanClassByName(hint.Str)
	if !ok {
		return nil, false
	}
	if target.Kind() == reflect.Interface {
		if !resolved.Implements(target) {
			return nil, false
		}
		return resolved, true
	}
	if resolved == target {
		return resolved, true
	}
	return nil, false
}

func (c beanCodec) TryUnmarshal(_ *SerializerState, target reflect.Type, node *Value) (ObjectMatch, bool) {
	if node.IsNull() {
		return MatchExact, target.Kind() == reflect.Ptr || target.Kind() == reflect.Interface
	}
	if node.Kind != KindObject {
		return 0, false
	}
	// A bean is always at least a compatible match for a struct-shaped
	// target; field-level mismatches surface during Unmarshal, matching
	// the teacher's pattern of doing the cheap shape check in
	// TryUnmarshal and the expensive work in Unmarshal.
	t := target
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Kind() == reflect.Struct {
		return MatchCompatible, true
	}
	if t.Kind() == reflect.Interface {
		if _, ok := c.resolveHint(t, node); ok {
			return MatchCompatible, true
		}
	}
	return 0, false
}

func (c beanCodec) Unmarshal(state *SerializerState, target reflect.Type, node *Value) (reflect.Value, error) {
	if node.IsNull() {
		return reflect.Zero(target), nil
	}

	isPtr := target.Kind() == reflect.Ptr
	structType := target
	if isPtr {
		structType = target.Elem()
	}
	if resolved, ok := c.resolveHint(structType, node); ok {
		structType = resolved
	}
	if structType.Kind() != reflect.Struct {
		return reflect.Value{}, errUnmarshal("bean codec cannot target %s", target)
	}

	raw := valueToNative(node)
	instance := reflect.New(structType)

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           instance.Interface(),
		TagName:          "json",
		WeaklyTypedInput: true,
		ErrorUnused:      false,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeHookFunc("2006-01-02T15:04:05Z07:00"),
		),
	})
	if err != nil {
		return reflect.Value{}, errUnmarshal("building bean decoder for %s: %v", structType, err)
	}
	if err := decoder.Decode(raw); err != nil {
		return reflect.Value{}, errUnmarshal("decoding %s: %v", structType, err)
	}

	state.RememberMaterialized(node, instance)
	if isPtr {
		return instance, nil
	}
	return instance.Elem(), nil
}

// Marshal never sees duplicate/cyclic identity directly: a *T's identity is
// tracked one level up, where Registry.Marshal unwraps the boxable pointer
// (see codec.go), since Go's by-value struct semantics mean only the
// pointer -- never the dereferenced struct value -- can actually be shared.
func (c beanCodec) Marshal(state *SerializerState, path Path, native reflect.Value) (*Value, error) {
	rv := native
	for rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return Null(), nil
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return nil, errMarshal("bean codec cannot marshal %s", native.Type())
	}

	obj := Object()
	t := rv.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if field.PkgPath != "" {
			continue // unexported, not a public property
		}
		name := field.Name
		if tag, ok := field.Tag.Lookup("json"); ok && tag != "" && tag != "-" {
			name = tagName(tag)
		}
		fv := rv.Field(i)
		if isNilish(fv) {
			continue // §9: skip nulls to keep the wire compact; zero values are still emitted
		}
		fieldPath := append(clonePath(path), fieldToken(name))
		marshaled, err := c.registry.Marshal(state, fieldPath, fv)
		if err != nil {
			return nil, err
		}
		obj.Set(name, marshaled)
	}
	return obj, nil
}

func tagName(tag string) string {
	for i, r := range tag {
		if r == ',' {
			return tag[:i]
		}
	}
	return tag
}

func isNilish(rv reflect.Value) bool {
	switch rv.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Map, reflect.Slice, reflect.Chan, reflect.Func:
		return rv.IsNil()
	default:
		return false
	}
}

// valueToNative converts a Value tree into the plain map[string]interface{}
// / []interface{} / scalar shape mapstructure.Decode expects as input.
func valueToNative(v *Value) interface{} {
	switch v.Kind {
	case KindNull:
		return nil
	case KindBool:
		return v.Bool
	case KindNumber:
		return v.Number
	case KindString:
		return v.Str
	case KindArray:
		out := make([]interface{}, len(v.Elems))
		for i, e := range v.Elems {
			out[i] = valueToNative(e)
		}
		return out
	case KindObject:
		out := make(map[string]interface{}, len(v.Fields))
		for _, k := range v.Fields {
			out[k] = valueToNative(v.Members[k])
		}
		return out
	default:
		return nil
	}
}
