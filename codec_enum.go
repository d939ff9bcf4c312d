// SPDX-FileCopyrightText: 2021 The Go Language Server Authors
// SPDX-License-Identifier: BSD-3-Clause

package rpcbridge

import "reflect"

// Enumerator is implemented by Go types standing in for the spec's
// "enum-by-name" codec (§4.A-C): Go has no native enum type, so a value
// opts into enum-by-name wire encoding by naming its members.
type Enumerator interface {
	// EnumName returns this value's wire name.
	EnumName() string
}

// EnumParser is implemented by a zero value of an Enumerator type to
// parse a wire name back into a member; it is looked up via
// reflect.New(target).Interface().
type EnumParser interface {
	Enumerator
	// ParseEnum returns the member named name, or ok=false if name is not
	// a valid member.
	ParseEnum(name string) (value interface{}, ok bool)
}

// enumCodec marshals an Enumerator as its wire name (a JSON string) and
// unmarshals a JSON string back into the member with that name via
// EnumParser, per §4.A-C "enum-by-name".
type enumCodec struct{}

func asEnumParser(t reflect.Type) (EnumParser, bool) {
	zero := reflect.New(t).Elem().Interface()
	parser, ok := zero.(EnumParser)
	return parser, ok
}

func (enumCodec) TryUnmarshal(_ *SerializerState, target reflect.Type, node *Value) (ObjectMatch, bool) {
	if node.Kind != KindString {
		return 0, false
	}
	parser, ok := asEnumParser(target)
	if !ok {
		return 0, false
	}
	if _, ok := parser.ParseEnum(node.Str); !ok {
		return 0, false
	}
	return MatchExact, true
}

func (enumCodec) Unmarshal(_ *SerializerState, target reflect.Type, node *Value) (reflect.Value, error) {
	if node.Kind != KindString {
		return reflect.Value{}, errUnmarshal("expected enum string, got %v", node.Kind)
	}
	parser, ok := asEnumParser(target)
	if !ok {
		return reflect.Value{}, errUnmarshal("%s does not implement EnumParser", target)
	}
	member, ok := parser.ParseEnum(node.Str)
	if !ok {
		return reflect.Value{}, errUnmarshal("%q is not a member of enum %s", node.Str, target)
	}
	return reflect.ValueOf(member), nil
}

func (enumCodec) Marshal(_ *SerializerState, _ Path, native reflect.Value) (*Value, error) {
	e, ok := native.Interface().(Enumerator)
	if !ok {
		return nil, errMarshal("%s does not implement Enumerator", native.Type())
	}
	return String(e.EnumName()), nil
}
