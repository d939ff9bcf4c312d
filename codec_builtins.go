// SPDX-FileCopyrightText: 2021 The Go Language Server Authors
// SPDX-License-Identifier: BSD-3-Clause

package rpcbridge

import (
	"math"
	"reflect"
	"strconv"
	"time"
)

func registerBuiltins(r *Registry) {
	r.RegisterKind(reflect.Bool, boolCodec{})
	r.RegisterKind(reflect.String, stringCodec{})

	num := numberCodec{}
	for _, k := range []reflect.Kind{
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64,
	} {
		r.RegisterKind(k, num)
	}

	r.RegisterType(reflect.TypeOf(time.Time{}), dateCodec{})
	r.RegisterType(reflect.TypeOf(&Value{}), rawCodec{})
	r.RegisterType(reflect.TypeOf(Value{}), rawCodec{})

	arr := arrayCodec{registry: r}
	r.RegisterKind(reflect.Slice, arr)
	r.RegisterKind(reflect.Array, arr)

	cont := containerCodec{registry: r}
	r.RegisterKind(reflect.Map, cont)
	r.RegisterType(reflect.TypeOf(&OrderedSet{}), cont)
	r.RegisterType(reflect.TypeOf(OrderedSet{}), cont)

	r.SetFallback(beanCodec{registry: r})
}

// boolCodec is a trivial pass-through (§4.A-C "Boolean, string, and raw
// JSON codecs are trivial pass-throughs").
type boolCodec struct{}

func (boolCodec) TryUnmarshal(_ *SerializerState, _ reflect.Type, node *Value) (ObjectMatch, bool) {
	// null is incompatible with an unboxed bool; a *bool target is
	// resolved to nil before ever reaching this codec (see the boxable
	// pointer handling in Registry.TryUnmarshal/Unmarshal).
	if node.Kind == KindBool {
		return MatchExact, true
	}
	return 0, false
}

func (boolCodec) Unmarshal(_ *SerializerState, target reflect.Type, node *Value) (reflect.Value, error) {
	if node.Kind != KindBool {
		return reflect.Value{}, errUnmarshal("expected boolean, got %v", node.Kind)
	}
	rv := reflect.New(target).Elem()
	rv.SetBool(node.Bool)
	return rv, nil
}

func (boolCodec) Marshal(_ *SerializerState, _ Path, native reflect.Value) (*Value, error) {
	return Bool(native.Bool()), nil
}

// stringCodec is a trivial pass-through.
type stringCodec struct{}

func (stringCodec) TryUnmarshal(_ *SerializerState, _ reflect.Type, node *Value) (ObjectMatch, bool) {
	if node.Kind == KindString {
		return MatchExact, true
	}
	return 0, false
}

func (stringCodec) Unmarshal(_ *SerializerState, target reflect.Type, node *Value) (reflect.Value, error) {
	if node.Kind != KindString {
		return reflect.Value{}, errUnmarshal("expected string, got %v", node.Kind)
	}
	rv := reflect.New(target).Elem()
	rv.SetString(node.Str)
	return rv, nil
}

func (stringCodec) Marshal(_ *SerializerState, _ Path, native reflect.Value) (*Value, error) {
	return String(native.String()), nil
}

// numberCodec implements §4.A-C's numeric widening rules: a JSON number is
// compatible with any native numeric type (exact if widths/kinds match,
// otherwise compatible); a JSON string that parses as the target numeric
// is compatible; null is incompatible with unboxed primitives (handled by
// the caller never offering null to a non-pointer numeric target).
type numberCodec struct{}

func isFloatKind(k reflect.Kind) bool { return k == reflect.Float32 || k == reflect.Float64 }

func isIntKind(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return true
	}
	return false
}

func isUintKind(k reflect.Kind) bool {
	switch k {
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return true
	}
	return false
}

func (numberCodec) TryUnmarshal(_ *SerializerState, target reflect.Type, node *Value) (ObjectMatch, bool) {
	switch node.Kind {
	case KindNumber:
		k := target.Kind()
		if isFloatKind(k) {
			if k == reflect.Float64 {
				return MatchExact, true
			}
			return MatchCompatible, true
		}
		if isIntKind(k) || isUintKind(k) {
			if node.Number == math.Trunc(node.Number) {
				return MatchCompatible, true
			}
			return 0, false // fractional value can't become an int
		}
		return 0, false
	case KindString:
		if _, err := strconv.ParseFloat(node.Str, 64); err == nil {
			return MatchCompatible, true
		}
		return 0, false
	default:
		return 0, false
	}
}

func (numberCodec) Unmarshal(_ *SerializerState, target reflect.Type, node *Value) (reflect.Value, error) {
	var f float64
	switch node.Kind {
	case KindNumber:
		f = node.Number
	case KindString:
		parsed, err := strconv.ParseFloat(node.Str, 64)
		if err != nil {
			return reflect.Value{}, errUnmarshal("string %q is not numeric: %v", node.Str, err)
		}
		f = parsed
	default:
		return reflect.Value{}, errUnmarshal("expected number, got %v", node.Kind)
	}

	rv := reflect.New(target).Elem()
	switch {
	case isFloatKind(target.Kind()):
		rv.SetFloat(f)
	case isIntKind(target.Kind()):
		rv.SetInt(int64(f))
	case isUintKind(target.Kind()):
		rv.SetUint(uint64(f))
	default:
		return reflect.Value{}, errUnmarshal("unsupported numeric target %s", target)
	}
	return rv, nil
}

func (numberCodec) Marshal(_ *SerializerState, _ Path, native reflect.Value) (*Value, error) {
	switch {
	case isFloatKind(native.Kind()):
		return Number(native.Float()), nil
	case isIntKind(native.Kind()):
		n := native.Int()
		return &Value{Kind: KindNumber, Number: float64(n), NumberRaw: strconv.FormatInt(n, 10)}, nil
	case isUintKind(native.Kind()):
		n := native.Uint()
		return &Value{Kind: KindNumber, Number: float64(n), NumberRaw: strconv.FormatUint(n, 10)}, nil
	default:
		return nil, errMarshal("unsupported numeric native %s", native.Type())
	}
}

// dateCodec marshals time.Time as {javaClass:"<date-type-name>",
// time:<epoch-millis>} and accepts the same shape back (§4.A-C).
type dateCodec struct{}

const dateJavaClass = "time.Time"

func (dateCodec) TryUnmarshal(_ *SerializerState, _ reflect.Type, node *Value) (ObjectMatch, bool) {
	if node.IsNull() {
		return MatchExact, true
	}
	if node.Kind != KindObject {
		return 0, false
	}
	if _, ok := node.Get("time"); !ok {
		return 0, false
	}
	return MatchExact, true
}

func (dateCodec) Unmarshal(_ *SerializerState, target reflect.Type, node *Value) (reflect.Value, error) {
	if node.IsNull() {
		return reflect.Zero(target), nil
	}
	millisNode, ok := node.Get("time")
	if !ok || millisNode.Kind != KindNumber {
		return reflect.Value{}, errUnmarshal("date object missing numeric %q field", "time")
	}
	t := time.UnixMilli(int64(millisNode.Number)).UTC()
	return reflect.ValueOf(t), nil
}

func (dateCodec) Marshal(_ *SerializerState, _ Path, native reflect.Value) (*Value, error) {
	t, ok := native.Interface().(time.Time)
	if !ok {
		return nil, errMarshal("expected time.Time, got %s", native.Type())
	}
	obj := Object()
	obj.Set("javaClass", String(dateJavaClass))
	millis := t.UnixMilli()
	obj.Set("time", &Value{Kind: KindNumber, Number: float64(millis), NumberRaw: strconv.FormatInt(millis, 10)})
	return obj, nil
}

// rawCodec is the raw-JSON pass-through codec (§4.A-C): it hands the
// already-parsed Value node straight to/from the caller without
// interpreting its shape, for parameters/fields typed as *Value.
type rawCodec struct{}

func (rawCodec) TryUnmarshal(_ *SerializerState, _ reflect.Type, _ *Value) (ObjectMatch, bool) {
	return MatchExact, true
}

func (rawCodec) Unmarshal(_ *SerializerState, target reflect.Type, node *Value) (reflect.Value, error) {
	if target.Kind() == reflect.Ptr {
		return reflect.ValueOf(node), nil
	}
	return reflect.ValueOf(*node), nil
}

func (rawCodec) Marshal(_ *SerializerState, _ Path, native reflect.Value) (*Value, error) {
	if native.Kind() == reflect.Ptr {
		if native.IsNil() {
			return Null(), nil
		}
		v, _ := native.Interface().(*Value)
		return v, nil
	}
	v, _ := native.Interface().(Value)
	return &v, nil
}
