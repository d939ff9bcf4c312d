// SPDX-FileCopyrightText: 2021 The Go Language Server Authors
// SPDX-License-Identifier: BSD-3-Clause

package rpcbridge

import (
	"reflect"
	"sort"
)

// OrderedSet is the "set" container of §4.A-C: Go has no built-in set
// type, so this module provides one, backed by an insertion-ordered slice
// with O(1) membership via an internal index. It marshals to
// {javaClass, set: [...]} and round-trips through the same shape.
type OrderedSet struct {
	order []interface{}
	index map[interface{}]struct{}
}

// NewOrderedSet builds a set from the given elements, deduplicating and
// preserving first-seen order.
func NewOrderedSet(elems ...interface{}) *OrderedSet {
	s := &OrderedSet{index: make(map[interface{}]struct{})}
	for _, e := range elems {
		s.Add(e)
	}
	return s
}

// Add inserts v if not already present.
func (s *OrderedSet) Add(v interface{}) {
	if _, ok := s.index[v]; ok {
		return
	}
	s.index[v] = struct{}{}
	s.order = append(s.order, v)
}

// Has reports set membership.
func (s *OrderedSet) Has(v interface{}) bool {
	_, ok := s.index[v]
	return ok
}

// Elements returns the set's elements in insertion order.
func (s *OrderedSet) Elements() []interface{} { return append([]interface{}(nil), s.order...) }

// Len returns the number of elements.
func (s *OrderedSet) Len() int { return len(s.order) }

// containerCodec implements the map and set container shapes of §4.A-C:
// {javaClass:"<concrete-type-name>", map: {...}} or
// {javaClass:"<concrete-type-name>", set: [...]}. It is registered for
// reflect.Map and for *OrderedSet.
type containerCodec struct {
	registry *Registry
}

const (
	containerMapKey = "map"
	containerSetKey = "set"
)

func (c containerCodec) TryUnmarshal(state *SerializerState, target reflect.Type, node *Value) (ObjectMatch, bool) {
	if node.IsNull() {
		return MatchExact, true
	}
	if node.Kind != KindObject {
		return 0, false
	}

	switch {
	case target.Kind() == reflect.Map:
		payload, ok := node.Get(containerMapKey)
		if !ok || payload.Kind != KindObject {
			return 0, false
		}
		worstMatch := MatchExact
		for _, k := range payload.Fields {
			m, ok := c.registry.TryUnmarshal(state, target.Elem(), payload.Members[k])
			if !ok {
				return 0, false
			}
			worstMatch = worse(worstMatch, m)
		}
		return worstMatch, true

	case isOrderedSetType(target):
		payload, ok := node.Get(containerSetKey)
		if !ok || payload.Kind != KindArray {
			return 0, false
		}
		return MatchExact, true

	default:
		return 0, false
	}
}

func isOrderedSetType(t reflect.Type) bool {
	return t == reflect.TypeOf(&OrderedSet{}) || t == reflect.TypeOf(OrderedSet{})
}

func (c containerCodec) Unmarshal(state *SerializerState, target reflect.Type, node *Value) (reflect.Value, error) {
	if node.IsNull() {
		return reflect.Zero(target), nil
	}
	switch {
	case target.Kind() == reflect.Map:
		payload, ok := node.Get(containerMapKey)
		if !ok || payload.Kind != KindObject {
			return reflect.Value{}, errUnmarshal("expected container map payload")
		}
		out := reflect.MakeMapWithSize(target, len(payload.Fields))
		keyType, elemType := target.Key(), target.Elem()
		for _, k := range payload.Fields {
			keyVal, err := convertMapKey(keyType, k)
			if err != nil {
				return reflect.Value{}, err
			}
			elemVal, err := c.registry.Unmarshal(state, elemType, payload.Members[k])
			if err != nil {
				return reflect.Value{}, errUnmarshal("map key %q: %v", k, err)
			}
			out.SetMapIndex(keyVal, elemVal)
		}
		return out, nil

	case isOrderedSetType(target):
		payload, ok := node.Get(containerSetKey)
		if !ok || payload.Kind != KindArray {
			return reflect.Value{}, errUnmarshal("expected container set payload")
		}
		set := NewOrderedSet()
		for _, e := range payload.Elems {
			set.Add(nativeScalar(e))
		}
		return reflect.ValueOf(set), nil

	default:
		return reflect.Value{}, errUnmarshal("unsupported container target %s", target)
	}
}

func convertMapKey(keyType reflect.Type, key string) (reflect.Value, error) {
	if keyType.Kind() == reflect.String {
		rv := reflect.New(keyType).Elem()
		rv.SetString(key)
		return rv, nil
	}
	v, err := numberCodec{}.Unmarshal(nil, keyType, String(key))
	if err != nil {
		return reflect.Value{}, errUnmarshal("map key %q is not assignable to %s", key, keyType)
	}
	return v, nil
}

// nativeScalar converts a scalar Value into a plain interface{} for
// OrderedSet storage (sets only ever hold comparable scalars on the wire).
func nativeScalar(v *Value) interface{} {
	switch v.Kind {
	case KindBool:
		return v.Bool
	case KindNumber:
		return v.Number
	case KindString:
		return v.Str
	default:
		return nil
	}
}

func (c containerCodec) Marshal(state *SerializerState, path Path, native reflect.Value) (*Value, error) {
	fresh, leave, err := state.EnterNode(native, path)
	if err != nil {
		return nil, err
	}
	defer leave()
	if !fresh {
		return Null(), nil
	}

	switch native.Kind() {
	case reflect.Map:
		obj := Object()
		obj.Set("javaClass", String(native.Type().String()))
		payload := Object()
		keys := native.MapKeys()
		sort.Slice(keys, func(i, j int) bool {
			return keys[i].String() < keys[j].String()
		})
		for _, k := range keys {
			keyPath := append(clonePath(path), fieldToken(keyString(k)))
			v, err := c.registry.Marshal(state, keyPath, native.MapIndex(k))
			if err != nil {
				return nil, err
			}
			payload.Set(keyString(k), v)
		}
		obj.Set(containerMapKey, payload)
		return obj, nil

	default:
		set, ok := native.Interface().(*OrderedSet)
		if !ok {
			if s, ok2 := native.Interface().(OrderedSet); ok2 {
				set = &s
			} else {
				return nil, errMarshal("unsupported container native %s", native.Type())
			}
		}
		obj := Object()
		obj.Set("javaClass", String("OrderedSet"))
		arr := Array()
		for _, e := range set.Elements() {
			arr.Append(fromNative(e))
		}
		obj.Set(containerSetKey, arr)
		return obj, nil
	}
}

func keyString(rv reflect.Value) string {
	if rv.Kind() == reflect.String {
		return rv.String()
	}
	v, _ := numberCodec{}.Marshal(nil, nil, rv)
	if v == nil {
		return ""
	}
	return v.NumberRaw
}
