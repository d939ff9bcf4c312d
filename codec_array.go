// SPDX-FileCopyrightText: 2021 The Go Language Server Authors
// SPDX-License-Identifier: BSD-3-Clause

package rpcbridge

import "reflect"

// arrayCodec handles native Go slices and arrays: it marshals element by
// element using the registry's recursive dispatch, preserving the
// component type on unmarshal (§4.A-C "Array codec"). It is registered
// for reflect.Slice and reflect.Array kinds.
type arrayCodec struct {
	registry *Registry
}

func (c arrayCodec) TryUnmarshal(state *SerializerState, target reflect.Type, node *Value) (ObjectMatch, bool) {
	if node.IsNull() {
		return 0, target.Kind() == reflect.Slice // nil slice is fine, nil array is not
	}
	// A container-wrapped {javaClass, list: [...]} shape is also accepted
	// for slice targets (§4.A-C "Unmarshalling honors the declared
	// javaClass... otherwise falls back").
	elems, ok := arrayElements(node)
	if !ok {
		return 0, false
	}
	elemType := target.Elem()
	worstMatch := MatchExact
	for _, e := range elems {
		m, ok := c.registry.TryUnmarshal(state, elemType, e)
		if !ok {
			return 0, false
		}
		worstMatch = worse(worstMatch, m)
	}
	return worstMatch, true
}

// arrayElements extracts the element list from either a bare JSON array or
// a container-wrapped {javaClass, list: [...]} object.
func arrayElements(node *Value) ([]*Value, bool) {
	switch node.Kind {
	case KindArray:
		return node.Elems, true
	case KindObject:
		if listNode, ok := node.Get("list"); ok && listNode.Kind == KindArray {
			return listNode.Elems, true
		}
	}
	return nil, false
}

func (c arrayCodec) Unmarshal(state *SerializerState, target reflect.Type, node *Value) (reflect.Value, error) {
	if node.IsNull() {
		return reflect.Zero(target), nil
	}
	elems, ok := arrayElements(node)
	if !ok {
		return reflect.Value{}, errUnmarshal("expected array, got %v", node.Kind)
	}
	elemType := target.Elem()

	var out reflect.Value
	switch target.Kind() {
	case reflect.Slice:
		out = reflect.MakeSlice(target, len(elems), len(elems))
	case reflect.Array:
		if len(elems) != target.Len() {
			return reflect.Value{}, errUnmarshal("array length mismatch: want %d, got %d", target.Len(), len(elems))
		}
		out = reflect.New(target).Elem()
	default:
		return reflect.Value{}, errUnmarshal("unsupported array target kind %s", target.Kind())
	}

	for i, e := range elems {
		v, err := c.registry.Unmarshal(state, elemType, e)
		if err != nil {
			return reflect.Value{}, errUnmarshal("element %d: %v", i, err)
		}
		out.Index(i).Set(v)
	}
	return out, nil
}

func (c arrayCodec) Marshal(state *SerializerState, path Path, native reflect.Value) (*Value, error) {
	fresh, leave, err := state.EnterNode(native, path)
	if err != nil {
		return nil, err
	}
	defer leave()
	if !fresh {
		return Null(), nil
	}

	out := Array()
	for i := 0; i < native.Len(); i++ {
		elemPath := append(clonePath(path), indexToken(i))
		v, err := c.registry.Marshal(state, elemPath, native.Index(i))
		if err != nil {
			return nil, err
		}
		out.Append(v)
	}
	return out, nil
}
