// SPDX-FileCopyrightText: 2021 The Go Language Server Authors
// SPDX-License-Identifier: BSD-3-Clause

package rpcbridge

import "reflect"

// ReferenceHost is implemented by a Bridge to let the reference codec
// classify native values and manage the handle <-> instance mapping
// described in §3/§4.C ("Reference/CallableReference codec").
type ReferenceHost interface {
	// ClassifyReference reports whether t is registered as a reference or
	// callable-reference class on this bridge. ok is false if t is plain.
	ClassifyReference(t reflect.Type) (callable bool, ok bool)

	// HandleFor returns the stable handle for rv, minting one on first
	// use, plus the wire javaClass name to report.
	HandleFor(rv reflect.Value) (handle int64, javaClass string)

	// ResolveHandle looks up the instance behind a handle. ok is false
	// (UNMARSHAL_STALE_HANDLE at the call site) if the handle is unknown
	// or its owning object has been unregistered.
	ResolveHandle(handle int64) (reflect.Value, bool)
}

const (
	jsonrpcTypeReference         = "Reference"
	jsonrpcTypeCallableReference = "CallableReference"
)

// referenceCodec implements the opaque-handle wire shape:
// {javaClass, objectID, JSONRPCType: "Reference"|"CallableReference"}
// (§4.A-C). It is consulted by Registry.Marshal/TryUnmarshal/Unmarshal
// ahead of the normal type-keyed codec lookup whenever a ReferenceHost is
// attached to the registry, since a reference class's instances are never
// expanded inline on the wire.
type referenceCodec struct {
	host ReferenceHost
}

func isReferenceShape(node *Value) (objectID int64, callable bool, ok bool) {
	if node == nil || node.Kind != KindObject {
		return 0, false, false
	}
	typeNode, hasType := node.Get("JSONRPCType")
	if !hasType || typeNode.Kind != KindString {
		return 0, false, false
	}
	idNode, hasID := node.Get("objectID")
	if !hasID || idNode.Kind != KindNumber {
		return 0, false, false
	}
	switch typeNode.Str {
	case jsonrpcTypeReference:
		return int64(idNode.Number), false, true
	case jsonrpcTypeCallableReference:
		return int64(idNode.Number), true, true
	default:
		return 0, false, false
	}
}

func (c referenceCodec) TryUnmarshal(_ *SerializerState, _ reflect.Type, node *Value) (ObjectMatch, bool) {
	if node.IsNull() {
		return MatchExact, true
	}
	if _, _, ok := isReferenceShape(node); ok {
		return MatchExact, true
	}
	return 0, false
}

func (c referenceCodec) Unmarshal(_ *SerializerState, target reflect.Type, node *Value) (reflect.Value, error) {
	if node.IsNull() {
		return reflect.Zero(target), nil
	}
	handle, _, ok := isReferenceShape(node)
	if !ok {
		return reflect.Value{}, errUnmarshal("expected reference object")
	}
	rv, found := c.host.ResolveHandle(handle)
	if !found {
		return reflect.Value{}, errStaleHandle("handle #%d is unknown or stale", handle)
	}
	if !rv.Type().AssignableTo(target) {
		return reflect.Value{}, errUnmarshal("handle #%d resolves to %s, not assignable to %s", handle, rv.Type(), target)
	}
	return rv, nil
}

func (c referenceCodec) Marshal(state *SerializerState, path Path, native reflect.Value) (*Value, error) {
	fresh, leave, err := state.EnterNode(native, path)
	if err != nil {
		return nil, err
	}
	defer leave()
	if !fresh {
		return Null(), nil
	}
	if native.Kind() == reflect.Ptr && native.IsNil() {
		return Null(), nil
	}

	callable, ok := c.host.ClassifyReference(native.Type())
	if !ok {
		return nil, errMarshal("%s is not a registered reference class", native.Type())
	}
	handle, javaClass := c.host.HandleFor(native)

	obj := Object()
	obj.Set("javaClass", String(javaClass))
	obj.Set("objectID", &Value{Kind: KindNumber, Number: float64(handle)})
	wireType := jsonrpcTypeReference
	if callable {
		wireType = jsonrpcTypeCallableReference
	}
	obj.Set("JSONRPCType", String(wireType))
	return obj, nil
}

// SetReferenceHost attaches the owning Bridge's reference bookkeeping to
// the registry. It must be called once, before the registry serves any
// traffic.
func (r *Registry) SetReferenceHost(host ReferenceHost) { r.refs = host }
