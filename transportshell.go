// SPDX-FileCopyrightText: 2021 The Go Language Server Authors
// SPDX-License-Identifier: BSD-3-Clause

package rpcbridge

// Transport is the narrow contract a transport shell implements to hand
// decoded requests to a Bridge (§1 "Out of scope": HTTP framing, gzip
// negotiation, session lookup live here, not in this package). It mirrors
// the teacher's jsonrpc2.Stream in spirit -- read a message, write a
// message -- but at the level of already-decoded Value envelopes rather
// than wire bytes, since byte framing is exactly what's out of scope.
type Transport interface {
	// ReadRequest blocks for the next decoded request envelope and the
	// context value the Bridge should resolve local-arg parameters from.
	ReadRequest() (request *Value, ctx interface{}, err error)
	// WriteResponse writes a response envelope produced by Bridge.Call.
	WriteResponse(response *Value) error
	// Close releases any resources the transport holds.
	Close() error
}

// Serve drives one Transport to completion: it loops ReadRequest ->
// Bridge.Call -> WriteResponse until ReadRequest returns an error, then
// closes the transport. Each request runs synchronously in this
// goroutine; a transport wanting concurrent in-flight requests should call
// Bridge.Call directly from its own per-request goroutines instead of
// using Serve (§5 "each invocation is independent").
func Serve(b *Bridge, t Transport) error {
	defer t.Close()
	for {
		request, ctx, err := t.ReadRequest()
		if err != nil {
			return err
		}
		response := b.Call(ctx, request)
		if err := t.WriteResponse(response); err != nil {
			return err
		}
	}
}
