// SPDX-FileCopyrightText: 2021 The Go Language Server Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package rpcbridge is a reflective JSON-RPC bridge: it lets a remote peer
// invoke methods on server-side objects as if they were local, and returns
// server-side object graphs -- including cyclic ones -- as wire-safe trees
// the peer can reconstruct with identity preserved.
//
// The package has two halves that depend on each other. The Bridge
// (bridge.go, global.go) registers objects and classes, resolves an
// incoming method name to a concrete Go method via reflection and overload
// resolution (classdata.go, resolve.go), and dispatches the call. The codec
// framework (codec*.go, rpcvalue.go, graph.go) converts native Go values to
// and from the typed JSON tree that travels on the wire, tracking object
// identity so duplicate and cyclic references survive the round trip as
// fixups.
//
// Transport framing -- sockets, HTTP, gzip negotiation, session lookup --
// is deliberately not part of this package; see transportshell.go for the
// narrow contract a transport must satisfy to hand requests to a Bridge.
package rpcbridge
