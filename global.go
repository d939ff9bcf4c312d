// SPDX-FileCopyrightText: 2021 The Go Language Server Authors
// SPDX-License-Identifier: BSD-3-Clause

package rpcbridge

import "sync"

var (
	globalBridgeOnce sync.Once
	globalBridge     *Bridge
)

// GlobalBridge returns the process-wide bridge every session bridge
// delegates to (§4.J). It is lazily constructed on first use with no
// options; callers wanting a customized global bridge should build their
// own with NewBridge(nil, ...) and pass it explicitly to NewSessionBridge
// instead of relying on this package-level singleton -- the spec calls out
// "avoid implicit globals so tests can construct isolated instances" (§9),
// so GlobalBridge exists for convenience, not as the only path.
func GlobalBridge() *Bridge {
	globalBridgeOnce.Do(func() {
		globalBridge = NewBridge(nil)
	})
	return globalBridge
}

// NewSessionBridge builds a bridge scoped to one session/connection,
// delegating lookups to global (§4.J). Passing nil uses GlobalBridge().
func NewSessionBridge(global *Bridge, opts ...BridgeOption) *Bridge {
	if global == nil {
		global = GlobalBridge()
	}
	return NewBridge(global, opts...)
}
