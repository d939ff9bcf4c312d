// SPDX-FileCopyrightText: 2021 The Go Language Server Authors
// SPDX-License-Identifier: BSD-3-Clause

package rpcbridge

import "reflect"

// InvocationInfo is passed to every hook (§4.H): the transport context, the
// receiver instance (a freshly allocated zero value of the registered type
// for a class-bound call), the resolved method, and its unmarshaled
// arguments, context-resolved ones included.
type InvocationInfo struct {
	Context  interface{}
	Instance reflect.Value
	Method   Method
	Args     []reflect.Value
	Result   []reflect.Value // populated for post-invoke and error hooks only
	Err      error           // populated for error hooks only
}

// PreHook runs before invocation. A non-nil error aborts the call and
// becomes the invocation's error (§4.H "exceptions from pre/post propagate").
type PreHook func(info InvocationInfo) error

// PostHook runs after a successful invocation; same propagation rule as
// PreHook.
type PostHook func(info InvocationInfo) error

// ErrorHook runs when invocation fails for any reason. Its own errors are
// swallowed (§4.H, §7 "error hook callbacks are best-effort").
type ErrorHook func(info InvocationInfo)

type hookEntry struct {
	contextInterface reflect.Type
	pre               PreHook
	post              PostHook
	errHook           ErrorHook
}

// CallbackController holds the registered hooks and applies the
// contextInterface filter from §4.H ("Hooks are filtered to those whose
// declared contextInterface is assignable-from the context").
type CallbackController struct {
	hooks []hookEntry
}

// NewCallbackController builds an empty controller.
func NewCallbackController() *CallbackController {
	return &CallbackController{}
}

// RegisterPre adds a pre-invoke hook scoped to contextInterface (nil
// matches any context).
func (c *CallbackController) RegisterPre(contextInterface reflect.Type, hook PreHook) {
	c.hooks = append(c.hooks, hookEntry{contextInterface: contextInterface, pre: hook})
}

// RegisterPost adds a post-invoke hook scoped to contextInterface.
func (c *CallbackController) RegisterPost(contextInterface reflect.Type, hook PostHook) {
	c.hooks = append(c.hooks, hookEntry{contextInterface: contextInterface, post: hook})
}

// RegisterError adds an error hook scoped to contextInterface.
func (c *CallbackController) RegisterError(contextInterface reflect.Type, hook ErrorHook) {
	c.hooks = append(c.hooks, hookEntry{contextInterface: contextInterface, errHook: hook})
}

func (c *CallbackController) applies(e hookEntry, ctx interface{}) bool {
	if e.contextInterface == nil {
		return true
	}
	ctxType := reflect.TypeOf(ctx)
	return ctxType != nil && ctxType.Implements(e.contextInterface)
}

// RunPre runs every matching pre-invoke hook in registration order,
// returning the first error encountered.
func (c *CallbackController) RunPre(info InvocationInfo) error {
	for _, e := range c.hooks {
		if e.pre == nil || !c.applies(e, info.Context) {
			continue
		}
		if err := e.pre(info); err != nil {
			return err
		}
	}
	return nil
}

// RunPost runs every matching post-invoke hook, returning the first error.
func (c *CallbackController) RunPost(info InvocationInfo) error {
	for _, e := range c.hooks {
		if e.post == nil || !c.applies(e, info.Context) {
			continue
		}
		if err := e.post(info); err != nil {
			return err
		}
	}
	return nil
}

// RunError runs every matching error hook, swallowing any panic so one
// misbehaving hook cannot take down dispatch for an already-failed call.
func (c *CallbackController) RunError(info InvocationInfo) {
	for _, e := range c.hooks {
		if e.errHook == nil || !c.applies(e, info.Context) {
			continue
		}
		func() {
			defer func() { recover() }()
			e.errHook(info)
		}()
	}
}
