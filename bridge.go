// SPDX-FileCopyrightText: 2021 The Go Language Server Authors
// SPDX-License-Identifier: BSD-3-Clause

package rpcbridge

import (
	"fmt"
	"reflect"
	"runtime/debug"
	"sort"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/atomic"
	"go.uber.org/zap"
	"golang.org/x/xerrors"
)

var rtError = reflect.TypeOf((*error)(nil)).Elem()

// MethodDescription is the richer, optional per-method detail a registered
// object may contribute via RPCDescriber, surfaced by system.listMethods
// when called with {"verbose": true}. This is additive: callers that never
// pass verbose get the plain sorted name list the spec's listMethods
// always returned.
type MethodDescription struct {
	Name  string
	Arity int
}

// RPCDescriber may be implemented by a registered object to contribute
// MethodDescriptions beyond what reflection alone determines (arity is
// already known from ClassData; this exists for future doc/tag metadata
// without committing to a shape yet).
type RPCDescriber interface {
	RPCDescribe() []MethodDescription
}

// Bridge is the registration and dispatch unit of §4.I: one process-wide
// global plus any number of session-scoped bridges delegating to it
// (§4.J). It owns the registration tables, the handle counter, and the
// codec registry, and implements ReferenceHost for its own registry.
type Bridge struct {
	mu sync.RWMutex

	objectMap                map[string]reflect.Value
	classMap                 map[string]reflect.Type
	referenceClasses         map[reflect.Type]bool
	callableReferenceClasses map[reflect.Type]bool
	referenceMap             map[int64]reflect.Value
	referenceByAddr          map[uintptr]int64
	handleCounter            *atomic.Int64

	global *Bridge

	registry    *Registry
	localArgs   *LocalArgRegistry
	callbacks   *CallbackController
	logger      *zap.Logger
	allowCycles bool
}

// BridgeOption configures a Bridge at construction, mirroring the
// teacher's functional-options style (jsonrpc2.Options).
type BridgeOption func(*Bridge)

// WithLogger overrides the bridge's *zap.Logger (default zap.NewNop()).
func WithLogger(l *zap.Logger) BridgeOption {
	return func(b *Bridge) { b.logger = l }
}

// WithLocalArgRegistry overrides which LocalArgRegistry resolves
// context-resolved parameters (default DefaultLocalArgs).
func WithLocalArgRegistry(l *LocalArgRegistry) BridgeOption {
	return func(b *Bridge) { b.localArgs = l }
}

// WithCallbackController overrides the bridge's pre/post/error hooks.
func WithCallbackController(c *CallbackController) BridgeOption {
	return func(b *Bridge) { b.callbacks = c }
}

// WithAllowCycles controls whether marshal tolerates cycles via fixups
// (true, default) or rejects them with MARSHAL_ERROR (false); see scenario
// 3 of §8.
func WithAllowCycles(allow bool) BridgeOption {
	return func(b *Bridge) { b.allowCycles = allow }
}

// NewBridge builds a Bridge. global is nil for the process-wide global
// bridge itself, or a reference to it for a session-scoped bridge (§4.J).
func NewBridge(global *Bridge, opts ...BridgeOption) *Bridge {
	b := &Bridge{
		objectMap:                make(map[string]reflect.Value),
		classMap:                 make(map[string]reflect.Type),
		referenceClasses:         make(map[reflect.Type]bool),
		callableReferenceClasses: make(map[reflect.Type]bool),
		referenceMap:             make(map[int64]reflect.Value),
		referenceByAddr:          make(map[uintptr]int64),
		handleCounter:            atomic.NewInt64(0),
		global:                   global,
		localArgs:                DefaultLocalArgs,
		callbacks:                NewCallbackController(),
		logger:                   zap.NewNop(),
		allowCycles:              true,
	}
	for _, o := range opts {
		o(b)
	}
	b.registry = NewRegistry()
	b.registry.SetReferenceHost(b)
	return b
}

// IsGlobal reports whether this is the process-wide global bridge (as
// opposed to a session bridge holding a back-reference to one).
func (b *Bridge) IsGlobal() bool { return b.global == nil }

// Registry returns the codec registry this bridge dispatches through, so
// callers can register additional bean/enum types before serving traffic.
func (b *Bridge) Registry() *Registry { return b.registry }

// RegisterObject upserts instance under name (§4.I). If interfaceType is
// given, registration fails unless instance's type implements it.
func (b *Bridge) RegisterObject(name string, instance interface{}, interfaceType ...reflect.Type) error {
	rv := reflect.ValueOf(instance)
	if len(interfaceType) > 0 && interfaceType[0] != nil {
		it := interfaceType[0]
		if !rv.Type().Implements(it) {
			return errNameConflict("registerObject %q: %s does not implement %s", name, rv.Type(), it)
		}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.objectMap[name] = rv
	return nil
}

// RegisterClass idempotently binds name to class; a second registration
// under the same name with a different type fails NAME_CONFLICT (§4.I).
func (b *Bridge) RegisterClass(name string, class reflect.Type) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if existing, ok := b.classMap[name]; ok {
		if existing != class {
			return errNameConflict("registerClass %q: already bound to %s", name, existing)
		}
		return nil
	}
	b.classMap[name] = class
	return nil
}

// RegisterReference marks class as a reference class: instances are never
// expanded inline on the wire, only handed out as opaque handles.
// Forbidden on the global bridge (§4.I, §4.J).
func (b *Bridge) RegisterReference(class reflect.Type) error {
	if b.IsGlobal() {
		return errScopeError("registerReference is forbidden on the global bridge")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.referenceClasses[class] = true
	return nil
}

// RegisterCallableReference marks class as a callable-reference class:
// same handle treatment as RegisterReference, but the client may invoke
// methods on it via the ".obj#N.m" wire form. Forbidden on the global
// bridge.
func (b *Bridge) RegisterCallableReference(class reflect.Type) error {
	if b.IsGlobal() {
		return errScopeError("registerCallableReference is forbidden on the global bridge")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.callableReferenceClasses[class] = true
	return nil
}

// UnregisterObject removes name from objectMap, if present, and purges any
// referenceMap handle that pointed at the removed instance -- a stale
// handle is more useful to callers as an immediate UNMARSHAL_STALE_HANDLE
// than as a dangling reference to an object nothing can reach anymore.
func (b *Bridge) UnregisterObject(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	rv, ok := b.objectMap[name]
	if !ok {
		return
	}
	delete(b.objectMap, name)
	for h, v := range b.referenceMap {
		if sameInstance(v, rv) {
			delete(b.referenceMap, h)
		}
	}
	if addr, ok := identity(rv); ok {
		delete(b.referenceByAddr, addr)
	}
}

// UnregisterClass removes name from classMap, if present.
func (b *Bridge) UnregisterClass(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.classMap, name)
}

// UnregisterReference removes class from both the reference and
// callable-reference sets, if present.
func (b *Bridge) UnregisterReference(class reflect.Type) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.referenceClasses, class)
	delete(b.callableReferenceClasses, class)
}

// LookupObject checks this bridge's objectMap, then (for a session bridge)
// the global bridge's, exactly once (§4.J).
func (b *Bridge) LookupObject(name string) (reflect.Value, bool) {
	b.mu.RLock()
	rv, ok := b.objectMap[name]
	b.mu.RUnlock()
	if ok {
		return rv, true
	}
	if b.global != nil {
		return b.global.LookupObject(name)
	}
	return reflect.Value{}, false
}

// LookupClass checks this bridge's classMap, then the global bridge's.
func (b *Bridge) LookupClass(name string) (reflect.Type, bool) {
	b.mu.RLock()
	ct, ok := b.classMap[name]
	b.mu.RUnlock()
	if ok {
		return ct, true
	}
	if b.global != nil {
		return b.global.LookupClass(name)
	}
	return nil, false
}

// HasMethod reports whether name resolves (as an object or a class) on
// this bridge and exposes a method (methodName, arity). It is an admin-API
// convenience, never invoked from the wire.
func (b *Bridge) HasMethod(name, methodName string, arity int) bool {
	if rv, ok := b.LookupObject(name); ok {
		return classHasWireMethod(rv.Type(), methodName, arity, b.localArgs)
	}
	if ct, ok := b.LookupClass(name); ok {
		return classHasWireMethod(ct, methodName, arity, b.localArgs)
	}
	return false
}

// classHasWireMethod reports whether t exposes methodName at the given
// wire arity, i.e. arity after context-resolved parameters (§4.G) are
// stripped -- matching what a caller actually sees on the wire, not t's
// raw reflected method set.
func classHasWireMethod(t reflect.Type, methodName string, wireArity int, localArgs *LocalArgRegistry) bool {
	for _, m := range analyzeClass(t).AllMethods() {
		if m.Func.Name != methodName {
			continue
		}
		wire, _ := wireArgTypes(m, localArgs)
		if len(wire) == wireArity {
			return true
		}
	}
	return false
}

// ClassifyReference implements ReferenceHost. Reference/callable-reference
// registrations never delegate to the global bridge (§4.J), so only this
// bridge's own sets are consulted.
func (b *Bridge) ClassifyReference(t reflect.Type) (callable bool, ok bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.callableReferenceClasses[t] {
		return true, true
	}
	if b.referenceClasses[t] {
		return false, true
	}
	return false, false
}

// HandleFor implements ReferenceHost: it mints a handle on first sight of
// rv's identity and reuses it thereafter (§9 "handle identity across
// graphs"), tracked via an address index so repeated marshals of the same
// instance stay O(1).
func (b *Bridge) HandleFor(rv reflect.Value) (handle int64, javaClass string) {
	addr, hasIdentity := identity(rv)
	b.mu.Lock()
	defer b.mu.Unlock()
	if hasIdentity {
		if h, found := b.referenceByAddr[addr]; found {
			return h, javaClassName(rv.Type())
		}
	}
	h := b.handleCounter.Inc()
	b.referenceMap[h] = rv
	if hasIdentity {
		b.referenceByAddr[addr] = h
	}
	return h, javaClassName(rv.Type())
}

// ResolveHandle implements ReferenceHost. Handles are scoped to the bridge
// that minted them and do not delegate, matching the reference-set
// no-delegation rule of §4.J.
func (b *Bridge) ResolveHandle(handle int64) (reflect.Value, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	rv, ok := b.referenceMap[handle]
	return rv, ok
}

func sameInstance(a, b reflect.Value) bool {
	if a.Kind() != b.Kind() {
		return false
	}
	if addrA, ok := identity(a); ok {
		if addrB, ok := identity(b); ok {
			return addrA == addrB
		}
		return false
	}
	if !a.Type().Comparable() {
		return false
	}
	return a.Interface() == b.Interface()
}

func javaClassName(t reflect.Type) string {
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.String()
}

const handlePrefix = ".obj#"

// parseMethodSpec splits a request's method string per the §6 grammar:
// ".obj#<N>.<methodName>", "system.listMethods", or "<name>.<methodName>".
func parseMethodSpec(method string) (handle int64, hasHandle bool, name, methodName string, err error) {
	if strings.HasPrefix(method, handlePrefix) {
		rest := method[len(handlePrefix):]
		dot := strings.IndexByte(rest, '.')
		if dot < 0 {
			return 0, false, "", "", errParse("malformed handle method %q", method)
		}
		h, convErr := strconv.ParseInt(rest[:dot], 10, 64)
		if convErr != nil {
			return 0, false, "", "", errParse("malformed handle in method %q: %v", method, convErr)
		}
		return h, true, "", rest[dot+1:], nil
	}
	dot := strings.IndexByte(method, '.')
	if dot < 0 {
		return 0, false, "", "", errParse("malformed method %q", method)
	}
	return 0, false, method[:dot], method[dot+1:], nil
}

// listMethods returns the sorted, deduplicated union of every method name
// exposed by objects and classes registered on this bridge, plus (for a
// session bridge) the global bridge's (§4.I step 2, §8 invariant).
func (b *Bridge) listMethods() []string {
	names := make(map[string]struct{})
	b.mu.RLock()
	for _, rv := range b.objectMap {
		for _, n := range analyzeClass(rv.Type()).Names() {
			names[n] = struct{}{}
		}
	}
	for _, ct := range b.classMap {
		for _, n := range analyzeClass(ct).Names() {
			names[n] = struct{}{}
		}
	}
	b.mu.RUnlock()
	if b.global != nil {
		for _, n := range b.global.listMethods() {
			names[n] = struct{}{}
		}
	}
	out := make([]string, 0, len(names))
	for n := range names {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Call runs the full §4.I dispatch pipeline against a decoded request
// Value and returns the response envelope as a Value. It never returns a
// Go error for request-level failures: those are folded into the error
// envelope, per §7 "all errors within dispatch are recovered at the
// Bridge boundary." A request that cannot even be parsed into (id, method,
// params) gets an error envelope with a PARSE code.
func (b *Bridge) Call(ctx interface{}, request *Value) *Value {
	id, _ := request.Get("id")

	methodNode, ok := request.Get("method")
	if !ok || methodNode.Kind != KindString {
		return errorEnvelope(id, errParse("request missing method"))
	}
	paramsNode, ok := request.Get("params")
	if !ok || paramsNode.Kind != KindArray {
		return errorEnvelope(id, errParse("request missing params array"))
	}

	if fixupsNode, ok := request.Get("fixups"); ok {
		fixups, err := ParseFixupValue(fixupsNode)
		if err != nil {
			return errorEnvelope(id, err)
		}
		if err := ApplyFixups(paramsNode, fixups); err != nil {
			return errorEnvelope(id, err)
		}
	}
	params := paramsNode.Elems

	result, err := b.dispatch(ctx, methodNode.Str, params)
	if err != nil {
		b.logger.Debug("dispatch failed", zap.String("method", methodNode.Str), zap.Error(err))
		return errorEnvelope(id, err)
	}
	env := Object()
	if id != nil {
		env.Set("id", id)
	}
	if resultNode, ok := result.Get("result"); ok {
		env.Set("result", resultNode)
	}
	if fixupsNode, ok := result.Get("fixups"); ok {
		env.Set("fixups", fixupsNode)
	}
	return env
}

func (b *Bridge) dispatch(ctx interface{}, method string, params []*Value) (*Value, error) {
	handle, hasHandle, name, methodName, err := parseMethodSpec(method)
	if err != nil {
		return nil, err
	}

	if !hasHandle && method == "system.listMethods" {
		if len(params) == 0 {
			return b.listMethodsEnvelope(), nil
		}
		if len(params) == 1 && isVerboseTrue(params[0]) {
			return b.describeMethodsEnvelope(), nil
		}
	}

	if hasHandle {
		rv, ok := b.ResolveHandle(handle)
		if !ok {
			return nil, errStaleHandle("handle #%d is unknown or stale", handle)
		}
		if methodName == "listMethods" {
			return namesEnvelope(analyzeClass(rv.Type()).Names()), nil
		}
		return b.invokeOn(ctx, rv, methodName, params)
	}

	if rv, ok := b.lookupObjectLocal(name); ok {
		return b.invokeOn(ctx, rv, methodName, params)
	}
	if ct, ok := b.lookupClassLocal(name); ok {
		return b.invokeOn(ctx, reflect.New(ct).Elem(), methodName, params)
	}
	if b.global != nil {
		return b.global.dispatch(ctx, method, params)
	}
	return nil, errNoMethod("no object or class named %q", name)
}

func (b *Bridge) lookupObjectLocal(name string) (reflect.Value, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	rv, ok := b.objectMap[name]
	return rv, ok
}

func (b *Bridge) lookupClassLocal(name string) (reflect.Type, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	ct, ok := b.classMap[name]
	return ct, ok
}

// invokeOn runs dispatch steps 3-8 of §4.I against a resolved receiver.
func (b *Bridge) invokeOn(ctx interface{}, receiver reflect.Value, methodName string, params []*Value) (result *Value, err error) {
	cd := analyzeClass(receiver.Type())
	state := NewSerializerState(b.allowCycles)

	m, wireTypes, err := resolveOverload(cd, b.localArgs, b.registry, state, methodName, params)
	if err != nil {
		return nil, err
	}

	args, err := b.buildArgs(ctx, state, m, wireTypes, params)
	if err != nil {
		return nil, err
	}

	info := InvocationInfo{Context: ctx, Instance: receiver, Method: m, Args: args}
	if err := b.callbacks.RunPre(info); err != nil {
		info.Err = err
		b.callbacks.RunError(info)
		return nil, err
	}

	results, invokeErr := b.invokeMethod(receiver, m, args)
	info.Result = results
	info.Err = invokeErr
	if invokeErr != nil {
		b.callbacks.RunError(info)
		return nil, invokeErr
	}

	if err := b.callbacks.RunPost(info); err != nil {
		info.Err = err
		b.callbacks.RunError(info)
		return nil, err
	}

	var resultValue reflect.Value
	if len(results) > 0 {
		resultValue = results[0]
	}
	marshaled, err := b.registry.Marshal(state, Path{fieldToken("result")}, resultValue)
	if err != nil {
		return nil, err
	}

	env := Object()
	env.Set("result", marshaled)
	if fixups := state.Fixups(); len(fixups) > 0 {
		env.Set("fixups", MarshalFixupsValue(fixups))
	}
	return env, nil
}

// buildArgs unmarshals the wire params into the method's native arg slots,
// injecting context-resolved values at the positions the resolver stripped
// (§4.I step 4).
func (b *Bridge) buildArgs(ctx interface{}, state *SerializerState, m Method, wireTypes []reflect.Type, params []*Value) ([]reflect.Value, error) {
	args := make([]reflect.Value, len(m.ArgTypes))
	wireIdx := 0
	for i, t := range m.ArgTypes {
		if v, handled, err := b.localArgs.Resolve(t, ctx); handled {
			if err != nil {
				return nil, errUnmarshal("arg %d: %v", i, err)
			}
			args[i] = v
			continue
		}
		if wireIdx >= len(wireTypes) {
			return nil, errUnmarshal("arg %d: missing wire value", i)
		}
		v, err := b.registry.Unmarshal(state, wireTypes[wireIdx], params[wireIdx])
		if err != nil {
			return nil, errUnmarshal("arg %d: %v", i, err)
		}
		args[i] = v
		wireIdx++
	}
	return args, nil
}

// invokeMethod calls the resolved method reflectively, recovering any
// panic into a REMOTE_EXCEPTION the same way the spec treats a thrown
// exception (§4.I step 6, §7).
func (b *Bridge) invokeMethod(receiver reflect.Value, m Method, args []reflect.Value) (results []reflect.Value, err error) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("recovered panic during invoke", zap.String("method", m.Func.Name), zap.Any("panic", r))
			err = errRemote(fmt.Sprintf("%v", r), string(debug.Stack()))
		}
	}()

	callArgs := make([]reflect.Value, 0, len(args)+1)
	callArgs = append(callArgs, receiver)
	callArgs = append(callArgs, args...)

	out := m.Func.Func.Call(callArgs)
	if len(out) > 0 && out[len(out)-1].Type() == rtError {
		if e, ok := out[len(out)-1].Interface().(error); ok && e != nil {
			return nil, errRemote(e.Error(), "")
		}
		out = out[:len(out)-1]
	}
	return out, nil
}

func namesEnvelope(names []string) *Value {
	arr := Array()
	for _, n := range names {
		arr.Append(String(n))
	}
	env := Object()
	env.Set("result", arr)
	return env
}

func (b *Bridge) listMethodsEnvelope() *Value {
	return namesEnvelope(b.listMethods())
}

// isVerboseTrue reports whether p is the single-param {"verbose": true}
// form system.listMethods accepts to switch to the descriptive response.
func isVerboseTrue(p *Value) bool {
	if p == nil || p.Kind != KindObject {
		return false
	}
	v, ok := p.Get("verbose")
	return ok && v.Kind == KindBool && v.Bool
}

// describeMethods is the verbose counterpart to listMethods: the same
// deduplicated (name, arity) union, enriched with whatever a registered
// object's RPCDescriber contributes.
func (b *Bridge) describeMethods() []MethodDescription {
	seen := make(map[MethodKey]struct{})
	var out []MethodDescription
	collect := func(t reflect.Type) {
		for _, m := range analyzeClass(t).AllMethods() {
			wire, _ := wireArgTypes(m, b.localArgs)
			key := MethodKey{Name: m.Func.Name, Arity: len(wire)}
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, MethodDescription{Name: key.Name, Arity: key.Arity})
		}
	}

	b.mu.RLock()
	for _, rv := range b.objectMap {
		collect(rv.Type())
		if describer, ok := rv.Interface().(RPCDescriber); ok {
			out = append(out, describer.RPCDescribe()...)
		}
	}
	for _, ct := range b.classMap {
		collect(ct)
	}
	b.mu.RUnlock()

	if b.global != nil {
		out = append(out, b.global.describeMethods()...)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].Arity < out[j].Arity
	})
	return out
}

func (b *Bridge) describeMethodsEnvelope() *Value {
	arr := Array()
	for _, d := range b.describeMethods() {
		item := Object()
		item.Set("name", String(d.Name))
		item.Set("arity", &Value{Kind: KindNumber, Number: float64(d.Arity), NumberRaw: strconv.Itoa(d.Arity)})
		arr.Append(item)
	}
	env := Object()
	env.Set("result", arr)
	return env
}

func errorEnvelope(id *Value, err error) *Value {
	code := CodeRemoteException
	msg := err.Error()
	trace := ""
	var rpcErr *Error
	if xerrors.As(err, &rpcErr) {
		code = rpcErr.Code
		trace = rpcErr.Trace
	}
	env := Object()
	if id != nil {
		env.Set("id", id)
	}
	errObj := Object()
	errObj.Set("code", &Value{Kind: KindNumber, Number: float64(code), NumberRaw: strconv.Itoa(int(code))})
	errObj.Set("msg", String(msg))
	if trace != "" {
		errObj.Set("trace", String(trace))
	}
	env.Set("error", errObj)
	return env
}
