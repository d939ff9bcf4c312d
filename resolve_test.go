// SPDX-FileCopyrightText: 2021 The Go Language Server Authors
// SPDX-License-Identifier: BSD-3-Clause

package rpcbridge

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type resolveFixture struct{}

func (resolveFixture) Greet(name string) string             { return "hi " + name }
func (resolveFixture) Greet2(name string, loud bool) string { return name }

// intCandidate/floatCandidate stand in for two overloads sharing a name and
// wire arity: Go can't declare two same-named methods on one type, so the
// synthetic ClassData below assembles them from two distinct types the way
// a merged overload set would look once built.
type intCandidate struct{}

func (intCandidate) Pick(x int) string { return "int" }

type floatCandidate struct{}

func (floatCandidate) Pick(x float64) string { return "float" }

func overloadedPickClassData() *ClassData {
	intMethod := reflect.TypeOf(intCandidate{}).Method(0)
	floatMethod := reflect.TypeOf(floatCandidate{}).Method(0)
	return &ClassData{methods: map[MethodKey][]Method{
		{Name: "Pick", Arity: 1}: {
			{Func: intMethod, ArgTypes: []reflect.Type{reflect.TypeOf(0)}},
			{Func: floatMethod, ArgTypes: []reflect.Type{reflect.TypeOf(0.0)}},
		},
	}}
}

func TestResolveOverloadSingleCandidateFastPath(t *testing.T) {
	cd := classDataFor(resolveFixture{})
	localArgs := NewLocalArgRegistry()
	registry := NewRegistry()
	state := NewSerializerState(false)

	m, wire, err := resolveOverload(cd, localArgs, registry, state, "Greet", []*Value{String("Ada")})
	require.NoError(t, err)
	assert.Equal(t, "Greet", m.Func.Name)
	require.Len(t, wire, 1)
}

func TestResolveOverloadFiltersByWireArity(t *testing.T) {
	cd := classDataFor(resolveFixture{})
	localArgs := NewLocalArgRegistry()
	registry := NewRegistry()
	state := NewSerializerState(false)

	m, _, err := resolveOverload(cd, localArgs, registry, state, "Greet2", []*Value{String("Ada"), Bool(true)})
	require.NoError(t, err)
	assert.Equal(t, "Greet2", m.Func.Name)
}

func TestResolveOverloadNoMatchingArityErrors(t *testing.T) {
	cd := classDataFor(resolveFixture{})
	localArgs := NewLocalArgRegistry()
	registry := NewRegistry()
	state := NewSerializerState(false)

	_, _, err := resolveOverload(cd, localArgs, registry, state, "Greet", []*Value{String("a"), String("b")})
	require.Error(t, err)
	assert.True(t, isKind(err, kindNoMethod))
}

func TestResolveOverloadUnknownNameErrors(t *testing.T) {
	cd := classDataFor(resolveFixture{})
	localArgs := NewLocalArgRegistry()
	registry := NewRegistry()
	state := NewSerializerState(false)

	_, _, err := resolveOverload(cd, localArgs, registry, state, "Missing", nil)
	require.Error(t, err)
	assert.True(t, isKind(err, kindNoMethod))
}

type ctxFixture struct{}

func TestWireArgTypesStripsContextResolvedParameter(t *testing.T) {
	localArgs := NewLocalArgRegistry()
	ctxType := reflect.TypeOf(ctxFixture{})
	localArgs.Register(ctxType, nil, func(ctx interface{}) (reflect.Value, error) {
		return reflect.ValueOf(ctxFixture{}), nil
	})

	m := Method{ArgTypes: []reflect.Type{reflect.TypeOf(""), ctxType}}
	wire, wireToNative := wireArgTypes(m, localArgs)
	require.Len(t, wire, 1)
	assert.Equal(t, reflect.TypeOf(""), wire[0])
	assert.Equal(t, []int{0}, wireToNative)
}

func TestResolveOverloadPrefersExactMatchOverCompatible(t *testing.T) {
	cd := overloadedPickClassData()
	localArgs := NewLocalArgRegistry()
	registry := NewRegistry()
	state := NewSerializerState(false)

	// A whole JSON number is MatchExact against a float64 target but only
	// MatchCompatible against int (numberCodec.TryUnmarshal), so the
	// float64 overload should win outright -- no tie-break needed.
	m, wire, err := resolveOverload(cd, localArgs, registry, state, "Pick", []*Value{Number(3)})
	require.NoError(t, err)
	assert.Equal(t, reflect.Float64, wire[0].Kind())
	assert.Equal(t, "floatCandidate", m.Func.Func.Type().In(0).Name())
}

func TestAllAssignableFromConcreteNarrowerThanInterface(t *testing.T) {
	errIface := reflect.TypeOf((*error)(nil)).Elem()
	concrete := reflect.TypeOf(&Error{})

	assert.True(t, allAssignableFrom([]reflect.Type{errIface}, []reflect.Type{concrete}))
	assert.False(t, allAssignableFrom([]reflect.Type{concrete}, []reflect.Type{errIface}))
}

func TestAllAssignableFromLengthMismatch(t *testing.T) {
	assert.False(t, allAssignableFrom([]reflect.Type{reflect.TypeOf(0)}, nil))
}
