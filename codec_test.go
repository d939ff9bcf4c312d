// SPDX-FileCopyrightText: 2021 The Go Language Server Authors
// SPDX-License-Identifier: BSD-3-Clause

package rpcbridge

import (
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryPrimitiveRoundTrip(t *testing.T) {
	r := NewRegistry()
	state := NewSerializerState(false)

	rv, err := r.Unmarshal(state, reflect.TypeOf(int(0)), Number(42))
	require.NoError(t, err)
	assert.Equal(t, int64(42), rv.Int())

	node, err := r.Marshal(state, Path{fieldToken("result")}, reflect.ValueOf(42))
	require.NoError(t, err)
	assert.Equal(t, "42", node.NumberRaw)
}

func TestRegistryNumberStringCoercionIsCompatibleNotExact(t *testing.T) {
	r := NewRegistry()
	state := NewSerializerState(false)

	m, ok := r.TryUnmarshal(state, reflect.TypeOf(int(0)), String("7"))
	require.True(t, ok)
	assert.Equal(t, MatchCompatible, m)

	m, ok = r.TryUnmarshal(state, reflect.TypeOf(int(0)), Number(7))
	require.True(t, ok)
	assert.Equal(t, MatchCompatible, m)

	m, ok = r.TryUnmarshal(state, reflect.TypeOf(float64(0)), Number(7))
	require.True(t, ok)
	assert.Equal(t, MatchExact, m)
}

func TestRegistryFractionalNumberRejectsIntTarget(t *testing.T) {
	r := NewRegistry()
	state := NewSerializerState(false)
	_, ok := r.TryUnmarshal(state, reflect.TypeOf(int(0)), Number(1.5))
	assert.False(t, ok)
}

func TestRegistryBoxablePointerNullUnmarshalsToNilNotZero(t *testing.T) {
	r := NewRegistry()
	state := NewSerializerState(false)

	rv, err := r.Unmarshal(state, reflect.TypeOf((*int)(nil)), Null())
	require.NoError(t, err)
	assert.True(t, rv.IsNil())

	rv, err = r.Unmarshal(state, reflect.TypeOf((*int)(nil)), Number(9))
	require.NoError(t, err)
	require.False(t, rv.IsNil())
	assert.Equal(t, int64(9), rv.Elem().Int())
}

func TestRegistryDateCodecRoundTrip(t *testing.T) {
	r := NewRegistry()
	state := NewSerializerState(false)

	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	node, err := r.Marshal(state, Path{fieldToken("result")}, reflect.ValueOf(now))
	require.NoError(t, err)
	millis, ok := node.Get("time")
	require.True(t, ok)
	assert.Equal(t, float64(now.UnixMilli()), millis.Number)

	rv, err := r.Unmarshal(state, reflect.TypeOf(time.Time{}), node)
	require.NoError(t, err)
	assert.True(t, now.Equal(rv.Interface().(time.Time)))
}

func TestRegistryRawCodecPassesValueThrough(t *testing.T) {
	r := NewRegistry()
	state := NewSerializerState(false)

	raw := Object()
	raw.Set("anything", Array(Number(1), String("x")))

	rv, err := r.Unmarshal(state, reflect.TypeOf(&Value{}), raw)
	require.NoError(t, err)
	got := rv.Interface().(*Value)
	assert.Same(t, raw, got)
}

func TestRegistryArrayCodecRoundTrip(t *testing.T) {
	r := NewRegistry()
	state := NewSerializerState(false)

	node := Array(Number(1), Number(2), Number(3))
	rv, err := r.Unmarshal(state, reflect.TypeOf([]int{}), node)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, rv.Interface())

	marshaled, err := r.Marshal(state, Path{fieldToken("result")}, reflect.ValueOf([]int{4, 5}))
	require.NoError(t, err)
	require.Equal(t, KindArray, marshaled.Kind)
	assert.Equal(t, "4", marshaled.Elems[0].NumberRaw)
}

type fixtureColor int

const (
	fixtureColorRed fixtureColor = iota
	fixtureColorBlue
)

func (c fixtureColor) EnumName() string {
	switch c {
	case fixtureColorRed:
		return "RED"
	case fixtureColorBlue:
		return "BLUE"
	default:
		return ""
	}
}

func (fixtureColor) ParseEnum(name string) (interface{}, bool) {
	switch name {
	case "RED":
		return fixtureColorRed, true
	case "BLUE":
		return fixtureColorBlue, true
	default:
		return nil, false
	}
}

func TestRegistryEnumPreemptsKindCodec(t *testing.T) {
	r := NewRegistry()
	state := NewSerializerState(false)

	node, err := r.Marshal(state, Path{fieldToken("result")}, reflect.ValueOf(fixtureColorBlue))
	require.NoError(t, err)
	assert.Equal(t, KindString, node.Kind)
	assert.Equal(t, "BLUE", node.Str)

	rv, err := r.Unmarshal(state, reflect.TypeOf(fixtureColorRed), String("BLUE"))
	require.NoError(t, err)
	assert.Equal(t, fixtureColorBlue, rv.Interface())

	_, ok := r.TryUnmarshal(state, reflect.TypeOf(fixtureColorRed), String("GREEN"))
	assert.False(t, ok)
}

type fixtureBean struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
	Child *fixtureBean `json:"child"`
}

func TestRegistryBeanCodecSkipsNilButKeepsZeroValues(t *testing.T) {
	r := NewRegistry()
	state := NewSerializerState(false)

	bean := fixtureBean{Name: "", Count: 0, Child: nil}
	node, err := r.Marshal(state, Path{fieldToken("result")}, reflect.ValueOf(bean))
	require.NoError(t, err)

	_, hasName := node.Get("name")
	assert.True(t, hasName, "zero-value string field must still be serialized")
	_, hasCount := node.Get("count")
	assert.True(t, hasCount, "zero-value int field must still be serialized")
	_, hasChild := node.Get("child")
	assert.False(t, hasChild, "nil pointer field must be skipped")
}

func TestRegistryBeanCodecUnmarshalRoundTrip(t *testing.T) {
	r := NewRegistry()
	state := NewSerializerState(false)

	node := Object()
	node.Set("name", String("widget"))
	node.Set("count", Number(3))

	rv, err := r.Unmarshal(state, reflect.TypeOf(fixtureBean{}), node)
	require.NoError(t, err)
	bean := rv.Interface().(fixtureBean)
	assert.Equal(t, "widget", bean.Name)
	assert.Equal(t, 3, bean.Count)
}

type fixtureShape interface {
	Area() float64
}

type fixtureSquare struct {
	Side float64 `json:"side"`
}

func (s fixtureSquare) Area() float64 { return s.Side * s.Side }

func TestRegistryBeanCodecJavaClassHintResolvesInterfaceTarget(t *testing.T) {
	r := NewRegistry()
	r.RegisterBeanClass(reflect.TypeOf(fixtureSquare{}))
	state := NewSerializerState(false)

	node := Object()
	node.Set("javaClass", String("rpcbridge.fixtureSquare"))
	node.Set("side", Number(4))

	shapeType := reflect.TypeOf((*fixtureShape)(nil)).Elem()
	m, ok := r.TryUnmarshal(state, shapeType, node)
	require.True(t, ok)
	assert.Equal(t, MatchCompatible, m)

	rv, err := r.Unmarshal(state, shapeType, node)
	require.NoError(t, err)
	shape := rv.Interface().(fixtureShape)
	assert.Equal(t, 16.0, shape.Area())
}

func TestRegistryBeanCodecUnregisteredJavaClassHintFailsOnInterfaceTarget(t *testing.T) {
	r := NewRegistry()
	state := NewSerializerState(false)

	node := Object()
	node.Set("javaClass", String("rpcbridge.fixtureSquare"))
	node.Set("side", Number(4))

	shapeType := reflect.TypeOf((*fixtureShape)(nil)).Elem()
	_, ok := r.TryUnmarshal(state, shapeType, node)
	assert.False(t, ok, "an interface target with no matching registered bean class must not match")
}

func TestRegistryBeanCodecDuplicateReferenceProducesFixup(t *testing.T) {
	r := NewRegistry()
	state := NewSerializerState(true)

	shared := &fixtureBean{Name: "shared"}
	root := struct {
		First  *fixtureBean
		Second *fixtureBean
	}{First: shared, Second: shared}

	first, err := r.Marshal(state, Path{fieldToken("result"), fieldToken("First")}, reflect.ValueOf(root.First))
	require.NoError(t, err)
	require.Equal(t, KindObject, first.Kind)

	second, err := r.Marshal(state, Path{fieldToken("result"), fieldToken("Second")}, reflect.ValueOf(root.Second))
	require.NoError(t, err)
	assert.True(t, second.IsNull())
	require.Len(t, state.Fixups(), 1)
	assert.Equal(t, Path{fieldToken("result"), fieldToken("Second")}, state.Fixups()[0].Target)
}
