// SPDX-FileCopyrightText: 2021 The Go Language Server Authors
// SPDX-License-Identifier: BSD-3-Clause

package rpcbridge

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnterNodeDuplicateNotOnStackRecordsFixupNotError(t *testing.T) {
	type node struct{ X int }
	shared := &node{X: 1}

	state := NewSerializerState(false)
	rootPath := Path{fieldToken("result")}
	fresh, leave, err := state.EnterNode(reflect.ValueOf(shared), rootPath)
	require.NoError(t, err)
	require.True(t, fresh)
	leave()

	dupPath := Path{fieldToken("result"), fieldToken("again")}
	fresh, _, err = state.EnterNode(reflect.ValueOf(shared), dupPath)
	require.NoError(t, err)
	assert.False(t, fresh)
	require.Len(t, state.Fixups(), 1)
	assert.Equal(t, dupPath, state.Fixups()[0].Target)
	assert.Equal(t, rootPath, state.Fixups()[0].Source)
}

func TestEnterNodeCycleRejectedWhenCyclesDisallowed(t *testing.T) {
	type node struct{ Next *node }
	a := &node{}
	a.Next = a

	state := NewSerializerState(false)
	path := Path{fieldToken("result")}
	fresh, leave, err := state.EnterNode(reflect.ValueOf(a), path)
	require.NoError(t, err)
	require.True(t, fresh)
	defer leave()

	childPath := Path{fieldToken("result"), fieldToken("next")}
	_, _, err = state.EnterNode(reflect.ValueOf(a), childPath)
	require.Error(t, err)
	assert.True(t, isKind(err, kindMarshal))
}

func TestEnterNodeCycleAllowedRecordsFixup(t *testing.T) {
	type node struct{ Next *node }
	a := &node{}
	a.Next = a

	state := NewSerializerState(true)
	path := Path{fieldToken("result")}
	_, leave, err := state.EnterNode(reflect.ValueOf(a), path)
	require.NoError(t, err)
	defer leave()

	childPath := Path{fieldToken("result"), fieldToken("next")}
	fresh, _, err := state.EnterNode(reflect.ValueOf(a), childPath)
	require.NoError(t, err)
	assert.False(t, fresh)
	require.Len(t, state.Fixups(), 1)
	assert.Equal(t, childPath, state.Fixups()[0].Target)
}

func TestEnterNodeScalarsNeverTracked(t *testing.T) {
	state := NewSerializerState(false)
	fresh, _, err := state.EnterNode(reflect.ValueOf(42), Path{fieldToken("result")})
	require.NoError(t, err)
	assert.True(t, fresh)
	assert.Empty(t, state.Fixups())
}

func TestApplyFixupsAssignsSourceIntoTarget(t *testing.T) {
	root := Object()
	result := Object()
	result.Set("first", String("hello"))
	result.Set("second", Null())
	root.Set("result", result)

	fixups := []FixUp{{
		Target: Path{fieldToken("result"), fieldToken("second")},
		Source: Path{fieldToken("result"), fieldToken("first")},
	}}

	err := ApplyFixups(result, fixups)
	require.NoError(t, err)

	second, ok := root.Get("result")
	require.True(t, ok)
	v, ok := second.Get("second")
	require.True(t, ok)
	assert.Equal(t, "hello", v.Str)
}

func TestApplyFixupsMissingSourceIsError(t *testing.T) {
	root := Object()
	result := Object()
	root.Set("result", result)

	fixups := []FixUp{{
		Target: Path{fieldToken("result"), fieldToken("x")},
		Source: Path{fieldToken("result"), fieldToken("missing")},
	}}
	err := ApplyFixups(root, fixups)
	assert.Error(t, err)
}

func TestParseFixupStringParsesIndexAndQuotedKeyTokens(t *testing.T) {
	fixups, err := ParseFixupString(`result[0]=result[1];result["b"]=result`)
	require.NoError(t, err)
	require.Len(t, fixups, 2)

	assert.Equal(t, Path{fieldToken("result"), indexToken(0)}, fixups[0].Target)
	assert.Equal(t, Path{fieldToken("result"), indexToken(1)}, fixups[0].Source)
	assert.Equal(t, Path{fieldToken("result"), fieldToken("b")}, fixups[1].Target)
	assert.Equal(t, Path{fieldToken("result")}, fixups[1].Source)
}

func TestParseFixupStringEmptyIsNil(t *testing.T) {
	fixups, err := ParseFixupString("  ")
	require.NoError(t, err)
	assert.Nil(t, fixups)
}

func TestFixupStructuredFormRoundTrips(t *testing.T) {
	original := []FixUp{
		{
			Target: Path{fieldToken("result"), indexToken(2)},
			Source: Path{fieldToken("result"), indexToken(0)},
		},
		{
			Target: Path{fieldToken("result"), fieldToken("child")},
			Source: Path{fieldToken("result")},
		},
	}

	node := MarshalFixupsValue(original)
	require.Equal(t, KindArray, node.Kind)

	parsed, err := ParseFixupValue(node)
	require.NoError(t, err)
	assert.Equal(t, original, parsed)
}

func TestParseFixupValueNullIsNil(t *testing.T) {
	fixups, err := ParseFixupValue(Null())
	require.NoError(t, err)
	assert.Nil(t, fixups)
}

func TestParseFixupValueAcceptsLegacyStringForm(t *testing.T) {
	fixups, err := ParseFixupValue(String(`result[0]=result[1]`))
	require.NoError(t, err)
	require.Len(t, fixups, 1)
	assert.Equal(t, Path{fieldToken("result"), indexToken(0)}, fixups[0].Target)
}
