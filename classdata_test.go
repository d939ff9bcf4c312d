// SPDX-FileCopyrightText: 2021 The Go Language Server Authors
// SPDX-License-Identifier: BSD-3-Clause

package rpcbridge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type classDataFixture struct{}

func (classDataFixture) Add(a, b int) int        { return a + b }
func (classDataFixture) Add3(a, b, c int) int     { return a + b + c }
func (classDataFixture) Greet(name string) string { return "hi " + name }
func (classDataFixture) unexported() int          { return 0 }

func TestAnalyzeClassIndexesByNameAndArity(t *testing.T) {
	cd := classDataFor(classDataFixture{})

	ms, ok := cd.Lookup("Add", 2)
	require.True(t, ok)
	require.Len(t, ms, 1)
	assert.Equal(t, "Add", ms[0].Func.Name)

	ms, ok = cd.Lookup("Add3", 3)
	require.True(t, ok)
	require.Len(t, ms, 1)

	_, ok = cd.Lookup("Add", 3)
	assert.False(t, ok)
}

func TestAnalyzeClassSkipsUnexportedMethods(t *testing.T) {
	cd := classDataFor(classDataFixture{})
	for _, name := range cd.Names() {
		assert.NotEqual(t, "unexported", name)
	}
}

func TestAnalyzeClassNamesDeduplicatesOverloads(t *testing.T) {
	cd := classDataFor(classDataFixture{})
	names := cd.Names()

	count := 0
	for _, n := range names {
		if n == "Add" {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestAnalyzeClassMemoizesPerType(t *testing.T) {
	a := classDataFor(classDataFixture{})
	b := classDataFor(classDataFixture{})
	assert.Same(t, a, b)
}

func TestClassDataArgTypesExcludeReceiver(t *testing.T) {
	cd := classDataFor(classDataFixture{})
	ms, ok := cd.Lookup("Greet", 1)
	require.True(t, ok)
	require.Len(t, ms[0].ArgTypes, 1)
	assert.Equal(t, "string", ms[0].ArgTypes[0].Kind().String())
}
