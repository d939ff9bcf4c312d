// SPDX-FileCopyrightText: 2021 The Go Language Server Authors
// SPDX-License-Identifier: BSD-3-Clause

package rpcbridge

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sessionContext struct{ id string }

func TestLocalArgRegistryUnregisteredTypeIsNotHandled(t *testing.T) {
	reg := NewLocalArgRegistry()
	_, handled, err := reg.Resolve(reflect.TypeOf(sessionContext{}), nil)
	require.NoError(t, err)
	assert.False(t, handled)
}

func TestLocalArgRegistryResolvesMatchingContext(t *testing.T) {
	reg := NewLocalArgRegistry()
	argType := reflect.TypeOf(sessionContext{})
	reg.Register(argType, nil, func(ctx interface{}) (reflect.Value, error) {
		return reflect.ValueOf(ctx.(sessionContext)), nil
	})

	v, handled, err := reg.Resolve(argType, sessionContext{id: "s1"})
	require.NoError(t, err)
	require.True(t, handled)
	assert.Equal(t, "s1", v.Interface().(sessionContext).id)
}

func TestLocalArgRegistryIsContextResolvedIsTypeOnly(t *testing.T) {
	reg := NewLocalArgRegistry()
	argType := reflect.TypeOf(sessionContext{})
	assert.False(t, reg.IsContextResolved(argType))

	reg.Register(argType, reflect.TypeOf((*authContext)(nil)).Elem(), func(ctx interface{}) (reflect.Value, error) {
		return reflect.Value{}, nil
	})
	assert.True(t, reg.IsContextResolved(argType))
}

func TestLocalArgRegistryUnmatchedContextInterfaceIsErrorNotUnhandled(t *testing.T) {
	reg := NewLocalArgRegistry()
	argType := reflect.TypeOf(sessionContext{})
	reg.Register(argType, reflect.TypeOf((*authContext)(nil)).Elem(), func(ctx interface{}) (reflect.Value, error) {
		return reflect.Value{}, nil
	})

	// The context passed does not implement authContext: Resolve must still
	// report handled=true (matching IsContextResolved's type-only view) and
	// surface an error, rather than silently falling through to ordinary
	// wire-parameter handling and misaligning argument positions.
	_, handled, err := reg.Resolve(argType, struct{}{})
	assert.True(t, handled)
	assert.Error(t, err)
}

func TestLocalArgRegistryPicksEntryMatchingContext(t *testing.T) {
	reg := NewLocalArgRegistry()
	argType := reflect.TypeOf(sessionContext{})
	reg.Register(argType, reflect.TypeOf((*authContext)(nil)).Elem(), func(ctx interface{}) (reflect.Value, error) {
		return reflect.ValueOf(sessionContext{id: "admin-path"}), nil
	})

	v, handled, err := reg.Resolve(argType, adminContext{})
	require.NoError(t, err)
	require.True(t, handled)
	assert.Equal(t, "admin-path", v.Interface().(sessionContext).id)
}
