// SPDX-FileCopyrightText: 2021 The Go Language Server Authors
// SPDX-License-Identifier: BSD-3-Clause

package rpcbridge

import (
	"errors"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type authContext interface {
	User() string
}

type adminContext struct{}

func (adminContext) User() string { return "admin" }

func TestCallbackControllerFiltersByContextInterface(t *testing.T) {
	c := NewCallbackController()
	ran := false
	c.RegisterPre(reflect.TypeOf((*authContext)(nil)).Elem(), func(info InvocationInfo) error {
		ran = true
		return nil
	})

	err := c.RunPre(InvocationInfo{Context: struct{}{}})
	require.NoError(t, err)
	assert.False(t, ran, "hook scoped to authContext must not run for a context that doesn't implement it")

	err = c.RunPre(InvocationInfo{Context: adminContext{}})
	require.NoError(t, err)
	assert.True(t, ran)
}

func TestCallbackControllerNilContextInterfaceMatchesAny(t *testing.T) {
	c := NewCallbackController()
	runs := 0
	c.RegisterPre(nil, func(info InvocationInfo) error {
		runs++
		return nil
	})

	require.NoError(t, c.RunPre(InvocationInfo{Context: nil}))
	require.NoError(t, c.RunPre(InvocationInfo{Context: adminContext{}}))
	assert.Equal(t, 2, runs)
}

func TestCallbackControllerPreErrorPropagates(t *testing.T) {
	c := NewCallbackController()
	wantErr := errors.New("blocked")
	c.RegisterPre(nil, func(info InvocationInfo) error { return wantErr })

	err := c.RunPre(InvocationInfo{})
	assert.ErrorIs(t, err, wantErr)
}

func TestCallbackControllerPostErrorPropagates(t *testing.T) {
	c := NewCallbackController()
	wantErr := errors.New("post failed")
	c.RegisterPost(nil, func(info InvocationInfo) error { return wantErr })

	err := c.RunPost(InvocationInfo{})
	assert.ErrorIs(t, err, wantErr)
}

func TestCallbackControllerErrorHookPanicIsSwallowed(t *testing.T) {
	c := NewCallbackController()
	c.RegisterError(nil, func(info InvocationInfo) {
		panic("boom")
	})

	assert.NotPanics(t, func() {
		c.RunError(InvocationInfo{Err: errors.New("original failure")})
	})
}

func TestCallbackControllerRunsHooksInRegistrationOrder(t *testing.T) {
	c := NewCallbackController()
	var order []int
	c.RegisterPre(nil, func(info InvocationInfo) error { order = append(order, 1); return nil })
	c.RegisterPre(nil, func(info InvocationInfo) error { order = append(order, 2); return nil })

	require.NoError(t, c.RunPre(InvocationInfo{}))
	assert.Equal(t, []int{1, 2}, order)
}
