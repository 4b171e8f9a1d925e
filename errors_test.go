// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package btrfs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorIsKind(t *testing.T) {
	err := newError(NotFound, "no such path %q", "/foo")
	assert.True(t, errors.Is(err, NotFound))
	assert.False(t, errors.Is(err, Invalid))
}

func TestErrorUnwrap(t *testing.T) {
	inner := errors.New("boom")
	err := wrapError(Invalid, inner)
	require.ErrorIs(t, err, inner)
}

func TestInternalErrorCarriesStack(t *testing.T) {
	err := newError(Internal, "unreachable: %v", 42)
	assert.Contains(t, err.Error(), "INTERNAL")
	assert.Contains(t, fmt.Sprintf("%+v", err.Err), "TestInternalErrorCarriesStack")
}
