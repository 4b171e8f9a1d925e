// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package btrfs

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigPartialOverride(t *testing.T) {
	cfg, err := LoadConfig(strings.NewReader("treeNodeCacheSize: 4096\nallowDegradedRAID56: true\n"))
	require.NoError(t, err)
	assert.Equal(t, 4096, cfg.TreeNodeCacheSize)
	assert.True(t, cfg.AllowDegradedRAID56)
	assert.Equal(t, 0, cfg.InodeCacheSize) // left zero; withDefaults fills it in

	filled := cfg.withDefaults()
	assert.Equal(t, 4096, filled.TreeNodeCacheSize)
	assert.Equal(t, DefaultConfig().InodeCacheSize, filled.InodeCacheSize)
}

func TestLoadConfigEmpty(t *testing.T) {
	cfg, err := LoadConfig(strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, Config{}, cfg)
	assert.Equal(t, DefaultConfig(), cfg.withDefaults())
}

func TestDefaultConfigCacheSizes(t *testing.T) {
	d := DefaultConfig()
	assert.Equal(t, 8192, d.TreeNodeCacheSize)
	assert.Equal(t, 8192, d.InodeCacheSize)
	assert.Equal(t, 16, d.SubvolumeCacheSize)
	assert.Equal(t, 1024, d.ResolvePathCacheSize)
	assert.Equal(t, 32, d.OpenTreeCacheSize)
}
