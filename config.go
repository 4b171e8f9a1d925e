// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package btrfs

import (
	"io"

	"gopkg.in/yaml.v3"
)

// Config holds the bounded-cache sizes and feature toggles a
// Filesystem is opened with. The zero Config is not directly usable;
// Open replaces zero fields with DefaultConfig's values field-by-field.
type Config struct {
	TreeNodeCacheSize    int  `yaml:"treeNodeCacheSize"`
	InodeCacheSize       int  `yaml:"inodeCacheSize"`
	SubvolumeCacheSize   int  `yaml:"subvolumeCacheSize"`
	ResolvePathCacheSize int  `yaml:"resolvePathCacheSize"`
	OpenTreeCacheSize    int  `yaml:"openTreeCacheSize"`
	AllowDegradedRAID56  bool `yaml:"allowDegradedRAID56"`
}

// DefaultConfig returns the cache sizes named in spec.md §9's design
// note: 8192 tree nodes, 8192 inodes, 16 subvolumes, 1024 resolved
// paths, 32 open trees.
func DefaultConfig() Config {
	return Config{
		TreeNodeCacheSize:    8192,
		InodeCacheSize:       8192,
		SubvolumeCacheSize:   16,
		ResolvePathCacheSize: 1024,
		OpenTreeCacheSize:    32,
		AllowDegradedRAID56:  false,
	}
}

// LoadConfig decodes a YAML document into a Config, leaving any field
// the document omits at its zero value (to be filled by DefaultConfig
// at Open time).
func LoadConfig(r io.Reader) (Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(r)
	if err := dec.Decode(&cfg); err != nil && err != io.EOF {
		return Config{}, wrapError(Invalid, err)
	}
	return cfg, nil
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.TreeNodeCacheSize == 0 {
		c.TreeNodeCacheSize = d.TreeNodeCacheSize
	}
	if c.InodeCacheSize == 0 {
		c.InodeCacheSize = d.InodeCacheSize
	}
	if c.SubvolumeCacheSize == 0 {
		c.SubvolumeCacheSize = d.SubvolumeCacheSize
	}
	if c.ResolvePathCacheSize == 0 {
		c.ResolvePathCacheSize = d.ResolvePathCacheSize
	}
	if c.OpenTreeCacheSize == 0 {
		c.OpenTreeCacheSize = d.OpenTreeCacheSize
	}
	return c
}
