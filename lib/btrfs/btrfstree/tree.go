// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package btrfstree

import (
	"context"
	"sort"

	"btrfsview/lib/btrfs/btrfsprim"
	"btrfsview/lib/btrfs/btrfsvol"
	"btrfsview/lib/containers"
)

// Trees is the interface a tree cursor needs in order to resolve a
// well-known or named tree's root node, and to read addressed nodes
// out of the chunk-mapped logical address space.
type Trees interface {
	TreeLookup(treeID btrfsprim.ObjID) (*TreeRoot, error)
	ReadNode(ctx context.Context, addr btrfsvol.LogicalAddr, exp NodeExpectations) (*Node, error)
	TreeSearch(treeID btrfsprim.ObjID, fn func(key btrfsprim.Key, itemSize uint32) int) (Item, error)
}

// Forrest is a Trees backed by a NodeSource, with an ARC cache of
// recently-read nodes.
type Forrest struct {
	fs    NodeSource
	sb    Superblock
	cache *containers.LRUCache[btrfsvol.LogicalAddr, *Node]
}

func NewForrest(fs NodeSource, sb Superblock, cacheSize int) *Forrest {
	return &Forrest{
		fs:    fs,
		sb:    sb,
		cache: containers.NewLRUCache[btrfsvol.LogicalAddr, *Node](cacheSize),
	}
}

func (f *Forrest) TreeLookup(treeID btrfsprim.ObjID) (*TreeRoot, error) {
	return LookupTreeRoot(f, f.sb, treeID)
}

func (f *Forrest) ReadNode(ctx context.Context, addr btrfsvol.LogicalAddr, exp NodeExpectations) (*Node, error) {
	if node, ok := f.cache.Get(addr); ok {
		if err := exp.Check(node); err != nil {
			return nil, &NodeError{Addr: addr, Err: err}
		}
		return node, nil
	}
	node, err := ReadNode(ctx, f.fs, f.sb, addr, exp)
	if err != nil {
		return nil, err
	}
	f.cache.Add(addr, node)
	return node, nil
}

// TreeSearch performs the classic Btrfs search: fn is handed a
// candidate key (and that item's encoded size), and returns negative
// if the sought key is less than the candidate, zero on a match, and
// positive if the sought key is greater. TreeSearch descends according
// to fn's verdict at each interior level and returns the matching leaf
// item, or ErrNoItem if no item satisfies fn.
func (f *Forrest) TreeSearch(treeID btrfsprim.ObjID, fn func(key btrfsprim.Key, itemSize uint32) int) (Item, error) {
	return TreeSearch(context.Background(), f, treeID, fn)
}

func TreeSearch(ctx context.Context, fs Trees, treeID btrfsprim.ObjID, fn func(key btrfsprim.Key, itemSize uint32) int) (Item, error) {
	root, err := fs.TreeLookup(treeID)
	if err != nil {
		return Item{}, err
	}
	if root.RootNode == 0 {
		return Item{}, ErrNoItem
	}
	addr := root.RootNode
	level := root.Level
	for {
		node, err := fs.ReadNode(ctx, addr, NodeExpectations{
			LAddr: &addr,
			Level: &level,
		})
		if err != nil {
			return Item{}, err
		}
		if node.Head.Level > 0 {
			kps := node.BodyInterior
			i := sort.Search(len(kps), func(i int) bool {
				return fn(kps[i].Key, 0) < 0
			}) - 1
			if i < 0 {
				return Item{}, ErrNoItem
			}
			addr = kps[i].BlockPtr
			level = node.Head.Level - 1
			continue
		}
		items := node.BodyLeaf
		i := sort.Search(len(items), func(i int) bool {
			return fn(items[i].Key, items[i].BodySize) <= 0
		})
		if i >= len(items) || fn(items[i].Key, items[i].BodySize) != 0 {
			return Item{}, ErrNoItem
		}
		return items[i], nil
	}
}

// TreeSearchAll collects every leaf item for which fn returns zero,
// walking only the subtrees fn's sign indicates could contain a match.
// fn must be monotonic over key order the same way TreeSearch's fn is.
func TreeSearchAll(ctx context.Context, fs Trees, treeID btrfsprim.ObjID, fn func(key btrfsprim.Key, itemSize uint32) int) ([]Item, error) {
	root, err := fs.TreeLookup(treeID)
	if err != nil {
		return nil, err
	}
	if root.RootNode == 0 {
		return nil, nil
	}
	var ret []Item
	var walk func(addr btrfsvol.LogicalAddr, level uint8) error
	walk = func(addr btrfsvol.LogicalAddr, level uint8) error {
		node, err := fs.ReadNode(ctx, addr, NodeExpectations{
			LAddr: &addr,
			Level: &level,
		})
		if err != nil {
			return err
		}
		if node.Head.Level > 0 {
			kps := node.BodyInterior
			for i, kp := range kps {
				if fn(kp.Key, 0) < 0 {
					break
				}
				if i+1 < len(kps) && fn(kps[i+1].Key, 0) > 0 {
					continue
				}
				if err := walk(kp.BlockPtr, node.Head.Level-1); err != nil {
					return err
				}
			}
			return nil
		}
		for _, item := range node.BodyLeaf {
			if fn(item.Key, item.BodySize) == 0 {
				ret = append(ret, item)
			}
		}
		return nil
	}
	if err := walk(root.RootNode, root.Level); err != nil {
		return nil, err
	}
	return ret, nil
}

// KeyInRange returns a comparator suitable for TreeSearchAll that
// selects every key in [lo, hi].
func KeyInRange(lo, hi btrfsprim.Key) func(btrfsprim.Key, uint32) int {
	return func(key btrfsprim.Key, _ uint32) int {
		switch {
		case key.Compare(lo) < 0:
			return 1
		case key.Compare(hi) > 0:
			return -1
		default:
			return 0
		}
	}
}

// KeyExact returns a comparator suitable for TreeSearch that selects a
// single exact key.
func KeyExact(want btrfsprim.Key) func(btrfsprim.Key, uint32) int {
	return func(key btrfsprim.Key, _ uint32) int {
		return want.Compare(key)
	}
}
