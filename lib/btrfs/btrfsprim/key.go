// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package btrfsprim

import (
	"encoding/binary"
	"fmt"
	"math"
)

// KeySize is the on-disk encoded size of a Key.
const KeySize = 0x11

// UnmarshalKey decodes a Key from its 0x11-byte on-disk form.
func UnmarshalKey(dat []byte) Key {
	return Key{
		ObjectID: ObjID(binary.LittleEndian.Uint64(dat[0:8])),
		ItemType: ItemType(dat[8]),
		Offset:   binary.LittleEndian.Uint64(dat[9:17]),
	}
}

// MarshalTo encodes key into its 0x11-byte on-disk form.
func (key Key) MarshalTo(buf []byte) {
	binary.LittleEndian.PutUint64(buf[0:8], uint64(key.ObjectID))
	buf[8] = byte(key.ItemType)
	binary.LittleEndian.PutUint64(buf[9:17], key.Offset)
}

// Key is the three-component sort key used throughout a tree: items
// within a node, nodes within a tree, are all ordered by Key.
type Key struct {
	ObjectID ObjID    // Each tree has its own set of Object IDs.
	ItemType ItemType
	Offset   uint64 // The meaning depends on the item type.
}

const MaxOffset uint64 = math.MaxUint64

const (
	maxItemType = ItemType(math.MaxUint8)
	maxObjID    = ObjID(math.MaxUint64)
)

// Format mimics btrfs-progs' print-tree.c:btrfs_print_key().
func (key Key) Format(tree ObjID) string {
	switch tree {
	case UUID_TREE_OBJECTID:
		return fmt.Sprintf("(%v %v %#08x)",
			key.ObjectID.Format(tree),
			key.ItemType,
			key.Offset)
	case ROOT_TREE_OBJECTID, QUOTA_TREE_OBJECTID:
		return fmt.Sprintf("(%v %v %v)",
			key.ObjectID.Format(tree),
			key.ItemType,
			ObjID(key.Offset).Format(tree))
	default:
		if key.Offset == math.MaxUint64 {
			return fmt.Sprintf("(%v %v -1)", key.ObjectID.Format(tree), key.ItemType)
		}
		return fmt.Sprintf("(%v %v %v)", key.ObjectID.Format(tree), key.ItemType, key.Offset)
	}
}

func (key Key) String() string {
	return key.Format(0)
}

// MaxKey sorts after every valid key; it's used as an exclusive upper
// bound for range scans.
var MaxKey = Key{
	ObjectID: maxObjID,
	ItemType: maxItemType,
	Offset:   MaxOffset,
}

// Mm returns the key immediately preceding key in tree order.  It's a
// no-op on the zero Key.
func (key Key) Mm() Key {
	switch {
	case key.Offset > 0:
		key.Offset--
	case key.ItemType > 0:
		key.ItemType--
		key.Offset = MaxOffset
	case key.ObjectID > 0:
		key.ObjectID--
		key.ItemType = maxItemType
		key.Offset = MaxOffset
	}
	return key
}

// Pp returns the key immediately following key in tree order.  It's a
// no-op on MaxKey.
func (key Key) Pp() Key {
	switch {
	case key.Offset < MaxOffset:
		key.Offset++
	case key.ItemType < maxItemType:
		key.ItemType++
		key.Offset = 0
	case key.ObjectID < maxObjID:
		key.ObjectID++
		key.ItemType = 0
		key.Offset = 0
	}
	return key
}

// Compare orders keys lexicographically by (ObjectID, ItemType, Offset),
// matching on-disk tree order.
func (a Key) Compare(b Key) int {
	switch {
	case a.ObjectID < b.ObjectID:
		return -1
	case a.ObjectID > b.ObjectID:
		return 1
	}
	switch {
	case a.ItemType < b.ItemType:
		return -1
	case a.ItemType > b.ItemType:
		return 1
	}
	switch {
	case a.Offset < b.Offset:
		return -1
	case a.Offset > b.Offset:
		return 1
	default:
		return 0
	}
}
