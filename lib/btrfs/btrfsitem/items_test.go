// Copyright (C) 2022  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package btrfsitem_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"btrfsview/lib/btrfs/btrfsitem"
	"btrfsview/lib/btrfs/btrfsprim"
	"btrfsview/lib/btrfs/btrfssum"
)

func TestUnmarshalBlockGroupRoundTrip(t *testing.T) {
	t.Parallel()
	key := btrfsprim.Key{ObjectID: 0x4000, ItemType: btrfsprim.BLOCK_GROUP_ITEM_KEY, Offset: 0x100000}
	orig := btrfsitem.BlockGroup{
		Used:          0x80000,
		ChunkObjectID: btrfsprim.FIRST_CHUNK_TREE_OBJECTID,
		Flags:         0x1, // DATA
	}
	dat, err := orig.MarshalBinary()
	require.NoError(t, err)

	item := btrfsitem.UnmarshalItem(key, btrfssum.TYPE_CRC32, dat)
	got, ok := item.(btrfsitem.BlockGroup)
	require.True(t, ok, "got %T", item)
	assert.Equal(t, orig, got)
}

func TestUnmarshalDirEntryRoundTrip(t *testing.T) {
	t.Parallel()
	key := btrfsprim.Key{ObjectID: 0x101, ItemType: btrfsprim.DIR_ITEM_KEY, Offset: 0}
	orig := btrfsitem.DirEntry{
		Location: btrfsprim.Key{ObjectID: 0x102, ItemType: btrfsprim.INODE_ITEM_KEY, Offset: 0},
		TransID:  7,
		Type:     btrfsitem.FT_REG_FILE,
		Name:     []byte("hello.txt"),
	}
	dat, err := orig.MarshalBinary()
	require.NoError(t, err)

	item := btrfsitem.UnmarshalItem(key, btrfssum.TYPE_CRC32, dat)
	got, ok := item.(btrfsitem.DirEntry)
	require.True(t, ok, "got %T", item)
	assert.Equal(t, orig.Location, got.Location)
	assert.Equal(t, orig.Name, got.Name)
	assert.Equal(t, orig.Type, got.Type)
}

func TestUnmarshalUnknownTypeIsError(t *testing.T) {
	t.Parallel()
	key := btrfsprim.Key{ObjectID: 1, ItemType: btrfsprim.ItemType(0xff), Offset: 0}
	item := btrfsitem.UnmarshalItem(key, btrfssum.TYPE_CRC32, []byte{1, 2, 3})
	_, ok := item.(btrfsitem.Error)
	assert.True(t, ok, "got %T", item)
}

func TestNameHashInversion(t *testing.T) {
	t.Parallel()
	h1 := btrfsitem.NameHash([]byte("foo"))
	h2 := btrfsitem.NameHash([]byte("foo"))
	assert.Equal(t, h1, h2)
	assert.NotEqual(t, h1, btrfsitem.NameHash([]byte("bar")))
	assert.Equal(t, uint64(2378154706), btrfsitem.NameHash([]byte("default")))
}
