// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package btrfs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"btrfsview/lib/btrfs/btrfsitem"
	"btrfsview/lib/btrfs/btrfsprim"
	"btrfsview/lib/btrfs/btrfsvol"
)

func fakeSuperblock(t *testing.T, mutate func(buf []byte)) []byte {
	t.Helper()
	buf := make([]byte, superblockSize)
	copy(buf[0x40:0x48], SuperblockMagic[:])
	buf[0x20] = 0xAA // fsuuid byte, just needs to be nonzero for comparisons
	if mutate != nil {
		mutate(buf)
	}
	return buf
}

func TestSuperblockRejectsBadMagic(t *testing.T) {
	buf := fakeSuperblock(t, func(buf []byte) { copy(buf[0x40:0x48], "garbage!") })
	var sb Superblock
	_, err := sb.UnmarshalBinary(buf)
	assert.Error(t, err)
}

func TestSuperblockRejectsShortBuffer(t *testing.T) {
	var sb Superblock
	_, err := sb.UnmarshalBinary(make([]byte, 16))
	assert.Error(t, err)
}

func TestSuperblockLabelTrimsNUL(t *testing.T) {
	buf := fakeSuperblock(t, func(buf []byte) { copy(buf[0x12b:], "myvolume") })
	var sb Superblock
	_, err := sb.UnmarshalBinary(buf)
	require.NoError(t, err)
	assert.Equal(t, "myvolume", sb.label())
}

func TestSuperblockEffectiveMetadataUUID(t *testing.T) {
	buf := fakeSuperblock(t, nil)
	var sb Superblock
	_, err := sb.UnmarshalBinary(buf)
	require.NoError(t, err)
	assert.Equal(t, sb.FSUUID, sb.EffectiveMetadataUUID())

	sb.IncompatFlags = incompatMetadataUUID
	sb.MetadataUUID = btrfsprim.UUID{0xAB}
	assert.Equal(t, sb.MetadataUUID, sb.EffectiveMetadataUUID())
}

func TestParseSysChunkArray(t *testing.T) {
	key := btrfsprim.Key{ObjectID: btrfsprim.FIRST_CHUNK_TREE_OBJECTID, ItemType: btrfsprim.CHUNK_ITEM_KEY, Offset: 0x1000000}
	chunk := btrfsitem.Chunk{
		Head: btrfsitem.ChunkHeader{
			Size:       16 * 1024 * 1024,
			Owner:      btrfsprim.EXTENT_TREE_OBJECTID,
			StripeLen:  64 * 1024,
			SubStripes: 1,
		},
		Stripes: []btrfsitem.ChunkStripe{
			{DeviceID: 1, Offset: 0x10000},
		},
	}
	chunkBytes, err := chunk.MarshalBinary()
	require.NoError(t, err)

	var dat []byte
	keyBuf := make([]byte, btrfsprim.KeySize)
	key.MarshalTo(keyBuf)
	dat = append(dat, keyBuf...)
	dat = append(dat, chunkBytes...)

	var sb Superblock
	copy(sb.SysChunkArray[:], dat)
	sb.SysChunkArraySize = uint32(len(dat))

	got, err := sb.ParseSysChunkArray()
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, key, got[0].Key)
	assert.Equal(t, uint16(1), got[0].Chunk.Head.NumStripes)

	volChunk := got[0].Chunk.VolChunk(got[0].Key)
	assert.Equal(t, btrfsvol.LogicalAddr(key.Offset), volChunk.LogicalOffset)
	assert.Equal(t, btrfsvol.DeviceID(1), volChunk.Stripes[0].DeviceID)
}

func TestParseSysChunkArrayRejectsWrongItemType(t *testing.T) {
	key := btrfsprim.Key{ObjectID: btrfsprim.FIRST_CHUNK_TREE_OBJECTID, ItemType: btrfsprim.DIR_ITEM_KEY, Offset: 0}
	keyBuf := make([]byte, btrfsprim.KeySize)
	key.MarshalTo(keyBuf)

	var sb Superblock
	copy(sb.SysChunkArray[:], keyBuf)
	sb.SysChunkArraySize = uint32(len(keyBuf))

	_, err := sb.ParseSysChunkArray()
	assert.Error(t, err)
}
