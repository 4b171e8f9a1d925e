// Copyright (C) 2022  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package btrfstree_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"btrfsview/lib/btrfs/btrfsitem"
	"btrfsview/lib/btrfs/btrfsprim"
	"btrfsview/lib/btrfs/btrfssum"
	"btrfsview/lib/btrfs/btrfstree"
	"btrfsview/lib/btrfs/btrfsvol"
)

type fakeNodeSource map[btrfsvol.LogicalAddr][]byte

func (s fakeNodeSource) ReadAt(_ context.Context, p []byte, off btrfsvol.LogicalAddr) (int, error) {
	dat, ok := s[off]
	if !ok {
		return 0, btrfstree.ErrNoItem
	}
	return copy(p, dat), nil
}

func testSuperblock() btrfstree.Superblock {
	return btrfstree.Superblock{
		FSUUID:       btrfsprim.UUID{1, 2, 3},
		NodeSize:     0x1000,
		ChecksumType: btrfssum.TYPE_CRC32,
	}
}

func TestNodeLeafRoundTrip(t *testing.T) {
	t.Parallel()
	sb := testSuperblock()

	node := btrfstree.Node{
		Size:         sb.NodeSize,
		ChecksumType: sb.ChecksumType,
		Head: btrfstree.NodeHeader{
			MetadataUUID: sb.FSUUID,
			Addr:         0x4000,
			Flags:        btrfstree.NodeWritten,
			BackrefRev:   btrfstree.MixedBackrefRev,
			Generation:   7,
			Owner:        btrfsprim.ROOT_TREE_OBJECTID,
			Level:        0,
		},
		BodyLeaf: []btrfstree.Item{
			{
				Key:  btrfsprim.Key{ObjectID: 1, ItemType: btrfsprim.BLOCK_GROUP_ITEM_KEY, Offset: 0},
				Body: btrfsitem.BlockGroup{Used: 5, ChunkObjectID: btrfsprim.FIRST_CHUNK_TREE_OBJECTID, Flags: 1},
			},
		},
	}
	node.Head.Checksum, _ = node.CalculateChecksum()

	dat, err := node.MarshalBinary()
	require.NoError(t, err)
	require.Len(t, dat, int(sb.NodeSize))

	fs := fakeNodeSource{0x4000: dat}
	got, err := btrfstree.ReadNode(context.Background(), fs, sb, 0x4000, btrfstree.NodeExpectations{})
	require.NoError(t, err)

	assert.Equal(t, node.Head.Addr, got.Head.Addr)
	assert.Equal(t, node.Head.Generation, got.Head.Generation)
	require.Len(t, got.BodyLeaf, 1)
	assert.Equal(t, node.BodyLeaf[0].Key, got.BodyLeaf[0].Key)
	assert.Equal(t, node.BodyLeaf[0].Body, got.BodyLeaf[0].Body)
}

func TestReadNodeChecksumMismatch(t *testing.T) {
	t.Parallel()
	sb := testSuperblock()

	node := btrfstree.Node{
		Size:         sb.NodeSize,
		ChecksumType: sb.ChecksumType,
		Head: btrfstree.NodeHeader{
			MetadataUUID: sb.FSUUID,
			Addr:         0x4000,
			Owner:        btrfsprim.ROOT_TREE_OBJECTID,
			Level:        0,
		},
	}
	dat, err := node.MarshalBinary()
	require.NoError(t, err)

	fs := fakeNodeSource{0x4000: dat}
	_, err = btrfstree.ReadNode(context.Background(), fs, sb, 0x4000, btrfstree.NodeExpectations{})
	assert.Error(t, err)
}

func TestReadNodeExpectationMismatch(t *testing.T) {
	t.Parallel()
	sb := testSuperblock()

	node := btrfstree.Node{
		Size:         sb.NodeSize,
		ChecksumType: sb.ChecksumType,
		Head: btrfstree.NodeHeader{
			MetadataUUID: sb.FSUUID,
			Addr:         0x4000,
			Owner:        btrfsprim.ROOT_TREE_OBJECTID,
			Level:        0,
		},
	}
	node.Head.Checksum, _ = node.CalculateChecksum()
	dat, err := node.MarshalBinary()
	require.NoError(t, err)

	fs := fakeNodeSource{0x4000: dat}
	wantLevel := uint8(1)
	_, err = btrfstree.ReadNode(context.Background(), fs, sb, 0x4000, btrfstree.NodeExpectations{
		Level: &wantLevel,
	})
	assert.Error(t, err)
}
