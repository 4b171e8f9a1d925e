// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package btrfstree

import (
	"btrfsview/lib/btrfs/btrfsprim"
	"btrfsview/lib/btrfs/btrfssum"
	"btrfsview/lib/btrfs/btrfsvol"
)

// incompatMetadataUUID mirrors the superblock's INCOMPAT_METADATA_UUID
// bit (0x40); it's all a node needs to know about incompat flags.
const incompatMetadataUUID = 1 << 6

// Superblock is the minimal view of the on-disk superblock that node
// decoding and well-known-tree lookup need. The root package's full
// Superblock (with the label, device item, and system chunk array)
// is reduced to this view before being handed to a tree cursor.
type Superblock struct {
	FSUUID       btrfsprim.UUID
	MetadataUUID btrfsprim.UUID
	IncompatFlags uint64

	NodeSize     uint32
	ChecksumType btrfssum.CSumType

	Generation btrfsprim.Generation

	RootTree, ChunkTree, LogTree, BlockGroupRoot btrfsvol.LogicalAddr
	RootLevel, ChunkLevel, LogLevel, BlockGroupRootLevel uint8
	ChunkRootGeneration, BlockGroupRootGeneration btrfsprim.Generation
}

// EffectiveMetadataUUID returns the UUID that nodes are expected to
// carry in their header: MetadataUUID if INCOMPAT_METADATA_UUID is
// set, otherwise FSUUID.
func (sb Superblock) EffectiveMetadataUUID() btrfsprim.UUID {
	if sb.IncompatFlags&incompatMetadataUUID != 0 {
		return sb.MetadataUUID
	}
	return sb.FSUUID
}
