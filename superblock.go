// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package btrfs

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"btrfsview/lib/btrfs/btrfsitem"
	"btrfsview/lib/btrfs/btrfsprim"
	"btrfsview/lib/btrfs/btrfssum"
	"btrfsview/lib/btrfs/btrfstree"
	"btrfsview/lib/btrfs/btrfsvol"
)

// SuperblockOffset is where every device carries its primary
// superblock.
const SuperblockOffset = 0x10000

// SuperblockMagic is the 8-byte magic value ("_BHRfS_M") every valid
// superblock starts its magic field with.
var SuperblockMagic = [8]byte{'_', 'B', 'H', 'R', 'f', 'S', '_', 'M'}

const superblockSize = 0x1000

const incompatMetadataUUID = 1 << 6

// Superblock is the full on-disk superblock: everything node decoding
// needs (reduced to btrfstree.Superblock) plus the label, embedded
// device item, and system chunk array the root package needs for
// bootstrap.
type Superblock struct {
	Checksum   btrfssum.CSum
	FSUUID     btrfsprim.UUID
	Self       btrfsvol.PhysicalAddr
	Flags      uint64
	Generation btrfsprim.Generation

	RootTree  btrfsvol.LogicalAddr
	ChunkTree btrfsvol.LogicalAddr
	LogTree   btrfsvol.LogicalAddr

	LogRootTransID  uint64
	TotalBytes      uint64
	BytesUsed       uint64
	RootDirObjectID btrfsprim.ObjID
	NumDevices      uint64

	SectorSize        uint32
	NodeSize          uint32
	LeafSize          uint32
	StripeSize        uint32
	SysChunkArraySize uint32

	ChunkRootGeneration btrfsprim.Generation
	CompatFlags         uint64
	CompatROFlags       uint64
	IncompatFlags       uint64
	ChecksumType        btrfssum.CSumType

	RootLevel  uint8
	ChunkLevel uint8
	LogLevel   uint8

	DevItem btrfsitem.Dev
	Label   [0x100]byte

	CacheGeneration    btrfsprim.Generation
	UUIDTreeGeneration btrfsprim.Generation

	MetadataUUID btrfsprim.UUID

	NumGlobalRoots uint64

	BlockGroupRoot           btrfsvol.LogicalAddr
	BlockGroupRootGeneration btrfsprim.Generation
	BlockGroupRootLevel      uint8

	SysChunkArray [0x800]byte
}

// UnmarshalBinary decodes a 0x1000-byte superblock image, per the
// offsets in the Linux Btrfs on-disk format.
func (sb *Superblock) UnmarshalBinary(dat []byte) (int, error) {
	if len(dat) < superblockSize {
		return 0, fmt.Errorf("superblock: need %d bytes, only have %d", superblockSize, len(dat))
	}
	copy(sb.Checksum[:], dat[0x0:0x20])
	copy(sb.FSUUID[:], dat[0x20:0x30])
	sb.Self = btrfsvol.PhysicalAddr(binary.LittleEndian.Uint64(dat[0x30:0x38]))
	sb.Flags = binary.LittleEndian.Uint64(dat[0x38:0x40])
	if !bytes.Equal(dat[0x40:0x48], SuperblockMagic[:]) {
		return 0, fmt.Errorf("superblock: invalid magic %q", dat[0x40:0x48])
	}
	sb.Generation = btrfsprim.Generation(binary.LittleEndian.Uint64(dat[0x48:0x50]))
	sb.RootTree = btrfsvol.LogicalAddr(binary.LittleEndian.Uint64(dat[0x50:0x58]))
	sb.ChunkTree = btrfsvol.LogicalAddr(binary.LittleEndian.Uint64(dat[0x58:0x60]))
	sb.LogTree = btrfsvol.LogicalAddr(binary.LittleEndian.Uint64(dat[0x60:0x68]))
	sb.LogRootTransID = binary.LittleEndian.Uint64(dat[0x68:0x70])
	sb.TotalBytes = binary.LittleEndian.Uint64(dat[0x70:0x78])
	sb.BytesUsed = binary.LittleEndian.Uint64(dat[0x78:0x80])
	sb.RootDirObjectID = btrfsprim.ObjID(binary.LittleEndian.Uint64(dat[0x80:0x88]))
	sb.NumDevices = binary.LittleEndian.Uint64(dat[0x88:0x90])
	sb.SectorSize = binary.LittleEndian.Uint32(dat[0x90:0x94])
	sb.NodeSize = binary.LittleEndian.Uint32(dat[0x94:0x98])
	sb.LeafSize = binary.LittleEndian.Uint32(dat[0x98:0x9c])
	sb.StripeSize = binary.LittleEndian.Uint32(dat[0x9c:0xa0])
	sb.SysChunkArraySize = binary.LittleEndian.Uint32(dat[0xa0:0xa4])
	sb.ChunkRootGeneration = btrfsprim.Generation(binary.LittleEndian.Uint64(dat[0xa4:0xac]))
	sb.CompatFlags = binary.LittleEndian.Uint64(dat[0xac:0xb4])
	sb.CompatROFlags = binary.LittleEndian.Uint64(dat[0xb4:0xbc])
	sb.IncompatFlags = binary.LittleEndian.Uint64(dat[0xbc:0xc4])
	sb.ChecksumType = btrfssum.CSumType(binary.LittleEndian.Uint16(dat[0xc4:0xc6]))
	sb.RootLevel = dat[0xc6]
	sb.ChunkLevel = dat[0xc7]
	sb.LogLevel = dat[0xc8]
	if _, err := sb.DevItem.UnmarshalBinary(dat[0xc9:0x12b]); err != nil {
		return 0, fmt.Errorf("superblock: dev_item: %w", err)
	}
	copy(sb.Label[:], dat[0x12b:0x22b])
	sb.CacheGeneration = btrfsprim.Generation(binary.LittleEndian.Uint64(dat[0x22b:0x233]))
	sb.UUIDTreeGeneration = btrfsprim.Generation(binary.LittleEndian.Uint64(dat[0x233:0x23b]))
	copy(sb.MetadataUUID[:], dat[0x23b:0x24b])
	sb.NumGlobalRoots = binary.LittleEndian.Uint64(dat[0x24b:0x253])
	sb.BlockGroupRoot = btrfsvol.LogicalAddr(binary.LittleEndian.Uint64(dat[0x253:0x25b]))
	sb.BlockGroupRootGeneration = btrfsprim.Generation(binary.LittleEndian.Uint64(dat[0x25b:0x263]))
	sb.BlockGroupRootLevel = dat[0x263]
	copy(sb.SysChunkArray[:], dat[0x32b:0xb2b])
	return superblockSize, nil
}

// EffectiveMetadataUUID returns MetadataUUID when
// INCOMPAT_METADATA_UUID is set, else FSUUID.
func (sb Superblock) EffectiveMetadataUUID() btrfsprim.UUID {
	if sb.IncompatFlags&incompatMetadataUUID != 0 {
		return sb.MetadataUUID
	}
	return sb.FSUUID
}

// treeView reduces the full superblock to the minimal view
// btrfstree's node decoder and well-known-tree lookup need.
func (sb Superblock) treeView() btrfstree.Superblock {
	return btrfstree.Superblock{
		FSUUID:                   sb.FSUUID,
		MetadataUUID:             sb.MetadataUUID,
		IncompatFlags:            sb.IncompatFlags,
		NodeSize:                 sb.NodeSize,
		ChecksumType:             sb.ChecksumType,
		Generation:               sb.Generation,
		RootTree:                 sb.RootTree,
		ChunkTree:                sb.ChunkTree,
		LogTree:                  sb.LogTree,
		BlockGroupRoot:           sb.BlockGroupRoot,
		RootLevel:                sb.RootLevel,
		ChunkLevel:               sb.ChunkLevel,
		LogLevel:                 sb.LogLevel,
		BlockGroupRootLevel:      sb.BlockGroupRootLevel,
		ChunkRootGeneration:      sb.ChunkRootGeneration,
		BlockGroupRootGeneration: sb.BlockGroupRootGeneration,
	}
}

// label decodes the fixed 0x100-byte label field leniently: trailing
// NUL padding is trimmed and the remainder is kept as raw bytes rather
// than validated as UTF-8, matching the tolerant decoding the original
// Python implementation applies.
func (sb Superblock) label() string {
	n := bytes.IndexByte(sb.Label[:], 0)
	if n < 0 {
		n = len(sb.Label)
	}
	return string(sb.Label[:n])
}

// SysChunk pairs a disk key with the chunk item it addresses, as
// packed in the superblock's embedded sys_chunk_array.
type SysChunk struct {
	Key   btrfsprim.Key
	Chunk btrfsitem.Chunk
}

// ParseSysChunkArray decodes the superblock's sys_chunk_array as a
// packed sequence of (key, chunk) pairs, one per SYSTEM chunk needed
// to bootstrap the chunk tree itself. Every key's item type must be
// CHUNK_ITEM_KEY; exactly SysChunkArraySize bytes must be consumed.
func (sb Superblock) ParseSysChunkArray() ([]SysChunk, error) {
	dat := sb.SysChunkArray[:sb.SysChunkArraySize]
	var ret []SysChunk
	for len(dat) > 0 {
		if len(dat) < btrfsprim.KeySize {
			return nil, fmt.Errorf("sys_chunk_array: truncated key (%d bytes left)", len(dat))
		}
		key := btrfsprim.UnmarshalKey(dat[:btrfsprim.KeySize])
		if key.ItemType != btrfsprim.CHUNK_ITEM_KEY {
			return nil, fmt.Errorf("sys_chunk_array: key %v is not a CHUNK_ITEM", key)
		}
		dat = dat[btrfsprim.KeySize:]
		var chunk btrfsitem.Chunk
		n, err := chunk.UnmarshalBinary(dat)
		if err != nil {
			return nil, fmt.Errorf("sys_chunk_array: chunk at %v: %w", key, err)
		}
		dat = dat[n:]
		ret = append(ret, SysChunk{Key: key, Chunk: chunk})
	}
	return ret, nil
}
