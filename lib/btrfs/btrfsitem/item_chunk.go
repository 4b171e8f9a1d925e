// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package btrfsitem

import (
	"encoding/binary"
	"fmt"

	"btrfsview/lib/btrfs/btrfsprim"
	"btrfsview/lib/btrfs/btrfsvol"
)

// A Chunk maps logical addresses to physical addresses.
//
// Compare with:
//   - DevExtents, which track allocation of the physical address space.
//   - BlockGroups, which track allocation of the logical address space.
//
// Key:
//
//	key.objectid = BTRFS_FIRST_CHUNK_TREE_OBJECTID
//	key.offset   = logical_addr
type Chunk struct { // complex CHUNK_ITEM=228
	Head    ChunkHeader
	Stripes []ChunkStripe
}

type ChunkHeader struct {
	Size           btrfsvol.AddrDelta
	Owner          btrfsprim.ObjID // root referencing this chunk (always EXTENT_TREE_OBJECTID=2)
	StripeLen      uint64
	Type           btrfsvol.BlockGroupFlags
	IOOptimalAlign uint32
	IOOptimalWidth uint32
	IOMinSize      uint32 // sector size
	NumStripes     uint16
	SubStripes     uint16
}

const chunkHeaderSize = 0x30
const chunkStripeSize = 0x20

type ChunkStripe struct {
	DeviceID   btrfsvol.DeviceID
	Offset     btrfsvol.PhysicalAddr
	DeviceUUID btrfsprim.UUID
}

func (Chunk) isItem() {}

// VolChunk converts the item into the btrfsvol.Chunk representation
// used by a ChunkStream.
func (chunk Chunk) VolChunk(key btrfsprim.Key) btrfsvol.Chunk {
	stripes := make([]btrfsvol.Stripe, len(chunk.Stripes))
	for i, s := range chunk.Stripes {
		stripes[i] = btrfsvol.Stripe{
			DeviceID:       s.DeviceID,
			PhysicalOffset: s.Offset,
			DeviceUUID:     s.DeviceUUID,
		}
	}
	return btrfsvol.Chunk{
		LogicalOffset: btrfsvol.LogicalAddr(key.Offset),
		Length:        chunk.Head.Size,
		StripeLength:  btrfsvol.AddrDelta(chunk.Head.StripeLen),
		Flags:         chunk.Head.Type,
		SubStripes:    int(chunk.Head.SubStripes),
		Stripes:       stripes,
	}
}

func unmarshalChunkHeader(dat []byte) ChunkHeader {
	return ChunkHeader{
		Size:           btrfsvol.AddrDelta(binary.LittleEndian.Uint64(dat[0x00:0x08])),
		Owner:          btrfsprim.ObjID(binary.LittleEndian.Uint64(dat[0x08:0x10])),
		StripeLen:      binary.LittleEndian.Uint64(dat[0x10:0x18]),
		Type:           btrfsvol.BlockGroupFlags(binary.LittleEndian.Uint64(dat[0x18:0x20])),
		IOOptimalAlign: binary.LittleEndian.Uint32(dat[0x20:0x24]),
		IOOptimalWidth: binary.LittleEndian.Uint32(dat[0x24:0x28]),
		IOMinSize:      binary.LittleEndian.Uint32(dat[0x28:0x2c]),
		NumStripes:     binary.LittleEndian.Uint16(dat[0x2c:0x2e]),
		SubStripes:     binary.LittleEndian.Uint16(dat[0x2e:0x30]),
	}
}

func marshalChunkHeaderTo(buf []byte, h ChunkHeader) {
	binary.LittleEndian.PutUint64(buf[0x00:0x08], uint64(h.Size))
	binary.LittleEndian.PutUint64(buf[0x08:0x10], uint64(h.Owner))
	binary.LittleEndian.PutUint64(buf[0x10:0x18], h.StripeLen)
	binary.LittleEndian.PutUint64(buf[0x18:0x20], uint64(h.Type))
	binary.LittleEndian.PutUint32(buf[0x20:0x24], h.IOOptimalAlign)
	binary.LittleEndian.PutUint32(buf[0x24:0x28], h.IOOptimalWidth)
	binary.LittleEndian.PutUint32(buf[0x28:0x2c], h.IOMinSize)
	binary.LittleEndian.PutUint16(buf[0x2c:0x2e], h.NumStripes)
	binary.LittleEndian.PutUint16(buf[0x2e:0x30], h.SubStripes)
}

func unmarshalChunkStripe(dat []byte) ChunkStripe {
	var s ChunkStripe
	s.DeviceID = btrfsvol.DeviceID(binary.LittleEndian.Uint64(dat[0x0:0x8]))
	s.Offset = btrfsvol.PhysicalAddr(binary.LittleEndian.Uint64(dat[0x8:0x10]))
	copy(s.DeviceUUID[:], dat[0x10:0x20])
	return s
}

func marshalChunkStripeTo(buf []byte, s ChunkStripe) {
	binary.LittleEndian.PutUint64(buf[0x0:0x8], uint64(s.DeviceID))
	binary.LittleEndian.PutUint64(buf[0x8:0x10], uint64(s.Offset))
	copy(buf[0x10:0x20], s.DeviceUUID[:])
}

func (chunk *Chunk) UnmarshalBinary(dat []byte) (int, error) {
	if len(dat) < chunkHeaderSize {
		return 0, fmt.Errorf("chunk item: need %d bytes, only have %d", chunkHeaderSize, len(dat))
	}
	chunk.Head = unmarshalChunkHeader(dat[:chunkHeaderSize])
	n := chunkHeaderSize
	chunk.Stripes = make([]ChunkStripe, chunk.Head.NumStripes)
	for i := range chunk.Stripes {
		if len(dat) < n+chunkStripeSize {
			return 0, fmt.Errorf("chunk item: stripe %d: need %d bytes, only have %d", i, n+chunkStripeSize, len(dat))
		}
		chunk.Stripes[i] = unmarshalChunkStripe(dat[n : n+chunkStripeSize])
		n += chunkStripeSize
	}
	return n, nil
}

func (chunk Chunk) MarshalBinary() ([]byte, error) {
	chunk.Head.NumStripes = uint16(len(chunk.Stripes))
	buf := make([]byte, chunkHeaderSize+len(chunk.Stripes)*chunkStripeSize)
	marshalChunkHeaderTo(buf[:chunkHeaderSize], chunk.Head)
	for i, s := range chunk.Stripes {
		marshalChunkStripeTo(buf[chunkHeaderSize+i*chunkStripeSize:chunkHeaderSize+(i+1)*chunkStripeSize], s)
	}
	return buf, nil
}
