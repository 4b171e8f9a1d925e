// Copyright (C) 2022  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package btrfsitem

import (
	"encoding/binary"
	"fmt"

	"btrfsview/lib/btrfs/btrfsprim"
	"btrfsview/lib/btrfs/btrfsvol"
)

const devExtentSize = 48

// key.objectid = device_id
// key.offset = physical_addr
type DevExtent struct { // DEV_EXTENT=204
	ChunkTree     btrfsprim.ObjID      // always CHUNK_TREE_OBJECTID
	ChunkObjectID btrfsprim.ObjID      // which chunk within .ChunkTree owns this extent, always FIRST_CHUNK_TREE_OBJECTID
	ChunkOffset   btrfsvol.LogicalAddr // offset of the CHUNK_ITEM that owns this extent, within .ChunkObjectID
	Length        btrfsvol.AddrDelta
	ChunkTreeUUID btrfsprim.UUID
}

func (DevExtent) isItem() {}

func (o *DevExtent) UnmarshalBinary(dat []byte) (int, error) {
	if len(dat) < devExtentSize {
		return 0, fmt.Errorf("dev extent: need %d bytes, only have %d", devExtentSize, len(dat))
	}
	o.ChunkTree = btrfsprim.ObjID(binary.LittleEndian.Uint64(dat[0:8]))
	o.ChunkObjectID = btrfsprim.ObjID(binary.LittleEndian.Uint64(dat[8:16]))
	o.ChunkOffset = btrfsvol.LogicalAddr(binary.LittleEndian.Uint64(dat[16:24]))
	o.Length = btrfsvol.AddrDelta(binary.LittleEndian.Uint64(dat[24:32]))
	copy(o.ChunkTreeUUID[:], dat[32:48])
	return devExtentSize, nil
}

func (o DevExtent) MarshalBinary() ([]byte, error) {
	buf := make([]byte, devExtentSize)
	binary.LittleEndian.PutUint64(buf[0:8], uint64(o.ChunkTree))
	binary.LittleEndian.PutUint64(buf[8:16], uint64(o.ChunkObjectID))
	binary.LittleEndian.PutUint64(buf[16:24], uint64(o.ChunkOffset))
	binary.LittleEndian.PutUint64(buf[24:32], uint64(o.Length))
	copy(buf[32:48], o.ChunkTreeUUID[:])
	return buf, nil
}
