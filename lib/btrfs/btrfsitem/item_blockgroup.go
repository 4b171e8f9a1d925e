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

const blockGroupSize = 24

// key.objectid = logical_addr
// key.offset = size of chunk
type BlockGroup struct { // BLOCK_GROUP_ITEM=192
	Used          int64
	ChunkObjectID btrfsprim.ObjID // always FIRST_CHUNK_TREE_OBJECTID
	Flags         btrfsvol.BlockGroupFlags
}

func (BlockGroup) isItem() {}

func (o *BlockGroup) UnmarshalBinary(dat []byte) (int, error) {
	if len(dat) < blockGroupSize {
		return 0, fmt.Errorf("block group item: need %d bytes, only have %d", blockGroupSize, len(dat))
	}
	o.Used = int64(binary.LittleEndian.Uint64(dat[0:8]))
	o.ChunkObjectID = btrfsprim.ObjID(binary.LittleEndian.Uint64(dat[8:16]))
	o.Flags = btrfsvol.BlockGroupFlags(binary.LittleEndian.Uint64(dat[16:24]))
	return blockGroupSize, nil
}

func (o BlockGroup) MarshalBinary() ([]byte, error) {
	buf := make([]byte, blockGroupSize)
	binary.LittleEndian.PutUint64(buf[0:8], uint64(o.Used))
	binary.LittleEndian.PutUint64(buf[8:16], uint64(o.ChunkObjectID))
	binary.LittleEndian.PutUint64(buf[16:24], uint64(o.Flags))
	return buf, nil
}
