// Copyright (C) 2022  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package btrfsitem

import (
	"encoding/binary"
	"fmt"

	"btrfsview/lib/btrfs/btrfsprim"
)

const freeSpaceHeaderSize = 0x29

type FreeSpaceHeader struct { // UNTYPED=0:FREE_SPACE_OBJECTID
	Location   btrfsprim.Key
	Generation btrfsprim.Generation
	NumEntries int64
	NumBitmaps int64
}

func (FreeSpaceHeader) isItem() {}

func (o *FreeSpaceHeader) UnmarshalBinary(dat []byte) (int, error) {
	if len(dat) < freeSpaceHeaderSize {
		return 0, fmt.Errorf("free space header: need %d bytes, only have %d", freeSpaceHeaderSize, len(dat))
	}
	o.Location = btrfsprim.UnmarshalKey(dat[0x00:0x11])
	o.Generation = btrfsprim.Generation(binary.LittleEndian.Uint64(dat[0x11:0x19]))
	o.NumEntries = int64(binary.LittleEndian.Uint64(dat[0x19:0x21]))
	o.NumBitmaps = int64(binary.LittleEndian.Uint64(dat[0x21:0x29]))
	return freeSpaceHeaderSize, nil
}

func (o FreeSpaceHeader) MarshalBinary() ([]byte, error) {
	buf := make([]byte, freeSpaceHeaderSize)
	o.Location.MarshalTo(buf[0x00:0x11])
	binary.LittleEndian.PutUint64(buf[0x11:0x19], uint64(o.Generation))
	binary.LittleEndian.PutUint64(buf[0x19:0x21], uint64(o.NumEntries))
	binary.LittleEndian.PutUint64(buf[0x21:0x29], uint64(o.NumBitmaps))
	return buf, nil
}
