// Copyright (C) 2022  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package btrfsitem

import (
	"encoding/binary"
	"fmt"

	"btrfsview/lib/btrfs/btrfsprim"
)

const extentDataRefSize = 28

type ExtentDataRef struct { // EXTENT_DATA_REF=178
	Root     btrfsprim.ObjID
	ObjectID btrfsprim.ObjID
	Offset   int64
	Count    int32
}

func (ExtentDataRef) isItem() {}

func (o *ExtentDataRef) UnmarshalBinary(dat []byte) (int, error) {
	if len(dat) < extentDataRefSize {
		return 0, fmt.Errorf("extent data ref: need %d bytes, only have %d", extentDataRefSize, len(dat))
	}
	o.Root = btrfsprim.ObjID(binary.LittleEndian.Uint64(dat[0:8]))
	o.ObjectID = btrfsprim.ObjID(binary.LittleEndian.Uint64(dat[8:16]))
	o.Offset = int64(binary.LittleEndian.Uint64(dat[16:24]))
	o.Count = int32(binary.LittleEndian.Uint32(dat[24:28]))
	return extentDataRefSize, nil
}

func (o ExtentDataRef) MarshalBinary() ([]byte, error) {
	buf := make([]byte, extentDataRefSize)
	binary.LittleEndian.PutUint64(buf[0:8], uint64(o.Root))
	binary.LittleEndian.PutUint64(buf[8:16], uint64(o.ObjectID))
	binary.LittleEndian.PutUint64(buf[16:24], uint64(o.Offset))
	binary.LittleEndian.PutUint32(buf[24:28], uint32(o.Count))
	return buf, nil
}
