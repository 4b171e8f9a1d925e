// Copyright (C) 2022  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package btrfsitem

import (
	"encoding/binary"
	"fmt"
)

// key.objectid = laddr of the extent being referenced
//
// key.offset = laddr of the leaf node containing the FileExtent
// (EXTENT_DATA_KEY) for this reference.
type SharedDataRef struct { // SHARED_DATA_REF=184
	Count int32 // reference count
}

func (SharedDataRef) isItem() {}

func (o *SharedDataRef) UnmarshalBinary(dat []byte) (int, error) {
	if len(dat) < 4 {
		return 0, fmt.Errorf("shared data ref: need 4 bytes, only have %d", len(dat))
	}
	o.Count = int32(binary.LittleEndian.Uint32(dat[0:4]))
	return 4, nil
}

func (o SharedDataRef) MarshalBinary() ([]byte, error) {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(o.Count))
	return buf, nil
}
