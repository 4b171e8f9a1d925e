// Copyright (C) 2022  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package btrfsitem

import (
	"encoding/binary"
	"fmt"
)

type FreeSpaceInfo struct { // FREE_SPACE_INFO=198
	ExtentCount int32
	Flags       uint32
}

func (FreeSpaceInfo) isItem() {}

func (o *FreeSpaceInfo) UnmarshalBinary(dat []byte) (int, error) {
	if len(dat) < 8 {
		return 0, fmt.Errorf("free space info: need 8 bytes, only have %d", len(dat))
	}
	o.ExtentCount = int32(binary.LittleEndian.Uint32(dat[0:4]))
	o.Flags = binary.LittleEndian.Uint32(dat[4:8])
	return 8, nil
}

func (o FreeSpaceInfo) MarshalBinary() ([]byte, error) {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(o.ExtentCount))
	binary.LittleEndian.PutUint32(buf[4:8], o.Flags)
	return buf, nil
}
