// Copyright (C) 2022  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package btrfsitem

import (
	"encoding/binary"
	"fmt"

	"btrfsview/lib/btrfs/btrfsprim"
)

type RootRef struct { // ROOT_REF=156 ROOT_BACKREF=144
	DirID    btrfsprim.ObjID
	Sequence int64
	Name     []byte
}

func (RootRef) isItem() {}

func (o *RootRef) UnmarshalBinary(dat []byte) (int, error) {
	if len(dat) < 0x12 {
		return 0, fmt.Errorf("root ref: need 18 bytes, only have %d", len(dat))
	}
	o.DirID = btrfsprim.ObjID(binary.LittleEndian.Uint64(dat[0x00:0x08]))
	o.Sequence = int64(binary.LittleEndian.Uint64(dat[0x08:0x10]))
	nameLen := binary.LittleEndian.Uint16(dat[0x10:0x12])
	if nameLen > MaxNameLen {
		return 0, fmt.Errorf("maximum name len is %v, but .NameLen=%v", MaxNameLen, nameLen)
	}
	n := 0x12
	if len(dat) < n+int(nameLen) {
		return 0, fmt.Errorf("root ref: need %d bytes, only have %d", n+int(nameLen), len(dat))
	}
	o.Name = dat[n : n+int(nameLen)]
	n += int(nameLen)
	return n, nil
}

func (o RootRef) MarshalBinary() ([]byte, error) {
	buf := make([]byte, 0x12)
	binary.LittleEndian.PutUint64(buf[0x00:0x08], uint64(o.DirID))
	binary.LittleEndian.PutUint64(buf[0x08:0x10], uint64(o.Sequence))
	binary.LittleEndian.PutUint16(buf[0x10:0x12], uint16(len(o.Name)))
	buf = append(buf, o.Name...)
	return buf, nil
}
