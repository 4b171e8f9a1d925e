// Copyright (C) 2022  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package btrfsitem

import (
	"encoding/binary"
	"fmt"

	"btrfsview/lib/btrfs/btrfsprim"
)

// key.objectid = inode number of the file
// key.offset = inode number of the parent file
type InodeRef struct { // INODE_REF=12
	Index int64
	Name  []byte
}

func (InodeRef) isItem() {}

func (o *InodeRef) UnmarshalBinary(dat []byte) (int, error) {
	if len(dat) < 0xa {
		return 0, fmt.Errorf("inode ref: need 10 bytes, only have %d", len(dat))
	}
	o.Index = int64(binary.LittleEndian.Uint64(dat[0x0:0x8]))
	nameLen := binary.LittleEndian.Uint16(dat[0x8:0xa])
	if nameLen > MaxNameLen {
		return 0, fmt.Errorf("maximum name len is %v, but .NameLen=%v", MaxNameLen, nameLen)
	}
	n := 0xa
	if len(dat) < n+int(nameLen) {
		return 0, fmt.Errorf("inode ref: need %d bytes, only have %d", n+int(nameLen), len(dat))
	}
	o.Name = dat[n : n+int(nameLen)]
	n += int(nameLen)
	return n, nil
}

func (o InodeRef) MarshalBinary() ([]byte, error) {
	buf := make([]byte, 0xa)
	binary.LittleEndian.PutUint64(buf[0x0:0x8], uint64(o.Index))
	binary.LittleEndian.PutUint16(buf[0x8:0xa], uint16(len(o.Name)))
	buf = append(buf, o.Name...)
	return buf, nil
}

// key.objectid = inode number of the file
// key.offset = inode number of the parent directory
type InodeExtRef struct { // INODE_EXTREF=13
	ParentObjID btrfsprim.ObjID
	Index       int64
	Name        []byte
}

func (InodeExtRef) isItem() {}

func (o *InodeExtRef) UnmarshalBinary(dat []byte) (int, error) {
	if len(dat) < 0x12 {
		return 0, fmt.Errorf("inode extref: need 18 bytes, only have %d", len(dat))
	}
	o.ParentObjID = btrfsprim.ObjID(binary.LittleEndian.Uint64(dat[0x00:0x08]))
	o.Index = int64(binary.LittleEndian.Uint64(dat[0x08:0x10]))
	nameLen := binary.LittleEndian.Uint16(dat[0x10:0x12])
	if nameLen > MaxNameLen {
		return 0, fmt.Errorf("maximum name len is %v, but .NameLen=%v", MaxNameLen, nameLen)
	}
	n := 0x12
	if len(dat) < n+int(nameLen) {
		return 0, fmt.Errorf("inode extref: need %d bytes, only have %d", n+int(nameLen), len(dat))
	}
	o.Name = dat[n : n+int(nameLen)]
	n += int(nameLen)
	return n, nil
}

func (o InodeExtRef) MarshalBinary() ([]byte, error) {
	buf := make([]byte, 0x12)
	binary.LittleEndian.PutUint64(buf[0x00:0x08], uint64(o.ParentObjID))
	binary.LittleEndian.PutUint64(buf[0x08:0x10], uint64(o.Index))
	binary.LittleEndian.PutUint16(buf[0x10:0x12], uint16(len(o.Name)))
	buf = append(buf, o.Name...)
	return buf, nil
}
