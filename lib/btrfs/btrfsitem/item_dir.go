// Copyright (C) 2022  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package btrfsitem

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"

	"btrfsview/lib/btrfs/btrfsprim"
)

const MaxNameLen = 255

// NameHash computes the directory-entry name hash used as the Offset
// of DIR_ITEM and XATTR_ITEM keys: CRC32C seeded with ~1 (crc32.Update
// inverts the 1 passed in) and with no final inversion (the outer ^
// undoes the one crc32.Update applies on the way out).
func NameHash(dat []byte) uint64 {
	return uint64(^crc32.Update(1, crc32.MakeTable(crc32.Castagnoli), dat))
}

const dirEntryHeaderSize = 0x1e

// key.objectid = inode of directory containing this entry
// key.offset =
//   - for DIR_ITEM and XATTR_ITEM = NameHash(name)
//   - for DIR_INDEX               = index id in the directory (starting at 2, because "." and "..")
type DirEntry struct { // DIR_ITEM=84 DIR_INDEX=96 XATTR_ITEM=24
	Location btrfsprim.Key
	TransID  int64
	Type     FileType
	Data     []byte // xattr value (only for XATTR_ITEM)
	Name     []byte
}

func (DirEntry) isItem() {}

func (o *DirEntry) UnmarshalBinary(dat []byte) (int, error) {
	if len(dat) < dirEntryHeaderSize {
		return 0, fmt.Errorf("dir entry: need %d bytes, only have %d", dirEntryHeaderSize, len(dat))
	}
	o.Location = btrfsprim.UnmarshalKey(dat[0x00:0x11])
	o.TransID = int64(binary.LittleEndian.Uint64(dat[0x11:0x19]))
	dataLen := binary.LittleEndian.Uint16(dat[0x19:0x1b])
	nameLen := binary.LittleEndian.Uint16(dat[0x1b:0x1d])
	o.Type = FileType(dat[0x1d])
	if nameLen > MaxNameLen {
		return 0, fmt.Errorf("maximum name len is %v, but .NameLen=%v", MaxNameLen, nameLen)
	}
	n := dirEntryHeaderSize
	end := n + int(nameLen) + int(dataLen)
	if len(dat) < end {
		return 0, fmt.Errorf("dir entry: need %d bytes, only have %d", end, len(dat))
	}
	o.Name = dat[n : n+int(nameLen)]
	n += int(nameLen)
	o.Data = dat[n : n+int(dataLen)]
	n += int(dataLen)
	return n, nil
}

func (o DirEntry) MarshalBinary() ([]byte, error) {
	buf := make([]byte, dirEntryHeaderSize)
	o.Location.MarshalTo(buf[0x00:0x11])
	binary.LittleEndian.PutUint64(buf[0x11:0x19], uint64(o.TransID))
	binary.LittleEndian.PutUint16(buf[0x19:0x1b], uint16(len(o.Data)))
	binary.LittleEndian.PutUint16(buf[0x1b:0x1d], uint16(len(o.Name)))
	buf[0x1d] = byte(o.Type)
	buf = append(buf, o.Name...)
	buf = append(buf, o.Data...)
	return buf, nil
}

type FileType uint8

const (
	FT_UNKNOWN  = FileType(0)
	FT_REG_FILE = FileType(1)
	FT_DIR      = FileType(2)
	FT_CHRDEV   = FileType(3)
	FT_BLKDEV   = FileType(4)
	FT_FIFO     = FileType(5)
	FT_SOCK     = FileType(6)
	FT_SYMLINK  = FileType(7)
	FT_XATTR    = FileType(8)

	FT_MAX = FileType(9)
)

func (ft FileType) String() string {
	names := map[FileType]string{
		FT_UNKNOWN:  "UNKNOWN",
		FT_REG_FILE: "FILE",
		FT_DIR:      "DIR",
		FT_CHRDEV:   "CHRDEV",
		FT_BLKDEV:   "BLKDEV",
		FT_FIFO:     "FIFO",
		FT_SOCK:     "SOCK",
		FT_SYMLINK:  "SYMLINK",
		FT_XATTR:    "XATTR",
	}
	if name, ok := names[ft]; ok {
		return name
	}
	return fmt.Sprintf("DIR_ITEM.%d", uint8(ft))
}
