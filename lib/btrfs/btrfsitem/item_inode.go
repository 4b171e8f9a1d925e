// Copyright (C) 2022  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package btrfsitem

import (
	"encoding/binary"
	"fmt"

	"btrfsview/lib/btrfs/btrfsprim"
	"btrfsview/lib/fmtutil"
	"btrfsview/lib/linux"
)

const inodeSize = 0xa0

type Inode struct { // INODE_ITEM=1
	Generation btrfsprim.Generation
	TransID    int64
	Size       int64 // stat
	NumBytes   int64
	BlockGroup int64
	NLink      int32          // stat
	UID        int32          // stat
	GID        int32          // stat
	Mode       linux.StatMode // stat
	RDev       int64          // stat
	Flags      InodeFlags     // statx.stx_attributes, sorta
	Sequence   int64          // NFS
	Reserved   [4]int64
	ATime      btrfsprim.Time // stat
	CTime      btrfsprim.Time // stat
	MTime      btrfsprim.Time // stat
	OTime      btrfsprim.Time // statx.stx_btime
}

func (Inode) isItem() {}

func unmarshalTime(dat []byte) btrfsprim.Time {
	return btrfsprim.Time{
		Sec:  int64(binary.LittleEndian.Uint64(dat[0:8])),
		NSec: binary.LittleEndian.Uint32(dat[8:12]),
	}
}

func marshalTimeTo(buf []byte, t btrfsprim.Time) {
	binary.LittleEndian.PutUint64(buf[0:8], uint64(t.Sec))
	binary.LittleEndian.PutUint32(buf[8:12], t.NSec)
}

func (o *Inode) UnmarshalBinary(dat []byte) (int, error) {
	if len(dat) < inodeSize {
		return 0, fmt.Errorf("inode item: need %d bytes, only have %d", inodeSize, len(dat))
	}
	o.Generation = btrfsprim.Generation(binary.LittleEndian.Uint64(dat[0x00:0x08]))
	o.TransID = int64(binary.LittleEndian.Uint64(dat[0x08:0x10]))
	o.Size = int64(binary.LittleEndian.Uint64(dat[0x10:0x18]))
	o.NumBytes = int64(binary.LittleEndian.Uint64(dat[0x18:0x20]))
	o.BlockGroup = int64(binary.LittleEndian.Uint64(dat[0x20:0x28]))
	o.NLink = int32(binary.LittleEndian.Uint32(dat[0x28:0x2c]))
	o.UID = int32(binary.LittleEndian.Uint32(dat[0x2c:0x30]))
	o.GID = int32(binary.LittleEndian.Uint32(dat[0x30:0x34]))
	o.Mode = linux.StatMode(binary.LittleEndian.Uint32(dat[0x34:0x38]))
	o.RDev = int64(binary.LittleEndian.Uint64(dat[0x38:0x40]))
	o.Flags = InodeFlags(binary.LittleEndian.Uint64(dat[0x40:0x48]))
	o.Sequence = int64(binary.LittleEndian.Uint64(dat[0x48:0x50]))
	for i := range o.Reserved {
		o.Reserved[i] = int64(binary.LittleEndian.Uint64(dat[0x50+i*8 : 0x58+i*8]))
	}
	o.ATime = unmarshalTime(dat[0x70:0x7c])
	o.CTime = unmarshalTime(dat[0x7c:0x88])
	o.MTime = unmarshalTime(dat[0x88:0x94])
	o.OTime = unmarshalTime(dat[0x94:0xa0])
	return inodeSize, nil
}

func (o Inode) MarshalBinary() ([]byte, error) {
	buf := make([]byte, inodeSize)
	binary.LittleEndian.PutUint64(buf[0x00:0x08], uint64(o.Generation))
	binary.LittleEndian.PutUint64(buf[0x08:0x10], uint64(o.TransID))
	binary.LittleEndian.PutUint64(buf[0x10:0x18], uint64(o.Size))
	binary.LittleEndian.PutUint64(buf[0x18:0x20], uint64(o.NumBytes))
	binary.LittleEndian.PutUint64(buf[0x20:0x28], uint64(o.BlockGroup))
	binary.LittleEndian.PutUint32(buf[0x28:0x2c], uint32(o.NLink))
	binary.LittleEndian.PutUint32(buf[0x2c:0x30], uint32(o.UID))
	binary.LittleEndian.PutUint32(buf[0x30:0x34], uint32(o.GID))
	binary.LittleEndian.PutUint32(buf[0x34:0x38], uint32(o.Mode))
	binary.LittleEndian.PutUint64(buf[0x38:0x40], uint64(o.RDev))
	binary.LittleEndian.PutUint64(buf[0x40:0x48], uint64(o.Flags))
	binary.LittleEndian.PutUint64(buf[0x48:0x50], uint64(o.Sequence))
	for i, v := range o.Reserved {
		binary.LittleEndian.PutUint64(buf[0x50+i*8:0x58+i*8], uint64(v))
	}
	marshalTimeTo(buf[0x70:0x7c], o.ATime)
	marshalTimeTo(buf[0x7c:0x88], o.CTime)
	marshalTimeTo(buf[0x88:0x94], o.MTime)
	marshalTimeTo(buf[0x94:0xa0], o.OTime)
	return buf, nil
}

type InodeFlags uint64

const (
	INODE_NODATASUM = InodeFlags(1 << iota)
	INODE_NODATACOW
	INODE_READONLY
	INODE_NOCOMPRESS
	INODE_PREALLOC
	INODE_SYNC
	INODE_IMMUTABLE
	INODE_APPEND
	INODE_NODUMP
	INODE_NOATIME
	INODE_DIRSYNC
	INODE_COMPRESS
)

var inodeFlagNames = []string{
	"NODATASUM",
	"NODATACOW",
	"READONLY",
	"NOCOMPRESS",
	"PREALLOC",
	"SYNC",
	"IMMUTABLE",
	"APPEND",
	"NODUMP",
	"NOATIME",
	"DIRSYNC",
	"COMPRESS",
}

func (f InodeFlags) Has(req InodeFlags) bool { return f&req == req }
func (f InodeFlags) String() string          { return fmtutil.BitfieldString(f, inodeFlagNames, fmtutil.HexLower) }
