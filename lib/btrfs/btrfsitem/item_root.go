// Copyright (C) 2022  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package btrfsitem

import (
	"encoding/binary"
	"fmt"

	"btrfsview/lib/btrfs/btrfsprim"
	"btrfsview/lib/btrfs/btrfsvol"
	"btrfsview/lib/fmtutil"
)

const rootSize = 0x1b7

type Root struct { // ROOT_ITEM=132
	Inode        Inode
	Generation   btrfsprim.Generation
	RootDirID    btrfsprim.ObjID
	ByteNr       btrfsvol.LogicalAddr
	ByteLimit    int64
	BytesUsed    int64
	LastSnapshot int64
	Flags        RootFlags
	Refs         int32
	DropProgress btrfsprim.Key
	DropLevel    uint8
	Level        uint8
	GenerationV2 btrfsprim.Generation
	UUID         btrfsprim.UUID
	ParentUUID   btrfsprim.UUID
	ReceivedUUID btrfsprim.UUID
	CTransID     int64
	OTransID     int64
	STransID     int64
	RTransID     int64
	CTime        btrfsprim.Time
	OTime        btrfsprim.Time
	STime        btrfsprim.Time
	RTime        btrfsprim.Time
	GlobalTreeID btrfsprim.ObjID
	Reserved     [7]int64
}

func (Root) isItem() {}

func (o *Root) UnmarshalBinary(dat []byte) (int, error) {
	if len(dat) < rootSize {
		return 0, fmt.Errorf("root item: need %d bytes, only have %d", rootSize, len(dat))
	}
	if _, err := o.Inode.UnmarshalBinary(dat[0x000:0x0a0]); err != nil {
		return 0, err
	}
	o.Generation = btrfsprim.Generation(binary.LittleEndian.Uint64(dat[0x0a0:0x0a8]))
	o.RootDirID = btrfsprim.ObjID(binary.LittleEndian.Uint64(dat[0x0a8:0x0b0]))
	o.ByteNr = btrfsvol.LogicalAddr(binary.LittleEndian.Uint64(dat[0x0b0:0x0b8]))
	o.ByteLimit = int64(binary.LittleEndian.Uint64(dat[0x0b8:0x0c0]))
	o.BytesUsed = int64(binary.LittleEndian.Uint64(dat[0x0c0:0x0c8]))
	o.LastSnapshot = int64(binary.LittleEndian.Uint64(dat[0x0c8:0x0d0]))
	o.Flags = RootFlags(binary.LittleEndian.Uint64(dat[0x0d0:0x0d8]))
	o.Refs = int32(binary.LittleEndian.Uint32(dat[0x0d8:0x0dc]))
	o.DropProgress = btrfsprim.UnmarshalKey(dat[0x0dc:0x0ed])
	o.DropLevel = dat[0x0ed]
	o.Level = dat[0x0ee]
	o.GenerationV2 = btrfsprim.Generation(binary.LittleEndian.Uint64(dat[0x0ef:0x0f7]))
	copy(o.UUID[:], dat[0x0f7:0x107])
	copy(o.ParentUUID[:], dat[0x107:0x117])
	copy(o.ReceivedUUID[:], dat[0x117:0x127])
	o.CTransID = int64(binary.LittleEndian.Uint64(dat[0x127:0x12f]))
	o.OTransID = int64(binary.LittleEndian.Uint64(dat[0x12f:0x137]))
	o.STransID = int64(binary.LittleEndian.Uint64(dat[0x137:0x13f]))
	o.RTransID = int64(binary.LittleEndian.Uint64(dat[0x13f:0x147]))
	o.CTime = unmarshalTime(dat[0x147:0x153])
	o.OTime = unmarshalTime(dat[0x153:0x15f])
	o.STime = unmarshalTime(dat[0x15f:0x16b])
	o.RTime = unmarshalTime(dat[0x16b:0x177])
	o.GlobalTreeID = btrfsprim.ObjID(binary.LittleEndian.Uint64(dat[0x177:0x17f]))
	for i := range o.Reserved {
		o.Reserved[i] = int64(binary.LittleEndian.Uint64(dat[0x17f+i*8 : 0x187+i*8]))
	}
	return rootSize, nil
}

func (o Root) MarshalBinary() ([]byte, error) {
	buf := make([]byte, rootSize)
	inodeBuf, err := o.Inode.MarshalBinary()
	if err != nil {
		return nil, err
	}
	copy(buf[0x000:0x0a0], inodeBuf)
	binary.LittleEndian.PutUint64(buf[0x0a0:0x0a8], uint64(o.Generation))
	binary.LittleEndian.PutUint64(buf[0x0a8:0x0b0], uint64(o.RootDirID))
	binary.LittleEndian.PutUint64(buf[0x0b0:0x0b8], uint64(o.ByteNr))
	binary.LittleEndian.PutUint64(buf[0x0b8:0x0c0], uint64(o.ByteLimit))
	binary.LittleEndian.PutUint64(buf[0x0c0:0x0c8], uint64(o.BytesUsed))
	binary.LittleEndian.PutUint64(buf[0x0c8:0x0d0], uint64(o.LastSnapshot))
	binary.LittleEndian.PutUint64(buf[0x0d0:0x0d8], uint64(o.Flags))
	binary.LittleEndian.PutUint32(buf[0x0d8:0x0dc], uint32(o.Refs))
	o.DropProgress.MarshalTo(buf[0x0dc:0x0ed])
	buf[0x0ed] = o.DropLevel
	buf[0x0ee] = o.Level
	binary.LittleEndian.PutUint64(buf[0x0ef:0x0f7], uint64(o.GenerationV2))
	copy(buf[0x0f7:0x107], o.UUID[:])
	copy(buf[0x107:0x117], o.ParentUUID[:])
	copy(buf[0x117:0x127], o.ReceivedUUID[:])
	binary.LittleEndian.PutUint64(buf[0x127:0x12f], uint64(o.CTransID))
	binary.LittleEndian.PutUint64(buf[0x12f:0x137], uint64(o.OTransID))
	binary.LittleEndian.PutUint64(buf[0x137:0x13f], uint64(o.STransID))
	binary.LittleEndian.PutUint64(buf[0x13f:0x147], uint64(o.RTransID))
	marshalTimeTo(buf[0x147:0x153], o.CTime)
	marshalTimeTo(buf[0x153:0x15f], o.OTime)
	marshalTimeTo(buf[0x15f:0x16b], o.STime)
	marshalTimeTo(buf[0x16b:0x177], o.RTime)
	binary.LittleEndian.PutUint64(buf[0x177:0x17f], uint64(o.GlobalTreeID))
	for i, v := range o.Reserved {
		binary.LittleEndian.PutUint64(buf[0x17f+i*8:0x187+i*8], uint64(v))
	}
	return buf, nil
}

type RootFlags uint64

const (
	ROOT_SUBVOL_RDONLY = RootFlags(1 << iota)
)

var rootFlagNames = []string{
	"SUBVOL_RDONLY",
}

func (f RootFlags) Has(req RootFlags) bool { return f&req == req }
func (f RootFlags) String() string         { return fmtutil.BitfieldString(f, rootFlagNames, fmtutil.HexLower) }
