// Copyright (C) 2022  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package btrfsitem

import (
	"encoding/binary"
	"fmt"

	"btrfsview/lib/btrfs/btrfsprim"
	"btrfsview/lib/fmtutil"
)

// key.objectid = laddr of the extent
// key.offset = length of the extent
type Extent struct { // EXTENT_ITEM=168
	Head ExtentHeader
	Info TreeBlockInfo // only if .Head.Flags.Has(EXTENT_FLAG_TREE_BLOCK)
	Refs []ExtentInlineRef
}

func (Extent) isItem() {}

func (o *Extent) UnmarshalBinary(dat []byte) (int, error) {
	if len(dat) < extentHeaderSize {
		return 0, fmt.Errorf("extent item: need %d bytes, only have %d", extentHeaderSize, len(dat))
	}
	o.Head = unmarshalExtentHeader(dat[:extentHeaderSize])
	n := extentHeaderSize
	if o.Head.Flags.Has(EXTENT_FLAG_TREE_BLOCK) {
		if len(dat) < n+treeBlockInfoSize {
			return 0, fmt.Errorf("extent item: need %d bytes, only have %d", n+treeBlockInfoSize, len(dat))
		}
		o.Info = unmarshalTreeBlockInfo(dat[n : n+treeBlockInfoSize])
		n += treeBlockInfoSize
	}
	o.Refs = nil
	for n < len(dat) {
		var ref ExtentInlineRef
		consumed, err := ref.UnmarshalBinary(dat[n:])
		n += consumed
		o.Refs = append(o.Refs, ref)
		if err != nil {
			return n, err
		}
	}
	return n, nil
}

func (o Extent) MarshalBinary() ([]byte, error) {
	buf := make([]byte, extentHeaderSize)
	marshalExtentHeaderTo(buf, o.Head)
	if o.Head.Flags.Has(EXTENT_FLAG_TREE_BLOCK) {
		infoBuf := make([]byte, treeBlockInfoSize)
		marshalTreeBlockInfoTo(infoBuf, o.Info)
		buf = append(buf, infoBuf...)
	}
	for _, ref := range o.Refs {
		bs, err := ref.MarshalBinary()
		buf = append(buf, bs...)
		if err != nil {
			return buf, err
		}
	}
	return buf, nil
}

const extentHeaderSize = 24

type ExtentHeader struct {
	Refs       int64
	Generation btrfsprim.Generation
	Flags      ExtentFlags
}

func unmarshalExtentHeader(dat []byte) ExtentHeader {
	return ExtentHeader{
		Refs:       int64(binary.LittleEndian.Uint64(dat[0:8])),
		Generation: btrfsprim.Generation(binary.LittleEndian.Uint64(dat[8:16])),
		Flags:      ExtentFlags(binary.LittleEndian.Uint64(dat[16:24])),
	}
}

func marshalExtentHeaderTo(buf []byte, h ExtentHeader) {
	binary.LittleEndian.PutUint64(buf[0:8], uint64(h.Refs))
	binary.LittleEndian.PutUint64(buf[8:16], uint64(h.Generation))
	binary.LittleEndian.PutUint64(buf[16:24], uint64(h.Flags))
}

const treeBlockInfoSize = 0x12

type TreeBlockInfo struct {
	Key   btrfsprim.Key
	Level uint8
}

func unmarshalTreeBlockInfo(dat []byte) TreeBlockInfo {
	return TreeBlockInfo{
		Key:   btrfsprim.UnmarshalKey(dat[0:0x11]),
		Level: dat[0x11],
	}
}

func marshalTreeBlockInfoTo(buf []byte, t TreeBlockInfo) {
	t.Key.MarshalTo(buf[0:0x11])
	buf[0x11] = t.Level
}

type ExtentFlags uint64

const (
	EXTENT_FLAG_DATA = ExtentFlags(1 << iota)
	EXTENT_FLAG_TREE_BLOCK
)

var extentFlagNames = []string{
	"DATA",
	"TREE_BLOCK",
}

func (f ExtentFlags) Has(req ExtentFlags) bool { return f&req == req }
func (f ExtentFlags) String() string {
	return fmtutil.BitfieldString(f, extentFlagNames, fmtutil.HexNone)
}

type ExtentInlineRef struct {
	Type   btrfsprim.ItemType // only 4 valid values: {TREE,SHARED}_BLOCK_REF_KEY, {EXTENT,SHARED}_DATA_REF_KEY
	Offset uint64             // only when Type != EXTENT_DATA_REF_KEY
	Body   Item               // only when Type == *_DATA_REF_KEY
}

func (o *ExtentInlineRef) UnmarshalBinary(dat []byte) (int, error) {
	if len(dat) < 1 {
		return 0, fmt.Errorf("extent inline ref: need at least 1 byte")
	}
	o.Type = btrfsprim.ItemType(dat[0])
	n := 1
	switch o.Type {
	case btrfsprim.TREE_BLOCK_REF_KEY, btrfsprim.SHARED_BLOCK_REF_KEY:
		if len(dat) < n+8 {
			return n, fmt.Errorf("extent inline ref: need %d bytes, only have %d", n+8, len(dat))
		}
		o.Offset = binary.LittleEndian.Uint64(dat[n : n+8])
		n += 8
	case btrfsprim.EXTENT_DATA_REF_KEY:
		var dref ExtentDataRef
		consumed, err := dref.UnmarshalBinary(dat[n:])
		n += consumed
		o.Body = dref
		if err != nil {
			return n, err
		}
	case btrfsprim.SHARED_DATA_REF_KEY:
		if len(dat) < n+8 {
			return n, fmt.Errorf("extent inline ref: need %d bytes, only have %d", n+8, len(dat))
		}
		o.Offset = binary.LittleEndian.Uint64(dat[n : n+8])
		n += 8
		var sref SharedDataRef
		consumed, err := sref.UnmarshalBinary(dat[n:])
		n += consumed
		o.Body = sref
		if err != nil {
			return n, err
		}
	default:
		return n, fmt.Errorf("unexpected item type %v", o.Type)
	}
	return n, nil
}

func (o ExtentInlineRef) MarshalBinary() ([]byte, error) {
	buf := []byte{byte(o.Type)}
	switch o.Type {
	case btrfsprim.TREE_BLOCK_REF_KEY, btrfsprim.SHARED_BLOCK_REF_KEY:
		off := make([]byte, 8)
		binary.LittleEndian.PutUint64(off, o.Offset)
		buf = append(buf, off...)
	case btrfsprim.EXTENT_DATA_REF_KEY:
		bs, err := o.Body.MarshalBinary()
		buf = append(buf, bs...)
		if err != nil {
			return buf, err
		}
	case btrfsprim.SHARED_DATA_REF_KEY:
		off := make([]byte, 8)
		binary.LittleEndian.PutUint64(off, o.Offset)
		buf = append(buf, off...)
		bs, err := o.Body.MarshalBinary()
		buf = append(buf, bs...)
		if err != nil {
			return buf, err
		}
	default:
		return buf, fmt.Errorf("unexpected item type %v", o.Type)
	}
	return buf, nil
}
