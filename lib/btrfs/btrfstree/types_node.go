// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package btrfstree

import (
	"encoding/binary"
	"fmt"

	"btrfsview/lib/btrfs/btrfsitem"
	"btrfsview/lib/btrfs/btrfsprim"
	"btrfsview/lib/btrfs/btrfssum"
	"btrfsview/lib/btrfs/btrfsvol"
	"btrfsview/lib/fmtutil"
)

const (
	csumSize       = 0x20
	nodeHeaderSize = 0x65
	keyPointerSize = 0x21
	itemHeaderSize = 0x19
)

// NodeFlags is the low 7 bytes of the header's 8-byte flags field; the
// high byte is BackrefRev.
type NodeFlags uint64

const (
	NodeWritten NodeFlags = 1 << iota
	NodeReloc
)

var nodeFlagNames = []string{"WRITTEN", "RELOC"}

func (f NodeFlags) Has(req NodeFlags) bool { return f&req == req }
func (f NodeFlags) String() string         { return fmtutil.BitfieldString(f, nodeFlagNames, fmtutil.HexLower) }

type BackrefRev uint8

const (
	OldBackrefRev BackrefRev = iota
	MixedBackrefRev
)

// Node is the parsed form of one on-disk tree block: a fixed header
// followed by either interior key pointers or leaf items, depending on
// Head.Level.
type Node struct {
	Size         uint32
	ChecksumType btrfssum.CSumType

	Head NodeHeader

	BodyInterior []KeyPointer // populated when Head.Level > 0
	BodyLeaf     []Item       // populated when Head.Level == 0

	Padding []byte
}

type NodeHeader struct {
	Checksum      btrfssum.CSum
	MetadataUUID  btrfsprim.UUID
	Addr          btrfsvol.LogicalAddr
	Flags         NodeFlags
	BackrefRev    BackrefRev
	ChunkTreeUUID btrfsprim.UUID
	Generation    btrfsprim.Generation
	Owner         btrfsprim.ObjID
	NumItems      uint32
	Level         uint8
}

func unmarshalNodeHeader(dat []byte) NodeHeader {
	var h NodeHeader
	copy(h.Checksum[:], dat[0x00:0x20])
	copy(h.MetadataUUID[:], dat[0x20:0x30])
	h.Addr = btrfsvol.LogicalAddr(binary.LittleEndian.Uint64(dat[0x30:0x38]))
	var flags [8]byte
	copy(flags[:7], dat[0x38:0x3f])
	h.Flags = NodeFlags(binary.LittleEndian.Uint64(flags[:]))
	h.BackrefRev = BackrefRev(dat[0x3f])
	copy(h.ChunkTreeUUID[:], dat[0x40:0x50])
	h.Generation = btrfsprim.Generation(binary.LittleEndian.Uint64(dat[0x50:0x58]))
	h.Owner = btrfsprim.ObjID(binary.LittleEndian.Uint64(dat[0x58:0x60]))
	h.NumItems = binary.LittleEndian.Uint32(dat[0x60:0x64])
	h.Level = dat[0x64]
	return h
}

func marshalNodeHeaderTo(buf []byte, h NodeHeader) {
	copy(buf[0x00:0x20], h.Checksum[:])
	copy(buf[0x20:0x30], h.MetadataUUID[:])
	binary.LittleEndian.PutUint64(buf[0x30:0x38], uint64(h.Addr))
	var flags [8]byte
	binary.LittleEndian.PutUint64(flags[:], uint64(h.Flags))
	copy(buf[0x38:0x3f], flags[:7])
	buf[0x3f] = byte(h.BackrefRev)
	copy(buf[0x40:0x50], h.ChunkTreeUUID[:])
	binary.LittleEndian.PutUint64(buf[0x50:0x58], uint64(h.Generation))
	binary.LittleEndian.PutUint64(buf[0x58:0x60], uint64(h.Owner))
	binary.LittleEndian.PutUint32(buf[0x60:0x64], h.NumItems)
	buf[0x64] = h.Level
}

// MaxItems returns the maximum possible value of Head.NumItems for a
// node of this size and level.
func (node Node) MaxItems() uint32 {
	bodyBytes := node.Size - nodeHeaderSize
	if node.Head.Level > 0 {
		return bodyBytes / keyPointerSize
	}
	return bodyBytes / itemHeaderSize
}

func (node Node) MinItem() (btrfsprim.Key, bool) {
	switch {
	case node.Head.Level > 0:
		if len(node.BodyInterior) == 0 {
			return btrfsprim.Key{}, false
		}
		return node.BodyInterior[0].Key, true
	default:
		if len(node.BodyLeaf) == 0 {
			return btrfsprim.Key{}, false
		}
		return node.BodyLeaf[0].Key, true
	}
}

func (node Node) MaxItem() (btrfsprim.Key, bool) {
	switch {
	case node.Head.Level > 0:
		if len(node.BodyInterior) == 0 {
			return btrfsprim.Key{}, false
		}
		return node.BodyInterior[len(node.BodyInterior)-1].Key, true
	default:
		if len(node.BodyLeaf) == 0 {
			return btrfsprim.Key{}, false
		}
		return node.BodyLeaf[len(node.BodyLeaf)-1].Key, true
	}
}

func (node Node) MarshalBinary() ([]byte, error) {
	if node.Size <= nodeHeaderSize {
		return nil, fmt.Errorf("btrfstree: node size %v too small to contain a header", node.Size)
	}
	node.Head.NumItems = uint32(len(node.BodyLeaf))
	if node.Head.Level > 0 {
		node.Head.NumItems = uint32(len(node.BodyInterior))
	}
	buf := make([]byte, node.Size)
	marshalNodeHeaderTo(buf, node.Head)
	body := buf[nodeHeaderSize:]
	if node.Head.Level > 0 {
		if err := node.marshalInteriorTo(body); err != nil {
			return buf, err
		}
	} else if err := node.marshalLeafTo(body); err != nil {
		return buf, err
	}
	return buf, nil
}

func (node Node) CalculateChecksum() (btrfssum.CSum, error) {
	data, err := node.MarshalBinary()
	if err != nil {
		return btrfssum.CSum{}, err
	}
	return node.ChecksumType.Sum(data[csumSize:])
}

func (node Node) ValidateChecksum() error {
	calced, err := node.CalculateChecksum()
	if err != nil {
		return err
	}
	if calced != node.Head.Checksum {
		return fmt.Errorf("node checksum mismatch: stored=%v calculated=%v", node.Head.Checksum, calced)
	}
	return nil
}

// KeyPointer is one entry of an interior node's body: the smallest key
// in the subtree rooted at BlockPtr, plus enough metadata to sanity-
// check the child node once it's read.
type KeyPointer struct {
	Key        btrfsprim.Key
	BlockPtr   btrfsvol.LogicalAddr
	Generation btrfsprim.Generation
}

func unmarshalKeyPointer(dat []byte) KeyPointer {
	return KeyPointer{
		Key:        btrfsprim.UnmarshalKey(dat[0x00:0x11]),
		BlockPtr:   btrfsvol.LogicalAddr(binary.LittleEndian.Uint64(dat[0x11:0x19])),
		Generation: btrfsprim.Generation(binary.LittleEndian.Uint64(dat[0x19:0x21])),
	}
}

func marshalKeyPointerTo(buf []byte, kp KeyPointer) {
	kp.Key.MarshalTo(buf[0x00:0x11])
	binary.LittleEndian.PutUint64(buf[0x11:0x19], uint64(kp.BlockPtr))
	binary.LittleEndian.PutUint64(buf[0x19:0x21], uint64(kp.Generation))
}

func (node *Node) unmarshalInterior(bodyBuf []byte) error {
	node.BodyInterior = make([]KeyPointer, node.Head.NumItems)
	n := 0
	for i := range node.BodyInterior {
		if n+keyPointerSize > len(bodyBuf) {
			return fmt.Errorf("key pointer %v: runs past end of node", i)
		}
		node.BodyInterior[i] = unmarshalKeyPointer(bodyBuf[n : n+keyPointerSize])
		n += keyPointerSize
	}
	node.Padding = bodyBuf[n:]
	return nil
}

func (node *Node) marshalInteriorTo(bodyBuf []byte) error {
	n := 0
	for i, kp := range node.BodyInterior {
		if n+keyPointerSize > len(bodyBuf) {
			return fmt.Errorf("key pointer %v: not enough space", i)
		}
		marshalKeyPointerTo(bodyBuf[n:n+keyPointerSize], kp)
		n += keyPointerSize
	}
	copy(bodyBuf[n:], node.Padding)
	return nil
}

// Item is one entry of a leaf node's body.
type Item struct {
	Key      btrfsprim.Key
	BodySize uint32
	Body     btrfsitem.Item
}

type itemHeader struct {
	Key        btrfsprim.Key
	DataOffset uint32
	DataSize   uint32
}

func unmarshalItemHeader(dat []byte) itemHeader {
	return itemHeader{
		Key:        btrfsprim.UnmarshalKey(dat[0x00:0x11]),
		DataOffset: binary.LittleEndian.Uint32(dat[0x11:0x15]),
		DataSize:   binary.LittleEndian.Uint32(dat[0x15:0x19]),
	}
}

func marshalItemHeaderTo(buf []byte, h itemHeader) {
	h.Key.MarshalTo(buf[0x00:0x11])
	binary.LittleEndian.PutUint32(buf[0x11:0x15], h.DataOffset)
	binary.LittleEndian.PutUint32(buf[0x15:0x19], h.DataSize)
}

// Leaf item headers grow forward from the start of the body; item data
// is packed backward from the end of the body. The two meet in the
// middle when the node is full.
func (node *Node) unmarshalLeaf(bodyBuf []byte) error {
	head := 0
	tail := len(bodyBuf)
	node.BodyLeaf = make([]Item, node.Head.NumItems)
	for i := range node.BodyLeaf {
		if head+itemHeaderSize > tail {
			return fmt.Errorf("item %v: header: end_offset=%#x is in the body section (offset>%#x)",
				i, head+itemHeaderSize, tail)
		}
		ih := unmarshalItemHeader(bodyBuf[head : head+itemHeaderSize])
		head += itemHeaderSize

		dataOff := int(ih.DataOffset)
		if dataOff < head {
			return fmt.Errorf("item %v: body: beg_offset=%#x is in the head section (offset<%#x)",
				i, dataOff, head)
		}
		dataSize := int(ih.DataSize)
		if dataOff+dataSize != tail {
			return fmt.Errorf("item %v: body: end_offset=%#x is not cur_tail=%#x",
				i, dataOff+dataSize, tail)
		}
		tail = dataOff
		dataBuf := bodyBuf[dataOff : dataOff+dataSize]

		node.BodyLeaf[i] = Item{
			Key:      ih.Key,
			BodySize: ih.DataSize,
			Body:     btrfsitem.UnmarshalItem(ih.Key, node.ChecksumType, dataBuf),
		}
	}
	node.Padding = bodyBuf[head:tail]
	return nil
}

func (node *Node) marshalLeafTo(bodyBuf []byte) error {
	head := 0
	tail := len(bodyBuf)
	for i, item := range node.BodyLeaf {
		itemBodyBuf, err := item.Body.MarshalBinary()
		if err != nil {
			return fmt.Errorf("item %v: body: %w", i, err)
		}
		if tail-head < itemHeaderSize+len(itemBodyBuf) {
			return fmt.Errorf("item %v: not enough space", i)
		}
		marshalItemHeaderTo(bodyBuf[head:head+itemHeaderSize], itemHeader{
			Key:        item.Key,
			DataSize:   uint32(len(itemBodyBuf)),
			DataOffset: uint32(tail - len(itemBodyBuf)),
		})
		head += itemHeaderSize
		tail -= len(itemBodyBuf)
		copy(bodyBuf[tail:], itemBodyBuf)
	}
	copy(bodyBuf[head:tail], node.Padding)
	return nil
}
