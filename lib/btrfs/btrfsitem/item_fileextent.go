// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package btrfsitem

import (
	"encoding/binary"
	"fmt"

	"btrfsview/lib/btrfs/btrfsprim"
	"btrfsview/lib/btrfs/btrfsvol"
)

// key.objectid = inode
// key.offset = offset within file
type FileExtent struct { // complex EXTENT_DATA=108
	Generation btrfsprim.Generation // transaction ID that created this extent
	RAMBytes   int64                // upper bound of what compressed data will decompress to

	Compression   CompressionType
	Encryption    uint8
	OtherEncoding uint16 // reserved for later use

	Type FileExtentType // inline data or real extent

	// only one of these, depending on .Type
	BodyInline []byte           // .Type == FILE_EXTENT_INLINE
	BodyExtent FileExtentExtent // .Type == FILE_EXTENT_REG or FILE_EXTENT_PREALLOC
}

type FileExtentExtent struct {
	// Position and size of extent within the device
	DiskByteNr   btrfsvol.LogicalAddr
	DiskNumBytes btrfsvol.AddrDelta

	// Position of data within the extent
	Offset btrfsvol.AddrDelta

	// Decompressed/unencrypted size
	NumBytes int64
}

func (FileExtent) isItem() {}

const fileExtentHeaderSize = 0x15

func (o *FileExtent) UnmarshalBinary(dat []byte) (int, error) {
	if len(dat) < fileExtentHeaderSize {
		return 0, fmt.Errorf("file extent: need %d bytes, only have %d", fileExtentHeaderSize, len(dat))
	}
	o.Generation = btrfsprim.Generation(binary.LittleEndian.Uint64(dat[0x0:0x8]))
	o.RAMBytes = int64(binary.LittleEndian.Uint64(dat[0x8:0x10]))
	o.Compression = CompressionType(dat[0x10])
	o.Encryption = dat[0x11]
	o.OtherEncoding = binary.LittleEndian.Uint16(dat[0x12:0x14])
	o.Type = FileExtentType(dat[0x14])
	n := fileExtentHeaderSize
	switch o.Type {
	case FILE_EXTENT_INLINE:
		o.BodyInline = append([]byte(nil), dat[n:]...)
		n += len(o.BodyInline)
	case FILE_EXTENT_REG, FILE_EXTENT_PREALLOC:
		if len(dat) < n+0x20 {
			return 0, fmt.Errorf("file extent: need %d bytes, only have %d", n+0x20, len(dat))
		}
		e := dat[n : n+0x20]
		o.BodyExtent = FileExtentExtent{
			DiskByteNr:   btrfsvol.LogicalAddr(binary.LittleEndian.Uint64(e[0x00:0x08])),
			DiskNumBytes: btrfsvol.AddrDelta(binary.LittleEndian.Uint64(e[0x08:0x10])),
			Offset:       btrfsvol.AddrDelta(binary.LittleEndian.Uint64(e[0x10:0x18])),
			NumBytes:     int64(binary.LittleEndian.Uint64(e[0x18:0x20])),
		}
		n += 0x20
	default:
		return n, fmt.Errorf("unknown file extent type %v", o.Type)
	}
	return n, nil
}

func (o FileExtent) MarshalBinary() ([]byte, error) {
	buf := make([]byte, fileExtentHeaderSize)
	binary.LittleEndian.PutUint64(buf[0x0:0x8], uint64(o.Generation))
	binary.LittleEndian.PutUint64(buf[0x8:0x10], uint64(o.RAMBytes))
	buf[0x10] = byte(o.Compression)
	buf[0x11] = o.Encryption
	binary.LittleEndian.PutUint16(buf[0x12:0x14], o.OtherEncoding)
	buf[0x14] = byte(o.Type)
	switch o.Type {
	case FILE_EXTENT_INLINE:
		buf = append(buf, o.BodyInline...)
	case FILE_EXTENT_REG, FILE_EXTENT_PREALLOC:
		e := make([]byte, 0x20)
		binary.LittleEndian.PutUint64(e[0x00:0x08], uint64(o.BodyExtent.DiskByteNr))
		binary.LittleEndian.PutUint64(e[0x08:0x10], uint64(o.BodyExtent.DiskNumBytes))
		binary.LittleEndian.PutUint64(e[0x10:0x18], uint64(o.BodyExtent.Offset))
		binary.LittleEndian.PutUint64(e[0x18:0x20], uint64(o.BodyExtent.NumBytes))
		buf = append(buf, e...)
	default:
		return buf, fmt.Errorf("unknown file extent type %v", o.Type)
	}
	return buf, nil
}

type FileExtentType uint8

const (
	FILE_EXTENT_INLINE FileExtentType = iota
	FILE_EXTENT_REG
	FILE_EXTENT_PREALLOC
)

var fileExtentTypeNames = []string{
	"inline",
	"regular",
	"prealloc",
}

func (o FileExtent) Size() (int64, error) {
	switch o.Type {
	case FILE_EXTENT_INLINE:
		return int64(len(o.BodyInline)), nil
	case FILE_EXTENT_REG, FILE_EXTENT_PREALLOC:
		return o.BodyExtent.NumBytes, nil
	default:
		return 0, fmt.Errorf("unknown file extent type %v", o.Type)
	}
}

func (fet FileExtentType) String() string {
	name := "unknown"
	if int(fet) < len(fileExtentTypeNames) {
		name = fileExtentTypeNames[fet]
	}
	return fmt.Sprintf("%d (%s)", fet, name)
}

type CompressionType uint8

const (
	COMPRESS_NONE CompressionType = iota
	COMPRESS_ZLIB
	COMPRESS_LZO
	COMPRESS_ZSTD
)

var compressionTypeNames = []string{
	"none",
	"zlib",
	"lzo",
	"zstd",
}

func (ct CompressionType) String() string {
	name := "unknown"
	if int(ct) < len(compressionTypeNames) {
		name = compressionTypeNames[ct]
	}
	return fmt.Sprintf("%d (%s)", ct, name)
}
