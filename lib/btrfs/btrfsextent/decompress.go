// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

// Package btrfsextent assembles an inode's EXTENT_DATA items into a
// byte-addressable stream and decodes compressed extents.
package btrfsextent

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
	"github.com/rasky/go-lzo"

	"git.lukeshu.com/go/typedsync"

	"btrfsview/lib/btrfs/btrfsitem"
)

// ErrUnsupported is returned (wrapped) when an extent cannot be
// decoded because of a codec or feature this library declines to
// support, as opposed to a malformed on-disk structure.
type ErrUnsupported struct {
	Reason string
}

func (e *ErrUnsupported) Error() string { return "unsupported: " + e.Reason }

var decompressBufPool = typedsync.Pool[[]byte]{
	New: func() []byte { return nil },
}

func getDecompressBuf(size int) []byte {
	buf, ok := decompressBufPool.Get()
	if !ok || cap(buf) < size {
		return make([]byte, size)
	}
	return buf[:size]
}

func putDecompressBuf(buf []byte) {
	decompressBufPool.Put(buf) //nolint:errcheck // Put on typedsync.Pool has no error
}

// Decompress decodes a whole compressed extent's on-disk bytes,
// dispatching on the extent's declared compression type. ramBytes is
// the upper bound on the decompressed size (FileExtent.RAMBytes);
// sectorSize is the filesystem's sector size, needed to frame LZO
// segments.
func Decompress(compression btrfsitem.CompressionType, encryption uint8, sectorSize uint32, ramBytes int64, compressed []byte) ([]byte, error) {
	if encryption != 0 {
		return nil, &ErrUnsupported{Reason: fmt.Sprintf("extent encryption type %d is set", encryption)}
	}
	switch compression {
	case btrfsitem.COMPRESS_NONE:
		return compressed, nil
	case btrfsitem.COMPRESS_ZLIB:
		return decompressZlib(compressed, ramBytes)
	case btrfsitem.COMPRESS_ZSTD:
		return decompressZstd(compressed, ramBytes)
	case btrfsitem.COMPRESS_LZO:
		return decompressLZO(compressed, sectorSize, ramBytes)
	default:
		return nil, &ErrUnsupported{Reason: fmt.Sprintf("unknown compression type %d", compression)}
	}
}

func decompressZlib(compressed []byte, ramBytes int64) ([]byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, fmt.Errorf("zlib: %w", err)
	}
	defer zr.Close()
	out := make([]byte, 0, ramBytes)
	buf := bytes.NewBuffer(out)
	if _, err := io.Copy(buf, zr); err != nil {
		return nil, fmt.Errorf("zlib: %w", err)
	}
	return buf.Bytes(), nil
}

func decompressZstd(compressed []byte, ramBytes int64) ([]byte, error) {
	zr, err := zstd.NewReader(nil)
	if err != nil {
		return nil, &ErrUnsupported{Reason: fmt.Sprintf("zstd codec unavailable: %v", err)}
	}
	defer zr.Close()
	out, err := zr.DecodeAll(compressed, make([]byte, 0, ramBytes))
	if err != nil {
		return nil, fmt.Errorf("zstd: %w", err)
	}
	return out, nil
}

// decompressLZO decodes Btrfs's sector-framed LZO layout: a leading
// 4-byte total size, then repeated (u32 segment_len, segment_bytes)
// frames; between frames the reader skips to the next sector boundary
// if fewer than 4 bytes remain in the current sector; a zero
// segment_len terminates.
func decompressLZO(compressed []byte, sectorSize uint32, ramBytes int64) ([]byte, error) {
	if len(compressed) < 4 {
		return nil, fmt.Errorf("lzo: extent too short for header")
	}
	totalLen := int(le32(compressed[0:4]))
	if totalLen > len(compressed) {
		totalLen = len(compressed)
	}
	dat := compressed[4:totalLen]

	out := make([]byte, 0, ramBytes)
	sectorOff := 4 % int(sectorSize)
	pos := 0
	for {
		if int(sectorSize)-sectorOff < 4 {
			skip := int(sectorSize) - sectorOff
			if skip > len(dat)-pos {
				break
			}
			pos += skip
			sectorOff = 0
		}
		if pos+4 > len(dat) {
			break
		}
		segLen := int(le32(dat[pos : pos+4]))
		pos += 4
		sectorOff += 4
		if segLen == 0 {
			break
		}
		if pos+segLen > len(dat) {
			return nil, fmt.Errorf("lzo: segment of length %d runs past end of extent", segLen)
		}
		segment := dat[pos : pos+segLen]
		pos += segLen
		sectorOff += segLen

		dst := getDecompressBuf(int(sectorSize) + int(sectorSize)/16 + 64 + 3)
		n, err := lzo.Decompress1X(bytes.NewReader(segment), len(segment), len(dst))
		if err != nil {
			putDecompressBuf(dst)
			return nil, fmt.Errorf("lzo: segment: %w", err)
		}
		out = append(out, n...)
		putDecompressBuf(dst)

		sectorOff %= int(sectorSize)
	}
	return out, nil
}

func le32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}
