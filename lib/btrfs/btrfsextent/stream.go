// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package btrfsextent

import (
	"context"
	"fmt"
	"sort"

	"btrfsview/lib/btrfs/btrfsitem"
	"btrfsview/lib/btrfs/btrfstree"
	"btrfsview/lib/btrfs/btrfsvol"
)

// Source is what a Stream reads compressed/raw extent bytes through:
// a ChunkStream, or anything else that resolves logical reads.
type Source interface {
	ReadAt(ctx context.Context, p []byte, off btrfsvol.LogicalAddr) (int, error)
}

// Extent is one record of a Stream's extent list, annotated with its
// starting offset within the file.
type Extent struct {
	FileOffset int64
	btrfsitem.FileExtent
}

// Stream serves aligned reads over the logical byte range a file's
// extent list covers, decoding an inline extent eagerly, zero-filling
// sparse extents at read time, and decoding compressed/regular extents
// on demand.
type Stream struct {
	src        Source
	sectorSize uint32
	size       int64

	inline []byte // set if the whole file is a single inline extent

	extents       []Extent
	extentOffsets []int64 // cumulative start offset of extents[1:], for binary search
}

// AssembleFromItems builds a Stream from an inode's EXTENT_DATA_KEY
// items (already sorted by key, as a B-tree leaf walk produces them)
// and the inode's declared size. Per spec, an inode with size 0 never
// touches the tree and yields an empty stream.
func AssembleFromItems(src Source, sectorSize uint32, size int64, items []btrfstree.Item) (*Stream, error) {
	st := &Stream{src: src, sectorSize: sectorSize, size: size}
	if size == 0 {
		return st, nil
	}

	var recs []Extent
	for _, item := range items {
		fe, ok := item.Body.(btrfsitem.FileExtent)
		if !ok {
			return nil, fmt.Errorf("extent stream: malformed EXTENT_DATA at offset %v: %v", item.Key.Offset, item.Body)
		}
		recs = append(recs, Extent{FileOffset: int64(item.Key.Offset), FileExtent: fe})
	}
	if len(recs) == 0 {
		st.extents = []Extent{{FileOffset: 0, FileExtent: sparseExtent(size)}}
		return st, nil
	}

	if recs[0].Type == btrfsitem.FILE_EXTENT_INLINE {
		decoded, err := Decompress(recs[0].Compression, recs[0].Encryption, sectorSize, recs[0].RAMBytes, recs[0].BodyInline)
		if err != nil {
			return nil, fmt.Errorf("extent stream: inline extent: %w", err)
		}
		if int64(len(decoded)) > size {
			decoded = decoded[:size]
		}
		st.inline = decoded
		return st, nil
	}

	pos := int64(0)
	for _, rec := range recs {
		if rec.FileOffset > pos {
			st.extents = append(st.extents, Extent{FileOffset: pos, FileExtent: sparseExtent(rec.FileOffset - pos)})
		}
		st.extents = append(st.extents, rec)
		extLen, err := rec.Size()
		if err != nil {
			return nil, fmt.Errorf("extent stream: extent at %v: %w", rec.FileOffset, err)
		}
		pos = rec.FileOffset + extLen
	}
	if pos < size {
		st.extents = append(st.extents, Extent{FileOffset: pos, FileExtent: sparseExtent(size - pos)})
	}

	st.extentOffsets = make([]int64, len(st.extents)-1)
	for i := 1; i < len(st.extents); i++ {
		st.extentOffsets[i-1] = st.extents[i].FileOffset
	}
	return st, nil
}

func sparseExtent(length int64) btrfsitem.FileExtent {
	return btrfsitem.FileExtent{
		Type: btrfsitem.FILE_EXTENT_REG,
		BodyExtent: btrfsitem.FileExtentExtent{
			DiskByteNr:   0,
			DiskNumBytes: 0,
			Offset:       0,
			NumBytes:     length,
		},
	}
}

// Size returns the stream's declared length, per the owning inode.
func (st *Stream) Size() int64 { return st.size }

// ReadAt implements io.ReaderAt semantics over the assembled extent
// list, per spec.md §4.1 "i.open().read() returns exactly i.size
// bytes". A single call may span several extents, so it loops over
// the extent list the way btrfsvol.ChunkStream.ReadAt loops over
// installed chunks, dispatching each extent's own sub-slice of p and
// never handing more than one extent's worth of bytes to the sparse,
// direct, or compressed read paths below.
func (st *Stream) ReadAt(ctx context.Context, p []byte, off int64) (int, error) {
	if off < 0 || off >= st.size {
		return 0, fmt.Errorf("extent stream: read at %v out of range [0,%v)", off, st.size)
	}
	if int64(len(p)) > st.size-off {
		p = p[:st.size-off]
	}
	if st.inline != nil {
		if off >= int64(len(st.inline)) {
			for i := range p {
				p[i] = 0
			}
			return len(p), nil
		}
		n := copy(p, st.inline[off:])
		for i := n; i < len(p); i++ {
			p[i] = 0
		}
		return len(p), nil
	}

	total := 0
	for total < len(p) {
		cur := off + int64(total)
		idx := sort.Search(len(st.extentOffsets), func(i int) bool {
			return st.extentOffsets[i] > cur
		})
		ext := st.extents[idx]
		within := cur - ext.FileOffset

		extLen, err := ext.Size()
		if err != nil {
			return total, fmt.Errorf("extent stream: extent at %v: %w", ext.FileOffset, err)
		}
		want := len(p) - total
		if remaining := extLen - within; int64(want) > remaining {
			want = int(remaining)
		}
		dst := p[total : total+want]

		switch {
		case ext.BodyExtent.DiskByteNr == 0 && ext.BodyExtent.DiskNumBytes == 0:
			for i := range dst {
				dst[i] = 0
			}
			total += want
		case ext.Compression == btrfsitem.COMPRESS_NONE:
			addr := ext.BodyExtent.DiskByteNr.Add(ext.BodyExtent.Offset).Add(btrfsvol.AddrDelta(within))
			n, err := st.src.ReadAt(ctx, dst, addr)
			total += n
			if err != nil {
				return total, err
			}
			if n < want {
				return total, nil
			}
		default:
			raw := make([]byte, ext.BodyExtent.DiskNumBytes)
			if _, err := st.src.ReadAt(ctx, raw, ext.BodyExtent.DiskByteNr); err != nil {
				return total, fmt.Errorf("extent stream: reading compressed extent at %v: %w", ext.BodyExtent.DiskByteNr, err)
			}
			decoded, err := Decompress(ext.Compression, ext.Encryption, st.sectorSize, ext.RAMBytes, raw)
			if err != nil {
				return total, err
			}
			lo := ext.BodyExtent.Offset + btrfsvol.AddrDelta(within)
			hi := lo + btrfsvol.AddrDelta(want)
			if int64(hi) > int64(len(decoded)) {
				return total, fmt.Errorf("extent stream: decoded extent shorter than requested window")
			}
			total += copy(dst, decoded[lo:hi])
		}
	}
	return total, nil
}
