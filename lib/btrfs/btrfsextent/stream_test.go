// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package btrfsextent_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/klauspost/compress/zlib"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"btrfsview/lib/btrfs/btrfsextent"
	"btrfsview/lib/btrfs/btrfsitem"
	"btrfsview/lib/btrfs/btrfsprim"
	"btrfsview/lib/btrfs/btrfstree"
	"btrfsview/lib/btrfs/btrfsvol"
)

const sectorSize = 0x1000

type fakeSource map[btrfsvol.LogicalAddr][]byte

func (s fakeSource) ReadAt(_ context.Context, p []byte, off btrfsvol.LogicalAddr) (int, error) {
	for addr, dat := range s {
		if off >= addr && int64(off-addr) < int64(len(dat)) {
			return copy(p, dat[off-addr:]), nil
		}
	}
	for i := range p {
		p[i] = 0
	}
	return len(p), nil
}

func extentItem(objID btrfsprim.ObjID, fileOff uint64, fe btrfsitem.FileExtent) btrfstree.Item {
	return btrfstree.Item{
		Key:  btrfsprim.Key{ObjectID: objID, ItemType: btrfsprim.EXTENT_DATA_KEY, Offset: fileOff},
		Body: fe,
	}
}

func TestAssembleEmptyInode(t *testing.T) {
	t.Parallel()
	st, err := btrfsextent.AssembleFromItems(fakeSource{}, sectorSize, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(0), st.Size())
}

func TestAssembleInlineOnly(t *testing.T) {
	t.Parallel()
	items := []btrfstree.Item{
		extentItem(257, 0, btrfsitem.FileExtent{
			Type:       btrfsitem.FILE_EXTENT_INLINE,
			BodyInline: []byte("hello world"),
		}),
	}
	st, err := btrfsextent.AssembleFromItems(fakeSource{}, sectorSize, 11, items)
	require.NoError(t, err)
	assert.Equal(t, int64(11), st.Size())

	buf := make([]byte, 5)
	n, err := st.ReadAt(context.Background(), buf, 0)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, "hello", string(buf))
}

func TestAssembleSparseGapAndTrailing(t *testing.T) {
	t.Parallel()
	src := fakeSource{0x10000: bytes.Repeat([]byte{0xAB}, 0x1000)}
	items := []btrfstree.Item{
		extentItem(257, 0x2000, btrfsitem.FileExtent{
			Type: btrfsitem.FILE_EXTENT_REG,
			BodyExtent: btrfsitem.FileExtentExtent{
				DiskByteNr:   0x10000,
				DiskNumBytes: 0x1000,
				Offset:       0,
				NumBytes:     0x1000,
			},
		}),
	}
	st, err := btrfsextent.AssembleFromItems(src, sectorSize, 0x4000, items)
	require.NoError(t, err)

	buf := make([]byte, 0x2000)
	n, err := st.ReadAt(context.Background(), buf, 0)
	require.NoError(t, err)
	assert.Equal(t, 0x2000, n)
	assert.True(t, bytes.Equal(buf, make([]byte, 0x2000)), "leading gap must read as zero")

	buf2 := make([]byte, 0x1000)
	n, err = st.ReadAt(context.Background(), buf2, 0x2000)
	require.NoError(t, err)
	assert.Equal(t, 0x1000, n)
	assert.True(t, bytes.Equal(buf2, bytes.Repeat([]byte{0xAB}, 0x1000)))

	buf3 := make([]byte, 0x1000)
	n, err = st.ReadAt(context.Background(), buf3, 0x3000)
	require.NoError(t, err)
	assert.Equal(t, 0x1000, n)
	assert.True(t, bytes.Equal(buf3, make([]byte, 0x1000)), "trailing gap must read as zero")
}

func TestAssembleCompressedZlib(t *testing.T) {
	t.Parallel()
	plain := bytes.Repeat([]byte("x"), 200)
	var compressed bytes.Buffer
	zw := zlib.NewWriter(&compressed)
	_, err := zw.Write(plain)
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	src := fakeSource{0x20000: compressed.Bytes()}
	items := []btrfstree.Item{
		extentItem(257, 0, btrfsitem.FileExtent{
			Type:        btrfsitem.FILE_EXTENT_REG,
			Compression: btrfsitem.COMPRESS_ZLIB,
			RAMBytes:    int64(len(plain)),
			BodyExtent: btrfsitem.FileExtentExtent{
				DiskByteNr:   0x20000,
				DiskNumBytes: btrfsvol.AddrDelta(compressed.Len()),
				Offset:       0,
				NumBytes:     int64(len(plain)),
			},
		}),
	}
	st, err := btrfsextent.AssembleFromItems(src, sectorSize, int64(len(plain)), items)
	require.NoError(t, err)

	buf := make([]byte, len(plain))
	n, err := st.ReadAt(context.Background(), buf, 0)
	require.NoError(t, err)
	assert.Equal(t, len(plain), n)
	assert.True(t, bytes.Equal(buf, plain))
}

func TestAssembleSparseExtentType(t *testing.T) {
	t.Parallel()
	items := []btrfstree.Item{
		extentItem(257, 0, btrfsitem.FileExtent{
			Type: btrfsitem.FILE_EXTENT_REG,
			BodyExtent: btrfsitem.FileExtentExtent{
				DiskByteNr:   0,
				DiskNumBytes: 0,
				Offset:       0,
				NumBytes:     0x1000,
			},
		}),
	}
	st, err := btrfsextent.AssembleFromItems(fakeSource{}, sectorSize, 0x1000, items)
	require.NoError(t, err)

	buf := make([]byte, 0x1000)
	n, err := st.ReadAt(context.Background(), buf, 0)
	require.NoError(t, err)
	assert.Equal(t, 0x1000, n)
	assert.True(t, bytes.Equal(buf, make([]byte, 0x1000)))
}
