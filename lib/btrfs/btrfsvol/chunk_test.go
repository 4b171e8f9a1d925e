// Copyright (C) 2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package btrfsvol_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"btrfsview/lib/btrfs/btrfsvol"
)

type memDevice struct {
	name string
	data []byte
}

func (d *memDevice) Name() string                  { return d.name }
func (d *memDevice) Size() btrfsvol.PhysicalAddr    { return btrfsvol.PhysicalAddr(len(d.data)) }
func (d *memDevice) Close() error                   { return nil }
func (d *memDevice) WriteAt(p []byte, off btrfsvol.PhysicalAddr) (int, error) {
	copy(d.data[off:], p)
	return len(p), nil
}
func (d *memDevice) ReadAt(p []byte, off btrfsvol.PhysicalAddr) (int, error) {
	n := copy(p, d.data[off:])
	return n, nil
}

func fillPattern(n int, start byte) []byte {
	buf := make([]byte, n)
	for i := range buf {
		buf[i] = start + byte(i)
	}
	return buf
}

func TestChunkStreamSingle(t *testing.T) {
	t.Parallel()
	dev := &memDevice{name: "dev0", data: fillPattern(0x2000, 1)}
	cs := btrfsvol.NewChunkStream(map[btrfsvol.DeviceID]btrfsvol.PhysicalFile{
		1: dev,
	})

	require.NoError(t, cs.Add(context.Background(), btrfsvol.Chunk{
		LogicalOffset: 0x1000,
		Length:        0x2000,
		StripeLength:  0x1000,
		Flags:         0,
		SubStripes:    1,
		Stripes: []btrfsvol.Stripe{
			{DeviceID: 1, PhysicalOffset: 0},
		},
	}))

	buf := make([]byte, 0x10)
	n, err := cs.ReadAt(context.Background(), buf, 0x1000)
	require.NoError(t, err)
	assert.Equal(t, 0x10, n)
	assert.Equal(t, dev.data[:0x10], buf)

	// below the first chunk: zero-filled
	zbuf := make([]byte, 0x10)
	n, err = cs.ReadAt(context.Background(), zbuf, 0x0)
	require.NoError(t, err)
	assert.Equal(t, 0x10, n)
	assert.Equal(t, make([]byte, 0x10), zbuf)
}

func TestChunkStreamDUPFailover(t *testing.T) {
	t.Parallel()
	dev := &memDevice{name: "dev0", data: fillPattern(0x2000, 7)}
	cs := btrfsvol.NewChunkStream(map[btrfsvol.DeviceID]btrfsvol.PhysicalFile{
		1: dev,
		// device 2 intentionally absent: degraded
	})

	require.NoError(t, cs.Add(context.Background(), btrfsvol.Chunk{
		LogicalOffset: 0,
		Length:        0x2000,
		StripeLength:  0x2000,
		Flags:         btrfsvol.BLOCK_GROUP_DUP,
		SubStripes:    1,
		Stripes: []btrfsvol.Stripe{
			{DeviceID: 2, PhysicalOffset: 0x10000}, // missing
			{DeviceID: 1, PhysicalOffset: 0},       // present mirror
		},
	}))

	buf := make([]byte, 8)
	n, err := cs.ReadAt(context.Background(), buf, 0x100)
	require.NoError(t, err)
	assert.Equal(t, 8, n)
	assert.Equal(t, dev.data[0x100:0x108], buf)
}

func TestChunkStreamRAID0MissingExceedsTolerance(t *testing.T) {
	t.Parallel()
	dev := &memDevice{name: "dev0", data: fillPattern(0x2000, 0)}
	cs := btrfsvol.NewChunkStream(map[btrfsvol.DeviceID]btrfsvol.PhysicalFile{
		1: dev,
	})

	err := cs.Add(context.Background(), btrfsvol.Chunk{
		LogicalOffset: 0,
		Length:        0x2000,
		StripeLength:  0x1000,
		Flags:         btrfsvol.BLOCK_GROUP_RAID0,
		SubStripes:    1,
		Stripes: []btrfsvol.Stripe{
			{DeviceID: 1, PhysicalOffset: 0},
			{DeviceID: 2, PhysicalOffset: 0}, // missing, RAID0 tolerates 0
		},
	})
	assert.Error(t, err)
}
