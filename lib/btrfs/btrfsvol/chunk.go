// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package btrfsvol

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/datawire/dlib/dlog"

	"btrfsview/lib/btrfs/btrfsprim"
	"btrfsview/lib/diskio"
)

// PhysicalFile is the device-stream abstraction a ChunkStream reads
// physical bytes through.
type PhysicalFile = diskio.File[PhysicalAddr]

// Stripe is one leg of a chunk: a claim that a span of a chunk's
// logical address range lives at a given physical offset on a given
// device.
type Stripe struct {
	DeviceID       DeviceID
	PhysicalOffset PhysicalAddr
	DeviceUUID     btrfsprim.UUID
}

// Chunk is the in-memory form of a CHUNK_ITEM: a logical address range
// backed by one or more physical Stripes under a redundancy Profile.
type Chunk struct {
	LogicalOffset LogicalAddr
	Length        AddrDelta
	StripeLength  AddrDelta
	Flags         BlockGroupFlags
	SubStripes    int
	Stripes       []Stripe
}

func (c Chunk) Profile() Profile {
	return ProfileFromFlags(c.Flags)
}

func (c Chunk) end() LogicalAddr {
	return c.LogicalOffset.Add(c.Length)
}

// installedChunk pairs a Chunk with which of its stripes' devices are
// actually present, computed once at Add time.
type installedChunk struct {
	chunk   Chunk
	present []bool // parallel to chunk.Stripes
}

func (ic installedChunk) missingCount() int {
	n := 0
	for _, ok := range ic.present {
		if !ok {
			n++
		}
	}
	return n
}

// ChunkStream is a seekable byte source over the Btrfs logical address
// space. It resolves reads through the installed chunk/stripe layout
// to physical reads against device streams, failing over between
// mirrors as needed.
type ChunkStream struct {
	devices map[DeviceID]PhysicalFile
	chunks  []installedChunk // kept sorted by chunk.LogicalOffset
}

func NewChunkStream(devices map[DeviceID]PhysicalFile) *ChunkStream {
	return &ChunkStream{devices: devices}
}

func (cs *ChunkStream) search(offset LogicalAddr) int {
	return sort.Search(len(cs.chunks), func(i int) bool {
		return cs.chunks[i].chunk.end() > offset
	})
}

// Add installs a chunk into the stream. It is idempotent: if an
// existing chunk already covers chunk.LogicalOffset, the call is a
// no-op. It fails if more of the chunk's stripes are missing their
// backing device than the profile tolerates.
func (cs *ChunkStream) Add(ctx context.Context, chunk Chunk) error {
	i := cs.search(chunk.LogicalOffset)
	if i < len(cs.chunks) && cs.chunks[i].chunk.LogicalOffset <= chunk.LogicalOffset {
		return nil
	}

	present := make([]bool, len(chunk.Stripes))
	missing := 0
	for j, stripe := range chunk.Stripes {
		_, ok := cs.devices[stripe.DeviceID]
		present[j] = ok
		if !ok {
			missing++
		}
	}
	profile := chunk.Profile()
	if missing > profile.ToleratedFailures() {
		return fmt.Errorf("btrfsvol: chunk at logical offset %v (profile %v): missing stripe disk for %d of %d stripes, exceeds tolerated failures (%d)",
			chunk.LogicalOffset, profile, missing, len(chunk.Stripes), profile.ToleratedFailures())
	}
	if missing > 0 {
		dlog.Infof(ctx, "btrfsvol: chunk at logical offset %v (profile %v): %d of %d stripe devices missing, within tolerance",
			chunk.LogicalOffset, profile, missing, len(chunk.Stripes))
	}

	cs.chunks = append(cs.chunks, installedChunk{})
	copy(cs.chunks[i+1:], cs.chunks[i:])
	cs.chunks[i] = installedChunk{chunk: chunk, present: present}
	return nil
}

// resolved describes which span of the logical address space a single
// resolved physical run is guaranteed to be contiguous over.
type resolved struct {
	dev            DeviceID
	physicalOffset PhysicalAddr
	runLength      AddrDelta // bytes from offset that map contiguously to physicalOffset
}

func (cs *ChunkStream) resolve(ctx context.Context, ic installedChunk, offset LogicalAddr) (resolved, error) {
	chunk := ic.chunk
	profile := chunk.Profile()
	off := offset.Sub(chunk.LogicalOffset) // AddrDelta within the chunk
	stripeLen := chunk.StripeLength
	nstripes := len(chunk.Stripes)

	inStripeOffset := AddrDelta(int64(off) % int64(stripeLen))
	raw := int64(off) / int64(stripeLen)

	var stripeIdx, stripeNum int64
	chunkTailUnit := true

	switch profile {
	case ProfileSingle:
		stripeIdx = 0
		stripeNum = raw
	case ProfileRAID0:
		stripeIdx = raw % int64(nstripes)
		stripeNum = raw / int64(nstripes)
		chunkTailUnit = false
	case ProfileRAID1, ProfileRAID1C3, ProfileRAID1C4, ProfileDUP:
		stripeIdx = 0
		stripeNum = raw
	case ProfileRAID10:
		factor := int64(nstripes / chunk.SubStripes)
		if factor <= 0 {
			return resolved{}, fmt.Errorf("btrfsvol: chunk at %v: invalid RAID10 layout: %d stripes / %d sub-stripes",
				chunk.LogicalOffset, nstripes, chunk.SubStripes)
		}
		column := raw % factor
		stripeNum = raw / factor
		stripeIdx = column * int64(chunk.SubStripes)
		chunkTailUnit = false
	case ProfileRAID5, ProfileRAID6:
		dataStripes := int64(profile.DataStripes(nstripes))
		if dataStripes <= 0 {
			return resolved{}, fmt.Errorf("btrfsvol: chunk at %v: invalid %v layout: %d stripes",
				chunk.LogicalOffset, profile, nstripes)
		}
		stripeNum = raw / dataStripes
		stripeIdx = (stripeNum + raw%dataStripes) % int64(nstripes)
		chunkTailUnit = false
	default:
		return resolved{}, fmt.Errorf("btrfsvol: chunk at %v: unhandled profile %v", chunk.LogicalOffset, profile)
	}

	mirrored := profile == ProfileRAID1 || profile == ProfileRAID1C3 ||
		profile == ProfileRAID1C4 || profile == ProfileDUP || profile == ProfileRAID10
	idx := int(stripeIdx)
	if !ic.present[idx] {
		if !mirrored {
			return resolved{}, fmt.Errorf("%w: chunk at %v: stripe %d device missing (profile %v does not support degraded reads)",
				ErrDegraded, chunk.LogicalOffset, idx, profile)
		}
		found := false
		for step := 1; step < nstripes; step++ {
			alt := (idx + step) % nstripes
			if ic.present[alt] {
				dlog.Infof(ctx, "btrfsvol: chunk at %v: stripe %d device missing, failing over to mirror %d",
					chunk.LogicalOffset, idx, alt)
				idx = alt
				found = true
				break
			}
		}
		if !found {
			return resolved{}, fmt.Errorf("btrfsvol: chunk at %v: all mirrors missing for stripe %d", chunk.LogicalOffset, stripeIdx)
		}
	}

	stripe := chunk.Stripes[idx]
	physAddr := stripe.PhysicalOffset.Add(inStripeOffset).Add(AddrDelta(stripeNum) * stripeLen)

	var runLength AddrDelta
	if chunkTailUnit {
		runLength = chunk.Length - off
	} else {
		runLength = stripeLen - inStripeOffset
	}
	return resolved{dev: stripe.DeviceID, physicalOffset: physAddr, runLength: runLength}, nil
}

// ErrDegraded is returned (wrapped) when a read needs a stripe whose
// device is missing and the chunk's profile offers no redundancy to
// route around it (RAID0/RAID5/RAID6 or a profile with no tolerance).
var ErrDegraded = fmt.Errorf("btrfsvol: degraded read not supported for this profile")

// ReadAt resolves p through the installed chunk/stripe layout. Bytes
// below the first installed chunk are zero-filled. A request that runs
// past the last installed chunk returns a short read (n < len(p), err
// == nil) rather than an error, mirroring io.ReaderAt's short-read
// allowance at EOF.
func (cs *ChunkStream) ReadAt(ctx context.Context, p []byte, offset LogicalAddr) (int, error) {
	total := 0
	for total < len(p) {
		cur := offset + LogicalAddr(total)
		i := cs.search(cur)
		if i >= len(cs.chunks) {
			break
		}
		ic := cs.chunks[i]
		if cur < ic.chunk.LogicalOffset {
			// below/between chunks: zero-fill up to the next chunk
			gap := int(ic.chunk.LogicalOffset - cur)
			n := len(p) - total
			if n > gap {
				n = gap
			}
			for k := 0; k < n; k++ {
				p[total+k] = 0
			}
			total += n
			continue
		}
		res, err := cs.resolve(ctx, ic, cur)
		if err != nil {
			if total > 0 {
				return total, nil
			}
			return 0, err
		}
		want := len(p) - total
		if AddrDelta(want) > res.runLength {
			want = int(res.runLength)
		}
		dev, ok := cs.devices[res.dev]
		if !ok {
			if total > 0 {
				return total, nil
			}
			return 0, fmt.Errorf("btrfsvol: device %v not open", res.dev)
		}
		n, err := dev.ReadAt(p[total:total+want], res.physicalOffset)
		total += n
		if err != nil && err != io.EOF {
			if total > 0 {
				return total, nil
			}
			return 0, err
		}
		if n < want {
			break
		}
	}
	return total, nil
}

// Mappings returns the installed chunks in logical-offset order, for
// diagnostics.
func (cs *ChunkStream) Mappings() []Chunk {
	ret := make([]Chunk, len(cs.chunks))
	for i, ic := range cs.chunks {
		ret[i] = ic.chunk
	}
	return ret
}
