// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

// Package btrfs exposes a read-only, POSIX-like view (subvolumes,
// inodes, directories, files, symlinks) over one or more block-level
// images making up a single Btrfs volume.
package btrfs

import (
	"context"
	"fmt"
	"sort"

	"github.com/datawire/dlib/derror"
	"github.com/datawire/dlib/dlog"

	"btrfsview/lib/btrfs/btrfsitem"
	"btrfsview/lib/btrfs/btrfsprim"
	"btrfsview/lib/btrfs/btrfstree"
	"btrfsview/lib/btrfs/btrfsvol"
	"btrfsview/lib/containers"
)

// OpenOptions configures Open; a zero OpenOptions uses DefaultConfig.
type OpenOptions struct {
	Config Config
}

// DeviceInfo is a read-only summary of one device's DEV_ITEM fields,
// exposed by Filesystem.Devices.
type DeviceInfo struct {
	DeviceID     btrfsvol.DeviceID
	NumBytes     uint64
	NumBytesUsed uint64
	IOMinSize    uint32
	Generation   btrfsprim.Generation
	UUID         btrfsprim.UUID
	FSUUID       btrfsprim.UUID
}

// Filesystem is the entry point: a navigable view over one or more
// devices constituting a single Btrfs volume. It is constructed once
// by Open and never mutated afterward.
type Filesystem struct {
	cfg Config
	sb  Superblock

	devices     map[btrfsvol.DeviceID]btrfsvol.PhysicalFile
	deviceInfos map[btrfsvol.DeviceID]DeviceInfo
	chunks      *btrfsvol.ChunkStream
	forrest     *btrfstree.Forrest

	rootTreeID btrfsprim.ObjID

	subvolumeCache *containers.LRUCache[btrfsprim.ObjID, *Subvolume]
	pathCache      *containers.LRUCache[pathCacheKey, *Inode]
	openTreeCache  *containers.LRUCache[btrfsprim.ObjID, *btrfstree.TreeRoot]
	inodeCache     *containers.LRUCache[inodeCacheKey, btrfsitem.Inode]

	defaultSubvolume btrfsprim.ObjID
}

// lookupTree resolves treeID's root node, consulting openTreeCache
// before falling through to the forrest (which itself must search the
// root tree for non-well-known tree IDs).
func (fs *Filesystem) lookupTree(treeID btrfsprim.ObjID) (*btrfstree.TreeRoot, error) {
	if root, ok := fs.openTreeCache.Get(treeID); ok {
		return root, nil
	}
	root, err := fs.forrest.TreeLookup(treeID)
	if err != nil {
		return nil, err
	}
	fs.openTreeCache.Add(treeID, root)
	return root, nil
}

type pathCacheKey struct {
	subvol btrfsprim.ObjID
	path   string
}

type inodeCacheKey struct {
	subvol btrfsprim.ObjID
	inum   btrfsprim.ObjID
}

// Open bootstraps a Filesystem out of one or more device streams, per
// spec.md §4.4:
//
//  1. Read each device's superblock at SuperblockOffset.
//  2. Require every superblock to share one FSUUID.
//  3. Pick the superblock with the largest generation as authoritative.
//  4. Seed the chunk stream from the authoritative sys_chunk_array.
//  5. Walk the chunk tree to install the remaining chunks.
//  6. Open the root tree.
//  7. Open the FS_TREE subvolume.
//  8. Resolve the default subvolume via ROOT_TREE_DIR_OBJECTID's DIR_ITEM.
//  9. Expose its root inode (via Filesystem.Root).
func Open(ctx context.Context, devices map[btrfsvol.DeviceID]btrfsvol.PhysicalFile, opts OpenOptions) (*Filesystem, error) {
	if len(devices) == 0 {
		return nil, newError(Invalid, "no devices given")
	}
	cfg := opts.Config.withDefaults()

	type candidate struct {
		id btrfsvol.DeviceID
		sb Superblock
	}
	var candidates []candidate
	var readErrs derror.MultiError
	for id, dev := range devices {
		buf := make([]byte, superblockSize)
		if _, err := dev.ReadAt(buf, btrfsvol.PhysicalAddr(SuperblockOffset)); err != nil {
			readErrs = append(readErrs, fmt.Errorf("device %v: %w", id, err))
			continue
		}
		var sb Superblock
		if _, err := sb.UnmarshalBinary(buf); err != nil {
			readErrs = append(readErrs, fmt.Errorf("device %v: %w", id, err))
			continue
		}
		candidates = append(candidates, candidate{id: id, sb: sb})
	}
	if len(candidates) == 0 {
		return nil, wrapError(Invalid, readErrs)
	}
	if len(readErrs) > 0 {
		dlog.Warnf(ctx, "btrfs: %d of %d devices failed to yield a superblock: %v", len(readErrs), len(devices), readErrs)
	}

	fsuuid := candidates[0].sb.FSUUID
	for _, c := range candidates[1:] {
		if c.sb.FSUUID != fsuuid {
			return nil, newError(Invalid, "device %v has fsid %v, expected %v", c.id, c.sb.FSUUID, fsuuid)
		}
	}

	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.sb.Generation > best.sb.Generation {
			best = c
		}
	}
	dlog.Infof(ctx, "btrfs: chose superblock from device %v, generation %v", best.id, best.sb.Generation)

	// Per original_source/dissect/btrfs/btrfs.py's
	// `self.devices = {sb.dev_item.devid: fh for sb, fh in sb_fhs}`,
	// every opened device's own superblock carries its own DEV_ITEM;
	// there's no need to walk a tree to learn about the others.
	deviceInfos := make(map[btrfsvol.DeviceID]DeviceInfo, len(candidates))
	for _, c := range candidates {
		deviceInfos[c.sb.DevItem.DevID] = DeviceInfo{
			DeviceID:     c.sb.DevItem.DevID,
			NumBytes:     c.sb.DevItem.NumBytes,
			NumBytesUsed: c.sb.DevItem.NumBytesUsed,
			IOMinSize:    c.sb.DevItem.IOMinSize,
			Generation:   c.sb.DevItem.Generation,
			UUID:         c.sb.DevItem.DevUUID,
			FSUUID:       c.sb.DevItem.FSUUID,
		}
	}

	fs := &Filesystem{
		cfg:            cfg,
		sb:             best.sb,
		devices:        devices,
		deviceInfos:    deviceInfos,
		rootTreeID:     btrfsprim.ROOT_TREE_OBJECTID,
		subvolumeCache: containers.NewLRUCache[btrfsprim.ObjID, *Subvolume](cfg.SubvolumeCacheSize),
		pathCache:      containers.NewLRUCache[pathCacheKey, *Inode](cfg.ResolvePathCacheSize),
		openTreeCache:  containers.NewLRUCache[btrfsprim.ObjID, *btrfstree.TreeRoot](cfg.OpenTreeCacheSize),
		inodeCache:     containers.NewLRUCache[inodeCacheKey, btrfsitem.Inode](cfg.InodeCacheSize),
	}

	fs.chunks = btrfsvol.NewChunkStream(devices)
	sysChunks, err := best.sb.ParseSysChunkArray()
	if err != nil {
		return nil, wrapError(Invalid, err)
	}
	for _, sc := range sysChunks {
		if err := fs.chunks.Add(ctx, sc.Chunk.VolChunk(sc.Key)); err != nil {
			return nil, wrapError(Internal, err)
		}
	}
	dlog.Infof(ctx, "btrfs: installed %d chunks from sys_chunk_array", len(sysChunks))

	fs.forrest = btrfstree.NewForrest(fs.chunks, fs.sb.treeView(), cfg.TreeNodeCacheSize)

	chunkItems, err := btrfstree.TreeSearchAll(ctx, fs.forrest, btrfsprim.CHUNK_TREE_OBJECTID,
		btrfstree.KeyInRange(
			btrfsprim.Key{ObjectID: btrfsprim.FIRST_CHUNK_TREE_OBJECTID, ItemType: btrfsprim.CHUNK_ITEM_KEY, Offset: 0},
			btrfsprim.Key{ObjectID: btrfsprim.FIRST_CHUNK_TREE_OBJECTID, ItemType: btrfsprim.CHUNK_ITEM_KEY, Offset: btrfsprim.MaxOffset},
		))
	if err != nil {
		return nil, wrapError(Invalid, err)
	}
	installed := 0
	for _, item := range chunkItems {
		chunk, ok := item.Body.(btrfsitem.Chunk)
		if !ok {
			continue
		}
		if err := fs.chunks.Add(ctx, chunk.VolChunk(item.Key)); err != nil {
			return nil, wrapError(Internal, err)
		}
		installed++
	}
	dlog.Infof(ctx, "btrfs: installed %d chunks from the chunk tree", installed)

	if _, err := fs.forrest.TreeLookup(btrfsprim.ROOT_TREE_OBJECTID); err != nil {
		return nil, wrapError(Invalid, fmt.Errorf("opening root tree: %w", err))
	}

	if _, err := fs.openSubvolume(ctx, btrfsprim.FS_TREE_OBJECTID); err != nil {
		return nil, wrapError(Invalid, fmt.Errorf("opening FS_TREE: %w", err))
	}

	defItem, err := fs.forrest.TreeSearch(btrfsprim.ROOT_TREE_OBJECTID, btrfstree.KeyExact(
		btrfsprim.Key{ObjectID: btrfsprim.ROOT_TREE_DIR_OBJECTID, ItemType: btrfsprim.DIR_ITEM_KEY, Offset: defaultSubvolNameHash}))
	if err != nil {
		return nil, wrapError(NotFound, fmt.Errorf("resolving default subvolume: %w", err))
	}
	dirEntry, ok := defItem.Body.(btrfsitem.DirEntry)
	if !ok {
		return nil, newError(Internal, "default_subvol dir_item is malformed")
	}
	fs.defaultSubvolume = dirEntry.Location.ObjectID

	return fs, nil
}

// defaultSubvolNameHash is NameHash("default"), the name the kernel
// stores the default-subvolume pointer under in the root tree's
// directory object.
var defaultSubvolNameHash = btrfsitem.NameHash([]byte("default"))

// Label returns the filesystem label, decoded leniently per
// original_source's tolerant (NUL-trimmed, non-UTF8-validated) scheme.
func (fs *Filesystem) Label() string { return fs.sb.label() }

// UUID returns the filesystem's UUID.
func (fs *Filesystem) UUID() btrfsprim.UUID { return fs.sb.FSUUID }

// MetadataUUID returns the UUID nodes are expected to carry.
func (fs *Filesystem) MetadataUUID() btrfsprim.UUID { return fs.sb.EffectiveMetadataUUID() }

// SectorSize is the filesystem's sector size, needed to frame LZO
// extents.
func (fs *Filesystem) SectorSize() uint32 { return fs.sb.SectorSize }

// NodeSize is the B-tree node size.
func (fs *Filesystem) NodeSize() uint32 { return fs.sb.NodeSize }

// StripeSize is the chunk stripe size recorded in the superblock.
func (fs *Filesystem) StripeSize() uint32 { return fs.sb.StripeSize }

// Devices returns DEV_ITEM metadata for every device this Filesystem
// was opened with that successfully reported a device item in its own
// superblock copy, not just the authoritative one.
func (fs *Filesystem) Devices() []DeviceInfo {
	ret := make([]DeviceInfo, 0, len(fs.deviceInfos))
	for _, info := range fs.deviceInfos {
		ret = append(ret, info)
	}
	sort.Slice(ret, func(i, j int) bool { return ret[i].DeviceID < ret[j].DeviceID })
	return ret
}

// Root returns the root inode of the default subvolume.
func (fs *Filesystem) Root(ctx context.Context) (*Inode, error) {
	sv, err := fs.openSubvolume(ctx, fs.defaultSubvolume)
	if err != nil {
		return nil, err
	}
	return sv.Root(ctx)
}

// OpenSubvolume opens (or returns the cached handle for) the subvolume
// with the given tree objectid.
func (fs *Filesystem) OpenSubvolume(ctx context.Context, objID btrfsprim.ObjID) (*Subvolume, error) {
	return fs.openSubvolume(ctx, objID)
}

// Get resolves a '/'-separated path against the default subvolume,
// per spec.md §4.4's get(path, base?), consulting fs.pathCache so that
// repeated resolutions of the same path skip the tree walk entirely.
func (fs *Filesystem) Get(ctx context.Context, path string) (*Inode, error) {
	root, err := fs.Root(ctx)
	if err != nil {
		return nil, err
	}
	key := pathCacheKey{subvol: root.subvolume.ObjID, path: path}
	if in, ok := fs.pathCache.Get(key); ok {
		return in, nil
	}
	in, err := root.subvolume.get(ctx, path, root)
	if err != nil {
		return nil, err
	}
	fs.pathCache.Add(key, in)
	return in, nil
}

// FindSubvolume returns the subvolume whose enumerated path equals
// path, or a NotFound Error.
func (fs *Filesystem) FindSubvolume(ctx context.Context, path string) (*Subvolume, error) {
	svs, err := fs.Subvolumes(ctx)
	if err != nil {
		return nil, err
	}
	for _, sv := range svs {
		if sv.Path == path {
			return sv, nil
		}
	}
	return nil, newError(NotFound, "no subvolume with path %q", path)
}
