// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package btrfs

import (
	"context"
	"fmt"

	"btrfsview/lib/btrfs/btrfsextent"
	"btrfsview/lib/btrfs/btrfsitem"
	"btrfsview/lib/btrfs/btrfsprim"
	"btrfsview/lib/btrfs/btrfstree"
	"btrfsview/lib/linux"
)

// Inode is a file, directory, symlink, or other node within a
// Subvolume. It is constructed lazily by Subvolume.inode/Root/Get and
// holds no open file handle of its own; Open returns a fresh read
// cursor over the inode's extents each time it's called.
type Inode struct {
	subvolume *Subvolume
	Inum      btrfsprim.ObjID
	Item      btrfsitem.Inode

	// typeHint is the FileType the directory entry that led here
	// carried, or FT_UNKNOWN if this Inode wasn't reached through a
	// directory entry (e.g. the subvolume root).
	typeHint btrfsitem.FileType

	// parentDir is the directory this Inode was looked up through, or
	// 0 if unknown. Used to answer Parent without a second tree walk.
	parentDir btrfsprim.ObjID
}

// fileType resolves this inode's type, preferring the directory
// entry's hint and falling back to the inode's mode bits per
// original_source's tolerant dir_item.type==UNKNOWN handling.
func (in *Inode) fileType() btrfsitem.FileType {
	if in.typeHint != btrfsitem.FT_UNKNOWN {
		return in.typeHint
	}
	switch {
	case in.Item.Mode.IsDir():
		return btrfsitem.FT_DIR
	case in.Item.Mode.IsRegular():
		return btrfsitem.FT_REG_FILE
	case in.Item.Mode&linux.ModeFmt == linux.ModeFmtSymlink:
		return btrfsitem.FT_SYMLINK
	case in.Item.Mode&linux.ModeFmt == linux.ModeFmtCharDevice:
		return btrfsitem.FT_CHRDEV
	case in.Item.Mode&linux.ModeFmt == linux.ModeFmtBlockDevice:
		return btrfsitem.FT_BLKDEV
	case in.Item.Mode&linux.ModeFmt == linux.ModeFmtNamedPipe:
		return btrfsitem.FT_FIFO
	case in.Item.Mode&linux.ModeFmt == linux.ModeFmtSocket:
		return btrfsitem.FT_SOCK
	default:
		return btrfsitem.FT_UNKNOWN
	}
}

func (in *Inode) IsDir() bool            { return in.fileType() == btrfsitem.FT_DIR }
func (in *Inode) IsRegular() bool        { return in.fileType() == btrfsitem.FT_REG_FILE }
func (in *Inode) IsSymlink() bool        { return in.fileType() == btrfsitem.FT_SYMLINK }
func (in *Inode) IsCharDevice() bool     { return in.fileType() == btrfsitem.FT_CHRDEV }
func (in *Inode) IsBlockDevice() bool    { return in.fileType() == btrfsitem.FT_BLKDEV }
func (in *Inode) IsFIFO() bool           { return in.fileType() == btrfsitem.FT_FIFO }
func (in *Inode) IsSocket() bool         { return in.fileType() == btrfsitem.FT_SOCK }

// Size is the inode's logical size in bytes, per its INODE_ITEM.
func (in *Inode) Size() int64 { return in.Item.Size }

func (in *Inode) UID() int32 { return in.Item.UID }
func (in *Inode) GID() int32 { return in.Item.GID }
func (in *Inode) Mode() linux.StatMode { return in.Item.Mode }

func (in *Inode) ATime() btrfsprim.Time { return in.Item.ATime }
func (in *Inode) CTime() btrfsprim.Time { return in.Item.CTime }
func (in *Inode) MTime() btrfsprim.Time { return in.Item.MTime }
func (in *Inode) OTime() btrfsprim.Time { return in.Item.OTime }

// Parent returns the directory Inode this Inode was reached through,
// caching the result on this Inode (spec'd feature: repeated Parent
// calls on the same handle don't re-walk the tree).
func (in *Inode) Parent(ctx context.Context) (*Inode, error) {
	if in.parentDir == 0 {
		refs, err := in.paths(ctx)
		if err != nil {
			return nil, err
		}
		if len(refs) == 0 {
			return nil, newError(NotFound, "inode %v has no parent", in.Inum)
		}
		in.parentDir = refs[0].dirID
	}
	return in.subvolume.inode(ctx, in.parentDir, btrfsitem.FT_DIR, 0)
}

// Link reads the symlink target, failing with NotASymlink on a
// non-symlink inode.
func (in *Inode) Link(ctx context.Context) (string, error) {
	if !in.IsSymlink() {
		return "", newError(NotASymlink, "inode %v is not a symlink", in.Inum)
	}
	st, err := in.open(ctx)
	if err != nil {
		return "", err
	}
	buf := make([]byte, st.Size())
	if _, err := st.ReadAt(ctx, buf, 0); err != nil {
		return "", wrapError(Internal, err)
	}
	return string(buf), nil
}

// extentItems returns this inode's EXTENT_DATA items, in key order.
func (in *Inode) extentItems(ctx context.Context) ([]btrfstree.Item, error) {
	return btrfstree.TreeSearchAll(ctx, in.subvolume.fs.forrest, in.subvolume.ObjID, btrfstree.KeyInRange(
		btrfsprim.Key{ObjectID: in.Inum, ItemType: btrfsprim.EXTENT_DATA_KEY, Offset: 0},
		btrfsprim.Key{ObjectID: in.Inum, ItemType: btrfsprim.EXTENT_DATA_KEY, Offset: btrfsprim.MaxOffset},
	))
}

func (in *Inode) open(ctx context.Context) (*btrfsextent.Stream, error) {
	items, err := in.extentItems(ctx)
	if err != nil {
		return nil, wrapError(Invalid, fmt.Errorf("inode %v: %w", in.Inum, err))
	}
	st, err := btrfsextent.AssembleFromItems(in.subvolume.fs.chunks, in.subvolume.fs.sb.SectorSize, in.Item.Size, items)
	if err != nil {
		return nil, wrapError(Invalid, fmt.Errorf("inode %v: %w", in.Inum, err))
	}
	return st, nil
}

// Open returns a read cursor over the regular file's data, failing
// with Unsupported on a non-regular-file inode.
func (in *Inode) Open(ctx context.Context) (*FileReader, error) {
	if !in.IsRegular() {
		return nil, newError(Unsupported, "inode %v is not a regular file", in.Inum)
	}
	st, err := in.open(ctx)
	if err != nil {
		return nil, err
	}
	return &FileReader{ctx: ctx, stream: st}, nil
}

// FileReader is a read cursor over one inode's reassembled file data.
type FileReader struct {
	ctx    context.Context
	stream *btrfsextent.Stream
	off    int64
}

// Size is the decompressed length of the underlying file.
func (r *FileReader) Size() int64 { return r.stream.Size() }

// ReadAt reads len(p) bytes starting at off, per io.ReaderAt.
func (r *FileReader) ReadAt(p []byte, off int64) (int, error) {
	return r.stream.ReadAt(r.ctx, p, off)
}

// Read advances a sequential cursor over the file, per io.Reader.
func (r *FileReader) Read(p []byte) (int, error) {
	n, err := r.stream.ReadAt(r.ctx, p, r.off)
	r.off += int64(n)
	return n, err
}
