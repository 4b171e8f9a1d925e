// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package btrfs

import (
	"context"
	"fmt"

	"btrfsview/lib/btrfs/btrfsitem"
	"btrfsview/lib/btrfs/btrfsprim"
	"btrfsview/lib/btrfs/btrfstree"
)

// DirEntry is one entry yielded by Inode.Iterdir: a name paired with
// enough information to open the child without a second directory
// scan.
type DirEntry struct {
	Name     string
	Inum     btrfsprim.ObjID
	FileType btrfsitem.FileType
}

// inodeRef pairs a parent directory objectid with the name an
// INODE_REF/INODE_EXTREF records for some child.
type inodeRef struct {
	dirID btrfsprim.ObjID
	name  string
}

// Listdir returns the names and types of a directory's entries,
// failing with NotADirectory on a non-directory inode.
func (in *Inode) Listdir(ctx context.Context) ([]DirEntry, error) {
	return in.Iterdir(ctx)
}

// Iterdir yields '.' and '..' first, then each DIR_INDEX entry in
// index order (index starts at 2, since 0 and 1 are implicitly '.'
// and '..'). It fails with NotADirectory on a non-directory inode.
func (in *Inode) Iterdir(ctx context.Context) ([]DirEntry, error) {
	if !in.IsDir() {
		return nil, newError(NotADirectory, "inode %v is not a directory", in.Inum)
	}

	entries := []DirEntry{
		{Name: ".", Inum: in.Inum, FileType: btrfsitem.FT_DIR},
	}
	if parent, err := in.Parent(ctx); err == nil {
		entries = append(entries, DirEntry{Name: "..", Inum: parent.Inum, FileType: btrfsitem.FT_DIR})
	} else {
		entries = append(entries, DirEntry{Name: "..", Inum: in.Inum, FileType: btrfsitem.FT_DIR})
	}

	items, err := btrfstree.TreeSearchAll(ctx, in.subvolume.fs.forrest, in.subvolume.ObjID, btrfstree.KeyInRange(
		btrfsprim.Key{ObjectID: in.Inum, ItemType: btrfsprim.DIR_INDEX_KEY, Offset: 2},
		btrfsprim.Key{ObjectID: in.Inum, ItemType: btrfsprim.DIR_INDEX_KEY, Offset: btrfsprim.MaxOffset},
	))
	if err != nil {
		return nil, wrapError(Invalid, fmt.Errorf("inode %v: dir index: %w", in.Inum, err))
	}
	for _, item := range items {
		body, ok := item.Body.(btrfsitem.DirEntry)
		if !ok {
			continue
		}
		entries = append(entries, DirEntry{
			Name:     string(body.Name),
			Inum:     body.Location.ObjectID,
			FileType: body.Type,
		})
	}
	return entries, nil
}

// child looks up name within this directory via the DIR_ITEM name
// hash, returning the inode it resolves to. A ROOT_ITEM_KEY location
// means name is a subvolume mountpoint: the child inode returned is
// that subvolume's root.
func (in *Inode) child(ctx context.Context, name string) (*Inode, error) {
	if !in.IsDir() {
		return nil, newError(NotADirectory, "inode %v is not a directory", in.Inum)
	}
	hash := btrfsitem.NameHash([]byte(name))
	item, err := in.subvolume.fs.forrest.TreeSearch(in.subvolume.ObjID, btrfstree.KeyExact(
		btrfsprim.Key{ObjectID: in.Inum, ItemType: btrfsprim.DIR_ITEM_KEY, Offset: hash}))
	if err != nil {
		return nil, wrapError(NotFound, fmt.Errorf("no entry %q in inode %v: %w", name, in.Inum, err))
	}
	body, ok := item.Body.(btrfsitem.DirEntry)
	if !ok || string(body.Name) != name {
		return nil, newError(NotFound, "no entry %q in inode %v", name, in.Inum)
	}

	switch body.Location.ItemType {
	case btrfsprim.ROOT_ITEM_KEY:
		sv, err := in.subvolume.fs.openSubvolume(ctx, body.Location.ObjectID)
		if err != nil {
			return nil, err
		}
		return sv.Root(ctx)
	case btrfsprim.INODE_ITEM_KEY:
		return in.subvolume.inode(ctx, body.Location.ObjectID, body.Type, in.Inum)
	default:
		return nil, newError(Internal, "dir entry %q has unexpected location type %v", name, body.Location.ItemType)
	}
}

// paths returns every (parent directory, name) pair recorded for this
// inode via INODE_REF (and, where present, INODE_EXTREF) items. A
// regular file with more than one hard link has one entry per link.
func (in *Inode) paths(ctx context.Context) ([]inodeRef, error) {
	var refs []inodeRef

	items, err := btrfstree.TreeSearchAll(ctx, in.subvolume.fs.forrest, in.subvolume.ObjID, btrfstree.KeyInRange(
		btrfsprim.Key{ObjectID: in.Inum, ItemType: btrfsprim.INODE_REF_KEY, Offset: 0},
		btrfsprim.Key{ObjectID: in.Inum, ItemType: btrfsprim.INODE_REF_KEY, Offset: btrfsprim.MaxOffset},
	))
	if err != nil {
		return nil, wrapError(Invalid, fmt.Errorf("inode %v: inode refs: %w", in.Inum, err))
	}
	for _, item := range items {
		body, ok := item.Body.(btrfsitem.InodeRef)
		if !ok {
			continue
		}
		refs = append(refs, inodeRef{dirID: btrfsprim.ObjID(item.Key.Offset), name: string(body.Name)})
	}

	extItems, err := btrfstree.TreeSearchAll(ctx, in.subvolume.fs.forrest, in.subvolume.ObjID, btrfstree.KeyInRange(
		btrfsprim.Key{ObjectID: in.Inum, ItemType: btrfsprim.INODE_EXTREF_KEY, Offset: 0},
		btrfsprim.Key{ObjectID: in.Inum, ItemType: btrfsprim.INODE_EXTREF_KEY, Offset: btrfsprim.MaxOffset},
	))
	if err != nil {
		return nil, wrapError(Invalid, fmt.Errorf("inode %v: inode extrefs: %w", in.Inum, err))
	}
	for _, item := range extItems {
		body, ok := item.Body.(btrfsitem.InodeExtRef)
		if !ok {
			continue
		}
		refs = append(refs, inodeRef{dirID: body.ParentObjID, name: string(body.Name)})
	}

	return refs, nil
}

// Paths returns one path per hard link recorded for this inode's
// INODE_REF/INODE_EXTREF items. With full false, each path is
// relative to its own subvolume's root; with full true, it is
// prefixed with that subvolume's Path from the default subvolume's
// root, per spec's paths(full) operation.
func (in *Inode) Paths(ctx context.Context, full bool) ([]string, error) {
	if in.Inum == in.subvolume.Item.RootDirID || (in.Inum == btrfsprim.FIRST_FREE_OBJECTID && in.parentDir == 0) {
		if !full || in.subvolume.Path == "" {
			return []string{"/"}, nil
		}
		return []string{in.subvolume.Path}, nil
	}

	refs, err := in.paths(ctx)
	if err != nil {
		return nil, err
	}
	if len(refs) == 0 {
		return nil, newError(NotFound, "inode %v has no path", in.Inum)
	}

	out := make([]string, 0, len(refs))
	for _, ref := range refs {
		dirPath, err := in.subvolume.resolveDirPath(ctx, ref.dirID)
		if err != nil {
			return nil, err
		}
		p := dirPath + "/" + ref.name
		if full && in.subvolume.Path != "" {
			p = in.subvolume.Path + p
		}
		out = append(out, p)
	}
	return out, nil
}

// FullPath reconstructs this inode's path from the filesystem root,
// across subvolume boundaries, using the first hard link Paths finds.
func (in *Inode) FullPath(ctx context.Context) (string, error) {
	paths, err := in.Paths(ctx, true)
	if err != nil {
		return "", err
	}
	return paths[0], nil
}
