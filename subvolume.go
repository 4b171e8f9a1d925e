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

// Subvolume is one FS_TREE-shaped tree in the volume: the default
// subvolume (objectid 5), a named subvolume, or a snapshot.
type Subvolume struct {
	fs   *Filesystem
	Item btrfsitem.Root

	// ObjID is this subvolume's tree objectid, as found in its
	// ROOT_REF/ROOT_BACKREF pair (or FS_TREE_OBJECTID for the default
	// subvolume).
	ObjID btrfsprim.ObjID

	// Path is this subvolume's path relative to the default
	// subvolume's root, as resolved by Filesystem.Subvolumes. It is
	// empty for the default subvolume itself and for subvolumes this
	// Subvolume wasn't discovered through (i.e. opened directly by
	// objectid via OpenSubvolume).
	Path string

	root *btrfstree.TreeRoot
}

func (fs *Filesystem) openSubvolume(ctx context.Context, objID btrfsprim.ObjID) (*Subvolume, error) {
	if sv, ok := fs.subvolumeCache.Get(objID); ok {
		return sv, nil
	}

	root, err := fs.lookupTree(objID)
	if err != nil {
		return nil, wrapError(NotFound, fmt.Errorf("subvolume %v: %w", objID, err))
	}

	var item btrfsitem.Root
	if objID != btrfsprim.ROOT_TREE_OBJECTID && objID != btrfsprim.CHUNK_TREE_OBJECTID {
		rootItem, err := fs.forrest.TreeSearch(btrfsprim.ROOT_TREE_OBJECTID, btrfstree.KeyExact(
			btrfsprim.Key{ObjectID: objID, ItemType: btrfsprim.ROOT_ITEM_KEY, Offset: 0}))
		if err != nil {
			return nil, wrapError(NotFound, fmt.Errorf("subvolume %v: root item: %w", objID, err))
		}
		body, ok := rootItem.Body.(btrfsitem.Root)
		if !ok {
			return nil, newError(Internal, "subvolume %v: malformed root item", objID)
		}
		item = body
	}

	sv := &Subvolume{fs: fs, Item: item, ObjID: objID, root: root}
	fs.subvolumeCache.Add(objID, sv)
	return sv, nil
}

// Root returns the inode for this subvolume's top directory.
func (sv *Subvolume) Root(ctx context.Context) (*Inode, error) {
	dirID := sv.Item.RootDirID
	if dirID == 0 {
		dirID = btrfsprim.FIRST_FREE_OBJECTID
	}
	return sv.inode(ctx, dirID, 0, 0)
}

// inode constructs the Inode for inum within sv, consulting the
// filesystem-wide inode cache first. fileType, when nonzero, is the
// FileType hint its directory entry carried; 0 means "derive from
// mode".
func (sv *Subvolume) inode(ctx context.Context, inum btrfsprim.ObjID, fileType btrfsitem.FileType, parent btrfsprim.ObjID) (*Inode, error) {
	cacheKey := inodeCacheKey{subvol: sv.ObjID, inum: inum}
	body, ok := sv.fs.inodeCache.Get(cacheKey)
	if !ok {
		item, err := sv.fs.forrest.TreeSearch(sv.ObjID, btrfstree.KeyExact(
			btrfsprim.Key{ObjectID: inum, ItemType: btrfsprim.INODE_ITEM_KEY, Offset: 0}))
		if err != nil {
			return nil, wrapError(NotFound, fmt.Errorf("inode %v: %w", inum, err))
		}
		body, ok = item.Body.(btrfsitem.Inode)
		if !ok {
			return nil, newError(Internal, "inode %v: malformed inode item", inum)
		}
		sv.fs.inodeCache.Add(cacheKey, body)
	}
	return &Inode{
		subvolume: sv,
		Inum:      inum,
		Item:      body,
		typeHint:  fileType,
		parentDir: parent,
	}, nil
}

// Subvolumes enumerates every subvolume and snapshot reachable from
// the default subvolume, breadth-first over ROOT_REF items, with each
// entry's Path resolved relative to the default subvolume's root.
func (fs *Filesystem) Subvolumes(ctx context.Context) ([]*Subvolume, error) {
	type queued struct {
		objID btrfsprim.ObjID
		path  string
	}
	queue := []queued{{objID: fs.defaultSubvolume, path: ""}}
	seen := map[btrfsprim.ObjID]bool{fs.defaultSubvolume: true}
	var ret []*Subvolume

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		sv, err := fs.openSubvolume(ctx, cur.objID)
		if err != nil {
			return nil, err
		}
		sv.Path = cur.path
		ret = append(ret, sv)

		refs, err := btrfstree.TreeSearchAll(ctx, fs.forrest, btrfsprim.ROOT_TREE_OBJECTID, btrfstree.KeyInRange(
			btrfsprim.Key{ObjectID: cur.objID, ItemType: btrfsprim.ROOT_REF_KEY, Offset: 0},
			btrfsprim.Key{ObjectID: cur.objID, ItemType: btrfsprim.ROOT_REF_KEY, Offset: btrfsprim.MaxOffset},
		))
		if err != nil {
			return nil, wrapError(Invalid, fmt.Errorf("subvolume %v: root refs: %w", cur.objID, err))
		}
		for _, ref := range refs {
			childID := ref.Key.Offset
			body, ok := ref.Body.(btrfsitem.RootRef)
			if !ok {
				continue
			}
			child := btrfsprim.ObjID(childID)
			if seen[child] {
				continue
			}
			seen[child] = true
			dirPath, err := sv.resolveDirPath(ctx, body.DirID)
			if err != nil {
				return nil, err
			}
			childPath := dirPath + "/" + string(body.Name)
			if cur.path != "" {
				childPath = cur.path + childPath
			}
			queue = append(queue, queued{objID: child, path: childPath})
		}
	}
	return ret, nil
}

// resolveDirPath walks INODE_REF items from dirID up to
// FIRST_FREE_OBJECTID (the subvolume root), returning the '/'-prefixed
// path of dirID within sv. An empty string means dirID is already the
// subvolume root.
func (sv *Subvolume) resolveDirPath(ctx context.Context, dirID btrfsprim.ObjID) (string, error) {
	if dirID == btrfsprim.FIRST_FREE_OBJECTID || dirID == sv.Item.RootDirID {
		return "", nil
	}
	var parts []string
	for dirID != btrfsprim.FIRST_FREE_OBJECTID && dirID != sv.Item.RootDirID && dirID != 0 {
		item, err := sv.fs.forrest.TreeSearch(sv.ObjID, func(key btrfsprim.Key, _ uint32) int {
			if key.ObjectID == dirID && key.ItemType == btrfsprim.INODE_REF_KEY {
				return 0
			}
			return btrfsprim.Key{ObjectID: dirID, ItemType: btrfsprim.INODE_REF_KEY, Offset: 0}.Compare(key)
		})
		if err != nil {
			ext, extErr := sv.fs.forrest.TreeSearch(sv.ObjID, func(key btrfsprim.Key, _ uint32) int {
				if key.ObjectID == dirID && key.ItemType == btrfsprim.INODE_EXTREF_KEY {
					return 0
				}
				return btrfsprim.Key{ObjectID: dirID, ItemType: btrfsprim.INODE_EXTREF_KEY, Offset: 0}.Compare(key)
			})
			if extErr != nil {
				return "", wrapError(Invalid, fmt.Errorf("resolving parent of inode %v: %w", dirID, err))
			}
			extBody, ok := ext.Body.(btrfsitem.InodeExtRef)
			if !ok {
				return "", newError(Internal, "inode %v: malformed inode extref", dirID)
			}
			parts = append(parts, string(extBody.Name))
			dirID = extBody.ParentObjID
			continue
		}
		body, ok := item.Body.(btrfsitem.InodeRef)
		if !ok {
			return "", newError(Internal, "inode %v: malformed inode ref", dirID)
		}
		parts = append(parts, string(body.Name))
		dirID = btrfsprim.ObjID(item.Key.Offset)
	}
	out := ""
	for i := len(parts) - 1; i >= 0; i-- {
		out += "/" + parts[i]
	}
	return out, nil
}
