// Copyright (C) 2022  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package btrfsitem

import (
	"fmt"

	"btrfsview/lib/btrfs/btrfsprim"
	"btrfsview/lib/btrfs/btrfssum"
	"btrfsview/lib/btrfs/btrfsvol"
)

type Item interface {
	isItem()
	MarshalBinary() ([]byte, error)
}

type Error struct {
	Dat []byte
	Err error
}

func (Error) isItem() {}

func (o Error) MarshalBinary() ([]byte, error) {
	return o.Dat, nil
}

// UnmarshalItem decodes the body of a leaf item according to its key's
// item type. Rather than returning a separate error value, a malformed
// item decodes to an Error so that one bad item doesn't abort a whole
// tree walk.
func UnmarshalItem(key btrfsprim.Key, csumType btrfssum.CSumType, dat []byte) Item {
	var item Item
	var n int
	var err error

	if key.ItemType == btrfsprim.UNTYPED_KEY {
		item, n, err = unmarshalUntypedItem(key, dat)
	} else {
		item, n, err = unmarshalTypedItem(key, csumType, dat)
	}
	if err != nil {
		return Error{
			Dat: dat,
			Err: fmt.Errorf("btrfsitem.UnmarshalItem(key=%v): %w", key, err),
		}
	}
	if n < len(dat) {
		return Error{
			Dat: dat,
			Err: fmt.Errorf("btrfsitem.UnmarshalItem(key=%v): left over data: got %v bytes but only consumed %v",
				key, len(dat), n),
		}
	}
	return item
}

func unmarshalUntypedItem(key btrfsprim.Key, dat []byte) (Item, int, error) {
	switch key.ObjectID {
	case btrfsprim.FREE_SPACE_OBJECTID:
		var o FreeSpaceHeader
		n, err := o.UnmarshalBinary(dat)
		return o, n, err
	default:
		return nil, 0, fmt.Errorf("unknown object ID %v for untyped item", key.ObjectID)
	}
}

func unmarshalTypedItem(key btrfsprim.Key, csumType btrfssum.CSumType, dat []byte) (Item, int, error) {
	switch key.ItemType {
	case btrfsprim.INODE_ITEM_KEY:
		var o Inode
		n, err := o.UnmarshalBinary(dat)
		return o, n, err
	case btrfsprim.INODE_REF_KEY:
		var o InodeRef
		n, err := o.UnmarshalBinary(dat)
		return o, n, err
	case btrfsprim.INODE_EXTREF_KEY:
		var o InodeExtRef
		n, err := o.UnmarshalBinary(dat)
		return o, n, err
	case btrfsprim.XATTR_ITEM_KEY, btrfsprim.DIR_ITEM_KEY, btrfsprim.DIR_INDEX_KEY:
		var o DirEntry
		n, err := o.UnmarshalBinary(dat)
		return o, n, err
	case btrfsprim.ORPHAN_ITEM_KEY, btrfsprim.TREE_BLOCK_REF_KEY, btrfsprim.SHARED_BLOCK_REF_KEY,
		btrfsprim.FREE_SPACE_EXTENT_KEY, btrfsprim.QGROUP_RELATION_KEY:
		var o Empty
		n, err := o.UnmarshalBinary(dat)
		return o, n, err
	case btrfsprim.DIR_LOG_ITEM_KEY, btrfsprim.DIR_LOG_INDEX_KEY:
		var o Empty
		n, err := o.UnmarshalBinary(dat)
		return o, n, err
	case btrfsprim.EXTENT_DATA_KEY:
		var o FileExtent
		n, err := o.UnmarshalBinary(dat)
		return o, n, err
	case btrfsprim.EXTENT_CSUM_KEY:
		o := ExtentCSum{ChecksumSize: csumType.Size(), Addr: btrfsvol.LogicalAddr(key.Offset)}
		n, err := o.UnmarshalBinary(dat)
		return o, n, err
	case btrfsprim.ROOT_ITEM_KEY:
		var o Root
		n, err := o.UnmarshalBinary(dat)
		return o, n, err
	case btrfsprim.ROOT_BACKREF_KEY, btrfsprim.ROOT_REF_KEY:
		var o RootRef
		n, err := o.UnmarshalBinary(dat)
		return o, n, err
	case btrfsprim.EXTENT_ITEM_KEY:
		var o Extent
		n, err := o.UnmarshalBinary(dat)
		return o, n, err
	case btrfsprim.METADATA_ITEM_KEY:
		var o Metadata
		n, err := o.UnmarshalBinary(dat)
		return o, n, err
	case btrfsprim.EXTENT_DATA_REF_KEY:
		var o ExtentDataRef
		n, err := o.UnmarshalBinary(dat)
		return o, n, err
	case btrfsprim.SHARED_DATA_REF_KEY:
		var o SharedDataRef
		n, err := o.UnmarshalBinary(dat)
		return o, n, err
	case btrfsprim.BLOCK_GROUP_ITEM_KEY:
		var o BlockGroup
		n, err := o.UnmarshalBinary(dat)
		return o, n, err
	case btrfsprim.FREE_SPACE_INFO_KEY:
		var o FreeSpaceInfo
		n, err := o.UnmarshalBinary(dat)
		return o, n, err
	case btrfsprim.FREE_SPACE_BITMAP_KEY:
		var o FreeSpaceBitmap
		n, err := o.UnmarshalBinary(dat)
		return o, n, err
	case btrfsprim.DEV_EXTENT_KEY:
		var o DevExtent
		n, err := o.UnmarshalBinary(dat)
		return o, n, err
	case btrfsprim.DEV_ITEM_KEY:
		var o Dev
		n, err := o.UnmarshalBinary(dat)
		return o, n, err
	case btrfsprim.CHUNK_ITEM_KEY:
		var o Chunk
		n, err := o.UnmarshalBinary(dat)
		return o, n, err
	case btrfsprim.QGROUP_STATUS_KEY:
		var o QGroupStatus
		n, err := o.UnmarshalBinary(dat)
		return o, n, err
	case btrfsprim.QGROUP_INFO_KEY:
		var o QGroupInfo
		n, err := o.UnmarshalBinary(dat)
		return o, n, err
	case btrfsprim.QGROUP_LIMIT_KEY:
		var o QGroupLimit
		n, err := o.UnmarshalBinary(dat)
		return o, n, err
	case btrfsprim.UUID_SUBVOL_KEY, btrfsprim.UUID_RECEIVED_SUBVOL_KEY:
		var o UUIDMap
		n, err := o.UnmarshalBinary(dat)
		return o, n, err
	default:
		return nil, 0, fmt.Errorf("unknown item type %v", key.ItemType)
	}
}
