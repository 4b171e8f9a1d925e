// Copyright (C) 2022  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package btrfsitem

import (
	"encoding/binary"
	"fmt"

	"btrfsview/lib/btrfs/btrfsprim"
)

// The Key for this item is a UUID, and the item is the subvolume ID
// that that UUID maps to.
//
// key.objectid = first half of UUID
// key.offset = second half of UUID
type UUIDMap struct { // UUID_SUBVOL=251 UUID_RECEIVED_SUBVOL=252
	ObjID btrfsprim.ObjID
}

func (UUIDMap) isItem() {}

func (o *UUIDMap) UnmarshalBinary(dat []byte) (int, error) {
	if len(dat) < 8 {
		return 0, fmt.Errorf("uuid map item: need 8 bytes, only have %d", len(dat))
	}
	o.ObjID = btrfsprim.ObjID(binary.LittleEndian.Uint64(dat[0:8]))
	return 8, nil
}

func (o UUIDMap) MarshalBinary() ([]byte, error) {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf[0:8], uint64(o.ObjID))
	return buf, nil
}

func KeyToUUID(key btrfsprim.Key) btrfsprim.UUID {
	var uuid btrfsprim.UUID
	binary.LittleEndian.PutUint64(uuid[:8], uint64(key.ObjectID))
	binary.LittleEndian.PutUint64(uuid[8:], uint64(key.Offset))
	return uuid
}
