// Copyright (C) 2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package btrfsitem

import (
	"encoding/binary"
	"fmt"

	"btrfsview/lib/btrfs/btrfsprim"
)

const qgroupInfoSize = 40

// QGroupInfo tracks the amount of space used by a given qgroup in the
// containing subvolume.
//
// Key:
//
//	key.objectid = 0
//	key.offset   = ID of the qgroup
type QGroupInfo struct { // trivial QGROUP_INFO=242
	Generation                btrfsprim.Generation
	ReferencedBytes           uint64
	ReferencedBytesCompressed uint64
	ExclusiveBytes            uint64
	ExclusiveBytesCompressed  uint64
}

func (QGroupInfo) isItem() {}

func (o *QGroupInfo) UnmarshalBinary(dat []byte) (int, error) {
	if len(dat) < qgroupInfoSize {
		return 0, fmt.Errorf("qgroup info: need %d bytes, only have %d", qgroupInfoSize, len(dat))
	}
	o.Generation = btrfsprim.Generation(binary.LittleEndian.Uint64(dat[0:8]))
	o.ReferencedBytes = binary.LittleEndian.Uint64(dat[8:16])
	o.ReferencedBytesCompressed = binary.LittleEndian.Uint64(dat[16:24])
	o.ExclusiveBytes = binary.LittleEndian.Uint64(dat[24:32])
	o.ExclusiveBytesCompressed = binary.LittleEndian.Uint64(dat[32:40])
	return qgroupInfoSize, nil
}

func (o QGroupInfo) MarshalBinary() ([]byte, error) {
	buf := make([]byte, qgroupInfoSize)
	binary.LittleEndian.PutUint64(buf[0:8], uint64(o.Generation))
	binary.LittleEndian.PutUint64(buf[8:16], o.ReferencedBytes)
	binary.LittleEndian.PutUint64(buf[16:24], o.ReferencedBytesCompressed)
	binary.LittleEndian.PutUint64(buf[24:32], o.ExclusiveBytes)
	binary.LittleEndian.PutUint64(buf[32:40], o.ExclusiveBytesCompressed)
	return buf, nil
}
