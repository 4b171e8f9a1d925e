// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package btrfsitem

import (
	"encoding/binary"
	"fmt"

	"btrfsview/lib/btrfs/btrfsprim"
	"btrfsview/lib/btrfs/btrfsvol"
)

const devSize = 0x62

// key.objectid = BTRFS_DEV_ITEMS_OBJECTID
// key.offset = device_id (starting at 1)
type Dev struct { // trivial DEV_ITEM=216
	DevID btrfsvol.DeviceID

	NumBytes     uint64
	NumBytesUsed uint64

	IOOptimalAlign uint32
	IOOptimalWidth uint32
	IOMinSize      uint32 // sector size

	Type        uint64
	Generation  btrfsprim.Generation
	StartOffset uint64
	DevGroup    uint32
	SeekSpeed   uint8
	Bandwidth   uint8

	DevUUID btrfsprim.UUID
	FSUUID  btrfsprim.UUID
}

func (Dev) isItem() {}

func (o *Dev) UnmarshalBinary(dat []byte) (int, error) {
	if len(dat) < devSize {
		return 0, fmt.Errorf("dev item: need %d bytes, only have %d", devSize, len(dat))
	}
	o.DevID = btrfsvol.DeviceID(binary.LittleEndian.Uint64(dat[0x00:0x08]))
	o.NumBytes = binary.LittleEndian.Uint64(dat[0x08:0x10])
	o.NumBytesUsed = binary.LittleEndian.Uint64(dat[0x10:0x18])
	o.IOOptimalAlign = binary.LittleEndian.Uint32(dat[0x18:0x1c])
	o.IOOptimalWidth = binary.LittleEndian.Uint32(dat[0x1c:0x20])
	o.IOMinSize = binary.LittleEndian.Uint32(dat[0x20:0x24])
	o.Type = binary.LittleEndian.Uint64(dat[0x24:0x2c])
	o.Generation = btrfsprim.Generation(binary.LittleEndian.Uint64(dat[0x2c:0x34]))
	o.StartOffset = binary.LittleEndian.Uint64(dat[0x34:0x3c])
	o.DevGroup = binary.LittleEndian.Uint32(dat[0x3c:0x40])
	o.SeekSpeed = dat[0x40]
	o.Bandwidth = dat[0x41]
	copy(o.DevUUID[:], dat[0x42:0x52])
	copy(o.FSUUID[:], dat[0x52:0x62])
	return devSize, nil
}

func (o Dev) MarshalBinary() ([]byte, error) {
	buf := make([]byte, devSize)
	binary.LittleEndian.PutUint64(buf[0x00:0x08], uint64(o.DevID))
	binary.LittleEndian.PutUint64(buf[0x08:0x10], o.NumBytes)
	binary.LittleEndian.PutUint64(buf[0x10:0x18], o.NumBytesUsed)
	binary.LittleEndian.PutUint32(buf[0x18:0x1c], o.IOOptimalAlign)
	binary.LittleEndian.PutUint32(buf[0x1c:0x20], o.IOOptimalWidth)
	binary.LittleEndian.PutUint32(buf[0x20:0x24], o.IOMinSize)
	binary.LittleEndian.PutUint64(buf[0x24:0x2c], o.Type)
	binary.LittleEndian.PutUint64(buf[0x2c:0x34], uint64(o.Generation))
	binary.LittleEndian.PutUint64(buf[0x34:0x3c], o.StartOffset)
	binary.LittleEndian.PutUint32(buf[0x3c:0x40], o.DevGroup)
	buf[0x40] = o.SeekSpeed
	buf[0x41] = o.Bandwidth
	copy(buf[0x42:0x52], o.DevUUID[:])
	copy(buf[0x52:0x62], o.FSUUID[:])
	return buf, nil
}
