// Copyright (C) 2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package btrfsitem

import (
	"encoding/binary"
	"fmt"

	"btrfsview/lib/btrfs/btrfsprim"
	"btrfsview/lib/btrfs/btrfsvol"
	"btrfsview/lib/fmtutil"
)

type QGroupStatusFlags uint64

const (
	QGroupStatusFlagOn QGroupStatusFlags = 1 << iota
	QGroupStatusFlagRescan
	QGroupStatusFlagInconsistent
)

var qgroupStatusFlagNames = []string{
	"ON",
	"RESCAN",
	"INCONSISTENT",
}

func (f QGroupStatusFlags) Has(req QGroupStatusFlags) bool { return f&req == req }
func (f QGroupStatusFlags) String() string {
	return fmtutil.BitfieldString(f, qgroupStatusFlagNames, fmtutil.HexNone)
}

const QGroupStatusVersion uint64 = 1

const qgroupStatusSize = 32

// key.objectid = 0
// key.offset = 0
type QGroupStatus struct { // QGROUP_STATUS=240
	Version        uint64
	Generation     btrfsprim.Generation
	Flags          QGroupStatusFlags
	RescanProgress btrfsvol.LogicalAddr
}

func (QGroupStatus) isItem() {}

func (o *QGroupStatus) UnmarshalBinary(dat []byte) (int, error) {
	if len(dat) < qgroupStatusSize {
		return 0, fmt.Errorf("qgroup status: need %d bytes, only have %d", qgroupStatusSize, len(dat))
	}
	o.Version = binary.LittleEndian.Uint64(dat[0:8])
	o.Generation = btrfsprim.Generation(binary.LittleEndian.Uint64(dat[8:16]))
	o.Flags = QGroupStatusFlags(binary.LittleEndian.Uint64(dat[16:24]))
	o.RescanProgress = btrfsvol.LogicalAddr(binary.LittleEndian.Uint64(dat[24:32]))
	return qgroupStatusSize, nil
}

func (o QGroupStatus) MarshalBinary() ([]byte, error) {
	buf := make([]byte, qgroupStatusSize)
	binary.LittleEndian.PutUint64(buf[0:8], o.Version)
	binary.LittleEndian.PutUint64(buf[8:16], uint64(o.Generation))
	binary.LittleEndian.PutUint64(buf[16:24], uint64(o.Flags))
	binary.LittleEndian.PutUint64(buf[24:32], uint64(o.RescanProgress))
	return buf, nil
}
