// Copyright (C) 2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package btrfsitem

import (
	"encoding/binary"
	"fmt"

	"btrfsview/lib/fmtutil"
)

type QGroupLimitFlags uint64

const (
	QGroupLimitFlagMaxRfer = 1 << iota
	QGroupLimitFlagMaxExcl
	QGroupLimitFlagRsvRfer
	QGroupLimitFlagRsvExcl
	QGroupLimitFlagRferCmpr
	QGroupLimitFlagExclCmpr
)

var qgroupLimitFlagNames = []string{
	"MAX_RFER",
	"MAX_EXCL",
	"RSV_RFER",
	"RSV_EXCL",
	"RFER_CMPR",
	"EXCL_CMPR",
}

func (f QGroupLimitFlags) Has(req QGroupLimitFlags) bool { return f&req == req }
func (f QGroupLimitFlags) String() string {
	return fmtutil.BitfieldString(f, qgroupLimitFlagNames, fmtutil.HexNone)
}

const qgroupLimitSize = 40

// key.objectid = 0
// key.offset = ID of the qgroup
type QGroupLimit struct { // trivial QGROUP_LIMIT=244
	Flags         QGroupLimitFlags
	MaxReferenced uint64
	MaxExclusive  uint64
	RsvReferenced uint64
	RsvExclusive  uint64
}

func (QGroupLimit) isItem() {}

func (o *QGroupLimit) UnmarshalBinary(dat []byte) (int, error) {
	if len(dat) < qgroupLimitSize {
		return 0, fmt.Errorf("qgroup limit: need %d bytes, only have %d", qgroupLimitSize, len(dat))
	}
	o.Flags = QGroupLimitFlags(binary.LittleEndian.Uint64(dat[0:8]))
	o.MaxReferenced = binary.LittleEndian.Uint64(dat[8:16])
	o.MaxExclusive = binary.LittleEndian.Uint64(dat[16:24])
	o.RsvReferenced = binary.LittleEndian.Uint64(dat[24:32])
	o.RsvExclusive = binary.LittleEndian.Uint64(dat[32:40])
	return qgroupLimitSize, nil
}

func (o QGroupLimit) MarshalBinary() ([]byte, error) {
	buf := make([]byte, qgroupLimitSize)
	binary.LittleEndian.PutUint64(buf[0:8], uint64(o.Flags))
	binary.LittleEndian.PutUint64(buf[8:16], o.MaxReferenced)
	binary.LittleEndian.PutUint64(buf[16:24], o.MaxExclusive)
	binary.LittleEndian.PutUint64(buf[24:32], o.RsvReferenced)
	binary.LittleEndian.PutUint64(buf[32:40], o.RsvExclusive)
	return buf, nil
}
