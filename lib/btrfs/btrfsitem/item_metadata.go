// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package btrfsitem

import "fmt"

// Metadata is like Extent, but doesn't have .Info.
type Metadata struct { // complex METADATA_ITEM=169
	Head ExtentHeader
	Refs []ExtentInlineRef
}

func (Metadata) isItem() {}

func (o *Metadata) UnmarshalBinary(dat []byte) (int, error) {
	*o = Metadata{}
	if len(dat) < extentHeaderSize {
		return 0, fmt.Errorf("metadata item: need %d bytes, only have %d", extentHeaderSize, len(dat))
	}
	o.Head = unmarshalExtentHeader(dat[:extentHeaderSize])
	n := extentHeaderSize
	for n < len(dat) {
		var ref ExtentInlineRef
		consumed, err := ref.UnmarshalBinary(dat[n:])
		n += consumed
		o.Refs = append(o.Refs, ref)
		if err != nil {
			return n, err
		}
	}
	return n, nil
}

func (o Metadata) MarshalBinary() ([]byte, error) {
	buf := make([]byte, extentHeaderSize)
	marshalExtentHeaderTo(buf, o.Head)
	for _, ref := range o.Refs {
		bs, err := ref.MarshalBinary()
		buf = append(buf, bs...)
		if err != nil {
			return buf, err
		}
	}
	return buf, nil
}
