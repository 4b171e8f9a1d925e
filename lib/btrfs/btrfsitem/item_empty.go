// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package btrfsitem

// Empty is the body of items that carry no data of their own, only a
// Key: ORPHAN_ITEM=48 TREE_BLOCK_REF=176 SHARED_BLOCK_REF=182
// FREE_SPACE_EXTENT=199 QGROUP_RELATION=246 DIR_LOG_ITEM=60
// DIR_LOG_INDEX=72
type Empty struct{}

func (Empty) isItem() {}

func (o *Empty) UnmarshalBinary(dat []byte) (int, error) {
	return 0, nil
}

func (o Empty) MarshalBinary() ([]byte, error) {
	return nil, nil
}
