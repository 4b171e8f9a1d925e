// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package btrfsvol

import "fmt"

// Profile identifies a chunk's redundancy/striping scheme, derived from
// the RAID bits of a BlockGroupFlags.
type Profile int

const (
	ProfileSingle Profile = iota
	ProfileDUP
	ProfileRAID0
	ProfileRAID1
	ProfileRAID1C3
	ProfileRAID1C4
	ProfileRAID10
	ProfileRAID5
	ProfileRAID6
)

// profileParams gives the fixed (ncopies, nparity, toleratedFailures)
// triple for a profile, per spec §4.1.
type profileParams struct {
	ncopies           int
	nparity           int
	toleratedFailures int
}

var profileTable = map[Profile]profileParams{
	ProfileSingle:  {ncopies: 1, nparity: 0, toleratedFailures: 0},
	ProfileDUP:     {ncopies: 1, nparity: 0, toleratedFailures: 1},
	ProfileRAID0:   {ncopies: 1, nparity: 0, toleratedFailures: 0},
	ProfileRAID1:   {ncopies: 2, nparity: 0, toleratedFailures: 1},
	ProfileRAID1C3: {ncopies: 3, nparity: 0, toleratedFailures: 2},
	ProfileRAID1C4: {ncopies: 4, nparity: 0, toleratedFailures: 3},
	ProfileRAID10:  {ncopies: 2, nparity: 0, toleratedFailures: 1},
	ProfileRAID5:   {ncopies: 1, nparity: 1, toleratedFailures: 1},
	ProfileRAID6:   {ncopies: 1, nparity: 2, toleratedFailures: 2},
}

func (p Profile) params() profileParams {
	params, ok := profileTable[p]
	if !ok {
		panic(fmt.Sprintf("btrfsvol: unknown profile %d", p))
	}
	return params
}

// ToleratedFailures is the number of missing stripes a chunk under this
// profile can absorb before open must fail.
func (p Profile) ToleratedFailures() int { return p.params().toleratedFailures }

// DataStripes returns `(num_stripes - nparity) / ncopies`, the number of
// stripes that carry data (as opposed to redundancy) in a chunk with
// numStripes total stripes under this profile.
func (p Profile) DataStripes(numStripes int) int {
	params := p.params()
	return (numStripes - params.nparity) / params.ncopies
}

func (p Profile) String() string {
	switch p {
	case ProfileSingle:
		return "single"
	case ProfileDUP:
		return "DUP"
	case ProfileRAID0:
		return "RAID0"
	case ProfileRAID1:
		return "RAID1"
	case ProfileRAID1C3:
		return "RAID1C3"
	case ProfileRAID1C4:
		return "RAID1C4"
	case ProfileRAID10:
		return "RAID10"
	case ProfileRAID5:
		return "RAID5"
	case ProfileRAID6:
		return "RAID6"
	default:
		return fmt.Sprintf("Profile(%d)", int(p))
	}
}

// ProfileFromFlags extracts the redundancy profile encoded in a chunk's
// BlockGroupFlags.
func ProfileFromFlags(flags BlockGroupFlags) Profile {
	switch {
	case flags.Has(BLOCK_GROUP_RAID1C4):
		return ProfileRAID1C4
	case flags.Has(BLOCK_GROUP_RAID1C3):
		return ProfileRAID1C3
	case flags.Has(BLOCK_GROUP_RAID10):
		return ProfileRAID10
	case flags.Has(BLOCK_GROUP_RAID6):
		return ProfileRAID6
	case flags.Has(BLOCK_GROUP_RAID5):
		return ProfileRAID5
	case flags.Has(BLOCK_GROUP_RAID1):
		return ProfileRAID1
	case flags.Has(BLOCK_GROUP_DUP):
		return ProfileDUP
	case flags.Has(BLOCK_GROUP_RAID0):
		return ProfileRAID0
	default:
		return ProfileSingle
	}
}
