// Copyright (C) 2022  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package btrfsprim

import "time"

// Generation is a transaction ID; the filesystem's generation counter
// increments on every transaction commit.
type Generation uint64

// Time is an on-disk (seconds, nanoseconds) timestamp.
type Time struct {
	Sec  int64  // seconds since 1970-01-01T00:00:00Z
	NSec uint32 // nanoseconds within the second
}

func (t Time) ToStd() time.Time {
	return time.Unix(t.Sec, int64(t.NSec))
}
