// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package btrfs

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind classifies an Error into one of a closed set of categories a
// caller can branch on without parsing the message.
type Kind int

const (
	// Invalid marks a malformed on-disk structure: bad magic, mixed
	// fsids across devices, a truncated sys_chunk_array.
	Invalid Kind = iota
	// NotFound marks a missing key or path.
	NotFound
	// NotADirectory marks iterdir/listdir called on a non-directory.
	NotADirectory
	// NotASymlink marks Link called on a non-symlink.
	NotASymlink
	// Unsupported marks a feature this library declines to implement:
	// encryption, a degraded RAID5/6 read, an unavailable codec.
	Unsupported
	// Internal marks a defect or an on-disk state the source declares
	// unreachable: an unknown dir_item.location.type, a chunk missing
	// more stripe devices than its profile tolerates.
	Internal
)

// Error makes Kind itself usable as an error, so callers can write
// errors.Is(err, btrfs.NotFound) against the sentinel directly.
func (k Kind) Error() string {
	switch k {
	case Invalid:
		return "INVALID"
	case NotFound:
		return "NOT-FOUND"
	case NotADirectory:
		return "NOT-A-DIRECTORY"
	case NotASymlink:
		return "NOT-A-SYMLINK"
	case Unsupported:
		return "UNSUPPORTED"
	case Internal:
		return "INTERNAL"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Error is the one error type this package returns; every failure
// rolls up under a Kind from the enum above.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string { return fmt.Sprintf("%v: %v", e.Kind, e.Err) }
func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is(err, Invalid) (etc.) work by comparing Kind
// directly, alongside the usual Unwrap chain.
func (e *Error) Is(target error) bool {
	if k, ok := target.(Kind); ok {
		return e.Kind == k
	}
	return false
}

func newError(kind Kind, format string, args ...interface{}) *Error {
	err := fmt.Errorf(format, args...)
	if kind == Internal {
		err = errors.WithStack(err)
	}
	return &Error{Kind: kind, Err: err}
}

func wrapError(kind Kind, err error) *Error {
	if kind == Internal {
		err = errors.WithStack(err)
	}
	return &Error{Kind: kind, Err: err}
}
