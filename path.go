// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package btrfs

import (
	"context"
	"strings"
)

const maxSymlinkDepth = 40

// get resolves a '/'-separated path against base (sv's root if base is
// nil), per spec.md's path-lookup algorithm: components are split on
// '/', empty components and '.' are ignored, '..' moves to the
// current directory's parent (or is a no-op at the subvolume root),
// and a symlink encountered mid-path is followed before continuing --
// an absolute target restarts from the filesystem root, a relative
// one resolves against the symlink's own parent directory.
func (sv *Subvolume) get(ctx context.Context, path string, base *Inode) (*Inode, error) {
	cur := base
	if cur == nil {
		var err error
		cur, err = sv.Root(ctx)
		if err != nil {
			return nil, err
		}
	}

	depth := 0
	components := strings.Split(path, "/")
	for i := 0; i < len(components); i++ {
		name := components[i]
		switch name {
		case "", ".":
			continue
		case "..":
			parent, err := cur.Parent(ctx)
			if err != nil {
				continue // no-op at a subvolume root with no known parent
			}
			cur = parent
			continue
		}

		next, err := cur.child(ctx, name)
		if err != nil {
			return nil, err
		}

		if next.IsSymlink() && i < len(components)-1 {
			depth++
			if depth > maxSymlinkDepth {
				return nil, newError(Invalid, "too many levels of symbolic links resolving %q", path)
			}
			target, err := next.Link(ctx)
			if err != nil {
				return nil, err
			}
			rest := strings.Join(components[i+1:], "/")
			if strings.HasPrefix(target, "/") {
				root, err := next.subvolume.fs.Root(ctx)
				if err != nil {
					return nil, err
				}
				return root.subvolume.get(ctx, joinPath(strings.TrimPrefix(target, "/"), rest), root)
			}
			symParent, err := next.Parent(ctx)
			if err != nil {
				return nil, err
			}
			return sv.get(ctx, joinPath(target, rest), symParent)
		}

		cur = next
	}
	return cur, nil
}

func joinPath(a, b string) string {
	if b == "" {
		return a
	}
	if a == "" {
		return b
	}
	return a + "/" + b
}
