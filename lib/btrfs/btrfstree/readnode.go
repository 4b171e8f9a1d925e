// Copyright (C) 2022  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package btrfstree

import (
	"context"
	"fmt"

	"github.com/datawire/dlib/derror"

	"btrfsview/lib/btrfs/btrfsprim"
	"btrfsview/lib/btrfs/btrfsvol"
)

// NodeSource is what a tree cursor reads logical address space through:
// a ChunkStream, or anything else that resolves logical reads.
type NodeSource interface {
	ReadAt(ctx context.Context, p []byte, off btrfsvol.LogicalAddr) (int, error)
}

// NodeExpectations holds the constraints a freshly-read node is checked
// against: the key pointer or superblock field that led a caller to
// this node's address is usually also a claim about that node's
// contents, and a node that doesn't back up the claim indicates a
// corrupt or torn write.
type NodeExpectations struct {
	LAddr      *btrfsvol.LogicalAddr
	Level      *uint8
	Generation *btrfsprim.Generation
	Owner      func(btrfsprim.ObjID) error
	MinItem    *btrfsprim.Key
	MaxItem    *btrfsprim.Key
}

func (exp NodeExpectations) Check(node *Node) error {
	var errs derror.MultiError
	if exp.LAddr != nil && *exp.LAddr != node.Head.Addr {
		errs = append(errs, fmt.Errorf("node.Head.Addr=%v does not match expected=%v",
			node.Head.Addr, *exp.LAddr))
	}
	if exp.Level != nil && *exp.Level != node.Head.Level {
		errs = append(errs, fmt.Errorf("node.Head.Level=%v does not match expected=%v",
			node.Head.Level, *exp.Level))
	}
	if exp.Generation != nil && *exp.Generation != node.Head.Generation {
		errs = append(errs, fmt.Errorf("node.Head.Generation=%v does not match expected=%v",
			node.Head.Generation, *exp.Generation))
	}
	if exp.Owner != nil {
		if err := exp.Owner(node.Head.Owner); err != nil {
			errs = append(errs, fmt.Errorf("node.Head.Owner=%v is invalid: %w", node.Head.Owner, err))
		}
	}
	if exp.MinItem != nil {
		if min, ok := node.MinItem(); ok && min.Compare(*exp.MinItem) < 0 {
			errs = append(errs, fmt.Errorf("node.MinItem=%v is lower than expected=%v", min, *exp.MinItem))
		}
	}
	if exp.MaxItem != nil {
		if max, ok := node.MaxItem(); ok && max.Compare(*exp.MaxItem) > 0 {
			errs = append(errs, fmt.Errorf("node.MaxItem=%v is higher than expected=%v", max, *exp.MaxItem))
		}
	}
	if len(errs) > 0 {
		return errs
	}
	return nil
}

// NodeError is returned (wrapped) by ReadNode when a node fails to
// decode or validate.
type NodeError struct {
	Addr btrfsvol.LogicalAddr
	Err  error
}

func (e *NodeError) Error() string {
	return fmt.Sprintf("node@%v: %v", e.Addr, e.Err)
}

func (e *NodeError) Unwrap() error { return e.Err }

// IOError wraps an underlying I/O failure encountered while reading a
// node, as distinct from a successfully-read-but-invalid node.
type IOError struct {
	Err error
}

func (e *IOError) Error() string { return e.Err.Error() }
func (e *IOError) Unwrap() error { return e.Err }

// ReadNode reads, decodes, checksum-validates, and sanity-checks the
// node at addr, returning a *NodeError (possibly wrapping an *IOError)
// on any failure.
func ReadNode(ctx context.Context, fs NodeSource, sb Superblock, addr btrfsvol.LogicalAddr, exp NodeExpectations) (*Node, error) {
	if addr == 0 {
		return nil, &NodeError{Addr: addr, Err: fmt.Errorf("node address 0 is not a valid node")}
	}

	buf := make([]byte, sb.NodeSize)
	if _, err := fs.ReadAt(ctx, buf, addr); err != nil {
		return nil, &NodeError{Addr: addr, Err: &IOError{Err: err}}
	}

	node := &Node{
		Size:         sb.NodeSize,
		ChecksumType: sb.ChecksumType,
	}
	node.Head = unmarshalNodeHeader(buf[:nodeHeaderSize])

	calcSum, err := sb.ChecksumType.Sum(buf[csumSize:])
	if err == nil && calcSum != node.Head.Checksum {
		return nil, &NodeError{Addr: addr, Err: fmt.Errorf("checksum mismatch: stored=%v calculated=%v", node.Head.Checksum, calcSum)}
	}

	metaUUID := sb.EffectiveMetadataUUID()
	if node.Head.MetadataUUID != metaUUID {
		return nil, &NodeError{Addr: addr, Err: fmt.Errorf("metadata UUID mismatch: stored=%v expected=%v", node.Head.MetadataUUID, metaUUID)}
	}
	if node.Head.Addr != addr {
		return nil, &NodeError{Addr: addr, Err: fmt.Errorf("stored address %v does not match read address", node.Head.Addr)}
	}

	body := buf[nodeHeaderSize:]
	if node.Head.Level > 0 {
		err = node.unmarshalInterior(body)
	} else {
		err = node.unmarshalLeaf(body)
	}
	if err != nil {
		return nil, &NodeError{Addr: addr, Err: err}
	}

	if err := exp.Check(node); err != nil {
		return nil, &NodeError{Addr: addr, Err: err}
	}

	return node, nil
}
