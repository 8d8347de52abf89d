package listfs

/**
 * SPDX-License-Identifier: Apache-2.0
 * Copyright 2020 vorteil.io Pty Ltd
 */

import (
	"strings"
	"time"
)

// insertNode links node at the head of parent's child list (or the volume's
// top level when parent is None). It touches the node, the parent, and the
// former head.
func (fs *FS) insertNode(node, parent BlockIndex) error {

	if node == None {
		return nil
	}

	fs.log.Debugf("[insert_node] node = %d, parent = %d", node, parent)

	hdr, err := fs.readNodeHeader(node)
	if err != nil {
		return err
	}

	hdr.Parent = parent
	hdr.Prev = None

	if parent == None {
		hdr.Next = fs.super.RootDir
		fs.super.RootDir = node
	} else {
		parentHdr, err := fs.readNodeHeader(parent)
		if err != nil {
			return err
		}
		hdr.Next = parentHdr.Data
		parentHdr.Data = node
		err = fs.writeNodeHeader(parent, parentHdr)
		if err != nil {
			return err
		}
	}

	if hdr.Next != None {
		nextHdr, err := fs.readNodeHeader(hdr.Next)
		if err != nil {
			return err
		}
		nextHdr.Prev = node
		err = fs.writeNodeHeader(hdr.Next, nextHdr)
		if err != nil {
			return err
		}
	}

	return fs.writeNodeHeader(node, hdr)

}

// removeNode splices node out of its sibling list. The node's own storage
// and its header contents are left alone.
func (fs *FS) removeNode(node BlockIndex) error {

	if node == None {
		return nil
	}

	fs.log.Debugf("[remove_node] node = %d", node)

	hdr, err := fs.readNodeHeader(node)
	if err != nil {
		return err
	}

	next, prev, parent := hdr.Next, hdr.Prev, hdr.Parent

	if next != None {
		nextHdr, err := fs.readNodeHeader(next)
		if err != nil {
			return err
		}
		nextHdr.Prev = prev
		err = fs.writeNodeHeader(next, nextHdr)
		if err != nil {
			return err
		}
	}

	if prev != None {
		prevHdr, err := fs.readNodeHeader(prev)
		if err != nil {
			return err
		}
		prevHdr.Next = next
		err = fs.writeNodeHeader(prev, prevHdr)
		if err != nil {
			return err
		}
	} else if parent != None {
		parentHdr, err := fs.readNodeHeader(parent)
		if err != nil {
			return err
		}
		parentHdr.Data = next
		err = fs.writeNodeHeader(parent, parentHdr)
		if err != nil {
			return err
		}
	} else {
		fs.super.RootDir = next
	}

	return nil

}

// CreateNode allocates a header block, writes a fresh node with the given
// name and flags, and inserts it under parent (None for the top level).
// Returns ErrNoSpace when the volume is full.
func (fs *FS) CreateNode(name string, flags uint32, parent BlockIndex) (BlockIndex, error) {

	fs.log.Debugf("[create_node] name = '%s', flags = %d, parent = %d", name, flags, parent)

	block := fs.allocBlock()
	if block == None {
		return None, ErrNoSpace
	}

	now := time.Now().Unix()

	hdr := new(NodeHeader)
	hdr.Magic = NodeMagic
	hdr.SetName(name)
	hdr.Flags = flags
	hdr.Parent = None
	hdr.Next = None
	hdr.Prev = None
	hdr.Data = None
	hdr.CreateTime = now
	hdr.ModifyTime = now
	hdr.AccessTime = now

	err := fs.writeNodeHeader(block, hdr)
	if err != nil {
		return None, err
	}

	err = fs.insertNode(block, parent)
	if err != nil {
		return None, err
	}

	return block, nil

}

// DeleteNode removes a node from its sibling list and frees its header
// block. A node that still owns data cannot be deleted: files must be
// truncated to nothing first, directories must be empty. Returns ErrNotEmpty
// in that case without mutating anything.
func (fs *FS) DeleteNode(node BlockIndex) error {

	if node == None {
		return ErrNotFound
	}

	fs.log.Debugf("[delete_node] node = %d", node)

	hdr, err := fs.readNodeHeader(node)
	if err != nil {
		return err
	}

	if hdr.Data != None {
		fs.log.Debugf("[delete_node] node has data")
		return ErrNotEmpty
	}

	err = fs.removeNode(node)
	if err != nil {
		return err
	}

	fs.markFree(node, 1)

	return nil

}

// MoveNode reparents node under newParent. Callers must not move a
// directory into its own subtree; the core does not check for cycles.
func (fs *FS) MoveNode(node, newParent BlockIndex) error {

	if node == None {
		return ErrNotFound
	}

	fs.log.Debugf("[move_node] node = %d, new_parent = %d", node, newParent)

	err := fs.removeNode(node)
	if err != nil {
		return err
	}

	return fs.insertNode(node, newParent)

}

// RenameNode rewrites a node's name field.
func (fs *FS) RenameNode(node BlockIndex, name string) error {

	if node == None {
		return ErrNotFound
	}

	fs.log.Debugf("[rename_node] node = %d, name = '%s'", node, name)

	hdr, err := fs.readNodeHeader(node)
	if err != nil {
		return err
	}

	hdr.SetName(name)

	return fs.writeNodeHeader(node, hdr)

}

// ForeachNode walks a sibling list starting at first, calling cb for each
// node until cb returns false or the list ends.
func (fs *FS) ForeachNode(first BlockIndex, cb func(BlockIndex, *NodeHeader) bool) error {

	fs.log.Debugf("[foreach_node] first node = %d", first)

	node := first
	for node != None {
		hdr, err := fs.readNodeHeader(node)
		if err != nil {
			return err
		}
		if cb != nil && !cb(node, hdr) {
			break
		}
		node = hdr.Next
	}

	return nil

}

// ForeachChild walks the children of a directory node.
func (fs *FS) ForeachChild(parent BlockIndex, cb func(BlockIndex, *NodeHeader) bool) error {

	if parent == None {
		return nil
	}

	fs.log.Debugf("[foreach_child] parent node = %d", parent)

	hdr, err := fs.readNodeHeader(parent)
	if err != nil {
		return err
	}

	return fs.ForeachNode(hdr.Data, cb)

}

// SearchNode resolves a '/'-separated path against the sibling list rooted
// at first, descending through directories. It returns None when any
// segment fails to match, or when a non-final segment names a file. A
// trailing slash resolves to the last matched node.
func (fs *FS) SearchNode(path string, first BlockIndex) (BlockIndex, error) {

	fs.log.Debugf("[search_node] path = '%s', first = %d", path, first)

	for {

		name := path
		rest := ""
		if i := strings.IndexByte(path, '/'); i >= 0 {
			name = path[:i]
			rest = path[i+1:]
		}
		if len(name) > NameSize {
			name = name[:NameSize]
		}

		found := None
		var foundHdr *NodeHeader
		err := fs.ForeachNode(first, func(node BlockIndex, hdr *NodeHeader) bool {
			if hdr.NodeName() == name {
				found = node
				foundHdr = hdr
				return false
			}
			return true
		})
		if err != nil {
			return None, err
		}

		if found == None {
			fs.log.Debugf("[search_node] node '%s' not found", name)
			return None, nil
		}

		if rest == "" {
			return found, nil
		}

		if !foundHdr.IsDir() {
			fs.log.Debugf("[search_node] need a directory, but '%s' is a file", name)
			return None, nil
		}

		first = foundHdr.Data
		path = rest

	}

}

// FetchNode reads and returns a copy of a node's header.
func (fs *FS) FetchNode(node BlockIndex) (*NodeHeader, error) {

	if node == None {
		return nil, ErrNotFound
	}

	fs.log.Debugf("[fetch_node] node = %d", node)

	return fs.readNodeHeader(node)

}
