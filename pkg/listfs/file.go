package listfs

/**
 * SPDX-License-Identifier: Apache-2.0
 * Copyright 2020 vorteil.io Pty Ltd
 */

import (
	"io"
	"time"
)

// File is the shared state of an open file node. Opening the same node
// twice returns the same *File with a bumped link count, so the cursor is
// shared between handles; the last Close drops the registry entry.
type File struct {
	fs   *FS
	node BlockIndex

	header NodeHeader

	// cursor state: the loaded block-list page, the slot within it that
	// holds the current data block, and the byte position. Slot 0 and the
	// final slot are transition states resolved by touchCurBlock.
	curListBlock BlockIndex
	curList      []BlockIndex
	curSlot      int
	curByte      uint64
	curGlobal    uint64

	links int
}

// OpenFile opens the file stored at node, coalescing with any existing open
// of the same node. Returns ErrNotFile when the block is not a file node.
func (fs *FS) OpenFile(node BlockIndex) (*File, error) {

	fs.log.Debugf("[open_file] node = %d", node)

	if node == None {
		return nil, ErrNotFound
	}

	if f, ok := fs.files[node]; ok {
		f.links++
		fs.log.Debugf("[open_file] this file is already open")
		return f, nil
	}

	hdr, err := fs.readNodeHeader(node)
	if err != nil {
		return nil, err
	}

	if hdr.Magic != NodeMagic || hdr.IsDir() {
		return nil, ErrNotFile
	}

	f := &File{
		fs:           fs,
		node:         node,
		header:       *hdr,
		curListBlock: hdr.Data,
		curList:      make([]BlockIndex, fs.blockListSlots()),
		curSlot:      1,
		links:        1,
	}

	if hdr.Data != None {
		err = fs.readBlockList(hdr.Data, f.curList)
		if err != nil {
			return nil, err
		}
	}

	fs.files[node] = f

	return f, nil

}

// Close releases one handle on the file. The registry entry is removed when
// the last handle goes away.
func (f *File) Close() error {

	f.fs.log.Debugf("[file_close] link count = %d", f.links)

	f.links--
	if f.links == 0 {
		delete(f.fs.files, f.node)
	}

	return nil

}

// Node returns the block index of the file's node.
func (f *File) Node() BlockIndex {
	return f.node
}

// Size returns the file's length in bytes.
func (f *File) Size() uint64 {
	return f.header.Size
}

// touchCurBlock resolves the cursor onto a real data slot, loading or
// allocating block-list pages as needed. With write set it allocates the
// missing page or data block under the cursor; without it a missing block
// means the cursor cannot be touched. Returns false when the position has
// no data block and none may be created.
func (f *File) touchCurBlock(write bool) (bool, error) {

	fs := f.fs
	fs.log.Debugf("[touch_cur_block] write = %v", write)
	slots := fs.blockListSlots()

	if f.curListBlock == None && write {
		block := fs.allocBlock()
		if block != None {
			f.curListBlock = block
			f.header.Data = block
			err := fs.writeNodeHeader(f.node, &f.header)
			if err != nil {
				return false, err
			}
			for i := range f.curList {
				f.curList[i] = None
			}
			err = fs.writeBlockList(f.curListBlock, f.curList)
			if err != nil {
				return false, err
			}
		}
	}

	if f.curListBlock == None {
		return false, nil
	}

	if f.curSlot == 0 {
		// stepped backward over the page boundary
		if f.curList[0] == None {
			f.curSlot = 1
		} else {
			f.curListBlock = f.curList[0]
			err := fs.readBlockList(f.curListBlock, f.curList)
			if err != nil {
				return false, err
			}
			f.curSlot = slots - 2
		}
	} else if f.curSlot == slots-1 {
		// about to cross to the next page
		if f.curList[slots-1] == None {
			if write {
				block := fs.allocBlock()
				if block != None {
					f.curList[slots-1] = block
					err := fs.writeBlockList(f.curListBlock, f.curList)
					if err != nil {
						return false, err
					}
					prev := f.curListBlock
					f.curListBlock = block
					for i := 1; i < slots; i++ {
						f.curList[i] = None
					}
					f.curList[0] = prev
					err = fs.writeBlockList(f.curListBlock, f.curList)
					if err != nil {
						return false, err
					}
					f.curSlot = 1
				}
			}
		} else {
			f.curListBlock = f.curList[slots-1]
			err := fs.readBlockList(f.curListBlock, f.curList)
			if err != nil {
				return false, err
			}
			f.curSlot = 1
		}
	}

	if f.curSlot > 0 && f.curSlot < slots-1 {
		if f.curList[f.curSlot] == None {
			if write {
				block := fs.allocBlock()
				if block != None {
					f.curList[f.curSlot] = block
					err := fs.writeBlockList(f.curListBlock, f.curList)
					if err != nil {
						return false, err
					}
					return true, nil
				}
			}
			return false, nil
		}
		return true, nil
	}

	return false, nil

}

// switchCurBlock moves the cursor one data block backward or forward and
// touches the new position. The global offset only advances on a
// successful forward touch.
func (f *File) switchCurBlock(backward, write bool) (bool, error) {

	f.fs.log.Debugf("[switch_cur_block] backward = %v, write = %v", backward, write)

	bs := uint64(f.fs.super.BlockSize)
	slots := f.fs.blockListSlots()

	if backward {
		if f.curSlot > 0 {
			f.curSlot--
			if f.curGlobal >= bs {
				f.curGlobal -= bs
			}
		}
	} else {
		if f.curSlot < slots {
			f.curSlot++
		}
	}

	ok, err := f.touchCurBlock(write)
	if err != nil {
		return false, err
	}

	if ok && !backward {
		f.curGlobal += bs
	}

	return ok, nil

}

// Seek positions the cursor at an absolute byte offset. With write set,
// each data block the cursor steps into is allocated if missing (the block
// it starts in is left as it is), and seeking past the end of the file
// extends the file's size to the new offset.
func (f *File) Seek(offset uint64, write bool) error {

	f.fs.log.Debugf("[file_seek] offset = %d, write = %v", offset, write)

	bs := uint64(f.fs.super.BlockSize)

	for f.curGlobal/bs > offset/bs {
		ok, err := f.switchCurBlock(true, write)
		if err != nil {
			return err
		}
		if !ok {
			break
		}
	}

	for f.curGlobal/bs < offset/bs {
		ok, err := f.switchCurBlock(false, write)
		if err != nil {
			return err
		}
		if !ok {
			break
		}
	}

	f.curByte = offset % bs
	f.curGlobal = offset

	if write && f.curGlobal > f.header.Size {
		f.header.Size = f.curGlobal
		return f.fs.writeNodeHeader(f.node, &f.header)
	}

	return nil

}

// Read copies bytes from the cursor into p, advancing the cursor. Reads
// beyond the end of the file are clamped; a read with nothing left returns
// io.EOF.
func (f *File) Read(p []byte) (int, error) {

	fs := f.fs
	fs.log.Debugf("[file_read] length = %d", len(p))

	bs := uint64(fs.super.BlockSize)
	count := 0

	length := uint64(len(p))
	if f.curGlobal >= f.header.Size {
		length = 0
	} else if length > f.header.Size-f.curGlobal {
		length = f.header.Size - f.curGlobal
	}

	tmp := make([]byte, bs)

	for length > 0 {

		ok, err := f.touchCurBlock(false)
		if err != nil {
			return count, err
		}
		if !ok {
			break
		}

		err = fs.readBlock(f.curList[f.curSlot], tmp)
		if err != nil {
			return count, err
		}

		c := minu64(bs-f.curByte, length)
		copy(p[count:], tmp[f.curByte:f.curByte+c])

		count += int(c)
		length -= c
		f.curByte += c
		f.curGlobal += c

		if f.curByte >= bs {
			f.curSlot++
			f.curByte = 0
		}

	}

	if count == 0 && len(p) > 0 {
		return 0, io.EOF
	}

	return count, nil

}

// Write copies bytes from p at the cursor, allocating data blocks and list
// pages on demand. When the volume fills up mid-write the bytes already
// transferred are reported alongside ErrNoSpace.
func (f *File) Write(p []byte) (int, error) {

	fs := f.fs
	fs.log.Debugf("[file_write] length = %d", len(p))

	bs := uint64(fs.super.BlockSize)
	count := 0
	length := uint64(len(p))

	tmp := make([]byte, bs)

	for length > 0 {

		ok, err := f.touchCurBlock(true)
		if err != nil {
			return count, err
		}
		if !ok {
			break
		}

		if f.curByte > 0 || length < bs {
			// partial block: read-modify-write
			err = fs.readBlock(f.curList[f.curSlot], tmp)
			if err != nil {
				return count, err
			}
		}

		c := minu64(bs-f.curByte, length)
		fs.log.Debugf("[file_write] writing %d bytes of data at offset %d", c, f.curByte)
		copy(tmp[f.curByte:], p[count:count+int(c)])

		err = fs.writeBlock(f.curList[f.curSlot], tmp)
		if err != nil {
			return count, err
		}

		count += int(c)
		length -= c
		f.curByte += c
		f.curGlobal += c

		if f.curByte >= bs {
			f.curSlot++
			f.curByte = 0
		}

	}

	if f.curGlobal > f.header.Size {
		f.header.Size = f.curGlobal
		f.header.ModifyTime = time.Now().Unix()
		err := fs.writeNodeHeader(f.node, &f.header)
		if err != nil {
			return count, err
		}
	}

	if count < len(p) {
		return count, ErrNoSpace
	}

	return count, nil

}

// Truncate discards all file data at and after the cursor, freeing data
// blocks and any block-list pages that end up empty, then sets the file's
// size to the cursor position.
func (f *File) Truncate() error {

	fs := f.fs
	fs.log.Debugf("[file_truncate]")

	if f.curListBlock == None {
		f.header.Size = f.curGlobal
		f.header.ModifyTime = time.Now().Unix()
		return fs.writeNodeHeader(f.node, &f.header)
	}

	slots := fs.blockListSlots()

	listBlock := f.curListBlock
	slot := f.curSlot
	if f.curByte > 0 {
		slot++
	}

	list := make([]BlockIndex, slots)
	err := fs.readBlockList(listBlock, list)
	if err != nil {
		return err
	}

	freed := 0
	prevPageFreed := false

	for {

		if slot >= slots-1 {

			next := list[slots-1]

			if freed == slots-2 {
				// every data slot on this page was released
				fs.markFree(listBlock, 1)
				if list[0] == None {
					f.header.Data = None
					f.curListBlock = None
				} else {
					if !prevPageFreed {
						prev := make([]BlockIndex, slots)
						err = fs.readBlockList(list[0], prev)
						if err != nil {
							return err
						}
						prev[slots-1] = None
						err = fs.writeBlockList(list[0], prev)
						if err != nil {
							return err
						}
					}
					if listBlock == f.curListBlock {
						// the cursor's page is gone; park the cursor on
						// the surviving predecessor's crossing slot
						f.curListBlock = list[0]
						f.curSlot = slots - 1
					}
				}
				prevPageFreed = true
			} else {
				err = fs.writeBlockList(listBlock, list)
				if err != nil {
					return err
				}
				prevPageFreed = false
			}

			if next == None {
				break
			}

			listBlock = next
			err = fs.readBlockList(listBlock, list)
			if err != nil {
				return err
			}
			slot = 1
			freed = 0
			continue

		}

		if list[slot] != None {
			fs.markFree(list[slot], 1)
			list[slot] = None
		}
		freed++
		slot++

	}

	f.header.Size = f.curGlobal
	f.header.ModifyTime = time.Now().Unix()
	err = fs.writeNodeHeader(f.node, &f.header)
	if err != nil {
		return err
	}

	if f.curListBlock != None {
		return fs.readBlockList(f.curListBlock, f.curList)
	}

	return nil

}
