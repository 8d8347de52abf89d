package listfs

/**
 * SPDX-License-Identifier: Apache-2.0
 * Copyright 2020 vorteil.io Pty Ltd
 */

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// On-disk record sizes. Both structs marshal with encoding/binary into
// exactly these many bytes; the remainder of their blocks is zero padding.
const (
	SuperblockSize = 60
	NodeHeaderSize = 328
)

// Superblock is the volume descriptor stored at block 0. All fields are
// little-endian on disk and the record is packed without padding.
type Superblock struct {
	Jump       [4]byte
	Magic      uint32
	Base       uint64
	Size       uint64
	MapBase    BlockIndex
	MapSize    uint64
	RootDir    BlockIndex
	BlockSize  uint16
	Version    uint16
	UsedBlocks uint64
}

// FreeBlocks returns the number of unallocated blocks on the volume.
func (sb *Superblock) FreeBlocks() uint64 {
	return sb.Size - sb.UsedBlocks
}

// NodeHeader describes a file or directory. It occupies one block; the
// index of that block is the node's identity everywhere else on disk.
type NodeHeader struct {
	Name       [NameSize]byte
	Parent     BlockIndex
	Next       BlockIndex
	Prev       BlockIndex
	Data       BlockIndex
	Magic      uint32
	Flags      uint32
	Size       uint64
	CreateTime int64
	ModifyTime int64
	AccessTime int64
}

// IsDir returns true if the node is a directory.
func (hdr *NodeHeader) IsDir() bool {
	return hdr.Flags&FlagDirectory != 0
}

// NodeName returns the visible name. The on-disk field is zero-padded but
// not necessarily NUL-terminated when all 256 bytes are in use.
func (hdr *NodeHeader) NodeName() string {
	for i := 0; i < len(hdr.Name); i++ {
		if hdr.Name[i] == 0 {
			return string(hdr.Name[:i])
		}
	}
	return string(hdr.Name[:])
}

// SetName stores name into the fixed-size name field, truncating at 256
// bytes and zero-padding the remainder.
func (hdr *NodeHeader) SetName(name string) {
	hdr.Name = [NameSize]byte{}
	copy(hdr.Name[:], name)
}

func (fs *FS) readNodeHeader(index BlockIndex) (*NodeHeader, error) {

	buf := make([]byte, fs.super.BlockSize)
	err := fs.readBlock(index, buf)
	if err != nil {
		return nil, err
	}

	hdr := new(NodeHeader)
	err = binary.Read(bytes.NewReader(buf), binary.LittleEndian, hdr)
	if err != nil {
		return nil, fmt.Errorf("decoding node header at block %d: %w", index, err)
	}

	return hdr, nil

}

func (fs *FS) writeNodeHeader(index BlockIndex, hdr *NodeHeader) error {

	buf := new(bytes.Buffer)
	err := binary.Write(buf, binary.LittleEndian, hdr)
	if err != nil {
		return fmt.Errorf("encoding node header for block %d: %w", index, err)
	}

	block := make([]byte, fs.super.BlockSize)
	copy(block, buf.Bytes())

	return fs.writeBlock(index, block)

}

// Block-list pages are one block interpreted as an array of block_size/8
// indices. Slot 0 points at the previous page, the final slot at the next
// page, and the slots between them at data blocks.
func (fs *FS) blockListSlots() int {
	return int(fs.super.BlockSize) / indexSize
}

func (fs *FS) readBlockList(index BlockIndex, list []BlockIndex) error {

	buf := make([]byte, fs.super.BlockSize)
	err := fs.readBlock(index, buf)
	if err != nil {
		return err
	}

	err = binary.Read(bytes.NewReader(buf), binary.LittleEndian, list)
	if err != nil {
		return fmt.Errorf("decoding block list at block %d: %w", index, err)
	}

	return nil

}

// FetchBlockList reads and returns a copy of the block-list page stored at
// index. Inspection tooling uses this to walk a file's chain directly.
func (fs *FS) FetchBlockList(index BlockIndex) ([]BlockIndex, error) {

	if index == None {
		return nil, ErrNotFound
	}

	list := make([]BlockIndex, fs.blockListSlots())
	err := fs.readBlockList(index, list)
	if err != nil {
		return nil, err
	}

	return list, nil

}

func (fs *FS) writeBlockList(index BlockIndex, list []BlockIndex) error {

	buf := new(bytes.Buffer)
	err := binary.Write(buf, binary.LittleEndian, list)
	if err != nil {
		return fmt.Errorf("encoding block list for block %d: %w", index, err)
	}

	return fs.writeBlock(index, buf.Bytes())

}
