package listfs

/**
 * SPDX-License-Identifier: Apache-2.0
 * Copyright 2020 vorteil.io Pty Ltd
 */

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/listfs/listfs/pkg/elog"
)

// Device is the block I/O backend a file-system operates over. Byte offsets
// handed to it are index*block_size+base, computed by the core; *os.File and
// vdev's devices satisfy it directly.
type Device interface {
	io.ReaderAt
	io.WriterAt
}

// Args organizes all inputs necessary to create a new FS handle.
type Args struct {
	Device Device
	Logger elog.Logger
}

// FS is a handle on a single ListFS volume. It owns the in-memory superblock
// and free-space bitmap, the rotating allocation cursor, and the registry of
// open files, so multiple volumes coexist without collision. It is not safe
// for concurrent use without external serialization.
type FS struct {
	log elog.Logger
	dev Device

	super         Superblock
	bitmap        []byte
	lastAllocated BlockIndex

	files map[BlockIndex]*File
}

// New returns an FS bound to a block device and an optional logger. No I/O
// happens until Create or Open is called.
func New(args *Args) *FS {

	fs := new(FS)
	fs.dev = args.Device
	fs.log = args.Logger
	if fs.log == nil {
		fs.log = nopLogger{}
	}
	fs.files = make(map[BlockIndex]*File)

	return fs

}

// Superblock returns a copy of the in-memory volume descriptor.
func (fs *FS) Superblock() Superblock {
	return fs.super
}

// RootDir returns the first top-level node, or None on an empty volume.
func (fs *FS) RootDir() BlockIndex {
	return fs.super.RootDir
}

// BlockSize returns the volume's block size in bytes.
func (fs *FS) BlockSize() uint16 {
	return fs.super.BlockSize
}

func (fs *FS) blockOffset(index BlockIndex) int64 {
	return int64(uint64(index))*int64(fs.super.BlockSize) + int64(fs.super.Base)
}

func (fs *FS) readBlock(index BlockIndex, buf []byte) error {

	fs.log.Debugf("[read_block] index = %d", index)

	_, err := fs.dev.ReadAt(buf[:fs.super.BlockSize], fs.blockOffset(index))
	if err != nil {
		return fmt.Errorf("reading block %d: %w", index, err)
	}

	return nil

}

func (fs *FS) readBlocks(index BlockIndex, buf []byte, count uint64) error {

	fs.log.Debugf("[read_blocks] index = %d, count = %d", index, count)

	bs := uint64(fs.super.BlockSize)
	for i := uint64(0); i < count; i++ {
		err := fs.readBlock(index+BlockIndex(i), buf[i*bs:(i+1)*bs])
		if err != nil {
			return err
		}
	}

	return nil

}

func (fs *FS) writeBlock(index BlockIndex, buf []byte) error {

	fs.log.Debugf("[write_block] index = %d", index)

	_, err := fs.dev.WriteAt(buf[:fs.super.BlockSize], fs.blockOffset(index))
	if err != nil {
		return fmt.Errorf("writing block %d: %w", index, err)
	}

	return nil

}

func (fs *FS) writeBlocks(index BlockIndex, buf []byte, count uint64) error {

	fs.log.Debugf("[write_blocks] index = %d, count = %d", index, count)

	bs := uint64(fs.super.BlockSize)
	for i := uint64(0); i < count; i++ {
		err := fs.writeBlock(index+BlockIndex(i), buf[i*bs:(i+1)*bs])
		if err != nil {
			return err
		}
	}

	return nil

}

// Create formats the device as an empty volume of size blocks. A bootloader
// image may be overlaid across the front of the volume; its first four bytes
// become the superblock's jump field and the superblock's other fields are
// stamped over bytes 4..60 of block 0.
func (fs *FS) Create(size uint64, blockSize uint16, bootloader []byte) error {

	fs.log.Debugf("[create] size = %d, block_size = %d", size, blockSize)

	if size < 2 {
		return fmt.Errorf("volume needs at least 2 blocks, got %d", size)
	}
	if blockSize < MinBlockSize {
		return fmt.Errorf("block size must be at least %d bytes, got %d", MinBlockSize, blockSize)
	}

	bs := uint64(blockSize)

	fs.super = Superblock{
		Magic:     Magic,
		Base:      0,
		Size:      size,
		MapBase:   BlockIndex(divide(maxu64(uint64(len(bootloader)), SuperblockSize), bs)),
		MapSize:   divide(divide(size, 8), bs),
		RootDir:   None,
		BlockSize: blockSize,
		Version:   Version,
	}

	fs.bitmap = make([]byte, fs.super.MapSize*bs)
	fs.markUsed(0, uint64(fs.super.MapBase)+fs.super.MapSize)
	fs.lastAllocated = 0
	fs.files = make(map[BlockIndex]*File)

	// size the backing container before laying down metadata, so that a
	// volume small enough for the regions to overlap ends up with the
	// metadata written last
	err := fs.writeBlock(BlockIndex(size-1), make([]byte, blockSize))
	if err != nil {
		return err
	}

	region := make([]byte, uint64(fs.super.MapBase)*bs)
	copy(region, bootloader)
	if len(bootloader) >= len(fs.super.Jump) {
		copy(fs.super.Jump[:], bootloader[:len(fs.super.Jump)])
	}

	buf := new(bytes.Buffer)
	err = binary.Write(buf, binary.LittleEndian, &fs.super)
	if err != nil {
		return fmt.Errorf("encoding superblock: %w", err)
	}
	copy(region, buf.Bytes())

	err = fs.writeBlocks(0, region, uint64(fs.super.MapBase))
	if err != nil {
		return err
	}

	return fs.writeBlocks(fs.super.MapBase, fs.bitmap, fs.super.MapSize)

}

// Open reads and verifies the superblock, then loads the free-space bitmap.
// Returns ErrNotListFS when the magic number does not match.
func (fs *FS) Open() error {

	fs.log.Debugf("[open]")

	probe := make([]byte, MinBlockSize)
	_, err := fs.dev.ReadAt(probe, 0)
	if err != nil {
		return fmt.Errorf("probing block 0: %w", err)
	}

	err = binary.Read(bytes.NewReader(probe), binary.LittleEndian, &fs.super)
	if err != nil {
		return fmt.Errorf("decoding superblock: %w", err)
	}

	if fs.super.Magic != Magic {
		fs.log.Debugf("[open] this is not ListFS")
		fs.super = Superblock{}
		return ErrNotListFS
	}

	if fs.super.BlockSize < MinBlockSize {
		fs.super = Superblock{}
		return ErrNotListFS
	}

	fs.bitmap = make([]byte, fs.super.MapSize*uint64(fs.super.BlockSize))
	err = fs.readBlocks(fs.super.MapBase, fs.bitmap, fs.super.MapSize)
	if err != nil {
		return err
	}

	fs.lastAllocated = 0
	fs.files = make(map[BlockIndex]*File)

	return nil

}

// Close persists the superblock and the bitmap and releases the in-memory
// state. The reserved tail of block 0 is preserved so boot code survives.
func (fs *FS) Close() error {

	fs.log.Debugf("[close]")

	block := make([]byte, fs.super.BlockSize)
	err := fs.readBlock(0, block)
	if err != nil {
		return err
	}

	buf := new(bytes.Buffer)
	err = binary.Write(buf, binary.LittleEndian, &fs.super)
	if err != nil {
		return fmt.Errorf("encoding superblock: %w", err)
	}
	copy(block, buf.Bytes())

	err = fs.writeBlock(0, block)
	if err != nil {
		return err
	}

	err = fs.writeBlocks(fs.super.MapBase, fs.bitmap, fs.super.MapSize)
	if err != nil {
		return err
	}

	fs.bitmap = nil
	fs.files = nil

	return nil

}

type nopLogger struct{}

func (nopLogger) Debugf(format string, x ...interface{}) {}
func (nopLogger) Errorf(format string, x ...interface{}) {}
func (nopLogger) Infof(format string, x ...interface{})  {}
func (nopLogger) Printf(format string, x ...interface{}) {}
func (nopLogger) Warnf(format string, x ...interface{})  {}
func (nopLogger) IsInfoEnabled() bool                    { return false }
func (nopLogger) IsDebugEnabled() bool                   { return false }
