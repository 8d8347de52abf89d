package vdev

/**
 * SPDX-License-Identifier: Apache-2.0
 * Copyright 2020 vorteil.io Pty Ltd
 */

import (
	"io"
	"os"
	"sync"

	"github.com/pkg/errors"
)

// FileDevice is a block device backed by a regular file or a raw block
// device node. It satisfies io.ReaderAt and io.WriterAt, reporting zeroes
// for reads that land inside the container but beyond the bytes written so
// far, which is how a freshly formatted sparse image behaves.
type FileDevice struct {
	f *os.File
}

// Create makes (or truncates) a backing file at path and returns a device
// over it.
func Create(path string) (*FileDevice, error) {

	f, err := os.Create(path)
	if err != nil {
		return nil, errors.Wrap(err, "creating block device")
	}

	return &FileDevice{f: f}, nil

}

// Open opens an existing backing file at path for reading and writing.
func Open(path string) (*FileDevice, error) {

	f, err := os.OpenFile(path, os.O_RDWR, 0644)
	if err != nil {
		return nil, errors.Wrap(err, "opening block device")
	}

	return &FileDevice{f: f}, nil

}

// ReadAt implements io.ReaderAt. Short reads against the end of the file
// are padded with zeroes rather than failing, since the tail of a volume
// may never have been written.
func (dev *FileDevice) ReadAt(p []byte, off int64) (n int, err error) {

	n, err = dev.f.ReadAt(p, off)
	if err == io.EOF {
		for i := n; i < len(p); i++ {
			p[i] = 0
		}
		return len(p), nil
	}
	return n, err

}

// WriteAt implements io.WriterAt.
func (dev *FileDevice) WriteAt(p []byte, off int64) (n int, err error) {
	return dev.f.WriteAt(p, off)
}

// Sync flushes the backing file to stable storage.
func (dev *FileDevice) Sync() error {
	return dev.f.Sync()
}

// Close closes the backing file.
func (dev *FileDevice) Close() error {
	return dev.f.Close()
}

// MemDevice is a growable in-memory block device. Reads beyond the
// high-water mark return zeroes and writes extend the buffer, so it can
// stand in for a scratch disk of any size.
type MemDevice struct {
	lock sync.Mutex
	data []byte
}

// NewMemDevice returns an empty in-memory device.
func NewMemDevice() *MemDevice {
	return new(MemDevice)
}

// ReadAt implements io.ReaderAt.
func (dev *MemDevice) ReadAt(p []byte, off int64) (n int, err error) {

	dev.lock.Lock()
	defer dev.lock.Unlock()

	for i := range p {
		p[i] = 0
	}

	if off < int64(len(dev.data)) {
		copy(p, dev.data[off:])
	}

	return len(p), nil

}

// WriteAt implements io.WriterAt.
func (dev *MemDevice) WriteAt(p []byte, off int64) (n int, err error) {

	dev.lock.Lock()
	defer dev.lock.Unlock()

	end := off + int64(len(p))
	if end > int64(len(dev.data)) {
		grown := make([]byte, end)
		copy(grown, dev.data)
		dev.data = grown
	}

	copy(dev.data[off:], p)

	return len(p), nil

}

// Size returns the device's current high-water mark in bytes.
func (dev *MemDevice) Size() int64 {
	dev.lock.Lock()
	defer dev.lock.Unlock()
	return int64(len(dev.data))
}
