package listfs

/**
 * SPDX-License-Identifier: Apache-2.0
 * Copyright 2020 vorteil.io Pty Ltd
 */

// markUsed sets count consecutive bits starting at index and adds count to
// the volume's used block counter.
func (fs *FS) markUsed(index BlockIndex, count uint64) {

	fs.log.Debugf("[mark_used] index = %d, count = %d", index, count)
	fs.super.UsedBlocks += count

	i := uint64(index) / 8
	j := uint(index) % 8
	if j != 0 {
		for ; j < 8 && count > 0; j++ {
			fs.bitmap[i] |= 1 << j
			count--
		}
		i++
	}
	for count >= 8 {
		fs.bitmap[i] = 0xFF
		i++
		count -= 8
	}
	for j = 0; uint64(j) < count; j++ {
		fs.bitmap[i] |= 1 << j
	}

}

// markFree clears count consecutive bits starting at index and subtracts
// count from the volume's used block counter.
func (fs *FS) markFree(index BlockIndex, count uint64) {

	fs.log.Debugf("[mark_free] index = %d, count = %d", index, count)
	fs.super.UsedBlocks -= count

	i := uint64(index) / 8
	j := uint(index) % 8
	if j != 0 {
		for ; j < 8 && count > 0; j++ {
			fs.bitmap[i] &^= 1 << j
			count--
		}
		i++
	}
	for count >= 8 {
		fs.bitmap[i] = 0
		i++
		count -= 8
	}
	for j = 0; uint64(j) < count; j++ {
		fs.bitmap[i] &^= 1 << j
	}

}

// allocBlock finds a free block using rotating first-fit: scan bytes of the
// bitmap forward from the previous allocation, wrapping at the end of the
// scannable region, and claim the lowest clear bit of the first byte that
// has one. Returns None when the scan wraps without finding a free bit.
func (fs *FS) allocBlock() BlockIndex {

	startByte := uint64(fs.lastAllocated) / 8
	endByte := divide(fs.super.Size, 8)

	b := startByte
	for fs.bitmap[b] == 0xFF {
		b++
		if b == endByte {
			b = 0
		}
		if b == startByte {
			fs.log.Debugf("[alloc_block] free block not found")
			return None
		}
	}

	var bit uint
	for bit = 0; bit < 8; bit++ {
		if fs.bitmap[b]&(1<<bit) == 0 {
			break
		}
	}

	fs.bitmap[b] |= 1 << bit
	fs.lastAllocated = BlockIndex(b*8 + uint64(bit))
	fs.super.UsedBlocks++
	fs.log.Debugf("[alloc_block] found free block %d", fs.lastAllocated)

	return fs.lastAllocated

}
