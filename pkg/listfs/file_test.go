package listfs

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const readmeText = "This is first file on your ListFS!\n"

func TestWriteAndReadBack(t *testing.T) {

	fs, _ := newTestFS(t, 4096, 512)

	node, err := fs.CreateNode("README", 0, None)
	require.NoError(t, err)
	assert.Equal(t, BlockIndex(2), node)
	assert.Equal(t, node, fs.RootDir())

	f, err := fs.OpenFile(node)
	require.NoError(t, err)

	n, err := f.Write([]byte(readmeText))
	require.NoError(t, err)
	assert.Equal(t, len(readmeText), n)
	assert.Equal(t, uint64(len(readmeText)), f.Size())

	// superblock, bitmap, node 2, list page 3, data block 4
	assert.Equal(t, uint64(5), fs.Superblock().UsedBlocks)
	assert.Equal(t, fs.Superblock().UsedBlocks, popcount(fs.bitmap))

	hdr, err := fs.FetchNode(node)
	require.NoError(t, err)
	assert.Equal(t, BlockIndex(3), hdr.Data)
	assert.Equal(t, uint64(len(readmeText)), hdr.Size)

	// the first list page: no neighbours, one data block in slot 1
	slots := fs.blockListSlots()
	list := make([]BlockIndex, slots)
	err = fs.readBlockList(hdr.Data, list)
	require.NoError(t, err)
	assert.Equal(t, None, list[0])
	assert.Equal(t, BlockIndex(4), list[1])
	for i := 2; i < slots; i++ {
		assert.Equal(t, None, list[i], "slot %d should be empty", i)
	}

	err = f.Seek(0, false)
	require.NoError(t, err)

	buf := make([]byte, len(readmeText))
	n, err = f.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, len(readmeText), n)
	assert.Equal(t, readmeText, string(buf))

	err = f.Close()
	require.NoError(t, err)

}

func TestReadClampsAtEOF(t *testing.T) {

	fs, _ := newTestFS(t, 4096, 512)

	node, err := fs.CreateNode("f", 0, None)
	require.NoError(t, err)

	f, err := fs.OpenFile(node)
	require.NoError(t, err)

	_, err = f.Write([]byte("hello"))
	require.NoError(t, err)

	err = f.Seek(0, false)
	require.NoError(t, err)

	buf := make([]byte, 100)
	n, err := f.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, "hello", string(buf[:5]))

	// nothing left: a subsequent read reports EOF
	n, err = f.Read(buf)
	assert.Equal(t, 0, n)
	assert.Equal(t, io.EOF, err)

}

func TestOverwriteWithinBlock(t *testing.T) {

	fs, _ := newTestFS(t, 4096, 512)

	node, err := fs.CreateNode("f", 0, None)
	require.NoError(t, err)

	f, err := fs.OpenFile(node)
	require.NoError(t, err)

	_, err = f.Write([]byte("aaaaaaaaaa"))
	require.NoError(t, err)

	err = f.Seek(3, true)
	require.NoError(t, err)

	_, err = f.Write([]byte("BB"))
	require.NoError(t, err)

	// overwriting in place must not grow the file
	assert.Equal(t, uint64(10), f.Size())

	err = f.Seek(0, false)
	require.NoError(t, err)

	buf := make([]byte, 10)
	_, err = f.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "aaaBBaaaaa", string(buf))

}

func TestOpenRegistryCoalesces(t *testing.T) {

	fs, _ := newTestFS(t, 4096, 512)

	node, err := fs.CreateNode("f", 0, None)
	require.NoError(t, err)

	f1, err := fs.OpenFile(node)
	require.NoError(t, err)

	f2, err := fs.OpenFile(node)
	require.NoError(t, err)

	// both handles share one state and one cursor
	assert.True(t, f1 == f2)
	assert.Equal(t, 2, f1.links)

	_, err = f1.Write([]byte("shared"))
	require.NoError(t, err)
	assert.Equal(t, uint64(6), f2.curGlobal)

	require.NoError(t, f1.Close())
	_, stillOpen := fs.files[node]
	assert.True(t, stillOpen)

	require.NoError(t, f2.Close())
	_, stillOpen = fs.files[node]
	assert.False(t, stillOpen)

}

func TestOpenRejectsDirectoriesAndGarbage(t *testing.T) {

	fs, _ := newTestFS(t, 4096, 512)

	dir, err := fs.CreateNode("dir", FlagDirectory, None)
	require.NoError(t, err)

	_, err = fs.OpenFile(dir)
	assert.Equal(t, ErrNotFile, err)

	// a block that holds no node header
	_, err = fs.OpenFile(BlockIndex(100))
	assert.Equal(t, ErrNotFile, err)

	_, err = fs.OpenFile(None)
	assert.Equal(t, ErrNotFound, err)

}

func TestTruncateThenDelete(t *testing.T) {

	fs, _ := newTestFS(t, 4096, 512)

	node, err := fs.CreateNode("README", 0, None)
	require.NoError(t, err)

	f, err := fs.OpenFile(node)
	require.NoError(t, err)

	_, err = f.Write([]byte(readmeText))
	require.NoError(t, err)

	// a populated file refuses deletion, and nothing changes
	used := fs.Superblock().UsedBlocks
	err = fs.DeleteNode(node)
	assert.Equal(t, ErrNotEmpty, err)
	assert.Equal(t, used, fs.Superblock().UsedBlocks)

	err = f.Seek(0, true)
	require.NoError(t, err)

	err = f.Truncate()
	require.NoError(t, err)

	hdr, err := fs.FetchNode(node)
	require.NoError(t, err)
	assert.Equal(t, None, hdr.Data)
	assert.Equal(t, uint64(0), hdr.Size)
	assert.Equal(t, uint64(3), fs.Superblock().UsedBlocks)

	require.NoError(t, f.Close())

	err = fs.DeleteNode(node)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), fs.Superblock().UsedBlocks)
	assert.Equal(t, None, fs.RootDir())
	assert.Equal(t, fs.Superblock().UsedBlocks, popcount(fs.bitmap))

}

func TestTruncateMidFile(t *testing.T) {

	fs, _ := newTestFS(t, 65536, 512)

	node, err := fs.CreateNode("big", 0, None)
	require.NoError(t, err)

	f, err := fs.OpenFile(node)
	require.NoError(t, err)

	data := bytes.Repeat([]byte{0xAB}, 2000)
	_, err = f.Write(data)
	require.NoError(t, err)

	err = f.Seek(1000, true)
	require.NoError(t, err)

	err = f.Truncate()
	require.NoError(t, err)

	assert.Equal(t, uint64(1000), f.Size())

	// the partially covered block survives, the rest is freed:
	// superblock, 16 bitmap blocks, node, list page, two data blocks
	assert.Equal(t, uint64(21), fs.Superblock().UsedBlocks)
	assert.Equal(t, fs.Superblock().UsedBlocks, popcount(fs.bitmap))

	err = f.Seek(0, false)
	require.NoError(t, err)

	buf := make([]byte, 2000)
	n, err := f.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 1000, n)
	assert.Equal(t, data[:1000], buf[:1000])

}

func TestBlockListPageCrossing(t *testing.T) {

	fs, _ := newTestFS(t, 65536, 512)

	// with a 512 byte block a list page holds 62 data blocks: 31744 bytes
	slots := fs.blockListSlots()
	require.Equal(t, 64, slots)
	pageCapacity := uint64(slots-2) * 512
	require.Equal(t, uint64(31744), pageCapacity)

	node, err := fs.CreateNode("big", 0, None)
	require.NoError(t, err)

	f, err := fs.OpenFile(node)
	require.NoError(t, err)

	payload := make([]byte, 40000)
	n, err := f.Write(payload)
	require.NoError(t, err)
	assert.Equal(t, 40000, n)

	// the chain must consist of two pages linked both ways
	hdr, err := fs.FetchNode(node)
	require.NoError(t, err)
	require.NotEqual(t, None, hdr.Data)

	first := make([]BlockIndex, slots)
	err = fs.readBlockList(hdr.Data, first)
	require.NoError(t, err)
	assert.Equal(t, None, first[0])
	require.NotEqual(t, None, first[slots-1])

	second := make([]BlockIndex, slots)
	err = fs.readBlockList(first[slots-1], second)
	require.NoError(t, err)
	assert.Equal(t, hdr.Data, second[0])
	assert.Equal(t, None, second[slots-1])

	for i := 1; i < slots-1; i++ {
		assert.NotEqual(t, None, first[i], "first page slot %d", i)
	}
	// 79 data blocks in total: 62 on the first page, 17 on the second
	for i := 1; i <= 17; i++ {
		assert.NotEqual(t, None, second[i], "second page slot %d", i)
	}
	for i := 18; i < slots-1; i++ {
		assert.Equal(t, None, second[i], "second page slot %d", i)
	}

	// reading it all back crosses the page boundary seamlessly
	err = f.Seek(0, false)
	require.NoError(t, err)

	buf := make([]byte, 40000)
	n, err = f.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 40000, n)
	assert.Equal(t, payload, buf)

	// a read at the page capacity boundary comes entirely from the
	// second page's first data block
	err = f.Seek(pageCapacity, false)
	require.NoError(t, err)

	small := make([]byte, 256)
	n, err = f.Read(small)
	require.NoError(t, err)
	assert.Equal(t, 256, n)
	assert.Equal(t, make([]byte, 256), small)
	assert.Equal(t, second[1], f.curList[f.curSlot])

}

func TestTruncateToZeroFreesChain(t *testing.T) {

	fs, _ := newTestFS(t, 65536, 512)

	node, err := fs.CreateNode("big", 0, None)
	require.NoError(t, err)

	f, err := fs.OpenFile(node)
	require.NoError(t, err)

	_, err = f.Write(make([]byte, 40000))
	require.NoError(t, err)

	err = f.Seek(0, true)
	require.NoError(t, err)

	err = f.Truncate()
	require.NoError(t, err)

	hdr, err := fs.FetchNode(node)
	require.NoError(t, err)
	assert.Equal(t, None, hdr.Data)
	assert.Equal(t, uint64(0), hdr.Size)

	// only the superblock, the bitmap, and the node remain
	assert.Equal(t, uint64(3), fs.Superblock().UsedBlocks)
	assert.Equal(t, fs.Superblock().UsedBlocks, popcount(fs.bitmap))

}

func TestSeekExtendsFile(t *testing.T) {

	fs, _ := newTestFS(t, 4096, 512)

	node, err := fs.CreateNode("f", 0, None)
	require.NoError(t, err)

	f, err := fs.OpenFile(node)
	require.NoError(t, err)

	err = f.Seek(1000, true)
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), f.Size())

	_, err = f.Write([]byte("tail"))
	require.NoError(t, err)
	assert.Equal(t, uint64(1004), f.Size())

	err = f.Seek(1000, false)
	require.NoError(t, err)

	buf := make([]byte, 4)
	n, err := f.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, "tail", string(buf))

	// the skipped-over region was never allocated; reads stop at the hole
	err = f.Seek(0, false)
	require.NoError(t, err)

	n, err = f.Read(make([]byte, 10))
	assert.Equal(t, 0, n)
	assert.Equal(t, io.EOF, err)

}

func TestWriteRunsOutOfSpace(t *testing.T) {

	// 16 blocks: superblock + bitmap + node + list page leaves 12 for data
	fs, _ := newTestFS(t, 16, 512)

	node, err := fs.CreateNode("f", 0, None)
	require.NoError(t, err)

	f, err := fs.OpenFile(node)
	require.NoError(t, err)

	payload := make([]byte, 16*512)
	n, err := f.Write(payload)
	assert.Equal(t, ErrNoSpace, err)
	assert.Equal(t, 12*512, n)
	assert.Equal(t, uint64(12*512), f.Size())

	// every block is in use now
	assert.Equal(t, uint64(16), fs.Superblock().UsedBlocks)
	assert.Equal(t, fs.Superblock().UsedBlocks, popcount(fs.bitmap))

}
