package listfs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func childNames(t *testing.T, fs *FS, first BlockIndex) []string {

	var names []string
	err := fs.ForeachNode(first, func(node BlockIndex, hdr *NodeHeader) bool {
		names = append(names, hdr.NodeName())
		return true
	})
	require.NoError(t, err)

	return names

}

// checkSiblings asserts the doubly-linked sibling invariants over the list
// rooted at first: next/prev mirror each other and the head points back at
// its parent (or is the volume root).
func checkSiblings(t *testing.T, fs *FS, parent, first BlockIndex) {

	prev := None
	node := first

	for node != None {
		hdr, err := fs.FetchNode(node)
		require.NoError(t, err)

		assert.Equal(t, prev, hdr.Prev, "node %d has a bad prev link", node)
		assert.Equal(t, parent, hdr.Parent, "node %d has a bad parent link", node)

		if hdr.Prev == None {
			if parent == None {
				assert.Equal(t, node, fs.RootDir())
			} else {
				parentHdr, err := fs.FetchNode(parent)
				require.NoError(t, err)
				assert.Equal(t, node, parentHdr.Data)
			}
		}

		prev = node
		node = hdr.Next
	}

}

func TestCreateNodeInsertsAtHead(t *testing.T) {

	fs, _ := newTestFS(t, 4096, 512)

	a, err := fs.CreateNode("a", 0, None)
	require.NoError(t, err)
	assert.Equal(t, a, fs.RootDir())

	b, err := fs.CreateNode("b", 0, None)
	require.NoError(t, err)
	assert.Equal(t, b, fs.RootDir())

	_, err = fs.CreateNode("c", 0, None)
	require.NoError(t, err)

	// newest first
	assert.Equal(t, []string{"c", "b", "a"}, childNames(t, fs, fs.RootDir()))
	checkSiblings(t, fs, None, fs.RootDir())

}

func TestCreateNodeInDirectory(t *testing.T) {

	fs, _ := newTestFS(t, 4096, 512)

	dir, err := fs.CreateNode("dir", FlagDirectory, None)
	require.NoError(t, err)

	x, err := fs.CreateNode("x", 0, dir)
	require.NoError(t, err)

	y, err := fs.CreateNode("y", 0, dir)
	require.NoError(t, err)

	hdr, err := fs.FetchNode(dir)
	require.NoError(t, err)
	assert.True(t, hdr.IsDir())
	assert.Equal(t, y, hdr.Data)

	checkSiblings(t, fs, dir, hdr.Data)

	xHdr, err := fs.FetchNode(x)
	require.NoError(t, err)
	assert.Equal(t, dir, xHdr.Parent)

}

func TestDeleteNode(t *testing.T) {

	fs, _ := newTestFS(t, 4096, 512)

	dir, err := fs.CreateNode("dir", FlagDirectory, None)
	require.NoError(t, err)

	child, err := fs.CreateNode("child", 0, dir)
	require.NoError(t, err)

	// a directory that records children cannot be deleted
	err = fs.DeleteNode(dir)
	assert.Equal(t, ErrNotEmpty, err)

	used := fs.Superblock().UsedBlocks

	err = fs.DeleteNode(child)
	require.NoError(t, err)
	assert.Equal(t, used-1, fs.Superblock().UsedBlocks)

	// now the directory is empty and goes away too
	err = fs.DeleteNode(dir)
	require.NoError(t, err)
	assert.Equal(t, None, fs.RootDir())
	assert.Equal(t, uint64(2), fs.Superblock().UsedBlocks)

	// deleting nothing is a no-op
	err = fs.DeleteNode(None)
	assert.Equal(t, ErrNotFound, err)

}

func TestDeleteMiddleSibling(t *testing.T) {

	fs, _ := newTestFS(t, 4096, 512)

	_, err := fs.CreateNode("a", 0, None)
	require.NoError(t, err)
	b, err := fs.CreateNode("b", 0, None)
	require.NoError(t, err)
	_, err = fs.CreateNode("c", 0, None)
	require.NoError(t, err)

	err = fs.DeleteNode(b)
	require.NoError(t, err)

	assert.Equal(t, []string{"c", "a"}, childNames(t, fs, fs.RootDir()))
	checkSiblings(t, fs, None, fs.RootDir())

}

func TestMoveNode(t *testing.T) {

	fs, _ := newTestFS(t, 4096, 512)

	dir, err := fs.CreateNode("dir", FlagDirectory, None)
	require.NoError(t, err)
	file, err := fs.CreateNode("file", 0, None)
	require.NoError(t, err)

	err = fs.MoveNode(file, dir)
	require.NoError(t, err)

	assert.Equal(t, []string{"dir"}, childNames(t, fs, fs.RootDir()))
	assert.Equal(t, []string{"file"}, func() []string {
		hdr, err := fs.FetchNode(dir)
		require.NoError(t, err)
		return childNames(t, fs, hdr.Data)
	}())

	checkSiblings(t, fs, None, fs.RootDir())

	hdr, err := fs.FetchNode(file)
	require.NoError(t, err)
	assert.Equal(t, dir, hdr.Parent)

	// and back out to the top level
	err = fs.MoveNode(file, None)
	require.NoError(t, err)
	assert.Equal(t, []string{"file", "dir"}, childNames(t, fs, fs.RootDir()))
	checkSiblings(t, fs, None, fs.RootDir())

}

func TestRenameNode(t *testing.T) {

	fs, _ := newTestFS(t, 4096, 512)

	node, err := fs.CreateNode("old", 0, None)
	require.NoError(t, err)

	err = fs.RenameNode(node, "new")
	require.NoError(t, err)

	found, err := fs.SearchNode("new", fs.RootDir())
	require.NoError(t, err)
	assert.Equal(t, node, found)

	found, err = fs.SearchNode("old", fs.RootDir())
	require.NoError(t, err)
	assert.Equal(t, None, found)

}

func TestSearchNode(t *testing.T) {

	fs, _ := newTestFS(t, 4096, 512)

	a, err := fs.CreateNode("a", FlagDirectory, None)
	require.NoError(t, err)
	b, err := fs.CreateNode("b", FlagDirectory, a)
	require.NoError(t, err)
	c, err := fs.CreateNode("c", 0, b)
	require.NoError(t, err)

	cases := []struct {
		path string
		want BlockIndex
	}{
		{"a", a},
		{"a/b", b},
		{"a/b/", b},
		{"a/b/c", c},
		{"a/c", None},
		{"a/b/c/x", None},
		{"missing", None},
	}

	for _, x := range cases {
		got, err := fs.SearchNode(x.path, fs.RootDir())
		require.NoError(t, err)
		assert.Equal(t, x.want, got, "search %q", x.path)
	}

}

func TestForeachNodeStopsEarly(t *testing.T) {

	fs, _ := newTestFS(t, 4096, 512)

	for _, name := range []string{"a", "b", "c"} {
		_, err := fs.CreateNode(name, 0, None)
		require.NoError(t, err)
	}

	var visited int
	err := fs.ForeachNode(fs.RootDir(), func(node BlockIndex, hdr *NodeHeader) bool {
		visited++
		return false
	})
	require.NoError(t, err)
	assert.Equal(t, 1, visited)

}

func TestForeachChild(t *testing.T) {

	fs, _ := newTestFS(t, 4096, 512)

	dir, err := fs.CreateNode("dir", FlagDirectory, None)
	require.NoError(t, err)
	_, err = fs.CreateNode("x", 0, dir)
	require.NoError(t, err)
	_, err = fs.CreateNode("y", 0, dir)
	require.NoError(t, err)

	var names []string
	err = fs.ForeachChild(dir, func(node BlockIndex, hdr *NodeHeader) bool {
		names = append(names, hdr.NodeName())
		return true
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"y", "x"}, names)

	// walking the children of nothing is a no-op
	err = fs.ForeachChild(None, func(node BlockIndex, hdr *NodeHeader) bool {
		t.Fatal("callback should not run")
		return false
	})
	require.NoError(t, err)

}

func TestCreateNodeNoSpace(t *testing.T) {

	// a 16 block volume: superblock + bitmap leave 14 free
	fs, _ := newTestFS(t, 16, 512)

	for i := 0; i < 14; i++ {
		_, err := fs.CreateNode("n", 0, None)
		require.NoError(t, err)
	}

	_, err := fs.CreateNode("overflow", 0, None)
	assert.Equal(t, ErrNoSpace, err)

}
