package main

/**
 * SPDX-License-Identifier: Apache-2.0
 * Copyright 2020 vorteil.io Pty Ltd
 */

import (
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"time"

	"github.com/cloudfoundry/bytefmt"
	"github.com/spf13/cobra"

	"github.com/listfs/listfs/pkg/listfs"
)

// resolvePath looks up an absolute or relative path on the volume. The
// empty path and "/" resolve to None, which callers treat as the top level.
func resolvePath(fs *listfs.FS, fpath string) (listfs.BlockIndex, error) {

	fpath = strings.Trim(fpath, "/")
	if fpath == "" {
		return listfs.None, nil
	}

	node, err := fs.SearchNode(fpath, fs.RootDir())
	if err != nil {
		return listfs.None, err
	}
	if node == listfs.None {
		return listfs.None, fmt.Errorf("\"%s\" not found on volume", fpath)
	}

	return node, nil

}

// splitPath splits a volume path into its parent node and base name.
func splitPath(fs *listfs.FS, fpath string) (listfs.BlockIndex, string, error) {

	fpath = strings.Trim(fpath, "/")
	dir, base := path.Split(fpath)
	if base == "" {
		return listfs.None, "", fmt.Errorf("\"%s\" has no name component", fpath)
	}

	parent, err := resolvePath(fs, dir)
	if err != nil {
		return listfs.None, "", err
	}

	return parent, base, nil

}

// firstChild returns the head of the sibling list under node, where node
// None means the volume's top level.
func firstChild(fs *listfs.FS, node listfs.BlockIndex) (listfs.BlockIndex, error) {

	if node == listfs.None {
		return fs.RootDir(), nil
	}

	hdr, err := fs.FetchNode(node)
	if err != nil {
		return listfs.None, err
	}
	if !hdr.IsDir() {
		return listfs.None, fmt.Errorf("\"%s\" is not a directory", hdr.NodeName())
	}

	return hdr.Data, nil

}

var lsCmd = &cobra.Command{
	Use:   "ls IMAGE [PATH]",
	Short: "List directory contents on a volume",
	Args:  cobra.RangeArgs(1, 2),
	Run: func(cmd *cobra.Command, args []string) {

		fs, dev, err := openVolume(args[0])
		if err != nil {
			log.Errorf("%v", err)
			return
		}
		defer dev.Close()

		fpath := ""
		if len(args) >= 2 {
			fpath = args[1]
		}

		node, err := resolvePath(fs, fpath)
		if err != nil {
			log.Errorf("%v", err)
			return
		}

		first, err := firstChild(fs, node)
		if err != nil {
			log.Errorf("%v", err)
			return
		}

		rows := [][]string{{"NODE", "TYPE", "SIZE", "NAME"}}
		err = fs.ForeachNode(first, func(n listfs.BlockIndex, hdr *listfs.NodeHeader) bool {
			t := "file"
			if hdr.IsDir() {
				t = "dir"
			}
			rows = append(rows, []string{
				fmt.Sprintf("%d", n), t,
				bytefmt.ByteSize(hdr.Size), hdr.NodeName(),
			})
			return true
		})
		if err != nil {
			log.Errorf("%v", err)
			return
		}

		PlainTable(rows)

	},
}

var treeCmd = &cobra.Command{
	Use:   "tree IMAGE [PATH]",
	Short: "Print the volume's tree of nodes",
	Args:  cobra.RangeArgs(1, 2),
	Run: func(cmd *cobra.Command, args []string) {

		fs, dev, err := openVolume(args[0])
		if err != nil {
			log.Errorf("%v", err)
			return
		}
		defer dev.Close()

		fpath := ""
		if len(args) >= 2 {
			fpath = args[1]
		}

		node, err := resolvePath(fs, fpath)
		if err != nil {
			log.Errorf("%v", err)
			return
		}

		first, err := firstChild(fs, node)
		if err != nil {
			log.Errorf("%v", err)
			return
		}

		err = printTree(fs, first, "")
		if err != nil {
			log.Errorf("%v", err)
		}

	},
}

func printTree(fs *listfs.FS, first listfs.BlockIndex, indent string) error {

	var werr error

	err := fs.ForeachNode(first, func(node listfs.BlockIndex, hdr *listfs.NodeHeader) bool {

		if hdr.IsDir() {
			fmt.Printf("%s%s/\n", indent, hdr.NodeName())
			werr = printTree(fs, hdr.Data, indent+"  ")
		} else {
			fmt.Printf("%s%s\n", indent, hdr.NodeName())
		}

		return werr == nil

	})
	if err != nil {
		return err
	}

	return werr

}

var statCmd = &cobra.Command{
	Use:   "stat IMAGE PATH",
	Short: "Print a node's header fields",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {

		fs, dev, err := openVolume(args[0])
		if err != nil {
			log.Errorf("%v", err)
			return
		}
		defer dev.Close()

		node, err := resolvePath(fs, args[1])
		if err != nil {
			log.Errorf("%v", err)
			return
		}

		hdr, err := fs.FetchNode(node)
		if err != nil {
			log.Errorf("%v", err)
			return
		}

		t := "file"
		if hdr.IsDir() {
			t = "directory"
		}

		fmt.Printf("Name:     %s\n", hdr.NodeName())
		fmt.Printf("Node:     %d\n", node)
		fmt.Printf("Type:     %s\n", t)
		fmt.Printf("Size:     %d\n", hdr.Size)
		fmt.Printf("Parent:   %s\n", formatIndex(hdr.Parent))
		fmt.Printf("Data:     %s\n", formatIndex(hdr.Data))
		fmt.Printf("Created:  %s\n", formatTime(hdr.CreateTime))
		fmt.Printf("Modified: %s\n", formatTime(hdr.ModifyTime))
		fmt.Printf("Accessed: %s\n", formatTime(hdr.AccessTime))

	},
}

func formatTime(sec int64) string {
	if sec == 0 {
		return "-"
	}
	return time.Unix(sec, 0).Format(time.RFC1123)
}

var dfCmd = &cobra.Command{
	Use:   "df IMAGE",
	Short: "Report a volume's space usage",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {

		fs, dev, err := openVolume(args[0])
		if err != nil {
			log.Errorf("%v", err)
			return
		}
		defer dev.Close()

		sb := fs.Superblock()
		bs := uint64(sb.BlockSize)

		PlainTable([][]string{
			{"BLOCKS", "USED", "FREE", "CAPACITY", "AVAILABLE"},
			{
				fmt.Sprintf("%d", sb.Size),
				fmt.Sprintf("%d", sb.UsedBlocks),
				fmt.Sprintf("%d", sb.FreeBlocks()),
				bytefmt.ByteSize(sb.Size * bs),
				bytefmt.ByteSize(sb.FreeBlocks() * bs),
			},
		})

	},
}

var catCmd = &cobra.Command{
	Use:   "cat IMAGE PATH...",
	Short: "Write files on a volume to stdout",
	Args:  cobra.MinimumNArgs(2),
	Run: func(cmd *cobra.Command, args []string) {

		fs, dev, err := openVolume(args[0])
		if err != nil {
			log.Errorf("%v", err)
			return
		}
		defer dev.Close()

		for _, fpath := range args[1:] {

			node, err := resolvePath(fs, fpath)
			if err != nil {
				log.Errorf("%v", err)
				return
			}

			f, err := fs.OpenFile(node)
			if err != nil {
				log.Errorf("\"%s\": %v", fpath, err)
				return
			}

			err = f.Seek(0, false)
			if err == nil {
				_, err = io.Copy(os.Stdout, f)
			}
			f.Close()
			if err != nil {
				log.Errorf("%v", err)
				return
			}

		}

	},
}

var cpCmd = &cobra.Command{
	Use:   "cp IMAGE SRC DST",
	Short: "Copy a file from the host onto a volume",
	Args:  cobra.ExactArgs(3),
	Run: func(cmd *cobra.Command, args []string) {

		src, err := os.Open(args[1])
		if err != nil {
			log.Errorf("%v", err)
			return
		}
		defer src.Close()

		fi, err := src.Stat()
		if err != nil {
			log.Errorf("%v", err)
			return
		}

		fs, dev, err := openVolume(args[0])
		if err != nil {
			log.Errorf("%v", err)
			return
		}
		defer dev.Close()

		parent, base, err := splitPath(fs, args[2])
		if err != nil {
			log.Errorf("%v", err)
			return
		}

		node, err := fs.CreateNode(base, 0, parent)
		if err != nil {
			log.Errorf("%v", err)
			return
		}

		f, err := fs.OpenFile(node)
		if err != nil {
			log.Errorf("%v", err)
			return
		}

		p := log.NewProgress(fmt.Sprintf("Copying %s", base), "KiB", fi.Size())
		rdr := p.ProxyReader(src)

		_, err = io.Copy(f, rdr)
		rdr.Close()
		f.Close()
		if err != nil {
			log.Errorf("%v", err)
			return
		}

		err = fs.Close()
		if err != nil {
			log.Errorf("%v", err)
		}

	},
}

var mkdirCmd = &cobra.Command{
	Use:   "mkdir IMAGE PATH",
	Short: "Create a directory on a volume",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {

		fs, dev, err := openVolume(args[0])
		if err != nil {
			log.Errorf("%v", err)
			return
		}
		defer dev.Close()

		parent, base, err := splitPath(fs, args[1])
		if err != nil {
			log.Errorf("%v", err)
			return
		}

		_, err = fs.CreateNode(base, listfs.FlagDirectory, parent)
		if err != nil {
			log.Errorf("%v", err)
			return
		}

		err = fs.Close()
		if err != nil {
			log.Errorf("%v", err)
		}

	},
}

var rmCmd = &cobra.Command{
	Use:   "rm IMAGE PATH",
	Short: "Remove a file from a volume",
	Long: `Remove truncates the named file to nothing, releasing its data blocks
and block-list pages, and then deletes its node.`,
	Args: cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {

		fs, dev, err := openVolume(args[0])
		if err != nil {
			log.Errorf("%v", err)
			return
		}
		defer dev.Close()

		node, err := resolvePath(fs, args[1])
		if err != nil {
			log.Errorf("%v", err)
			return
		}

		f, err := fs.OpenFile(node)
		if err != nil {
			log.Errorf("\"%s\": %v", args[1], err)
			return
		}

		err = f.Seek(0, false)
		if err == nil {
			err = f.Truncate()
		}
		f.Close()
		if err != nil {
			log.Errorf("%v", err)
			return
		}

		err = fs.DeleteNode(node)
		if err != nil {
			log.Errorf("%v", err)
			return
		}

		err = fs.Close()
		if err != nil {
			log.Errorf("%v", err)
		}

	},
}

var rmdirCmd = &cobra.Command{
	Use:   "rmdir IMAGE PATH",
	Short: "Remove an empty directory from a volume",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {

		fs, dev, err := openVolume(args[0])
		if err != nil {
			log.Errorf("%v", err)
			return
		}
		defer dev.Close()

		node, err := resolvePath(fs, args[1])
		if err != nil {
			log.Errorf("%v", err)
			return
		}

		err = fs.DeleteNode(node)
		if err != nil {
			log.Errorf("%v", err)
			return
		}

		err = fs.Close()
		if err != nil {
			log.Errorf("%v", err)
		}

	},
}

var mvCmd = &cobra.Command{
	Use:   "mv IMAGE FROM TO",
	Short: "Move or rename a node on a volume",
	Long: `Move reparents FROM under TO's directory and renames it to TO's base
name. Moving a directory into its own subtree is not checked for and must be
avoided.`,
	Args: cobra.ExactArgs(3),
	Run: func(cmd *cobra.Command, args []string) {

		fs, dev, err := openVolume(args[0])
		if err != nil {
			log.Errorf("%v", err)
			return
		}
		defer dev.Close()

		node, err := resolvePath(fs, args[1])
		if err != nil {
			log.Errorf("%v", err)
			return
		}

		parent, base, err := splitPath(fs, args[2])
		if err != nil {
			log.Errorf("%v", err)
			return
		}

		err = fs.MoveNode(node, parent)
		if err != nil {
			log.Errorf("%v", err)
			return
		}

		err = fs.RenameNode(node, base)
		if err != nil {
			log.Errorf("%v", err)
			return
		}

		err = fs.Close()
		if err != nil {
			log.Errorf("%v", err)
		}

	},
}
