package main

/**
 * SPDX-License-Identifier: Apache-2.0
 * Copyright 2020 vorteil.io Pty Ltd
 */

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/listfs/listfs/pkg/listfs"
	"github.com/listfs/listfs/pkg/vdev"
)

// openVolume opens IMAGE and mounts a ListFS handle over it. Callers must
// close the returned device; closing the FS is their call to make because
// read-only commands should not rewrite the superblock.
func openVolume(path string) (*listfs.FS, *vdev.FileDevice, error) {

	dev, err := vdev.Open(path)
	if err != nil {
		return nil, nil, err
	}

	fs := listfs.New(&listfs.Args{Device: dev, Logger: log})

	err = fs.Open()
	if err != nil {
		dev.Close()
		return nil, nil, err
	}

	return fs, dev, nil

}

var dumpCmd = &cobra.Command{
	Use:   "dump IMAGE",
	Short: "Dump a volume's on-disk structures",
	Long: `Dump prints the superblock, every node reachable from the root
directory, and the block-list chain of every file. It is meant for debugging
volumes rather than day-to-day inspection.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {

		fs, dev, err := openVolume(args[0])
		if err != nil {
			log.Errorf("%v", err)
			return
		}
		defer dev.Close()

		sb := fs.Superblock()

		fmt.Printf("ListFS information:\n")
		fmt.Printf("\tVersion: %d.%d\n", sb.Version>>8, sb.Version&0xFF)
		fmt.Printf("\tBase: %d\n", sb.Base)
		fmt.Printf("\tSize: %d\n", sb.Size)
		fmt.Printf("\tBitmap base: %d\n", sb.MapBase)
		fmt.Printf("\tBitmap size: %d\n", sb.MapSize)
		fmt.Printf("\tBlock size: %d\n", sb.BlockSize)
		fmt.Printf("\tUsed blocks count: %d\n", sb.UsedBlocks)

		fmt.Printf("Nodes:\n")
		err = dumpNodes(fs, fs.RootDir(), "\t")
		if err != nil {
			log.Errorf("%v", err)
		}

	},
}

func dumpNodes(fs *listfs.FS, first listfs.BlockIndex, indent string) error {

	var werr error

	err := fs.ForeachNode(first, func(node listfs.BlockIndex, hdr *listfs.NodeHeader) bool {

		fmt.Printf("%sNode %d (name = '%s', flags = %d, size = %d, data = %s)\n",
			indent, node, hdr.NodeName(), hdr.Flags, hdr.Size, formatIndex(hdr.Data))

		if hdr.IsDir() {
			werr = dumpNodes(fs, hdr.Data, indent+"\t")
		} else {
			werr = dumpBlockList(fs, hdr.Data, indent)
		}

		return werr == nil

	})
	if err != nil {
		return err
	}

	return werr

}

func dumpBlockList(fs *listfs.FS, listBlock listfs.BlockIndex, indent string) error {

	for listBlock != listfs.None {

		list, err := fs.FetchBlockList(listBlock)
		if err != nil {
			return err
		}

		slots := len(list)
		fmt.Printf("%s\tBlock list %d (next = %s, prev = %s):\n",
			indent, listBlock, formatIndex(list[slots-1]), formatIndex(list[0]))

		for i := 1; i < slots-1; i++ {
			if list[i] == listfs.None {
				break
			}
			fmt.Printf("%s\t\tBlock %d\n", indent, list[i])
		}

		listBlock = list[slots-1]

	}

	return nil

}

func formatIndex(index listfs.BlockIndex) string {
	if index == listfs.None {
		return "-1"
	}
	return fmt.Sprintf("%d", index)
}
