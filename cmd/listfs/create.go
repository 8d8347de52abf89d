package main

/**
 * SPDX-License-Identifier: Apache-2.0
 * Copyright 2020 vorteil.io Pty Ltd
 */

import (
	"io/ioutil"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/listfs/listfs/pkg/listfs"
	"github.com/listfs/listfs/pkg/vdev"
)

const readmeText = "This is first file on your ListFS!\n"

var createCmd = &cobra.Command{
	Use:   "create IMAGE SIZE BLOCK-SIZE [BOOTLOADER]",
	Short: "Format a new ListFS volume",
	Long: `Create formats IMAGE as an empty ListFS volume of SIZE blocks, each
BLOCK-SIZE bytes (at least 512). An optional BOOTLOADER image is overlaid
across the front of the volume. A small README file is seeded onto the fresh
volume.`,
	Args: cobra.RangeArgs(3, 4),
	Run: func(cmd *cobra.Command, args []string) {

		size, err := strconv.ParseUint(args[1], 10, 64)
		if err != nil {
			log.Errorf("invalid volume size: %v", err)
			return
		}

		blockSize, err := strconv.ParseUint(args[2], 10, 16)
		if err != nil {
			log.Errorf("invalid block size: %v", err)
			return
		}

		var bootloader []byte
		if len(args) >= 4 {
			bootloader, err = ioutil.ReadFile(args[3])
			if err != nil {
				log.Errorf("%v", err)
				return
			}
		}

		dev, err := vdev.Create(args[0])
		if err != nil {
			log.Errorf("%v", err)
			return
		}
		defer dev.Close()

		fs := listfs.New(&listfs.Args{Device: dev, Logger: log})

		err = fs.Create(size, uint16(blockSize), bootloader)
		if err != nil {
			log.Errorf("%v", err)
			return
		}

		err = seedReadme(fs)
		if err != nil {
			log.Errorf("%v", err)
			return
		}

		err = fs.Close()
		if err != nil {
			log.Errorf("%v", err)
			return
		}

		log.Printf("created ListFS volume with %d blocks of %d bytes", size, blockSize)

	},
}

func seedReadme(fs *listfs.FS) error {

	node, err := fs.CreateNode("README", 0, listfs.None)
	if err != nil {
		return err
	}

	f, err := fs.OpenFile(node)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = f.Write([]byte(readmeText))
	return err

}
