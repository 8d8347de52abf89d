package main

/**
 * SPDX-License-Identifier: Apache-2.0
 * Copyright 2020 vorteil.io Pty Ltd
 */

import (
	"errors"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/sisatech/tablewriter"
	"github.com/spf13/cobra"

	"github.com/listfs/listfs/pkg/elog"
)

var log elog.View

var (
	flagVerbose bool
	flagDebug   bool
)

var rootCmd = &cobra.Command{
	Use:   "listfs",
	Short: "Create and interact with ListFS volumes",
	Long: `ListFS stores a tree of files and directories as doubly-linked lists of
fixed-size blocks inside a single backing file or block device. These commands
format volumes, inspect their on-disk structures, and move data in and out of
them.`,
}

func commandInit() {

	// setup logging across all commands
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVarP(&flagDebug, "debug", "d", false, "enable debug output")

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {

		logger := &elog.CLI{}

		logrus.SetFormatter(logger)
		logrus.SetLevel(logrus.TraceLevel)

		if flagDebug {
			logger.IsDebug = true
			logger.IsVerbose = true
		} else if flagVerbose {
			logger.IsVerbose = true
		}

		log = logger
		return nil
	}

	rootCmd.AddCommand(createCmd)
	rootCmd.AddCommand(dumpCmd)
	rootCmd.AddCommand(lsCmd)
	rootCmd.AddCommand(treeCmd)
	rootCmd.AddCommand(statCmd)
	rootCmd.AddCommand(dfCmd)
	rootCmd.AddCommand(catCmd)
	rootCmd.AddCommand(cpCmd)
	rootCmd.AddCommand(mkdirCmd)
	rootCmd.AddCommand(rmCmd)
	rootCmd.AddCommand(rmdirCmd)
	rootCmd.AddCommand(mvCmd)

}

func main() {

	commandInit()

	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}

}

// PlainTable prints data in a grid, handling alignment automatically.
func PlainTable(vals [][]string) {
	if len(vals) == 0 {
		panic(errors.New("no rows provided"))
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetBorder(false)
	table.SetColumnSeparator("")
	table.SetHeader(vals[0])
	for i := 1; i < len(vals); i++ {
		table.Append(vals[i])
	}

	table.Render()
}
