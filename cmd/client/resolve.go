package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/shaoyun/cherrynote/internal/client/sync"
)

var resolveCmd = &cobra.Command{
	Use:   "resolve <path> <strategy>",
	Short: "Resolve a conflict (keepLocal, keepRemote, merge, createBoth, skip)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]
		resolution, err := sync.ParseResolution(args[1])
		if err != nil {
			return err
		}
		cmd.SilenceUsage = true

		c, err := openClient()
		if err != nil {
			return err
		}
		defer c.Close()

		if err := c.Engine().HandleConflict(cmd.Context(), path, resolution); err != nil {
			return err
		}

		fmt.Printf("%s %s (%s)\n", green("resolved:"), path, resolution)
		return nil
	},
}
