package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var conflictsCmd = &cobra.Command{
	Use:   "conflicts",
	Short: "List unresolved sync conflicts",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		c, err := openClient()
		if err != nil {
			return err
		}
		defer c.Close()

		conflicts, err := c.Engine().GetConflicts()
		if err != nil {
			return err
		}

		if len(conflicts) == 0 {
			fmt.Println(green("no conflicts"))
			return nil
		}

		for _, conflict := range conflicts {
			fmt.Printf("%s %s\n", yellow("!"), conflict.FilePath)
			fmt.Printf("    local  modified %s (%s)\n",
				humanize.Time(conflict.LocalModified), humanize.Bytes(uint64(len(conflict.LocalContent))))
			fmt.Printf("    remote modified %s (%s)\n",
				humanize.Time(conflict.RemoteModified), humanize.Bytes(uint64(len(conflict.RemoteContent))))
			fmt.Printf("    detected %s\n", humanize.Time(conflict.DetectedAt))
		}
		fmt.Printf("\n%d conflict(s). Resolve with: cherrynote resolve <path> <keepLocal|keepRemote|merge|createBoth|skip>\n", len(conflicts))
		return nil
	},
}
