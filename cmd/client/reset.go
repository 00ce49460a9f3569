package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Clear sync state so the next sync starts from scratch",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		c, err := openClient()
		if err != nil {
			return err
		}
		defer c.Close()

		if err := c.Engine().ResetSync(); err != nil {
			return err
		}

		fmt.Println(green("sync state cleared"))
		return nil
	},
}
