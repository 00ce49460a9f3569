package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/shaoyun/cherrynote/internal/client/sync"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show sync state, watermark and pending operations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		c, err := openClient()
		if err != nil {
			return err
		}
		defer c.Close()

		info, err := c.Engine().GetSyncInfo()
		if err != nil {
			return err
		}

		fmt.Printf("status:     %s\n", colorStatus(info.Status))
		if info.LastSyncTime.IsZero() {
			fmt.Println("last sync:  never")
		} else {
			fmt.Printf("last sync:  %s\n", humanize.Time(info.LastSyncTime))
		}
		fmt.Printf("cached:     %d notes\n", info.TotalFiles)
		fmt.Printf("pending:    %d operations\n", info.PendingOperations)

		conflicts, err := c.Engine().GetConflicts()
		if err == nil {
			fmt.Printf("conflicts:  %d\n", len(conflicts))
		}
		if info.LastError != "" {
			fmt.Printf("last error: %s\n", red(info.LastError))
		}
		return nil
	},
}

func colorStatus(status sync.SyncStatus) string {
	switch status {
	case sync.StatusSuccess:
		return green(string(status))
	case sync.StatusError, sync.StatusOffline:
		return red(string(status))
	case sync.StatusConflict:
		return yellow(string(status))
	default:
		return cyan(string(status))
	}
}
