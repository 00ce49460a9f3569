package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/shaoyun/cherrynote/internal/client"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run a single full sync and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		c, err := openClient()
		if err != nil {
			return err
		}
		defer c.Close()

		res, err := c.RunOnce(cmd.Context())
		if err != nil {
			return err
		}

		if res.Success {
			fmt.Printf("%s uploaded %d, downloaded %d, deleted %d\n",
				green("sync ok:"), res.UploadedCount, res.DownloadedCount, res.DeletedCount)
		} else {
			fmt.Printf("%s %s\n", red("sync failed:"), res.Error)
		}
		for _, conflict := range res.Conflicts {
			fmt.Printf("%s %s (local %s, remote %s)\n",
				yellow("conflict:"), conflict.FilePath,
				humanize.Time(conflict.LocalModified), humanize.Time(conflict.RemoteModified))
		}
		if !res.Success {
			return fmt.Errorf("sync failed")
		}
		return nil
	},
}

func openClient() (*client.Client, error) {
	cfg, err := buildConfig()
	if err != nil {
		return nil, err
	}
	c, err := client.New(cfg)
	if err != nil {
		return nil, err
	}
	if err := c.Open(); err != nil {
		return nil, err
	}
	return c, nil
}
