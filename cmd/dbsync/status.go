package main

import (
	"errors"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/namohq/dbsync/internal/remote"
	"github.com/namohq/dbsync/internal/utils"
)

func init() {
	rootCmd.AddCommand(newStatusCmd())
}

func newStatusCmd() *cobra.Command {
	var checkRemote bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the sync state of the local database",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			syncer, scope, err := buildSyncer(cfg)
			if err != nil {
				return err
			}

			manifest, err := syncer.Manifests().Load(cmd.Context(), scope)
			if err != nil {
				return err
			}

			fmt.Printf("Database: %s\n", cyan(cfg.DBPath))
			fmt.Printf("Remote:   %s\n", cyan(scope.String()))

			if manifest == nil {
				fmt.Printf("State:    %s\n", yellow("never synced"))
			} else {
				fmt.Printf("Version:  %s (%s, %s)\n", cyan(manifest.RemoteVersionID),
					humanize.Bytes(uint64(manifest.SizeBytes)), humanize.Time(manifest.AppliedAt))

				switch {
				case !utils.FileExists(cfg.DBPath):
					fmt.Printf("State:    %s\n", red("local database missing"))
				default:
					digest, _, err := utils.FileSha256(cfg.DBPath)
					if err != nil {
						return err
					}
					if digest == manifest.ContentSHA256 {
						fmt.Printf("State:    %s\n", green("clean"))
					} else {
						fmt.Printf("State:    %s\n", yellow("locally modified"))
					}
				}
			}

			if !checkRemote {
				return nil
			}

			tip, err := remote.LatestVersion(cmd.Context(), syncer.Client(), scope.Key)
			switch {
			case errors.Is(err, remote.ErrNoVersions):
				fmt.Printf("Head:     %s\n", yellow("no remote versions"))
			case errors.Is(err, remote.ErrRemoteDeleted):
				fmt.Printf("Head:     %s\n", red("deleted"))
			case err != nil:
				return err
			case manifest != nil && tip.VersionID == manifest.RemoteVersionID:
				fmt.Printf("Head:     %s %s\n", cyan(tip.VersionID), green("(in sync)"))
			default:
				fmt.Printf("Head:     %s %s\n", cyan(tip.VersionID), yellow("(pull available)"))
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&checkRemote, "remote", "r", false, "also query the remote head")
	return cmd
}
