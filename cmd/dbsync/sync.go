package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/namohq/dbsync/internal/config"
	"github.com/namohq/dbsync/internal/dbsync"
	"github.com/namohq/dbsync/internal/kvstore"
	"github.com/namohq/dbsync/internal/remote"
	"github.com/namohq/dbsync/internal/sqlitex"
)

const (
	exitOK       = 0
	exitFailed   = 1
	exitConflict = 2
)

func init() {
	rootCmd.AddCommand(newPullCmd(), newPushCmd())
}

func newPullCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "pull",
		Short: "Replace the local database with the remote tip",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd, dbsync.ActionPull, force)
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite local changes and accept older remote tips")
	return cmd
}

func newPushCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "push",
		Short: "Publish the local database as the new remote tip",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd, dbsync.ActionPush, force)
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "publish even when the remote head moved")
	return cmd
}

func runSync(cmd *cobra.Command, action dbsync.Action, force bool) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	syncer, scope, err := buildSyncer(cfg)
	if err != nil {
		return err
	}

	var res *dbsync.Result
	switch action {
	case dbsync.ActionPull:
		res, err = syncer.Pull(cmd.Context(), scope, cfg.DBPath, force)
	case dbsync.ActionPush:
		res, err = syncer.Push(cmd.Context(), scope, cfg.DBPath, force)
	}
	if err != nil {
		return err
	}

	printResult(res)
	os.Exit(exitCode(res))
	return nil
}

func buildSyncer(cfg *config.Config) (*dbsync.Syncer, dbsync.Scope, error) {
	scope := dbsync.Scope{Bucket: cfg.Bucket, Key: cfg.Key}

	client, err := remote.NewS3ClientWithConfig(cfg.S3Config())
	if err != nil {
		return nil, scope, err
	}
	manifests, err := kvstore.NewSQLStore(cfg.StatePath())
	if err != nil {
		return nil, scope, err
	}

	engine := sqlitex.NewEngine()
	opts := dbsync.DefaultOptions()
	opts.BackupDir = cfg.BackupDir
	opts.CrossProcessLock = true

	syncer := dbsync.NewSyncer(client, manifests,
		dbsync.NewVacuumSnapshotCreator(engine),
		dbsync.NewBackupSnapshotApplier(engine, opts.KeepPrev, opts.BusyRetries, opts.BusyDelay),
		opts)
	return syncer, scope, nil
}

func printResult(res *dbsync.Result) {
	label := string(res.Outcome)
	switch {
	case res.Ok():
		label = green(label)
	case res.Conflict():
		label = yellow(label)
	default:
		label = red(label)
	}

	fmt.Printf("%s: %s\n", res.Action, label)
	if res.Message != "" {
		fmt.Printf("  %s\n", res.Message)
	}
	if res.RemoteVersionAfter != "" {
		fmt.Printf("  version: %s\n", cyan(res.RemoteVersionAfter))
	}
	if res.BackupPath != "" {
		fmt.Printf("  backup:  %s\n", cyan(filepath.Clean(res.BackupPath)))
	}
}

func exitCode(res *dbsync.Result) int {
	switch {
	case res.Ok():
		return exitOK
	case res.Conflict(), res.Outcome == dbsync.OutcomeRemoteDeleted:
		return exitConflict
	default:
		return exitFailed
	}
}
