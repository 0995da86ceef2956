package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/namohq/dbsync/internal/config"
)

func init() {
	rootCmd.AddCommand(newInitCmd())
}

func newInitCmd() *cobra.Command {
	var cfg config.Config

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a config for one synced database",
		Run: func(cmd *cobra.Command, args []string) {
			configPath, _ := cmd.Flags().GetString("config")

			if existing, err := config.Load(configPath); err == nil {
				fmt.Println("Already initialized")
				printConfig(existing)
				os.Exit(0)
			}

			if err := cfg.Validate(); err != nil {
				fmt.Printf("%s: %v\n", red("ERROR"), err)
				os.Exit(1)
			}
			if err := cfg.Save(configPath); err != nil {
				fmt.Printf("%s: %v\n", red("ERROR"), err)
				os.Exit(1)
			}

			fmt.Println("Initialized")
			printConfig(&cfg)
		},
	}

	cmd.Flags().SortFlags = false
	cmd.Flags().StringVarP(&cfg.DBPath, "db", "d", "", "path of the local SQLite database")
	cmd.Flags().StringVarP(&cfg.Bucket, "bucket", "b", "", "versioning-enabled bucket")
	cmd.Flags().StringVarP(&cfg.Key, "key", "k", "", "object key for the published snapshots")
	cmd.Flags().StringVarP(&cfg.Region, "region", "r", "", "bucket region")
	cmd.Flags().StringVar(&cfg.Endpoint, "endpoint", "", "custom store endpoint (MinIO etc.)")
	cmd.Flags().StringVar(&cfg.AccessKey, "access-key", "", "store access key")
	cmd.Flags().StringVar(&cfg.SecretKey, "secret-key", "", "store secret key")
	cmd.Flags().StringVar(&cfg.DataDir, "data-dir", config.DefaultDataDir, "directory for sync state")
	cmd.Flags().StringVar(&cfg.BackupDir, "backup-dir", "", "directory for pre-overwrite backups")

	return cmd
}

func printConfig(cfg *config.Config) {
	fmt.Printf("Config:   %s\n", green(cfg.Path))
	fmt.Printf("Database: %s\n", cyan(cfg.DBPath))
	fmt.Printf("Remote:   %s\n", cyan(fmt.Sprintf("s3://%s/%s", cfg.Bucket, cfg.Key)))
	fmt.Printf("State:    %s\n", cyan(cfg.StatePath()))
}
