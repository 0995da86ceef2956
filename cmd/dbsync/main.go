package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/namohq/dbsync/internal/config"
	"github.com/namohq/dbsync/internal/utils"
	"github.com/namohq/dbsync/internal/version"
)

var (
	red    = color.New(color.FgHiRed, color.Bold).SprintFunc()
	green  = color.New(color.FgHiGreen).SprintFunc()
	yellow = color.New(color.FgHiYellow).SprintFunc()
	cyan   = color.New(color.FgHiCyan).SprintFunc()
)

var rootCmd = &cobra.Command{
	Use:           "dbsync",
	Short:         "Sync a SQLite database with a versioned object store",
	Version:       version.Detailed(),
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", config.DefaultConfigPath, "config file")
	rootCmd.PersistentFlags().String("log-file", "", "also write logs to this file")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "debug logging")
}

func main() {
	// A .env next to the binary or cwd may carry store credentials.
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", red("ERROR"), err)
		os.Exit(1)
	}
}

// setupLogging installs the tint handler on stdout and, when requested,
// mirrors every record into a log file.
func setupLogging(cmd *cobra.Command) error {
	level := slog.LevelInfo
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		level = slog.LevelDebug
	}

	stdoutHandler := tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: "15:04:05.000",
		NoColor:    !isatty.IsTerminal(os.Stderr.Fd()),
	})

	logFile, _ := cmd.Flags().GetString("log-file")
	if logFile == "" {
		slog.SetDefault(slog.New(stdoutHandler))
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(logFile), 0o755); err != nil {
		return fmt.Errorf("create log directory: %w", err)
	}
	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}

	fileHandler := slog.NewTextHandler(utils.NewLogInterceptor(file), &slog.HandlerOptions{
		Level: slog.LevelDebug,
		// The interceptor stamps its own time on every line.
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey && len(groups) == 0 {
				return slog.Attr{}
			}
			return a
		},
	})

	slog.SetDefault(slog.New(utils.NewMultiLogHandler(stdoutHandler, fileHandler)))
	return nil
}

// loadConfig resolves the config file, environment and flags into viper.
// Environment variables use the DBSYNC_ prefix, e.g. DBSYNC_ACCESS_KEY.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	if err := setupLogging(cmd); err != nil {
		return nil, err
	}

	configPath, _ := cmd.Flags().GetString("config")
	viper.SetConfigFile(configPath)
	viper.SetConfigType("json")

	if err := viper.ReadInConfig(); err != nil {
		enoent := errors.Is(err, os.ErrNotExist)
		_, notFound := err.(viper.ConfigFileNotFoundError)
		if !enoent && !notFound {
			return nil, fmt.Errorf("config read %q: %w", configPath, err)
		}
	}

	viper.SetEnvPrefix("DBSYNC")
	viper.AutomaticEnv()

	cfg := &config.Config{
		Path:      viper.ConfigFileUsed(),
		DBPath:    viper.GetString("db_path"),
		Bucket:    viper.GetString("bucket"),
		Key:       viper.GetString("key"),
		Region:    viper.GetString("region"),
		AccessKey: viper.GetString("access_key"),
		SecretKey: viper.GetString("secret_key"),
		Endpoint:  viper.GetString("endpoint"),
		DataDir:   viper.GetString("data_dir"),
		BackupDir: viper.GetString("backup_dir"),
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %q: %w", configPath, err)
	}
	return cfg, nil
}
