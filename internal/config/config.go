package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/namohq/dbsync/internal/remote"
	"github.com/namohq/dbsync/internal/utils"
)

var (
	home, _           = os.UserHomeDir()
	DefaultConfigPath = filepath.Join(home, ".dbsync", "config.json")
	DefaultDataDir    = filepath.Join(home, ".dbsync")
)

// Config describes one synced database: where it lives on disk, which
// bucket and key hold its published versions, and where sync state and
// backups go.
type Config struct {
	DBPath    string `json:"db_path"`
	Bucket    string `json:"bucket"`
	Key       string `json:"key"`
	Region    string `json:"region"`
	AccessKey string `json:"access_key"`
	SecretKey string `json:"secret_key"`
	Endpoint  string `json:"endpoint,omitempty"`
	DataDir   string `json:"data_dir,omitempty"`
	BackupDir string `json:"backup_dir,omitempty"`
	Path      string `json:"-"`
}

// Validate checks required fields and normalizes the local paths, so
// "~/data/app.db" and relative paths work from any working directory.
func (c *Config) Validate() error {
	if c.DBPath == "" {
		return fmt.Errorf("db_path is required")
	}
	if c.Bucket == "" {
		return fmt.Errorf("bucket is required")
	}
	if c.Key == "" {
		return fmt.Errorf("key is required")
	}
	if c.Region == "" && c.Endpoint == "" {
		return fmt.Errorf("region or endpoint is required")
	}

	var err error
	if c.DBPath, err = utils.ResolvePath(c.DBPath); err != nil {
		return fmt.Errorf("db_path: %w", err)
	}
	if c.DataDir != "" {
		if c.DataDir, err = utils.ResolvePath(c.DataDir); err != nil {
			return fmt.Errorf("data_dir: %w", err)
		}
	}
	if c.BackupDir != "" {
		if c.BackupDir, err = utils.ResolvePath(c.BackupDir); err != nil {
			return fmt.Errorf("backup_dir: %w", err)
		}
	}
	return nil
}

// StatePath is where the manifest database for this config lives.
func (c *Config) StatePath() string {
	dataDir := c.DataDir
	if dataDir == "" {
		dataDir = DefaultDataDir
	}
	return filepath.Join(dataDir, "state.db")
}

func (c *Config) S3Config() *remote.S3Config {
	return &remote.S3Config{
		BucketName: c.Bucket,
		Region:     c.Region,
		AccessKey:  c.AccessKey,
		SecretKey:  c.SecretKey,
		Endpoint:   c.Endpoint,
	}
}

func (c *Config) Save(path string) error {
	if err := utils.EnsureParent(path); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	c.Path = path
	return os.WriteFile(path, data, 0600)
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	cfg.Path = path
	return &cfg, nil
}
