package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/goccy/go-json"

	"github.com/shaoyun/cherrynote/internal/blob"
	"github.com/shaoyun/cherrynote/internal/utils"
)

var (
	home, _           = os.UserHomeDir()
	DefaultConfigPath = filepath.Join(home, ".cherrynote", "config.json")
	DefaultDataDir    = filepath.Join(home, "CherryNote")
)

type Config struct {
	DataDir  string        `json:"data_dir" mapstructure:"data_dir"`
	AutoSync bool          `json:"auto_sync" mapstructure:"auto_sync"`
	S3       blob.S3Config `json:"s3" mapstructure:"s3"`

	Path string `json:"-" mapstructure:"-"`
}

func Default() *Config {
	return &Config{
		DataDir:  DefaultDataDir,
		AutoSync: true,
	}
}

func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}
	return c.S3.Validate()
}

func (c *Config) Save(path string) error {
	if err := utils.EnsureParent(path); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600)
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	cfg.Path = path
	return cfg, nil
}
