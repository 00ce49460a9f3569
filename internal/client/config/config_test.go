package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaoyun/cherrynote/internal/blob"
)

func validConfig(dir string) *Config {
	return &Config{
		DataDir:  dir,
		AutoSync: true,
		S3: blob.S3Config{
			Endpoint:  "http://127.0.0.1:9000",
			Region:    "us-east-1",
			Bucket:    "notes",
			AccessKey: "minioadmin",
			SecretKey: "minioadmin",
		},
	}
}

func TestConfig_Validate(t *testing.T) {
	tmp := t.TempDir()
	require.NoError(t, validConfig(tmp).Validate())

	t.Run("missing data dir", func(t *testing.T) {
		cfg := validConfig(tmp)
		cfg.DataDir = ""
		assert.Error(t, cfg.Validate())
	})

	t.Run("missing bucket", func(t *testing.T) {
		cfg := validConfig(tmp)
		cfg.S3.Bucket = ""
		assert.Error(t, cfg.Validate())
	})

	t.Run("region-only is fine", func(t *testing.T) {
		cfg := validConfig(tmp)
		cfg.S3.Endpoint = ""
		assert.NoError(t, cfg.Validate())
	})

	t.Run("no region and no endpoint", func(t *testing.T) {
		cfg := validConfig(tmp)
		cfg.S3.Endpoint = ""
		cfg.S3.Region = ""
		assert.Error(t, cfg.Validate())
	})
}

func TestConfig_SaveLoadRoundTrip(t *testing.T) {
	tmp := t.TempDir()
	path := filepath.Join(tmp, "nested", "config.json")

	cfg := validConfig(tmp)
	cfg.S3.KeyPrefix = "vault/"
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.DataDir, loaded.DataDir)
	assert.Equal(t, cfg.S3, loaded.S3)
	assert.True(t, loaded.AutoSync)
	assert.Equal(t, path, loaded.Path)
}

func TestConfig_LoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.NotEmpty(t, cfg.DataDir)
	assert.True(t, cfg.AutoSync)
	// no bucket configured yet, must not validate
	assert.Error(t, cfg.Validate())
}
