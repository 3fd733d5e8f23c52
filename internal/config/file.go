package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jladan/glacier-upload/internal/timex"
	"gopkg.in/yaml.v3"
)

// fileConfig is the on-disk form of Config. Durations use timex.Duration so
// files may write "500ms" or integer nanoseconds. Zero values leave the
// current setting unchanged.
type fileConfig struct {
	DatabasePath string `json:"database_path" yaml:"database_path"`
	IndexBackend string `json:"index_backend" yaml:"index_backend"`
	IndexDSN     string `json:"index_dsn" yaml:"index_dsn"`
	IndexTSVPath string `json:"index_tsv_path" yaml:"index_tsv_path"`

	Backend   string `json:"backend" yaml:"backend"`
	Vault     string `json:"vault" yaml:"vault"`
	Region    string `json:"region" yaml:"region"`
	Endpoint  string `json:"endpoint" yaml:"endpoint"`
	AccessKey string `json:"access_key" yaml:"access_key"`
	SecretKey string `json:"secret_key" yaml:"secret_key"`
	AccountID string `json:"account_id" yaml:"account_id"`
	KeyPrefix string `json:"key_prefix" yaml:"key_prefix"`

	ChunkSize            int64          `json:"chunk_size" yaml:"chunk_size"`
	MaxConcurrentUploads int            `json:"max_concurrent_uploads" yaml:"max_concurrent_uploads"`
	MaxRetries           *int           `json:"max_retries" yaml:"max_retries"`
	RetryBaseDelay       timex.Duration `json:"retry_base_delay" yaml:"retry_base_delay"`
	RetryMaxDelay        timex.Duration `json:"retry_max_delay" yaml:"retry_max_delay"`
	VerifyFile           *bool          `json:"verify_file" yaml:"verify_file"`

	LogLevel  string `json:"log_level" yaml:"log_level"`
	LogFormat string `json:"log_format" yaml:"log_format"`
}

// LoadFile overlays c with a JSON (.json) or YAML (.yaml, .yml) file.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}

	var fc fileConfig
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		err = json.Unmarshal(data, &fc)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &fc)
	default:
		return fmt.Errorf("config %s: unsupported format %q", path, ext)
	}
	if err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	c.apply(&fc)
	return nil
}

func (c *Config) apply(fc *fileConfig) {
	setString := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	setString(&c.DatabasePath, fc.DatabasePath)
	setString(&c.IndexBackend, fc.IndexBackend)
	setString(&c.IndexDSN, fc.IndexDSN)
	setString(&c.IndexTSVPath, fc.IndexTSVPath)
	setString(&c.Backend, fc.Backend)
	setString(&c.Vault, fc.Vault)
	setString(&c.Region, fc.Region)
	setString(&c.Endpoint, fc.Endpoint)
	setString(&c.AccessKey, fc.AccessKey)
	setString(&c.SecretKey, fc.SecretKey)
	setString(&c.AccountID, fc.AccountID)
	setString(&c.KeyPrefix, fc.KeyPrefix)
	setString(&c.LogLevel, fc.LogLevel)
	setString(&c.LogFormat, fc.LogFormat)

	if fc.ChunkSize != 0 {
		c.ChunkSize = fc.ChunkSize
	}
	if fc.MaxConcurrentUploads != 0 {
		c.MaxConcurrentUploads = fc.MaxConcurrentUploads
	}
	if fc.MaxRetries != nil {
		c.MaxRetries = *fc.MaxRetries
	}
	if fc.RetryBaseDelay.Duration != 0 {
		c.RetryBaseDelay = fc.RetryBaseDelay.Duration
	}
	if fc.RetryMaxDelay.Duration != 0 {
		c.RetryMaxDelay = fc.RetryMaxDelay.Duration
	}
	if fc.VerifyFile != nil {
		c.VerifyFile = *fc.VerifyFile
	}
}
