package config

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/jladan/glacier-upload/internal/chunker"
	"github.com/jladan/glacier-upload/internal/common"
	"github.com/jladan/glacier-upload/internal/flagx"
)

// Index and remote backends.
const (
	IndexSQLite   = "sqlite"
	IndexPostgres = "postgres"
	IndexTSV      = "tsv"

	BackendGlacier = "glacier"
	BackendS3      = "s3"
	BackendMemory  = "memory"
)

// Config holds runtime settings for the CLI.
//
// ChunkSize is in bytes; zero picks the smallest valid size that keeps the
// part count within the remote limit. DatabasePath holds the journal and,
// with the sqlite index backend, the archive index.
type Config struct {
	File string

	DatabasePath string
	IndexBackend string
	IndexDSN     string
	IndexTSVPath string

	Backend   string
	Vault     string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
	AccountID string
	KeyPrefix string

	ChunkSize            int64
	MaxConcurrentUploads int
	MaxRetries           int
	RetryBaseDelay       time.Duration
	RetryMaxDelay        time.Duration
	VerifyFile           bool

	LogLevel  string
	LogFormat string
}

// LoadDefaults populates c with defaults suitable for a local run against
// AWS Glacier.
func (c *Config) LoadDefaults() {
	c.DatabasePath = "glacier-upload.db"
	c.IndexBackend = IndexSQLite
	c.IndexTSVPath = "archives.tsv"
	c.Backend = BackendGlacier
	c.Region = "us-east-1"
	c.AccountID = "-"
	c.MaxConcurrentUploads = common.DefaultMaxConcurrentUploads
	c.MaxRetries = 2
	c.RetryBaseDelay = time.Second
	c.RetryMaxDelay = 30 * time.Second
	c.VerifyFile = true
	c.LogLevel = "info"
	c.LogFormat = "text"
}

// LoadConfig applies defaults and then the config file named by -c/--config
// in args, if any. Flags are applied later, when the command line is parsed
// against the flag set built by RegisterFlags.
func LoadConfig(args []string) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()

	cfg.File = flagx.ConfigPath(args)
	if cfg.File == "" {
		return cfg, nil
	}
	if err := cfg.LoadFile(cfg.File); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the combined configuration.
func (c *Config) Validate() error {
	var errs []error
	if !slices.Contains([]string{IndexSQLite, IndexPostgres, IndexTSV}, c.IndexBackend) {
		errs = append(errs, fmt.Errorf("unknown index backend %q", c.IndexBackend))
	}
	if c.IndexBackend == IndexPostgres && c.IndexDSN == "" {
		errs = append(errs, errors.New("postgres index requires an index DSN"))
	}
	if !slices.Contains([]string{BackendGlacier, BackendS3, BackendMemory}, c.Backend) {
		errs = append(errs, fmt.Errorf("unknown backend %q", c.Backend))
	}
	if c.ChunkSize != 0 {
		if err := chunker.ValidateChunkSize(c.ChunkSize); err != nil {
			errs = append(errs, err)
		}
	}
	if c.MaxConcurrentUploads <= 0 {
		errs = append(errs, fmt.Errorf("max concurrent uploads must be positive, got %d", c.MaxConcurrentUploads))
	}
	if c.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("max retries must not be negative, got %d", c.MaxRetries))
	}
	if c.RetryMaxDelay < c.RetryBaseDelay {
		errs = append(errs, fmt.Errorf("retry max delay %s is below base delay %s", c.RetryMaxDelay, c.RetryBaseDelay))
	}
	return errors.Join(errs...)
}
