package config

import "github.com/spf13/pflag"

// RegisterFlags binds c to fs. Current values become the flag defaults, so
// LoadConfig must run first for the config file to sit below the flags.
func (c *Config) RegisterFlags(fs *pflag.FlagSet) {
	fs.StringVarP(&c.File, "config", "c", c.File, "path to a JSON or YAML config file")

	fs.StringVar(&c.DatabasePath, "db", c.DatabasePath, "path to the local state database")
	fs.StringVar(&c.IndexBackend, "index", c.IndexBackend, "archive index backend: sqlite, postgres or tsv")
	fs.StringVar(&c.IndexDSN, "index-dsn", c.IndexDSN, "PostgreSQL DSN for the postgres index")
	fs.StringVar(&c.IndexTSVPath, "index-tsv", c.IndexTSVPath, "file for the tsv index")

	fs.StringVar(&c.Backend, "backend", c.Backend, "remote store: glacier, s3 or memory")
	fs.StringVarP(&c.Vault, "vault", "v", c.Vault, "Glacier vault or S3 bucket")
	fs.StringVar(&c.Region, "region", c.Region, "AWS region")
	fs.StringVar(&c.Endpoint, "endpoint", c.Endpoint, "custom service endpoint (MinIO, LocalStack)")
	fs.StringVar(&c.AccessKey, "access-key", c.AccessKey, "static access key id")
	fs.StringVar(&c.SecretKey, "secret-key", c.SecretKey, "static secret access key")
	fs.StringVar(&c.AccountID, "account-id", c.AccountID, "Glacier account id")
	fs.StringVar(&c.KeyPrefix, "key-prefix", c.KeyPrefix, "S3 object key prefix")

	fs.Int64Var(&c.ChunkSize, "chunk-size", c.ChunkSize, "part size in bytes, a power of two from 1 MiB to 4 GiB (0 picks one)")
	fs.IntVarP(&c.MaxConcurrentUploads, "jobs", "j", c.MaxConcurrentUploads, "parts uploaded in parallel")
	fs.IntVar(&c.MaxRetries, "retries", c.MaxRetries, "retries per part after the first attempt")
	fs.DurationVar(&c.RetryBaseDelay, "retry-delay", c.RetryBaseDelay, "first retry delay, doubled per retry")
	fs.DurationVar(&c.RetryMaxDelay, "retry-max-delay", c.RetryMaxDelay, "upper bound for the retry delay")
	fs.BoolVar(&c.VerifyFile, "verify", c.VerifyFile, "re-hash the whole file before completing")

	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "debug, info, warn or error")
	fs.StringVar(&c.LogFormat, "log-format", c.LogFormat, "text or json")
}
