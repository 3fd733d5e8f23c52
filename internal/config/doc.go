// Package config handles configuration for the glacier-upload CLI: defaults,
// an optional JSON or YAML config file, and command-line flags, applied in
// that order so later sources override earlier ones.
package config
