// Package config holds the ceremony tool settings and loads them from a
// YAML or JSON file.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"ceremony/internal/artifact"
	"ceremony/internal/contrib"
	"ceremony/internal/ledger"
	"ceremony/internal/resultlog"
	"ceremony/internal/syncer"
	"ceremony/internal/verify"
)

// DefaultPath is the config file picked up from cwd when --config is not set.
const DefaultPath = "ceremony.yaml"

// DefaultPresignExpirySeconds matches a participant's upload window.
const DefaultPresignExpirySeconds = 6 * 60 * 60

// Tool configures the external verifier.
type Tool struct {
	Path           string `yaml:"path" json:"path"`
	Subcommand     string `yaml:"subcommand" json:"subcommand"`
	TimeoutSeconds int    `yaml:"timeout_seconds" json:"timeout_seconds"`
}

// Timeout returns the per-invocation timeout.
func (t Tool) Timeout() time.Duration { return time.Duration(t.TimeoutSeconds) * time.Second }

// Remote configures the S3 bucket.
type Remote struct {
	Bucket   string `yaml:"bucket" json:"bucket"`
	Region   string `yaml:"region" json:"region"`
	Prefix   string `yaml:"prefix" json:"prefix"`
	Endpoint string `yaml:"endpoint" json:"endpoint"`
	Profile  string `yaml:"profile" json:"profile"`
}

// Config is the full tool configuration. Zero fields in a file fall back to
// Default.
type Config struct {
	ContributionsDir     string   `yaml:"contributions_dir" json:"contributions_dir"`
	LogsDir              string   `yaml:"logs_dir" json:"logs_dir"`
	LedgerPath           string   `yaml:"ledger_path" json:"ledger_path"`
	MetricsPath          string   `yaml:"metrics_path" json:"metrics_path"`
	ArtifactExt          string   `yaml:"artifact_ext" json:"artifact_ext"`
	ReceiptExt           string   `yaml:"receipt_ext" json:"receipt_ext"`
	Kinds                []string `yaml:"kinds" json:"kinds"`
	Tool                 Tool     `yaml:"tool" json:"tool"`
	Remote               Remote   `yaml:"remote" json:"remote"`
	ChainMode            string   `yaml:"chain_mode" json:"chain_mode"`
	ExitPolicy           string   `yaml:"exit_policy" json:"exit_policy"`
	DownloadWorkers      int      `yaml:"download_workers" json:"download_workers"`
	VerifyWorkers        int      `yaml:"verify_workers" json:"verify_workers"`
	PresignExpirySeconds int      `yaml:"presign_expiry_seconds" json:"presign_expiry_seconds"`
}

// Default returns the built-in configuration. VerifyWorkers 0 means one
// worker per CPU.
func Default() *Config {
	return &Config{
		ContributionsDir: contrib.DefaultRoot,
		LogsDir:          resultlog.DefaultDir,
		LedgerPath:       ledger.DefaultPath,
		ArtifactExt:      artifact.DefaultArtifactExt,
		ReceiptExt:       artifact.DefaultReceiptExt,
		Kinds:            artifact.DefaultKinds(),
		Tool: Tool{
			Path:           verify.DefaultToolPath,
			Subcommand:     verify.DefaultSubcommand,
			TimeoutSeconds: int(verify.DefaultTimeout / time.Second),
		},
		ChainMode:            string(verify.ChainRolling),
		ExitPolicy:           string(resultlog.PolicyErrors),
		DownloadWorkers:      syncer.DefaultWorkers,
		PresignExpirySeconds: DefaultPresignExpirySeconds,
	}
}

// Naming returns the object naming convention for the configured extensions.
func (c *Config) Naming() artifact.Naming {
	return artifact.Naming{ArtifactExt: c.ArtifactExt, ReceiptExt: c.ReceiptExt}
}

// PresignExpiry returns the lifetime of generated URLs.
func (c *Config) PresignExpiry() time.Duration {
	return time.Duration(c.PresignExpirySeconds) * time.Second
}

// Validate checks enumerations and bounds.
func (c *Config) Validate() error {
	var errs []error
	if _, err := verify.ParseChainMode(c.ChainMode); err != nil {
		errs = append(errs, err)
	}
	if _, err := resultlog.ParsePolicy(c.ExitPolicy); err != nil {
		errs = append(errs, err)
	}
	if c.DownloadWorkers < 1 {
		errs = append(errs, fmt.Errorf("download_workers must be positive, got %d", c.DownloadWorkers))
	}
	if c.VerifyWorkers < 0 {
		errs = append(errs, fmt.Errorf("verify_workers must not be negative, got %d", c.VerifyWorkers))
	}
	if c.Tool.TimeoutSeconds < 1 {
		errs = append(errs, fmt.Errorf("tool.timeout_seconds must be positive, got %d", c.Tool.TimeoutSeconds))
	}
	if c.PresignExpirySeconds < 1 {
		errs = append(errs, fmt.Errorf("presign_expiry_seconds must be positive, got %d", c.PresignExpirySeconds))
	}
	if c.ArtifactExt == "" || c.ReceiptExt == "" || c.ArtifactExt == c.ReceiptExt {
		errs = append(errs, fmt.Errorf("artifact_ext %q and receipt_ext %q must be set and differ", c.ArtifactExt, c.ReceiptExt))
	}
	if len(c.Kinds) == 0 {
		errs = append(errs, errors.New("kinds must not be empty"))
	}
	seen := make(map[string]bool, len(c.Kinds))
	for _, k := range c.Kinds {
		if k == "" || strings.ContainsAny(k, "/\\") {
			errs = append(errs, fmt.Errorf("invalid kind %q", k))
		}
		if seen[k] {
			errs = append(errs, fmt.Errorf("duplicate kind %q", k))
		}
		seen[k] = true
	}
	return errors.Join(errs...)
}

// LoadFromPath reads a config file (YAML or JSON) over Default. Format is
// detected by extension (.yaml/.yml, .json) or by content.
func LoadFromPath(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Load(data, filepath.Ext(path))
}

// LoadOptional is LoadFromPath, but a missing file yields Default.
func LoadOptional(path string) (*Config, error) {
	cfg, err := LoadFromPath(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

// Load parses config bytes. ext is a format hint; empty means detect.
func Load(data []byte, ext string) (*Config, error) {
	cfg := Default()
	ext = strings.ToLower(ext)
	if ext == ".yml" {
		ext = ".yaml"
	}
	if ext == "" && strings.HasPrefix(strings.TrimSpace(string(data)), "{") {
		ext = ".json"
	}
	if ext == ".json" {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config json: %w", err)
		}
	} else {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config yaml: %w", err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
