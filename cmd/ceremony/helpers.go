package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/pflag"

	"ceremony/internal/config"
	"ceremony/internal/ledger"
	"ceremony/internal/logging"
	"ceremony/internal/remote"
)

// remoteFlags override the remote section of the config file.
type remoteFlags struct {
	bucket   string
	region   string
	prefix   string
	endpoint string
	profile  string
}

func (r *remoteFlags) register(f *pflag.FlagSet) {
	f.StringVar(&r.bucket, "bucket", "", "S3 bucket holding the contributions")
	f.StringVar(&r.region, "region", "", "AWS region of the bucket")
	f.StringVar(&r.prefix, "prefix", "", "Only list keys under this prefix")
	f.StringVar(&r.endpoint, "endpoint", "", "S3-compatible endpoint URL (path-style addressing)")
	f.StringVar(&r.profile, "profile", "", "AWS shared config profile")
}

func (r *remoteFlags) apply(c *config.Config) {
	for dst, src := range map[*string]string{
		&c.Remote.Bucket:   r.bucket,
		&c.Remote.Region:   r.region,
		&c.Remote.Prefix:   r.prefix,
		&c.Remote.Endpoint: r.endpoint,
		&c.Remote.Profile:  r.profile,
	} {
		if src != "" {
			*dst = src
		}
	}
}

func openS3(ctx context.Context, c *config.Config) (*remote.S3, error) {
	if c.Remote.Bucket == "" || c.Remote.Region == "" {
		return nil, errors.New("--bucket and --region are required (or set remote.bucket and remote.region in the config)")
	}
	opts := []remote.Option{remote.WithLogger(logging.New("remote"))}
	if c.Remote.Endpoint != "" {
		opts = append(opts, remote.WithEndpoint(c.Remote.Endpoint))
	}
	if c.Remote.Profile != "" {
		opts = append(opts, remote.WithProfile(c.Remote.Profile))
	}
	st, err := remote.NewS3(ctx, c.Remote.Bucket, c.Remote.Region, opts...)
	if err != nil {
		return nil, fmt.Errorf("open bucket %s: %w", c.Remote.Bucket, err)
	}
	return st, nil
}

// openLedger returns nil when the ledger is disabled.
func openLedger(c *config.Config, disabled bool) (ledger.Ledger, error) {
	if disabled || c.LedgerPath == "" {
		return nil, nil
	}
	l, err := ledger.Open(c.LedgerPath)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	return l, nil
}
