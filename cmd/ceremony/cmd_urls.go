package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"ceremony/internal/artifact"
	"ceremony/internal/presign"
	"ceremony/internal/remote"
)

var urlsFlags struct {
	remote     remoteFlags
	user       string
	lastNumber int
	lastUser   string
	expiry     time.Duration
}

var urlsCmd = &cobra.Command{
	Use:   "urls",
	Short: "Print presigned URLs for the next participant",
	Long: `Urls signs a GET for every artifact of the last contribution and a PUT for
every artifact and the receipt of the next one, then prints the
contribute.sh command line to hand to the participant.`,
	RunE: runURLs,
}

func init() {
	f := urlsCmd.Flags()
	urlsFlags.remote.register(f)
	f.StringVar(&urlsFlags.user, "user", "", "Next participant's name (required)")
	f.IntVar(&urlsFlags.lastNumber, "last-number", 0, "Number of the last accepted contribution (required)")
	f.StringVar(&urlsFlags.lastUser, "last-user", "", "Contributor of the last accepted contribution (required)")
	f.DurationVar(&urlsFlags.expiry, "expiry", 0, "URL lifetime (default from config)")

	_ = urlsCmd.MarkFlagRequired("user")
	_ = urlsCmd.MarkFlagRequired("last-number")
	_ = urlsCmd.MarkFlagRequired("last-user")
}

func runURLs(cmd *cobra.Command, _ []string) error {
	urlsFlags.remote.apply(cfg)
	expiry := cfg.PresignExpiry()
	if urlsFlags.expiry > 0 {
		expiry = urlsFlags.expiry
	}
	last := artifact.Identity{Number: urlsFlags.lastNumber, Contributor: urlsFlags.lastUser}
	next := artifact.Identity{Number: urlsFlags.lastNumber + 1, Contributor: urlsFlags.user}
	reqs, err := presign.Plan(cfg.Naming(), cfg.Kinds, last, next)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	st, err := openS3(ctx, cfg)
	if err != nil {
		return err
	}
	urls, err := presign.Generate(ctx, st, reqs, expiry)
	if err != nil {
		return err
	}
	printURLs(cmd, last, next, urls, expiry)
	return nil
}

func printURLs(cmd *cobra.Command, last, next artifact.Identity, urls []presign.URL, expiry time.Duration) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Download %s, upload %s (valid for %s)\n\n", last, next, expiry)
	for _, u := range urls {
		verb := "download"
		if u.Method == remote.MethodPut {
			verb = "upload"
		}
		fmt.Fprintf(out, "%-8s %s\n", verb, u.Key)
	}
	fmt.Fprintf(out, "\nCommand for %s:\n%s\n", next.Contributor, presign.ContributeCommand(next, urls))
}
