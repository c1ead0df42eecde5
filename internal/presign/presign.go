// Package presign issues the time-limited URLs a participant needs to take
// their turn: download the previous contribution, upload their own.
package presign

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"ceremony/internal/artifact"
	"ceremony/internal/remote"
)

// presignWorkers bounds concurrent signing calls.
const presignWorkers = 8

// Request is one object the next participant must read or write.
type Request struct {
	Key    string
	Method remote.Method
}

// URL is a signed Request.
type URL struct {
	Request
	URL string
}

// Plan lists, in order, a GET for every kind of the last contribution, a PUT
// for every kind of the next one and a PUT for the next receipt.
func Plan(naming artifact.Naming, kinds []string, last, next artifact.Identity) ([]Request, error) {
	if next.Number != last.Number+1 {
		return nil, fmt.Errorf("next contribution %04d does not follow %04d", next.Number, last.Number)
	}
	for _, id := range []artifact.Identity{last, next} {
		if !artifact.ValidContributor(id.Contributor) {
			return nil, fmt.Errorf("invalid contributor name %q", id.Contributor)
		}
	}
	if len(kinds) == 0 {
		return nil, errors.New("no artifact kinds configured")
	}
	reqs := make([]Request, 0, 2*len(kinds)+1)
	for _, k := range kinds {
		reqs = append(reqs, Request{Key: naming.ArtifactFile(k, last), Method: remote.MethodGet})
	}
	for _, k := range kinds {
		reqs = append(reqs, Request{Key: naming.ArtifactFile(k, next), Method: remote.MethodPut})
	}
	reqs = append(reqs, Request{Key: naming.ReceiptFile(next), Method: remote.MethodPut})
	return reqs, nil
}

// Generate signs every request. Output order matches reqs. The first
// failure cancels the rest and is returned.
func Generate(ctx context.Context, p remote.Presigner, reqs []Request, expiry time.Duration) ([]URL, error) {
	out := make([]URL, len(reqs))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(presignWorkers)
	for i, r := range reqs {
		g.Go(func() error {
			u, err := p.Presign(ctx, r.Key, expiry, r.Method)
			if err != nil {
				return fmt.Errorf("presign %s %s: %w", r.Method, r.Key, err)
			}
			out[i] = URL{Request: r, URL: u}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// ContributeCommand renders the contribute.sh line handed to the participant.
func ContributeCommand(next artifact.Identity, urls []URL) string {
	var b strings.Builder
	fmt.Fprintf(&b, "./contribute.sh %d %q", next.Number, next.Contributor)
	for _, u := range urls {
		fmt.Fprintf(&b, " %q", u.URL)
	}
	return b.String()
}
