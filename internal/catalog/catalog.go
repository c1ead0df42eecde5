// Package catalog lists the objects available in the remote store and
// classifies them into artifacts and receipts.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"ceremony/internal/artifact"
	"ceremony/internal/logging"
)

// Lister is the part of the remote store the catalog needs.
type Lister interface {
	List(ctx context.Context, prefix string) ([]string, error)
}

// Entry is one well-formed remote object.
type Entry struct {
	Key  string
	Name artifact.Name
}

// Warning is a key skipped or flagged during classification.
type Warning struct {
	Key    string
	Reason string
}

func (w Warning) String() string { return fmt.Sprintf("%s: %s", w.Key, w.Reason) }

// Listing is the classified content of the remote store.
type Listing struct {
	Artifacts []Entry
	Receipts  []Entry
	Warnings  []Warning
}

// Len returns the number of well-formed entries.
func (l *Listing) Len() int { return len(l.Artifacts) + len(l.Receipts) }

// Catalog lists and classifies remote objects.
type Catalog struct {
	lister Lister
	naming artifact.Naming
	kinds  map[string]bool
	logger *slog.Logger
}

// New returns a catalog over lister. kinds is the set of artifact kinds
// expected in this phase; artifacts of any other kind are kept but flagged.
func New(lister Lister, naming artifact.Naming, kinds []string, logger *slog.Logger) *Catalog {
	if logger == nil {
		logger = logging.Discard()
	}
	set := make(map[string]bool, len(kinds))
	for _, k := range kinds {
		set[k] = true
	}
	return &Catalog{lister: lister, naming: naming, kinds: set, logger: logger}
}

// List fetches keys under prefix in a single attempt and classifies them.
// A listing failure is returned as is; malformed keys only produce warnings.
func (c *Catalog) List(ctx context.Context, prefix string) (*Listing, error) {
	keys, err := c.lister.List(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("list remote objects: %w", err)
	}
	l := Classify(keys, c.naming, c.kinds)
	for _, w := range l.Warnings {
		c.logger.WarnContext(ctx, "skipping remote object", "key", w.Key, "reason", w.Reason)
	}
	c.logger.InfoContext(ctx, "remote catalog",
		"artifacts", len(l.Artifacts), "receipts", len(l.Receipts), "warnings", len(l.Warnings))
	return l, nil
}

// Classify parses keys into a Listing sorted by key. A nil kinds set
// disables the unknown-kind check.
func Classify(keys []string, naming artifact.Naming, kinds map[string]bool) *Listing {
	sorted := append([]string(nil), keys...)
	sort.Strings(sorted)

	l := &Listing{}
	seen := make(map[string]string, len(sorted))
	for _, key := range sorted {
		name, err := naming.Parse(key)
		if err != nil {
			reason := err.Error()
			var pe *artifact.ParseError
			if errors.As(err, &pe) {
				reason = pe.Reason
			}
			l.Warnings = append(l.Warnings, Warning{Key: key, Reason: reason})
			continue
		}
		// Two keys in different prefixes can name the same file.
		file := naming.File(name)
		if prev, dup := seen[file]; dup {
			l.Warnings = append(l.Warnings, Warning{Key: key, Reason: "duplicate of " + prev})
			continue
		}
		seen[file] = key

		e := Entry{Key: key, Name: name}
		switch name.Class {
		case artifact.ClassReceipt:
			l.Receipts = append(l.Receipts, e)
		default:
			if len(kinds) > 0 && !kinds[name.Kind] {
				l.Warnings = append(l.Warnings, Warning{Key: key, Reason: "unknown artifact kind " + name.Kind})
			}
			l.Artifacts = append(l.Artifacts, e)
		}
	}
	return l
}
