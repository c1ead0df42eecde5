// Package artifact parses and formats the object names exchanged between
// ceremony participants.
//
// Artifacts are named {kind}_{contributor}_contribution_{number}{ext} and
// receipts {contributor}_CONTRIBUTION_{number}{ext}. Contributor names never
// contain underscores; kinds may.
package artifact

import (
	"fmt"
	"path"
	"strconv"
	"strings"
)

// Class distinguishes verified artifacts from archived receipts.
type Class int

const (
	ClassArtifact Class = iota
	ClassReceipt
)

func (c Class) String() string {
	if c == ClassReceipt {
		return "receipt"
	}
	return "artifact"
}

const (
	DefaultArtifactExt = ".ph2"
	DefaultReceiptExt  = ".txt"

	artifactMarker = "contribution"
	receiptMarker  = "CONTRIBUTION"
)

// Identity names one contribution: its sequence number and contributor.
type Identity struct {
	Number      int
	Contributor string
}

// String returns the zero-padded directory form, e.g. "0003_alice".
func (id Identity) String() string {
	return fmt.Sprintf("%04d_%s", id.Number, id.Contributor)
}

// Name is a parsed object name.
type Name struct {
	Class       Class
	Kind        string // empty for receipts
	Contributor string
	Number      int
}

// Identity returns the contribution the object belongs to.
func (n Name) Identity() Identity {
	return Identity{Number: n.Number, Contributor: n.Contributor}
}

// ParseError reports a key that does not follow the naming convention.
type ParseError struct {
	Key    string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("malformed object key %q: %s", e.Key, e.Reason)
}

// Naming holds the file extensions in use for one ceremony phase.
type Naming struct {
	ArtifactExt string
	ReceiptExt  string
}

// DefaultNaming returns the phase-2 extensions.
func DefaultNaming() Naming {
	return Naming{ArtifactExt: DefaultArtifactExt, ReceiptExt: DefaultReceiptExt}
}

// Parse decodes an object key. Leading prefix directories are ignored.
func (n Naming) Parse(key string) (Name, error) {
	base := path.Base(key)
	var class Class
	var stem string
	switch {
	case n.ArtifactExt != "" && strings.HasSuffix(base, n.ArtifactExt):
		class = ClassArtifact
		stem = strings.TrimSuffix(base, n.ArtifactExt)
	case n.ReceiptExt != "" && strings.HasSuffix(base, n.ReceiptExt):
		class = ClassReceipt
		stem = strings.TrimSuffix(base, n.ReceiptExt)
	default:
		return Name{}, &ParseError{Key: key, Reason: "unknown extension"}
	}

	parts := strings.Split(stem, "_")
	if len(parts) < 3 {
		return Name{}, &ParseError{Key: key, Reason: "too few name segments"}
	}
	last := len(parts) - 1

	number, err := parseNumber(parts[last])
	if err != nil {
		return Name{}, &ParseError{Key: key, Reason: err.Error()}
	}
	marker := parts[last-1]
	contributor := parts[last-2]
	if contributor == "" {
		return Name{}, &ParseError{Key: key, Reason: "empty contributor"}
	}

	name := Name{Class: class, Contributor: contributor, Number: number}
	switch class {
	case ClassArtifact:
		if marker != artifactMarker {
			return Name{}, &ParseError{Key: key, Reason: "missing contribution marker"}
		}
		name.Kind = strings.Join(parts[:last-2], "_")
		if name.Kind == "" {
			return Name{}, &ParseError{Key: key, Reason: "empty artifact kind"}
		}
	case ClassReceipt:
		if !strings.EqualFold(marker, receiptMarker) {
			return Name{}, &ParseError{Key: key, Reason: "missing contribution marker"}
		}
		if last != 2 {
			return Name{}, &ParseError{Key: key, Reason: "unexpected segments before contributor"}
		}
	}
	return name, nil
}

// File returns the canonical file name for n.
func (n Naming) File(name Name) string {
	if name.Class == ClassReceipt {
		return n.ReceiptFile(name.Identity())
	}
	return n.ArtifactFile(name.Kind, name.Identity())
}

// ArtifactFile returns the file name of one artifact kind of a contribution.
func (n Naming) ArtifactFile(kind string, id Identity) string {
	return fmt.Sprintf("%s_%s_%s_%d%s", kind, id.Contributor, artifactMarker, id.Number, n.ArtifactExt)
}

// ReceiptFile returns the file name of a contribution receipt.
func (n Naming) ReceiptFile(id Identity) string {
	return fmt.Sprintf("%s_%s_%d%s", id.Contributor, receiptMarker, id.Number, n.ReceiptExt)
}

// ValidContributor reports whether s can be embedded in object names.
func ValidContributor(s string) bool {
	return s != "" && !strings.ContainsAny(s, "_/\\ ")
}

func parseNumber(s string) (int, error) {
	if s == "" {
		return 0, fmt.Errorf("empty contribution number")
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, fmt.Errorf("contribution number %q is not a non-negative integer", s)
		}
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("contribution number %q: %w", s, err)
	}
	return n, nil
}
