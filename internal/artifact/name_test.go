package artifact

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParse(t *testing.T) {
	n := DefaultNaming()
	tests := []struct {
		key  string
		want Name
	}{
		{
			key:  "inclusion_26_1_alice_contribution_3.ph2",
			want: Name{Class: ClassArtifact, Kind: "inclusion_26_1", Contributor: "alice", Number: 3},
		},
		{
			key:  "non-inclusion_26_8_swen_contribution_0.ph2",
			want: Name{Class: ClassArtifact, Kind: "non-inclusion_26_8", Contributor: "swen", Number: 0},
		},
		{
			key:  "phase2/combined_26_4_8_bob_contribution_12.ph2",
			want: Name{Class: ClassArtifact, Kind: "combined_26_4_8", Contributor: "bob", Number: 12},
		},
		{
			key:  "carol_CONTRIBUTION_7.txt",
			want: Name{Class: ClassReceipt, Contributor: "carol", Number: 7},
		},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			got, err := n.Parse(tt.key)
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Parse mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParse_Malformed(t *testing.T) {
	n := DefaultNaming()
	keys := []string{
		"README.md",
		"alice_contribution_3.ph2",
		"inclusion_26_1_alice_contrib_3.ph2",
		"inclusion_26_1_alice_contribution_x.ph2",
		"inclusion_26_1_alice_contribution_-1.ph2",
		"inclusion_26_1__contribution_3.ph2",
		"extra_carol_CONTRIBUTION_7.txt",
		"carol_RECEIPT_7.txt",
		"inclusion_26_1_alice_contribution_.ph2",
	}
	for _, key := range keys {
		t.Run(key, func(t *testing.T) {
			_, err := n.Parse(key)
			var pe *ParseError
			if !errors.As(err, &pe) {
				t.Fatalf("expected *ParseError, got %v", err)
			}
			if pe.Key != key {
				t.Errorf("ParseError.Key = %q, want %q", pe.Key, key)
			}
		})
	}
}

func TestFile_RoundTrip(t *testing.T) {
	n := DefaultNaming()
	for _, name := range []Name{
		{Class: ClassArtifact, Kind: "combined_26_1_1", Contributor: "dave", Number: 41},
		{Class: ClassReceipt, Contributor: "dave", Number: 41},
	} {
		got, err := n.Parse(n.File(name))
		if err != nil {
			t.Fatalf("Parse(%q): %v", n.File(name), err)
		}
		if got != name {
			t.Errorf("round trip of %+v produced %+v", name, got)
		}
	}
}

func TestIdentity_String(t *testing.T) {
	if got := (Identity{Number: 7, Contributor: "erin"}).String(); got != "0007_erin" {
		t.Errorf("got %q", got)
	}
	if got := (Identity{Number: 12345, Contributor: "f"}).String(); got != "12345_f" {
		t.Errorf("got %q", got)
	}
}

func TestValidContributor(t *testing.T) {
	for s, want := range map[string]bool{
		"alice":     true,
		"light-dev": true,
		"":          false,
		"a_b":       false,
		"a/b":       false,
		"a b":       false,
	} {
		if got := ValidContributor(s); got != want {
			t.Errorf("ValidContributor(%q) = %v, want %v", s, got, want)
		}
	}
}

func TestDefaultKinds_Copy(t *testing.T) {
	k := DefaultKinds()
	if len(k) != 30 {
		t.Fatalf("want 30 phase-2 kinds, got %d", len(k))
	}
	k[0] = "mutated"
	if Phase2Kinds[0] == "mutated" {
		t.Error("DefaultKinds must return a copy")
	}
}
