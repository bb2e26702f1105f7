package ton

import (
	"strings"
	"testing"
)

const rawHash = "abcdef0123456789abcdef0123456789abcdef0123456789abcdef0123456789"

func TestParseRawAddress(t *testing.T) {
	tests := []struct {
		input string
		wc    int32
		valid bool
	}{
		{"0:" + rawHash, 0, true},
		{"-1:" + rawHash, -1, true},
		{"invalid", 0, false},
		{"0:short", 0, false},
		{"x:" + rawHash, 0, false},
		{"0:" + strings.Repeat("zz", 32), 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			wc, hash, err := ParseRawAddress(tt.input)
			if !tt.valid {
				if err == nil {
					t.Fatal("expected error for invalid address")
				}
				return
			}
			if err != nil {
				t.Fatalf("expected valid, got error: %v", err)
			}
			if wc != tt.wc {
				t.Errorf("workchain = %d, want %d", wc, tt.wc)
			}
			if len(hash) != 32 {
				t.Errorf("hash len = %d, want 32", len(hash))
			}
		})
	}
}

func TestNormalizeAddress(t *testing.T) {
	raw := "0:" + rawHash

	got, err := NormalizeAddress("  0:" + strings.ToUpper(rawHash) + " ")
	if err != nil {
		t.Fatal(err)
	}
	if got != raw {
		t.Errorf("NormalizeAddress(upper) = %q, want %q", got, raw)
	}

	for _, testnet := range []bool{false, true} {
		friendly := Friendly(raw, testnet)
		if friendly == raw {
			t.Fatalf("Friendly(%q) did not convert", raw)
		}
		back, err := NormalizeAddress(friendly)
		if err != nil {
			t.Fatalf("NormalizeAddress(%q): %v", friendly, err)
		}
		if back != raw {
			t.Errorf("round trip = %q, want %q", back, raw)
		}
	}

	if _, err := NormalizeAddress("not-an-address"); err == nil {
		t.Error("expected error for garbage input")
	}
}

func TestFriendlyKeepsUnparseable(t *testing.T) {
	if got := Friendly("nope", false); got != "nope" {
		t.Errorf("Friendly(nope) = %q", got)
	}
}
