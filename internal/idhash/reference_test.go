package idhash

import (
	"strings"
	"testing"
)

func TestReferences(t *testing.T) {
	tests := []struct {
		name   string
		fn     func(a, b string) string
		prefix string
	}{
		{name: "matching", fn: MatchingReference, prefix: "mb:"},
		{name: "career", fn: CareerReference, prefix: "cr:"},
		{name: "investment", fn: InvestmentReference, prefix: "inv:"},
		{name: "referral", fn: ReferralReference, prefix: "ref:"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.fn("participant-1", "2024-01-01")

			if !strings.HasPrefix(got, tt.prefix) {
				t.Errorf("reference %q missing prefix %q", got, tt.prefix)
			}
			if len(got) != len(tt.prefix)+64 {
				t.Errorf("reference length = %d, want %d", len(got), len(tt.prefix)+64)
			}

			// Same inputs, same output
			if again := tt.fn("participant-1", "2024-01-01"); again != got {
				t.Errorf("not deterministic: %s != %s", got, again)
			}
			if other := tt.fn("participant-1", "2024-01-02"); other == got {
				t.Error("different inputs produced the same reference")
			}
		})
	}
}

func TestReferences_SeparatorMatters(t *testing.T) {
	a := MatchingReference("ab", "c")
	b := MatchingReference("a", "bc")
	if a == b {
		t.Error("participant/cycle boundary must change the hash")
	}
}

func TestShortReference(t *testing.T) {
	ref := CareerReference("p", "gold")
	short := ShortReference(ref)
	if len(short) != len("cr:")+12 {
		t.Errorf("ShortReference(%q) = %q", ref, short)
	}
	if ShortReference("plain") != "plain" {
		t.Error("references without a prefix are returned unchanged")
	}
}
