package modelid

import "testing"

func TestParseSplitsOnFirstSlash(t *testing.T) {
	cases := []struct {
		model    string
		provider string
		upstream string
	}{
		{"openai/gpt-4o", "openai", "gpt-4o"},
		{"anthropic/claude-3/opus", "anthropic", "claude-3/opus"},
		{"gpt-4o", "", "gpt-4o"},
		{"", "", ""},
	}
	for _, c := range cases {
		got := Parse(c.model)
		if got.Provider != c.provider || got.UpstreamName != c.upstream {
			t.Fatalf("Parse(%q) = %+v, want provider=%q upstream=%q", c.model, got, c.provider, c.upstream)
		}
	}
}

func TestParseRoundTrip(t *testing.T) {
	p, m := "openai", "gpt-4o"
	got := Parse(p + "/" + m)
	if got.Provider != p || got.UpstreamName != m {
		t.Fatalf("round trip failed: %+v", got)
	}
}

func TestRedirectApplyIdempotent(t *testing.T) {
	r := NewRedirects(map[string]string{"gpt-4": "gpt-4o", "old-alias": "gpt-4"})
	once := r.Apply("gpt-4")
	twice := r.Apply(once)
	if once != twice {
		t.Fatalf("redirect apply not idempotent: %q then %q", once, twice)
	}
	if r.Apply("untouched") != "untouched" {
		t.Fatalf("unmatched model must pass through unchanged")
	}
}

func TestRedirectReload(t *testing.T) {
	r := NewRedirects(map[string]string{"a": "b"})
	if r.Apply("a") != "b" {
		t.Fatalf("initial table not applied")
	}
	r.Reload(map[string]string{"a": "c"})
	if r.Apply("a") != "c" {
		t.Fatalf("reload did not take effect")
	}
}
