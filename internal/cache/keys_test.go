package cache

import (
	"net/url"
	"strings"
	"testing"
	"time"
)

func TestKey(t *testing.T) {
	tests := []struct {
		name      string
		namespace string
		params    url.Values
		want      string
	}{
		{"no params", "documents", nil, "documents"},
		{"single param", "search", url.Values{"q": {"care"}}, "search:q=care"},
		{"sorted names", "search", url.Values{"status": {"draft"}, "q": {"care"}}, "search:q=care&status=draft"},
		{"sorted values", "search", url.Values{"tag": {"b", "a"}}, "search:tag=a&tag=b"},
		{"encoded", "search", url.Values{"q": {"home care"}}, "search:q=home+care"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Key(tt.namespace, tt.params); got != tt.want {
				t.Errorf("Key() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestKey_DoesNotMutateParams(t *testing.T) {
	params := url.Values{"tag": {"b", "a"}}
	_ = Key("ns", params)
	if params["tag"][0] != "b" {
		t.Errorf("Key reordered caller's values: %v", params["tag"])
	}
}

func TestKey_LongParamsAreDigested(t *testing.T) {
	long := url.Values{"text": {strings.Repeat("tender ", 100)}}
	got := Key("assist", long)

	if !strings.HasPrefix(got, "assist:") {
		t.Fatalf("expected namespace prefix, got %q", got)
	}
	if len(got) != len("assist:")+16 {
		t.Errorf("expected 16 hex digit digest, got %q", got)
	}
	if got != Key("assist", long) {
		t.Error("digest must be deterministic")
	}
	other := url.Values{"text": {strings.Repeat("tender ", 101)}}
	if got == Key("assist", other) {
		t.Error("different params should give different digests")
	}
}

func TestPresetTTL(t *testing.T) {
	tests := map[string]time.Duration{
		"realtime":  30 * time.Second,
		"session":   15 * time.Minute,
		"research":  time.Hour,
		"documents": 24 * time.Hour,
		"static":    7 * 24 * time.Hour,
	}
	for name, want := range tests {
		got, ok := PresetTTL(name)
		if !ok || got != want {
			t.Errorf("PresetTTL(%q) = %v, %v; want %v, true", name, got, ok, want)
		}
	}
	if _, ok := PresetTTL("forever"); ok {
		t.Error("unknown preset should not resolve")
	}
}

func TestDocumentTag(t *testing.T) {
	if got := DocumentTag("abc"); got != "document_abc" {
		t.Errorf("DocumentTag() = %q", got)
	}
}
