package service

import (
	"testing"
	"time"
)

func TestStartAnchorRoundTrip(t *testing.T) {
	started := time.Date(2026, 3, 9, 8, 0, 0, 123456789, time.UTC)

	got, err := parseStartAnchor(formatStartAnchor(started))
	if err != nil {
		t.Fatalf("parseStartAnchor: %v", err)
	}
	if !got.Equal(started) {
		t.Fatalf("anchor drifted: got %v, want %v", got, started)
	}
}

func TestParseStartAnchorRejectsMalformed(t *testing.T) {
	for _, raw := range []string{"", "1772438400", "not-a-time"} {
		if _, err := parseStartAnchor(raw); err == nil {
			t.Fatalf("%q must not parse as an anchor", raw)
		}
	}
}
