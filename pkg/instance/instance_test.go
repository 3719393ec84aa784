package instance

import (
	"os"
	"testing"
)

func TestGetIDPrefersExplicitID(t *testing.T) {
	t.Setenv(envInstanceID, " publisher-7 ")
	if got := GetID("outbox-publisher"); got != "publisher-7" {
		t.Fatalf("unexpected id %q", got)
	}
}

func TestGetIDFallsBackToHostname(t *testing.T) {
	t.Setenv(envInstanceID, "")
	host, err := os.Hostname()
	if err != nil || host == "" {
		t.Skip("hostname unavailable")
	}
	if got := GetID("api"); got != host {
		t.Fatalf("expected hostname %q, got %q", host, got)
	}
}
