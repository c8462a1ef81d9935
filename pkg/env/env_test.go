package env

import "testing"

func TestChoice(t *testing.T) {
	const key = "DRAFTSYNC_TEST_CHOICE"

	t.Setenv(key, "")
	if got := Choice(key, "json", "json", "console"); got != "json" {
		t.Fatalf("unset value should fall back, got %q", got)
	}
	t.Setenv(key, " Console ")
	if got := Choice(key, "json", "json", "console"); got != "console" {
		t.Fatalf("expected console, got %q", got)
	}
	t.Setenv(key, "yaml")
	if got := Choice(key, "json", "json", "console"); got != "json" {
		t.Fatalf("unknown value should fall back, got %q", got)
	}
}
