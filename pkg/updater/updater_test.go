package updater

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func releaseServer(t *testing.T, status int, body string) *Checker {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return &Checker{URL: srv.URL, Client: srv.Client()}
}

func TestCheckForUpdates(t *testing.T) {
	body := `{"tag_name":"v0.10.0","html_url":"https://example.com/r/v0.10.0"}`
	tests := []struct {
		current string
		newer   bool
	}{
		{"v0.2.0", true},  // 0.10 > 0.2 numerically
		{"0.9.9", true},
		{"v0.10.0", false},
		{"v1.0.0", false},
		{"dev", false},
	}
	c := releaseServer(t, http.StatusOK, body)
	for _, tt := range tests {
		rel, err := c.CheckForUpdates(context.Background(), tt.current)
		if err != nil {
			t.Fatalf("%s: %v", tt.current, err)
		}
		if (rel != nil) != tt.newer {
			t.Errorf("%s: got release %v, want newer=%v", tt.current, rel, tt.newer)
		}
		if rel != nil && rel.HTMLURL != "https://example.com/r/v0.10.0" {
			t.Errorf("html url = %q", rel.HTMLURL)
		}
	}
}

func TestCheckForUpdatesErrors(t *testing.T) {
	c := releaseServer(t, http.StatusForbidden, `{"message":"rate limited"}`)
	if _, err := c.CheckForUpdates(context.Background(), "v0.1.0"); err == nil {
		t.Error("expected an error for a non-200 response")
	}

	c = releaseServer(t, http.StatusOK, `{"tag_name":"nightly"}`)
	if _, err := c.CheckForUpdates(context.Background(), "v0.1.0"); err == nil {
		t.Error("expected an error for a non-semver tag")
	}
}
