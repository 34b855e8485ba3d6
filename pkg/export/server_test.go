package export

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"

	"github.com/kraitsura/refnet/pkg/contract"
	"github.com/kraitsura/refnet/pkg/loader"
	"github.com/kraitsura/refnet/pkg/model"
	"github.com/kraitsura/refnet/pkg/tree"
)

const focusAddr = "0x00000000000000000000000000000000000000aa"

func newTestServer(t *testing.T) (*ViewerServer, *httptest.Server) {
	t.Helper()
	f := loader.NewFixture()
	f.AddUser(model.UserRecord{Address: focusAddr, ID: 1, UplineID: 0, LeftCount: 2, RightCount: 1})
	f.Directs[1] = model.DirectLinks{LeftID: 2, RightID: 3}
	f.Directs[2] = model.DirectLinks{LeftID: 4, RightID: 5}
	f.Failing[3] = true

	logger, _ := test.NewNullLogger()
	session := tree.NewSession(contract.NewFixtureClient(f),
		tree.WithLogger(logger),
		tree.WithBuildOptions(tree.BuildOptions{Budget: 50}),
	)
	if _, err := session.Load(context.Background(), focusAddr); err != nil {
		t.Fatalf("Load: %v", err)
	}

	v := NewViewerServer(session, 0, logger)
	ts := httptest.NewServer(v.Handler())
	t.Cleanup(ts.Close)
	return v, ts
}

// noRedirect keeps 303 responses visible to the test.
var noRedirect = &http.Client{
	CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
}

func getJSON(t *testing.T, url string, out any) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET %s: status %d", url, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatalf("decode %s: %v", url, err)
	}
}

func TestViewerServer_Page(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if got := resp.Header.Get("Pragma"); got != "no-cache" {
		t.Errorf("Pragma = %q, want no-cache", got)
	}
	for _, want := range []string{"Referral network of user 1", "Users: 3", "<svg", "/toggle/1", "Miner rewards"} {
		if !strings.Contains(string(body), want) {
			t.Errorf("page missing %q", want)
		}
	}
}

func TestViewerServer_TreeJSON(t *testing.T) {
	_, ts := newTestServer(t)

	var doc TreeDocument
	getJSON(t, ts.URL+"/tree.json", &doc)
	if doc.RootID != 1 || len(doc.Nodes) != 3 {
		t.Fatalf("doc = root %d with %d nodes", doc.RootID, len(doc.Nodes))
	}
	if doc.Nodes[0].ID != 1 || doc.Nodes[1].ID != 2 || doc.Nodes[2].ID != 3 {
		t.Errorf("nodes not in level order: %d %d %d", doc.Nodes[0].ID, doc.Nodes[1].ID, doc.Nodes[2].ID)
	}
	if !doc.Nodes[2].FetchFailed {
		t.Error("node 3 should be marked failed")
	}
	if doc.Stats.Failed != 1 {
		t.Errorf("Stats.Failed = %d, want 1", doc.Stats.Failed)
	}
}

func TestViewerServer_ToggleRedirects(t *testing.T) {
	v, ts := newTestServer(t)

	resp, err := noRedirect.Post(ts.URL+"/toggle/2", "", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusSeeOther {
		t.Errorf("status = %d, want 303", resp.StatusCode)
	}
	if loc := resp.Header.Get("Location"); loc != "/" {
		t.Errorf("Location = %q, want /", loc)
	}
	if got := len(v.session.Current().Mapping); got != 5 {
		t.Errorf("mapping has %d nodes after toggle, want 5", got)
	}
}

func TestViewerServer_ActionsAsJSON(t *testing.T) {
	_, ts := newTestServer(t)

	do := func(path string) TreeDocument {
		t.Helper()
		req, _ := http.NewRequest(http.MethodPost, ts.URL+path, nil)
		req.Header.Set("Accept", "application/json")
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatal(err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("%s: status %d", path, resp.StatusCode)
		}
		var doc TreeDocument
		if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
			t.Fatal(err)
		}
		return doc
	}

	if doc := do("/expand-all"); len(doc.Nodes) != 5 {
		t.Errorf("expand-all: %d nodes, want 5", len(doc.Nodes))
	}
	if doc := do("/collapse-all"); len(doc.Nodes) != 3 {
		t.Errorf("collapse-all: %d nodes, want 3", len(doc.Nodes))
	}
	if doc := do("/refresh"); doc.Build.RemoteCalls != 3 {
		t.Errorf("refresh: %d remote calls, want 3", doc.Build.RemoteCalls)
	}
}

func TestViewerServer_BadRequests(t *testing.T) {
	_, ts := newTestServer(t)

	cases := []struct {
		method string
		path   string
		want   int
	}{
		{http.MethodPost, "/toggle/abc", http.StatusBadRequest},
		{http.MethodPost, "/toggle/0", http.StatusBadRequest},
		{http.MethodDelete, "/refresh", http.StatusMethodNotAllowed},
		{http.MethodGet, "/nope", http.StatusNotFound},
	}
	for _, tc := range cases {
		req, _ := http.NewRequest(tc.method, ts.URL+tc.path, nil)
		resp, err := noRedirect.Do(req)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != tc.want {
			t.Errorf("%s %s = %d, want %d", tc.method, tc.path, resp.StatusCode, tc.want)
		}
	}
}

func TestViewerServer_StatusSVGAndMetrics(t *testing.T) {
	_, ts := newTestServer(t)

	var status map[string]any
	getJSON(t, ts.URL+"/status", &status)
	if status["status"] != "running" || status["users"] != float64(3) {
		t.Errorf("status = %v", status)
	}

	for path, contentType := range map[string]string{
		"/tree.svg": "image/svg+xml",
		"/tree.png": "image/png",
	} {
		resp, err := http.Get(ts.URL + path)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if got := resp.Header.Get("Content-Type"); got != contentType {
			t.Errorf("%s Content-Type = %q, want %q", path, got, contentType)
		}
	}

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "refnet_tree_builds_total") {
		t.Error("metrics should include refnet_tree_builds_total")
	}
}

func TestNoCacheMiddleware_OPTIONS(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("Inner handler should not be called for OPTIONS")
	})

	rec := httptest.NewRecorder()
	noCacheMiddleware(inner).ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("Expected status 200 for OPTIONS, got %d", rec.Code)
	}
	if rec.Header().Get("Expires") != "0" {
		t.Errorf("Expected Expires: 0, got %s", rec.Header().Get("Expires"))
	}
}

func TestFindAvailablePort(t *testing.T) {
	port, err := FindAvailablePort(19000, 19100)
	if err != nil {
		t.Errorf("FindAvailablePort failed: %v", err)
	}
	if port < 19000 || port > 19100 {
		t.Errorf("Port %d is outside expected range 19000-19100", port)
	}
}

func TestViewerServer_URL(t *testing.T) {
	v := NewViewerServer(nil, 9002, nil)
	if v.URL() != "http://localhost:9002" || v.Port() != 9002 {
		t.Errorf("URL() = %s, Port() = %d", v.URL(), v.Port())
	}
}
