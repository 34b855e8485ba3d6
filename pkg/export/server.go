// Package export serves a built tree over HTTP.
//
// The viewer server renders the session's current mapping as an SVG page
// whose nodes link back to toggle endpoints, so the tree can be explored
// from a browser. Every action mutates the session and rebuilds.
package export

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/kraitsura/refnet/pkg/contract"
	"github.com/kraitsura/refnet/pkg/model"
	"github.com/kraitsura/refnet/pkg/render"
	"github.com/kraitsura/refnet/pkg/tree"
)

// DefaultViewerPort is the default port for the viewer server.
const DefaultViewerPort = 9000

// ViewerPortRangeStart and ViewerPortRangeEnd bound the automatic port search.
const ViewerPortRangeStart = 9000
const ViewerPortRangeEnd = 9100

// ViewerServer serves one tree.Session.
type ViewerServer struct {
	session *tree.Session
	port    int
	server  *http.Server
	log     logrus.FieldLogger

	mu      sync.Mutex
	lastErr error
}

// NewViewerServer creates a server for session on port.
func NewViewerServer(session *tree.Session, port int, log logrus.FieldLogger) *ViewerServer {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &ViewerServer{
		session: session,
		port:    port,
		log:     log,
	}
}

// Handler returns the server's routes.
func (v *ViewerServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", v.pageHandler)
	mux.HandleFunc("GET /tree.svg", v.svgHandler)
	mux.HandleFunc("GET /tree.png", v.pngHandler)
	mux.HandleFunc("GET /tree.json", v.jsonHandler)
	mux.HandleFunc("GET /status", v.statusHandler)
	mux.HandleFunc("/toggle/{id}", v.toggleHandler)
	mux.HandleFunc("/expand-all", v.actionHandler(v.session.ExpandAll))
	mux.HandleFunc("/collapse-all", v.actionHandler(v.session.CollapseAll))
	mux.HandleFunc("/refresh", v.actionHandler(v.session.Refresh))
	mux.Handle("GET /metrics", promhttp.Handler())
	return noCacheMiddleware(mux)
}

// Start serves until the server is stopped.
func (v *ViewerServer) Start() error {
	v.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", v.port),
		Handler:           v.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	v.log.WithField("url", v.URL()).Info("viewer server running")
	return v.server.ListenAndServe()
}

// StartWithGracefulShutdown serves until ctx is done or the process is
// interrupted, then shuts down cleanly.
func (v *ViewerServer) StartWithGracefulShutdown(ctx context.Context, openBrowser bool) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errChan := make(chan error, 1)
	go func() {
		if err := v.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	if openBrowser {
		go func() {
			time.Sleep(500 * time.Millisecond)
			if err := OpenInBrowser(v.URL()); err != nil {
				v.log.WithError(err).Warnf("could not open browser, open %s manually", v.URL())
			}
		}()
	}

	select {
	case <-ctx.Done():
		v.log.Info("shutting down viewer server")
		return v.Stop()
	case err := <-errChan:
		return err
	}
}

// Stop gracefully stops the server.
func (v *ViewerServer) Stop() error {
	if v.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return v.server.Shutdown(ctx)
}

// Port returns the port the server listens on.
func (v *ViewerServer) Port() int {
	return v.port
}

// URL returns the full URL of the server.
func (v *ViewerServer) URL() string {
	return fmt.Sprintf("http://localhost:%d", v.port)
}

func (v *ViewerServer) setErr(err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.lastErr = err
}

func (v *ViewerServer) lastError() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.lastErr
}

func (v *ViewerServer) svgHandler(w http.ResponseWriter, r *http.Request) {
	res := v.session.Current()
	w.Header().Set("Content-Type", "image/svg+xml")
	renderer := render.SVGRenderer{
		Title:     treeTitle(v.session.Focus()),
		ToggleURL: func(id model.NodeID) string { return "/toggle/" + id.String() },
	}
	if err := renderer.Render(w, res.Mapping, res.FocusID); err != nil {
		v.log.WithError(err).Error("render svg")
	}
}

func (v *ViewerServer) pngHandler(w http.ResponseWriter, r *http.Request) {
	res := v.session.Current()
	w.Header().Set("Content-Type", "image/png")
	if err := (render.PNGRenderer{}).Render(w, res.Mapping, res.FocusID); err != nil {
		v.log.WithError(err).Error("render png")
	}
}

// TreeDocument is the JSON form of a build.
type TreeDocument struct {
	RootID  model.NodeID       `json:"root_id"`
	FocusID model.NodeID       `json:"focus_id"`
	Stats   tree.MappingStats  `json:"stats"`
	Build   tree.BuildStats    `json:"build"`
	Nodes   []*model.TreeNode  `json:"nodes"`
	Focus   *model.UserRecord  `json:"focus,omitempty"`
	Error   string             `json:"error,omitempty"`
	Kind    contract.ErrorKind `json:"error_kind,omitempty"`
}

func (v *ViewerServer) document() TreeDocument {
	res := v.session.Current()
	doc := TreeDocument{
		RootID:  res.RootID,
		FocusID: res.FocusID,
		Stats:   res.Mapping.Stats(),
		Build:   res.Stats,
		Nodes:   res.Mapping.LevelOrder(),
		Focus:   v.session.Focus(),
	}
	if err := v.lastError(); err != nil {
		doc.Error = err.Error()
		doc.Kind = contract.Classify(err)
	}
	return doc
}

func (v *ViewerServer) jsonHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, v.document())
}

// statusHandler returns the server status as JSON.
func (v *ViewerServer) statusHandler(w http.ResponseWriter, r *http.Request) {
	res := v.session.Current()
	stats := res.Mapping.Stats()
	cache := v.session.CacheStats()
	status := map[string]any{
		"status":       "running",
		"port":         v.port,
		"root_id":      res.RootID,
		"users":        stats.Users,
		"depth":        stats.Depth,
		"failed":       stats.Failed,
		"truncated":    res.Stats.Truncated,
		"expanded":     len(v.session.ExpandedIDs()),
		"cache":        cache,
		"build_millis": res.Stats.Duration.Milliseconds(),
	}
	if focus := v.session.Focus(); focus != nil {
		status["focus"] = focus.Address
		status["registered"] = focus.IsRegistered()
	}
	writeJSON(w, http.StatusOK, status)
}

func (v *ViewerServer) toggleHandler(w http.ResponseWriter, r *http.Request) {
	id, err := model.ParseNodeID(r.PathValue("id"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	v.respond(w, r, func(ctx context.Context) (*tree.Result, error) {
		return v.session.Toggle(ctx, id)
	})
}

func (v *ViewerServer) actionHandler(action func(context.Context) (*tree.Result, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v.respond(w, r, action)
	}
}

// respond runs an action and either redirects back to the page or, for
// clients asking for JSON, returns the resulting document.
func (v *ViewerServer) respond(w http.ResponseWriter, r *http.Request, action func(context.Context) (*tree.Result, error)) {
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		w.Header().Set("Allow", "GET, POST")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	_, err := action(r.Context())
	wantsJSON := r.Header.Get("Accept") == "application/json"
	switch {
	case errors.Is(err, tree.ErrSuperseded):
		// A newer request owns the session; its result is what the page shows.
		v.log.WithField("path", r.URL.Path).Debug("request superseded")
		if wantsJSON {
			writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
			return
		}
	case errors.Is(err, tree.ErrNoFocus):
		http.Error(w, err.Error(), http.StatusConflict)
		return
	case err != nil:
		v.setErr(err)
		v.log.WithError(err).WithField("path", r.URL.Path).Warn("tree action failed")
		if wantsJSON {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
	default:
		v.setErr(nil)
	}

	if wantsJSON {
		writeJSON(w, http.StatusOK, v.document())
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func treeTitle(focus *model.UserRecord) string {
	if focus == nil || !focus.IsRegistered() {
		return "Referral network"
	}
	return fmt.Sprintf("Referral network of user %d", focus.ID)
}

// noCacheMiddleware adds headers to prevent browser caching.
func noCacheMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate, max-age=0")
		w.Header().Set("Pragma", "no-cache")
		w.Header().Set("Expires", "0")

		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Accept")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// FindAvailablePort finds an available port in the given range.
func FindAvailablePort(start, end int) (int, error) {
	for port := start; port <= end; port++ {
		listener, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
		if err == nil {
			listener.Close()
			return port, nil
		}
	}
	return 0, fmt.Errorf("no available port in range %d-%d", start, end)
}

// ServerConfig configures Serve.
type ServerConfig struct {
	// Port to serve on (0 for auto-select)
	Port int

	// OpenBrowser determines whether to auto-open a browser
	OpenBrowser bool

	Logger logrus.FieldLogger
}

// DefaultServerConfig returns the defaults used by the serve command.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Port:        0, // Auto-select
		OpenBrowser: true,
	}
}

// Serve starts a viewer server for session and blocks until ctx is done or
// the process is interrupted.
func Serve(ctx context.Context, session *tree.Session, config ServerConfig) error {
	port := config.Port
	if port == 0 {
		var err error
		port, err = FindAvailablePort(ViewerPortRangeStart, ViewerPortRangeEnd)
		if err != nil {
			return fmt.Errorf("could not find available port: %w", err)
		}
	}
	server := NewViewerServer(session, port, config.Logger)
	return server.StartWithGracefulShutdown(ctx, config.OpenBrowser)
}
