package journal

import (
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/kraitsura/refnet/pkg/model"
	"github.com/kraitsura/refnet/pkg/tree"
)

// Recorder journals the builds a tree.Session accepts. A load or switch
// starts a new viewer session; every other build is appended to the current
// one. Journal failures are logged and never reach the viewer.
type Recorder struct {
	db    *DB
	log   logrus.FieldLogger
	focus func() *model.UserRecord

	mu      sync.Mutex
	session *model.ViewerSession
}

// NewRecorder creates a recorder writing to db.
func NewRecorder(db *DB, log logrus.FieldLogger) *Recorder {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Recorder{db: db, log: log}
}

// Track sets where the recorder reads the focus address from, usually
// (*tree.Session).Focus.
func (r *Recorder) Track(focus func() *model.UserRecord) {
	r.mu.Lock()
	r.focus = focus
	r.mu.Unlock()
}

// Hook returns r.Observe as a tree.BuildHook.
func (r *Recorder) Hook() tree.BuildHook {
	return r.Observe
}

// Observe records one accepted build.
func (r *Recorder) Observe(trigger string, res *tree.Result) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.session == nil || trigger == model.TriggerLoad || trigger == model.TriggerSwitch || res.RootID != r.session.RootID {
		r.completeLocked()
		session, err := r.db.StartSession(res.RootID, r.address())
		if err != nil {
			r.log.WithError(err).Warn("could not start journal session")
			return
		}
		r.session = session
	}

	stats := res.Mapping.Stats()
	b := &model.BuildRecord{
		SessionID:   r.session.ID,
		RootID:      res.RootID,
		Trigger:     trigger,
		Visited:     res.Stats.Visited,
		Failed:      res.Stats.Failed,
		Depth:       stats.Depth,
		Truncated:   res.Stats.Truncated,
		RemoteCalls: res.Stats.RemoteCalls,
		Duration:    res.Stats.Duration,
	}
	if err := r.db.RecordBuild(b); err != nil {
		r.log.WithError(err).WithField("trigger", trigger).Warn("failed to journal build")
		return
	}
	r.session.Builds++
	if b.Visited > r.session.MaxVisited {
		r.session.MaxVisited = b.Visited
	}
	r.session.TotalFailed += b.Failed
}

// CurrentSession returns a copy of the open session, or nil.
func (r *Recorder) CurrentSession() *model.ViewerSession {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.session == nil {
		return nil
	}
	s := *r.session
	return &s
}

// Close completes the open session and closes the database.
func (r *Recorder) Close() error {
	r.mu.Lock()
	r.completeLocked()
	r.mu.Unlock()
	return r.db.Close()
}

func (r *Recorder) completeLocked() {
	if r.session == nil {
		return
	}
	if err := r.db.CompleteSession(r.session); err != nil {
		r.log.WithError(err).Warn("failed to complete journal session")
	}
	r.session = nil
}

func (r *Recorder) address() string {
	if r.focus == nil {
		return ""
	}
	if rec := r.focus(); rec != nil {
		return rec.Address
	}
	return ""
}

// DefaultPath returns the default journal location.
func DefaultPath() string {
	return filepath.Join(".refnet", "journal.db")
}

// TryOpen opens the journal at path and wraps it in a Recorder, logging
// errors but not failing. An empty path disables the journal.
func TryOpen(path string, log logrus.FieldLogger) *Recorder {
	if path == "" {
		return nil
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	db, err := OpenDB(path)
	if err != nil {
		log.WithError(err).WithField("path", path).Warn("could not open build journal")
		return nil
	}
	return NewRecorder(db, log)
}
