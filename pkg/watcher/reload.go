package watcher

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/kraitsura/refnet/pkg/contract"
	"github.com/kraitsura/refnet/pkg/loader"
	"github.com/kraitsura/refnet/pkg/tree"
)

// Refresher is the part of tree.Session a reload needs.
type Refresher interface {
	Refresh(ctx context.Context) (*tree.Result, error)
}

// FixtureReloader re-reads a fixture file into a FixtureClient and refreshes
// the session built on it. A fixture that fails to parse leaves the client on
// its previous contents.
type FixtureReloader struct {
	Client  *contract.FixtureClient
	Session Refresher
	Logger  logrus.FieldLogger
	// OnReload, if set, sees the outcome of every reload attempt.
	OnReload func(*tree.Result, error)
}

// Reload loads the fixture at path and refreshes the session.
func (r *FixtureReloader) Reload(ctx context.Context, path string) (*tree.Result, error) {
	log := r.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}

	f, err := loader.LoadFixture(path)
	if err != nil {
		log.WithError(err).Warn("fixture reload failed, keeping previous contents")
		r.report(nil, err)
		return nil, err
	}
	r.Client.Reload(f)

	res, err := r.Session.Refresh(ctx)
	switch {
	case errors.Is(err, tree.ErrSuperseded):
		// a newer build owns the session now
		err = nil
	case err != nil:
		log.WithError(err).Warn("refresh after fixture reload failed")
	default:
		log.WithFields(logrus.Fields{
			"users":   len(f.Users),
			"visited": res.Stats.Visited,
		}).Info("fixture reloaded")
	}
	r.report(res, err)
	return res, err
}

// Watch reloads whenever the file at path changes, until ctx is done.
func (r *FixtureReloader) Watch(ctx context.Context, path string, opts Options) error {
	if opts.Logger == nil {
		opts.Logger = r.Logger
	}
	w, err := New(path, func() { r.Reload(ctx, path) }, opts)
	if err != nil {
		return err
	}
	return w.Run(ctx)
}

func (r *FixtureReloader) report(res *tree.Result, err error) {
	if r.OnReload != nil {
		r.OnReload(res, err)
	}
}
