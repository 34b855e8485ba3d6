package tree

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/kraitsura/refnet/pkg/model"
)

// ErrSuperseded is returned by a build that was overtaken by a newer request.
// Its result has been discarded.
var ErrSuperseded = errors.New("tree build superseded by a newer request")

// ErrNoFocus is returned by actions issued before a focus user was loaded.
var ErrNoFocus = errors.New("no focus user loaded")

// Client is what a Session needs from the contract.
type Client interface {
	DirectsSource
	GetUserInfo(ctx context.Context, address string) (model.UserRecord, error)
}

// BuildHook observes every build a session accepts.
type BuildHook func(trigger string, res *Result)

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithBuildOptions sets the traversal options.
func WithBuildOptions(opts BuildOptions) SessionOption {
	return func(s *Session) {
		s.buildOpts = opts
	}
}

// WithBuildHook registers a hook called after each accepted build.
func WithBuildHook(hook BuildHook) SessionOption {
	return func(s *Session) {
		s.hooks = append(s.hooks, hook)
	}
}

// WithLogger sets the session logger (also used by the builder unless
// BuildOptions.Logger is set).
func WithLogger(l logrus.FieldLogger) SessionOption {
	return func(s *Session) {
		s.log = l
	}
}

// Session owns the state that outlives a single build: the focus user, the
// DirectsCache, the ExpansionSet and the last accepted Result. All user
// actions go through it; each one mutates state and then rebuilds.
//
// Builds are guarded by an epoch. Starting a build cancels the one in flight,
// and a build whose epoch is stale when it finishes is discarded with
// ErrSuperseded.
type Session struct {
	client    Client
	cache     *DirectsCache
	expanded  *ExpansionSet
	builder   *Builder
	buildOpts BuildOptions
	hooks     []BuildHook
	log       logrus.FieldLogger

	mu      sync.Mutex
	focus   *model.UserRecord
	current *Result
	epoch   uint64
	cancel  context.CancelFunc
	loads   int
}

// NewSession creates a session with no focus user.
func NewSession(client Client, opts ...SessionOption) *Session {
	s := &Session{
		client:   client,
		expanded: NewExpansionSet(),
		log:      logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.buildOpts.Logger == nil {
		s.buildOpts.Logger = s.log
	}
	s.cache = NewDirectsCache(client)
	s.builder = NewBuilder(s.cache, s.expanded, s.buildOpts)
	s.current = &Result{Mapping: make(Mapping)}
	return s
}

// Load resolves address to a focus user and builds its tree. An unregistered
// address is not an error: the session keeps the record (ID 0) and the
// mapping is empty. A failed lookup clears the focus.
func (s *Session) Load(ctx context.Context, address string) (*Result, error) {
	rec, err := s.client.GetUserInfo(ctx, address)
	if err != nil {
		s.mu.Lock()
		s.focus = nil
		s.current = &Result{Mapping: make(Mapping)}
		s.mu.Unlock()
		return nil, fmt.Errorf("load user info for %s: %w", address, err)
	}
	if rec.Address == "" {
		rec.Address = address
	}
	return s.SwitchFocus(ctx, rec)
}

// SwitchFocus makes rec the focus user. Cached links and expansion state of
// the previous focus are dropped, then the tree is rebuilt from rec.ID.
func (s *Session) SwitchFocus(ctx context.Context, rec model.UserRecord) (*Result, error) {
	s.mu.Lock()
	trigger := model.TriggerLoad
	if s.loads > 0 {
		trigger = model.TriggerSwitch
	}
	s.loads++
	s.focus = &rec
	s.mu.Unlock()

	s.cache.Clear()
	s.expanded.Clear()
	if rec.IsRegistered() {
		s.expanded.Add(rec.ID)
	}

	s.log.WithFields(logrus.Fields{
		"address":    rec.Address,
		"id":         rec.ID,
		"registered": rec.IsRegistered(),
	}).Info("focus user loaded")

	return s.rebuild(ctx, trigger)
}

// Rebuild builds again without changing any state.
func (s *Session) Rebuild(ctx context.Context) (*Result, error) {
	return s.rebuild(ctx, model.TriggerRebuild)
}

// Toggle flips the expansion of id and rebuilds.
func (s *Session) Toggle(ctx context.Context, id model.NodeID) (*Result, error) {
	if err := s.requireFocus(); err != nil {
		return nil, err
	}
	expanded := s.expanded.Toggle(id)
	s.log.WithFields(logrus.Fields{"id": id, "expanded": expanded}).Debug("toggle node")
	return s.rebuild(ctx, model.TriggerToggle)
}

// ExpandAll expands every node of the last mapping that has children, then
// rebuilds. Nodes beyond the last build's budget are not discovered here;
// each call reveals at most one more budget's worth of the tree, which keeps
// the number of remote calls per user action bounded.
func (s *Session) ExpandAll(ctx context.Context) (*Result, error) {
	if err := s.requireFocus(); err != nil {
		return nil, err
	}
	current := s.Current()
	added := s.expanded.AddAll(current.Mapping, func(n *model.TreeNode) bool {
		return n.HasChildren
	})
	s.log.WithField("added", added).Debug("expand all")
	return s.rebuild(ctx, model.TriggerExpandAll)
}

// CollapseAll resets expansion to the focus node only and rebuilds.
func (s *Session) CollapseAll(ctx context.Context) (*Result, error) {
	if err := s.requireFocus(); err != nil {
		return nil, err
	}
	s.expanded.Clear()
	if focus := s.Focus(); focus.IsRegistered() {
		s.expanded.Add(focus.ID)
	}
	return s.rebuild(ctx, model.TriggerCollapseAll)
}

// Refresh drops every cached link and rebuilds with the same expansion state.
func (s *Session) Refresh(ctx context.Context) (*Result, error) {
	if err := s.requireFocus(); err != nil {
		return nil, err
	}
	s.cache.Clear()
	return s.rebuild(ctx, model.TriggerRefresh)
}

// requireFocus returns ErrNoFocus before the first Load, so that actions
// leave the expansion set and cache untouched.
func (s *Session) requireFocus() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.focus == nil {
		return ErrNoFocus
	}
	return nil
}

// Current returns the last accepted result. It is never nil.
func (s *Session) Current() *Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Focus returns a copy of the focus user record, or nil before Load.
func (s *Session) Focus() *model.UserRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.focus == nil {
		return nil
	}
	rec := *s.focus
	return &rec
}

// IsExpanded reports expansion set membership.
func (s *Session) IsExpanded(id model.NodeID) bool {
	return s.expanded.Has(id)
}

// ExpandedIDs returns the expansion set in ascending order.
func (s *Session) ExpandedIDs() []model.NodeID {
	return s.expanded.IDs()
}

// CacheStats returns the directs cache counters.
func (s *Session) CacheStats() CacheStats {
	return s.cache.Stats()
}

// Options returns the effective build options.
func (s *Session) Options() BuildOptions {
	return s.builder.Options()
}

func (s *Session) rebuild(ctx context.Context, trigger string) (*Result, error) {
	s.mu.Lock()
	if s.focus == nil {
		s.mu.Unlock()
		return nil, ErrNoFocus
	}
	var root model.NodeID
	if s.focus.IsRegistered() {
		root = s.focus.ID
	}
	s.epoch++
	epoch := s.epoch
	if s.cancel != nil {
		s.cancel()
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.mu.Unlock()
	defer cancel()

	res, err := s.builder.Build(ctx, root, root)

	s.mu.Lock()
	if epoch != s.epoch {
		s.mu.Unlock()
		supersededBuilds.Inc()
		s.log.WithFields(logrus.Fields{"epoch": epoch, "trigger": trigger}).Debug("discarding superseded build")
		return nil, ErrSuperseded
	}
	s.cancel = nil
	if err != nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("build tree from %d: %w", root, err)
	}
	s.current = res
	hooks := s.hooks
	s.mu.Unlock()

	for _, hook := range hooks {
		hook(trigger, res)
	}
	return res, nil
}
