package tree

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/kraitsura/refnet/pkg/model"
)

// DefaultYieldEvery is how many visited nodes pass between yield hook calls.
const DefaultYieldEvery = 3

// YieldFunc is called every BuildOptions.YieldEvery visited nodes. It may
// pause to let a host event loop run; returning an error aborts the build.
type YieldFunc func(ctx context.Context, visited int) error

// SleepYield pauses for d between batches, returning early if ctx is done.
func SleepYield(d time.Duration) YieldFunc {
	return func(ctx context.Context, _ int) error {
		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			return nil
		}
	}
}

// BuildOptions configures the traversal.
type BuildOptions struct {
	Budget     int       // max nodes materialized per build (default: WideBudget)
	Layout     Layout    // zero value means WideProfile.Layout
	YieldEvery int       // visited nodes between Yield calls (default: DefaultYieldEvery)
	Yield      YieldFunc // may be nil
	Prefetch   int       // concurrent lookups for the pending frontier; <= 1 is sequential
	Logger     logrus.FieldLogger
}

func (o *BuildOptions) applyDefaults() {
	if o.Budget <= 0 {
		o.Budget = WideBudget
	}
	if o.Layout == (Layout{}) {
		o.Layout = WideProfile.Layout
	}
	if o.YieldEvery <= 0 {
		o.YieldEvery = DefaultYieldEvery
	}
	if o.Logger == nil {
		o.Logger = logrus.StandardLogger()
	}
}

// BuildStats describes one build pass.
type BuildStats struct {
	Visited     int           `json:"visited"`
	Failed      int           `json:"failed"`
	Skipped     int           `json:"skipped"` // duplicate queue entries dropped at dequeue
	Truncated   bool          `json:"truncated"`
	RemoteCalls int64         `json:"remote_calls"`
	CacheHits   int64         `json:"cache_hits"`
	Duration    time.Duration `json:"duration_ns"`
}

// Result is the output of a build.
type Result struct {
	RootID  model.NodeID
	FocusID model.NodeID
	Mapping Mapping
	Stats   BuildStats
}

// queueItem carries everything a node needs before its links are known.
type queueItem struct {
	id       model.NodeID
	parentID model.NodeID
	level    int
	branch   model.Branch
	pos      model.Position
}

// Builder materializes a Mapping from a root id.
type Builder struct {
	cache    *DirectsCache
	expanded *ExpansionSet
	opts     BuildOptions
}

// NewBuilder creates a builder over the given cache and expansion set.
func NewBuilder(cache *DirectsCache, expanded *ExpansionSet, opts BuildOptions) *Builder {
	opts.applyDefaults()
	return &Builder{cache: cache, expanded: expanded, opts: opts}
}

// Options returns the effective options (defaults applied).
func (b *Builder) Options() BuildOptions {
	return b.opts
}

// Build walks breadth-first from root. Lookup failures mark the node
// FetchFailed and never abort the build; only context cancellation or a yield
// error does. A zero root yields an empty mapping.
func (b *Builder) Build(ctx context.Context, root, focus model.NodeID) (*Result, error) {
	start := time.Now()
	res := &Result{RootID: root, FocusID: focus, Mapping: make(Mapping)}
	if root.IsZero() {
		return res, nil
	}

	before := b.cache.Stats()
	b.expanded.Add(root)

	queue := []queueItem{{id: root, branch: model.BranchRoot}}
	var failures map[model.NodeID]error
	stats := &res.Stats

	for len(queue) > 0 && stats.Visited < b.opts.Budget {
		if err := ctx.Err(); err != nil {
			treeBuilds.WithLabelValues("canceled").Inc()
			return nil, err
		}

		item := queue[0]
		queue = queue[1:]

		if _, seen := res.Mapping[item.id]; seen {
			stats.Skipped++
			continue
		}

		if b.opts.Prefetch > 1 {
			if _, cached := b.cache.Peek(item.id); !cached {
				failures = b.prefetch(ctx, item, queue, res.Mapping, b.opts.Budget-stats.Visited, failures)
			}
		}

		node := &model.TreeNode{
			ID:       item.id,
			ParentID: item.parentID,
			Branch:   item.branch,
			Level:    item.level,
			IsFocus:  item.id == focus,
			Position: item.pos,
		}

		links, err := b.lookup(ctx, item.id, failures)
		if err != nil {
			if ctx.Err() != nil {
				treeBuilds.WithLabelValues("canceled").Inc()
				return nil, ctx.Err()
			}
			node.FetchFailed = true
			stats.Failed++
			b.opts.Logger.WithFields(logrus.Fields{"id": item.id, "error": err}).Debug("directs lookup failed")
		} else {
			node.Links = links
			node.HasChildren = links.HasChildren()
			node.Expanded = b.expanded.Has(item.id)
		}

		res.Mapping[item.id] = node
		stats.Visited++

		if node.Expanded && node.HasChildren {
			queue = b.enqueueChildren(queue, node)
		}

		if b.opts.Yield != nil && stats.Visited%b.opts.YieldEvery == 0 {
			if err := b.opts.Yield(ctx, stats.Visited); err != nil {
				treeBuilds.WithLabelValues("canceled").Inc()
				return nil, err
			}
		}
	}

	for _, item := range queue {
		if _, seen := res.Mapping[item.id]; !seen {
			stats.Truncated = true
			break
		}
	}

	after := b.cache.Stats()
	stats.RemoteCalls = after.RemoteCalls - before.RemoteCalls
	stats.CacheHits = after.Hits - before.Hits
	stats.Duration = time.Since(start)

	outcome := "ok"
	if stats.Truncated {
		outcome = "truncated"
	}
	treeBuilds.WithLabelValues(outcome).Inc()
	treeBuildDuration.Observe(stats.Duration.Seconds())
	treeNodesVisited.Observe(float64(stats.Visited))

	b.opts.Logger.WithFields(logrus.Fields{
		"root":      root,
		"visited":   stats.Visited,
		"failed":    stats.Failed,
		"truncated": stats.Truncated,
		"remote":    stats.RemoteCalls,
	}).Debug("tree build complete")

	return res, nil
}

func (b *Builder) enqueueChildren(queue []queueItem, parent *model.TreeNode) []queueItem {
	if parent.Links.HasLeft() {
		queue = append(queue, queueItem{
			id:       parent.Links.LeftID,
			parentID: parent.ID,
			level:    parent.Level + 1,
			branch:   model.BranchLeft,
			pos:      b.opts.Layout.ChildPosition(parent.Position, parent.Level, model.BranchLeft),
		})
	}
	if parent.Links.HasRight() {
		queue = append(queue, queueItem{
			id:       parent.Links.RightID,
			parentID: parent.ID,
			level:    parent.Level + 1,
			branch:   model.BranchRight,
			pos:      b.opts.Layout.ChildPosition(parent.Position, parent.Level, model.BranchRight),
		})
	}
	return queue
}

// lookup consults failures recorded by prefetch before going to the cache, so
// a node that already failed in this build is not fetched a second time.
func (b *Builder) lookup(ctx context.Context, id model.NodeID, failures map[model.NodeID]error) (model.DirectLinks, error) {
	if err, ok := failures[id]; ok {
		return model.DirectLinks{}, err
	}
	return b.cache.Get(ctx, id)
}

// prefetch warms the cache for the next nodes the loop will visit: head plus
// the distinct, not yet visited ids of the queue, up to the remaining budget.
// Every id chosen here is visited later in queue order, so the mapping is the
// same as a sequential build.
func (b *Builder) prefetch(ctx context.Context, head queueItem, queue []queueItem, visited Mapping, remaining int, failures map[model.NodeID]error) map[model.NodeID]error {
	if failures == nil {
		failures = make(map[model.NodeID]error)
	}

	pending := make([]model.NodeID, 0, min(remaining, len(queue)+1))
	chosen := make(map[model.NodeID]bool)
	consider := func(id model.NodeID) {
		if len(chosen) >= remaining || chosen[id] {
			return
		}
		if _, seen := visited[id]; seen {
			return
		}
		chosen[id] = true
		if _, failed := failures[id]; failed {
			return
		}
		if _, cached := b.cache.Peek(id); cached {
			return
		}
		pending = append(pending, id)
	}
	consider(head.id)
	for _, item := range queue {
		consider(item.id)
	}

	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(b.opts.Prefetch)
	for _, id := range pending {
		g.Go(func() error {
			if _, err := b.cache.Get(ctx, id); err != nil {
				mu.Lock()
				failures[id] = err
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return failures
}
