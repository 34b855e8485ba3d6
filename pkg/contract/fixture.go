package contract

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/kraitsura/refnet/pkg/loader"
	"github.com/kraitsura/refnet/pkg/model"
)

// FixtureClient serves a loaded fixture as if it were the contract. Unknown
// addresses are unregistered (id 0) and nodes without a directs entry have
// no children, which is what the contract reports for them.
type FixtureClient struct {
	mu      sync.RWMutex
	fixture *loader.Fixture

	// Latency, when set, delays every call to mimic a remote endpoint.
	Latency time.Duration
}

// NewFixtureClient serves f.
func NewFixtureClient(f *loader.Fixture) *FixtureClient {
	return &FixtureClient{fixture: f}
}

// Reload swaps in a new fixture. Calls already in progress finish against the
// old one.
func (c *FixtureClient) Reload(f *loader.Fixture) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fixture = f
}

// Fixture returns the fixture currently served.
func (c *FixtureClient) Fixture() *loader.Fixture {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.fixture
}

func (c *FixtureClient) wait(ctx context.Context) error {
	if c.Latency <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(c.Latency)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// GetUserInfo looks address up in the fixture.
func (c *FixtureClient) GetUserInfo(ctx context.Context, address string) (model.UserRecord, error) {
	err := c.wait(ctx)
	observe(methodUserInfo, err)
	if err != nil {
		return model.UserRecord{}, err
	}
	if !common.IsHexAddress(address) {
		return model.UserRecord{}, fmt.Errorf("user %q: %w", address, ErrInvalidAddress)
	}
	if rec, ok := c.Fixture().User(address); ok {
		return rec, nil
	}
	return model.UserRecord{Address: common.HexToAddress(address).Hex()}, nil
}

// GetDirects returns the fixture's links for id. Ids listed as failing return
// ErrReverted.
func (c *FixtureClient) GetDirects(ctx context.Context, id model.NodeID) (model.DirectLinks, error) {
	if err := c.wait(ctx); err != nil {
		observe(methodDirects, err)
		return model.DirectLinks{}, err
	}
	f := c.Fixture()
	if f.Failing[id] {
		err := fmt.Errorf("%s(%d): %w", methodDirects, id, ErrReverted)
		observe(methodDirects, err)
		return model.DirectLinks{}, err
	}
	links, _ := f.Links(id)
	observe(methodDirects, nil)
	return links, nil
}
