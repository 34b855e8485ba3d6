package tree

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/kraitsura/refnet/pkg/model"
)

var errRemote = errors.New("execution reverted")

// fakeContract serves canned directs and user records and records every call.
type fakeContract struct {
	mu      sync.Mutex
	directs map[model.NodeID]model.DirectLinks
	users   map[string]model.UserRecord
	failing map[model.NodeID]bool
	calls   map[model.NodeID]int
	order   []model.NodeID
	userErr error

	// gate, when set, blocks GetDirects until it is closed or ctx is done.
	gate chan struct{}
}

func newFakeContract() *fakeContract {
	return &fakeContract{
		directs: make(map[model.NodeID]model.DirectLinks),
		users:   make(map[string]model.UserRecord),
		failing: make(map[model.NodeID]bool),
		calls:   make(map[model.NodeID]int),
	}
}

func (f *fakeContract) link(parent, left, right model.NodeID) *fakeContract {
	f.directs[parent] = model.DirectLinks{LeftID: left, RightID: right}
	return f
}

func (f *fakeContract) user(address string, id model.NodeID) *fakeContract {
	f.users[address] = model.UserRecord{Address: address, ID: id}
	return f
}

func (f *fakeContract) fail(id model.NodeID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failing[id] = true
}

func (f *fakeContract) heal(id model.NodeID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.failing, id)
}

func (f *fakeContract) GetDirects(ctx context.Context, id model.NodeID) (model.DirectLinks, error) {
	f.mu.Lock()
	f.calls[id]++
	f.order = append(f.order, id)
	gate := f.gate
	failing := f.failing[id]
	links := f.directs[id]
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return model.DirectLinks{}, ctx.Err()
		}
	}
	if failing {
		return model.DirectLinks{}, fmt.Errorf("getUserDirects(%d): %w", id, errRemote)
	}
	return links, nil
}

// hold makes GetDirects block until release is called.
func (f *fakeContract) hold() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gate = make(chan struct{})
}

func (f *fakeContract) release() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.gate != nil {
		close(f.gate)
		f.gate = nil
	}
}

func (f *fakeContract) GetUserInfo(_ context.Context, address string) (model.UserRecord, error) {
	if f.userErr != nil {
		return model.UserRecord{}, f.userErr
	}
	rec, ok := f.users[address]
	if !ok {
		return model.UserRecord{Address: address}, nil
	}
	return rec, nil
}

func (f *fakeContract) callsFor(id model.NodeID) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[id]
}

func (f *fakeContract) totalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.order)
}

// fullTree links ids 1..n as a complete binary tree (heap numbering).
func fullTree(n int) *fakeContract {
	f := newFakeContract()
	for i := 1; i <= n; i++ {
		var left, right model.NodeID
		if 2*i <= n {
			left = model.NodeID(2 * i)
		}
		if 2*i+1 <= n {
			right = model.NodeID(2*i + 1)
		}
		f.link(model.NodeID(i), left, right)
	}
	return f
}

func ids(m Mapping) map[model.NodeID]bool {
	out := make(map[model.NodeID]bool, len(m))
	for id := range m {
		out[id] = true
	}
	return out
}

func sameIDs(m Mapping, want ...model.NodeID) bool {
	if len(m) != len(want) {
		return false
	}
	for _, id := range want {
		if _, ok := m[id]; !ok {
			return false
		}
	}
	return true
}
