package tree

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/kraitsura/refnet/pkg/model"
)

func TestDirectsCache_MissThenHit(t *testing.T) {
	f := newFakeContract().link(42, 7, 9)
	cache := NewDirectsCache(f)
	ctx := context.Background()

	links, err := cache.Get(ctx, 42)
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if links.LeftID != 7 || links.RightID != 9 {
		t.Errorf("Get(42) = %+v, want {7 9}", links)
	}

	if _, err := cache.Get(ctx, 42); err != nil {
		t.Fatalf("second Get error: %v", err)
	}
	if got := f.callsFor(42); got != 1 {
		t.Errorf("remote calls for 42 = %d, want 1", got)
	}

	stats := cache.Stats()
	if stats.Hits != 1 || stats.RemoteCalls != 1 || stats.Entries != 1 {
		t.Errorf("Stats() = %+v, want 1 hit, 1 remote call, 1 entry", stats)
	}
}

func TestDirectsCache_FailureNotStored(t *testing.T) {
	f := newFakeContract().link(5, 10, 11)
	f.fail(5)
	cache := NewDirectsCache(f)
	ctx := context.Background()

	links, err := cache.Get(ctx, 5)
	if err == nil {
		t.Fatal("expected error from failing source")
	}
	if !errors.Is(err, errRemote) {
		t.Errorf("error = %v, want wrapped errRemote", err)
	}
	if links != (model.DirectLinks{}) {
		t.Errorf("links on failure = %+v, want zero", links)
	}
	if cache.Len() != 0 {
		t.Errorf("Len() after failure = %d, want 0", cache.Len())
	}

	f.heal(5)
	links, err = cache.Get(ctx, 5)
	if err != nil {
		t.Fatalf("retry error: %v", err)
	}
	if links.LeftID != 10 {
		t.Errorf("retry LeftID = %d, want 10", links.LeftID)
	}
	if got := f.callsFor(5); got != 2 {
		t.Errorf("remote calls for 5 = %d, want 2 (failure is retried)", got)
	}
	if got := cache.Stats().Failures; got != 1 {
		t.Errorf("Failures = %d, want 1", got)
	}
}

func TestDirectsCache_Clear(t *testing.T) {
	f := newFakeContract().link(1, 2, 3)
	cache := NewDirectsCache(f)
	ctx := context.Background()

	if _, err := cache.Get(ctx, 1); err != nil {
		t.Fatal(err)
	}
	cache.Clear()

	if _, ok := cache.Peek(1); ok {
		t.Error("Peek after Clear should miss")
	}
	if _, err := cache.Get(ctx, 1); err != nil {
		t.Fatal(err)
	}
	if got := f.callsFor(1); got != 2 {
		t.Errorf("remote calls after Clear = %d, want 2", got)
	}
}

func TestDirectsCache_ConcurrentMissesShareOneCall(t *testing.T) {
	f := newFakeContract().link(8, 16, 17)
	f.hold()
	cache := NewDirectsCache(f)
	ctx := context.Background()

	const callers = 8
	var wg sync.WaitGroup
	results := make([]model.DirectLinks, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			links, err := cache.Get(ctx, 8)
			if err != nil {
				t.Errorf("Get error: %v", err)
			}
			results[i] = links
		}(i)
	}

	// Wait until the first caller reached the source, then release it.
	for f.callsFor(8) == 0 {
	}
	f.release()
	wg.Wait()

	if got := f.callsFor(8); got != 1 {
		t.Errorf("remote calls = %d, want 1", got)
	}
	for i, links := range results {
		if links.LeftID != 16 || links.RightID != 17 {
			t.Errorf("caller %d got %+v", i, links)
		}
	}
}

func TestDirectsCache_ClearDuringFetchDoesNotRepopulate(t *testing.T) {
	f := newFakeContract().link(3, 6, 7)
	f.hold()
	cache := NewDirectsCache(f)

	done := make(chan struct{})
	go func() {
		defer close(done)
		if _, err := cache.Get(context.Background(), 3); err != nil {
			t.Errorf("Get error: %v", err)
		}
	}()

	for f.callsFor(3) == 0 {
	}
	cache.Clear()
	f.release()
	<-done

	if _, ok := cache.Peek(3); ok {
		t.Error("a fetch started before Clear should not repopulate the cache")
	}
}

func TestDirectsCache_GetAfterClearMakesItsOwnCall(t *testing.T) {
	f := newFakeContract().link(3, 6, 7)
	f.fail(3)
	f.hold()
	cache := NewDirectsCache(f)
	ctx := context.Background()

	stale := make(chan error, 1)
	go func() {
		_, err := cache.Get(ctx, 3)
		stale <- err
	}()
	for f.callsFor(3) == 0 {
	}

	cache.Clear()
	f.heal(3)
	fresh := make(chan model.DirectLinks, 1)
	go func() {
		links, err := cache.Get(ctx, 3)
		if err != nil {
			t.Errorf("Get after Clear: %v", err)
		}
		fresh <- links
	}()
	for f.callsFor(3) < 2 {
	}
	f.release()

	if err := <-stale; err == nil {
		t.Error("lookup started before Clear should still see its failure")
	}
	if links := <-fresh; links.LeftID != 6 || links.RightID != 7 {
		t.Errorf("links after Clear = %+v, want 6/7", links)
	}
	if links, ok := cache.Peek(3); !ok || links.LeftID != 6 {
		t.Errorf("cache after fresh lookup = %+v, %v", links, ok)
	}
}
