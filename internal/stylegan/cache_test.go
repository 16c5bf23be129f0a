package stylegan

import (
	"context"
	"errors"
	"sync"
	"testing"
)

func TestModelCacheLoadsOnceUnderConcurrency(t *testing.T) {
	loader := &countingLoader{gen: newFakeGenerator(14)}
	cache := NewModelCache(loader)

	var wg sync.WaitGroup
	handles := make([]*Model, 32)
	for i := range handles {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			m, err := cache.Get(context.Background(), testModel)
			if err != nil {
				t.Errorf("Get: %v", err)
				return
			}
			handles[i] = m
		}(i)
	}
	wg.Wait()

	if n := loader.loads.Load(); n != 1 {
		t.Fatalf("loads = %d, want 1", n)
	}
	for i, m := range handles {
		if m != handles[0] {
			t.Fatalf("handle %d differs", i)
		}
	}
	stats := cache.Stats()
	if stats.Models != 1 || stats.Loads != 1 {
		t.Fatalf("stats = %+v", stats)
	}
}

func TestModelCacheSeparatesDescriptors(t *testing.T) {
	loader := &countingLoader{gen: newFakeGenerator(14)}
	cache := NewModelCache(loader)
	ctx := context.Background()
	if _, err := cache.Get(ctx, testModel); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if _, err := cache.Get(ctx, testModel.WithVersion("other")); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if _, err := cache.Get(ctx, testModel); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if n := loader.loads.Load(); n != 2 {
		t.Fatalf("loads = %d, want 2", n)
	}
	if hits := cache.Stats().Hits; hits != 1 {
		t.Fatalf("hits = %d, want 1", hits)
	}
}

func TestModelCacheWrapsLoadFailures(t *testing.T) {
	loader := &countingLoader{err: ErrModelNotFound}
	cache := NewModelCache(loader)

	_, err := cache.Get(context.Background(), testModel)
	if !errors.Is(err, ErrModelLoad) || !errors.Is(err, ErrModelNotFound) {
		t.Fatalf("err = %v, want ErrModelLoad wrapping ErrModelNotFound", err)
	}
	var mle *ModelLoadError
	if !errors.As(err, &mle) || mle.Descriptor != testModel {
		t.Fatalf("expected ModelLoadError for %v, got %v", testModel, err)
	}

	_, _ = cache.Get(context.Background(), testModel)
	if n := loader.loads.Load(); n != 2 {
		t.Fatalf("failed loads must not be cached: loads = %d", n)
	}
}

func TestModelCacheRejectsNilGenerator(t *testing.T) {
	cache := NewModelCache(LoaderFunc(func(context.Context, ModelDescriptor) (Generator, error) {
		return nil, nil
	}))
	if _, err := cache.Get(context.Background(), testModel); !errors.Is(err, ErrModelLoad) {
		t.Fatalf("err = %v, want ErrModelLoad", err)
	}
}

func TestModelCacheLoadSurvivesCallerCancel(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	var loadErr error
	loader := LoaderFunc(func(ctx context.Context, _ ModelDescriptor) (Generator, error) {
		close(entered)
		<-release
		loadErr = ctx.Err()
		if loadErr != nil {
			return nil, loadErr
		}
		return newFakeGenerator(14), nil
	})
	cache := NewModelCache(loader)

	ctx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := cache.Get(ctx, testModel)
		firstErr <- err
	}()
	<-entered

	secondErr := make(chan error, 1)
	go func() {
		_, err := cache.Get(context.Background(), testModel)
		secondErr <- err
	}()

	cancel()
	if err := <-firstErr; !errors.Is(err, context.Canceled) {
		t.Fatalf("cancelled caller err = %v, want context.Canceled", err)
	}
	close(release)
	if err := <-secondErr; err != nil {
		t.Fatalf("waiting caller failed: %v", err)
	}
	if loadErr != nil {
		t.Fatalf("shared load saw cancellation: %v", loadErr)
	}
	if stats := cache.Stats(); stats.Models != 1 || stats.Loads != 1 {
		t.Fatalf("stats = %+v", stats)
	}
}
