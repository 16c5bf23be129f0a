package stylegan

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/atomic"
	"golang.org/x/sync/singleflight"
)

// Model is a cached generator handle. Every call into the underlying
// generator goes through one mutex, so a handle is never entered by two
// goroutines at once.
type Model struct {
	Descriptor ModelDescriptor

	mu  sync.Mutex
	gen Generator
}

func (m *Model) Info() ModelInfo {
	return m.gen.Info()
}

func (m *Model) Map(ctx context.Context, z []float64, truncationPsi float64) (StyleCode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gen.Map(ctx, z, truncationPsi)
}

func (m *Model) Synthesize(ctx context.Context, code StyleCode) (ImageBuffer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gen.Synthesize(ctx, code)
}

// Exclusive runs fn with the handle locked, passing the raw generator.
// Long multi-call computations such as projection use it to keep other
// requests out for their whole duration.
func (m *Model) Exclusive(fn func(Generator) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(m.gen)
}

// CacheStats summarizes cache activity.
type CacheStats struct {
	Models int   `json:"models"`
	Loads  int64 `json:"loads"`
	Hits   int64 `json:"hits"`
}

// ModelCache owns the descriptor -> handle map. Handles are loaded at most
// once per descriptor and live for the lifetime of the cache.
type ModelCache struct {
	loader Loader

	mu     sync.RWMutex
	models map[ModelDescriptor]*Model
	group  singleflight.Group

	loads atomic.Int64
	hits  atomic.Int64
}

// NewModelCache creates an empty cache backed by loader.
func NewModelCache(loader Loader) *ModelCache {
	return &ModelCache{loader: loader, models: make(map[ModelDescriptor]*Model)}
}

// modelLoadTimeout bounds a shared load, which no single caller can cancel.
const modelLoadTimeout = 10 * time.Minute

// Get returns the handle for d, loading it on first use. Concurrent first
// requests for the same descriptor share one load. A caller whose ctx ends
// stops waiting, but the load continues for the others.
func (c *ModelCache) Get(ctx context.Context, d ModelDescriptor) (*Model, error) {
	c.mu.RLock()
	m, ok := c.models[d]
	c.mu.RUnlock()
	if ok {
		c.hits.Inc()
		return m, nil
	}

	ch := c.group.DoChan(d.String(), func() (any, error) {
		c.mu.RLock()
		existing, ok := c.models[d]
		c.mu.RUnlock()
		if ok {
			return existing, nil
		}
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), modelLoadTimeout)
		defer cancel()
		gen, err := c.loader.Load(loadCtx, d)
		if err != nil {
			var mle *ModelLoadError
			if errors.As(err, &mle) {
				return nil, err
			}
			return nil, &ModelLoadError{Descriptor: d, Err: err}
		}
		if gen == nil {
			return nil, &ModelLoadError{Descriptor: d, Err: errors.New("loader returned no generator")}
		}
		loaded := &Model{Descriptor: d, gen: gen}
		c.mu.Lock()
		c.models[d] = loaded
		c.mu.Unlock()
		c.loads.Inc()
		return loaded, nil
	})
	select {
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		return r.Val.(*Model), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Stats reports the number of resident models and counters.
func (c *ModelCache) Stats() CacheStats {
	c.mu.RLock()
	n := len(c.models)
	c.mu.RUnlock()
	return CacheStats{Models: n, Loads: c.loads.Load(), Hits: c.hits.Load()}
}
