package stylegan

import "context"

// ModelInfo describes the tensor shapes a generator works with.
type ModelInfo struct {
	Resolution int `json:"resolution"`
	Layers     int `json:"layers"`
	ZDim       int `json:"z_dim"`
	WDim       int `json:"w_dim"`
}

// Generator is the opaque pretrained network. Map turns a latent z into a
// truncated style code; Synthesize renders a code. Both are deterministic.
type Generator interface {
	Info() ModelInfo
	Map(ctx context.Context, z []float64, truncationPsi float64) (StyleCode, error)
	Synthesize(ctx context.Context, code StyleCode) (ImageBuffer, error)
}

// Loader produces a generator for a descriptor. Implementations return an
// error wrapping ErrModelNotFound when no checkpoint matches.
type Loader interface {
	Load(ctx context.Context, d ModelDescriptor) (Generator, error)
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(ctx context.Context, d ModelDescriptor) (Generator, error)

func (f LoaderFunc) Load(ctx context.Context, d ModelDescriptor) (Generator, error) {
	return f(ctx, d)
}
