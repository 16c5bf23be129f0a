package stylegan

import (
	"context"
	"fmt"
	"math/rand/v2"
)

// VectorSource fetches persisted style code bytes by artifact id. A missing
// id must be reported with an error wrapping ErrArtifactNotFound; other
// errors are returned to the caller unchanged.
type VectorSource interface {
	StyleCodeBytes(ctx context.Context, artifactID string) ([]byte, error)
}

// SeedSource draws seeds for Random references.
type SeedSource func() uint32

// Resolved is one side of a request after resolution. Image is nil for
// Existing references, which only contribute their code.
type Resolved struct {
	Ref   ImageReference
	Code  StyleCode
	Image *ImageBuffer
	Fresh bool
}

// Resolver turns references into style codes.
type Resolver struct {
	vectors VectorSource
	seeds   SeedSource
}

// NewResolver builds a resolver. A nil seeds draws uniformly from
// math/rand/v2.
func NewResolver(vectors VectorSource, seeds SeedSource) *Resolver {
	if seeds == nil {
		seeds = rand.Uint32
	}
	return &Resolver{vectors: vectors, seeds: seeds}
}

// Concrete replaces a Random reference with a freshly drawn Seed and returns
// other references unchanged.
func (r *Resolver) Concrete(ref ImageReference) ImageReference {
	if ref.Kind == RefRandom {
		return Seed(r.seeds())
	}
	return ref
}

// Resolve produces the style code for ref. Seeds are mapped and synthesized
// on gen; existing artifacts are fetched and decoded without touching gen.
func (r *Resolver) Resolve(ctx context.Context, ref ImageReference, gen Generator, truncationPsi float64) (Resolved, error) {
	switch ref.Kind {
	case RefRandom, RefSeed:
		return r.FromSeed(ctx, r.Concrete(ref).Seed, gen, truncationPsi)
	case RefExisting:
		return r.fromArtifact(ctx, ref)
	default:
		return Resolved{}, fmt.Errorf("%w: kind %d", ErrInvalidReference, ref.Kind)
	}
}

// FromSeed maps and synthesizes the latent derived from seed.
func (r *Resolver) FromSeed(ctx context.Context, seed uint32, gen Generator, truncationPsi float64) (Resolved, error) {
	z := LatentFromSeed(seed, gen.Info().ZDim)
	code, err := gen.Map(ctx, z, truncationPsi)
	if err != nil {
		return Resolved{}, fmt.Errorf("stylegan: map seed %d: %w", seed, err)
	}
	img, err := gen.Synthesize(ctx, code)
	if err != nil {
		return Resolved{}, fmt.Errorf("stylegan: synthesize seed %d: %w", seed, err)
	}
	return Resolved{Ref: Seed(seed), Code: code, Image: &img, Fresh: true}, nil
}

func (r *Resolver) fromArtifact(ctx context.Context, ref ImageReference) (Resolved, error) {
	if r.vectors == nil {
		return Resolved{}, fmt.Errorf("%w: no vector source configured", ErrArtifactNotFound)
	}
	raw, err := r.vectors.StyleCodeBytes(ctx, ref.ArtifactID)
	if err != nil {
		return Resolved{}, err
	}
	code, err := DecodeStyleCode(raw)
	if err != nil {
		return Resolved{}, fmt.Errorf("artifact %s: %w", ref.ArtifactID, err)
	}
	return Resolved{Ref: ref, Code: code}, nil
}
