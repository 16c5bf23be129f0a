package stylegan

import (
	"context"
	"fmt"
	"io"

	"github.com/rs/zerolog"
)

// Artifact is a synthesized image together with the code that produced it.
type Artifact struct {
	Image ImageBuffer
	Code  StyleCode
	// Seed is set when the artifact came from a seed.
	Seed *uint32
}

// GenerateRequest asks for one image from a seed or a random draw.
type GenerateRequest struct {
	Model      ModelDescriptor
	Seed       ImageReference
	Truncation float64
}

// StyleMixRequest combines a row and a column image. The row is the base,
// the column donates the layers of Band.
type StyleMixRequest struct {
	Model      ModelDescriptor
	Row        ImageReference
	Col        ImageReference
	Band       Band
	Truncation float64
}

// StyleMixResult always carries Result. Row and Col are present only for
// sides that were freshly synthesized; when both sides resolved to the same
// seed they point at the same Artifact.
type StyleMixResult struct {
	Result Artifact
	Row    *Artifact
	Col    *Artifact
}

// Engine runs generation, style mixing and projection against cached
// models.
type Engine struct {
	models   *ModelCache
	resolver *Resolver
	logger   zerolog.Logger
}

// NewEngine wires the engine. A nil logger pointer disables logging.
func NewEngine(models *ModelCache, resolver *Resolver, logger *zerolog.Logger) *Engine {
	l := zerolog.New(io.Discard)
	if logger != nil {
		l = *logger
	}
	return &Engine{models: models, resolver: resolver, logger: l}
}

// Models exposes the underlying cache.
func (e *Engine) Models() *ModelCache {
	return e.models
}

// Generate synthesizes a single fresh image. Existing references are not
// accepted here; reuse only exists for style mixing.
func (e *Engine) Generate(ctx context.Context, req GenerateRequest) (Artifact, error) {
	if req.Seed.Kind == RefExisting {
		return Artifact{}, fmt.Errorf("%w: generation takes a seed or nothing", ErrInvalidReference)
	}
	model, err := e.models.Get(ctx, req.Model)
	if err != nil {
		return Artifact{}, err
	}
	res, err := e.resolver.Resolve(ctx, req.Seed, model, req.Truncation)
	if err != nil {
		return Artifact{}, err
	}
	e.logger.Debug().
		Str("model", req.Model.String()).
		Str("seed", res.Ref.String()).
		Float64("truncation", req.Truncation).
		Msg("stylegan: generated image")
	return artifactOf(res), nil
}

// StyleMix resolves both sides, splices the band of the column code into a
// clone of the row code and synthesizes the result. Identical seeds on both
// sides are mapped and synthesized once.
func (e *Engine) StyleMix(ctx context.Context, req StyleMixRequest) (StyleMixResult, error) {
	if !req.Band.Valid() {
		return StyleMixResult{}, fmt.Errorf("%w: %q", ErrInvalidBand, string(req.Band))
	}
	model, err := e.models.Get(ctx, req.Model)
	if err != nil {
		return StyleMixResult{}, err
	}
	if _, _, err := req.Band.Range(model.Info().Layers); err != nil {
		return StyleMixResult{}, err
	}

	rowRef := e.resolver.Concrete(req.Row)
	colRef := e.resolver.Concrete(req.Col)

	row, err := e.resolver.Resolve(ctx, rowRef, model, req.Truncation)
	if err != nil {
		return StyleMixResult{}, fmt.Errorf("row image: %w", err)
	}
	var col Resolved
	if rowRef.Kind == RefSeed && colRef.Kind == RefSeed && rowRef.Seed == colRef.Seed {
		col = row
	} else {
		col, err = e.resolver.Resolve(ctx, colRef, model, req.Truncation)
		if err != nil {
			return StyleMixResult{}, fmt.Errorf("column image: %w", err)
		}
	}

	mixed, err := Mix(row.Code, col.Code, req.Band)
	if err != nil {
		return StyleMixResult{}, err
	}
	img, err := model.Synthesize(ctx, mixed)
	if err != nil {
		return StyleMixResult{}, fmt.Errorf("stylegan: synthesize mix: %w", err)
	}

	out := StyleMixResult{Result: Artifact{Image: img, Code: mixed}}
	if row.Fresh {
		a := artifactOf(row)
		out.Row = &a
	}
	if col.Fresh {
		if out.Row != nil && colRef == rowRef {
			out.Col = out.Row
		} else {
			a := artifactOf(col)
			out.Col = &a
		}
	}
	e.logger.Debug().
		Str("model", req.Model.String()).
		Str("row", rowRef.Kind.String()).
		Str("col", colRef.Kind.String()).
		Str("band", string(req.Band)).
		Bool("dedup", out.Row != nil && out.Row == out.Col).
		Msg("stylegan: style mixed")
	return out, nil
}

// Mix returns a new code equal to row with the band's layers replaced by the
// corresponding layers of col. Neither input is modified.
func Mix(row, col StyleCode, band Band) (StyleCode, error) {
	if err := row.Validate(); err != nil {
		return StyleCode{}, fmt.Errorf("row code: %w", err)
	}
	if err := col.Validate(); err != nil {
		return StyleCode{}, fmt.Errorf("column code: %w", err)
	}
	if !row.SameShape(col) {
		return StyleCode{}, fmt.Errorf("%w: row %dx%d, column %dx%d", ErrIncompatibleStyleCode, row.Layers, row.Channels, col.Layers, col.Channels)
	}
	lo, hi, err := band.Range(row.Layers)
	if err != nil {
		return StyleCode{}, err
	}
	mixed := row.Clone()
	copy(mixed.Data[lo*mixed.Channels:hi*mixed.Channels], col.Data[lo*col.Channels:hi*col.Channels])
	return mixed, nil
}

func artifactOf(r Resolved) Artifact {
	a := Artifact{Code: r.Code}
	if r.Image != nil {
		a.Image = *r.Image
	}
	if r.Ref.Kind == RefSeed {
		seed := r.Ref.Seed
		a.Seed = &seed
	}
	return a
}
