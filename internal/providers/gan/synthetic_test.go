package gan

import (
	"context"
	"errors"
	"testing"

	"stylegan-api/internal/stylegan"
)

func smallEntry(res int) Entry {
	return Entry{
		Descriptor: stylegan.ModelDescriptor{Images: 31, Resolution: res, FID: 12},
		Manifest:   Manifest{ZDim: 16, WDim: 16},
	}
}

func TestSyntheticIsDeterministic(t *testing.T) {
	ctx := context.Background()
	a, err := NewSynthetic(smallEntry(64))
	if err != nil {
		t.Fatalf("NewSynthetic: %v", err)
	}
	b, err := NewSynthetic(smallEntry(64))
	if err != nil {
		t.Fatalf("NewSynthetic: %v", err)
	}
	z := stylegan.LatentFromSeed(4, 16)
	ca, _ := a.Map(ctx, z, 0.7)
	cb, _ := b.Map(ctx, z, 0.7)
	if !ca.Equal(cb) {
		t.Fatalf("same checkpoint mapped differently")
	}
	ia, err := a.Synthesize(ctx, ca)
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	ib, _ := b.Synthesize(ctx, cb)
	if !ia.Equal(ib) {
		t.Fatalf("same code rendered differently")
	}
	if ia.Width != 64 || ia.Height != 64 {
		t.Fatalf("image = %dx%d, want 64x64", ia.Width, ia.Height)
	}
	if ca.Layers != 10 || ca.Channels != 16 {
		t.Fatalf("code shape = %dx%d", ca.Layers, ca.Channels)
	}
}

func TestSyntheticTruncationCutoff(t *testing.T) {
	ctx := context.Background()
	g, err := NewSynthetic(smallEntry(256))
	if err != nil {
		t.Fatalf("NewSynthetic: %v", err)
	}
	z := stylegan.LatentFromSeed(1, 16)
	full, _ := g.Map(ctx, z, 1)
	zero, _ := g.Map(ctx, z, 0)
	for c, v := range zero.Row(0) {
		if v != g.avg[c] {
			t.Fatalf("psi 0 channel %d = %v, want avg %v", c, v, g.avg[c])
		}
	}
	for l := stylegan.TruncationCutoff; l < full.Layers; l++ {
		if full.Row(l)[0] != full.Row(stylegan.TruncationCutoff)[0] {
			t.Fatalf("untruncated layers should share one row")
		}
	}
	if zero.Row(stylegan.TruncationCutoff)[0] != full.Row(stylegan.TruncationCutoff)[0] {
		t.Fatalf("layers past the cutoff must not be truncated")
	}
}

func TestSyntheticRejectsWrongShapes(t *testing.T) {
	ctx := context.Background()
	g, err := NewSynthetic(smallEntry(256))
	if err != nil {
		t.Fatalf("NewSynthetic: %v", err)
	}
	if _, err := g.Map(ctx, make([]float64, 3), 1); !errors.Is(err, stylegan.ErrIncompatibleStyleCode) {
		t.Fatalf("Map err = %v", err)
	}
	if _, err := g.Synthesize(ctx, stylegan.NewStyleCode(18, 16)); !errors.Is(err, stylegan.ErrIncompatibleStyleCode) {
		t.Fatalf("Synthesize err = %v", err)
	}
	if _, err := NewSynthetic(smallEntry(300)); err == nil {
		t.Fatalf("expected error for non power of two resolution")
	}
}

func TestSyntheticStyleMixThroughEngine(t *testing.T) {
	engine := stylegan.NewEngine(
		stylegan.NewModelCache(stylegan.LoaderFunc(func(context.Context, stylegan.ModelDescriptor) (stylegan.Generator, error) {
			return NewSynthetic(smallEntry(256))
		})),
		stylegan.NewResolver(nil, nil),
		nil,
	)
	res, err := engine.StyleMix(context.Background(), stylegan.StyleMixRequest{
		Model:      smallEntry(256).Descriptor,
		Row:        stylegan.Seed(1),
		Col:        stylegan.Seed(2),
		Band:       stylegan.Middle,
		Truncation: 1,
	})
	if err != nil {
		t.Fatalf("StyleMix: %v", err)
	}
	if res.Result.Image.Equal(res.Row.Image) || res.Result.Image.Equal(res.Col.Image) {
		t.Fatalf("mixed image should differ from both parents")
	}
}

func TestSyntheticProjectionReducesDistance(t *testing.T) {
	ctx := context.Background()
	g, err := NewSynthetic(smallEntry(64))
	if err != nil {
		t.Fatalf("NewSynthetic: %v", err)
	}
	goal, _ := g.Map(ctx, stylegan.LatentFromSeed(7, 16), 1)
	img, err := g.Synthesize(ctx, goal)
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	target, err := g.TargetFeatures(ctx, img)
	if err != nil {
		t.Fatalf("TargetFeatures: %v", err)
	}

	engine := stylegan.NewEngine(
		stylegan.NewModelCache(stylegan.LoaderFunc(func(context.Context, stylegan.ModelDescriptor) (stylegan.Generator, error) {
			return g, nil
		})),
		stylegan.NewResolver(nil, nil),
		nil,
	)
	code, err := engine.Project(ctx, smallEntry(64).Descriptor, img.RGBA(), stylegan.ProjectOptions{Steps: 80, WAvgSamples: 500})
	if err != nil {
		t.Fatalf("Project: %v", err)
	}

	before, _, _, err := g.PerceptualGrad(ctx, stylegan.Broadcast(g.avg, g.info.Layers), g.noise, target)
	if err != nil {
		t.Fatalf("PerceptualGrad: %v", err)
	}
	after, _, _, err := g.PerceptualGrad(ctx, code, g.noise, target)
	if err != nil {
		t.Fatalf("PerceptualGrad: %v", err)
	}
	if after >= before {
		t.Fatalf("projection did not improve: before %v, after %v", before, after)
	}
}
