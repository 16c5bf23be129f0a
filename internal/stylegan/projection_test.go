package stylegan

import (
	"context"
	"errors"
	"image"
	"image/color"
	"math"
	"testing"
)

// quadraticProjectable has a perceptual distance equal to the squared
// distance between the layer-mean of ws and a fixed feature vector.
type quadraticProjectable struct {
	*fakeGenerator
	target []float32
}

func (q *quadraticProjectable) NoiseShapes() []NoiseShape {
	return []NoiseShape{{Height: 16, Width: 16}, {Height: 8, Width: 8}}
}

func (q *quadraticProjectable) TargetFeatures(context.Context, ImageBuffer) ([]float32, error) {
	return q.target, nil
}

func (q *quadraticProjectable) PerceptualGrad(_ context.Context, ws StyleCode, noise []NoiseBuffer, target []float32) (float64, StyleCode, []NoiseBuffer, error) {
	mean := make([]float64, ws.Channels)
	for l := 0; l < ws.Layers; l++ {
		for c, v := range ws.Row(l) {
			mean[c] += float64(v) / float64(ws.Layers)
		}
	}
	dist := 0.0
	grad := NewStyleCode(ws.Layers, ws.Channels)
	for c := range mean {
		d := mean[c] - float64(target[c])
		dist += d * d
		for l := 0; l < ws.Layers; l++ {
			grad.Row(l)[c] = float32(2 * d / float64(ws.Layers))
		}
	}
	gradNoise := make([]NoiseBuffer, len(noise))
	for i, n := range noise {
		gradNoise[i] = NoiseBuffer{Height: n.Height, Width: n.Width, Data: make([]float32, len(n.Data))}
	}
	return dist, grad, gradNoise, nil
}

func TestProjectConvergesOnQuadraticObjective(t *testing.T) {
	gen := newFakeGenerator(14)
	gen.info.WDim = 4
	gen.info.ZDim = 4
	p := &quadraticProjectable{fakeGenerator: gen, target: []float32{1, -1, 0.5, 2}}
	engine, _ := newTestEngine(p, nil)

	target := image.NewRGBA(image.Rect(0, 0, 8, 8))
	code, err := engine.Project(context.Background(), testModel, target, ProjectOptions{Steps: 200, WAvgSamples: 200})
	if err != nil {
		t.Fatalf("Project: %v", err)
	}
	if code.Layers != 14 || code.Channels != 4 {
		t.Fatalf("shape = %dx%d", code.Layers, code.Channels)
	}
	for l := 1; l < code.Layers; l++ {
		for c := range code.Row(l) {
			if code.Row(l)[c] != code.Row(0)[c] {
				t.Fatalf("projected code is not broadcast across layers")
			}
		}
	}
	for c, want := range p.target {
		if got := code.Row(0)[c]; math.Abs(float64(got-want)) > 0.3 {
			t.Fatalf("channel %d = %v, want ~%v", c, got, want)
		}
	}
}

func TestProjectIsDeterministic(t *testing.T) {
	run := func() StyleCode {
		gen := newFakeGenerator(14)
		gen.info.WDim = 4
		gen.info.ZDim = 4
		p := &quadraticProjectable{fakeGenerator: gen, target: []float32{0.3, 0.1, -0.2, 0}}
		engine, _ := newTestEngine(p, nil)
		code, err := engine.Project(context.Background(), testModel, image.NewRGBA(image.Rect(0, 0, 4, 4)), ProjectOptions{Steps: 20, WAvgSamples: 50})
		if err != nil {
			t.Fatalf("Project: %v", err)
		}
		return code
	}
	if !run().Equal(run()) {
		t.Fatalf("projection with the same seed diverged")
	}
}

func TestProjectRequiresProjectableGenerator(t *testing.T) {
	engine, _ := newTestEngine(newFakeGenerator(14), nil)
	_, err := engine.Project(context.Background(), testModel, image.NewRGBA(image.Rect(0, 0, 4, 4)), ProjectOptions{})
	if !errors.Is(err, ErrProjectionUnsupported) {
		t.Fatalf("err = %v, want ErrProjectionUnsupported", err)
	}
}

func TestLearningRateSchedule(t *testing.T) {
	opts := ProjectOptions{Steps: 100}
	if lr := opts.LearningRate(0); lr != 0 {
		t.Fatalf("lr at step 0 = %v, want 0", lr)
	}
	if lr := opts.LearningRate(50); math.Abs(lr-0.1) > 1e-12 {
		t.Fatalf("lr mid-run = %v, want 0.1", lr)
	}
	if lr := opts.LearningRate(99); lr <= 0 || lr >= 0.01 {
		t.Fatalf("lr at last step = %v, want small positive", lr)
	}
	if a, b := opts.LearningRate(1), opts.LearningRate(4); a >= b {
		t.Fatalf("ramp up not increasing: %v then %v", a, b)
	}
}

func TestPrepareTargetCropsCenterSquare(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 30, 10))
	for y := 0; y < 10; y++ {
		for x := 0; x < 30; x++ {
			c := color.RGBA{B: 255, A: 255}
			if x >= 10 && x < 20 {
				c = color.RGBA{R: 255, A: 255}
			}
			src.Set(x, y, c)
		}
	}
	got := PrepareTarget(src, 8)
	if got.Width != 8 || got.Height != 8 {
		t.Fatalf("size = %dx%d", got.Width, got.Height)
	}
	r, _, b := got.At(4, 4)
	if r < 200 || b > 50 {
		t.Fatalf("center pixel = (%d, _, %d), want red", r, b)
	}
}

func TestNoiseRegularizationGradient(t *testing.T) {
	src := NewLatentSource(1)
	buf := NoiseBuffer{Height: 16, Width: 16, Data: make([]float32, 256)}
	for i := range buf.Data {
		buf.Data[i] = float32(src.Normal())
	}
	noise := []NoiseBuffer{buf}
	_, grads := noiseRegularization(noise)

	for _, idx := range []int{0, 17, 100, 255} {
		orig := buf.Data[idx]
		const h = 1e-2
		buf.Data[idx] = orig + h
		up, _ := noiseRegularization(noise)
		plus := float64(buf.Data[idx])
		buf.Data[idx] = orig - h
		down, _ := noiseRegularization(noise)
		minus := float64(buf.Data[idx])
		buf.Data[idx] = orig

		numeric := (up - down) / (plus - minus)
		analytic := float64(grads[0][idx])
		if math.Abs(numeric-analytic) > 1e-2*math.Abs(analytic)+1e-6 {
			t.Fatalf("index %d: numeric %v, analytic %v", idx, numeric, analytic)
		}
	}
}

func TestNormalizeNoise(t *testing.T) {
	buf := NoiseBuffer{Height: 4, Width: 4, Data: make([]float32, 16)}
	for i := range buf.Data {
		buf.Data[i] = float32(i) * 3
	}
	normalizeNoise([]NoiseBuffer{buf})
	var mean, sq float64
	for _, v := range buf.Data {
		mean += float64(v)
		sq += float64(v) * float64(v)
	}
	mean /= 16
	sq /= 16
	if math.Abs(mean) > 1e-5 || math.Abs(sq-1) > 1e-5 {
		t.Fatalf("mean = %v, second moment = %v", mean, sq)
	}
}

func TestProjectOptionsKeepExplicitZeroSeed(t *testing.T) {
	zero := uint32(0)
	if got := (ProjectOptions{Seed: &zero}).withDefaults(); got.Seed == nil || *got.Seed != 0 {
		t.Fatalf("explicit seed 0 replaced: %v", got.Seed)
	}
	if got := (ProjectOptions{}).withDefaults(); got.Seed == nil || *got.Seed != DefaultProjectionSeed {
		t.Fatalf("unset seed = %v, want %d", got.Seed, DefaultProjectionSeed)
	}
}
