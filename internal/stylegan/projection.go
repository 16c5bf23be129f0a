package stylegan

import (
	"context"
	"fmt"
	"image"
	"math"

	"golang.org/x/image/draw"
)

// NoiseShape is the size of one per-layer noise input of the synthesis
// network.
type NoiseShape struct {
	Height int
	Width  int
}

// NoiseBuffer holds the values of one noise input.
type NoiseBuffer struct {
	Height int
	Width  int
	Data   []float32
}

func newNoiseBuffer(s NoiseShape) NoiseBuffer {
	return NoiseBuffer{Height: s.Height, Width: s.Width, Data: make([]float32, s.Height*s.Width)}
}

// Projectable is implemented by generators that can report the perceptual
// distance between a synthesized image and a target, with gradients. The
// feature extractor behind TargetFeatures and PerceptualGrad is fixed per
// generator.
type Projectable interface {
	Generator
	NoiseShapes() []NoiseShape
	TargetFeatures(ctx context.Context, target ImageBuffer) ([]float32, error)
	// PerceptualGrad synthesizes ws with the given noise inputs and returns
	// the squared feature distance to target together with its gradient
	// with respect to every row of ws and every noise buffer.
	PerceptualGrad(ctx context.Context, ws StyleCode, noise []NoiseBuffer, target []float32) (float64, StyleCode, []NoiseBuffer, error)
}

// ProjectOptions tunes latent inversion. Zero fields take the defaults of
// DefaultProjectOptions; a nil Seed means DefaultProjectionSeed, so seed 0 can
// be chosen explicitly.
type ProjectOptions struct {
	Steps                 int
	Seed                  *uint32
	WAvgSamples           int
	InitialLearningRate   float64
	InitialNoiseFactor    float64
	LRRampDownLength      float64
	LRRampUpLength        float64
	NoiseRampLength       float64
	RegularizeNoiseWeight float64
}

// DefaultProjectionSeed seeds noise initialization and the w perturbation
// when the caller does not choose one.
const DefaultProjectionSeed = 303

const wStatsSeed = 123

// DefaultProjectOptions returns the standard schedule.
func DefaultProjectOptions() ProjectOptions {
	seed := uint32(DefaultProjectionSeed)
	return ProjectOptions{
		Steps:                 100,
		Seed:                  &seed,
		WAvgSamples:           10000,
		InitialLearningRate:   0.1,
		InitialNoiseFactor:    0.05,
		LRRampDownLength:      0.25,
		LRRampUpLength:        0.05,
		NoiseRampLength:       0.75,
		RegularizeNoiseWeight: 1e5,
	}
}

func (o ProjectOptions) withDefaults() ProjectOptions {
	d := DefaultProjectOptions()
	if o.Steps <= 0 {
		o.Steps = d.Steps
	}
	if o.Seed == nil {
		o.Seed = d.Seed
	}
	if o.WAvgSamples <= 0 {
		o.WAvgSamples = d.WAvgSamples
	}
	if o.InitialLearningRate <= 0 {
		o.InitialLearningRate = d.InitialLearningRate
	}
	if o.InitialNoiseFactor <= 0 {
		o.InitialNoiseFactor = d.InitialNoiseFactor
	}
	if o.LRRampDownLength <= 0 {
		o.LRRampDownLength = d.LRRampDownLength
	}
	if o.LRRampUpLength <= 0 {
		o.LRRampUpLength = d.LRRampUpLength
	}
	if o.NoiseRampLength <= 0 {
		o.NoiseRampLength = d.NoiseRampLength
	}
	if o.RegularizeNoiseWeight <= 0 {
		o.RegularizeNoiseWeight = d.RegularizeNoiseWeight
	}
	return o
}

// LearningRate returns the learning rate at step: a cosine ramp up over the
// first LRRampUpLength of the run and a cosine ramp down over the last
// LRRampDownLength.
func (o ProjectOptions) LearningRate(step int) float64 {
	o = o.withDefaults()
	t := float64(step) / float64(o.Steps)
	ramp := math.Min(1, (1-t)/o.LRRampDownLength)
	ramp = 0.5 - 0.5*math.Cos(ramp*math.Pi)
	ramp *= math.Min(1, t/o.LRRampUpLength)
	return o.InitialLearningRate * ramp
}

// PrepareTarget center-crops img to a square and resamples it to
// resolution x resolution.
func PrepareTarget(img image.Image, resolution int) ImageBuffer {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	s := min(w, h)
	crop := image.Rect(b.Min.X+(w-s)/2, b.Min.Y+(h-s)/2, b.Min.X+(w+s)/2, b.Min.Y+(h+s)/2)
	dst := image.NewRGBA(image.Rect(0, 0, resolution, resolution))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, crop, draw.Src, nil)
	return ImageBufferFrom(dst)
}

// Project finds a style code whose synthesis approximates target. The model
// handle is held for the whole optimization. The returned code is the one
// of the final step.
func (e *Engine) Project(ctx context.Context, d ModelDescriptor, target image.Image, opts ProjectOptions) (StyleCode, error) {
	model, err := e.models.Get(ctx, d)
	if err != nil {
		return StyleCode{}, err
	}
	prepared := PrepareTarget(target, model.Info().Resolution)
	var out StyleCode
	err = model.Exclusive(func(gen Generator) error {
		p, ok := gen.(Projectable)
		if !ok {
			return fmt.Errorf("%w: %s", ErrProjectionUnsupported, d)
		}
		code, err := e.project(ctx, p, prepared, opts.withDefaults())
		if err != nil {
			return err
		}
		out = code
		return nil
	})
	return out, err
}

func (e *Engine) project(ctx context.Context, p Projectable, target ImageBuffer, o ProjectOptions) (StyleCode, error) {
	info := p.Info()
	if target.Width != info.Resolution || target.Height != info.Resolution {
		return StyleCode{}, fmt.Errorf("stylegan: target is %dx%d, model renders %d", target.Width, target.Height, info.Resolution)
	}

	wAvg, wStd, err := mappingStats(ctx, p, o.WAvgSamples)
	if err != nil {
		return StyleCode{}, err
	}
	targetFeatures, err := p.TargetFeatures(ctx, target)
	if err != nil {
		return StyleCode{}, fmt.Errorf("stylegan: target features: %w", err)
	}

	rng := NewLatentSource(*o.Seed)
	w := append([]float32(nil), wAvg...)
	shapes := p.NoiseShapes()
	noise := make([]NoiseBuffer, len(shapes))
	for i, s := range shapes {
		noise[i] = newNoiseBuffer(s)
		for j := range noise[i].Data {
			noise[i].Data[j] = float32(rng.Normal())
		}
	}

	params := make([][]float32, 0, 1+len(noise))
	params = append(params, w)
	for i := range noise {
		params = append(params, noise[i].Data)
	}
	opt := newAdam(params, 0.9, 0.999, 1e-8)

	wIn := make([]float32, len(w))
	grads := make([][]float32, len(params))
	grads[0] = make([]float32, len(w))
	for step := 0; step < o.Steps; step++ {
		t := float64(step) / float64(o.Steps)
		wNoiseScale := wStd * o.InitialNoiseFactor * math.Pow(math.Max(0, 1-t/o.NoiseRampLength), 2)
		lr := o.LearningRate(step)

		for i := range w {
			wIn[i] = w[i] + float32(rng.Normal()*wNoiseScale)
		}
		ws := Broadcast(wIn, info.Layers)
		dist, gradWS, gradNoise, err := p.PerceptualGrad(ctx, ws, noise, targetFeatures)
		if err != nil {
			return StyleCode{}, fmt.Errorf("stylegan: projection step %d: %w", step, err)
		}
		if len(gradNoise) != len(noise) || !gradWS.SameShape(ws) {
			return StyleCode{}, fmt.Errorf("stylegan: projection step %d: gradient shape mismatch", step)
		}

		gw := grads[0]
		clear(gw)
		for l := 0; l < gradWS.Layers; l++ {
			row := gradWS.Row(l)
			for c := range gw {
				gw[c] += row[c]
			}
		}
		reg, regGrads := noiseRegularization(noise)
		for i := range noise {
			g := make([]float32, len(noise[i].Data))
			for j := range g {
				g[j] = gradNoise[i].Data[j] + float32(o.RegularizeNoiseWeight)*regGrads[i][j]
			}
			grads[1+i] = g
		}
		opt.step(grads, lr)
		normalizeNoise(noise)

		if step%max(1, o.Steps/10) == 0 || step == o.Steps-1 {
			e.logger.Debug().
				Int("step", step).
				Float64("dist", dist).
				Float64("noise_reg", reg).
				Float64("lr", lr).
				Msg("stylegan: projection")
		}
	}
	return Broadcast(w, info.Layers), nil
}

// mappingStats samples the mapping network at psi=1 and returns the mean of
// the first w row and the root mean squared distance to it.
func mappingStats(ctx context.Context, g Generator, samples int) ([]float32, float64, error) {
	info := g.Info()
	src := NewLatentSource(wStatsSeed)
	z := make([]float64, info.ZDim)
	sum := make([]float64, info.WDim)
	sumSq := 0.0
	for n := 0; n < samples; n++ {
		src.Fill(z)
		code, err := g.Map(ctx, z, 1)
		if err != nil {
			return nil, 0, fmt.Errorf("stylegan: mapping stats: %w", err)
		}
		row := code.Row(0)
		if len(row) != len(sum) {
			return nil, 0, fmt.Errorf("%w: mapping returned %d channels, model declares %d", ErrIncompatibleStyleCode, len(row), len(sum))
		}
		for c, v := range row {
			sum[c] += float64(v)
			sumSq += float64(v) * float64(v)
		}
	}
	avg := make([]float32, len(sum))
	norm := 0.0
	for c := range sum {
		m := sum[c] / float64(samples)
		avg[c] = float32(m)
		norm += m * m
	}
	variance := sumSq/float64(samples) - norm
	return avg, math.Sqrt(math.Max(variance, 0)), nil
}

// noiseRegularization penalizes spatial autocorrelation of every noise
// buffer at every scale of a 2x average-pooling pyramid, stopping once a
// level is 8 rows or fewer. It returns the penalty and its gradient.
func noiseRegularization(noise []NoiseBuffer) (float64, [][]float32) {
	total := 0.0
	grads := make([][]float32, len(noise))
	for i, buf := range noise {
		levels := []noiseLevel{{h: buf.Height, w: buf.Width, v: toFloat64(buf.Data)}}
		for {
			cur := &levels[len(levels)-1]
			cur.aW, cur.aH = autocorrelation(cur.v, cur.h, cur.w)
			total += cur.aW*cur.aW + cur.aH*cur.aH
			if cur.h <= 8 || cur.h < 2 || cur.w < 2 {
				break
			}
			levels = append(levels, avgPool2(*cur))
		}

		var upstream []float64
		for k := len(levels) - 1; k >= 0; k-- {
			lv := levels[k]
			g := make([]float64, len(lv.v))
			if upstream != nil {
				child := levels[k+1]
				for y := 0; y < child.h; y++ {
					for x := 0; x < child.w; x++ {
						share := upstream[y*child.w+x] / 4
						g[(2*y)*lv.w+2*x] += share
						g[(2*y)*lv.w+2*x+1] += share
						g[(2*y+1)*lv.w+2*x] += share
						g[(2*y+1)*lv.w+2*x+1] += share
					}
				}
			}
			n := float64(lv.h * lv.w)
			for y := 0; y < lv.h; y++ {
				up, down := (y-1+lv.h)%lv.h, (y+1)%lv.h
				for x := 0; x < lv.w; x++ {
					left, right := (x-1+lv.w)%lv.w, (x+1)%lv.w
					dW := (lv.v[y*lv.w+left] + lv.v[y*lv.w+right]) / n
					dH := (lv.v[up*lv.w+x] + lv.v[down*lv.w+x]) / n
					g[y*lv.w+x] += 2*lv.aW*dW + 2*lv.aH*dH
				}
			}
			upstream = g
		}
		out := make([]float32, len(upstream))
		for j, v := range upstream {
			out[j] = float32(v)
		}
		grads[i] = out
	}
	return total, grads
}

type noiseLevel struct {
	h, w   int
	v      []float64
	aW, aH float64
}

// autocorrelation returns mean(v * roll(v, 1, x)) and mean(v * roll(v, 1, y)).
func autocorrelation(v []float64, h, w int) (float64, float64) {
	var sw, sh float64
	for y := 0; y < h; y++ {
		up := (y - 1 + h) % h
		for x := 0; x < w; x++ {
			left := (x - 1 + w) % w
			sw += v[y*w+x] * v[y*w+left]
			sh += v[y*w+x] * v[up*w+x]
		}
	}
	n := float64(h * w)
	return sw / n, sh / n
}

func avgPool2(lv noiseLevel) noiseLevel {
	h, w := lv.h/2, lv.w/2
	out := make([]float64, h*w)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			out[y*w+x] = (lv.v[(2*y)*lv.w+2*x] + lv.v[(2*y)*lv.w+2*x+1] +
				lv.v[(2*y+1)*lv.w+2*x] + lv.v[(2*y+1)*lv.w+2*x+1]) / 4
		}
	}
	return noiseLevel{h: h, w: w, v: out}
}

// normalizeNoise shifts every buffer to zero mean and scales it to unit
// second moment.
func normalizeNoise(noise []NoiseBuffer) {
	for _, buf := range noise {
		if len(buf.Data) == 0 {
			continue
		}
		mean := 0.0
		for _, v := range buf.Data {
			mean += float64(v)
		}
		mean /= float64(len(buf.Data))
		sq := 0.0
		for i, v := range buf.Data {
			c := float64(v) - mean
			buf.Data[i] = float32(c)
			sq += c * c
		}
		sq /= float64(len(buf.Data))
		if sq == 0 {
			continue
		}
		scale := float32(1 / math.Sqrt(sq))
		for i := range buf.Data {
			buf.Data[i] *= scale
		}
	}
}

func toFloat64(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}

// adam updates a fixed set of parameter slices in place.
type adam struct {
	params       [][]float32
	m, v         [][]float64
	beta1, beta2 float64
	eps          float64
	t            int
}

func newAdam(params [][]float32, beta1, beta2, eps float64) *adam {
	a := &adam{params: params, beta1: beta1, beta2: beta2, eps: eps}
	a.m = make([][]float64, len(params))
	a.v = make([][]float64, len(params))
	for i, p := range params {
		a.m[i] = make([]float64, len(p))
		a.v[i] = make([]float64, len(p))
	}
	return a
}

func (a *adam) step(grads [][]float32, lr float64) {
	a.t++
	c1 := 1 - math.Pow(a.beta1, float64(a.t))
	c2 := 1 - math.Pow(a.beta2, float64(a.t))
	for i, p := range a.params {
		m, v, g := a.m[i], a.v[i], grads[i]
		for j := range p {
			gj := float64(g[j])
			m[j] = a.beta1*m[j] + (1-a.beta1)*gj
			v[j] = a.beta2*v[j] + (1-a.beta2)*gj*gj
			p[j] -= float32(lr * (m[j] / c1) / (math.Sqrt(v[j]/c2) + a.eps))
		}
	}
}
