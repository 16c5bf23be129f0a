package gan

import (
	"context"
	"fmt"
	"hash/fnv"
	"image"
	"image/color"
	"math"
	"math/rand/v2"

	"golang.org/x/image/draw"

	"stylegan-api/internal/stylegan"
)

const (
	synthGrid          = 8
	synthCells         = synthGrid * synthGrid * 3
	synthNoiseStrength = 0.1
	defaultZDim        = 512
	defaultWDim        = 512
)

// Synthetic is a deterministic, dependency-free generator with the shape of
// a StyleGAN2 network: a mapping layer from z to w, one style row per
// synthesis layer and per-layer noise inputs. Its weights are derived from
// the checkpoint name (or the manifest seed), so a given checkpoint always
// renders the same images. The "perceptual" features used for projection
// are the generator's own low-resolution color grid.
type Synthetic struct {
	info stylegan.ModelInfo

	mapW  []float32
	mapB  []float32
	avg   []float32
	basis []float32
	norm  float32
	noise []stylegan.NoiseBuffer
}

// SyntheticBackend is a Backend that builds Synthetic generators.
func SyntheticBackend(_ context.Context, e Entry) (stylegan.Generator, error) {
	return NewSynthetic(e)
}

// NewSynthetic derives a generator for e.
func NewSynthetic(e Entry) (*Synthetic, error) {
	layers := stylegan.LayerCount(e.Descriptor.Resolution)
	if layers == 0 {
		return nil, fmt.Errorf("gan: resolution %d is not a power of two >= 4", e.Descriptor.Resolution)
	}
	zDim, wDim := e.Manifest.ZDim, e.Manifest.WDim
	if zDim <= 0 {
		zDim = defaultZDim
	}
	if wDim <= 0 {
		wDim = defaultWDim
	}
	seed := e.Manifest.Seed
	if seed == 0 {
		h := fnv.New64a()
		_, _ = h.Write([]byte(e.Descriptor.Stem()))
		seed = h.Sum64()
	}
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))

	s := &Synthetic{
		info: stylegan.ModelInfo{Resolution: e.Descriptor.Resolution, Layers: layers, ZDim: zDim, WDim: wDim},
		mapW: make([]float32, wDim*zDim),
		mapB: make([]float32, wDim),
		avg:  make([]float32, wDim),
		norm: float32(math.Sqrt(3 / float64(layers*wDim))),
	}
	for i := range s.mapW {
		s.mapW[i] = float32(rng.NormFloat64())
	}
	for i := range s.mapB {
		s.mapB[i] = float32(rng.NormFloat64() * 0.5)
		s.avg[i] = float32(math.Tanh(float64(s.mapB[i])))
	}
	s.basis = make([]float32, layers*synthCells*wDim)
	for i := range s.basis {
		s.basis[i] = float32(rng.NormFloat64())
	}
	for _, shape := range s.NoiseShapes() {
		buf := stylegan.NoiseBuffer{Height: shape.Height, Width: shape.Width, Data: make([]float32, shape.Height*shape.Width)}
		for i := range buf.Data {
			buf.Data[i] = float32(rng.NormFloat64())
		}
		s.noise = append(s.noise, buf)
	}
	return s, nil
}

func (s *Synthetic) Info() stylegan.ModelInfo { return s.info }

// Map normalizes z, applies the mapping layer and truncates the broadcast
// code towards the tracked average w.
func (s *Synthetic) Map(_ context.Context, z []float64, truncationPsi float64) (stylegan.StyleCode, error) {
	if len(z) != s.info.ZDim {
		return stylegan.StyleCode{}, fmt.Errorf("%w: z has %d values, model takes %d", stylegan.ErrIncompatibleStyleCode, len(z), s.info.ZDim)
	}
	ms := 0.0
	for _, v := range z {
		ms += v * v
	}
	scale := 1 / math.Sqrt(ms/float64(len(z))+1e-8) / math.Sqrt(float64(len(z)))
	w := make([]float32, s.info.WDim)
	for o := range w {
		acc := float64(s.mapB[o])
		row := s.mapW[o*s.info.ZDim : (o+1)*s.info.ZDim]
		for i, v := range z {
			acc += float64(row[i]) * v * scale
		}
		w[o] = float32(math.Tanh(acc))
	}
	code := stylegan.Broadcast(w, s.info.Layers)
	return stylegan.Truncate(code, s.avg, truncationPsi, stylegan.TruncationCutoff), nil
}

// Synthesize renders code with the generator's constant noise.
func (s *Synthetic) Synthesize(_ context.Context, code stylegan.StyleCode) (stylegan.ImageBuffer, error) {
	if err := s.checkCode(code); err != nil {
		return stylegan.ImageBuffer{}, err
	}
	return s.render(s.forward(code, s.noise)), nil
}

func (s *Synthetic) NoiseShapes() []stylegan.NoiseShape {
	return []stylegan.NoiseShape{
		{Height: synthGrid, Width: synthGrid},
		{Height: synthGrid / 2, Width: synthGrid / 2},
	}
}

// TargetFeatures downsamples the target to the color grid in [-1, 1].
func (s *Synthetic) TargetFeatures(_ context.Context, target stylegan.ImageBuffer) ([]float32, error) {
	if target.Width <= 0 || target.Height <= 0 {
		return nil, fmt.Errorf("gan: empty target image")
	}
	small := image.NewRGBA(image.Rect(0, 0, synthGrid, synthGrid))
	draw.BiLinear.Scale(small, small.Bounds(), target.RGBA(), image.Rect(0, 0, target.Width, target.Height), draw.Src, nil)
	out := make([]float32, synthCells)
	for y := 0; y < synthGrid; y++ {
		for x := 0; x < synthGrid; x++ {
			p := small.RGBAAt(x, y)
			k := (y*synthGrid + x) * 3
			out[k] = float32(p.R)/127.5 - 1
			out[k+1] = float32(p.G)/127.5 - 1
			out[k+2] = float32(p.B)/127.5 - 1
		}
	}
	return out, nil
}

// PerceptualGrad returns the squared grid distance to target and its
// gradient with respect to ws and the noise inputs.
func (s *Synthetic) PerceptualGrad(_ context.Context, ws stylegan.StyleCode, noise []stylegan.NoiseBuffer, target []float32) (float64, stylegan.StyleCode, []stylegan.NoiseBuffer, error) {
	if err := s.checkCode(ws); err != nil {
		return 0, stylegan.StyleCode{}, nil, err
	}
	if err := s.checkNoise(noise); err != nil {
		return 0, stylegan.StyleCode{}, nil, err
	}
	if len(target) != synthCells {
		return 0, stylegan.StyleCode{}, nil, fmt.Errorf("gan: target has %d features, want %d", len(target), synthCells)
	}

	feat := s.forward(ws, noise)
	dist := 0.0
	gPre := make([]float64, synthCells)
	for k, f := range feat {
		d := f - float64(target[k])
		dist += d * d
		gPre[k] = 2 * d * (1 - f*f)
	}

	grad := stylegan.NewStyleCode(ws.Layers, ws.Channels)
	for l := 0; l < ws.Layers; l++ {
		row := grad.Row(l)
		for k, g := range gPre {
			gk := float32(g) * s.norm
			base := s.basisRow(l, k)
			for c := range row {
				row[c] += gk * base[c]
			}
		}
	}
	gradNoise := make([]stylegan.NoiseBuffer, len(noise))
	for i, n := range noise {
		gradNoise[i] = stylegan.NoiseBuffer{Height: n.Height, Width: n.Width, Data: make([]float32, len(n.Data))}
	}
	for k, g := range gPre {
		y, x := k/3/synthGrid, k/3%synthGrid
		gradNoise[0].Data[y*synthGrid+x] += float32(synthNoiseStrength * g)
		gradNoise[1].Data[(y/2)*(synthGrid/2)+x/2] += float32(synthNoiseStrength * g)
	}
	return dist, grad, gradNoise, nil
}

func (s *Synthetic) basisRow(layer, cell int) []float32 {
	off := (layer*synthCells + cell) * s.info.WDim
	return s.basis[off : off+s.info.WDim]
}

// forward returns the color grid in [-1, 1].
func (s *Synthetic) forward(ws stylegan.StyleCode, noise []stylegan.NoiseBuffer) []float64 {
	out := make([]float64, synthCells)
	for k := range out {
		acc := 0.0
		for l := 0; l < ws.Layers; l++ {
			base := s.basisRow(l, k)
			for c, v := range ws.Row(l) {
				acc += float64(base[c] * v)
			}
		}
		y, x := k/3/synthGrid, k/3%synthGrid
		n := noise[0].Data[y*synthGrid+x] + noise[1].Data[(y/2)*(synthGrid/2)+x/2]
		out[k] = math.Tanh(acc*float64(s.norm) + synthNoiseStrength*float64(n))
	}
	return out
}

func (s *Synthetic) render(grid []float64) stylegan.ImageBuffer {
	small := image.NewRGBA(image.Rect(0, 0, synthGrid, synthGrid))
	for y := 0; y < synthGrid; y++ {
		for x := 0; x < synthGrid; x++ {
			k := (y*synthGrid + x) * 3
			small.SetRGBA(x, y, color.RGBA{R: toByte(grid[k]), G: toByte(grid[k+1]), B: toByte(grid[k+2]), A: 0xff})
		}
	}
	res := s.info.Resolution
	full := image.NewRGBA(image.Rect(0, 0, res, res))
	draw.BiLinear.Scale(full, full.Bounds(), small, small.Bounds(), draw.Src, nil)
	return stylegan.ImageBufferFrom(full)
}

func (s *Synthetic) checkCode(code stylegan.StyleCode) error {
	if err := code.Validate(); err != nil {
		return err
	}
	if code.Layers != s.info.Layers || code.Channels != s.info.WDim {
		return fmt.Errorf("%w: code is %dx%d, model takes %dx%d", stylegan.ErrIncompatibleStyleCode, code.Layers, code.Channels, s.info.Layers, s.info.WDim)
	}
	return nil
}

func (s *Synthetic) checkNoise(noise []stylegan.NoiseBuffer) error {
	shapes := s.NoiseShapes()
	if len(noise) != len(shapes) {
		return fmt.Errorf("gan: got %d noise buffers, want %d", len(noise), len(shapes))
	}
	for i, shape := range shapes {
		if noise[i].Height != shape.Height || noise[i].Width != shape.Width || len(noise[i].Data) != shape.Height*shape.Width {
			return fmt.Errorf("gan: noise buffer %d has wrong shape", i)
		}
	}
	return nil
}

func toByte(v float64) uint8 {
	return uint8(math.Round(math.Max(0, math.Min(255, (v+1)*127.5))))
}
