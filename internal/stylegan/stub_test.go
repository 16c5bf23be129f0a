package stylegan

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"sync"
	"sync/atomic"
	"testing"
)

// fakeGenerator maps z to rows offset by layer index and renders an image
// whose pixels are a hash of the code, so distinct codes give distinct images.
type fakeGenerator struct {
	info ModelInfo

	maps   atomic.Int64
	synths atomic.Int64
}

func newFakeGenerator(layers int) *fakeGenerator {
	return &fakeGenerator{info: ModelInfo{Resolution: 4, Layers: layers, ZDim: 8, WDim: 8}}
}

func (g *fakeGenerator) Info() ModelInfo { return g.info }

func (g *fakeGenerator) Map(_ context.Context, z []float64, psi float64) (StyleCode, error) {
	g.maps.Add(1)
	code := NewStyleCode(g.info.Layers, g.info.WDim)
	for l := 0; l < code.Layers; l++ {
		row := code.Row(l)
		for c := range row {
			row[c] = float32(z[c%len(z)]) + float32(l)*0.01
		}
	}
	return Truncate(code, make([]float32, g.info.WDim), psi, TruncationCutoff), nil
}

func (g *fakeGenerator) Synthesize(_ context.Context, code StyleCode) (ImageBuffer, error) {
	g.synths.Add(1)
	h := fnv.New64a()
	for _, v := range code.Data {
		bits := math.Float32bits(v)
		_, _ = h.Write([]byte{byte(bits), byte(bits >> 8), byte(bits >> 16), byte(bits >> 24)})
	}
	sum := h.Sum64()
	img := NewImageBuffer(g.info.Resolution, g.info.Resolution)
	for i := range img.Pix {
		img.Pix[i] = byte(sum >> (8 * (i % 8)))
	}
	return img, nil
}

type countingLoader struct {
	gen   Generator
	err   error
	loads atomic.Int64
}

func (l *countingLoader) Load(_ context.Context, d ModelDescriptor) (Generator, error) {
	l.loads.Add(1)
	if l.err != nil {
		return nil, l.err
	}
	return l.gen, nil
}

// memoryVectors serves encoded style codes by id.
type memoryVectors struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemoryVectors() *memoryVectors {
	return &memoryVectors{data: map[string][]byte{}}
}

func (m *memoryVectors) put(t *testing.T, code StyleCode) string {
	t.Helper()
	raw, err := code.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary: %v", err)
	}
	id := NewArtifactID()
	m.mu.Lock()
	m.data[id] = raw
	m.mu.Unlock()
	return id
}

func (m *memoryVectors) StyleCodeBytes(_ context.Context, id string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, ok := m.data[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrArtifactNotFound, id)
	}
	return raw, nil
}

var testModel = ModelDescriptor{Images: 31, Resolution: 256, FID: 12}

func newTestEngine(gen Generator, vectors VectorSource) (*Engine, *countingLoader) {
	loader := &countingLoader{gen: gen}
	return NewEngine(NewModelCache(loader), NewResolver(vectors, nil), nil), loader
}

func codeForSeed(t *testing.T, gen Generator, seed uint32, psi float64) StyleCode {
	t.Helper()
	code, err := gen.Map(context.Background(), LatentFromSeed(seed, gen.Info().ZDim), psi)
	if err != nil {
		t.Fatalf("Map: %v", err)
	}
	return code
}
