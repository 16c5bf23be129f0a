package stylegan

import "math"

const (
	mtN         = 624
	mtM         = 397
	mtMatrixA   = 0x9908b0df
	mtUpperMask = 0x80000000
	mtLowerMask = 0x7fffffff
)

// LatentSource is a Mersenne Twister stream producing standard normal
// samples with the legacy polar method, bit-compatible with
// numpy.random.RandomState(seed).randn.
type LatentSource struct {
	mt       [mtN]uint32
	pos      int
	hasGauss bool
	gauss    float64
}

// NewLatentSource seeds a stream.
func NewLatentSource(seed uint32) *LatentSource {
	s := &LatentSource{}
	s.mt[0] = seed
	for i := 1; i < mtN; i++ {
		prev := s.mt[i-1]
		s.mt[i] = 1812433253*(prev^(prev>>30)) + uint32(i)
	}
	s.pos = mtN
	return s
}

func (s *LatentSource) twist() {
	for i := 0; i < mtN; i++ {
		y := (s.mt[i] & mtUpperMask) | (s.mt[(i+1)%mtN] & mtLowerMask)
		next := s.mt[(i+mtM)%mtN] ^ (y >> 1)
		if y&1 != 0 {
			next ^= mtMatrixA
		}
		s.mt[i] = next
	}
	s.pos = 0
}

// Uint32 returns the next tempered 32-bit output.
func (s *LatentSource) Uint32() uint32 {
	if s.pos >= mtN {
		s.twist()
	}
	y := s.mt[s.pos]
	s.pos++
	y ^= y >> 11
	y ^= (y << 7) & 0x9d2c5680
	y ^= (y << 15) & 0xefc60000
	y ^= y >> 18
	return y
}

// Float64 returns a uniform double in [0, 1) with 53 bits of precision.
func (s *LatentSource) Float64() float64 {
	a := s.Uint32() >> 5
	b := s.Uint32() >> 6
	return (float64(a)*67108864.0 + float64(b)) / 9007199254740992.0
}

// Normal returns a standard normal sample.
func (s *LatentSource) Normal() float64 {
	if s.hasGauss {
		s.hasGauss = false
		return s.gauss
	}
	var x1, x2, r2 float64
	for {
		x1 = 2*s.Float64() - 1
		x2 = 2*s.Float64() - 1
		r2 = x1*x1 + x2*x2
		if r2 < 1 && r2 != 0 {
			break
		}
	}
	f := math.Sqrt(-2 * math.Log(r2) / r2)
	s.gauss = f * x1
	s.hasGauss = true
	return f * x2
}

// Fill writes len(dst) normal samples.
func (s *LatentSource) Fill(dst []float64) {
	for i := range dst {
		dst[i] = s.Normal()
	}
}

// LatentFromSeed returns the z vector of length dim for seed. The same seed
// always yields the same vector.
func LatentFromSeed(seed uint32, dim int) []float64 {
	z := make([]float64, dim)
	NewLatentSource(seed).Fill(z)
	return z
}
