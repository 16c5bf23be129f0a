package stylegan

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
)

var styleCodeMagic = [4]byte{'S', 'G', 'W', 1}

const styleCodeHeaderLen = 12

// StyleCode is a per-layer latent code (the "w" tensor): Layers rows of
// Channels float32 values, stored row-major.
type StyleCode struct {
	Layers   int
	Channels int
	Data     []float32
}

// NewStyleCode allocates a zeroed code.
func NewStyleCode(layers, channels int) StyleCode {
	return StyleCode{Layers: layers, Channels: channels, Data: make([]float32, layers*channels)}
}

// Broadcast builds a code whose every row equals w.
func Broadcast(w []float32, layers int) StyleCode {
	code := NewStyleCode(layers, len(w))
	for l := 0; l < layers; l++ {
		copy(code.Row(l), w)
	}
	return code
}

// Row returns a view of layer i. Writes through the view mutate the code.
func (c StyleCode) Row(i int) []float32 {
	return c.Data[i*c.Channels : (i+1)*c.Channels]
}

// Clone returns a deep copy that shares no memory with c.
func (c StyleCode) Clone() StyleCode {
	out := StyleCode{Layers: c.Layers, Channels: c.Channels, Data: make([]float32, len(c.Data))}
	copy(out.Data, c.Data)
	return out
}

// Validate checks the shape invariants.
func (c StyleCode) Validate() error {
	if c.Layers <= 0 || c.Channels <= 0 {
		return fmt.Errorf("%w: shape %dx%d", ErrIncompatibleStyleCode, c.Layers, c.Channels)
	}
	if len(c.Data) != c.Layers*c.Channels {
		return fmt.Errorf("%w: %d values for shape %dx%d", ErrIncompatibleStyleCode, len(c.Data), c.Layers, c.Channels)
	}
	return nil
}

// SameShape reports whether both codes have identical dimensions.
func (c StyleCode) SameShape(o StyleCode) bool {
	return c.Layers == o.Layers && c.Channels == o.Channels
}

// Equal reports bit-level equality.
func (c StyleCode) Equal(o StyleCode) bool {
	if !c.SameShape(o) || len(c.Data) != len(o.Data) {
		return false
	}
	for i := range c.Data {
		if math.Float32bits(c.Data[i]) != math.Float32bits(o.Data[i]) {
			return false
		}
	}
	return true
}

// MarshalBinary encodes the code as a 12 byte header (magic, layers,
// channels) followed by little-endian float32 values.
func (c StyleCode) MarshalBinary() ([]byte, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	buf := make([]byte, styleCodeHeaderLen+4*len(c.Data))
	copy(buf, styleCodeMagic[:])
	binary.LittleEndian.PutUint32(buf[4:], uint32(c.Layers))
	binary.LittleEndian.PutUint32(buf[8:], uint32(c.Channels))
	for i, v := range c.Data {
		binary.LittleEndian.PutUint32(buf[styleCodeHeaderLen+4*i:], math.Float32bits(v))
	}
	return buf, nil
}

// UnmarshalBinary decodes bytes produced by MarshalBinary. Any malformed
// input yields ErrArtifactCorrupt.
func (c *StyleCode) UnmarshalBinary(data []byte) error {
	if len(data) < styleCodeHeaderLen || !bytes.Equal(data[:4], styleCodeMagic[:]) {
		return fmt.Errorf("%w: bad style code header", ErrArtifactCorrupt)
	}
	layers := int(binary.LittleEndian.Uint32(data[4:]))
	channels := int(binary.LittleEndian.Uint32(data[8:]))
	if layers <= 0 || channels <= 0 || layers > 1<<10 || channels > 1<<16 {
		return fmt.Errorf("%w: implausible shape %dx%d", ErrArtifactCorrupt, layers, channels)
	}
	n := layers * channels
	if len(data) != styleCodeHeaderLen+4*n {
		return fmt.Errorf("%w: %d payload bytes for shape %dx%d", ErrArtifactCorrupt, len(data)-styleCodeHeaderLen, layers, channels)
	}
	out := NewStyleCode(layers, channels)
	for i := range out.Data {
		out.Data[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[styleCodeHeaderLen+4*i:]))
	}
	*c = out
	return nil
}

// DecodeStyleCode is a convenience wrapper around UnmarshalBinary.
func DecodeStyleCode(data []byte) (StyleCode, error) {
	var c StyleCode
	if err := c.UnmarshalBinary(data); err != nil {
		return StyleCode{}, err
	}
	return c, nil
}

// TruncationCutoff is the number of leading layers the truncation trick is
// applied to.
const TruncationCutoff = 8

// Truncate blends the first cutoff rows of code towards avg:
// avg + psi*(row-avg). cutoff <= 0 applies to every row. psi is not clamped;
// values outside [-2, 2] extrapolate further away from the average.
func Truncate(code StyleCode, avg []float32, psi float64, cutoff int) StyleCode {
	out := code.Clone()
	if cutoff <= 0 || cutoff > out.Layers {
		cutoff = out.Layers
	}
	p := float32(psi)
	for l := 0; l < cutoff; l++ {
		row := out.Row(l)
		for i := range row {
			row[i] = avg[i] + p*(row[i]-avg[i])
		}
	}
	return out
}
