package stylegan

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Band selects the contiguous range of synthesis layers the column image
// donates during a style mix.
type Band string

const (
	Coarse Band = "Coarse"
	Middle Band = "Middle"
	Fine   Band = "Fine"
)

// BandLayerCount is the layer count the band table is defined for.
const BandLayerCount = 14

// Coarse layers drive pose and shape, middle layers facial features, fine
// layers color and micro structure.
var bandRanges = map[Band][2]int{
	Coarse: {0, 2},
	Middle: {2, 6},
	Fine:   {6, 14},
}

// Bands lists the bands in layer order.
func Bands() []Band {
	return []Band{Coarse, Middle, Fine}
}

// ParseBand accepts a band name in any letter case.
func ParseBand(s string) (Band, error) {
	b := Band(cases.Title(language.Und).String(strings.TrimSpace(s)))
	if _, ok := bandRanges[b]; !ok {
		return "", fmt.Errorf("%w: %q (want Coarse, Middle or Fine)", ErrInvalidBand, s)
	}
	return b, nil
}

// Valid reports whether b is one of the named bands.
func (b Band) Valid() bool {
	_, ok := bandRanges[b]
	return ok
}

// Range returns the half-open layer range [lo, hi) of the band for a code
// with the given layer count. Layer counts other than BandLayerCount are
// rejected rather than truncated or padded.
func (b Band) Range(layers int) (lo, hi int, err error) {
	r, ok := bandRanges[b]
	if !ok {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidBand, string(b))
	}
	if layers != BandLayerCount {
		return 0, 0, fmt.Errorf("%w: bands are defined for %d layers, code has %d", ErrIncompatibleStyleCode, BandLayerCount, layers)
	}
	return r[0], r[1], nil
}
