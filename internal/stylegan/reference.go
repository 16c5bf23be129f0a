package stylegan

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// ReferenceKind tags an ImageReference.
type ReferenceKind int

const (
	RefRandom ReferenceKind = iota
	RefSeed
	RefExisting
)

func (k ReferenceKind) String() string {
	switch k {
	case RefRandom:
		return "random"
	case RefSeed:
		return "seed"
	case RefExisting:
		return "existing"
	default:
		return "unknown"
	}
}

// ImageReference is the input shape for one side of a request: a random
// draw, an explicit seed, or a previously persisted artifact.
type ImageReference struct {
	Kind       ReferenceKind
	Seed       uint32
	ArtifactID string
}

func Random() ImageReference { return ImageReference{Kind: RefRandom} }

func Seed(n uint32) ImageReference { return ImageReference{Kind: RefSeed, Seed: n} }

func Existing(id string) ImageReference { return ImageReference{Kind: RefExisting, ArtifactID: id} }

// ParseReference interprets user input: empty means random, decimal digits
// are a seed in [0, 2^32-1], anything else must be an artifact UUID (dashed
// or 32 hex digits) and is returned in canonical form.
func ParseReference(s string) (ImageReference, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Random(), nil
	}
	if isDigits(s) {
		n, err := strconv.ParseUint(s, 10, 32)
		if err != nil {
			return ImageReference{}, fmt.Errorf("%w: seed %q out of range [0, 4294967295]", ErrInvalidReference, s)
		}
		return Seed(uint32(n)), nil
	}
	id, err := ParseArtifactID(s)
	if err != nil {
		return ImageReference{}, err
	}
	return Existing(id), nil
}

// ParseArtifactID validates an artifact identifier and canonicalizes it.
func ParseArtifactID(s string) (string, error) {
	id, err := uuid.Parse(strings.TrimSpace(s))
	if err != nil {
		return "", fmt.Errorf("%w: %q is neither a seed nor an artifact id", ErrInvalidReference, s)
	}
	return id.String(), nil
}

// NewArtifactID returns a random 128-bit identifier in canonical UUID form.
func NewArtifactID() string {
	return uuid.NewString()
}

// IsFresh reports whether resolving the reference synthesizes a new image.
func (r ImageReference) IsFresh() bool {
	return r.Kind != RefExisting
}

func (r ImageReference) String() string {
	switch r.Kind {
	case RefSeed:
		return strconv.FormatUint(uint64(r.Seed), 10)
	case RefExisting:
		return r.ArtifactID
	default:
		return ""
	}
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
