package stylegan

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// ModelFileExt is the extension of serialized generator checkpoints.
const ModelFileExt = ".pkl"

var descriptorPattern = regexp.MustCompile(`^img(\d+)res(\d+)fid(\d+)`)

// ModelDescriptor identifies a pretrained generator checkpoint. It is
// comparable and used as a map key by ModelCache.
type ModelDescriptor struct {
	Images     int    `json:"img" bson:"img"`
	Resolution int    `json:"res" bson:"res"`
	FID        int    `json:"fid" bson:"fid"`
	Version    string `json:"version,omitempty" bson:"version,omitempty"`
}

// ParseDescriptor builds a descriptor from a checkpoint filename such as
// "img31res256fid12.pkl". Directory components are ignored.
func ParseDescriptor(filename string) (ModelDescriptor, error) {
	base := filepath.Base(strings.TrimSpace(filename))
	m := descriptorPattern.FindStringSubmatch(base)
	if m == nil {
		return ModelDescriptor{}, fmt.Errorf("stylegan: %q does not match img<N>res<N>fid<N>", filename)
	}
	var vals [3]int
	for i := range vals {
		v, err := strconv.Atoi(m[i+1])
		if err != nil {
			return ModelDescriptor{}, fmt.Errorf("stylegan: parse %q: %w", filename, err)
		}
		vals[i] = v
	}
	return ModelDescriptor{Images: vals[0], Resolution: vals[1], FID: vals[2]}, nil
}

// Stem returns the descriptor's filename without extension.
func (d ModelDescriptor) Stem() string {
	return fmt.Sprintf("img%dres%dfid%d", d.Images, d.Resolution, d.FID)
}

// Filename returns the checkpoint filename the descriptor points at.
func (d ModelDescriptor) Filename() string {
	return d.Stem() + ModelFileExt
}

// WithVersion returns a copy stamped with the given version tag.
func (d ModelDescriptor) WithVersion(version string) ModelDescriptor {
	d.Version = version
	return d
}

func (d ModelDescriptor) String() string {
	if d.Version == "" {
		return d.Stem()
	}
	return d.Version + "/" + d.Stem()
}

// LayerCount returns the number of synthesis layers (w rows) a StyleGAN2
// generator of this resolution consumes: 2*log2(res) - 2.
func LayerCount(resolution int) int {
	if resolution < 4 || resolution&(resolution-1) != 0 {
		return 0
	}
	log2 := 0
	for r := resolution; r > 1; r >>= 1 {
		log2++
	}
	return 2*log2 - 2
}
