package stylegan

import (
	"errors"
	"fmt"
)

var (
	ErrModelLoad             = errors.New("stylegan: model load failed")
	ErrModelNotFound         = errors.New("stylegan: model not found")
	ErrArtifactNotFound      = errors.New("stylegan: artifact not found")
	ErrArtifactCorrupt       = errors.New("stylegan: artifact corrupt")
	ErrInvalidBand           = errors.New("stylegan: invalid style band")
	ErrIncompatibleStyleCode = errors.New("stylegan: incompatible style code")
	ErrInvalidReference      = errors.New("stylegan: invalid image reference")
	ErrProjectionUnsupported = errors.New("stylegan: generator does not support projection")
)

// ModelLoadError reports that no usable generator could be produced for a
// descriptor. It matches ErrModelLoad with errors.Is.
type ModelLoadError struct {
	Descriptor ModelDescriptor
	Err        error
}

func (e *ModelLoadError) Error() string {
	return fmt.Sprintf("stylegan: load model %s: %v", e.Descriptor, e.Err)
}

func (e *ModelLoadError) Unwrap() error { return e.Err }

func (e *ModelLoadError) Is(target error) bool { return target == ErrModelLoad }
