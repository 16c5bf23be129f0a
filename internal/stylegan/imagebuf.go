package stylegan

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
)

// DefaultJPEGQuality matches the encoder default of the reference toolkit.
const DefaultJPEGQuality = 75

// ImageBuffer is a decoded 8-bit RGB raster, 3 bytes per pixel, row-major.
type ImageBuffer struct {
	Width  int
	Height int
	Pix    []uint8
}

// NewImageBuffer allocates a black raster.
func NewImageBuffer(width, height int) ImageBuffer {
	return ImageBuffer{Width: width, Height: height, Pix: make([]uint8, width*height*3)}
}

// ImageBufferFrom converts any image into an RGB raster, dropping alpha.
func ImageBufferFrom(img image.Image) ImageBuffer {
	b := img.Bounds()
	out := NewImageBuffer(b.Dx(), b.Dy())
	i := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			out.Pix[i], out.Pix[i+1], out.Pix[i+2] = c.R, c.G, c.B
			i += 3
		}
	}
	return out
}

// At returns the RGB triple at (x, y).
func (b ImageBuffer) At(x, y int) (r, g, bl uint8) {
	i := (y*b.Width + x) * 3
	return b.Pix[i], b.Pix[i+1], b.Pix[i+2]
}

// RGBA converts the raster into an opaque *image.RGBA.
func (b ImageBuffer) RGBA() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, b.Width, b.Height))
	for p, i := 0, 0; p < b.Width*b.Height; p++ {
		img.Pix[4*p] = b.Pix[i]
		img.Pix[4*p+1] = b.Pix[i+1]
		img.Pix[4*p+2] = b.Pix[i+2]
		img.Pix[4*p+3] = 0xff
		i += 3
	}
	return img
}

// Equal reports pixel equality.
func (b ImageBuffer) Equal(o ImageBuffer) bool {
	return b.Width == o.Width && b.Height == o.Height && bytes.Equal(b.Pix, o.Pix)
}

// EncodeJPEG compresses the raster. The encoding is lossy: decoding the
// result does not reproduce Pix exactly.
func (b ImageBuffer) EncodeJPEG(quality int) ([]byte, error) {
	if b.Width <= 0 || b.Height <= 0 || len(b.Pix) != b.Width*b.Height*3 {
		return nil, fmt.Errorf("stylegan: invalid image buffer %dx%d", b.Width, b.Height)
	}
	if quality <= 0 || quality > 100 {
		quality = DefaultJPEGQuality
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, b.RGBA(), &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("stylegan: encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}
