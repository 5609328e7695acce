package frames

import (
	"bytes"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
)

// DefaultScaledQuality is the JPEG quality used by Scaled when none is given.
const DefaultScaledQuality = 85

// Image decodes the full frame.
func (f *Frame) Image() (image.Image, error) {
	img, err := imaging.Decode(bytes.NewReader(f.Data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode frame %d: %w", f.Index, err)
	}
	return img, nil
}

// Scaled returns the frame as a JPEG no wider than width, keeping its aspect
// ratio. A width of zero or at least the frame width returns the original
// bytes unchanged.
func (f *Frame) Scaled(width, quality int) ([]byte, error) {
	if width <= 0 || width >= f.Width {
		return f.Data, nil
	}
	if quality <= 0 || quality > 100 {
		quality = DefaultScaledQuality
	}

	img, err := f.Image()
	if err != nil {
		return nil, err
	}
	resized := imaging.Resize(img, width, 0, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, resized, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return nil, fmt.Errorf("failed to encode scaled frame: %w", err)
	}
	return buf.Bytes(), nil
}

// ToFramePixels maps a point given in an element of elemW x elemH onto the
// frame's pixel grid: floor(x * frameWidth / elemW). It reports false when the
// element has no area or the point lies outside it.
func (f *Frame) ToFramePixels(x, y, elemW, elemH float64) (int, int, bool) {
	if elemW <= 0 || elemH <= 0 || x < 0 || y < 0 || x > elemW || y > elemH {
		return 0, 0, false
	}
	px := int(x * float64(f.Width) / elemW)
	py := int(y * float64(f.Height) / elemH)
	if px >= f.Width {
		px = f.Width - 1
	}
	if py >= f.Height {
		py = f.Height - 1
	}
	return px, py, true
}
