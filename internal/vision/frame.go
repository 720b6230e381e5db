package vision

import (
	"bytes"
	"fmt"
	"image"

	// Codec registration for image.Decode. Browsers send JPEG from
	// canvas.toBlob by default but PNG shows up from some capture paths.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/disintegration/imaging"
)

// maxFrameDim caps the working resolution. Phone cameras send 1080p+
// frames; the color checks don't need more than this and the extractor
// is quadratic-ish in pixels.
const maxFrameDim = 1280

// DecodeFrame turns a raw encoded image buffer into a pixel image.
// A decode failure is returned to the caller, which must treat the
// frame as a no-op rather than tearing down the session.
func DecodeFrame(buf []byte) (image.Image, error) {
	if len(buf) == 0 {
		return nil, fmt.Errorf("empty frame buffer")
	}

	img, format, err := image.Decode(bytes.NewReader(buf))
	if err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}

	bounds := img.Bounds()
	if bounds.Dx() == 0 || bounds.Dy() == 0 {
		return nil, fmt.Errorf("decoded %s frame has zero area", format)
	}

	return img, nil
}

// Normalize applies the fixed, stateless preprocessing step that runs
// before every signal check: downscale to a bounded working size, then
// boost contrast and sharpen to cut through camera glare.
func Normalize(img image.Image) *image.NRGBA {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	if w > maxFrameDim || h > maxFrameDim {
		if w >= h {
			img = imaging.Resize(img, maxFrameDim, 0, imaging.Linear)
		} else {
			img = imaging.Resize(img, 0, maxFrameDim, imaging.Linear)
		}
	}

	enhanced := imaging.AdjustContrast(img, 12)
	return imaging.Sharpen(enhanced, 0.5)
}

// CropRegion extracts a region given in normalized [0,1] table
// coordinates. Out-of-range rects are clamped rather than rejected so a
// slightly misconfigured layout degrades instead of failing.
func CropRegion(img image.Image, r Region) *image.NRGBA {
	bounds := img.Bounds()
	w, h := float64(bounds.Dx()), float64(bounds.Dy())

	x0 := bounds.Min.X + int(clamp01(r.X)*w)
	y0 := bounds.Min.Y + int(clamp01(r.Y)*h)
	x1 := bounds.Min.X + int(clamp01(r.X+r.W)*w)
	y1 := bounds.Min.Y + int(clamp01(r.Y+r.H)*h)

	return imaging.Crop(img, image.Rect(x0, y0, x1, y1))
}

// Region is a rectangle in normalized table coordinates, so one layout
// works across capture resolutions.
type Region struct {
	X, Y, W, H float64
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
