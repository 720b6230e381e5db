package vision

import (
	"context"
	"image"
)

// boardSlots is the maximum number of community cards.
const boardSlots = 5

// ObjectDetector counts community cards on the board strip. It is a
// black-box model contract: image in, structured result out, possibly
// slow, possibly wrong. Implementations must be safe for concurrent use
// because the loaded model is shared read-only across sessions.
type ObjectDetector interface {
	DetectBoard(ctx context.Context, frame *image.NRGBA) (int, error)
}

// BlobBoardDetector is the built-in board counter. Community cards read
// as near-white rectangles against the green felt, so each of the five
// board slots is scored by its white-pixel ratio. It is deliberately
// simple; a trained model can replace it behind the same interface.
type BlobBoardDetector struct {
	layout Layout
}

func NewBlobBoardDetector(layout Layout) *BlobBoardDetector {
	return &BlobBoardDetector{layout: layout}
}

func (b *BlobBoardDetector) DetectBoard(_ context.Context, frame *image.NRGBA) (int, error) {
	strip := CropRegion(frame, b.layout.Board)
	bounds := strip.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w < boardSlots || h == 0 {
		return 0, nil
	}

	slotW := w / boardSlots
	count := 0
	for slot := 0; slot < boardSlots; slot++ {
		white, total := 0, 0
		x0 := bounds.Min.X + slot*slotW
		for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
			for x := x0; x < x0+slotW; x++ {
				c := strip.NRGBAAt(x, y)
				_, s, v := rgbToHSV(c.R, c.G, c.B)
				if v > 0.80 && s < 0.25 {
					white++
				}
				total++
			}
		}
		if total == 0 || float64(white)/float64(total) < 0.25 {
			// Cards are dealt left to right; the first empty slot
			// ends the count.
			break
		}
		count++
	}

	return count, nil
}
