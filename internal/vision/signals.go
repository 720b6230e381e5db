package vision

import (
	"image"
	"math"
)

// Signals is the per-frame detection vector. Each cue is an independent
// confidence in [0,1]; fusing them into a verdict is the tracker's job,
// not the detector's.
type Signals struct {
	Controls  float64 // action controls (fold/call/raise bar) visible
	Timer     float64 // turn-timer arc present and animating
	Highlight float64 // hero seat glow active
}

// Layout positions the regions of interest in normalized table
// coordinates. The defaults match the common mobile-client layout the
// original capture targeted; a non-standard theme degrades confidence
// rather than crashing a check.
type Layout struct {
	ActionBar Region
	TimerArc  Region
	HeroSeat  Region
	Board     Region
	PotText   Region
	SeatText  []Region
}

// DefaultLayout returns the region set for a bottom-hero table view.
func DefaultLayout() Layout {
	return Layout{
		ActionBar: Region{X: 0.20, Y: 0.82, W: 0.60, H: 0.16},
		TimerArc:  Region{X: 0.38, Y: 0.62, W: 0.24, H: 0.18},
		HeroSeat:  Region{X: 0.32, Y: 0.58, W: 0.36, H: 0.26},
		Board:     Region{X: 0.25, Y: 0.36, W: 0.50, H: 0.14},
		PotText:   Region{X: 0.35, Y: 0.28, W: 0.30, H: 0.07},
		SeatText: []Region{
			{X: 0.05, Y: 0.40, W: 0.18, H: 0.08},
			{X: 0.05, Y: 0.15, W: 0.18, H: 0.08},
			{X: 0.41, Y: 0.05, W: 0.18, H: 0.08},
			{X: 0.77, Y: 0.15, W: 0.18, H: 0.08},
			{X: 0.77, Y: 0.40, W: 0.18, H: 0.08},
			{X: 0.38, Y: 0.70, W: 0.24, H: 0.08},
		},
	}
}

// SignalSource produces the detection vector for successive frames.
// The production implementation is SignalDetector; pipeline tests
// substitute scripted sources.
type SignalSource interface {
	Detect(frame *image.NRGBA) Signals
	Reset()
}

// timerHistory is the rolling buffer depth for the temporal timer
// check. Five frames at the nominal 5-10 Hz feed covers roughly half a
// second to a second of animation.
const timerHistory = 5

// SignalDetector computes the detection vector from a normalized frame.
// It holds only the small rolling buffer the timer check needs; no
// cross-session state, so one instance per session.
type SignalDetector struct {
	layout    Layout
	timerLuma []float64
}

// NewSignalDetector creates a detector for one session.
func NewSignalDetector(layout Layout) *SignalDetector {
	return &SignalDetector{layout: layout}
}

// Detect runs the independent cue checks over a preprocessed frame.
// Each check is isolated: a panic or degenerate crop in one yields a
// zero confidence for that cue only.
func (d *SignalDetector) Detect(frame *image.NRGBA) Signals {
	var sig Signals
	sig.Controls = runCheck(func() float64 { return d.controlsScore(frame) })
	sig.Timer = runCheck(func() float64 { return d.timerScore(frame) })
	sig.Highlight = runCheck(func() float64 { return d.highlightScore(frame) })
	return sig
}

// runCheck isolates one cue so a bad frame or layout can't take down
// the others.
func runCheck(fn func() float64) (score float64) {
	defer func() {
		if recover() != nil {
			score = 0
		}
	}()
	return clamp01(fn())
}

// controlsScore looks for the action-control bar by counting pixels in
// the button color bands. Call/check buttons are typically green, fold
// red, raise/bet yellow-orange; seeing two or more bands at once is a
// strong controls-visible cue, one band alone is weak.
func (d *SignalDetector) controlsScore(frame *image.NRGBA) float64 {
	crop := CropRegion(frame, d.layout.ActionBar)
	total := crop.Bounds().Dx() * crop.Bounds().Dy()
	if total == 0 {
		return 0
	}

	var green, red, yellow int
	forEachPixel(crop, func(h, s, v float64) {
		switch {
		case s < 0.30 || v < 0.30:
			// Too washed out to be a button face.
		case h >= 80 && h <= 160:
			green++
		case h <= 20 || h >= 320:
			red++
		case h >= 35 && h <= 65:
			yellow++
		}
	})

	minBand := total / 50
	if minBand < 1 {
		minBand = 1
	}
	bands := 0
	for _, n := range []int{green, red, yellow} {
		if n >= minBand {
			bands++
		}
	}

	switch bands {
	case 0:
		return 0
	case 1:
		return 0.35
	case 2:
		return 0.75
	default:
		return 0.95
	}
}

// timerScore checks the timer arc region for bright arc pixels that
// change between frames. A static glow (chip graphics, table art)
// scores bright but not animated; the product keeps both requirements.
func (d *SignalDetector) timerScore(frame *image.NRGBA) float64 {
	crop := CropRegion(frame, d.layout.TimerArc)
	total := crop.Bounds().Dx() * crop.Bounds().Dy()
	if total == 0 {
		return 0
	}

	var bright int
	var lumaSum float64
	forEachPixel(crop, func(h, s, v float64) {
		lumaSum += v
		if v > 0.75 && s > 0.35 && h >= 30 && h <= 90 {
			bright++
		}
	})
	meanLuma := lumaSum / float64(total)

	d.timerLuma = append(d.timerLuma, meanLuma)
	if len(d.timerLuma) > timerHistory {
		d.timerLuma = d.timerLuma[1:]
	}

	brightRatio := float64(bright) / float64(total)
	arcScore := clamp01(brightRatio / 0.02) // ~2% of the region lit is a full arc

	// Need history before the motion factor means anything.
	if len(d.timerLuma) < 2 {
		return arcScore * 0.5
	}

	var motion float64
	for i := 1; i < len(d.timerLuma); i++ {
		motion += math.Abs(d.timerLuma[i] - d.timerLuma[i-1])
	}
	motion /= float64(len(d.timerLuma) - 1)
	motionScore := clamp01(motion / 0.005)

	return arcScore * (0.4 + 0.6*motionScore)
}

// highlightScore looks for the golden seat glow the client draws around
// the acting player.
func (d *SignalDetector) highlightScore(frame *image.NRGBA) float64 {
	crop := CropRegion(frame, d.layout.HeroSeat)
	total := crop.Bounds().Dx() * crop.Bounds().Dy()
	if total == 0 {
		return 0
	}

	var glow int
	forEachPixel(crop, func(h, s, v float64) {
		if h >= 35 && h <= 60 && s > 0.45 && v > 0.60 {
			glow++
		}
	})

	ratio := float64(glow) / float64(total)
	return clamp01(ratio / 0.03)
}

// Reset clears the temporal buffer, used when a session starts a new
// hand context after a long gap.
func (d *SignalDetector) Reset() {
	d.timerLuma = d.timerLuma[:0]
}

// forEachPixel walks a crop in HSV space. H is degrees [0,360), S and V
// are [0,1].
func forEachPixel(img *image.NRGBA, fn func(h, s, v float64)) {
	bounds := img.Bounds()
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			c := img.NRGBAAt(x, y)
			h, s, v := rgbToHSV(c.R, c.G, c.B)
			fn(h, s, v)
		}
	}
}

func rgbToHSV(r, g, b uint8) (float64, float64, float64) {
	rf := float64(r) / 255
	gf := float64(g) / 255
	bf := float64(b) / 255

	max := math.Max(rf, math.Max(gf, bf))
	min := math.Min(rf, math.Min(gf, bf))
	delta := max - min

	v := max
	var s float64
	if max > 0 {
		s = delta / max
	}

	var h float64
	switch {
	case delta == 0:
		h = 0
	case max == rf:
		h = 60 * math.Mod((gf-bf)/delta, 6)
	case max == gf:
		h = 60 * ((bf-rf)/delta + 2)
	default:
		h = 60 * ((rf-gf)/delta + 4)
	}
	if h < 0 {
		h += 360
	}

	return h, s, v
}
