package vision

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"os/exec"
	"regexp"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/disintegration/imaging"
)

// TextSpan is one piece of recognized text with the recognizer's own
// confidence in [0,1].
type TextSpan struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// Recognizer is the black-box text recognition contract: image in,
// spans out. Implementations may be slow and must be safe for
// concurrent use; the loaded model is shared read-only across sessions.
type Recognizer interface {
	Recognize(ctx context.Context, img *image.NRGBA) ([]TextSpan, error)
}

// ExecRecognizer bridges to an external OCR engine: the crop is piped
// to the engine as PNG on stdin and the engine replies with a JSON
// array of spans on stdout. Keeping the model out of process keeps this
// module pure Go and lets the engine be swapped without a rebuild.
type ExecRecognizer struct {
	path string
	args []string
}

// NewExecRecognizer resolves the engine binary. Failure here is
// process-fatal by design: the pipeline never attempts per-frame
// recovery from a missing model.
func NewExecRecognizer(binary string, args ...string) (*ExecRecognizer, error) {
	path, err := exec.LookPath(binary)
	if err != nil {
		return nil, fmt.Errorf("ocr engine %q not found: %w", binary, err)
	}
	return &ExecRecognizer{path: path, args: args}, nil
}

func (r *ExecRecognizer) Recognize(ctx context.Context, img *image.NRGBA) ([]TextSpan, error) {
	var stdin bytes.Buffer
	if err := png.Encode(&stdin, img); err != nil {
		return nil, fmt.Errorf("encode crop: %w", err)
	}

	cmd := exec.CommandContext(ctx, r.path, r.args...)
	cmd.Stdin = &stdin
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ocr engine: %w", err)
	}

	var spans []TextSpan
	if err := json.Unmarshal(out, &spans); err != nil {
		return nil, fmt.Errorf("ocr engine output: %w", err)
	}
	return spans, nil
}

// NullRecognizer reads nothing. It stands in when no OCR engine is
// configured: every extraction comes back Unavailable and the tracker's
// last-known-good rules carry the session.
type NullRecognizer struct{}

func (NullRecognizer) Recognize(context.Context, *image.NRGBA) ([]TextSpan, error) {
	return nil, nil
}

// minSpanConfidence mirrors the original reader threshold: spans below
// this are noise and never parsed.
const minSpanConfidence = 0.5

// lowConfidence marks parsed values that came from a span the
// recognizer itself was unsure about.
const lowConfidence = 0.7

var (
	potPattern      = regexp.MustCompile(`(?i)(?:pot[\s:]*)?\$\s*([\d,]+\.?\d*)`)
	trailingDollar  = regexp.MustCompile(`([\d,]+\.?\d*)\s*\$`)
	percentPattern  = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*%`)
	vpipPattern     = regexp.MustCompile(`(?i)VPIP[\s:]*(\d+)%?`)
	pfrPattern      = regexp.MustCompile(`(?i)PFR[\s:]*(\d+)%?`)
	combinedPattern = regexp.MustCompile(`(\d+)/(\d+)`)
)

// ParseAmount parses a currency string like "$1,234.50" or "1234$" to
// its numeric value.
func ParseAmount(text string) (float64, bool) {
	m := potPattern.FindStringSubmatch(text)
	if m == nil {
		m = trailingDollar.FindStringSubmatch(text)
	}
	if m == nil {
		return 0, false
	}
	clean := strings.ReplaceAll(m[1], ",", "")
	v, err := strconv.ParseFloat(clean, 64)
	if err != nil || v < 0 {
		return 0, false
	}
	return v, true
}

// ParsePercent parses "12%" to 0.12.
func ParsePercent(text string) (float64, bool) {
	m := percentPattern.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	return v / 100, true
}

// parseSeatStats pulls VPIP/PFR out of HUD overlay text. Accepts
// labelled forms ("VPIP: 25", "PFR 15") and the bare "25/15" combo.
func parseSeatStats(text string) (SeatStats, bool) {
	var stats SeatStats
	found := false

	if m := vpipPattern.FindStringSubmatch(text); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			stats.VPIP = v / 100
			found = true
		}
	}
	if m := pfrPattern.FindStringSubmatch(text); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			stats.PFR = v / 100
			found = true
		}
	}
	if !found {
		if m := combinedPattern.FindStringSubmatch(text); m != nil {
			vpip, err1 := strconv.ParseFloat(m[1], 64)
			pfr, err2 := strconv.ParseFloat(m[2], 64)
			if err1 == nil && err2 == nil && vpip <= 100 && pfr <= 100 {
				stats.VPIP = vpip / 100
				stats.PFR = pfr / 100
				found = true
			}
		}
	}

	if found {
		stats.Status = StatusOK
	}
	return stats, found
}

// TextExtractor runs recognition over the region-of-interest crops and
// parses the poker facts out of them. It is the most expensive stage in
// the pipeline; the session worker rate-limits how often it runs.
type TextExtractor struct {
	recognizer Recognizer
	layout     Layout
	logger     *log.Logger
}

func NewTextExtractor(recognizer Recognizer, layout Layout, logger *log.Logger) *TextExtractor {
	return &TextExtractor{
		recognizer: recognizer,
		layout:     layout,
		logger:     logger.WithPrefix("extractor"),
	}
}

// Extract recovers the numeric facts from one frame. Every field is
// best-effort: a failed recognition or parse leaves that field
// Unavailable and never blocks the others.
func (e *TextExtractor) Extract(ctx context.Context, frame *image.NRGBA) Facts {
	facts := Facts{
		Stacks: make(map[int]Extraction),
		Stats:  make(map[int]SeatStats),
	}

	facts.Pot = e.extractPot(ctx, frame)

	for seat, region := range e.layout.SeatText {
		if ctx.Err() != nil {
			break
		}
		stack, stats := e.extractSeat(ctx, frame, region)
		if stack.Usable() {
			facts.Stacks[seat] = stack
		}
		if stats.Status != StatusUnavailable {
			facts.Stats[seat] = stats
		}
	}

	return facts
}

func (e *TextExtractor) extractPot(ctx context.Context, frame *image.NRGBA) Extraction {
	spans, err := e.recognize(ctx, frame, e.layout.PotText)
	if err != nil {
		e.logger.Debug("pot recognition failed", "error", err)
		return Extraction{}
	}

	for _, span := range spans {
		if span.Confidence < minSpanConfidence {
			continue
		}
		if v, ok := ParseAmount(span.Text); ok {
			status := StatusOK
			if span.Confidence < lowConfidence {
				status = StatusLowConfidence
			}
			return Extraction{Value: v, Confidence: span.Confidence, Status: status}
		}
	}
	return Extraction{}
}

func (e *TextExtractor) extractSeat(ctx context.Context, frame *image.NRGBA, region Region) (Extraction, SeatStats) {
	spans, err := e.recognize(ctx, frame, region)
	if err != nil {
		e.logger.Debug("seat recognition failed", "error", err)
		return Extraction{}, SeatStats{}
	}

	var stack Extraction
	var stats SeatStats
	for _, span := range spans {
		if span.Confidence < minSpanConfidence {
			continue
		}
		if !stack.Usable() {
			if v, ok := ParseAmount(span.Text); ok {
				status := StatusOK
				if span.Confidence < lowConfidence {
					status = StatusLowConfidence
				}
				stack = Extraction{Value: v, Confidence: span.Confidence, Status: status}
			}
		}
		if stats.Status == StatusUnavailable {
			if s, ok := parseSeatStats(span.Text); ok {
				stats = s
				if span.Confidence < lowConfidence {
					stats.Status = StatusLowConfidence
				}
			}
		}
	}
	return stack, stats
}

// recognize crops, binarizes for OCR contrast, and calls the engine.
func (e *TextExtractor) recognize(ctx context.Context, frame *image.NRGBA, region Region) ([]TextSpan, error) {
	crop := CropRegion(frame, region)
	gray := imaging.Grayscale(crop)
	gray = imaging.AdjustContrast(gray, 30)
	return e.recognizer.Recognize(ctx, gray)
}
