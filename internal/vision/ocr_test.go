package vision

import (
	"context"
	"image"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAmount(t *testing.T) {
	tests := []struct {
		text string
		want float64
		ok   bool
	}{
		{"$45", 45, true},
		{"$45.50", 45.5, true},
		{"$1,234", 1234, true},
		{"$ 1,234.50", 1234.5, true},
		{"45$", 45, true},
		{"Pot: $120", 120, true},
		{"POT $3,000", 3000, true},
		{"no money here", 0, false},
		{"$", 0, false},
		{"", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got, ok := ParseAmount(tt.text)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.InDelta(t, tt.want, got, 0.001)
			}
		})
	}
}

func TestParsePercent(t *testing.T) {
	tests := []struct {
		text string
		want float64
		ok   bool
	}{
		{"12%", 0.12, true},
		{"12.5%", 0.125, true},
		{"100 %", 1.0, true},
		{"twelve", 0, false},
	}

	for _, tt := range tests {
		got, ok := ParsePercent(tt.text)
		assert.Equal(t, tt.ok, ok, tt.text)
		if tt.ok {
			assert.InDelta(t, tt.want, got, 0.001, tt.text)
		}
	}
}

func TestParseSeatStats(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		wantVPIP float64
		wantPFR  float64
		ok       bool
	}{
		{"labelled vpip", "VPIP: 25", 0.25, 0, true},
		{"labelled both", "VPIP 25 PFR 15", 0.25, 0.15, true},
		{"combined", "25/15", 0.25, 0.15, true},
		{"lowercase", "vpip: 40%", 0.40, 0, true},
		{"combined out of range", "250/150", 0, 0, false},
		{"plain text", "Seat 3", 0, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stats, ok := parseSeatStats(tt.text)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.InDelta(t, tt.wantVPIP, stats.VPIP, 0.001)
				assert.InDelta(t, tt.wantPFR, stats.PFR, 0.001)
				assert.Equal(t, StatusOK, stats.Status)
			}
		})
	}
}

// scriptedRecognizer returns the same spans for every crop.
type scriptedRecognizer struct {
	spans []TextSpan
	err   error
	calls int
}

func (r *scriptedRecognizer) Recognize(context.Context, *image.NRGBA) ([]TextSpan, error) {
	r.calls++
	if r.err != nil {
		return nil, r.err
	}
	return r.spans, nil
}

func testExtractor(r Recognizer) *TextExtractor {
	return NewTextExtractor(r, DefaultLayout(), log.Default())
}

func TestExtractParsesPot(t *testing.T) {
	rec := &scriptedRecognizer{spans: []TextSpan{
		{Text: "Pot: $240", Confidence: 0.9},
	}}
	facts := testExtractor(rec).Extract(context.Background(), image.NewNRGBA(image.Rect(0, 0, 100, 100)))

	require.Equal(t, StatusOK, facts.Pot.Status)
	assert.InDelta(t, 240.0, facts.Pot.Value, 0.001)
}

func TestExtractDiscardsNoisySpans(t *testing.T) {
	rec := &scriptedRecognizer{spans: []TextSpan{
		{Text: "$999", Confidence: 0.2}, // below the reader threshold
	}}
	facts := testExtractor(rec).Extract(context.Background(), image.NewNRGBA(image.Rect(0, 0, 100, 100)))

	assert.Equal(t, StatusUnavailable, facts.Pot.Status)
	assert.False(t, facts.Pot.Usable())
}

func TestExtractFlagsLowConfidence(t *testing.T) {
	rec := &scriptedRecognizer{spans: []TextSpan{
		{Text: "$75", Confidence: 0.55},
	}}
	facts := testExtractor(rec).Extract(context.Background(), image.NewNRGBA(image.Rect(0, 0, 100, 100)))

	assert.Equal(t, StatusLowConfidence, facts.Pot.Status)
	assert.True(t, facts.Pot.Usable())
	assert.InDelta(t, 75.0, facts.Pot.Value, 0.001)
}

func TestExtractSurvivesRecognizerFailure(t *testing.T) {
	rec := &scriptedRecognizer{err: assert.AnError}
	facts := testExtractor(rec).Extract(context.Background(), image.NewNRGBA(image.Rect(0, 0, 100, 100)))

	// Every field is simply unavailable; no panic, no propagated error.
	assert.Equal(t, StatusUnavailable, facts.Pot.Status)
	assert.Empty(t, facts.Stacks)
	assert.Empty(t, facts.Stats)
}

func TestExtractFillsSeatStats(t *testing.T) {
	rec := &scriptedRecognizer{spans: []TextSpan{
		{Text: "$500", Confidence: 0.9},
		{Text: "28/21", Confidence: 0.8},
	}}
	facts := testExtractor(rec).Extract(context.Background(), image.NewNRGBA(image.Rect(0, 0, 200, 200)))

	require.NotEmpty(t, facts.Stacks)
	for _, stack := range facts.Stacks {
		assert.InDelta(t, 500.0, stack.Value, 0.001)
	}
	require.NotEmpty(t, facts.Stats)
	for _, stats := range facts.Stats {
		assert.InDelta(t, 0.28, stats.VPIP, 0.001)
		assert.InDelta(t, 0.21, stats.PFR, 0.001)
	}
}

func TestNullRecognizer(t *testing.T) {
	spans, err := NullRecognizer{}.Recognize(context.Background(), image.NewNRGBA(image.Rect(0, 0, 10, 10)))
	assert.NoError(t, err)
	assert.Empty(t, spans)
}
