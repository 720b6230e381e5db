package server

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"io"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BrandenXMachi/poker-gto-vision/internal/session"
	"github.com/BrandenXMachi/poker-gto-vision/internal/solver"
	"github.com/BrandenXMachi/poker-gto-vision/internal/vision"
)

// scriptedSignals replays a fixed detection vector for every frame.
type scriptedSignals struct {
	signals vision.Signals
	resets  int
}

func (s *scriptedSignals) Detect(*image.NRGBA) vision.Signals { return s.signals }
func (s *scriptedSignals) Reset()                             { s.resets++ }

// scriptedRecognizer returns the same spans for every crop.
type scriptedRecognizer struct {
	spans []vision.TextSpan
	err   error
}

func (r *scriptedRecognizer) Recognize(context.Context, *image.NRGBA) ([]vision.TextSpan, error) {
	return r.spans, r.err
}

func framePNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 64, 48))
	for y := 0; y < 48; y++ {
		for x := 0; x < 64; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: 40, G: 40, B: 40, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func newTestSession(t *testing.T, deps SessionDeps) (*Session, *quartz.Mock) {
	t.Helper()
	mock := quartz.NewMock(t)
	if deps.Clock == nil {
		deps.Clock = mock
	}
	if deps.Recognizer == nil {
		deps.Recognizer = vision.NullRecognizer{}
	}
	if len(deps.Layout.SeatText) == 0 {
		deps.Layout = vision.DefaultLayout()
	}
	if deps.ExtractInterval == 0 {
		deps.ExtractInterval = time.Second
	}
	return NewSession(nil, deps, log.New(io.Discard)), mock
}

// drainMessages empties the session's outbound queue.
func drainMessages(s *Session) []interface{} {
	var out []interface{}
	for {
		select {
		case msg := <-s.send:
			out = append(out, msg)
		default:
			return out
		}
	}
}

func recommendations(msgs []interface{}) []RecommendationMessage {
	var out []RecommendationMessage
	for _, msg := range msgs {
		if rec, ok := msg.(RecommendationMessage); ok {
			out = append(out, rec)
		}
	}
	return out
}

func TestOfferFrameDropsWhenPipelineBusy(t *testing.T) {
	s, _ := newTestSession(t, SessionDeps{Signals: &scriptedSignals{}})

	// Nothing is receiving, which is indistinguishable from a busy
	// pipeline: the offer is dropped, not queued.
	assert.False(t, s.offerFrame([]byte("busy")))
	_, dropped, _, _ := s.stats.Counts()
	assert.Equal(t, 1, dropped)

	// An idle pipeline accepts the handoff.
	got := make(chan []byte, 1)
	go func() { got <- <-s.frames }()
	require.Eventually(t, func() bool { return s.offerFrame([]byte("accepted")) },
		time.Second, time.Millisecond)
	assert.Equal(t, "accepted", string(<-got))

	// The accepted frame is in flight and the receiver is gone, so the
	// next frame is discarded rather than buffered behind it.
	assert.False(t, s.offerFrame([]byte("in flight")))
	_, dropped, _, _ = s.stats.Counts()
	assert.GreaterOrEqual(t, dropped, 2)
}

func TestProcessFrameSkipsUndecodableInput(t *testing.T) {
	s, _ := newTestSession(t, SessionDeps{Signals: &scriptedSignals{}})

	var lastExtract time.Time
	s.processFrame([]byte("not an image"), &lastExtract)

	assert.Equal(t, 1, s.stats.DecodeFailures())
	_, _, processed, _ := s.stats.Counts()
	assert.Zero(t, processed, "undecodable frames never count as processed")
	assert.Empty(t, drainMessages(s), "a bad frame is a silent no-op")
	assert.True(t, lastExtract.IsZero())
}

func TestProcessFrameEmitsRecommendationOnTrigger(t *testing.T) {
	s, _ := newTestSession(t, SessionDeps{
		Signals: &scriptedSignals{signals: vision.Signals{Controls: 0.9, Timer: 0.2, Highlight: 0.85}},
		Recognizer: &scriptedRecognizer{spans: []vision.TextSpan{
			{Text: "Pot: $120", Confidence: 0.92},
		}},
		Tracker: session.Config{HeroPosition: "button"},
		Solver:  solver.DefaultParams(),
	})

	var lastExtract time.Time
	s.processFrame(framePNG(t), &lastExtract)

	msgs := drainMessages(s)
	recs := recommendations(msgs)
	require.Len(t, recs, 1)
	assert.Equal(t, MessageTypeRecommendation, recs[0].Type)
	assert.Equal(t, uint64(1), recs[0].Seq)
	assert.Equal(t, "60.0 BB", recs[0].Recommendation.PotSize, "$120 at a $2 big blind")
	assert.Equal(t, "button", recs[0].Recommendation.Position)
	assert.NotEmpty(t, recs[0].Recommendation.Action)
	assert.NotEmpty(t, recs[0].Recommendation.Reasoning)

	_, _, _, triggers := s.stats.Counts()
	assert.Equal(t, 1, triggers)
}

func TestProcessFrameCooldownAcrossFrames(t *testing.T) {
	s, clock := newTestSession(t, SessionDeps{
		Signals: &scriptedSignals{signals: vision.Signals{Controls: 0.9, Timer: 0.9, Highlight: 0.9}},
		Tracker: session.Config{Cooldown: 3 * time.Second},
	})

	frame := framePNG(t)
	var lastExtract time.Time
	for i := 0; i < 30; i++ {
		s.processFrame(frame, &lastExtract)
		clock.Advance(100 * time.Millisecond)
	}

	recs := recommendations(drainMessages(s))
	assert.Len(t, recs, 1, "the burst of frames describes one turn")

	clock.Advance(3 * time.Second)
	s.processFrame(frame, &lastExtract)
	recs = recommendations(drainMessages(s))
	assert.Len(t, recs, 1, "a later turn fires again after the window")
	assert.Equal(t, uint64(2), recs[0].Seq)
}

func TestProcessFrameSequencesAreOrdered(t *testing.T) {
	s, clock := newTestSession(t, SessionDeps{
		Signals: &scriptedSignals{signals: vision.Signals{Controls: 0.9, Timer: 0.9, Highlight: 0.9}},
		Tracker: session.Config{Cooldown: time.Second},
	})

	frame := framePNG(t)
	var lastExtract time.Time
	for i := 0; i < 5; i++ {
		s.processFrame(frame, &lastExtract)
		clock.Advance(1500 * time.Millisecond)
	}

	recs := recommendations(drainMessages(s))
	require.Len(t, recs, 5)
	for i, rec := range recs {
		assert.Equal(t, uint64(i+1), rec.Seq, "recommendations arrive in trigger order")
	}
}

func TestProcessFrameRateLimitsExtraction(t *testing.T) {
	recognizerCalls := 0
	counting := recognizerFunc(func(ctx context.Context, img *image.NRGBA) ([]vision.TextSpan, error) {
		recognizerCalls++
		return nil, nil
	})

	s, clock := newTestSession(t, SessionDeps{
		Signals:         &scriptedSignals{}, // no cues, never a trigger
		Recognizer:      counting,
		ExtractInterval: time.Second,
	})

	// Layout has one pot region and six seat regions, so one extraction
	// pass costs seven recognizer calls.
	const callsPerPass = 7

	frame := framePNG(t)
	var lastExtract time.Time

	// First frame always extracts; the next frames inside the cadence
	// window must not.
	s.processFrame(frame, &lastExtract)
	require.Equal(t, callsPerPass, recognizerCalls)

	for i := 0; i < 5; i++ {
		clock.Advance(100 * time.Millisecond)
		s.processFrame(frame, &lastExtract)
	}
	assert.Equal(t, callsPerPass, recognizerCalls, "inside the cadence window")

	clock.Advance(time.Second)
	s.processFrame(frame, &lastExtract)
	assert.Equal(t, 2*callsPerPass, recognizerCalls, "cadence elapsed")
}

// recognizerFunc adapts a function to the Recognizer interface.
type recognizerFunc func(context.Context, *image.NRGBA) ([]vision.TextSpan, error)

func (f recognizerFunc) Recognize(ctx context.Context, img *image.NRGBA) ([]vision.TextSpan, error) {
	return f(ctx, img)
}

func TestProcessFrameStatusCadence(t *testing.T) {
	s, clock := newTestSession(t, SessionDeps{Signals: &scriptedSignals{}})

	frame := framePNG(t)
	var lastExtract time.Time
	for i := 0; i < statusEvery; i++ {
		s.processFrame(frame, &lastExtract)
		clock.Advance(10 * time.Millisecond)
	}

	msgs := drainMessages(s)
	var statuses []StatusMessage
	for _, msg := range msgs {
		if st, ok := msg.(StatusMessage); ok {
			statuses = append(statuses, st)
		}
	}
	require.Len(t, statuses, 1)
	assert.Equal(t, MessageTypeStatus, statuses[0].Type)
	assert.Contains(t, statuses[0].Message, "frames=")
}

func TestStatsLatencyMoments(t *testing.T) {
	stats := NewStats()
	assert.Zero(t, stats.MeanLatency())
	assert.Zero(t, stats.StdDevLatency())

	for _, ms := range []int{10, 20, 30} {
		stats.FrameProcessed(time.Duration(ms) * time.Millisecond)
	}

	assert.InDelta(t, 20.0, stats.MeanLatency(), 0.001)
	assert.InDelta(t, 10.0, stats.StdDevLatency(), 0.001)
}
