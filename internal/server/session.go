package server

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/BrandenXMachi/poker-gto-vision/internal/session"
	"github.com/BrandenXMachi/poker-gto-vision/internal/solver"
	"github.com/BrandenXMachi/poker-gto-vision/internal/vision"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum inbound frame size. Generous for a 1080p JPEG.
	maxFrameSize = 4 << 20

	// statusEvery is how many processed frames pass between
	// informational status messages.
	statusEvery = 50
)

// Session owns one connection's entire pipeline: frames in, signal
// detection, state tracking, and recommendations out. All session state
// lives here and dies with the transport.
type Session struct {
	id     string
	conn   *websocket.Conn
	logger *log.Logger
	clock  quartz.Clock

	// frames is an unbuffered handoff to the pipeline goroutine. A
	// frame arriving while the previous one is still processing is
	// dropped, never queued: one frame in flight per session, always.
	frames chan []byte
	send   chan interface{}

	detector  vision.SignalSource
	extractor *vision.TextExtractor
	board     vision.ObjectDetector
	tracker   *session.Tracker
	engine    *solver.Engine

	extractInterval time.Duration
	stats           *Stats

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// SessionDeps bundles the process-wide collaborators shared across
// sessions. The recognizer and board detector are loaded once and
// treated as read-only.
type SessionDeps struct {
	Recognizer vision.Recognizer
	Board      vision.ObjectDetector
	Layout     vision.Layout
	// Signals overrides the per-session detector; nil selects the
	// color-heuristic SignalDetector.
	Signals         vision.SignalSource
	Tracker         session.Config
	Solver          solver.Params
	Clock           quartz.Clock
	ExtractInterval time.Duration
}

// NewSession wires a pipeline for one freshly upgraded connection.
func NewSession(conn *websocket.Conn, deps SessionDeps, logger *log.Logger) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	id := uuid.NewString()
	logger = logger.WithPrefix("session").With("session", id[:8])

	detector := deps.Signals
	if detector == nil {
		detector = vision.NewSignalDetector(deps.Layout)
	}

	return &Session{
		id:              id,
		conn:            conn,
		logger:          logger,
		clock:           deps.Clock,
		frames:          make(chan []byte),
		send:            make(chan interface{}, 64),
		detector:        detector,
		extractor:       vision.NewTextExtractor(deps.Recognizer, deps.Layout, logger),
		board:           deps.Board,
		tracker:         session.NewTracker(deps.Tracker, deps.Clock, logger),
		engine:          solver.New(deps.Solver),
		extractInterval: deps.ExtractInterval,
		stats:           NewStats(),
		ctx:             ctx,
		cancel:          cancel,
	}
}

// Start begins handling the session.
func (s *Session) Start() {
	go s.writePump()
	go s.readPump()
	go s.pipeline()

	s.enqueue(newStatusMessage("session established, streaming analysis active"))
}

// Close tears the session down. Closing cancels in-flight extraction
// and decision work; partial results are discarded.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.cancel()
		close(s.send)
		err = s.conn.Close()
		s.stats.LogSummary(s.logger)
	})
	return err
}

// Done exposes session termination to the server's registry.
func (s *Session) Done() <-chan struct{} {
	return s.ctx.Done()
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Stats returns the session's pipeline counters.
func (s *Session) Stats() *Stats {
	return s.stats
}

// readPump receives binary frame payloads. Anything that is not a
// binary message is ignored; the inbound protocol has no envelope.
func (s *Session) readPump() {
	defer func() { _ = s.Close() }()

	s.conn.SetReadLimit(maxFrameSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		select {
		case <-s.ctx.Done():
			return
		default:
		}

		msgType, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.logger.Error("websocket error", "error", err)
			}
			return
		}
		if msgType != websocket.BinaryMessage {
			s.logger.Debug("ignoring non-binary message", "type", msgType)
			continue
		}

		s.stats.FrameReceived()
		s.offerFrame(data)
	}
}

// offerFrame hands a frame to the pipeline only if it is idle in its
// select. A busy pipeline means the frame is dropped on the spot.
func (s *Session) offerFrame(data []byte) bool {
	select {
	case s.frames <- data:
		return true
	default:
		s.stats.FrameDropped()
		return false
	}
}

// writePump sends JSON messages and keepalive pings.
func (s *Session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = s.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteJSON(msg); err != nil {
				s.logger.Error("failed to write message", "error", err)
				return
			}

		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-s.ctx.Done():
			return
		}
	}
}

// enqueue queues an outbound message, closing the session if the
// client cannot keep up. Recommendations are emitted in trigger order
// because this is the only writer path.
func (s *Session) enqueue(msg interface{}) {
	defer func() {
		if r := recover(); r != nil {
			// Send channel closed during shutdown.
			s.logger.Debug("dropped message on closed session", "error", r)
		}
	}()

	select {
	case s.send <- msg:
	case <-s.ctx.Done():
	default:
		s.logger.Warn("send buffer full, closing session")
		_ = s.Close()
	}
}

// pipeline is the single worker for this session, and the single
// writer of its tracker state.
func (s *Session) pipeline() {
	var lastExtract time.Time

	for {
		select {
		case <-s.ctx.Done():
			return
		case buf := <-s.frames:
			s.processFrame(buf, &lastExtract)
		}
	}
}

// processFrame runs one frame through decode → signals → fusion →
// (conditional) extraction → (conditional) decision. Every stage
// failure is absorbed here: a bad frame is a silent no-op.
func (s *Session) processFrame(buf []byte, lastExtract *time.Time) {
	start := s.clock.Now()

	img, err := vision.DecodeFrame(buf)
	if err != nil {
		s.stats.DecodeFailure()
		s.logger.Debug("skipping undecodable frame", "error", err)
		return
	}
	frame := vision.Normalize(img)

	sig := s.detector.Detect(frame)
	s.tracker.Observe(sig)

	// The extractor is the expensive stage: run it only when a trigger
	// needs fresh numbers or the cadence elapsed, never per frame.
	if s.tracker.TurnPending() || lastExtract.IsZero() || s.clock.Since(*lastExtract) >= s.extractInterval {
		facts := s.extractor.Extract(s.ctx, frame)
		if s.board != nil {
			if cards, err := s.board.DetectBoard(s.ctx, frame); err == nil {
				facts.BoardCards = cards
				facts.BoardOK = true
			} else {
				s.logger.Debug("board detection failed", "error", err)
			}
		}
		s.tracker.Merge(facts)
		*lastExtract = s.clock.Now()
	}

	if view, ok := s.tracker.ConsumeTrigger(); ok {
		rec := s.engine.Recommend(view)
		s.enqueue(newRecommendationMessage(rec))
		s.tracker.RecordAction(rec.Display())
		s.stats.Trigger()
		s.logger.Info("recommendation emitted",
			"seq", rec.Seq, "action", rec.Display(), "pot", rec.PotDisplay())
	}

	processed := s.stats.FrameProcessed(s.clock.Since(start))
	if processed%statusEvery == 0 {
		s.enqueue(newStatusMessage(s.statusLine()))
	}
}

func (s *Session) statusLine() string {
	received, dropped, _, triggers := s.stats.Counts()
	pot := "unknown"
	if v, ok := s.tracker.Pot(); ok {
		pot = fmt.Sprintf("$%.0f", v)
	}
	return fmt.Sprintf("watching table: phase=%s street=%s pot=%s frames=%d dropped=%d triggers=%d",
		s.tracker.Phase(), s.tracker.Street(), pot, received, dropped, triggers)
}
