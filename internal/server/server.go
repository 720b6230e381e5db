package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/BrandenXMachi/poker-gto-vision/internal/session"
	"github.com/BrandenXMachi/poker-gto-vision/internal/solver"
	"github.com/BrandenXMachi/poker-gto-vision/internal/vision"
)

// Server accepts websocket sessions and runs one analysis pipeline per
// connection. The recognizer and board detector are loaded once at
// startup and shared read-only; sessions share nothing else.
type Server struct {
	cfg      *Config
	addr     string
	upgrader websocket.Upgrader
	logger   *log.Logger
	clock    quartz.Clock

	recognizer vision.Recognizer
	layout     vision.Layout

	sessions   map[*Session]bool
	register   chan *Session
	unregister chan *Session
	// done is closed when the registry loop exits, releasing any
	// unregister handoffs still in flight.
	done chan struct{}
	mu   sync.RWMutex
}

// New creates a server from config. A configured OCR engine that fails
// to resolve is a startup error; the pipeline never attempts per-frame
// recovery from a missing model.
func New(cfg *Config, logger *log.Logger) (*Server, error) {
	var recognizer vision.Recognizer = vision.NullRecognizer{}
	if cfg.Server.OCREngine != "" {
		r, err := vision.NewExecRecognizer(cfg.Server.OCREngine)
		if err != nil {
			return nil, fmt.Errorf("initialize recognizer: %w", err)
		}
		recognizer = r
	}

	return &Server{
		cfg:  cfg,
		addr: cfg.ListenAddr(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// Frames come from a browser capture page; origin
				// policy is enforced at the edge.
				return true
			},
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
		logger:     logger.WithPrefix("server"),
		clock:      quartz.NewReal(),
		recognizer: recognizer,
		layout:     vision.DefaultLayout(),
		sessions:   make(map[*Session]bool),
		register:   make(chan *Session),
		unregister: make(chan *Session),
		done:       make(chan struct{}),
	}, nil
}

// SetClock overrides the real clock, used by tests.
func (s *Server) SetClock(clock quartz.Clock) {
	s.clock = clock
}

// SetRecognizer overrides the text recognizer, used by tests and by
// callers embedding their own model bridge.
func (s *Server) SetRecognizer(r vision.Recognizer) {
	s.recognizer = r
}

// Start runs the server until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)

	httpServer := &http.Server{Addr: s.addr, Handler: mux}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.run(ctx)
		return nil
	})
	g.Go(func() error {
		s.logger.Info("starting websocket server", "addr", s.addr)
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		return httpServer.Shutdown(context.Background())
	})

	return g.Wait()
}

// Handler exposes the mux for httptest-based integration tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)
	return mux
}

// run handles the session registry lifecycle.
func (s *Server) run(ctx context.Context) {
	defer close(s.done)
	for {
		select {
		case sess := <-s.register:
			s.mu.Lock()
			s.sessions[sess] = true
			total := len(s.sessions)
			s.mu.Unlock()
			s.logger.Info("client connected", "session", sess.ID(), "total", total)

		case sess := <-s.unregister:
			s.mu.Lock()
			if _, ok := s.sessions[sess]; ok {
				delete(s.sessions, sess)
				_ = sess.Close()
			}
			total := len(s.sessions)
			s.mu.Unlock()
			s.logger.Info("client disconnected", "session", sess.ID(), "total", total)

		case <-ctx.Done():
			s.mu.Lock()
			for sess := range s.sessions {
				_ = sess.Close()
			}
			s.mu.Unlock()
			return
		}
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("failed to upgrade connection", "error", err)
		return
	}

	sess := NewSession(conn, s.sessionDeps(), s.logger)
	s.register <- sess
	sess.Start()

	go func() {
		<-sess.Done()
		s.release(sess)
	}()
}

// release hands a finished session back to the registry, or lets it go
// when the registry has already shut down.
func (s *Server) release(sess *Session) {
	select {
	case s.unregister <- sess:
	case <-s.done:
	}
}

func (s *Server) sessionDeps() SessionDeps {
	return SessionDeps{
		Recognizer: s.recognizer,
		Board:      vision.NewBlobBoardDetector(s.layout),
		Layout:     s.layout,
		Tracker: session.Config{
			Cooldown:           s.cfg.Cooldown(),
			ControlsThreshold:  s.cfg.Detection.ControlsThreshold,
			TimerThreshold:     s.cfg.Detection.TimerThreshold,
			HighlightThreshold: s.cfg.Detection.HighlightThreshold,
			Quorum:             s.cfg.Detection.Quorum,
			HeroPosition:       s.cfg.Detection.HeroPosition,
		},
		Solver: solver.Params{
			BigBlind:       s.cfg.Solver.BigBlind,
			DefaultPot:     s.cfg.Solver.DefaultPot,
			RaiseFraction:  s.cfg.Solver.RaiseFraction,
			DefaultPlayers: s.cfg.Solver.DefaultPlayers,
		},
		Clock:           s.clock,
		ExtractInterval: s.cfg.ExtractInterval(),
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, `{"status":"poker vision backend running"}`)
}

// SessionCount returns the number of live sessions.
func (s *Server) SessionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
