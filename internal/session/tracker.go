// Package session owns the per-connection game state: the street and
// board tracking, the turn-trigger fusion with its cooldown, and the
// append-only action history. One Tracker per connection, mutated only
// by that connection's pipeline goroutine.
package session

import (
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/google/uuid"

	"github.com/BrandenXMachi/poker-gto-vision/internal/vision"
)

// Street is an ordered hand phase. It only moves forward within a
// hand; a regression means a new hand started.
type Street int

const (
	Preflop Street = iota
	Flop
	Turn
	River
)

func (s Street) String() string {
	switch s {
	case Flop:
		return "flop"
	case Turn:
		return "turn"
	case River:
		return "river"
	default:
		return "preflop"
	}
}

// streetForBoard maps a community-card count to a street. Counts that
// can't occur in holdem (1, 2, or more than 5) report ok=false and are
// ignored as misdetections.
func streetForBoard(cards int) (Street, bool) {
	switch cards {
	case 0:
		return Preflop, true
	case 3:
		return Flop, true
	case 4:
		return Turn, true
	case 5:
		return River, true
	default:
		return Preflop, false
	}
}

// Phase is the coarse hand-context state.
type Phase int

const (
	Idle Phase = iota
	HandInProgress
)

func (p Phase) String() string {
	if p == HandInProgress {
		return "hand_in_progress"
	}
	return "idle"
}

// Config carries the fusion thresholds and cooldown. Zero values are
// filled with defaults so a partially configured tracker still works.
type Config struct {
	Cooldown           time.Duration
	ControlsThreshold  float64
	TimerThreshold     float64
	HighlightThreshold float64
	// Quorum is the number of cues that must agree before a trigger
	// fires. Any single cue alone has an unacceptable false-positive
	// rate.
	Quorum int
	// HeroPosition is the configured table position of the hero seat,
	// or "unknown" to let the solver fall back to balanced defaults.
	HeroPosition string
}

// DefaultConfig returns the fusion settings matching the original
// capture tuning: 2-of-3 quorum, five second cooldown.
func DefaultConfig() Config {
	return Config{
		Cooldown:           5 * time.Second,
		ControlsThreshold:  0.6,
		TimerThreshold:     0.5,
		HighlightThreshold: 0.6,
		Quorum:             2,
		HeroPosition:       "unknown",
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Cooldown <= 0 {
		c.Cooldown = d.Cooldown
	}
	if c.ControlsThreshold <= 0 {
		c.ControlsThreshold = d.ControlsThreshold
	}
	if c.TimerThreshold <= 0 {
		c.TimerThreshold = d.TimerThreshold
	}
	if c.HighlightThreshold <= 0 {
		c.HighlightThreshold = d.HighlightThreshold
	}
	if c.Quorum <= 0 {
		c.Quorum = d.Quorum
	}
	if c.HeroPosition == "" {
		c.HeroPosition = d.HeroPosition
	}
	return c
}

// View is a read-only snapshot handed to the decision engine when a
// trigger is consumed.
type View struct {
	HandID        string
	Street        Street
	PotKnown      bool
	Pot           float64
	PotConfidence float64
	Stacks        map[int]float64
	Stats         map[int]vision.SeatStats
	Position      string
	Players       int
	Seq           uint64
}

// Tracker is the per-session state machine. Not safe for concurrent
// use: the session pipeline goroutine is the single writer and reader.
type Tracker struct {
	cfg    Config
	clock  quartz.Clock
	logger *log.Logger

	phase       Phase
	handID      string
	street      Street
	boardCards  int
	pot         vision.Extraction
	stacks      map[int]float64
	stats       map[int]vision.SeatStats
	history     []string
	turnPending bool
	lastTrigger time.Time
	hasTrigger  bool
	seq         uint64
}

// NewTracker creates a tracker for one session.
func NewTracker(cfg Config, clock quartz.Clock, logger *log.Logger) *Tracker {
	return &Tracker{
		cfg:    cfg.withDefaults(),
		clock:  clock,
		logger: logger.WithPrefix("tracker"),
		stacks: make(map[int]float64),
		stats:  make(map[int]vision.SeatStats),
	}
}

// Observe feeds one frame's detection vector through the fusion rule.
// It returns true when this frame fired a trigger, which happens at
// most once per cooldown window.
func (t *Tracker) Observe(sig vision.Signals) bool {
	above := 0
	if sig.Controls >= t.cfg.ControlsThreshold {
		above++
	}
	if sig.Timer >= t.cfg.TimerThreshold {
		above++
	}
	if sig.Highlight >= t.cfg.HighlightThreshold {
		above++
	}

	// Any corroborated table activity establishes hand context.
	if t.phase == Idle && above >= 1 {
		t.enterHand("controls appeared")
	}

	if above < t.cfg.Quorum {
		return false
	}
	if t.turnPending {
		// Already waiting on a recommendation for this trigger.
		return false
	}
	if t.hasTrigger && t.clock.Since(t.lastTrigger) < t.cfg.Cooldown {
		// Same turn's UI still visible across consecutive frames.
		return false
	}

	t.turnPending = true
	t.hasTrigger = true
	t.lastTrigger = t.clock.Now()
	t.seq++
	t.appendHistory(fmt.Sprintf("turn detected (controls=%.2f timer=%.2f highlight=%.2f)",
		sig.Controls, sig.Timer, sig.Highlight))
	t.logger.Info("hero turn trigger", "seq", t.seq, "street", t.street.String())
	return true
}

// Merge folds extracted facts into the session state under
// last-known-good semantics: a field that failed extraction keeps its
// previous value, never zeroes out.
func (t *Tracker) Merge(facts vision.Facts) {
	if facts.Pot.Usable() {
		t.pot = facts.Pot
	}
	for seat, stack := range facts.Stacks {
		if stack.Usable() {
			t.stacks[seat] = stack.Value
		}
	}
	for seat, stats := range facts.Stats {
		if stats.Status != vision.StatusUnavailable {
			t.stats[seat] = stats
		}
	}

	if facts.BoardOK {
		t.advanceBoard(facts.BoardCards)
	}
}

// advanceBoard applies the monotonic street rule. Streets only move
// forward within a hand; a regression in the card count means the
// board was cleared between hands and resets the hand context.
func (t *Tracker) advanceBoard(cards int) {
	street, ok := streetForBoard(cards)
	if !ok {
		return
	}

	if t.phase == Idle {
		t.enterHand("board appeared")
	}

	switch {
	case cards > t.boardCards:
		t.boardCards = cards
		if street > t.street {
			t.street = street
			t.appendHistory("street advanced to " + street.String())
			t.logger.Debug("street advance", "street", street.String(), "board", cards)
		}
	case cards < t.boardCards:
		t.logger.Info("board regression, treating as new hand", "had", t.boardCards, "saw", cards)
		t.resetHand()
		t.boardCards = cards
		t.street = street
	}
}

// enterHand moves Idle → HandInProgress with a fresh hand identity.
func (t *Tracker) enterHand(reason string) {
	t.phase = HandInProgress
	t.handID = uuid.NewString()
	t.appendHistory("hand started: " + reason)
	t.logger.Debug("hand context established", "hand", t.handID, "reason", reason)
}

// resetHand clears per-hand state but keeps cross-hand facts (stacks,
// behavior stats) and the cooldown clock, then re-enters hand context.
func (t *Tracker) resetHand() {
	t.phase = Idle
	t.street = Preflop
	t.boardCards = 0
	t.history = t.history[:0]
	t.turnPending = false
	t.enterHand("new hand")
}

// TurnPending reports whether a trigger is waiting for its
// recommendation.
func (t *Tracker) TurnPending() bool {
	return t.turnPending
}

// ConsumeTrigger returns the snapshot for the pending trigger and moves
// TurnPending → NotPending. Single-shot: exactly one consume per
// trigger.
func (t *Tracker) ConsumeTrigger() (View, bool) {
	if !t.turnPending {
		return View{}, false
	}
	t.turnPending = false

	view := View{
		HandID:   t.handID,
		Street:   t.street,
		Position: t.cfg.HeroPosition,
		Seq:      t.seq,
		Stacks:   make(map[int]float64, len(t.stacks)),
		Stats:    make(map[int]vision.SeatStats, len(t.stats)),
	}
	if t.pot.Usable() {
		view.PotKnown = true
		view.Pot = t.pot.Value
		view.PotConfidence = t.pot.Confidence
	}
	for seat, stack := range t.stacks {
		view.Stacks[seat] = stack
	}
	for seat, stats := range t.stats {
		view.Stats[seat] = stats
	}
	view.Players = len(view.Stacks)

	return view, true
}

// RecordAction appends an emitted recommendation to the action history.
func (t *Tracker) RecordAction(action string) {
	t.appendHistory("recommended " + action)
}

func (t *Tracker) appendHistory(event string) {
	t.history = append(t.history, event)
}

// Phase returns the coarse hand-context state.
func (t *Tracker) Phase() Phase {
	return t.phase
}

// Street returns the current street.
func (t *Tracker) Street() Street {
	return t.street
}

// Pot returns the last-known-good pot value, if any was ever read.
func (t *Tracker) Pot() (float64, bool) {
	if !t.pot.Usable() {
		return 0, false
	}
	return t.pot.Value, true
}

// History returns the action history accumulated for the current hand.
func (t *Tracker) History() []string {
	out := make([]string, len(t.history))
	copy(out, t.history)
	return out
}

// Seq returns the trigger sequence number of the most recent trigger.
func (t *Tracker) Seq() uint64 {
	return t.seq
}
