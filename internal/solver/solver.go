// Package solver turns a session snapshot into a single action
// recommendation. The strategy is card-blind: the capture never sees
// hero's hole cards, so the engine leans on pot odds, position
// frequencies, and opponent count, balanced so it cannot be exploited
// by an observer who knows the policy.
package solver

import (
	"crypto/md5"
	"encoding/binary"
	"fmt"

	"github.com/BrandenXMachi/poker-gto-vision/internal/session"
)

// Action is the closed recommendation set.
type Action string

const (
	Fold  Action = "Fold"
	Call  Action = "Call"
	Raise Action = "Raise"
)

// Recommendation is the immutable decision output, one per trigger.
type Recommendation struct {
	Action    Action
	AmountBB  float64 // raise sizing in big blinds, zero unless raising
	PotBB     float64
	EV        string
	Reasoning string
	Position  string
	Seq       uint64
}

// Display renders the action with sizing, e.g. "Raise 33 BB".
func (r Recommendation) Display() string {
	if r.Action == Raise && r.AmountBB > 0 {
		return fmt.Sprintf("%s %.0f BB", r.Action, r.AmountBB)
	}
	return string(r.Action)
}

// PotDisplay renders the pot in big blinds.
func (r Recommendation) PotDisplay() string {
	return fmt.Sprintf("%.1f BB", r.PotBB)
}

// Frequencies is a fold/call/raise mix for one position.
type Frequencies struct {
	Fold  float64
	Call  float64
	Raise float64
}

// Params are the engine's tunable numbers. None of them are asserted
// to be strategically correct; they preserve the balanced-frequency
// shape and are meant to be tuned from config.
type Params struct {
	BigBlind   float64
	DefaultPot float64
	// TypicalPotBB normalizes pot size into the small/large pot
	// adjustment factor.
	TypicalPotBB   float64
	RaiseFraction  float64 // raise sizing as a fraction of pot
	DefaultPlayers int
	// EVPotCapBB is where the call-EV pot-odds bonus saturates.
	EVPotCapBB float64

	ByPosition map[string]Frequencies
}

// DefaultParams mirrors the original tuning: $2 big blind, 66% pot
// raises, 6-max assumption.
func DefaultParams() Params {
	return Params{
		BigBlind:       2.0,
		DefaultPot:     50.0,
		TypicalPotBB:   37.5,
		RaiseFraction:  0.66,
		DefaultPlayers: 6,
		EVPotCapBB:     50.0, // the original's $100 pot at the $2 big blind
		ByPosition: map[string]Frequencies{
			"early_position":  {Fold: 0.60, Call: 0.25, Raise: 0.15},
			"middle_position": {Fold: 0.50, Call: 0.30, Raise: 0.20},
			"late_position":   {Fold: 0.35, Call: 0.35, Raise: 0.30},
			"button":          {Fold: 0.25, Call: 0.35, Raise: 0.40},
			"unknown":         {Fold: 0.45, Call: 0.35, Raise: 0.20},
		},
	}
}

func (p Params) withDefaults() Params {
	d := DefaultParams()
	if p.BigBlind <= 0 {
		p.BigBlind = d.BigBlind
	}
	if p.DefaultPot <= 0 {
		p.DefaultPot = d.DefaultPot
	}
	if p.TypicalPotBB <= 0 {
		p.TypicalPotBB = d.TypicalPotBB
	}
	if p.RaiseFraction <= 0 {
		p.RaiseFraction = d.RaiseFraction
	}
	if p.DefaultPlayers <= 0 {
		p.DefaultPlayers = d.DefaultPlayers
	}
	if p.EVPotCapBB <= 0 {
		p.EVPotCapBB = d.EVPotCapBB
	}
	if len(p.ByPosition) == 0 {
		p.ByPosition = d.ByPosition
	}
	return p
}

// Engine computes recommendations. Pure computation: no I/O, no
// blocking, and deterministic for a given snapshot so replaying a frame
// sequence replays the same decisions.
type Engine struct {
	params Params
}

func New(params Params) *Engine {
	return &Engine{params: params.withDefaults()}
}

// Recommend produces the decision for a consumed trigger. It always
// returns a recommendation: entirely absent inputs fall back to neutral
// defaults with the uncertainty called out in the reasoning.
func (e *Engine) Recommend(view session.View) Recommendation {
	p := e.params

	potDollars := p.DefaultPot
	potKnown := view.PotKnown
	if potKnown {
		potDollars = view.Pot
	}
	potBB := potDollars / p.BigBlind

	position := view.Position
	if position == "" {
		position = "unknown"
	}
	freqs, ok := p.ByPosition[position]
	if !ok {
		freqs = p.ByPosition["unknown"]
	}

	players := view.Players
	if players <= 0 {
		players = p.DefaultPlayers
	}

	// More opponents means less equity per hand; tighten. Short-handed
	// loosens for the same reason in reverse.
	switch {
	case players >= 8:
		freqs = tighten(freqs, 0.15)
	case players <= 4:
		freqs = loosen(freqs, 0.15)
	}

	// Pot odds shift the mix toward continuing in large pots.
	potFactor := potBB / p.TypicalPotBB
	switch {
	case potFactor > 1.5:
		freqs.Fold = maxf(freqs.Fold-0.15, 0.20)
		freqs.Call += 0.10
		freqs.Raise += 0.05
	case potFactor < 0.5:
		freqs.Fold = minf(freqs.Fold+0.10, 0.70)
		freqs.Call = maxf(freqs.Call-0.05, 0.15)
		freqs.Raise = maxf(freqs.Raise-0.05, 0.10)
	}

	action, amountBB := pickAction(freqs, potBB, position, players, p)

	rec := Recommendation{
		Action:    action,
		AmountBB:  amountBB,
		PotBB:     potBB,
		EV:        p.estimateEV(action, potBB, position),
		Reasoning: reasoning(action, potBB, position, players),
		Position:  position,
		Seq:       view.Seq,
	}

	if !potKnown {
		rec.Reasoning = "low confidence (pot unreadable): " + rec.Reasoning
	}
	return rec
}

// pickAction draws from the frequency mix deterministically: the same
// pot, position, and player count always produce the same action. The
// md5 spread keeps the draw well distributed across nearby pot sizes.
// Boundary draws resolve to Call, the conservative default.
func pickAction(freqs Frequencies, potBB float64, position string, players int, p Params) (Action, float64) {
	seed := fmt.Sprintf("%.2f_%s_%d", potBB, position, players)
	sum := md5.Sum([]byte(seed))
	draw := float64(binary.BigEndian.Uint64(sum[:8])%10000) / 10000.0

	switch {
	case draw < freqs.Fold:
		return Fold, 0
	case draw <= freqs.Fold+freqs.Call:
		return Call, 0
	default:
		return Raise, potBB * p.RaiseFraction
	}
}

func tighten(f Frequencies, adj float64) Frequencies {
	return Frequencies{
		Fold:  minf(f.Fold+adj, 0.75),
		Call:  f.Call,
		Raise: maxf(f.Raise-adj, 0.10),
	}
}

func loosen(f Frequencies, adj float64) Frequencies {
	return Frequencies{
		Fold:  maxf(f.Fold-adj, 0.20),
		Call:  f.Call,
		Raise: minf(f.Raise+adj, 0.45),
	}
}

var positionEVBonus = map[string]float64{
	"button":          0.3,
	"late_position":   0.2,
	"middle_position": 0.0,
	"early_position":  -0.2,
	"unknown":         0.0,
}

// estimateEV is a coarse big-blind EV figure. Folding is always zero;
// continuing actions get position and pot-odds bonuses, the latter
// saturating at EVPotCapBB.
func (p Params) estimateEV(action Action, potBB float64, position string) string {
	if action == Fold {
		return "0.0bb"
	}

	bonus := positionEVBonus[position]
	var ev float64
	if action == Call {
		potFactor := minf(potBB/p.EVPotCapBB, 1.0) * 0.3
		ev = 0.2 + bonus + potFactor
	} else {
		ev = 0.5 + bonus
	}
	return fmt.Sprintf("%+.1fbb", ev)
}

func reasoning(action Action, potBB float64, position string, players int) string {
	switch action {
	case Fold:
		switch {
		case players >= 8:
			return fmt.Sprintf("full ring (%dp) - tight balanced fold", players)
		case potBB < 20:
			return fmt.Sprintf("small pot (%.1f BB) - no pot odds to continue", potBB)
		default:
			return "balanced fold to remain unexploitable"
		}
	case Call:
		switch {
		case potBB > 50:
			return fmt.Sprintf("large pot (%.1f BB) - good pot odds to call", potBB)
		case position == "button" || position == "late_position":
			return "positional call"
		case players <= 4:
			return fmt.Sprintf("short-handed (%dp) - wider calling range", players)
		default:
			return "balanced call with implied odds"
		}
	default:
		switch {
		case position == "button" || position == "late_position":
			return "aggressive positional raise"
		case potBB < 25:
			return fmt.Sprintf("small pot (%.1f BB) - raise to build pot", potBB)
		case players <= 4:
			return fmt.Sprintf("short-handed (%dp) - aggressive raise", players)
		default:
			return "standard raise (66% pot) for balance"
		}
	}
}

func minf(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func maxf(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
