package vision

// Status tags a per-field extraction result so downstream stages make
// the degrade-gracefully decision explicitly instead of sniffing
// sentinel zeros.
type Status int

const (
	// StatusUnavailable means recognition produced nothing usable for
	// this field on this pass.
	StatusUnavailable Status = iota
	// StatusLowConfidence means a value was parsed but the recognizer
	// scored it below the trust threshold.
	StatusLowConfidence
	// StatusOK means the field parsed cleanly above threshold.
	StatusOK
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusLowConfidence:
		return "low_confidence"
	default:
		return "unavailable"
	}
}

// Extraction is one numeric fact recovered from the frame, tagged with
// how much to trust it.
type Extraction struct {
	Value      float64
	Confidence float64
	Status     Status
}

// Usable reports whether the value should be merged into session state.
// Low-confidence values are still merged (last-known-good semantics do
// the rest); only outright failures are discarded.
func (e Extraction) Usable() bool {
	return e.Status != StatusUnavailable
}

// SeatStats carries behavioral frequency stats recognized from a HUD
// overlay for one seat. Percentages are stored as fractions in [0,1].
type SeatStats struct {
	VPIP   float64
	PFR    float64
	Status Status
}

// Facts is the output of one extractor pass. Every field is
// individually optional: recognition can fail per field without
// invalidating the others.
type Facts struct {
	Pot    Extraction
	Stacks map[int]Extraction
	Stats  map[int]SeatStats

	// BoardCards is the number of community cards the board detector
	// counted, valid only when BoardOK is set.
	BoardCards int
	BoardOK    bool
}
