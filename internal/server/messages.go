package server

import "github.com/BrandenXMachi/poker-gto-vision/internal/solver"

// Outbound message kinds, distinguished by the type field. Inbound
// traffic is raw binary frames with no envelope.
const (
	MessageTypeStatus         = "status"
	MessageTypeRecommendation = "recommendation"
)

// StatusMessage is informational and never required for correctness.
type StatusMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// RecommendationBody is the decision payload the presentation layer
// renders and speaks.
type RecommendationBody struct {
	Action    string `json:"action"`
	PotSize   string `json:"pot_size"`
	EV        string `json:"ev"`
	Reasoning string `json:"reasoning"`
	Position  string `json:"position,omitempty"`
}

// RecommendationMessage is emitted exactly once per trigger. Seq is the
// monotonically increasing trigger sequence number; callers that need
// strict exactly-once display dedup on it.
type RecommendationMessage struct {
	Type           string             `json:"type"`
	Recommendation RecommendationBody `json:"recommendation"`
	Seq            uint64             `json:"seq"`
}

func newStatusMessage(message string) StatusMessage {
	return StatusMessage{Type: MessageTypeStatus, Message: message}
}

func newRecommendationMessage(rec solver.Recommendation) RecommendationMessage {
	return RecommendationMessage{
		Type: MessageTypeRecommendation,
		Recommendation: RecommendationBody{
			Action:    rec.Display(),
			PotSize:   rec.PotDisplay(),
			EV:        rec.EV,
			Reasoning: rec.Reasoning,
			Position:  rec.Position,
		},
		Seq: rec.Seq,
	}
}
