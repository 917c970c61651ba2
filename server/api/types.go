// Package api holds the wire types of the decision service.
package api

import (
	"fmt"

	"github.com/snow-ghost/dilemma/core"
)

// DecideRequest asks a hosted strategy for its next move. Histories are the
// observed actions so far, oldest first, encoded as "CDC".
type DecideRequest struct {
	SessionID       string  `json:"session_id"`
	Strategy        string  `json:"strategy"`
	OwnHistory      string  `json:"own_history"`
	OpponentHistory string  `json:"opponent_history"`
	OwnScore        float64 `json:"own_score"`
	OpponentScore   float64 `json:"opponent_score"`
	TotalRounds     int     `json:"total_rounds,omitempty"` // 0 means unknown
	Noise           float64 `json:"noise"`
	Seed            uint64  `json:"seed"`
}

// Histories decodes both histories and checks they line up.
func (r DecideRequest) Histories() (own, opponent []core.Action, err error) {
	if own, err = core.ParseActions(r.OwnHistory); err != nil {
		return nil, nil, fmt.Errorf("own_history: %w", err)
	}
	if opponent, err = core.ParseActions(r.OpponentHistory); err != nil {
		return nil, nil, fmt.Errorf("opponent_history: %w", err)
	}
	if len(own) != len(opponent) {
		return nil, nil, fmt.Errorf("history lengths differ: %d vs %d", len(own), len(opponent))
	}
	return own, opponent, nil
}

// Validate checks the request fields that do not depend on server state.
func (r DecideRequest) Validate() error {
	if r.SessionID == "" {
		return fmt.Errorf("session_id is required")
	}
	if r.Strategy == "" {
		return fmt.Errorf("strategy is required")
	}
	if r.Noise < 0 || r.Noise > 1 {
		return fmt.Errorf("noise must be in [0,1], got %v", r.Noise)
	}
	if r.TotalRounds < 0 {
		return fmt.Errorf("total_rounds must not be negative")
	}
	if r.TotalRounds > 0 && len(r.OwnHistory) >= r.TotalRounds {
		return fmt.Errorf("round %d is past the end of a %d round match", len(r.OwnHistory), r.TotalRounds)
	}
	return nil
}

// DecideResponse is the chosen move plus the strategy's mode afterwards.
type DecideResponse struct {
	Action    core.Action `json:"action"`
	Mode      core.Mode   `json:"mode"`
	Remaining int         `json:"remaining"`
	Round     int         `json:"round"`
	Reason    string      `json:"reason,omitempty"`
	// Transitions counts mode changes in the session so far.
	Transitions int `json:"transitions"`
	// Done is set on the last round; the session is gone afterwards.
	Done bool `json:"done"`
}

// StrategyInfo describes one hosted strategy.
type StrategyInfo struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	Rule        string   `json:"rule"`
	Complexity  int      `json:"complexity"`
}

// StrategiesResponse lists hosted strategies.
type StrategiesResponse struct {
	Strategies []StrategyInfo `json:"strategies"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// Error codes
const (
	CodeInvalidJSON     = "INVALID_JSON"
	CodeInvalidRequest  = "INVALID_REQUEST"
	CodeUnknownStrategy = "UNKNOWN_STRATEGY"
	CodeSessionConflict = "SESSION_CONFLICT"
	CodeRateLimited     = "RATE_LIMITED"
	CodeNotFound        = "NOT_FOUND"
	CodeUnavailable     = "UNAVAILABLE"
	CodeInternal        = "INTERNAL"
)
