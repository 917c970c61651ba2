package core

import (
	"fmt"
	"strings"
)

// Action is one move in a round of the dilemma.
type Action uint8

const (
	Cooperate Action = iota
	Defect
)

// Flip returns the complement of a.
func (a Action) Flip() Action {
	if a == Cooperate {
		return Defect
	}
	return Cooperate
}

func (a Action) String() string {
	if a == Defect {
		return "D"
	}
	return "C"
}

// MarshalText encodes the action as "C" or "D".
func (a Action) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText accepts C/D as well as cooperate/defect.
func (a *Action) UnmarshalText(b []byte) error {
	parsed, err := ParseAction(string(b))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// ParseAction decodes a single action.
func ParseAction(s string) (Action, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "c", "cooperate":
		return Cooperate, nil
	case "d", "defect":
		return Defect, nil
	}
	return Cooperate, fmt.Errorf("unknown action %q", s)
}

// ParseActions decodes a compact history such as "CCDC".
func ParseActions(s string) ([]Action, error) {
	out := make([]Action, 0, len(s))
	for i, r := range s {
		switch r {
		case 'C', 'c':
			out = append(out, Cooperate)
		case 'D', 'd':
			out = append(out, Defect)
		default:
			return nil, fmt.Errorf("invalid action %q at position %d", r, i)
		}
	}
	return out, nil
}

// FormatActions is the inverse of ParseActions.
func FormatActions(actions []Action) string {
	var b strings.Builder
	b.Grow(len(actions))
	for _, a := range actions {
		b.WriteString(a.String())
	}
	return b.String()
}

// Round is what both players were observed to play in one round (post-noise).
type Round struct {
	Own      Action `json:"own"`
	Opponent Action `json:"opponent"`
}

// Rounds zips two histories into rounds, truncating to the shorter one.
func Rounds(own, opponent []Action) []Round {
	n := len(own)
	if len(opponent) < n {
		n = len(opponent)
	}
	out := make([]Round, n)
	for i := 0; i < n; i++ {
		out[i] = Round{Own: own[i], Opponent: opponent[i]}
	}
	return out
}

// ScoreState holds cumulative payoffs as reported by the engine.
type ScoreState struct {
	Own      float64 `json:"own"`
	Opponent float64 `json:"opponent"`
}

// Gap is own minus opponent score; negative means behind.
func (s ScoreState) Gap() float64 {
	return s.Own - s.Opponent
}

// Mode is a behavioural regime of a policy.
type Mode string

const (
	ModeNormal        Mode = "normal"
	ModePunish        Mode = "punish"
	ModeLockDefect    Mode = "lock_defect"
	ModeLockCooperate Mode = "lock_cooperate"
	ModeTitForTat     Mode = "tit_for_tat"
	ModeEndgame       Mode = "endgame"
)

// Modes lists every mode in declaration order.
var Modes = []Mode{ModeNormal, ModePunish, ModeLockDefect, ModeLockCooperate, ModeTitForTat, ModeEndgame}

// Timed reports whether the mode runs on a countdown.
func (m Mode) Timed() bool {
	switch m {
	case ModePunish, ModeLockDefect, ModeLockCooperate, ModeTitForTat:
		return true
	}
	return false
}

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	for _, known := range Modes {
		if m == known {
			return true
		}
	}
	return false
}

// ModeState is the only mutable state of a policy. It belongs to one match
// and is threaded through Decide explicitly.
type ModeState struct {
	Mode      Mode `json:"mode"`
	Remaining int  `json:"remaining"`

	// ConsecutiveDefections is the opponent's trailing defection run as of the last decision.
	ConsecutiveDefections int `json:"consecutive_defections"`
	// LastTrigger is the round index of the last honoured trigger, -1 if none.
	LastTrigger int    `json:"last_trigger"`
	LastReason  string `json:"last_reason,omitempty"`
	Transitions int    `json:"transitions"`

	// Session is an opaque handle for strategies backed by an external session.
	Session string `json:"session,omitempty"`
}

// NewModeState returns the state every match starts from.
func NewModeState() ModeState {
	return ModeState{Mode: ModeNormal, LastTrigger: -1}
}

// Current returns the mode, treating the zero value as Normal.
func (s ModeState) Current() Mode {
	if s.Mode == "" {
		return ModeNormal
	}
	return s.Mode
}
