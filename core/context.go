package core

// Rand is the seeded random source a match hands to its players.
type Rand interface {
	// Float64 returns a value in [0, 1).
	Float64() float64
	// RandInt returns a value in [lo, hi].
	RandInt(lo, hi int) int
}

// RoundContext is the read-only view of a match a player gets each round.
type RoundContext interface {
	OwnHistory() []Action
	OpponentHistory() []Action
	Scores() ScoreState
	// TotalRounds reports the match length; ok is false when the engine hides it.
	TotalRounds() (total int, ok bool)
	// Noise is the probability the engine flips an intended action.
	Noise() float64
	Rand() Rand
}

// RoundIndex is the zero-based index of the round being decided.
func RoundIndex(rc RoundContext) int {
	return len(rc.OwnHistory())
}

// Snapshot is a plain-value RoundContext, used as the adapter over whatever
// an engine (local harness, HTTP caller) provides.
type Snapshot struct {
	Own       []Action
	Opponent  []Action
	Score     ScoreState
	Total     int // 0 means unknown
	NoiseRate float64
	Source    Rand
}

func (s Snapshot) OwnHistory() []Action      { return s.Own }
func (s Snapshot) OpponentHistory() []Action { return s.Opponent }
func (s Snapshot) Scores() ScoreState        { return s.Score }
func (s Snapshot) Noise() float64            { return s.NoiseRate }
func (s Snapshot) Rand() Rand                { return s.Source }

func (s Snapshot) TotalRounds() (int, bool) {
	if s.Total <= 0 {
		return 0, false
	}
	return s.Total, true
}
