package remote

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/snow-ghost/dilemma/core"
	"github.com/snow-ghost/dilemma/pkg/logging"
	"github.com/snow-ghost/dilemma/server/api"
)

// Config describes one remote player.
type Config struct {
	// Name is the player's name in local tournaments.
	Name string `yaml:"name" json:"name"`
	// Strategy is the hosted strategy; defaults to Name.
	Strategy string        `yaml:"strategy" json:"strategy"`
	BaseURL  string        `yaml:"base_url" json:"base_url"`
	Timeout  time.Duration `yaml:"timeout" json:"timeout"`
	// Fallback is played whenever the server cannot answer.
	Fallback core.Action `yaml:"fallback" json:"fallback"`
}

func (c Config) Validate() error {
	if c.Name == "" {
		return errors.New("remote strategy needs a name")
	}
	if c.BaseURL == "" {
		return fmt.Errorf("remote strategy %s needs a base_url", c.Name)
	}
	return nil
}

// Strategy is a core.Strategy whose moves come from a decision server.
// It never fails a match: when the server cannot answer it plays the
// fallback action and keeps its last known mode.
type Strategy struct {
	name     string
	hosted   string
	fallback core.Action
	timeout  time.Duration
	client   *Client
	logger   *logging.Logger
}

// New creates a remote strategy on top of client.
func New(config Config, client *Client, logger *logging.Logger) (*Strategy, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if client == nil {
		return nil, errors.New("remote strategy needs a client")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	hosted := config.Strategy
	if hosted == "" {
		hosted = config.Name
	}
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Strategy{
		name:     config.Name,
		hosted:   hosted,
		fallback: config.Fallback,
		timeout:  timeout,
		client:   client,
		logger:   logger.Named("remote"),
	}, nil
}

func (s *Strategy) Name() string { return s.name }

// Decide sends the round to the server. The session handle and the seed the
// server draws from are fixed in round 0 and carried in the mode state.
func (s *Strategy) Decide(rc core.RoundContext, st core.ModeState) (core.Action, core.ModeState) {
	round := core.RoundIndex(rc)
	if round == 0 || st.Session == "" {
		var seed uint64
		if r := rc.Rand(); r != nil {
			seed = uint64(r.RandInt(0, math.MaxInt32))
		}
		st.Session = newHandle(seed)
	}
	id, seed := parseHandle(st.Session)

	req := api.DecideRequest{
		SessionID:       id,
		Strategy:        s.hosted,
		OwnHistory:      core.FormatActions(rc.OwnHistory()),
		OpponentHistory: core.FormatActions(rc.OpponentHistory()),
		OwnScore:        rc.Scores().Own,
		OpponentScore:   rc.Scores().Opponent,
		Noise:           rc.Noise(),
		Seed:            seed,
	}
	if total, ok := rc.TotalRounds(); ok {
		req.TotalRounds = total
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	resp, err := s.client.Decide(ctx, req)
	if err != nil {
		s.logger.Warn("remote decision failed, playing fallback",
			"strategy", s.name, "session_id", id, "round", round, "error", err)
		st.LastReason = "fallback"
		return s.fallback, st
	}

	st.Transitions = resp.Transitions
	st.Mode = resp.Mode
	st.Remaining = resp.Remaining
	st.LastReason = resp.Reason
	return resp.Action, st
}

func newHandle(seed uint64) string {
	return uuid.NewString() + "/" + strconv.FormatUint(seed, 16)
}

func parseHandle(h string) (id string, seed uint64) {
	i := strings.LastIndexByte(h, '/')
	if i < 0 {
		return h, 0
	}
	seed, _ = strconv.ParseUint(h[i+1:], 16, 64)
	return h[:i], seed
}
