package remote

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snow-ghost/dilemma/core"
	"github.com/snow-ghost/dilemma/kb/memory"
	"github.com/snow-ghost/dilemma/match"
	"github.com/snow-ghost/dilemma/pkg/limiter"
	"github.com/snow-ghost/dilemma/server"
	"github.com/snow-ghost/dilemma/server/api"
)

func startServer(t *testing.T) (*httptest.Server, *memory.Registry) {
	t.Helper()
	reg := memory.NewRegistry()
	config := server.DefaultConfig()
	config.Rate.RPS = 0
	s, err := server.NewServer(config, reg, func(ctx context.Context, name string) (core.Strategy, error) {
		return reg.Strategy(name)
	})
	require.NoError(t, err)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return ts, reg
}

func fastProtector() *limiter.Protector {
	retry := limiter.DefaultRetryConfig()
	retry.MaxRetries = 1
	retry.BaseDelay = time.Millisecond
	return limiter.NewProtector(retry, nil, nil)
}

func newRemote(t *testing.T, url string, config Config) *Strategy {
	t.Helper()
	client, err := NewClient(ClientConfig{BaseURL: url, Timeout: time.Second}, fastProtector())
	require.NoError(t, err)
	config.BaseURL = url
	s, err := New(config, client, nil)
	require.NoError(t, err)
	return s
}

func TestRemoteMatchesLocal(t *testing.T) {
	ts, reg := startServer(t)

	opponent, err := reg.Strategy("suspicious_tft")
	require.NoError(t, err)
	local, err := reg.Strategy("grudger")
	require.NoError(t, err)
	remote := newRemote(t, ts.URL, Config{Name: "grudger"})

	cfg := match.DefaultConfig()
	cfg.Rounds = 30
	cfg.Seed = 11

	want, err := match.Play(context.Background(), local, opponent, cfg)
	require.NoError(t, err)
	got, err := match.Play(context.Background(), remote, opponent, cfg)
	require.NoError(t, err)

	assert.Equal(t, core.FormatActions(want.Actions[0]), core.FormatActions(got.Actions[0]))
	assert.Equal(t, want.Scores, got.Scores)
	assert.Equal(t, want.Transitions[0], got.Transitions[0])
}

func TestRemoteFallback(t *testing.T) {
	ts, _ := startServer(t)
	url := ts.URL
	ts.Close()

	remote := newRemote(t, url, Config{Name: "tit_for_tat", Fallback: core.Defect})
	opponent := memory.NewRegistry()
	ac, err := opponent.Strategy("always_cooperate")
	require.NoError(t, err)

	cfg := match.DefaultConfig()
	cfg.Rounds = 3
	res, err := match.Play(context.Background(), remote, ac, cfg)
	require.NoError(t, err)
	assert.Equal(t, "DDD", core.FormatActions(res.Actions[0]))
}

func TestClientErrors(t *testing.T) {
	ts, _ := startServer(t)
	client, err := NewClient(ClientConfig{BaseURL: ts.URL + "/"}, fastProtector())
	require.NoError(t, err)
	assert.Equal(t, ts.URL, client.BaseURL())

	_, err = client.Decide(context.Background(), apiRequest("nobody"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnavailable))
	var httpErr *limiter.HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, http.StatusNotFound, httpErr.StatusCode)

	require.NoError(t, client.Health(context.Background()))
	infos, err := client.Strategies(context.Background())
	require.NoError(t, err)
	assert.Len(t, infos, len(memory.Builtins()))

	_, err = NewClient(ClientConfig{}, nil)
	assert.Error(t, err)
}

func TestConfigValidate(t *testing.T) {
	assert.Error(t, Config{BaseURL: "http://x"}.Validate())
	assert.Error(t, Config{Name: "x"}.Validate())
	assert.NoError(t, Config{Name: "x", BaseURL: "http://x"}.Validate())
}

func TestHandle(t *testing.T) {
	h := newHandle(0xbeef)
	id, seed := parseHandle(h)
	assert.Len(t, id, 36)
	assert.Equal(t, uint64(0xbeef), seed)

	id, seed = parseHandle("plain")
	assert.Equal(t, "plain", id)
	assert.Zero(t, seed)
}

func apiRequest(strategy string) api.DecideRequest {
	return api.DecideRequest{SessionID: "t", Strategy: strategy}
}
