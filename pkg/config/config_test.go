package config

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snow-ghost/dilemma/core"
	"github.com/snow-ghost/dilemma/policy/guard"
	"github.com/snow-ghost/dilemma/remote"
	"github.com/snow-ghost/dilemma/worker"
)

const sample = `
worker:
  tournament:
    match:
      rounds: 50
      noise: 0.1
    repetitions: 2
    players: [tit_for_tat, grudger]
  search:
    baseline: pavlov
server:
  port: "9999"
  rate:
    rps: 5
    burst: 10
store:
  driver: sqlite
  dsn: /tmp/dilemma.db
llm:
  mode: "off"
catalog:
  allow_rules: [mirror, majority]
  rule_budget: 20ms
remote:
  - name: far_tft
    strategy: tit_for_tat
    base_url: http://decider:8090
    fallback: D
`

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte(sample))
	require.NoError(t, err)

	assert.Equal(t, 50, cfg.Worker.Tournament.Match.Rounds)
	assert.Equal(t, 0.1, cfg.Worker.Tournament.Match.Noise)
	assert.Equal(t, []string{"tit_for_tat", "grudger"}, cfg.Worker.Tournament.Players)
	assert.Equal(t, "pavlov", cfg.Worker.Search.Baseline)
	assert.Equal(t, "9999", cfg.Server.Port)
	assert.Equal(t, 5.0, cfg.Server.Rate.RPS)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, LLMModeOff, cfg.LLM.Mode)
	assert.Equal(t, 20*time.Millisecond, cfg.Catalog.RuleBudget)
	require.Len(t, cfg.Remote, 1)
	assert.Equal(t, core.Defect, cfg.Remote[0].Fallback)

	// untouched sections keep their defaults
	assert.Equal(t, Default().Cache.MaxSize, cfg.Cache.MaxSize)
	assert.Equal(t, Default().Server.MaxSessions, cfg.Server.MaxSessions)
	assert.Equal(t, 5.0, cfg.Worker.Tournament.Match.Payoff.Temptation)
}

func TestParseRejectsInvalid(t *testing.T) {
	_, err := Parse([]byte("worker: ["))
	assert.Error(t, err)

	_, err = Parse([]byte("store:\n  driver: postgres\n"))
	assert.ErrorContains(t, err, "unknown driver")
}

func TestValidate(t *testing.T) {
	require.NoError(t, Default().Validate())

	tests := []struct {
		name string
		edit func(*Config)
		want string
	}{
		{"sqlite without dsn", func(c *Config) { c.Store.Driver = "sqlite" }, "dsn"},
		{"openai without key", func(c *Config) { c.LLM.Mode = LLMModeOpenAI }, "OPENAI_API_KEY"},
		{"unknown llm", func(c *Config) { c.LLM.Mode = "oracle" }, "unknown mode"},
		{"bad rounds", func(c *Config) { c.Worker.Tournament.Match.Rounds = 0 }, "worker"},
		{"bad port", func(c *Config) { c.Server.Port = "" }, "server"},
		{"duplicate remote", func(c *Config) {
			r := remote.Config{Name: "x", BaseURL: "http://x"}
			c.Remote = []remote.Config{r, r}
		}, "duplicate"},
		{"unnamed remote", func(c *Config) { c.Remote = []remote.Config{{BaseURL: "http://x"}} }, "name"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.edit(cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.want)
		})
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("DILEMMA_DB", "/var/lib/dilemma.db")
	t.Setenv("DECIDER_PORT", "7000")
	t.Setenv("LLM_MODE", "OpenAI")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("OPENAI_MODEL", "gpt-4o")
	t.Setenv("POLICY_ALLOW_RULES", "mirror, threshold")
	t.Setenv("TOURNAMENT_ROUNDS", "77")

	cfg := Default()
	cfg.ApplyEnv()

	assert.Equal(t, "debug", cfg.Observability.Logging.Level)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "/var/lib/dilemma.db", cfg.Store.DSN)
	assert.Equal(t, "7000", cfg.Server.Port)
	assert.Equal(t, LLMModeOpenAI, cfg.LLM.Mode)
	assert.Equal(t, "sk-test", cfg.LLM.OpenAI.APIKey)
	assert.Equal(t, "gpt-4o", cfg.LLM.OpenAI.Model)
	assert.Equal(t, []string{"mirror", "threshold"}, cfg.Catalog.AllowRules)
	assert.Equal(t, 77, cfg.Worker.Tournament.Match.Rounds)
	require.NoError(t, cfg.Validate())
}

func TestLoaderLoadAndSave(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "dilemma.yaml")
	loader := NewLoader(path)

	_, err := loader.Load()
	require.Error(t, err, "an explicit path must exist")

	cfg := Default()
	cfg.Worker.Tournament.Match.Rounds = 123
	cfg.LLM.OpenAI.APIKey = "secret"
	require.NoError(t, loader.Save(cfg))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "secret")

	loaded, err := loader.Load()
	require.NoError(t, err)
	assert.Equal(t, 123, loaded.Worker.Tournament.Match.Rounds)
}

func TestLoaderPath(t *testing.T) {
	t.Setenv("DILEMMA_CONFIG", "")
	assert.Equal(t, DefaultPath, NewLoader("").Path())

	t.Setenv("DILEMMA_CONFIG", "/etc/dilemma.yaml")
	assert.Equal(t, "/etc/dilemma.yaml", NewLoader("").Path())
	assert.Equal(t, "x.yaml", NewLoader("x.yaml").Path())
}

func quiet(cfg *Config) *Config {
	cfg.Observability.Logging.Output = "stderr"
	cfg.Observability.Logging.Level = "error"
	cfg.LLM.Mode = LLMModeMock
	return cfg
}

func TestBuildBuiltins(t *testing.T) {
	ctx := context.Background()
	comp, err := quiet(Default()).Build(ctx, "test")
	require.NoError(t, err)
	defer comp.Close(ctx)

	s, err := comp.Resolver.Resolve(ctx, "tit_for_tat")
	require.NoError(t, err)
	assert.Equal(t, "tit_for_tat", s.Name())
	assert.NotNil(t, comp.Generator)
	assert.Contains(t, comp.PlayerNames(), "grudger")

	w, err := worker.NewWorker(comp.WorkerConfig(worker.WorkerTypeLight))
	require.NoError(t, err)
	assert.Equal(t, "light", w.Type())
}

func TestBuildCatalogDirAndRemote(t *testing.T) {
	ctx := context.Background()
	cfg := quiet(Default())
	cfg.Catalog.Dir = t.TempDir()
	cfg.Catalog.AllowRules = []string{"mirror"}
	cfg.Remote = []remote.Config{{Name: "far", Strategy: "tit_for_tat", BaseURL: "http://127.0.0.1:1"}}

	comp, err := cfg.Build(ctx, "")
	require.NoError(t, err)
	defer comp.Close(ctx)

	assert.NotEmpty(t, comp.Catalog.List(), "catalog is seeded with the built-ins")
	s, err := comp.Resolver.Resolve(ctx, "tit_for_tat")
	require.NoError(t, err)
	assert.Equal(t, "tit_for_tat", s.Name())

	_, err = comp.Resolver.Resolve(ctx, "pavlov")
	var denied *guard.DeniedError
	assert.ErrorAs(t, err, &denied)

	far, err := comp.Resolver.Resolve(ctx, "far")
	require.NoError(t, err)
	assert.Equal(t, "far", far.Name())
	names := comp.PlayerNames()
	assert.Equal(t, "far", names[len(names)-1])
}

func TestFetch(t *testing.T) {
	doc := "name: fetched_tft\nopening: C\nprobability: 1\nrule:\n  kind: mirror\n  fallback: C\n"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(doc))
	}))
	defer srv.Close()

	ctx := context.Background()
	cfg := quiet(Default())
	cfg.Catalog.FetchHosts = []string{"127.0.0.1"}
	comp, err := cfg.Build(ctx, "")
	require.NoError(t, err)
	defer comp.Close(ctx)

	names, err := comp.Fetch(ctx, srv.URL)
	require.NoError(t, err)
	assert.Equal(t, []string{"fetched_tft"}, names)

	s, err := comp.Resolver.Resolve(ctx, "fetched_tft")
	require.NoError(t, err)
	assert.Equal(t, "fetched_tft", s.Name())

	cfg.Catalog.FetchHosts = nil
	_, err = comp.Fetch(ctx, srv.URL)
	assert.Error(t, err)
}
