// Package openai proposes strategy configs through an OpenAI-compatible
// chat completion endpoint.
package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"
	"github.com/snow-ghost/dilemma/llm"
	"github.com/snow-ghost/dilemma/pkg/limiter"
	"github.com/snow-ghost/dilemma/pkg/logging"
	"github.com/snow-ghost/dilemma/pkg/tokens"
	"github.com/snow-ghost/dilemma/policy"
)

// Config configures the generator.
type Config struct {
	BaseURL     string  `yaml:"base_url"`
	APIKey      string  `yaml:"-"`
	Model       string  `yaml:"model"`
	Temperature float32 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
	// PromptBudget caps the tokens of the user prompt; the standings table
	// is cut line by line to fit.
	PromptBudget int `yaml:"prompt_budget"`
}

// DefaultConfig returns the default generator configuration.
func DefaultConfig() Config {
	return Config{
		BaseURL:      "https://api.openai.com/v1",
		Model:        openai.GPT4oMini,
		Temperature:  0.7,
		MaxTokens:    1500,
		PromptBudget: 3000,
	}
}

// Generator implements llm.Generator.
type Generator struct {
	cfg       Config
	client    *openai.Client
	protector *limiter.Protector
	encoder   tokens.Encoder
	logger    *logging.Logger
}

var _ llm.Generator = (*Generator)(nil)

// Option customises a Generator.
type Option func(*Generator)

// WithProtector routes calls through p instead of a private protector.
func WithProtector(p *limiter.Protector) Option {
	return func(g *Generator) { g.protector = p }
}

// WithEncoder sets the token counter used for prompt budgeting.
func WithEncoder(enc tokens.Encoder) Option {
	return func(g *Generator) { g.encoder = enc }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(g *Generator) { g.logger = l }
}

// NewGenerator creates a new OpenAI generator
func NewGenerator(cfg Config, opts ...Option) *Generator {
	def := DefaultConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.Model == "" {
		cfg.Model = def.Model
	}
	if cfg.PromptBudget <= 0 {
		cfg.PromptBudget = def.PromptBudget
	}

	config := openai.DefaultConfig(cfg.APIKey)
	config.BaseURL = cfg.BaseURL

	g := &Generator{
		cfg:    cfg,
		client: openai.NewClientWithConfig(config),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.logger == nil {
		g.logger = logging.NewNop()
	}
	if g.protector == nil {
		g.protector = limiter.NewProtector(nil, nil, g.logger)
	}
	if g.encoder == nil {
		g.encoder = tokens.NewResolvingRegistry().GetEncoder(cfg.Model)
	}
	return g
}

// Propose asks the model for brief.Count variants of the baseline.
func (g *Generator) Propose(ctx context.Context, brief llm.Brief) (llm.Proposal, error) {
	user, err := g.userPrompt(brief)
	if err != nil {
		return llm.Proposal{}, err
	}

	request := openai.ChatCompletionRequest{
		Model: g.cfg.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		Temperature: g.cfg.Temperature,
		MaxTokens:   g.cfg.MaxTokens,
	}

	target := "openai:" + g.cfg.Model
	result, err := g.protector.Execute(ctx, target, func(ctx context.Context) (interface{}, error) {
		resp, err := g.client.CreateChatCompletion(ctx, request)
		if err != nil {
			return nil, classify(err)
		}
		return resp, nil
	})
	if err != nil {
		return llm.Proposal{}, fmt.Errorf("openai chat completion failed: %w", err)
	}

	resp := result.(openai.ChatCompletionResponse)
	if len(resp.Choices) == 0 {
		return llm.Proposal{}, llm.ErrNoConfigs
	}
	text := resp.Choices[0].Message.Content

	configs, err := llm.ParseConfigs(text)
	if err != nil {
		return llm.Proposal{Source: target, Raw: text}, err
	}
	configs = rename(configs, brief.Baseline.Name)

	g.logger.Debug("openai proposal",
		"model", g.cfg.Model,
		"configs", len(configs),
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens)

	return llm.Proposal{Configs: configs, Source: target, Raw: text}, nil
}

// classify maps API status codes onto limiter.HTTPError so the retry
// manager can tell transient failures apart.
func classify(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode != 0 {
		return fmt.Errorf("%w: %w", limiter.NewHTTPError(apiErr.HTTPStatusCode, apiErr.Message, ""), err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		return fmt.Errorf("%w: %w", limiter.NewHTTPError(reqErr.HTTPStatusCode, reqErr.Error(), ""), err)
	}
	return err
}

func (g *Generator) userPrompt(brief llm.Brief) (string, error) {
	baseline, err := policy.MarshalConfig(brief.Baseline)
	if err != nil {
		return "", fmt.Errorf("marshal baseline: %w", err)
	}
	count := brief.Count
	if count <= 0 {
		count = 3
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Propose %d variants of the baseline strategy that score higher.\n", count)
	fmt.Fprintf(&b, "Matches last %d rounds with noise %.3f.\n", brief.Rounds, brief.Noise)
	if len(brief.Opponents) > 0 {
		fmt.Fprintf(&b, "Opponents: %s\n", strings.Join(brief.Opponents, ", "))
	}
	b.WriteString("Baseline:\n```yaml\n")
	b.Write(baseline)
	b.WriteString("```\n")
	head := b.String()

	if brief.Standings == "" {
		return head, nil
	}
	used, err := g.encoder.Count(head)
	if err != nil {
		return "", fmt.Errorf("count prompt tokens: %w", err)
	}
	remaining := g.cfg.PromptBudget - used
	if remaining <= 0 {
		return head, nil
	}
	standings, err := tokens.TruncateLines(g.encoder, "Standings:\n"+brief.Standings, remaining)
	if err != nil {
		return "", fmt.Errorf("trim standings: %w", err)
	}
	return head + standings + "\n", nil
}

// rename gives every proposal a distinct name derived from the baseline.
func rename(configs []policy.Config, baseline string) []policy.Config {
	seen := map[string]bool{baseline: true}
	for i := range configs {
		name := configs[i].Name
		if name == "" || seen[name] || name == policy.DefaultConfig().Name {
			name = fmt.Sprintf("%s~openai%d", baseline, i+1)
		}
		seen[name] = true
		configs[i].Name = name
	}
	return configs
}

const systemPrompt = `You design strategies for the iterated Prisoner's Dilemma with noise.
A strategy is a YAML document with these fields (omitted fields keep their defaults):

name: unique snake_case name
description: one sentence
opening: C or D                 # move in round 0
probability: 0..1               # chance of playing the intended action, otherwise its opposite
empty_window_rate: 0..1         # cooperation rate assumed before any history
tie_break: cooperate|defect
rearm: restart|extend           # timer handling when a mode is re-entered
rule:
  kind: mirror|majority|threshold|win_stay_lose_shift|always_cooperate|always_defect
  tolerance: int                # mirror: opponent defections forgiven in a row
  window: int                   # majority/threshold window
  k: int                        # majority: cooperations needed in the window
  threshold: 0..1               # threshold: cooperation rate needed
noise:
  forgive_isolated: bool        # treat a lone opponent D as C when noise > 0
score_gap: {threshold: float, behind: mode, ahead: mode, duration: int}
streak: {action: C|D, length: int, mutual: bool, alternation: int, mode: mode, duration: int, override: C|D}
                                # alternation: window checked for a strict C/D alternation
periodic: {period: int, action: C|D}
rate: {window: int, low: 0..1, low_mode: mode, high: 0..1, high_mode: mode, duration: int}
endgame: {window: int, action: C|D, probability: 0..1}

mode is one of punish, lock_defect, lock_cooperate, tit_for_tat.
A trigger with a zero length, period, threshold, window or duration is disabled.
Reply with one fenced yaml block per strategy and nothing else.`
