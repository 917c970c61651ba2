package tools

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/snow-ghost/dilemma/llm"
	"github.com/snow-ghost/dilemma/policy"
)

// maxDocument bounds a fetched strategy document.
const maxDocument = 1 << 20

// Adapter fetches strategy documents from allowlisted hosts.
type Adapter struct {
	allow  map[string]bool
	client *http.Client
}

// NewAdapter creates an adapter; an empty allowlist denies every host.
func NewAdapter(allowHosts []string) *Adapter {
	m := make(map[string]bool, len(allowHosts))
	for _, h := range allowHosts {
		m[strings.ToLower(strings.TrimSpace(h))] = true
	}
	return &Adapter{
		allow:  m,
		client: &http.Client{Timeout: 5 * time.Second},
	}
}

// AllowHost reports whether host (with or without port) may be fetched.
func (a *Adapter) AllowHost(host string) bool {
	host = strings.ToLower(host)
	if a.allow[host] {
		return true
	}
	if h, _, ok := strings.Cut(host, ":"); ok {
		return a.allow[h]
	}
	return false
}

// HTTPGet performs a GET to an allowlisted host and returns the body.
func (a *Adapter) HTTPGet(ctx context.Context, rawURL string) ([]byte, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid url: %w", err)
	}
	if u.Host == "" {
		return nil, errors.New("missing host")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if !a.AllowHost(u.Host) {
		return nil, fmt.Errorf("host not allowed: %s", u.Host)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("http status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDocument+1))
	if err != nil {
		return nil, err
	}
	if len(body) > maxDocument {
		return nil, fmt.Errorf("document exceeds %d bytes", maxDocument)
	}
	return body, nil
}

// FetchConfigs downloads one or more strategy documents ("---" separated
// YAML or JSON) and returns the valid ones.
func (a *Adapter) FetchConfigs(ctx context.Context, rawURL string) ([]policy.Config, error) {
	body, err := a.HTTPGet(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	return llm.ParseConfigs(string(body))
}
