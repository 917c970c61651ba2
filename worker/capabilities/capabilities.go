package capabilities

import "strings"

// Capabilities defines what a worker can do
type Capabilities struct {
	UseKB   bool `json:"use_kb"`   // resolves players from the catalog
	UseWASM bool `json:"use_wasm"` // runs external WASM rules
	UseLLM  bool `json:"use_llm"`  // asks a generator for candidates
}

// String returns a human-readable representation of capabilities
func (c Capabilities) String() string {
	var caps []string
	if c.UseKB {
		caps = append(caps, "KB")
	}
	if c.UseWASM {
		caps = append(caps, "WASM")
	}
	if c.UseLLM {
		caps = append(caps, "LLM")
	}
	if len(caps) == 0 {
		return "none"
	}
	return strings.Join(caps, "+")
}

// CanRun reports whether a job with these needs fits the worker. Every job
// resolves players, so KB is always required.
func (c Capabilities) CanRun(needsWASM, needsLLM bool) bool {
	if needsWASM && !c.UseWASM {
		return false
	}
	if needsLLM && !c.UseLLM {
		return false
	}
	return c.UseKB
}

// WorkerWithCapabilities is an interface for workers that expose their capabilities
type WorkerWithCapabilities interface {
	Type() string
	Caps() Capabilities
}

// DefaultCapabilities returns default capabilities for different worker types
func DefaultCapabilities(workerType string) Capabilities {
	switch workerType {
	case "heavy":
		return Capabilities{UseKB: true, UseWASM: true, UseLLM: true}
	default:
		return Capabilities{UseKB: true, UseWASM: true}
	}
}
