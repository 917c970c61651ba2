package worker

import "github.com/snow-ghost/dilemma/worker/capabilities"

// Re-export types from capabilities package for convenience
type Capabilities = capabilities.Capabilities
type WorkerWithCapabilities = capabilities.WorkerWithCapabilities

// DefaultCapabilities returns default capabilities for different worker types
func DefaultCapabilities(workerType WorkerType) Capabilities {
	return capabilities.DefaultCapabilities(string(workerType))
}
