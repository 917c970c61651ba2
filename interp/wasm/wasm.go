// Package wasm runs reactive rules compiled to WebAssembly. A rule module
// exports "memory" and decide(ptr, len i32) -> i32; the host writes the
// opponent's history (one byte per round, 0 = C, 1 = D) at offset 0 and a
// non-zero result means Defect.
package wasm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"

	"github.com/snow-ghost/dilemma/core"
	"github.com/snow-ghost/dilemma/policy"
)

// Export is the function every rule module must export.
const Export = "decide"

type Config struct {
	MemoryPages uint32        `yaml:"memory_pages"` // 64 KiB pages per instance
	Timeout     time.Duration `yaml:"timeout"`      // per decision
}

func DefaultConfig() Config {
	return Config{MemoryPages: 64, Timeout: 50 * time.Millisecond}
}

// Interpreter compiles rule modules once and instantiates them per call,
// so one compiled rule can serve parallel matches.
type Interpreter struct {
	runtime wazero.Runtime
	cfg     Config

	mu    sync.Mutex
	cache map[string]wazero.CompiledModule
}

// NewInterpreter creates a new WASM interpreter with default configuration
func NewInterpreter() *Interpreter {
	return NewInterpreterWithConfig(DefaultConfig())
}

func NewInterpreterWithConfig(cfg Config) *Interpreter {
	if cfg.MemoryPages == 0 {
		cfg.MemoryPages = DefaultConfig().MemoryPages
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	rc := wazero.NewRuntimeConfig().
		WithMemoryLimitPages(cfg.MemoryPages).
		WithCloseOnContextDone(true)

	runtime := wazero.NewRuntimeWithConfig(context.Background(), rc)

	// Rules built with TinyGo import WASI even when they never use it.
	wasi_snapshot_preview1.MustInstantiate(context.Background(), runtime)

	return &Interpreter{
		runtime: runtime,
		cfg:     cfg,
		cache:   make(map[string]wazero.CompiledModule),
	}
}

// Compile returns the compiled module for code, compiling it on first use.
// Modules are cached by name and content hash, so a rule saved again under
// the same name with different code is compiled afresh.
func (i *Interpreter) Compile(ctx context.Context, name string, code []byte) (wazero.CompiledModule, error) {
	key := cacheKey(name, code)

	i.mu.Lock()
	defer i.mu.Unlock()

	if module, ok := i.cache[key]; ok {
		return module, nil
	}
	module, err := i.runtime.CompileModule(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to compile rule %s: %w", name, err)
	}
	if _, ok := module.ExportedFunctions()[Export]; !ok {
		module.Close(ctx)
		return nil, fmt.Errorf("rule %s does not export %q", name, Export)
	}
	i.cache[key] = module
	return module, nil
}

func cacheKey(name string, code []byte) string {
	sum := sha256.Sum256(code)
	return name + "@" + hex.EncodeToString(sum[:])
}

// Cached reports how many compiled modules are held.
func (i *Interpreter) Cached() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.cache)
}

// Call runs decide against a compiled module.
func (i *Interpreter) Call(ctx context.Context, module wazero.CompiledModule, opponent []core.Action) (core.Action, error) {
	execCtx, cancel := context.WithTimeout(ctx, i.cfg.Timeout)
	defer cancel()

	instance, err := i.runtime.InstantiateModule(execCtx, module, wazero.NewModuleConfig().WithName(""))
	if err != nil {
		return core.Cooperate, fmt.Errorf("failed to instantiate rule: %w", err)
	}
	defer instance.Close(execCtx)

	ptr, size, err := writeHistory(instance, opponent)
	if err != nil {
		return core.Cooperate, err
	}
	results, err := instance.ExportedFunction(Export).Call(execCtx, uint64(ptr), uint64(size))
	if err != nil {
		return core.Cooperate, fmt.Errorf("failed to call %s: %w", Export, err)
	}
	if len(results) != 1 {
		return core.Cooperate, fmt.Errorf("%s should return one value, got %d", Export, len(results))
	}
	if uint32(results[0]) != 0 {
		return core.Defect, nil
	}
	return core.Cooperate, nil
}

// writeHistory copies the trailing history that fits into linear memory.
func writeHistory(instance api.Module, opponent []core.Action) (uint32, uint32, error) {
	mem := instance.Memory()
	if mem == nil {
		return 0, 0, fmt.Errorf("rule module has no memory")
	}
	if uint64(len(opponent)) > uint64(mem.Size()) {
		opponent = opponent[len(opponent)-int(mem.Size()):]
	}
	buf := make([]byte, len(opponent))
	for k, a := range opponent {
		buf[k] = byte(a)
	}
	if !mem.Write(0, buf) {
		return 0, 0, fmt.Errorf("failed to write history to memory")
	}
	return 0, uint32(len(buf)), nil
}

// Load implements kb.RuleLoader.
func (i *Interpreter) Load(ctx context.Context, name string, code []byte, fallback core.Action) (policy.Rule, error) {
	module, err := i.Compile(ctx, name, code)
	if err != nil {
		return nil, err
	}
	return &Rule{interp: i, name: name, module: module, fallback: fallback}, nil
}

// Close closes the interpreter and cleans up resources
func (i *Interpreter) Close(ctx context.Context) error {
	return i.runtime.Close(ctx)
}

// Rule is a policy.Rule backed by a compiled module.
type Rule struct {
	interp   *Interpreter
	name     string
	module   wazero.CompiledModule
	fallback core.Action
}

func (r *Rule) Name() string { return r.name }

// Next falls back to the configured action when the module fails or overruns.
func (r *Rule) Next(v policy.View) core.Action {
	a, err := r.interp.Call(context.Background(), r.module, v.Opponent)
	if err != nil {
		return r.fallback
	}
	return a
}
