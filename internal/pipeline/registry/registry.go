// Package registry implements the Step Registry & Versioning component
// (spec §4.4): named step registration, version hashing, and topological
// ordering of a requested step set.
package registry

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os/exec"
	"strings"
	"sync"

	"github.com/archivescribe/ytingest/internal/pipeline/runtime"
	"github.com/archivescribe/ytingest/internal/pkg/errs"
)

/*
Step is the minimal contract every pipeline unit implements: a named,
idempotent function of a Context producing a StepResult.

Invariants:
  - Steps must be safe to re-run after partial execution (at-least-once,
    not exactly-once; see spec §4.5).
  - Steps never reach into the registry or runner; Context and the adapters
    a step closes over are its entire execution surface.
*/
type Step func(ctx *runtime.Context) runtime.StepResult

// Registration describes one registered step: its name, computed version
// hash, declared dependencies, and optional documentation.
type Registration struct {
	Name          string
	VersionHash   string
	Dependencies  []string
	Description   string
	SourceLocator string
	Fn            Step
}

/*
Registry is a concurrency-safe map of step name -> registration.

At most one step may be registered per name; registration is expected to
happen at process init via Register, and lookups may happen concurrently
from multiple worker goroutines (queue processor, backfill engine).
*/
type Registry struct {
	mu    sync.RWMutex
	steps map[string]*Registration
}

// New constructs an empty Registry.
func New() *Registry {
	return &Registry{steps: make(map[string]*Registration)}
}

/*
Register records a step under name with the given dependencies and source
text (used to compute the version hash — see VersionHash). Duplicate names
are a programmer error and panic, matching the teacher's fail-fast
registration discipline: registration happens once at module init, never
in response to external input.
*/
func (r *Registry) Register(name string, deps []string, source string, description string, fn Step) {
	if strings.TrimSpace(name) == "" {
		panic("registry: step name must not be empty")
	}
	if fn == nil {
		panic(fmt.Sprintf("registry: step %q registered with a nil function", name))
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.steps[name]; exists {
		panic(fmt.Sprintf("registry: duplicate step registration for %q", name))
	}
	r.steps[name] = &Registration{
		Name:          name,
		VersionHash:   VersionHash(name, source),
		Dependencies:  append([]string(nil), deps...),
		Description:   description,
		SourceLocator: source,
		Fn:            fn,
	}
}

// Get returns the registration for name, if any.
func (r *Registry) Get(name string) (*Registration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.steps[name]
	return reg, ok
}

// VersionHashOf returns the current registered version hash for name, or ""
// if name is not registered.
func (r *Registry) VersionHashOf(name string) string {
	reg, ok := r.Get(name)
	if !ok {
		return ""
	}
	return reg.VersionHash
}

// Names returns every registered step name, in no particular order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.steps))
	for name := range r.steps {
		out = append(out, name)
	}
	return out
}

var (
	hashMu    sync.Mutex
	hashCache = map[string]string{}
)

/*
VersionHash computes the stable version hash for a step's source text:
the first 12 hex characters of its SHA-256 digest, cached per step name
within the process (spec §4.4). When a git-tracked file path is supplied as
source (i.e. source looks like a path rather than inline source text), the
git blob hash is preferred when `git` is available and the path is inside a
work tree; this mirrors source-control blob hashing without requiring it.

The hash is a pure function of the source text: the same name+source pair
always yields the same hash, and the hash never depends on which machine
computed it.
*/
func VersionHash(name, source string) string {
	hashMu.Lock()
	defer hashMu.Unlock()
	key := name + "\x00" + source
	if h, ok := hashCache[key]; ok {
		return h
	}
	h := computeHash(source)
	hashCache[key] = h
	return h
}

func computeHash(source string) string {
	if blob, ok := gitBlobHash(source); ok {
		return blob
	}
	sum := sha256.Sum256([]byte(source))
	return hex.EncodeToString(sum[:])[:12]
}

// gitBlobHash attempts `git hash-object <path>` when source looks like an
// existing file path. Any failure (git absent, path not a file, not inside
// a repo) falls back silently to the content hash.
func gitBlobHash(source string) (string, bool) {
	trimmed := strings.TrimSpace(source)
	if trimmed == "" || strings.ContainsAny(trimmed, "\n\r") || len(trimmed) > 4096 {
		return "", false
	}
	out, err := exec.Command("git", "hash-object", trimmed).Output()
	if err != nil {
		return "", false
	}
	sha := strings.TrimSpace(string(out))
	if len(sha) < 12 {
		return "", false
	}
	return sha[:12], true
}

/*
ExecutionOrder computes a topological sort of the transitive closure of
targets over their declared dependencies (Kahn's algorithm, stable by the
depth-first discovery order from targets so independent steps resolve
deterministically).

Returns ErrUnknownStep if targets or any transitive dependency names a step
that was never registered, and ErrCircularDependency if the dependency
graph (restricted to the closure) contains a cycle.
*/
func (r *Registry) ExecutionOrder(targets []string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	closure := map[string]bool{}
	var order []string // depth-first discovery order from targets, for determinism
	var visit func(name string) error
	visit = func(name string) error {
		if closure[name] {
			return nil
		}
		reg, ok := r.steps[name]
		if !ok {
			return fmt.Errorf("%w: %q", errs.ErrUnknownStep, name)
		}
		closure[name] = true
		order = append(order, name)
		for _, dep := range reg.Dependencies {
			if err := visit(dep); err != nil {
				return err
			}
		}
		return nil
	}
	for _, t := range targets {
		if err := visit(t); err != nil {
			return nil, err
		}
	}

	// Kahn's algorithm restricted to the closure.
	deg := make(map[string]int, len(closure))
	out := make(map[string][]string, len(closure))
	for name := range closure {
		deg[name] = 0
	}
	for name := range closure {
		for _, dep := range r.steps[name].Dependencies {
			deg[name]++
			out[dep] = append(out[dep], name)
		}
	}

	var result []string
	added := map[string]bool{}
	for {
		progressed := false
		for _, name := range order {
			if added[name] || deg[name] != 0 {
				continue
			}
			added[name] = true
			result = append(result, name)
			for _, next := range out[name] {
				deg[next]--
			}
			progressed = true
		}
		if !progressed {
			break
		}
	}

	if len(result) != len(closure) {
		return nil, fmt.Errorf("%w: among %v", errs.ErrCircularDependency, targets)
	}
	return result, nil
}
