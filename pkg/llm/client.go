// Package llm implements the generation adapters of spec.md §4.7: a
// small tagged capability (local vs external) behind one operation,
// not an inheritance hierarchy.
package llm

import (
	"context"
	"time"

	"github.com/ahjcgit/ifcagent/pkg/lattice"
)

// Response is the LLM's output. Label must dominate the input label
// under can_flow; conservative implementations return exactly the
// input label (spec.md §4.7).
type Response struct {
	Text  string
	Label lattice.Label
}

// Client is the generation capability the orchestrator depends on.
// IsExternal is immutable for the lifetime of a Client and determines
// whether the orchestrator must run the external-LLM policy gate
// before calling Generate.
type Client interface {
	IsExternal() bool
	Generate(ctx context.Context, prompt string, inputLabel lattice.Label) (Response, error)
}

// DefaultTimeout is the LLM call timeout absent an explicit
// context deadline (spec.md §5).
const DefaultTimeout = 120 * time.Second
