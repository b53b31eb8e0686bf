// Package agent invokes the fold agent that turns a chunk's rendered prompt
// into living-doc edits. The agent is modeled as an opaque oracle: callers
// send a prompt and get back a pass/fail signal, never structured output.
// Grounded on original_source/engram/dispatch.py's invoke_agent.
package agent

import (
	"context"
	"time"
)

// DefaultTimeout matches invoke_agent's 600s default.
const DefaultTimeout = 600 * time.Second

// Invoker sends a fold prompt to an agent and reports whether it completed
// successfully. Implementations may shell out to a CLI or call a model API
// directly; callers never depend on which.
type Invoker interface {
	Invoke(ctx context.Context, prompt string) (bool, error)
}

// BriefingInvoker generates the compressed L0 briefing text from the
// concatenated living-doc content, used by internal/briefing.Regenerate.
type BriefingInvoker interface {
	GenerateBriefing(ctx context.Context, livingDocsContent string) (string, error)
}
