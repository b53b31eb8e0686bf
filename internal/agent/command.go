package agent

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"os/exec"
	"strings"
	"time"
)

// CommandInvoker shells out to a configured fold-agent CLI, appending the
// prompt as the final argument. Grounded on invoke_agent's subprocess
// contract: agentCommand (if set) is split on whitespace, otherwise
// "claude --print --model <model>" is used.
type CommandInvoker struct {
	AgentCommand string
	Model        string
	ProjectRoot  string
	Timeout      time.Duration
	Logger       *log.Logger
}

func (c *CommandInvoker) buildArgs() []string {
	if c.AgentCommand != "" {
		return strings.Fields(c.AgentCommand)
	}
	model := c.Model
	if model == "" {
		model = "sonnet"
	}
	return []string{"claude", "--print", "--model", model}
}

func (c *CommandInvoker) timeout() time.Duration {
	if c.Timeout > 0 {
		return c.Timeout
	}
	return DefaultTimeout
}

// Invoke runs the fold agent with prompt as its final argument, returning
// true only on a clean (rc=0) exit. Grounded on invoke_agent.
func (c *CommandInvoker) Invoke(ctx context.Context, prompt string) (bool, error) {
	args := c.buildArgs()
	if len(args) == 0 {
		return false, fmt.Errorf("invoke agent: empty agent command")
	}
	args = append(append([]string{}, args...), prompt)

	runCtx, cancel := context.WithTimeout(ctx, c.timeout())
	defer cancel()

	cmd := exec.CommandContext(runCtx, args[0], args[1:]...) // #nosec G204 - operator-configured agent command
	cmd.Dir = c.ProjectRoot
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	err := cmd.Run()
	if runCtx.Err() != nil {
		c.logf("fold agent timed out (%s)", c.timeout())
		return false, nil
	}
	if err != nil {
		msg := stderr.String()
		if len(msg) > 500 {
			msg = msg[:500]
		}
		c.logf("fold agent failed: %v: %s", err, msg)
		return false, nil
	}
	return true, nil
}

func (c *CommandInvoker) logf(format string, args ...any) {
	if c.Logger != nil {
		c.Logger.Printf(format, args...)
	}
}

// CommandBriefingInvoker generates the L0 briefing by shelling out to the
// same agent CLI with a lightweight summarization prompt, grounded on
// Dispatcher._generate_briefing.
type CommandBriefingInvoker struct {
	ProjectRoot string
	Timeout     time.Duration
	Logger      *log.Logger
}

const briefingPromptPrefix = "Compress the following project knowledge into a concise briefing " +
	"(50-100 lines). Focus on: what's alive vs dead, contested claims, " +
	"key workflows, and agent guidance. Use stable IDs (C###/E###/W###).\n\n"

func (c *CommandBriefingInvoker) timeout() time.Duration {
	if c.Timeout > 0 {
		return c.Timeout
	}
	return 120 * time.Second
}

// GenerateBriefing shells out to "claude --print --model haiku" with the
// living-docs content, returning the trimmed stdout.
func (c *CommandBriefingInvoker) GenerateBriefing(ctx context.Context, livingDocsContent string) (string, error) {
	runCtx, cancel := context.WithTimeout(ctx, c.timeout())
	defer cancel()

	prompt := briefingPromptPrefix + livingDocsContent
	cmd := exec.CommandContext(runCtx, "claude", "--print", "--model", "haiku", prompt) // #nosec G204
	cmd.Dir = c.ProjectRoot
	out, err := cmd.Output()
	if runCtx.Err() != nil || err != nil {
		if c.Logger != nil {
			c.Logger.Printf("briefing generation failed: %v", err)
		}
		return "", nil
	}
	text := strings.TrimSpace(string(out))
	return text, nil
}
