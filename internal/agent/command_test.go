package agent_test

import (
	"context"
	"testing"
	"time"

	"github.com/rajeshgoli/engram/internal/agent"
)

func TestCommandInvokerSuccess(t *testing.T) {
	inv := &agent.CommandInvoker{
		AgentCommand: "true",
		Timeout:      5 * time.Second,
	}
	ok, err := inv.Invoke(context.Background(), "irrelevant prompt")
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if !ok {
		t.Error("Invoke() = false, want true for a command that exits 0")
	}
}

func TestCommandInvokerFailure(t *testing.T) {
	inv := &agent.CommandInvoker{
		AgentCommand: "false",
		Timeout:      5 * time.Second,
	}
	ok, err := inv.Invoke(context.Background(), "irrelevant prompt")
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if ok {
		t.Error("Invoke() = true, want false for a command that exits nonzero")
	}
}

func TestCommandInvokerMissingCommand(t *testing.T) {
	inv := &agent.CommandInvoker{
		AgentCommand: "engram-test-command-that-does-not-exist-xyz",
		Timeout:      5 * time.Second,
	}
	ok, err := inv.Invoke(context.Background(), "prompt")
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if ok {
		t.Error("Invoke() = true, want false for a missing binary")
	}
}

func TestCommandInvokerTimeout(t *testing.T) {
	inv := &agent.CommandInvoker{
		AgentCommand: "sleep 5",
		Timeout:      50 * time.Millisecond,
	}
	ok, err := inv.Invoke(context.Background(), "prompt")
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if ok {
		t.Error("Invoke() = true, want false on timeout")
	}
}
