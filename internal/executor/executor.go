// Package executor realises a Job as a child process. Two executors share
// one ExecutionContext shape, carrying the internal_failure/handle/timeout
// triple from the base design: if internal_failure is set, Result returns a
// failure without ever touching the child process.
package executor

import (
	"bytes"
	"os/exec"
	"time"

	"github.com/nodefleet/fleet/pkg/types"
)

// Executor launches a child process realising a Job and returns a context
// that later yields the execution's outcome.
type Executor interface {
	Execute(job *types.Job) ExecutionContext
}

// ExecutionResult carries the success payload or error payload translated
// by the worker loop into FinishJob's results/errors.
type ExecutionResult struct {
	Success bool
	Payload interface{}
}

// ExecutionContext exposes Result, mirroring the four-shape semantics from
// the base design: a nil result and nil error mean "not finished yet" and
// only ever occur in async mode, which the synchronous worker loop never
// requests.
type ExecutionContext interface {
	// Result blocks for the child's exit (in synchronous mode) and
	// returns the outcome. isAsync is reserved; synchronous callers
	// always pass false, and this design never returns (nil, nil) for
	// isAsync == false.
	Result(job *types.Job, isAsync bool) (*ExecutionResult, error)
}

// processContext is the shared context type behind both the shell and
// Sidekiq executors.
type processContext struct {
	internalFailure bool
	failurePayload  interface{}
	cmd             *exec.Cmd
	stdout          *bytes.Buffer
	stderr          *bytes.Buffer
	timeout         *time.Duration // reserved; see watchdog TODO in Result
}

// Result waits for the child to exit and builds the {stdout, stderr,
// exit_code} success payload. If the context already recorded an internal
// failure, the child is never waited on.
func (c *processContext) Result(job *types.Job, isAsync bool) (*ExecutionResult, error) {
	if c.internalFailure {
		return &ExecutionResult{Success: false, Payload: c.failurePayload}, nil
	}

	// TODO(timeout): attach a watchdog here using c.timeout to kill the
	// child and report a timeout error once enforcement is implemented.
	err := c.cmd.Wait()

	var exitCode interface{}
	if c.cmd.ProcessState != nil {
		code := c.cmd.ProcessState.ExitCode()
		if code >= 0 {
			exitCode = code
		} else {
			exitCode = nil // terminated by signal
		}
	} else if err != nil {
		exitCode = nil
	}

	payload := map[string]interface{}{
		"stdout":    c.stdout.String(),
		"stderr":    c.stderr.String(),
		"exit_code": exitCode,
	}
	return &ExecutionResult{Success: true, Payload: payload}, nil
}
