package executor

import (
	"bytes"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/nodefleet/fleet/pkg/types"
)

// ShellExecutor runs JobType metadata's "command" through $SHELL -c,
// optionally extended by the Job's own "command" and "environment"
// arguments. Composition is deterministic: see renderCommand and
// mergeEnvironment.
type ShellExecutor struct{}

func NewShellExecutor() *ShellExecutor {
	return &ShellExecutor{}
}

func (e *ShellExecutor) Execute(job *types.Job) ExecutionContext {
	meta := job.JobType.Metadata

	metaRendered, ok := renderCommand(meta["command"])
	if !ok {
		return &processContext{internalFailure: true}
	}
	if meta["command"] == nil {
		return &processContext{internalFailure: true}
	}

	jobRendered, ok := renderCommand(job.Arguments["command"])
	if !ok {
		return &processContext{internalFailure: true}
	}

	composed := strings.TrimRight(metaRendered+" "+jobRendered, " ")

	metaEnv, _ := meta["environment"].(map[string]interface{})
	jobEnv, _ := job.Arguments["environment"].(map[string]interface{})
	envOverrides := mergeEnvironment(metaEnv, jobEnv)

	shell := os.Getenv("SHELL")
	if shell == "" {
		shell = "/bin/bash"
	}

	cmd := exec.Command(shell, "-c", composed)
	cmd.Stdin = nil
	if f, err := os.Open(os.DevNull); err == nil {
		cmd.Stdin = f
	}
	if len(envOverrides) > 0 {
		cmd.Env = append(os.Environ(), envOverrides...)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return &processContext{internalFailure: true}
	}

	return &processContext{cmd: cmd, stdout: &stdout, stderr: &stderr, timeout: timeoutDuration(job.JobType.Timeout)}
}

// timeoutDuration converts JobType's millisecond timeout into a Duration
// for the watchdog this context reserves a field for; nil means unset.
func timeoutDuration(timeoutMs *int64) *time.Duration {
	if timeoutMs == nil {
		return nil
	}
	d := time.Duration(*timeoutMs) * time.Millisecond
	return &d
}
