package executor

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"regexp"
	"strings"

	"github.com/nodefleet/fleet/pkg/types"
)

var sidekiqWorkerNamePattern = regexp.MustCompile(`^[a-zA-Z0-9]+$`)

// SidekiqExecutor runs a Ruby worker class's perform method against a
// Rails application by piping a small script into `ruby`'s stdin.
type SidekiqExecutor struct{}

func NewSidekiqExecutor() *SidekiqExecutor {
	return &SidekiqExecutor{}
}

func (e *SidekiqExecutor) Execute(job *types.Job) ExecutionContext {
	meta := job.JobType.Metadata

	railsDir, ok := meta["rails_dir"].(string)
	if !ok || railsDir == "" {
		return &processContext{internalFailure: true}
	}

	worker, ok := meta["sidekiq_worker"].(string)
	if !ok || !sidekiqWorkerNamePattern.MatchString(worker) {
		return &processContext{internalFailure: true}
	}

	rubyExecutable, ok := meta["ruby_executable"].(string)
	if !ok || rubyExecutable == "" {
		// an invalid value is downgraded to a warning; a missing one is not
		if _, present := meta["ruby_executable"]; present {
			slog.Warn("sidekiq executor: invalid ruby_executable, using default", "job", job.UUID)
		}
		rubyExecutable = "ruby"
	}

	script, err := sidekiqScript(worker, job.Arguments["sidekiq_arguments"])
	if err != nil {
		return &processContext{internalFailure: true}
	}

	metaEnv, _ := meta["environment"].(map[string]interface{})
	jobEnv, _ := job.Arguments["environment"].(map[string]interface{})
	envOverrides := mergeEnvironment(metaEnv, jobEnv)

	shell := os.Getenv("SHELL")
	if shell == "" {
		shell = "/bin/bash"
	}

	cmd := exec.Command(shell, "-c", rubyExecutable)
	cmd.Dir = railsDir
	if len(envOverrides) > 0 {
		cmd.Env = append(os.Environ(), envOverrides...)
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return &processContext{internalFailure: true}
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return &processContext{internalFailure: true}
	}

	io.WriteString(stdin, script)
	stdin.Close()

	return &processContext{cmd: cmd, stdout: &stdout, stderr: &stderr, timeout: timeoutDuration(job.JobType.Timeout)}
}

// sidekiqScript builds the stdin payload: a require of the Rails
// environment followed by Worker.new.perform(args). args is `nil` when no
// sidekiq_arguments were given, else JSON.parse('<escaped JSON>').
func sidekiqScript(worker string, sidekiqArguments interface{}) (string, error) {
	argsExpr := "nil"
	if sidekiqArguments != nil {
		raw, err := json.Marshal(sidekiqArguments)
		if err != nil {
			return "", fmt.Errorf("encode sidekiq_arguments: %w", err)
		}
		escaped := strings.ReplaceAll(string(raw), `\`, `\\`)
		escaped = strings.ReplaceAll(escaped, `'`, `\'`)
		argsExpr = fmt.Sprintf("JSON.parse('%s')", escaped)
	}
	return fmt.Sprintf("require './config/environment'\n%s.new.perform(%s)\n", worker, argsExpr), nil
}
