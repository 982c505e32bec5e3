package executor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nodefleet/fleet/pkg/types"
)

func sidekiqJob(meta, args map[string]interface{}) *types.Job {
	return &types.Job{
		UUID:      "job-1",
		Arguments: args,
		JobType: &types.JobType{
			UUID:     "jt-1",
			Executor: types.ExecutorSidekiq,
			Metadata: meta,
		},
	}
}

func TestSidekiqMissingRailsDirIsInternalFailure(t *testing.T) {
	job := sidekiqJob(map[string]interface{}{"sidekiq_worker": "ReportWorker"}, nil)
	ctx := NewSidekiqExecutor().Execute(job)
	res, err := ctx.Result(job, false)
	require.NoError(t, err)
	assert.False(t, res.Success)
}

func TestSidekiqInvalidWorkerNameIsInternalFailure(t *testing.T) {
	job := sidekiqJob(map[string]interface{}{
		"rails_dir":      "/srv/app",
		"sidekiq_worker": "Bad Worker!",
	}, nil)
	ctx := NewSidekiqExecutor().Execute(job)
	res, err := ctx.Result(job, false)
	require.NoError(t, err)
	assert.False(t, res.Success)
}

func TestSidekiqScriptWithoutArguments(t *testing.T) {
	script, err := sidekiqScript("ReportWorker", nil)
	require.NoError(t, err)
	assert.Equal(t, "require './config/environment'\nReportWorker.new.perform(nil)\n", script)
}

func TestSidekiqScriptEscapesArguments(t *testing.T) {
	script, err := sidekiqScript("ReportWorker", map[string]interface{}{"name": "O'Brien"})
	require.NoError(t, err)
	assert.Contains(t, script, `JSON.parse('{"name":"O\'Brien"}')`)
}
