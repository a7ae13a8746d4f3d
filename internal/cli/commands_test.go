package cli

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/assetsched/internal/store"
)

func TestValidate(t *testing.T) {
	t.Run("valid text", func(t *testing.T) {
		ws := newWorkspace(t, pipelineDefs)
		out, err := execute(t, "validate", ws.defs)
		require.NoError(t, err)
		assert.Contains(t, out, "✓ All definitions valid (2 assets, 0 policies)")
	})

	t.Run("valid json", func(t *testing.T) {
		ws := newWorkspace(t, pipelineDefs)
		out, err := execute(t, "--format", "json", "validate", ws.defs)
		require.NoError(t, err)

		var res ValidationResult
		decodeData(t, out, &res)
		assert.True(t, res.Valid)
		assert.Equal(t, 2, res.Assets)
	})

	t.Run("unknown dependency", func(t *testing.T) {
		ws := newWorkspace(t, "assets:\n  - key: mart\n    deps: [raw]\n")
		out, err := execute(t, "validate", ws.defs)
		require.Error(t, err)
		assert.Equal(t, ExitFailure, GetExitCode(err))
		assert.Contains(t, out, "✗ Validation failed")
		assert.Contains(t, out, "E104")
		assert.Contains(t, out, "assets.yaml:2:5")
	})

	t.Run("syntax error", func(t *testing.T) {
		ws := newWorkspace(t, "assets: [\n")
		out, err := execute(t, "validate", ws.defs)
		assert.Equal(t, ExitFailure, GetExitCode(err))
		assert.Contains(t, out, "E100")
	})

	t.Run("missing path", func(t *testing.T) {
		_, err := execute(t, "validate", filepath.Join(t.TempDir(), "nope"))
		assert.Equal(t, ExitCommandError, GetExitCode(err))
	})

	t.Run("invalid config", func(t *testing.T) {
		ws := newWorkspace(t, pipelineDefs)
		cfgPath := filepath.Join(t.TempDir(), "assetsched.yaml")
		require.NoError(t, os.WriteFile(cfgPath, []byte("parallelism: 0\n"), 0o644))

		out, err := execute(t, "--config", cfgPath, "validate", ws.defs)
		assert.Equal(t, ExitFailure, GetExitCode(err))
		assert.Contains(t, out, "config.parallelism")
	})
}

func TestEvaluate_DryRunWritesNothing(t *testing.T) {
	ws := newWorkspace(t, pipelineDefs)

	for i := 0; i < 2; i++ {
		out, err := execute(t, "--format", "json", "evaluate", "--db", ws.db, "--now", "2024-01-02T00:00:00Z", ws.defs)
		require.NoError(t, err)

		var res EvaluateResult
		decodeData(t, out, &res)
		assert.Equal(t, int64(1), res.EvaluationID, "dry runs never advance the cursor")
		assert.False(t, res.Committed)
		require.Len(t, res.RunRequests, 1)
		assert.Len(t, res.RunRequests[0].Partitions, 2)
		assert.Equal(t, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), res.Timestamp)
	}

	out, err := execute(t, "--format", "json", "runs", "list", "--db", ws.db)
	require.NoError(t, err)
	var runs RunList
	decodeData(t, out, &runs)
	assert.Empty(t, runs.Runs)
}

func TestEvaluate_CommitLaunchesOnce(t *testing.T) {
	ws := newWorkspace(t, pipelineDefs)

	out, err := execute(t, "evaluate", "--db", ws.db, "--now", "2024-01-02T00:00:00Z", "--commit", ws.defs)
	require.NoError(t, err)
	assert.Contains(t, out, "Evaluation 1 of default_automation_sensor at 2024-01-02T00:00:00Z (committed)")
	assert.Contains(t, out, "1 run request(s)")

	out, err = execute(t, "--format", "json", "evaluate", "--db", ws.db, "--now", "2024-01-02T00:01:00Z", "--commit", ws.defs)
	require.NoError(t, err)
	var res EvaluateResult
	decodeData(t, out, &res)
	assert.Equal(t, int64(2), res.EvaluationID)
	assert.Empty(t, res.RunRequests, "the queued run is still in progress")

	out, err = execute(t, "--format", "json", "runs", "list", "--db", ws.db, "--status", "queued")
	require.NoError(t, err)
	var runs RunList
	decodeData(t, out, &runs)
	require.Len(t, runs.Runs, 1)
	assert.Equal(t, int64(1), runs.Runs[0].EvaluationID)

	out, err = execute(t, "--format", "json", "runs", "update", runs.Runs[0].RunID, "--status", "success", "--db", ws.db)
	require.NoError(t, err)
	decodeData(t, out, &runs)
	assert.Equal(t, store.RunSuccess, runs.Runs[0].Status)
}

func TestEvaluate_Selection(t *testing.T) {
	ws := newWorkspace(t, pipelineDefs)

	out, err := execute(t, "--format", "json", "evaluate", "--db", ws.db, "--select", "raw", ws.defs)
	require.NoError(t, err)
	var res EvaluateResult
	decodeData(t, out, &res)
	require.Len(t, res.Assets, 1)
	assert.Equal(t, "raw", string(res.Assets[0].Key))

	_, err = execute(t, "evaluate", "--db", ws.db, "--select", "nope", ws.defs)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestEvaluate_BadInput(t *testing.T) {
	ws := newWorkspace(t, pipelineDefs)

	_, err := execute(t, "evaluate", "--db", ws.db, "--now", "tomorrow", ws.defs)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	bad := newWorkspace(t, "assets:\n  - key: a\n    condition: whenever\n")
	_, err = execute(t, "evaluate", "--db", bad.db, bad.defs)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestReportAndEvaluations(t *testing.T) {
	ws := newWorkspace(t, pipelineDefs)

	_, err := execute(t, "evaluate", "--db", ws.db, "--now", "2024-01-02T00:00:00Z", "--commit", ws.defs)
	require.NoError(t, err)

	out, err := execute(t, "--format", "json", "report", "raw", "--db", ws.db, "--timestamp", "2024-01-02T00:05:00Z")
	require.NoError(t, err)
	var rep ReportResult
	decodeData(t, out, &rep)
	assert.Equal(t, store.KindMaterialization, rep.Kind)
	assert.Positive(t, rep.StorageID)

	out, err = execute(t, "evaluations", "raw", "--db", ws.db)
	require.NoError(t, err)
	assert.Contains(t, out, "evaluation 1 at 2024-01-02T00:00:00Z: 1 requested")

	out, err = execute(t, "--format", "json", "evaluations", "raw", "--db", ws.db)
	require.NoError(t, err)
	var list EvaluationList
	decodeData(t, out, &list)
	require.Len(t, list.Records, 1)
	assert.Equal(t, []string{""}, list.Records[0].TrueSet)
	require.NotNil(t, list.Records[0].Root)
}

func TestReport_BadInput(t *testing.T) {
	db := filepath.Join(t.TempDir(), "assetsched.db")

	_, err := execute(t, "report", "raw", "--kind", "deletion", "--db", db)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	_, err = execute(t, "report", "a//b", "--db", db)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	_, err = execute(t, "runs", "update", "missing-run", "--status", "success", "--db", db)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	_, err = execute(t, "runs", "update", "missing-run", "--status", "done", "--db", db)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestRun_TicksUntilCanceled(t *testing.T) {
	ws := newWorkspace(t, pipelineDefs)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	out, err := executeContext(t, ctx, "run", "--db", ws.db, "--interval", "20ms", ws.defs)
	require.NoError(t, err)
	assert.Contains(t, out, "Daemon started")

	out, err = execute(t, "--format", "json", "runs", "list", "--db", ws.db)
	require.NoError(t, err)
	var runs RunList
	decodeData(t, out, &runs)
	assert.Len(t, runs.Runs, 1, "later ticks see the queued run as in progress")
}

func TestRun_RequiresDefinitions(t *testing.T) {
	_, err := execute(t, "run", "--db", filepath.Join(t.TempDir(), "x.db"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires at least 1 arg")
}
