package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const pipelineDefs = `
assets:
  - key: raw
    condition: eager
  - key: mart
    deps: [raw]
    condition: any_parent_requested
`

// workspace is a definitions directory plus a database path.
type workspace struct {
	defs string
	db   string
}

func newWorkspace(t *testing.T, defs string) workspace {
	t.Helper()
	dir := t.TempDir()
	defsDir := filepath.Join(dir, "defs")
	require.NoError(t, os.MkdirAll(defsDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(defsDir, "assets.yaml"), []byte(defs), 0o644))
	return workspace{defs: defsDir, db: filepath.Join(dir, "assetsched.db")}
}

// execute runs the root command with args and returns stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	return executeContext(t, context.Background(), args...)
}

func executeContext(t *testing.T, ctx context.Context, args ...string) (string, error) {
	t.Helper()
	out := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(ctx)
	return out.String(), err
}

// decodeData unmarshals the data field of a JSON response into v.
func decodeData(t *testing.T, out string, v any) {
	t.Helper()
	var resp struct {
		Status string          `json:"status"`
		Data   json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp), "output: %s", out)
	require.Equal(t, "ok", resp.Status, "output: %s", out)
	require.NoError(t, json.Unmarshal(resp.Data, v))
}

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	assert.Equal(t, "assetsched", cmd.Use)

	for _, name := range []string{"validate", "evaluate", "run", "report", "runs", "evaluations"} {
		sub, _, err := cmd.Find([]string{name})
		require.NoError(t, err, "command %s should exist", name)
		assert.Equal(t, name, sub.Name())
	}

	verbose := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verbose)
	assert.Equal(t, "v", verbose.Shorthand)
	assert.Equal(t, "text", cmd.PersistentFlags().Lookup("format").DefValue)
}

func TestInvalidFormat(t *testing.T) {
	ws := newWorkspace(t, pipelineDefs)
	_, err := execute(t, "--format", "xml", "validate", ws.defs)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitSuccess, GetExitCode(nil))
	assert.Equal(t, ExitFailure, GetExitCode(assert.AnError))
	assert.Equal(t, ExitCommandError, GetExitCode(WrapExitError(ExitCommandError, "bad path", assert.AnError)))

	err := WrapExitError(ExitFailure, "tick failed", assert.AnError)
	assert.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, "tick failed: "+assert.AnError.Error(), err.Error())
}

func TestOutputFormatter(t *testing.T) {
	t.Run("json success", func(t *testing.T) {
		buf := &bytes.Buffer{}
		f := &OutputFormatter{Format: "json", Writer: buf}
		require.NoError(t, f.Success(map[string]string{"result": "ok"}))

		var resp CLIResponse
		require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
		assert.Equal(t, "ok", resp.Status)
		assert.Nil(t, resp.Error)
	})

	t.Run("json error", func(t *testing.T) {
		buf := &bytes.Buffer{}
		f := &OutputFormatter{Format: "json", Writer: buf}
		require.NoError(t, f.Error(ErrCodeLoad, "no definitions", nil))

		var resp CLIResponse
		require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
		assert.Equal(t, "error", resp.Status)
		assert.Equal(t, ErrCodeLoad, resp.Error.Code)
	})

	t.Run("text renderer", func(t *testing.T) {
		buf := &bytes.Buffer{}
		f := &OutputFormatter{Format: "text", Writer: buf}
		require.NoError(t, f.Success(RunList{}))
		assert.Equal(t, "No runs\n", buf.String())
	})

	t.Run("fail", func(t *testing.T) {
		buf := &bytes.Buffer{}
		f := &OutputFormatter{Format: "text", Writer: buf}
		err := f.Fail(ExitCommandError, ErrCodeDatabase, "failed to open database", assert.AnError)
		assert.Equal(t, ExitCommandError, GetExitCode(err))
		assert.Contains(t, buf.String(), "Error [E004]: failed to open database")
	})

	t.Run("verbose to err writer", func(t *testing.T) {
		out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
		f := &OutputFormatter{Format: "json", Writer: out, ErrWriter: errOut, Verbose: true}
		f.VerboseLog("loaded %d", 3)
		assert.Empty(t, out.String())
		assert.Equal(t, "loaded 3\n", errOut.String())
	})
}
