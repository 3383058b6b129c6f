package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/abdul-hamid-achik/capfetch/packages/history"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resetHistoryFlags() {
	historyDBFlag = ""
	historyRunFlag = ""
	historyLimitFlag = 50
	historyJSONFlag = false
	historyNoColorFlag = false
}

func TestHistoryCommand(t *testing.T) {
	resetHistoryFlags()
	path := filepath.Join(t.TempDir(), "fetches.db")

	store, err := history.Open(path)
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, store.Record(ctx, history.Entry{RunID: "run-a", Iteration: 0, URL: "http://cam/snap", Name: "out_0", Artifact: "out_0.png", Status: "complete", Bytes: 3}))
	require.NoError(t, store.Record(ctx, history.Entry{RunID: "run-b", Iteration: 0, URL: "http://cam/snap", Name: "out_0", Status: "abandoned", Reason: "missing Content-Length"}))
	require.NoError(t, store.Close())

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"history", "--db", path, "--run", "run-a", "--json"})
	require.NoError(t, rootCmd.Execute())

	var entries []history.Entry
	require.NoError(t, json.Unmarshal(out.Bytes(), &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "out_0.png", entries[0].Artifact)

	resetHistoryFlags()
	out.Reset()
	rootCmd.SetArgs([]string{"history", "--db", path, "--no-color"})
	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), "run run-a")
	assert.Contains(t, out.String(), "missing Content-Length")
}

func TestHistoryCommand_NoDatabase(t *testing.T) {
	resetHistoryFlags()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	rootCmd.SetArgs([]string{"history"})
	err = rootCmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitUsageError, exitCode(err))
}

func TestInitCommand(t *testing.T) {
	wd, err := os.Getwd()
	require.NoError(t, err)
	dir := t.TempDir()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	forceInit = false
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"init"})
	require.NoError(t, rootCmd.Execute())
	assert.FileExists(t, filepath.Join(dir, ".capfetch.yaml"))

	rootCmd.SetArgs([]string{"init"})
	err = rootCmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitUsageError, exitCode(err))
}
