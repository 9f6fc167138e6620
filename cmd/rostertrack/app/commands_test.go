package app

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rostertrack/rostertrack/internal/export"
	"github.com/rostertrack/rostertrack/internal/status"
	pkgsync "github.com/rostertrack/rostertrack/internal/sync"
	"github.com/rostertrack/rostertrack/internal/sync/coordinator"
)

var (
	rootOnce sync.Once
	root     *cobra.Command
)

// execute runs the CLI with args and returns what it printed on stdout.
// The command tree is global, so callers must not run in parallel.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	rootOnce.Do(func() { root = NewRootCmd() })

	var out bytes.Buffer
	root.SetArgs(args)
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetIn(strings.NewReader(""))
	err := root.Execute()
	return out.String(), err
}

func TestCLI_TrackSyncExportUntrack(t *testing.T) {
	var round atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "100", r.URL.Query().Get("id"))
		w.Header().Set("Content-Type", "application/json")
		if round.Load() == 0 {
			fmt.Fprint(w, `{"participants":[{"playerId":"a","name":"Alice"},{"playerId":"b","name":"Bob"}]}`)
			return
		}
		fmt.Fprint(w, `{"participants":[{"playerId":"b","name":"Bob"},{"playerId":"c","name":"Carol"}]}`)
	}))
	t.Cleanup(server.Close)

	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(fmt.Sprintf(`source:
  endpoint: %s
  maxRetries: 1
storage:
  type: sqlite
  sqlite:
    path: %s
`, server.URL, filepath.Join(dir, "state.db"))), 0600))

	out, err := execute(t, "track", "100", "--name", "Spring Open", "--config", configPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Tracking tournament 100")

	out, err = execute(t, "sync", "--config", configPath, "--tournament", "100")
	require.NoError(t, err)
	assert.Contains(t, out, "TOURNAMENT")
	assert.Contains(t, out, "ok")

	round.Store(1)
	_, err = execute(t, "sync", "--config", configPath)
	require.NoError(t, err)

	out, err = execute(t, "changes", "100", "--config", configPath, "-o", "json")
	require.NoError(t, err)
	var changes []*status.ChangeEvent
	require.NoError(t, json.Unmarshal([]byte(out), &changes))
	require.Len(t, changes, 2)
	assert.Equal(t, "a", changes[0].ParticipantID)
	assert.Equal(t, status.ChangeLeft, changes[0].ChangeType)
	assert.Equal(t, "c", changes[1].ParticipantID)
	assert.Equal(t, status.ChangeJoined, changes[1].ChangeType)

	out, err = execute(t, "participants", "100", "--config", configPath, "--status", "left")
	require.NoError(t, err)
	assert.Contains(t, out, "Alice")
	assert.NotContains(t, out, "Carol")

	out, err = execute(t, "export", "100", "--config", configPath, "--output", "-")
	require.NoError(t, err)
	parsed, err := export.ParseCSV(strings.NewReader(out))
	require.NoError(t, err)
	assert.Len(t, parsed, 3)

	exportPath := filepath.Join(dir, "out.csv")
	_, err = execute(t, "export", "100", "--config", configPath, "--output", exportPath)
	require.NoError(t, err)
	data, err := os.ReadFile(exportPath)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "ID;Name;Status;Joined;Left"))

	out, err = execute(t, "list", "--config", configPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Spring Open")

	_, err = execute(t, "untrack", "100", "--config", configPath, "--yes")
	require.NoError(t, err)

	out, err = execute(t, "list", "--config", configPath, "-o", "json")
	require.NoError(t, err)
	assert.NotContains(t, out, `"tournamentId": "100"`)

	_, err = execute(t, "changes", "100", "--config", configPath, "-o", "json")
	require.Error(t, err)
}

func TestCLI_TrackRejectsUnaddressableID(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("storage:\n  type: memory\n"), 0600))

	_, err := execute(t, "track", "12/34", "--config", configPath)
	require.ErrorIs(t, err, pkgsync.ErrInvalidTournamentID)
}

func TestCLI_VersionJSON(t *testing.T) {
	out, err := execute(t, "version", "--format", "json")
	require.NoError(t, err)

	var info map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.NotEmpty(t, info["version"])
	assert.NotEmpty(t, info["go_version"])
}

func TestConfirm(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		want  bool
	}{
		{name: "yes", input: "yes\n", want: true},
		{name: "short yes", input: "y\n", want: true},
		{name: "upper case", input: "YES\n", want: true},
		{name: "no newline", input: "y", want: true},
		{name: "no", input: "no\n", want: false},
		{name: "empty", input: "", want: false},
		{name: "other", input: "maybe\n", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var out bytes.Buffer
			got := confirm(strings.NewReader(tt.input), &out, "Continue?")
			assert.Equal(t, tt.want, got)
			assert.Equal(t, "Continue? (yes/no): ", out.String())
		})
	}
}

func TestOutputFormat(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		value   string
		want    string
		wantErr bool
	}{
		{name: "default", value: "", want: formatTable},
		{name: "json", value: "json", want: formatJSON},
		{name: "yaml", value: "yaml", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cmd := &cobra.Command{}
			addFormatFlag(cmd)
			if tt.value != "" {
				require.NoError(t, cmd.Flags().Set("format", tt.value))
			}

			got, err := outputFormat(cmd)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPrintBatch(t *testing.T) {
	t.Parallel()

	batch := &coordinator.BatchResult{
		Results: []*pkgsync.Result{{TournamentID: "1", Joined: 2, Left: 1, ParticipantCount: 5}},
		Failures: []coordinator.Failure{
			{TournamentID: "2", Reason: pkgsync.ConditionReasonFetchFailed, Message: "upstream down"},
		},
	}

	var table bytes.Buffer
	require.NoError(t, printBatch(&table, formatTable, batch))
	lines := strings.Split(strings.TrimSpace(table.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, []string{"1", "ok", "2", "1", "5"}, strings.Fields(lines[1]))
	assert.Contains(t, lines[2], "FetchFailed")
	assert.Contains(t, lines[2], "upstream down")

	var js bytes.Buffer
	require.NoError(t, printBatch(&js, formatJSON, batch))
	var decoded coordinator.BatchResult
	require.NoError(t, json.Unmarshal(js.Bytes(), &decoded))
	assert.Len(t, decoded.Results, 1)
	assert.Len(t, decoded.Failures, 1)

	require.Error(t, printBatch(&js, formatJSON, nil))
}

func TestFormatTime(t *testing.T) {
	t.Parallel()

	at := time.Date(2024, 3, 1, 12, 30, 0, 0, time.FixedZone("CET", 3600))
	assert.Equal(t, "2024-03-01 11:30:00", formatTime(&at))
	assert.Empty(t, formatTime(nil))
	assert.Empty(t, formatTime(&time.Time{}))
}

func TestExportFileName(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "12345_participants.csv", exportFileName("12345"))
}
