package cli

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"evolvedvault.dev/internal/store"
)

func TestVaultRoundTripThroughCLI(t *testing.T) {
	cli, memFS := newTestCLI(t)
	require.NoError(t, afero.WriteFile(memFS, "/home/me/notes.txt", []byte("remember the milk\n"), 0644))

	res := run(cli, "", "--input", "/home/me/notes.txt")
	require.Equal(t, ExitOK, res.code, res.stderr)
	assert.Empty(t, res.stderr)

	res = run(cli, "", "-o", "-")
	require.Equal(t, ExitOK, res.code, res.stderr)
	assert.Equal(t, "remember the milk\n", res.stdout)

	res = run(cli, "")
	require.Equal(t, ExitOK, res.code, res.stderr)
	assert.Contains(t, res.stdout, `1 item(s), latest "notes.txt" text/plain`)

	res = run(cli, "piped", "-i", "-", "-o", "/restore/copy.txt")
	require.Equal(t, ExitOK, res.code, res.stderr)
	data, err := afero.ReadFile(memFS, "/restore/copy.txt")
	require.NoError(t, err)
	assert.Equal(t, "piped", string(data))
}

func TestVaultExportFromEmptyVaultExitsOne(t *testing.T) {
	cli, _ := newTestCLI(t)

	res := run(cli, "", "--output", "-")

	assert.Equal(t, ExitFailure, res.code)
	assert.Equal(t, "Error: vault is empty\n", res.stderr)
	assert.Empty(t, res.stdout)
}

func TestListCommand(t *testing.T) {
	cli, _ := newTestCLI(t)

	res := run(cli, "", "list", "--format", "text")
	require.Equal(t, ExitOK, res.code, res.stderr)
	assert.Equal(t, "Vault is empty.\n", res.stdout)

	require.Equal(t, ExitOK, run(cli, "first item", "-i", "-").code)
	require.Equal(t, ExitOK, run(cli, "second item", "-i", "-").code)

	res = run(cli, "", "list", "--format", "json")
	require.Equal(t, ExitOK, res.code, res.stderr)
	var items []store.Item
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &items))
	require.Len(t, items, 2)
	assert.Equal(t, "stdin", items[0].Name)
	assert.Equal(t, int64(len("second item")), items[0].Size)

	res = run(cli, "", "list", "--format", "text", "--limit", "1")
	require.Equal(t, ExitOK, res.code, res.stderr)
	lines := strings.Split(strings.TrimSpace(res.stdout), "\n")
	require.Len(t, lines, 2, "header plus one item")
	assert.True(t, strings.HasPrefix(lines[0], "ID"))
	assert.Contains(t, lines[1], "11 B")
}

func TestHistoryCommand(t *testing.T) {
	cli, _ := newTestCLI(t, WithClock(func() time.Time { return time.Now().Add(time.Minute) }))

	require.Equal(t, ExitOK, run(cli, "data", "-i", "-").code)
	require.Equal(t, ExitFailure, run(cli, "", "-i", "/missing").code)

	res := run(cli, "", "history", "--format", "json")
	require.Equal(t, ExitOK, res.code, res.stderr)

	var report historyReport
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &report))
	assert.Equal(t, store.RunSummary{Total: 2, Succeeded: 1, Failed: 1}, report.Summary)
	require.Len(t, report.Runs, 2)
	assert.Equal(t, store.RunFailed, report.Runs[0].Status)
	assert.Contains(t, report.Runs[0].Error, "/missing")
	assert.NotEmpty(t, report.Runs[0].Invocation)

	res = run(cli, "", "history", "--status", "succeeded", "--since", "1 hour ago", "--format", "text")
	require.Equal(t, ExitOK, res.code, res.stderr)
	assert.Contains(t, res.stdout, "STATUS")
	assert.Contains(t, res.stdout, "1 run(s): 1 succeeded, 0 failed, 0 running")
	assert.NotContains(t, res.stdout, "\x1b[", "explicit text output is never colored")
}

func TestHistoryWithJournalDisabled(t *testing.T) {
	cli, memFS := newTestCLI(t)
	require.NoError(t, afero.WriteFile(memFS, "/quiet.yaml", []byte("journal: false\n"), 0644))

	require.Equal(t, ExitOK, run(cli, "data", "--config", "/quiet.yaml", "-i", "-").code)

	res := run(cli, "", "history", "--format", "text")
	require.Equal(t, ExitOK, res.code, res.stderr)
	assert.Equal(t, "No runs recorded.\n", res.stdout)
}

func TestSubcommandUsageErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{name: "bad status", args: []string{"history", "--status", "exploded"}},
		{name: "unreadable since", args: []string{"history", "--since", "garbage"}},
		{name: "since after until", args: []string{"history", "--since", "2026-02-01", "--until", "2026-01-01"}},
		{name: "bad format", args: []string{"list", "--format", "xml"}},
		{name: "negative limit", args: []string{"list", "--limit", "-1"}},
		{name: "unknown flag", args: []string{"history", "--bogus"}},
		{name: "positional argument", args: []string{"list", "extra"}},
		{name: "bad flag value", args: []string{"history", "--days", "many"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cli, _ := newTestCLI(t)

			res := run(cli, "", tt.args...)

			assert.Equal(t, ExitUsage, res.code, "stderr: %s", res.stderr)
			assert.True(t, strings.HasPrefix(res.stderr, "Error: "), "stderr: %q", res.stderr)
		})
	}
}

func TestBuildRunFilter(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	filter, err := buildRunFilter(historyOptions{since: "2026-03-01", days: 3, status: "failed", limit: 5}, now)
	require.NoError(t, err)
	require.NotNil(t, filter.Since)
	assert.True(t, filter.Since.Equal(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)))
	assert.Nil(t, filter.Until)
	assert.Equal(t, store.RunFailed, filter.Status)
	assert.Equal(t, 5, filter.Limit)
	assert.Equal(t, 3, filter.Days)
}
