package eval

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNoopRunLogDiscardsSilently(t *testing.T) {
	l, err := NewRunLog("none", "")
	require.NoError(t, err)
	require.NoError(t, l.Append(context.Background(), RunRecord{SystemName: "x"}))
	require.NoError(t, l.Close())
}

func TestJSONLRunLogAppendsOneLinePerRecord(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.jsonl")
	l, err := NewRunLog("jsonl", path)
	require.NoError(t, err)

	require.NoError(t, l.Append(context.Background(), RunRecord{SystemName: "sys1", DatasetName: "ds1"}))
	require.NoError(t, l.Append(context.Background(), RunRecord{SystemName: "sys2", DatasetName: "ds2"}))
	require.NoError(t, l.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	scanner := bufio.NewScanner(f)
	var lines int
	for scanner.Scan() {
		lines++
	}
	assert.Equal(t, 2, lines)
}

func TestSQLiteRunLogAppendsRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.db")
	l, err := NewRunLog("sqlite", path)
	require.NoError(t, err)
	defer l.Close()

	require.NoError(t, l.Append(context.Background(), RunRecord{
		SystemName: "sys1", DatasetName: "ds1",
		Metrics: map[string]map[int]float64{"precision": {5: 0.8}},
	}))

	sqliteLog := l.(*SQLiteRunLog)
	row := sqliteLog.db.QueryRow("SELECT COUNT(*) FROM run_log")
	var count int
	require.NoError(t, row.Scan(&count))
	assert.Equal(t, 1, count)
}

func TestUnknownRunLogBackendErrors(t *testing.T) {
	_, err := NewRunLog("carrier-pigeon", "")
	require.Error(t, err)
}
