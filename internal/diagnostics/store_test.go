package diagnostics

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRecordAndList(t *testing.T) {
	dir := t.TempDir()
	store, err := Open(filepath.Join(dir, "diagnostics.db"))
	require.NoError(t, err)
	defer store.Close()

	id, err := store.Record(RunSummary{
		Scenario:     "action-delay",
		StartedAt:    time.Unix(0, 0),
		FinishedAt:   time.Unix(0, int64(100*time.Millisecond)),
		ReactionsRun: 3,
	})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	runs, err := store.List()
	require.NoError(t, err)
	require.Len(t, runs, 1)
	require.Equal(t, "action-delay", runs[0].Scenario)
	require.Equal(t, id, runs[0].RunID)
}
