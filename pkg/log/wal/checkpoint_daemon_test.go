package wal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ariesdb/pkg/log/record"
	"ariesdb/pkg/primitives"
)

type fakeSnapshotter struct{}

func (fakeSnapshotter) CheckpointSnapshot() (map[int64]record.TxnTableSnapshotEntry, map[primitives.PageID]primitives.LSN) {
	return map[int64]record.TxnTableSnapshotEntry{}, map[primitives.PageID]primitives.LSN{}
}

func TestCheckpointDaemonManualTriggerRunsCheckpointOnce(t *testing.T) {
	lm := openTestLog(t)
	cfg := DefaultCheckpointConfig()
	cfg.Enabled = false
	daemon := NewCheckpointDaemon(lm, fakeSnapshotter{}, cfg)

	lsn, err := daemon.TriggerManualCheckpoint()
	require.NoError(t, err)

	master, err := lm.ReadMasterRecord()
	require.NoError(t, err)
	assert.LessOrEqual(t, master, lsn, "master record should point at or before the checkpoint's end-checkpoint LSN")

	stats := daemon.GetStats()
	assert.Equal(t, int64(1), stats.TotalCheckpoints)
	assert.Equal(t, int64(1), stats.ManualTriggers)
}

func TestCheckpointDaemonDisabledStartIsNoop(t *testing.T) {
	lm := openTestLog(t)
	cfg := DefaultCheckpointConfig()
	cfg.Enabled = false
	daemon := NewCheckpointDaemon(lm, fakeSnapshotter{}, cfg)

	require.NoError(t, daemon.Start())
	assert.False(t, daemon.IsRunning())
}
