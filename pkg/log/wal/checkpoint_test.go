package wal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ariesdb/pkg/log/record"
	"ariesdb/pkg/primitives"
	"ariesdb/pkg/transaction"
)

func TestTakeCheckpointWritesBeginAndEndRecordsAndRewritesMaster(t *testing.T) {
	lm := openTestLog(t)

	txnTable := map[int64]record.TxnTableSnapshotEntry{
		1: {Status: transaction.Running, LastLSN: 10},
	}
	dpt := map[primitives.PageID]primitives.LSN{
		{Part: 1, Page: 1}: 5,
	}

	beginLSN, endLSN, err := lm.TakeCheckpoint(txnTable, dpt)
	require.NoError(t, err)
	assert.Less(t, beginLSN, endLSN)

	begin, err := lm.FetchLogRecord(beginLSN)
	require.NoError(t, err)
	assert.Equal(t, record.BeginCheckpoint, begin.Kind)

	end, err := lm.FetchLogRecord(endLSN)
	require.NoError(t, err)
	assert.Equal(t, record.EndCheckpoint, end.Kind)
	assert.Equal(t, txnTable, end.TxnTable)
	assert.Equal(t, dpt, end.DPT)

	master, err := lm.ReadMasterRecord()
	require.NoError(t, err)
	assert.Equal(t, beginLSN, master)
}

func TestSplitSnapshotChunksOversizedSnapshots(t *testing.T) {
	txnTable := make(map[int64]record.TxnTableSnapshotEntry, maxSnapshotEntriesPerRecord+10)
	for i := 0; i < maxSnapshotEntriesPerRecord+10; i++ {
		txnTable[int64(i)] = record.TxnTableSnapshotEntry{Status: transaction.Running, LastLSN: primitives.LSN(i)}
	}

	chunks := splitSnapshot(txnTable, nil)
	assert.Greater(t, len(chunks), 1)

	total := 0
	for _, c := range chunks {
		total += len(c.txnTable) + len(c.dpt)
		assert.True(t, fitsInOneRecord(c.txnTable, c.dpt))
	}
	assert.Equal(t, len(txnTable), total)
}

func TestSplitSnapshotKeepsSingleChunkWhenSmall(t *testing.T) {
	txnTable := map[int64]record.TxnTableSnapshotEntry{1: {Status: transaction.Running, LastLSN: 1}}
	chunks := splitSnapshot(txnTable, nil)
	require.Len(t, chunks, 1)
	assert.Equal(t, txnTable, chunks[0].txnTable)
}
