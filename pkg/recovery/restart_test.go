package recovery

import (
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ariesdb/pkg/log/wal"
	"ariesdb/pkg/primitives"
	"ariesdb/pkg/storage"
)

// TestRestartRedoesCommittedAndUndoesLoserTransactions simulates a
// crash: one transaction commits, a second writes a page and is never
// committed or aborted before the process "dies" (a fresh recovery
// manager is built over the same log and disk, with an empty buffer
// pool standing in for lost in-memory pages). Restart must redo both
// writes (bringing the page back to its pre-crash state) and then
// undo the second transaction's uncommitted change.
func TestRestartRedoesCommittedAndUndoesLoserTransactions(t *testing.T) {
	dir := t.TempDir()
	lm, err := wal.Open(filepath.Join(dir, "log"), filepath.Join(dir, "master.db"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = lm.Close() })

	disk := storage.NewMemDiskManager()
	buf1 := storage.NewMemBufferManager()
	part := disk.AllocPart()
	page := disk.AllocPage(part)

	m1 := New(lm, disk, buf1, zerolog.Nop())

	m1.StartTransaction(1)
	_, err = m1.LogPageWrite(1, part, page, 0, make([]byte, 5), []byte("AAAAA"))
	require.NoError(t, err)
	require.NoError(t, m1.Commit(1))

	m1.StartTransaction(2)
	_, err = m1.LogPageWrite(2, part, page, 0, []byte("AAAAA"), []byte("BBBBB"))
	require.NoError(t, err)
	require.NoError(t, lm.Flush())
	// No Commit/Abort for txn 2: the "crash" happens here.

	// Restart: fresh buffer pool (in-memory pages are gone), same disk
	// structure and the same durable log.
	buf2 := storage.NewMemBufferManager()
	m2 := New(lm, disk, buf2, zerolog.Nop())
	require.NoError(t, m2.Restart())

	p, err := buf2.FetchPage(part, page)
	require.NoError(t, err)
	assert.Equal(t, []byte("AAAAA"), p.Read(0, 5), "loser transaction 2's write should be redone then undone, leaving transaction 1's committed value")

	stats := m2.Stats()
	assert.GreaterOrEqual(t, stats.RedoOperations, 1)
	assert.GreaterOrEqual(t, stats.UndoOperations, 1)
	assert.Equal(t, 1, stats.TransactionsUndone)

	m2.mu.Lock()
	_, stillThere := m2.txnTable[2]
	m2.mu.Unlock()
	assert.False(t, stillThere, "undone loser transaction should be retired from the transaction table")
}

// TestRestartWithCheckpointSkipsAnalyzingTruncatedPrefix verifies that
// a checkpoint's master record moves restart's analysis starting
// point forward, and that restart still recovers correctly using the
// checkpoint's transaction-table/dirty-page-table snapshot instead of
// rescanning from the very start of the log.
func TestRestartWithCheckpointSkipsAnalyzingTruncatedPrefix(t *testing.T) {
	dir := t.TempDir()
	lm, err := wal.Open(filepath.Join(dir, "log"), filepath.Join(dir, "master.db"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = lm.Close() })

	disk := storage.NewMemDiskManager()
	buf1 := storage.NewMemBufferManager()
	part := disk.AllocPart()
	page := disk.AllocPage(part)

	m1 := New(lm, disk, buf1, zerolog.Nop())
	m1.StartTransaction(1)
	_, err = m1.LogPageWrite(1, part, page, 0, make([]byte, 5), []byte("AAAAA"))
	require.NoError(t, err)
	require.NoError(t, m1.Commit(1))

	m1.StartTransaction(2)
	_, err = m1.LogPageWrite(2, part, page, 0, []byte("AAAAA"), []byte("CCCCC"))
	require.NoError(t, err)

	txnTable, dpt := m1.CheckpointSnapshot()
	_, _, err = lm.TakeCheckpoint(txnTable, dpt)
	require.NoError(t, err)

	master, err := lm.ReadMasterRecord()
	require.NoError(t, err)
	assert.Greater(t, master, primitives.LSN(0))

	buf2 := storage.NewMemBufferManager()
	m2 := New(lm, disk, buf2, zerolog.Nop())
	require.NoError(t, m2.Restart())

	p, err := buf2.FetchPage(part, page)
	require.NoError(t, err)
	assert.Equal(t, []byte("AAAAA"), p.Read(0, 5), "transaction 2's uncommitted write should be undone even when discovered via the checkpoint snapshot")
}
