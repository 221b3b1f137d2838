package recovery

import (
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ariesdb/pkg/log/record"
	"ariesdb/pkg/log/wal"
	"ariesdb/pkg/storage"
)

func newTestManager(t *testing.T) (*Manager, *wal.LogManager, storage.DiskSpaceManager, storage.BufferManager) {
	t.Helper()
	dir := t.TempDir()
	lm, err := wal.Open(filepath.Join(dir, "log"), filepath.Join(dir, "master.db"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = lm.Close() })

	disk := storage.NewMemDiskManager()
	buf := storage.NewMemBufferManager()
	m := New(lm, disk, buf, zerolog.Nop())
	return m, lm, disk, buf
}

func TestLogPageWriteAppliesChangeToBufferedPage(t *testing.T) {
	m, _, disk, buf := newTestManager(t)
	part := disk.AllocPart()
	page := disk.AllocPage(part)

	m.StartTransaction(1)
	_, err := m.LogPageWrite(1, part, page, 0, make([]byte, 5), []byte("hello"))
	require.NoError(t, err)

	p, err := buf.FetchPage(part, page)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), p.Read(0, 5))
}

func TestRollbackToSavepointUndoesOnlyLaterWrites(t *testing.T) {
	m, _, disk, buf := newTestManager(t)
	part := disk.AllocPart()
	page := disk.AllocPage(part)

	m.StartTransaction(1)
	_, err := m.LogPageWrite(1, part, page, 0, make([]byte, 5), []byte("AAAAA"))
	require.NoError(t, err)
	require.NoError(t, m.Savepoint(1, "sp1"))
	_, err = m.LogPageWrite(1, part, page, 0, []byte("AAAAA"), []byte("BBBBB"))
	require.NoError(t, err)

	p, err := buf.FetchPage(part, page)
	require.NoError(t, err)
	assert.Equal(t, []byte("BBBBB"), p.Read(0, 5))

	require.NoError(t, m.RollbackToSavepoint(1, "sp1"))

	p, err = buf.FetchPage(part, page)
	require.NoError(t, err)
	assert.Equal(t, []byte("AAAAA"), p.Read(0, 5), "rollback to savepoint should restore the pre-savepoint image")

	// The transaction is still alive after a savepoint rollback.
	require.NoError(t, m.Commit(1))
}

func TestAbortRollsBackAllWrites(t *testing.T) {
	m, _, disk, buf := newTestManager(t)
	part := disk.AllocPart()
	page := disk.AllocPage(part)

	m.StartTransaction(1)
	_, err := m.LogPageWrite(1, part, page, 0, make([]byte, 5), []byte("AAAAA"))
	require.NoError(t, err)
	_, err = m.LogPageWrite(1, part, page, 0, []byte("AAAAA"), []byte("BBBBB"))
	require.NoError(t, err)

	require.NoError(t, m.Abort(1))

	p, err := buf.FetchPage(part, page)
	require.NoError(t, err)
	assert.Equal(t, make([]byte, 5), p.Read(0, 5), "a full abort should undo every write back to before the first one")
}

func TestCommitWritesCommitAndEndRecords(t *testing.T) {
	m, lm, disk, _ := newTestManager(t)
	part := disk.AllocPart()
	page := disk.AllocPage(part)

	m.StartTransaction(1)
	_, err := m.LogPageWrite(1, part, page, 0, make([]byte, 2), []byte("hi"))
	require.NoError(t, err)
	require.NoError(t, m.Commit(1))
	require.NoError(t, lm.Flush())

	var kinds []record.Kind
	require.NoError(t, lm.ScanFrom(0, func(rec *record.Record) error {
		kinds = append(kinds, rec.Kind)
		return nil
	}))
	assert.Contains(t, kinds, record.CommitTxn)
	assert.Contains(t, kinds, record.EndTxn)
}
