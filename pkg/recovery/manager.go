// Package recovery implements ARIES-style crash recovery (spec §4.G):
// forward-processing hooks that keep the write-ahead log, the dirty
// page table, and the transaction table consistent as operations run,
// plus a three-phase (analysis/redo/undo) restart procedure. Grounded
// on the teacher's pkg/recovery/recovery_manager.go skeleton, carried
// through to full ARIES semantics: compensation log records, recLSN-
// gated redo, and rollbackToLSN-based partial undo.
package recovery

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"ariesdb/pkg/log/record"
	"ariesdb/pkg/log/wal"
	"ariesdb/pkg/primitives"
	"ariesdb/pkg/storage"
	"ariesdb/pkg/transaction"
)

// txnEntry is the recovery manager's bookkeeping row for one
// transaction: its current status, its chain's endpoints, and any
// savepoints it has established.
type txnEntry struct {
	status     transaction.Status
	firstLSN   primitives.LSN
	lastLSN    primitives.LSN
	savepoints map[string]primitives.LSN
}

// Stats tracks recovery activity, mirroring the teacher's RecoveryStats.
type Stats struct {
	LogRecordsScanned    int
	RedoOperations       int
	UndoOperations       int
	TransactionsRecovered int
	TransactionsUndone   int
	DirtyPagesFound      int
}

// Manager is the recovery manager: the single point through which
// every page write, allocation, commit, and abort is logged, and the
// owner of the restart procedure run after a crash.
type Manager struct {
	mu sync.Mutex

	lm   *wal.LogManager
	disk storage.DiskSpaceManager
	buf  storage.BufferManager
	log  zerolog.Logger

	dpt      map[primitives.PageID]primitives.LSN
	txnTable map[int64]*txnEntry

	// redoComplete is set by redoPhase once it has replayed the log and
	// pruned the dirty page table. No method of Manager reads it, and
	// Manager has no disk-I/O hook that removes dirty page table entries.
	redoComplete bool

	stats Stats
}

// New constructs a recovery manager over an already-open log manager
// and storage layer. Call Restart once at startup before accepting any
// new transactions.
func New(lm *wal.LogManager, disk storage.DiskSpaceManager, buf storage.BufferManager, logger zerolog.Logger) *Manager {
	return &Manager{
		lm:       lm,
		disk:     disk,
		buf:      buf,
		log:      logger.With().Str("component", "recovery").Logger(),
		dpt:      make(map[primitives.PageID]primitives.LSN),
		txnTable: make(map[int64]*txnEntry),
	}
}

func (m *Manager) entry(txn int64) *txnEntry {
	e, ok := m.txnTable[txn]
	if !ok {
		e = &txnEntry{
			status:     transaction.Running,
			firstLSN:   primitives.NoLSN,
			lastLSN:    primitives.NoLSN,
			savepoints: make(map[string]primitives.LSN),
		}
		m.txnTable[txn] = e
		activeTransactionsGauge.Set(float64(len(m.txnTable)))
	}
	return e
}

func (m *Manager) append(rec *record.Record) (primitives.LSN, error) {
	lsn, err := m.lm.AppendToLog(rec)
	if err != nil {
		return 0, err
	}
	e := m.entry(rec.TxnID)
	if e.firstLSN == primitives.NoLSN {
		e.firstLSN = lsn
	}
	e.lastLSN = lsn
	return lsn, nil
}

func (m *Manager) markPageDirty(id primitives.PageID, lsn primitives.LSN) {
	if _, ok := m.dpt[id]; !ok {
		m.dpt[id] = lsn
		dirtyPagesGauge.Set(float64(len(m.dpt)))
	}
}

// StartTransaction registers txn as running. LogPageWrite and the
// alloc/free hooks accept a transaction that was never started and
// register it on its first record; Savepoint, RollbackToSavepoint,
// Commit, and Abort reject it.
func (m *Manager) StartTransaction(txn int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entry(txn)
}

// LogPageWrite records an UpdatePage record for a physical change to
// part/page at offset, applies it to the buffered page, and marks the
// page dirty if this is the first time it has been touched since the
// last checkpoint.
func (m *Manager) LogPageWrite(txn int64, part primitives.PartNum, page primitives.PageNum, offset int, before, after []byte) (primitives.LSN, error) {
	if len(before) != len(after) {
		return 0, fmt.Errorf("log page write: before/after length mismatch (%d != %d)", len(before), len(after))
	}
	if len(after) > storage.PageSize/2 {
		return 0, fmt.Errorf("log page write: write of %d bytes exceeds half a page", len(after))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.txnTable[txn]
	prevLSN := primitives.NoLSN
	if ok {
		prevLSN = e.lastLSN
	}

	lsn, err := m.append(&record.Record{
		Kind:    record.UpdatePage,
		TxnID:   txn,
		PrevLSN: prevLSN,
		PartNum: part,
		PageNum: page,
		Offset:  offset,
		Before:  before,
		After:   after,
	})
	if err != nil {
		return 0, fmt.Errorf("log page write: %w", err)
	}

	id := primitives.PageID{Part: part, Page: page}
	m.markPageDirty(id, lsn)

	p, err := m.buf.FetchPage(part, page)
	if err != nil {
		return 0, fmt.Errorf("fetch page for write: %w", err)
	}
	p.Write(offset, after, lsn)
	return lsn, nil
}

// logStructural is shared by the four alloc/free hooks: they all write
// a record carrying only a partition or page number. The disk space
// manager call is made by each hook itself: the alloc hooks before
// logging, the free hooks after.
func (m *Manager) logStructural(txn int64, kind record.Kind, part primitives.PartNum, page primitives.PageNum) (primitives.LSN, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.txnTable[txn]
	prevLSN := primitives.NoLSN
	if ok {
		prevLSN = e.lastLSN
	}

	lsn, err := m.append(&record.Record{
		Kind:    kind,
		TxnID:   txn,
		PrevLSN: prevLSN,
		PartNum: part,
		PageNum: page,
	})
	if err != nil {
		return 0, fmt.Errorf("log %s: %w", kind, err)
	}
	if kind.TouchesPage() {
		m.markPageDirty(primitives.PageID{Part: part, Page: page}, lsn)
	}
	return lsn, nil
}

// LogAllocPart logs and performs allocation of a new partition, owned
// by txn for undo purposes.
func (m *Manager) LogAllocPart(txn int64) (primitives.PartNum, primitives.LSN, error) {
	part := m.disk.AllocPart()
	lsn, err := m.logStructural(txn, record.AllocPart, part, 0)
	return part, lsn, err
}

func (m *Manager) LogFreePart(txn int64, part primitives.PartNum) (primitives.LSN, error) {
	lsn, err := m.logStructural(txn, record.FreePart, part, 0)
	if err != nil {
		return 0, err
	}
	m.disk.FreePart(part)
	return lsn, nil
}

func (m *Manager) LogAllocPage(txn int64, part primitives.PartNum) (primitives.PageNum, primitives.LSN, error) {
	page := m.disk.AllocPage(part)
	lsn, err := m.logStructural(txn, record.AllocPage, part, page)
	return page, lsn, err
}

func (m *Manager) LogFreePage(txn int64, part primitives.PartNum, page primitives.PageNum) (primitives.LSN, error) {
	lsn, err := m.logStructural(txn, record.FreePage, part, page)
	if err != nil {
		return 0, err
	}
	m.disk.FreePage(part, page)
	return lsn, nil
}

// Savepoint records txn's current position under name.
func (m *Manager) Savepoint(txn int64, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.txnTable[txn]
	if !ok {
		return fmt.Errorf("savepoint: no such transaction %d", txn)
	}
	e.savepoints[name] = e.lastLSN
	return nil
}

// ReleaseSavepoint forgets a previously established savepoint.
func (m *Manager) ReleaseSavepoint(txn int64, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.txnTable[txn]
	if !ok {
		return fmt.Errorf("release savepoint: no such transaction %d", txn)
	}
	delete(e.savepoints, name)
	return nil
}

// RollbackToSavepoint undoes every change txn made after name was
// established, without ending the transaction.
func (m *Manager) RollbackToSavepoint(txn int64, name string) error {
	m.mu.Lock()
	e, ok := m.txnTable[txn]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("rollback to savepoint: no such transaction %d", txn)
	}
	limit, ok := e.savepoints[name]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("rollback to savepoint: no savepoint %q", name)
	}
	return m.rollbackToLSN(txn, limit)
}

// Commit writes the CommitTxn/EndTxn pair, forces the log up to the
// commit record (the write-ahead rule: a transaction is durable only
// once its commit record is on stable storage), and retires the
// transaction from the table.
func (m *Manager) Commit(txn int64) error {
	m.mu.Lock()
	e, ok := m.txnTable[txn]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("commit: no such transaction %d", txn)
	}
	e.status = transaction.Committing
	commitLSN, err := m.append(&record.Record{Kind: record.CommitTxn, TxnID: txn, PrevLSN: e.lastLSN})
	m.mu.Unlock()
	if err != nil {
		return fmt.Errorf("log commit: %w", err)
	}
	if err := m.lm.FlushToLSN(commitLSN); err != nil {
		return fmt.Errorf("flush commit: %w", err)
	}

	m.mu.Lock()
	e.status = transaction.Complete
	_, err = m.append(&record.Record{Kind: record.EndTxn, TxnID: txn, PrevLSN: e.lastLSN})
	delete(m.txnTable, txn)
	activeTransactionsGauge.Set(float64(len(m.txnTable)))
	m.mu.Unlock()
	if err != nil {
		return fmt.Errorf("log end: %w", err)
	}
	return nil
}

// Abort rolls txn all the way back, writes AbortTxn/EndTxn, and
// retires it.
func (m *Manager) Abort(txn int64) error {
	m.mu.Lock()
	e, ok := m.txnTable[txn]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("abort: no such transaction %d", txn)
	}
	e.status = transaction.Aborting
	m.mu.Unlock()

	if err := m.rollbackToLSN(txn, primitives.NoLSN); err != nil {
		return fmt.Errorf("rollback on abort: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	e = m.txnTable[txn]
	_, err := m.append(&record.Record{Kind: record.AbortTxn, TxnID: txn, PrevLSN: e.lastLSN})
	if err != nil {
		return fmt.Errorf("log abort: %w", err)
	}
	_, err = m.append(&record.Record{Kind: record.EndTxn, TxnID: txn, PrevLSN: e.lastLSN})
	if err != nil {
		return fmt.Errorf("log end: %w", err)
	}
	delete(m.txnTable, txn)
	activeTransactionsGauge.Set(float64(len(m.txnTable)))
	return nil
}

// rollbackToLSN walks txn's chain backward from its current last LSN,
// producing a CLR for every undoable record, until the chain reaches
// limitLSN (or has no predecessor, when limitLSN is primitives.NoLSN —
// a full abort). Each CLR's UndoNextLSN lets a later pass (or a crash
// mid-rollback) skip the run of records it already compensated for.
func (m *Manager) rollbackToLSN(txn int64, limitLSN primitives.LSN) error {
	m.mu.Lock()
	e, ok := m.txnTable[txn]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("rollback: no such transaction %d", txn)
	}
	cursor := e.lastLSN
	m.mu.Unlock()

	// FetchLogRecord only reads records that have reached the log file.
	if cursor != primitives.NoLSN {
		if err := m.lm.FlushToLSN(cursor); err != nil {
			return fmt.Errorf("flush before rollback: %w", err)
		}
	}

	for cursor != primitives.NoLSN && (limitLSN == primitives.NoLSN || cursor > limitLSN) {
		rec, err := m.lm.FetchLogRecord(cursor)
		if err != nil {
			return fmt.Errorf("fetch record at LSN %d: %w", cursor, err)
		}

		var next primitives.LSN
		if rec.Kind.IsCLR() {
			next = rec.UndoNextLSN
		} else {
			next = rec.PrevLSN
			if rec.IsUndoable() {
				if err := m.writeAndApplyCLR(txn, rec); err != nil {
					return err
				}
				undoOpsTotal.Inc()
				m.stats.UndoOperations++
			}
		}
		cursor = next
	}
	return nil
}

func (m *Manager) writeAndApplyCLR(txn int64, rec *record.Record) error {
	m.mu.Lock()
	e := m.txnTable[txn]
	clr, err := record.Undo(rec, e.lastLSN)
	if err != nil {
		m.mu.Unlock()
		return fmt.Errorf("build CLR: %w", err)
	}
	clrLSN, err := m.append(clr)
	m.mu.Unlock()
	if err != nil {
		return fmt.Errorf("log CLR: %w", err)
	}
	clr.LSN = clrLSN

	if clr.Kind.TouchesPage() {
		m.mu.Lock()
		m.markPageDirty(primitives.PageID{Part: clr.PartNum, Page: clr.PageNum}, clrLSN)
		m.mu.Unlock()
	}
	if err := record.Redo(clr, m.disk, m.buf); err != nil {
		return fmt.Errorf("apply CLR: %w", err)
	}
	return nil
}

// Checkpoint takes a checkpoint of the current transaction/dirty-page
// tables and rewrites the master record to point at it, bounding how
// much log a future restart has to scan (spec §4.G). Restart calls this
// once at the end of the procedure; callers may also drive it
// periodically (see wal.CheckpointDaemon).
func (m *Manager) Checkpoint() error {
	txnTable, dpt := m.CheckpointSnapshot()
	_, _, err := m.lm.TakeCheckpoint(txnTable, dpt)
	if err != nil {
		return fmt.Errorf("checkpoint: %w", err)
	}
	return nil
}

// CheckpointSnapshot implements wal.Snapshotter.
func (m *Manager) CheckpointSnapshot() (map[int64]record.TxnTableSnapshotEntry, map[primitives.PageID]primitives.LSN) {
	m.mu.Lock()
	defer m.mu.Unlock()

	txnTable := make(map[int64]record.TxnTableSnapshotEntry, len(m.txnTable))
	for txn, e := range m.txnTable {
		txnTable[txn] = record.TxnTableSnapshotEntry{Status: e.status, LastLSN: e.lastLSN}
	}
	dpt := make(map[primitives.PageID]primitives.LSN, len(m.dpt))
	for id, lsn := range m.dpt {
		dpt[id] = lsn
	}
	return txnTable, dpt
}

// OldestActiveFirstLSN reports the smallest firstLSN among transactions
// still live in the transaction table, for feeding wal.SafeTruncationLSN's
// active-transaction floor. The second return value is false when no
// transaction is currently active.
func (m *Manager) OldestActiveFirstLSN() (primitives.LSN, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	found := false
	min := primitives.NoLSN
	for _, e := range m.txnTable {
		if e.firstLSN != primitives.NoLSN && e.firstLSN < min {
			min = e.firstLSN
			found = true
		}
	}
	return min, found
}

// Stats returns a snapshot of recovery activity counters.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}
