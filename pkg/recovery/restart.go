package recovery

import (
	"fmt"
	"time"

	"ariesdb/pkg/log/record"
	"ariesdb/pkg/primitives"
	"ariesdb/pkg/transaction"
)

// Restart runs the full three-phase ARIES recovery procedure: analysis
// rebuilds the transaction and dirty page tables from the log,  redo
// brings the database back to the state it was in at the moment of the
// crash (including the effects of transactions that had not yet
// committed), and undo rolls back every transaction that was not
// committed, leaving the database as if those transactions had never
// run. Call once at startup before accepting new transactions.
func (m *Manager) Restart() error {
	start := time.Now()
	defer func() { restartDurationSeconds.Observe(time.Since(start).Seconds()) }()

	m.log.Info().Msg("starting restart recovery")

	if err := m.analysisPhase(); err != nil {
		return fmt.Errorf("analysis phase: %w", err)
	}
	if err := m.redoPhase(); err != nil {
		return fmt.Errorf("redo phase: %w", err)
	}
	if err := m.undoPhase(); err != nil {
		return fmt.Errorf("undo phase: %w", err)
	}
	if err := m.Checkpoint(); err != nil {
		return fmt.Errorf("post-restart checkpoint: %w", err)
	}

	m.log.Info().
		Int("scanned", m.stats.LogRecordsScanned).
		Int("redone", m.stats.RedoOperations).
		Int("undone", m.stats.UndoOperations).
		Msg("restart recovery complete")
	return nil
}

// analysisPhase scans the log from the last checkpoint's
// BeginCheckpoint LSN (or the start of the log, if there has never
// been a checkpoint) forward, rebuilding the transaction table and the
// dirty page table as of the moment of the crash.
func (m *Manager) analysisPhase() error {
	m.mu.Lock()
	m.txnTable = make(map[int64]*txnEntry)
	m.dpt = make(map[primitives.PageID]primitives.LSN)
	ended := make(map[int64]bool)
	m.mu.Unlock()

	startLSN, err := m.lm.ReadMasterRecord()
	if err != nil {
		return fmt.Errorf("read master record: %w", err)
	}

	err = m.lm.ScanFrom(startLSN, func(rec *record.Record) error {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.stats.LogRecordsScanned++
		return m.applyAnalysisRecord(rec, ended)
	})
	if err != nil {
		return fmt.Errorf("scan log: %w", err)
	}

	m.mu.Lock()
	m.stats.TransactionsRecovered = len(m.txnTable)
	m.stats.DirtyPagesFound = len(m.dpt)
	for _, e := range m.txnTable {
		if e.status != transaction.Complete {
			m.stats.TransactionsUndone++
		}
	}
	activeTransactionsGauge.Set(float64(len(m.txnTable)))
	dirtyPagesGauge.Set(float64(len(m.dpt)))
	m.mu.Unlock()

	return nil
}

// applyAnalysisRecord folds one record into the in-progress
// transaction/dirty-page tables. ended accumulates every transaction id
// analysis has seen an EndTxn record for, so a later EndCheckpoint
// snapshot entry for that same id (captured before the transaction
// actually ended, since CheckpointSnapshot and the log manager's
// TakeCheckpoint are two separate, non-atomic steps) cannot resurrect
// an already-completed transaction. Caller holds m.mu.
func (m *Manager) applyAnalysisRecord(rec *record.Record, ended map[int64]bool) error {
	switch rec.Kind {
	case record.BeginCheckpoint:
		return nil

	case record.EndCheckpoint:
		for txn, snap := range rec.TxnTable {
			if ended[txn] {
				continue
			}
			e, ok := m.txnTable[txn]
			if !ok {
				e = &txnEntry{status: transaction.Running, firstLSN: primitives.NoLSN, lastLSN: primitives.NoLSN, savepoints: make(map[string]primitives.LSN)}
				m.txnTable[txn] = e
			}
			if e.lastLSN == primitives.NoLSN || snap.LastLSN > e.lastLSN {
				e.lastLSN = snap.LastLSN
			}
			snapStatus := snap.Status
			if snapStatus == transaction.Aborting {
				snapStatus = transaction.RecoveryAborting
			}
			if snapStatus.AtLeast(e.status) {
				e.status = snapStatus
			}
		}
		for id, lsn := range rec.DPT {
			if existing, ok := m.dpt[id]; !ok || lsn < existing {
				m.dpt[id] = lsn
			}
		}
		return nil

	case record.CommitTxn:
		e := m.analysisEntry(rec.TxnID)
		e.status = transaction.Committing
		e.lastLSN = rec.LSN
		return nil

	case record.AbortTxn:
		e := m.analysisEntry(rec.TxnID)
		e.status = transaction.RecoveryAborting
		e.lastLSN = rec.LSN
		return nil

	case record.EndTxn:
		delete(m.txnTable, rec.TxnID)
		ended[rec.TxnID] = true
		return nil

	case record.FreePage, record.UndoAllocPage:
		e := m.analysisEntry(rec.TxnID)
		e.lastLSN = rec.LSN
		delete(m.dpt, primitives.PageID{Part: rec.PartNum, Page: rec.PageNum})
		return nil

	default:
		e := m.analysisEntry(rec.TxnID)
		e.lastLSN = rec.LSN
		if rec.Kind.TouchesPage() {
			id := primitives.PageID{Part: rec.PartNum, Page: rec.PageNum}
			if _, ok := m.dpt[id]; !ok {
				m.dpt[id] = rec.LSN
			}
		}
		return nil
	}
}

func (m *Manager) analysisEntry(txn int64) *txnEntry {
	e, ok := m.txnTable[txn]
	if !ok {
		e = &txnEntry{status: transaction.Running, firstLSN: primitives.NoLSN, lastLSN: primitives.NoLSN, savepoints: make(map[string]primitives.LSN)}
		m.txnTable[txn] = e
	}
	return e
}

// redoPhase replays every redoable record from the earliest recLSN in
// the dirty page table forward, relying on record.Redo's own pageLSN
// comparison (and the disk space manager's existence checks for
// partition/page records) to make replaying the whole tail of the log
// idempotent. Once the scan completes, it sets redoComplete and prunes
// the dirty page table down to pages the buffer manager still reports
// dirty.
func (m *Manager) redoPhase() error {
	m.mu.Lock()
	minLSN := primitives.NoLSN
	for _, lsn := range m.dpt {
		if lsn < minLSN {
			minLSN = lsn
		}
	}
	empty := len(m.dpt) == 0
	m.mu.Unlock()

	if empty {
		m.log.Info().Msg("no dirty pages recorded, skipping redo")
	} else {
		err := m.lm.ScanFrom(minLSN, func(rec *record.Record) error {
			if !rec.IsRedoable() {
				return nil
			}

			if rec.Kind.TouchesPage() {
				m.mu.Lock()
				firstLSN, dirty := m.dpt[primitives.PageID{Part: rec.PartNum, Page: rec.PageNum}]
				m.mu.Unlock()
				if !dirty || rec.LSN < firstLSN {
					return nil
				}
			}

			if err := record.Redo(rec, m.disk, m.buf); err != nil {
				return fmt.Errorf("redo LSN %d: %w", rec.LSN, err)
			}
			redoOpsTotal.Inc()
			m.mu.Lock()
			m.stats.RedoOperations++
			m.mu.Unlock()
			return nil
		})
		if err != nil {
			return err
		}
	}

	m.mu.Lock()
	m.redoComplete = true
	dirty := make(map[primitives.PageID]bool)
	m.buf.IterPageNums(func(part primitives.PartNum, page primitives.PageNum, isDirty bool) {
		if isDirty {
			dirty[primitives.PageID{Part: part, Page: page}] = true
		}
	})
	for id := range m.dpt {
		if !dirty[id] {
			delete(m.dpt, id)
		}
	}
	dirtyPagesGauge.Set(float64(len(m.dpt)))
	m.mu.Unlock()
	return nil
}

// undoPhase rolls back every transaction analysis found still
// in-flight at the moment of the crash — whether it had never reached
// a decision (status Running) or had already logged its abort decision
// (status RecoveryAborting, promoted uniformly from Aborting the
// instant restart learns about it, per the transaction status design)
// — back to the start of its chain.
func (m *Manager) undoPhase() error {
	m.mu.Lock()
	var losers []int64
	for txn, e := range m.txnTable {
		if e.status == transaction.Running || e.status == transaction.Aborting || e.status == transaction.RecoveryAborting {
			losers = append(losers, txn)
		}
	}
	m.mu.Unlock()

	if len(losers) == 0 {
		m.log.Info().Msg("no loser transactions, skipping undo")
		return nil
	}
	m.log.Info().Int("count", len(losers)).Msg("undoing loser transactions")

	for _, txn := range losers {
		if err := m.rollbackToLSN(txn, primitives.NoLSN); err != nil {
			return fmt.Errorf("undo transaction %d: %w", txn, err)
		}
		m.mu.Lock()
		e := m.txnTable[txn]
		if e.status != transaction.RecoveryAborting {
			if _, err := m.append(&record.Record{Kind: record.AbortTxn, TxnID: txn, PrevLSN: e.lastLSN}); err != nil {
				m.mu.Unlock()
				return fmt.Errorf("log abort for transaction %d: %w", txn, err)
			}
		}
		if _, err := m.append(&record.Record{Kind: record.EndTxn, TxnID: txn, PrevLSN: e.lastLSN}); err != nil {
			m.mu.Unlock()
			return fmt.Errorf("log end for transaction %d: %w", txn, err)
		}
		delete(m.txnTable, txn)
		activeTransactionsGauge.Set(float64(len(m.txnTable)))
		m.mu.Unlock()
	}
	return nil
}
