package record

import (
	"ariesdb/pkg/primitives"
	"ariesdb/pkg/transaction"
)

// TxnTableSnapshotEntry is one transaction-table row captured inside an
// EndCheckpoint record.
type TxnTableSnapshotEntry struct {
	Status  transaction.Status
	LastLSN primitives.LSN
}

// Record is the single tagged-union representation of every entry that
// can appear in the log. Only the fields relevant to Kind are
// meaningful; the rest are left at their zero value.
type Record struct {
	Kind Kind
	LSN  primitives.LSN // assigned by the log manager on append

	TxnID   int64 // primitives.NoTxn for records with no owning transaction
	PrevLSN primitives.LSN // this transaction's previous record, or primitives.NoLSN

	// UndoNextLSN is set on CLRs: the LSN to resume undo at after this
	// compensation record, skipping the run of records it compensates for.
	UndoNextLSN primitives.LSN

	PartNum primitives.PartNum
	PageNum primitives.PageNum

	Offset int
	Before []byte
	After  []byte

	// EndCheckpoint snapshot payload.
	DPT      map[primitives.PageID]primitives.LSN
	TxnTable map[int64]TxnTableSnapshotEntry

	// Master record payload.
	LastCheckpointLSN primitives.LSN
}

// IsRedoable reports whether this record is ever replayed during redo.
func (r *Record) IsRedoable() bool { return r.Kind.IsRedoable() }

// IsUndoable reports whether this record can produce a CLR via Undo.
func (r *Record) IsUndoable() bool { return r.Kind.IsUndoable() }
