// Package record defines the tagged log record model shared by the WAL
// and the recovery manager: a fixed binary wire format grounded on the
// teacher's checkpoint framing (length-prefixed, encoding/binary over a
// bytes.Buffer), generalized from tuple-level records to the physical
// page/partition-level records ARIES needs (spec §4.E).
package record

// Kind discriminates the log record variants of spec §4.E.
type Kind uint8

const (
	Master Kind = iota
	BeginCheckpoint
	EndCheckpoint
	CommitTxn
	AbortTxn
	EndTxn
	AllocPart
	FreePart
	UndoAllocPart
	UndoFreePart
	AllocPage
	FreePage
	UndoAllocPage
	UndoFreePage
	UpdatePage
	UndoUpdatePage
)

func (k Kind) String() string {
	switch k {
	case Master:
		return "Master"
	case BeginCheckpoint:
		return "BeginCheckpoint"
	case EndCheckpoint:
		return "EndCheckpoint"
	case CommitTxn:
		return "CommitTxn"
	case AbortTxn:
		return "AbortTxn"
	case EndTxn:
		return "EndTxn"
	case AllocPart:
		return "AllocPart"
	case FreePart:
		return "FreePart"
	case UndoAllocPart:
		return "UndoAllocPart"
	case UndoFreePart:
		return "UndoFreePart"
	case AllocPage:
		return "AllocPage"
	case FreePage:
		return "FreePage"
	case UndoAllocPage:
		return "UndoAllocPage"
	case UndoFreePage:
		return "UndoFreePage"
	case UpdatePage:
		return "UpdatePage"
	case UndoUpdatePage:
		return "UndoUpdatePage"
	default:
		return "UNKNOWN"
	}
}

// IsCLR reports whether kind is a compensation log record: the redo-only
// variants written while undoing another record.
func (k Kind) IsCLR() bool {
	switch k {
	case UndoAllocPart, UndoFreePart, UndoAllocPage, UndoFreePage, UndoUpdatePage:
		return true
	default:
		return false
	}
}

// kindSpec records, per kind, whether the record can appear as the
// target of Redo/Undo dispatch.
type kindSpec struct {
	redoable  bool
	undoable  bool
}

var kindSpecs = map[Kind]kindSpec{
	Master:          {redoable: false, undoable: false},
	BeginCheckpoint: {redoable: false, undoable: false},
	EndCheckpoint:   {redoable: false, undoable: false},
	CommitTxn:       {redoable: false, undoable: false},
	AbortTxn:        {redoable: false, undoable: false},
	EndTxn:          {redoable: false, undoable: false},
	AllocPart:       {redoable: true, undoable: true},
	FreePart:        {redoable: true, undoable: true},
	UndoAllocPart:   {redoable: true, undoable: false},
	UndoFreePart:    {redoable: true, undoable: false},
	AllocPage:       {redoable: true, undoable: true},
	FreePage:        {redoable: true, undoable: true},
	UndoAllocPage:   {redoable: true, undoable: false},
	UndoFreePage:    {redoable: true, undoable: false},
	UpdatePage:      {redoable: true, undoable: true},
	UndoUpdatePage:  {redoable: true, undoable: false},
}

// IsRedoable reports whether a record of this kind is ever replayed
// during the redo phase.
func (k Kind) IsRedoable() bool { return kindSpecs[k].redoable }

// IsUndoable reports whether a record of this kind has a logical
// inverse that Undo can produce.
func (k Kind) IsUndoable() bool { return kindSpecs[k].undoable }

// TouchesPage reports whether the record kind carries a PageNum that
// page-granularity redo/undo must dispatch on.
func (k Kind) TouchesPage() bool {
	switch k {
	case AllocPage, FreePage, UndoAllocPage, UndoFreePage, UpdatePage, UndoUpdatePage:
		return true
	default:
		return false
	}
}
