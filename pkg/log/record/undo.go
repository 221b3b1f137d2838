package record

import (
	"fmt"

	"ariesdb/pkg/primitives"
)

// Undo produces the compensation log record that reverses rec. prevLSN
// is the undoing transaction's current last LSN (the new CLR's
// PrevLSN); the CLR's UndoNextLSN is set to rec.PrevLSN so that undo
// can skip the chain of records already compensated for once this CLR
// is itself encountered.
func Undo(rec *Record, prevLSN primitives.LSN) (*Record, error) {
	if !rec.IsUndoable() {
		return nil, fmt.Errorf("record kind %s is not undoable", rec.Kind)
	}

	clr := &Record{
		TxnID:       rec.TxnID,
		PrevLSN:     prevLSN,
		UndoNextLSN: rec.PrevLSN,
		PartNum:     rec.PartNum,
		PageNum:     rec.PageNum,
		Offset:      rec.Offset,
	}

	switch rec.Kind {
	case AllocPart:
		clr.Kind = UndoAllocPart
	case FreePart:
		clr.Kind = UndoFreePart
	case AllocPage:
		clr.Kind = UndoAllocPage
	case FreePage:
		clr.Kind = UndoFreePage
	case UpdatePage:
		clr.Kind = UndoUpdatePage
		clr.Before = rec.Before
	default:
		return nil, fmt.Errorf("record kind %s has no undo handler", rec.Kind)
	}

	return clr, nil
}
