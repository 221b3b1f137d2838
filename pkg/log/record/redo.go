package record

import (
	"fmt"

	"ariesdb/pkg/storage"
)

// Redo re-executes rec's physical action against disk and buf. It is
// safe to call unconditionally for any redoable record: page-touching
// records compare the record's LSN against the page's current pageLSN
// and skip the write if the page already reflects this (or a later)
// change, which is what makes replaying the whole log from the start
// of the redo scan idempotent. Partition/page alloc-free records have
// no page object to gate on and are simply re-applied.
func Redo(rec *Record, disk storage.DiskSpaceManager, buf storage.BufferManager) error {
	if !rec.IsRedoable() {
		return fmt.Errorf("record kind %s is not redoable", rec.Kind)
	}

	switch rec.Kind {
	case AllocPart:
		if !disk.PartExists(rec.PartNum) {
			disk.MarkPartAllocated(rec.PartNum)
		}
		return nil
	case FreePart, UndoAllocPart:
		disk.FreePart(rec.PartNum)
		return nil
	case UndoFreePart:
		disk.MarkPartAllocated(rec.PartNum)
		return nil
	case AllocPage:
		if !disk.PageExists(rec.PartNum, rec.PageNum) {
			disk.MarkPageAllocated(rec.PartNum, rec.PageNum)
		}
		return nil
	case FreePage, UndoAllocPage:
		disk.FreePage(rec.PartNum, rec.PageNum)
		return nil
	case UndoFreePage:
		disk.MarkPageAllocated(rec.PartNum, rec.PageNum)
		return nil
	case UpdatePage:
		return redoPageWrite(rec, buf, rec.After)
	case UndoUpdatePage:
		return redoPageWrite(rec, buf, rec.Before)
	default:
		return fmt.Errorf("record kind %s has no redo handler", rec.Kind)
	}
}

func redoPageWrite(rec *Record, buf storage.BufferManager, image []byte) error {
	page, err := buf.FetchPage(rec.PartNum, rec.PageNum)
	if err != nil {
		return fmt.Errorf("fetch page %d/%d: %w", rec.PartNum, rec.PageNum, err)
	}
	// A pageLSN of 0 is also what a never-written page carries, so a
	// record at LSN 0 is reapplied (rewriting the same image is harmless).
	if page.PageLSN() > rec.LSN || (page.PageLSN() == rec.LSN && rec.LSN != 0) {
		return nil
	}
	page.Write(rec.Offset, image, rec.LSN)
	return nil
}
