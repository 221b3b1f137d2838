// Package storage defines the external contracts the recovery manager
// depends on but does not own: pages, a buffer manager, and a disk
// space manager (spec §6). These mirror a real buffer pool / disk
// manager split (grounded on the pack's disk.DiskManager and
// buffer.BufferPoolManager) but are intentionally minimal: recovery
// only needs to fetch a page, compare its pageLSN, write bytes at an
// offset, and allocate/free pages and partitions.
package storage

import "ariesdb/pkg/primitives"

const PageSize = 4096

// Page is a single in-memory page buffer. Every page begins with its
// pageLSN (the LSN of the last log record applied to it), which is how
// redo compares a record's LSN against the page's on-disk state before
// reapplying it.
type Page interface {
	Num() primitives.PageNum
	PageLSN() primitives.LSN
	SetPageLSN(primitives.LSN)
	// Read copies length bytes starting at offset.
	Read(offset, length int) []byte
	// Write overwrites len(data) bytes starting at offset with data and
	// bumps the page's LSN to lsn.
	Write(offset int, data []byte, lsn primitives.LSN)
}

// BufferManager fetches pages for the recovery manager (it has no
// pin/unpin operations). It is
// the narrow slice of a real buffer pool manager (FetchPage/Flush, in
// the pack's terms) that ARIES redo/undo needs.
type BufferManager interface {
	// FetchPage returns the page, creating it (zero-filled) if it does
	// not exist yet — redo must be able to materialize a page that was
	// allocated and written entirely within the crash window.
	FetchPage(part primitives.PartNum, page primitives.PageNum) (Page, error)
	FlushPage(part primitives.PartNum, page primitives.PageNum) error
	FlushAll() error
	// IterPageNums calls fn once per page currently resident in the
	// buffer pool with whether that page is dirty (has been written
	// since it was last flushed). Spec §6's redo-complete step uses this
	// to prune the dirty page table down to pages still genuinely dirty.
	IterPageNums(fn func(part primitives.PartNum, page primitives.PageNum, dirty bool))
}

// DiskSpaceManager tracks which partitions and pages exist. Partition 0
// is reserved for the log (primitives.LogPartNum) and is never passed
// here.
//
// Alloc{Part,Page} mint a brand-new id for forward processing. Redo
// needs the opposite operation: recreate the exact id a log record
// already names, which is why MarkPart/PageAllocated take the id as an
// argument instead of returning one — calling AllocPart again during
// redo would silently allocate a different partition than the one the
// record describes.
type DiskSpaceManager interface {
	AllocPart() primitives.PartNum
	FreePart(primitives.PartNum)
	AllocPage(part primitives.PartNum) primitives.PageNum
	FreePage(part primitives.PartNum, page primitives.PageNum)
	PartExists(primitives.PartNum) bool
	PageExists(part primitives.PartNum, page primitives.PageNum) bool

	// MarkPartAllocated idempotently makes part exist, for redoing an
	// AllocPart/UndoFreePart record at its original partition number.
	MarkPartAllocated(part primitives.PartNum)
	// MarkPageAllocated idempotently makes part/page exist, for redoing
	// an AllocPage/UndoFreePage record at its original page number.
	MarkPageAllocated(part primitives.PartNum, page primitives.PageNum)
}
