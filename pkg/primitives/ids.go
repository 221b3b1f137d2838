// Package primitives holds the small value types shared across the log,
// WAL, and recovery packages: LSNs, page/partition numbers, and the
// sentinel values used throughout ARIES bookkeeping.
package primitives

// LSN is a log sequence number: the byte offset of a record within the
// log file, so it is also monotonically increasing with append order.
type LSN uint64

// NoLSN marks an absent optional LSN field (no previous record in a
// transaction's chain, no undoNextLSN, no checkpoint ever taken). It is
// the maximum LSN value rather than 0, since 0 is the legitimate offset
// of the very first record ever appended to the log.
const NoLSN LSN = ^LSN(0)

// PageNum identifies a page within a partition.
type PageNum int64

// PartNum identifies a partition. Partition 0 is the log partition and
// is never a valid target for alloc/free records (spec §4.G).
type PartNum int64

// LogPartNum is the reserved partition that holds the log itself.
const LogPartNum PartNum = 0

// PageID globally identifies a page across every partition; it is the
// key used by the dirty page table and by checkpoint snapshots.
type PageID struct {
	Part PartNum
	Page PageNum
}

// NoTxn marks the absence of a transaction id on a log record (master
// and checkpoint records carry no transaction).
const NoTxn int64 = -1
