package wal

import "ariesdb/pkg/primitives"

// SafeTruncationLSN computes the earliest LSN the log could be safely
// archived or truncated up to without losing anything a future restart
// might still need: the oldest recLSN across the dirty page table, or
// the oldest firstLSN among transactions still active, whichever is
// smaller. primitives.NoLSN (nothing constrains truncation yet) is
// returned when both inputs are empty.
//
// Adapted from the teacher's calculateTruncationPoint (pkg/log/wal's
// original truncate.go): same "never truncate before the oldest active
// transaction's FirstLSN, never truncate before the oldest dirty
// page's recLSN" safety rule, but surfaced as a pure computation rather
// than acting on it. This module's LSNs are literal byte offsets into
// the log file (see primitives.LSN), so physically truncating the file
// the way the teacher's performTruncation does (copy the tail into a
// new file, rename over the old one) would invalidate every LSN
// address still held elsewhere — a transaction's PrevLSN chain, a
// checkpoint's DPT snapshot, an in-flight rollback cursor — the moment
// the file's byte offsets shifted. A caller that wants to reclaim disk
// space must archive everything before the returned LSN to separate
// cold storage and leave the log file's addressing untouched.
func SafeTruncationLSN(dpt map[primitives.PageID]primitives.LSN, activeFirstLSNs []primitives.LSN) primitives.LSN {
	min := primitives.NoLSN
	for _, lsn := range dpt {
		if lsn < min {
			min = lsn
		}
	}
	for _, lsn := range activeFirstLSNs {
		if lsn < min {
			min = lsn
		}
	}
	return min
}
