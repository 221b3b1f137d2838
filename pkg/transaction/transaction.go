// Package transaction holds the shared transaction identifier and status
// machinery that both the lock manager and the recovery manager consume
// (spec §6, "Transaction context (consumed)").
package transaction

import "sync"

// Context is the minimal contract the lock manager and recovery manager
// require of a transaction. A real query engine's transaction object
// would implement this alongside a great deal more.
type Context interface {
	// TransNum is the identifier shared across the lock manager and the
	// recovery manager's log records.
	TransNum() int64

	// Status returns the current lifecycle state.
	Status() Status
	// SetStatus advances the lifecycle state. Callers are responsible for
	// respecting the §3 ordering; SetStatus itself does not validate it.
	SetStatus(Status)

	// PrepareBlock arms the one-shot wakeup latch. Must be called while
	// the caller still holds the lock manager's monitor (spec §5).
	PrepareBlock()
	// Block parks the calling goroutine until a matching Unblock call (or
	// until the latch was never armed, in which case it returns
	// immediately). Must be called only after releasing the monitor.
	Block()
	// Unblock wakes a goroutine parked in Block. Safe to call without a
	// prior PrepareBlock (no-op in that case) and safe to call more than
	// once.
	Unblock()

	// Cleanup releases transaction resources outside of the log (e.g.
	// pinned pages, scratch buffers). The recovery manager tracks
	// transactions by number only and does not call it.
	Cleanup()
}

// Transaction is the default Context implementation. The block/unblock
// pair is an arm-then-park one-shot channel latch, the same idiom as the
// WakeUp channel in the chaisql-style lock manager this module's queue
// drain protocol is grounded on: a channel is created while armed and
// closed (never sent on) to wake every waiter exactly once.
type Transaction struct {
	transNum int64

	mu     sync.Mutex
	status Status
	latch  chan struct{} // non-nil while armed; closed by Unblock

	onCleanup func()
}

// New creates a Transaction in RUNNING status.
func New(transNum int64, onCleanup func()) *Transaction {
	return &Transaction{transNum: transNum, status: Running, onCleanup: onCleanup}
}

func (t *Transaction) TransNum() int64 { return t.transNum }

func (t *Transaction) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

func (t *Transaction) SetStatus(s Status) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status = s
}

// PrepareBlock arms the latch. The caller must hold whatever external
// monitor serializes the blocking decision (the lock manager's mutex);
// Transaction's own mutex only protects the latch channel itself.
func (t *Transaction) PrepareBlock() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.latch = make(chan struct{})
}

// Block parks until Unblock closes the armed latch. If PrepareBlock was
// never called (or the latch was already consumed), Block returns
// immediately rather than hanging forever.
func (t *Transaction) Block() {
	t.mu.Lock()
	latch := t.latch
	t.mu.Unlock()
	if latch == nil {
		return
	}
	<-latch
}

// Unblock wakes whatever goroutine is parked in Block. Idempotent and
// safe even if no Block call is currently pending.
func (t *Transaction) Unblock() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.latch == nil {
		return
	}
	select {
	case <-t.latch:
		// already closed
	default:
		close(t.latch)
	}
}

func (t *Transaction) Cleanup() {
	if t.onCleanup != nil {
		t.onCleanup()
	}
}
