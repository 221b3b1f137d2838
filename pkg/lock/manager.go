package lock

import (
	"sync"

	"ariesdb/pkg/dberror"
	"ariesdb/pkg/transaction"
)

// heldLock is a single (resource, transaction) lock grant. It is shared
// by pointer between a resourceEntry's granted list and the owning
// transaction's acquisition-order list, so an in-place mode replacement
// (promotion, or a queue-drain swap) mutates one object and is visible
// from both lists without moving its position in either.
type heldLock struct {
	resource ResourceName
	txn      int64
	mode     Mode
}

// request is a queued lock request. releaseSet carries the resources an
// AcquireAndRelease (or SIX-promotion) swap will release atomically once
// granted.
type request struct {
	txn        int64
	mode       Mode
	releaseSet []ResourceName
	ctx        transaction.Context
}

type resourceEntry struct {
	name    ResourceName
	granted []*heldLock
	queue   []*request
}

func (e *resourceEntry) lockFor(txn int64) *heldLock {
	for _, hl := range e.granted {
		if hl.txn == txn {
			return hl
		}
	}
	return nil
}

// allCompatibleIgnoring reports whether mode is compatible with every
// granted lock on the resource other than one held by selfTxn.
func allCompatibleIgnoring(granted []*heldLock, mode Mode, selfTxn int64) bool {
	for _, hl := range granted {
		if hl.txn == selfTxn {
			continue
		}
		if !Compatible(hl.mode, mode) {
			return false
		}
	}
	return true
}

// Manager is the flat lock manager of spec §4.C: per-resource grant
// lists and FIFO wait queues, with five atomic primitives. All five
// operations are serialized on a single mutex (the "monitor" of spec
// §5); blocking callers arm their latch and release the mutex before
// parking, per the arm-then-park protocol.
type Manager struct {
	mu        sync.Mutex
	resources map[string]*resourceEntry
	txnLocks  map[int64][]*heldLock
}

// NewManager constructs an empty flat lock manager.
func NewManager() *Manager {
	return &Manager{
		resources: make(map[string]*resourceEntry),
		txnLocks:  make(map[int64][]*heldLock),
	}
}

func (m *Manager) entry(name ResourceName) *resourceEntry {
	key := name.Key()
	e, ok := m.resources[key]
	if !ok {
		e = &resourceEntry{name: name}
		m.resources[key] = e
	}
	return e
}

// GetLockMode returns the mode txn currently holds on name, or NL if it
// holds nothing there.
func (m *Manager) GetLockMode(txn int64, name ResourceName) Mode {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.resources[name.Key()]; ok {
		if hl := e.lockFor(txn); hl != nil {
			return hl.mode
		}
	}
	return NL
}

// Acquire grants txn mode on name, blocking if necessary. See spec §4.C.
func (m *Manager) Acquire(ctx transaction.Context, name ResourceName, mode Mode) error {
	m.mu.Lock()
	txn := ctx.TransNum()
	e := m.entry(name)

	if e.lockFor(txn) != nil {
		m.mu.Unlock()
		return dberror.DuplicateLockRequest("LockManager", "acquire", name.String())
	}

	if len(e.queue) == 0 && allCompatibleIgnoring(e.granted, mode, txn) {
		m.grant(e, txn, mode)
		m.mu.Unlock()
		return nil
	}

	e.queue = append(e.queue, &request{txn: txn, mode: mode, ctx: ctx})
	ctx.PrepareBlock()
	m.mu.Unlock()
	ctx.Block()
	return nil
}

// Release drops txn's lock on name and drains the resource's wait queue.
func (m *Manager) Release(ctx transaction.Context, name ResourceName) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	txn := ctx.TransNum()

	e, ok := m.resources[name.Key()]
	if !ok || e.lockFor(txn) == nil {
		return dberror.NoLockHeld("LockManager", "release", name.String())
	}

	m.remove(e, txn)
	m.drain(e)
	return nil
}

// AcquireAndRelease atomically installs mode on name and releases every
// lock in releaseSet (other than the one on name itself), or blocks at
// the front of name's wait queue if that is not immediately possible.
func (m *Manager) AcquireAndRelease(ctx transaction.Context, name ResourceName, mode Mode, releaseSet []ResourceName) error {
	m.mu.Lock()
	txn := ctx.TransNum()
	e := m.entry(name)
	existing := e.lockFor(txn)

	if existing != nil && existing.mode == mode {
		m.mu.Unlock()
		return dberror.DuplicateLockRequest("LockManager", "acquireAndRelease", name.String())
	}
	for _, rn := range releaseSet {
		re, ok := m.resources[rn.Key()]
		if !ok || re.lockFor(txn) == nil {
			m.mu.Unlock()
			return dberror.NoLockHeld("LockManager", "acquireAndRelease", rn.String())
		}
	}

	if allCompatibleIgnoring(e.granted, mode, txn) {
		if existing != nil {
			existing.mode = mode
		} else {
			m.grant(e, txn, mode)
		}
		for _, rn := range releaseSet {
			if rn.Equal(name) {
				continue
			}
			re := m.resources[rn.Key()]
			m.remove(re, txn)
			m.drain(re)
		}
		m.mu.Unlock()
		return nil
	}

	req := &request{txn: txn, mode: mode, releaseSet: releaseSet, ctx: ctx}
	e.queue = append([]*request{req}, e.queue...)
	ctx.PrepareBlock()
	m.mu.Unlock()
	ctx.Block()
	return nil
}

// Promote upgrades txn's lock on name to newMode in place, or blocks at
// the front of name's wait queue.
func (m *Manager) Promote(ctx transaction.Context, name ResourceName, newMode Mode) error {
	m.mu.Lock()
	txn := ctx.TransNum()
	e := m.entry(name)
	existing := e.lockFor(txn)

	if existing == nil {
		m.mu.Unlock()
		return dberror.NoLockHeld("LockManager", "promote", name.String())
	}
	if existing.mode == newMode {
		m.mu.Unlock()
		return dberror.DuplicateLockRequest("LockManager", "promote", name.String())
	}
	if !Substitutable(existing.mode, newMode) {
		m.mu.Unlock()
		return dberror.InvalidLock("LockManager", "promote", name.String())
	}

	if allCompatibleIgnoring(e.granted, newMode, txn) {
		existing.mode = newMode
		m.drain(e)
		m.mu.Unlock()
		return nil
	}

	req := &request{txn: txn, mode: newMode, ctx: ctx}
	e.queue = append([]*request{req}, e.queue...)
	ctx.PrepareBlock()
	m.mu.Unlock()
	ctx.Block()
	return nil
}

// grant installs a brand-new lock for txn on e (no prior lock held).
// Caller must hold m.mu.
func (m *Manager) grant(e *resourceEntry, txn int64, mode Mode) {
	hl := &heldLock{resource: e.name, txn: txn, mode: mode}
	e.granted = append(e.granted, hl)
	m.txnLocks[txn] = append(m.txnLocks[txn], hl)
}

// remove drops txn's held lock on e, if any. Caller must hold m.mu.
func (m *Manager) remove(e *resourceEntry, txn int64) {
	for i, hl := range e.granted {
		if hl.txn == txn {
			e.granted = append(e.granted[:i], e.granted[i+1:]...)
			break
		}
	}
	locks := m.txnLocks[txn]
	for i, hl := range locks {
		if hl.resource.Equal(e.name) {
			m.txnLocks[txn] = append(locks[:i], locks[i+1:]...)
			break
		}
	}
	if len(m.txnLocks[txn]) == 0 {
		delete(m.txnLocks, txn)
	}
}

// drain walks e's wait queue from the front, granting every request that
// is immediately compatible and stopping at the first that is not. It
// recurses into any other resources released by a granted request's
// releaseSet. Caller must hold m.mu.
func (m *Manager) drain(e *resourceEntry) {
	for len(e.queue) > 0 {
		req := e.queue[0]
		if !allCompatibleIgnoring(e.granted, req.mode, req.txn) {
			break
		}
		e.queue = e.queue[1:]

		if hl := e.lockFor(req.txn); hl != nil {
			hl.mode = req.mode
		} else {
			m.grant(e, req.txn, req.mode)
		}

		for _, rn := range req.releaseSet {
			if rn.Equal(e.name) {
				continue
			}
			re, ok := m.resources[rn.Key()]
			if !ok {
				continue
			}
			m.remove(re, req.txn)
			m.drain(re)
		}

		req.ctx.Unblock()
	}
}
