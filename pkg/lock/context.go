package lock

import (
	"sync"

	"ariesdb/pkg/dberror"
	"ariesdb/pkg/transaction"
)

// tree holds the state shared by every LockContext in one hierarchy: the
// flat manager backing all of them, the node registry (so a resource name
// always maps back to the same *LockContext), and the per-node,
// per-transaction descendant-lock counters. A single mutex guards node
// fabrication and the counters, matching the design note that the
// child-lock counter can share the flat manager's monitor; here it is a
// dedicated mutex in the same package rather than reaching into
// Manager's private lock.
type tree struct {
	mgr   *Manager
	mu    sync.Mutex
	nodes map[string]*LockContext
}

// LockContext is a node in the tree mirroring the resource-name
// hierarchy (spec §4.D). It enforces multigranularity rules on top of
// the flat Manager and tracks, per transaction, how many locks that
// transaction holds on its strict descendants.
type LockContext struct {
	t        *tree
	parent   *LockContext
	name     ResourceName
	readonly bool

	childLocksDisabled bool
	numChildLocks      map[int64]int
}

// NewRoot creates the root LockContext of a new hierarchy (e.g. "the
// database"), backed by mgr.
func NewRoot(mgr *Manager, name ResourceName) *LockContext {
	t := &tree{mgr: mgr, nodes: make(map[string]*LockContext)}
	root := &LockContext{t: t, name: name, numChildLocks: make(map[int64]int)}
	t.nodes[name.Key()] = root
	return root
}

// ChildContext lazily fabricates (or returns the existing) child node for
// segment. New children inherit readonly from this node when this node
// has disabled child locks.
func (c *LockContext) ChildContext(segment string) *LockContext {
	childName := c.name.Child(segment)
	c.t.mu.Lock()
	defer c.t.mu.Unlock()
	if existing, ok := c.t.nodes[childName.Key()]; ok {
		return existing
	}
	child := &LockContext{
		t:        c.t,
		parent:   c,
		name:     childName,
		readonly: c.readonly || c.childLocksDisabled,
		numChildLocks: make(map[int64]int),
	}
	c.t.nodes[childName.Key()] = child
	return child
}

// DisableChildLocks marks this node so that any (lazily fabricated)
// children are read-only; used for indices and temp tables which are
// locked only at their own granularity.
func (c *LockContext) DisableChildLocks() {
	c.t.mu.Lock()
	defer c.t.mu.Unlock()
	c.childLocksDisabled = true
}

func (c *LockContext) Name() ResourceName { return c.name }

func (c *LockContext) incrementAncestors(txn int64, delta int) {
	c.t.mu.Lock()
	defer c.t.mu.Unlock()
	for n := c.parent; n != nil; n = n.parent {
		n.numChildLocks[txn] += delta
		if n.numChildLocks[txn] == 0 {
			delete(n.numChildLocks, txn)
		}
	}
}

// ChildLockCount returns the number of locks txn holds on strict
// descendants of c (invariant 2 of spec §8).
func (c *LockContext) ChildLockCount(txn int64) int {
	c.t.mu.Lock()
	defer c.t.mu.Unlock()
	return c.numChildLocks[txn]
}

// Acquire grants txn mode on this node, enforcing that the parent
// already holds (or implies) a legal parent mode.
func (c *LockContext) Acquire(ctx transaction.Context, mode Mode) error {
	if c.readonly {
		return dberror.UnsupportedOperation("LockContext", "acquire", c.name.String())
	}
	txn := ctx.TransNum()
	if c.parent != nil {
		parentEff := c.parent.GetEffectiveLockType(txn)
		if !CanBeParentLock(parentEff, mode) {
			return dberror.InvalidLock("LockContext", "acquire", c.name.String())
		}
	}
	if err := c.t.mgr.Acquire(ctx, c.name, mode); err != nil {
		return err
	}
	c.incrementAncestors(txn, 1)
	return nil
}

// Release drops txn's lock on this node. Fails if txn still holds any
// lock on a strict descendant (the "no dangling child lock" invariant).
func (c *LockContext) Release(ctx transaction.Context) error {
	if c.readonly {
		return dberror.UnsupportedOperation("LockContext", "release", c.name.String())
	}
	txn := ctx.TransNum()
	if c.ChildLockCount(txn) > 0 {
		return dberror.InvalidLock("LockContext", "release", c.name.String()+": descendant locks still held")
	}
	if err := c.t.mgr.Release(ctx, c.name); err != nil {
		return err
	}
	c.incrementAncestors(txn, -1)
	return nil
}

// ancestorHasSIX reports whether any strict ancestor of c already holds
// SIX for txn (redundant-coverage check for promotions to S/IS/SIX).
func (c *LockContext) ancestorHasSIX(txn int64) bool {
	for n := c.parent; n != nil; n = n.parent {
		if c.t.mgr.GetLockMode(txn, n.name) == SIX {
			return true
		}
	}
	return false
}

// collectDescendants walks the fabricated subtree under c (depth-first)
// collecting every node where txn holds a mode in modes.
func (c *LockContext) collectDescendants(txn int64, modes map[Mode]bool) []*LockContext {
	var out []*LockContext
	c.t.mu.Lock()
	children := make([]*LockContext, 0)
	for _, n := range c.t.nodes {
		if n.parent == c {
			children = append(children, n)
		}
	}
	c.t.mu.Unlock()

	for _, child := range children {
		mode := c.t.mgr.GetLockMode(txn, child.name)
		if modes == nil || modes[mode] {
			if mode != NL {
				out = append(out, child)
			}
		}
		out = append(out, child.collectDescendants(txn, modes)...)
	}
	return out
}

// allDescendantsWithLocks returns every descendant (at any depth) on
// which txn holds a non-NL lock.
func (c *LockContext) allDescendantsWithLocks(txn int64) []*LockContext {
	return c.collectDescendants(txn, nil)
}

// Promote upgrades txn's lock on this node to newMode. An implicit
// S->IX request is rewritten to S->SIX (IX alone would not cover the
// previously-held S). A request that would target S, IS, or SIX while an
// ancestor already holds SIX is redundant and rejected.
func (c *LockContext) Promote(ctx transaction.Context, newMode Mode) error {
	if c.readonly {
		return dberror.UnsupportedOperation("LockContext", "promote", c.name.String())
	}
	txn := ctx.TransNum()
	held := c.t.mgr.GetLockMode(txn, c.name)

	if held == newMode {
		return dberror.DuplicateLockRequest("LockContext", "promote", c.name.String())
	}
	if held == NL {
		return dberror.NoLockHeld("LockContext", "promote", c.name.String())
	}
	if held == S && newMode == IX {
		newMode = SIX
	}
	if !Substitutable(held, newMode) {
		return dberror.InvalidLock("LockContext", "promote", c.name.String())
	}
	if (newMode == S || newMode == IS || newMode == SIX) && c.ancestorHasSIX(txn) {
		return dberror.InvalidLock("LockContext", "promote", c.name.String()+": ancestor already holds SIX")
	}
	if c.parent != nil {
		parentEff := c.parent.GetEffectiveLockType(txn)
		if !CanBeParentLock(parentEff, newMode) {
			return dberror.InvalidLock("LockContext", "promote", c.name.String())
		}
	}

	if newMode == SIX {
		sisDescendants := c.collectDescendants(txn, map[Mode]bool{S: true, IS: true})
		releaseSet := make([]ResourceName, 0, len(sisDescendants)+1)
		releaseSet = append(releaseSet, c.name)
		for _, d := range sisDescendants {
			releaseSet = append(releaseSet, d.name)
		}
		if err := c.t.mgr.AcquireAndRelease(ctx, c.name, SIX, releaseSet); err != nil {
			return err
		}
		for _, d := range sisDescendants {
			d.incrementAncestors(txn, -1)
		}
		return nil
	}

	return c.t.mgr.Promote(ctx, c.name, newMode)
}

// Escalate consolidates every descendant lock txn holds under this node
// into a single S or X lock on this node. Chooses X iff this node or any
// descendant lock is one of {IX, SIX, X}; otherwise S. A no-op if the
// chosen mode is already held.
func (c *LockContext) Escalate(ctx transaction.Context) error {
	if c.readonly {
		return dberror.UnsupportedOperation("LockContext", "escalate", c.name.String())
	}
	txn := ctx.TransNum()
	current := c.t.mgr.GetLockMode(txn, c.name)
	descendants := c.allDescendantsWithLocks(txn)

	if current == NL && len(descendants) == 0 {
		return nil
	}

	newMode := S
	if isXish(current) {
		newMode = X
	} else {
		for _, d := range descendants {
			if isXish(c.t.mgr.GetLockMode(txn, d.name)) {
				newMode = X
				break
			}
		}
	}
	if current == newMode {
		return nil
	}

	releaseSet := make([]ResourceName, 0, len(descendants)+1)
	releaseSet = append(releaseSet, c.name)
	for _, d := range descendants {
		releaseSet = append(releaseSet, d.name)
	}
	if err := c.t.mgr.AcquireAndRelease(ctx, c.name, newMode, releaseSet); err != nil {
		return err
	}
	for _, d := range descendants {
		d.incrementAncestors(txn, -1)
	}
	c.t.mu.Lock()
	delete(c.numChildLocks, txn)
	c.t.mu.Unlock()
	return nil
}

func isXish(m Mode) bool {
	return m == IX || m == SIX || m == X
}

// GetEffectiveLockType returns txn's explicit lock on this node if one is
// held, otherwise the type implied by ancestors: S or X propagate
// directly, SIX implies S, and intent-only ancestors (IS/IX) or no lock
// at all imply NL.
func (c *LockContext) GetEffectiveLockType(txn int64) Mode {
	held := c.t.mgr.GetLockMode(txn, c.name)
	if held != NL {
		return held
	}
	if c.parent == nil {
		return NL
	}
	switch c.parent.GetEffectiveLockType(txn) {
	case S:
		return S
	case X:
		return X
	case SIX:
		return S
	default:
		return NL
	}
}
