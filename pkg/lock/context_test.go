package lock

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLockContextAcquireRequiresParentIntent(t *testing.T) {
	mgr := NewManager()
	root := NewRoot(mgr, NewResourceName("db"))
	table := root.ChildContext("t1")
	t1 := newTxn(1)

	err := table.Acquire(t1, S)
	assert.Error(t, err, "child acquire without a parent intent lock should fail")

	require.NoError(t, root.Acquire(t1, IS))
	require.NoError(t, table.Acquire(t1, S))
	assert.Equal(t, 1, root.ChildLockCount(1))
}

func TestLockContextReleaseFailsWithDescendantLocksHeld(t *testing.T) {
	mgr := NewManager()
	root := NewRoot(mgr, NewResourceName("db"))
	table := root.ChildContext("t1")
	t1 := newTxn(1)

	require.NoError(t, root.Acquire(t1, IX))
	require.NoError(t, table.Acquire(t1, X))

	err := root.Release(t1)
	assert.Error(t, err)

	require.NoError(t, table.Release(t1))
	require.NoError(t, root.Release(t1))
}

// TestLockContextPromoteSToIXBecomesSIX verifies the implicit S->IX
// rewrite to SIX, and that the pre-existing S coverage at this node
// lets descendant S/IS locks be dropped as redundant.
func TestLockContextPromoteSToIXBecomesSIX(t *testing.T) {
	mgr := NewManager()
	root := NewRoot(mgr, NewResourceName("db"))
	table := root.ChildContext("t1")
	t1 := newTxn(1)

	require.NoError(t, root.Acquire(t1, S))
	require.NoError(t, table.Acquire(t1, S))
	assert.Equal(t, 1, root.ChildLockCount(1))

	require.NoError(t, root.Promote(t1, IX))

	assert.Equal(t, SIX, mgr.GetLockMode(1, root.Name()))
	assert.Equal(t, NL, mgr.GetLockMode(1, table.Name()), "redundant S descendant should be released on SIX promotion")
	assert.Equal(t, 0, root.ChildLockCount(1))
}

func TestLockContextPromoteRejectsRedundantUnderAncestorSIX(t *testing.T) {
	mgr := NewManager()
	root := NewRoot(mgr, NewResourceName("db"))
	table := root.ChildContext("t1")
	t1 := newTxn(1)

	require.NoError(t, root.Acquire(t1, IX))
	require.NoError(t, table.Acquire(t1, IS))
	require.NoError(t, mgr.Promote(t1, root.Name(), SIX))

	err := table.Promote(t1, S)
	assert.Error(t, err, "promoting to S under an ancestor SIX is redundant and should be rejected")
}

// TestLockContextEscalateToS checks escalation consolidates several
// descendant S locks into a single S lock at the table, replacing the
// table's own IS lock in place and releasing the children.
func TestLockContextEscalateToS(t *testing.T) {
	mgr := NewManager()
	root := NewRoot(mgr, NewResourceName("db"))
	table := root.ChildContext("t1")
	pageA := table.ChildContext("pA")
	pageB := table.ChildContext("pB")
	t1 := newTxn(1)

	require.NoError(t, root.Acquire(t1, IS))
	require.NoError(t, table.Acquire(t1, IS))
	require.NoError(t, pageA.Acquire(t1, S))
	require.NoError(t, pageB.Acquire(t1, S))

	require.NoError(t, table.Escalate(t1))

	assert.Equal(t, S, mgr.GetLockMode(1, table.Name()))
	assert.Equal(t, NL, mgr.GetLockMode(1, pageA.Name()))
	assert.Equal(t, NL, mgr.GetLockMode(1, pageB.Name()))
	assert.Equal(t, 0, table.ChildLockCount(1))
}

// TestLockContextEscalateChoosesXWhenAnyDescendantIsExclusive checks the
// X-if-any-descendant-is-Xish rule.
func TestLockContextEscalateChoosesXWhenAnyDescendantIsExclusive(t *testing.T) {
	mgr := NewManager()
	root := NewRoot(mgr, NewResourceName("db"))
	table := root.ChildContext("t1")
	pageA := table.ChildContext("pA")
	t1 := newTxn(1)

	require.NoError(t, root.Acquire(t1, IX))
	require.NoError(t, table.Acquire(t1, IX))
	require.NoError(t, pageA.Acquire(t1, X))

	require.NoError(t, table.Escalate(t1))

	assert.Equal(t, X, mgr.GetLockMode(1, table.Name()))
}

func TestLockContextGetEffectiveLockTypePropagatesThroughSIX(t *testing.T) {
	mgr := NewManager()
	root := NewRoot(mgr, NewResourceName("db"))
	table := root.ChildContext("t1")
	t1 := newTxn(1)

	require.NoError(t, root.Acquire(t1, SIX))

	assert.Equal(t, S, table.GetEffectiveLockType(1))
}

func TestLockContextDisableChildLocksMakesChildrenReadonly(t *testing.T) {
	mgr := NewManager()
	root := NewRoot(mgr, NewResourceName("db"))
	idx := root.ChildContext("idx1")
	idx.DisableChildLocks()
	leaf := idx.ChildContext("entry1")
	t1 := newTxn(1)

	err := leaf.Acquire(t1, S)
	assert.Error(t, err)
}
