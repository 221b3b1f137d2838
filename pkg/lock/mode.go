// Package lock implements the hierarchical multigranularity lock
// manager: a flat per-resource lock manager (spec §4.C) wrapped by a
// tree of lock contexts that enforce multigranularity rules (spec §4.D).
package lock

// Mode is one of the six lock modes of spec §3.
type Mode int

const (
	NL Mode = iota
	IS
	IX
	S
	SIX
	X
)

func (m Mode) String() string {
	switch m {
	case NL:
		return "NL"
	case IS:
		return "IS"
	case IX:
		return "IX"
	case S:
		return "S"
	case SIX:
		return "SIX"
	case X:
		return "X"
	default:
		return "INVALID"
	}
}

// compatibilityTable is the canonical matrix from spec §3. Indexed
// [a][b]; the relation is commutative so the table is symmetric.
var compatibilityTable = [6][6]bool{
	NL:  {NL: true, IS: true, IX: true, S: true, SIX: true, X: true},
	IS:  {NL: true, IS: true, IX: true, S: true, SIX: true, X: false},
	IX:  {NL: true, IS: true, IX: true, S: false, SIX: false, X: false},
	S:   {NL: true, IS: true, IX: false, S: true, SIX: false, X: false},
	SIX: {NL: true, IS: true, IX: false, S: false, SIX: false, X: false},
	X:   {NL: true, IS: false, IX: false, S: false, SIX: false, X: false},
}

// Compatible reports whether two transactions may simultaneously hold a
// and b on the same resource.
func Compatible(a, b Mode) bool {
	return compatibilityTable[a][b]
}

// Substitutability ranks modes by how much access they confer. Intent modes (IS, IX) confer no direct access to the
// node itself, so they rank below S even though they combine with it
// (SIX) to exceed it.
//
// substitutableTable[required][held] is true iff held can serve a
// request for required.
var substitutableTable = [6][6]bool{
	NL:  {NL: true, IS: true, IX: true, S: true, SIX: true, X: true},
	IS:  {NL: false, IS: true, IX: true, S: true, SIX: true, X: true},
	IX:  {NL: false, IS: false, IX: true, S: false, SIX: true, X: true},
	S:   {NL: false, IS: false, IX: false, S: true, SIX: true, X: true},
	SIX: {NL: false, IS: false, IX: false, S: false, SIX: true, X: true},
	X:   {NL: false, IS: false, IX: false, S: false, SIX: false, X: true},
}

// Substitutable reports whether a lock already held in mode held can
// serve a request for mode required (held is at least as strong).
func Substitutable(required, held Mode) bool {
	return substitutableTable[required][held]
}

// parentRequirement lists, for a child mode, the set of modes the parent
// must already hold (or be willing to hold) for the child acquisition to
// be legal. NL imposes no requirement on the parent.
var parentRequirement = map[Mode]map[Mode]bool{
	IS:  {IS: true, IX: true},
	IX:  {IX: true, SIX: true, X: true},
	S:   {IS: true, IX: true, S: true, SIX: true, X: true},
	SIX: {IX: true, SIX: true, X: true},
	X:   {IX: true, SIX: true, X: true},
	NL:  nil,
}

// CanBeParentLock reports whether parentMode is a legal parent lock for a
// child acquisition of childMode.
func CanBeParentLock(parentMode, childMode Mode) bool {
	req := parentRequirement[childMode]
	if req == nil {
		return true
	}
	return req[parentMode]
}
