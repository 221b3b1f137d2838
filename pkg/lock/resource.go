package lock

import "strings"

// ResourceName is an immutable ordered sequence of name segments
// identifying a node in the resource hierarchy (e.g. database, table,
// page).
type ResourceName struct {
	segments []string
}

// NewResourceName builds a ResourceName from its path segments.
func NewResourceName(segments ...string) ResourceName {
	cp := make([]string, len(segments))
	copy(cp, segments)
	return ResourceName{segments: cp}
}

// Child returns the resource name for a child segment below r.
func (r ResourceName) Child(segment string) ResourceName {
	cp := make([]string, len(r.segments)+1)
	copy(cp, r.segments)
	cp[len(r.segments)] = segment
	return ResourceName{segments: cp}
}

// Parent returns r's parent resource name and true, or the zero value and
// false if r is the root.
func (r ResourceName) Parent() (ResourceName, bool) {
	if len(r.segments) == 0 {
		return ResourceName{}, false
	}
	return ResourceName{segments: r.segments[:len(r.segments)-1]}, true
}

// IsDescendantOf reports whether r is a strict descendant of other (other
// is a strict prefix of r).
func (r ResourceName) IsDescendantOf(other ResourceName) bool {
	if len(r.segments) <= len(other.segments) {
		return false
	}
	for i, seg := range other.segments {
		if r.segments[i] != seg {
			return false
		}
	}
	return true
}

// Depth returns the number of segments in the resource name.
func (r ResourceName) Depth() int { return len(r.segments) }

func (r ResourceName) String() string {
	return strings.Join(r.segments, "/")
}

// Equal reports structural equality, used as a map key comparator (note:
// ResourceName is comparable only if used as a map key via its string
// form — see Key()).
func (r ResourceName) Equal(other ResourceName) bool {
	return r.String() == other.String()
}

// Key returns a value suitable for use as a map key.
func (r ResourceName) Key() string { return r.String() }
