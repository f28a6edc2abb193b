package detect

// Branch is a node in the compiled detection logic tree
type Branch interface {
	// Match decides if the event satisfies this subtree
	Match(*Event) bool
}

// NodeSimpleAnd is a list of branches connected with logical conjunction
type NodeSimpleAnd []Branch

// Match implements Branch
func (n NodeSimpleAnd) Match(e *Event) bool {
	for _, b := range n {
		if !b.Match(e) {
			return false
		}
	}
	return true
}

// Reduce cleans up unneeded slices
// Static structures can be used if node only holds one or two elements
// Avoids pointless runtime loops
func (n NodeSimpleAnd) Reduce() Branch {
	if len(n) == 1 {
		return n[0]
	}
	if len(n) == 2 {
		return &NodeAnd{L: n[0], R: n[1]}
	}
	return n
}

// NodeSimpleOr is a list of branches connected with logical disjunction
type NodeSimpleOr []Branch

// Match implements Branch
func (n NodeSimpleOr) Match(e *Event) bool {
	for _, b := range n {
		if b.Match(e) {
			return true
		}
	}
	return false
}

// Reduce cleans up unneeded slices
func (n NodeSimpleOr) Reduce() Branch {
	if len(n) == 1 {
		return n[0]
	}
	if len(n) == 2 {
		return &NodeOr{L: n[0], R: n[1]}
	}
	return n
}

// NodeAnd is a two element node of a binary tree with Left and Right
// branches connected via logical conjunction
type NodeAnd struct {
	L, R Branch
}

// Match implements Branch
func (n NodeAnd) Match(e *Event) bool {
	return n.L.Match(e) && n.R.Match(e)
}

// NodeOr is a two element node of a binary tree with Left and Right
// branches connected via logical disjunction
type NodeOr struct {
	L, R Branch
}

// Match implements Branch
func (n NodeOr) Match(e *Event) bool {
	return n.L.Match(e) || n.R.Match(e)
}

// NodeNot negates a branch
type NodeNot struct {
	B Branch
}

// Match implements Branch
func (n NodeNot) Match(e *Event) bool {
	return !n.B.Match(e)
}
