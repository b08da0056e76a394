package delegate

// BuildRootChain returns the chain of a realm root: just itself.
func BuildRootChain(selfID string) []string {
	return []string{selfID}
}

// BuildChain returns the child chain: the parent chain with the child
// id appended. The input slice is not aliased.
func BuildChain(parentChain []string, childID string) []string {
	chain := make([]string, 0, len(parentChain)+1)
	chain = append(chain, parentChain...)
	return append(chain, childID)
}

// IsAncestor reports whether id appears anywhere in chain. A delegate
// is its own ancestor for this purpose, matching the implicit
// created-by-self-or-descendant depot ranges.
func IsAncestor(id string, chain []string) bool {
	for _, c := range chain {
		if c == id {
			return true
		}
	}
	return false
}

// ChainDepth is the tree depth encoded by a chain (root chain = 0).
func ChainDepth(chain []string) int {
	return len(chain) - 1
}

// ValidChain reports whether a chain is structurally sound: non-empty,
// within MaxDepth, and free of empty or duplicate entries.
func ValidChain(chain []string) bool {
	if len(chain) == 0 || len(chain) > MaxDepth+1 {
		return false
	}
	seen := make(map[string]struct{}, len(chain))
	for _, id := range chain {
		if id == "" {
			return false
		}
		if _, dup := seen[id]; dup {
			return false
		}
		seen[id] = struct{}{}
	}
	return true
}

// IsDirectChildChain reports whether child is parent with exactly one
// id appended. The shared prefix is compared element-wise: a reordered
// or forged prefix of the right length does not pass.
func IsDirectChildChain(parent, child []string) bool {
	if len(child) != len(parent)+1 {
		return false
	}
	for i := range parent {
		if child[i] != parent[i] {
			return false
		}
	}
	return child[len(parent)] != ""
}
