// Package delegate models the capability-delegation tree: a hierarchy
// of grants in which every child holds at most what its parent holds.
//
// The package is pure data and validation. It performs no I/O and
// never panics on adversarial input: callers resolve parent state and
// manageable-depot sets themselves, pass them in, and persist whatever
// this package validates. Authorization enforcement happens before any
// store call is issued.
package delegate

import (
	"strings"
	"time"
)

// MaxDepth is the deepest allowed delegate (root is depth 0).
const MaxDepth = 15

// Identifier prefixes. Prefixes only distinguish token classes; they
// carry no authorization semantics beyond identification.
const (
	// IDPrefix marks delegation-capable identities.
	IDPrefix = "dg-"

	// AccessIDPrefix marks access-only bearer identities.
	AccessIDPrefix = "ac-"

	// ScopeSetPrefix marks multi-scope set references.
	ScopeSetPrefix = "ms-"
)

// Permissions are the attenuating capability bits. Both are
// monotonically non-increasing down the tree.
type Permissions struct {
	CanUpload      bool
	CanManageDepot bool
}

// Delegate is one node of the authorization tree. Immutable except for
// the one-time revocation transition.
type Delegate struct {
	ID       string
	Name     string
	Realm    string
	ParentID string // empty only for the realm root

	// Chain is the ancestor-to-self id list, self included, so
	// len(Chain) == Depth+1.
	Chain []string
	Depth int

	Permissions

	// DelegatedDepots is an explicit allow-list on top of the implicit
	// created-by-self-or-descendant range.
	DelegatedDepots []string

	// Scope is a node key or a ScopeSetPrefix reference.
	Scope string

	ExpiresAt *time.Time

	Revoked   bool
	RevokedAt *time.Time
	RevokedBy string

	CreatedAt time.Time
}

// CreateInput is a requested child delegate, as submitted for
// validation.
type CreateInput struct {
	ID    string
	Name  string
	Realm string

	Permissions

	DelegatedDepots []string
	Scope           string
	ExpiresAt       *time.Time
}

// NewRoot constructs a realm-root delegate.
func NewRoot(id, realm string, perms Permissions, now time.Time) *Delegate {
	return &Delegate{
		ID:          id,
		Realm:       realm,
		Chain:       BuildRootChain(id),
		Depth:       0,
		Permissions: perms,
		CreatedAt:   now,
	}
}

// NewChild constructs the child described by a validated CreateInput.
// Callers must have accepted the input via ValidateCreate first.
func NewChild(parent *Delegate, in CreateInput, now time.Time) *Delegate {
	chain := BuildChain(parent.Chain, in.ID)
	return &Delegate{
		ID:              in.ID,
		Name:            in.Name,
		Realm:           parent.Realm,
		ParentID:        parent.ID,
		Chain:           chain,
		Depth:           ChainDepth(chain),
		Permissions:     in.Permissions,
		DelegatedDepots: append([]string(nil), in.DelegatedDepots...),
		Scope:           in.Scope,
		ExpiresAt:       in.ExpiresAt,
		CreatedAt:       now,
	}
}

// Revoke marks the delegate revoked. The transition is write-once:
// repeated calls do not change who revoked it or when. Returns whether
// this call performed the transition.
func (d *Delegate) Revoke(by string, at time.Time) bool {
	if d.Revoked {
		return false
	}
	d.Revoked = true
	d.RevokedAt = &at
	d.RevokedBy = by
	return true
}

// Expired reports whether the delegate is past its expiry at now.
func (d *Delegate) Expired(now time.Time) bool {
	return d.ExpiresAt != nil && now.After(*d.ExpiresAt)
}

// ChainRevoked reports whether any id in chain is in the revoked set.
// Ancestor revocation cascades to descendants through this check even
// when the descendant's own Revoked flag was never set: revocation is
// evaluated lazily at authorization time, with no fan-out writes.
func ChainRevoked(chain []string, revoked map[string]struct{}) bool {
	for _, id := range chain {
		if _, hit := revoked[id]; hit {
			return true
		}
	}
	return false
}

// IsDelegationID reports whether id names a delegation-capable token.
func IsDelegationID(id string) bool {
	return strings.HasPrefix(id, IDPrefix) && len(id) > len(IDPrefix)
}

// IsAccessID reports whether id names an access-only bearer token.
func IsAccessID(id string) bool {
	return strings.HasPrefix(id, AccessIDPrefix) && len(id) > len(AccessIDPrefix)
}
