package delegate

import (
	"fmt"
	"strings"

	"github.com/driftlock/depot"
)

// ValidationCode names a creation-time validation failure. Validation
// failures are results, never errors: the caller decides presentation.
type ValidationCode string

const (
	CodeDepthExceeded            ValidationCode = "DEPTH_EXCEEDED"
	CodePermissionEscalation     ValidationCode = "PERMISSION_ESCALATION"
	CodeExpiresAfterParent       ValidationCode = "EXPIRES_AFTER_PARENT"
	CodeDelegatedDepotEscalation ValidationCode = "DELEGATED_DEPOTS_ESCALATION"
	CodeInvalidScope             ValidationCode = "INVALID_SCOPE"
)

// Result is the outcome of ValidateCreate.
type Result struct {
	Valid   bool
	Code    ValidationCode
	Message string
}

func accept() Result {
	return Result{Valid: true}
}

func reject(code ValidationCode, format string, args ...any) Result {
	return Result{Valid: false, Code: code, Message: fmt.Sprintf(format, args...)}
}

// ValidateCreate checks a requested child against its resolved parent.
// Checks run in a fixed order and short-circuit on the first failure:
// depth, permission monotonicity, expiry monotonicity, delegated-depot
// containment, scope format.
//
// parentManageable is the set of depot ids the parent may hand down:
// self-created, descendant-created, and the parent's own explicit
// grants. Resolving that set is the caller's job; this function only
// checks containment.
func ValidateCreate(parent *Delegate, in CreateInput, parentManageable map[string]struct{}) Result {
	if parent.Depth+1 > MaxDepth {
		return reject(CodeDepthExceeded,
			"delegate depth %d exceeds maximum %d", parent.Depth+1, MaxDepth)
	}

	if in.CanUpload && !parent.CanUpload {
		return reject(CodePermissionEscalation,
			"child requests canUpload but parent lacks it")
	}
	if in.CanManageDepot && !parent.CanManageDepot {
		return reject(CodePermissionEscalation,
			"child requests canManageDepot but parent lacks it")
	}

	if parent.ExpiresAt != nil {
		if in.ExpiresAt == nil {
			return reject(CodeExpiresAfterParent,
				"parent expires at %s but child sets no expiry", parent.ExpiresAt)
		}
		if in.ExpiresAt.After(*parent.ExpiresAt) {
			return reject(CodeExpiresAfterParent,
				"child expiry %s is after parent expiry %s", in.ExpiresAt, parent.ExpiresAt)
		}
	}

	for _, id := range in.DelegatedDepots {
		if _, member := parentManageable[id]; !member {
			return reject(CodeDelegatedDepotEscalation,
				"depot %q is not manageable by the parent", id)
		}
	}

	if !validScope(in.Scope) {
		return reject(CodeInvalidScope, "scope %q is neither a node key nor a scope set", in.Scope)
	}

	return accept()
}

// validScope accepts an empty scope (inherit the parent's), a single
// node key, or a multi-scope set reference.
func validScope(scope string) bool {
	if scope == "" {
		return true
	}
	if strings.HasPrefix(scope, ScopeSetPrefix) {
		return len(scope) > len(ScopeSetPrefix)
	}
	_, err := depot.ParseKey(scope)
	return err == nil
}
