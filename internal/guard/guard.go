// Package guard decides whether an identity may enter a role-protected route.
package guard

import "trid/internal/identity"

// Reason explains a denial. It only affects messaging; every denial is handled the same way.
type Reason string

const (
	ReasonNone            Reason = ""
	ReasonUnauthenticated Reason = "login_required"
	ReasonForbidden       Reason = "forbidden"
)

// Decision is the outcome of one guard evaluation.
type Decision struct {
	Allowed bool
	Reason  Reason
}

// Label is the metrics label for the decision.
func (d Decision) Label() string {
	if d.Allowed {
		return "allow"
	}
	return string(d.Reason)
}

// Evaluate allows present identities holding at least one required role.
// An empty required set admits any present identity.
func Evaluate(id identity.Identity, present bool, required []string) Decision {
	if !present {
		return Decision{Reason: ReasonUnauthenticated}
	}
	if len(required) == 0 || id.HasAnyRole(required...) {
		return Decision{Allowed: true}
	}
	return Decision{Reason: ReasonForbidden}
}

// Message is the user-facing explanation shown on the unauthorized view.
func Message(reason Reason) string {
	switch reason {
	case ReasonUnauthenticated:
		return "Please log in to continue."
	case ReasonForbidden:
		return "You do not have permission to view this page."
	default:
		return "You are not authorized to view this page."
	}
}
