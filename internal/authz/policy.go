// Package authz decides whether a subject may perform an operation.
//
// The policy is a pure function of its inputs: it performs no I/O, holds no
// state and never blocks, so callers may evaluate it before touching storage.
package authz

import "strings"

// Role is the coarse permission tier attached to a subject.
type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

// ParseRole converts a case-insensitive role label. ok is false for unknown labels.
func ParseRole(value string) (Role, bool) {
	switch Role(strings.ToUpper(strings.TrimSpace(value))) {
	case RoleUser:
		return RoleUser, true
	case RoleAdmin:
		return RoleAdmin, true
	default:
		return "", false
	}
}

// Subject is an authenticated identity supplied by the caller's identity context.
type Subject struct {
	ID   string
	Role Role
}

// IsAdmin reports whether the subject holds the administrative role.
func (s *Subject) IsAdmin() bool {
	return s != nil && s.Role == RoleAdmin
}

// Operation names an action evaluated by the policy.
type Operation string

const (
	CreateResource    Operation = "CreateResource"
	UpdateResource    Operation = "UpdateResource"
	DeleteResource    Operation = "DeleteResource"
	ListUsers         Operation = "ListUsers"
	DeleteUser        Operation = "DeleteUser"
	CreateReservation Operation = "CreateReservation"
	CheckAvailability Operation = "CheckAvailability"
	GetReservation    Operation = "GetReservation"
	UpdateReservation Operation = "UpdateReservation"
	DeleteReservation Operation = "DeleteReservation"
	ListReservations  Operation = "ListReservations"
	ListResources     Operation = "ListResources"
)

// Target carries the attributes of the object an operation acts upon.
type Target struct {
	OwnerID string
}

// Reason explains a denial.
type Reason string

const (
	ReasonUnauthenticated  Reason = "Unauthenticated"
	ReasonInsufficientRole Reason = "InsufficientRole"
	ReasonNotOwner         Reason = "NotOwner"
	ReasonUnknownOperation Reason = "UnknownOperation"
)

// Decision is either Allow or Deny(reason).
type Decision struct {
	allowed bool
	reason  Reason
}

// Allow returns an allowing decision.
func Allow() Decision {
	return Decision{allowed: true}
}

// Deny returns a denying decision carrying reason.
func Deny(reason Reason) Decision {
	return Decision{reason: reason}
}

// Allowed reports whether the decision permits the operation.
func (d Decision) Allowed() bool {
	return d.allowed
}

// Reason returns the denial reason, or "" for an allowing decision.
func (d Decision) Reason() Reason {
	return d.reason
}

func (d Decision) String() string {
	if d.allowed {
		return "Allow"
	}
	return "Deny(" + string(d.reason) + ")"
}

// Policy is the stateless rule set. The zero value is ready to use.
type Policy struct{}

// Decide evaluates the rules in order; the first matching rule wins.
// A nil subject means identity resolution failed.
func (Policy) Decide(subject *Subject, op Operation, target Target) Decision {
	switch op {
	case CreateResource, UpdateResource, DeleteResource, ListUsers, DeleteUser:
		if subject.IsAdmin() {
			return Allow()
		}
		return Deny(ReasonInsufficientRole)
	case CreateReservation, CheckAvailability:
		if subject == nil || subject.ID == "" {
			return Deny(ReasonUnauthenticated)
		}
		return Allow()
	case GetReservation, UpdateReservation, DeleteReservation:
		if subject.IsAdmin() {
			return Allow()
		}
		if subject != nil && subject.ID != "" && subject.ID == target.OwnerID {
			return Allow()
		}
		return Deny(ReasonNotOwner)
	case ListReservations, ListResources:
		// Result scoping for ListReservations is applied by the engine's query.
		return Allow()
	default:
		return Deny(ReasonUnknownOperation)
	}
}
