// Package registry holds the entity stores and the business rules that
// govern them: users, dance events (with the DJ workflow), groups and
// group invites.
//
// Registries are independent of each other. The only cross-registry call is
// the cascade from GroupRegistry.Delete into events and invites, made
// through narrow interfaces. Authorization is the caller's job; registries
// trust that the caller has checked who may perform an operation.
package registry

import (
	"errors"
	"fmt"
)

// Error kinds. Every expected failure returned by a registry wraps exactly
// one of these; match with errors.Is.
var (
	ErrNotFound           = errors.New("not found")
	ErrConflict           = errors.New("conflict")
	ErrInvariantViolation = errors.New("invariant violation")
	ErrExpired            = errors.New("expired")
	ErrCapacityExceeded   = errors.New("capacity exceeded")
	ErrInvalidState       = errors.New("invalid state")
	ErrInvalidInput       = errors.New("invalid input")
)

// Specific failures.
var (
	ErrUserNotFound       = fmt.Errorf("user %w", ErrNotFound)
	ErrEventNotFound      = fmt.Errorf("event %w", ErrNotFound)
	ErrGroupNotFound      = fmt.Errorf("group %w", ErrNotFound)
	ErrInviteNotFound     = fmt.Errorf("invite %w", ErrNotFound)
	ErrMemberNotFound     = fmt.Errorf("group member %w", ErrNotFound)
	ErrInvalidCredentials = fmt.Errorf("invalid email or password: %w", ErrNotFound)

	// ErrInvalidToken covers unknown and expired tokens alike.
	ErrInvalidToken = fmt.Errorf("invalid or expired token: %w", ErrNotFound)

	ErrEmailTaken    = fmt.Errorf("email already registered: %w", ErrConflict)
	ErrUsernameTaken = fmt.Errorf("username already in use: %w", ErrConflict)
	ErrNicknameTaken = fmt.Errorf("nickname already in use: %w", ErrConflict)
	ErrProviderTaken = fmt.Errorf("provider account already linked: %w", ErrConflict)
	ErrAlreadyMember = fmt.Errorf("user is already a group member: %w", ErrConflict)

	ErrLastAdmin     = fmt.Errorf("group must keep at least one admin: %w", ErrInvariantViolation)
	ErrSoleMember    = fmt.Errorf("sole member must delete the group instead of leaving: %w", ErrInvariantViolation)
	ErrDjDisabled    = fmt.Errorf("event does not accept DJ requests: %w", ErrInvariantViolation)
	ErrEventFull     = fmt.Errorf("event is full: %w", ErrCapacityExceeded)
	ErrInviteExpired = fmt.Errorf("invite %w", ErrExpired)

	ErrAccountDeleted      = fmt.Errorf("account deleted: %w", ErrInvalidState)
	ErrDjRequestNotFound   = fmt.Errorf("no DJ request for user: %w", ErrInvalidState)
	ErrInviteNotPending    = fmt.Errorf("invite already resolved: %w", ErrInvalidState)
	ErrPasswordRequired    = fmt.Errorf("password required: %w", ErrInvalidInput)
	ErrPasswordTooShort    = fmt.Errorf("password must be at least %d characters: %w", MinPasswordLength, ErrInvalidInput)
	ErrGroupIDRequired     = fmt.Errorf("groupId required for group visibility: %w", ErrInvalidInput)
	ErrCapacityTooLow      = fmt.Errorf("maxParticipants below current participant count: %w", ErrCapacityExceeded)
	ErrSuccessorNotMember  = fmt.Errorf("new admin must be a group member: %w", ErrInvalidInput)
	ErrSuccessorNotAllowed = fmt.Errorf("only an admin may name a new admin: %w", ErrInvalidInput)
)

// mustValid panics when an enum value outside its domain reaches a
// registry. Inputs are validated at the edge; reaching here is a bug.
func mustValid(ok bool, what string, v any) {
	if !ok {
		panic(fmt.Sprintf("registry: invalid %s %q", what, v))
	}
}
