package service

import (
	"errors"

	"connectrpc.com/connect"

	"github.com/mmynk/bailago/internal/registry"
)

var (
	errNotCreator = errors.New("only the creator may do this")
	errNotAdmin   = errors.New("only group admins may do this")
	errNotMember  = errors.New("not a member of this group")
	errNotInvitee = errors.New("invite belongs to another user")
)

// toConnectError maps a registry error kind to its Connect code.
func toConnectError(err error) *connect.Error {
	var connectErr *connect.Error
	if errors.As(err, &connectErr) {
		return connectErr
	}

	switch {
	case errors.Is(err, registry.ErrInvalidCredentials):
		return connect.NewError(connect.CodeUnauthenticated, err)
	case errors.Is(err, registry.ErrNotFound):
		return connect.NewError(connect.CodeNotFound, err)
	case errors.Is(err, registry.ErrConflict):
		return connect.NewError(connect.CodeAlreadyExists, err)
	case errors.Is(err, registry.ErrInvariantViolation),
		errors.Is(err, registry.ErrExpired),
		errors.Is(err, registry.ErrInvalidState):
		return connect.NewError(connect.CodeFailedPrecondition, err)
	case errors.Is(err, registry.ErrCapacityExceeded):
		return connect.NewError(connect.CodeResourceExhausted, err)
	case errors.Is(err, registry.ErrInvalidInput):
		return connect.NewError(connect.CodeInvalidArgument, err)
	default:
		return connect.NewError(connect.CodeInternal, err)
	}
}

func permissionDenied(err error) *connect.Error {
	return connect.NewError(connect.CodePermissionDenied, err)
}
