// Package lifecycle drives user accounts through the inactivity state
// machine: active → inactive → deactivated (deletion scheduled) → deleted.
package lifecycle

import (
	"time"

	"github.com/mmynk/bailago/internal/models"
	"github.com/mmynk/bailago/internal/registry"
)

const (
	// InactiveAfter is the idle time after which an active account is
	// marked inactive and warned.
	InactiveAfter = 90 * 24 * time.Hour

	// DeletionAfter is the idle time after which deletion is scheduled.
	DeletionAfter = 180 * 24 * time.Hour

	// GracePeriod separates the final warning from the deletion.
	GracePeriod = 7 * 24 * time.Hour
)

// Transition is one step of the state machine.
type Transition int

const (
	None Transition = iota
	MarkInactive
	ScheduleDeletion
	Delete
)

func (t Transition) String() string {
	switch t {
	case MarkInactive:
		return "inactive"
	case ScheduleDeletion:
		return "scheduled"
	case Delete:
		return "deleted"
	default:
		return "none"
	}
}

// Decide returns the transition due for an account at now. A due deletion
// wins over everything else, and an account idle past DeletionAfter is
// scheduled directly without passing through inactive.
func Decide(s registry.AccountState, now time.Time) Transition {
	if s.Status == models.StatusDeleted {
		return None
	}
	if s.ScheduledDeletionAt != nil && !now.Before(*s.ScheduledDeletionAt) {
		return Delete
	}

	idle := now.Sub(lastActive(s))
	switch {
	case idle >= DeletionAfter:
		if s.ScheduledDeletionAt == nil {
			return ScheduleDeletion
		}
	case idle >= InactiveAfter:
		if s.Status == models.StatusActive {
			return MarkInactive
		}
	}
	return None
}

// apply writes transition t into s.
func apply(t Transition, s *registry.AccountState, now time.Time) {
	switch t {
	case MarkInactive:
		s.Status = models.StatusInactive
		s.DeactivatedAt = &now
	case ScheduleDeletion:
		deletion := now.Add(GracePeriod)
		s.Status = models.StatusDeactivated
		s.ScheduledDeletionAt = &deletion
		if s.DeactivatedAt == nil {
			s.DeactivatedAt = &now
		}
	case Delete:
		s.Anonymize = true
	}
}

// reactivate records activity at now and clears any pending deactivation.
func reactivate(s *registry.AccountState, now time.Time) {
	s.Status = models.StatusActive
	s.LastActiveAt = now
	s.DeactivatedAt = nil
	s.ScheduledDeletionAt = nil
}

// lastActive falls back to the creation time for accounts that never
// recorded activity.
func lastActive(s registry.AccountState) time.Time {
	if s.LastActiveAt.IsZero() {
		return s.CreatedAt
	}
	return s.LastActiveAt
}
