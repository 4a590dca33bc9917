package lifecycle

import (
	"testing"
	"time"

	"github.com/mmynk/bailago/internal/models"
	"github.com/mmynk/bailago/internal/registry"
)

const day = 24 * time.Hour

func TestDecide(t *testing.T) {
	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	at := func(d time.Duration) *time.Time {
		v := now.Add(d)
		return &v
	}

	tests := []struct {
		name  string
		state registry.AccountState
		want  Transition
	}{
		{
			name:  "recently active",
			state: registry.AccountState{Status: models.StatusActive, LastActiveAt: now.Add(-10 * day)},
			want:  None,
		},
		{
			name:  "just under 90 days",
			state: registry.AccountState{Status: models.StatusActive, LastActiveAt: now.Add(-90*day + time.Second)},
			want:  None,
		},
		{
			name:  "exactly 90 days",
			state: registry.AccountState{Status: models.StatusActive, LastActiveAt: now.Add(-90 * day)},
			want:  MarkInactive,
		},
		{
			name:  "already inactive",
			state: registry.AccountState{Status: models.StatusInactive, LastActiveAt: now.Add(-120 * day), DeactivatedAt: at(-30 * day)},
			want:  None,
		},
		{
			name:  "inactive reaches 180 days",
			state: registry.AccountState{Status: models.StatusInactive, LastActiveAt: now.Add(-180 * day)},
			want:  ScheduleDeletion,
		},
		{
			name:  "200 days straight from active",
			state: registry.AccountState{Status: models.StatusActive, LastActiveAt: now.Add(-200 * day)},
			want:  ScheduleDeletion,
		},
		{
			name: "scheduled but not due",
			state: registry.AccountState{
				Status:              models.StatusDeactivated,
				LastActiveAt:        now.Add(-185 * day),
				ScheduledDeletionAt: at(2 * day),
			},
			want: None,
		},
		{
			name: "deletion due",
			state: registry.AccountState{
				Status:              models.StatusDeactivated,
				LastActiveAt:        now.Add(-187 * day),
				ScheduledDeletionAt: at(0),
			},
			want: Delete,
		},
		{
			name:  "deleted is terminal",
			state: registry.AccountState{Status: models.StatusDeleted, LastActiveAt: now.Add(-400 * day), ScheduledDeletionAt: at(-200 * day)},
			want:  None,
		},
		{
			name:  "falls back to createdAt",
			state: registry.AccountState{Status: models.StatusActive, CreatedAt: now.Add(-95 * day)},
			want:  MarkInactive,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Decide(tt.state, now); got != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestApplyScheduleDeletion(t *testing.T) {
	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	s := registry.AccountState{Status: models.StatusActive, LastActiveAt: now.Add(-200 * day)}

	apply(ScheduleDeletion, &s, now)

	if s.Status != models.StatusDeactivated {
		t.Errorf("status: expected deactivated, got %s", s.Status)
	}
	if s.ScheduledDeletionAt == nil || !s.ScheduledDeletionAt.Equal(now.Add(7*day)) {
		t.Errorf("scheduledDeletionAt: expected %v, got %v", now.Add(7*day), s.ScheduledDeletionAt)
	}
	if s.DeactivatedAt == nil || !s.DeactivatedAt.Equal(now) {
		t.Errorf("deactivatedAt: expected %v, got %v", now, s.DeactivatedAt)
	}
	if Decide(s, now) != None {
		t.Error("expected no further transition at the same instant")
	}
}

func TestDaysUntil(t *testing.T) {
	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	tests := []struct {
		deadline time.Time
		want     int
	}{
		{now.Add(7 * day), 7},
		{now.Add(6*day + time.Minute), 7},
		{now.Add(time.Second), 1},
		{now, 0},
		{now.Add(-day), 0},
	}
	for _, tt := range tests {
		if got := daysUntil(tt.deadline, now); got != tt.want {
			t.Errorf("daysUntil(%v): expected %d, got %d", tt.deadline.Sub(now), tt.want, got)
		}
	}
}
