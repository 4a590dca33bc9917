package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/mmynk/bailago/internal/clock"
	"github.com/mmynk/bailago/internal/models"
	"github.com/mmynk/bailago/internal/notify"
	"github.com/mmynk/bailago/internal/registry"
)

// Users is the part of the user registry the manager needs.
type Users interface {
	IDs() []string
	Get(id string) (models.UserView, error)
	UpdateAccountState(id string, fn func(*registry.AccountState) error) (models.UserView, error)
}

var _ Users = (*registry.UserRegistry)(nil)

// Metrics receives lifecycle measurements. internal/metrics implements it.
type Metrics interface {
	IncTransition(transition string)
	ObserveSweep(d time.Duration, failures int)
}

// Result summarizes one sweep.
type Result struct {
	// Deactivated counts accounts marked inactive.
	Deactivated int `json:"deactivatedCount"`

	// Scheduled counts accounts whose deletion was scheduled.
	Scheduled int `json:"scheduledCount"`

	Deleted int `json:"deletedCount"`

	// WarningsSent counts inactivity and final deletion warnings.
	WarningsSent int `json:"warningsSent"`

	Failures []Failure `json:"failures,omitempty"`
}

// Failure is a user the sweep could not process.
type Failure struct {
	UserID string `json:"userId"`
	Err    error  `json:"-"`
}

// Status is the inactivity status of one account.
type Status struct {
	Status              models.AccountStatus `json:"status"`
	LastActiveAt        time.Time            `json:"lastActiveAt"`
	DeactivatedAt       *time.Time           `json:"deactivatedAt,omitempty"`
	ScheduledDeletionAt *time.Time           `json:"scheduledDeletionAt,omitempty"`

	// DaysUntilDeletion is set when deletion is scheduled, rounded up.
	DaysUntilDeletion *int `json:"daysUntilDeletion,omitempty"`
}

// Manager owns the account inactivity state machine.
type Manager struct {
	users    Users
	clock    clock.Clock
	notifier notify.Dispatcher
	metrics  Metrics
	logger   *slog.Logger
}

// NewManager creates a Manager. deps supplies the clock, notifier and
// logger; metrics may be nil.
func NewManager(users Users, metrics Metrics, deps registry.Deps) *Manager {
	m := &Manager{
		users:    users,
		clock:    deps.Clock,
		notifier: deps.Notifier,
		metrics:  metrics,
		logger:   deps.Logger,
	}
	if m.clock == nil {
		m.clock = clock.System{}
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	return m
}

// RecordActivity marks the user active now and cancels any pending
// deactivation or deletion. Deleted accounts are left untouched and
// return registry.ErrAccountDeleted.
func (m *Manager) RecordActivity(userID string) error {
	_, err := m.touch(userID)
	return err
}

// ReactivateAccount is the user-initiated form of RecordActivity.
func (m *Manager) ReactivateAccount(userID string) (models.UserView, error) {
	view, err := m.touch(userID)
	if err != nil {
		return models.UserView{}, err
	}
	m.logger.Info("Account reactivated", "user_id", userID)
	return view, nil
}

func (m *Manager) touch(userID string) (models.UserView, error) {
	now := m.clock.Now()
	var wasDormant bool
	view, err := m.users.UpdateAccountState(userID, func(s *registry.AccountState) error {
		if s.Status == models.StatusDeleted {
			return registry.ErrAccountDeleted
		}
		wasDormant = s.Status != models.StatusActive || s.ScheduledDeletionAt != nil
		reactivate(s, now)
		return nil
	})
	if err != nil {
		return models.UserView{}, err
	}
	if wasDormant {
		m.incTransition("reactivated")
	}
	return view, nil
}

// GetInactivityStatus reports where the account stands in the state
// machine.
func (m *Manager) GetInactivityStatus(userID string) (Status, error) {
	u, err := m.users.Get(userID)
	if err != nil {
		return Status{}, err
	}
	st := Status{
		Status:              u.Status,
		LastActiveAt:        u.LastActiveAt,
		DeactivatedAt:       u.DeactivatedAt,
		ScheduledDeletionAt: u.ScheduledDeletionAt,
	}
	if u.ScheduledDeletionAt != nil && u.Status != models.StatusDeleted {
		days := daysUntil(*u.ScheduledDeletionAt, m.clock.Now())
		st.DaysUntilDeletion = &days
	}
	return st, nil
}

// CheckInactiveAccounts evaluates every non-deleted account once. Each
// decision is re-made under the registry lock, so activity recorded while
// the sweep runs wins. A failure on one account is recorded and the sweep
// moves on. Running it twice at the same instant changes nothing the
// second time.
func (m *Manager) CheckInactiveAccounts(ctx context.Context) Result {
	start := time.Now()
	now := m.clock.Now()

	var res Result
	for _, id := range m.users.IDs() {
		t, view, err := m.sweepOne(id, now)
		if err != nil {
			res.Failures = append(res.Failures, Failure{UserID: id, Err: err})
			m.logger.Error("Inactivity check failed", "user_id", id, "error", err)
			continue
		}

		switch t {
		case MarkInactive:
			res.Deactivated++
			res.WarningsSent++
			notify.Send(ctx, m.notifier, m.logger, notify.Notification{
				Kind:        notify.KindInactivityWarning,
				RecipientID: id,
				Email:       view.Email,
				Payload:     map[string]string{"displayName": view.DisplayName},
			})
		case ScheduleDeletion:
			res.Scheduled++
			res.WarningsSent++
			notify.Send(ctx, m.notifier, m.logger, notify.Notification{
				Kind:        notify.KindDeletionWarning,
				RecipientID: id,
				Email:       view.Email,
				Payload: map[string]string{
					"displayName":         view.DisplayName,
					"scheduledDeletionAt": view.ScheduledDeletionAt.Format(time.RFC3339),
				},
			})
		case Delete:
			res.Deleted++
			m.logger.Info("Account deleted for inactivity", "user_id", id)
		default:
			continue
		}
		m.incTransition(t.String())
	}

	if m.metrics != nil {
		m.metrics.ObserveSweep(time.Since(start), len(res.Failures))
	}
	m.logger.Info("Inactivity check completed",
		"deactivated", res.Deactivated,
		"scheduled", res.Scheduled,
		"deleted", res.Deleted,
		"warnings_sent", res.WarningsSent,
		"failures", len(res.Failures),
	)
	return res
}

// sweepOne applies the due transition for one account. A panic while
// processing the account is reported as its failure.
func (m *Manager) sweepOne(id string, now time.Time) (t Transition, view models.UserView, err error) {
	defer func() {
		if r := recover(); r != nil {
			t, err = None, fmt.Errorf("panic: %v", r)
		}
	}()

	view, err = m.users.UpdateAccountState(id, func(s *registry.AccountState) error {
		t = Decide(*s, now)
		apply(t, s, now)
		return nil
	})
	return t, view, err
}

// Run sweeps once immediately and then every interval until ctx is done.
// after, when non-nil, is called with each sweep's result.
func (m *Manager) Run(ctx context.Context, interval time.Duration, after func(context.Context, Result)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		res := m.CheckInactiveAccounts(ctx)
		if after != nil {
			after(ctx, res)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (m *Manager) incTransition(name string) {
	if m.metrics != nil {
		m.metrics.IncTransition(name)
	}
}

// daysUntil rounds the remaining time up to whole days, never below zero.
func daysUntil(deadline, now time.Time) int {
	d := deadline.Sub(now)
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(d.Hours() / 24))
}
