package registry

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mmynk/bailago/internal/clock"
	"github.com/mmynk/bailago/internal/models"
	"github.com/mmynk/bailago/internal/storage"
)

// InviteTTL is how long a group invite can be accepted.
const InviteTTL = 7 * 24 * time.Hour

// InviteRegistry owns GroupInvite entities. It never touches group
// membership: after Accept the caller adds the member to the group.
type InviteRegistry struct {
	mu      sync.RWMutex
	invites *storage.EntityStore[models.GroupInvite]

	clock  clock.Clock
	logger *slog.Logger
}

// NewInviteRegistry creates an empty InviteRegistry.
func NewInviteRegistry(deps Deps) *InviteRegistry {
	deps = deps.withDefaults()
	return &InviteRegistry{
		invites: storage.NewEntityStore[models.GroupInvite](),
		clock:   deps.Clock,
		logger:  deps.Logger,
	}
}

// Create invites invitedUserID into the group. When a pending, unexpired
// invite already exists for the pair it is returned unchanged and created
// is false. A pending invite that has expired is closed as rejected and
// replaced.
func (r *InviteRegistry) Create(groupID, invitedUserID, invitedByUserID string) (invite models.GroupInvite, created bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock.Now()
	if existing, ok := r.invites.Find(func(i models.GroupInvite) bool {
		return i.GroupID == groupID && i.InvitedUserID == invitedUserID && i.Status == models.InvitePending
	}); ok {
		if !existing.Expired(now) {
			return existing, false
		}
		existing.Status = models.InviteRejected
		r.invites.Put(existing.ID, existing)
	}

	invite = models.GroupInvite{
		ID:              uuid.NewString(),
		GroupID:         groupID,
		InvitedUserID:   invitedUserID,
		InvitedByUserID: invitedByUserID,
		Status:          models.InvitePending,
		CreatedAt:       now,
		ExpiresAt:       now.Add(InviteTTL),
	}
	r.invites.Put(invite.ID, invite)
	r.logger.Info("Group invite created", "invite_id", invite.ID, "group_id", groupID, "invited_user_id", invitedUserID)
	return invite, true
}

// FindByID returns the invite with the given id.
func (r *InviteRegistry) FindByID(id string) (models.GroupInvite, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i, ok := r.invites.Get(id)
	if !ok {
		return models.GroupInvite{}, ErrInviteNotFound
	}
	return i, nil
}

// FindPendingForUser returns the pending, unexpired invites addressed to
// userID.
func (r *InviteRegistry) FindPendingForUser(userID string) []models.GroupInvite {
	now := r.clock.Now()
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.invites.Filter(func(i models.GroupInvite) bool {
		return i.InvitedUserID == userID && i.Status == models.InvitePending && !i.Expired(now)
	})
}

// FindByGroup returns every invite of the group, whatever its status.
func (r *InviteRegistry) FindByGroup(groupID string) []models.GroupInvite {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.invites.Filter(func(i models.GroupInvite) bool { return i.GroupID == groupID })
}

// Accept marks a pending, unexpired invite accepted.
func (r *InviteRegistry) Accept(id string) (models.GroupInvite, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	i, ok := r.invites.Get(id)
	if !ok {
		return models.GroupInvite{}, ErrInviteNotFound
	}
	if i.Status != models.InvitePending {
		return models.GroupInvite{}, ErrInviteNotPending
	}
	if i.Expired(r.clock.Now()) {
		return models.GroupInvite{}, ErrInviteExpired
	}
	i.Status = models.InviteAccepted
	r.invites.Put(id, i)
	return i, nil
}

// Reject marks an invite rejected. Pending invites are rejected even when
// expired; rejecting twice is a no-op; an accepted invite cannot be
// rejected.
func (r *InviteRegistry) Reject(id string) (models.GroupInvite, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	i, ok := r.invites.Get(id)
	if !ok {
		return models.GroupInvite{}, ErrInviteNotFound
	}
	switch i.Status {
	case models.InviteRejected:
		return i, nil
	case models.InviteAccepted:
		return models.GroupInvite{}, ErrInviteNotPending
	}
	i.Status = models.InviteRejected
	r.invites.Put(id, i)
	return i, nil
}

// DeleteByGroup removes every invite of the group and returns how many
// were removed.
func (r *InviteRegistry) DeleteByGroup(groupID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.invites.DeleteFunc(func(i models.GroupInvite) bool { return i.GroupID == groupID })
}

// Len returns the number of stored invites.
func (r *InviteRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.invites.Len()
}

// Snapshot encodes every invite for persistence.
func (r *InviteRegistry) Snapshot() ([]storage.Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return snapshotRecords(r.invites)
}

// Restore replaces the registry contents with records.
func (r *InviteRegistry) Restore(records []storage.Record) error {
	invites, err := restoreRecords[models.GroupInvite](records)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.invites = invites
	r.mu.Unlock()
	return nil
}
