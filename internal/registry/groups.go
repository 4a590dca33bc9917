package registry

import (
	"errors"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/mmynk/bailago/internal/clock"
	"github.com/mmynk/bailago/internal/models"
	"github.com/mmynk/bailago/internal/storage"
)

// GroupScoped is a registry holding entities that belong to a group.
// Group deletion cascades into it.
type GroupScoped interface {
	DeleteByGroup(groupID string) int
}

var (
	_ GroupScoped = (*EventRegistry)(nil)
	_ GroupScoped = (*InviteRegistry)(nil)
)

// CascadeResult reports what a group deletion removed besides the group.
type CascadeResult struct {
	Events  int
	Invites int
}

// GroupRegistry owns Group entities and the admin invariant: while a group
// exists at least one member is an admin.
type GroupRegistry struct {
	mu     sync.RWMutex
	groups *storage.EntityStore[models.Group]

	events  GroupScoped
	invites GroupScoped

	clock  clock.Clock
	logger *slog.Logger
}

// NewGroupRegistry creates an empty GroupRegistry. Delete cascades into
// events and invites; either may be nil.
func NewGroupRegistry(events, invites GroupScoped, deps Deps) *GroupRegistry {
	deps = deps.withDefaults()
	return &GroupRegistry{
		groups:  storage.NewEntityStore[models.Group](),
		events:  events,
		invites: invites,
		clock:   deps.Clock,
		logger:  deps.Logger,
	}
}

// Create stores a new group with creator as its only member and admin.
func (r *GroupRegistry) Create(in models.CreateGroupInput, creator models.UserSnapshot) models.Group {
	now := r.clock.Now()
	group := models.Group{
		ID:          uuid.NewString(),
		Name:        strings.TrimSpace(in.Name),
		Description: strings.TrimSpace(in.Description),
		ImageURL:    in.ImageURL,
		CreatorID:   creator.ID,
		Members: []models.GroupMember{{
			UserID:   creator.ID,
			User:     creator,
			Role:     models.RoleAdmin,
			JoinedAt: now,
		}},
		CreatedAt: now,
		UpdatedAt: now,
	}

	r.mu.Lock()
	r.groups.Put(group.ID, group)
	r.mu.Unlock()

	r.logger.Info("Group created", "group_id", group.ID, "creator_id", creator.ID)
	return group.Clone()
}

// FindByID returns the group with the given id.
func (r *GroupRegistry) FindByID(id string) (models.Group, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.groups.Get(id)
	if !ok {
		return models.Group{}, ErrGroupNotFound
	}
	return g.Clone(), nil
}

// FindByMember returns the groups userID belongs to, in creation order.
func (r *GroupRegistry) FindByMember(userID string) []models.Group {
	r.mu.RLock()
	defer r.mu.RUnlock()
	groups := r.groups.Filter(func(g models.Group) bool {
		_, ok := g.Member(userID)
		return ok
	})
	for i := range groups {
		groups[i] = groups[i].Clone()
	}
	return groups
}

// GroupIDsFor returns the ids of the groups userID belongs to.
func (r *GroupRegistry) GroupIDsFor(userID string) []string {
	groups := r.FindByMember(userID)
	ids := make([]string, len(groups))
	for i, g := range groups {
		ids[i] = g.ID
	}
	return ids
}

// IsAdmin reports whether userID is an admin of the group.
func (r *GroupRegistry) IsAdmin(groupID, userID string) bool {
	m, ok := r.member(groupID, userID)
	return ok && m.Role == models.RoleAdmin
}

// IsMember reports whether userID belongs to the group.
func (r *GroupRegistry) IsMember(groupID, userID string) bool {
	_, ok := r.member(groupID, userID)
	return ok
}

// Update merges the non-nil fields of in into the group.
func (r *GroupRegistry) Update(id string, in models.UpdateGroupInput) (models.Group, error) {
	return r.mutate(id, func(g *models.Group) error {
		if in.Name != nil {
			g.Name = strings.TrimSpace(*in.Name)
		}
		if in.Description != nil {
			g.Description = strings.TrimSpace(*in.Description)
		}
		if in.ImageURL != nil {
			g.ImageURL = *in.ImageURL
		}
		return nil
	})
}

// AddMember adds user with role. An existing member is left as is and
// added is false. An empty role means member.
func (r *GroupRegistry) AddMember(groupID string, user models.UserSnapshot, role models.GroupRole) (group models.Group, added bool, err error) {
	if role == "" {
		role = models.RoleMember
	}
	mustValid(role.Valid(), "group role", role)

	group, err = r.mutate(groupID, func(g *models.Group) error {
		if _, ok := g.Member(user.ID); ok {
			return errUnchanged
		}
		g.Members = append(g.Members, models.GroupMember{
			UserID:   user.ID,
			User:     user,
			Role:     role,
			JoinedAt: r.clock.Now(),
		})
		added = true
		return nil
	})
	return group, added, err
}

// RemoveMember removes userID from the group. Removing the last admin
// fails with ErrLastAdmin; promote a replacement first.
func (r *GroupRegistry) RemoveMember(groupID, userID string) (models.Group, error) {
	return r.mutate(groupID, func(g *models.Group) error {
		m, ok := g.Member(userID)
		if !ok {
			return ErrMemberNotFound
		}
		if m.Role == models.RoleAdmin && g.AdminCount() == 1 {
			return ErrLastAdmin
		}
		removeMember(g, userID)
		return nil
	})
}

// UpdateMemberRole changes userID's role. Demoting the last admin fails
// with ErrLastAdmin.
func (r *GroupRegistry) UpdateMemberRole(groupID, userID string, role models.GroupRole) (models.Group, error) {
	mustValid(role.Valid(), "group role", role)

	return r.mutate(groupID, func(g *models.Group) error {
		i := slices.IndexFunc(g.Members, func(m models.GroupMember) bool { return m.UserID == userID })
		if i < 0 {
			return ErrMemberNotFound
		}
		current := g.Members[i].Role
		if current == role {
			return errUnchanged
		}
		if current == models.RoleAdmin && g.AdminCount() == 1 {
			return ErrLastAdmin
		}
		g.Members[i].Role = role
		return nil
	})
}

// Leave removes userID from the group in one step, promoting newAdminID
// first when given. Only an admin may name a successor. The only member cannot leave (ErrSoleMember); the last
// admin must name a member as successor. When the creator leaves, the
// successor (or else the first remaining admin) becomes the creator.
func (r *GroupRegistry) Leave(groupID, userID, newAdminID string) (models.Group, error) {
	return r.mutate(groupID, func(g *models.Group) error {
		m, ok := g.Member(userID)
		if !ok {
			return ErrMemberNotFound
		}
		if len(g.Members) == 1 {
			return ErrSoleMember
		}

		if newAdminID != "" {
			if m.Role != models.RoleAdmin {
				return ErrSuccessorNotAllowed
			}
			if newAdminID == userID {
				return ErrSuccessorNotMember
			}
			i := slices.IndexFunc(g.Members, func(m models.GroupMember) bool { return m.UserID == newAdminID })
			if i < 0 {
				return ErrSuccessorNotMember
			}
			g.Members[i].Role = models.RoleAdmin
		}
		if m.Role == models.RoleAdmin && g.AdminCount() == 1 {
			return ErrLastAdmin
		}

		removeMember(g, userID)
		if g.CreatorID == userID {
			g.CreatorID = newAdminID
			if g.CreatorID == "" {
				i := slices.IndexFunc(g.Members, func(m models.GroupMember) bool { return m.Role == models.RoleAdmin })
				g.CreatorID = g.Members[i].UserID
			}
		}
		return nil
	})
}

// Delete removes every event and invite of the group, then the group.
// Each step is atomic on its own registry; there is no transaction across
// them.
func (r *GroupRegistry) Delete(groupID string) (CascadeResult, error) {
	if _, err := r.FindByID(groupID); err != nil {
		return CascadeResult{}, err
	}

	var res CascadeResult
	if r.events != nil {
		res.Events = r.events.DeleteByGroup(groupID)
	}
	if r.invites != nil {
		res.Invites = r.invites.DeleteByGroup(groupID)
	}

	r.mu.Lock()
	deleted := r.groups.Delete(groupID)
	r.mu.Unlock()
	if !deleted {
		return res, ErrGroupNotFound
	}

	r.logger.Info("Group deleted", "group_id", groupID, "events", res.Events, "invites", res.Invites)
	return res, nil
}

// Len returns the number of stored groups.
func (r *GroupRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.groups.Len()
}

// Snapshot encodes every group for persistence.
func (r *GroupRegistry) Snapshot() ([]storage.Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return snapshotRecords(r.groups)
}

// Restore replaces the registry contents with records.
func (r *GroupRegistry) Restore(records []storage.Record) error {
	groups, err := restoreRecords[models.Group](records)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.groups = groups
	r.mu.Unlock()
	return nil
}

func (r *GroupRegistry) member(groupID, userID string) (models.GroupMember, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.groups.Get(groupID)
	if !ok {
		return models.GroupMember{}, false
	}
	return g.Member(userID)
}

// mutate applies fn to a copy of the group and writes it back as one step.
func (r *GroupRegistry) mutate(id string, fn func(*models.Group) error) (models.Group, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.groups.Get(id)
	if !ok {
		return models.Group{}, ErrGroupNotFound
	}
	g := stored.Clone()
	if err := fn(&g); err != nil {
		if errors.Is(err, errUnchanged) {
			return stored.Clone(), nil
		}
		return models.Group{}, err
	}
	g.UpdatedAt = r.clock.Now()
	r.groups.Put(id, g)
	return g.Clone(), nil
}

func removeMember(g *models.Group, userID string) {
	g.Members = slices.DeleteFunc(g.Members, func(m models.GroupMember) bool { return m.UserID == userID })
}
