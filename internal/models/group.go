package models

import (
	"slices"
	"time"
)

// Group is a set of users with roles. While a group exists it has at least
// one admin; a group with no members is deleted rather than kept empty.
type Group struct {
	// ID is the unique identifier for the group (UUID format).
	ID string `json:"id"`

	// Name is the display name of the group (e.g., "Salsa Crew Milano").
	Name string `json:"name"`

	Description string `json:"description,omitempty"`
	ImageURL    string `json:"imageUrl,omitempty"`

	// CreatorID is the user who created the group; only they may delete it.
	CreatorID string `json:"creatorId"`

	// Members are kept in join order.
	Members []GroupMember `json:"members"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// GroupMember is one user's membership in a group.
type GroupMember struct {
	UserID   string       `json:"userId"`
	User     UserSnapshot `json:"user"`
	Role     GroupRole    `json:"role"`
	JoinedAt time.Time    `json:"joinedAt"`
}

// Clone returns a deep copy.
func (g Group) Clone() Group {
	g.Members = slices.Clone(g.Members)
	return g
}

// Member returns the membership of userID.
func (g Group) Member(userID string) (GroupMember, bool) {
	i := slices.IndexFunc(g.Members, func(m GroupMember) bool { return m.UserID == userID })
	if i < 0 {
		return GroupMember{}, false
	}
	return g.Members[i], true
}

// AdminCount returns the number of members holding the admin role.
func (g Group) AdminCount() int {
	n := 0
	for _, m := range g.Members {
		if m.Role == RoleAdmin {
			n++
		}
	}
	return n
}

// CreateGroupInput is the group creation payload.
type CreateGroupInput struct {
	Name        string `json:"name" validate:"required,min=2,max=60"`
	Description string `json:"description,omitempty" validate:"max=500"`
	ImageURL    string `json:"imageUrl,omitempty" validate:"omitempty,url"`
}

// UpdateGroupInput is a partial group update. Nil fields are unchanged.
type UpdateGroupInput struct {
	Name        *string `json:"name,omitempty" validate:"omitempty,min=2,max=60"`
	Description *string `json:"description,omitempty" validate:"omitempty,max=500"`
	ImageURL    *string `json:"imageUrl,omitempty" validate:"omitempty,url"`
}

// GroupInvite invites a user into a group. At most one pending invite exists
// per (GroupID, InvitedUserID).
type GroupInvite struct {
	ID              string       `json:"id"`
	GroupID         string       `json:"groupId"`
	InvitedUserID   string       `json:"invitedUserId"`
	InvitedByUserID string       `json:"invitedByUserId"`
	Status          InviteStatus `json:"status"`
	CreatedAt       time.Time    `json:"createdAt"`
	ExpiresAt       time.Time    `json:"expiresAt"`
}

// Expired reports whether the invite can no longer be accepted at now.
func (i GroupInvite) Expired(now time.Time) bool {
	return !now.Before(i.ExpiresAt)
}
