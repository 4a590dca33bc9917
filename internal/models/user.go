package models

import (
	"slices"
	"time"
)

// User represents a registered account as stored by the user registry.
//
// User holds secrets (PasswordHash and the one-time tokens) and never leaves
// the registry boundary; callers get a UserView instead.
type User struct {
	// ID is the unique identifier for the user (UUID format).
	ID string `json:"id"`

	// Email is unique among non-deleted users. Stored trimmed and lowercased.
	Email string `json:"email"`

	// Username is unique among non-deleted users.
	Username string `json:"username"`

	// Nickname is optional; when set it is unique among non-deleted users.
	Nickname string `json:"nickname,omitempty"`

	FirstName   string `json:"firstName,omitempty"`
	LastName    string `json:"lastName,omitempty"`
	DisplayName string `json:"displayName"`
	AvatarURL   string `json:"avatarUrl,omitempty"`
	Bio         string `json:"bio,omitempty"`

	// FavoriteDances is a set: no duplicates, order of first selection.
	FavoriteDances []DanceType `json:"favoriteDances,omitempty"`

	// PasswordHash is empty for OAuth-only accounts.
	PasswordHash string `json:"passwordHash,omitempty"`

	// Provider and ProviderID identify the sign-in method. ProviderID is the
	// id assigned by Google/Instagram; empty for local accounts.
	Provider   AuthProvider `json:"provider"`
	ProviderID string       `json:"providerId,omitempty"`

	EmailVerified            bool       `json:"emailVerified"`
	EmailVerificationToken   string     `json:"emailVerificationToken,omitempty"`
	EmailVerificationExpires *time.Time `json:"emailVerificationExpires,omitempty"`
	PasswordResetToken       string     `json:"passwordResetToken,omitempty"`
	PasswordResetExpires     *time.Time `json:"passwordResetExpires,omitempty"`

	PushToken   string `json:"pushToken,omitempty"`
	PushEnabled bool   `json:"pushEnabled"`

	// Status is driven by the inactivity state machine.
	Status AccountStatus `json:"status"`

	// LastActiveAt is refreshed on every authenticated action.
	LastActiveAt time.Time `json:"lastActiveAt"`

	// DeactivatedAt is set when the account first goes dormant.
	DeactivatedAt *time.Time `json:"deactivatedAt,omitempty"`

	// ScheduledDeletionAt is set when the final warning goes out.
	ScheduledDeletionAt *time.Time `json:"scheduledDeletionAt,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// UserView is the public projection of a User. It has no credential or
// token fields by construction.
type UserView struct {
	ID                  string        `json:"id"`
	Email               string        `json:"email"`
	Username            string        `json:"username"`
	Nickname            string        `json:"nickname,omitempty"`
	FirstName           string        `json:"firstName,omitempty"`
	LastName            string        `json:"lastName,omitempty"`
	DisplayName         string        `json:"displayName"`
	AvatarURL           string        `json:"avatarUrl,omitempty"`
	Bio                 string        `json:"bio,omitempty"`
	FavoriteDances      []DanceType   `json:"favoriteDances"`
	Provider            AuthProvider  `json:"provider"`
	EmailVerified       bool          `json:"emailVerified"`
	PushEnabled         bool          `json:"pushEnabled"`
	Status              AccountStatus `json:"status"`
	LastActiveAt        time.Time     `json:"lastActiveAt"`
	DeactivatedAt       *time.Time    `json:"deactivatedAt,omitempty"`
	ScheduledDeletionAt *time.Time    `json:"scheduledDeletionAt,omitempty"`
	CreatedAt           time.Time     `json:"createdAt"`
	UpdatedAt           time.Time     `json:"updatedAt"`
}

// UserSnapshot is the denormalized copy of a user's public profile embedded
// in participants, DJ requests, group members and event creators.
type UserSnapshot struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"displayName"`
	AvatarURL   string `json:"avatarUrl,omitempty"`
}

// View projects the user to its public shape.
func (u User) View() UserView {
	favorites := slices.Clone(u.FavoriteDances)
	if favorites == nil {
		favorites = []DanceType{}
	}
	return UserView{
		ID:                  u.ID,
		Email:               u.Email,
		Username:            u.Username,
		Nickname:            u.Nickname,
		FirstName:           u.FirstName,
		LastName:            u.LastName,
		DisplayName:         u.DisplayName,
		AvatarURL:           u.AvatarURL,
		Bio:                 u.Bio,
		FavoriteDances:      favorites,
		Provider:            u.Provider,
		EmailVerified:       u.EmailVerified,
		PushEnabled:         u.PushEnabled,
		Status:              u.Status,
		LastActiveAt:        u.LastActiveAt,
		DeactivatedAt:       cloneTime(u.DeactivatedAt),
		ScheduledDeletionAt: cloneTime(u.ScheduledDeletionAt),
		CreatedAt:           u.CreatedAt,
		UpdatedAt:           u.UpdatedAt,
	}
}

// Snapshot copies the fields embedded in other entities.
func (u User) Snapshot() UserSnapshot {
	return UserSnapshot{ID: u.ID, Username: u.Username, DisplayName: u.DisplayName, AvatarURL: u.AvatarURL}
}

// Snapshot copies the fields embedded in other entities.
func (v UserView) Snapshot() UserSnapshot {
	return UserSnapshot{ID: v.ID, Username: v.Username, DisplayName: v.DisplayName, AvatarURL: v.AvatarURL}
}

// Clone returns a deep copy.
func (u User) Clone() User {
	u.FavoriteDances = slices.Clone(u.FavoriteDances)
	u.EmailVerificationExpires = cloneTime(u.EmailVerificationExpires)
	u.PasswordResetExpires = cloneTime(u.PasswordResetExpires)
	u.DeactivatedAt = cloneTime(u.DeactivatedAt)
	u.ScheduledDeletionAt = cloneTime(u.ScheduledDeletionAt)
	return u
}

// IsDeleted reports whether the account has been anonymized.
func (u User) IsDeleted() bool { return u.Status == StatusDeleted }

// CreateUserInput is the local registration payload.
type CreateUserInput struct {
	Email       string `json:"email" validate:"required,email"`
	Password    string `json:"password" validate:"required,min=6,max=72"`
	Username    string `json:"username" validate:"required,min=3,max=30"`
	Nickname    string `json:"nickname,omitempty" validate:"omitempty,min=3,max=30"`
	FirstName   string `json:"firstName,omitempty" validate:"omitempty,max=50"`
	LastName    string `json:"lastName,omitempty" validate:"omitempty,max=50"`
	DisplayName string `json:"displayName,omitempty" validate:"omitempty,min=2,max=50"`
}

// OAuthInput is the profile returned by an OAuth provider after token exchange.
type OAuthInput struct {
	Provider   AuthProvider `json:"provider" validate:"required,oneof=google instagram"`
	ProviderID string       `json:"providerId" validate:"required"`
	Email      string       `json:"email" validate:"required,email"`
	Username   string       `json:"username,omitempty" validate:"omitempty,min=3,max=30"`
	FirstName  string       `json:"firstName,omitempty" validate:"omitempty,max=50"`
	LastName   string       `json:"lastName,omitempty" validate:"omitempty,max=50"`
	AvatarURL  string       `json:"avatarUrl,omitempty" validate:"omitempty,url"`
}

// UserUpdate is a partial profile update. Nil fields are left unchanged;
// a nil FavoriteDances leaves favorites unchanged, an empty one clears them.
type UserUpdate struct {
	DisplayName    *string     `json:"displayName,omitempty" validate:"omitempty,min=2,max=50"`
	Nickname       *string     `json:"nickname,omitempty" validate:"omitempty,min=3,max=30"`
	FirstName      *string     `json:"firstName,omitempty" validate:"omitempty,max=50"`
	LastName       *string     `json:"lastName,omitempty" validate:"omitempty,max=50"`
	Bio            *string     `json:"bio,omitempty" validate:"omitempty,max=200"`
	AvatarURL      *string     `json:"avatarUrl,omitempty" validate:"omitempty,url"`
	FavoriteDances []DanceType `json:"favoriteDances,omitempty" validate:"omitempty,max=12,dive,dancetype"`
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
