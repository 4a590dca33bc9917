package models

import "slices"

// DanceType is the dance style of an event or a user's favorite.
type DanceType string

const (
	DanceSalsa     DanceType = "salsa"
	DanceBachata   DanceType = "bachata"
	DanceKizomba   DanceType = "kizomba"
	DanceReggaeton DanceType = "reggaeton"
	DanceMerengue  DanceType = "merengue"
	DanceTango     DanceType = "tango"
	DanceSwing     DanceType = "swing"
	DanceHipHop    DanceType = "hiphop"
	DanceHouse     DanceType = "house"
	DanceTechno    DanceType = "techno"
	DanceLatinMix  DanceType = "latin_mix"
	DanceOther     DanceType = "other"
)

// DanceTypes lists every known dance type.
var DanceTypes = []DanceType{
	DanceSalsa, DanceBachata, DanceKizomba, DanceReggaeton, DanceMerengue, DanceTango,
	DanceSwing, DanceHipHop, DanceHouse, DanceTechno, DanceLatinMix, DanceOther,
}

func (d DanceType) Valid() bool { return slices.Contains(DanceTypes, d) }

// AuthProvider identifies how an account signs in.
type AuthProvider string

const (
	ProviderLocal     AuthProvider = "local"
	ProviderGoogle    AuthProvider = "google"
	ProviderInstagram AuthProvider = "instagram"
)

func (p AuthProvider) Valid() bool {
	return p == ProviderLocal || p == ProviderGoogle || p == ProviderInstagram
}

// AccountStatus is the position of a user in the inactivity state machine.
type AccountStatus string

const (
	StatusActive      AccountStatus = "active"
	StatusInactive    AccountStatus = "inactive"
	StatusDeactivated AccountStatus = "deactivated"
	StatusDeleted     AccountStatus = "deleted"
)

// Visibility controls which viewers may see an event.
type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
	VisibilityGroup   Visibility = "group"
)

func (v Visibility) Valid() bool {
	return v == VisibilityPublic || v == VisibilityPrivate || v == VisibilityGroup
}

// DjMode controls whether an event accepts DJ candidacies.
type DjMode string

const (
	// DjModeOpen lets anyone apply as DJ.
	DjModeOpen DjMode = "open"
	// DjModeAssigned has a pre-assigned DJ; others may still apply.
	DjModeAssigned DjMode = "assigned"
	// DjModeNone means the event has no DJ.
	DjModeNone DjMode = "none"
)

func (m DjMode) Valid() bool {
	return m == DjModeOpen || m == DjModeAssigned || m == DjModeNone
}

// RequestStatus is the state of a DJ request.
type RequestStatus string

const (
	RequestPending  RequestStatus = "pending"
	RequestApproved RequestStatus = "approved"
	RequestRejected RequestStatus = "rejected"
)

// GroupRole is a member's role inside a group.
type GroupRole string

const (
	RoleAdmin  GroupRole = "admin"
	RoleMember GroupRole = "member"
	RoleDJ     GroupRole = "dj"
)

func (r GroupRole) Valid() bool {
	return r == RoleAdmin || r == RoleMember || r == RoleDJ
}

// InviteStatus is the state of a group invite.
type InviteStatus string

const (
	InvitePending  InviteStatus = "pending"
	InviteAccepted InviteStatus = "accepted"
	InviteRejected InviteStatus = "rejected"
)
