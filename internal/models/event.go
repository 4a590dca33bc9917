package models

import (
	"slices"
	"time"
)

// Location is owned by exactly one event. It is copied in at creation with a
// fresh ID and never shared between events.
type Location struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Address   string   `json:"address,omitempty"`
	City      string   `json:"city"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
}

// Participant is one attendee of an event.
type Participant struct {
	UserID   string       `json:"userId"`
	User     UserSnapshot `json:"user"`
	JoinedAt time.Time    `json:"joinedAt"`
}

// DjRequest is a candidacy to DJ an event. Requests are never removed;
// rejected and approved ones stay for audit.
type DjRequest struct {
	UserID      string        `json:"userId"`
	User        UserSnapshot  `json:"user"`
	Message     string        `json:"message,omitempty"`
	RequestedAt time.Time     `json:"requestedAt"`
	Status      RequestStatus `json:"status"`
}

// DanceEvent represents a dance meetup.
type DanceEvent struct {
	// ID is the unique identifier for the event (UUID format).
	ID string `json:"id"`

	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	DanceType   DanceType `json:"danceType"`
	Location    Location  `json:"location"`

	// Date is the day of the event; StartTime and EndTime are "HH:MM".
	Date      time.Time `json:"date"`
	StartTime string    `json:"startTime"`
	EndTime   string    `json:"endTime,omitempty"`

	// CreatorID references the creating user; Creator is a snapshot.
	CreatorID string       `json:"creatorId"`
	Creator   UserSnapshot `json:"creator"`

	Visibility Visibility `json:"visibility"`

	// GroupID is set exactly when Visibility is group.
	GroupID string `json:"groupId,omitempty"`

	DjMode    DjMode `json:"djMode"`
	DjName    string `json:"djName,omitempty"`
	DjContact string `json:"djContact,omitempty"`

	// DjUserID is set when a registered user is the DJ.
	DjUserID   string      `json:"djUserId,omitempty"`
	DjRequests []DjRequest `json:"djRequests"`

	// Participants are kept in join order.
	Participants []Participant `json:"participants"`

	// ParticipantCount always equals the stored roster size, also when a
	// response hides the names.
	ParticipantCount int `json:"participantCount"`

	// MaxParticipants is the capacity ceiling; nil means unlimited.
	MaxParticipants *int `json:"maxParticipants,omitempty"`

	ShowParticipantNames bool   `json:"showParticipantNames"`
	ImageURL             string `json:"imageUrl,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Clone returns a deep copy.
func (e DanceEvent) Clone() DanceEvent {
	e.Location.Latitude = cloneFloat(e.Location.Latitude)
	e.Location.Longitude = cloneFloat(e.Location.Longitude)
	e.DjRequests = slices.Clone(e.DjRequests)
	e.Participants = slices.Clone(e.Participants)
	if e.MaxParticipants != nil {
		n := *e.MaxParticipants
		e.MaxParticipants = &n
	}
	return e
}

// HasParticipant reports whether userID attends the event.
func (e DanceEvent) HasParticipant(userID string) bool {
	return slices.ContainsFunc(e.Participants, func(p Participant) bool { return p.UserID == userID })
}

// IsFull reports whether the capacity ceiling has been reached.
func (e DanceEvent) IsFull() bool {
	return e.MaxParticipants != nil && len(e.Participants) >= *e.MaxParticipants
}

// LocationInput is the caller-provided location; the ID is assigned on create.
type LocationInput struct {
	Name      string   `json:"name" validate:"required,max=100"`
	Address   string   `json:"address,omitempty" validate:"max=200"`
	City      string   `json:"city" validate:"required,max=100"`
	Latitude  *float64 `json:"latitude,omitempty" validate:"omitempty,gte=-90,lte=90"`
	Longitude *float64 `json:"longitude,omitempty" validate:"omitempty,gte=-180,lte=180"`
}

// CreateEventInput is the event creation payload. Visibility defaults to
// public and DjMode to open.
type CreateEventInput struct {
	Title                string        `json:"title" validate:"required,min=3,max=100"`
	Description          string        `json:"description,omitempty" validate:"max=1000"`
	DanceType            DanceType     `json:"danceType" validate:"required,dancetype"`
	Location             LocationInput `json:"location"`
	Date                 time.Time     `json:"date" validate:"required"`
	StartTime            string        `json:"startTime" validate:"required,hhmm"`
	EndTime              string        `json:"endTime,omitempty" validate:"omitempty,hhmm"`
	Visibility           Visibility    `json:"visibility,omitempty" validate:"omitempty,oneof=public private group"`
	GroupID              string        `json:"groupId,omitempty" validate:"required_if=Visibility group"`
	DjMode               DjMode        `json:"djMode,omitempty" validate:"omitempty,oneof=open assigned none"`
	DjName               string        `json:"djName,omitempty" validate:"max=100"`
	DjContact            string        `json:"djContact,omitempty" validate:"max=200"`
	DjUserID             string        `json:"djUserId,omitempty"`
	MaxParticipants      *int          `json:"maxParticipants,omitempty" validate:"omitempty,min=1,max=10000"`
	ShowParticipantNames bool          `json:"showParticipantNames"`
	ImageURL             string        `json:"imageUrl,omitempty" validate:"omitempty,url"`
}

// UpdateEventInput is a partial event update. Nil fields are unchanged.
type UpdateEventInput struct {
	Title                *string        `json:"title,omitempty" validate:"omitempty,min=3,max=100"`
	Description          *string        `json:"description,omitempty" validate:"omitempty,max=1000"`
	DanceType            *DanceType     `json:"danceType,omitempty" validate:"omitempty,dancetype"`
	Location             *LocationInput `json:"location,omitempty"`
	Date                 *time.Time     `json:"date,omitempty"`
	StartTime            *string        `json:"startTime,omitempty" validate:"omitempty,hhmm"`
	EndTime              *string        `json:"endTime,omitempty" validate:"omitempty,hhmm"`
	Visibility           *Visibility    `json:"visibility,omitempty" validate:"omitempty,oneof=public private group"`
	GroupID              *string        `json:"groupId,omitempty"`
	DjMode               *DjMode        `json:"djMode,omitempty" validate:"omitempty,oneof=open assigned none"`
	DjName               *string        `json:"djName,omitempty" validate:"omitempty,max=100"`
	DjContact            *string        `json:"djContact,omitempty" validate:"omitempty,max=200"`
	MaxParticipants      *int           `json:"maxParticipants,omitempty" validate:"omitempty,min=1,max=10000"`
	ShowParticipantNames *bool          `json:"showParticipantNames,omitempty"`
	ImageURL             *string        `json:"imageUrl,omitempty" validate:"omitempty,url"`
}

// Viewer is the identity an event listing is evaluated for.
type Viewer struct {
	UserID   string
	GroupIDs []string
}

// EventFilter narrows an event listing. A nil Viewer is anonymous.
type EventFilter struct {
	DanceType DanceType
	City      string
	Viewer    *Viewer
}

func cloneFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	c := *f
	return &c
}
