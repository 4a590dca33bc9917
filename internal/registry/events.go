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

// errUnchanged tells mutate to skip the write. It never leaves the package.
var errUnchanged = errors.New("unchanged")

// EventRegistry owns DanceEvent entities: visibility-aware listing, the
// participant roster and the DJ request workflow (dj.go).
type EventRegistry struct {
	mu     sync.RWMutex
	events *storage.EntityStore[models.DanceEvent]

	clock  clock.Clock
	logger *slog.Logger
}

// NewEventRegistry creates an empty EventRegistry.
func NewEventRegistry(deps Deps) *EventRegistry {
	deps = deps.withDefaults()
	return &EventRegistry{
		events: storage.NewEntityStore[models.DanceEvent](),
		clock:  deps.Clock,
		logger: deps.Logger,
	}
}

// CanView reports whether viewer may see e. A nil viewer is anonymous and
// sees public events only.
func CanView(e models.DanceEvent, viewer *models.Viewer) bool {
	if e.Visibility == models.VisibilityPublic {
		return true
	}
	if viewer == nil {
		return false
	}
	if e.CreatorID == viewer.UserID {
		return true
	}
	return e.Visibility == models.VisibilityGroup && slices.Contains(viewer.GroupIDs, e.GroupID)
}

// FindAll returns the events matching filter that filter.Viewer may see,
// sorted by date. Events on the same date keep their creation order.
func (r *EventRegistry) FindAll(filter models.EventFilter) []models.DanceEvent {
	city := strings.ToLower(strings.TrimSpace(filter.City))

	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.sortedLocked(func(e models.DanceEvent) bool {
		if filter.DanceType != "" && e.DanceType != filter.DanceType {
			return false
		}
		if city != "" && !strings.Contains(strings.ToLower(e.Location.City), city) {
			return false
		}
		return CanView(e, filter.Viewer)
	})
}

// FindByID returns the event with the given id.
func (r *EventRegistry) FindByID(id string) (models.DanceEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.events.Get(id)
	if !ok {
		return models.DanceEvent{}, ErrEventNotFound
	}
	return e.Clone(), nil
}

// FindByCreator returns the events created by userID, sorted by date.
func (r *EventRegistry) FindByCreator(userID string) []models.DanceEvent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sortedLocked(func(e models.DanceEvent) bool { return e.CreatorID == userID })
}

// FindByParticipant returns the events userID has joined, sorted by date.
func (r *EventRegistry) FindByParticipant(userID string) []models.DanceEvent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sortedLocked(func(e models.DanceEvent) bool { return e.HasParticipant(userID) })
}

// Create stores a new event. Visibility defaults to public and DJ mode to
// open. For group events the caller must already have checked that creator
// is an admin of the group.
func (r *EventRegistry) Create(in models.CreateEventInput, creator models.UserSnapshot) (models.DanceEvent, error) {
	visibility := in.Visibility
	if visibility == "" {
		visibility = models.VisibilityPublic
	}
	djMode := in.DjMode
	if djMode == "" {
		djMode = models.DjModeOpen
	}
	mustValid(in.DanceType.Valid(), "dance type", in.DanceType)
	mustValid(visibility.Valid(), "visibility", visibility)
	mustValid(djMode.Valid(), "dj mode", djMode)

	groupID := strings.TrimSpace(in.GroupID)
	if visibility != models.VisibilityGroup {
		groupID = ""
	} else if groupID == "" {
		return models.DanceEvent{}, ErrGroupIDRequired
	}

	now := r.clock.Now()
	event := models.DanceEvent{
		ID:                   uuid.NewString(),
		Title:                strings.TrimSpace(in.Title),
		Description:          strings.TrimSpace(in.Description),
		DanceType:            in.DanceType,
		Location:             newLocation(uuid.NewString(), in.Location),
		Date:                 in.Date,
		StartTime:            in.StartTime,
		EndTime:              in.EndTime,
		CreatorID:            creator.ID,
		Creator:              creator,
		Visibility:           visibility,
		GroupID:              groupID,
		DjMode:               djMode,
		DjName:               strings.TrimSpace(in.DjName),
		DjContact:            strings.TrimSpace(in.DjContact),
		DjUserID:             in.DjUserID,
		DjRequests:           []models.DjRequest{},
		Participants:         []models.Participant{},
		MaxParticipants:      in.MaxParticipants,
		ShowParticipantNames: in.ShowParticipantNames,
		ImageURL:             in.ImageURL,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	event = event.Clone()

	r.mu.Lock()
	r.events.Put(event.ID, event)
	r.mu.Unlock()

	r.logger.Info("Event created", "event_id", event.ID, "creator_id", creator.ID, "visibility", visibility)
	return event.Clone(), nil
}

// Update merges the non-nil fields of in into the event. A replaced
// location keeps its id. The capacity ceiling cannot drop below the
// current participant count.
func (r *EventRegistry) Update(id string, in models.UpdateEventInput) (models.DanceEvent, error) {
	return r.mutate(id, func(e *models.DanceEvent) error {
		if in.Title != nil {
			e.Title = strings.TrimSpace(*in.Title)
		}
		if in.Description != nil {
			e.Description = strings.TrimSpace(*in.Description)
		}
		if in.DanceType != nil {
			mustValid(in.DanceType.Valid(), "dance type", *in.DanceType)
			e.DanceType = *in.DanceType
		}
		if in.Location != nil {
			e.Location = newLocation(e.Location.ID, *in.Location)
		}
		if in.Date != nil {
			e.Date = *in.Date
		}
		if in.StartTime != nil {
			e.StartTime = *in.StartTime
		}
		if in.EndTime != nil {
			e.EndTime = *in.EndTime
		}
		if in.Visibility != nil {
			mustValid(in.Visibility.Valid(), "visibility", *in.Visibility)
			e.Visibility = *in.Visibility
		}
		if in.GroupID != nil {
			e.GroupID = strings.TrimSpace(*in.GroupID)
		}
		if e.Visibility != models.VisibilityGroup {
			e.GroupID = ""
		} else if e.GroupID == "" {
			return ErrGroupIDRequired
		}
		if in.DjMode != nil {
			mustValid(in.DjMode.Valid(), "dj mode", *in.DjMode)
			e.DjMode = *in.DjMode
		}
		if in.DjName != nil {
			e.DjName = strings.TrimSpace(*in.DjName)
		}
		if in.DjContact != nil {
			e.DjContact = strings.TrimSpace(*in.DjContact)
		}
		if in.MaxParticipants != nil {
			if *in.MaxParticipants < len(e.Participants) {
				return ErrCapacityTooLow
			}
			n := *in.MaxParticipants
			e.MaxParticipants = &n
		}
		if in.ShowParticipantNames != nil {
			e.ShowParticipantNames = *in.ShowParticipantNames
		}
		if in.ImageURL != nil {
			e.ImageURL = *in.ImageURL
		}
		return nil
	})
}

// Delete removes the event.
func (r *EventRegistry) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.events.Delete(id) {
		return ErrEventNotFound
	}
	return nil
}

// DeleteByGroup removes every event scoped to groupID and returns how many
// were removed.
func (r *EventRegistry) DeleteByGroup(groupID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events.DeleteFunc(func(e models.DanceEvent) bool { return e.GroupID == groupID })
}

// AddParticipant adds user to the roster. Joining twice is a no-op
// (added is false); joining a full event fails with ErrEventFull.
func (r *EventRegistry) AddParticipant(eventID string, user models.UserSnapshot) (event models.DanceEvent, added bool, err error) {
	event, err = r.mutate(eventID, func(e *models.DanceEvent) error {
		if e.HasParticipant(user.ID) {
			return errUnchanged
		}
		if e.IsFull() {
			return ErrEventFull
		}
		e.Participants = append(e.Participants, models.Participant{
			UserID:   user.ID,
			User:     user,
			JoinedAt: r.clock.Now(),
		})
		added = true
		return nil
	})
	return event, added, err
}

// RemoveParticipant removes userID from the roster. Removing an absent
// user is a no-op.
func (r *EventRegistry) RemoveParticipant(eventID, userID string) (models.DanceEvent, error) {
	return r.mutate(eventID, func(e *models.DanceEvent) error {
		n := len(e.Participants)
		e.Participants = slices.DeleteFunc(e.Participants, func(p models.Participant) bool { return p.UserID == userID })
		if len(e.Participants) == n {
			return errUnchanged
		}
		return nil
	})
}

// Len returns the number of stored events.
func (r *EventRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.events.Len()
}

// Snapshot encodes every event for persistence.
func (r *EventRegistry) Snapshot() ([]storage.Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return snapshotRecords(r.events)
}

// Restore replaces the registry contents with records.
func (r *EventRegistry) Restore(records []storage.Record) error {
	events, err := restoreRecords[models.DanceEvent](records)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.events = events
	r.mu.Unlock()
	return nil
}

// mutate applies fn to a copy of the event and writes it back as one step.
// The participant count is recomputed on every write. When fn returns
// errUnchanged the stored event is returned untouched.
func (r *EventRegistry) mutate(id string, fn func(*models.DanceEvent) error) (models.DanceEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.events.Get(id)
	if !ok {
		return models.DanceEvent{}, ErrEventNotFound
	}
	e := stored.Clone()
	if err := fn(&e); err != nil {
		if errors.Is(err, errUnchanged) {
			return stored.Clone(), nil
		}
		return models.DanceEvent{}, err
	}
	e.ParticipantCount = len(e.Participants)
	e.UpdatedAt = r.clock.Now()
	r.events.Put(id, e)
	return e.Clone(), nil
}

func (r *EventRegistry) sortedLocked(match func(models.DanceEvent) bool) []models.DanceEvent {
	events := r.events.Filter(match)
	for i := range events {
		events[i] = events[i].Clone()
	}
	slices.SortStableFunc(events, func(a, b models.DanceEvent) int { return a.Date.Compare(b.Date) })
	return events
}

func newLocation(id string, in models.LocationInput) models.Location {
	return models.Location{
		ID:        id,
		Name:      strings.TrimSpace(in.Name),
		Address:   strings.TrimSpace(in.Address),
		City:      strings.TrimSpace(in.City),
		Latitude:  cloneFloat(in.Latitude),
		Longitude: cloneFloat(in.Longitude),
	}
}

func cloneFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	c := *f
	return &c
}
