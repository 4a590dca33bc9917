package registry

import (
	"slices"
	"strings"

	"github.com/mmynk/bailago/internal/models"
)

// DJ request workflow. Requests are never removed from an event; approved
// and rejected ones stay on the event for audit.

// AddDjRequest records user's candidacy to DJ the event. It fails with
// ErrDjDisabled when the event has DJ mode none. A user who already has a
// request, whatever its status, gets the event back unchanged and created
// is false.
func (r *EventRegistry) AddDjRequest(eventID string, user models.UserSnapshot, message string) (event models.DanceEvent, created bool, err error) {
	event, err = r.mutate(eventID, func(e *models.DanceEvent) error {
		if e.DjMode == models.DjModeNone {
			return ErrDjDisabled
		}
		if djRequestIndex(e, user.ID) >= 0 {
			return errUnchanged
		}
		e.DjRequests = append(e.DjRequests, models.DjRequest{
			UserID:      user.ID,
			User:        user,
			Message:     strings.TrimSpace(message),
			RequestedAt: r.clock.Now(),
			Status:      models.RequestPending,
		})
		created = true
		return nil
	})
	return event, created, err
}

// ApproveDjRequest approves userID's request, rejects every other request
// on the event and makes the requester the event's DJ.
func (r *EventRegistry) ApproveDjRequest(eventID, userID string) (models.DanceEvent, error) {
	return r.mutate(eventID, func(e *models.DanceEvent) error {
		i := djRequestIndex(e, userID)
		if i < 0 {
			return ErrDjRequestNotFound
		}
		for j := range e.DjRequests {
			if j == i {
				e.DjRequests[j].Status = models.RequestApproved
			} else {
				e.DjRequests[j].Status = models.RequestRejected
			}
		}
		e.DjUserID = userID
		e.DjName = e.DjRequests[i].User.DisplayName
		return nil
	})
}

// RejectDjRequest rejects userID's request only. When that request was the
// approved one, the event loses its DJ.
func (r *EventRegistry) RejectDjRequest(eventID, userID string) (models.DanceEvent, error) {
	return r.mutate(eventID, func(e *models.DanceEvent) error {
		i := djRequestIndex(e, userID)
		if i < 0 {
			return ErrDjRequestNotFound
		}
		if e.DjRequests[i].Status == models.RequestRejected {
			return errUnchanged
		}
		if e.DjRequests[i].Status == models.RequestApproved && e.DjUserID == userID {
			e.DjUserID = ""
			e.DjName = ""
		}
		e.DjRequests[i].Status = models.RequestRejected
		return nil
	})
}

func djRequestIndex(e *models.DanceEvent, userID string) int {
	return slices.IndexFunc(e.DjRequests, func(req models.DjRequest) bool { return req.UserID == userID })
}
