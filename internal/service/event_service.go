package service

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"connectrpc.com/connect"

	"github.com/mmynk/bailago/internal/models"
	"github.com/mmynk/bailago/internal/notify"
	"github.com/mmynk/bailago/internal/registry"
)

const EventServiceName = "bailago.v1.EventService"

const (
	EventServiceListEventsProcedure  = "/bailago.v1.EventService/ListEvents"
	EventServiceGetEventProcedure    = "/bailago.v1.EventService/GetEvent"
	EventServiceMyEventsProcedure    = "/bailago.v1.EventService/MyEvents"
	EventServiceCreateEventProcedure = "/bailago.v1.EventService/CreateEvent"
	EventServiceUpdateEventProcedure = "/bailago.v1.EventService/UpdateEvent"
	EventServiceDeleteEventProcedure = "/bailago.v1.EventService/DeleteEvent"
	EventServiceJoinEventProcedure   = "/bailago.v1.EventService/JoinEvent"
	EventServiceLeaveEventProcedure  = "/bailago.v1.EventService/LeaveEvent"
	EventServiceRequestDjProcedure   = "/bailago.v1.EventService/RequestDj"
	EventServiceApproveDjProcedure   = "/bailago.v1.EventService/ApproveDj"
	EventServiceRejectDjProcedure    = "/bailago.v1.EventService/RejectDj"
)

// ListEventsRequest filters the event listing. City matches as a
// case-insensitive substring.
type ListEventsRequest struct {
	DanceType models.DanceType `json:"danceType,omitempty" validate:"omitempty,dancetype"`
	City      string           `json:"city,omitempty" validate:"max=100"`
}

type ListEventsResponse struct {
	Items []models.DanceEvent `json:"items"`
	Total int                 `json:"total"`
}

type EventRequest struct {
	EventID string `json:"eventId" validate:"required"`
}

type EventResponse struct {
	Event models.DanceEvent `json:"event"`
}

type MyEventsResponse struct {
	Created       []models.DanceEvent `json:"created"`
	Participating []models.DanceEvent `json:"participating"`
}

type UpdateEventRequest struct {
	EventID string                  `json:"eventId" validate:"required"`
	Event   models.UpdateEventInput `json:"event"`
}

type RequestDjRequest struct {
	EventID string `json:"eventId" validate:"required"`
	Message string `json:"message,omitempty" validate:"max=500"`
}

// DjDecisionRequest approves or rejects the DJ request of UserID.
type DjDecisionRequest struct {
	EventID string `json:"eventId" validate:"required"`
	UserID  string `json:"userId" validate:"required"`
}

// EventService implements the Connect EventService.
type EventService struct {
	events *registry.EventRegistry
	groups *registry.GroupRegistry
	users  *registry.UserRegistry
	notify userNotifier
	logger *slog.Logger
}

// NewEventService creates a new EventService. notifier may be nil.
func NewEventService(events *registry.EventRegistry, groups *registry.GroupRegistry, users *registry.UserRegistry, notifier notify.Dispatcher, logger *slog.Logger) *EventService {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventService{
		events: events,
		groups: groups,
		users:  users,
		notify: userNotifier{users: users, dispatch: notifier, logger: logger},
		logger: logger,
	}
}

// NewEventServiceHandler builds the HTTP handler serving every EventService
// procedure. It returns the path prefix to mount it on.
func NewEventServiceHandler(svc *EventService, cfg HandlerConfig) (string, http.Handler) {
	r := newRoutes(cfg)
	r.handle(EventServiceListEventsProcedure, authOptional, unary(EventServiceListEventsProcedure, svc.ListEvents))
	r.handle(EventServiceGetEventProcedure, authOptional, unary(EventServiceGetEventProcedure, svc.GetEvent))
	r.handle(EventServiceMyEventsProcedure, authRequired, unary(EventServiceMyEventsProcedure, svc.MyEvents))
	r.handle(EventServiceCreateEventProcedure, authRequired, unary(EventServiceCreateEventProcedure, svc.CreateEvent))
	r.handle(EventServiceUpdateEventProcedure, authRequired, unary(EventServiceUpdateEventProcedure, svc.UpdateEvent))
	r.handle(EventServiceDeleteEventProcedure, authRequired, unary(EventServiceDeleteEventProcedure, svc.DeleteEvent))
	r.handle(EventServiceJoinEventProcedure, authRequired, unary(EventServiceJoinEventProcedure, svc.JoinEvent))
	r.handle(EventServiceLeaveEventProcedure, authRequired, unary(EventServiceLeaveEventProcedure, svc.LeaveEvent))
	r.handle(EventServiceRequestDjProcedure, authRequired, unary(EventServiceRequestDjProcedure, svc.RequestDj))
	r.handle(EventServiceApproveDjProcedure, authRequired, unary(EventServiceApproveDjProcedure, svc.ApproveDj))
	r.handle(EventServiceRejectDjProcedure, authRequired, unary(EventServiceRejectDjProcedure, svc.RejectDj))
	return "/" + EventServiceName + "/", r.mux
}

// ListEvents returns the events the caller may see, sorted by date.
// Anonymous callers see public events only.
func (s *EventService) ListEvents(ctx context.Context, req *connect.Request[ListEventsRequest]) (*connect.Response[ListEventsResponse], error) {
	if err := validateMsg(req.Msg); err != nil {
		return nil, err
	}

	events := s.events.FindAll(models.EventFilter{
		DanceType: req.Msg.DanceType,
		City:      req.Msg.City,
		Viewer:    s.viewer(ctx),
	})

	userID := callerID(ctx)
	for i := range events {
		events[i] = redact(events[i], userID)
	}
	return connect.NewResponse(&ListEventsResponse{Items: nonNil(events), Total: len(events)}), nil
}

// GetEvent returns one event. Events the caller may not see are reported
// as not found. Participant names are hidden from everyone but the creator
// unless the event shows them.
func (s *EventService) GetEvent(ctx context.Context, req *connect.Request[EventRequest]) (*connect.Response[EventResponse], error) {
	event, err := s.visibleEvent(ctx, req.Msg.EventID)
	if err != nil {
		return nil, err
	}

	return connect.NewResponse(&EventResponse{Event: redact(event, callerID(ctx))}), nil
}

// MyEvents returns the events the caller created and the ones they attend.
func (s *EventService) MyEvents(ctx context.Context, req *connect.Request[Empty]) (*connect.Response[MyEventsResponse], error) {
	userID := callerID(ctx)
	participating := s.events.FindByParticipant(userID)
	for i := range participating {
		participating[i] = redact(participating[i], userID)
	}
	return connect.NewResponse(&MyEventsResponse{
		Created:       nonNil(s.events.FindByCreator(userID)),
		Participating: nonNil(participating),
	}), nil
}

// CreateEvent stores a new event created by the caller. Group events may
// only be created by admins of the group.
func (s *EventService) CreateEvent(ctx context.Context, req *connect.Request[models.CreateEventInput]) (*connect.Response[EventResponse], error) {
	userID := callerID(ctx)
	s.logger.Info("CreateEvent request received", "title", req.Msg.Title, "user_id", userID)

	if err := validateMsg(req.Msg); err != nil {
		return nil, err
	}
	if req.Msg.Visibility == models.VisibilityGroup {
		if err := s.requireGroupAdmin(req.Msg.GroupID, userID); err != nil {
			return nil, err
		}
	}

	creator, err := s.users.Get(userID)
	if err != nil {
		return nil, toConnectError(err)
	}

	event, err := s.events.Create(*req.Msg, creator.Snapshot())
	if err != nil {
		s.logger.Error("CreateEvent failed", "error", err)
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&EventResponse{Event: event}), nil
}

// UpdateEvent applies a partial update. Only the creator may update, and
// moving the event into a group requires admin rights there.
func (s *EventService) UpdateEvent(ctx context.Context, req *connect.Request[UpdateEventRequest]) (*connect.Response[EventResponse], error) {
	if err := validateMsg(req.Msg); err != nil {
		return nil, err
	}
	userID := callerID(ctx)
	current, err := s.ownEvent(req.Msg.EventID, userID)
	if err != nil {
		return nil, err
	}

	in := req.Msg.Event
	visibility := current.Visibility
	if in.Visibility != nil {
		visibility = *in.Visibility
	}
	groupID := current.GroupID
	if in.GroupID != nil {
		groupID = strings.TrimSpace(*in.GroupID)
	}
	if visibility == models.VisibilityGroup && groupID != current.GroupID {
		if err := s.requireGroupAdmin(groupID, userID); err != nil {
			return nil, err
		}
	}

	event, err := s.events.Update(req.Msg.EventID, in)
	if err != nil {
		return nil, toConnectError(err)
	}

	s.logger.Info("Event updated", "event_id", event.ID)
	return connect.NewResponse(&EventResponse{Event: event}), nil
}

// DeleteEvent removes an event. Only the creator may delete it.
func (s *EventService) DeleteEvent(ctx context.Context, req *connect.Request[EventRequest]) (*connect.Response[Empty], error) {
	if _, err := s.ownEvent(req.Msg.EventID, callerID(ctx)); err != nil {
		return nil, err
	}
	if err := s.events.Delete(req.Msg.EventID); err != nil {
		return nil, toConnectError(err)
	}

	s.logger.Info("Event deleted", "event_id", req.Msg.EventID)
	return connect.NewResponse(&Empty{}), nil
}

// JoinEvent adds the caller to the roster. Joining twice is a no-op. The
// creator is notified of new participants.
func (s *EventService) JoinEvent(ctx context.Context, req *connect.Request[EventRequest]) (*connect.Response[EventResponse], error) {
	if _, err := s.visibleEvent(ctx, req.Msg.EventID); err != nil {
		return nil, err
	}
	user, err := s.users.Get(callerID(ctx))
	if err != nil {
		return nil, toConnectError(err)
	}

	event, added, err := s.events.AddParticipant(req.Msg.EventID, user.Snapshot())
	if err != nil {
		return nil, toConnectError(err)
	}

	if added && event.CreatorID != user.ID {
		s.notify.send(ctx, notify.KindNewEventParticipant, event.CreatorID, map[string]string{
			"eventId":     event.ID,
			"eventTitle":  event.Title,
			"displayName": user.DisplayName,
		})
	}
	return connect.NewResponse(&EventResponse{Event: redact(event, callerID(ctx))}), nil
}

// LeaveEvent removes the caller from the roster. Leaving an event one does
// not attend is a no-op.
func (s *EventService) LeaveEvent(ctx context.Context, req *connect.Request[EventRequest]) (*connect.Response[EventResponse], error) {
	event, err := s.events.RemoveParticipant(req.Msg.EventID, callerID(ctx))
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&EventResponse{Event: redact(event, callerID(ctx))}), nil
}

// RequestDj files the caller's DJ candidacy and tells the creator.
func (s *EventService) RequestDj(ctx context.Context, req *connect.Request[RequestDjRequest]) (*connect.Response[EventResponse], error) {
	if err := validateMsg(req.Msg); err != nil {
		return nil, err
	}
	if _, err := s.visibleEvent(ctx, req.Msg.EventID); err != nil {
		return nil, err
	}
	user, err := s.users.Get(callerID(ctx))
	if err != nil {
		return nil, toConnectError(err)
	}

	event, created, err := s.events.AddDjRequest(req.Msg.EventID, user.Snapshot(), req.Msg.Message)
	if err != nil {
		return nil, toConnectError(err)
	}

	if created {
		s.logger.Info("DJ request filed", "event_id", event.ID, "user_id", user.ID)
		s.notify.send(ctx, notify.KindDjRequested, event.CreatorID, map[string]string{
			"eventId":     event.ID,
			"eventTitle":  event.Title,
			"displayName": user.DisplayName,
		})
	}
	return connect.NewResponse(&EventResponse{Event: redact(event, callerID(ctx))}), nil
}

// ApproveDj makes the requesting user the event's DJ. Only the creator may
// decide, and the approved DJ is notified.
func (s *EventService) ApproveDj(ctx context.Context, req *connect.Request[DjDecisionRequest]) (*connect.Response[EventResponse], error) {
	if err := validateMsg(req.Msg); err != nil {
		return nil, err
	}
	if _, err := s.ownEvent(req.Msg.EventID, callerID(ctx)); err != nil {
		return nil, err
	}

	event, err := s.events.ApproveDjRequest(req.Msg.EventID, req.Msg.UserID)
	if err != nil {
		return nil, toConnectError(err)
	}

	s.logger.Info("DJ request approved", "event_id", event.ID, "dj_user_id", req.Msg.UserID)
	s.notify.send(ctx, notify.KindDjApproved, req.Msg.UserID, map[string]string{
		"eventId":    event.ID,
		"eventTitle": event.Title,
	})
	return connect.NewResponse(&EventResponse{Event: event}), nil
}

// RejectDj rejects a DJ request. Only the creator may decide.
func (s *EventService) RejectDj(ctx context.Context, req *connect.Request[DjDecisionRequest]) (*connect.Response[EventResponse], error) {
	if err := validateMsg(req.Msg); err != nil {
		return nil, err
	}
	if _, err := s.ownEvent(req.Msg.EventID, callerID(ctx)); err != nil {
		return nil, err
	}

	event, err := s.events.RejectDjRequest(req.Msg.EventID, req.Msg.UserID)
	if err != nil {
		return nil, toConnectError(err)
	}

	s.logger.Info("DJ request rejected", "event_id", event.ID, "user_id", req.Msg.UserID)
	return connect.NewResponse(&EventResponse{Event: event}), nil
}

func (s *EventService) viewer(ctx context.Context) *models.Viewer {
	userID := callerID(ctx)
	if userID == "" {
		return nil
	}
	return &models.Viewer{UserID: userID, GroupIDs: s.groups.GroupIDsFor(userID)}
}

// visibleEvent loads an event the caller may see.
func (s *EventService) visibleEvent(ctx context.Context, eventID string) (models.DanceEvent, error) {
	event, err := s.events.FindByID(eventID)
	if err != nil {
		return models.DanceEvent{}, toConnectError(err)
	}
	if !registry.CanView(event, s.viewer(ctx)) {
		return models.DanceEvent{}, toConnectError(registry.ErrEventNotFound)
	}
	return event, nil
}

// ownEvent loads an event created by userID.
func (s *EventService) ownEvent(eventID, userID string) (models.DanceEvent, error) {
	event, err := s.events.FindByID(eventID)
	if err != nil {
		return models.DanceEvent{}, toConnectError(err)
	}
	if event.CreatorID != userID {
		return models.DanceEvent{}, permissionDenied(errNotCreator)
	}
	return event, nil
}

func (s *EventService) requireGroupAdmin(groupID, userID string) error {
	if groupID == "" {
		return toConnectError(registry.ErrGroupIDRequired)
	}
	if _, err := s.groups.FindByID(groupID); err != nil {
		return toConnectError(err)
	}
	if !s.groups.IsAdmin(groupID, userID) {
		return permissionDenied(errNotAdmin)
	}
	return nil
}

// redact hides participant names from everyone but the creator unless the
// event shows them. ParticipantCount is kept.
func redact(e models.DanceEvent, userID string) models.DanceEvent {
	if !e.ShowParticipantNames && e.CreatorID != userID {
		e.Participants = []models.Participant{}
	}
	return e
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
