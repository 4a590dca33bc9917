package service

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"connectrpc.com/connect"

	"github.com/mmynk/bailago/internal/models"
	"github.com/mmynk/bailago/internal/notify"
	"github.com/mmynk/bailago/internal/registry"
)

const GroupServiceName = "bailago.v1.GroupService"

const (
	GroupServiceListMyGroupsProcedure       = "/bailago.v1.GroupService/ListMyGroups"
	GroupServiceGetGroupProcedure           = "/bailago.v1.GroupService/GetGroup"
	GroupServiceCreateGroupProcedure        = "/bailago.v1.GroupService/CreateGroup"
	GroupServiceUpdateGroupProcedure        = "/bailago.v1.GroupService/UpdateGroup"
	GroupServiceDeleteGroupProcedure        = "/bailago.v1.GroupService/DeleteGroup"
	GroupServiceInviteMemberProcedure       = "/bailago.v1.GroupService/InviteMember"
	GroupServiceLeaveGroupProcedure         = "/bailago.v1.GroupService/LeaveGroup"
	GroupServiceRemoveMemberProcedure       = "/bailago.v1.GroupService/RemoveMember"
	GroupServiceUpdateMemberRoleProcedure   = "/bailago.v1.GroupService/UpdateMemberRole"
	GroupServiceListPendingInvitesProcedure = "/bailago.v1.GroupService/ListPendingInvites"
	GroupServiceAcceptInviteProcedure       = "/bailago.v1.GroupService/AcceptInvite"
	GroupServiceRejectInviteProcedure       = "/bailago.v1.GroupService/RejectInvite"
)

// GroupSummary is a group as seen by one of its members.
type GroupSummary struct {
	models.Group
	MemberCount int  `json:"memberCount"`
	IsAdmin     bool `json:"isAdmin"`
}

type GroupRequest struct {
	GroupID string `json:"groupId" validate:"required"`
}

type GroupResponse struct {
	Group GroupSummary `json:"group"`
}

type ListMyGroupsResponse struct {
	Groups []GroupSummary `json:"groups"`
}

type UpdateGroupRequest struct {
	GroupID string                  `json:"groupId" validate:"required"`
	Group   models.UpdateGroupInput `json:"group"`
}

type DeleteGroupResponse struct {
	DeletedEvents  int `json:"deletedEvents"`
	DeletedInvites int `json:"deletedInvites"`
}

// InviteMemberRequest invites the user behind Handle: a username, a
// nickname or an email, with or without a leading "@".
type InviteMemberRequest struct {
	GroupID string `json:"groupId" validate:"required"`
	Handle  string `json:"handle" validate:"required,max=254"`
}

type InviteResponse struct {
	Invite models.GroupInvite `json:"invite"`
}

// LeaveGroupRequest leaves a group. NewAdminID names the successor when the
// caller is the last admin.
type LeaveGroupRequest struct {
	GroupID    string `json:"groupId" validate:"required"`
	NewAdminID string `json:"newAdminId,omitempty"`
}

type MemberRequest struct {
	GroupID string `json:"groupId" validate:"required"`
	UserID  string `json:"userId" validate:"required"`
}

type UpdateMemberRoleRequest struct {
	GroupID string           `json:"groupId" validate:"required"`
	UserID  string           `json:"userId" validate:"required"`
	Role    models.GroupRole `json:"role" validate:"required,oneof=admin member dj"`
}

// PendingInvite is an invite enriched for display to the invitee.
type PendingInvite struct {
	models.GroupInvite
	GroupName string               `json:"groupName,omitempty"`
	InvitedBy *models.UserSnapshot `json:"invitedByUser,omitempty"`
}

type ListPendingInvitesResponse struct {
	Invites []PendingInvite `json:"invites"`
}

type InviteRequest struct {
	InviteID string `json:"inviteId" validate:"required"`
}

// GroupService implements the Connect GroupService.
type GroupService struct {
	groups  *registry.GroupRegistry
	invites *registry.InviteRegistry
	users   *registry.UserRegistry
	notify  userNotifier
	logger  *slog.Logger
}

// NewGroupService creates a new GroupService. notifier may be nil.
func NewGroupService(groups *registry.GroupRegistry, invites *registry.InviteRegistry, users *registry.UserRegistry, notifier notify.Dispatcher, logger *slog.Logger) *GroupService {
	if logger == nil {
		logger = slog.Default()
	}
	return &GroupService{
		groups:  groups,
		invites: invites,
		users:   users,
		notify:  userNotifier{users: users, dispatch: notifier, logger: logger},
		logger:  logger,
	}
}

// NewGroupServiceHandler builds the HTTP handler serving every GroupService
// procedure. Every procedure requires authentication.
func NewGroupServiceHandler(svc *GroupService, cfg HandlerConfig) (string, http.Handler) {
	r := newRoutes(cfg)
	r.handle(GroupServiceListMyGroupsProcedure, authRequired, unary(GroupServiceListMyGroupsProcedure, svc.ListMyGroups))
	r.handle(GroupServiceGetGroupProcedure, authRequired, unary(GroupServiceGetGroupProcedure, svc.GetGroup))
	r.handle(GroupServiceCreateGroupProcedure, authRequired, unary(GroupServiceCreateGroupProcedure, svc.CreateGroup))
	r.handle(GroupServiceUpdateGroupProcedure, authRequired, unary(GroupServiceUpdateGroupProcedure, svc.UpdateGroup))
	r.handle(GroupServiceDeleteGroupProcedure, authRequired, unary(GroupServiceDeleteGroupProcedure, svc.DeleteGroup))
	r.handle(GroupServiceInviteMemberProcedure, authRequired, unary(GroupServiceInviteMemberProcedure, svc.InviteMember))
	r.handle(GroupServiceLeaveGroupProcedure, authRequired, unary(GroupServiceLeaveGroupProcedure, svc.LeaveGroup))
	r.handle(GroupServiceRemoveMemberProcedure, authRequired, unary(GroupServiceRemoveMemberProcedure, svc.RemoveMember))
	r.handle(GroupServiceUpdateMemberRoleProcedure, authRequired, unary(GroupServiceUpdateMemberRoleProcedure, svc.UpdateMemberRole))
	r.handle(GroupServiceListPendingInvitesProcedure, authRequired, unary(GroupServiceListPendingInvitesProcedure, svc.ListPendingInvites))
	r.handle(GroupServiceAcceptInviteProcedure, authRequired, unary(GroupServiceAcceptInviteProcedure, svc.AcceptInvite))
	r.handle(GroupServiceRejectInviteProcedure, authRequired, unary(GroupServiceRejectInviteProcedure, svc.RejectInvite))
	return "/" + GroupServiceName + "/", r.mux
}

// ListMyGroups returns the groups the caller belongs to.
func (s *GroupService) ListMyGroups(ctx context.Context, req *connect.Request[Empty]) (*connect.Response[ListMyGroupsResponse], error) {
	userID := callerID(ctx)
	groups := s.groups.FindByMember(userID)

	summaries := make([]GroupSummary, len(groups))
	for i, g := range groups {
		summaries[i] = summarize(g, userID)
	}

	s.logger.Info("ListMyGroups successful", "user_id", userID, "count", len(groups))
	return connect.NewResponse(&ListMyGroupsResponse{Groups: summaries}), nil
}

// GetGroup returns a group to one of its members.
func (s *GroupService) GetGroup(ctx context.Context, req *connect.Request[GroupRequest]) (*connect.Response[GroupResponse], error) {
	userID := callerID(ctx)
	group, err := s.groups.FindByID(req.Msg.GroupID)
	if err != nil {
		return nil, toConnectError(err)
	}
	if _, ok := group.Member(userID); !ok {
		return nil, permissionDenied(errNotMember)
	}
	return connect.NewResponse(&GroupResponse{Group: summarize(group, userID)}), nil
}

// CreateGroup creates a group with the caller as its first admin.
func (s *GroupService) CreateGroup(ctx context.Context, req *connect.Request[models.CreateGroupInput]) (*connect.Response[GroupResponse], error) {
	userID := callerID(ctx)
	s.logger.Info("CreateGroup request received", "name", req.Msg.Name, "user_id", userID)

	if err := validateMsg(req.Msg); err != nil {
		return nil, err
	}

	creator, err := s.users.Get(userID)
	if err != nil {
		return nil, toConnectError(err)
	}

	group := s.groups.Create(*req.Msg, creator.Snapshot())
	return connect.NewResponse(&GroupResponse{Group: summarize(group, userID)}), nil
}

// UpdateGroup edits the group profile. Admins only.
func (s *GroupService) UpdateGroup(ctx context.Context, req *connect.Request[UpdateGroupRequest]) (*connect.Response[GroupResponse], error) {
	if err := validateMsg(req.Msg); err != nil {
		return nil, err
	}
	userID := callerID(ctx)
	if _, err := s.adminGroup(req.Msg.GroupID, userID); err != nil {
		return nil, err
	}

	group, err := s.groups.Update(req.Msg.GroupID, req.Msg.Group)
	if err != nil {
		return nil, toConnectError(err)
	}

	s.logger.Info("Group updated", "group_id", group.ID)
	return connect.NewResponse(&GroupResponse{Group: summarize(group, userID)}), nil
}

// DeleteGroup deletes the group together with its events and invites.
// Only the creator may delete a group.
func (s *GroupService) DeleteGroup(ctx context.Context, req *connect.Request[GroupRequest]) (*connect.Response[DeleteGroupResponse], error) {
	s.logger.Info("DeleteGroup request received", "group_id", req.Msg.GroupID)

	group, err := s.groups.FindByID(req.Msg.GroupID)
	if err != nil {
		return nil, toConnectError(err)
	}
	if group.CreatorID != callerID(ctx) {
		return nil, permissionDenied(errNotCreator)
	}

	res, err := s.groups.Delete(group.ID)
	if err != nil {
		s.logger.Error("DeleteGroup failed", "group_id", group.ID, "error", err)
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&DeleteGroupResponse{DeletedEvents: res.Events, DeletedInvites: res.Invites}), nil
}

// InviteMember invites a user by handle. Admins only. Inviting a user
// with a pending invite returns that invite unchanged.
func (s *GroupService) InviteMember(ctx context.Context, req *connect.Request[InviteMemberRequest]) (*connect.Response[InviteResponse], error) {
	if err := validateMsg(req.Msg); err != nil {
		return nil, err
	}
	userID := callerID(ctx)
	group, err := s.adminGroup(req.Msg.GroupID, userID)
	if err != nil {
		return nil, err
	}

	invitee, err := s.users.FindByHandle(req.Msg.Handle)
	if err != nil {
		return nil, toConnectError(err)
	}
	if _, ok := group.Member(invitee.ID); ok {
		return nil, toConnectError(registry.ErrAlreadyMember)
	}

	invite, created := s.invites.Create(group.ID, invitee.ID, userID)
	if created {
		s.logger.Info("Invite created", "group_id", group.ID, "invited_user_id", invitee.ID)
		s.notify.send(ctx, notify.KindGroupInvite, invitee.ID, map[string]string{
			"inviteId":  invite.ID,
			"groupId":   group.ID,
			"groupName": group.Name,
		})
	}
	return connect.NewResponse(&InviteResponse{Invite: invite}), nil
}

// LeaveGroup removes the caller from a group. Only admins may name a
// successor.
func (s *GroupService) LeaveGroup(ctx context.Context, req *connect.Request[LeaveGroupRequest]) (*connect.Response[Empty], error) {
	if err := validateMsg(req.Msg); err != nil {
		return nil, err
	}
	userID := callerID(ctx)
	if _, err := s.groups.Leave(req.Msg.GroupID, userID, strings.TrimSpace(req.Msg.NewAdminID)); err != nil {
		if errors.Is(err, registry.ErrSuccessorNotAllowed) {
			return nil, permissionDenied(err)
		}
		return nil, toConnectError(err)
	}

	s.logger.Info("Member left group", "group_id", req.Msg.GroupID, "user_id", userID)
	return connect.NewResponse(&Empty{}), nil
}

// RemoveMember removes another member. Admins only.
func (s *GroupService) RemoveMember(ctx context.Context, req *connect.Request[MemberRequest]) (*connect.Response[GroupResponse], error) {
	if err := validateMsg(req.Msg); err != nil {
		return nil, err
	}
	userID := callerID(ctx)
	if _, err := s.adminGroup(req.Msg.GroupID, userID); err != nil {
		return nil, err
	}

	group, err := s.groups.RemoveMember(req.Msg.GroupID, req.Msg.UserID)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&GroupResponse{Group: summarize(group, userID)}), nil
}

// UpdateMemberRole promotes or demotes a member. Admins only.
func (s *GroupService) UpdateMemberRole(ctx context.Context, req *connect.Request[UpdateMemberRoleRequest]) (*connect.Response[GroupResponse], error) {
	if err := validateMsg(req.Msg); err != nil {
		return nil, err
	}
	userID := callerID(ctx)
	if _, err := s.adminGroup(req.Msg.GroupID, userID); err != nil {
		return nil, err
	}

	group, err := s.groups.UpdateMemberRole(req.Msg.GroupID, req.Msg.UserID, req.Msg.Role)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&GroupResponse{Group: summarize(group, userID)}), nil
}

// ListPendingInvites returns the caller's open invites with the group name
// and inviter filled in.
func (s *GroupService) ListPendingInvites(ctx context.Context, req *connect.Request[Empty]) (*connect.Response[ListPendingInvitesResponse], error) {
	invites := s.invites.FindPendingForUser(callerID(ctx))

	pending := make([]PendingInvite, len(invites))
	for i, inv := range invites {
		pending[i] = PendingInvite{GroupInvite: inv}
		if g, err := s.groups.FindByID(inv.GroupID); err == nil {
			pending[i].GroupName = g.Name
		}
		if u, err := s.users.Get(inv.InvitedByUserID); err == nil {
			snap := u.Snapshot()
			pending[i].InvitedBy = &snap
		}
	}
	return connect.NewResponse(&ListPendingInvitesResponse{Invites: pending}), nil
}

// AcceptInvite accepts the caller's invite and joins the group as member.
func (s *GroupService) AcceptInvite(ctx context.Context, req *connect.Request[InviteRequest]) (*connect.Response[GroupResponse], error) {
	if err := validateMsg(req.Msg); err != nil {
		return nil, err
	}
	userID := callerID(ctx)
	if _, err := s.ownInvite(req.Msg.InviteID, userID); err != nil {
		return nil, err
	}
	user, err := s.users.Get(userID)
	if err != nil {
		return nil, toConnectError(err)
	}

	invite, err := s.invites.Accept(req.Msg.InviteID)
	if err != nil {
		return nil, toConnectError(err)
	}
	group, _, err := s.groups.AddMember(invite.GroupID, user.Snapshot(), models.RoleMember)
	if err != nil {
		return nil, toConnectError(err)
	}

	s.logger.Info("Invite accepted", "invite_id", invite.ID, "group_id", group.ID, "user_id", userID)
	return connect.NewResponse(&GroupResponse{Group: summarize(group, userID)}), nil
}

// RejectInvite declines the caller's invite.
func (s *GroupService) RejectInvite(ctx context.Context, req *connect.Request[InviteRequest]) (*connect.Response[InviteResponse], error) {
	if err := validateMsg(req.Msg); err != nil {
		return nil, err
	}
	if _, err := s.ownInvite(req.Msg.InviteID, callerID(ctx)); err != nil {
		return nil, err
	}

	invite, err := s.invites.Reject(req.Msg.InviteID)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&InviteResponse{Invite: invite}), nil
}

// adminGroup loads a group the caller administers.
func (s *GroupService) adminGroup(groupID, userID string) (models.Group, error) {
	group, err := s.groups.FindByID(groupID)
	if err != nil {
		return models.Group{}, toConnectError(err)
	}
	if m, ok := group.Member(userID); !ok || m.Role != models.RoleAdmin {
		return models.Group{}, permissionDenied(errNotAdmin)
	}
	return group, nil
}

// ownInvite loads an invite addressed to userID.
func (s *GroupService) ownInvite(inviteID, userID string) (models.GroupInvite, error) {
	invite, err := s.invites.FindByID(inviteID)
	if err != nil {
		return models.GroupInvite{}, toConnectError(err)
	}
	if invite.InvitedUserID != userID {
		return models.GroupInvite{}, permissionDenied(errNotInvitee)
	}
	return invite, nil
}

func summarize(g models.Group, userID string) GroupSummary {
	m, ok := g.Member(userID)
	return GroupSummary{
		Group:       g,
		MemberCount: len(g.Members),
		IsAdmin:     ok && m.Role == models.RoleAdmin,
	}
}
