package service

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"connectrpc.com/connect"

	"github.com/mmynk/bailago/internal/auth"
	"github.com/mmynk/bailago/internal/lifecycle"
	"github.com/mmynk/bailago/internal/models"
	"github.com/mmynk/bailago/internal/registry"
)

const UserServiceName = "bailago.v1.UserService"

const (
	UserServiceRegisterProcedure            = "/bailago.v1.UserService/Register"
	UserServiceLoginProcedure               = "/bailago.v1.UserService/Login"
	UserServiceOAuthLoginProcedure          = "/bailago.v1.UserService/OAuthLogin"
	UserServiceVerifyEmailProcedure         = "/bailago.v1.UserService/VerifyEmail"
	UserServiceForgotPasswordProcedure      = "/bailago.v1.UserService/ForgotPassword"
	UserServiceResetPasswordProcedure       = "/bailago.v1.UserService/ResetPassword"
	UserServiceGetMeProcedure               = "/bailago.v1.UserService/GetMe"
	UserServiceUpdateProfileProcedure       = "/bailago.v1.UserService/UpdateProfile"
	UserServiceUpdatePushTokenProcedure     = "/bailago.v1.UserService/UpdatePushToken"
	UserServiceGetInactivityStatusProcedure = "/bailago.v1.UserService/GetInactivityStatus"
	UserServiceReactivateAccountProcedure   = "/bailago.v1.UserService/ReactivateAccount"
)

// LoginRequest is a local email/password sign-in.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// AuthResponse is returned by every sign-in procedure.
type AuthResponse struct {
	Token string          `json:"token"`
	User  models.UserView `json:"user"`

	// Created is set when an OAuth sign-in created the account.
	Created bool `json:"created,omitempty"`
}

type VerifyEmailRequest struct {
	Token string `json:"token" validate:"required"`
}

type ForgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type ResetPasswordRequest struct {
	Token    string `json:"token" validate:"required"`
	Password string `json:"password" validate:"required,min=6,max=72"`
}

type UpdatePushTokenRequest struct {
	PushToken string `json:"pushToken" validate:"max=512"`
	Enabled   bool   `json:"enabled"`
}

// UserResponse carries the caller's own profile.
type UserResponse struct {
	User models.UserView `json:"user"`
}

// UserService implements account registration, sign-in and profile
// procedures.
type UserService struct {
	users     *registry.UserRegistry
	lifecycle *lifecycle.Manager
	jwt       *auth.JWTManager
	logger    *slog.Logger
}

// NewUserService creates a new UserService.
func NewUserService(users *registry.UserRegistry, lc *lifecycle.Manager, jwtManager *auth.JWTManager, logger *slog.Logger) *UserService {
	if logger == nil {
		logger = slog.Default()
	}
	return &UserService{users: users, lifecycle: lc, jwt: jwtManager, logger: logger}
}

// NewUserServiceHandler builds the HTTP handler serving every UserService
// procedure. It returns the path prefix to mount it on.
func NewUserServiceHandler(svc *UserService, cfg HandlerConfig) (string, http.Handler) {
	r := newRoutes(cfg)
	r.handle(UserServiceRegisterProcedure, authPublic, unary(UserServiceRegisterProcedure, svc.Register))
	r.handle(UserServiceLoginProcedure, authPublic, unary(UserServiceLoginProcedure, svc.Login))
	r.handle(UserServiceOAuthLoginProcedure, authPublic, unary(UserServiceOAuthLoginProcedure, svc.OAuthLogin))
	r.handle(UserServiceVerifyEmailProcedure, authPublic, unary(UserServiceVerifyEmailProcedure, svc.VerifyEmail))
	r.handle(UserServiceForgotPasswordProcedure, authPublic, unary(UserServiceForgotPasswordProcedure, svc.ForgotPassword))
	r.handle(UserServiceResetPasswordProcedure, authPublic, unary(UserServiceResetPasswordProcedure, svc.ResetPassword))
	r.handle(UserServiceGetMeProcedure, authRequired, unary(UserServiceGetMeProcedure, svc.GetMe))
	r.handle(UserServiceUpdateProfileProcedure, authRequired, unary(UserServiceUpdateProfileProcedure, svc.UpdateProfile))
	r.handle(UserServiceUpdatePushTokenProcedure, authRequired, unary(UserServiceUpdatePushTokenProcedure, svc.UpdatePushToken))
	r.handle(UserServiceGetInactivityStatusProcedure, authRequired, unary(UserServiceGetInactivityStatusProcedure, svc.GetInactivityStatus))
	r.handle(UserServiceReactivateAccountProcedure, authRequired, unary(UserServiceReactivateAccountProcedure, svc.ReactivateAccount))
	return "/" + UserServiceName + "/", r.mux
}

// Register creates a local account and signs it in.
func (s *UserService) Register(ctx context.Context, req *connect.Request[models.CreateUserInput]) (*connect.Response[AuthResponse], error) {
	s.logger.Info("Register request", "email", req.Msg.Email, "username", req.Msg.Username)

	if err := validateMsg(req.Msg); err != nil {
		return nil, err
	}

	user, err := s.users.Create(ctx, *req.Msg)
	if err != nil {
		s.logger.Warn("Registration failed", "email", req.Msg.Email, "error", err)
		return nil, toConnectError(err)
	}

	return s.signIn(user, false)
}

// Login authenticates with email and password. A successful sign-in counts
// as activity and reactivates a dormant account.
func (s *UserService) Login(ctx context.Context, req *connect.Request[LoginRequest]) (*connect.Response[AuthResponse], error) {
	s.logger.Info("Login request", "email", req.Msg.Email)

	if err := validateMsg(req.Msg); err != nil {
		return nil, err
	}

	user, err := s.users.Authenticate(req.Msg.Email, req.Msg.Password)
	if err != nil {
		s.logger.Warn("Login failed", "email", req.Msg.Email)
		return nil, toConnectError(err)
	}

	if user, err = s.touch(user.ID); err != nil {
		return nil, toConnectError(err)
	}
	return s.signIn(user, false)
}

// OAuthLogin signs in with a provider identity, linking or creating the
// account as needed.
func (s *UserService) OAuthLogin(ctx context.Context, req *connect.Request[models.OAuthInput]) (*connect.Response[AuthResponse], error) {
	s.logger.Info("OAuthLogin request", "provider", req.Msg.Provider, "email", req.Msg.Email)

	if err := validateMsg(req.Msg); err != nil {
		return nil, err
	}

	user, created, err := s.users.FindOrCreateOAuth(ctx, *req.Msg)
	if err != nil {
		s.logger.Warn("OAuth login failed", "provider", req.Msg.Provider, "error", err)
		return nil, toConnectError(err)
	}

	if user, err = s.touch(user.ID); err != nil {
		return nil, toConnectError(err)
	}
	return s.signIn(user, created)
}

// VerifyEmail confirms the address behind a verification token.
func (s *UserService) VerifyEmail(ctx context.Context, req *connect.Request[VerifyEmailRequest]) (*connect.Response[UserResponse], error) {
	if err := validateMsg(req.Msg); err != nil {
		return nil, err
	}

	user, err := s.users.VerifyEmail(req.Msg.Token)
	if err != nil {
		return nil, toConnectError(err)
	}

	s.logger.Info("Email verified", "user_id", user.ID)
	return connect.NewResponse(&UserResponse{User: user}), nil
}

// ForgotPassword sends a reset token. It succeeds for unknown addresses too,
// so the response does not reveal which emails are registered.
func (s *UserService) ForgotPassword(ctx context.Context, req *connect.Request[ForgotPasswordRequest]) (*connect.Response[Empty], error) {
	s.logger.Info("ForgotPassword request", "email", req.Msg.Email)

	if err := validateMsg(req.Msg); err != nil {
		return nil, err
	}

	if _, err := s.users.CreatePasswordResetToken(ctx, req.Msg.Email); err != nil && !errors.Is(err, registry.ErrUserNotFound) {
		s.logger.Error("Failed to issue reset token", "error", err)
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&Empty{}), nil
}

// ResetPassword replaces the password behind a reset token.
func (s *UserService) ResetPassword(ctx context.Context, req *connect.Request[ResetPasswordRequest]) (*connect.Response[Empty], error) {
	if err := validateMsg(req.Msg); err != nil {
		return nil, err
	}

	if err := s.users.ResetPassword(ctx, req.Msg.Token, req.Msg.Password); err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&Empty{}), nil
}

// GetMe returns the caller's profile.
func (s *UserService) GetMe(ctx context.Context, req *connect.Request[Empty]) (*connect.Response[UserResponse], error) {
	user, err := s.users.Get(callerID(ctx))
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&UserResponse{User: user}), nil
}

// UpdateProfile applies a partial profile update to the caller.
func (s *UserService) UpdateProfile(ctx context.Context, req *connect.Request[models.UserUpdate]) (*connect.Response[UserResponse], error) {
	if err := validateMsg(req.Msg); err != nil {
		return nil, err
	}

	user, err := s.users.Update(callerID(ctx), *req.Msg)
	if err != nil {
		return nil, toConnectError(err)
	}

	s.logger.Info("Profile updated", "user_id", user.ID)
	return connect.NewResponse(&UserResponse{User: user}), nil
}

// UpdatePushToken registers the caller's device for push notifications.
func (s *UserService) UpdatePushToken(ctx context.Context, req *connect.Request[UpdatePushTokenRequest]) (*connect.Response[UserResponse], error) {
	if err := validateMsg(req.Msg); err != nil {
		return nil, err
	}

	user, err := s.users.UpdatePushToken(callerID(ctx), req.Msg.PushToken, req.Msg.Enabled)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&UserResponse{User: user}), nil
}

// GetInactivityStatus reports where the caller stands in the inactivity
// state machine.
func (s *UserService) GetInactivityStatus(ctx context.Context, req *connect.Request[Empty]) (*connect.Response[lifecycle.Status], error) {
	status, err := s.lifecycle.GetInactivityStatus(callerID(ctx))
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&status), nil
}

// ReactivateAccount cancels any pending deactivation of the caller.
func (s *UserService) ReactivateAccount(ctx context.Context, req *connect.Request[Empty]) (*connect.Response[UserResponse], error) {
	user, err := s.lifecycle.ReactivateAccount(callerID(ctx))
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&UserResponse{User: user}), nil
}

func (s *UserService) touch(userID string) (models.UserView, error) {
	if err := s.lifecycle.RecordActivity(userID); err != nil {
		return models.UserView{}, err
	}
	return s.users.Get(userID)
}

func (s *UserService) signIn(user models.UserView, created bool) (*connect.Response[AuthResponse], error) {
	token, err := s.jwt.Generate(user)
	if err != nil {
		s.logger.Error("Failed to generate token", "user_id", user.ID, "error", err)
		return nil, connect.NewError(connect.CodeInternal, err)
	}

	s.logger.Info("User signed in", "user_id", user.ID, "created", created)
	return connect.NewResponse(&AuthResponse{Token: token, User: user, Created: created}), nil
}
