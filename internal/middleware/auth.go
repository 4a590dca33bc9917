package middleware

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"connectrpc.com/connect"

	"github.com/mmynk/bailago/internal/auth"
	"github.com/mmynk/bailago/internal/registry"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

const (
	// UserIDKey is the context key for storing the authenticated user ID.
	UserIDKey contextKey = "user_id"
	// UsernameKey is the context key for storing the authenticated username.
	UsernameKey contextKey = "username"
)

// ActivityRecorder is told about every authenticated request. It refuses
// accounts that can no longer act (deleted ones).
type ActivityRecorder interface {
	RecordActivity(userID string) error
}

// GetUserID extracts the user ID from the context.
// Returns empty string if not found.
func GetUserID(ctx context.Context) string {
	userID, _ := ctx.Value(UserIDKey).(string)
	return userID
}

// GetUsername extracts the username from the context.
// Returns empty string if not found.
func GetUsername(ctx context.Context) string {
	username, _ := ctx.Value(UsernameKey).(string)
	return username
}

// WithUser returns a context carrying an authenticated identity.
func WithUser(ctx context.Context, userID, username string) context.Context {
	ctx = context.WithValue(ctx, UserIDKey, userID)
	return context.WithValue(ctx, UsernameKey, username)
}

// RequireAuth returns an interceptor that validates the bearer token,
// records activity for the caller and adds the identity to the context.
// Deleted or unknown accounts are rejected as unauthenticated.
func RequireAuth(jwtManager *auth.JWTManager, activity ActivityRecorder) connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			authHeader := req.Header().Get("Authorization")
			if authHeader == "" {
				return nil, connect.NewError(connect.CodeUnauthenticated, auth.ErrMissingToken)
			}

			tokenString, ok := bearerToken(authHeader)
			if !ok {
				return nil, connect.NewError(connect.CodeUnauthenticated, auth.ErrInvalidToken)
			}

			claims, err := jwtManager.Validate(tokenString)
			if err != nil {
				return nil, connect.NewError(connect.CodeUnauthenticated, err)
			}

			if err := recordActivity(activity, claims.UserID); err != nil {
				if errors.Is(err, registry.ErrAccountDeleted) || errors.Is(err, registry.ErrUserNotFound) {
					return nil, connect.NewError(connect.CodeUnauthenticated, auth.ErrInvalidToken)
				}
				return nil, connect.NewError(connect.CodeInternal, err)
			}

			return next(WithUser(ctx, claims.UserID, claims.Username), req)
		}
	}
}

// OptionalAuth returns an interceptor that adds the caller's identity when
// a valid token for a live account is present, and otherwise lets the
// request through anonymously. A nil logger uses slog.Default().
func OptionalAuth(jwtManager *auth.JWTManager, activity ActivityRecorder, logger *slog.Logger) connect.UnaryInterceptorFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			if tokenString, ok := bearerToken(req.Header().Get("Authorization")); ok {
				claims, err := jwtManager.Validate(tokenString)
				if err == nil {
					if err := recordActivity(activity, claims.UserID); err == nil {
						ctx = WithUser(ctx, claims.UserID, claims.Username)
					} else {
						logger.Debug("Ignoring token for inactive account", "user_id", claims.UserID, "error", err)
					}
				}
			}

			return next(ctx, req)
		}
	}
}

func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || scheme != "Bearer" || token == "" {
		return "", false
	}
	return token, true
}

func recordActivity(activity ActivityRecorder, userID string) error {
	if activity == nil {
		return nil
	}
	return activity.RecordActivity(userID)
}
