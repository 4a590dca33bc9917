package service

import (
	"context"
	"log/slog"
	"net/http"

	"connectrpc.com/connect"

	"github.com/mmynk/bailago/internal/auth"
	"github.com/mmynk/bailago/internal/middleware"
)

// authMode selects the auth interceptor a procedure runs behind.
type authMode int

const (
	authPublic authMode = iota
	authOptional
	authRequired
)

// HandlerConfig carries what every service handler is wrapped with.
type HandlerConfig struct {
	JWT *auth.JWTManager

	// Activity is told about every authenticated call. May be nil.
	Activity middleware.ActivityRecorder

	// Metrics may be nil.
	Metrics middleware.RPCObserver

	Logger *slog.Logger
}

func (c HandlerConfig) options(mode authMode) []connect.HandlerOption {
	var interceptors []connect.Interceptor
	if c.Metrics != nil {
		interceptors = append(interceptors, middleware.MetricsInterceptor(c.Metrics))
	}
	switch mode {
	case authRequired:
		interceptors = append(interceptors, middleware.RequireAuth(c.JWT, c.Activity))
	case authOptional:
		interceptors = append(interceptors, middleware.OptionalAuth(c.JWT, c.Activity, c.Logger))
	}
	interceptors = append(interceptors, middleware.LoggingInterceptor(c.Logger))

	return []connect.HandlerOption{
		connect.WithCodec(JSONCodec{}),
		connect.WithInterceptors(interceptors...),
	}
}

// routes collects the procedures of one service behind a single path
// prefix, the way generated Connect handlers do.
type routes struct {
	cfg HandlerConfig
	mux *http.ServeMux
}

func newRoutes(cfg HandlerConfig) *routes {
	return &routes{cfg: cfg, mux: http.NewServeMux()}
}

func (r *routes) handle(procedure string, mode authMode, h func(HandlerConfig, authMode) *connect.Handler) {
	r.mux.Handle(procedure, h(r.cfg, mode))
}

// unary adapts a typed method into a route constructor.
func unary[Req, Res any](procedure string, fn func(context.Context, *connect.Request[Req]) (*connect.Response[Res], error)) func(HandlerConfig, authMode) *connect.Handler {
	return func(cfg HandlerConfig, mode authMode) *connect.Handler {
		return connect.NewUnaryHandler(procedure, fn, cfg.options(mode)...)
	}
}

// Empty is the message of procedures with no input or no output.
type Empty struct{}

func callerID(ctx context.Context) string {
	return middleware.GetUserID(ctx)
}
