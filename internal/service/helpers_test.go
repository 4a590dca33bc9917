package service_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"connectrpc.com/connect"
	"golang.org/x/crypto/bcrypt"

	"github.com/mmynk/bailago/internal/app"
	"github.com/mmynk/bailago/internal/clock"
	"github.com/mmynk/bailago/internal/config"
	"github.com/mmynk/bailago/internal/models"
	"github.com/mmynk/bailago/internal/notify"
	"github.com/mmynk/bailago/internal/service"
)

var testEpoch = time.Date(2025, 5, 10, 18, 0, 0, 0, time.UTC)

type testEnv struct {
	app      *app.App
	clock    *clock.Fake
	notifier *notify.Recorder
	url      string
}

// setupTestServer serves every service from an in-memory app.
func setupTestServer(t *testing.T) (*testEnv, func()) {
	t.Helper()

	env := &testEnv{
		clock:    clock.NewFake(testEpoch),
		notifier: &notify.Recorder{},
	}
	env.app = app.New(app.Options{
		Config: &config.Config{
			Env:              "test",
			JWTSecret:        "test-secret",
			JWTTTL:           time.Hour,
			SweepInterval:    time.Hour,
			SnapshotInterval: time.Minute,
			BcryptCost:       bcrypt.MinCost,
		},
		Clock:    env.clock,
		Notifier: env.notifier,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})

	server := httptest.NewServer(env.app.Handler())
	env.url = server.URL

	return env, server.Close
}

// call invokes procedure with msg, authenticating with token when set.
func call[Req, Res any](env *testEnv, procedure, token string, msg *Req) (*Res, error) {
	client := connect.NewClient[Req, Res](http.DefaultClient, env.url+procedure, service.WithJSON())
	req := connect.NewRequest(msg)
	if token != "" {
		req.Header().Set("Authorization", "Bearer "+token)
	}
	resp, err := client.CallUnary(context.Background(), req)
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}

// register creates an account named after name and returns its session.
func register(t *testing.T, env *testEnv, name string) (string, models.UserView) {
	t.Helper()
	lower := strings.ToLower(name)
	resp, err := call[models.CreateUserInput, service.AuthResponse](env, service.UserServiceRegisterProcedure, "", &models.CreateUserInput{
		Email:       lower + "@example.com",
		Password:    "secret123",
		Username:    lower,
		DisplayName: name,
	})
	if err != nil {
		t.Fatalf("Register %s failed: %v", name, err)
	}
	return resp.Token, resp.User
}

func expectCode(t *testing.T, err error, want connect.Code) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %v, got success", want)
	}
	if got := connect.CodeOf(err); got != want {
		t.Fatalf("expected %v, got %v (%v)", want, got, err)
	}
}

func newEvent(title string) *models.CreateEventInput {
	return &models.CreateEventInput{
		Title:                title,
		DanceType:            models.DanceBachata,
		Location:             models.LocationInput{Name: "Sala Bolero", City: "Torino"},
		Date:                 testEpoch.AddDate(0, 0, 7),
		StartTime:            "21:30",
		ShowParticipantNames: true,
	}
}
