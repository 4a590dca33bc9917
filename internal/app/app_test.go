package app

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"connectrpc.com/connect"
	"golang.org/x/crypto/bcrypt"

	"github.com/mmynk/bailago/internal/clock"
	"github.com/mmynk/bailago/internal/config"
	"github.com/mmynk/bailago/internal/metrics"
	"github.com/mmynk/bailago/internal/models"
	"github.com/mmynk/bailago/internal/service"
	"github.com/mmynk/bailago/internal/storage"
	"github.com/mmynk/bailago/internal/storage/sqlite"
)

var testEpoch = time.Date(2025, 5, 10, 18, 0, 0, 0, time.UTC)

func newTestApp(store storage.Snapshotter, m *metrics.Metrics) *App {
	return New(Options{
		Config: &config.Config{
			Env:              "test",
			JWTSecret:        "test-secret",
			JWTTTL:           time.Hour,
			SweepInterval:    time.Hour,
			SnapshotInterval: time.Minute,
			BcryptCost:       bcrypt.MinCost,
		},
		Clock:   clock.NewFake(testEpoch),
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		Metrics: m,
		Store:   store,
	})
}

func TestSaveAndLoad(t *testing.T) {
	ctx := context.Background()
	store, err := sqlite.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	defer store.Close()

	a := newTestApp(store, nil)
	alice, err := a.Users.Create(ctx, models.CreateUserInput{Email: "alice@example.com", Password: "secret123", Username: "alice"})
	if err != nil {
		t.Fatalf("Create alice failed: %v", err)
	}
	bob, err := a.Users.Create(ctx, models.CreateUserInput{Email: "bob@example.com", Password: "secret123", Username: "bob"})
	if err != nil {
		t.Fatalf("Create bob failed: %v", err)
	}
	group := a.Groups.Create(models.CreateGroupInput{Name: "Salsa Crew"}, alice.Snapshot())
	a.Invites.Create(group.ID, bob.ID, alice.ID)
	event, err := a.Events.Create(models.CreateEventInput{
		Title:     "Crew Rehearsal",
		DanceType: models.DanceSalsa,
		Location:  models.LocationInput{Name: "Sala Bolero", City: "Torino"},
		Date:      testEpoch.AddDate(0, 0, 3),
		StartTime: "20:00",
	}, alice.Snapshot())
	if err != nil {
		t.Fatalf("Create event failed: %v", err)
	}

	if err := a.Save(ctx); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	restored := newTestApp(store, nil)
	if err := restored.Load(ctx); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	counts := []struct {
		name string
		got  int
		want int
	}{
		{"users", restored.Users.Len(), 2},
		{"events", restored.Events.Len(), 1},
		{"groups", restored.Groups.Len(), 1},
		{"invites", restored.Invites.Len(), 1},
	}
	for _, c := range counts {
		if c.got != c.want {
			t.Errorf("%s: expected %d, got %d", c.name, c.want, c.got)
		}
	}

	got, err := restored.Events.FindByID(event.ID)
	if err != nil {
		t.Fatalf("FindByID after load failed: %v", err)
	}
	if got.Title != event.Title || got.CreatorID != alice.ID {
		t.Errorf("expected %q by %s, got %q by %s", event.Title, alice.ID, got.Title, got.CreatorID)
	}
	if _, err := restored.Users.Authenticate("alice@example.com", "secret123"); err != nil {
		t.Errorf("expected restored credentials to authenticate, got %v", err)
	}
}

func TestRunLoopsReturnsAfterCancel(t *testing.T) {
	store, err := sqlite.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	defer store.Close()

	a := newTestApp(store, nil)
	a.cfg.SnapshotInterval = 5 * time.Millisecond
	if _, err := a.Users.Create(context.Background(), models.CreateUserInput{Email: "alice@example.com", Password: "secret123", Username: "alice"}); err != nil {
		t.Fatalf("Create alice failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		a.RunLoops(ctx)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("RunLoops did not return after the context ended")
	}

	records, err := store.LoadSnapshot(context.Background(), KindUsers)
	if err != nil {
		t.Fatalf("LoadSnapshot failed: %v", err)
	}
	if len(records) != 1 {
		t.Errorf("expected 1 saved user, got %d", len(records))
	}
}

func TestSaveWithoutStore(t *testing.T) {
	a := newTestApp(nil, nil)
	if err := a.Save(context.Background()); err != nil {
		t.Errorf("expected no-op save, got %v", err)
	}
	if err := a.Load(context.Background()); err != nil {
		t.Errorf("expected no-op load, got %v", err)
	}
}

func TestHandlerServesMetrics(t *testing.T) {
	a := newTestApp(nil, metrics.New())
	server := httptest.NewServer(a.Handler())
	defer server.Close()

	client := connect.NewClient[service.Empty, service.UserResponse](http.DefaultClient, server.URL+service.UserServiceGetMeProcedure, service.WithJSON())
	_, err := client.CallUnary(context.Background(), connect.NewRequest(&service.Empty{}))
	if connect.CodeOf(err) != connect.CodeUnauthenticated {
		t.Fatalf("expected unauthenticated, got %v", err)
	}

	resp, err := http.Get(server.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics failed: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	want := `bailago_rpc_requests_total{code="unauthenticated",procedure="` + service.UserServiceGetMeProcedure + `"} 1`
	if !strings.Contains(string(body), want) {
		t.Errorf("expected %s in output, got:\n%s", want, body)
	}
}

func TestHandlerWithoutMetrics(t *testing.T) {
	a := newTestApp(nil, nil)
	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}
