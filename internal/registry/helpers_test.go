package registry

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mmynk/bailago/internal/clock"
	"github.com/mmynk/bailago/internal/models"
	"github.com/mmynk/bailago/internal/notify"
)

var testEpoch = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

// plainHasher stands in for bcrypt so tests stay fast.
type plainHasher struct{}

func (plainHasher) Hash(p string) (string, error) { return "hashed:" + p, nil }

func (plainHasher) Verify(p, h string) bool { return h == "hashed:"+p }

// seqTokens returns tok-1, tok-2, ...
type seqTokens struct {
	mu sync.Mutex
	n  int
}

func (s *seqTokens) NewToken() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	return fmt.Sprintf("tok-%d", s.n), nil
}

type fixture struct {
	clock    *clock.Fake
	notifier *notify.Recorder
	users    *UserRegistry
	events   *EventRegistry
	groups   *GroupRegistry
	invites  *InviteRegistry
}

func newFixture() *fixture {
	f := &fixture{
		clock:    clock.NewFake(testEpoch),
		notifier: &notify.Recorder{},
	}
	deps := Deps{Clock: f.clock, Notifier: f.notifier}
	f.users = NewUserRegistry(plainHasher{}, &seqTokens{}, deps)
	f.events = NewEventRegistry(deps)
	f.invites = NewInviteRegistry(deps)
	f.groups = NewGroupRegistry(f.events, f.invites, deps)
	return f
}

func snapshot(name string) models.UserSnapshot {
	return models.UserSnapshot{
		ID:          "user-" + strings.ToLower(name),
		Username:    strings.ToLower(name),
		DisplayName: name,
	}
}

func userInput(name string) models.CreateUserInput {
	lower := strings.ToLower(name)
	return models.CreateUserInput{
		Email:    lower + "@example.com",
		Password: "secret123",
		Username: lower,
	}
}

func eventInput(title string, date time.Time) models.CreateEventInput {
	return models.CreateEventInput{
		Title:     title,
		DanceType: models.DanceSalsa,
		Location:  models.LocationInput{Name: "Studio 54", City: "Milano"},
		Date:      date,
		StartTime: "21:00",
	}
}

func intPtr(n int) *int { return &n }

func strPtr(s string) *string { return &s }
