package registry

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/mmynk/bailago/internal/models"
)

func TestEventCreateDefaults(t *testing.T) {
	f := newFixture()
	alice := snapshot("Alice")

	lat := 45.46
	in := eventInput("Salsa Night", testEpoch.AddDate(0, 0, 3))
	in.Location.Latitude = &lat

	e, err := f.events.Create(in, alice)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if e.Visibility != models.VisibilityPublic {
		t.Errorf("visibility: expected public, got %s", e.Visibility)
	}
	if e.DjMode != models.DjModeOpen {
		t.Errorf("djMode: expected open, got %s", e.DjMode)
	}
	if e.Location.ID == "" {
		t.Error("expected location to get its own ID")
	}
	if e.Creator != alice {
		t.Errorf("creator: expected %+v, got %+v", alice, e.Creator)
	}
	if e.ParticipantCount != 0 || e.Participants == nil {
		t.Errorf("expected an empty participant list, got %v", e.Participants)
	}

	// The location is copied, not shared with the input.
	lat = 0
	got, _ := f.events.FindByID(e.ID)
	if *got.Location.Latitude != 45.46 {
		t.Errorf("latitude: expected 45.46, got %v", *got.Location.Latitude)
	}

	other, _ := f.events.Create(in, alice)
	if other.Location.ID == e.Location.ID {
		t.Error("expected each event to own a distinct location")
	}
}

func TestEventCreateGroupRequiresGroupID(t *testing.T) {
	f := newFixture()

	in := eventInput("Crew practice", testEpoch)
	in.Visibility = models.VisibilityGroup
	if _, err := f.events.Create(in, snapshot("Alice")); !errors.Is(err, ErrGroupIDRequired) {
		t.Errorf("expected ErrGroupIDRequired, got %v", err)
	}

	in.Visibility = models.VisibilityPublic
	in.GroupID = "group-1"
	e, err := f.events.Create(in, snapshot("Alice"))
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if e.GroupID != "" {
		t.Errorf("groupId: expected empty for public event, got '%s'", e.GroupID)
	}
}

func TestEventVisibility(t *testing.T) {
	f := newFixture()
	alice, bob, carol := snapshot("Alice"), snapshot("Bob"), snapshot("Carol")

	public, _ := f.events.Create(eventInput("Public", testEpoch), alice)

	privIn := eventInput("Private", testEpoch)
	privIn.Visibility = models.VisibilityPrivate
	private, _ := f.events.Create(privIn, alice)

	groupIn := eventInput("Group", testEpoch)
	groupIn.Visibility = models.VisibilityGroup
	groupIn.GroupID = "group-1"
	group, _ := f.events.Create(groupIn, alice)

	tests := []struct {
		name   string
		viewer *models.Viewer
		want   []string
	}{
		{name: "anonymous", viewer: nil, want: []string{public.ID}},
		{name: "creator", viewer: &models.Viewer{UserID: alice.ID}, want: []string{public.ID, private.ID, group.ID}},
		{name: "group member", viewer: &models.Viewer{UserID: bob.ID, GroupIDs: []string{"group-1"}}, want: []string{public.ID, group.ID}},
		{name: "outsider", viewer: &models.Viewer{UserID: carol.ID, GroupIDs: []string{"group-2"}}, want: []string{public.ID}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := f.events.FindAll(models.EventFilter{Viewer: tt.viewer})
			if len(got) != len(tt.want) {
				t.Fatalf("expected %d events, got %d", len(tt.want), len(got))
			}
			for i, id := range tt.want {
				if got[i].ID != id {
					t.Errorf("event %d: expected %s, got %s", i, id, got[i].ID)
				}
			}
		})
	}
}

func TestEventFindAllFiltersAndOrder(t *testing.T) {
	f := newFixture()
	alice := snapshot("Alice")

	late, _ := f.events.Create(eventInput("Late", testEpoch.AddDate(0, 0, 5)), alice)
	early, _ := f.events.Create(eventInput("Early", testEpoch.AddDate(0, 0, 1)), alice)
	tieA, _ := f.events.Create(eventInput("Tie A", testEpoch.AddDate(0, 0, 3)), alice)
	tieB, _ := f.events.Create(eventInput("Tie B", testEpoch.AddDate(0, 0, 3)), alice)

	romeIn := eventInput("Roma", testEpoch)
	romeIn.Location.City = "Roma"
	romeIn.DanceType = models.DanceBachata
	rome, _ := f.events.Create(romeIn, alice)

	got := f.events.FindAll(models.EventFilter{City: "milan"})
	want := []string{early.ID, tieA.ID, tieB.ID, late.ID}
	if len(got) != len(want) {
		t.Fatalf("expected %d events, got %d", len(want), len(got))
	}
	for i, id := range want {
		if got[i].ID != id {
			t.Errorf("position %d: expected %s, got %s", i, id, got[i].ID)
		}
	}

	got = f.events.FindAll(models.EventFilter{DanceType: models.DanceBachata})
	if len(got) != 1 || got[0].ID != rome.ID {
		t.Errorf("expected only the bachata event, got %v", got)
	}
}

func TestEventCapacityScenario(t *testing.T) {
	f := newFixture()
	alice, bob, carol := snapshot("Alice"), snapshot("Bob"), snapshot("Carol")

	in := eventInput("Tiny social", testEpoch)
	in.MaxParticipants = intPtr(1)
	e, _ := f.events.Create(in, alice)

	e, added, err := f.events.AddParticipant(e.ID, bob)
	if err != nil || !added {
		t.Fatalf("AddParticipant(bob) failed: added=%v err=%v", added, err)
	}
	if e.ParticipantCount != 1 {
		t.Errorf("participantCount: expected 1, got %d", e.ParticipantCount)
	}

	_, _, err = f.events.AddParticipant(e.ID, carol)
	if !errors.Is(err, ErrCapacityExceeded) {
		t.Errorf("expected ErrCapacityExceeded, got %v", err)
	}

	e, _ = f.events.FindByID(e.ID)
	if e.ParticipantCount != 1 || len(e.Participants) != 1 {
		t.Errorf("expected count to stay 1, got %d/%d", e.ParticipantCount, len(e.Participants))
	}
}

func TestParticipantIdempotence(t *testing.T) {
	f := newFixture()
	bob := snapshot("Bob")
	e, _ := f.events.Create(eventInput("Social", testEpoch), snapshot("Alice"))

	first, _, _ := f.events.AddParticipant(e.ID, bob)
	f.clock.Advance(time.Minute)
	second, added, err := f.events.AddParticipant(e.ID, bob)
	if err != nil {
		t.Fatalf("AddParticipant failed: %v", err)
	}
	if added {
		t.Error("expected second join to be a no-op")
	}
	if len(second.Participants) != 1 || !second.Participants[0].JoinedAt.Equal(first.Participants[0].JoinedAt) {
		t.Errorf("expected roster unchanged, got %+v", second.Participants)
	}
	if !second.UpdatedAt.Equal(first.UpdatedAt) {
		t.Error("expected no write on a no-op join")
	}

	e, err = f.events.RemoveParticipant(e.ID, "user-nobody")
	if err != nil {
		t.Fatalf("RemoveParticipant failed: %v", err)
	}
	if e.ParticipantCount != 1 {
		t.Errorf("participantCount: expected 1, got %d", e.ParticipantCount)
	}

	e, _ = f.events.RemoveParticipant(e.ID, bob.ID)
	if e.ParticipantCount != 0 || len(e.Participants) != 0 {
		t.Errorf("expected empty roster, got %d/%d", e.ParticipantCount, len(e.Participants))
	}

	if _, _, err := f.events.AddParticipant("missing", bob); !errors.Is(err, ErrEventNotFound) {
		t.Errorf("expected ErrEventNotFound, got %v", err)
	}
}

// Random join/leave sequences must keep the roster unique, the count in
// sync and the capacity ceiling respected.
func TestParticipantRosterProperties(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))

	for run := 0; run < 50; run++ {
		f := newFixture()
		capacity := 1 + rng.IntN(5)
		in := eventInput("Social", testEpoch)
		in.MaxParticipants = intPtr(capacity)
		e, _ := f.events.Create(in, snapshot("Host"))

		for step := 0; step < 40; step++ {
			user := snapshot(fmt.Sprintf("U%d", rng.IntN(8)))
			var err error
			if rng.IntN(3) == 0 {
				e, err = f.events.RemoveParticipant(e.ID, user.ID)
			} else {
				var got models.DanceEvent
				got, _, err = f.events.AddParticipant(e.ID, user)
				if err == nil {
					e = got
				}
			}
			if err != nil && !errors.Is(err, ErrEventFull) {
				t.Fatalf("run %d step %d: unexpected error %v", run, step, err)
			}

			stored, _ := f.events.FindByID(e.ID)
			if stored.ParticipantCount != len(stored.Participants) {
				t.Fatalf("run %d step %d: count %d != len %d", run, step, stored.ParticipantCount, len(stored.Participants))
			}
			if len(stored.Participants) > capacity {
				t.Fatalf("run %d step %d: %d participants exceed capacity %d", run, step, len(stored.Participants), capacity)
			}
			seen := map[string]bool{}
			for _, p := range stored.Participants {
				if seen[p.UserID] {
					t.Fatalf("run %d step %d: %s joined twice", run, step, p.UserID)
				}
				seen[p.UserID] = true
			}
		}
	}
}

func TestEventUpdate(t *testing.T) {
	f := newFixture()
	alice := snapshot("Alice")
	e, _ := f.events.Create(eventInput("Social", testEpoch), alice)
	locationID := e.Location.ID

	f.events.AddParticipant(e.ID, snapshot("Bob"))
	f.events.AddParticipant(e.ID, snapshot("Carol"))

	updated, err := f.events.Update(e.ID, models.UpdateEventInput{
		Title:    strPtr("Salsa Social"),
		Location: &models.LocationInput{Name: "Alcatraz", City: "Milano"},
	})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if updated.Title != "Salsa Social" {
		t.Errorf("title: expected 'Salsa Social', got '%s'", updated.Title)
	}
	if updated.Location.ID != locationID || updated.Location.Name != "Alcatraz" {
		t.Errorf("expected location %s renamed, got %+v", locationID, updated.Location)
	}

	if _, err := f.events.Update(e.ID, models.UpdateEventInput{MaxParticipants: intPtr(1)}); !errors.Is(err, ErrCapacityExceeded) {
		t.Errorf("expected ErrCapacityExceeded, got %v", err)
	}

	group := models.VisibilityGroup
	if _, err := f.events.Update(e.ID, models.UpdateEventInput{Visibility: &group}); !errors.Is(err, ErrGroupIDRequired) {
		t.Errorf("expected ErrGroupIDRequired, got %v", err)
	}
	updated, err = f.events.Update(e.ID, models.UpdateEventInput{Visibility: &group, GroupID: strPtr("group-1")})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if updated.GroupID != "group-1" {
		t.Errorf("groupId: expected 'group-1', got '%s'", updated.GroupID)
	}
}

func TestEventDelete(t *testing.T) {
	f := newFixture()
	alice := snapshot("Alice")
	e, _ := f.events.Create(eventInput("Social", testEpoch), alice)

	if err := f.events.Delete(e.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := f.events.FindByID(e.ID); !errors.Is(err, ErrEventNotFound) {
		t.Errorf("expected ErrEventNotFound, got %v", err)
	}
	if err := f.events.Delete(e.ID); !errors.Is(err, ErrEventNotFound) {
		t.Errorf("expected ErrEventNotFound, got %v", err)
	}
}

func TestEventFindByCreatorAndParticipant(t *testing.T) {
	f := newFixture()
	alice, bob := snapshot("Alice"), snapshot("Bob")

	a1, _ := f.events.Create(eventInput("A1", testEpoch.AddDate(0, 0, 2)), alice)
	a2, _ := f.events.Create(eventInput("A2", testEpoch.AddDate(0, 0, 1)), alice)
	b1, _ := f.events.Create(eventInput("B1", testEpoch), bob)
	f.events.AddParticipant(b1.ID, alice)

	created := f.events.FindByCreator(alice.ID)
	if len(created) != 2 || created[0].ID != a2.ID || created[1].ID != a1.ID {
		t.Errorf("expected [A2 A1], got %v", created)
	}
	joined := f.events.FindByParticipant(alice.ID)
	if len(joined) != 1 || joined[0].ID != b1.ID {
		t.Errorf("expected [B1], got %v", joined)
	}
}
