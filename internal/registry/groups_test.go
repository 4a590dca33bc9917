package registry

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"testing"

	"github.com/mmynk/bailago/internal/models"
)

func TestGroupCreate(t *testing.T) {
	f := newFixture()
	alice := snapshot("Alice")

	g := f.groups.Create(models.CreateGroupInput{Name: " Salsa Crew "}, alice)
	if g.Name != "Salsa Crew" {
		t.Errorf("name: expected 'Salsa Crew', got '%s'", g.Name)
	}
	if len(g.Members) != 1 {
		t.Fatalf("members: expected 1, got %d", len(g.Members))
	}
	if g.Members[0].UserID != alice.ID || g.Members[0].Role != models.RoleAdmin {
		t.Errorf("expected creator as admin, got %+v", g.Members[0])
	}
	if !f.groups.IsAdmin(g.ID, alice.ID) || !f.groups.IsMember(g.ID, alice.ID) {
		t.Error("expected creator to be admin and member")
	}
}

func TestGroupMembershipScenario(t *testing.T) {
	f := newFixture()
	alice, bob := snapshot("Alice"), snapshot("Bob")
	g := f.groups.Create(models.CreateGroupInput{Name: "Crew"}, alice)

	g, added, err := f.groups.AddMember(g.ID, bob, "")
	if err != nil || !added {
		t.Fatalf("AddMember failed: added=%v err=%v", added, err)
	}
	if m, _ := g.Member(bob.ID); m.Role != models.RoleMember {
		t.Errorf("role: expected member, got %s", m.Role)
	}

	_, added, _ = f.groups.AddMember(g.ID, bob, models.RoleAdmin)
	if added {
		t.Error("expected second AddMember to be a no-op")
	}
	if f.groups.IsAdmin(g.ID, bob.ID) {
		t.Error("re-adding must not change the role")
	}

	if _, err := f.groups.RemoveMember(g.ID, bob.ID); err != nil {
		t.Fatalf("RemoveMember(bob) failed: %v", err)
	}
	if _, err := f.groups.RemoveMember(g.ID, alice.ID); !errors.Is(err, ErrInvariantViolation) {
		t.Errorf("expected last-admin removal to fail, got %v", err)
	}
	if _, err := f.groups.UpdateMemberRole(g.ID, alice.ID, models.RoleMember); !errors.Is(err, ErrLastAdmin) {
		t.Errorf("expected last-admin demotion to fail, got %v", err)
	}
	if !f.groups.IsAdmin(g.ID, alice.ID) {
		t.Error("expected alice to stay admin")
	}
	if _, err := f.groups.RemoveMember(g.ID, bob.ID); !errors.Is(err, ErrMemberNotFound) {
		t.Errorf("expected ErrMemberNotFound, got %v", err)
	}
}

func TestGroupPromoteThenDemote(t *testing.T) {
	f := newFixture()
	alice, bob := snapshot("Alice"), snapshot("Bob")
	g := f.groups.Create(models.CreateGroupInput{Name: "Crew"}, alice)
	f.groups.AddMember(g.ID, bob, "")

	if _, err := f.groups.UpdateMemberRole(g.ID, bob.ID, models.RoleAdmin); err != nil {
		t.Fatalf("promote failed: %v", err)
	}
	g, err := f.groups.UpdateMemberRole(g.ID, alice.ID, models.RoleDJ)
	if err != nil {
		t.Fatalf("demote failed once another admin exists: %v", err)
	}
	if g.AdminCount() != 1 {
		t.Errorf("expected 1 admin, got %d", g.AdminCount())
	}
	if _, err := f.groups.RemoveMember(g.ID, alice.ID); err != nil {
		t.Errorf("expected non-admin removal to succeed, got %v", err)
	}
}

// Random sequences of role changes and removals must never leave a group
// without an admin, and each rejected step must leave the group unchanged.
func TestGroupAdminInvariantProperty(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	roles := []models.GroupRole{models.RoleAdmin, models.RoleMember, models.RoleDJ}

	for run := 0; run < 50; run++ {
		f := newFixture()
		g := f.groups.Create(models.CreateGroupInput{Name: "Crew"}, snapshot("U0"))
		for i := 1; i < 5; i++ {
			f.groups.AddMember(g.ID, snapshot(fmt.Sprintf("U%d", i)), roles[rng.IntN(len(roles))])
		}

		for step := 0; step < 60; step++ {
			before, _ := f.groups.FindByID(g.ID)
			userID := snapshot(fmt.Sprintf("U%d", rng.IntN(5))).ID

			var err error
			switch rng.IntN(3) {
			case 0:
				_, err = f.groups.RemoveMember(g.ID, userID)
			case 1:
				_, err = f.groups.UpdateMemberRole(g.ID, userID, roles[rng.IntN(len(roles))])
			default:
				_, _, err = f.groups.AddMember(g.ID, snapshot(fmt.Sprintf("U%d", rng.IntN(5))), roles[rng.IntN(len(roles))])
			}

			after, _ := f.groups.FindByID(g.ID)
			if after.AdminCount() < 1 {
				t.Fatalf("run %d step %d: group has no admin", run, step)
			}
			if errors.Is(err, ErrLastAdmin) {
				if len(before.Members) != len(after.Members) || before.AdminCount() != after.AdminCount() {
					t.Fatalf("run %d step %d: rejected step changed the group", run, step)
				}
			} else if err != nil && !errors.Is(err, ErrMemberNotFound) {
				t.Fatalf("run %d step %d: unexpected error %v", run, step, err)
			}
		}
	}
}

func TestGroupLeave(t *testing.T) {
	alice, bob, carol := snapshot("Alice"), snapshot("Bob"), snapshot("Carol")

	t.Run("sole member", func(t *testing.T) {
		f := newFixture()
		g := f.groups.Create(models.CreateGroupInput{Name: "Crew"}, alice)
		if _, err := f.groups.Leave(g.ID, alice.ID, ""); !errors.Is(err, ErrSoleMember) {
			t.Errorf("expected ErrSoleMember, got %v", err)
		}
	})

	t.Run("last admin without successor", func(t *testing.T) {
		f := newFixture()
		g := f.groups.Create(models.CreateGroupInput{Name: "Crew"}, alice)
		f.groups.AddMember(g.ID, bob, "")
		if _, err := f.groups.Leave(g.ID, alice.ID, ""); !errors.Is(err, ErrLastAdmin) {
			t.Errorf("expected ErrLastAdmin, got %v", err)
		}
		if _, err := f.groups.Leave(g.ID, alice.ID, carol.ID); !errors.Is(err, ErrSuccessorNotMember) {
			t.Errorf("expected ErrSuccessorNotMember, got %v", err)
		}
		if f.groups.IsAdmin(g.ID, bob.ID) {
			t.Error("a failed leave must not promote anyone")
		}
	})

	t.Run("creator hands over", func(t *testing.T) {
		f := newFixture()
		g := f.groups.Create(models.CreateGroupInput{Name: "Crew"}, alice)
		f.groups.AddMember(g.ID, bob, "")
		f.groups.AddMember(g.ID, carol, "")

		g, err := f.groups.Leave(g.ID, alice.ID, bob.ID)
		if err != nil {
			t.Fatalf("Leave failed: %v", err)
		}
		if f.groups.IsMember(g.ID, alice.ID) {
			t.Error("expected alice to be gone")
		}
		if !f.groups.IsAdmin(g.ID, bob.ID) {
			t.Error("expected bob to be promoted")
		}
		if g.CreatorID != bob.ID {
			t.Errorf("creatorId: expected %s, got %s", bob.ID, g.CreatorID)
		}
	})

	t.Run("plain member cannot name a successor", func(t *testing.T) {
		f := newFixture()
		g := f.groups.Create(models.CreateGroupInput{Name: "Crew"}, alice)
		f.groups.AddMember(g.ID, bob, "")
		f.groups.AddMember(g.ID, carol, "")

		if _, err := f.groups.Leave(g.ID, bob.ID, carol.ID); !errors.Is(err, ErrSuccessorNotAllowed) {
			t.Errorf("expected ErrSuccessorNotAllowed, got %v", err)
		}
		if f.groups.IsAdmin(g.ID, carol.ID) {
			t.Error("expected carol to stay a plain member")
		}
		if !f.groups.IsMember(g.ID, bob.ID) {
			t.Error("a rejected leave must keep bob in the group")
		}
	})

	t.Run("plain member", func(t *testing.T) {
		f := newFixture()
		g := f.groups.Create(models.CreateGroupInput{Name: "Crew"}, alice)
		f.groups.AddMember(g.ID, bob, "")
		g, err := f.groups.Leave(g.ID, bob.ID, "")
		if err != nil {
			t.Fatalf("Leave failed: %v", err)
		}
		if len(g.Members) != 1 || g.CreatorID != alice.ID {
			t.Errorf("expected only alice to remain as creator, got %+v", g)
		}
	})
}

func TestGroupDeleteCascades(t *testing.T) {
	f := newFixture()
	alice, bob := snapshot("Alice"), snapshot("Bob")
	g := f.groups.Create(models.CreateGroupInput{Name: "Crew"}, alice)
	other := f.groups.Create(models.CreateGroupInput{Name: "Other"}, alice)

	in := eventInput("Practice", testEpoch)
	in.Visibility = models.VisibilityGroup
	in.GroupID = g.ID
	f.events.Create(in, alice)
	f.events.Create(in, alice)
	in.GroupID = other.ID
	kept, _ := f.events.Create(in, alice)
	public, _ := f.events.Create(eventInput("Public", testEpoch), alice)

	invite, _ := f.invites.Create(g.ID, bob.ID, alice.ID)
	f.invites.Reject(invite.ID)
	f.invites.Create(g.ID, bob.ID, alice.ID)
	otherInvite, _ := f.invites.Create(other.ID, bob.ID, alice.ID)

	res, err := f.groups.Delete(g.ID)
	if err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if res.Events != 2 || res.Invites != 2 {
		t.Errorf("expected 2 events and 2 invites cascaded, got %+v", res)
	}
	if _, err := f.groups.FindByID(g.ID); !errors.Is(err, ErrGroupNotFound) {
		t.Errorf("expected ErrGroupNotFound, got %v", err)
	}
	if f.events.Len() != 2 {
		t.Errorf("expected 2 events left, got %d", f.events.Len())
	}
	for _, id := range []string{kept.ID, public.ID} {
		if _, err := f.events.FindByID(id); err != nil {
			t.Errorf("event %s should survive: %v", id, err)
		}
	}
	if _, err := f.invites.FindByID(otherInvite.ID); err != nil {
		t.Errorf("other group's invite should survive: %v", err)
	}
	if _, err := f.groups.Delete(g.ID); !errors.Is(err, ErrGroupNotFound) {
		t.Errorf("expected ErrGroupNotFound on second delete, got %v", err)
	}
}

func TestGroupFindByMember(t *testing.T) {
	f := newFixture()
	alice, bob := snapshot("Alice"), snapshot("Bob")
	g1 := f.groups.Create(models.CreateGroupInput{Name: "One"}, alice)
	f.groups.Create(models.CreateGroupInput{Name: "Two"}, bob)
	g3 := f.groups.Create(models.CreateGroupInput{Name: "Three"}, bob)
	f.groups.AddMember(g3.ID, alice, "")

	ids := f.groups.GroupIDsFor(alice.ID)
	if len(ids) != 2 || ids[0] != g1.ID || ids[1] != g3.ID {
		t.Errorf("expected [%s %s], got %v", g1.ID, g3.ID, ids)
	}

	updated, err := f.groups.Update(g1.ID, models.UpdateGroupInput{Description: strPtr("Tuesdays")})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if updated.Description != "Tuesdays" || updated.Name != "One" {
		t.Errorf("unexpected group after update: %+v", updated)
	}
}
