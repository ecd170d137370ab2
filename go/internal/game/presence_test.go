package game

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/mcurtis22/triviarena/go/internal/game/events"
	"github.com/mcurtis22/triviarena/go/internal/models"
)

func newTestRegistry() *Registry {
	return NewRegistry([]string{LobbyRoom, "trivia"})
}

func addParticipant(r *Registry, identity string, exp int) {
	r.Upsert(&models.Participant{
		Identity:    identity,
		DisplayName: identity,
		Experience:  exp,
		JoinedAt:    time.Now(),
	})
	r.AddToRoom(identity, LobbyRoom)
}

func TestRegistryRoomMembership(t *testing.T) {
	r := newTestRegistry()
	addParticipant(r, "alice", 0)

	if !r.AddToRoom("alice", "trivia") {
		t.Error("first AddToRoom must report a change")
	}
	if r.AddToRoom("alice", "trivia") {
		t.Error("repeated AddToRoom must report no change")
	}
	if r.AddToRoom("alice", "poker") {
		t.Error("AddToRoom must reject rooms outside the directory")
	}
	if !r.InRoom("alice", "trivia") {
		t.Error("alice should be in trivia")
	}
	if !r.RemoveFromRoom("alice", "trivia") {
		t.Error("RemoveFromRoom must report a change")
	}
	if r.RemoveFromRoom("alice", "trivia") {
		t.Error("repeated RemoveFromRoom must report no change")
	}
}

func TestRegistryRemoveClearsAllRooms(t *testing.T) {
	r := newTestRegistry()
	addParticipant(r, "alice", 0)
	r.AddToRoom("alice", "trivia")

	r.Remove("alice")

	if r.InRoom("alice", LobbyRoom) || r.InRoom("alice", "trivia") {
		t.Error("removed participant still has room membership")
	}
	if _, ok := r.Get("alice"); ok {
		t.Error("removed participant still registered")
	}
}

func TestRegistryListSorted(t *testing.T) {
	r := newTestRegistry()
	for _, id := range []string{"charlie", "alice", "bob"} {
		addParticipant(r, id, 0)
	}

	var got []string
	for _, p := range r.List(LobbyRoom) {
		got = append(got, p.Identity)
	}
	if diff := cmp.Diff([]string{"alice", "bob", "charlie"}, got); diff != "" {
		t.Errorf("list order mismatch (-want +got):\n%s", diff)
	}
}

func TestRegistryRoomList(t *testing.T) {
	r := newTestRegistry()
	addParticipant(r, "alice", 3)
	addParticipant(r, "bob", 1)
	r.AddToRoom("alice", "trivia")

	got := r.RoomList()
	want := events.RoomListPayload{Rooms: []events.RoomInfo{
		{Name: LobbyRoom, Participants: 2},
		{Name: "trivia", Participants: 1},
	}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("room list mismatch (-want +got):\n%s", diff)
	}
}

func TestRegistryPresenceList(t *testing.T) {
	r := newTestRegistry()
	addParticipant(r, "bob", 1)
	addParticipant(r, "alice", 3)

	got := r.PresenceList(LobbyRoom)
	want := events.PresenceListPayload{Participants: []events.PresenceEntry{
		{Identity: "alice", DisplayName: "alice", Experience: 3},
		{Identity: "bob", DisplayName: "bob", Experience: 1},
	}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("presence list mismatch (-want +got):\n%s", diff)
	}
}
