package game

import (
	"sort"

	"github.com/mcurtis22/triviarena/go/internal/game/events"
	"github.com/mcurtis22/triviarena/go/internal/models"
)

// Registry tracks connected participants and their room membership. It is
// owned exclusively by the engine goroutine and is not safe for concurrent
// use on its own.
type Registry struct {
	participants map[string]*models.Participant
	rooms        map[string]map[string]bool // room name -> identities
	roomNames    []string                   // directory order
}

// NewRegistry creates a registry with the given room directory.
func NewRegistry(rooms []string) *Registry {
	r := &Registry{
		participants: make(map[string]*models.Participant),
		rooms:        make(map[string]map[string]bool, len(rooms)),
		roomNames:    append([]string(nil), rooms...),
	}
	for _, name := range rooms {
		r.rooms[name] = make(map[string]bool)
	}
	return r
}

// Upsert adds or updates a participant.
func (r *Registry) Upsert(p *models.Participant) {
	r.participants[p.Identity] = p
}

// Get returns the participant for an identity.
func (r *Registry) Get(identity string) (*models.Participant, bool) {
	p, ok := r.participants[identity]
	return p, ok
}

// Remove deletes a participant and their membership in every room.
func (r *Registry) Remove(identity string) {
	delete(r.participants, identity)
	for _, members := range r.rooms {
		delete(members, identity)
	}
}

// HasRoom reports whether the room exists in the directory.
func (r *Registry) HasRoom(room string) bool {
	_, ok := r.rooms[room]
	return ok
}

// AddToRoom adds the identity to a room. It reports whether membership
// actually changed.
func (r *Registry) AddToRoom(identity, room string) bool {
	members, ok := r.rooms[room]
	if !ok || members[identity] {
		return false
	}
	members[identity] = true
	return true
}

// RemoveFromRoom drops the identity from a room. It reports whether
// membership actually changed.
func (r *Registry) RemoveFromRoom(identity, room string) bool {
	members, ok := r.rooms[room]
	if !ok || !members[identity] {
		return false
	}
	delete(members, identity)
	return true
}

// InRoom reports room membership.
func (r *Registry) InRoom(identity, room string) bool {
	members, ok := r.rooms[room]
	return ok && members[identity]
}

// Count returns the number of participants in a room.
func (r *Registry) Count(room string) int {
	return len(r.rooms[room])
}

// List returns the room's participants ordered by identity for stable
// broadcasts.
func (r *Registry) List(room string) []*models.Participant {
	members := r.rooms[room]
	out := make([]*models.Participant, 0, len(members))
	for identity := range members {
		if p, ok := r.participants[identity]; ok {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Identity < out[j].Identity })
	return out
}

// PresenceList builds the full-list presence payload for a room.
func (r *Registry) PresenceList(room string) events.PresenceListPayload {
	participants := r.List(room)
	payload := events.PresenceListPayload{Participants: make([]events.PresenceEntry, 0, len(participants))}
	for _, p := range participants {
		payload.Participants = append(payload.Participants, events.PresenceEntry{
			Identity:    p.Identity,
			DisplayName: p.DisplayName,
			Experience:  p.Experience,
			Bot:         p.Bot,
		})
	}
	return payload
}

// RoomList builds the room directory payload with live counts.
func (r *Registry) RoomList() events.RoomListPayload {
	payload := events.RoomListPayload{Rooms: make([]events.RoomInfo, 0, len(r.roomNames))}
	for _, name := range r.roomNames {
		payload.Rooms = append(payload.Rooms, events.RoomInfo{
			Name:         name,
			Participants: len(r.rooms[name]),
		})
	}
	return payload
}
