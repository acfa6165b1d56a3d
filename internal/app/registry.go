package app

import (
	"hash/fnv"
	"sort"
	"sync"

	"github.com/dkeye/Proctor/internal/domain"
	"github.com/dkeye/Proctor/internal/metrics"
	"github.com/rs/zerolog/log"
)

// room is one session's membership set with its own lock.
// deleted is set, under mu, when the last member leaves; holders of a stale
// pointer must look the room up again.
type room struct {
	mu      sync.Mutex
	id      domain.SessionID
	members map[domain.ConnectionID]domain.Role
	deleted bool
}

func (rm *room) snapshot(exclude domain.ConnectionID) []domain.Member {
	out := make([]domain.Member, 0, len(rm.members))
	for id, role := range rm.members {
		if id == exclude {
			continue
		}
		out = append(out, domain.Member{ID: id, Role: role})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

type JoinResult struct {
	// Others are the members present before the joiner, in id order.
	Others []domain.Member
	// Added is false when the call changed nothing.
	Added bool
	// Role is the joiner's role after the call.
	Role domain.Role
	// Upgraded is true when an existing observer became a participant.
	Upgraded bool
}

type LeaveResult struct {
	// Removed is false when the connection was not a member.
	Removed bool
	// RoomDeleted is true when the leaver was the last member.
	RoomDeleted bool
	// Remaining is the membership right after the removal.
	Remaining []domain.Member
}

// Registry is the single owner of room membership.
//
// Every room is guarded by its own mutex. The outer map lock is only held to
// look up, insert or delete a room pointer, never while waiting on a room, so
// unrelated sessions do not contend. The reverse index is sharded by
// connection id. Lock order is room.mu -> Registry.mu -> indexShard.mu.
type Registry struct {
	mu    sync.RWMutex
	rooms map[domain.SessionID]*room

	index [indexShards]indexShard
}

const indexShards = 32

type indexShard struct {
	mu    sync.Mutex
	rooms map[domain.ConnectionID]map[domain.SessionID]struct{}
}

func NewRegistry() *Registry {
	r := &Registry{rooms: make(map[domain.SessionID]*room)}
	for i := range r.index {
		r.index[i].rooms = make(map[domain.ConnectionID]map[domain.SessionID]struct{})
	}
	return r
}

func (r *Registry) shard(id domain.ConnectionID) *indexShard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	return &r.index[h.Sum32()%indexShards]
}

func (r *Registry) getOrCreate(sid domain.SessionID) *room {
	r.mu.RLock()
	rm, ok := r.rooms[sid]
	r.mu.RUnlock()
	if ok {
		return rm
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if rm, ok = r.rooms[sid]; ok {
		return rm
	}
	rm = &room{id: sid, members: make(map[domain.ConnectionID]domain.Role)}
	r.rooms[sid] = rm
	metrics.ActiveRooms.Inc()
	log.Debug().Str("module", "app.registry").Str("session_id", string(sid)).Msg("room created")
	return rm
}

func (r *Registry) lookup(sid domain.SessionID) (*room, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rm, ok := r.rooms[sid]
	return rm, ok
}

// Join adds id to the room of sid with role, creating the room if needed.
// Joining again with the same role is a no-op. A participant stays a
// participant when it also subscribes; an observer joining as participant is
// upgraded and that counts as a join.
func (r *Registry) Join(sid domain.SessionID, id domain.ConnectionID, role domain.Role) JoinResult {
	for {
		rm := r.getOrCreate(sid)
		rm.mu.Lock()
		if rm.deleted {
			// Lost a race with the last leaver; the next lookup creates a fresh room.
			rm.mu.Unlock()
			continue
		}

		res := JoinResult{Others: rm.snapshot(id), Role: role}
		prev, member := rm.members[id]
		switch {
		case member && (prev == role || prev == domain.RoleParticipant):
			res.Role = prev
		default:
			rm.members[id] = role
			res.Added = true
			res.Upgraded = member
			if !member {
				r.indexAdd(id, sid)
			}
		}
		rm.mu.Unlock()

		if res.Added {
			log.Info().Str("module", "app.registry").Str("session_id", string(sid)).Str("conn_id", string(id)).Str("role", string(role)).Msg("member joined")
		}
		return res
	}
}

// Leave removes id from the room of sid. The room is deleted in the same
// critical section that empties it.
func (r *Registry) Leave(sid domain.SessionID, id domain.ConnectionID) LeaveResult {
	rm, ok := r.lookup(sid)
	if !ok {
		return LeaveResult{}
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()
	if rm.deleted {
		return LeaveResult{}
	}
	if _, ok := rm.members[id]; !ok {
		return LeaveResult{}
	}
	delete(rm.members, id)
	r.indexRemove(id, sid)

	res := LeaveResult{Removed: true, Remaining: rm.snapshot("")}
	if len(rm.members) == 0 {
		rm.deleted = true
		r.mu.Lock()
		if r.rooms[sid] == rm {
			delete(r.rooms, sid)
		}
		r.mu.Unlock()
		metrics.ActiveRooms.Dec()
		res.RoomDeleted = true
	}
	log.Info().Str("module", "app.registry").Str("session_id", string(sid)).Str("conn_id", string(id)).Bool("room_deleted", res.RoomDeleted).Msg("member left")
	return res
}

// Members is a consistent snapshot of the room of sid, nil when absent.
func (r *Registry) Members(sid domain.SessionID) []domain.Member {
	rm, ok := r.lookup(sid)
	if !ok {
		return nil
	}
	rm.mu.Lock()
	defer rm.mu.Unlock()
	if rm.deleted {
		return nil
	}
	return rm.snapshot("")
}

// RoleOf reports the role id holds in the room of sid.
func (r *Registry) RoleOf(sid domain.SessionID, id domain.ConnectionID) (domain.Role, bool) {
	rm, ok := r.lookup(sid)
	if !ok {
		return "", false
	}
	rm.mu.Lock()
	defer rm.mu.Unlock()
	if rm.deleted {
		return "", false
	}
	role, ok := rm.members[id]
	return role, ok
}

// RoomsContaining lists every session id currently holds a membership in.
func (r *Registry) RoomsContaining(id domain.ConnectionID) []domain.SessionID {
	sh := r.shard(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	set := sh.rooms[id]
	out := make([]domain.SessionID, 0, len(set))
	for sid := range set {
		out = append(out, sid)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Exists reports whether the room of sid has members.
func (r *Registry) Exists(sid domain.SessionID) bool {
	_, ok := r.lookup(sid)
	return ok
}

// Len is the number of live rooms.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

func (r *Registry) indexAdd(id domain.ConnectionID, sid domain.SessionID) {
	sh := r.shard(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	set, ok := sh.rooms[id]
	if !ok {
		set = make(map[domain.SessionID]struct{})
		sh.rooms[id] = set
	}
	set[sid] = struct{}{}
}

func (r *Registry) indexRemove(id domain.ConnectionID, sid domain.SessionID) {
	sh := r.shard(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if set, ok := sh.rooms[id]; ok {
		delete(set, sid)
		if len(set) == 0 {
			delete(sh.rooms, id)
		}
	}
}
