package chat

import (
	"context"
	"sort"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"roomchat/internal/metrics"
)

// Outbox is the transport side of one connection.
type Outbox interface {
	// Deliver queues payload without blocking and reports whether the
	// connection accepted it.
	Deliver(payload []byte) bool
	// Close ends the transport. Safe to call more than once.
	Close()
}

// Member is the registry entry of an authenticated connection.
type Member struct {
	ID        string `json:"-"`
	Username  string `json:"username"`
	Room      string `json:"room"`
	AvatarURL string `json:"avatarUrl,omitempty"`
}

type member struct {
	Member
	out     Outbox
	seq     uint64
	evicted bool
}

type scope int

const (
	scopeAll scope = iota
	scopeRoom
	scopeOthers
	scopeOne
)

type registration struct {
	member Member
	out    Outbox
	done   chan bool
}

type unregistration struct {
	id   string
	done chan bool
}

type joinRequest struct {
	id   string
	room string
	done chan bool
}

type delivery struct {
	scope   scope
	target  string
	payload []byte
	// build, when set, renders the payload from the roster at delivery time.
	build func(roster []string) ([]byte, error)
	done  chan int
}

// Hub owns the connection registry and room membership. All state lives on
// the goroutine started by Run; every method is a request to that goroutine.
type Hub struct {
	register   chan registration
	unregister chan unregistration
	join       chan joinRequest
	deliver    chan delivery
	snapshot   chan chan []Member
	done       chan struct{}
	log        zerolog.Logger

	members map[string]*member
	rooms   map[string]map[string]*member
	seq     uint64
}

func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		register:   make(chan registration),
		unregister: make(chan unregistration),
		join:       make(chan joinRequest),
		deliver:    make(chan delivery),
		snapshot:   make(chan chan []Member),
		done:       make(chan struct{}),
		log:        logger.With().Str("component", "hub").Logger(),
		members:    make(map[string]*member),
		rooms:      make(map[string]map[string]*member),
	}
}

// Run serves requests until ctx is cancelled, then closes every registered
// transport.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for _, m := range h.members {
				m.out.Close()
			}
			h.log.Info().Int("members", len(h.members)).Msg("hub stopped")
			return
		case req := <-h.register:
			req.done <- h.add(req.member, req.out)
		case req := <-h.unregister:
			req.done <- h.remove(req.id)
		case req := <-h.join:
			req.done <- h.move(req.id, req.room)
		case req := <-h.deliver:
			req.done <- h.fanOut(req)
		case reply := <-h.snapshot:
			reply <- h.list()
		}
	}
}

// Register adds an authenticated connection to the registry and to its room.
// It reports false when the id is already registered or the hub is stopped.
func (h *Hub) Register(m Member, out Outbox) bool {
	done := make(chan bool, 1)
	select {
	case h.register <- registration{member: m, out: out, done: done}:
		return <-done
	case <-h.done:
		return false
	}
}

// Unregister removes id from the registry. Unknown ids are a no-op.
func (h *Hub) Unregister(id string) bool {
	done := make(chan bool, 1)
	select {
	case h.unregister <- unregistration{id: id, done: done}:
		return <-done
	case <-h.done:
		return false
	}
}

// Join moves id into room, leaving its previous room.
func (h *Hub) Join(id, room string) bool {
	done := make(chan bool, 1)
	select {
	case h.join <- joinRequest{id: id, room: room, done: done}:
		return <-done
	case <-h.done:
		return false
	}
}

// BroadcastAll delivers payload to every registered connection and returns
// the number of connections that accepted it.
func (h *Hub) BroadcastAll(payload []byte) int {
	return h.send(delivery{scope: scopeAll, payload: payload})
}

// BroadcastRoom delivers payload to the members of room.
func (h *Hub) BroadcastRoom(room string, payload []byte) int {
	return h.send(delivery{scope: scopeRoom, target: room, payload: payload})
}

// BroadcastOthers delivers payload to every registered connection except id.
func (h *Hub) BroadcastOthers(id string, payload []byte) int {
	return h.send(delivery{scope: scopeOthers, target: id, payload: payload})
}

// SendTo delivers payload to the single connection id.
func (h *Hub) SendTo(id string, payload []byte) bool {
	return h.send(delivery{scope: scopeOne, target: id, payload: payload}) == 1
}

// Announce renders a payload from the roster as it stands when the request
// is served and delivers it to every registered connection. Announcements
// are served in registry order, so the last one received always matches the
// current registry.
func (h *Hub) Announce(build func(roster []string) ([]byte, error)) int {
	return h.send(delivery{scope: scopeAll, build: build})
}

// Members lists registered connections in registration order.
func (h *Hub) Members() []Member {
	reply := make(chan []Member, 1)
	select {
	case h.snapshot <- reply:
		return <-reply
	case <-h.done:
		return nil
	}
}

func (h *Hub) send(d delivery) int {
	d.done = make(chan int, 1)
	select {
	case h.deliver <- d:
		return <-d.done
	case <-h.done:
		return 0
	}
}

func (h *Hub) add(m Member, out Outbox) bool {
	if _, exists := h.members[m.ID]; exists {
		return false
	}
	h.seq++
	entry := &member{Member: m, out: out, seq: h.seq}
	h.members[m.ID] = entry
	h.roomSet(m.Room)[m.ID] = entry
	h.log.Debug().Str("conn", m.ID).Str("user", m.Username).Str("room", m.Room).Msg("registered")
	return true
}

func (h *Hub) remove(id string) bool {
	entry, exists := h.members[id]
	if !exists {
		return false
	}
	delete(h.members, id)
	h.leaveRoom(entry)
	h.log.Debug().Str("conn", id).Str("user", entry.Username).Msg("unregistered")
	return true
}

func (h *Hub) move(id, room string) bool {
	entry, exists := h.members[id]
	if !exists {
		return false
	}
	if entry.Room == room {
		return true
	}
	h.leaveRoom(entry)
	entry.Room = room
	h.roomSet(room)[id] = entry
	return true
}

func (h *Hub) roomSet(room string) map[string]*member {
	set, ok := h.rooms[room]
	if !ok {
		set = make(map[string]*member)
		h.rooms[room] = set
	}
	return set
}

func (h *Hub) leaveRoom(entry *member) {
	set, ok := h.rooms[entry.Room]
	if !ok {
		return
	}
	delete(set, entry.ID)
	if len(set) == 0 {
		delete(h.rooms, entry.Room)
	}
}

func (h *Hub) fanOut(d delivery) int {
	payload := d.payload
	if d.build != nil {
		rendered, err := d.build(h.roster())
		if err != nil {
			h.log.Error().Err(err).Msg("render announcement")
			return 0
		}
		payload = rendered
	}

	var targets map[string]*member
	switch d.scope {
	case scopeRoom:
		targets = h.rooms[d.target]
	case scopeOne:
		entry, ok := h.members[d.target]
		if !ok {
			return 0
		}
		targets = map[string]*member{entry.ID: entry}
	default:
		targets = h.members
	}

	delivered := 0
	for id, entry := range targets {
		if d.scope == scopeOthers && id == d.target {
			continue
		}
		if h.push(entry, payload) {
			delivered++
		}
	}
	return delivered
}

// push hands payload to one connection. A connection that cannot keep up is
// closed; its disconnect path unregisters it.
func (h *Hub) push(entry *member, payload []byte) bool {
	if entry.evicted {
		return false
	}
	if entry.out.Deliver(payload) {
		return true
	}
	entry.evicted = true
	metrics.DroppedDeliveries.Inc()
	h.log.Warn().Str("conn", entry.ID).Str("user", entry.Username).Msg("slow consumer, closing connection")
	entry.out.Close()
	return false
}

func (h *Hub) ordered() []*member {
	list := lo.Values(h.members)
	sort.Slice(list, func(i, j int) bool { return list[i].seq < list[j].seq })
	return list
}

func (h *Hub) roster() []string {
	return lo.Map(h.ordered(), func(entry *member, _ int) string { return entry.Username })
}

func (h *Hub) list() []Member {
	return lo.Map(h.ordered(), func(entry *member, _ int) Member { return entry.Member })
}
