package chat

import "github.com/rs/zerolog"

// Presence publishes the roster and typing signals.
type Presence struct {
	hub *Hub
	log zerolog.Logger
}

func NewPresence(hub *Hub, logger zerolog.Logger) *Presence {
	return &Presence{hub: hub, log: logger.With().Str("component", "presence").Logger()}
}

// Publish sends the current roster to every authenticated connection.
func (p *Presence) Publish() {
	p.hub.Announce(func(roster []string) ([]byte, error) {
		return Encode(EventUserList, UserListEvent{Usernames: roster})
	})
}

// Typing relays a typing signal from id to every other authenticated
// connection, whatever room they are in.
func (p *Presence) Typing(id, username string, isTyping bool) {
	payload, err := Encode(EventUserTyping, UserTypingEvent{User: username, IsTyping: isTyping})
	if err != nil {
		p.log.Error().Err(err).Msg("encode typing")
		return
	}
	p.hub.BroadcastOthers(id, payload)
}

// Online lists the authenticated connections in authentication order.
func (p *Presence) Online() []Member {
	return p.hub.Members()
}
