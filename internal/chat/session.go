package chat

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"roomchat/internal/metrics"
)

// State is the lifecycle position of a session.
type State int

const (
	StateUnauthenticated State = iota
	StateAuthenticated
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAuthenticated:
		return "authenticated"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Session is the per-connection state machine. Handle and Disconnect are
// called from the connection's read goroutine.
type Session struct {
	id  string
	out Outbox
	svc *Service
	log zerolog.Logger

	mu       sync.Mutex
	state    State
	username string
	room     string
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Identity returns the username and current room of an authenticated session.
func (s *Session) Identity() (username, room string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.username, s.room
}

// Handle decodes one inbound frame and dispatches it. Frames that are not
// understood are dropped.
func (s *Session) Handle(ctx context.Context, raw []byte) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil || env.Event == "" {
		s.log.Debug().Err(err).Msg("dropping malformed frame")
		return
	}
	metrics.InboundEvents.WithLabelValues(eventLabel(env.Event)).Inc()

	switch s.State() {
	case StateDisconnected:
		return
	case StateUnauthenticated:
		if env.Event != EventAuthenticate {
			s.log.Debug().Str("event", env.Event).Msg("ignored before authentication")
			return
		}
		s.authenticate(ctx, env.Data)
		return
	}

	var err error
	switch env.Event {
	case EventJoinRoom:
		err = s.joinRoom(ctx, env.Data)
	case EventTyping:
		err = s.typing(env.Data)
	case EventSendMessage:
		err = s.sendMessage(ctx, env.Data)
	case EventEditMessage:
		err = s.editMessage(ctx, env.Data)
	case EventDeleteMessage:
		err = s.deleteMessage(ctx, env.Data)
	case EventSendReaction:
		err = s.sendReaction(ctx, env.Data)
	case EventPinMessage:
		err = s.pinMessage(env.Data)
	default:
		s.log.Debug().Str("event", env.Event).Msg("ignored event")
		return
	}
	s.report(env.Event, err)
}

// Disconnect leaves the registry and republishes the roster. Only the first
// call has an effect.
func (s *Session) Disconnect() {
	s.mu.Lock()
	prev := s.state
	s.state = StateDisconnected
	s.mu.Unlock()

	if prev != StateAuthenticated {
		return
	}
	if s.svc.hub.Unregister(s.id) {
		metrics.AuthenticatedSessions.Dec()
		s.svc.presence.Publish()
	}
	s.log.Info().Msg("session closed")
}

// Reject tells the client that event was refused with code.
func (s *Session) Reject(event, code, reason string) {
	s.send(EventError, ErrorEvent{Code: code, Event: event, Reason: reason})
}

func (s *Session) authenticate(ctx context.Context, data json.RawMessage) {
	var req AuthenticateRequest
	if err := decode(data, &req); err != nil {
		s.rejectAuth("Invalid authentication request")
		return
	}
	if err := s.svc.auth.Authenticate(req.Passkey, req.Username); err != nil {
		reason := "Authentication failed"
		var authErr *AuthError
		if errors.As(err, &authErr) {
			reason = authErr.Reason
		}
		s.rejectAuth(reason)
		return
	}

	room := req.Room
	if room == "" {
		room = s.svc.defaultRoom
	}
	if s.State() != StateUnauthenticated {
		return
	}

	member := Member{ID: s.id, Username: req.Username, Room: room, AvatarURL: req.AvatarURL}
	if !s.svc.hub.Register(member, s.out) {
		s.log.Warn().Msg("registry refused session")
		s.Reject(EventAuthenticate, CodeUnavailable, "chat service unavailable, try again")
		s.close()
		return
	}

	s.mu.Lock()
	s.state = StateAuthenticated
	s.username = req.Username
	s.room = room
	s.log = s.log.With().Str("user", req.Username).Logger()
	s.mu.Unlock()
	metrics.AuthenticatedSessions.Inc()
	s.log.Info().Str("room", room).Msg("session authenticated")
	s.svc.presence.Publish()

	history, err := s.svc.engine.History(ctx, room)
	if err != nil {
		s.report(EventAuthenticate, err)
		return
	}
	s.send(EventChatHistory, HistoryEvent{Room: room, Messages: history})
}

func (s *Session) rejectAuth(reason string) {
	metrics.AuthFailures.Inc()
	s.log.Info().Str("reason", reason).Msg("authentication rejected")
	s.send(EventAuthError, AuthErrorEvent{Reason: reason})
	s.close()
}

// close ends a session that never made it into the registry.
func (s *Session) close() {
	s.mu.Lock()
	s.state = StateDisconnected
	s.mu.Unlock()
	s.out.Close()
}

func (s *Session) joinRoom(ctx context.Context, data json.RawMessage) error {
	var req JoinRoomRequest
	if err := decode(data, &req); err != nil {
		return err
	}
	if !s.svc.hub.Join(s.id, req.Room) {
		return nil
	}
	s.mu.Lock()
	s.room = req.Room
	s.mu.Unlock()

	history, err := s.svc.engine.History(ctx, req.Room)
	if err != nil {
		return err
	}
	s.send(EventRoomHistory, HistoryEvent{Room: req.Room, Messages: history})
	return nil
}

func (s *Session) typing(data json.RawMessage) error {
	var req TypingRequest
	if err := decode(data, &req); err != nil {
		return err
	}
	username, _ := s.Identity()
	s.svc.presence.Typing(s.id, username, req.IsTyping)
	return nil
}

func (s *Session) sendMessage(ctx context.Context, data json.RawMessage) error {
	var req SendMessageRequest
	if err := decode(data, &req); err != nil {
		return err
	}
	_, err := s.svc.engine.Send(ctx, s.author(), req)
	return err
}

func (s *Session) editMessage(ctx context.Context, data json.RawMessage) error {
	var req EditMessageRequest
	if err := decode(data, &req); err != nil {
		return err
	}
	return s.svc.engine.Edit(ctx, s.author(), req)
}

func (s *Session) deleteMessage(ctx context.Context, data json.RawMessage) error {
	var req DeleteMessageRequest
	if err := decode(data, &req); err != nil {
		return err
	}
	return s.svc.engine.Delete(ctx, s.author(), req)
}

func (s *Session) sendReaction(ctx context.Context, data json.RawMessage) error {
	var req SendReactionRequest
	if err := decode(data, &req); err != nil {
		return err
	}
	return s.svc.engine.React(ctx, req)
}

func (s *Session) pinMessage(data json.RawMessage) error {
	var req PinMessageRequest
	if err := decode(data, &req); err != nil {
		return err
	}
	return s.svc.engine.Pin(req)
}

func (s *Session) author() Author {
	username, room := s.Identity()
	return Author{Username: username, Room: room}
}

// report turns an operation error into client feedback. Not-found and
// not-the-author failures are dropped silently.
func (s *Session) report(event string, err error) {
	switch {
	case err == nil:
		return
	case silent(err):
		s.log.Debug().Err(err).Str("event", event).Msg("operation dropped")
	case errors.Is(err, ErrValidation):
		s.log.Debug().Err(err).Str("event", event).Msg("invalid request")
		s.Reject(event, CodeValidation, err.Error())
	default:
		s.log.Error().Err(err).Str("event", event).Msg("operation failed")
		s.Reject(event, CodeUnavailable, "message store unavailable, try again")
	}
}

func (s *Session) send(event string, data any) {
	payload, err := Encode(event, data)
	if err != nil {
		s.log.Error().Err(err).Str("event", event).Msg("encode outbound event")
		return
	}
	// Registered sessions go through the hub so a full queue evicts them
	// the same way a broadcast would.
	if s.State() == StateAuthenticated {
		if !s.svc.hub.SendTo(s.id, payload) {
			s.log.Warn().Str("event", event).Msg("direct delivery refused")
		}
		return
	}
	if !s.out.Deliver(payload) {
		metrics.DroppedDeliveries.Inc()
		s.log.Warn().Str("event", event).Msg("outbound queue full")
	}
}

func decode(data json.RawMessage, dst any) error {
	if len(data) == 0 {
		data = json.RawMessage("{}")
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return invalid("malformed payload: %v", err)
	}
	if err := validate.Struct(dst); err != nil {
		return invalid("%v", err)
	}
	return nil
}

func eventLabel(event string) string {
	switch event {
	case EventAuthenticate, EventJoinRoom, EventTyping, EventSendMessage,
		EventEditMessage, EventDeleteMessage, EventSendReaction, EventPinMessage:
		return event
	default:
		return "unknown"
	}
}
