package chat

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"roomchat/internal/metrics"
	"roomchat/internal/storage"
)

// Author identifies the session performing a message operation.
type Author struct {
	Username string
	Room     string
}

// Engine runs the message lifecycle: create, edit, delete, react, pin.
type Engine struct {
	store        storage.Store
	hub          *Hub
	locks        *lockTable
	log          zerolog.Logger
	defaultRoom  string
	historyLimit int
}

func NewEngine(store storage.Store, hub *Hub, logger zerolog.Logger, defaultRoom string, historyLimit int) *Engine {
	return &Engine{
		store:        store,
		hub:          hub,
		locks:        newLockTable(),
		log:          logger.With().Str("component", "engine").Logger(),
		defaultRoom:  defaultRoom,
		historyLimit: historyLimit,
	}
}

// History returns the newest messages of room, oldest first.
func (e *Engine) History(ctx context.Context, room string) ([]MessageView, error) {
	msgs, err := e.store.FindByRoom(ctx, room, e.historyLimit)
	if err != nil {
		return nil, unavailable("find_by_room", err)
	}
	return lo.Map(msgs, func(msg storage.Message, _ int) MessageView { return newMessageView(msg) }), nil
}

// Send persists a new message and broadcasts it to the members of its room.
// The author is always the session's username.
func (e *Engine) Send(ctx context.Context, author Author, req SendMessageRequest) (*MessageView, error) {
	if strings.TrimSpace(req.Text) == "" && req.FileURL == "" {
		return nil, invalid("message has neither text nor file")
	}
	room := lo.CoalesceOrEmpty(req.Room, author.Room, e.defaultRoom)

	msg := &storage.Message{
		User:      author.Username,
		Text:      req.Text,
		Recipient: req.Recipient,
		Room:      room,
		File:      storage.FileRef{URL: req.FileURL, Type: req.FileType},
	}
	if _, err := e.store.Insert(ctx, msg); err != nil {
		return nil, unavailable("insert", err)
	}
	metrics.MessagesCreated.Inc()

	view := newMessageView(*msg)
	payload, err := Encode(EventReceiveMessage, ReceiveMessageEvent{Message: view})
	if err != nil {
		return nil, err
	}
	n := e.hub.BroadcastRoom(room, payload)
	e.log.Debug().Str("id", msg.ID).Str("room", room).Str("user", author.Username).Int("recipients", n).Msg("message sent")
	return &view, nil
}

// Edit replaces the text of a message owned by author and broadcasts the
// change to every authenticated connection.
func (e *Engine) Edit(ctx context.Context, author Author, req EditMessageRequest) error {
	unlock := e.locks.Lock(req.MessageID)
	defer unlock()

	msg, err := e.owned(ctx, author, req.MessageID)
	if err != nil {
		return err
	}
	if strings.TrimSpace(req.NewText) == "" && msg.File.URL == "" {
		return invalid("edit would leave the message with neither text nor file")
	}
	text := req.NewText
	if err := e.store.Update(ctx, req.MessageID, storage.Update{Text: &text}); err != nil {
		return e.storeErr("update", err)
	}
	payload, err := Encode(EventEditMessage, EditMessageEvent{MessageID: req.MessageID, NewText: text})
	if err != nil {
		return err
	}
	e.hub.BroadcastAll(payload)
	return nil
}

// Delete removes a message owned by author and broadcasts the removal to
// every authenticated connection.
func (e *Engine) Delete(ctx context.Context, author Author, req DeleteMessageRequest) error {
	unlock := e.locks.Lock(req.MessageID)
	defer unlock()

	if _, err := e.owned(ctx, author, req.MessageID); err != nil {
		return err
	}
	if err := e.store.DeleteByID(ctx, req.MessageID); err != nil {
		return e.storeErr("delete", err)
	}
	payload, err := Encode(EventDeleteMessage, DeleteMessageEvent{MessageID: req.MessageID})
	if err != nil {
		return err
	}
	e.hub.BroadcastAll(payload)
	return nil
}

// React appends a reaction to any message and broadcasts the full reaction
// list. The reaction is stored as received.
func (e *Engine) React(ctx context.Context, req SendReactionRequest) error {
	unlock := e.locks.Lock(req.MessageID)
	defer unlock()

	msg, err := e.find(ctx, req.MessageID)
	if err != nil {
		return err
	}
	reactions := append(msg.Reactions, storage.Reaction{
		Username: req.Reaction.Username,
		Symbol:   req.Reaction.Symbol,
	})
	if err := e.store.Update(ctx, req.MessageID, storage.Update{Reactions: reactions}); err != nil {
		return e.storeErr("update", err)
	}
	payload, err := Encode(EventReactionUpdate, ReactionUpdateEvent{MessageID: req.MessageID, Reactions: reactions})
	if err != nil {
		return err
	}
	e.hub.BroadcastAll(payload)
	return nil
}

// Pin relays the client-supplied message to every authenticated connection.
// Nothing is stored.
func (e *Engine) Pin(req PinMessageRequest) error {
	payload, err := Encode(EventPinMessage, PinMessageEvent{Message: req.Message})
	if err != nil {
		return err
	}
	e.hub.BroadcastAll(payload)
	return nil
}

func (e *Engine) find(ctx context.Context, id string) (*storage.Message, error) {
	msg, err := e.store.FindByID(ctx, id)
	if err != nil {
		return nil, unavailable("find_by_id", err)
	}
	if msg == nil {
		return nil, ErrNotFound
	}
	return msg, nil
}

func (e *Engine) owned(ctx context.Context, author Author, id string) (*storage.Message, error) {
	msg, err := e.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if msg.User != author.Username {
		return nil, ErrAuthorization
	}
	return msg, nil
}

func (e *Engine) storeErr(op string, err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return ErrNotFound
	}
	return unavailable(op, err)
}
