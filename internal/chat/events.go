package chat

import (
	"encoding/json"
	"time"

	"roomchat/internal/storage"
)

// Inbound event names.
const (
	EventAuthenticate  = "authenticate"
	EventJoinRoom      = "join_room"
	EventTyping        = "typing"
	EventSendMessage   = "send_message"
	EventEditMessage   = "edit_message"
	EventDeleteMessage = "delete_message"
	EventSendReaction  = "send_reaction"
	EventPinMessage    = "pin_message"
)

// Outbound event names. edit_message, delete_message and pin_message are
// echoed under their inbound names.
const (
	EventAuthError      = "auth_error"
	EventUserList       = "user_list"
	EventChatHistory    = "chat_history"
	EventRoomHistory    = "room_history"
	EventUserTyping     = "user_typing"
	EventReceiveMessage = "receive_message"
	EventReactionUpdate = "reaction_update"
	EventError          = "error"
)

// Error codes carried by the error event.
const (
	CodeValidation  = "validation"
	CodeUnavailable = "unavailable"
	CodeRateLimited = "rate_limited"
)

// Envelope is the frame exchanged in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Encode builds a wire frame for event.
func Encode(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: event, Data: raw})
}

type AuthenticateRequest struct {
	Passkey   string `json:"passkey"`
	Username  string `json:"username" validate:"required,max=64"`
	Room      string `json:"room" validate:"max=64"`
	AvatarURL string `json:"avatarUrl" validate:"max=2048"`
}

type JoinRoomRequest struct {
	Room string `json:"room" validate:"required,max=64"`
}

type TypingRequest struct {
	IsTyping bool `json:"isTyping"`
}

type SendMessageRequest struct {
	Text      string `json:"text" validate:"max=4000"`
	Recipient string `json:"recipient" validate:"max=64"`
	Room      string `json:"room" validate:"max=64"`
	FileURL   string `json:"fileUrl" validate:"max=2048"`
	FileType  string `json:"fileType" validate:"max=255"`
}

type EditMessageRequest struct {
	MessageID string `json:"messageId" validate:"required"`
	NewText   string `json:"newText" validate:"max=4000"`
}

type DeleteMessageRequest struct {
	MessageID string `json:"messageId" validate:"required"`
}

type Reaction struct {
	Username string `json:"username" validate:"max=64"`
	Symbol   string `json:"symbol" validate:"required,max=32"`
}

type SendReactionRequest struct {
	MessageID string   `json:"messageId" validate:"required"`
	Reaction  Reaction `json:"reaction"`
}

type PinMessageRequest struct {
	Message json.RawMessage `json:"message" validate:"required"`
}

// MessageView is the wire form of a stored message.
type MessageView struct {
	ID        string             `json:"id"`
	User      string             `json:"user"`
	Text      string             `json:"text"`
	Recipient string             `json:"recipient"`
	Room      string             `json:"room"`
	FileURL   string             `json:"fileUrl,omitempty"`
	FileType  string             `json:"fileType,omitempty"`
	Reactions []storage.Reaction `json:"reactions"`
	Timestamp time.Time          `json:"timestamp"`
}

func newMessageView(msg storage.Message) MessageView {
	reactions := msg.Reactions
	if reactions == nil {
		reactions = []storage.Reaction{}
	}
	return MessageView{
		ID:        msg.ID,
		User:      msg.User,
		Text:      msg.Text,
		Recipient: msg.Recipient,
		Room:      msg.Room,
		FileURL:   msg.File.URL,
		FileType:  msg.File.Type,
		Reactions: reactions,
		Timestamp: msg.CreatedAt,
	}
}

type AuthErrorEvent struct {
	Reason string `json:"reason"`
}

type UserListEvent struct {
	Usernames []string `json:"usernames"`
}

type HistoryEvent struct {
	Room     string        `json:"room"`
	Messages []MessageView `json:"messages"`
}

type UserTypingEvent struct {
	User     string `json:"user"`
	IsTyping bool   `json:"isTyping"`
}

type ReceiveMessageEvent struct {
	Message MessageView `json:"message"`
}

type EditMessageEvent struct {
	MessageID string `json:"messageId"`
	NewText   string `json:"newText"`
}

type DeleteMessageEvent struct {
	MessageID string `json:"messageId"`
}

type ReactionUpdateEvent struct {
	MessageID string             `json:"messageId"`
	Reactions []storage.Reaction `json:"reactions"`
}

type PinMessageEvent struct {
	Message json.RawMessage `json:"message"`
}

type ErrorEvent struct {
	Code   string `json:"code"`
	Event  string `json:"event,omitempty"`
	Reason string `json:"reason"`
}
