package storage

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
)

// ErrNotFound is returned by Update and DeleteByID when the id is unknown.
var ErrNotFound = errors.New("message not found")

// Reaction is a single {username, symbol} annotation on a message.
type Reaction struct {
	Username string `json:"username"`
	Symbol   string `json:"symbol"`
}

// FileRef points at an uploaded attachment. Both fields are opaque to the store.
type FileRef struct {
	URL  string `json:"fileUrl,omitempty"`
	Type string `json:"fileType,omitempty"`
}

// Message is the durable record of a chat message.
type Message struct {
	ID        string     `json:"id"`
	User      string     `json:"user"`
	Text      string     `json:"text"`
	Recipient string     `json:"recipient"`
	Room      string     `json:"room"`
	File      FileRef    `json:"file"`
	Reactions []Reaction `json:"reactions"`
	CreatedAt time.Time  `json:"createdAt"`
}

// Update carries the mutable fields of a message. Nil fields are left alone.
type Update struct {
	Text      *string
	Reactions []Reaction
}

func (u Update) empty() bool {
	return u.Text == nil && u.Reactions == nil
}

// Store is the persistence collaborator of the chat engine. Implementations
// must be safe for concurrent use.
type Store interface {
	// Insert assigns ID and CreatedAt to msg, persists it and returns the id.
	Insert(ctx context.Context, msg *Message) (string, error)
	// FindByID returns nil, nil when the message does not exist.
	FindByID(ctx context.Context, id string) (*Message, error)
	// FindByRoom returns at most limit of the room's newest messages,
	// ordered oldest first.
	FindByRoom(ctx context.Context, room string, limit int) ([]Message, error)
	Update(ctx context.Context, id string, update Update) error
	DeleteByID(ctx context.Context, id string) error
	Ping(ctx context.Context) error
	Close() error
}

// Migrator is implemented by stores that need schema setup before use.
type Migrator interface {
	Migrate(ctx context.Context) error
}

// stamp fills in the generated fields of a message about to be inserted.
func stamp(msg *Message) {
	now := time.Now().UTC()
	msg.ID = ulid.Make().String()
	msg.CreatedAt = now
	if msg.Reactions == nil {
		msg.Reactions = []Reaction{}
	}
}

func apply(msg *Message, update Update) {
	if update.Text != nil {
		msg.Text = *update.Text
	}
	if update.Reactions != nil {
		msg.Reactions = append([]Reaction(nil), update.Reactions...)
	}
}

func encodeReactions(reactions []Reaction) (string, error) {
	if reactions == nil {
		reactions = []Reaction{}
	}
	raw, err := json.Marshal(reactions)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func decodeReactions(raw string) ([]Reaction, error) {
	reactions := []Reaction{}
	if raw == "" {
		return reactions, nil
	}
	if err := json.Unmarshal([]byte(raw), &reactions); err != nil {
		return nil, err
	}
	return reactions, nil
}
