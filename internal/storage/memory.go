package storage

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore keeps messages in process memory. It backs tests and the
// "memory" driver; nothing survives a restart.
type MemoryStore struct {
	mu       sync.RWMutex
	messages map[string]*Message
	rooms    map[string][]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		messages: make(map[string]*Message),
		rooms:    make(map[string][]string),
	}
}

func (s *MemoryStore) Insert(_ context.Context, msg *Message) (string, error) {
	stamp(msg)
	stored := clone(msg)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages[stored.ID] = stored
	s.rooms[stored.Room] = append(s.rooms[stored.Room], stored.ID)
	return stored.ID, nil
}

func (s *MemoryStore) FindByID(_ context.Context, id string) (*Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msg, ok := s.messages[id]
	if !ok {
		return nil, nil
	}
	return clone(msg), nil
}

func (s *MemoryStore) FindByRoom(_ context.Context, room string, limit int) ([]Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.rooms[room]
	out := make([]Message, 0, len(ids))
	for _, id := range ids {
		out = append(out, *clone(s.messages[id]))
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (s *MemoryStore) Update(_ context.Context, id string, update Update) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg, ok := s.messages[id]
	if !ok {
		return ErrNotFound
	}
	apply(msg, update)
	return nil
}

func (s *MemoryStore) DeleteByID(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg, ok := s.messages[id]
	if !ok {
		return ErrNotFound
	}
	delete(s.messages, id)
	ids := s.rooms[msg.Room]
	for i, candidate := range ids {
		if candidate == id {
			s.rooms[msg.Room] = append(ids[:i:i], ids[i+1:]...)
			break
		}
	}
	if len(s.rooms[msg.Room]) == 0 {
		delete(s.rooms, msg.Room)
	}
	return nil
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }

func clone(msg *Message) *Message {
	copied := *msg
	copied.Reactions = append([]Reaction{}, msg.Reactions...)
	return &copied
}
