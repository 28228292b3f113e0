package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
)

// BadgerStore is an embedded key-value Store.
//
// Two key families are written:
//
//	msg:{id}                                  -> JSON message
//	room:{len}:{room}:{created_at_padded}:{id} -> id
//
// The room index uses a 19-digit zero padded UnixNano so that a reverse
// prefix scan yields the newest messages first. The room name is length
// prefixed so that no room's prefix is a prefix of another room's.
type BadgerStore struct {
	db *badger.DB
}

// NewBadgerStore opens (or creates) a Badger database in dir.
func NewBadgerStore(dir string) (*BadgerStore, error) {
	db, err := badger.Open(badger.DefaultOptions(dir).WithLoggingLevel(badger.ERROR))
	if err != nil {
		return nil, err
	}
	return &BadgerStore{db: db}, nil
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}

func (s *BadgerStore) Ping(context.Context) error {
	if s.db.IsClosed() {
		return errors.New("badger: database is closed")
	}
	return nil
}

func badgerMessageKey(id string) []byte {
	return []byte("msg:" + id)
}

func badgerRoomPrefix(room string) []byte {
	return []byte(fmt.Sprintf("room:%d:%s:", len(room), room))
}

func badgerRoomKey(msg *Message) []byte {
	return append(badgerRoomPrefix(msg.Room), []byte(fmt.Sprintf("%019d:%s", msg.CreatedAt.UnixNano(), msg.ID))...)
}

func (s *BadgerStore) Insert(_ context.Context, msg *Message) (string, error) {
	stamp(msg)
	data, err := json.Marshal(msg)
	if err != nil {
		return "", err
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(badgerMessageKey(msg.ID), data); err != nil {
			return err
		}
		return txn.Set(badgerRoomKey(msg), []byte(msg.ID))
	})
	if err != nil {
		return "", err
	}
	return msg.ID, nil
}

func (s *BadgerStore) FindByID(_ context.Context, id string) (*Message, error) {
	var msg *Message
	err := s.db.View(func(txn *badger.Txn) error {
		found, err := getMessage(txn, id)
		msg = found
		return err
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return msg, nil
}

func (s *BadgerStore) FindByRoom(_ context.Context, room string, limit int) ([]Message, error) {
	messages := make([]Message, 0, limit)
	err := s.db.View(func(txn *badger.Txn) error {
		prefix := badgerRoomPrefix(room)
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		options.Prefix = prefix
		it := txn.NewIterator(options)
		defer it.Close()

		// one past the largest possible padded timestamp
		seekKey := append(append([]byte{}, prefix...), 0xFF)
		for it.Seek(seekKey); it.ValidForPrefix(prefix) && len(messages) < limit; it.Next() {
			id, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			msg, err := getMessage(txn, string(id))
			if err != nil {
				return err
			}
			messages = append(messages, *msg)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

func (s *BadgerStore) Update(_ context.Context, id string, update Update) error {
	if update.empty() {
		return nil
	}
	return translateMissing(s.db.Update(func(txn *badger.Txn) error {
		msg, err := getMessage(txn, id)
		if err != nil {
			return err
		}
		apply(msg, update)
		data, err := json.Marshal(msg)
		if err != nil {
			return err
		}
		return txn.Set(badgerMessageKey(id), data)
	}))
}

func (s *BadgerStore) DeleteByID(_ context.Context, id string) error {
	return translateMissing(s.db.Update(func(txn *badger.Txn) error {
		msg, err := getMessage(txn, id)
		if err != nil {
			return err
		}
		if err := txn.Delete(badgerRoomKey(msg)); err != nil {
			return err
		}
		return txn.Delete(badgerMessageKey(id))
	}))
}

func getMessage(txn *badger.Txn, id string) (*Message, error) {
	item, err := txn.Get(badgerMessageKey(id))
	if err != nil {
		return nil, err
	}
	var msg Message
	err = item.Value(func(value []byte) error {
		return json.Unmarshal(value, &msg)
	})
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

func translateMissing(err error) error {
	if errors.Is(err, badger.ErrKeyNotFound) {
		return ErrNotFound
	}
	return err
}
