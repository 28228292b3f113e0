package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore handles PostgreSQL message storage through a connection pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL store with a connection pool.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Migrate creates the messages table and its room index.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			room TEXT NOT NULL,
			author TEXT NOT NULL,
			body TEXT NOT NULL DEFAULT '',
			recipient TEXT NOT NULL DEFAULT '',
			file_url TEXT NOT NULL DEFAULT '',
			file_type TEXT NOT NULL DEFAULT '',
			reactions JSONB NOT NULL DEFAULT '[]'::jsonb,
			created_at TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_messages_room_created ON messages(room, created_at, id);
	`)
	return err
}

func (s *PostgresStore) Insert(ctx context.Context, msg *Message) (string, error) {
	stamp(msg)
	reactions, err := encodeReactions(msg.Reactions)
	if err != nil {
		return "", err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO messages (id, room, author, body, recipient, file_url, file_type, reactions, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8::jsonb, $9)
	`, msg.ID, msg.Room, msg.User, msg.Text, msg.Recipient, msg.File.URL, msg.File.Type, reactions, msg.CreatedAt)
	if err != nil {
		return "", err
	}
	return msg.ID, nil
}

func (s *PostgresStore) FindByID(ctx context.Context, id string) (*Message, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, room, author, body, recipient, file_url, file_type, reactions::text, created_at
		FROM messages WHERE id = $1
	`, id)
	msg, err := scanPgMessage(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return msg, nil
}

func (s *PostgresStore) FindByRoom(ctx context.Context, room string, limit int) ([]Message, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, room, author, body, recipient, file_url, file_type, reactions, created_at FROM (
			SELECT id, room, author, body, recipient, file_url, file_type, reactions::text AS reactions, created_at
			FROM messages
			WHERE room = $1
			ORDER BY created_at DESC, id DESC
			LIMIT $2
		) AS recent
		ORDER BY created_at ASC, id ASC
	`, room, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := make([]Message, 0, limit)
	for rows.Next() {
		msg, err := scanPgMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, *msg)
	}
	return messages, rows.Err()
}

func (s *PostgresStore) Update(ctx context.Context, id string, update Update) error {
	if update.empty() {
		return nil
	}
	sets := make([]string, 0, 2)
	args := make([]any, 0, 3)
	if update.Text != nil {
		args = append(args, *update.Text)
		sets = append(sets, fmt.Sprintf("body = $%d", len(args)))
	}
	if update.Reactions != nil {
		reactions, err := encodeReactions(update.Reactions)
		if err != nil {
			return err
		}
		args = append(args, reactions)
		sets = append(sets, fmt.Sprintf("reactions = $%d::jsonb", len(args)))
	}
	args = append(args, id)
	tag, err := s.pool.Exec(ctx, fmt.Sprintf(`UPDATE messages SET %s WHERE id = $%d`, strings.Join(sets, ", "), len(args)), args...)
	return checkTag(tag, err)
}

func (s *PostgresStore) DeleteByID(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM messages WHERE id = $1`, id)
	return checkTag(tag, err)
}

func checkTag(tag pgconn.CommandTag, err error) error {
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanPgMessage(row pgx.Row) (*Message, error) {
	var (
		msg       Message
		reactions string
	)
	if err := row.Scan(&msg.ID, &msg.Room, &msg.User, &msg.Text, &msg.Recipient, &msg.File.URL, &msg.File.Type, &reactions, &msg.CreatedAt); err != nil {
		return nil, err
	}
	decoded, err := decodeReactions(reactions)
	if err != nil {
		return nil, fmt.Errorf("decode reactions of %s: %w", msg.ID, err)
	}
	msg.Reactions = decoded
	msg.CreatedAt = msg.CreatedAt.UTC()
	return &msg, nil
}
