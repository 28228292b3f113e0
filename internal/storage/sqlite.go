package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const defaultBusyTimeout = 5000

// SQLiteStore wraps the SQLite handle and implements Store.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens the SQLite database at the provided path. Call Close when done.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		path = "roomchat.db"
	}
	db, err := sql.Open("sqlite", buildDSN(path))
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d;", defaultBusyTimeout)); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

// Close releases the underlying DB connection.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func buildDSN(path string) string {
	switch {
	case strings.HasPrefix(path, "sqlite://"):
		path = path[len("sqlite://"):]
	case strings.HasPrefix(path, "file:"), strings.HasPrefix(path, ":memory:"):
		// already in a form sqlite understands
	default:
		path = "file:" + path
	}
	separator := "?"
	if strings.Contains(path, "?") {
		separator = "&"
	}
	return fmt.Sprintf("%s%s_pragma=busy_timeout=%d&_pragma=journal_mode=WAL", path, separator, defaultBusyTimeout)
}

// Migrate runs the schema creation statements.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			room TEXT NOT NULL,
			author TEXT NOT NULL,
			body TEXT NOT NULL DEFAULT '',
			recipient TEXT NOT NULL DEFAULT '',
			file_url TEXT NOT NULL DEFAULT '',
			file_type TEXT NOT NULL DEFAULT '',
			reactions TEXT NOT NULL DEFAULT '[]',
			created_at INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_messages_room_created ON messages(room, created_at, id);`,
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	for _, stmt := range statements {
		if _, err = tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) Insert(ctx context.Context, msg *Message) (string, error) {
	stamp(msg)
	reactions, err := encodeReactions(msg.Reactions)
	if err != nil {
		return "", err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO messages(id, room, author, body, recipient, file_url, file_type, reactions, created_at)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		msg.ID, msg.Room, msg.User, msg.Text, msg.Recipient, msg.File.URL, msg.File.Type, reactions, msg.CreatedAt.UnixNano())
	if err != nil {
		return "", err
	}
	return msg.ID, nil
}

func (s *SQLiteStore) FindByID(ctx context.Context, id string) (*Message, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, room, author, body, recipient, file_url, file_type, reactions, created_at
		FROM messages WHERE id = ?`, id)
	msg, err := scanMessage(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return msg, nil
}

func (s *SQLiteStore) FindByRoom(ctx context.Context, room string, limit int) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, room, author, body, recipient, file_url, file_type, reactions, created_at FROM (
			SELECT * FROM messages
			WHERE room = ?
			ORDER BY created_at DESC, id DESC
			LIMIT ?
		) ORDER BY created_at ASC, id ASC`, room, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := make([]Message, 0, limit)
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, *msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return messages, nil
}

func (s *SQLiteStore) Update(ctx context.Context, id string, update Update) error {
	if update.empty() {
		return nil
	}
	sets := make([]string, 0, 2)
	args := make([]any, 0, 3)
	if update.Text != nil {
		sets = append(sets, "body = ?")
		args = append(args, *update.Text)
	}
	if update.Reactions != nil {
		reactions, err := encodeReactions(update.Reactions)
		if err != nil {
			return err
		}
		sets = append(sets, "reactions = ?")
		args = append(args, reactions)
	}
	args = append(args, id)
	result, err := s.db.ExecContext(ctx, `UPDATE messages SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return err
	}
	return requireAffected(result)
}

func (s *SQLiteStore) DeleteByID(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireAffected(result)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(row rowScanner) (*Message, error) {
	var (
		msg       Message
		reactions string
		createdAt int64
	)
	if err := row.Scan(&msg.ID, &msg.Room, &msg.User, &msg.Text, &msg.Recipient, &msg.File.URL, &msg.File.Type, &reactions, &createdAt); err != nil {
		return nil, err
	}
	decoded, err := decodeReactions(reactions)
	if err != nil {
		return nil, fmt.Errorf("decode reactions of %s: %w", msg.ID, err)
	}
	msg.Reactions = decoded
	msg.CreatedAt = time.Unix(0, createdAt).UTC()
	return &msg, nil
}

func requireAffected(result sql.Result) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}
