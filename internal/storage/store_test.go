package storage

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestStores(t *testing.T) {
	drivers := map[string]func(t *testing.T) Store{
		"memory": func(*testing.T) Store { return NewMemoryStore() },
		"sqlite": newTestSQLiteStore,
		"badger": newTestBadgerStore,
	}
	if url := os.Getenv("TEST_DATABASE_URL"); url != "" {
		drivers["postgres"] = func(t *testing.T) Store { return newTestPostgresStore(t, url) }
	}
	if url := os.Getenv("TEST_REDIS_URL"); url != "" {
		drivers["redis"] = func(t *testing.T) Store { return newTestRedisStore(t, url) }
	}

	for name, open := range drivers {
		t.Run(name, func(t *testing.T) {
			t.Run("insert and find", func(t *testing.T) { testInsertAndFind(t, open(t)) })
			t.Run("room history", func(t *testing.T) { testRoomHistory(t, open(t)) })
			t.Run("update", func(t *testing.T) { testUpdate(t, open(t)) })
			t.Run("delete", func(t *testing.T) { testDelete(t, open(t)) })
		})
	}
}

func testInsertAndFind(t *testing.T, store Store) {
	req := require.New(t)
	ctx := context.Background()

	msg := &Message{
		User:      "Jack",
		Text:      "hi",
		Recipient: "All",
		Room:      "General",
		File:      FileRef{URL: "/uploads/a.png", Type: "image/png"},
	}
	id, err := store.Insert(ctx, msg)
	req.NoError(err)
	req.NotEmpty(id)
	req.Equal(id, msg.ID)
	req.False(msg.CreatedAt.IsZero())

	found, err := store.FindByID(ctx, id)
	req.NoError(err)
	req.NotNil(found)
	req.Equal("Jack", found.User)
	req.Equal("hi", found.Text)
	req.Equal("All", found.Recipient)
	req.Equal("General", found.Room)
	req.Equal(msg.File, found.File)
	req.Empty(found.Reactions)
	req.WithinDuration(msg.CreatedAt, found.CreatedAt, time.Millisecond)

	missing, err := store.FindByID(ctx, "does-not-exist")
	req.NoError(err)
	req.Nil(missing)
}

func testRoomHistory(t *testing.T, store Store) {
	req := require.New(t)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 7; i++ {
		id, err := store.Insert(ctx, &Message{User: "Ore", Text: fmt.Sprintf("m%d", i), Room: "X"})
		req.NoError(err)
		ids = append(ids, id)
		time.Sleep(2 * time.Millisecond)
	}
	_, err := store.Insert(ctx, &Message{User: "Ore", Text: "elsewhere", Room: "Y"})
	req.NoError(err)

	recent, err := store.FindByRoom(ctx, "X", 5)
	req.NoError(err)
	req.Len(recent, 5)
	for i, msg := range recent {
		req.Equal(ids[i+2], msg.ID)
		req.Equal("X", msg.Room)
	}

	all, err := store.FindByRoom(ctx, "X", 50)
	req.NoError(err)
	req.Len(all, 7)
	req.Equal("m0", all[0].Text)

	empty, err := store.FindByRoom(ctx, "nobody-here", 50)
	req.NoError(err)
	req.Empty(empty)
}

func testUpdate(t *testing.T, store Store) {
	req := require.New(t)
	ctx := context.Background()

	id, err := store.Insert(ctx, &Message{User: "Jack", Text: "before", Room: "General"})
	req.NoError(err)

	text := "after"
	req.NoError(store.Update(ctx, id, Update{Text: &text}))
	reactions := []Reaction{{Username: "Ore", Symbol: "👍"}, {Username: "Jack", Symbol: "🎉"}}
	req.NoError(store.Update(ctx, id, Update{Reactions: reactions}))

	found, err := store.FindByID(ctx, id)
	req.NoError(err)
	req.Equal("after", found.Text)
	req.Equal(reactions, found.Reactions)

	req.ErrorIs(store.Update(ctx, "missing", Update{Text: &text}), ErrNotFound)
}

func testDelete(t *testing.T, store Store) {
	req := require.New(t)
	ctx := context.Background()

	keep, err := store.Insert(ctx, &Message{User: "Jack", Text: "keep", Room: "General"})
	req.NoError(err)
	drop, err := store.Insert(ctx, &Message{User: "Jack", Text: "drop", Room: "General"})
	req.NoError(err)

	req.NoError(store.DeleteByID(ctx, drop))
	req.ErrorIs(store.DeleteByID(ctx, drop), ErrNotFound)

	found, err := store.FindByID(ctx, drop)
	req.NoError(err)
	req.Nil(found)

	history, err := store.FindByRoom(ctx, "General", 50)
	req.NoError(err)
	req.Len(history, 1)
	req.Equal(keep, history[0].ID)
}

func newTestSQLiteStore(t *testing.T) Store {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	store, err := NewSQLiteStore("sqlite://file:" + name + "?mode=memory&cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = store.Close()
	})
	require.NoError(t, store.Migrate(context.Background()))
	return store
}

func newTestBadgerStore(t *testing.T) Store {
	t.Helper()
	store, err := NewBadgerStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}

func newTestPostgresStore(t *testing.T, url string) Store {
	t.Helper()
	ctx := context.Background()
	store, err := NewPostgresStore(ctx, url)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = store.Close()
	})
	require.NoError(t, store.Migrate(ctx))
	_, err = store.pool.Exec(ctx, `TRUNCATE messages`)
	require.NoError(t, err)
	return store
}

func newTestRedisStore(t *testing.T, url string) Store {
	t.Helper()
	ctx := context.Background()
	store, err := NewRedisStore(ctx, url)
	require.NoError(t, err)
	require.NoError(t, store.client.FlushDB(ctx).Err())
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}
