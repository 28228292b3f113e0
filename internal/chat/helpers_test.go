package chat

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"roomchat/internal/storage"
)

const testPasskey = "secure123"

// recordingOutbox keeps every delivered frame. A positive limit makes it
// refuse deliveries once that many frames are queued.
type recordingOutbox struct {
	mu     sync.Mutex
	frames [][]byte
	limit  int
	closed bool
}

func (o *recordingOutbox) Deliver(payload []byte) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return false
	}
	if o.limit > 0 && len(o.frames) >= o.limit {
		return false
	}
	o.frames = append(o.frames, append([]byte(nil), payload...))
	return true
}

func (o *recordingOutbox) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.closed = true
}

func (o *recordingOutbox) isClosed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.closed
}

func (o *recordingOutbox) envelopes(t *testing.T) []Envelope {
	t.Helper()
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]Envelope, 0, len(o.frames))
	for _, raw := range o.frames {
		var env Envelope
		require.NoError(t, json.Unmarshal(raw, &env))
		out = append(out, env)
	}
	return out
}

func (o *recordingOutbox) named(t *testing.T, event string) []Envelope {
	t.Helper()
	var out []Envelope
	for _, env := range o.envelopes(t) {
		if env.Event == event {
			out = append(out, env)
		}
	}
	return out
}

func (o *recordingOutbox) reset() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.frames = nil
}

func payloadOf[T any](t *testing.T, env Envelope) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(env.Data, &v))
	return v
}

func lastOf[T any](t *testing.T, out *recordingOutbox, event string) T {
	t.Helper()
	envs := out.named(t, event)
	require.NotEmpty(t, envs, "no %s event delivered", event)
	return payloadOf[T](t, envs[len(envs)-1])
}

func frame(t *testing.T, event string, data any) []byte {
	t.Helper()
	payload, err := Encode(event, data)
	require.NoError(t, err)
	return payload
}

func newTestService(t *testing.T, store storage.Store) *Service {
	t.Helper()
	if store == nil {
		store = storage.NewMemoryStore()
	}
	svc := NewService(Options{
		Store:        store,
		Auth:         NewPasskeyAuth(testPasskey, "", nil),
		Logger:       zerolog.Nop(),
		DefaultRoom:  "General",
		HistoryLimit: 50,
	})
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		svc.Run(ctx)
		close(stopped)
	}()
	t.Cleanup(func() {
		cancel()
		<-stopped
	})
	return svc
}

func connect(t *testing.T, svc *Service, username, room string) (*Session, *recordingOutbox) {
	t.Helper()
	out := &recordingOutbox{}
	sess := svc.Open(out)
	sess.Handle(context.Background(), frame(t, EventAuthenticate, AuthenticateRequest{
		Passkey:  testPasskey,
		Username: username,
		Room:     room,
	}))
	require.Equal(t, StateAuthenticated, sess.State())
	return sess, out
}

var errStoreDown = errors.New("store down")

// brokenStore fails every write.
type brokenStore struct {
	*storage.MemoryStore
}

func (s brokenStore) Insert(context.Context, *storage.Message) (string, error) {
	return "", errStoreDown
}

func (s brokenStore) Update(context.Context, string, storage.Update) error {
	return errStoreDown
}
