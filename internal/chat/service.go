package chat

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"roomchat/internal/storage"
)

// Options configures a Service.
type Options struct {
	Store        storage.Store
	Auth         Authenticator
	Logger       zerolog.Logger
	DefaultRoom  string
	HistoryLimit int
}

// Service ties the registry, presence and message engine together and opens
// sessions for new connections.
type Service struct {
	hub         *Hub
	presence    *Presence
	engine      *Engine
	auth        Authenticator
	log         zerolog.Logger
	defaultRoom string
}

func NewService(opts Options) *Service {
	if opts.DefaultRoom == "" {
		opts.DefaultRoom = "General"
	}
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = 50
	}
	hub := NewHub(opts.Logger)
	return &Service{
		hub:         hub,
		presence:    NewPresence(hub, opts.Logger),
		engine:      NewEngine(opts.Store, hub, opts.Logger, opts.DefaultRoom, opts.HistoryLimit),
		auth:        opts.Auth,
		log:         opts.Logger,
		defaultRoom: opts.DefaultRoom,
	}
}

// Run serves the registry until ctx is cancelled.
func (s *Service) Run(ctx context.Context) {
	s.hub.Run(ctx)
}

// Open starts an unauthenticated session bound to out.
func (s *Service) Open(out Outbox) *Session {
	id := uuid.NewString()
	return &Session{
		id:    id,
		out:   out,
		svc:   s,
		log:   s.log.With().Str("conn", id).Logger(),
		state: StateUnauthenticated,
	}
}

// Online lists authenticated connections in authentication order.
func (s *Service) Online() []Member {
	return s.presence.Online()
}

// Authenticate checks credentials outside a session, for the upload endpoint.
func (s *Service) Authenticate(passkey, username string) error {
	return s.auth.Authenticate(passkey, username)
}
