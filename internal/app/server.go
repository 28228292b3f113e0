package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	intrnl "roomchat/internal"
	"roomchat/internal/chat"
	"roomchat/internal/storage"
)

// ServerHandle represents a running HTTP/WebSocket server instance.
type ServerHandle struct {
	addr       string
	server     *http.Server
	store      storage.Store
	stopHub    context.CancelFunc
	hubStopped chan struct{}
	log        zerolog.Logger
	done       chan struct{}
	err        error
}

// Addr returns the actual listen address (after the OS allocated a port).
func (h *ServerHandle) Addr() string {
	return h.addr
}

// Stop triggers a graceful shutdown with the provided context deadline.
func (h *ServerHandle) Stop(ctx context.Context) error {
	if h == nil || h.server == nil {
		return nil
	}
	if ctx == nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
	}
	// Hijacked websocket connections are not tracked by Shutdown; stopping
	// the hub closes them.
	h.stopHub()
	return h.server.Shutdown(ctx)
}

// Wait blocks until the server exits.
func (h *ServerHandle) Wait() error {
	if h == nil {
		return nil
	}
	<-h.done
	return h.err
}

// RunServer opens the configured store, runs migrations, starts the chat hub
// and serves HTTP in the background. Call Stop/Wait to manage its lifecycle.
func RunServer(ctx context.Context, cfg ServerConfig, logger zerolog.Logger) (*ServerHandle, error) {
	if err := os.MkdirAll(cfg.UploadDir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload directory: %w", err)
	}

	store, err := OpenStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.StoreDriver, err)
	}
	if migrator, ok := store.(storage.Migrator); ok {
		if err := migrator.Migrate(ctx); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}

	svc := chat.NewService(chat.Options{
		Store:        store,
		Auth:         chat.NewPasskeyAuth(cfg.Passkey, cfg.PasskeyHash, cfg.AllowedUsers),
		Logger:       logger,
		DefaultRoom:  cfg.DefaultRoom,
		HistoryLimit: cfg.HistoryLimit,
	})
	server := intrnl.NewServer(intrnl.Config{
		WSPath:         cfg.WSPath,
		UploadDir:      cfg.UploadDir,
		MaxUploadBytes: cfg.MaxUploadBytes,
		PublicURL:      cfg.PublicURL,
		AllowedOrigins: cfg.AllowedOrigins,
		SendBuffer:     cfg.SendBuffer,
		EventBurst:     cfg.RateBurst,
		EventWindow:    cfg.RateWindow,
		UploadBurst:    cfg.UploadRateBurst,
		UploadWindow:   cfg.UploadRateWindow,
	}, svc, store, logger)

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	listener, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("listen: %w", err)
	}

	hubCtx, stopHub := context.WithCancel(context.Background())
	handle := &ServerHandle{
		addr:       listener.Addr().String(),
		server:     httpServer,
		store:      store,
		stopHub:    stopHub,
		hubStopped: make(chan struct{}),
		log:        logger,
		done:       make(chan struct{}),
	}
	go func() {
		defer close(handle.hubStopped)
		svc.Run(hubCtx)
	}()

	go func() {
		if ctx == nil {
			return
		}
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := handle.Stop(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("server shutdown error")
		}
	}()

	go handle.serve(listener)

	logger.Info().
		Str("addr", handle.addr).
		Str("ws_path", cfg.WSPath).
		Str("store", cfg.StoreDriver).
		Msg("chat server listening")
	return handle, nil
}

func (h *ServerHandle) serve(listener net.Listener) {
	defer close(h.done)
	err := h.server.Serve(listener)
	if errors.Is(err, http.ErrServerClosed) {
		err = nil
	}
	h.stopHub()
	<-h.hubStopped
	if err := h.store.Close(); err != nil {
		h.log.Error().Err(err).Msg("store close error")
	}
	h.err = err
}

// OpenStore builds the message store selected by STORE_DRIVER.
func OpenStore(ctx context.Context, cfg ServerConfig) (storage.Store, error) {
	switch cfg.StoreDriver {
	case "memory":
		return storage.NewMemoryStore(), nil
	case "", "sqlite":
		if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o700); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
		return storage.NewSQLiteStore(cfg.DBPath)
	case "postgres":
		return storage.NewPostgresStore(ctx, cfg.DatabaseURL)
	case "redis":
		return storage.NewRedisStore(ctx, cfg.RedisURL)
	case "badger":
		if err := os.MkdirAll(cfg.BadgerDir, 0o700); err != nil {
			return nil, fmt.Errorf("create badger dir: %w", err)
		}
		return storage.NewBadgerStore(cfg.BadgerDir)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}
