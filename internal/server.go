package internal

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"roomchat/internal/chat"
	"roomchat/internal/storage"
)

// Config holds the transport settings of the HTTP/WebSocket server.
type Config struct {
	WSPath         string
	UploadDir      string
	MaxUploadBytes int64
	PublicURL      string
	AllowedOrigins []string
	SendBuffer     int
	EventBurst     int
	EventWindow    time.Duration
	UploadBurst    int
	UploadWindow   time.Duration
}

func (c Config) withDefaults() Config {
	if c.WSPath == "" {
		c.WSPath = "/ws"
	}
	if !strings.HasPrefix(c.WSPath, "/") {
		c.WSPath = "/" + c.WSPath
	}
	if c.UploadDir == "" {
		c.UploadDir = "uploads"
	}
	if c.MaxUploadBytes <= 0 {
		c.MaxUploadBytes = 10 << 20
	}
	if len(c.AllowedOrigins) == 0 {
		c.AllowedOrigins = []string{"*"}
	}
	if c.SendBuffer <= 0 {
		c.SendBuffer = 256
	}
	if c.EventBurst <= 0 {
		c.EventBurst = 10
	}
	if c.EventWindow <= 0 {
		c.EventWindow = 3 * time.Second
	}
	if c.UploadBurst <= 0 {
		c.UploadBurst = 5
	}
	if c.UploadWindow <= 0 {
		c.UploadWindow = time.Minute
	}
	c.PublicURL = strings.TrimRight(c.PublicURL, "/")
	return c
}

// Server exposes the chat service over HTTP and WebSocket.
type Server struct {
	cfg      Config
	chat     *chat.Service
	store    storage.Store
	log      zerolog.Logger
	upgrader websocket.Upgrader
	events   *RateLimiter
	uploads  *FileUploadHandler
}

func NewServer(cfg Config, svc *chat.Service, store storage.Store, logger zerolog.Logger) *Server {
	cfg = cfg.withDefaults()
	s := &Server{
		cfg:    cfg,
		chat:   svc,
		store:  store,
		log:    logger,
		events: NewRateLimiter(cfg.EventBurst, cfg.EventWindow),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	s.uploads = NewFileUploadHandler(UploadConfig{
		Dir:       cfg.UploadDir,
		MaxBytes:  cfg.MaxUploadBytes,
		PublicURL: cfg.PublicURL,
		Limiter:   NewRateLimiter(cfg.UploadBurst, cfg.UploadWindow),
	}, svc, logger)
	return s
}

// Router builds the HTTP handler tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(requestMetrics)
	r.Use(requestLogger(s.log))
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/", s.handleRoot)
	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())
	r.Get(s.cfg.WSPath, s.handleWebSocket)

	r.Route("/api", func(r chi.Router) {
		r.Get("/presence", s.handlePresence)
		r.Post("/upload", s.uploads.HandleUpload)
	})
	r.Handle("/uploads/*", http.StripPrefix("/uploads/", s.uploads.FileServer()))

	return r
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || lo.Contains(s.cfg.AllowedOrigins, "*") {
		return true
	}
	return lo.Contains(s.cfg.AllowedOrigins, origin)
}
