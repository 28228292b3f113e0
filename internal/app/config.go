package app

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog"
)

// ServerConfig defines how the HTTP/WebSocket backend should run.
type ServerConfig struct {
	Addr     string `envconfig:"ADDR" default:":5000"`
	Port     string `envconfig:"PORT"`
	Env      string `envconfig:"ENV" default:"development" validate:"oneof=development production test"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	Passkey      string   `envconfig:"PASSKEY" default:"secure123"`
	PasskeyHash  string   `envconfig:"PASSKEY_HASH"`
	AllowedUsers []string `envconfig:"ALLOWED_USERS"`

	DefaultRoom  string `envconfig:"DEFAULT_ROOM" default:"General" validate:"required,max=64"`
	HistoryLimit int    `envconfig:"HISTORY_LIMIT" default:"50" validate:"min=1,max=500"`

	StoreDriver string `envconfig:"STORE_DRIVER" default:"sqlite" validate:"oneof=sqlite postgres redis badger memory"`
	DBPath      string `envconfig:"DB_PATH"`
	DatabaseURL string `envconfig:"DATABASE_URL" validate:"required_if=StoreDriver postgres"`
	RedisURL    string `envconfig:"REDIS_URL" validate:"required_if=StoreDriver redis"`
	BadgerDir   string `envconfig:"BADGER_DIR"`

	WSPath         string   `envconfig:"WS_PATH" default:"/ws"`
	UploadDir      string   `envconfig:"UPLOAD_DIR" default:"uploads"`
	MaxUploadBytes int64    `envconfig:"MAX_UPLOAD_BYTES" default:"10485760" validate:"min=1"`
	PublicURL      string   `envconfig:"PUBLIC_URL" validate:"omitempty,url"`
	AllowedOrigins []string `envconfig:"ALLOWED_ORIGINS" default:"*"`

	SendBuffer       int           `envconfig:"SEND_BUFFER" default:"256" validate:"min=1"`
	RateBurst        int           `envconfig:"RATE_BURST" default:"10" validate:"min=1"`
	RateWindow       time.Duration `envconfig:"RATE_WINDOW" default:"3s" validate:"gt=0"`
	UploadRateBurst  int           `envconfig:"UPLOAD_RATE_BURST" default:"5" validate:"min=1"`
	UploadRateWindow time.Duration `envconfig:"UPLOAD_RATE_WINDOW" default:"1m" validate:"gt=0"`
}

// ClientConfig defines the parameters the TUI client needs.
type ClientConfig struct {
	ServerURL string `envconfig:"ROOMCHAT_SERVER" default:"ws://localhost:5000/ws"`
	Username  string `envconfig:"ROOMCHAT_USER"`
	Passkey   string `envconfig:"ROOMCHAT_PASSKEY"`
	Room      string `envconfig:"ROOMCHAT_ROOM"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// LoadServerConfig reads the server settings from the environment, after an
// optional .env file.
func LoadServerConfig() (ServerConfig, error) {
	_ = godotenv.Load()

	var cfg ServerConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return cfg, fmt.Errorf("read environment: %w", err)
	}
	cfg.normalize()
	if err := validate.Struct(cfg); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// LoadClientConfig reads the client defaults from the environment.
func LoadClientConfig() (ClientConfig, error) {
	_ = godotenv.Load()

	var cfg ClientConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return cfg, fmt.Errorf("read environment: %w", err)
	}
	return cfg, nil
}

func (c *ServerConfig) normalize() {
	if c.Port != "" {
		c.Addr = ":" + strings.TrimPrefix(c.Port, ":")
	}
	if c.DBPath == "" {
		c.DBPath = DefaultDBPath()
	}
	if c.BadgerDir == "" {
		c.BadgerDir = filepath.Join(filepath.Dir(c.DBPath), "badger")
	}
	c.WSPath = NormalizeWSPath(c.WSPath)
	c.StoreDriver = strings.ToLower(strings.TrimSpace(c.StoreDriver))
}

// IsDevelopment reports whether human-readable logs should be used.
func (c ServerConfig) IsDevelopment() bool {
	return c.Env == "development"
}

// Level parses LOG_LEVEL, falling back to info.
func (c ServerConfig) Level() zerolog.Level {
	level, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel))
	if err != nil || level == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return level
}

// DefaultDBPath returns a per-user data path for the bundled SQLite file.
func DefaultDBPath() string {
	if env := os.Getenv("ROOMCHAT_DATA_DIR"); env != "" {
		return filepath.Join(env, "roomchat.db")
	}
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "roomchat", "roomchat.db")
	}
	if runtime.GOOS == "windows" {
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, "Roomchat", "roomchat.db")
		}
	}
	if home, err := os.UserHomeDir(); err == nil {
		if runtime.GOOS == "darwin" {
			return filepath.Join(home, "Library", "Application Support", "Roomchat", "roomchat.db")
		}
		return filepath.Join(home, ".local", "share", "roomchat", "roomchat.db")
	}
	return filepath.Join(".", ".roomchat", "roomchat.db")
}

// NormalizeWSPath guarantees the websocket path starts with '/' and falls
// back to /ws when empty.
func NormalizeWSPath(path string) string {
	if path == "" {
		return "/ws"
	}
	if path[0] != '/' {
		return "/" + path
	}
	return path
}
