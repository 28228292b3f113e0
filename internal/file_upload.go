package internal

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"roomchat/internal/chat"
	"roomchat/internal/metrics"
)

const sniffLen = 3072

// UploadConfig configures the attachment endpoint.
type UploadConfig struct {
	Dir       string
	MaxBytes  int64
	PublicURL string
	Limiter   *RateLimiter
}

// UploadResult is returned to the client after a successful upload. FileURL
// and FileType go straight into a send_message request.
type UploadResult struct {
	FileURL  string `json:"fileUrl"`
	FileType string `json:"fileType"`
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
	SHA256   string `json:"sha256"`
}

// FileUploadHandler stores attachments on disk and serves them back.
type FileUploadHandler struct {
	cfg  UploadConfig
	auth chat.Authenticator
	log  zerolog.Logger
}

func NewFileUploadHandler(cfg UploadConfig, auth chat.Authenticator, logger zerolog.Logger) *FileUploadHandler {
	return &FileUploadHandler{
		cfg:  cfg,
		auth: auth,
		log:  logger.With().Str("component", "upload").Logger(),
	}
}

// HandleUpload accepts a multipart form with file, username and passkey.
func (h *FileUploadHandler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	if h.cfg.Limiter != nil && !h.cfg.Limiter.Allow(clientIP(r)) {
		metrics.RateLimited.WithLabelValues("uploads").Inc()
		h.reject(w, http.StatusTooManyRequests, "rate_limited", errors.New("too many uploads, slow down"))
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxBytes)
	if err := r.ParseMultipartForm(h.cfg.MaxBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) || errors.Is(err, multipart.ErrMessageTooLarge) {
			h.reject(w, http.StatusRequestEntityTooLarge, "too_large",
				fmt.Errorf("file too large, limit is %s", humanize.IBytes(uint64(h.cfg.MaxBytes))))
			return
		}
		h.reject(w, http.StatusBadRequest, "bad_request", errors.New("expected a multipart form"))
		return
	}

	username := strings.TrimSpace(r.FormValue("username"))
	if err := h.auth.Authenticate(r.FormValue("passkey"), username); err != nil || username == "" {
		h.reject(w, http.StatusUnauthorized, "unauthorized", errors.New("invalid credentials"))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		h.reject(w, http.StatusBadRequest, "bad_request", errors.New("no file provided"))
		return
	}
	defer file.Close()

	filename := sanitizePathComponent(filepath.Base(header.Filename))

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(file, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		h.reject(w, http.StatusBadRequest, "bad_request", errors.New("unreadable file"))
		return
	}
	head = head[:n]
	mtype := mimetype.Detect(head)

	ext := strings.ToLower(filepath.Ext(filename))
	if ext == "" {
		ext = mtype.Extension()
	}
	storedName := uuid.NewString() + ext

	if err := os.MkdirAll(h.cfg.Dir, 0o755); err != nil {
		h.fail(w, fmt.Errorf("create upload directory: %w", err))
		return
	}
	storagePath := filepath.Join(h.cfg.Dir, storedName)
	dest, err := os.Create(storagePath)
	if err != nil {
		h.fail(w, fmt.Errorf("create file: %w", err))
		return
	}

	hasher := sha256.New()
	written, err := io.Copy(io.MultiWriter(dest, hasher), io.MultiReader(bytes.NewReader(head), file))
	if closeErr := dest.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(storagePath)
		h.fail(w, fmt.Errorf("save file: %w", err))
		return
	}

	result := UploadResult{
		FileURL:  h.cfg.PublicURL + "/uploads/" + storedName,
		FileType: mtype.String(),
		Filename: filename,
		Size:     written,
		SHA256:   hex.EncodeToString(hasher.Sum(nil)),
	}
	metrics.Uploads.WithLabelValues("stored").Inc()
	h.log.Info().
		Str("user", username).
		Str("file", storedName).
		Str("type", result.FileType).
		Str("size", humanize.IBytes(uint64(written))).
		Msg("file uploaded")
	writeJSON(w, http.StatusOK, result)
}

// FileServer serves stored attachments without directory listings.
func (h *FileUploadHandler) FileServer() http.Handler {
	files := http.FileServer(http.Dir(h.cfg.Dir))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "" || strings.HasSuffix(r.URL.Path, "/") {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("X-Content-Type-Options", "nosniff")
		files.ServeHTTP(w, r)
	})
}

func (h *FileUploadHandler) reject(w http.ResponseWriter, status int, outcome string, err error) {
	metrics.Uploads.WithLabelValues(outcome).Inc()
	writeError(w, status, err)
}

func (h *FileUploadHandler) fail(w http.ResponseWriter, err error) {
	metrics.Uploads.WithLabelValues("error").Inc()
	h.log.Error().Err(err).Msg("upload failed")
	writeError(w, http.StatusInternalServerError, errors.New("upload failed"))
}

// sanitizePathComponent removes dangerous characters from path components
func sanitizePathComponent(s string) string {
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, "\\", "_")
	s = strings.ReplaceAll(s, "\x00", "")
	s = strings.TrimSpace(s)
	if s == "" || s == "." || s == ".." {
		return "unnamed"
	}
	return s
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
