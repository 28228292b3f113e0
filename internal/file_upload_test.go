package internal

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roomchat/internal/chat"
)

func newUploadHandler(t *testing.T, maxBytes int64, limiter *RateLimiter) (*FileUploadHandler, string) {
	t.Helper()
	dir := t.TempDir()
	handler := NewFileUploadHandler(UploadConfig{
		Dir:       dir,
		MaxBytes:  maxBytes,
		PublicURL: "http://chat.example",
		Limiter:   limiter,
	}, chat.NewPasskeyAuth("secure123", "", nil), zerolog.Nop())
	return handler, dir
}

func uploadRequest(t *testing.T, fields map[string]string, filename string, content []byte) *http.Request {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	if filename != "" {
		part, err := writer.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = io.Copy(part, bytes.NewReader(content))
		require.NoError(t, err)
	}
	for k, v := range fields {
		require.NoError(t, writer.WriteField(k, v))
	}
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/upload", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

// TestFileUploadHandler verifies the basic file upload flow
func TestFileUploadHandler(t *testing.T) {
	handler, dir := newUploadHandler(t, 1<<20, nil)
	content := []byte("Hello, this is a test file!")

	rec := httptest.NewRecorder()
	handler.HandleUpload(rec, uploadRequest(t, map[string]string{"username": "Jack", "passkey": "secure123"}, "notes.txt", content))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var result UploadResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.True(t, strings.HasPrefix(result.FileURL, "http://chat.example/uploads/"))
	assert.True(t, strings.HasSuffix(result.FileURL, ".txt"))
	assert.True(t, strings.HasPrefix(result.FileType, "text/plain"))
	assert.Equal(t, "notes.txt", result.Filename)
	assert.Equal(t, int64(len(content)), result.Size)
	assert.Len(t, result.SHA256, 64)

	stored, err := os.ReadFile(filepath.Join(dir, path.Base(result.FileURL)))
	require.NoError(t, err)
	assert.Equal(t, content, stored)
}

func TestFileUploadSniffsType(t *testing.T) {
	handler, _ := newUploadHandler(t, 1<<20, nil)
	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00")

	rec := httptest.NewRecorder()
	handler.HandleUpload(rec, uploadRequest(t, map[string]string{"username": "Jack", "passkey": "secure123"}, "pixel", png))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var result UploadResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, "image/png", result.FileType)
	assert.True(t, strings.HasSuffix(result.FileURL, ".png"))
}

func TestFileUploadRejections(t *testing.T) {
	creds := map[string]string{"username": "Jack", "passkey": "secure123"}

	t.Run("wrong passkey", func(t *testing.T) {
		handler, _ := newUploadHandler(t, 1<<20, nil)
		rec := httptest.NewRecorder()
		handler.HandleUpload(rec, uploadRequest(t, map[string]string{"username": "Jack", "passkey": "nope"}, "a.txt", []byte("x")))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("missing file", func(t *testing.T) {
		handler, _ := newUploadHandler(t, 1<<20, nil)
		rec := httptest.NewRecorder()
		handler.HandleUpload(rec, uploadRequest(t, creds, "", nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("too large", func(t *testing.T) {
		handler, dir := newUploadHandler(t, 1024, nil)
		rec := httptest.NewRecorder()
		handler.HandleUpload(rec, uploadRequest(t, creds, "big.bin", bytes.Repeat([]byte("x"), 4096)))
		assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
		entries, err := os.ReadDir(dir)
		require.NoError(t, err)
		assert.Empty(t, entries)
	})

	t.Run("not a multipart body", func(t *testing.T) {
		handler, _ := newUploadHandler(t, 1<<20, nil)
		req := httptest.NewRequest(http.MethodPost, "/api/upload", strings.NewReader("just text"))
		req.Header.Set("Content-Type", "text/plain")
		rec := httptest.NewRecorder()
		handler.HandleUpload(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("rate limited", func(t *testing.T) {
		handler, _ := newUploadHandler(t, 1<<20, NewRateLimiter(1, time.Minute))
		first := httptest.NewRecorder()
		handler.HandleUpload(first, uploadRequest(t, creds, "a.txt", []byte("a")))
		require.Equal(t, http.StatusOK, first.Code)

		second := httptest.NewRecorder()
		handler.HandleUpload(second, uploadRequest(t, creds, "b.txt", []byte("b")))
		assert.Equal(t, http.StatusTooManyRequests, second.Code)
	})
}

func TestFileServerHidesListings(t *testing.T) {
	handler, dir := newUploadHandler(t, 1<<20, nil)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("hi"), 0o644))
	srv := http.StripPrefix("/uploads/", handler.FileServer())

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/uploads/a.txt", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "hi", rec.Body.String())

	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/uploads/", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSanitizePathComponent(t *testing.T) {
	assert.Equal(t, "unnamed", sanitizePathComponent(".."))
	assert.Equal(t, "a_b", sanitizePathComponent("a/b"))
	assert.Equal(t, "c.txt", sanitizePathComponent(" c.txt "))
}
