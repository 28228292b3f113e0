package internal

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/gorilla/websocket"

	"roomchat/internal/chat"
)

var (
	httpTimeout     = 30 * time.Second
	errNotConnected = errors.New("websocket not connected")
)

// bubbletea messages produced by the network commands.
type (
	connectedMsg     struct{ conn *websocket.Conn }
	eventMsg         chat.Envelope
	errorMsg         struct{ err error }
	connectFailedMsg struct{ err error }
	reconnectMsg     struct{}
	uploadedMsg      UploadResult
	uploadFailedMsg  struct{ err error }
)

func (model *TUIModel) scheduleReconnect() tea.Cmd {
	const retryDelay = 2 * time.Second
	return tea.Tick(retryDelay, func(time.Time) tea.Msg {
		return reconnectMsg{}
	})
}

// connectCmd dials the server and authenticates in one step.
func (model *TUIModel) connectCmd() tea.Cmd {
	serverURL := model.serverURL
	auth := chat.AuthenticateRequest{
		Passkey:  model.passkey,
		Username: model.username,
		Room:     model.room,
	}
	return func() tea.Msg {
		if err := validateWSURL(serverURL); err != nil {
			return connectFailedMsg{err: err}
		}
		conn, _, err := websocket.DefaultDialer.Dial(serverURL, http.Header{})
		if err != nil {
			return connectFailedMsg{err: err}
		}
		payload, err := chat.Encode(chat.EventAuthenticate, auth)
		if err == nil {
			err = conn.WriteMessage(websocket.TextMessage, payload)
		}
		if err != nil {
			_ = conn.Close()
			return connectFailedMsg{err: err}
		}
		return connectedMsg{conn: conn}
	}
}

// readOnceCmd waits for the next server event.
func (model *TUIModel) readOnceCmd() tea.Cmd {
	conn := model.websocketConn
	return func() tea.Msg {
		if conn == nil {
			return errorMsg{err: errNotConnected}
		}
		for {
			messageType, payload, err := conn.ReadMessage()
			if err != nil {
				return errorMsg{err: err}
			}
			if messageType != websocket.TextMessage {
				continue
			}
			var env chat.Envelope
			if err := json.Unmarshal(payload, &env); err != nil {
				continue
			}
			return eventMsg(env)
		}
	}
}

// emitCmd writes one client event.
func (model *TUIModel) emitCmd(event string, data any) tea.Cmd {
	conn := model.websocketConn
	return func() tea.Msg {
		if conn == nil {
			return errorMsg{err: errNotConnected}
		}
		payload, err := chat.Encode(event, data)
		if err != nil {
			return errorMsg{err: err}
		}
		model.writeMutex.Lock()
		err = conn.WriteMessage(websocket.TextMessage, payload)
		model.writeMutex.Unlock()
		if err != nil {
			return errorMsg{err: err}
		}
		return nil
	}
}

func (model *TUIModel) closeConn(reason string) {
	if model.websocketConn == nil {
		return
	}
	model.writeMutex.Lock()
	_ = model.websocketConn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason))
	model.writeMutex.Unlock()
	_ = model.websocketConn.Close()
	model.websocketConn = nil
	model.isConnected = false
}

// uploadCmd posts a local file to the upload endpoint.
func (model *TUIModel) uploadCmd(path string) tea.Cmd {
	serverURL, username, passkey := model.serverURL, model.username, model.passkey
	return func() tea.Msg {
		endpoint, err := buildUploadURL(serverURL)
		if err != nil {
			return uploadFailedMsg{err: err}
		}
		result, err := uploadFile(endpoint, username, passkey, path)
		if err != nil {
			return uploadFailedMsg{err: err}
		}
		return uploadedMsg(*result)
	}
}

func uploadFile(endpoint, username, passkey, path string) (*UploadResult, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, err
	}
	_ = writer.WriteField("username", username)
	_ = writer.WriteField("passkey", passkey)
	if err := writer.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequest(http.MethodPost, endpoint, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	client := &http.Client{Timeout: httpTimeout}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		if apiErr.Error == "" {
			apiErr.Error = resp.Status
		}
		return nil, fmt.Errorf("upload failed: %s", apiErr.Error)
	}
	var result UploadResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	return &result, nil
}

func validateWSURL(raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if parsed.Scheme != "ws" && parsed.Scheme != "wss" {
		return fmt.Errorf("invalid scheme for websocket: %s", parsed.Scheme)
	}
	return nil
}

// buildUploadURL maps ws://host/ws to http://host/api/upload.
func buildUploadURL(wsURL string) (string, error) {
	parsed, err := url.Parse(wsURL)
	if err != nil {
		return "", err
	}
	switch parsed.Scheme {
	case "ws":
		parsed.Scheme = "http"
	case "wss":
		parsed.Scheme = "https"
	default:
		return "", fmt.Errorf("invalid scheme for websocket: %s", parsed.Scheme)
	}
	parsed.Path = "/api/upload"
	parsed.RawQuery = ""
	return parsed.String(), nil
}

// resolveFileURL turns a relative upload URL into one the user can open.
func resolveFileURL(wsURL, fileURL string) string {
	ref, err := url.Parse(fileURL)
	if err != nil || ref.IsAbs() {
		return fileURL
	}
	base, err := url.Parse(wsURL)
	if err != nil {
		return fileURL
	}
	switch base.Scheme {
	case "ws":
		base.Scheme = "http"
	case "wss":
		base.Scheme = "https"
	}
	return base.ResolveReference(ref).String()
}
