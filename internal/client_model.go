package internal

import (
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/gorilla/websocket"

	"roomchat/internal/chat"
)

// TUIModel is the bubbletea state of the terminal client.
type TUIModel struct {
	textInput     textinput.Model
	serverURL     string
	username      string
	passkey       string
	room          string
	recipient     string
	websocketConn *websocket.Conn
	writeMutex    sync.Mutex

	mode            appMode
	isConnected     bool
	authRejected    bool
	connectionError error

	messages []chat.MessageView
	notices  []notice
	roster   []string
	typing   map[string]bool
	pinned   *chat.MessageView

	typingSent bool
	width      int
}

type notice struct {
	text  string
	at    time.Time
	isErr bool
}

type appMode int

const (
	modeNamePrompt appMode = iota
	modePasskeyPrompt
	modeRoomPrompt
	modeChat
)

const maxNotices = 5

// NewTUIModel starts at the first prompt whose value is still missing.
func NewTUIModel(serverURL, username, passkey, room string) *TUIModel {
	input := textinput.New()
	input.CharLimit = 4000
	input.Focus()

	if username == "" {
		username = defaultUsername()
	}
	model := &TUIModel{
		textInput: input,
		serverURL: serverURL,
		username:  username,
		passkey:   passkey,
		room:      room,
		messages:  make([]chat.MessageView, 0, 64),
		typing:    make(map[string]bool),
	}
	switch {
	case passkey == "":
		model.enterMode(modeNamePrompt)
	case room == "":
		model.enterMode(modeRoomPrompt)
	default:
		model.enterMode(modeChat)
	}
	return model
}

func defaultUsername() string {
	if user := os.Getenv("ROOMCHAT_USER"); user != "" {
		return user
	}
	if user := os.Getenv("USER"); user != "" {
		return user
	}
	return "anon"
}

func (model *TUIModel) Init() tea.Cmd {
	if model.mode == modeChat {
		return tea.Batch(textinput.Blink, model.connectCmd())
	}
	return textinput.Blink
}

// enterMode switches the prompt shown in the input box.
func (model *TUIModel) enterMode(mode appMode) {
	model.mode = mode
	model.textInput.EchoMode = textinput.EchoNormal
	switch mode {
	case modeNamePrompt:
		model.textInput.Prompt = "name> "
		model.textInput.Placeholder = "Enter display name…"
		model.textInput.SetValue(model.username)
	case modePasskeyPrompt:
		model.textInput.Prompt = "passkey> "
		model.textInput.Placeholder = "Enter the chat passkey…"
		model.textInput.EchoMode = textinput.EchoPassword
		model.textInput.EchoCharacter = '•'
		model.textInput.SetValue("")
	case modeRoomPrompt:
		model.textInput.Prompt = "room> "
		model.textInput.Placeholder = "Room to join (Enter for General)…"
		model.textInput.SetValue(model.room)
	case modeChat:
		model.textInput.Prompt = "> "
		model.textInput.Placeholder = "Type a message or /help…"
		model.textInput.SetValue("")
	}
	model.textInput.CursorEnd()
}

func (model *TUIModel) addNotice(text string, isErr bool) {
	model.notices = append(model.notices, notice{text: text, at: time.Now(), isErr: isErr})
	if len(model.notices) > maxNotices {
		model.notices = model.notices[len(model.notices)-maxNotices:]
	}
}
