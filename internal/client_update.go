package internal

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/dustin/go-humanize"

	"roomchat/internal/chat"
)

func (model *TUIModel) Update(message tea.Msg) (tea.Model, tea.Cmd) {
	switch typedMessage := message.(type) {
	case tea.WindowSizeMsg:
		model.width = typedMessage.Width
		model.textInput.Width = typedMessage.Width - 8
		return model, nil

	case tea.KeyMsg:
		if typedMessage.Type == tea.KeyCtrlC || typedMessage.Type == tea.KeyEsc {
			model.closeConn("client quit")
			return model, tea.Quit
		}
		switch model.mode {
		case modeNamePrompt, modePasskeyPrompt, modeRoomPrompt:
			if typedMessage.Type == tea.KeyEnter {
				return model, model.submitPrompt()
			}
			var cmd tea.Cmd
			model.textInput, cmd = model.textInput.Update(typedMessage)
			return model, cmd
		case modeChat:
			if typedMessage.Type == tea.KeyEnter {
				line := model.textInput.Value()
				model.textInput.SetValue("")
				return model, tea.Batch(model.stopTyping(), model.runLine(line))
			}
			var cmd tea.Cmd
			model.textInput, cmd = model.textInput.Update(typedMessage)
			return model, tea.Batch(cmd, model.typingSignal())
		}

	case connectedMsg:
		model.websocketConn = typedMessage.conn
		model.isConnected = true
		model.authRejected = false
		model.connectionError = nil
		return model, model.readOnceCmd()

	case eventMsg:
		model.applyEvent(chat.Envelope(typedMessage))
		return model, model.readOnceCmd()

	case errorMsg:
		model.isConnected = false
		model.websocketConn = nil
		if model.authRejected {
			model.enterMode(modePasskeyPrompt)
			return model, nil
		}
		model.connectionError = typedMessage.err
		if model.mode == modeChat {
			return model, model.scheduleReconnect()
		}
		return model, nil

	case connectFailedMsg:
		model.connectionError = typedMessage.err
		if model.mode == modeChat {
			return model, model.scheduleReconnect()
		}
		return model, nil

	case reconnectMsg:
		if model.mode == modeChat && !model.isConnected {
			return model, model.connectCmd()
		}
		return model, nil

	case uploadedMsg:
		model.addNotice(fmt.Sprintf("Uploaded %s (%s)", typedMessage.Filename, humanize.IBytes(uint64(typedMessage.Size))), false)
		return model, model.emitCmd(chat.EventSendMessage, chat.SendMessageRequest{
			Text:      typedMessage.Filename,
			Recipient: model.recipient,
			Room:      model.room,
			FileURL:   typedMessage.FileURL,
			FileType:  typedMessage.FileType,
		})

	case uploadFailedMsg:
		model.addNotice(typedMessage.err.Error(), true)
		return model, nil
	}
	return model, nil
}

// submitPrompt advances through name, passkey and room before connecting.
func (model *TUIModel) submitPrompt() tea.Cmd {
	value := strings.TrimSpace(model.textInput.Value())
	switch model.mode {
	case modeNamePrompt:
		if value == "" {
			model.addNotice("Display name cannot be empty.", true)
			return nil
		}
		model.username = value
		model.enterMode(modePasskeyPrompt)
	case modePasskeyPrompt:
		if value == "" {
			model.addNotice("Passkey cannot be empty.", true)
			return nil
		}
		model.passkey = value
		if model.authRejected {
			model.enterMode(modeChat)
			return model.connectCmd()
		}
		model.enterMode(modeRoomPrompt)
	case modeRoomPrompt:
		if value == "" {
			value = "General"
		}
		model.room = value
		model.enterMode(modeChat)
		return tea.Batch(textinput.Blink, model.connectCmd())
	}
	return nil
}

// runLine executes one line typed in chat mode.
func (model *TUIModel) runLine(line string) tea.Cmd {
	cmd, err := parseCommand(line)
	if err != nil {
		model.addNotice(err.Error(), true)
		return nil
	}
	if cmd.kind == cmdQuit {
		model.closeConn("client quit")
		return tea.Quit
	}
	if cmd.kind == cmdHelp {
		model.addNotice(helpText, false)
		return nil
	}
	if cmd.kind == cmdTo {
		model.recipient = cmd.arg
		if cmd.arg == "" {
			model.addNotice("Recipient cleared.", false)
		} else {
			model.addNotice("Messages are now addressed to "+cmd.arg+".", false)
		}
		return nil
	}
	if !model.isConnected {
		model.addNotice("Not connected yet.", true)
		return nil
	}

	switch cmd.kind {
	case cmdSay:
		if cmd.arg == "" {
			return nil
		}
		return model.emitCmd(chat.EventSendMessage, chat.SendMessageRequest{Text: cmd.arg, Recipient: model.recipient, Room: model.room})
	case cmdJoin:
		return model.emitCmd(chat.EventJoinRoom, chat.JoinRoomRequest{Room: cmd.arg})
	case cmdUpload:
		target := cmd.arg
		if target == "" {
			target = defaultBrowsePath()
		}
		if info, err := os.Stat(target); err == nil && info.IsDir() {
			listing, err := describeDirectory(target)
			if err != nil {
				model.addNotice(err.Error(), true)
				return nil
			}
			model.addNotice(listing, false)
			return nil
		}
		model.addNotice("Uploading "+target+"…", false)
		return model.uploadCmd(target)
	}

	target, ok := model.messageAt(cmd.index)
	if !ok {
		model.addNotice(fmt.Sprintf("No message #%d.", cmd.index), true)
		return nil
	}
	switch cmd.kind {
	case cmdEdit:
		if target.User != model.username {
			model.addNotice("You can only edit your own messages.", true)
			return nil
		}
		return model.emitCmd(chat.EventEditMessage, chat.EditMessageRequest{MessageID: target.ID, NewText: cmd.arg})
	case cmdDelete:
		if target.User != model.username {
			model.addNotice("You can only delete your own messages.", true)
			return nil
		}
		return model.emitCmd(chat.EventDeleteMessage, chat.DeleteMessageRequest{MessageID: target.ID})
	case cmdReact:
		return model.emitCmd(chat.EventSendReaction, chat.SendReactionRequest{
			MessageID: target.ID,
			Reaction:  chat.Reaction{Username: model.username, Symbol: cmd.arg},
		})
	case cmdPin:
		return model.pinCmd(target)
	}
	return nil
}

func (model *TUIModel) pinCmd(target chat.MessageView) tea.Cmd {
	raw, err := json.Marshal(target)
	if err != nil {
		model.addNotice(err.Error(), true)
		return nil
	}
	return model.emitCmd(chat.EventPinMessage, chat.PinMessageRequest{Message: raw})
}

// typingSignal tells the server when the input switches between empty and
// non-empty.
func (model *TUIModel) typingSignal() tea.Cmd {
	if !model.isConnected {
		return nil
	}
	busy := strings.TrimSpace(model.textInput.Value()) != "" && !strings.HasPrefix(model.textInput.Value(), "/")
	if busy == model.typingSent {
		return nil
	}
	model.typingSent = busy
	return model.emitCmd(chat.EventTyping, chat.TypingRequest{IsTyping: busy})
}

func (model *TUIModel) stopTyping() tea.Cmd {
	if !model.typingSent || !model.isConnected {
		return nil
	}
	model.typingSent = false
	return model.emitCmd(chat.EventTyping, chat.TypingRequest{IsTyping: false})
}
