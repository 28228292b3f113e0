package internal

import (
	"encoding/json"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/samber/lo"

	"roomchat/internal/chat"
)

// RunClient is the entry point of the terminal client.
func RunClient(serverURL, username, passkey, room string) error {
	program := tea.NewProgram(NewTUIModel(serverURL, username, passkey, room), tea.WithAltScreen())
	_, err := program.Run()
	return err
}

// applyEvent folds one server event into the client state.
func (model *TUIModel) applyEvent(env chat.Envelope) {
	switch env.Event {
	case chat.EventAuthError:
		var ev chat.AuthErrorEvent
		_ = json.Unmarshal(env.Data, &ev)
		model.authRejected = true
		model.addNotice("Authentication failed: "+ev.Reason, true)

	case chat.EventUserList:
		var ev chat.UserListEvent
		if json.Unmarshal(env.Data, &ev) == nil {
			model.roster = ev.Usernames
			for user := range model.typing {
				if !lo.Contains(ev.Usernames, user) {
					delete(model.typing, user)
				}
			}
		}

	case chat.EventChatHistory, chat.EventRoomHistory:
		var ev chat.HistoryEvent
		if json.Unmarshal(env.Data, &ev) == nil {
			model.room = ev.Room
			model.messages = append(model.messages[:0], ev.Messages...)
			model.pinned = nil
		}

	case chat.EventUserTyping:
		var ev chat.UserTypingEvent
		if json.Unmarshal(env.Data, &ev) == nil && ev.User != model.username {
			if ev.IsTyping {
				model.typing[ev.User] = true
			} else {
				delete(model.typing, ev.User)
			}
		}

	case chat.EventReceiveMessage:
		var ev chat.ReceiveMessageEvent
		if json.Unmarshal(env.Data, &ev) == nil && ev.Message.Room == model.room {
			model.messages = append(model.messages, ev.Message)
			delete(model.typing, ev.Message.User)
		}

	case chat.EventEditMessage:
		var ev chat.EditMessageEvent
		if json.Unmarshal(env.Data, &ev) == nil {
			if _, idx, ok := lo.FindIndexOf(model.messages, byID(ev.MessageID)); ok {
				model.messages[idx].Text = ev.NewText
			}
		}

	case chat.EventDeleteMessage:
		var ev chat.DeleteMessageEvent
		if json.Unmarshal(env.Data, &ev) == nil {
			model.messages = lo.Reject(model.messages, func(m chat.MessageView, _ int) bool { return m.ID == ev.MessageID })
			if model.pinned != nil && model.pinned.ID == ev.MessageID {
				model.pinned = nil
			}
		}

	case chat.EventReactionUpdate:
		var ev chat.ReactionUpdateEvent
		if json.Unmarshal(env.Data, &ev) == nil {
			if _, idx, ok := lo.FindIndexOf(model.messages, byID(ev.MessageID)); ok {
				model.messages[idx].Reactions = ev.Reactions
			}
		}

	case chat.EventPinMessage:
		var ev struct {
			Message chat.MessageView `json:"message"`
		}
		if json.Unmarshal(env.Data, &ev) == nil {
			model.pinned = &ev.Message
		}

	case chat.EventError:
		var ev chat.ErrorEvent
		if json.Unmarshal(env.Data, &ev) == nil {
			model.addNotice(fmt.Sprintf("%s: %s", ev.Code, ev.Reason), true)
		}
	}
}

func byID(id string) func(chat.MessageView) bool {
	return func(m chat.MessageView) bool { return m.ID == id }
}

// messageAt returns the message shown under the 1-based number n.
func (model *TUIModel) messageAt(n int) (chat.MessageView, bool) {
	if n < 1 || n > len(model.messages) {
		return chat.MessageView{}, false
	}
	return model.messages[n-1], true
}
