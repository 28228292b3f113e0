package internal

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roomchat/internal/chat"
	"roomchat/internal/storage"
)

func clientEnvelope(t *testing.T, event string, data any) chat.Envelope {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	return chat.Envelope{Event: event, Data: raw}
}

func newChatModel() *TUIModel {
	return NewTUIModel("ws://localhost:5000/ws", "jack", "secure123", "General")
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		line    string
		want    command
		wantErr bool
	}{
		{line: "  hello there ", want: command{kind: cmdSay, arg: "hello there"}},
		{line: "/quit", want: command{kind: cmdQuit}},
		{line: "/EXIT", want: command{kind: cmdQuit}},
		{line: "/help", want: command{kind: cmdHelp}},
		{line: "/join Random", want: command{kind: cmdJoin, arg: "Random"}},
		{line: "/join", wantErr: true},
		{line: "/to ore", want: command{kind: cmdTo, arg: "ore"}},
		{line: "/to", want: command{kind: cmdTo}},
		{line: "/upload ./notes.txt", want: command{kind: cmdUpload, arg: "./notes.txt"}},
		{line: "/upload", want: command{kind: cmdUpload}},
		{line: "/edit 2 fixed typo", want: command{kind: cmdEdit, index: 2, arg: "fixed typo"}},
		{line: "/edit 2", wantErr: true},
		{line: "/edit x text", wantErr: true},
		{line: "/react 1 👍", want: command{kind: cmdReact, index: 1, arg: "👍"}},
		{line: "/delete 3", want: command{kind: cmdDelete, index: 3}},
		{line: "/delete 0", wantErr: true},
		{line: "/pin 1", want: command{kind: cmdPin, index: 1}},
		{line: "/dance", wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.line, func(t *testing.T) {
			got, err := parseCommand(tc.line)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestNewTUIModelStartsAtMissingPrompt(t *testing.T) {
	t.Setenv("ROOMCHAT_USER", "")
	t.Setenv("USER", "jack")

	assert.Equal(t, modeNamePrompt, NewTUIModel("ws://x/ws", "", "", "").mode)
	assert.Equal(t, "jack", NewTUIModel("ws://x/ws", "", "", "").username)
	assert.Equal(t, modeRoomPrompt, NewTUIModel("ws://x/ws", "jack", "secure123", "").mode)
	assert.Equal(t, modeChat, newChatModel().mode)
}

func TestApplyEventMessageLifecycle(t *testing.T) {
	model := newChatModel()
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	first := chat.MessageView{ID: "m1", User: "ore", Text: "hi", Room: "General", Reactions: []storage.Reaction{}, Timestamp: at}

	model.applyEvent(clientEnvelope(t, chat.EventChatHistory, chat.HistoryEvent{Room: "General", Messages: []chat.MessageView{first}}))
	require.Len(t, model.messages, 1)

	model.applyEvent(clientEnvelope(t, chat.EventUserTyping, chat.UserTypingEvent{User: "ore", IsTyping: true}))
	assert.True(t, model.typing["ore"])

	second := chat.MessageView{ID: "m2", User: "ore", Text: "how are you", Room: "General", Timestamp: at}
	model.applyEvent(clientEnvelope(t, chat.EventReceiveMessage, chat.ReceiveMessageEvent{Message: second}))
	require.Len(t, model.messages, 2)
	assert.NotContains(t, model.typing, "ore")

	other := chat.MessageView{ID: "m3", User: "ore", Text: "elsewhere", Room: "Random", Timestamp: at}
	model.applyEvent(clientEnvelope(t, chat.EventReceiveMessage, chat.ReceiveMessageEvent{Message: other}))
	assert.Len(t, model.messages, 2)

	model.applyEvent(clientEnvelope(t, chat.EventEditMessage, chat.EditMessageEvent{MessageID: "m1", NewText: "hello"}))
	assert.Equal(t, "hello", model.messages[0].Text)

	reactions := []storage.Reaction{{Username: "jack", Symbol: "👍"}}
	model.applyEvent(clientEnvelope(t, chat.EventReactionUpdate, chat.ReactionUpdateEvent{MessageID: "m2", Reactions: reactions}))
	assert.Equal(t, reactions, model.messages[1].Reactions)

	model.applyEvent(clientEnvelope(t, chat.EventPinMessage, map[string]any{"message": first}))
	require.NotNil(t, model.pinned)
	assert.Equal(t, "m1", model.pinned.ID)

	model.applyEvent(clientEnvelope(t, chat.EventDeleteMessage, chat.DeleteMessageEvent{MessageID: "m1"}))
	require.Len(t, model.messages, 1)
	assert.Equal(t, "m2", model.messages[0].ID)
	assert.Nil(t, model.pinned)

	got, ok := model.messageAt(1)
	assert.True(t, ok)
	assert.Equal(t, "m2", got.ID)
	_, ok = model.messageAt(2)
	assert.False(t, ok)
}

func TestApplyEventRosterAndErrors(t *testing.T) {
	model := newChatModel()
	model.typing["ore"] = true
	model.typing["sam"] = true

	model.applyEvent(clientEnvelope(t, chat.EventUserList, chat.UserListEvent{Usernames: []string{"jack", "ore"}}))
	assert.Equal(t, []string{"jack", "ore"}, model.roster)
	assert.Contains(t, model.typing, "ore")
	assert.NotContains(t, model.typing, "sam")

	model.applyEvent(clientEnvelope(t, chat.EventUserTyping, chat.UserTypingEvent{User: "jack", IsTyping: true}))
	assert.NotContains(t, model.typing, "jack")

	model.applyEvent(clientEnvelope(t, chat.EventError, chat.ErrorEvent{Code: chat.CodeValidation, Reason: "message is empty"}))
	require.Len(t, model.notices, 1)
	assert.True(t, model.notices[0].isErr)
	assert.Contains(t, model.notices[0].text, "message is empty")

	model.applyEvent(clientEnvelope(t, chat.EventAuthError, chat.AuthErrorEvent{Reason: "Invalid passkey!"}))
	assert.True(t, model.authRejected)

	model.applyEvent(clientEnvelope(t, chat.EventRoomHistory, chat.HistoryEvent{Room: "Random", Messages: []chat.MessageView{}}))
	assert.Equal(t, "Random", model.room)
	assert.Empty(t, model.messages)
}

func TestNoticesAreCapped(t *testing.T) {
	model := newChatModel()
	for i := 0; i < maxNotices+3; i++ {
		model.addNotice("note", false)
	}
	assert.Len(t, model.notices, maxNotices)
}

func TestSummarizeReactions(t *testing.T) {
	assert.Empty(t, summarizeReactions(nil))
	got := summarizeReactions([]storage.Reaction{
		{Username: "jack", Symbol: "👍"},
		{Username: "ore", Symbol: "🎉"},
		{Username: "sam", Symbol: "👍"},
	})
	assert.Equal(t, "👍 2  🎉 1", got)
}

func TestTypingLine(t *testing.T) {
	model := newChatModel()
	assert.Empty(t, model.typingLine())
	model.typing["ore"] = true
	assert.Equal(t, "ore is typing…", model.typingLine())
	model.typing["amy"] = true
	assert.Equal(t, "amy, ore are typing…", model.typingLine())
}

func TestDescribeDirectory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "photos"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), make([]byte, 2048), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".hidden"), []byte("x"), 0o644))

	items, err := browseDirectory(dir)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "photos", items[0].Name)
	assert.True(t, items[0].IsDir)
	assert.Equal(t, int64(2048), items[1].Size)

	listing, err := describeDirectory(dir)
	require.NoError(t, err)
	assert.Contains(t, listing, "photos/")
	assert.Contains(t, listing, "notes.txt (2.0 KiB)")
	assert.NotContains(t, listing, ".hidden")

	_, err = describeDirectory(filepath.Join(dir, "missing"))
	assert.Error(t, err)
}

func TestClientURLHelpers(t *testing.T) {
	assert.NoError(t, validateWSURL("ws://localhost:5000/ws"))
	assert.NoError(t, validateWSURL("wss://chat.example.com/ws"))
	assert.Error(t, validateWSURL("http://localhost:5000/ws"))

	upload, err := buildUploadURL("wss://chat.example.com/ws?x=1")
	require.NoError(t, err)
	assert.Equal(t, "https://chat.example.com/api/upload", upload)

	upload, err = buildUploadURL("ws://localhost:5000/ws")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:5000/api/upload", upload)

	_, err = buildUploadURL("ftp://localhost/ws")
	assert.Error(t, err)

	assert.Equal(t, "http://localhost:5000/uploads/a.png", resolveFileURL("ws://localhost:5000/ws", "/uploads/a.png"))
	assert.Equal(t, "https://cdn.example.com/a.png", resolveFileURL("ws://localhost:5000/ws", "https://cdn.example.com/a.png"))
}

func TestRenderChatView(t *testing.T) {
	model := newChatModel()
	model.isConnected = true
	model.roster = []string{"jack", "ore"}
	model.messages = append(model.messages, chat.MessageView{
		ID: "m1", User: "ore", Text: "see attached", Room: "General",
		FileURL: "/uploads/a.png", FileType: "image/png",
		Reactions: []storage.Reaction{{Username: "jack", Symbol: "👍"}},
		Timestamp: time.Now(),
	})

	view := model.View()
	assert.Contains(t, view, "Room General")
	assert.Contains(t, view, "see attached")
	assert.Contains(t, view, "http://localhost:5000/uploads/a.png")
	assert.Contains(t, view, "👍 1")
}
