package app

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roomchat/internal/chat"
)

func testServerConfig(t *testing.T, driver string) ServerConfig {
	t.Helper()
	dir := t.TempDir()
	return ServerConfig{
		Addr:             "127.0.0.1:0",
		Passkey:          "secure123",
		DefaultRoom:      "General",
		HistoryLimit:     50,
		StoreDriver:      driver,
		DBPath:           dir + "/chat.db",
		BadgerDir:        dir + "/badger",
		WSPath:           "/ws",
		UploadDir:        dir + "/uploads",
		MaxUploadBytes:   1 << 20,
		AllowedOrigins:   []string{"*"},
		SendBuffer:       64,
		RateBurst:        100,
		RateWindow:       time.Second,
		UploadRateBurst:  5,
		UploadRateWindow: time.Minute,
	}
}

func TestRunServerLifecycle(t *testing.T) {
	for _, driver := range []string{"memory", "sqlite", "badger"} {
		t.Run(driver, func(t *testing.T) {
			handle, err := RunServer(context.Background(), testServerConfig(t, driver), zerolog.Nop())
			require.NoError(t, err)

			resp, err := http.Get("http://" + handle.Addr() + "/health")
			require.NoError(t, err)
			resp.Body.Close()
			assert.Equal(t, http.StatusOK, resp.StatusCode)

			conn, _, err := websocket.DefaultDialer.Dial("ws://"+handle.Addr()+"/ws", nil)
			require.NoError(t, err)
			defer conn.Close()

			payload, err := chat.Encode(chat.EventAuthenticate, chat.AuthenticateRequest{Passkey: "secure123", Username: "Jack"})
			require.NoError(t, err)
			require.NoError(t, conn.WriteMessage(websocket.TextMessage, payload))

			require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
			_, raw, err := conn.ReadMessage()
			require.NoError(t, err)
			var env chat.Envelope
			require.NoError(t, json.Unmarshal(raw, &env))
			assert.Equal(t, chat.EventUserList, env.Event)

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			require.NoError(t, handle.Stop(ctx))
			require.NoError(t, handle.Wait())
		})
	}
}

func TestOpenStoreUnknownDriver(t *testing.T) {
	_, err := OpenStore(context.Background(), ServerConfig{StoreDriver: "mongo"})
	assert.Error(t, err)
}
