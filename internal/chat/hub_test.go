package chat

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roomchat/internal/metrics"
)

func startHub(t *testing.T) (*Hub, context.CancelFunc) {
	t.Helper()
	hub := NewHub(zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()
	t.Cleanup(func() {
		cancel()
		<-stopped
	})
	return hub, cancel
}

func TestHubMembership(t *testing.T) {
	hub, _ := startHub(t)
	a, b, c := &recordingOutbox{}, &recordingOutbox{}, &recordingOutbox{}

	require.True(t, hub.Register(Member{ID: "a", Username: "Ana", Room: "General"}, a))
	require.True(t, hub.Register(Member{ID: "b", Username: "Bo", Room: "General"}, b))
	require.True(t, hub.Register(Member{ID: "c", Username: "Cy", Room: "Random"}, c))
	assert.False(t, hub.Register(Member{ID: "a", Username: "Again"}, a))

	names := func() []string {
		var out []string
		for _, m := range hub.Members() {
			out = append(out, m.Username)
		}
		return out
	}
	assert.Equal(t, []string{"Ana", "Bo", "Cy"}, names())

	assert.Equal(t, 2, hub.BroadcastRoom("General", []byte("g")))
	assert.Equal(t, 1, hub.BroadcastRoom("Random", []byte("r")))
	assert.Equal(t, 0, hub.BroadcastRoom("Empty", []byte("e")))
	assert.Equal(t, 2, hub.BroadcastOthers("a", []byte("o")))
	assert.True(t, hub.SendTo("c", []byte("one")))
	assert.False(t, hub.SendTo("zzz", []byte("one")))

	require.True(t, hub.Join("c", "General"))
	assert.Equal(t, 3, hub.BroadcastRoom("General", []byte("g2")))
	assert.Equal(t, 0, hub.BroadcastRoom("Random", []byte("r2")))
	assert.False(t, hub.Join("zzz", "General"))

	require.True(t, hub.Unregister("b"))
	assert.False(t, hub.Unregister("b"))
	assert.Equal(t, []string{"Ana", "Cy"}, names())
	assert.Equal(t, 2, hub.BroadcastAll([]byte("all")))
}

func TestHubAnnounceUsesCurrentRoster(t *testing.T) {
	hub, _ := startHub(t)
	out := &recordingOutbox{}
	require.True(t, hub.Register(Member{ID: "a", Username: "Ana"}, out))
	require.True(t, hub.Register(Member{ID: "b", Username: "Bo"}, &recordingOutbox{}))

	var seen []string
	n := hub.Announce(func(roster []string) ([]byte, error) {
		seen = roster
		return []byte("roster"), nil
	})
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"Ana", "Bo"}, seen)
}

func TestHubEvictsSlowConsumer(t *testing.T) {
	hub, _ := startHub(t)
	slow := &recordingOutbox{limit: 1}
	fast := &recordingOutbox{}
	require.True(t, hub.Register(Member{ID: "slow", Username: "Slow"}, slow))
	require.True(t, hub.Register(Member{ID: "fast", Username: "Fast"}, fast))

	before := testutil.ToFloat64(metrics.DroppedDeliveries)
	assert.Equal(t, 2, hub.BroadcastAll([]byte("1")))
	assert.Equal(t, 1, hub.BroadcastAll([]byte("2")))
	assert.Equal(t, 1, hub.BroadcastAll([]byte("3")))

	assert.True(t, slow.isClosed())
	assert.False(t, fast.isClosed())
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.DroppedDeliveries))
}

func TestHubStopClosesTransports(t *testing.T) {
	hub, cancel := startHub(t)
	out := &recordingOutbox{}
	require.True(t, hub.Register(Member{ID: "a", Username: "Ana"}, out))

	cancel()
	<-hub.done

	assert.True(t, out.isClosed())
	assert.False(t, hub.Register(Member{ID: "b", Username: "Bo"}, &recordingOutbox{}))
	assert.Nil(t, hub.Members())
	assert.Zero(t, hub.BroadcastAll([]byte("late")))
}
