package live

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func Test_Registry_OnlineLifecycle(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry(slog.Default())

	req.False(registry.IsOnline("acc-1"))

	sink := NewChannelSink(4)
	registry.Register("acc-1", sink)
	req.True(registry.IsOnline("acc-1"))

	registry.Unregister("acc-1")
	req.False(registry.IsOnline("acc-1"))
}

func Test_PushToAccount_DeliversToRegisteredSink(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry(slog.Default())

	sink := NewChannelSink(4)
	registry.Register("acc-1", sink)

	registry.PushToAccount("acc-1", "message:new", map[string]string{"id": "m-1"})

	select {
	case evt := <-sink.Events:
		req.Equal("message:new", evt.Event)
	default:
		t.Fatal("expected a delivered event")
	}
}

func Test_PushToAccount_OfflineIsSilentlyIgnored(t *testing.T) {
	registry := NewRegistry(slog.Default())
	registry.PushToAccount("nobody", "message:new", nil)
}

func Test_ChannelSink_FullBufferDropsInsteadOfBlocking(t *testing.T) {
	req := require.New(t)
	sink := NewChannelSink(1)

	req.NoError(sink.Consume("first", nil))
	req.Error(sink.Consume("second", nil))
}
