package broadcast

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testHub(t *testing.T) (*Hub, chan struct{}) {
	h := NewHub(zap.NewNop())
	stop := make(chan struct{})
	go h.Run(stop)
	return h, stop
}

func testClient(id string) *Client {
	return newClient(id, nil)
}

func TestTopicFamily(t *testing.T) {
	assert.Equal(t, "trades.stream", topicFamily("trades.stream"))
	assert.Equal(t, "trades.stream.token", topicFamily("trades.stream.token:7"))
	assert.Equal(t, "trades.stream.token", topicFamily("trades.stream.token:TOK"))
	assert.Equal(t, "trades.stream.pair", topicFamily("trades.stream.pair:zig1pair"))
	assert.Equal(t, "other", topicFamily("something.else"))
}

func TestHub_SubscribePublishUnsubscribe(t *testing.T) {
	h, stop := testHub(t)
	defer close(stop)

	c := testClient("c1")
	h.Register <- c
	time.Sleep(10 * time.Millisecond)

	h.Subscribe(c, "trades.stream")
	assert.Equal(t, 1, h.SubscriberCount("trades.stream"))
	assert.True(t, c.hasTopic("trades.stream"))

	h.Publish("trades.stream", []byte("hello"))
	select {
	case msg := <-c.Send:
		assert.Equal(t, []byte("hello"), msg)
	case <-time.After(time.Second):
		t.Fatal("expected published message on subscriber's Send channel")
	}

	h.Unsubscribe(c, "trades.stream")
	assert.Equal(t, 0, h.SubscriberCount("trades.stream"))
	assert.False(t, c.hasTopic("trades.stream"))
}

func TestHub_PublishToUnknownTopicIsNoop(t *testing.T) {
	h, stop := testHub(t)
	defer close(stop)

	assert.NotPanics(t, func() { h.Publish("nobody.listening", []byte("x")) })
}

func TestHub_DropClientRemovesAllSubscriptions(t *testing.T) {
	h, stop := testHub(t)
	defer close(stop)

	c := testClient("c1")
	h.Register <- c
	time.Sleep(10 * time.Millisecond)

	h.Subscribe(c, "trades.stream")
	h.Subscribe(c, "trades.stream.pair:zig1pair")
	require.Equal(t, 1, h.SubscriberCount("trades.stream"))

	h.Unregister <- c
	time.Sleep(10 * time.Millisecond)

	assert.Equal(t, 0, h.SubscriberCount("trades.stream"))
	assert.Equal(t, 0, h.SubscriberCount("trades.stream.pair:zig1pair"))
}

func TestHub_PublishDropsClientWithFullSendBuffer(t *testing.T) {
	h, stop := testHub(t)
	defer close(stop)

	c := testClient("c1")
	h.Register <- c
	time.Sleep(10 * time.Millisecond)
	h.Subscribe(c, "trades.stream")

	for i := 0; i < cap(c.Send); i++ {
		c.Send <- []byte("filler")
	}

	h.Publish("trades.stream", []byte("overflow"))

	require.Eventually(t, func() bool {
		return h.SubscriberCount("trades.stream") == 0
	}, time.Second, 10*time.Millisecond, "client with a full send buffer should be dropped and unsubscribed")
}
