package stream

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func logLine(job, msg string) Entry {
	return Entry{JobID: job, Kind: KindLog, Level: "info", Message: msg}
}

func TestBroker(t *testing.T) {
	t.Run("ring keeps the most recent entries", func(t *testing.T) {
		b := NewBroker(3)
		for i := range 5 {
			b.Publish(logLine("j1", fmt.Sprintf("line %d", i)))
		}

		recent := b.Recent("j1")
		require.Len(t, recent, 3)
		assert.Equal(t, "line 2", recent[0].Message)
		assert.Equal(t, "line 4", recent[2].Message)
		assert.Len(t, b.Recent(AllTopic), 3)
	})

	t.Run("sequence is monotonic across topics", func(t *testing.T) {
		b := NewBroker(10)
		a := b.Publish(logLine("j1", "a"))
		c := b.Publish(logLine("j2", "b"))
		e := b.Publish(Entry{Kind: KindEvent, Event: EventCreated, JobID: "j3"})

		assert.Less(t, a.Seq, c.Seq)
		assert.Less(t, c.Seq, e.Seq)
		assert.False(t, a.Time.IsZero())
		assert.Empty(t, b.Recent("j3"), "events only go to the all topic")
		assert.Len(t, b.Recent(AllTopic), 3)
	})

	t.Run("subscribe returns backlog then live entries", func(t *testing.T) {
		b := NewBroker(10)
		b.Publish(logLine("j1", "before"))

		backlog, sub := b.Subscribe("j1")
		defer sub.Close()
		require.Len(t, backlog, 1)

		b.Publish(logLine("j1", "after"))
		select {
		case e := <-sub.C:
			assert.Equal(t, "after", e.Message)
			assert.Greater(t, e.Seq, backlog[0].Seq)
		case <-time.After(time.Second):
			t.Fatal("no live entry")
		}
	})

	t.Run("slow subscriber drops oldest", func(t *testing.T) {
		b := NewBroker(10)
		_, sub := b.SubscribeBuffered("j1", 2)
		defer sub.Close()

		for i := range 5 {
			b.Publish(logLine("j1", fmt.Sprintf("line %d", i)))
		}

		first := <-sub.C
		second := <-sub.C
		assert.Equal(t, "line 3", first.Message)
		assert.Equal(t, "line 4", second.Message)
		assert.EqualValues(t, 3, sub.Dropped())
	})

	t.Run("close topic ends subscriptions", func(t *testing.T) {
		b := NewBroker(10)
		_, sub := b.Subscribe("j1")
		b.Publish(logLine("j1", "last"))
		b.CloseTopic("j1")

		e, ok := <-sub.C
		require.True(t, ok)
		assert.Equal(t, "last", e.Message)
		_, ok = <-sub.C
		assert.False(t, ok)

		backlog, late := b.Subscribe("j1")
		assert.Len(t, backlog, 1, "backlog survives close")
		_, ok = <-late.C
		assert.False(t, ok, "late subscribers get a closed channel")
		late.Close()
	})

	t.Run("forget drops backlog", func(t *testing.T) {
		b := NewBroker(10)
		b.Publish(logLine("j1", "x"))
		_, sub := b.Subscribe("j1")
		b.Forget("j1")

		_, ok := <-sub.C
		assert.False(t, ok)
		assert.Empty(t, b.Recent("j1"))
		sub.Close()
	})

	t.Run("all topic cannot be closed", func(t *testing.T) {
		b := NewBroker(10)
		_, sub := b.Subscribe(AllTopic)
		defer sub.Close()
		b.CloseTopic(AllTopic)
		b.Forget(AllTopic)
		assert.Equal(t, 1, b.Subscribers(AllTopic))
	})
}

func newStreamServer(t *testing.T, b *Broker) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(Handler(b, func(r *http.Request) string {
		return strings.TrimPrefix(r.URL.Path, "/")
	}, nil))
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server, topic string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/" + topic
}

func TestHandler(t *testing.T) {
	b := NewBroker(10)
	srv := newStreamServer(t, b)
	b.Publish(logLine("j1", "backlog"))

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "j1"), nil)
	require.NoError(t, err)
	defer conn.Close()

	var hello Frame
	require.NoError(t, conn.ReadJSON(&hello))
	assert.Equal(t, FrameHello, hello.Type)
	require.Len(t, hello.Entries, 1)
	assert.Equal(t, "backlog", hello.Entries[0].Message)

	require.Eventually(t, func() bool { return b.Subscribers("j1") == 1 }, time.Second, 5*time.Millisecond)
	b.Publish(logLine("j1", "live"))

	var entry Frame
	require.NoError(t, conn.ReadJSON(&entry))
	assert.Equal(t, FrameEntry, entry.Type)
	assert.Equal(t, "live", entry.Entries[0].Message)

	b.CloseTopic("j1")
	var closed Frame
	require.NoError(t, conn.ReadJSON(&closed))
	assert.Equal(t, FrameClosed, closed.Type)
}

func TestClient(t *testing.T) {
	t.Run("follows until the topic ends", func(t *testing.T) {
		b := NewBroker(10)
		srv := newStreamServer(t, b)
		b.Publish(logLine("j1", "one"))

		c := NewClient(wsURL(srv, "j1"), 10, nil)
		assert.Equal(t, Connecting, c.State())

		done := make(chan error, 1)
		go func() { done <- c.Run(context.Background()) }()

		require.Eventually(t, func() bool { return c.State() == Connected }, time.Second, 5*time.Millisecond)
		require.Eventually(t, func() bool { return b.Subscribers("j1") == 1 }, time.Second, 5*time.Millisecond)

		b.Publish(logLine("j1", "two"))
		require.Eventually(t, func() bool { return len(c.Lines()) == 2 }, time.Second, 5*time.Millisecond)

		b.CloseTopic("j1")
		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Fatal("client did not stop after the topic closed")
		}
		assert.Equal(t, Ended, c.State())
	})

	t.Run("unreachable server is disconnected, not empty", func(t *testing.T) {
		c := NewClient("ws://127.0.0.1:1/nothing", 10, nil)
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- c.Run(ctx) }()

		require.Eventually(t, func() bool { return c.State() == Disconnected }, 2*time.Second, 5*time.Millisecond)
		assert.Empty(t, c.Lines())
		assert.Error(t, c.Err())

		cancel()
		assert.ErrorIs(t, <-done, context.Canceled)
	})

	t.Run("reconnect skips seen entries", func(t *testing.T) {
		c := NewClient("ws://unused", 10, nil)
		c.append([]Entry{{Seq: 1, Message: "a"}, {Seq: 2, Message: "b"}})
		c.append([]Entry{{Seq: 1, Message: "a"}, {Seq: 2, Message: "b"}, {Seq: 3, Message: "c"}})

		lines := c.Lines()
		require.Len(t, lines, 3)
		assert.Equal(t, "c", lines[2].Message)
	})
}
