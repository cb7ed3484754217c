package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	gws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/shannonnonshan/streamland-messaging/internal/chat"
)

type wsTestServer struct {
	*httptest.Server
	mu       sync.Mutex
	upgrader gws.Upgrader
	conns    []*gws.Conn
	onConn   func(n int, conn *gws.Conn)
}

func newWSTestServer(t *testing.T) *wsTestServer {
	s := &wsTestServer{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		s.mu.Lock()
		s.conns = append(s.conns, conn)
		n := len(s.conns)
		onConn := s.onConn
		s.mu.Unlock()
		if onConn != nil {
			onConn(n, conn)
		}
	}))
	t.Cleanup(s.Close)
	return s
}

func TestSendWhileClosedFailsFast(t *testing.T) {
	c, err := NewWebsocketChannel("http://127.0.0.1:1", "tok")
	require.NoError(t, err)
	err = c.Send(chat.Frame{Type: chat.FrameSend, To: "p1", Content: "x"})
	require.ErrorIs(t, err, chat.ErrChannelUnavailable)
}

func TestConnectDispatchesFrames(t *testing.T) {
	srv := newWSTestServer(t)
	frame := chat.Frame{Type: chat.FrameMessage, Message: &chat.Message{ID: "m1", SenderID: "p1", ReceiverID: "me", Content: "hi", Kind: chat.KindText, CreatedAt: time.Now().UTC()}}
	srv.onConn = func(n int, conn *gws.Conn) {
		require.NoError(t, conn.WriteJSON(&frame))
	}

	c, err := NewWebsocketChannel(srv.URL, "tok")
	require.NoError(t, err)

	got := make(chan *chat.Message, 1)
	c.OnMessage(func(m *chat.Message) { got <- m })

	require.NoError(t, c.Connect(context.Background()))
	defer c.Close()
	require.Equal(t, StateOpen, c.State())

	select {
	case m := <-got:
		require.Equal(t, "m1", m.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("message frame not dispatched")
	}
}

func TestSendWritesFrameToServer(t *testing.T) {
	srv := newWSTestServer(t)
	received := make(chan chat.Frame, 1)
	srv.onConn = func(n int, conn *gws.Conn) {
		go func() {
			var f chat.Frame
			if err := conn.ReadJSON(&f); err == nil {
				received <- f
			}
		}()
	}

	c, err := NewWebsocketChannel(srv.URL, "tok")
	require.NoError(t, err)
	require.NoError(t, c.Connect(context.Background()))
	defer c.Close()

	require.NoError(t, c.Send(chat.Frame{Type: chat.FrameSend, To: "p1", Content: "hello", ClientRef: "r1"}))
	select {
	case f := <-received:
		require.Equal(t, chat.FrameSend, f.Type)
		require.Equal(t, "hello", f.Content)
	case <-time.After(2 * time.Second):
		t.Fatal("frame not received by server")
	}
}

func TestReconnectAfterDrop(t *testing.T) {
	srv := newWSTestServer(t)
	srv.onConn = func(n int, conn *gws.Conn) {
		if n == 1 {
			// drop the first connection to force a reconnect
			_ = conn.Close()
		}
	}

	c, err := NewWebsocketChannel(srv.URL, "tok")
	require.NoError(t, err)

	states := make(chan State, 16)
	c.OnStateChange(func(s State) { states <- s })

	require.NoError(t, c.Connect(context.Background()))
	defer c.Close()

	var opens int
	deadline := time.After(10 * time.Second)
	for opens < 2 {
		select {
		case s := <-states:
			if s == StateOpen {
				opens++
			}
		case <-deadline:
			t.Fatal("channel did not reconnect")
		}
	}
	require.Equal(t, StateOpen, c.State())
}

func TestCloseDuringReconnectWindow(t *testing.T) {
	srv := newWSTestServer(t)
	srv.onConn = func(n int, conn *gws.Conn) {
		if n == 1 {
			_ = conn.Close()
		}
	}

	c, err := NewWebsocketChannel(srv.URL, "tok")
	require.NoError(t, err)

	states := make(chan State, 16)
	c.OnStateChange(func(s State) { states <- s })
	require.NoError(t, c.Connect(context.Background()))

	// wait for the drop to be noticed, then shut down while the
	// reconnect backoff sleep is in progress
	deadline := time.After(5 * time.Second)
	for dropped := false; !dropped; {
		select {
		case s := <-states:
			dropped = s == StateClosed
		case <-deadline:
			t.Fatal("drop not observed")
		}
	}
	require.NoError(t, c.Close())

	// the pending reconnect attempt may still dial, but it must never
	// hand a live connection to the channel
	require.Never(t, func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.state == StateOpen || c.conn != nil
	}, 2*time.Second, 50*time.Millisecond)
}

func TestCloseStopsReconnection(t *testing.T) {
	srv := newWSTestServer(t)
	c, err := NewWebsocketChannel(srv.URL, "tok")
	require.NoError(t, err)
	require.NoError(t, c.Connect(context.Background()))
	require.NoError(t, c.Close())
	require.Equal(t, StateClosed, c.State())
	require.ErrorIs(t, c.Send(chat.Frame{Type: chat.FrameSend}), chat.ErrChannelUnavailable)
}
