package transport

import (
	"context"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/shannonnonshan/streamland-messaging/internal/chat"
)

const (
	reconnectBase = 500 * time.Millisecond
	reconnectCap  = 30 * time.Second
)

// WebsocketChannel is the push implementation of Channel: one gorilla
// connection per session, JSON frames, automatic reconnect with capped
// doubling backoff.
type WebsocketChannel struct {
	wsURL string
	token string

	dialer *websocket.Dialer
	logger zerolog.Logger

	mu      sync.Mutex
	conn    *websocket.Conn
	state   State
	closed  bool
	writeMu sync.Mutex

	onMessage     func(*chat.Message)
	onEcho        func(*chat.Message, string)
	onTyping      func(from string, typing bool)
	onPresence    func(chat.Frame)
	onStateChange []func(State)
}

func NewWebsocketChannel(serverURL, token string) (*WebsocketChannel, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return nil, err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	u.Path = "/ws"
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()

	return &WebsocketChannel{
		wsURL:  u.String(),
		token:  token,
		dialer: websocket.DefaultDialer,
		state:  StateClosed,
		logger: log.With().Str("component", "ws_channel").Logger(),
	}, nil
}

func (c *WebsocketChannel) OnMessage(fn func(*chat.Message)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onMessage = fn
}

func (c *WebsocketChannel) OnMessageEcho(fn func(*chat.Message, string)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onEcho = fn
}

func (c *WebsocketChannel) OnTyping(fn func(from string, typing bool)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onTyping = fn
}

func (c *WebsocketChannel) OnPresence(fn func(chat.Frame)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onPresence = fn
}

func (c *WebsocketChannel) OnStateChange(fn func(State)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onStateChange = append(c.onStateChange, fn)
}

func (c *WebsocketChannel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connect dials once synchronously so the caller learns about auth or
// address problems immediately, then hands the connection to the read loop.
func (c *WebsocketChannel) Connect(ctx context.Context) error {
	c.setState(StateConnecting)
	conn, _, err := c.dialer.DialContext(ctx, c.wsURL, nil)
	if err != nil {
		c.setState(StateClosed)
		return err
	}
	c.mu.Lock()
	c.conn = conn
	c.closed = false
	c.mu.Unlock()
	c.setState(StateOpen)
	go c.readLoop(conn)
	return nil
}

func (c *WebsocketChannel) Close() error {
	c.mu.Lock()
	c.closed = true
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()
	c.setState(StateClosed)
	if conn != nil {
		return conn.Close()
	}
	return nil
}

func (c *WebsocketChannel) Send(f chat.Frame) error {
	c.mu.Lock()
	conn := c.conn
	open := c.state == StateOpen
	c.mu.Unlock()
	if !open || conn == nil {
		return chat.ErrChannelUnavailable
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.WriteJSON(&f)
}

func (c *WebsocketChannel) readLoop(conn *websocket.Conn) {
	for {
		var f chat.Frame
		if err := conn.ReadJSON(&f); err != nil {
			c.mu.Lock()
			closed := c.closed
			c.mu.Unlock()
			if closed {
				return
			}
			c.logger.Warn().Err(err).Msg("connection lost, reconnecting")
			c.setState(StateClosed)
			go c.reconnectLoop()
			return
		}
		c.dispatch(f)
	}
}

func (c *WebsocketChannel) dispatch(f chat.Frame) {
	c.mu.Lock()
	onMessage, onEcho, onTyping, onPresence := c.onMessage, c.onEcho, c.onTyping, c.onPresence
	c.mu.Unlock()

	switch f.Type {
	case chat.FrameMessage:
		if f.Message != nil && onMessage != nil {
			onMessage(f.Message)
		}
	case chat.FrameEcho:
		if f.Message != nil && onEcho != nil {
			onEcho(f.Message, f.ClientRef)
		}
	case chat.FrameTyping:
		if onTyping != nil {
			onTyping(f.From, f.Typing)
		}
	case chat.FramePresence:
		if onPresence != nil {
			onPresence(f)
		}
	default:
		c.logger.Debug().Str("frame_type", string(f.Type)).Msg("unknown frame type")
	}
}

func (c *WebsocketChannel) reconnectLoop() {
	delay := reconnectBase
	for {
		c.mu.Lock()
		closed := c.closed
		c.mu.Unlock()
		if closed {
			return
		}
		time.Sleep(delay)
		c.setState(StateConnecting)
		conn, _, err := c.dialer.Dial(c.wsURL, nil)
		if err != nil {
			c.logger.Debug().Err(err).Dur("next_delay", delay).Msg("reconnect attempt failed")
			c.setState(StateClosed)
			delay *= 2
			if delay > reconnectCap {
				delay = reconnectCap
			}
			continue
		}
		c.mu.Lock()
		// Close may have landed during the sleep or the dial; a
		// connection established after shutdown must not be handed off
		if c.closed {
			c.mu.Unlock()
			_ = conn.Close()
			c.setState(StateClosed)
			return
		}
		c.conn = conn
		c.mu.Unlock()
		c.setState(StateOpen)
		c.logger.Info().Msg("reconnected")
		go c.readLoop(conn)
		return
	}
}

func (c *WebsocketChannel) setState(s State) {
	c.mu.Lock()
	if c.state == s {
		c.mu.Unlock()
		return
	}
	c.state = s
	subs := make([]func(State), len(c.onStateChange))
	copy(subs, c.onStateChange)
	c.mu.Unlock()
	for _, fn := range subs {
		fn(s)
	}
}

var _ Channel = (*WebsocketChannel)(nil)
