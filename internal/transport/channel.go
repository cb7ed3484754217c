package transport

import (
	"context"

	"github.com/shannonnonshan/streamland-messaging/internal/chat"
)

type State string

const (
	StateConnecting State = "connecting"
	StateOpen       State = "open"
	StateClosed     State = "closed"
)

// Channel is one persistent bidirectional connection to the messaging
// server for the authenticated session. Push handlers are dispatched
// sequentially from a single goroutine, so downstream reconciliation never
// sees interleaved partial updates.
//
// Two strategies implement it: a websocket push channel and a polling
// fallback that re-fetches the conversation snapshot. Consumers only ever
// see the event contract, never the strategy.
type Channel interface {
	// Connect establishes the connection. After a successful connect the
	// channel reconnects automatically with backoff until Close is called.
	Connect(ctx context.Context) error
	Close() error

	// Send enqueues one outbound frame. It fails fast with
	// chat.ErrChannelUnavailable while the channel is not open; nothing is
	// queued silently.
	Send(f chat.Frame) error

	State() State

	OnMessage(fn func(*chat.Message))
	OnMessageEcho(fn func(*chat.Message, string))
	OnTyping(fn func(from string, typing bool))
	OnPresence(fn func(chat.Frame))
	OnStateChange(fn func(State))
}
