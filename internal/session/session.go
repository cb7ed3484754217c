package session

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/shannonnonshan/streamland-messaging/internal/chat"
	"github.com/shannonnonshan/streamland-messaging/internal/convstore"
	"github.com/shannonnonshan/streamland-messaging/internal/pane"
	"github.com/shannonnonshan/streamland-messaging/internal/presence"
	"github.com/shannonnonshan/streamland-messaging/internal/transport"
	"github.com/shannonnonshan/streamland-messaging/internal/typing"
)

const snapshotAttempts = 3

// API is the REST collaborator surface the session consumes. Satisfied by
// rest.Client.
type API interface {
	Contacts(ctx context.Context) ([]chat.Contact, error)
	Snapshot(ctx context.Context) ([]chat.ConversationSummary, error)
	History(ctx context.Context, partnerID string) ([]chat.Message, error)
}

// Session owns one user's messaging state: it connects the channel, seeds
// the conversation store, subscribes presence and routes every push event
// to the right component. The channel is shared by presence, store and
// typing; the pane is the per-conversation view on top.
type Session struct {
	selfID  string
	channel transport.Channel
	api     API
	logger  zerolog.Logger

	Store    *convstore.Store
	Presence *presence.Tracker
	Typing   *typing.Coordinator
	Pane     *pane.Controller

	opens atomic.Int64
}

func New(selfID string, channel transport.Channel, api API, typingDebounce time.Duration) *Session {
	s := &Session{
		selfID:  selfID,
		channel: channel,
		api:     api,
		logger:  log.With().Str("component", "session").Str("user_id", selfID).Logger(),
	}
	s.Store = convstore.NewStore()
	s.Presence = presence.NewTracker(channel)
	s.Typing = typing.NewCoordinator(channel, typingDebounce)
	s.Pane = pane.NewController(selfID, api, channel, s.Store)

	// handlers are registered before Connect so events racing the snapshot
	// land in the store's buffer instead of being lost
	channel.OnMessage(func(m *chat.Message) {
		s.Store.ApplyIncoming(m)
		s.Pane.HandleIncoming(m)
	})
	channel.OnMessageEcho(func(m *chat.Message, ref string) {
		s.Store.ApplyEcho(m)
		s.Pane.HandleEcho(m, ref)
	})
	channel.OnTyping(s.Typing.HandleTyping)
	channel.OnPresence(s.Presence.HandlePresence)
	channel.OnStateChange(func(st transport.State) {
		if st != transport.StateOpen {
			return
		}
		if s.opens.Add(1) == 1 {
			return
		}
		// reconnect: presence and outgoing typing state are not durable
		// across the drop; store and pane history remain correct
		s.logger.Info().Msg("channel reopened, republishing subscriptions")
		s.Typing.Reset()
		s.Presence.Resubscribe()
	})
	return s
}

// Start connects the channel, loads contacts, subscribes presence and
// applies the conversation snapshot with bounded retry.
func (s *Session) Start(ctx context.Context) error {
	if err := s.channel.Connect(ctx); err != nil {
		return errors.Wrap(err, "connect channel")
	}

	contacts, err := s.api.Contacts(ctx)
	if err != nil {
		return errors.Wrap(err, "load contacts")
	}
	s.Store.SetContacts(contacts)

	ids := make([]string, 0, len(contacts))
	for _, c := range contacts {
		ids = append(ids, c.ID)
	}
	if err := s.Presence.Subscribe(ids); err != nil {
		s.logger.Warn().Err(err).Msg("presence subscription failed")
	}

	summaries, err := s.fetchSnapshot(ctx)
	if err != nil {
		return err
	}
	s.Store.ApplySnapshot(summaries)
	return nil
}

func (s *Session) fetchSnapshot(ctx context.Context) ([]chat.ConversationSummary, error) {
	delay := 500 * time.Millisecond
	var lastErr error
	for attempt := 1; attempt <= snapshotAttempts; attempt++ {
		summaries, err := s.api.Snapshot(ctx)
		if err == nil {
			return summaries, nil
		}
		lastErr = err
		s.logger.Warn().Err(err).Int("attempt", attempt).Msg("snapshot fetch failed")
		if attempt < snapshotAttempts {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}
	}
	return nil, errors.Wrap(chat.ErrSnapshotFetch, lastErr.Error())
}

// OpenConversation switches the pane to a partner. The previous partner's
// outgoing typing signal is force-stopped before the switch.
func (s *Session) OpenConversation(ctx context.Context, partnerID string) error {
	s.Typing.SetPartner(partnerID)
	return s.Pane.Open(ctx, partnerID)
}

func (s *Session) CloseConversation() {
	s.Typing.SetPartner("")
	s.Pane.Close()
}

// Conversations is the ordered reactive projection consumed by the contact
// list UI: identity, presence, last message and unread badge per partner.
func (s *Session) Conversations() []chat.ConversationView {
	return s.Store.Projection(s.Presence.IsOnline)
}

func (s *Session) Close() error {
	return s.channel.Close()
}
