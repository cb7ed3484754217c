package convstore

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/shannonnonshan/streamland-messaging/internal/chat"
)

var base = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func msg(id, from, to string, at time.Time) *chat.Message {
	return &chat.Message{
		ID:         id,
		SenderID:   from,
		ReceiverID: to,
		Content:    "m-" + id,
		Kind:       chat.KindText,
		CreatedAt:  at,
	}
}

func TestSnapshotSeedsSummaries(t *testing.T) {
	s := NewStore()
	s.ApplySnapshot([]chat.ConversationSummary{
		{PartnerID: "p1", LastMessage: *msg("a", "p1", "me", base), UnreadCount: 2},
	})

	sum, ok := s.Summary("p1")
	require.True(t, ok)
	require.Equal(t, 2, sum.UnreadCount)
	require.Equal(t, "a", sum.LastMessage.ID)
}

func TestLiveEventBeforeSnapshotIsBufferedAndReplayed(t *testing.T) {
	s := NewStore()

	// live message at 10:05 arrives while the snapshot request is in flight
	s.ApplyIncoming(msg("live", "p1", "me", base.Add(5*time.Minute)))

	// snapshot lands later with older data
	s.ApplySnapshot([]chat.ConversationSummary{
		{PartnerID: "p1", LastMessage: *msg("a", "p1", "me", base), UnreadCount: 2},
	})

	sum, ok := s.Summary("p1")
	require.True(t, ok)
	require.Equal(t, "live", sum.LastMessage.ID, "live event must win over the stale snapshot")
	require.Equal(t, 3, sum.UnreadCount)
}

func TestSnapshotAppliedOnlyOnce(t *testing.T) {
	s := NewStore()
	s.ApplySnapshot([]chat.ConversationSummary{
		{PartnerID: "p1", LastMessage: *msg("a", "p1", "me", base), UnreadCount: 1},
	})
	s.ApplySnapshot([]chat.ConversationSummary{
		{PartnerID: "p1", LastMessage: *msg("b", "p1", "me", base.Add(time.Hour)), UnreadCount: 9},
	})

	sum, _ := s.Summary("p1")
	require.Equal(t, 1, sum.UnreadCount)
	require.Equal(t, "a", sum.LastMessage.ID)
}

func TestDuplicateEventIgnored(t *testing.T) {
	s := NewStore()
	s.ApplySnapshot(nil)

	m := msg("dup", "p1", "me", base)
	s.ApplyIncoming(m)
	s.ApplyIncoming(m)

	require.Equal(t, 1, s.Unread("p1"))
}

func TestUnreadMonotonicityWhileClosed(t *testing.T) {
	s := NewStore()
	s.ApplySnapshot([]chat.ConversationSummary{
		{PartnerID: "p1", LastMessage: *msg("seed", "p1", "me", base), UnreadCount: 2},
	})

	for i := 0; i < 3; i++ {
		s.ApplyIncoming(msg(fmt.Sprintf("n%d", i), "p1", "me", base.Add(time.Duration(i+1)*time.Minute)))
	}
	require.Equal(t, 5, s.Unread("p1"))
}

func TestEchoNeverTouchesUnread(t *testing.T) {
	s := NewStore()
	s.ApplySnapshot(nil)

	s.ApplyEcho(msg("e1", "me", "p1", base))
	require.Equal(t, 0, s.Unread("p1"))

	sum, ok := s.Summary("p1")
	require.True(t, ok)
	require.Equal(t, "e1", sum.LastMessage.ID)
}

func TestOpenConversationSuppressesUnread(t *testing.T) {
	s := NewStore()
	s.ApplySnapshot(nil)
	s.SetOpen("p1")

	s.ApplyIncoming(msg("m1", "p1", "me", base))
	require.Equal(t, 0, s.Unread("p1"))

	// a different, closed partner still accrues
	s.ApplyIncoming(msg("m2", "p2", "me", base))
	require.Equal(t, 1, s.Unread("p2"))
}

func TestSetOpenZeroesUnreadImmediately(t *testing.T) {
	s := NewStore()
	s.ApplySnapshot([]chat.ConversationSummary{
		{PartnerID: "p3", LastMessage: *msg("seed", "p3", "me", base), UnreadCount: 5},
	})

	s.SetOpen("p3")
	require.Equal(t, 0, s.Unread("p3"))
}

func TestLastMessageNeverRegresses(t *testing.T) {
	s := NewStore()
	s.ApplySnapshot(nil)

	s.ApplyIncoming(msg("new", "p1", "me", base.Add(10*time.Minute)))
	// an older message replayed out of order after a reconnect
	s.ApplyIncoming(msg("old", "p1", "me", base))

	sum, _ := s.Summary("p1")
	require.Equal(t, "new", sum.LastMessage.ID)
	require.Equal(t, 2, sum.UnreadCount)
}

func TestProjectionOrdering(t *testing.T) {
	s := NewStore()
	s.SetContacts([]chat.Contact{
		{ID: "a", DisplayName: "A"},
		{ID: "b", DisplayName: "B"},
		{ID: "c", DisplayName: "C"},
	})
	s.ApplySnapshot(nil)

	// activity on b promotes it; a and c keep contact-list order
	s.ApplyIncoming(msg("m1", "b", "me", base))

	views := s.Projection(nil)
	require.Len(t, views, 3)
	require.Equal(t, "b", views[0].PartnerID)
	require.Equal(t, "a", views[1].PartnerID)
	require.Equal(t, "c", views[2].PartnerID)

	// then activity on c moves it to the front
	s.ApplyIncoming(msg("m2", "c", "me", base.Add(time.Minute)))
	views = s.Projection(nil)
	require.Equal(t, "c", views[0].PartnerID)
	require.Equal(t, "b", views[1].PartnerID)
}

func TestProjectionIncludesPartnerWithoutContactEntry(t *testing.T) {
	s := NewStore()
	s.SetContacts([]chat.Contact{{ID: "a", DisplayName: "A"}})
	s.ApplySnapshot(nil)

	s.ApplyIncoming(msg("m1", "stranger", "me", base))

	views := s.Projection(nil)
	require.Len(t, views, 2)
	require.Equal(t, "stranger", views[0].PartnerID)
	require.Equal(t, 1, views[0].UnreadCount)
}

func TestProjectionFoldsPresence(t *testing.T) {
	s := NewStore()
	s.SetContacts([]chat.Contact{{ID: "a"}, {ID: "b"}})
	s.ApplySnapshot(nil)

	views := s.Projection(func(id string) bool { return id == "b" })
	for _, v := range views {
		require.Equal(t, v.PartnerID == "b", v.Online)
	}
}

func TestOnChangeFires(t *testing.T) {
	s := NewStore()
	var fired int
	s.OnChange(func() { fired++ })
	s.ApplySnapshot(nil)
	s.ApplyIncoming(msg("m1", "p1", "me", base))
	require.GreaterOrEqual(t, fired, 2)
}
