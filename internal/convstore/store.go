package convstore

import (
	"sort"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/shannonnonshan/streamland-messaging/internal/chat"
)

// Store is the reconciliation core: it merges the one-time REST snapshot,
// the live message/echo stream and the pane's local read path into one
// ordered, de-duplicated view keyed by conversation partner. It is the
// single source of truth for contact-list ordering and unread badges;
// everything outside this subsystem sees only the Projection.
type Store struct {
	logger zerolog.Logger

	mu             sync.RWMutex
	contacts       []chat.Contact
	contactIdx     map[string]int
	entries        map[string]*entry
	openPartner    string
	snapshotLoaded bool
	buffered       []bufferedEvent
	activitySeq    uint64
	onChange       func()
}

type entry struct {
	summary  chat.ConversationSummary
	seen     map[string]bool
	activity uint64
}

type bufferedEvent struct {
	msg  chat.Message
	echo bool
}

func NewStore() *Store {
	return &Store{
		contactIdx: map[string]int{},
		entries:    map[string]*entry{},
		logger:     log.With().Str("component", "convstore").Logger(),
	}
}

func (s *Store) OnChange(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = fn
}

// SetContacts installs the baseline contact list. Baseline order is the tie
// break for partners with no message activity yet.
func (s *Store) SetContacts(contacts []chat.Contact) {
	s.mu.Lock()
	s.contacts = append([]chat.Contact(nil), contacts...)
	s.contactIdx = make(map[string]int, len(contacts))
	for i, c := range contacts {
		s.contactIdx[c.ID] = i
	}
	s.mu.Unlock()
	s.notify()
}

// ApplySnapshot seeds the store from the REST snapshot, then replays any
// live events that arrived first, in their arrival order. The replay is
// what keeps a slow snapshot from overwriting a newer live event: the seed
// always lands before the events are applied, and lastMessage only ever
// advances. Subsequent calls are no-ops.
func (s *Store) ApplySnapshot(summaries []chat.ConversationSummary) {
	s.mu.Lock()
	if s.snapshotLoaded {
		s.mu.Unlock()
		return
	}
	for _, sum := range summaries {
		e := s.ensureEntry(sum.PartnerID)
		e.summary.LastMessage = sum.LastMessage
		e.summary.UnreadCount = sum.UnreadCount
		e.seen[sum.LastMessage.ID] = true
		s.touch(e)
	}
	s.snapshotLoaded = true
	replay := s.buffered
	s.buffered = nil
	for _, ev := range replay {
		s.apply(ev.msg, ev.echo)
	}
	s.mu.Unlock()
	s.notify()
}

// ApplyIncoming handles a "message received" push event (senderId = the
// partner). Events arriving before the snapshot landed are buffered.
func (s *Store) ApplyIncoming(msg *chat.Message) {
	s.applyOrBuffer(msg, false)
}

// ApplyEcho handles the server's confirmation of a message the local user
// sent (receiverId = the partner). Unread is unaffected.
func (s *Store) ApplyEcho(msg *chat.Message) {
	s.applyOrBuffer(msg, true)
}

func (s *Store) applyOrBuffer(msg *chat.Message, echo bool) {
	s.mu.Lock()
	if !s.snapshotLoaded {
		s.buffered = append(s.buffered, bufferedEvent{msg: *msg, echo: echo})
		s.mu.Unlock()
		return
	}
	changed := s.apply(*msg, echo)
	s.mu.Unlock()
	if changed {
		s.notify()
	}
}

// apply mutates under s.mu. Message id is the de-duplication key; replayed
// duplicates after a reconnect are ignored here.
func (s *Store) apply(msg chat.Message, echo bool) bool {
	partner := msg.SenderID
	if echo {
		partner = msg.ReceiverID
	}
	e := s.ensureEntry(partner)
	if e.seen[msg.ID] {
		s.logger.Debug().Str("message_id", msg.ID).Msg("duplicate event ignored")
		return false
	}
	e.seen[msg.ID] = true
	if msg.CreatedAt.After(e.summary.LastMessage.CreatedAt) || e.summary.LastMessage.ID == "" {
		e.summary.LastMessage = msg
	}
	if !echo && s.openPartner != partner {
		e.summary.UnreadCount++
	}
	s.touch(e)
	return true
}

// SetOpen marks one conversation as the open one and zeroes its unread
// count immediately, without waiting for server read-receipt settlement.
// Pass "" on navigating away.
func (s *Store) SetOpen(partnerID string) {
	s.mu.Lock()
	s.openPartner = partnerID
	if partnerID != "" {
		if e, ok := s.entries[partnerID]; ok {
			e.summary.UnreadCount = 0
		}
	}
	s.mu.Unlock()
	s.notify()
}

func (s *Store) OpenPartner() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.openPartner
}

func (s *Store) Unread(partnerID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if e, ok := s.entries[partnerID]; ok {
		return e.summary.UnreadCount
	}
	return 0
}

func (s *Store) Summary(partnerID string) (chat.ConversationSummary, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if e, ok := s.entries[partnerID]; ok {
		return e.summary, true
	}
	return chat.ConversationSummary{}, false
}

// Projection returns the ordered conversation list: most recent activity
// first, partners without any messages after that in contact-list order.
// onlineFn folds presence in; pass nil when presence is not wired.
func (s *Store) Projection(onlineFn func(string) bool) []chat.ConversationView {
	s.mu.RLock()
	defer s.mu.RUnlock()

	views := make([]chat.ConversationView, 0, len(s.contacts)+len(s.entries))
	covered := map[string]bool{}
	for _, c := range s.contacts {
		covered[c.ID] = true
		views = append(views, s.viewFor(c.ID, c, onlineFn))
	}

	// partners with messages but no contact entry yet (new conversation
	// before the friends collaborator refreshes) still show up
	for id := range s.entries {
		if covered[id] {
			continue
		}
		views = append(views, s.viewFor(id, chat.Contact{ID: id, DisplayName: id}, onlineFn))
	}

	sort.SliceStable(views, func(i, j int) bool {
		ai, aj := s.activityOf(views[i].PartnerID), s.activityOf(views[j].PartnerID)
		if ai != aj {
			return ai > aj
		}
		return s.baselineOf(views[i].PartnerID) < s.baselineOf(views[j].PartnerID)
	})
	return views
}

func (s *Store) viewFor(id string, c chat.Contact, onlineFn func(string) bool) chat.ConversationView {
	v := chat.ConversationView{
		PartnerID:   id,
		DisplayName: c.DisplayName,
		AvatarRef:   c.AvatarRef,
		Role:        c.Role,
	}
	if onlineFn != nil {
		v.Online = onlineFn(id)
	}
	if e, ok := s.entries[id]; ok {
		last := e.summary.LastMessage
		v.LastMessage = &last
		v.UnreadCount = e.summary.UnreadCount
	}
	return v
}

func (s *Store) activityOf(id string) uint64 {
	if e, ok := s.entries[id]; ok {
		return e.activity
	}
	return 0
}

func (s *Store) baselineOf(id string) int {
	if i, ok := s.contactIdx[id]; ok {
		return i
	}
	return len(s.contacts)
}

func (s *Store) ensureEntry(partnerID string) *entry {
	e, ok := s.entries[partnerID]
	if !ok {
		e = &entry{
			summary: chat.ConversationSummary{PartnerID: partnerID},
			seen:    map[string]bool{},
		}
		s.entries[partnerID] = e
	}
	return e
}

func (s *Store) touch(e *entry) {
	s.activitySeq++
	e.activity = s.activitySeq
}

func (s *Store) notify() {
	s.mu.RLock()
	fn := s.onChange
	s.mu.RUnlock()
	if fn != nil {
		fn()
	}
}
