package chat

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrNoTransport: Send was called before a realtime sender was
// registered, so the message has nowhere to go.
var ErrNoTransport = errors.New("no realtime sender registered")

// Message is one direct message. History payloads carry the time as
// either "timestamp" or "createdAt"; both decode into Timestamp.
type Message struct {
	ID         int       `json:"id,omitempty"`
	SenderID   int       `json:"senderId"`
	ReceiverID int       `json:"receiverId"`
	Content    string    `json:"content"`
	Timestamp  time.Time `json:"timestamp"`
}

func (m *Message) UnmarshalJSON(data []byte) error {
	type alias Message
	aux := struct {
		*alias
		CreatedAt *time.Time `json:"createdAt"`
	}{alias: (*alias)(m)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if m.Timestamp.IsZero() && aux.CreatedAt != nil {
		m.Timestamp = *aux.CreatedAt
	}
	return nil
}

// sameMessage is the de-duplication key: the same message may arrive
// once from a history fetch and again from the realtime push.
func sameMessage(a, b Message) bool {
	return a.SenderID == b.SenderID &&
		a.ReceiverID == b.ReceiverID &&
		a.Content == b.Content &&
		a.Timestamp.Equal(b.Timestamp)
}

// ConversationSummary is one sidebar row.
type ConversationSummary struct {
	OtherUserID     int       `json:"otherUserId"`
	OtherUserName   string    `json:"otherUserName"`
	OtherUserAvatar string    `json:"otherUserAvatar,omitempty"`
	LastMessage     string    `json:"lastMessage"`
	LastMessageTime time.Time `json:"lastMessageTime"`
	UnreadCount     int       `json:"unreadCount"`
	Online          bool      `json:"online"`
	Role            string    `json:"role,omitempty"`
}

// SendFunc pushes a message over the realtime channel.
type SendFunc func(Message) error

// Store owns the per-conversation message lists. Conversations are
// keyed by the counterpart's user id; pages read through selectors
// and never touch the lists directly.
type Store struct {
	mu     sync.RWMutex
	selfID int
	lists  map[int][]Message
	convs  []ConversationSummary
	send   SendFunc
	log    *zap.SugaredLogger
}

func NewStore(log *zap.SugaredLogger) *Store {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Store{
		lists: make(map[int][]Message),
		log:   log,
	}
}

// SetSelf records the locally authenticated user id, which every
// conversation key is derived against.
func (s *Store) SetSelf(id int) {
	s.mu.Lock()
	s.selfID = id
	s.mu.Unlock()
}

func (s *Store) Self() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selfID
}

// Clear empties every message list. Called when switching the active
// conversation so stale history is never shown.
func (s *Store) Clear() {
	s.mu.Lock()
	s.lists = make(map[int][]Message)
	s.mu.Unlock()
}

// AddMessage files msg under the counterpart's conversation unless an
// identical message is already there. Without a known local identity
// the message cannot be keyed and is dropped with a log line.
func (s *Store) AddMessage(msg Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.selfID == 0 {
		s.log.Warnw("dropping message, local user unknown",
			"sender", msg.SenderID, "receiver", msg.ReceiverID)
		return
	}

	key := msg.SenderID
	if msg.SenderID == s.selfID {
		key = msg.ReceiverID
	}

	for _, existing := range s.lists[key] {
		if sameMessage(existing, msg) {
			return
		}
	}
	s.lists[key] = append(s.lists[key], msg)
}

// Messages returns a copy of the conversation with otherID, in
// insertion order.
func (s *Store) Messages(otherID int) []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := s.lists[otherID]
	out := make([]Message, len(list))
	copy(out, list)
	return out
}

// RegisterSender wires the realtime channel's outbound send into the
// store. Called once after the channel is established.
func (s *Store) RegisterSender(fn SendFunc) {
	s.mu.Lock()
	s.send = fn
	s.mu.Unlock()
}

// Send delegates to the registered sender. The message list is not
// touched: the sent message re-arrives through the inbound channel
// and is appended like any other. A failure means the message was
// dropped and should be surfaced to the user.
func (s *Store) Send(msg Message) error {
	s.mu.RLock()
	send := s.send
	s.mu.RUnlock()

	if send == nil {
		return ErrNoTransport
	}
	return send(msg)
}

func (s *Store) SetConversations(convs []ConversationSummary) {
	s.mu.Lock()
	s.convs = append([]ConversationSummary(nil), convs...)
	s.mu.Unlock()
}

func (s *Store) Conversations() []ConversationSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]ConversationSummary(nil), s.convs...)
}

// HandleFrame adapts an inbound realtime payload into AddMessage.
// Intended as the channel handler.
func (s *Store) HandleFrame(payload json.RawMessage) {
	var msg Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		s.log.Debugw("ignoring undecodable realtime frame", "err", err)
		return
	}
	if msg.Content == "" && msg.SenderID == 0 {
		return
	}
	s.AddMessage(msg)
}
