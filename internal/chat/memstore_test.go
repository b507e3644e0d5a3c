package chat

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"go-dalil/internal/apperror"
	"go-dalil/internal/realtime"
)

var errStoreDown = errors.New("store unavailable")

// memStore is an in-memory Store that publishes like PostgresStore does.
type memStore struct {
	feed realtime.Publisher

	mu            sync.Mutex
	profiles      map[string]Participant
	conversations map[string]*Conversation
	messages      map[string][]Message
	clock         time.Time

	failTouch   bool
	failList    bool
	failLatest  bool
	listCalls   int
	createCalls int
}

func newMemStore(feed realtime.Publisher, names ...string) *memStore {
	s := &memStore{
		feed:          feed,
		profiles:      make(map[string]Participant),
		conversations: make(map[string]*Conversation),
		messages:      make(map[string][]Message),
		clock:         time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC),
	}
	for _, name := range names {
		s.addProfile(name, name)
	}
	return s
}

func (s *memStore) addProfile(id, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[id] = Participant{ID: id, FullName: name}
}

// tick returns a strictly increasing commit time.
func (s *memStore) tick() time.Time {
	s.clock = s.clock.Add(time.Millisecond)
	return s.clock
}

func (s *memStore) participant(id string) *Participant {
	p, ok := s.profiles[id]
	if !ok {
		p = Participant{ID: id}
	}
	return &p
}

func (s *memStore) row(c *Conversation) ConversationRow {
	return ConversationRow{
		ID:             c.ID,
		ParticipantOne: c.ParticipantOne,
		ParticipantTwo: c.ParticipantTwo,
		LastMessageAt:  c.LastMessageAt,
		CreatedAt:      c.CreatedAt,
		ProfileOne:     s.participant(c.ParticipantOne),
		ProfileTwo:     s.participant(c.ParticipantTwo),
	}
}

func (s *memStore) publish(c realtime.Change) {
	if s.feed != nil {
		s.feed.Publish(context.Background(), c)
	}
}

func (s *memStore) ListConversations(_ context.Context, identity string) ([]ConversationRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listCalls++
	if s.failList {
		return nil, errStoreDown
	}

	out := []ConversationRow{}
	for _, c := range s.conversations {
		if c.ParticipantOne == identity || c.ParticipantTwo == identity {
			out = append(out, s.row(c))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].LastMessageAt.Equal(out[j].LastMessageAt) {
			return out[i].LastMessageAt.After(out[j].LastMessageAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *memStore) GetConversation(_ context.Context, id string) (*ConversationRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conversations[id]
	if !ok {
		return nil, apperror.ErrNotFound.WithMessage("conversation not found")
	}
	r := s.row(c)
	return &r, nil
}

func (s *memStore) LatestMessage(_ context.Context, conversationID string) (*LastMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failLatest {
		return nil, errStoreDown
	}
	msgs := s.messages[conversationID]
	if len(msgs) == 0 {
		return nil, nil
	}
	last := msgs[len(msgs)-1]
	return &LastMessage{Content: last.Content, IsRead: last.IsRead}, nil
}

func (s *memStore) FindConversationBetween(_ context.Context, a, b string) (*Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.findLocked(a, b), nil
}

func (s *memStore) findLocked(a, b string) *Conversation {
	for _, c := range s.conversations {
		if (c.ParticipantOne == a && c.ParticipantTwo == b) || (c.ParticipantOne == b && c.ParticipantTwo == a) {
			cp := *c
			return &cp
		}
	}
	return nil
}

func (s *memStore) CreateConversation(_ context.Context, one, two string, at time.Time) (*Conversation, error) {
	s.mu.Lock()
	s.createCalls++
	if existing := s.findLocked(one, two); existing != nil {
		s.mu.Unlock()
		return existing, nil
	}
	c := &Conversation{
		ID:             uuid.NewString(),
		ParticipantOne: one,
		ParticipantTwo: two,
		LastMessageAt:  at,
		CreatedAt:      at,
	}
	s.conversations[c.ID] = c
	cp := *c
	s.mu.Unlock()

	s.publish(realtime.Change{Table: TableConversations, Type: realtime.EventInsert, Record: conversationRecord(&cp), CommitAt: at})
	return &cp, nil
}

func (s *memStore) ListMessages(_ context.Context, conversationID string) ([]Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.messages[conversationID]))
	copy(out, s.messages[conversationID])
	return out, nil
}

func (s *memStore) InsertMessage(_ context.Context, in NewMessage) (*Message, error) {
	s.mu.Lock()
	if _, ok := s.conversations[in.ConversationID]; !ok {
		s.mu.Unlock()
		return nil, apperror.ErrNotFound.WithMessage("conversation not found")
	}
	sender := s.participant(in.SenderID)
	msg := Message{
		ID:             uuid.NewString(),
		ConversationID: in.ConversationID,
		SenderID:       in.SenderID,
		Content:        in.Content,
		CreatedAt:      s.tick(),
		Sender:         &Sender{FullName: sender.FullName, AvatarURL: sender.AvatarURL},
	}
	s.messages[in.ConversationID] = append(s.messages[in.ConversationID], msg)
	s.mu.Unlock()

	s.publish(realtime.Change{
		Table:    TableMessages,
		Type:     realtime.EventInsert,
		Record:   map[string]any{"id": msg.ID, "conversation_id": msg.ConversationID, "sender_id": msg.SenderID},
		CommitAt: msg.CreatedAt,
	})
	return &msg, nil
}

func (s *memStore) TouchConversation(_ context.Context, conversationID string, at time.Time) (*Conversation, error) {
	s.mu.Lock()
	if s.failTouch {
		s.mu.Unlock()
		return nil, errStoreDown
	}
	c, ok := s.conversations[conversationID]
	if !ok {
		s.mu.Unlock()
		return nil, apperror.ErrNotFound.WithMessage("conversation not found")
	}
	if at.After(c.LastMessageAt) {
		c.LastMessageAt = at
	}
	cp := *c
	s.mu.Unlock()

	s.publish(realtime.Change{Table: TableConversations, Type: realtime.EventUpdate, Record: conversationRecord(&cp), CommitAt: at})
	return &cp, nil
}

// insertDirect writes a message bypassing the repositories, as another
// client or process would.
func (s *memStore) insertDirect(conversationID, senderID, content string) *Message {
	msg, err := s.InsertMessage(context.Background(), NewMessage{ConversationID: conversationID, SenderID: senderID, Content: content})
	if err != nil {
		panic(err)
	}
	return msg
}
