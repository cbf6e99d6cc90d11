package store

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/GetStream/chatsync/api"
)

// MessageAPI is the part of the API the message store needs.
type MessageAPI interface {
	GetConversation(ctx context.Context, id string) (api.Conversation, error)
	SendMessage(ctx context.Context, data api.NewMessage) (api.Message, error)
	SendPhotoMessage(ctx context.Context, conversationID string, photo api.Photo, replyTo string) (api.Message, error)
	ForwardMessage(ctx context.Context, messageID, targetConversationID string) (*api.Message, error)
	UpdateMessage(ctx context.Context, id, content string) (*api.Message, error)
	DeleteMessage(ctx context.Context, id string) error
	AddReaction(ctx context.Context, id string, reaction api.Reaction) error
	RemoveReaction(ctx context.Context, id string) error
}

// Identity supplies the id of the logged in user. *SessionStore implements
// it.
type Identity interface {
	UserID() string
}

// Pagination holds the paging cursors of the message list. Nothing pages yet;
// the fields are reset together with the list.
type Pagination struct {
	CurrentPage          int
	HasMoreMessages      bool
	LastMessageTimestamp time.Time
}

var firstPage = Pagination{CurrentPage: 1, HasMoreMessages: true}

// MessageStore holds the messages of the active conversation in display
// order.
type MessageStore struct {
	API      MessageAPI
	Identity Identity
	Logger   *slog.Logger

	mu             sync.Mutex
	conversationID string
	messages       []api.Message
	page           Pagination
	loading        bool
	err            string
}

// NewMessageStore creates an empty MessageStore.
func NewMessageStore(a MessageAPI, identity Identity, logger *slog.Logger) *MessageStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &MessageStore{API: a, Identity: identity, Logger: logger, page: firstPage}
}

func (s *MessageStore) begin() {
	s.mu.Lock()
	s.loading = true
	s.err = ""
	s.mu.Unlock()
}

func (s *MessageStore) end() {
	s.mu.Lock()
	s.loading = false
	s.mu.Unlock()
}

func (s *MessageStore) fail(err error, msg string, args ...any) error {
	s.mu.Lock()
	s.err = errMessage(err, msg)
	s.mu.Unlock()
	s.Logger.Error(msg, append(args, "error", err.Error())...)
	return err
}

// find returns the index of message id, or -1. s.mu must be held.
func (s *MessageStore) find(id string) int {
	for i := range s.messages {
		if s.messages[i].ID == id {
			return i
		}
	}
	return -1
}

// FetchForConversation loads the messages of conversation id and makes it
// the store's conversation.
func (s *MessageStore) FetchForConversation(ctx context.Context, id string) ([]api.Message, error) {
	s.begin()
	defer s.end()

	conv, err := s.API.GetConversation(ctx, id)
	if err != nil {
		return nil, s.fail(err, "Could not fetch messages", "conversation_id", id)
	}
	msgs := conv.Messages
	if msgs == nil {
		msgs = []api.Message{}
	}

	s.mu.Lock()
	s.conversationID = id
	s.messages = msgs
	s.mu.Unlock()
	return cloneMessages(msgs), nil
}

// SendText posts a text message and appends it.
func (s *MessageStore) SendText(ctx context.Context, data api.NewMessage) (api.Message, error) {
	s.begin()
	defer s.end()

	msg, err := s.API.SendMessage(ctx, data)
	if err != nil {
		return api.Message{}, s.fail(err, "Could not send message", "conversation_id", data.ConversationID)
	}
	s.append(msg)
	return msg, nil
}

// SendPhoto posts a photo message and appends it. replyToID may be empty.
func (s *MessageStore) SendPhoto(ctx context.Context, conversationID string, photo api.Photo, replyToID string) (api.Message, error) {
	s.begin()
	defer s.end()

	msg, err := s.API.SendPhotoMessage(ctx, conversationID, photo, replyToID)
	if err != nil {
		return api.Message{}, s.fail(err, "Could not send photo", "conversation_id", conversationID)
	}
	s.append(msg)
	return msg, nil
}

func (s *MessageStore) append(msg api.Message) {
	s.mu.Lock()
	s.messages = append(s.messages, msg.Clone())
	s.mu.Unlock()
}

// AddLocal puts msg at the head of the list without contacting the server.
func (s *MessageStore) AddLocal(msg api.Message) {
	s.mu.Lock()
	s.messages = append([]api.Message{msg.Clone()}, s.messages...)
	s.mu.Unlock()
}

// Forward copies message id into another conversation. The copy is appended
// when the server returns it and the target is the store's conversation.
func (s *MessageStore) Forward(ctx context.Context, id, targetConversationID string) (*api.Message, error) {
	s.begin()
	defer s.end()

	msg, err := s.API.ForwardMessage(ctx, id, targetConversationID)
	if err != nil {
		return nil, s.fail(err, "Could not forward message", "message_id", id)
	}
	if msg == nil {
		return nil, nil
	}

	s.mu.Lock()
	if s.conversationID == targetConversationID {
		s.messages = append(s.messages, msg.Clone())
	}
	s.mu.Unlock()
	return msg, nil
}

// Update edits the content of message id. A message that is not in the list
// is left alone.
func (s *MessageStore) Update(ctx context.Context, id, content string) error {
	s.begin()
	defer s.end()

	if _, err := s.API.UpdateMessage(ctx, id, content); err != nil {
		return s.fail(err, "Could not update message", "message_id", id)
	}

	s.mu.Lock()
	if i := s.find(id); i >= 0 {
		s.messages[i].Content = content
	}
	s.mu.Unlock()
	return nil
}

// Delete removes message id once the server has deleted it.
func (s *MessageStore) Delete(ctx context.Context, id string) error {
	s.begin()
	defer s.end()

	if err := s.API.DeleteMessage(ctx, id); err != nil {
		return s.fail(err, "Could not delete message", "message_id", id)
	}

	s.mu.Lock()
	kept := s.messages[:0:0]
	for _, m := range s.messages {
		if m.ID != id {
			kept = append(kept, m)
		}
	}
	s.messages = kept
	s.mu.Unlock()
	return nil
}

// AddReaction reacts to message id and appends reaction to its local copy.
// An empty UserID is filled in with the logged in user.
func (s *MessageStore) AddReaction(ctx context.Context, id string, reaction api.Reaction) error {
	if reaction.UserID == "" && s.Identity != nil {
		reaction.UserID = s.Identity.UserID()
	}
	if reaction.MessageID == "" {
		reaction.MessageID = id
	}

	if err := s.API.AddReaction(ctx, id, reaction); err != nil {
		s.Logger.Error("Could not add reaction", "message_id", id, "emoji", reaction.Emoji, "error", err.Error())
		return err
	}

	s.mu.Lock()
	if i := s.find(id); i >= 0 {
		s.messages[i].Reactions = append(s.messages[i].Reactions, reaction)
	}
	s.mu.Unlock()
	return nil
}

// RemoveReaction withdraws the logged in user's emoji from message id. Only
// the first matching reaction is removed locally. Missing messages and
// messages without reactions are left alone.
func (s *MessageStore) RemoveReaction(ctx context.Context, id, emoji string) error {
	var userID string
	if s.Identity != nil {
		userID = s.Identity.UserID()
	}

	if err := s.API.RemoveReaction(ctx, id); err != nil {
		s.Logger.Error("Could not remove reaction", "message_id", id, "emoji", emoji, "error", err.Error())
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.find(id)
	if i < 0 {
		return nil
	}
	reactions := s.messages[i].Reactions
	for j, r := range reactions {
		if r.Emoji == emoji && r.UserID == userID {
			s.messages[i].Reactions = append(reactions[:j:j], reactions[j+1:]...)
			break
		}
	}
	return nil
}

// ResetPagination rewinds the paging cursors.
func (s *MessageStore) ResetPagination() {
	s.mu.Lock()
	s.page = firstPage
	s.mu.Unlock()
}

// Clear empties the list and rewinds the paging cursors.
func (s *MessageStore) Clear() {
	s.mu.Lock()
	s.messages = nil
	s.conversationID = ""
	s.page = firstPage
	s.mu.Unlock()
}

// Messages returns a copy of the list.
func (s *MessageStore) Messages() []api.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneMessages(s.messages)
}

// ConversationID returns the conversation the list belongs to.
func (s *MessageStore) ConversationID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conversationID
}

func (s *MessageStore) Pagination() Pagination {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.page
}

func (s *MessageStore) IsLoading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// Error returns the message of the last failed operation, or "".
func (s *MessageStore) Error() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func cloneMessages(msgs []api.Message) []api.Message {
	if msgs == nil {
		return nil
	}
	out := make([]api.Message, len(msgs))
	for i, m := range msgs {
		out[i] = m.Clone()
	}
	return out
}
