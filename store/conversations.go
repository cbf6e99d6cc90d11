package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/GetStream/chatsync/api"
)

// ConversationAPI is the part of the API the conversation store needs.
type ConversationAPI interface {
	ListConversations(ctx context.Context) ([]api.Conversation, error)
	GetConversation(ctx context.Context, id string) (api.Conversation, error)
	CreateConversation(ctx context.Context, data api.NewConversation) (api.Conversation, error)
	UpdateConversation(ctx context.Context, id string, data api.ConversationUpdate) (api.Conversation, error)
	DeleteConversation(ctx context.Context, id string) error
	LeaveGroup(ctx context.Context, groupID string) error
	SetGroupName(ctx context.Context, groupID, name string) (api.Conversation, error)
	SetGroupPhoto(ctx context.Context, groupID string, photo api.Photo) (api.Conversation, error)
	AddGroupMember(ctx context.Context, groupID, userID string) (api.Conversation, error)
}

// ConversationStore holds the conversation list, most recent first, and the
// active conversation.
type ConversationStore struct {
	API    ConversationAPI
	Logger *slog.Logger

	mu      sync.Mutex
	list    []api.Conversation
	active  *api.Conversation
	loading bool
	err     string
}

// NewConversationStore creates an empty ConversationStore.
func NewConversationStore(a ConversationAPI, logger *slog.Logger) *ConversationStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &ConversationStore{API: a, Logger: logger}
}

func (s *ConversationStore) begin() {
	s.mu.Lock()
	s.loading = true
	s.err = ""
	s.mu.Unlock()
}

func (s *ConversationStore) end() {
	s.mu.Lock()
	s.loading = false
	s.mu.Unlock()
}

func (s *ConversationStore) fail(err error, msg string, args ...any) error {
	s.mu.Lock()
	s.err = errMessage(err, msg)
	s.mu.Unlock()
	s.Logger.Error(msg, append(args, "error", err.Error())...)
	return err
}

// FetchAll replaces the list with the server's conversations.
func (s *ConversationStore) FetchAll(ctx context.Context) ([]api.Conversation, error) {
	s.begin()
	defer s.end()

	convs, err := s.API.ListConversations(ctx)
	if err != nil {
		return nil, s.fail(err, "Could not fetch conversations")
	}
	if convs == nil {
		convs = []api.Conversation{}
	}

	s.mu.Lock()
	s.list = convs
	s.mu.Unlock()
	return cloneAll(convs), nil
}

// FetchOne loads a conversation and makes it the active one.
func (s *ConversationStore) FetchOne(ctx context.Context, id string) (api.Conversation, error) {
	s.begin()
	defer s.end()

	conv, err := s.API.GetConversation(ctx, id)
	if err != nil {
		return api.Conversation{}, s.fail(err, "Could not fetch conversation", "conversation_id", id)
	}

	s.mu.Lock()
	active := conv.Clone()
	s.active = &active
	s.mu.Unlock()
	return conv, nil
}

// Create starts a conversation and puts it at the head of the list.
func (s *ConversationStore) Create(ctx context.Context, data api.NewConversation) (api.Conversation, error) {
	s.begin()
	defer s.end()

	conv, err := s.API.CreateConversation(ctx, data)
	if err != nil {
		return api.Conversation{}, s.fail(err, "Could not create conversation")
	}

	s.mu.Lock()
	s.list = append([]api.Conversation{conv.Clone()}, s.list...)
	s.mu.Unlock()
	return conv, nil
}

// replace splices conv into the list and the active conversation wherever
// its id is present.
func (s *ConversationStore) replace(conv api.Conversation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.list {
		if s.list[i].ID == conv.ID {
			s.list[i] = conv.Clone()
			break
		}
	}
	if s.active != nil && s.active.ID == conv.ID {
		active := conv.Clone()
		s.active = &active
	}
}

// remove filters id out of the list and clears the active conversation when
// it was the one removed.
func (s *ConversationStore) remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.list[:0:0]
	for _, c := range s.list {
		if c.ID != id {
			kept = append(kept, c)
		}
	}
	s.list = kept
	if s.active != nil && s.active.ID == id {
		s.active = nil
	}
}

// Update changes a conversation and replaces the stored copies with the
// server's version.
func (s *ConversationStore) Update(ctx context.Context, id string, data api.ConversationUpdate) (api.Conversation, error) {
	s.begin()
	defer s.end()

	conv, err := s.API.UpdateConversation(ctx, id, data)
	if err != nil {
		return api.Conversation{}, s.fail(err, "Could not update conversation", "conversation_id", id)
	}
	s.replace(conv)
	return conv, nil
}

// Rename sets a group's name.
func (s *ConversationStore) Rename(ctx context.Context, id, name string) (api.Conversation, error) {
	s.begin()
	defer s.end()

	conv, err := s.API.SetGroupName(ctx, id, name)
	if err != nil {
		return api.Conversation{}, s.fail(err, "Could not rename group", "conversation_id", id)
	}
	s.replace(conv)
	return conv, nil
}

// SetGroupPhoto replaces a group's photo.
func (s *ConversationStore) SetGroupPhoto(ctx context.Context, id string, photo api.Photo) (api.Conversation, error) {
	s.begin()
	defer s.end()

	conv, err := s.API.SetGroupPhoto(ctx, id, photo)
	if err != nil {
		return api.Conversation{}, s.fail(err, "Could not update group photo", "conversation_id", id)
	}
	s.replace(conv)
	return conv, nil
}

// Delete removes a conversation.
func (s *ConversationStore) Delete(ctx context.Context, id string) error {
	s.begin()
	defer s.end()

	if err := s.API.DeleteConversation(ctx, id); err != nil {
		return s.fail(err, "Could not delete conversation", "conversation_id", id)
	}
	s.remove(id)
	return nil
}

// LeaveGroup leaves a group and drops it from the list.
func (s *ConversationStore) LeaveGroup(ctx context.Context, id string) error {
	s.begin()
	defer s.end()

	if err := s.API.LeaveGroup(ctx, id); err != nil {
		return s.fail(err, "Could not leave group", "conversation_id", id)
	}
	s.remove(id)
	return nil
}

// AddMembers adds userIDs to a group one at a time, in order. A failed
// addition is logged and recorded in the result without stopping the rest.
// An addition whose follow-up read failed still counts as succeeded.
// Only errors raised before the first addition are returned.
func (s *ConversationStore) AddMembers(ctx context.Context, id string, userIDs []string) (BatchResult, error) {
	s.begin()
	defer s.end()

	if id == "" {
		return BatchResult{}, s.fail(errors.New("conversation id is required"), "Could not add members")
	}
	if err := ctx.Err(); err != nil {
		return BatchResult{}, s.fail(fmt.Errorf("add members: %w", err), "Could not add members", "conversation_id", id)
	}

	var res BatchResult
	for _, userID := range userIDs {
		conv, err := s.API.AddGroupMember(ctx, id, userID)
		var refreshErr *api.RefreshError
		if errors.As(err, &refreshErr) {
			s.Logger.Warn("Could not refresh group after adding member", "conversation_id", id, "user_id", userID, "error", err.Error())
			res.Succeeded = append(res.Succeeded, userID)
			continue
		}
		if err != nil {
			s.Logger.Error("Could not add member", "conversation_id", id, "user_id", userID, "error", err.Error())
			res.Failed = append(res.Failed, BatchFailure{ID: userID, Err: err})
			continue
		}
		s.replace(conv)
		res.Conversation = &conv
		res.Succeeded = append(res.Succeeded, userID)
	}
	return res, nil
}

// AddMessageToConversation puts msg at the head of the embedded message
// cache of conversation id, both in the list and in the active conversation.
func (s *ConversationStore) AddMessageToConversation(id string, msg api.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.list {
		if s.list[i].ID == id {
			s.list[i].Messages = append([]api.Message{msg.Clone()}, s.list[i].Messages...)
			break
		}
	}
	if s.active != nil && s.active.ID == id {
		s.active.Messages = append([]api.Message{msg.Clone()}, s.active.Messages...)
	}
}

// SetActive makes a copy of conv the active conversation. A nil conv clears
// it.
func (s *ConversationStore) SetActive(conv *api.Conversation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if conv == nil {
		s.active = nil
		return
	}
	active := conv.Clone()
	s.active = &active
}

// Active returns a copy of the active conversation, or nil.
func (s *ConversationStore) Active() *api.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil {
		return nil
	}
	active := s.active.Clone()
	return &active
}

// Conversations returns a copy of the list.
func (s *ConversationStore) Conversations() []api.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneAll(s.list)
}

func (s *ConversationStore) IsLoading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// Error returns the message of the last failed operation, or "".
func (s *ConversationStore) Error() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func cloneAll(convs []api.Conversation) []api.Conversation {
	if convs == nil {
		return nil
	}
	out := make([]api.Conversation, len(convs))
	for i, c := range convs {
		out[i] = c.Clone()
	}
	return out
}
