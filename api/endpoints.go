package api

import (
	"context"
	"net/http"
	"net/url"
)

// LoginResponse is the answer to POST /session. The returned id doubles as
// the bearer token.
type LoginResponse struct {
	ID string `json:"id" validate:"required"`
}

// NewConversation is the body of POST /conversations. Participants excludes
// the creator.
type NewConversation struct {
	Participants []string         `json:"participants" validate:"required,min=1,dive,required"`
	Type         ConversationType `json:"type" validate:"required,oneof=direct group"`
	Name         string           `json:"name,omitempty" validate:"required_if=Type group"`
}

// ConversationUpdate is the body of PUT /conversations/:id.
type ConversationUpdate struct {
	Name         string   `json:"name,omitempty"`
	Participants []string `json:"participants,omitempty" validate:"omitempty,dive,required"`
}

// NewMessage is the body of a text POST /messages.
type NewMessage struct {
	ConversationID string `json:"conversationId" validate:"required"`
	Content        string `json:"content" validate:"required"`
	ReplyTo        string `json:"replyTo,omitempty"`
}

func escape(id string) string {
	return url.PathEscape(id)
}

func (c *Client) checkRequest(msg string, body any) error {
	c.once.Do(c.setup)
	if errs := c.Val.ValidateStruct(body); len(errs) > 0 {
		return invalid(msg, errs)
	}
	return nil
}

func (c *Client) checkID(name, id string) error {
	c.once.Do(c.setup)
	if errs := c.Val.Validate(id, "required"); len(errs) > 0 {
		return invalid(name+" is required", nil)
	}
	return nil
}

// Login creates a session for name, registering the user if needed.
func (c *Client) Login(ctx context.Context, name string) (LoginResponse, error) {
	body := struct {
		Name string `json:"name" validate:"required,min=3,max=16"`
	}{Name: name}
	if err := c.checkRequest("invalid username", &body); err != nil {
		return LoginResponse{}, err
	}

	var res LoginResponse
	if err := c.Do(ctx, http.MethodPost, "/session", &body, &res); err != nil {
		return LoginResponse{}, err
	}
	if err := checkResponse(c.Val, &res, ""); err != nil {
		return LoginResponse{}, err
	}
	return res, nil
}

// ListUsers returns every known user. A null payload yields a nil slice.
func (c *Client) ListUsers(ctx context.Context) ([]User, error) {
	var dtos []userDTO
	if err := c.Do(ctx, http.MethodGet, "/users", nil, &dtos); err != nil {
		return nil, err
	}
	if dtos == nil {
		return nil, nil
	}
	if err := checkResponse(c.Val, dtos, "dive"); err != nil {
		return nil, err
	}
	users := make([]User, len(dtos))
	for i, d := range dtos {
		users[i] = d.model()
	}
	return users, nil
}

// GetMe returns the authenticated user's profile.
func (c *Client) GetMe(ctx context.Context) (User, error) {
	var dto userDTO
	if err := c.Do(ctx, http.MethodGet, "/users/me", nil, &dto); err != nil {
		return User{}, err
	}
	if err := checkResponse(c.Val, &dto, ""); err != nil {
		return User{}, err
	}
	return dto.model(), nil
}

// UpdateUsername renames the authenticated user and returns the name the
// server settled on. Servers that answer 204 are taken to have accepted name
// as is.
func (c *Client) UpdateUsername(ctx context.Context, name string) (string, error) {
	body := struct {
		Name string `json:"name" validate:"required,min=3,max=16"`
	}{Name: name}
	if err := c.checkRequest("invalid username", &body); err != nil {
		return "", err
	}

	var res struct {
		Name string `json:"name"`
	}
	if err := c.Do(ctx, http.MethodPut, "/users/me/username", &body, &res); err != nil {
		return "", err
	}
	if res.Name == "" {
		return name, nil
	}
	return res.Name, nil
}

// UploadUserPhoto replaces the authenticated user's photo and returns its URL
// path.
func (c *Client) UploadUserPhoto(ctx context.Context, photo Photo) (string, error) {
	var res struct {
		Photo string `json:"photo"`
	}
	if err := c.upload(ctx, http.MethodPut, "/users/me/photo", photo, &res); err != nil {
		return "", err
	}
	return res.Photo, nil
}

// ListConversations returns the conversations of the authenticated user. A
// null payload yields a nil slice.
func (c *Client) ListConversations(ctx context.Context) ([]Conversation, error) {
	var dtos []conversationDTO
	if err := c.Do(ctx, http.MethodGet, "/conversations", nil, &dtos); err != nil {
		return nil, err
	}
	if dtos == nil {
		return nil, nil
	}
	if err := checkResponse(c.Val, dtos, "dive"); err != nil {
		return nil, err
	}
	convs := make([]Conversation, len(dtos))
	for i, d := range dtos {
		convs[i] = d.model()
	}
	return convs, nil
}

// GetConversation returns a conversation including its messages.
func (c *Client) GetConversation(ctx context.Context, id string) (Conversation, error) {
	if err := c.checkID("conversation id", id); err != nil {
		return Conversation{}, err
	}
	var dto conversationDTO
	if err := c.Do(ctx, http.MethodGet, "/conversations/"+escape(id), nil, &dto); err != nil {
		return Conversation{}, err
	}
	if err := checkResponse(c.Val, &dto, ""); err != nil {
		return Conversation{}, err
	}
	return dto.model(), nil
}

// CreateConversation starts a direct or group conversation.
func (c *Client) CreateConversation(ctx context.Context, data NewConversation) (Conversation, error) {
	if err := c.checkRequest("invalid conversation", &data); err != nil {
		return Conversation{}, err
	}
	var dto conversationDTO
	if err := c.Do(ctx, http.MethodPost, "/conversations", &data, &dto); err != nil {
		return Conversation{}, err
	}
	if err := checkResponse(c.Val, &dto, ""); err != nil {
		return Conversation{}, err
	}
	return dto.model(), nil
}

// conversation turns the answer of a mutating endpoint into the canonical
// conversation. Endpoints that answer without one (204, or a bare photo URL)
// are followed by a read of the conversation; a failed read is returned as a
// *RefreshError since the change itself was applied.
func (c *Client) conversation(ctx context.Context, id string, dto conversationDTO) (Conversation, error) {
	if dto.ID == "" {
		conv, err := c.GetConversation(ctx, id)
		if err != nil {
			return Conversation{}, &RefreshError{ID: id, Err: err}
		}
		return conv, nil
	}
	if err := checkResponse(c.Val, &dto, ""); err != nil {
		return Conversation{}, err
	}
	return dto.model(), nil
}

// UpdateConversation changes a conversation and returns its new state.
func (c *Client) UpdateConversation(ctx context.Context, id string, data ConversationUpdate) (Conversation, error) {
	if err := c.checkID("conversation id", id); err != nil {
		return Conversation{}, err
	}
	if err := c.checkRequest("invalid conversation update", &data); err != nil {
		return Conversation{}, err
	}
	var dto conversationDTO
	if err := c.Do(ctx, http.MethodPut, "/conversations/"+escape(id), &data, &dto); err != nil {
		return Conversation{}, err
	}
	return c.conversation(ctx, id, dto)
}

// DeleteConversation removes a conversation.
func (c *Client) DeleteConversation(ctx context.Context, id string) error {
	if err := c.checkID("conversation id", id); err != nil {
		return err
	}
	return c.Do(ctx, http.MethodDelete, "/conversations/"+escape(id), nil, nil)
}

// AddGroupMember adds one user to a group and returns the group's new state.
func (c *Client) AddGroupMember(ctx context.Context, groupID, userID string) (Conversation, error) {
	if err := c.checkID("group id", groupID); err != nil {
		return Conversation{}, err
	}
	if err := c.checkID("user id", userID); err != nil {
		return Conversation{}, err
	}
	body := struct {
		UserID string `json:"userId"`
	}{UserID: userID}
	var dto conversationDTO
	if err := c.Do(ctx, http.MethodPost, "/groups/"+escape(groupID)+"/members", &body, &dto); err != nil {
		return Conversation{}, err
	}
	return c.conversation(ctx, groupID, dto)
}

// LeaveGroup removes the authenticated user from a group.
func (c *Client) LeaveGroup(ctx context.Context, groupID string) error {
	if err := c.checkID("group id", groupID); err != nil {
		return err
	}
	return c.Do(ctx, http.MethodPost, "/groups/"+escape(groupID)+"/leave", nil, nil)
}

// SetGroupName renames a group and returns the group's new state.
func (c *Client) SetGroupName(ctx context.Context, groupID, name string) (Conversation, error) {
	if err := c.checkID("group id", groupID); err != nil {
		return Conversation{}, err
	}
	if err := c.checkID("name", name); err != nil {
		return Conversation{}, err
	}
	body := struct {
		Name string `json:"name"`
	}{Name: name}
	var dto conversationDTO
	if err := c.Do(ctx, http.MethodPut, "/groups/"+escape(groupID)+"/name", &body, &dto); err != nil {
		return Conversation{}, err
	}
	return c.conversation(ctx, groupID, dto)
}

// SetGroupPhoto replaces a group's photo and returns the group's new state.
func (c *Client) SetGroupPhoto(ctx context.Context, groupID string, photo Photo) (Conversation, error) {
	if err := c.checkID("group id", groupID); err != nil {
		return Conversation{}, err
	}
	var dto conversationDTO
	if err := c.upload(ctx, http.MethodPut, "/groups/"+escape(groupID)+"/photo", photo, &dto); err != nil {
		return Conversation{}, err
	}
	return c.conversation(ctx, groupID, dto)
}

func (c *Client) message(dto messageDTO) (Message, error) {
	if err := checkResponse(c.Val, &dto, ""); err != nil {
		return Message{}, err
	}
	return dto.model(), nil
}

// SendMessage posts a text message.
func (c *Client) SendMessage(ctx context.Context, data NewMessage) (Message, error) {
	if err := c.checkRequest("invalid message", &data); err != nil {
		return Message{}, err
	}
	var dto messageDTO
	if err := c.Do(ctx, http.MethodPost, "/messages", &data, &dto); err != nil {
		return Message{}, err
	}
	return c.message(dto)
}

// SendPhotoMessage posts a photo message. replyTo may be empty.
func (c *Client) SendPhotoMessage(ctx context.Context, conversationID string, photo Photo, replyTo string) (Message, error) {
	if err := c.checkID("conversation id", conversationID); err != nil {
		return Message{}, err
	}
	fields := []formField{{name: "conversationId", value: conversationID}}
	if replyTo != "" {
		fields = append(fields, formField{name: "replyTo", value: replyTo})
	}
	var dto messageDTO
	if err := c.upload(ctx, http.MethodPost, "/messages", photo, &dto, fields...); err != nil {
		return Message{}, err
	}
	return c.message(dto)
}

// ForwardMessage copies a message into another conversation. The copy is
// returned when the server sends it back, otherwise the result is nil.
func (c *Client) ForwardMessage(ctx context.Context, messageID, targetConversationID string) (*Message, error) {
	if err := c.checkID("message id", messageID); err != nil {
		return nil, err
	}
	if err := c.checkID("target conversation id", targetConversationID); err != nil {
		return nil, err
	}
	body := struct {
		MessageID            string `json:"messageId"`
		TargetConversationID string `json:"targetConversationId"`
	}{MessageID: messageID, TargetConversationID: targetConversationID}
	var dto messageDTO
	if err := c.Do(ctx, http.MethodPost, "/messages/forward", &body, &dto); err != nil {
		return nil, err
	}
	if dto.ID == "" {
		return nil, nil
	}
	msg, err := c.message(dto)
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// UpdateMessage edits the content of a message. The edited message is
// returned when the server sends it back, otherwise the result is nil.
func (c *Client) UpdateMessage(ctx context.Context, id, content string) (*Message, error) {
	if err := c.checkID("message id", id); err != nil {
		return nil, err
	}
	if err := c.checkID("content", content); err != nil {
		return nil, err
	}
	body := struct {
		Content string `json:"content"`
	}{Content: content}
	var dto messageDTO
	if err := c.Do(ctx, http.MethodPut, "/messages/"+escape(id), &body, &dto); err != nil {
		return nil, err
	}
	if dto.ID == "" {
		return nil, nil
	}
	msg, err := c.message(dto)
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// DeleteMessage deletes a message.
func (c *Client) DeleteMessage(ctx context.Context, id string) error {
	if err := c.checkID("message id", id); err != nil {
		return err
	}
	return c.Do(ctx, http.MethodDelete, "/messages/"+escape(id), nil, nil)
}

// AddReaction attaches an emoji to a message on behalf of the authenticated
// user.
func (c *Client) AddReaction(ctx context.Context, id string, reaction Reaction) error {
	if err := c.checkID("message id", id); err != nil {
		return err
	}
	body := reactionDTO{MessageID: id, UserID: reaction.UserID, Emoji: reaction.Emoji}
	if err := c.checkRequest("invalid reaction", &body); err != nil {
		return err
	}
	return c.Do(ctx, http.MethodPost, "/messages/"+escape(id)+"/reaction", &body, nil)
}

// RemoveReaction removes the authenticated user's reaction from a message.
func (c *Client) RemoveReaction(ctx context.Context, id string) error {
	if err := c.checkID("message id", id); err != nil {
		return err
	}
	return c.Do(ctx, http.MethodDelete, "/messages/"+escape(id)+"/reaction", nil, nil)
}
