package api

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/GetStream/chatsync/api/validator"
)

// The DTOs below mirror the JSON the server sends. They are validated and
// mapped into the model before a store sees them.

type userDTO struct {
	ID     string `json:"id" validate:"required"`
	Name   string `json:"name"`
	Photo  string `json:"photo,omitempty"`
	Status string `json:"status,omitempty"`
}

func (u userDTO) model() User {
	return User{
		ID:     u.ID,
		Name:   u.Name,
		Photo:  u.Photo,
		Status: u.Status,
	}
}

type participantDTO struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Photo string `json:"photo,omitempty"`
}

func (p participantDTO) model() Participant {
	return Participant{ID: p.ID, Name: p.Name, Photo: p.Photo}
}

type reactionDTO struct {
	MessageID string `json:"messageId,omitempty"`
	UserID    string `json:"user"`
	Emoji     string `json:"emoji" validate:"required"`
}

func (r reactionDTO) model() Reaction {
	return Reaction{MessageID: r.MessageID, UserID: r.UserID, Emoji: r.Emoji}
}

type messageDTO struct {
	ID             string         `json:"id" validate:"required"`
	ConversationID string         `json:"conversationId"`
	Sender         participantDTO `json:"sender"`
	Timestamp      time.Time      `json:"timestamp"`
	Content        string         `json:"content"`
	Type           MessageType    `json:"type"`
	Status         MessageStatus  `json:"status"`
	ReplyTo        *string        `json:"replyTo,omitempty"`
	DeletedAt      *time.Time     `json:"deletedAt,omitempty"`
	Reactions      []reactionDTO  `json:"reactions,omitempty" validate:"dive"`
}

func (m messageDTO) model() Message {
	msg := Message{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		AuthorID:       m.Sender.ID,
		AuthorName:     m.Sender.Name,
		Content:        m.Content,
		Type:           m.Type,
		Status:         m.Status,
		CreatedAt:      m.Timestamp,
		DeletedAt:      m.DeletedAt,
	}
	if m.ReplyTo != nil {
		msg.ReplyTo = *m.ReplyTo
	}
	if m.Reactions != nil {
		msg.Reactions = make([]Reaction, len(m.Reactions))
		for i, r := range m.Reactions {
			msg.Reactions[i] = r.model()
		}
	}
	return msg
}

type conversationDTO struct {
	ID           string           `json:"id" validate:"required"`
	Name         string           `json:"name"`
	Type         ConversationType `json:"type"`
	Photo        string           `json:"photo,omitempty"`
	Participants []participantDTO `json:"participants"`
	LastMessage  *messageDTO      `json:"lastMessage,omitempty"`
	Messages     []messageDTO     `json:"messages,omitempty" validate:"dive"`
}

func (c conversationDTO) model() Conversation {
	conv := Conversation{
		ID:    c.ID,
		Name:  c.Name,
		Type:  c.Type,
		Photo: c.Photo,
	}
	if c.Participants != nil {
		conv.Participants = make([]Participant, len(c.Participants))
		for i, p := range c.Participants {
			conv.Participants[i] = p.model()
		}
	}
	if c.LastMessage != nil {
		last := c.LastMessage.model()
		conv.LastMessage = &last
	}
	if c.Messages != nil {
		conv.Messages = make([]Message, len(c.Messages))
		for i, m := range c.Messages {
			conv.Messages[i] = m.model()
		}
	}
	return conv
}

// checkResponse validates a decoded response body. A response that breaks the
// schema is the server's fault, so it is reported as a ServerError.
func checkResponse(v *validator.Validator, body any, tag string) error {
	var errs []validator.FieldError
	if tag == "" {
		errs = v.ValidateStruct(body)
	} else {
		errs = v.Validate(body, tag)
	}
	if len(errs) > 0 {
		return &ServerError{Status: 200, Message: fmt.Sprintf("invalid response: %v", errs)}
	}
	return nil
}

var defaultValidator = validator.New()

// DecodeMessage decodes a message in the server's wire format, as pushed by
// the realtime events endpoint.
func DecodeMessage(data []byte) (Message, error) {
	var dto messageDTO
	if err := json.Unmarshal(data, &dto); err != nil {
		return Message{}, fmt.Errorf("decode message: %w", err)
	}
	if err := checkResponse(defaultValidator, &dto, ""); err != nil {
		return Message{}, err
	}
	return dto.model(), nil
}
