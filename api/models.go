package api

import (
	"io"
	"strings"
	"time"
)

// A User represents an account on the messaging service.
type User struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Photo  string `json:"photo,omitempty"`
	Status string `json:"status,omitempty"`
}

// A Participant is a user as listed inside a conversation.
type Participant struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Photo string `json:"photo,omitempty"`
}

// ConversationType tells direct chats apart from groups.
type ConversationType string

const (
	DirectConversation ConversationType = "direct"
	GroupConversation  ConversationType = "group"
)

// A Conversation represents a chat between two or more users. Messages is an
// optional embedded cache; nil means the server did not send any.
type Conversation struct {
	ID           string           `json:"id"`
	Name         string           `json:"name,omitempty"`
	Type         ConversationType `json:"type"`
	Photo        string           `json:"photo,omitempty"`
	Participants []Participant    `json:"participants"`
	LastMessage  *Message         `json:"lastMessage,omitempty"`
	Messages     []Message        `json:"messages,omitempty"`
}

// IsGroup reports whether c is a group conversation.
func (c Conversation) IsGroup() bool {
	return c.Type == GroupConversation
}

// Clone returns a copy of c that shares no slices or pointers with it.
func (c Conversation) Clone() Conversation {
	out := c
	if c.Participants != nil {
		out.Participants = append([]Participant(nil), c.Participants...)
	}
	if c.LastMessage != nil {
		last := c.LastMessage.Clone()
		out.LastMessage = &last
	}
	if c.Messages != nil {
		out.Messages = make([]Message, len(c.Messages))
		for i, m := range c.Messages {
			out.Messages[i] = m.Clone()
		}
	}
	return out
}

// MessageType is the kind of content a message carries.
type MessageType string

const (
	TextMessage  MessageType = "text"
	PhotoMessage MessageType = "photo"
)

// MessageStatus is the delivery state of a message.
type MessageStatus string

const (
	Sent     MessageStatus = "sent"
	Received MessageStatus = "received"
	Read     MessageStatus = "read"
)

// A Message represents a message in a conversation. For photo messages
// Content holds the media reference.
type Message struct {
	ID             string        `json:"id"`
	ConversationID string        `json:"conversationId"`
	AuthorID       string        `json:"authorId"`
	AuthorName     string        `json:"authorName,omitempty"`
	Content        string        `json:"content"`
	Type           MessageType   `json:"type"`
	Status         MessageStatus `json:"status,omitempty"`
	ReplyTo        string        `json:"replyTo,omitempty"`
	Reactions      []Reaction    `json:"reactions,omitempty"`
	CreatedAt      time.Time     `json:"createdAt"`
	DeletedAt      *time.Time    `json:"deletedAt,omitempty"`
}

// Clone returns a copy of m that shares no slices or pointers with it.
func (m Message) Clone() Message {
	out := m
	if m.Reactions != nil {
		out.Reactions = append([]Reaction(nil), m.Reactions...)
	}
	if m.DeletedAt != nil {
		t := *m.DeletedAt
		out.DeletedAt = &t
	}
	return out
}

// A Reaction represents an emoji a user attached to a message. The same
// (Emoji, UserID) pair may appear more than once.
type Reaction struct {
	MessageID string `json:"messageId,omitempty"`
	UserID    string `json:"user"`
	Emoji     string `json:"emoji"`
}

// A Photo is an image to upload.
type Photo struct {
	Name    string
	Content io.Reader
}

// PhotoURL joins the photo server base URL with a photo path returned by the
// API.
func PhotoURL(base, relative string) string {
	if relative != "" && !strings.HasPrefix(relative, "/") {
		relative = "/" + relative
	}
	return strings.TrimSuffix(base, "/") + relative
}
