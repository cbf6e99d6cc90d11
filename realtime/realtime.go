// Package realtime applies server-pushed events to the stores.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/GetStream/chatsync/api"
)

// EventMessageCreated announces a message posted by another client.
const EventMessageCreated = "message.created"

// An Event is one frame received from the events endpoint.
type Event struct {
	Type    string          `json:"type"`
	Message json.RawMessage `json:"message,omitempty"`
}

// MessageSink receives messages for the conversation it is showing.
// *store.MessageStore implements it.
type MessageSink interface {
	ConversationID() string
	AddLocal(msg api.Message)
}

// ConversationSink receives every message. *store.ConversationStore
// implements it.
type ConversationSink interface {
	AddMessageToConversation(id string, msg api.Message)
}

// Listener reads events from a websocket and applies them to the sinks.
// Either sink may be nil.
type Listener struct {
	URL           string
	Tokens        api.TokenSource
	Dialer        *websocket.Dialer
	Logger        *slog.Logger
	Messages      MessageSink
	Conversations ConversationSink
}

// Run connects and applies events until ctx is done or the server goes away.
// It returns nil when ctx ends or the server closes the connection normally.
func (l *Listener) Run(ctx context.Context) error {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	dialer := l.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}

	header := http.Header{}
	if l.Tokens != nil {
		if tok := l.Tokens.Token(); tok != "" {
			header.Set("Authorization", "Bearer "+tok)
		}
	}

	conn, resp, err := dialer.DialContext(ctx, l.URL, header)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return &api.AuthError{Status: resp.StatusCode, Message: "events endpoint rejected the credential", Err: err}
		}
		return &api.NetworkError{Op: "dial " + l.URL, Err: err}
	}
	defer conn.Close()
	logger.Info("Listening for events", "url", l.URL)

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			conn.Close()
		case <-stop:
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return &api.NetworkError{Op: "read event", Err: err}
		}
		if err := l.apply(data); err != nil {
			logger.Warn("Could not apply event", "error", err.Error())
		}
	}
}

func (l *Listener) apply(data []byte) error {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return fmt.Errorf("decode event: %w", err)
	}
	switch ev.Type {
	case EventMessageCreated:
		if len(ev.Message) == 0 {
			return errors.New("message.created without a message")
		}
		msg, err := api.DecodeMessage(ev.Message)
		if err != nil {
			return err
		}
		l.deliver(msg)
		return nil
	default:
		return fmt.Errorf("unknown event type %q", ev.Type)
	}
}

func (l *Listener) deliver(msg api.Message) {
	if l.Conversations != nil {
		l.Conversations.AddMessageToConversation(msg.ConversationID, msg)
	}
	if l.Messages != nil && l.Messages.ConversationID() == msg.ConversationID {
		l.Messages.AddLocal(msg)
	}
}
