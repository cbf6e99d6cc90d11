package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/gorilla/mux"
	"github.com/neilotoole/slogt"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type staticToken string

func (s staticToken) Token() string { return string(s) }

// newTestClient starts a fake backend with the given routes and returns a
// client pointed at it.
func newTestClient(t *testing.T, routes func(r *mux.Router)) (*Client, *httptest.Server) {
	t.Helper()
	r := mux.NewRouter()
	routes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return &Client{
		BaseURL: srv.URL,
		Logger:  slogt.New(t),
	}, srv
}

func respondJSON(t *testing.T, w http.ResponseWriter, status int, body string) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if _, err := io.WriteString(w, body); err != nil {
		t.Errorf("Could not write response: %v", err)
	}
}

func TestClient_authorization(t *testing.T) {
	tests := []struct {
		name     string
		tokens   TokenSource
		defaults string
		want     string
	}{
		{
			name: "None",
			want: "",
		},
		{
			name:     "Default",
			defaults: "u1",
			want:     "Bearer u1",
		},
		{
			name:     "TokenSourceWins",
			tokens:   staticToken("u2"),
			defaults: "u1",
			want:     "Bearer u2",
		},
		{
			name:     "EmptyTokenSourceFallsBack",
			tokens:   staticToken(""),
			defaults: "u1",
			want:     "Bearer u1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got, reqID string
			c, _ := newTestClient(t, func(r *mux.Router) {
				r.HandleFunc("/users", func(w http.ResponseWriter, r *http.Request) {
					got = r.Header.Get("Authorization")
					reqID = r.Header.Get("X-Request-ID")
					respondJSON(t, w, http.StatusOK, `[]`)
				}).Methods(http.MethodGet)
			})
			c.Tokens = tt.tokens
			c.SetAuthorization(tt.defaults)

			if _, err := c.ListUsers(context.Background()); err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("Got Authorization %q, want %q", got, tt.want)
			}
			if reqID == "" {
				t.Error("Got no X-Request-ID header")
			}
		})
	}
}

func TestClient_errors(t *testing.T) {
	tests := []struct {
		name             string
		status           int
		body             string
		wantStatus       int
		wantMessage      string
		wantUnauthorized bool
		check            func(error) bool
	}{
		{
			name:             "Unauthorized",
			status:           http.StatusUnauthorized,
			body:             "Unauthorized: Invalid token\n",
			wantStatus:       401,
			wantMessage:      "Unauthorized: Invalid token",
			wantUnauthorized: true,
			check: func(err error) bool {
				var e *AuthError
				return errors.As(err, &e)
			},
		},
		{
			name:        "BadRequest",
			status:      http.StatusBadRequest,
			body:        `{"error": "Invalid request payload"}`,
			wantStatus:  400,
			wantMessage: "Invalid request payload",
			check: func(err error) bool {
				var e *ValidationError
				return errors.As(err, &e)
			},
		},
		{
			name:        "InternalServerError",
			status:      http.StatusInternalServerError,
			body:        ``,
			wantStatus:  500,
			wantMessage: "server error (500): Internal Server Error",
			check: func(err error) bool {
				var e *ServerError
				return errors.As(err, &e)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestClient(t, func(r *mux.Router) {
				r.HandleFunc("/users/me", func(w http.ResponseWriter, r *http.Request) {
					respondJSON(t, w, tt.status, tt.body)
				})
			})
			var unauthorized bool
			c.OnUnauthorized = func(context.Context) { unauthorized = true }

			_, err := c.GetMe(context.Background())
			if err == nil {
				t.Fatal("GetMe() expected an error")
			}
			if !tt.check(err) {
				t.Errorf("Got error of type %T", err)
			}
			if got := StatusOf(err); got != tt.wantStatus {
				t.Errorf("Got status %d, want %d", got, tt.wantStatus)
			}
			if !strings.Contains(err.Error(), tt.wantMessage) {
				t.Errorf("Got error %q, want it to contain %q", err.Error(), tt.wantMessage)
			}
			if unauthorized != tt.wantUnauthorized {
				t.Errorf("Got OnUnauthorized called %v, want %v", unauthorized, tt.wantUnauthorized)
			}
		})
	}
}

func TestClient_networkError(t *testing.T) {
	c, srv := newTestClient(t, func(r *mux.Router) {})
	srv.Close()

	_, err := c.ListConversations(context.Background())
	var netErr *NetworkError
	if !errors.As(err, &netErr) {
		t.Fatalf("Got error %v, want *NetworkError", err)
	}
	if netErr.Op != "GET /conversations" {
		t.Errorf("Got op %q, want GET /conversations", netErr.Op)
	}
	if StatusOf(err) != 0 {
		t.Errorf("Got status %d, want 0", StatusOf(err))
	}
}

func TestClient_Login(t *testing.T) {
	tests := []struct {
		name     string
		username string
		handler  func(t *testing.T, w http.ResponseWriter, r *http.Request)
		want     LoginResponse
		wantErr  bool
	}{
		{
			name:     "OK",
			username: "alice",
			handler: func(t *testing.T, w http.ResponseWriter, r *http.Request) {
				var body struct {
					Name string `json:"name"`
				}
				if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
					t.Error(err)
				}
				if body.Name != "alice" {
					t.Errorf("Got name %q, want alice", body.Name)
				}
				respondJSON(t, w, http.StatusCreated, `{"id": "u1"}`)
			},
			want: LoginResponse{ID: "u1"},
		},
		{
			name:     "TooShort",
			username: "al",
			handler: func(t *testing.T, w http.ResponseWriter, r *http.Request) {
				t.Error("Request should not reach the server")
			},
			wantErr: true,
		},
		{
			name:     "MissingID",
			username: "alice",
			handler: func(t *testing.T, w http.ResponseWriter, r *http.Request) {
				respondJSON(t, w, http.StatusCreated, `{}`)
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestClient(t, func(r *mux.Router) {
				r.HandleFunc("/session", func(w http.ResponseWriter, r *http.Request) {
					tt.handler(t, w, r)
				}).Methods(http.MethodPost)
			})

			got, err := c.Login(context.Background(), tt.username)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Login() error = %v, wantErr %v", err, tt.wantErr)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Login() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestClient_ListConversations(t *testing.T) {
	tests := []struct {
		name string
		body string
		want []Conversation
	}{
		{
			name: "Null",
			body: `null`,
			want: nil,
		},
		{
			name: "Conversations",
			body: `[
				{
					"id": "c1",
					"name": "friends",
					"type": "group",
					"participants": [{"id": "u1", "name": "alice"}],
					"lastMessage": {
						"id": "m1",
						"conversationId": "c1",
						"sender": {"id": "u1", "name": "alice"},
						"timestamp": "2024-01-01T00:00:00Z",
						"content": "hi",
						"type": "text",
						"status": "sent",
						"reactions": [{"messageId": "m1", "user": "u2", "emoji": "👍"}]
					}
				}
			]`,
			want: []Conversation{
				{
					ID:           "c1",
					Name:         "friends",
					Type:         GroupConversation,
					Participants: []Participant{{ID: "u1", Name: "alice"}},
					LastMessage: &Message{
						ID:             "m1",
						ConversationID: "c1",
						AuthorID:       "u1",
						AuthorName:     "alice",
						Content:        "hi",
						Type:           TextMessage,
						Status:         Sent,
						Reactions:      []Reaction{{MessageID: "m1", UserID: "u2", Emoji: "👍"}},
						CreatedAt:      time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
					},
				},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestClient(t, func(r *mux.Router) {
				r.HandleFunc("/conversations", func(w http.ResponseWriter, r *http.Request) {
					respondJSON(t, w, http.StatusOK, tt.body)
				}).Methods(http.MethodGet)
			})

			got, err := c.ListConversations(context.Background())
			if err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("ListConversations() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestClient_ListConversations_invalidPayload(t *testing.T) {
	c, _ := newTestClient(t, func(r *mux.Router) {
		r.HandleFunc("/conversations", func(w http.ResponseWriter, r *http.Request) {
			respondJSON(t, w, http.StatusOK, `[{"name": "no id"}]`)
		})
	})

	_, err := c.ListConversations(context.Background())
	var serverErr *ServerError
	if !errors.As(err, &serverErr) {
		t.Fatalf("Got error %v, want *ServerError", err)
	}
}

func TestClient_AddGroupMember(t *testing.T) {
	tests := []struct {
		name       string
		addStatus  int
		addBody    string
		readStatus int
		wantReads  int
	}{
		{
			name:      "ConversationInBody",
			addStatus: http.StatusOK,
			addBody:   `{"id": "g1", "type": "group", "participants": [{"id": "u1"}, {"id": "u2"}]}`,
			wantReads: 0,
		},
		{
			name:      "NoContent",
			addStatus: http.StatusNoContent,
			wantReads: 1,
		},
		{
			name:       "NoContentReadFails",
			addStatus:  http.StatusNoContent,
			readStatus: http.StatusInternalServerError,
			wantReads:  1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var reads int
			c, _ := newTestClient(t, func(r *mux.Router) {
				r.HandleFunc("/groups/{id}/members", func(w http.ResponseWriter, r *http.Request) {
					var body struct {
						UserID string `json:"userId"`
					}
					if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
						t.Error(err)
					}
					if body.UserID != "u2" {
						t.Errorf("Got userId %q, want u2", body.UserID)
					}
					if tt.addStatus == http.StatusNoContent {
						w.WriteHeader(http.StatusNoContent)
						return
					}
					respondJSON(t, w, tt.addStatus, tt.addBody)
				}).Methods(http.MethodPost)
				r.HandleFunc("/conversations/{id}", func(w http.ResponseWriter, r *http.Request) {
					reads++
					if id := mux.Vars(r)["id"]; id != "g1" {
						t.Errorf("Got conversation id %q, want g1", id)
					}
					if tt.readStatus != 0 {
						respondJSON(t, w, tt.readStatus, `{"error": "database unavailable"}`)
						return
					}
					respondJSON(t, w, http.StatusOK, `{"id": "g1", "type": "group", "participants": [{"id": "u1"}, {"id": "u2"}]}`)
				}).Methods(http.MethodGet)
			})

			got, err := c.AddGroupMember(context.Background(), "g1", "u2")
			if tt.readStatus != 0 {
				var refreshErr *RefreshError
				if !errors.As(err, &refreshErr) {
					t.Fatalf("Got error %v, want *RefreshError", err)
				}
				if got := StatusOf(err); got != tt.readStatus {
					t.Errorf("Got status %d, want %d", got, tt.readStatus)
				}
				if reads != tt.wantReads {
					t.Errorf("Got %d conversation reads, want %d", reads, tt.wantReads)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			want := Conversation{
				ID:           "g1",
				Type:         GroupConversation,
				Participants: []Participant{{ID: "u1"}, {ID: "u2"}},
			}
			if diff := cmp.Diff(want, got); diff != "" {
				t.Errorf("AddGroupMember() mismatch (-want +got):\n%s", diff)
			}
			if reads != tt.wantReads {
				t.Errorf("Got %d conversation reads, want %d", reads, tt.wantReads)
			}
		})
	}
}

func TestClient_SendPhotoMessage(t *testing.T) {
	c, _ := newTestClient(t, func(r *mux.Router) {
		r.HandleFunc("/messages", func(w http.ResponseWriter, r *http.Request) {
			if err := r.ParseMultipartForm(1 << 20); err != nil {
				t.Error(err)
				return
			}
			if got := r.FormValue("conversationId"); got != "c1" {
				t.Errorf("Got conversationId %q, want c1", got)
			}
			if got := r.FormValue("replyTo"); got != "m0" {
				t.Errorf("Got replyTo %q, want m0", got)
			}
			f, hdr, err := r.FormFile("photo")
			if err != nil {
				t.Error(err)
				return
			}
			defer f.Close()
			b, _ := io.ReadAll(f)
			if string(b) != "png-bytes" || hdr.Filename != "cat.png" {
				t.Errorf("Got file %q named %q", b, hdr.Filename)
			}
			respondJSON(t, w, http.StatusCreated, `{"id": "m1", "conversationId": "c1", "type": "photo", "content": "/uploads/cat.png", "replyTo": "m0"}`)
		}).Methods(http.MethodPost)
	})

	got, err := c.SendPhotoMessage(context.Background(), "c1", Photo{Name: "cat.png", Content: strings.NewReader("png-bytes")}, "m0")
	if err != nil {
		t.Fatal(err)
	}
	want := Message{ID: "m1", ConversationID: "c1", Type: PhotoMessage, Content: "/uploads/cat.png", ReplyTo: "m0"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("SendPhotoMessage() mismatch (-want +got):\n%s", diff)
	}
}

func TestClient_uploadTooLarge(t *testing.T) {
	c, _ := newTestClient(t, func(r *mux.Router) {
		r.HandleFunc("/users/me/photo", func(w http.ResponseWriter, r *http.Request) {
			t.Error("Request should not reach the server")
		})
	})
	c.MaxUploadSize = 4

	_, err := c.UploadUserPhoto(context.Background(), Photo{Name: "big.png", Content: strings.NewReader("12345")})
	var valErr *ValidationError
	if !errors.As(err, &valErr) {
		t.Fatalf("Got error %v, want *ValidationError", err)
	}
	if valErr.Status != 0 {
		t.Errorf("Got status %d, want 0 for a local rejection", valErr.Status)
	}
}

func TestClient_metrics(t *testing.T) {
	c, _ := newTestClient(t, func(r *mux.Router) {
		r.HandleFunc("/users", func(w http.ResponseWriter, r *http.Request) {
			respondJSON(t, w, http.StatusOK, `[{"id": "u1", "name": "alice"}]`)
		})
		r.HandleFunc("/messages/{id}", func(w http.ResponseWriter, r *http.Request) {
			respondJSON(t, w, http.StatusNotFound, `{"error": "not found"}`)
		}).Methods(http.MethodDelete)
	})
	c.Metrics = NewMetrics(prometheus.NewRegistry())

	if _, err := c.ListUsers(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := c.DeleteMessage(context.Background(), "m1"); err == nil {
		t.Fatal("DeleteMessage() expected an error")
	}

	if got := testutil.ToFloat64(c.Metrics.requests.WithLabelValues("GET", "200")); got != 1 {
		t.Errorf("Got %v GET 200 requests, want 1", got)
	}
	if got := testutil.ToFloat64(c.Metrics.requests.WithLabelValues("DELETE", "404")); got != 1 {
		t.Errorf("Got %v DELETE 404 requests, want 1", got)
	}
}

func TestPhotoURL(t *testing.T) {
	tests := []struct {
		base, relative, want string
	}{
		{"http://localhost:8080", "uploads/a.png", "http://localhost:8080/uploads/a.png"},
		{"http://localhost:8080/", "/uploads/a.png", "http://localhost:8080/uploads/a.png"},
		{"http://localhost:8080", "", "http://localhost:8080"},
	}
	for _, tt := range tests {
		if got := PhotoURL(tt.base, tt.relative); got != tt.want {
			t.Errorf("PhotoURL(%q, %q) = %q, want %q", tt.base, tt.relative, got, tt.want)
		}
	}
}

func TestDecodeMessage(t *testing.T) {
	got, err := DecodeMessage([]byte(`{"id": "m9", "conversationId": "c1", "sender": {"id": "u2"}, "content": "yo", "type": "text"}`))
	if err != nil {
		t.Fatal(err)
	}
	want := Message{ID: "m9", ConversationID: "c1", AuthorID: "u2", Content: "yo", Type: TextMessage}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("DecodeMessage() mismatch (-want +got):\n%s", diff)
	}

	if _, err := DecodeMessage([]byte(`{"content": "no id"}`)); err == nil {
		t.Error("DecodeMessage() expected an error for a message without id")
	}
}
