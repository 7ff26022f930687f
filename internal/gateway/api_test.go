// ABOUTME: Tests for the REST surface using the full routed handler
// ABOUTME: Exercises auth enforcement, error mapping, and conversation flows

package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/tasklane/chat-relay/internal/auth"
	"github.com/tasklane/chat-relay/internal/config"
	"github.com/tasklane/chat-relay/internal/relay"
)

// newTestGateway builds a Gateway on a throwaway database with auth in
// development mode.
func newTestGateway(t *testing.T) *Gateway {
	t.Helper()

	cfg := &config.Config{}
	cfg.Server.HTTPAddr = "127.0.0.1:0"
	cfg.Server.ShutdownTimeout = time.Second
	cfg.Database.Path = filepath.Join(t.TempDir(), "relay.db")
	cfg.Stream.Buffer = 16

	g, err := New(cfg, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() {
		g.registry.Close()
		g.store.Close()
	})
	return g
}

// doJSON performs a request against the gateway's handler with dev-mode
// identity headers and an optional JSON body.
func doJSON(t *testing.T, g *Gateway, method, path, userID, role string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshaling body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
		req.Header.Set("X-User-Role", role)
	}
	rec := httptest.NewRecorder()
	g.httpServer.Handler.ServeHTTP(rec, req)
	return rec
}

func decodeJSON[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decoding response %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestHealthEndpoints(t *testing.T) {
	g := newTestGateway(t)

	rec := doJSON(t, g, http.MethodGet, "/health", "", "", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("GET /health status = %d, want 200", rec.Code)
	}

	rec = doJSON(t, g, http.MethodGet, "/health/ready", "", "", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("GET /health/ready status = %d, want 200", rec.Code)
	}
}

func TestAPIRequiresIdentity(t *testing.T) {
	g := newTestGateway(t)

	rec := doJSON(t, g, http.MethodGet, "/api/conversations", "", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestCreateAndListConversations(t *testing.T) {
	g := newTestGateway(t)

	rec := doJSON(t, g, http.MethodPost, "/api/conversations", "u1", auth.RoleRequester,
		CreateConversationRequest{ParticipantID: "u2"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body = %s", rec.Code, rec.Body.String())
	}
	conv := decodeJSON[relay.ConversationPayload](t, rec)
	if conv.ID == "" {
		t.Fatal("create returned empty conversation id")
	}
	if conv.LastMessage != nil {
		t.Error("new conversation should have no last message")
	}

	// Both participants see it, a third user does not.
	for _, userID := range []string{"u1", "u2"} {
		rec := doJSON(t, g, http.MethodGet, "/api/conversations", userID, auth.RoleProvider, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("list status for %s = %d", userID, rec.Code)
		}
		list := decodeJSON[ListConversationsResponse](t, rec)
		if len(list.Conversations) != 1 || list.Conversations[0].ID != conv.ID {
			t.Errorf("list for %s = %+v, want the created conversation", userID, list.Conversations)
		}
	}

	rec = doJSON(t, g, http.MethodGet, "/api/conversations", "u3", auth.RoleProvider, nil)
	list := decodeJSON[ListConversationsResponse](t, rec)
	if len(list.Conversations) != 0 {
		t.Errorf("u3 sees %d conversations, want 0", len(list.Conversations))
	}
}

func TestCreateConversation_Validation(t *testing.T) {
	g := newTestGateway(t)

	tests := []struct {
		name       string
		body       any
		wantStatus int
	}{
		{"missing participant", CreateConversationRequest{}, http.StatusBadRequest},
		{"self conversation", CreateConversationRequest{ParticipantID: "u1"}, http.StatusBadRequest},
		{"invalid json", "not-json", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(t, g, http.MethodPost, "/api/conversations", "u1", auth.RoleRequester, tt.body)
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}

func TestSendMessage_ErrorMapping(t *testing.T) {
	g := newTestGateway(t)

	rec := doJSON(t, g, http.MethodPost, "/api/conversations", "u1", auth.RoleRequester,
		CreateConversationRequest{ParticipantID: "u2"})
	conv := decodeJSON[relay.ConversationPayload](t, rec)

	tests := []struct {
		name       string
		userID     string
		body       SendMessageRequest
		wantStatus int
	}{
		{"unknown conversation", "u1", SendMessageRequest{ConversationID: "nope", Content: "x"}, http.StatusNotFound},
		{"non-participant", "u3", SendMessageRequest{ConversationID: conv.ID, Content: "x"}, http.StatusForbidden},
		{"empty content", "u1", SendMessageRequest{ConversationID: conv.ID, Content: "   "}, http.StatusBadRequest},
		{"missing conversation id", "u1", SendMessageRequest{Content: "x"}, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(t, g, http.MethodPost, "/api/messages", tt.userID, auth.RoleRequester, tt.body)
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d (body %s)", rec.Code, tt.wantStatus, rec.Body.String())
			}
		})
	}
}

func TestStoreUnavailable_MapsToServiceUnavailable(t *testing.T) {
	g := newTestGateway(t)

	rec := doJSON(t, g, http.MethodPost, "/api/conversations", "u1", auth.RoleRequester,
		CreateConversationRequest{ParticipantID: "u2"})
	conv := decodeJSON[relay.ConversationPayload](t, rec)

	// A canceled request context makes every store call fail as
	// unavailable rather than as a validation error.
	body, err := json.Marshal(SendMessageRequest{ConversationID: conv.ID, Content: "x"})
	if err != nil {
		t.Fatalf("marshaling body: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/api/messages", bytes.NewReader(body))
	req.Header.Set("X-User-ID", "u1")
	req.Header.Set("X-User-Role", auth.RoleRequester)

	ctx, cancel := context.WithCancel(req.Context())
	cancel()
	req = req.WithContext(ctx)

	rec = httptest.NewRecorder()
	g.httpServer.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503 (body %s)", rec.Code, rec.Body.String())
	}

	// Nothing was persisted by the failed send.
	rec2 := doJSON(t, g, http.MethodGet, fmt.Sprintf("/api/conversations/%s/messages", conv.ID),
		"u1", auth.RoleRequester, nil)
	if rec2.Code != http.StatusOK {
		t.Fatalf("history status = %d", rec2.Code)
	}
	history := decodeJSON[ConversationMessagesResponse](t, rec2)
	if len(history.Messages) != 0 {
		t.Errorf("history has %d messages, want 0", len(history.Messages))
	}
}

func TestConversationMessageFlow(t *testing.T) {
	g := newTestGateway(t)

	rec := doJSON(t, g, http.MethodPost, "/api/conversations", "u1", auth.RoleRequester,
		CreateConversationRequest{ParticipantID: "u2"})
	conv := decodeJSON[relay.ConversationPayload](t, rec)

	// Send through both endpoints.
	rec = doJSON(t, g, http.MethodPost, "/api/messages", "u1", auth.RoleRequester,
		SendMessageRequest{ConversationID: conv.ID, Content: "first"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("send status = %d, body = %s", rec.Code, rec.Body.String())
	}
	first := decodeJSON[relay.MessagePayload](t, rec)

	rec = doJSON(t, g, http.MethodPost, fmt.Sprintf("/api/conversations/%s/messages", conv.ID),
		"u2", auth.RoleProvider, map[string]string{"content": "second"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("send status = %d, body = %s", rec.Code, rec.Body.String())
	}

	// History in send order, for a participant.
	rec = doJSON(t, g, http.MethodGet, fmt.Sprintf("/api/conversations/%s/messages", conv.ID),
		"u2", auth.RoleProvider, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("history status = %d", rec.Code)
	}
	history := decodeJSON[ConversationMessagesResponse](t, rec)
	if len(history.Messages) != 2 {
		t.Fatalf("history has %d messages, want 2", len(history.Messages))
	}
	if history.Messages[0].Content != "first" || history.Messages[1].Content != "second" {
		t.Errorf("history order = %q, %q", history.Messages[0].Content, history.Messages[1].Content)
	}

	// History is closed to outsiders.
	rec = doJSON(t, g, http.MethodGet, fmt.Sprintf("/api/conversations/%s/messages", conv.ID),
		"u3", auth.RoleProvider, nil)
	if rec.Code != http.StatusForbidden {
		t.Errorf("outsider history status = %d, want 403", rec.Code)
	}

	// Recipient acknowledges the first message.
	rec = doJSON(t, g, http.MethodPost, fmt.Sprintf("/api/conversations/%s/read", conv.ID),
		"u2", auth.RoleProvider, MarkReadRequest{MessageID: first.ID})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("mark read status = %d, body = %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, g, http.MethodGet, fmt.Sprintf("/api/conversations/%s/messages", conv.ID),
		"u1", auth.RoleRequester, nil)
	history = decodeJSON[ConversationMessagesResponse](t, rec)
	if !history.Messages[0].Read {
		t.Error("first message should be marked read")
	}
	if history.Messages[1].Read {
		t.Error("second message should still be unread")
	}

	// Outsiders cannot acknowledge.
	rec = doJSON(t, g, http.MethodPost, fmt.Sprintf("/api/conversations/%s/read", conv.ID),
		"u3", auth.RoleProvider, MarkReadRequest{MessageID: first.ID})
	if rec.Code != http.StatusForbidden {
		t.Errorf("outsider mark read status = %d, want 403", rec.Code)
	}
}

func TestTypingEndpoint(t *testing.T) {
	g := newTestGateway(t)

	rec := doJSON(t, g, http.MethodPost, "/api/typing", "u1", auth.RoleRequester,
		TypingRequest{ReceiverID: "u2", IsTyping: true})
	if rec.Code != http.StatusAccepted {
		t.Errorf("typing status = %d, want 202", rec.Code)
	}

	rec = doJSON(t, g, http.MethodPost, "/api/typing", "u1", auth.RoleRequester, TypingRequest{})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("typing without receiver status = %d, want 400", rec.Code)
	}
}

func TestUnknownSubresource(t *testing.T) {
	g := newTestGateway(t)

	rec := doJSON(t, g, http.MethodGet, "/api/conversations/abc/unknown", "u1", auth.RoleRequester, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}
