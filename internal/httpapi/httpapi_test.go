package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/inboxmirror/inboxd/internal/bus"
	"github.com/inboxmirror/inboxd/internal/provider"
	"github.com/inboxmirror/inboxd/internal/router"
	"github.com/inboxmirror/inboxd/internal/store"
	"github.com/inboxmirror/inboxd/internal/sync"
	"go.uber.org/zap"
)

func testDB(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func testAccount(t *testing.T, db *store.DB) *store.Account {
	t.Helper()
	id, err := db.UpsertAccount(&store.Account{
		Owner: "user-1", Provider: "linkedin", ExternalID: "acc-ext-1",
		Status: store.AccountConnected,
	})
	if err != nil {
		t.Fatal(err)
	}
	a, err := db.GetAccount(id)
	if err != nil {
		t.Fatal(err)
	}
	return a
}

// fakeRouter records routed events and can fail on demand.
type fakeRouter struct {
	events []*router.Event
	err    error
}

func (f *fakeRouter) Route(ctx context.Context, evt *router.Event) error {
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, evt)
	return nil
}

type fakeImporter struct {
	batches [][]provider.Message
	result  *sync.ImportResult
}

func (f *fakeImporter) Import(ctx context.Context, account *store.Account, messages []provider.Message) (*sync.ImportResult, error) {
	f.batches = append(f.batches, messages)
	if f.result != nil {
		return f.result, nil
	}
	return &sync.ImportResult{Imported: len(messages)}, nil
}

func newTestServer(t *testing.T, db *store.DB, rt EventRouter, im MessageImporter) (*Server, *bus.Bus) {
	t.Helper()
	b := bus.New()
	if rt == nil {
		rt = &fakeRouter{}
	}
	if im == nil {
		im = &fakeImporter{}
	}
	s, err := NewServer("127.0.0.1:0", db, b, rt, im, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	return s, b
}

func TestWebhookRoutesMessageReceived(t *testing.T) {
	db := testDB(t)
	rt := &fakeRouter{}
	s, _ := newTestServer(t, db, rt, nil)

	body := `{
		"type": "message_received",
		"account_id": "acc-ext-1",
		"is_group": false,
		"message": {
			"id": "msg-1",
			"chat_id": "chat-1",
			"sender_id": "contact-1",
			"text": "hello",
			"timestamp": 1700000000
		},
		"attendees": [{"id": "contact-1", "first_name": "Ada"}]
	}`
	req := httptest.NewRequest(http.MethodPost, "/webhooks/linkedin", strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204: %s", rec.Code, rec.Body.String())
	}
	if len(rt.events) != 1 {
		t.Fatalf("routed events = %d, want 1", len(rt.events))
	}
	evt := rt.events[0]
	if evt.Kind != router.KindMessageReceived || evt.Provider != "linkedin" {
		t.Errorf("event = %+v, want message_received via linkedin", evt)
	}
	if evt.Message == nil || evt.Message.Message.ExternalID != "msg-1" {
		t.Fatal("message payload not decoded")
	}
	if len(evt.Message.Attendees) != 1 || evt.Message.Attendees[0].FirstName != "Ada" {
		t.Error("attendees not decoded")
	}
	// Seconds-precision timestamp normalized to millis.
	if evt.Message.Message.SentAt != 1700000000000 {
		t.Errorf("SentAt = %d, want millis", evt.Message.Message.SentAt)
	}
}

func TestWebhookRejectsSchemaViolations(t *testing.T) {
	db := testDB(t)
	s, _ := newTestServer(t, db, nil, nil)

	cases := map[string]string{
		"missing account":   `{"type": "message_read", "message_id": "m1"}`,
		"unknown kind":      `{"type": "message_exploded", "account_id": "a"}`,
		"read without id":   `{"type": "message_read", "account_id": "a"}`,
		"received w/o body": `{"type": "message_received", "account_id": "a"}`,
		"not json":          `{{{`,
	}
	for name, body := range cases {
		req := httptest.NewRequest(http.MethodPost, "/webhooks/linkedin", strings.NewReader(body))
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", name, rec.Code)
		}
	}
}

func TestWebhookUnknownAccountIsGone(t *testing.T) {
	db := testDB(t)
	// Real router against an empty DB: the lookup fails.
	rt := router.New(db, nil, zap.NewNop())
	s, _ := newTestServer(t, db, rt, nil)

	body := `{"type": "message_read", "account_id": "ghost", "message_id": "m1"}`
	req := httptest.NewRequest(http.MethodPost, "/webhooks/linkedin", strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusGone {
		t.Errorf("status = %d, want 410 for unknown account", rec.Code)
	}
}

func TestSyncStatusEndpoint(t *testing.T) {
	db := testDB(t)
	account := testAccount(t, db)
	if err := db.StartSyncRun(account.ID, account.Provider); err != nil {
		t.Fatal(err)
	}
	if err := db.CompleteSyncRun(account.ID, account.Provider); err != nil {
		t.Fatal(err)
	}
	s, _ := newTestServer(t, db, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/v1/accounts/"+account.ID+"/sync", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var view syncRunView
	if err := json.NewDecoder(rec.Body).Decode(&view); err != nil {
		t.Fatal(err)
	}
	if view.Status != store.SyncCompleted {
		t.Errorf("Status = %q, want completed", view.Status)
	}
}

func TestSyncStatusUnknownAccount(t *testing.T) {
	db := testDB(t)
	s, _ := newTestServer(t, db, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/v1/accounts/ghost/sync", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestBackfillEndpointPublishesRequest(t *testing.T) {
	db := testDB(t)
	account := testAccount(t, db)
	s, b := newTestServer(t, db, nil, nil)

	events, cancel := b.Subscribe("backfill.", 4)
	defer cancel()

	req := httptest.NewRequest(http.MethodPost, "/v1/accounts/"+account.ID+"/backfill", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", rec.Code)
	}
	select {
	case evt := <-events:
		req, ok := evt.Payload.(bus.BackfillRequest)
		if !ok || req.AccountID != account.ID {
			t.Errorf("payload = %+v, want request for %s", evt.Payload, account.ID)
		}
	default:
		t.Fatal("no backfill request published")
	}
}

func TestImportEndpoint(t *testing.T) {
	db := testDB(t)
	account := testAccount(t, db)
	im := &fakeImporter{}
	s, _ := newTestServer(t, db, nil, im)

	body := `{"messages": [
		{"id": "m1", "chat_id": "c1", "text": "a", "timestamp": 1},
		{"id": "m2", "chat_id": "c1", "text": "b", "timestamp": 2},
		{"text": "no id, dropped"}
	]}`
	req := httptest.NewRequest(http.MethodPost, "/v1/accounts/"+account.ID+"/import", strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if len(im.batches) != 1 || len(im.batches[0]) != 2 {
		t.Fatalf("imported batches = %+v, want one batch of 2", im.batches)
	}
}

func TestListChatsAndMessages(t *testing.T) {
	db := testDB(t)
	account := testAccount(t, db)
	chatID, err := db.UpsertChat(&store.Chat{
		AccountID: account.ID, ExternalID: "chat-1", Type: "direct", Name: "Ada",
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.UpsertMessage(&store.Message{
		AccountID: account.ID, ChatID: chatID, ExternalID: "m1",
		SenderID: "contact-1", Content: "hello", Type: "text", SentAt: 100,
	}); err != nil {
		t.Fatal(err)
	}
	s, _ := newTestServer(t, db, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/v1/accounts/"+account.ID+"/chats", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("chats status = %d, want 200", rec.Code)
	}
	var chats []chatView
	if err := json.NewDecoder(rec.Body).Decode(&chats); err != nil {
		t.Fatal(err)
	}
	if len(chats) != 1 || chats[0].ExternalID != "chat-1" {
		t.Fatalf("chats = %+v, want chat-1", chats)
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/chats/"+chatID+"/messages", nil)
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("messages status = %d, want 200", rec.Code)
	}
	var msgs []messageView
	if err := json.NewDecoder(rec.Body).Decode(&msgs); err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 || msgs[0].ExternalID != "m1" {
		t.Fatalf("messages = %+v, want m1", msgs)
	}
}

func TestSearchEndpoint(t *testing.T) {
	db := testDB(t)
	account := testAccount(t, db)
	chatID, err := db.UpsertChat(&store.Chat{AccountID: account.ID, ExternalID: "chat-1", Type: "direct"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.UpsertMessage(&store.Message{
		AccountID: account.ID, ChatID: chatID, ExternalID: "m1",
		SenderID: "contact-1", Content: "quarterly forecast numbers", Type: "text", SentAt: 100,
	}); err != nil {
		t.Fatal(err)
	}
	s, _ := newTestServer(t, db, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/v1/accounts/"+account.ID+"/search?q=forecast", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "forecast") {
		t.Error("search result should contain the match")
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/accounts/"+account.ID+"/search", nil)
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status without q = %d, want 400", rec.Code)
	}
}

func TestHealthz(t *testing.T) {
	db := testDB(t)
	s, _ := newTestServer(t, db, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}
