package provider

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/inboxmirror/inboxd/internal/retry"
)

func fastRetry() retry.Config {
	return retry.Config{MaxAttempts: 2, InitialWait: time.Millisecond, MaxWait: time.Millisecond, Multiplier: 1}
}

func testClient(srv *httptest.Server) *Client {
	return NewClient(Options{
		BaseURL:       srv.URL,
		Token:         "tok",
		RatePerSecond: 10000,
		Retry:         fastRetry(),
	})
}

func TestTestConnectivity(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/accounts/acc-1/status" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer tok" {
			t.Errorf("auth = %q", r.Header.Get("Authorization"))
		}
		fmt.Fprint(w, `{"status":"ok"}`)
	}))
	defer srv.Close()

	if err := testClient(srv).TestConnectivity(context.Background(), "acc-1"); err != nil {
		t.Fatal(err)
	}
}

func TestTestConnectivityFailureIsTyped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	err := testClient(srv).TestConnectivity(context.Background(), "acc-1")
	var connErr *ConnectivityError
	if !errors.As(err, &connErr) {
		t.Fatalf("err = %T %v, want *ConnectivityError", err, err)
	}
	if connErr.AccountID != "acc-1" {
		t.Errorf("account = %q", connErr.AccountID)
	}
}

func TestListChatsPagination(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("cursor") {
		case "":
			fmt.Fprint(w, `{"items":[{"id":"c1"},{"id":"c2"}],"cursor":"page2"}`)
		case "page2":
			fmt.Fprint(w, `{"items":[{"id":"c3"}],"cursor":""}`)
		default:
			t.Errorf("unexpected cursor %q", r.URL.Query().Get("cursor"))
		}
	}))
	defer srv.Close()

	c := testClient(srv)
	page1, err := c.ListChats(context.Background(), "acc-1", "", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(page1.Chats) != 2 || page1.Cursor != "page2" {
		t.Fatalf("page1 = %+v", page1)
	}
	page2, err := c.ListChats(context.Background(), "acc-1", page1.Cursor, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(page2.Chats) != 1 || page2.Cursor != "" {
		t.Fatalf("page2 = %+v", page2)
	}
}

func TestGetMessageAttachmentDecodesBase64(t *testing.T) {
	payload := []byte("attachment-bytes")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("account_id") != "acc-1" {
			t.Errorf("account_id missing")
		}
		fmt.Fprintf(w, `{"content_base64":%q,"mime_type":"image/png"}`,
			base64.StdEncoding.EncodeToString(payload))
	}))
	defer srv.Close()

	content, err := testClient(srv).GetMessageAttachment(context.Background(), "m1", "a1", "acc-1")
	if err != nil {
		t.Fatal(err)
	}
	if string(content.Data) != string(payload) || content.MimeType != "image/png" {
		t.Errorf("content = %+v", content)
	}
}

func TestGetJSONRetriesTransientFailures(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, `{"items":[],"cursor":""}`)
	}))
	defer srv.Close()

	if _, err := testClient(srv).ListChats(context.Background(), "acc-1", "", 10); err != nil {
		t.Fatal(err)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2 (one retry)", calls)
	}
}
