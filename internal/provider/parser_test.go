package provider

import (
	"encoding/json"
	"testing"
)

func TestParseChatFieldPriority(t *testing.T) {
	raw := json.RawMessage(`{
		"id": "chat-1",
		"subject": "Deal discussion",
		"is_group": true,
		"unread_count": 3,
		"organization_id": "org-77",
		"last_activity_at": "2026-03-01T10:00:00Z"
	}`)
	c, err := ParseChat(raw)
	if err != nil {
		t.Fatal(err)
	}
	if c.ExternalID != "chat-1" || c.Name != "Deal discussion" {
		t.Errorf("chat = %+v", c)
	}
	if c.Type != "group" {
		t.Errorf("type = %q, want group", c.Type)
	}
	if c.OrganizationID != "org-77" {
		t.Errorf("org id = %q", c.OrganizationID)
	}
	if c.LastActivityAt == 0 {
		t.Error("last_activity_at not parsed from RFC3339")
	}
}

func TestParseAttachmentFilenameSynonyms(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want string
	}{
		{"file_name wins", `{"id":"a1","file_name":"report.pdf","name":"ignored"}`, "report.pdf"},
		{"filename second", `{"id":"a1","filename":"notes.txt"}`, "notes.txt"},
		{"name last", `{"id":"a1","name":"photo.jpg"}`, "photo.jpg"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			a, err := ParseAttachment(json.RawMessage(tc.raw))
			if err != nil {
				t.Fatal(err)
			}
			if a.Filename != tc.want {
				t.Errorf("filename = %q, want %q", a.Filename, tc.want)
			}
		})
	}
}

func TestParseAttachmentMimeSynonyms(t *testing.T) {
	a, err := ParseAttachment(json.RawMessage(`{"id":"a1","content_type":"image/png"}`))
	if err != nil {
		t.Fatal(err)
	}
	if a.MimeType != "image/png" {
		t.Errorf("mime = %q", a.MimeType)
	}
	// mimetype outranks content_type.
	a, _ = ParseAttachment(json.RawMessage(`{"id":"a1","mimetype":"image/jpeg","content_type":"image/png"}`))
	if a.MimeType != "image/jpeg" {
		t.Errorf("mime = %q, want mimetype key to win", a.MimeType)
	}
}

func TestParseMessageDirectionIndicator(t *testing.T) {
	m, err := ParseMessage(json.RawMessage(`{"id":"m1","text":"hi","is_sender":false,"timestamp":1700000000}`))
	if err != nil {
		t.Fatal(err)
	}
	if m.IsOutgoing == nil || *m.IsOutgoing {
		t.Error("explicit is_sender=false not carried through")
	}
	if m.SentAt != 1700000000000 {
		t.Errorf("sent_at = %d, want unix seconds scaled to millis", m.SentAt)
	}

	// No indicator: nil, so the handler falls back to sender comparison.
	m, _ = ParseMessage(json.RawMessage(`{"id":"m2","text":"hi"}`))
	if m.IsOutgoing != nil {
		t.Error("missing direction indicator should be nil, not false")
	}
}

func TestParseMessageNestedAttachments(t *testing.T) {
	m, err := ParseMessage(json.RawMessage(`{
		"id": "m1",
		"text": "",
		"attachments": [
			{"id":"a1","type":"img","file_name":"cat.png","unavailable":false},
			{"id":"a2","type":"file","expired":true},
			{"type":"file"}
		]
	}`))
	if err != nil {
		t.Fatal(err)
	}
	// The id-less attachment is dropped at the boundary.
	if len(m.Attachments) != 2 {
		t.Fatalf("got %d attachments, want 2", len(m.Attachments))
	}
	if !m.Attachments[1].Unavailable {
		t.Error("expired synonym not mapped to unavailable")
	}
}

func TestParseProfileDisplayNameFallback(t *testing.T) {
	p, err := ParseProfile(json.RawMessage(`{"provider_id":"p1","first_name":"Ada","last_name":"Kim","headline":"CTO"}`))
	if err != nil {
		t.Fatal(err)
	}
	if p.DisplayName != "Ada Kim" {
		t.Errorf("display_name = %q", p.DisplayName)
	}
}

func TestIsOrgURN(t *testing.T) {
	cases := map[string]bool{
		"urn:li:organization:123": true,
		"urn:li:company:9":        true,
		"org:55":                  true,
		"urn:li:person:abc":       false,
		"p-123":                   false,
	}
	for id, want := range cases {
		if got := IsOrgURN(id); got != want {
			t.Errorf("IsOrgURN(%q) = %v, want %v", id, got, want)
		}
	}
}
