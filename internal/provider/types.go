package provider

import "fmt"

// Chat is a normalized conversation descriptor from the upstream API.
type Chat struct {
	ExternalID     string
	Name           string
	Type           string // direct or group
	OrganizationID string
	ContentType    string
	SenderID       string // last sender identity, when the payload carries one
	LastActivityAt int64  // unix millis
	UnreadCount    int
	Archived       bool
	ReadOnly       bool
	Raw            string // original payload, kept as provider metadata
}

// ChatPage is one page of chats plus the cursor for the next page.
// An empty cursor means no further pages.
type ChatPage struct {
	Chats  []Chat
	Cursor string
}

// Attendee is a normalized chat participant descriptor.
type Attendee struct {
	ExternalID      string
	IsSelf          bool
	Hidden          bool
	FirstName       string
	LastName        string
	DisplayName     string
	Headline        string
	AvatarURL       string
	NetworkDistance string
	IsConnection    bool
}

// Message is a normalized message descriptor.
type Message struct {
	ExternalID     string
	ChatExternalID string
	SenderID       string
	Content        string
	Type           string
	// IsOutgoing is nil when the payload carries no explicit direction
	// indicator; ownership then falls back to a sender/owner comparison.
	IsOutgoing  *bool
	IsRead      bool
	SentAt      int64 // unix millis
	Attachments []Attachment
	Raw         string
}

// MessagePage is one page of messages plus the cursor for the next page.
type MessagePage struct {
	Messages []Message
	Cursor   string
}

// Attachment is a normalized attachment descriptor, possibly without content.
type Attachment struct {
	ExternalID  string
	Kind        string // img, video, audio, file, linkedin_post, ...
	URL         string
	Filename    string
	Size        int64
	MimeType    string
	Unavailable bool
}

// AttachmentContent is a downloaded attachment body.
type AttachmentContent struct {
	Data     []byte
	MimeType string
}

// Profile is a normalized identity profile from the enrichment endpoint.
type Profile struct {
	ExternalID      string
	FirstName       string
	LastName        string
	DisplayName     string
	Headline        string
	AvatarURL       string
	NetworkDistance string
	IsConnection    bool
	Raw             string
}

// ConnectivityError reports a failed upstream connectivity probe. It is fatal
// to the whole backfill run that issued it.
type ConnectivityError struct {
	AccountID string
	Err       error
}

func (e *ConnectivityError) Error() string {
	return fmt.Sprintf("provider connectivity check failed for account %s: %v", e.AccountID, e.Err)
}

func (e *ConnectivityError) Unwrap() error {
	return e.Err
}
