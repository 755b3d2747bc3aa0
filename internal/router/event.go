package router

import "github.com/inboxmirror/inboxd/internal/provider"

// Kind discriminates inbound events from the provider webhook.
type Kind string

// Inbound event kinds.
const (
	KindMessageReceived     Kind = "message_received"
	KindMessageRead         Kind = "message_read"
	KindMessageEdited       Kind = "message_edited"
	KindMessageDeleted      Kind = "message_deleted"
	KindAccountStatus       Kind = "account_status"
	KindAccountConnected    Kind = "account_connected"
	KindAccountDisconnected Kind = "account_disconnected"
	KindProfileView         Kind = "profile_view"
)

// Event is one inbound webhook event after boundary normalization.
// AccountID is the provider-side account id, not a local row id.
type Event struct {
	Kind      Kind
	AccountID string
	Provider  string

	// Message is set for message_received.
	Message *MessageEvent
	// MessageID and NewContent serve the point events (read/edited/deleted).
	MessageID  string
	NewContent string
	// Status is set for account_status.
	Status string
	// Owner is set for account_connected.
	Owner string
	// ProfileView is set for profile_view.
	ProfileView *ProfileViewEvent
}

// MessageEvent carries a full inbound message with its chat context.
type MessageEvent struct {
	Message   provider.Message
	Attendees []provider.Attendee
	IsGroup   bool
	ChatName  string
}

// ProfileViewEvent records that somebody viewed the owner's profile.
type ProfileViewEvent struct {
	ViewerID   string
	ViewerName string
	ViewedAt   int64
}
