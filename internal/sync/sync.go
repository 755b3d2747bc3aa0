// Package sync implements the mirror synchronization engine: real-time event
// handling, historical backfill, bulk import, contact enrichment and the
// attachment persistence pipeline.
package sync

import (
	"context"

	"github.com/inboxmirror/inboxd/internal/provider"
)

// ProviderAPI is the upstream messaging-provider surface the engine consumes.
// *provider.Client implements it; tests substitute fakes.
type ProviderAPI interface {
	TestConnectivity(ctx context.Context, accountID string) error
	ListChats(ctx context.Context, accountID, cursor string, limit int) (*provider.ChatPage, error)
	ListChatAttendees(ctx context.Context, chatID, accountID string, limit int) ([]provider.Attendee, error)
	ListChatMessages(ctx context.Context, chatID, accountID, cursor string, limit int) (*provider.MessagePage, error)
	GetMessageAttachment(ctx context.Context, messageID, attachmentID, accountID string) (*provider.AttachmentContent, error)
	GetProfile(ctx context.Context, identity, accountID string) (*provider.Profile, error)
	GetOwnProfile(ctx context.Context, accountID string) (*provider.Profile, error)
}
