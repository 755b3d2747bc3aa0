package store

// Account status values mirrored from provider status events.
const (
	AccountConnected    = "connected"
	AccountDisconnected = "disconnected"
	AccountError        = "error"
)

// SyncRun status values.
const (
	SyncIdle      = "idle"
	SyncSyncing   = "syncing"
	SyncCompleted = "completed"
	SyncFailed    = "failed"
)

// Account mirrors one connected upstream messaging identity.
type Account struct {
	ID              string
	Owner           string
	Provider        string
	ExternalID      string
	Status          string
	OwnerExternalID string
	OwnerName       string
	OwnerProfile    string
	OwnerSyncedAt   int64
	DeletedAt       int64
}

// Chat represents a synced conversation thread.
type Chat struct {
	ID               string
	AccountID        string
	ExternalID       string
	Type             string // direct or group
	Name             string
	LastActivityAt   int64
	UnreadCount      int
	Archived         bool
	ReadOnly         bool
	ProviderMetadata string
}

// Contact represents a known external identity, optionally enriched.
type Contact struct {
	ID                string
	AccountID         string
	ExternalID        string
	FirstName         string
	LastName          string
	DisplayName       string
	Headline          string
	AvatarURL         string
	NetworkDistance   string
	IsConnection      bool
	Enriched          bool
	EnrichmentPayload string
	LastInteractionAt int64
}

// Attendee links a participant to a chat.
type Attendee struct {
	ID         string
	ChatID     string
	ExternalID string
	ContactID  string // empty when no contact is linked
	IsSelf     bool
	Hidden     bool
}

// Message represents a synced message. ChatID may be empty for messages
// imported in bulk before their chat was seen.
type Message struct {
	ID         string
	AccountID  string
	ChatID     string
	ExternalID string
	SenderID   string
	Content    string
	Type       string
	IsOutgoing bool
	IsRead     bool
	Deleted    bool
	SentAt     int64
	Metadata   string
}

// Attachment represents one persisted attachment row. At most one of
// BlobURL and InlineContent is populated.
type Attachment struct {
	ID            string
	MessageID     string
	ExternalID    string
	Kind          string
	SourceURL     string
	Filename      string
	Size          int64
	MimeType      string
	BlobURL       string
	InlineContent []byte
	Unavailable   bool
}

// SyncRun is the per-account backfill status record.
type SyncRun struct {
	AccountID            string
	Provider             string
	Status               string
	CurrentStep          string
	ChatsProcessed       int
	ChatsSkipped         int
	MessagesProcessed    int
	AttachmentsProcessed int
	Error                string
	StartedAt            int64
	UpdatedAt            int64
}

// ProfileView records one sighting of the owner's profile being viewed.
type ProfileView struct {
	ID         string
	AccountID  string
	ViewerID   string
	ViewerName string
	ViewedAt   int64
}

// SearchResult holds a message with a search snippet.
type SearchResult struct {
	Message Message
	Snippet string
}
