package sync

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/inboxmirror/inboxd/internal/provider"
	"github.com/inboxmirror/inboxd/internal/store"
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
		Owner:           "user-1",
		Provider:        "linkedin",
		ExternalID:      "acc-ext-1",
		Status:          store.AccountConnected,
		OwnerExternalID: "owner-1",
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

// fakeAPI implements ProviderAPI through overridable function fields. Nil
// fields yield empty results; profile lookups fail unless overridden.
type fakeAPI struct {
	testConnectivity func(ctx context.Context, accountID string) error
	listChats        func(ctx context.Context, accountID, cursor string, limit int) (*provider.ChatPage, error)
	listAttendees    func(ctx context.Context, chatID, accountID string, limit int) ([]provider.Attendee, error)
	listMessages     func(ctx context.Context, chatID, accountID, cursor string, limit int) (*provider.MessagePage, error)
	getAttachment    func(ctx context.Context, messageID, attachmentID, accountID string) (*provider.AttachmentContent, error)
	getProfile       func(ctx context.Context, identity, accountID string) (*provider.Profile, error)
	getOwnProfile    func(ctx context.Context, accountID string) (*provider.Profile, error)
}

func (f *fakeAPI) TestConnectivity(ctx context.Context, accountID string) error {
	if f.testConnectivity == nil {
		return nil
	}
	return f.testConnectivity(ctx, accountID)
}

func (f *fakeAPI) ListChats(ctx context.Context, accountID, cursor string, limit int) (*provider.ChatPage, error) {
	if f.listChats == nil {
		return &provider.ChatPage{}, nil
	}
	return f.listChats(ctx, accountID, cursor, limit)
}

func (f *fakeAPI) ListChatAttendees(ctx context.Context, chatID, accountID string, limit int) ([]provider.Attendee, error) {
	if f.listAttendees == nil {
		return nil, nil
	}
	return f.listAttendees(ctx, chatID, accountID, limit)
}

func (f *fakeAPI) ListChatMessages(ctx context.Context, chatID, accountID, cursor string, limit int) (*provider.MessagePage, error) {
	if f.listMessages == nil {
		return &provider.MessagePage{}, nil
	}
	return f.listMessages(ctx, chatID, accountID, cursor, limit)
}

func (f *fakeAPI) GetMessageAttachment(ctx context.Context, messageID, attachmentID, accountID string) (*provider.AttachmentContent, error) {
	if f.getAttachment == nil {
		return nil, errors.New("no attachment content")
	}
	return f.getAttachment(ctx, messageID, attachmentID, accountID)
}

func (f *fakeAPI) GetProfile(ctx context.Context, identity, accountID string) (*provider.Profile, error) {
	if f.getProfile == nil {
		return nil, errors.New("profile endpoint unavailable")
	}
	return f.getProfile(ctx, identity, accountID)
}

func (f *fakeAPI) GetOwnProfile(ctx context.Context, accountID string) (*provider.Profile, error) {
	if f.getOwnProfile == nil {
		return nil, errors.New("own profile endpoint unavailable")
	}
	return f.getOwnProfile(ctx, accountID)
}

// fakeUploader records uploads and can be told to fail.
type fakeUploader struct {
	err  error
	keys []string
}

func (u *fakeUploader) Upload(ctx context.Context, key string, data []byte, mimeType string, metadata map[string]string) (string, error) {
	if u.err != nil {
		return "", u.err
	}
	u.keys = append(u.keys, key)
	return "https://blobs.test/" + key, nil
}

func testLogger() *zap.Logger {
	return zap.NewNop()
}
