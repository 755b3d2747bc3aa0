package sync

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/inboxmirror/inboxd/internal/provider"
	"github.com/inboxmirror/inboxd/internal/store"
)

func testMessage(t *testing.T, db *store.DB, account *store.Account) string {
	t.Helper()
	chatID, err := db.UpsertChat(&store.Chat{
		AccountID: account.ID, ExternalID: "chat-1", Type: "direct",
	})
	if err != nil {
		t.Fatal(err)
	}
	id, err := db.UpsertMessage(&store.Message{
		AccountID: account.ID, ChatID: chatID, ExternalID: "msg-1",
		SenderID: "contact-1", Content: "hello", Type: "text", SentAt: 1000,
	})
	if err != nil {
		t.Fatal(err)
	}
	return id
}

func TestProcessUploadsToBlobStore(t *testing.T) {
	db := testDB(t)
	account := testAccount(t, db)
	msgID := testMessage(t, db, account)

	api := &fakeAPI{
		getAttachment: func(ctx context.Context, messageID, attachmentID, accountID string) (*provider.AttachmentContent, error) {
			return &provider.AttachmentContent{Data: []byte("image-bytes"), MimeType: "image/png"}, nil
		},
	}
	uploader := &fakeUploader{}
	p := NewPipeline(db, api, uploader, testLogger())

	err := p.Process(context.Background(), account, msgID, "msg-1", provider.Attachment{
		ExternalID: "att-1", Kind: "img", Filename: "photo.png",
	})
	if err != nil {
		t.Fatal(err)
	}

	rows, err := db.ListAttachments(msgID)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 {
		t.Fatalf("attachments = %d, want 1", len(rows))
	}
	if !strings.HasPrefix(rows[0].BlobURL, "https://blobs.test/") {
		t.Errorf("BlobURL = %q, want blob store URL", rows[0].BlobURL)
	}
	if len(rows[0].InlineContent) != 0 {
		t.Error("inline content must be empty when the blob upload succeeded")
	}
	if rows[0].MimeType != "image/png" {
		t.Errorf("MimeType = %q, want image/png", rows[0].MimeType)
	}
}

func TestProcessFallsBackToInlineOnUploadFailure(t *testing.T) {
	db := testDB(t)
	account := testAccount(t, db)
	msgID := testMessage(t, db, account)

	api := &fakeAPI{
		getAttachment: func(ctx context.Context, messageID, attachmentID, accountID string) (*provider.AttachmentContent, error) {
			return &provider.AttachmentContent{Data: []byte("doc-bytes"), MimeType: "application/pdf"}, nil
		},
	}
	p := NewPipeline(db, api, &fakeUploader{err: errors.New("bucket down")}, testLogger())

	err := p.Process(context.Background(), account, msgID, "msg-1", provider.Attachment{
		ExternalID: "att-1", Kind: "file", Filename: "report.pdf",
	})
	if err != nil {
		t.Fatal(err)
	}

	rows, _ := db.ListAttachments(msgID)
	if len(rows) != 1 {
		t.Fatalf("attachments = %d, want 1", len(rows))
	}
	if rows[0].BlobURL != "" {
		t.Errorf("BlobURL = %q, want empty after failed upload", rows[0].BlobURL)
	}
	if string(rows[0].InlineContent) != "doc-bytes" {
		t.Error("inline content should hold the downloaded bytes")
	}
}

func TestProcessStoresInlineWithoutBlobStore(t *testing.T) {
	db := testDB(t)
	account := testAccount(t, db)
	msgID := testMessage(t, db, account)

	api := &fakeAPI{
		getAttachment: func(ctx context.Context, messageID, attachmentID, accountID string) (*provider.AttachmentContent, error) {
			return &provider.AttachmentContent{Data: []byte("voice-bytes")}, nil
		},
	}
	p := NewPipeline(db, api, nil, testLogger())

	err := p.Process(context.Background(), account, msgID, "msg-1", provider.Attachment{
		ExternalID: "att-1", Kind: "audio",
	})
	if err != nil {
		t.Fatal(err)
	}

	rows, _ := db.ListAttachments(msgID)
	if len(rows) != 1 || string(rows[0].InlineContent) != "voice-bytes" {
		t.Fatal("attachment should be stored inline when no blob store is configured")
	}
	if rows[0].MimeType == "" {
		t.Error("mime type should be sniffed from content")
	}
}

func TestProcessKeepsMetadataWhenDownloadFails(t *testing.T) {
	db := testDB(t)
	account := testAccount(t, db)
	msgID := testMessage(t, db, account)

	// fakeAPI fails attachment downloads by default.
	p := NewPipeline(db, &fakeAPI{}, &fakeUploader{}, testLogger())

	err := p.Process(context.Background(), account, msgID, "msg-1", provider.Attachment{
		ExternalID: "att-1", Kind: "video", Filename: "clip.mp4", Size: 1234, MimeType: "video/mp4",
	})
	if err != nil {
		t.Fatal(err)
	}

	rows, _ := db.ListAttachments(msgID)
	if len(rows) != 1 {
		t.Fatalf("attachments = %d, want 1", len(rows))
	}
	row := rows[0]
	if row.BlobURL != "" || len(row.InlineContent) != 0 {
		t.Error("failed download must keep metadata only")
	}
	if row.Filename != "clip.mp4" || row.Size != 1234 || row.MimeType != "video/mp4" {
		t.Error("metadata fields should survive the failed download")
	}
}

func TestProcessUnavailableSkipsDownload(t *testing.T) {
	db := testDB(t)
	account := testAccount(t, db)
	msgID := testMessage(t, db, account)

	downloads := 0
	api := &fakeAPI{
		getAttachment: func(ctx context.Context, messageID, attachmentID, accountID string) (*provider.AttachmentContent, error) {
			downloads++
			return &provider.AttachmentContent{Data: []byte("x")}, nil
		},
	}
	p := NewPipeline(db, api, &fakeUploader{}, testLogger())

	err := p.Process(context.Background(), account, msgID, "msg-1", provider.Attachment{
		ExternalID: "att-1", Kind: "img", Unavailable: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	if downloads != 0 {
		t.Errorf("downloads = %d, want 0 for an unavailable attachment", downloads)
	}

	rows, _ := db.ListAttachments(msgID)
	if len(rows) != 1 || !rows[0].Unavailable {
		t.Fatal("unavailable attachment should persist as metadata with the flag set")
	}
}
