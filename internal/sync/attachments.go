package sync

import (
	"context"
	"fmt"

	"github.com/gabriel-vasile/mimetype"
	"github.com/inboxmirror/inboxd/internal/blob"
	"github.com/inboxmirror/inboxd/internal/provider"
	"github.com/inboxmirror/inboxd/internal/store"
	"go.uber.org/zap"
)

// Storage tiers reported by the attachments_persisted metric.
const (
	tierBlob     = "blob"
	tierInline   = "inline"
	tierMetadata = "metadata"
)

// Pipeline persists message attachments, degrading gracefully through storage
// tiers: blob store, inline database copy, then metadata-only.
type Pipeline struct {
	db     *store.DB
	api    ProviderAPI
	blobs  blob.Uploader // nil when no blob store is configured
	logger *zap.Logger
}

// NewPipeline creates an attachment persistence pipeline.
func NewPipeline(db *store.DB, api ProviderAPI, blobs blob.Uploader, logger *zap.Logger) *Pipeline {
	return &Pipeline{db: db, api: api, blobs: blobs, logger: logger}
}

// Process persists one attachment of a stored message. The attachment row is
// always written: when the provider flags it unavailable or the download
// fails only the metadata survives, and when the blob upload fails the
// content is kept inline instead.
func (p *Pipeline) Process(ctx context.Context, account *store.Account, messageID, messageExternalID string, att provider.Attachment) error {
	row := &store.Attachment{
		MessageID:   messageID,
		ExternalID:  att.ExternalID,
		Kind:        att.Kind,
		SourceURL:   att.URL,
		Filename:    att.Filename,
		Size:        att.Size,
		MimeType:    att.MimeType,
		Unavailable: att.Unavailable,
	}

	if att.Unavailable {
		return p.persist(row, tierMetadata)
	}

	content, err := p.api.GetMessageAttachment(ctx, messageExternalID, att.ExternalID, account.ExternalID)
	if err != nil {
		p.logger.Warn("attachment download failed, keeping metadata only",
			zap.Error(err),
			zap.String("attachment_id", att.ExternalID),
			zap.String("message_id", messageExternalID))
		return p.persist(row, tierMetadata)
	}

	row.Size = int64(len(content.Data))
	if row.MimeType == "" {
		row.MimeType = content.MimeType
	}
	if row.MimeType == "" {
		row.MimeType = mimetype.Detect(content.Data).String()
	}

	if p.blobs != nil {
		key := blob.Key(messageID, row.Filename, row.MimeType)
		url, err := p.blobs.Upload(ctx, key, content.Data, row.MimeType, map[string]string{
			"account":    account.ExternalID,
			"message":    messageExternalID,
			"attachment": att.ExternalID,
		})
		if err == nil {
			row.BlobURL = url
			return p.persist(row, tierBlob)
		}
		p.logger.Warn("blob upload failed, storing attachment inline",
			zap.Error(err),
			zap.String("attachment_id", att.ExternalID),
			zap.String("key", key))
	}

	row.InlineContent = content.Data
	return p.persist(row, tierInline)
}

func (p *Pipeline) persist(row *store.Attachment, tier string) error {
	if _, err := p.db.UpsertAttachment(row); err != nil {
		return fmt.Errorf("persisting attachment %s: %w", row.ExternalID, err)
	}
	attachmentsPersisted.WithLabelValues(tier).Inc()
	return nil
}
