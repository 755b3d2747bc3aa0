package sync

import (
	"context"
	"encoding/json"
	"sync/atomic"

	"github.com/inboxmirror/inboxd/internal/config"
	"github.com/inboxmirror/inboxd/internal/provider"
	"github.com/inboxmirror/inboxd/internal/store"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ImportResult summarizes one bulk import.
type ImportResult struct {
	Imported int `json:"imported"`
	Failed   int `json:"failed"`
	Orphaned int `json:"orphaned"`
}

// Importer ingests externally exported message batches. Messages whose chat
// is not yet mirrored are stored unlinked and reconciled once the chat
// arrives through a later sync.
type Importer struct {
	db       *store.DB
	enricher *Enricher
	pipeline *Pipeline
	cfg      config.SyncConfig
	logger   *zap.Logger
}

// NewImporter creates a bulk message importer.
func NewImporter(db *store.DB, enricher *Enricher, pipeline *Pipeline, cfg config.SyncConfig, logger *zap.Logger) *Importer {
	return &Importer{db: db, enricher: enricher, pipeline: pipeline, cfg: cfg, logger: logger}
}

// Import persists the batch in chunks, messages within a chunk in parallel.
// Individual message failures are counted, not fatal; only a cancelled
// context aborts the batch.
func (im *Importer) Import(ctx context.Context, account *store.Account, messages []provider.Message) (*ImportResult, error) {
	var imported, failed, orphaned atomic.Int64

	chunkSize := im.cfg.BulkChunkSize
	if chunkSize <= 0 {
		chunkSize = 25
	}
	for start := 0; start < len(messages); start += chunkSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := start + chunkSize
		if end > len(messages) {
			end = len(messages)
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(im.concurrency())
		for _, msg := range messages[start:end] {
			msg := msg
			g.Go(func() error {
				orphan, err := im.importOne(gctx, account, msg)
				if err != nil {
					failed.Add(1)
					im.logger.Warn("bulk import message failed",
						zap.Error(err), zap.String("message_id", msg.ExternalID))
					return nil
				}
				imported.Add(1)
				if orphan {
					orphaned.Add(1)
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	}

	return &ImportResult{
		Imported: int(imported.Load()),
		Failed:   int(failed.Load()),
		Orphaned: int(orphaned.Load()),
	}, nil
}

// importOne writes a single message, linking it to its chat when the chat is
// already mirrored. Reports whether the message was stored unlinked.
func (im *Importer) importOne(ctx context.Context, account *store.Account, msg provider.Message) (bool, error) {
	row := &store.Message{
		AccountID:  account.ID,
		ExternalID: msg.ExternalID,
		SenderID:   msg.SenderID,
		Content:    msg.Content,
		Type:       classifyMessage(msg),
		IsOutgoing: isOutgoing(account, msg),
		IsRead:     msg.IsRead,
		SentAt:     msg.SentAt,
		Metadata:   msg.Raw,
	}

	if msg.SenderID != "" && (account.OwnerExternalID == "" || msg.SenderID != account.OwnerExternalID) {
		if _, err := im.enricher.Resolve(ctx, account, provider.Attendee{ExternalID: msg.SenderID}, msg.SentAt); err != nil {
			return false, err
		}
	}

	orphan := false
	if msg.ChatExternalID != "" {
		chat, err := im.db.GetChatByExternalID(account.ID, msg.ChatExternalID)
		if err != nil {
			return false, err
		}
		if chat != nil {
			row.ChatID = chat.ID
		}
	}
	if row.ChatID == "" && msg.ChatExternalID != "" {
		// Keep the chat reference recoverable for later reconciliation.
		meta, err := orphanMetadata(msg.Raw, msg.ChatExternalID)
		if err != nil {
			return false, err
		}
		row.Metadata = meta
		orphan = true
	}

	id, err := im.db.UpsertMessage(row)
	if err != nil {
		return false, err
	}

	for _, att := range msg.Attachments {
		if err := im.pipeline.Process(ctx, account, id, msg.ExternalID, att); err != nil {
			im.logger.Warn("attachment persistence failed",
				zap.Error(err),
				zap.String("message_id", msg.ExternalID),
				zap.String("attachment_id", att.ExternalID))
		}
	}
	return orphan, nil
}

// orphanMetadata embeds the unresolved chat reference into the message's raw
// provider payload so it can be linked once the chat is mirrored. A payload
// that is not a JSON object is replaced by the bare marker.
func orphanMetadata(raw, chatExternalID string) (string, error) {
	doc := map[string]any{}
	if raw != "" {
		if err := json.Unmarshal([]byte(raw), &doc); err != nil {
			doc = map[string]any{}
		}
	}
	doc["chat_external_id"] = chatExternalID
	out, err := json.Marshal(doc)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func (im *Importer) concurrency() int {
	if im.cfg.BulkConcurrency > 0 {
		return im.cfg.BulkConcurrency
	}
	return 4
}
