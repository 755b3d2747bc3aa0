package sync

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/inboxmirror/inboxd/internal/bus"
	"github.com/inboxmirror/inboxd/internal/provider"
	"github.com/inboxmirror/inboxd/internal/router"
	"github.com/inboxmirror/inboxd/internal/store"
	"go.uber.org/zap"
)

// Handler applies routed webhook events to the local mirror. It implements
// router.Handler.
type Handler struct {
	db       *store.DB
	bus      *bus.Bus
	enricher *Enricher
	pipeline *Pipeline
	logger   *zap.Logger
}

// NewHandler creates the event handler.
func NewHandler(db *store.DB, b *bus.Bus, enricher *Enricher, pipeline *Pipeline, logger *zap.Logger) *Handler {
	return &Handler{db: db, bus: b, enricher: enricher, pipeline: pipeline, logger: logger}
}

// HandleMessage ingests one inbound message together with its chat context.
// The message row is written before its attachments so a failed attachment
// never loses the message.
func (h *Handler) HandleMessage(ctx context.Context, account *store.Account, evt *router.MessageEvent) error {
	msg := evt.Message

	chatType := "direct"
	if evt.IsGroup {
		chatType = "group"
	}
	chatID, err := h.db.UpsertChat(&store.Chat{
		AccountID:      account.ID,
		ExternalID:     msg.ChatExternalID,
		Type:           chatType,
		Name:           evt.ChatName,
		LastActivityAt: msg.SentAt,
	})
	if err != nil {
		return fmt.Errorf("upserting chat %s: %w", msg.ChatExternalID, err)
	}

	for _, att := range evt.Attendees {
		if err := h.syncAttendee(ctx, account, chatID, att, msg.SentAt); err != nil {
			return err
		}
	}

	if _, err := h.upsertMessage(ctx, account, chatID, msg); err != nil {
		return err
	}

	eventsProcessed.WithLabelValues(string(router.KindMessageReceived)).Inc()
	h.publishMessage(account.ID, msg.ExternalID)
	return nil
}

// HandleRead marks a mirrored message read.
func (h *Handler) HandleRead(ctx context.Context, account *store.Account, messageID string) error {
	if err := h.db.MarkMessageRead(account.ID, messageID); err != nil {
		return err
	}
	eventsProcessed.WithLabelValues(string(router.KindMessageRead)).Inc()
	h.publishMessage(account.ID, messageID)
	return nil
}

// HandleEdited replaces a mirrored message's content.
func (h *Handler) HandleEdited(ctx context.Context, account *store.Account, messageID, newContent string) error {
	if err := h.db.UpdateMessageContent(account.ID, messageID, newContent); err != nil {
		return err
	}
	eventsProcessed.WithLabelValues(string(router.KindMessageEdited)).Inc()
	h.publishMessage(account.ID, messageID)
	return nil
}

// HandleDeleted tombstones a mirrored message.
func (h *Handler) HandleDeleted(ctx context.Context, account *store.Account, messageID string) error {
	if err := h.db.MarkMessageDeleted(account.ID, messageID); err != nil {
		return err
	}
	eventsProcessed.WithLabelValues(string(router.KindMessageDeleted)).Inc()
	h.publishMessage(account.ID, messageID)
	return nil
}

// HandleAccountStatus records an upstream account status transition.
func (h *Handler) HandleAccountStatus(ctx context.Context, account *store.Account, status string) error {
	mapped := normalizeStatus(status)
	if err := h.db.SetAccountStatus(account.ID, mapped); err != nil {
		return err
	}
	eventsProcessed.WithLabelValues(string(router.KindAccountStatus)).Inc()
	h.bus.Publish(bus.Event{
		Kind:      bus.KindAccountStatus,
		Timestamp: time.Now(),
		Payload:   map[string]string{"account_id": account.ID, "status": mapped},
	})
	return nil
}

// HandleConnected registers (or revives) the account and requests a backfill.
func (h *Handler) HandleConnected(ctx context.Context, evt *router.Event) error {
	id, err := h.db.UpsertAccount(&store.Account{
		Owner:      evt.Owner,
		Provider:   evt.Provider,
		ExternalID: evt.AccountID,
		Status:     store.AccountConnected,
	})
	if err != nil {
		return fmt.Errorf("upserting account %s: %w", evt.AccountID, err)
	}
	eventsProcessed.WithLabelValues(string(router.KindAccountConnected)).Inc()
	h.bus.Publish(bus.Event{
		Kind:      bus.KindBackfillRequested,
		Timestamp: time.Now(),
		Payload:   bus.BackfillRequest{AccountID: id, Provider: evt.Provider},
	})
	return nil
}

// HandleDisconnected soft-deletes the account. Mirrored data stays in place
// and the row revives if the account reconnects.
func (h *Handler) HandleDisconnected(ctx context.Context, account *store.Account) error {
	if err := h.db.SoftDeleteAccount(account.ID); err != nil {
		return err
	}
	eventsProcessed.WithLabelValues(string(router.KindAccountDisconnected)).Inc()
	h.bus.Publish(bus.Event{
		Kind:      bus.KindAccountStatus,
		Timestamp: time.Now(),
		Payload:   map[string]string{"account_id": account.ID, "status": store.AccountDisconnected},
	})
	return nil
}

// HandleProfileView records a profile view sighting. Duplicate sightings are
// absorbed by the store.
func (h *Handler) HandleProfileView(ctx context.Context, account *store.Account, view *router.ProfileViewEvent) error {
	if err := h.db.InsertProfileView(&store.ProfileView{
		AccountID:  account.ID,
		ViewerID:   view.ViewerID,
		ViewerName: view.ViewerName,
		ViewedAt:   view.ViewedAt,
	}); err != nil {
		return err
	}
	eventsProcessed.WithLabelValues(string(router.KindProfileView)).Inc()
	return nil
}

// syncAttendee upserts one chat participant. The owner is never turned into
// a Contact; everybody else is resolved through the enricher.
func (h *Handler) syncAttendee(ctx context.Context, account *store.Account, chatID string, att provider.Attendee, interactedAt int64) error {
	row := &store.Attendee{
		ChatID:     chatID,
		ExternalID: att.ExternalID,
		IsSelf:     att.IsSelf,
		Hidden:     att.Hidden,
	}
	if att.IsSelf || (account.OwnerExternalID != "" && att.ExternalID == account.OwnerExternalID) {
		row.IsSelf = true
		_, err := h.db.UpsertAttendee(row)
		return err
	}

	contactID, err := h.enricher.Resolve(ctx, account, att, interactedAt)
	if err != nil {
		return fmt.Errorf("resolving contact %s: %w", att.ExternalID, err)
	}
	row.ContactID = contactID
	_, err = h.db.UpsertAttendee(row)
	return err
}

// upsertMessage writes the message row then pushes its attachments through
// the pipeline. Attachment failures are logged, not propagated.
func (h *Handler) upsertMessage(ctx context.Context, account *store.Account, chatID string, msg provider.Message) (string, error) {
	id, err := h.db.UpsertMessage(&store.Message{
		AccountID:  account.ID,
		ChatID:     chatID,
		ExternalID: msg.ExternalID,
		SenderID:   msg.SenderID,
		Content:    msg.Content,
		Type:       classifyMessage(msg),
		IsOutgoing: isOutgoing(account, msg),
		IsRead:     msg.IsRead,
		SentAt:     msg.SentAt,
		Metadata:   msg.Raw,
	})
	if err != nil {
		return "", fmt.Errorf("upserting message %s: %w", msg.ExternalID, err)
	}

	for _, att := range msg.Attachments {
		if err := h.pipeline.Process(ctx, account, id, msg.ExternalID, att); err != nil {
			h.logger.Warn("attachment persistence failed",
				zap.Error(err),
				zap.String("message_id", msg.ExternalID),
				zap.String("attachment_id", att.ExternalID))
		}
	}
	return id, nil
}

func (h *Handler) publishMessage(accountID, messageExternalID string) {
	h.bus.Publish(bus.Event{
		Kind:      bus.KindMessageUpserted,
		Timestamp: time.Now(),
		Payload:   map[string]string{"account_id": accountID, "message_id": messageExternalID},
	})
}

// classifyMessage picks the message type: an explicit type wins, then the
// first attachment's kind when there is no text, then plain text.
func classifyMessage(msg provider.Message) string {
	if msg.Type != "" {
		return msg.Type
	}
	if msg.Content == "" && len(msg.Attachments) > 0 {
		return msg.Attachments[0].Kind
	}
	return "text"
}

// isOutgoing resolves message direction: the payload's explicit indicator
// wins, otherwise the sender is compared against the account owner.
func isOutgoing(account *store.Account, msg provider.Message) bool {
	if msg.IsOutgoing != nil {
		return *msg.IsOutgoing
	}
	return account.OwnerExternalID != "" && msg.SenderID == account.OwnerExternalID
}

func normalizeStatus(status string) string {
	switch strings.ToLower(status) {
	case "ok", "connected", "up":
		return store.AccountConnected
	case "disconnected", "logged_out":
		return store.AccountDisconnected
	default:
		return store.AccountError
	}
}
