package sync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/inboxmirror/inboxd/internal/config"
	"github.com/inboxmirror/inboxd/internal/provider"
	"github.com/inboxmirror/inboxd/internal/store"
	"go.uber.org/zap"
)

// Backfill run states.
type runState string

const (
	stateIdle         runState = "idle"
	stateConnectivity runState = "connectivity_check"
	stateChatPage     runState = "chat_page"
	stateCompleted    runState = "completed"
	stateFailed       runState = "failed"
)

var validTransitions = map[runState][]runState{
	stateIdle:         {stateConnectivity},
	stateConnectivity: {stateChatPage, stateCompleted},
	stateChatPage:     {stateChatPage, stateCompleted},
}

// stateMachine enforces the backfill run's state progression.
type stateMachine struct {
	mu      sync.Mutex
	current runState
}

func newStateMachine() *stateMachine {
	return &stateMachine{current: stateIdle}
}

func (m *stateMachine) to(next runState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, allowed := range validTransitions[m.current] {
		if allowed == next {
			m.current = next
			return nil
		}
	}
	return fmt.Errorf("invalid state transition %s -> %s", m.current, next)
}

// fail marks the run failed. Reachable from every state, terminal.
func (m *stateMachine) fail() {
	m.mu.Lock()
	m.current = stateFailed
	m.mu.Unlock()
}

// Content types that mark a chat as organizational outreach.
var orgContentTypes = map[string]bool{
	"sponsored": true,
	"inmail_ad": true,
	"broadcast": true,
}

// Backfiller replays an account's historical chats and messages into the
// mirror through cursored provider pagination.
type Backfiller struct {
	db       *store.DB
	api      ProviderAPI
	pipeline *Pipeline
	enricher *Enricher
	tracker  *Tracker
	cfg      config.SyncConfig
	warmup   time.Duration
	logger   *zap.Logger
}

// NewBackfiller creates a historical backfill engine.
func NewBackfiller(db *store.DB, api ProviderAPI, pipeline *Pipeline, enricher *Enricher, tracker *Tracker, cfg config.SyncConfig, warmup time.Duration, logger *zap.Logger) *Backfiller {
	return &Backfiller{
		db:       db,
		api:      api,
		pipeline: pipeline,
		enricher: enricher,
		tracker:  tracker,
		cfg:      cfg,
		warmup:   warmup,
		logger:   logger,
	}
}

// Run executes one full backfill for the account. A failed connectivity
// probe aborts the run; a failed fetch for an individual chat does not.
func (b *Backfiller) Run(ctx context.Context, account *store.Account) error {
	state := newStateMachine()
	if err := b.tracker.Start(account.ID, account.Provider); err != nil {
		return fmt.Errorf("starting sync run: %w", err)
	}

	// Providers need a moment after connecting before history is servable.
	if b.warmup > 0 {
		select {
		case <-time.After(b.warmup):
		case <-ctx.Done():
			b.tracker.Fail(account.ID, account.Provider, ctx.Err().Error())
			return ctx.Err()
		}
	}

	if err := state.to(stateConnectivity); err != nil {
		b.tracker.Fail(account.ID, account.Provider, err.Error())
		return err
	}
	if err := b.api.TestConnectivity(ctx, account.ExternalID); err != nil {
		state.fail()
		b.tracker.Fail(account.ID, account.Provider, err.Error())
		var connErr *provider.ConnectivityError
		if errors.As(err, &connErr) {
			return err
		}
		return &provider.ConnectivityError{AccountID: account.ExternalID, Err: err}
	}

	run := &store.SyncRun{
		AccountID:   account.ID,
		Provider:    account.Provider,
		Status:      store.SyncSyncing,
		CurrentStep: string(stateChatPage),
	}

	cursor := ""
	for {
		remaining := b.cfg.ChatLimit - run.ChatsProcessed - run.ChatsSkipped
		if remaining <= 0 {
			break
		}
		limit := b.cfg.ChatPageSize
		if remaining < limit {
			limit = remaining
		}

		if err := state.to(stateChatPage); err != nil {
			b.tracker.Fail(account.ID, account.Provider, err.Error())
			return err
		}
		page, err := b.api.ListChats(ctx, account.ExternalID, cursor, limit)
		if err != nil {
			state.fail()
			b.tracker.Fail(account.ID, account.Provider, err.Error())
			return fmt.Errorf("listing chats for account %s: %w", account.ExternalID, err)
		}

		for _, chat := range page.Chats {
			if !b.cfg.IncludeOrgContent && isOrgChat(chat) {
				run.ChatsSkipped++
				backfillChatsSkipped.Inc()
				continue
			}
			if err := b.syncChat(ctx, account, run, chat); err != nil {
				state.fail()
				b.tracker.Fail(account.ID, account.Provider, err.Error())
				return err
			}
			run.ChatsProcessed++
			backfillChats.Inc()
		}
		b.tracker.Progress(run)

		cursor = page.Cursor
		if cursor == "" || len(page.Chats) == 0 || b.cfg.SinglePage {
			break
		}
	}

	if err := state.to(stateCompleted); err != nil {
		b.tracker.Fail(account.ID, account.Provider, err.Error())
		return err
	}
	b.tracker.Complete(account.ID, account.Provider)
	b.logger.Info("backfill completed",
		zap.String("account_id", account.ID),
		zap.Int("chats", run.ChatsProcessed),
		zap.Int("chats_skipped", run.ChatsSkipped),
		zap.Int("messages", run.MessagesProcessed))
	return nil
}

// syncChat mirrors one chat: the chat row, its attendees and its message
// history. Fetch failures inside the chat are logged and skipped so one bad
// chat cannot sink the run; store failures propagate.
func (b *Backfiller) syncChat(ctx context.Context, account *store.Account, run *store.SyncRun, chat provider.Chat) error {
	chatID, err := b.db.UpsertChat(&store.Chat{
		AccountID:        account.ID,
		ExternalID:       chat.ExternalID,
		Type:             chatType(chat),
		Name:             chat.Name,
		LastActivityAt:   chat.LastActivityAt,
		UnreadCount:      chat.UnreadCount,
		Archived:         chat.Archived,
		ReadOnly:         chat.ReadOnly,
		ProviderMetadata: chat.Raw,
	})
	if err != nil {
		return fmt.Errorf("upserting chat %s: %w", chat.ExternalID, err)
	}
	if _, err := b.db.AttachOrphanMessages(account.ID, chat.ExternalID, chatID); err != nil {
		return fmt.Errorf("linking orphan messages to chat %s: %w", chat.ExternalID, err)
	}

	if err := b.syncAttendees(ctx, account, chatID, chat); err != nil {
		return err
	}
	return b.syncMessages(ctx, account, run, chatID, chat)
}

func (b *Backfiller) syncAttendees(ctx context.Context, account *store.Account, chatID string, chat provider.Chat) error {
	attendees, err := b.api.ListChatAttendees(ctx, chat.ExternalID, account.ExternalID, b.cfg.AttendeeLimit)
	if err != nil {
		b.logger.Warn("attendee fetch failed, continuing without participants",
			zap.Error(err), zap.String("chat_id", chat.ExternalID))
		return nil
	}

	for _, att := range attendees {
		row := &store.Attendee{
			ChatID:     chatID,
			ExternalID: att.ExternalID,
			IsSelf:     att.IsSelf,
			Hidden:     att.Hidden,
		}
		if att.IsSelf || (account.OwnerExternalID != "" && att.ExternalID == account.OwnerExternalID) {
			row.IsSelf = true
			b.enricher.RefreshOwner(ctx, account)
		} else {
			contactID, err := b.enricher.Resolve(ctx, account, att, chat.LastActivityAt)
			if err != nil {
				return fmt.Errorf("resolving contact %s: %w", att.ExternalID, err)
			}
			row.ContactID = contactID
		}
		if _, err := b.db.UpsertAttendee(row); err != nil {
			return fmt.Errorf("upserting attendee %s: %w", att.ExternalID, err)
		}
	}
	return nil
}

func (b *Backfiller) syncMessages(ctx context.Context, account *store.Account, run *store.SyncRun, chatID string, chat provider.Chat) error {
	cursor := ""
	fetched := 0
	for fetched < b.cfg.MessageLimit {
		limit := b.cfg.MessagePageSize
		if rest := b.cfg.MessageLimit - fetched; rest < limit {
			limit = rest
		}
		page, err := b.api.ListChatMessages(ctx, chat.ExternalID, account.ExternalID, cursor, limit)
		if err != nil {
			b.logger.Warn("message fetch failed, continuing with partial history",
				zap.Error(err), zap.String("chat_id", chat.ExternalID))
			return nil
		}

		for _, msg := range page.Messages {
			id, err := b.db.UpsertMessage(&store.Message{
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
				return fmt.Errorf("upserting message %s: %w", msg.ExternalID, err)
			}
			run.MessagesProcessed++
			backfillMessages.Inc()

			for _, att := range msg.Attachments {
				if err := b.pipeline.Process(ctx, account, id, msg.ExternalID, att); err != nil {
					b.logger.Warn("attachment persistence failed",
						zap.Error(err),
						zap.String("message_id", msg.ExternalID),
						zap.String("attachment_id", att.ExternalID))
					continue
				}
				run.AttachmentsProcessed++
			}
		}

		fetched += len(page.Messages)
		cursor = page.Cursor
		if cursor == "" || len(page.Messages) == 0 || b.cfg.SinglePage {
			break
		}
	}
	return nil
}

// isOrgChat reports whether a chat is organizational outreach rather than a
// person-to-person conversation.
func isOrgChat(chat provider.Chat) bool {
	if chat.OrganizationID != "" {
		return true
	}
	if orgContentTypes[chat.ContentType] {
		return true
	}
	return provider.IsOrgURN(chat.SenderID)
}

func chatType(chat provider.Chat) string {
	if chat.Type != "" {
		return chat.Type
	}
	return "direct"
}
