// Package router dispatches typed inbound events to the sync handlers,
// serialized per chat or message so duplicate deliveries cannot interleave.
package router

import (
	"context"
	"fmt"

	"github.com/inboxmirror/inboxd/internal/store"
	"go.uber.org/zap"
)

// Handler is the set of operations the router dispatches to. Implemented by
// the sync engine's real-time handler.
type Handler interface {
	HandleMessage(ctx context.Context, account *store.Account, evt *MessageEvent) error
	HandleRead(ctx context.Context, account *store.Account, messageID string) error
	HandleEdited(ctx context.Context, account *store.Account, messageID, newContent string) error
	HandleDeleted(ctx context.Context, account *store.Account, messageID string) error
	HandleAccountStatus(ctx context.Context, account *store.Account, status string) error
	HandleConnected(ctx context.Context, evt *Event) error
	HandleDisconnected(ctx context.Context, account *store.Account) error
	HandleProfileView(ctx context.Context, account *store.Account, view *ProfileViewEvent) error
}

// Router resolves the local account for an inbound event and dispatches it.
// Dispatch is synchronous: durability and redelivery belong to the caller, so
// every handler must be idempotent.
type Router struct {
	db      *store.DB
	handler Handler
	locks   *KeyedMutex
	logger  *zap.Logger
}

// New creates a router.
func New(db *store.DB, handler Handler, logger *zap.Logger) *Router {
	return &Router{
		db:      db,
		handler: handler,
		locks:   NewKeyedMutex(),
		logger:  logger,
	}
}

// Route processes one inbound event end to end. An unknown account surfaces
// store.ErrAccountNotFound to the caller and is not retried here.
func (r *Router) Route(ctx context.Context, evt *Event) error {
	if evt.Kind == KindAccountConnected {
		// The connect event is the one kind that precedes its account.
		return r.handler.HandleConnected(ctx, evt)
	}

	account, err := r.db.GetAccountByExternalID(evt.Provider, evt.AccountID)
	if err != nil {
		return fmt.Errorf("route %s: %w", evt.Kind, err)
	}

	if key := r.serializationKey(account, evt); key != "" {
		unlock := r.locks.Lock(key)
		defer unlock()
	}

	switch evt.Kind {
	case KindMessageReceived:
		if evt.Message == nil {
			return fmt.Errorf("route %s: missing message payload", evt.Kind)
		}
		return r.handler.HandleMessage(ctx, account, evt.Message)
	case KindMessageRead:
		return r.handler.HandleRead(ctx, account, evt.MessageID)
	case KindMessageEdited:
		return r.handler.HandleEdited(ctx, account, evt.MessageID, evt.NewContent)
	case KindMessageDeleted:
		return r.handler.HandleDeleted(ctx, account, evt.MessageID)
	case KindAccountStatus:
		return r.handler.HandleAccountStatus(ctx, account, evt.Status)
	case KindAccountDisconnected:
		return r.handler.HandleDisconnected(ctx, account)
	case KindProfileView:
		if evt.ProfileView == nil {
			return fmt.Errorf("route %s: missing profile view payload", evt.Kind)
		}
		return r.handler.HandleProfileView(ctx, account, evt.ProfileView)
	default:
		r.logger.Warn("unhandled event kind", zap.String("kind", string(evt.Kind)))
		return nil
	}
}

// serializationKey picks the single-flight key: chat-scoped events serialize
// on the chat, point events on the message. Account-level events need no key;
// their upserts are trivially idempotent.
func (r *Router) serializationKey(account *store.Account, evt *Event) string {
	switch evt.Kind {
	case KindMessageReceived:
		if evt.Message != nil && evt.Message.Message.ChatExternalID != "" {
			return "chat/" + account.ID + "/" + evt.Message.Message.ChatExternalID
		}
	case KindMessageRead, KindMessageEdited, KindMessageDeleted:
		return "msg/" + account.ID + "/" + evt.MessageID
	}
	return ""
}
