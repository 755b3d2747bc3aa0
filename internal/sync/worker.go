package sync

import (
	"context"
	"sync"

	"github.com/inboxmirror/inboxd/internal/bus"
	"github.com/inboxmirror/inboxd/internal/store"
	"go.uber.org/zap"
)

// BackfillWorker consumes backfill requests from the bus and runs them one
// at a time. Serial execution keeps provider rate pressure predictable.
type BackfillWorker struct {
	db         *store.DB
	bus        *bus.Bus
	backfiller *Backfiller
	logger     *zap.Logger

	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// NewBackfillWorker creates the worker. Call Start to begin consuming.
func NewBackfillWorker(db *store.DB, b *bus.Bus, backfiller *Backfiller, logger *zap.Logger) *BackfillWorker {
	return &BackfillWorker{db: db, bus: b, backfiller: backfiller, logger: logger}
}

// Start subscribes to backfill requests and processes them until Stop is
// called or the parent context ends.
func (w *BackfillWorker) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)
	w.done = make(chan struct{})

	events, unsubscribe := w.bus.Subscribe("backfill.", 16)
	go func() {
		defer close(w.done)
		defer unsubscribe()
		for {
			select {
			case <-ctx.Done():
				return
			case evt, ok := <-events:
				if !ok {
					return
				}
				w.handle(ctx, evt)
			}
		}
	}()
}

// Stop cancels the worker and waits for the in-flight run to finish.
func (w *BackfillWorker) Stop() {
	w.once.Do(func() {
		if w.cancel != nil {
			w.cancel()
		}
		if w.done != nil {
			<-w.done
		}
	})
}

func (w *BackfillWorker) handle(ctx context.Context, evt bus.Event) {
	req, ok := evt.Payload.(bus.BackfillRequest)
	if !ok {
		w.logger.Warn("dropping malformed backfill request", zap.String("kind", evt.Kind))
		return
	}

	account, err := w.db.GetAccount(req.AccountID)
	if err != nil {
		w.logger.Error("backfill request for unknown account",
			zap.Error(err), zap.String("account_id", req.AccountID))
		return
	}

	w.logger.Info("starting backfill",
		zap.String("account_id", account.ID),
		zap.String("provider", account.Provider))
	if err := w.backfiller.Run(ctx, account); err != nil {
		w.logger.Error("backfill failed",
			zap.Error(err), zap.String("account_id", account.ID))
	}
}
