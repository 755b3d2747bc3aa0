package sync

import (
	"context"
	"time"

	"github.com/inboxmirror/inboxd/internal/provider"
	"github.com/inboxmirror/inboxd/internal/store"
	"go.uber.org/zap"
)

// Enricher resolves bare external identities into Contact rows, best-effort
// augmented with a detailed profile lookup. Enrichment failure never fails
// the caller: the contact is built from the inline event data instead.
type Enricher struct {
	db           *store.DB
	api          ProviderAPI
	logger       *zap.Logger
	refreshEvery time.Duration
	now          func() time.Time
}

// NewEnricher creates a contact enrichment resolver. refreshEvery bounds how
// often the account owner's own profile is re-fetched.
func NewEnricher(db *store.DB, api ProviderAPI, refreshEvery time.Duration, logger *zap.Logger) *Enricher {
	if refreshEvery <= 0 {
		refreshEvery = 24 * time.Hour
	}
	return &Enricher{
		db:           db,
		api:          api,
		logger:       logger,
		refreshEvery: refreshEvery,
		now:          time.Now,
	}
}

// Resolve upserts the contact for one attendee and returns its row id.
// lastInteraction, when non-zero, advances the contact's last interaction
// timestamp. Only the store write can fail.
func (e *Enricher) Resolve(ctx context.Context, account *store.Account, att provider.Attendee, lastInteraction int64) (string, error) {
	contact := &store.Contact{
		AccountID:         account.ID,
		ExternalID:        att.ExternalID,
		FirstName:         att.FirstName,
		LastName:          att.LastName,
		DisplayName:       att.DisplayName,
		Headline:          att.Headline,
		AvatarURL:         att.AvatarURL,
		NetworkDistance:   att.NetworkDistance,
		IsConnection:      att.IsConnection,
		LastInteractionAt: lastInteraction,
	}

	profile, err := e.api.GetProfile(ctx, att.ExternalID, account.ExternalID)
	if err != nil {
		e.logger.Warn("profile enrichment failed, using inline data",
			zap.Error(err),
			zap.String("identity", att.ExternalID),
			zap.String("account_id", account.ID))
		enrichmentFallbacks.Inc()
	} else {
		contact.FirstName = profile.FirstName
		contact.LastName = profile.LastName
		contact.DisplayName = profile.DisplayName
		contact.Headline = profile.Headline
		contact.AvatarURL = profile.AvatarURL
		contact.NetworkDistance = profile.NetworkDistance
		contact.IsConnection = profile.IsConnection
		contact.Enriched = true
		contact.EnrichmentPayload = profile.Raw
	}

	return e.db.UpsertContact(contact)
}

// RefreshOwner re-fetches the account owner's own profile, at most once per
// rolling refresh window. The owner is written onto the account row and is
// never modeled as a Contact. Failures are logged and swallowed.
func (e *Enricher) RefreshOwner(ctx context.Context, account *store.Account) {
	age := e.now().UnixMilli() - account.OwnerSyncedAt
	if account.OwnerSyncedAt > 0 && age < e.refreshEvery.Milliseconds() {
		return
	}

	profile, err := e.api.GetOwnProfile(ctx, account.ExternalID)
	if err != nil {
		e.logger.Warn("owner profile refresh failed",
			zap.Error(err), zap.String("account_id", account.ID))
		return
	}

	name := profile.DisplayName
	if err := e.db.SetOwnerProfile(account.ID, profile.ExternalID, name, profile.Raw); err != nil {
		e.logger.Warn("failed to persist owner profile",
			zap.Error(err), zap.String("account_id", account.ID))
		return
	}
	account.OwnerExternalID = profile.ExternalID
	account.OwnerName = name
	account.OwnerSyncedAt = e.now().UnixMilli()
}
