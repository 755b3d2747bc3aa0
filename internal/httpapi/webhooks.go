package httpapi

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/inboxmirror/inboxd/internal/provider"
	"github.com/inboxmirror/inboxd/internal/router"
	"github.com/inboxmirror/inboxd/internal/store"
	"github.com/santhosh-tekuri/jsonschema/v6"
	"go.uber.org/zap"
)

//go:embed webhook_schema.json
var webhookSchemaJSON []byte

// compileWebhookSchema compiles the embedded webhook schema once at startup.
func compileWebhookSchema() (*jsonschema.Schema, error) {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(webhookSchemaJSON))
	if err != nil {
		return nil, fmt.Errorf("decode webhook schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("webhook.json", doc); err != nil {
		return nil, fmt.Errorf("add webhook schema: %w", err)
	}
	schema, err := compiler.Compile("webhook.json")
	if err != nil {
		return nil, fmt.Errorf("compile webhook schema: %w", err)
	}
	return schema, nil
}

// webhookPayload is the raw inbound event envelope. The nested message and
// attendee objects keep their original shape for the boundary parsers.
type webhookPayload struct {
	Type      string            `json:"type"`
	AccountID string            `json:"account_id"`
	Owner     string            `json:"owner"`
	Status    string            `json:"status"`
	MessageID string            `json:"message_id"`
	Content   string            `json:"content"`
	IsGroup   bool              `json:"is_group"`
	ChatName  string            `json:"chat_name"`
	Message   json.RawMessage   `json:"message"`
	Attendees []json.RawMessage `json:"attendees"`
	Viewer    *struct {
		ID       string `json:"id"`
		Name     string `json:"name"`
		ViewedAt any    `json:"viewed_at"`
	} `json:"viewer"`
}

// handleWebhook validates, decodes and routes one provider webhook delivery.
// 204 signals the provider to stop redelivering; 4xx signals a permanently
// bad or unroutable event.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	providerName := mux.Vars(r)["provider"]

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable body")
		return
	}

	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(body))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if err := s.schema.Validate(inst); err != nil {
		s.logger.Warn("webhook rejected by schema",
			zap.Error(err), zap.String("provider", providerName))
		writeError(w, http.StatusBadRequest, "payload does not match webhook schema")
		return
	}

	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	evt, err := buildEvent(providerName, &payload)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.router.Route(r.Context(), evt); err != nil {
		if errors.Is(err, store.ErrAccountNotFound) {
			writeError(w, http.StatusGone, "unknown account")
			return
		}
		s.logger.Error("webhook routing failed",
			zap.Error(err), zap.String("kind", string(evt.Kind)))
		writeError(w, http.StatusInternalServerError, "event processing failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// buildEvent maps the validated envelope onto a router event, running the
// nested payloads through the boundary parsers.
func buildEvent(providerName string, p *webhookPayload) (*router.Event, error) {
	evt := &router.Event{
		Kind:       router.Kind(p.Type),
		AccountID:  p.AccountID,
		Provider:   providerName,
		MessageID:  p.MessageID,
		NewContent: p.Content,
		Status:     p.Status,
		Owner:      p.Owner,
	}

	switch evt.Kind {
	case router.KindMessageReceived:
		msg, err := provider.ParseMessage(p.Message)
		if err != nil {
			return nil, fmt.Errorf("invalid message payload: %w", err)
		}
		if msg.ExternalID == "" {
			return nil, errors.New("message payload has no id")
		}
		me := &router.MessageEvent{
			Message:  msg,
			IsGroup:  p.IsGroup,
			ChatName: p.ChatName,
		}
		for _, raw := range p.Attendees {
			att, err := provider.ParseAttendee(raw)
			if err != nil || att.ExternalID == "" {
				continue
			}
			me.Attendees = append(me.Attendees, att)
		}
		evt.Message = me
	case router.KindProfileView:
		evt.ProfileView = &router.ProfileViewEvent{
			ViewerID:   p.Viewer.ID,
			ViewerName: p.Viewer.Name,
			ViewedAt:   provider.ParseTimestamp(p.Viewer.ViewedAt),
		}
	}
	return evt, nil
}

// EventRouter dispatches one inbound event. Implemented by *router.Router.
type EventRouter interface {
	Route(ctx context.Context, evt *router.Event) error
}
