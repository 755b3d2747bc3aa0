package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/inboxmirror/inboxd/internal/bus"
	"github.com/inboxmirror/inboxd/internal/provider"
	"github.com/inboxmirror/inboxd/internal/store"
	"github.com/inboxmirror/inboxd/internal/sync"
	"go.uber.org/zap"
)

// MessageImporter ingests a bulk message batch. Implemented by *sync.Importer.
type MessageImporter interface {
	Import(ctx context.Context, account *store.Account, messages []provider.Message) (*sync.ImportResult, error)
}

type accountView struct {
	ID         string `json:"id"`
	Owner      string `json:"owner"`
	Provider   string `json:"provider"`
	ExternalID string `json:"external_id"`
	Status     string `json:"status"`
	OwnerName  string `json:"owner_name,omitempty"`
}

type chatView struct {
	ID             string `json:"id"`
	ExternalID     string `json:"external_id"`
	Type           string `json:"type"`
	Name           string `json:"name,omitempty"`
	LastActivityAt int64  `json:"last_activity_at"`
	UnreadCount    int    `json:"unread_count"`
	Archived       bool   `json:"archived"`
}

type messageView struct {
	ID         string `json:"id"`
	ExternalID string `json:"external_id"`
	SenderID   string `json:"sender_id"`
	Content    string `json:"content"`
	Type       string `json:"type"`
	IsOutgoing bool   `json:"is_outgoing"`
	IsRead     bool   `json:"is_read"`
	Deleted    bool   `json:"deleted"`
	SentAt     int64  `json:"sent_at"`
}

type syncRunView struct {
	AccountID            string `json:"account_id"`
	Provider             string `json:"provider"`
	Status               string `json:"status"`
	CurrentStep          string `json:"current_step,omitempty"`
	ChatsProcessed       int    `json:"chats_processed"`
	ChatsSkipped         int    `json:"chats_skipped"`
	MessagesProcessed    int    `json:"messages_processed"`
	AttachmentsProcessed int    `json:"attachments_processed"`
	Error                string `json:"error,omitempty"`
	StartedAt            int64  `json:"started_at"`
	UpdatedAt            int64  `json:"updated_at"`
}

func (s *Server) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := s.db.ListAccounts()
	if err != nil {
		s.logger.Error("listing accounts failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	views := make([]accountView, 0, len(accounts))
	for _, a := range accounts {
		views = append(views, accountView{
			ID: a.ID, Owner: a.Owner, Provider: a.Provider,
			ExternalID: a.ExternalID, Status: a.Status, OwnerName: a.OwnerName,
		})
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleSyncStatus(w http.ResponseWriter, r *http.Request) {
	account, ok := s.lookupAccount(w, r)
	if !ok {
		return
	}
	run, err := s.db.GetSyncRun(account.ID, account.Provider)
	if err != nil {
		s.logger.Error("reading sync run failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	writeJSON(w, http.StatusOK, syncRunView{
		AccountID:            run.AccountID,
		Provider:             run.Provider,
		Status:               run.Status,
		CurrentStep:          run.CurrentStep,
		ChatsProcessed:       run.ChatsProcessed,
		ChatsSkipped:         run.ChatsSkipped,
		MessagesProcessed:    run.MessagesProcessed,
		AttachmentsProcessed: run.AttachmentsProcessed,
		Error:                run.Error,
		StartedAt:            run.StartedAt,
		UpdatedAt:            run.UpdatedAt,
	})
}

func (s *Server) handleBackfill(w http.ResponseWriter, r *http.Request) {
	account, ok := s.lookupAccount(w, r)
	if !ok {
		return
	}
	s.bus.Publish(bus.Event{
		Kind:      bus.KindBackfillRequested,
		Timestamp: time.Now(),
		Payload:   bus.BackfillRequest{AccountID: account.ID, Provider: account.Provider},
	})
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "requested"})
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	account, ok := s.lookupAccount(w, r)
	if !ok {
		return
	}

	var body struct {
		Messages []json.RawMessage `json:"messages"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if len(body.Messages) == 0 {
		writeError(w, http.StatusBadRequest, "no messages in batch")
		return
	}

	batch := make([]provider.Message, 0, len(body.Messages))
	for _, raw := range body.Messages {
		msg, err := provider.ParseMessage(raw)
		if err != nil || msg.ExternalID == "" {
			continue
		}
		batch = append(batch, msg)
	}

	result, err := s.importer.Import(r.Context(), account, batch)
	if err != nil {
		s.logger.Error("bulk import failed",
			zap.Error(err), zap.String("account_id", account.ID))
		writeError(w, http.StatusInternalServerError, "import failed")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleListChats(w http.ResponseWriter, r *http.Request) {
	account, ok := s.lookupAccount(w, r)
	if !ok {
		return
	}
	limit := queryInt(r, "limit", 50)
	offset := queryInt(r, "offset", 0)

	chats, err := s.db.ListChats(account.ID, limit, offset)
	if err != nil {
		s.logger.Error("listing chats failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	views := make([]chatView, 0, len(chats))
	for _, c := range chats {
		views = append(views, chatView{
			ID: c.ID, ExternalID: c.ExternalID, Type: c.Type, Name: c.Name,
			LastActivityAt: c.LastActivityAt, UnreadCount: c.UnreadCount, Archived: c.Archived,
		})
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	chatID := mux.Vars(r)["id"]
	before := int64(queryInt(r, "before", 0))
	limit := queryInt(r, "limit", 50)

	msgs, err := s.db.ListMessages(chatID, before, limit)
	if err != nil {
		s.logger.Error("listing messages failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	writeJSON(w, http.StatusOK, messageViews(msgs))
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	account, ok := s.lookupAccount(w, r)
	if !ok {
		return
	}
	query := r.URL.Query().Get("q")
	if query == "" {
		writeError(w, http.StatusBadRequest, "missing q parameter")
		return
	}

	results, err := s.db.SearchMessages(account.ID, query, queryInt(r, "limit", 25))
	if err != nil {
		s.logger.Error("message search failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	type hit struct {
		Message messageView `json:"message"`
		Snippet string      `json:"snippet"`
	}
	hits := make([]hit, 0, len(results))
	for _, res := range results {
		hits = append(hits, hit{Message: messageViews([]store.Message{res.Message})[0], Snippet: res.Snippet})
	}
	writeJSON(w, http.StatusOK, hits)
}

func (s *Server) handleProfileViews(w http.ResponseWriter, r *http.Request) {
	account, ok := s.lookupAccount(w, r)
	if !ok {
		return
	}
	views, err := s.db.ListProfileViews(account.ID, queryInt(r, "limit", 50))
	if err != nil {
		s.logger.Error("listing profile views failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	type viewDTO struct {
		ViewerID   string `json:"viewer_id"`
		ViewerName string `json:"viewer_name,omitempty"`
		ViewedAt   int64  `json:"viewed_at"`
	}
	out := make([]viewDTO, 0, len(views))
	for _, v := range views {
		out = append(out, viewDTO{ViewerID: v.ViewerID, ViewerName: v.ViewerName, ViewedAt: v.ViewedAt})
	}
	writeJSON(w, http.StatusOK, out)
}

// lookupAccount resolves the {id} path variable to an account row, writing
// the error response itself when the account is unknown.
func (s *Server) lookupAccount(w http.ResponseWriter, r *http.Request) (*store.Account, bool) {
	account, err := s.db.GetAccount(mux.Vars(r)["id"])
	if err != nil {
		if errors.Is(err, store.ErrAccountNotFound) {
			writeError(w, http.StatusNotFound, "unknown account")
			return nil, false
		}
		s.logger.Error("account lookup failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "query failed")
		return nil, false
	}
	return account, true
}

func messageViews(msgs []store.Message) []messageView {
	views := make([]messageView, 0, len(msgs))
	for _, m := range msgs {
		views = append(views, messageView{
			ID: m.ID, ExternalID: m.ExternalID, SenderID: m.SenderID,
			Content: m.Content, Type: m.Type, IsOutgoing: m.IsOutgoing,
			IsRead: m.IsRead, Deleted: m.Deleted, SentAt: m.SentAt,
		})
	}
	return views
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
