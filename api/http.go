// Package api exposes the messaging engine over HTTP with JSON bodies.
// It is thin glue: request decoding, validation, and error mapping only.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"matchwire/domain"
	apperrors "matchwire/errors"
	"matchwire/live"
	"matchwire/repositories"
	"matchwire/services"
)

// accountHeader carries the authenticated account for the request. Auth
// itself is terminated upstream.
const accountHeader = "X-Account-Id"

const defaultPageSize = 20

type Server struct {
	chat          services.IChatService
	notifications *repositories.NotificationRepository
	live          *live.Registry
	sinkBuffer    int
	validate      *validator.Validate
	log           *slog.Logger
}

func NewServer(chat services.IChatService, notifications *repositories.NotificationRepository, registry *live.Registry, sinkBuffer int, log *slog.Logger) *Server {
	return &Server{
		chat:          chat,
		notifications: notifications,
		live:          registry,
		sinkBuffer:    sinkBuffer,
		validate:      validator.New(validator.WithRequiredStructEnabled()),
		log:           log,
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("POST /threads", s.handleCreateThread)
	mux.HandleFunc("GET /threads", s.handleListThreads)
	mux.HandleFunc("GET /threads/{id}", s.handleGetThread)
	mux.HandleFunc("POST /messages", s.handleSendMessage)
	mux.HandleFunc("GET /threads/{id}/messages", s.handleListMessages)
	mux.HandleFunc("POST /threads/{id}/read", s.handleMarkRead)
	mux.HandleFunc("GET /notifications", s.handleListNotifications)
	mux.HandleFunc("GET /live", s.handleLive)
	return mux
}

// handleLive streams the caller's live events as server-sent events. The
// connection is the account's session: registering replaces any previous
// sink, and disconnecting takes the account offline.
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	sink := live.NewChannelSink(s.sinkBuffer)
	s.live.Register(actor, sink)
	defer s.live.Unregister(actor)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case event := <-sink.Events:
			payload, err := json.Marshal(event.Payload)
			if err != nil {
				s.log.Warn("dropping unencodable live event", "event", event.Event, "error", err)
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Event, payload)
			flusher.Flush()
		}
	}
}

type createThreadPayload struct {
	Participants []string `json:"participants" validate:"required,min=2,dive,required"`
	// EffectiveAccountID names the account charged for the new chat. When
	// empty the second participant is the initiator.
	EffectiveAccountID string `json:"effective_account_id"`
}

type threadResponse struct {
	ID            string  `json:"id"`
	ParticipantA  string  `json:"participant_a"`
	ParticipantB  string  `json:"participant_b"`
	LastMessageAt string  `json:"last_message_at"`
	CreatedAt     string  `json:"created_at"`
	DisplayName   *string `json:"display_name,omitempty"`
	PhotoURL      *string `json:"photo_url,omitempty"`
}

func (s *Server) handleCreateThread(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	if _, ok := s.actor(w, r); !ok {
		return
	}
	var payload createThreadPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "invalid json payload", http.StatusBadRequest)
		return
	}
	if err := s.validate.Struct(payload); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	participants := make([]domain.AccountID, 0, len(payload.Participants))
	for _, p := range payload.Participants {
		participants = append(participants, domain.AccountID(p))
	}
	var effective *domain.AccountID
	if payload.EffectiveAccountID != "" {
		id := domain.AccountID(payload.EffectiveAccountID)
		effective = &id
	}
	thread, created, err := s.chat.CreateThread(r.Context(), participants, effective)
	if err != nil {
		s.httpError(w, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, toThreadResponse(thread, nil))
}

func (s *Server) handleListThreads(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	cursor, limit, ok := s.page(w, r)
	if !ok {
		return
	}

	views, next, hasMore, err := s.chat.ListThreads(r.Context(), actor, cursor, limit)
	if err != nil {
		s.httpError(w, err)
		return
	}
	items := make([]threadResponse, 0, len(views))
	for _, v := range views {
		items = append(items, toThreadResponse(v.Thread, v.Profile))
	}
	writeJSON(w, http.StatusOK, pageResponse[threadResponse]{
		Items:      items,
		NextCursor: encodeCursor(next),
		HasMore:    hasMore,
	})
}

func (s *Server) handleGetThread(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	threadID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, "invalid thread id", http.StatusBadRequest)
		return
	}
	thread, err := s.chat.GetThread(r.Context(), actor, threadID)
	if err != nil {
		s.httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toThreadResponse(thread, nil))
}

type sendMessagePayload struct {
	RecipientID string `json:"recipient_id" validate:"required_without=ThreadID"`
	ThreadID    string `json:"thread_id" validate:"omitempty,uuid4"`
	Content     string `json:"content" validate:"required,max=4000"`
}

type messageResponse struct {
	ID        string            `json:"id"`
	ThreadID  string            `json:"thread_id"`
	From      string            `json:"from"`
	To        string            `json:"to"`
	Content   string            `json:"content"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Delivered bool              `json:"delivered"`
	Read      bool              `json:"read"`
	CreatedAt string            `json:"created_at"`
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	var payload sendMessagePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "invalid json payload", http.StatusBadRequest)
		return
	}
	if err := s.validate.Struct(payload); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	cmd := services.SendMessageCommand{
		ActorID:     actor,
		RecipientID: domain.AccountID(payload.RecipientID),
		Content:     payload.Content,
	}
	if payload.ThreadID != "" {
		threadID, err := uuid.Parse(payload.ThreadID)
		if err != nil {
			http.Error(w, "invalid thread id", http.StatusBadRequest)
			return
		}
		cmd.ThreadID = &threadID
	}

	message, err := s.chat.SendMessage(r.Context(), cmd)
	if err != nil {
		s.httpError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toMessageResponse(*message))
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	threadID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, "invalid thread id", http.StatusBadRequest)
		return
	}
	cursor, limit, ok := s.page(w, r)
	if !ok {
		return
	}

	messages, next, hasMore, err := s.chat.ListMessages(r.Context(), actor, threadID, cursor, limit)
	if err != nil {
		s.httpError(w, err)
		return
	}
	items := make([]messageResponse, 0, len(messages))
	for _, m := range messages {
		items = append(items, toMessageResponse(m))
	}
	writeJSON(w, http.StatusOK, pageResponse[messageResponse]{
		Items:      items,
		NextCursor: encodeCursor(next),
		HasMore:    hasMore,
	})
}

type markReadPayload struct {
	UptoMessageID string `json:"upto_message_id" validate:"omitempty,uuid4"`
}

func (s *Server) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	threadID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, "invalid thread id", http.StatusBadRequest)
		return
	}
	var payload markReadPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, "invalid json payload", http.StatusBadRequest)
		return
	}
	var uptoID *uuid.UUID
	if payload.UptoMessageID != "" {
		id, err := uuid.Parse(payload.UptoMessageID)
		if err != nil {
			http.Error(w, "invalid message id", http.StatusBadRequest)
			return
		}
		uptoID = &id
	}

	count, err := s.chat.MarkRead(r.Context(), actor, threadID, uptoID)
	if err != nil {
		s.httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"marked": count})
}

type notificationResponse struct {
	ID        string            `json:"id"`
	Type      string            `json:"type"`
	Title     string            `json:"title"`
	Body      string            `json:"body"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt string            `json:"created_at"`
}

func (s *Server) handleListNotifications(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}
	_, limit, ok := s.page(w, r)
	if !ok {
		return
	}
	rows, err := s.notifications.ListRecent(actor, limit)
	if err != nil {
		s.httpError(w, err)
		return
	}
	items := make([]notificationResponse, 0, len(rows))
	for _, n := range rows {
		items = append(items, notificationResponse{
			ID:        n.ID.String(),
			Type:      string(n.Type),
			Title:     n.Title,
			Body:      n.Body,
			Metadata:  n.Metadata,
			CreatedAt: n.CreatedAt.Format(timeFormat),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

type pageResponse[T any] struct {
	Items      []T     `json:"items"`
	NextCursor *string `json:"next_cursor,omitempty"`
	HasMore    bool    `json:"has_more"`
}

const timeFormat = "2006-01-02T15:04:05.999999999Z07:00"

func (s *Server) actor(w http.ResponseWriter, r *http.Request) (domain.AccountID, bool) {
	actor := r.Header.Get(accountHeader)
	if actor == "" {
		http.Error(w, "missing "+accountHeader+" header", http.StatusUnauthorized)
		return "", false
	}
	return domain.AccountID(actor), true
}

func (s *Server) page(w http.ResponseWriter, r *http.Request) (*domain.Cursor, int, bool) {
	limit := defaultPageSize
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 100 {
			http.Error(w, "limit must be between 1 and 100", http.StatusBadRequest)
			return nil, 0, false
		}
		limit = parsed
	}
	var cursor *domain.Cursor
	if raw := r.URL.Query().Get("cursor"); raw != "" {
		decoded, err := domain.DecodeCursor(raw)
		if err != nil {
			http.Error(w, "invalid cursor", http.StatusBadRequest)
			return nil, 0, false
		}
		cursor = &decoded
	}
	return cursor, limit, true
}

// httpError maps service denials onto status codes with their exact reason;
// anything unrecognized is a 500 with no internals leaked.
func (s *Server) httpError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, apperrors.ErrThreadNotFound),
		errors.Is(err, apperrors.ErrMessageNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, apperrors.ErrNotAParticipant),
		errors.Is(err, apperrors.ErrMessagingNotAllowed),
		errors.Is(err, apperrors.ErrNoLinkedProfile):
		http.Error(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, apperrors.ErrMutualMatchRequired),
		errors.Is(err, apperrors.ErrChatLimitExceeded),
		errors.Is(err, apperrors.ErrMessageLimitExceeded):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, apperrors.ErrMessageBlocked):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, apperrors.ErrTwoParticipants):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		s.log.Error("request failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func toThreadResponse(t domain.Thread, profile *domain.Profile) threadResponse {
	resp := threadResponse{
		ID:            t.ID.String(),
		ParticipantA:  string(t.ParticipantA),
		ParticipantB:  string(t.ParticipantB),
		LastMessageAt: t.LastMessageAt.Format(timeFormat),
		CreatedAt:     t.CreatedAt.Format(timeFormat),
	}
	if profile != nil {
		resp.DisplayName = &profile.DisplayName
		resp.PhotoURL = &profile.PhotoURL
	}
	return resp
}

func toMessageResponse(m domain.Message) messageResponse {
	return messageResponse{
		ID:        m.ID.String(),
		ThreadID:  m.ThreadID.String(),
		From:      string(m.From),
		To:        string(m.To),
		Content:   m.Content,
		Metadata:  m.Metadata,
		Delivered: m.Delivered,
		Read:      m.Read,
		CreatedAt: m.CreatedAt.Format(timeFormat),
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func encodeCursor(c *domain.Cursor) *string {
	if c == nil {
		return nil
	}
	encoded := c.Encode()
	return &encoded
}
