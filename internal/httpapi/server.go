// Package httpapi exposes the chat server over HTTP: JSON for reads and
// Server-Sent Events for streamed turns.
package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/jitinkakkar/dorthy-ai/internal/agent"
	"github.com/jitinkakkar/dorthy-ai/internal/app"
	"github.com/jitinkakkar/dorthy-ai/internal/chat"
	"github.com/jitinkakkar/dorthy-ai/internal/completeness"
	"github.com/jitinkakkar/dorthy-ai/internal/convert"
	"github.com/jitinkakkar/dorthy-ai/internal/models"
	"github.com/jitinkakkar/dorthy-ai/internal/storage"
)

const (
	serviceName    = "dorthy-ai"
	maxRequestBody = 1 << 20
)

// Server serves /chatkit and /health. A nil chat server makes /chatkit
// answer 503 while /health keeps working.
type Server struct {
	chat   *chat.Server
	logger *zap.Logger
	mux    *http.ServeMux
}

func NewServer(chatServer *chat.Server, logger *zap.Logger) *Server {
	s := &Server{
		chat:   chatServer,
		logger: logger.With(zap.String("component", "httpapi")),
		mux:    http.NewServeMux(),
	}
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("POST /chatkit", s.handleChatKit)
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "healthy", "service": serviceName})
}

func (s *Server) handleChatKit(w http.ResponseWriter, r *http.Request) {
	if s.chat == nil {
		s.writeError(w, app.ErrServiceUnavailable)
		return
	}

	var req request
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&req); err != nil {
		s.writeError(w, fmt.Errorf("%w: invalid JSON body", errBadRequest))
		return
	}

	switch req.Type {
	case reqCreateThread:
		s.handleCreateThread(w, r, req.Params)
	case reqAddUserMessage:
		s.handleAddUserMessage(w, r, req.Params)
	case reqGetThread:
		s.handleGetThread(w, r, req.Params)
	case reqListItems:
		s.handleListItems(w, r, req.Params)
	default:
		s.writeError(w, fmt.Errorf("%w: unknown request type %q", errBadRequest, req.Type))
	}
}

func (s *Server) handleCreateThread(w http.ResponseWriter, r *http.Request, raw json.RawMessage) {
	var params createThreadParams
	if err := decodeParams(raw, &params); err != nil {
		s.writeError(w, err)
		return
	}
	item, err := params.Input.toThreadItem()
	if err != nil {
		s.writeError(w, err)
		return
	}
	// Reject before the thread exists so a bad first message leaves nothing behind.
	if err := convert.Validate(item); err != nil {
		s.writeError(w, err)
		return
	}

	thread, err := s.chat.CreateThread(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.streamTurn(w, r, thread, item, true)
}

func (s *Server) handleAddUserMessage(w http.ResponseWriter, r *http.Request, raw json.RawMessage) {
	var params addUserMessageParams
	if err := decodeParams(raw, &params); err != nil {
		s.writeError(w, err)
		return
	}
	if params.ThreadID == "" {
		s.writeError(w, fmt.Errorf("%w: thread_id is required", errBadRequest))
		return
	}
	item, err := params.Input.toThreadItem()
	if err != nil {
		s.writeError(w, err)
		return
	}
	thread := &models.ThreadMetadata{ID: params.ThreadID}
	s.streamTurn(w, r, thread, item, false)
}

func (s *Server) handleGetThread(w http.ResponseWriter, r *http.Request, raw json.RawMessage) {
	var params getThreadParams
	if err := decodeParams(raw, &params); err != nil {
		s.writeError(w, err)
		return
	}
	thread, err := s.chat.LoadThread(r.Context(), params.ThreadID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, thread)
}

func (s *Server) handleListItems(w http.ResponseWriter, r *http.Request, raw json.RawMessage) {
	var params listItemsParams
	if err := decodeParams(raw, &params); err != nil {
		s.writeError(w, err)
		return
	}
	order := models.Order(params.Order)
	if order != "" && order != models.OrderAsc && order != models.OrderDesc {
		s.writeError(w, fmt.Errorf("%w: order must be asc or desc", errBadRequest))
		return
	}
	if params.Limit < 0 || params.Limit > storage.MaxPageSize {
		s.writeError(w, fmt.Errorf("%w: limit must be between 0 and %d", errBadRequest, storage.MaxPageSize))
		return
	}

	page, err := s.chat.ListItems(r.Context(), params.ThreadID, params.After, params.Limit, order)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, page)
}

// streamTurn runs one turn and writes it as SSE. Anything that fails before
// the first event is reported as a plain JSON error with a status code.
func (s *Server) streamTurn(w http.ResponseWriter, r *http.Request, thread *models.ThreadMetadata, item *models.ThreadItem, created bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.logger.Error("Streaming not supported")
		s.writeError(w, errors.New("streaming not supported"))
		return
	}

	turn, err := s.chat.Respond(r.Context(), thread.ID, item)
	if err != nil {
		payload := errorPayload{Error: err.Error()}
		if created {
			payload.ThreadID = thread.ID
		}
		s.writeErrorPayload(w, err, payload)
		return
	}
	defer turn.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	if created {
		s.writeSSEEvent(w, eventThreadCreated, turn.Thread)
	}
	s.writeSSEEvent(w, eventItemDone, turn.UserItem)
	s.writeSSEEvent(w, eventItemAdded, &models.ThreadItem{
		ID:       turn.AssistantID,
		ThreadID: turn.Thread.ID,
		Role:     models.RoleAssistant,
		Content:  []models.ContentPart{},
		Stage:    string(turn.Decision.Stage),
	})
	flusher.Flush()

	for {
		ev, err := turn.Recv()
		if err != nil {
			return
		}
		switch ev.Type {
		case agent.EventDelta:
			s.writeSSEEvent(w, eventItemUpdated, itemUpdate{
				ItemID: turn.AssistantID,
				Delta:  deltaEvent{Type: "output_text.delta", Delta: ev.Text},
			})
		case agent.EventDone:
			done := turn.Assistant()
			if done == nil {
				done = models.NewAssistantMessage(ev.Text, string(turn.Decision.Stage))
				done.ID = turn.AssistantID
				done.ThreadID = turn.Thread.ID
			}
			s.writeSSEEvent(w, eventItemDone, done)
		case agent.EventError:
			s.logger.Error("Response stream failed",
				zap.String("thread_id", turn.Thread.ID),
				zap.Error(ev.Err))
			s.writeSSEEvent(w, eventError, errorPayload{Error: ev.Err.Error(), Code: statusFor(ev.Err)})
		}
		flusher.Flush()
	}
}

// writeSSEEvent writes one event as "event: <name>\ndata: <json>\n\n".
func (s *Server) writeSSEEvent(w http.ResponseWriter, event string, data any) {
	dataJSON, err := json.Marshal(data)
	if err != nil {
		s.logger.Error("Failed to marshal SSE data", zap.Error(err))
		return
	}
	fmt.Fprintf(w, "event: %s\n", event)
	fmt.Fprintf(w, "data: %s\n\n", dataJSON)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to write response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	s.writeErrorPayload(w, err, errorPayload{Error: err.Error()})
}

func (s *Server) writeErrorPayload(w http.ResponseWriter, err error, payload errorPayload) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("Request failed", zap.Int("status", status), zap.Error(err))
	}
	s.writeJSON(w, status, payload)
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadRequest), errors.Is(err, convert.ErrUnsupportedContent):
		return http.StatusBadRequest
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, app.ErrServiceUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, agent.ErrGeneration):
		return http.StatusBadGateway
	case errors.Is(err, completeness.ErrExtraction):
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
