package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/jitinkakkar/dorthy-ai/internal/agent"
	"github.com/jitinkakkar/dorthy-ai/internal/app"
	"github.com/jitinkakkar/dorthy-ai/internal/completeness"
	"github.com/jitinkakkar/dorthy-ai/internal/convert"
	"github.com/jitinkakkar/dorthy-ai/internal/llm/llmtest"
	"github.com/jitinkakkar/dorthy-ai/internal/models"
	"github.com/jitinkakkar/dorthy-ai/internal/storage"
	"github.com/jitinkakkar/dorthy-ai/pkg/config"
)

type sseEvent struct {
	Name string
	Data json.RawMessage
}

func parseSSE(t *testing.T, body string) []sseEvent {
	t.Helper()
	var events []sseEvent
	for _, block := range strings.Split(body, "\n\n") {
		if strings.TrimSpace(block) == "" {
			continue
		}
		var ev sseEvent
		for _, line := range strings.Split(block, "\n") {
			switch {
			case strings.HasPrefix(line, "event: "):
				ev.Name = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				ev.Data = json.RawMessage(strings.TrimPrefix(line, "data: "))
			}
		}
		require.True(t, json.Valid(ev.Data), "event %s has invalid data", ev.Name)
		events = append(events, ev)
	}
	return events
}

func eventNames(events []sseEvent) []string {
	names := make([]string, len(events))
	for i, ev := range events {
		names[i] = ev.Name
	}
	return names
}

func newTestServer(t *testing.T, client *llmtest.Client) (*Server, *app.App) {
	t.Helper()
	logger := zaptest.NewLogger(t)
	a, err := app.NewWithDeps(&config.Config{}, app.Deps{Client: client, Store: storage.NewMemoryStorage()}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	return NewServer(a.Chat, logger), a
}

func scriptedClient(reply ...string) *llmtest.Client {
	return &llmtest.Client{
		Complete: func(openai.ChatCompletionRequest) (string, error) { return `{"city_or_region":"Toronto"}`, nil },
		Stream: func(openai.ChatCompletionRequest) ([]llmtest.Chunk, error) {
			return llmtest.Texts(reply...), nil
		},
	}
}

func post(t *testing.T, h http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/chatkit", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func textInput(text string) string {
	return fmt.Sprintf(`{"content":[{"type":"input_text","text":%q}],"attachments":[]}`, text)
}

func createThread(t *testing.T, h http.Handler, text string) (string, []sseEvent) {
	t.Helper()
	rec := post(t, h, `{"type":"threads.create","params":{"input":`+textInput(text)+`}}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	events := parseSSE(t, rec.Body.String())
	require.NotEmpty(t, events)

	var thread models.ThreadMetadata
	require.NoError(t, json.Unmarshal(events[0].Data, &thread))
	return thread.ID, events
}

func TestHealth(t *testing.T) {
	ready, _ := newTestServer(t, scriptedClient())
	for name, srv := range map[string]*Server{
		"ready":       ready,
		"unavailable": NewServer(nil, zaptest.NewLogger(t)),
	} {
		t.Run(name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

			assert.Equal(t, http.StatusOK, rec.Code)
			assert.JSONEq(t, `{"status":"healthy","service":"dorthy-ai"}`, rec.Body.String())
		})
	}
}

func TestChatKit_UnavailableWithoutChatServer(t *testing.T) {
	srv := NewServer(nil, zaptest.NewLogger(t))

	rec := post(t, srv, `{"type":"threads.create","params":{"input":`+textInput("hi")+`}}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestChatKit_CreateThreadStreams(t *testing.T) {
	client := scriptedClient("Hi there! ", "Do you accept?")
	srv, _ := newTestServer(t, client)

	rec := post(t, srv, `{"type":"threads.create","params":{"input":`+textInput("I want to buy in Toronto")+`}}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))

	events := parseSSE(t, rec.Body.String())
	assert.Equal(t, []string{
		eventThreadCreated,
		eventItemDone,
		eventItemAdded,
		eventItemUpdated,
		eventItemUpdated,
		eventItemDone,
	}, eventNames(events))

	var thread models.ThreadMetadata
	require.NoError(t, json.Unmarshal(events[0].Data, &thread))
	assert.True(t, strings.HasPrefix(thread.ID, "thr_"))
	assert.Equal(t, models.JourneyThreadTitle, thread.Title)

	var user models.ThreadItem
	require.NoError(t, json.Unmarshal(events[1].Data, &user))
	assert.Equal(t, models.RoleUser, user.Role)
	assert.Equal(t, "I want to buy in Toronto", user.Text())

	var added, done models.ThreadItem
	require.NoError(t, json.Unmarshal(events[2].Data, &added))
	require.NoError(t, json.Unmarshal(events[5].Data, &done))
	assert.Equal(t, added.ID, done.ID)
	assert.Equal(t, "gathering_info", done.Stage)
	assert.Equal(t, "Hi there! Do you accept?", done.Text())

	var update itemUpdate
	require.NoError(t, json.Unmarshal(events[3].Data, &update))
	assert.Equal(t, added.ID, update.ItemID)
	assert.Equal(t, "Hi there! ", update.Delta.Delta)
}

func TestChatKit_AddUserMessageAndRead(t *testing.T) {
	client := scriptedClient("ok")
	srv, _ := newTestServer(t, client)
	threadID, _ := createThread(t, srv, "hi")

	rec := post(t, srv, `{"type":"threads.add_user_message","params":{"thread_id":"`+threadID+`","input":`+textInput("I accept")+`}}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{eventItemDone, eventItemAdded, eventItemUpdated, eventItemDone},
		eventNames(parseSSE(t, rec.Body.String())))

	rec = post(t, srv, `{"type":"threads.get_by_id","params":{"thread_id":"`+threadID+`"}}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var thread models.ThreadMetadata
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &thread))
	assert.Equal(t, models.JourneyThreadTitle, thread.Title)

	rec = post(t, srv, `{"type":"items.list","params":{"thread_id":"`+threadID+`","order":"asc"}}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var page models.Page
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	require.Len(t, page.Data, 4)
	assert.Equal(t, "hi", page.Data[0].Text())
	assert.Equal(t, "I accept", page.Data[2].Text())
	assert.False(t, page.HasMore)

	rec = post(t, srv, `{"type":"items.list","params":{"thread_id":"`+threadID+`","order":"desc","limit":1}}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	require.Len(t, page.Data, 1)
	assert.Equal(t, "ok", page.Data[0].Text())
	assert.True(t, page.HasMore)
}

func TestChatKit_AttachmentsRejected(t *testing.T) {
	client := scriptedClient("unused")
	srv, _ := newTestServer(t, client)

	rec := post(t, srv, `{"type":"threads.create","params":{"input":{"content":[{"type":"input_text","text":"see file"}],"attachments":["file_123"]}}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "unsupported content")

	threadID, _ := createThread(t, srv, "hi")
	callsBefore := client.CompleteCalls()

	rec = post(t, srv, `{"type":"threads.add_user_message","params":{"thread_id":"`+threadID+`","input":{"content":[{"type":"image","text":""}]}}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, callsBefore, client.CompleteCalls())
}

func TestChatKit_Errors(t *testing.T) {
	srv, _ := newTestServer(t, scriptedClient("ok"))

	tests := []struct {
		name string
		body string
		want int
	}{
		{"invalid json", `{"type":`, http.StatusBadRequest},
		{"unknown type", `{"type":"threads.delete","params":{}}`, http.StatusBadRequest},
		{"missing params", `{"type":"threads.get_by_id"}`, http.StatusBadRequest},
		{"empty input", `{"type":"threads.create","params":{"input":{"content":[]}}}`, http.StatusBadRequest},
		{"missing thread id", `{"type":"threads.add_user_message","params":{"input":` + textInput("hi") + `}}`, http.StatusBadRequest},
		{"unknown thread", `{"type":"threads.add_user_message","params":{"thread_id":"thr_missing","input":` + textInput("hi") + `}}`, http.StatusNotFound},
		{"get unknown thread", `{"type":"threads.get_by_id","params":{"thread_id":"thr_missing"}}`, http.StatusNotFound},
		{"bad order", `{"type":"items.list","params":{"thread_id":"t","order":"sideways"}}`, http.StatusBadRequest},
		{"limit too large", `{"type":"items.list","params":{"thread_id":"t","limit":501}}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := post(t, srv, tt.body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
		})
	}
}

func TestChatKit_MethodNotAllowed(t *testing.T) {
	srv, _ := newTestServer(t, scriptedClient())

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/chatkit", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestChatKit_ExtractionFailure(t *testing.T) {
	client := scriptedClient("unused")
	client.Complete = func(openai.ChatCompletionRequest) (string, error) { return "", errors.New("upstream down") }
	srv, _ := newTestServer(t, client)

	rec := post(t, srv, `{"type":"threads.create","params":{"input":`+textInput("hi")+`}}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, 0, client.StreamCalls())
}

func TestChatKit_FailedFirstTurnReturnsThreadID(t *testing.T) {
	client := scriptedClient("unused")
	client.Complete = func(openai.ChatCompletionRequest) (string, error) { return "", errors.New("upstream down") }
	srv, a := newTestServer(t, client)

	rec := post(t, srv, `{"type":"threads.create","params":{"input":`+textInput("hi")+`}}`)
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	var payload errorPayload
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	require.NotEmpty(t, payload.ThreadID)

	page, err := a.Store.LoadThreadItems(context.Background(), payload.ThreadID, "", 0, models.OrderAsc)
	require.NoError(t, err)
	require.Len(t, page.Data, 1)
	assert.Equal(t, "hi", page.Data[0].Text())

	// A retry on the same thread goes through add_user_message.
	client.Complete = func(openai.ChatCompletionRequest) (string, error) { return `{"city_or_region":"Toronto"}`, nil }
	rec = post(t, srv, `{"type":"threads.add_user_message","params":{"thread_id":"`+payload.ThreadID+`","input":`+textInput("hi again")+`}}`)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestChatKit_AddUserMessageErrorOmitsThreadID(t *testing.T) {
	srv, _ := newTestServer(t, scriptedClient())

	rec := post(t, srv, `{"type":"threads.add_user_message","params":{"thread_id":"thr_missing","input":`+textInput("hi")+`}}`)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.NotContains(t, rec.Body.String(), "thread_id")
}

func TestChatKit_FailedAssistantSaveIsErrorEvent(t *testing.T) {
	client := scriptedClient("Hello")
	logger := zaptest.NewLogger(t)
	a, err := app.NewWithDeps(&config.Config{}, app.Deps{Client: client, Store: assistantRejectingStore{storage.NewMemoryStorage()}}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	srv := NewServer(a.Chat, logger)

	rec := post(t, srv, `{"type":"threads.create","params":{"input":`+textInput("hi")+`}}`)
	require.Equal(t, http.StatusOK, rec.Code)
	events := parseSSE(t, rec.Body.String())
	assert.Equal(t, []string{eventThreadCreated, eventItemDone, eventItemAdded, eventItemUpdated, eventError}, eventNames(events))

	var payload errorPayload
	require.NoError(t, json.Unmarshal(events[4].Data, &payload))
	assert.Equal(t, http.StatusInternalServerError, payload.Code)
	assert.Contains(t, payload.Error, "failed to save assistant message")
}

type assistantRejectingStore struct {
	*storage.MemoryStorage
}

func (s assistantRejectingStore) AddThreadItem(ctx context.Context, threadID string, item *models.ThreadItem) error {
	if item.Role == models.RoleAssistant {
		return errors.New("disk full")
	}
	return s.MemoryStorage.AddThreadItem(ctx, threadID, item)
}

func TestChatKit_GenerationFailureBeforeStream(t *testing.T) {
	client := scriptedClient()
	client.Stream = func(openai.ChatCompletionRequest) ([]llmtest.Chunk, error) { return nil, errors.New("overloaded") }
	srv, _ := newTestServer(t, client)

	rec := post(t, srv, `{"type":"threads.create","params":{"input":`+textInput("hi")+`}}`)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestChatKit_GenerationFailureMidStream(t *testing.T) {
	client := scriptedClient()
	client.Stream = func(openai.ChatCompletionRequest) ([]llmtest.Chunk, error) {
		return []llmtest.Chunk{{Text: "Let me"}, {Err: errors.New("reset")}}, nil
	}
	srv, a := newTestServer(t, client)

	rec := post(t, srv, `{"type":"threads.create","params":{"input":`+textInput("hi")+`}}`)
	require.Equal(t, http.StatusOK, rec.Code)
	events := parseSSE(t, rec.Body.String())
	assert.Equal(t, []string{eventThreadCreated, eventItemDone, eventItemAdded, eventItemUpdated, eventError}, eventNames(events))

	var payload errorPayload
	require.NoError(t, json.Unmarshal(events[4].Data, &payload))
	assert.Equal(t, http.StatusBadGateway, payload.Code)

	var thread models.ThreadMetadata
	require.NoError(t, json.Unmarshal(events[0].Data, &thread))
	page, err := a.Store.LoadThreadItems(context.Background(), thread.ID, "", 0, models.OrderAsc)
	require.NoError(t, err)
	assert.Len(t, page.Data, 1, "partial reply is not persisted")
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{storage.ErrNotFound, http.StatusNotFound},
		{fmt.Errorf("item x: %w", convert.ErrUnsupportedContent), http.StatusBadRequest},
		{fmt.Errorf("%w: bad", errBadRequest), http.StatusBadRequest},
		{fmt.Errorf("%w: timeout", completeness.ErrExtraction), http.StatusInternalServerError},
		{fmt.Errorf("%w: reset", agent.ErrGeneration), http.StatusBadGateway},
		{app.ErrServiceUnavailable, http.StatusServiceUnavailable},
		{errors.New("other"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}
