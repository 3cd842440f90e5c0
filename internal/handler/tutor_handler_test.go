package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/mural-go-api/internal/dto"
	"github.com/noah-isme/mural-go-api/internal/models"
	"github.com/noah-isme/mural-go-api/internal/service"
	"github.com/noah-isme/mural-go-api/pkg/ai"
)

var pngHeader = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A, 0x00, 0x00, 0x00, 0x0D, 0x49, 0x48, 0x44, 0x52}

type sseEvent struct {
	name    string
	payload dto.TutorStreamEvent
}

func TestTutorOpenInDemoMode(t *testing.T) {
	f := newAPIFixture(t, fixtureOptions{})

	resp, err := f.app.Test(jsonRequest(t, http.MethodPost, "/api/v1/tutor/sessions", dto.TutorSessionRequest{SessionID: "class-7b"}, ""))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var payload apiEnvelope[dto.TutorSessionResponse]
	decodeResponse(t, resp, &payload)
	require.True(t, payload.Success)
	require.Equal(t, "class-7b", payload.Data.SessionID)
	require.Equal(t, string(service.TutorStateReady), payload.Data.State)
	require.Equal(t, "demo", payload.Data.Provider)
	require.True(t, payload.Data.DemoMode)
	require.Empty(t, payload.Data.Transcript)

	resp, err = f.app.Test(httptest.NewRequest(http.MethodPost, "/api/v1/tutor/sessions", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	decodeResponse(t, resp, &payload)
	require.NotEmpty(t, payload.Data.SessionID)
	require.NotEqual(t, "class-7b", payload.Data.SessionID)
}

func TestTutorMessageStreamsTranscript(t *testing.T) {
	f := newAPIFixture(t, fixtureOptions{})
	f.openSession(t, "s1")

	resp, err := f.app.Test(jsonRequest(t, http.MethodPost, "/api/v1/tutor/sessions/s1/messages", dto.TutorMessageRequest{Text: "When is the midterm?"}, ""), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	events := readEvents(t, resp)
	require.GreaterOrEqual(t, len(events), 2)
	require.Equal(t, "transcript", events[0].name)

	done := events[len(events)-1]
	require.Equal(t, "done", done.name)
	require.Len(t, done.payload.Transcript, 2)
	require.Equal(t, models.ChatRoleUser, done.payload.Transcript[0].Role)
	require.Equal(t, "When is the midterm?", done.payload.Transcript[0].Text)
	require.Equal(t, models.ChatRoleModel, done.payload.Transcript[1].Role)
	require.Equal(t, ai.DemoNotice, done.payload.Transcript[1].Text)
	require.False(t, done.payload.Transcript[1].IsLoading)

	resp, err = f.app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/tutor/sessions/s1", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var session apiEnvelope[dto.TutorSessionResponse]
	decodeResponse(t, resp, &session)
	require.Equal(t, string(service.TutorStateReady), session.Data.State)
	require.Len(t, session.Data.Transcript, 2)
}

func TestTutorMessageRejectsEmptyText(t *testing.T) {
	f := newAPIFixture(t, fixtureOptions{})
	f.openSession(t, "s1")

	resp, err := f.app.Test(jsonRequest(t, http.MethodPost, "/api/v1/tutor/sessions/s1/messages", dto.TutorMessageRequest{Text: " \n\t "}, ""))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/tutor/sessions/s1/messages", strings.NewReader("{oops"))
	req.Header.Set("Content-Type", "application/json")
	resp, err = f.app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestTutorMessageConflictsWhileStreaming(t *testing.T) {
	provider := &gatedProvider{release: make(chan struct{})}
	f := newAPIFixture(t, fixtureOptions{provider: provider})
	f.openSession(t, "busy")

	turn, err := f.tutor.Begin(context.Background(), "busy", "first question")
	require.NoError(t, err)

	resp, err := f.app.Test(jsonRequest(t, http.MethodPost, "/api/v1/tutor/sessions/busy/messages", dto.TutorMessageRequest{Text: "second question"}, ""))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusConflict, resp.StatusCode)

	resp, err = f.app.Test(httptest.NewRequest(http.MethodPost, "/api/v1/tutor/sessions/busy/reset", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusConflict, resp.StatusCode)

	resp, err = f.app.Test(httptest.NewRequest(http.MethodDelete, "/api/v1/tutor/sessions/busy", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusConflict, resp.StatusCode)

	close(provider.release)
	snapshot := turn.Run(nil)
	require.Equal(t, service.TutorStateReady, snapshot.State)
	require.Equal(t, "released", snapshot.Transcript[len(snapshot.Transcript)-1].Text)
}

func TestTutorInitializationFailure(t *testing.T) {
	f := newAPIFixture(t, fixtureOptions{provider: brokenProvider{}})

	resp, err := f.app.Test(jsonRequest(t, http.MethodPost, "/api/v1/tutor/sessions", dto.TutorSessionRequest{SessionID: "down"}, ""))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)

	var payload apiEnvelope[dto.TutorSessionResponse]
	decodeResponse(t, resp, &payload)
	require.False(t, payload.Success)
	require.Equal(t, string(service.TutorStateFailed), payload.Data.State)
	require.NotEmpty(t, payload.Data.Error)

	resp, err = f.app.Test(jsonRequest(t, http.MethodPost, "/api/v1/tutor/sessions/down/messages", dto.TutorMessageRequest{Text: "hello?"}, ""))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)
}

func TestTutorResetAndClose(t *testing.T) {
	f := newAPIFixture(t, fixtureOptions{})
	f.openSession(t, "s2")

	_, err := f.tutor.Submit(context.Background(), "s2", "What is due this week?", nil)
	require.NoError(t, err)

	resp, err := f.app.Test(httptest.NewRequest(http.MethodDelete, "/api/v1/tutor/sessions/s2", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, err = f.app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/tutor/sessions/s2", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var persisted apiEnvelope[dto.TutorSessionResponse]
	decodeResponse(t, resp, &persisted)
	require.Equal(t, string(service.TutorStateUninitialized), persisted.Data.State)
	require.Len(t, persisted.Data.Transcript, 2)

	resp, err = f.app.Test(httptest.NewRequest(http.MethodPost, "/api/v1/tutor/sessions/s2/reset", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var reset apiEnvelope[dto.TutorSessionResponse]
	decodeResponse(t, resp, &reset)
	require.Equal(t, string(service.TutorStateReady), reset.Data.State)
	require.Empty(t, reset.Data.Transcript)

	resp, err = f.app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/tutor/sessions/never-opened", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestTutorUnknownSessions(t *testing.T) {
	f := newAPIFixture(t, fixtureOptions{})

	resp, err := f.app.Test(jsonRequest(t, http.MethodPost, "/api/v1/tutor/sessions/never-opened/messages", dto.TutorMessageRequest{Text: "hello"}, ""))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	resp, err = f.app.Test(httptest.NewRequest(http.MethodPost, "/api/v1/tutor/sessions/never-opened/reset", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	long := strings.Repeat("x", 200)
	resp, err = f.app.Test(jsonRequest(t, http.MethodPost, "/api/v1/tutor/sessions/"+long+"/messages", dto.TutorMessageRequest{Text: "hello"}, ""))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestTutorVision(t *testing.T) {
	f := newAPIFixture(t, fixtureOptions{})

	resp, err := f.app.Test(visionRequest(t, "What does this diagram show?", "diagram.png", pngHeader))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var payload apiEnvelope[dto.VisionResponse]
	decodeResponse(t, resp, &payload)
	require.Equal(t, ai.DemoNotice, payload.Data.Text)
	require.Equal(t, "demo", payload.Data.Provider)

	resp, err = f.app.Test(visionRequest(t, "", "notes.txt", []byte("plain text, not a picture")))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	require.NoError(t, writer.WriteField("prompt", "nothing attached"))
	require.NoError(t, writer.Close())
	req := httptest.NewRequest(http.MethodPost, "/api/v1/tutor/vision", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	resp, err = f.app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestTutorVisionProviderFailure(t *testing.T) {
	f := newAPIFixture(t, fixtureOptions{provider: brokenProvider{}})

	resp, err := f.app.Test(visionRequest(t, "", "diagram.png", pngHeader))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusBadGateway, resp.StatusCode)
}

func visionRequest(t *testing.T, prompt, filename string, content []byte) *http.Request {
	t.Helper()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	require.NoError(t, writer.WriteField("prompt", prompt))
	part, err := writer.CreateFormFile("image", filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/tutor/vision", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func readEvents(t *testing.T, resp *http.Response) []sseEvent {
	t.Helper()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())

	var events []sseEvent
	for _, block := range strings.Split(string(raw), "\n\n") {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}
		var event sseEvent
		for _, line := range strings.Split(block, "\n") {
			switch {
			case strings.HasPrefix(line, "event: "):
				event.name = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &event.payload))
			}
		}
		events = append(events, event)
	}
	return events
}
