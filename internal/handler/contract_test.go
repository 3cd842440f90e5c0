package handler_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/mural-go-api/internal/config"
	"github.com/noah-isme/mural-go-api/internal/dto"
	"github.com/noah-isme/mural-go-api/internal/handler"
)

func compileSchema(t *testing.T, name string) *jsonschema.Schema {
	t.Helper()
	schemaPath, err := filepath.Abs(filepath.Join("testdata", name))
	require.NoError(t, err)

	compiler := jsonschema.NewCompiler()
	schema, err := compiler.Compile("file://" + schemaPath)
	require.NoError(t, err)
	return schema
}

func validateBody(t *testing.T, schema *jsonschema.Schema, resp *http.Response) {
	t.Helper()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())

	var payload interface{}
	require.NoError(t, json.Unmarshal(body, &payload))
	require.NoError(t, schema.Validate(payload))
}

func TestBoardContract(t *testing.T) {
	schema := compileSchema(t, "board.schema.json")
	f := newAPIFixture(t, fixtureOptions{})
	f.seed(t, "Midterm", "2024-03-14", "exam")
	_, err := f.activities.Create(context.Background(), dto.ActivityRequest{
		Title:      "Syllabus",
		Subject:    "History",
		Date:       "2024-03-12",
		Type:       "announcement",
		Attachment: &dto.AttachmentPayload{Name: "syllabus.pdf", Type: "application/pdf", Data: "https://files.example.org/syllabus.pdf"},
	}, nil)
	require.NoError(t, err)

	resp, err := f.app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/activities", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	validateBody(t, schema, resp)

	f.store.setDown(true)
	resp, err = f.app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/activities", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	validateBody(t, schema, resp)
}

func TestTutorSessionContract(t *testing.T) {
	schema := compileSchema(t, "tutor_session.schema.json")
	f := newAPIFixture(t, fixtureOptions{})

	f.openSession(t, "contract")
	_, err := f.tutor.Submit(context.Background(), "contract", "Summarise this week", nil)
	require.NoError(t, err)

	resp, err := f.app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/tutor/sessions/contract", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	validateBody(t, schema, resp)

	broken := newAPIFixture(t, fixtureOptions{provider: brokenProvider{}})
	resp, err = broken.app.Test(jsonRequest(t, http.MethodPost, "/api/v1/tutor/sessions", dto.TutorSessionRequest{SessionID: "contract"}, ""))
	require.NoError(t, err)
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	validateBody(t, schema, resp)
}

func TestHealthCheck(t *testing.T) {
	cfg := config.Config{
		AppName:           "Mural API",
		AppEnv:            "test",
		StoreBackend:      config.StoreSQLite,
		HistoryBackend:    config.HistoryBolt,
		AttachmentBackend: config.AttachmentInline,
		AIProvider:        config.ProviderGemini,
	}

	app := fiber.New()
	app.Get("/api/v1/health", handler.HealthCheck(cfg))

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/health", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	var payload apiEnvelope[handler.HealthResponse]
	decodeResponse(t, resp, &payload)
	assert.True(t, payload.Success)
	assert.Equal(t, "ok", payload.Data.Status)
	assert.Equal(t, cfg.AppName, payload.Data.Service)
	assert.Equal(t, config.StoreSQLite, payload.Data.Store)
	assert.Equal(t, config.HistoryBolt, payload.Data.History)
	assert.True(t, payload.Data.DemoMode)
	assert.WithinDuration(t, time.Now().UTC(), payload.Data.Timestamp, 2*time.Second)
}

func TestHealthCheckReportsFailingProbe(t *testing.T) {
	cfg := config.Config{AppName: "Mural API", StoreBackend: config.StorePostgres}
	probes := []handler.HealthProbe{
		{Name: "store", Check: func(context.Context) error { return errors.New("connection refused") }},
		{Name: "redis", Check: func(context.Context) error { return nil }},
	}

	app := fiber.New()
	app.Get("/api/v1/health", handler.HealthCheck(cfg, probes...))

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/health", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)

	var payload apiEnvelope[handler.HealthResponse]
	decodeResponse(t, resp, &payload)
	assert.False(t, payload.Success)
	assert.Equal(t, "degraded", payload.Data.Status)
	assert.Equal(t, "connection refused", payload.Data.Checks["store"])
	assert.Equal(t, "ok", payload.Data.Checks["redis"])
}
