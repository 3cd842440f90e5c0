package utils_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/mural-go-api/internal/utils"
)

type envelope struct {
	Success bool                   `json:"success"`
	Message string                 `json:"message"`
	Data    json.RawMessage        `json:"data"`
	Meta    map[string]interface{} `json:"meta"`
	Details map[string]string      `json:"details"`
}

func TestEnvelopeHelpers(t *testing.T) {
	board := map[string]interface{}{"items": []string{}, "count": 0}

	cases := []struct {
		name    string
		handler fiber.Handler
		status  int
		success bool
		message string
		data    string
		check   func(t *testing.T, payload envelope)
	}{
		{
			name:    "success with default message",
			handler: func(c *fiber.Ctx) error { return utils.SendSuccess(c, "", board) },
			status:  fiber.StatusOK,
			success: true,
			message: "success",
			data:    `{"count":0,"items":[]}`,
		},
		{
			name: "created",
			handler: func(c *fiber.Ctx) error {
				return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "activity created", fiber.Map{"id": "a1"})
			},
			status:  fiber.StatusCreated,
			success: true,
			message: "activity created",
			data:    `{"id":"a1"}`,
		},
		{
			name:    "ok with meta",
			handler: func(c *fiber.Ctx) error { return utils.OK(c, []string{"a1"}, "", fiber.Map{"count": 1}) },
			status:  fiber.StatusOK,
			success: true,
			message: "success",
			data:    `["a1"]`,
			check: func(t *testing.T, payload envelope) {
				require.EqualValues(t, 1, payload.Meta["count"])
			},
		},
		{
			name:    "error omits data",
			handler: func(c *fiber.Ctx) error { return utils.SendError(c, fiber.StatusConflict, "") },
			status:  fiber.StatusConflict,
			message: "error",
		},
		{
			name: "fail with details",
			handler: func(c *fiber.Ctx) error {
				return utils.Fail(c, fiber.StatusBadRequest, "validation failed", map[string]string{"title": "failed required"})
			},
			status:  fiber.StatusBadRequest,
			message: "validation failed",
			check: func(t *testing.T, payload envelope) {
				require.Equal(t, "failed required", payload.Details["title"])
			},
		},
		{
			name: "degraded read keeps payload",
			handler: func(c *fiber.Ctx) error {
				return utils.SendErrorWithData(c, fiber.StatusServiceUnavailable, "activity store unavailable", board)
			},
			status:  fiber.StatusServiceUnavailable,
			message: "activity store unavailable",
			data:    `{"count":0,"items":[]}`,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			app := fiber.New()
			app.Get("/", tc.handler)

			resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/", nil), -1)
			require.NoError(t, err)
			require.Equal(t, tc.status, resp.StatusCode)

			var payload envelope
			defer resp.Body.Close()
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))

			require.Equal(t, tc.success, payload.Success)
			require.Equal(t, tc.message, payload.Message)
			if tc.data == "" {
				require.Empty(t, payload.Data)
			} else {
				require.JSONEq(t, tc.data, string(payload.Data))
			}
			if tc.check != nil {
				tc.check(t, payload)
			}
		})
	}
}
