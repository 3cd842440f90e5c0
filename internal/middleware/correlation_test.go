package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"
)

func TestCorrelationIDPropagates(t *testing.T) {
	app := fiber.New()
	app.Use(CorrelationID())
	app.Get("/", func(c *fiber.Ctx) error {
		return c.SendString(CorrelationIDFromContext(c.UserContext()))
	})

	cases := []struct {
		name     string
		header   string
		value    string
		expected string
	}{
		{name: "correlation header", header: CorrelationHeader, value: "board-42", expected: "board-42"},
		{name: "request id fallback", header: fiber.HeaderXRequestID, value: "req-7", expected: "req-7"},
		{name: "rejects spaces", header: CorrelationHeader, value: "two words"},
		{name: "rejects oversize", header: CorrelationHeader, value: strings.Repeat("a", maxCorrelationLength+1)},
		{name: "generated"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.header != "" {
				req.Header.Set(tc.header, tc.value)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)

			echoed := resp.Header.Get(CorrelationHeader)
			require.NotEmpty(t, echoed)
			if tc.expected != "" {
				require.Equal(t, tc.expected, echoed)
			} else {
				require.NotEqual(t, tc.value, echoed)
			}

			body, err := io.ReadAll(resp.Body)
			require.NoError(t, err)
			require.Equal(t, echoed, string(body))
		})
	}
}
