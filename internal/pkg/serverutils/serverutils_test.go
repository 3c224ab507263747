package serverutils

import (
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"exam-proctor-agent/internal/dto"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateRequestUsesJSONNames(t *testing.T) {
	err := ValidateRequest(dto.CreateTestRequest{
		Duration:  0,
		Questions: []dto.Question{{Text: "Q1", Type: dto.QuestionMCQ}},
	})
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Contains(t, vErr.Fields, "title")
	assert.Contains(t, vErr.Fields, "duration")
	assert.Contains(t, vErr.Fields, "questions[0].options")
	assert.Contains(t, vErr.Fields, "questions[0].answer")

	assert.NoError(t, ValidateRequest(dto.CreateAttemptRequest{StudentId: "s", TestId: "t"}))
}

var errTeapot = errors.New("short and stout")

func TestErrorHandlerMiddleware(t *testing.T) {
	app := fiber.New()
	app.Use(ErrorHandlerMiddleware(func(err error) (int, bool) {
		if errors.Is(err, errTeapot) {
			return fiber.StatusTeapot, true
		}
		return 0, false
	}))
	app.Get("/validation", func(c *fiber.Ctx) error { return ValidateRequest(dto.CreateAttemptRequest{}) })
	app.Get("/fiber", func(c *fiber.Ctx) error { return fiber.ErrNotFound })
	app.Get("/mapped", func(c *fiber.Ctx) error { return errTeapot })
	app.Get("/other", func(c *fiber.Ctx) error { return errors.New("boom") })

	tests := []struct {
		path string
		code int
	}{
		{"/validation", fiber.StatusBadRequest},
		{"/fiber", fiber.StatusNotFound},
		{"/mapped", fiber.StatusTeapot},
		{"/other", fiber.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			resp, err := app.Test(httptest.NewRequest("GET", tt.path, nil))
			require.NoError(t, err)
			assert.Equal(t, tt.code, resp.StatusCode)

			body, _ := io.ReadAll(resp.Body)
			var res Response[json.RawMessage]
			require.NoError(t, json.Unmarshal(body, &res))
			assert.Equal(t, StatusError, res.Status)
			assert.Equal(t, tt.code, res.Code)
		})
	}
}

func sign(t *testing.T, claims jwt.MapClaims, secret string) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func TestAttemptJwtMiddleware(t *testing.T) {
	app := fiber.New()
	app.Get("/me", AttemptJwtMiddleware("k"), func(c *fiber.Ctx) error {
		return c.SendString(c.Locals(LocalAttemptID).(string))
	})

	valid := sign(t, jwt.MapClaims{"attempt_id": "a1", "exp": time.Now().Add(time.Hour).Unix()}, "k")
	tests := []struct {
		name   string
		header string
		query  string
		code   int
	}{
		{"bearer", "Bearer " + valid, "", fiber.StatusOK},
		{"query", "", valid, fiber.StatusOK},
		{"missing", "", "", fiber.StatusUnauthorized},
		{"wrong secret", "Bearer " + sign(t, jwt.MapClaims{"attempt_id": "a1"}, "other"), "", fiber.StatusUnauthorized},
		{"expired", "Bearer " + sign(t, jwt.MapClaims{"attempt_id": "a1", "exp": time.Now().Add(-time.Hour).Unix()}, "k"), "", fiber.StatusUnauthorized},
		{"no attempt", "Bearer " + sign(t, jwt.MapClaims{"user_id": "u"}, "k"), "", fiber.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target := "/me"
			if tt.query != "" {
				target += "?token=" + tt.query
			}
			req := httptest.NewRequest("GET", target, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tt.code, resp.StatusCode)
			if tt.code == fiber.StatusOK {
				body, _ := io.ReadAll(resp.Body)
				assert.Equal(t, "a1", string(body))
			}
		})
	}
}
