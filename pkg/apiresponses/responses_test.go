package apiresponses

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/northbeam-ai/sitegate/pkg/system"
)

func record(t *testing.T, fn func(c *gin.Context)) (*httptest.ResponseRecorder, APIError) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	fn(c)

	var body APIError
	if w.Body.Len() > 0 && w.Body.Bytes()[0] == '{' {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	}
	return w, body
}

func TestErrorResponses(t *testing.T) {
	tests := []struct {
		name   string
		fn     func(c *gin.Context)
		status int
		code   ErrorCode
		msg    string
	}{
		{"not found", func(c *gin.Context) { RespondNotFound(c, "lead", "42") }, http.StatusNotFound, "NOT_FOUND", "lead not found: 42"},
		{"unauthorized", RespondUnauthorized, http.StatusUnauthorized, "UNAUTHORIZED", "not authenticated"},
		{"unauthorized empty message", func(c *gin.Context) { RespondUnauthorizedWithMessage(c, "") }, http.StatusUnauthorized, "UNAUTHORIZED", "not authenticated"},
		{"forbidden default", func(c *gin.Context) { RespondForbidden(c, "") }, http.StatusForbidden, "FORBIDDEN", "access denied"},
		{"bad request", func(c *gin.Context) { RespondBadRequest(c, "invalid json") }, http.StatusBadRequest, "BAD_REQUEST", "invalid json"},
		{"conflict", func(c *gin.Context) { RespondConflict(c, "duplicate") }, http.StatusConflict, "CONFLICT", "duplicate"},
		{"unavailable", func(c *gin.Context) { RespondServiceUnavailable(c, "redis") }, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "service unavailable: redis"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, body := record(t, tt.fn)
			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, tt.code, body.Code)
			assert.Equal(t, tt.msg, body.Error)
		})
	}
}

func TestRespondBadRequestWithDetails(t *testing.T) {
	w, body := record(t, func(c *gin.Context) { RespondBadRequestWithDetails(c, "invalid page", "page must be >= 1") })
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "page must be >= 1", body.Details)
}

func TestRespondValidationFailed(t *testing.T) {
	w, body := record(t, func(c *gin.Context) {
		RespondValidationFailed(c, map[string]string{"email": "invalid email address"})
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, CodeValidationFailed, body.Code)
	assert.Equal(t, "invalid email address", body.Fields["email"])
}

func TestRespondInternalErrorHidesCause(t *testing.T) {
	w, body := record(t, func(c *gin.Context) {
		RespondInternalError(c, "store lead", errors.New("pq: connection refused"), zaptest.NewLogger(t).Sugar())
	})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "failed to store lead", body.Error)
	assert.NotContains(t, w.Body.String(), "connection refused")
}

func TestSuccessResponses(t *testing.T) {
	w, _ := record(t, func(c *gin.Context) { RespondCreated(c, gin.H{"id": "x"}) })
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.JSONEq(t, `{"id":"x"}`, w.Body.String())

	w, _ = record(t, func(c *gin.Context) { RespondOK(c, []string{"a"}) })
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestErrorCarriesRequestID(t *testing.T) {
	w, body := record(t, func(c *gin.Context) {
		c.Header(system.RequestIDHeader, "req-42")
		RespondConflict(c, "duplicate")
	})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "req-42", body.RequestID)
}
