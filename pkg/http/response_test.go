package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppErrorResponse(t *testing.T) {
	cause := errors.New("redis: connection refused")

	tests := []struct {
		name     string
		err      error
		wantCode string
	}{
		{name: "app error", err: InternalError("trend report unavailable").WithError(cause), wantCode: "ERR_INTERNAL"},
		{name: "plain error", err: cause},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			rec := httptest.NewRecorder()
			c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)

			require.NoError(t, AppErrorResponse(c, tt.err))
			assert.Equal(t, http.StatusInternalServerError, rec.Code)
			assert.NotContains(t, rec.Body.String(), "connection refused")

			var body struct {
				Status int             `json:"status"`
				Data   json.RawMessage `json:"data"`
			}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, http.StatusInternalServerError, body.Status)
			if tt.wantCode == "" {
				return
			}
			var errs []AppError
			require.NoError(t, json.Unmarshal(body.Data, &errs))
			require.Len(t, errs, 1)
			assert.Equal(t, tt.wantCode, errs[0].Code)
		})
	}
}

func TestAppErrorUnwrapsCause(t *testing.T) {
	cause := errors.New("boom")
	err := InternalError("summary unavailable").WithError(cause)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "summary unavailable: boom", err.Error())
}
