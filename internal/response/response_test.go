package response

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"badgehub/internal/contextutils"
	"badgehub/internal/services"
	"badgehub/internal/validation"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func decode(t *testing.T, rec *httptest.ResponseRecorder) APIResponse {
	t.Helper()
	var body APIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestWriteSuccessEnvelope(t *testing.T) {
	b := NewBuilder(nil, zap.NewNop())
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(contextutils.WithRequestID(req.Context(), "req-1"))

	rec := httptest.NewRecorder()
	b.WriteSuccessWithMeta(rec, req, []string{"a", "b"}, &ResponseMeta{Count: 2, Pending: 1})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))

	body := decode(t, rec)
	assert.True(t, body.Success)
	assert.Equal(t, "req-1", body.RequestID)
	assert.Equal(t, "v1", body.Version)
	assert.NotZero(t, body.Timestamp)
	require.NotNil(t, body.Meta)
	assert.Equal(t, 2, body.Meta.Count)
	assert.Equal(t, 1, body.Meta.Pending)
	assert.Equal(t, []interface{}{"a", "b"}, body.Data)
}

func TestWriteCreated(t *testing.T) {
	rec := httptest.NewRecorder()
	NewBuilder(nil, nil).WriteCreated(rec, httptest.NewRequest(http.MethodPost, "/", nil), map[string]string{"id": "x"})
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.True(t, decode(t, rec).Success)
}

func TestWriteErrorMapsTypes(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		status   int
		errType  string
		message  string
		hasField bool
	}{
		{
			name:    "not found",
			err:     services.NewNotFoundError("Badge definition not found"),
			status:  http.StatusNotFound,
			errType: "NOT_FOUND",
			message: "Badge definition not found",
		},
		{
			name:    "signer sentinel",
			err:     services.ErrSignerUnavailable,
			status:  http.StatusForbidden,
			errType: "FORBIDDEN",
			message: "No signer available for this key",
		},
		{
			name:    "publish rejected",
			err:     services.PublishRejectedError(30008, errors.New("blocked")),
			status:  http.StatusBadGateway,
			errType: "UPSTREAM_ERROR",
			message: "Record was not accepted by any relay",
		},
		{
			name:     "field errors",
			err:      validation.Errors{{Field: "slug", Tag: "required"}},
			status:   http.StatusBadRequest,
			errType:  "VALIDATION_ERROR",
			message:  "Request validation failed",
			hasField: true,
		},
		{
			name:    "internal is masked",
			err:     errors.New("connection string leaked"),
			status:  http.StatusInternalServerError,
			errType: "INTERNAL_ERROR",
			message: "An internal error occurred",
		},
	}

	b := NewBuilder(nil, zap.NewNop())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			b.WriteError(rec, httptest.NewRequest(http.MethodGet, "/", nil), tt.err)

			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, "no-cache, no-store, must-revalidate", rec.Header().Get("Cache-Control"))

			body := decode(t, rec)
			assert.False(t, body.Success)
			require.NotNil(t, body.Error)
			assert.Equal(t, tt.errType, body.Error.Type)
			assert.Equal(t, tt.message, body.Error.Message)
			assert.Equal(t, tt.hasField, len(body.Error.Fields) > 0)
		})
	}
}

func TestUnmaskedInternalErrors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaskInternalErrors = false
	cfg.IncludeRequestID = false
	cfg.IncludeTimestamp = false

	rec := httptest.NewRecorder()
	NewBuilder(cfg, nil).WriteError(rec, httptest.NewRequest(http.MethodGet, "/", nil),
		services.NewInternalError("Failed to sign award", errors.New("bad key")))

	body := decode(t, rec)
	assert.Equal(t, "Failed to sign award", body.Error.Message)
	assert.Empty(t, body.RequestID)
	assert.Zero(t, body.Timestamp)
}

func TestParsePagination(t *testing.T) {
	cfg := DefaultPaginationConfig()

	tests := []struct {
		name    string
		query   url.Values
		want    PaginationParams
		wantErr bool
	}{
		{"defaults", url.Values{}, PaginationParams{Offset: 0, Limit: 50}, false},
		{"explicit", url.Values{"offset": {"10"}, "limit": {"5"}}, PaginationParams{Offset: 10, Limit: 5}, false},
		{"clamped", url.Values{"limit": {"10000"}}, PaginationParams{Limit: 500}, false},
		{"zero limit keeps default", url.Values{"limit": {"0"}}, PaginationParams{Limit: 50}, false},
		{"negative offset", url.Values{"offset": {"-1"}}, PaginationParams{}, true},
		{"garbage limit", url.Values{"limit": {"ten"}}, PaginationParams{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := cfg.ParsePagination(tt.query)
			if tt.wantErr {
				var svcErr *services.ServiceError
				require.True(t, errors.As(err, &svcErr))
				assert.Equal(t, "VALIDATION_ERROR", svcErr.Type)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPaginate(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}

	page, meta := Paginate(items, PaginationParams{Offset: 1, Limit: 2})
	assert.Equal(t, []int{2, 3}, page)
	assert.Equal(t, &PaginationMeta{Offset: 1, Limit: 2, Total: 5, HasMore: true}, meta)

	page, meta = Paginate(items, PaginationParams{Offset: 3, Limit: 10})
	assert.Equal(t, []int{4, 5}, page)
	assert.False(t, meta.HasMore)

	page, meta = Paginate(items, PaginationParams{Offset: 9, Limit: 2})
	assert.Empty(t, page)
	assert.Equal(t, 5, meta.Total)
}
