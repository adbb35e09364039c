// Package response writes the JSON envelope every API endpoint answers with.
package response

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"badgehub/internal/contextutils"
	"badgehub/internal/services"
	"badgehub/internal/validation"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config controls what the envelope carries.
type Config struct {
	PrettyJSON         bool   `json:"pretty_json"`
	IncludeRequestID   bool   `json:"include_request_id"`
	IncludeTimestamp   bool   `json:"include_timestamp"`
	APIVersion         string `json:"api_version"`
	MaskInternalErrors bool   `json:"mask_internal_errors"`
}

func DefaultConfig() *Config {
	return &Config{
		IncludeRequestID:   true,
		IncludeTimestamp:   true,
		APIVersion:         "v1",
		MaskInternalErrors: true,
	}
}

// APIResponse is the envelope. Exactly one of Data and Error is set.
type APIResponse struct {
	Success   bool          `json:"success"`
	Data      interface{}   `json:"data,omitempty"`
	Error     *ErrorDetail  `json:"error,omitempty"`
	Meta      *ResponseMeta `json:"meta,omitempty"`
	RequestID string        `json:"request_id,omitempty"`
	Timestamp int64         `json:"timestamp,omitempty"`
	Version   string        `json:"version,omitempty"`
}

type ErrorDetail struct {
	Type    string                  `json:"type"`
	Message string                  `json:"message"`
	Code    string                  `json:"code,omitempty"`
	Fields  []validation.FieldError `json:"fields,omitempty"`
	Details map[string]interface{}  `json:"details,omitempty"`
}

// ResponseMeta describes how complete a read was.
type ResponseMeta struct {
	Count      int             `json:"count"`
	Pending    int             `json:"pending,omitempty"`
	Partial    bool            `json:"partial,omitempty"`
	Pagination *PaginationMeta `json:"pagination,omitempty"`
	// ProcessTime is the handler time in milliseconds.
	ProcessTime float64 `json:"process_time_ms"`
}

// Builder renders envelopes for the API controllers.
type Builder struct {
	config *Config
	logger *zap.Logger
}

func NewBuilder(config *Config, logger *zap.Logger) *Builder {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Builder{config: config, logger: logger}
}

func (b *Builder) envelope(ctx context.Context) *APIResponse {
	resp := &APIResponse{Version: b.config.APIVersion}
	if b.config.IncludeRequestID {
		resp.RequestID = contextutils.GetRequestID(ctx)
	}
	if b.config.IncludeTimestamp {
		resp.Timestamp = time.Now().Unix()
	}
	return resp
}

// Success wraps data in a successful envelope.
func (b *Builder) Success(ctx context.Context, data interface{}) *APIResponse {
	resp := b.envelope(ctx)
	resp.Success = true
	resp.Data = data
	return resp
}

// SuccessWithMeta also stamps the elapsed handler time into meta.
func (b *Builder) SuccessWithMeta(ctx context.Context, data interface{}, meta *ResponseMeta) *APIResponse {
	resp := b.Success(ctx, data)
	if meta != nil {
		elapsed := time.Since(contextutils.GetRequestStart(ctx))
		meta.ProcessTime = float64(elapsed.Microseconds()) / 1000
		resp.Meta = meta
	}
	return resp
}

// Error converts err into an error envelope and logs it at a level that
// matches who is at fault.
func (b *Builder) Error(ctx context.Context, err error) *APIResponse {
	detail := b.describe(err)

	logger := contextutils.GetLogger(ctx, b.logger)
	fields := []zap.Field{
		zap.String("error_type", detail.Type),
		zap.String("error_code", detail.Code),
		zap.Error(err),
	}
	if ce := logger.Check(logLevel(detail.Type), "Request failed"); ce != nil {
		ce.Write(fields...)
	}

	resp := b.envelope(ctx)
	resp.Error = detail
	return resp
}

func logLevel(errType string) zapcore.Level {
	switch errType {
	case services.TypeInternal:
		return zapcore.ErrorLevel
	case services.TypeValidation, services.TypeNotFound, services.TypeForbidden:
		return zapcore.WarnLevel
	default:
		return zapcore.InfoLevel
	}
}

// describe builds the client-visible error. Field errors from request
// validation are listed individually.
func (b *Builder) describe(err error) *ErrorDetail {
	var fields validation.Errors
	if errors.As(err, &fields) {
		return &ErrorDetail{
			Type:    services.TypeValidation,
			Message: "Request validation failed",
			Fields:  fields,
		}
	}

	se := services.GetServiceError(err)
	if b.config.MaskInternalErrors && se.Type == services.TypeInternal {
		return &ErrorDetail{Type: se.Type, Message: "An internal error occurred", Code: se.Code}
	}
	return &ErrorDetail{Type: se.Type, Message: se.Message, Code: se.Code, Details: se.Details}
}

// StatusCode maps an error to its HTTP status.
func StatusCode(err error) int {
	var fields validation.Errors
	if errors.As(err, &fields) {
		return http.StatusBadRequest
	}
	return services.GetServiceError(err).GetStatusCode()
}

// WriteJSON sends resp with status. Error responses are never cached.
func (b *Builder) WriteJSON(w http.ResponseWriter, r *http.Request, resp *APIResponse, status int) {
	h := w.Header()
	h.Set("Content-Type", "application/json; charset=utf-8")
	h.Set("X-Content-Type-Options", "nosniff")
	if status >= http.StatusBadRequest {
		h.Set("Cache-Control", "no-cache, no-store, must-revalidate")
	}
	w.WriteHeader(status)

	enc := json.NewEncoder(w)
	if b.config.PrettyJSON {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(resp); err != nil {
		b.logger.Error("Failed to encode JSON response",
			zap.String("request_id", contextutils.GetRequestID(r.Context())),
			zap.Error(err),
		)
	}
}

func (b *Builder) WriteSuccess(w http.ResponseWriter, r *http.Request, data interface{}) {
	b.WriteJSON(w, r, b.Success(r.Context(), data), http.StatusOK)
}

func (b *Builder) WriteSuccessWithMeta(w http.ResponseWriter, r *http.Request, data interface{}, meta *ResponseMeta) {
	b.WriteJSON(w, r, b.SuccessWithMeta(r.Context(), data, meta), http.StatusOK)
}

func (b *Builder) WriteCreated(w http.ResponseWriter, r *http.Request, data interface{}) {
	b.WriteJSON(w, r, b.Success(r.Context(), data), http.StatusCreated)
}

func (b *Builder) WriteError(w http.ResponseWriter, r *http.Request, err error) {
	b.WriteJSON(w, r, b.Error(r.Context(), err), StatusCode(err))
}
