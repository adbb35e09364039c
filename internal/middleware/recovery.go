// File: internal/middleware/recovery.go
package middleware

import (
	"fmt"
	"net/http"
	"runtime"

	"badgehub/internal/contextutils"
	"badgehub/internal/response"
	"badgehub/internal/services"

	"go.uber.org/zap"
)

// maxStackBytes bounds the stack captured for a panic log entry.
const maxStackBytes = 8 << 10

// RecoverPanic converts a panic in a handler into a 500 JSON response.
// http.ErrAbortHandler is re-raised so the server can drop the connection.
func RecoverPanic(logger *zap.Logger, builder *response.Builder) func(http.Handler) http.Handler {
	if builder == nil {
		builder = response.NewBuilder(nil, logger)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				stack := make([]byte, maxStackBytes)
				stack = stack[:runtime.Stack(stack, false)]

				contextutils.GetLogger(r.Context(), logger).Error("Panic recovered",
					zap.Any("panic", rec),
					zap.ByteString("stack", stack),
				)

				err := services.NewInternalError("Internal server error", fmt.Errorf("panic: %v", rec))
				builder.WriteError(w, r, err)
			}()
			next.ServeHTTP(w, r)
		})
	}
}
