package router

import (
	"net/http"

	"badgehub/internal/handlers/web"
	"badgehub/internal/middleware"
	"badgehub/internal/response"
	"badgehub/internal/services"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// SetupRouter configures all HTTP routes and returns the main handler.
// The live hub is owned by the caller so it can be closed on shutdown.
func SetupRouter(serviceCollection *services.ServiceCollection, hub *web.Hub, responseBuilder *response.Builder, logger *zap.Logger) http.Handler {
	r := mux.NewRouter()

	var allowedOrigins []string
	if serviceCollection.Config != nil {
		allowedOrigins = serviceCollection.Config.Server.AllowedOrigins
	}

	// Request id first so every later layer logs with it. Recovery sits
	// inside logging so a panic is still logged as a completed 500.
	r.Use(
		middleware.RequestID(logger),
		middleware.Logging(logger),
		middleware.Metrics,
		middleware.RecoverPanic(logger, responseBuilder),
	)

	// ===============================
	// MONITORING ENDPOINTS
	// ===============================

	r.HandleFunc("/health", web.HealthHandler(serviceCollection, logger)).Methods(http.MethodGet)
	r.HandleFunc("/healthz", web.LivenessHandler).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	// ===============================
	// LIVE UPDATES
	// ===============================

	if hub != nil {
		r.Handle("/ws", hub).Methods(http.MethodGet)
	}

	// ===============================
	// API
	// ===============================

	api := r.NewRoute().Subrouter()
	api.Use(middleware.SecureHeaders)
	AddAPIv1Routes(api, serviceCollection, responseBuilder, logger)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		responseBuilder.WriteError(w, req, services.NewNotFoundError("Endpoint not found"))
	})

	logger.Info("Router setup completed", zap.Strings("allowed_origins", allowedOrigins))

	// CORS wraps the router so preflight requests never reach route
	// method matching.
	return middleware.CORS(allowedOrigins)(r)
}
