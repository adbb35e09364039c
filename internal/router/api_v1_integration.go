// ===============================
// FILE: internal/router/api_v1_integration.go
// ===============================

package router

import (
	"net/http"

	"badgehub/internal/handlers/api/v1/badges"
	"badgehub/internal/handlers/api/v1/profiles"
	"badgehub/internal/handlers/api/v1/recipients"
	"badgehub/internal/response"
	"badgehub/internal/services"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// AddAPIv1Routes registers the badge API under /api/v1
func AddAPIv1Routes(
	r *mux.Router,
	serviceCollection *services.ServiceCollection,
	responseBuilder *response.Builder,
	logger *zap.Logger,
) {
	badgeController := badges.NewBadgeController(serviceCollection, logger, responseBuilder)
	recipientController := recipients.NewRecipientController(serviceCollection, logger, responseBuilder)
	profileController := profiles.NewProfileController(serviceCollection, logger, responseBuilder)

	api := r.PathPrefix("/api/v1").Subrouter()

	// ===============================
	// BADGE ENDPOINTS
	// ===============================

	api.HandleFunc("/badges", badgeController.ListBadges).Methods(http.MethodGet)
	api.HandleFunc("/badges", badgeController.CreateBadge).Methods(http.MethodPost)
	api.HandleFunc("/badges/{id}", badgeController.GetBadge).Methods(http.MethodGet)
	api.HandleFunc("/badges/{id}/recipients", badgeController.ListRecipients).Methods(http.MethodGet)
	api.HandleFunc("/badges/{id}/awards", badgeController.AwardBadge).Methods(http.MethodPost)
	api.HandleFunc("/badges/{id}/claim", badgeController.ClaimBadge).Methods(http.MethodPost)

	// ===============================
	// RECIPIENT ENDPOINTS
	// ===============================

	api.HandleFunc("/recipients/{pubkey}/awards", recipientController.GetAwards).Methods(http.MethodGet)

	// ===============================
	// PROFILE ENDPOINTS
	// ===============================

	api.HandleFunc("/profiles/{pubkey}", profileController.GetProfile).Methods(http.MethodGet)
	api.HandleFunc("/profiles/{pubkey}/badges", profileController.GetDisplayList).Methods(http.MethodGet)
	api.HandleFunc("/profiles/{pubkey}/badges", profileController.ToggleDisplay).Methods(http.MethodPost)

	api.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		responseBuilder.WriteError(w, req, services.NewNotFoundError("Endpoint not found"))
	})
	api.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		responseBuilder.WriteError(w, req, methodNotAllowed())
	})

	logger.Info("API v1 routes added",
		zap.String("base_path", "/api/v1"),
		zap.Int("badge_endpoints", 6),
		zap.Int("recipient_endpoints", 1),
		zap.Int("profile_endpoints", 3),
	)
}

func methodNotAllowed() *services.ServiceError {
	return &services.ServiceError{
		Type:       "METHOD_NOT_ALLOWED",
		Message:    "Method not allowed",
		StatusCode: http.StatusMethodNotAllowed,
	}
}
