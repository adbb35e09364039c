// ===============================
// FILE: internal/handlers/api/v1/profiles/profiles_controller.go
// ===============================

package profiles

import (
	"encoding/json"
	"net/http"
	"strconv"

	"badgehub/internal/contextutils"
	"badgehub/internal/models"
	"badgehub/internal/nostr"
	"badgehub/internal/response"
	"badgehub/internal/services"
	"badgehub/internal/validation"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

const maxBodyBytes = 16 << 10

// ProfileController handles profile metadata and display list endpoints
type ProfileController struct {
	serviceCollection *services.ServiceCollection
	logger            *zap.Logger
	responseBuilder   *response.Builder
}

// NewProfileController creates a new profile controller
func NewProfileController(
	serviceCollection *services.ServiceCollection,
	logger *zap.Logger,
	responseBuilder *response.Builder,
) *ProfileController {
	return &ProfileController{
		serviceCollection: serviceCollection,
		logger:            logger,
		responseBuilder:   responseBuilder,
	}
}

// ToggleDisplayRequest is the body of POST /api/v1/profiles/{pubkey}/badges
type ToggleDisplayRequest struct {
	BadgeID string               `json:"badge_id" validate:"required,badgeid"`
	AwardID string               `json:"award_id" validate:"required_if=Action add"`
	Action  models.DisplayAction `json:"action" validate:"required,display_action"`
}

// DisplayListResponse is a display list together with its lifecycle state.
type DisplayListResponse struct {
	List  *models.ProfileDisplayList `json:"list"`
	State string                     `json:"state"`
}

// ToggleDisplayResponse reports the outcome of a toggle.
type ToggleDisplayResponse struct {
	List    *models.ProfileDisplayList `json:"list"`
	Changed bool                       `json:"changed"`
	// Confirmed is set only when the caller asked to wait.
	Confirmed *bool `json:"confirmed,omitempty"`
}

// ===============================
// PROFILE METADATA
// ===============================

// GetProfile handles GET /api/v1/profiles/{pubkey}
func (c *ProfileController) GetProfile(w http.ResponseWriter, r *http.Request) {
	user, ok := c.pubkey(w, r)
	if !ok {
		return
	}

	profile, err := c.serviceCollection.ProfileService.GetProfile(r.Context(), user)
	if err != nil {
		c.responseBuilder.WriteError(w, r, err)
		return
	}
	c.responseBuilder.WriteSuccess(w, r, profile)
}

// ===============================
// DISPLAY LIST
// ===============================

// GetDisplayList handles GET /api/v1/profiles/{pubkey}/badges
func (c *ProfileController) GetDisplayList(w http.ResponseWriter, r *http.Request) {
	user, ok := c.pubkey(w, r)
	if !ok {
		return
	}

	displays := c.serviceCollection.DisplayService
	list, err := displays.GetDisplayList(r.Context(), user)
	if err != nil {
		c.responseBuilder.WriteError(w, r, err)
		return
	}

	c.responseBuilder.WriteSuccessWithMeta(w, r,
		&DisplayListResponse{List: list, State: displays.State(user).String()},
		&response.ResponseMeta{Count: len(list.Entries)},
	)
}

// ToggleDisplay handles POST /api/v1/profiles/{pubkey}/badges.
// ?wait=true blocks until relay confirmation finishes or the request ends.
func (c *ProfileController) ToggleDisplay(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user, ok := c.pubkey(w, r)
	if !ok {
		return
	}

	var req ToggleDisplayRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		c.responseBuilder.WriteError(w, r, services.NewValidationError("Invalid request body format", err))
		return
	}
	if err := validation.ValidateStruct(&req); err != nil {
		c.responseBuilder.WriteError(w, r, err)
		return
	}

	result, err := c.serviceCollection.DisplayService.ToggleDisplay(ctx, user, req.BadgeID, req.AwardID, req.Action)
	if err != nil {
		c.responseBuilder.WriteError(w, r, err)
		return
	}

	resp := &ToggleDisplayResponse{List: result.List, Changed: result.Changed}
	if wait, _ := strconv.ParseBool(r.URL.Query().Get("wait")); wait && result.Confirmed != nil {
		select {
		case confirmed := <-result.Confirmed:
			resp.Confirmed = &confirmed
		case <-ctx.Done():
		}
	}

	contextutils.GetLogger(ctx, c.logger).Info("Display list toggled via API",
		zap.String("badge_id", req.BadgeID),
		zap.String("action", string(req.Action)),
		zap.Bool("changed", result.Changed),
	)
	c.responseBuilder.WriteSuccess(w, r, resp)
}

func (c *ProfileController) pubkey(w http.ResponseWriter, r *http.Request) (string, bool) {
	raw := mux.Vars(r)["pubkey"]
	key, err := nostr.DecodePublicKey(raw)
	if err != nil {
		c.responseBuilder.WriteError(w, r, services.InvalidKeyError("pubkey", raw, err))
		return "", false
	}
	return key, true
}
