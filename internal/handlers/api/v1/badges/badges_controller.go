// ===============================
// FILE: internal/handlers/api/v1/badges/badges_controller.go
// ===============================

package badges

import (
	"encoding/json"
	"net/http"

	"badgehub/internal/badgeid"
	"badgehub/internal/contextutils"
	"badgehub/internal/response"
	"badgehub/internal/services"
	"badgehub/internal/validation"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// maxBodyBytes bounds request bodies accepted by the badge endpoints.
const maxBodyBytes = 64 << 10

// BadgeController handles badge definition and issuance endpoints
type BadgeController struct {
	serviceCollection *services.ServiceCollection
	logger            *zap.Logger
	responseBuilder   *response.Builder
	pagination        *response.PaginationConfig
}

// NewBadgeController creates a new badge controller
func NewBadgeController(
	serviceCollection *services.ServiceCollection,
	logger *zap.Logger,
	responseBuilder *response.Builder,
) *BadgeController {
	return &BadgeController{
		serviceCollection: serviceCollection,
		logger:            logger,
		responseBuilder:   responseBuilder,
		pagination:        response.DefaultPaginationConfig(),
	}
}

// CreateBadgeRequest is the body of POST /api/v1/badges
type CreateBadgeRequest struct {
	Issuer string `json:"issuer" validate:"required,pubkey"`
	services.CreateDefinitionRequest
}

// ClaimBadgeRequest is the body of POST /api/v1/badges/{id}/claim
type ClaimBadgeRequest struct {
	Recipient string `json:"recipient" validate:"required"`
}

// ===============================
// DEFINITIONS
// ===============================

// ListBadges handles GET /api/v1/badges?issuer=
func (c *BadgeController) ListBadges(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	issuer := r.URL.Query().Get("issuer")

	params, err := c.pagination.ParsePagination(r.URL.Query())
	if err != nil {
		c.responseBuilder.WriteError(w, r, err)
		return
	}

	defs, err := c.serviceCollection.CatalogService.ListDefinitions(ctx, issuer)
	if err != nil {
		c.responseBuilder.WriteError(w, r, err)
		return
	}

	page, meta := response.Paginate(defs, params)
	c.responseBuilder.WriteSuccessWithMeta(w, r, page, &response.ResponseMeta{Count: len(page), Pagination: meta})
}

// CreateBadge handles POST /api/v1/badges
func (c *BadgeController) CreateBadge(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req CreateBadgeRequest
	if !c.decode(w, r, &req) {
		return
	}

	def, err := c.serviceCollection.IssuanceService.CreateDefinition(ctx, req.Issuer, &req.CreateDefinitionRequest)
	if err != nil {
		c.responseBuilder.WriteError(w, r, err)
		return
	}

	contextutils.GetLogger(ctx, c.logger).Info("Badge created via API",
		zap.String("badge_id", def.ID),
	)
	c.responseBuilder.WriteCreated(w, r, def)
}

// GetBadge handles GET /api/v1/badges/{id}
func (c *BadgeController) GetBadge(w http.ResponseWriter, r *http.Request) {
	def, err := c.serviceCollection.CatalogService.GetDefinition(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		c.responseBuilder.WriteError(w, r, err)
		return
	}
	c.responseBuilder.WriteSuccess(w, r, def)
}

// ListRecipients handles GET /api/v1/badges/{id}/recipients
func (c *BadgeController) ListRecipients(w http.ResponseWriter, r *http.Request) {
	params, err := c.pagination.ParsePagination(r.URL.Query())
	if err != nil {
		c.responseBuilder.WriteError(w, r, err)
		return
	}

	recipients, err := c.serviceCollection.CatalogService.ListRecipients(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		c.responseBuilder.WriteError(w, r, err)
		return
	}

	page, meta := response.Paginate(recipients, params)
	c.responseBuilder.WriteSuccessWithMeta(w, r, page, &response.ResponseMeta{Count: len(page), Pagination: meta})
}

// ===============================
// ISSUANCE
// ===============================

// AwardBadge handles POST /api/v1/badges/{id}/awards. The award is signed
// by the issuer named in the badge identifier.
func (c *BadgeController) AwardBadge(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := mux.Vars(r)["id"]

	parsed, ok := badgeid.Parse(id)
	if !ok {
		c.responseBuilder.WriteError(w, r, services.InvalidIdentifierError(id))
		return
	}

	var req services.AwardBadgeRequest
	if !c.decode(w, r, &req) {
		return
	}

	award, err := c.serviceCollection.IssuanceService.AwardBadge(ctx, parsed.Issuer, parsed.String(), req.Recipients)
	if err != nil {
		c.responseBuilder.WriteError(w, r, err)
		return
	}
	c.responseBuilder.WriteCreated(w, r, award)
}

// ClaimBadge handles POST /api/v1/badges/{id}/claim
func (c *BadgeController) ClaimBadge(w http.ResponseWriter, r *http.Request) {
	var req ClaimBadgeRequest
	if !c.decode(w, r, &req) {
		return
	}

	award, err := c.serviceCollection.IssuanceService.ClaimBadge(r.Context(), mux.Vars(r)["id"], req.Recipient)
	if err != nil {
		c.responseBuilder.WriteError(w, r, err)
		return
	}
	c.responseBuilder.WriteCreated(w, r, award)
}

// decode reads and validates a JSON body. It writes the error response
// itself and reports whether the handler may continue.
func (c *BadgeController) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		c.responseBuilder.WriteError(w, r, services.NewValidationError("Invalid request body format", err))
		return false
	}
	if err := validation.ValidateStruct(dst); err != nil {
		c.responseBuilder.WriteError(w, r, err)
		return false
	}
	return true
}
