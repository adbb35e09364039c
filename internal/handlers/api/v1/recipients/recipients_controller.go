// ===============================
// FILE: internal/handlers/api/v1/recipients/recipients_controller.go
// ===============================

package recipients

import (
	"net/http"
	"strconv"

	"badgehub/internal/models"
	"badgehub/internal/nostr"
	"badgehub/internal/response"
	"badgehub/internal/services"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// RecipientController serves the awards a recipient holds
type RecipientController struct {
	serviceCollection *services.ServiceCollection
	logger            *zap.Logger
	responseBuilder   *response.Builder
}

// NewRecipientController creates a new recipient controller
func NewRecipientController(
	serviceCollection *services.ServiceCollection,
	logger *zap.Logger,
	responseBuilder *response.Builder,
) *RecipientController {
	return &RecipientController{
		serviceCollection: serviceCollection,
		logger:            logger,
		responseBuilder:   responseBuilder,
	}
}

// GetAwards handles GET /api/v1/recipients/{pubkey}/awards.
//
// With ?preview=true only cached definitions are joined and the response
// is marked partial when lookups remain; clients then follow up over the
// live socket. Otherwise definitions are resolved within the configured
// budgets and unresolved ones come back as pending placeholders.
func (c *RecipientController) GetAwards(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	raw := mux.Vars(r)["pubkey"]
	recipient, err := nostr.DecodePublicKey(raw)
	if err != nil {
		c.responseBuilder.WriteError(w, r, services.InvalidKeyError("pubkey", raw, err))
		return
	}

	preview, _ := strconv.ParseBool(r.URL.Query().Get("preview"))

	var (
		awards  []*models.ResolvedAward
		partial bool
	)
	if preview {
		var batch *services.LookupBatch
		awards, batch = c.serviceCollection.AwardService.PreviewAwardsFor(ctx, recipient)
		partial = !batch.Empty()
	} else {
		awards = c.serviceCollection.AwardService.ResolveAwardsFor(ctx, recipient)
	}

	meta := &response.ResponseMeta{Count: len(awards), Partial: partial}
	for _, a := range awards {
		if a.Pending {
			meta.Pending++
		}
	}
	c.responseBuilder.WriteSuccessWithMeta(w, r, awards, meta)
}
