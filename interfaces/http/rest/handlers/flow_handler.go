package handlers

import (
	"net/http"

	"chatflow-backend/application/ports"
	"chatflow-backend/pkg/auth"
	"chatflow-backend/pkg/common"
	"chatflow-backend/pkg/errors"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// FlowHandler serves the dashboard's read access to flow
// definitions. Requests are scoped to the authenticated tenant.
type FlowHandler struct {
	flows  ports.FlowStore
	logger *zap.Logger
}

// NewFlowHandler creates the flow read handler.
func NewFlowHandler(flows ports.FlowStore, logger *zap.Logger) *FlowHandler {
	return &FlowHandler{flows: flows, logger: logger}
}

// ListFlows returns every flow of the caller's tenant.
func (h *FlowHandler) ListFlows(w http.ResponseWriter, r *http.Request) {
	user, err := auth.GetUserFromContext(r.Context())
	if err != nil {
		common.RespondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized")
		return
	}

	flows, err := h.flows.FindFlowsByTenant(r.Context(), user.TenantID)
	if err != nil {
		h.logger.Error("list flows failed",
			zap.Error(err),
			zap.String("tenantID", user.TenantID),
		)
		common.RespondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list flows")
		return
	}

	common.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"flows": flows,
	})
}

// GetFlow returns one flow, provided it belongs to the caller's
// tenant.
func (h *FlowHandler) GetFlow(w http.ResponseWriter, r *http.Request) {
	user, err := auth.GetUserFromContext(r.Context())
	if err != nil {
		common.RespondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized")
		return
	}

	flowID := chi.URLParam(r, "flowID")
	f, err := h.flows.GetFlow(r.Context(), flowID)
	if err != nil {
		if errors.IsNotFound(err) {
			common.RespondError(w, http.StatusNotFound, "NOT_FOUND", "Flow not found")
			return
		}
		h.logger.Error("get flow failed",
			zap.Error(err),
			zap.String("flowID", flowID),
		)
		common.RespondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to load flow")
		return
	}
	if f.TenantID != user.TenantID {
		// Cross-tenant ids are indistinguishable from missing ones.
		common.RespondError(w, http.StatusNotFound, "NOT_FOUND", "Flow not found")
		return
	}

	common.RespondJSON(w, http.StatusOK, f)
}
