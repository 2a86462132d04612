package http

import (
	"log/slog"
	"net/http"

	"github.com/enginerror/Shopping-Cart/internal/service"
	"github.com/enginerror/Shopping-Cart/pkg/httputil"
)

// CheckoutHandler handles HTTP requests for the checkout form and the
// session lifetime.
type CheckoutHandler struct {
	service *service.CheckoutService
	session SessionConfig
	logger  *slog.Logger
}

// NewCheckoutHandler creates a new checkout HTTP handler.
func NewCheckoutHandler(svc *service.CheckoutService, session SessionConfig, logger *slog.Logger) *CheckoutHandler {
	return &CheckoutHandler{
		service: svc,
		session: session,
		logger:  logger,
	}
}

// GetCheckout handles GET /api/v1/checkout
func (h *CheckoutHandler) GetCheckout(w http.ResponseWriter, r *http.Request) {
	view, err := h.service.GetCheckout(r.Context(), sessionIDFromContext(r.Context()))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusOK, view)
}

// EditForm handles PATCH /api/v1/checkout/form. The body maps field names to
// their new values.
func (h *CheckoutHandler) EditForm(w http.ResponseWriter, r *http.Request) {
	var fields map[string]string
	if err := decodeJSON(w, r, &fields, false); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	view, err := h.service.EditForm(r.Context(), sessionIDFromContext(r.Context()), fields)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusOK, view)
}

// Submit handles POST /api/v1/checkout. An optional body of form fields is
// merged before submitting. A rejected form answers 422 with the field
// errors; an accepted one answers 202 while the order is processed.
func (h *CheckoutHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var fields map[string]string
	if err := decodeJSON(w, r, &fields, true); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	view, task, err := h.service.Submit(r.Context(), sessionIDFromContext(r.Context()), fields)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	if task == nil {
		httputil.WriteFieldErrors(w, http.StatusUnprocessableEntity,
			"VALIDATION_ERROR", "order form has errors", view.Checkout.Errors)
		return
	}

	httputil.WriteData(w, http.StatusAccepted, view)
}

// EndSession handles DELETE /api/v1/session. Any order still being processed
// is cancelled and never placed.
func (h *CheckoutHandler) EndSession(w http.ResponseWriter, r *http.Request) {
	if err := h.service.EndSession(r.Context(), sessionIDFromContext(r.Context())); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	expireSessionCookie(w, h.session)
	w.WriteHeader(http.StatusNoContent)
}
