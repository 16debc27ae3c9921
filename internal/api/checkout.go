package api

import (
	"errors"
	"net/http"

	"github.com/nyashahama/maison-checkout-notifier/internal/auth"
	"github.com/nyashahama/maison-checkout-notifier/internal/checkout"
	"github.com/nyashahama/maison-checkout-notifier/internal/order"
)

// ─── POST /api/checkout ───────────────────────────────────────────────────────

type checkoutResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	SendID  string `json:"sendId"`
}

// handleCheckout sends the order confirmation email for the caller's cart.
//
// The request has already passed requireBearer, so the caller id in the
// context is verified. Everything else (validation, profile lookup,
// delivery, record keeping) is the notifier's job; this handler only maps
// its outcome onto HTTP.
func (s *Server) handleCheckout(w http.ResponseWriter, r *http.Request) {
	// ── 1. Decode ─────────────────────────────────────────────────────────────
	var payload order.Payload
	if !decode(w, r, &payload) {
		return
	}

	// ── 2. Notify ─────────────────────────────────────────────────────────────
	res, err := s.notifier.Notify(r.Context(), checkout.Request{
		CallerID:   auth.UserID(r.Context()),
		UserID:     payload.UserID,
		Items:      payload.Items,
		TotalPrice: payload.TotalPrice,
	})
	if err != nil {
		s.respondCheckoutErr(w, r, err)
		return
	}

	// ── 3. Respond ────────────────────────────────────────────────────────────
	respond(w, http.StatusOK, checkoutResponse{
		Success: true,
		Message: "Email sent successfully",
		SendID:  res.SendID.String(),
	})
}

// respondCheckoutErr maps the notifier's sentinels onto status codes.
// Anything unrecognised is a 500 with the detail kept in the log.
func (s *Server) respondCheckoutErr(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, checkout.ErrUnauthorized):
		respondErr(w, http.StatusUnauthorized, "unauthorized")
	case errors.Is(err, checkout.ErrInvalidOrder),
		errors.Is(err, checkout.ErrTotalMismatch):
		respondErr(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, checkout.ErrMissingContactAddress):
		respondErr(w, http.StatusBadRequest, "profile has no email address")
	case errors.Is(err, checkout.ErrProfileNotFound):
		respondErr(w, http.StatusNotFound, "profile not found")
	case errors.Is(err, checkout.ErrRateLimited):
		w.Header().Set("Retry-After", "60")
		respondErr(w, http.StatusTooManyRequests, "too many checkouts, try again later")
	case errors.Is(err, checkout.ErrDeliverySubmissionFailed):
		// Upstream detail is surfaced: it is the delivery service's own
		// message, and the storefront shows it to support staff.
		respondErr(w, http.StatusBadGateway, err.Error())
	default:
		s.respondInternalErr(w, r, err)
	}
}
