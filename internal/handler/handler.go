// Package handler exposes the checkout flow over HTTP.
package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/lessonbook/checkout/internal/checkout"
	"github.com/lessonbook/checkout/internal/domain/referral"
)

// Handler wires the session manager and referral validator into chi routes.
type Handler struct {
	sessions  *checkout.Manager
	referrals *referral.Validator
}

// New constructs a Handler.
func New(sessions *checkout.Manager, referrals *referral.Validator) *Handler {
	return &Handler{sessions: sessions, referrals: referrals}
}

// Routes returns the API router.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Route("/checkout", func(r chi.Router) {
		r.Post("/", h.openSession)
		r.Route("/{sessionID}", func(r chi.Router) {
			r.Get("/", h.getSession)
			r.Delete("/", h.closeSession)
			r.Get("/methods", h.listMethods)
			r.Patch("/booking", h.updateBooking)
			r.Put("/method", h.selectMethod)
			r.Put("/credits", h.setCredits)
			r.Post("/confirm", h.confirm)
			r.Post("/back", h.back)
			r.Post("/retry", h.retry)
		})
	})

	r.Get("/referral/{code}", h.validateReferral)

	return r
}

type errorBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Code: status, Message: msg})
}
