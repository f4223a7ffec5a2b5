package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"

	"github.com/lessonbook/checkout/internal/domain/referral"
)

type referralResponse struct {
	Code        string `json:"code"`
	Percent     string `json:"percent"`
	Description string `json:"description,omitempty"`
}

func (h *Handler) validateReferral(w http.ResponseWriter, r *http.Request) {
	if h.referrals == nil {
		writeError(w, http.StatusNotFound, "referral validation is not enabled")
		return
	}

	rule, err := h.referrals.Validate(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		if errors.Is(err, referral.ErrUnknownCode) {
			writeError(w, http.StatusNotFound, "unknown referral code")
			return
		}
		writeError(w, http.StatusInternalServerError, "referral lookup failed")
		return
	}

	writeJSON(w, http.StatusOK, referralResponse{
		Code:        rule.Code,
		Percent:     rule.Percent.StringFixed(2),
		Description: rule.Description,
	})
}
