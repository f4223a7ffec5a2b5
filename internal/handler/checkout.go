package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"

	"github.com/lessonbook/checkout/internal/checkout"
	"github.com/lessonbook/checkout/internal/domain/booking"
	"github.com/lessonbook/checkout/internal/domain/pricing"
)

type openSessionRequest struct {
	Draft  booking.Draft `json:"draft"`
	Inline bool          `json:"inline,omitempty"`
}

func (h *Handler) openSession(w http.ResponseWriter, r *http.Request) {
	var req openSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	session, err := h.sessions.Open(r.Context(), req.Draft, req.Inline)
	if err != nil {
		if errors.Is(err, checkout.ErrMissingBookingID) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to open checkout session")
		return
	}
	writeJSON(w, http.StatusCreated, session.Snapshot())
}

func (h *Handler) session(w http.ResponseWriter, r *http.Request) (*checkout.Session, bool) {
	s, err := h.sessions.Get(chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, http.StatusNotFound, "checkout session not found")
		return nil, false
	}
	return s, true
}

func (h *Handler) getSession(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.Snapshot())
}

func (h *Handler) closeSession(w http.ResponseWriter, r *http.Request) {
	h.sessions.Close(chi.URLParam(r, "sessionID"))
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listMethods(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.Methods(r.Context()))
}

type updateBookingRequest struct {
	// Fields present in the patch replace the corresponding draft fields;
	// absent fields keep their previous values.
	Date         *string           `json:"date,omitempty"`
	StartTime    *string           `json:"startTime,omitempty"`
	EndTime      *string           `json:"endTime,omitempty"`
	DurationMins *json.Number      `json:"durationMins,omitempty"`
	Location     *string           `json:"location,omitempty"`
	Online       *bool             `json:"online,omitempty"`
	TotalAmount  *string           `json:"totalAmount,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

func (h *Handler) updateBooking(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	var patch updateBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	cause := s.UpdateDraft(func(d booking.Draft) booking.Draft {
		if patch.Date != nil {
			d.Date = *patch.Date
		}
		if patch.StartTime != nil {
			d.StartTime = *patch.StartTime
		}
		if patch.EndTime != nil {
			d.EndTime = *patch.EndTime
		}
		if patch.DurationMins != nil {
			d.DurationMins = *patch.DurationMins
		}
		if patch.Location != nil {
			d.Location = *patch.Location
		}
		if patch.Online != nil {
			d.Online = *patch.Online
		}
		if patch.TotalAmount != nil {
			d.TotalAmount = *patch.TotalAmount
		}
		if patch.Metadata != nil {
			merged := make(map[string]string, len(d.Metadata)+len(patch.Metadata))
			for k, v := range d.Metadata {
				merged[k] = v
			}
			for k, v := range patch.Metadata {
				merged[k] = v
			}
			d.Metadata = merged
		}
		return d
	})

	writeJSON(w, http.StatusOK, struct {
		Cause    pricing.CauseKind `json:"cause"`
		Snapshot checkout.Snapshot `json:"session"`
	}{cause, s.Snapshot()})
}

type selectMethodRequest struct {
	PaymentMethodID string `json:"paymentMethodId"`
}

func (h *Handler) selectMethod(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	var req selectMethodRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if err := s.SelectMethod(req.PaymentMethodID); err != nil {
		writeTransitionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.Snapshot())
}

type setCreditsRequest struct {
	// Either an explicit amount or a toggle; the toggle wins when present.
	CreditCents *booking.Cents `json:"creditCents,omitempty"`
	Toggle      *bool          `json:"toggle,omitempty"`
}

func (h *Handler) setCredits(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	var req setCreditsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	var err error
	switch {
	case req.Toggle != nil:
		err = s.ToggleCredits(r.Context(), *req.Toggle)
	case req.CreditCents != nil:
		err = s.SetCredits(r.Context(), *req.CreditCents)
	default:
		writeError(w, http.StatusBadRequest, "creditCents or toggle is required")
		return
	}

	if err != nil && !pricing.IsFloorViolation(err) {
		writeError(w, http.StatusBadGateway, "failed to apply credits")
		return
	}
	// Floor violations are in-band state: the snapshot carries the advisory
	// and the flow stays at confirmation.
	writeJSON(w, http.StatusOK, s.Snapshot())
}

func (h *Handler) confirm(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	snapshot, err := s.Confirm(r.Context())
	if err != nil {
		writeTransitionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

func (h *Handler) back(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	if err := s.Back(); err != nil {
		writeTransitionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.Snapshot())
}

func (h *Handler) retry(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	if err := s.Retry(); err != nil {
		writeTransitionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.Snapshot())
}

func writeTransitionError(w http.ResponseWriter, err error) {
	var ite *checkout.IllegalTransitionError
	if errors.As(err, &ite) {
		writeError(w, http.StatusConflict, ite.Error())
		return
	}
	writeError(w, http.StatusInternalServerError, "checkout operation failed")
}
