package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/lessonbook/checkout/internal/checkout"
	"github.com/lessonbook/checkout/internal/domain/booking"
	"github.com/lessonbook/checkout/internal/domain/payment"
	"github.com/lessonbook/checkout/internal/domain/pricing"
	"github.com/lessonbook/checkout/internal/domain/referral"
	"github.com/lessonbook/checkout/internal/domain/wallet"
	"github.com/lessonbook/checkout/internal/kvstore"
)

// stubPlatform is a canned implementation of every collaborator contract.
type stubPlatform struct {
	base booking.Cents
}

func (p *stubPlatform) GetPreview(_ context.Context, _ string, credit, referral booking.Cents) (*pricing.Preview, error) {
	return &pricing.Preview{
		BasePriceCents:       p.base,
		CreditAppliedCents:   credit,
		ReferralAppliedCents: referral,
		StudentPayCents:      p.base - credit - referral,
	}, nil
}

func (p *stubPlatform) GetBalance(context.Context) (*wallet.Balance, error) {
	return &wallet.Balance{}, nil
}

func (p *stubPlatform) List(context.Context) ([]payment.Method, error) {
	return []payment.Method{{ID: "pm-1", Brand: "visa", Last4: "4242"}}, nil
}

func (p *stubPlatform) CreateCheckout(context.Context, payment.CheckoutRequest) (*payment.CheckoutResult, error) {
	return &payment.CheckoutResult{Status: "succeeded"}, nil
}

func (p *stubPlatform) CreateBooking(context.Context, booking.Draft) (*payment.Record, error) {
	return &payment.Record{ID: "bk-1", Status: "created"}, nil
}

func (p *stubPlatform) CancelBooking(context.Context, string) error { return nil }

type memReferralRepo struct{}

func (memReferralRepo) FindByCode(_ context.Context, code string) (*referral.Rule, error) {
	if code != "FRIEND10" {
		return nil, referral.ErrUnknownCode
	}
	return &referral.Rule{Code: code, Percent: decimal.NewFromInt(10), Description: "10% off"}, nil
}

func (memReferralRepo) EachCode(_ context.Context, fn func(string) error) error {
	return fn("FRIEND10")
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	platform := &stubPlatform{base: 10000}
	sessions := checkout.NewManager(checkout.ManagerDeps{
		Quoter:   platform,
		Balance:  platform,
		Methods:  platform,
		Gateway:  platform,
		Bookings: platform,
		Store:    kvstore.NewMemory(),
		Window:   5 * time.Millisecond,
		Logger:   zaptest.NewLogger(t),
	})
	h := New(sessions, referral.NewValidator(memReferralRepo{}, nil))
	srv := httptest.NewServer(h.Routes())
	t.Cleanup(srv.Close)
	return srv
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(raw))
	require.NoError(t, err)
	return resp
}

func decodeSnapshot(t *testing.T, resp *http.Response) checkout.Snapshot {
	t.Helper()
	defer resp.Body.Close()
	var snap checkout.Snapshot
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snap))
	return snap
}

func openSessionReq(t *testing.T, srv *httptest.Server) checkout.Snapshot {
	t.Helper()
	resp := postJSON(t, srv.URL+"/checkout", map[string]any{
		"draft": booking.Draft{
			BookingID:    "b1",
			InstructorID: "i1",
			ServiceID:    "s1",
			Date:         "2026-03-14",
			StartTime:    "14:00",
			DurationMins: json.Number("60"),
			TotalAmount:  "100.00",
		},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return decodeSnapshot(t, resp)
}

func TestCheckoutFlowOverHTTP(t *testing.T) {
	srv := newTestServer(t)

	snap := openSessionReq(t, srv)
	require.NotEmpty(t, snap.ID)
	assert.Equal(t, checkout.StepMethodSelection, snap.State.Step)
	base := srv.URL + "/checkout/" + snap.ID

	// Pick a payment method.
	resp := postOrPut(t, http.MethodPut, base+"/method", map[string]string{"paymentMethodId": "pm-1"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	snap = decodeSnapshot(t, resp)
	assert.Equal(t, checkout.StepConfirmation, snap.State.Step)

	// Confirm.
	resp = postJSON(t, base+"/confirm", struct{}{})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	snap = decodeSnapshot(t, resp)
	assert.Equal(t, checkout.StepSuccess, snap.State.Step)
}

func TestOpenSessionWithoutBookingID(t *testing.T) {
	srv := newTestServer(t)
	resp := postJSON(t, srv.URL+"/checkout", map[string]any{"draft": booking.Draft{}})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetUnknownSession(t *testing.T) {
	srv := newTestServer(t)
	resp, err := http.Get(srv.URL + "/checkout/does-not-exist")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestConfirmBeforeMethodSelectionConflicts(t *testing.T) {
	srv := newTestServer(t)
	snap := openSessionReq(t, srv)

	resp := postJSON(t, srv.URL+"/checkout/"+snap.ID+"/confirm", struct{}{})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestUpdateBookingReportsCause(t *testing.T) {
	srv := newTestServer(t)
	snap := openSessionReq(t, srv)

	resp := postOrPut(t, http.MethodPatch, srv.URL+"/checkout/"+snap.ID+"/booking",
		map[string]any{"durationMins": json.Number("90")})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	defer resp.Body.Close()

	var body struct {
		Cause pricing.CauseKind `json:"cause"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, pricing.CauseDurationChange, body.Cause)
}

func TestListMethods(t *testing.T) {
	srv := newTestServer(t)
	snap := openSessionReq(t, srv)

	resp, err := http.Get(srv.URL + "/checkout/" + snap.ID + "/methods")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var methods []payment.Method
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&methods))
	require.Len(t, methods, 1)
	assert.Equal(t, "pm-1", methods[0].ID)
}

func TestValidateReferralEndpoint(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/referral/friend10")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Code    string `json:"code"`
		Percent string `json:"percent"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "FRIEND10", body.Code)
	assert.Equal(t, "10.00", body.Percent)

	resp, err = http.Get(srv.URL + "/referral/NOPE99")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func postOrPut(t *testing.T, method, url string, body any) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req, err := http.NewRequest(method, url, bytes.NewReader(raw))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}
