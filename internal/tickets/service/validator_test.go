package tickets_test

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"park-ticketing/internal/apperr"
	"park-ticketing/internal/models"
	tickets "park-ticketing/internal/tickets/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Thursday 2026-12-31, for horizon checks that cross a short month.
var newYearsEve = time.Date(2026, 12, 31, 10, 0, 0, 0, time.UTC)

func newValidator(t *testing.T) *tickets.Validator {
	return newValidatorAt(t, fixedNow)
}

func newValidatorAt(t *testing.T, now time.Time) *tickets.Validator {
	store := newStore(t, filepath.Join(t.TempDir(), "tickets.json"))
	park := parkConfig()
	ledger := tickets.NewCapacityLedger(store, park.DailyCap, nil)
	return tickets.NewValidator(park, ledger, func() time.Time { return now })
}

func TestValidateRequestRules(t *testing.T) {
	v := newValidator(t)

	withVisitors := func(vs ...models.VisitorRequest) models.PurchaseRequest {
		req := purchase("2026-10-20", len(vs), "cash")
		req.Visitors = vs
		return req
	}

	tests := []struct {
		name    string
		req     models.PurchaseRequest
		auth    int64
		kind    apperr.Kind
		message string
		now     *time.Time
	}{
		{"identity mismatch", purchase("2026-10-20", 1, "cash"), 9, apperr.KindForbidden, "token does not match userId", nil},
		{"missing fields", models.PurchaseRequest{UserID: 1, Quantity: 1}, 1, apperr.KindBadRequest, "missing required fields: paymentMethod, visitDate", nil},
		{"unparseable date", purchase("20/10/2026", 1, "cash"), 1, apperr.KindBadRequest, "invalid visit date", nil},
		{"past date", purchase("2026-10-15", 1, "cash"), 1, apperr.KindBadRequest, "visit date is in the past", nil},
		{"closed monday", purchase("2026-10-19", 1, "cash"), 1, apperr.KindBadRequest, "park is closed on 2026-10-19", nil},
		{"christmas", purchase("2026-12-25", 1, "cash"), 1, apperr.KindBadRequest, "park is closed on 2026-12-25", nil},
		{"zero quantity", purchase("2026-10-20", 0, "cash"), 1, apperr.KindBadRequest, "quantity must be between 1 and 10", nil},
		{"eleven tickets", purchase("2026-10-20", 11, "cash"), 1, apperr.KindBadRequest, "quantity must be between 1 and 10", nil},
		{"bad payment", purchase("2026-10-20", 1, "bitcoin"), 1, apperr.KindBadRequest, "invalid payment method", nil},
		{"beyond horizon", purchase("2026-12-17", 1, "cash"), 1, apperr.KindBadRequest, "latest bookable date is 2026-12-16", nil},
		{"beyond horizon from month end", purchase("2027-03-02", 1, "cash"), 1, apperr.KindBadRequest, "latest bookable date is 2027-02-28", &newYearsEve},
		{"quantity of wrong type", func() models.PurchaseRequest {
			req := purchase("2026-10-20", 1, "cash")
			req.InvalidQuantity = true
			return req
		}(), 1, apperr.KindBadRequest, "quantity must be between 1 and 10", nil},
		{"userId of wrong type", func() models.PurchaseRequest {
			req := purchase("2026-10-20", 1, "cash")
			req.InvalidUserID = true
			return req
		}(), 1, apperr.KindForbidden, "token does not match userId", nil},
		{"visitors of wrong type", func() models.PurchaseRequest {
			req := purchase("2026-10-20", 1, "cash")
			req.Visitors = nil
			req.InvalidVisitors = true
			return req
		}(), 1, apperr.KindBadRequest, "visitors must be a list", nil},
		{"visitor count", func() models.PurchaseRequest {
			req := purchase("2026-10-20", 3, "cash")
			req.Visitors = req.Visitors[:2]
			return req
		}(), 1, apperr.KindBadRequest, "visitors count (2) does not match quantity (3)", nil},
		{"age too high", withVisitors(
			models.VisitorRequest{Age: json.RawMessage("40"), PassType: "vip"},
			models.VisitorRequest{Age: json.RawMessage("121"), PassType: "regular"},
		), 1, apperr.KindBadRequest, "visitor 2: age must be a number between 0 and 120", nil},
		{"age as string", withVisitors(
			models.VisitorRequest{Age: json.RawMessage(`"12"`), PassType: "regular"},
		), 1, apperr.KindBadRequest, "visitor 1: age must be a number", nil},
		{"age missing", withVisitors(
			models.VisitorRequest{PassType: "regular"},
		), 1, apperr.KindBadRequest, "visitor 1: age must be a number", nil},
		{"negative age", withVisitors(
			models.VisitorRequest{Age: json.RawMessage("-1"), PassType: "regular"},
		), 1, apperr.KindBadRequest, "visitor 1: age", nil},
		{"fractional age", withVisitors(
			models.VisitorRequest{Age: json.RawMessage("4.5"), PassType: "regular"},
		), 1, apperr.KindBadRequest, "visitor 1: age", nil},
		{"pass type", withVisitors(
			models.VisitorRequest{Age: json.RawMessage("10"), PassType: "regular"},
			models.VisitorRequest{Age: json.RawMessage("10"), PassType: "regular"},
			models.VisitorRequest{Age: json.RawMessage("10"), PassType: "platinum"},
		), 1, apperr.KindBadRequest, "visitor 3: invalid pass type", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			validator := v
			if tt.now != nil {
				validator = newValidatorAt(t, *tt.now)
			}
			_, err := validator.ValidateRequest(tt.req, tt.auth)
			require.Error(t, err)
			assert.True(t, apperr.IsKind(err, tt.kind), "kind of %v", err)
			assert.Contains(t, err.Error(), tt.message)
		})
	}
}

func TestValidateRequestOrder(t *testing.T) {
	v := newValidator(t)

	// closed day and invalid quantity: the calendar rule fires first
	_, err := v.ValidateRequest(purchase("2026-10-19", 0, "cash"), 1)
	assert.Contains(t, err.Error(), "park is closed")

	// bad payment and too far ahead: payment is checked before the horizon
	_, err = v.ValidateRequest(purchase("2027-03-02", 1, "cheque"), 1)
	assert.Contains(t, err.Error(), "invalid payment method")
}

func TestValidateRequestAccepts(t *testing.T) {
	v := newValidator(t)

	req := purchase("2026-12-16", 2, "online")
	req.Visitors[0] = models.VisitorRequest{Age: json.RawMessage("0"), PassType: "vip"}
	req.Visitors[1] = models.VisitorRequest{Age: json.RawMessage("120"), PassType: "regular"}

	validated, err := v.ValidateRequest(req, 1)
	require.NoError(t, err)
	assert.Equal(t, "2026-12-16", validated.DayKey)
	assert.Equal(t, models.PaymentOnline, validated.PaymentMethod)
	assert.Equal(t, []models.Visitor{{Age: 0, PassType: models.PassVIP}, {Age: 120, PassType: models.PassRegular}}, validated.Visitors)
}

func TestValidateRequestAcceptsTimestamps(t *testing.T) {
	v := newValidator(t)

	validated, err := v.ValidateRequest(purchase("2026-10-20T18:45:00Z", 1, "cash"), 1)
	require.NoError(t, err)
	assert.Equal(t, "2026-10-20", validated.DayKey)
}

func TestValidateIncludesCapacity(t *testing.T) {
	ctx := context.Background()
	store := newStore(t, filepath.Join(t.TempDir(), "tickets.json"))
	require.NoError(t, store.AppendTicket(ctx, models.Ticket{ID: 1, VisitDate: "2026-10-20", Quantity: 15, UserID: 1}))

	park := parkConfig()
	v := tickets.NewValidator(park, tickets.NewCapacityLedger(store, park.DailyCap, nil), func() time.Time { return fixedNow })

	_, err := v.Validate(ctx, purchase("2026-10-20", 1, "cash"), 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "daily capacity of 15 reached")

	_, err = v.Validate(ctx, purchase("2026-10-21", 1, "cash"), 1)
	assert.NoError(t, err)
}

func TestValidateRequestHorizonAtMonthEnd(t *testing.T) {
	v := newValidatorAt(t, newYearsEve)

	validated, err := v.ValidateRequest(purchase("2027-02-28", 1, "cash"), 1)
	require.NoError(t, err)
	assert.Equal(t, "2027-02-28", validated.DayKey)
}
