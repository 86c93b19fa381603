package tickets

import (
	"bytes"
	"context"
	"encoding/json"
	"math"
	"strings"
	"time"

	"park-ticketing/internal/apperr"
	"park-ticketing/internal/calendar"
	"park-ticketing/internal/config"
	"park-ticketing/internal/models"
)

// ValidatedRequest is a purchase request that passed every field rule.
type ValidatedRequest struct {
	Day           time.Time
	DayKey        string
	Quantity      int
	Visitors      []models.Visitor
	PaymentMethod models.PaymentMethod
	UserID        int64
}

type Validator struct {
	park   config.ParkConfig
	ledger *CapacityLedger
	now    func() time.Time
}

func NewValidator(park config.ParkConfig, ledger *CapacityLedger, now func() time.Time) *Validator {
	if now == nil {
		now = time.Now
	}
	return &Validator{park: park, ledger: ledger, now: now}
}

// Validate runs every rule, capacity included. Callers that need the capacity
// check inside a critical section use ValidateRequest and CheckCapacity.
func (v *Validator) Validate(ctx context.Context, req models.PurchaseRequest, authUserID int64) (*ValidatedRequest, error) {
	validated, err := v.ValidateRequest(req, authUserID)
	if err != nil {
		return nil, err
	}
	if err := v.CheckCapacity(ctx, validated); err != nil {
		return nil, err
	}
	return validated, nil
}

// ValidateRequest applies the field and calendar rules in order and stops at
// the first failure.
func (v *Validator) ValidateRequest(req models.PurchaseRequest, authUserID int64) (*ValidatedRequest, error) {
	if req.InvalidUserID || authUserID != req.UserID {
		return nil, apperr.Forbidden("token does not match userId")
	}

	var missing []string
	if strings.TrimSpace(req.PaymentMethod) == "" {
		missing = append(missing, "paymentMethod")
	}
	if strings.TrimSpace(req.VisitDate) == "" {
		missing = append(missing, "visitDate")
	}
	if req.UserID == 0 {
		missing = append(missing, "userId")
	}
	if len(missing) > 0 {
		return nil, apperr.BadRequest("missing required fields: %s", strings.Join(missing, ", "))
	}

	policy := v.park.Policy
	day, err := policy.Parse(req.VisitDate)
	if err != nil {
		return nil, apperr.BadRequest("invalid visit date %q", req.VisitDate)
	}
	today := policy.Today(v.now())
	if calendar.Before(day, today) {
		return nil, apperr.BadRequest("visit date is in the past")
	}

	if !policy.IsOpen(day) {
		return nil, apperr.BadRequest("park is closed on %s", calendar.Key(day))
	}

	if req.InvalidQuantity || req.Quantity < 1 || req.Quantity > v.park.MaxPerPurchase {
		return nil, apperr.BadRequest("quantity must be between 1 and %d", v.park.MaxPerPurchase)
	}

	method := models.PaymentMethod(req.PaymentMethod)
	if !method.Valid() {
		return nil, apperr.BadRequest("invalid payment method %q", req.PaymentMethod)
	}

	cutoff := calendar.AddMonths(today, v.park.HorizonMonths)
	if calendar.Before(cutoff, day) {
		return nil, apperr.BadRequest("visit date is too far ahead, latest bookable date is %s", calendar.Key(cutoff))
	}

	if req.InvalidVisitors {
		return nil, apperr.BadRequest("visitors must be a list of {age, passType} objects")
	}
	if len(req.Visitors) != req.Quantity {
		return nil, apperr.BadRequest("visitors count (%d) does not match quantity (%d)", len(req.Visitors), req.Quantity)
	}

	visitors := make([]models.Visitor, len(req.Visitors))
	for i, raw := range req.Visitors {
		age, ok := parseAge(raw.Age, v.park.MaxAge)
		if !ok {
			return nil, apperr.BadRequest("visitor %d: age must be a number between 0 and %d", i+1, v.park.MaxAge)
		}
		pass := models.PassType(raw.PassType)
		if !pass.Valid() {
			return nil, apperr.BadRequest("visitor %d: invalid pass type %q", i+1, raw.PassType)
		}
		visitors[i] = models.Visitor{Age: age, PassType: pass}
	}

	return &ValidatedRequest{
		Day:           day,
		DayKey:        calendar.Key(day),
		Quantity:      req.Quantity,
		Visitors:      visitors,
		PaymentMethod: method,
		UserID:        req.UserID,
	}, nil
}

// CheckCapacity is the last rule. It reads the store, so it should run while
// the day is locked.
func (v *Validator) CheckCapacity(ctx context.Context, req *ValidatedRequest) error {
	decision, err := v.ledger.CanAccept(ctx, req.Day, req.Quantity)
	if err != nil {
		return apperr.Internal("failed to read daily capacity", err)
	}
	if decision.Accepted {
		return nil
	}
	if decision.Remaining == 0 {
		return apperr.BadRequest("daily capacity of %d reached for %s", v.ledger.DailyCap(), req.DayKey)
	}
	return apperr.BadRequest("not enough capacity: only %d tickets left for %s", decision.Remaining, req.DayKey)
}

// parseAge accepts JSON numbers with no fractional part. Strings, null and
// missing values are rejected.
func parseAge(raw json.RawMessage, maxAge int) (int, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] == '"' || bytes.Equal(raw, []byte("null")) {
		return 0, false
	}
	var value float64
	if err := json.Unmarshal(raw, &value); err != nil {
		return 0, false
	}
	if value != math.Trunc(value) || value < 0 || value > float64(maxAge) {
		return 0, false
	}
	return int(value), true
}
