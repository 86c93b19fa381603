package models

import (
	"bytes"
	"encoding/json"
	"math"
	"time"

	"github.com/uptrace/bun"
)

type PassType string

const (
	PassRegular PassType = "regular"
	PassVIP     PassType = "vip"
)

func (p PassType) Valid() bool {
	return p == PassRegular || p == PassVIP
}

type PaymentMethod string

const (
	PaymentCash   PaymentMethod = "cash"
	PaymentOnline PaymentMethod = "online"
)

func (p PaymentMethod) Valid() bool {
	return p == PaymentCash || p == PaymentOnline
}

type Visitor struct {
	Age      int      `json:"age"`
	PassType PassType `json:"passType"`
}

// VisitorRequest keeps the raw age so a non-numeric value can be reported
// against the visitor that carried it instead of failing the whole body.
type VisitorRequest struct {
	Age      json.RawMessage `json:"age"`
	PassType string          `json:"passType"`
}

type PurchaseRequest struct {
	VisitDate     string           `json:"visitDate"`
	Quantity      int              `json:"quantity"`
	Visitors      []VisitorRequest `json:"visitors"`
	PaymentMethod string           `json:"paymentMethod"`
	UserID        int64            `json:"userId"`

	// Set by UnmarshalJSON when the body carried a value of the wrong type.
	InvalidUserID   bool `json:"-"`
	InvalidQuantity bool `json:"-"`
	InvalidVisitors bool `json:"-"`
}

// UnmarshalJSON decodes every field leniently so a badly typed value is
// reported by the rule that owns it instead of rejecting the whole body.
func (r *PurchaseRequest) UnmarshalJSON(data []byte) error {
	var raw struct {
		VisitDate     json.RawMessage `json:"visitDate"`
		Quantity      json.RawMessage `json:"quantity"`
		Visitors      json.RawMessage `json:"visitors"`
		PaymentMethod json.RawMessage `json:"paymentMethod"`
		UserID        json.RawMessage `json:"userId"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*r = PurchaseRequest{
		VisitDate:     looseString(raw.VisitDate),
		PaymentMethod: looseString(raw.PaymentMethod),
	}

	var ok bool
	if r.UserID, ok = WholeNumber(raw.UserID); !ok {
		r.InvalidUserID = true
	}
	quantity, ok := WholeNumber(raw.Quantity)
	if !ok || quantity > math.MaxInt32 || quantity < math.MinInt32 {
		r.InvalidQuantity = true
	} else {
		r.Quantity = int(quantity)
	}
	if !isAbsent(raw.Visitors) {
		if err := json.Unmarshal(raw.Visitors, &r.Visitors); err != nil {
			r.Visitors = nil
			r.InvalidVisitors = true
		}
	}
	return nil
}

// WholeNumber reads a JSON number without a fractional part. An absent or null
// value yields (0, true); strings, booleans and fractions yield false.
func WholeNumber(raw json.RawMessage) (int64, bool) {
	if isAbsent(raw) {
		return 0, true
	}
	raw = bytes.TrimSpace(raw)
	if raw[0] != '-' && (raw[0] < '0' || raw[0] > '9') {
		return 0, false
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0, false
	}
	if i, err := n.Int64(); err == nil {
		return i, true
	}
	f, err := n.Float64()
	if err != nil || f != math.Trunc(f) || f > math.MaxInt64 || f < math.MinInt64 {
		return 0, false
	}
	return int64(f), true
}

func isAbsent(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) == 0 || bytes.Equal(raw, []byte("null"))
}

// looseString keeps non-string values as their JSON text so the field's own
// rule rejects them with its usual message.
func looseString(raw json.RawMessage) string {
	if isAbsent(raw) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(bytes.TrimSpace(raw))
}

type Ticket struct {
	bun.BaseModel `bun:"table:tickets"`

	ID            int64         `bun:"id,pk" json:"id"`
	VisitDate     string        `bun:"visit_date,notnull" json:"visitDate"`
	Quantity      int           `bun:"quantity,notnull" json:"quantity"`
	Visitors      []Visitor     `bun:"visitors,type:json" json:"visitors"`
	PaymentMethod PaymentMethod `bun:"payment_method,notnull" json:"paymentMethod"`
	UserID        int64         `bun:"user_id,notnull" json:"userId"`
	CheckoutURL   string        `bun:"checkout_url,nullzero" json:"checkoutUrl,omitempty"`
	EmailSent     bool          `bun:"email_sent,notnull" json:"emailSent"`
	QRPayload     string        `bun:"qr_payload" json:"qrPayload"`
	IssuedAt      time.Time     `bun:"issued_at,notnull" json:"issuedAt"`
}

// QRContent is what gets embedded in the ticket's QR code.
type QRContent struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"userId"`
	VisitDate string    `json:"visitDate"`
	Visitors  []Visitor `json:"visitors"`
}

func (t Ticket) QRContent() QRContent {
	return QRContent{
		ID:        t.ID,
		UserID:    t.UserID,
		VisitDate: t.VisitDate,
		Visitors:  t.Visitors,
	}
}

// DayAvailability is the capacity view of a single calendar day.
type DayAvailability struct {
	Date      string `json:"date"`
	Open      bool   `json:"open"`
	Sold      int    `json:"sold"`
	Remaining int    `json:"remaining"`
	DailyCap  int    `json:"dailyCap"`
}
