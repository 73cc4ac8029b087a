package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusRefunded  Status = "refunded"
)

// Known reports whether the status is one the dashboard has a dedicated style for.
func (s Status) Known() bool {
	switch s {
	case StatusPending, StatusCompleted, StatusRefunded:
		return true
	default:
		return false
	}
}

type Customer struct {
	Name   string  `json:"name"`
	Email  string  `json:"email"`
	Avatar *string `json:"avatar,omitempty"`
}

type OrderRecord struct {
	ID            string          `json:"id"`
	OrderNumber   string          `json:"order_number"`
	Customer      Customer        `json:"customer"`
	OrderDate     Date            `json:"order_date"`
	Status        Status          `json:"status"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	PaymentStatus string          `json:"payment_status"`
	CreatedAt     string          `json:"created_at,omitempty"`
	UpdatedAt     string          `json:"updated_at,omitempty"`
}

// OrdersPage is one page of the order list as returned by GET /orders.
type OrdersPage struct {
	Orders     []OrderRecord `json:"orders"`
	Total      int           `json:"total"`
	Page       int           `json:"page"`
	Limit      int           `json:"limit"`
	TotalPages int           `json:"total_pages"`
}

type StatsSnapshot struct {
	TotalOrdersThisMonth int `json:"total_orders_this_month"`
	PendingOrders        int `json:"pending_orders"`
	ShippedOrders        int `json:"shipped_orders"`
	RefundedOrders       int `json:"refunded_orders"`
}

type BulkRequest struct {
	OrderIDs []string `json:"order_ids"`
}

type BulkStatusRequest struct {
	OrderIDs []string `json:"order_ids"`
	Status   Status   `json:"status"`
}

type BulkDeleteResult struct {
	DeletedCount int      `json:"deleted_count"`
	DeletedIDs   []string `json:"deleted_ids"`
}

type DuplicatedOrder struct {
	ID              string `json:"id"`
	OrderNumber     string `json:"order_number"`
	OriginalOrderID string `json:"original_order_id"`
}

type BulkDuplicateResult struct {
	DuplicatedCount int               `json:"duplicated_count"`
	NewOrders       []DuplicatedOrder `json:"new_orders"`
}

type StatusChange struct {
	ID     string `json:"id"`
	Status Status `json:"status"`
}

type BulkStatusResult struct {
	UpdatedCount int            `json:"updated_count"`
	Orders       []StatusChange `json:"orders"`
}

// OrderInput is the body of POST /orders and PUT /orders/{id}. On update every
// field is optional and zero values are left untouched by the server.
type OrderInput struct {
	Customer      *Customer        `json:"customer,omitempty"`
	TotalAmount   *decimal.Decimal `json:"total_amount,omitempty"`
	Status        Status           `json:"status,omitempty"`
	PaymentStatus string           `json:"payment_status,omitempty"`
}

const dateLayout = "2006-01-02"

// Date is a calendar day. On the wire it is either a bare ISO-8601 date or a
// full RFC 3339 timestamp.
type Date struct {
	time.Time
}

func NewDate(year int, month time.Month, day int) Date {
	return Date{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(dateLayout, s); err == nil {
		return Date{Time: t}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return Date{Time: t}, nil
	}
	// naive timestamps as written by datetime.isoformat()
	if t, err := time.Parse("2006-01-02T15:04:05.999999", s); err == nil {
		return Date{Time: t}, nil
	}
	return Date{}, fmt.Errorf("invalid order date %q", s)
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(d.Format(dateLayout))
}

func (d *Date) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*d = Date{}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("order date must be a string: %w", err)
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
