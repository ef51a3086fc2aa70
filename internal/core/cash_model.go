package core

import (
	"time"

	"github.com/shopspring/decimal"
)

type CashMovementType string

const (
	CashIn  CashMovementType = "in"
	CashOut CashMovementType = "out"
)

// CashMovement is a manual drawer entry (change fund top-up, supplier paid from the till).
type CashMovement struct {
	ID      int64            `json:"id"`
	OrgID   string           `json:"org_id"`
	Type    CashMovementType `json:"type"`
	Amount  decimal.Decimal  `json:"amount"`
	Reason  string           `json:"reason"`
	OrderID *string          `json:"order_id,omitempty"`
	UserID  string           `json:"user_id"`
	At      time.Time        `json:"at"`
	DateKey string           `json:"date_key"`
}

type CashMovementInput struct {
	Type    CashMovementType
	Amount  decimal.Decimal
	Reason  string
	OrderID string
}

type OpeningStatus string

const (
	OpeningOpen   OpeningStatus = "open"
	OpeningClosed OpeningStatus = "closed"
)

// Opening is a user's start-of-day record; at most one per (org, day, user).
type Opening struct {
	ID           int64            `json:"id"`
	OrgID        string           `json:"org_id"`
	DayKey       string           `json:"day_key"`
	UserID       string           `json:"user_id"`
	InitialCash  decimal.Decimal  `json:"initial_cash"`
	TasksDone    []string         `json:"tasks_done"`
	Status       OpeningStatus    `json:"status"`
	OpenedAt     time.Time        `json:"opened_at"`
	ClosedAt     *time.Time       `json:"closed_at,omitempty"`
	ExpectedCash *decimal.Decimal `json:"expected_cash,omitempty"`
	CountedCash  *decimal.Decimal `json:"counted_cash,omitempty"`
	CashDiff     *decimal.Decimal `json:"cash_diff,omitempty"`
}

type OpenDayInput struct {
	DayKey      string // empty means today
	InitialCash decimal.Decimal
	TasksDone   []string
}

// CashInputs are the sums that feed the expected-cash formula for one day.
type CashInputs struct {
	OpeningCash   decimal.Decimal `json:"opening_cash"`
	DeliveredCash decimal.Decimal `json:"delivered_cash"`
	CanceledCash  decimal.Decimal `json:"canceled_cash"`
	CashIn        decimal.Decimal `json:"cash_in"`
	CashOut       decimal.Decimal `json:"cash_out"`
}

type CashSnapshot struct {
	OrgID  string `json:"org_id"`
	DayKey string `json:"day_key"`
	CashInputs
	ExpectedCash decimal.Decimal `json:"expected_cash"`
}

// ComputeExpectedCash = opening + delivered − canceled + in − out.
func ComputeExpectedCash(in CashInputs) decimal.Decimal {
	return in.OpeningCash.
		Add(in.DeliveredCash).
		Sub(in.CanceledCash).
		Add(in.CashIn).
		Sub(in.CashOut)
}
