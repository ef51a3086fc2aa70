package core

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidQuantity     = errors.New("invalid quantity")
	ErrNotFound            = errors.New("not found")
	ErrInsufficientStock   = errors.New("insufficient stock")
	ErrInsufficientCredits = errors.New("insufficient credits")
	ErrInvalidTransition   = errors.New("invalid transition")
	ErrTenantMismatch      = errors.New("tenant mismatch")
	// ErrInvalidInput covers malformed requests that are not quantity problems
	// (unknown pay method, bad day key, missing price).
	ErrInvalidInput = errors.New("invalid input")
)

// LedgerError attaches operator-facing context to one of the sentinel errors above.
// errors.Is(err, ErrInsufficientStock) etc. work through Unwrap.
type LedgerError struct {
	Kind   error
	Op     string
	Entity string
	ID     string
	Name   string
	Detail string
}

func (e *LedgerError) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(e.Kind.Error())
	if e.Entity != "" {
		b.WriteString(" for ")
		b.WriteString(e.Entity)
		switch {
		case e.Name != "" && e.ID != "":
			fmt.Fprintf(&b, " %q (%s)", e.Name, e.ID)
		case e.Name != "":
			fmt.Fprintf(&b, " %q", e.Name)
		case e.ID != "":
			b.WriteString(" ")
			b.WriteString(e.ID)
		}
	}
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	return b.String()
}

func (e *LedgerError) Unwrap() error { return e.Kind }

func notFound(op, entity, id string) error {
	return &LedgerError{Kind: ErrNotFound, Op: op, Entity: entity, ID: id}
}

func tenantMismatch(op, entity, id string) error {
	return &LedgerError{Kind: ErrTenantMismatch, Op: op, Entity: entity, ID: id}
}

func invalidQuantity(op, entity, id string, qty decimal.Decimal, rule string) error {
	return &LedgerError{
		Kind: ErrInvalidQuantity, Op: op, Entity: entity, ID: id,
		Detail: fmt.Sprintf("got %s, must be %s", qty, rule),
	}
}

func invalidInput(op, detail string) error {
	return &LedgerError{Kind: ErrInvalidInput, Op: op, Detail: detail}
}

func insufficientStock(op string, item InventoryItem, required decimal.Decimal) error {
	return &LedgerError{
		Kind: ErrInsufficientStock, Op: op, Entity: "ingredient", ID: item.ID, Name: item.Name,
		Detail: fmt.Sprintf("available %s, required %s", item.Stock, required),
	}
}

func invalidTransition(op, entity, id, from, action string) error {
	return &LedgerError{
		Kind: ErrInvalidTransition, Op: op, Entity: entity, ID: id,
		Detail: fmt.Sprintf("cannot %s while %s", action, from),
	}
}
