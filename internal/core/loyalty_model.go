package core

import (
	"strings"
	"time"
)

// StampsPerCredit is how many stamps convert into one redeemable credit.
const StampsPerCredit = 10

type Customer struct {
	ID          string    `json:"id"`
	OrgID       string    `json:"org_id"`
	Name        string    `json:"name"`
	Phone       string    `json:"phone"`
	TotalStamps int       `json:"total_stamps"`
	CreatedAt   time.Time `json:"created_at"`
}

// StampsProgress is the number of stamps towards the next credit.
func (c Customer) StampsProgress() int { return c.TotalStamps % StampsPerCredit }

// FreeCredits is the number of credits available to redeem.
func (c Customer) FreeCredits() int { return c.TotalStamps / StampsPerCredit }

type LoyaltyEventType string

const (
	LoyaltyEarn   LoyaltyEventType = "earn"
	LoyaltyRedeem LoyaltyEventType = "redeem"
)

type LoyaltyEvent struct {
	ID         int64            `json:"id"`
	OrgID      string           `json:"org_id"`
	CustomerID string           `json:"customer_id"`
	Type       LoyaltyEventType `json:"type"`
	Delta      int              `json:"delta"`
	OrderID    *string          `json:"order_id,omitempty"`
	UserID     *string          `json:"user_id,omitempty"`
	At         time.Time        `json:"at"`
}

type CreateCustomerInput struct {
	Name  string
	Phone string
}

// AccrualResult reports what a delivery accrual did. Applied is false for no-ops.
type AccrualResult struct {
	OrderID    string    `json:"order_id"`
	CustomerID string    `json:"customer_id,omitempty"`
	Stamps     int       `json:"stamps"`
	Applied    bool      `json:"applied"`
	Customer   *Customer `json:"customer,omitempty"`
}

// countBeverageUnits sums line quantities whose category is in beverages (case-insensitive).
func countBeverageUnits(lines []OrderLine, beverages map[string]bool) int {
	n := 0
	for _, l := range lines {
		if beverages[strings.ToLower(strings.TrimSpace(l.Category))] {
			n += int(l.Qty.IntPart())
		}
	}
	return n
}

func categorySet(categories []string) map[string]bool {
	set := make(map[string]bool, len(categories))
	for _, c := range categories {
		c = strings.ToLower(strings.TrimSpace(c))
		if c != "" {
			set[c] = true
		}
	}
	return set
}
