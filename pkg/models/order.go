package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Order statuses as the backend reports them.
const (
	StatusPending    = "PENDING"
	StatusProcessing = "PROCESSING"
	StatusShipped    = "SHIPPED"
	StatusDelivered  = "DELIVERED"
	StatusCancelled  = "CANCELLED"
)

var orderStatuses = map[string]bool{
	StatusPending:    true,
	StatusProcessing: true,
	StatusShipped:    true,
	StatusDelivered:  true,
	StatusCancelled:  true,
}

// ValidateStatus rejects status strings the backend would not accept.
func ValidateStatus(status string) error {
	if !orderStatuses[status] {
		return fmt.Errorf("invalid order status %q", status)
	}
	return nil
}

type Order struct {
	ID              int             `json:"id"`
	User            string          `json:"user,omitempty"`
	Items           []OrderItem     `json:"items"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	DeliveryAddress string          `json:"delivery_address"`
	BillingName     string          `json:"billing_name,omitempty"`
	BillingAddress  string          `json:"billing_address"`
	TaxID           string          `json:"tax_id,omitempty"`
	Status          string          `json:"status"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// OrderItem is a line of a placed order. Quantity and price are snapshots
// taken when the order was created, not live inventory values.
type OrderItem struct {
	ItemID       int             `json:"item"`
	ItemName     string          `json:"item_name,omitempty"`
	ItemSKU      string          `json:"item_sku,omitempty"`
	Quantity     int             `json:"quantity"`
	PriceAtOrder decimal.Decimal `json:"price_at_order"`
}
