package models

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type InventoryItem struct {
	ID             int             `json:"id"`
	User           string          `json:"user,omitempty"`
	Name           string          `json:"name"`
	SKU            string          `json:"sku"`
	Quantity       int             `json:"quantity"`
	Price          decimal.Decimal `json:"price"`
	Supplier       *Supplier       `json:"supplier,omitempty"`
	SupplierID     int             `json:"supplier_id,omitempty"`
	ExpirationDate string          `json:"expiration_date,omitempty"`
	Threshold      int             `json:"threshold"`
	CreatedAt      time.Time       `json:"created_at,omitempty"`
}

// Shortfall is how many units below the reorder threshold the item sits.
// Zero when the item is adequately stocked.
func (i InventoryItem) Shortfall() int {
	if i.Quantity >= i.Threshold {
		return 0
	}
	return i.Threshold - i.Quantity
}

type Supplier struct {
	ID        int    `json:"id"`
	Name      string `json:"name"`
	GSTNumber string `json:"gst_number"`
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone,omitempty"`
	Address   string `json:"address"`
	CreatedBy string `json:"created_by,omitempty"`
}

// gstPattern matches the Indian GSTIN format, e.g. 22AAAAA0000A1Z5.
var gstPattern = regexp.MustCompile(`^[0-9]{2}[A-Z]{5}[0-9]{4}[A-Z]{1}[1-9A-Z]{1}Z[0-9A-Z]{1}$`)

// NormalizeGST uppercases a GST number the way the entry form does.
func NormalizeGST(gst string) string {
	return strings.ToUpper(strings.TrimSpace(gst))
}

// ValidateGST checks GSTIN format. A blank value is allowed; suppliers
// are not required to carry one.
func ValidateGST(gst string) error {
	if gst == "" {
		return nil
	}
	if !gstPattern.MatchString(gst) {
		return fmt.Errorf("invalid GST format %q, expected format: 22AAAAA0000A1Z5", gst)
	}
	return nil
}

type User struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	IsStaff  bool   `json:"is_staff"`
}

// TokenPair is the credential pair issued at login. Both values are opaque
// to the client; no expiry is tracked locally.
type TokenPair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}
