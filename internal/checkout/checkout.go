// Package checkout drives the three-stage order flow: Delivery, Billing,
// Confirmation. It accumulates the draft's form data, gates forward
// transitions on required fields, computes pricing, and submits the final
// order through the orders client.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/rxdesk/rxdesk/internal/api"
	"github.com/rxdesk/rxdesk/pkg/models"
)

type Stage int

const (
	StageDelivery Stage = iota
	StageBilling
	StageConfirmation
)

func (s Stage) String() string {
	switch s {
	case StageDelivery:
		return "delivery"
	case StageBilling:
		return "billing"
	case StageConfirmation:
		return "confirmation"
	default:
		return "unknown"
	}
}

var (
	ErrAtFirstStage    = errors.New("already at the first stage")
	ErrNotConfirmation = errors.New("order can only be submitted from the confirmation stage")
	ErrSubmitInFlight  = errors.New("a submission is already in flight")
	ErrAlreadyPlaced   = errors.New("order already placed")
	ErrNoItems         = errors.New("checkout requires at least one item")
)

// ValidationError reports the required fields a stage transition is missing.
type ValidationError struct {
	Stage  Stage
	Fields []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("missing required %s fields: %s", e.Stage, strings.Join(e.Fields, ", "))
}

type DeliveryAddress struct {
	Street  string
	City    string
	State   string
	ZipCode string
	Phone   string
}

// Formatted renders the address the way the backend stores it.
func (a DeliveryAddress) Formatted() string {
	return fmt.Sprintf("%s, %s, %s %s", a.Street, a.City, a.State, a.ZipCode)
}

type BillingInfo struct {
	SameAsDelivery bool
	Name           string
	Address        string
	TaxID          string
}

// OrderPlacer is the slice of the orders client the checkout needs.
type OrderPlacer interface {
	Create(ctx context.Context, req api.CreateOrderRequest) (models.Order, error)
}

type Checkout struct {
	stage     Stage
	items     []LineItem
	discounts []Discount
	delivery  DeliveryAddress
	billing   BillingInfo
	busy      bool
	placed    bool
	orders    OrderPlacer
	logger    *logrus.Logger
}

// New starts a draft from an item selection. Items are snapshots: the
// slice is copied and never re-fetched or mutated afterwards. Discount
// values are clamped to zero or above on entry.
func New(items []LineItem, discounts []Discount, orders OrderPlacer, logger *logrus.Logger) (*Checkout, error) {
	if len(items) == 0 {
		return nil, ErrNoItems
	}

	snapshot := make([]LineItem, len(items))
	copy(snapshot, items)

	clamped := make([]Discount, len(discounts))
	copy(clamped, discounts)
	for i := range clamped {
		if clamped[i].Value.IsNegative() {
			clamped[i].Value = decimal.Zero
		}
	}

	return &Checkout{
		stage:     StageDelivery,
		items:     snapshot,
		discounts: clamped,
		billing:   BillingInfo{SameAsDelivery: true},
		orders:    orders,
		logger:    logger,
	}, nil
}

func (c *Checkout) Stage() Stage { return c.stage }

func (c *Checkout) Busy() bool { return c.busy }

func (c *Checkout) Items() []LineItem {
	items := make([]LineItem, len(c.items))
	copy(items, c.items)
	return items
}

func (c *Checkout) Delivery() DeliveryAddress { return c.delivery }

func (c *Checkout) Billing() BillingInfo { return c.billing }

// SetDelivery updates the delivery form. It never retro-updates a billing
// address already derived from an earlier toggle.
func (c *Checkout) SetDelivery(addr DeliveryAddress) {
	c.delivery = addr
}

// SetBilling updates the editable billing fields. Ignored for the address
// while SameAsDelivery is set, since the address is derived in that mode.
func (c *Checkout) SetBilling(name, address, taxID string) {
	c.billing.Name = name
	c.billing.TaxID = taxID
	if !c.billing.SameAsDelivery {
		c.billing.Address = address
	}
}

// SetSameAsDelivery toggles the derived billing address. Toggling on takes a
// one-time copy of the current delivery fields; toggling off retains that
// copy as an editable starting value rather than clearing it.
func (c *Checkout) SetSameAsDelivery(same bool) {
	c.billing.SameAsDelivery = same
	if same {
		c.billing.Address = c.delivery.Formatted()
	}
}

// Next advances one stage. The Delivery stage requires street, city, state
// and zip code; the Billing stage requires name and address when the billing
// address is not derived from delivery. On rejection the stage is unchanged.
func (c *Checkout) Next() error {
	switch c.stage {
	case StageDelivery:
		if missing := c.missingDeliveryFields(); len(missing) > 0 {
			return &ValidationError{Stage: StageDelivery, Fields: missing}
		}
		c.stage = StageBilling
	case StageBilling:
		if !c.billing.SameAsDelivery {
			var missing []string
			if strings.TrimSpace(c.billing.Name) == "" {
				missing = append(missing, "name")
			}
			if strings.TrimSpace(c.billing.Address) == "" {
				missing = append(missing, "address")
			}
			if len(missing) > 0 {
				return &ValidationError{Stage: StageBilling, Fields: missing}
			}
		}
		c.stage = StageConfirmation
	case StageConfirmation:
		return ErrNotConfirmation
	}

	c.logger.WithField("stage", c.stage.String()).Debug("Checkout advanced")
	return nil
}

// Back steps one stage toward Delivery. All entered data is retained.
func (c *Checkout) Back() error {
	if c.stage == StageDelivery {
		return ErrAtFirstStage
	}
	c.stage--
	c.logger.WithField("stage", c.stage.String()).Debug("Checkout stepped back")
	return nil
}

func (c *Checkout) missingDeliveryFields() []string {
	var missing []string
	if strings.TrimSpace(c.delivery.Street) == "" {
		missing = append(missing, "street")
	}
	if strings.TrimSpace(c.delivery.City) == "" {
		missing = append(missing, "city")
	}
	if strings.TrimSpace(c.delivery.State) == "" {
		missing = append(missing, "state")
	}
	if strings.TrimSpace(c.delivery.ZipCode) == "" {
		missing = append(missing, "zipCode")
	}
	return missing
}

// Subtotal is the undiscounted sum over the item snapshot.
func (c *Checkout) Subtotal() decimal.Decimal {
	return Subtotal(c.items)
}

// Total applies the discount sequence to the subtotal.
func (c *Checkout) Total() decimal.Decimal {
	return ApplyDiscounts(c.Subtotal(), c.discounts)
}

// Submit places the order. Only valid from the Confirmation stage, and only
// one submission may be in flight. On failure the draft is fully retained at
// Confirmation and may be resubmitted; on success the draft is done.
func (c *Checkout) Submit(ctx context.Context) (models.Order, error) {
	if c.placed {
		return models.Order{}, ErrAlreadyPlaced
	}
	if c.stage != StageConfirmation {
		return models.Order{}, ErrNotConfirmation
	}
	if c.busy {
		return models.Order{}, ErrSubmitInFlight
	}

	c.busy = true
	defer func() { c.busy = false }()

	billingAddress := c.billing.Address
	if c.billing.SameAsDelivery {
		billingAddress = c.delivery.Formatted()
	}

	req := api.CreateOrderRequest{
		Items:           make([]api.OrderItemRef, 0, len(c.items)),
		DeliveryAddress: c.delivery.Formatted(),
		BillingAddress:  billingAddress,
		BillingName:     c.billing.Name,
		TaxID:           c.billing.TaxID,
		TotalAmount:     c.Total(),
	}
	for _, item := range c.items {
		req.Items = append(req.Items, api.OrderItemRef{ID: item.ID, Quantity: item.Quantity})
	}

	order, err := c.orders.Create(ctx, req)
	if err != nil {
		c.logger.WithError(err).Warn("Order submission failed")
		return models.Order{}, err
	}

	c.placed = true
	c.logger.WithFields(logrus.Fields{
		"order_id": order.ID,
		"total":    order.TotalAmount.String(),
	}).Info("Checkout complete")
	return order, nil
}

// Placed reports whether the draft reached the terminal success state.
func (c *Checkout) Placed() bool { return c.placed }
