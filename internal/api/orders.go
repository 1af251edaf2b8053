package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/rxdesk/rxdesk/internal/gateway"
	"github.com/rxdesk/rxdesk/pkg/models"
)

type OrderClient struct {
	gw     *gateway.Gateway
	logger *logrus.Logger
}

func NewOrderClient(gw *gateway.Gateway, logger *logrus.Logger) *OrderClient {
	return &OrderClient{gw: gw, logger: logger}
}

// OrderItemRef selects an inventory item and quantity for a new order.
// Prices are resolved server-side from the item snapshot.
type OrderItemRef struct {
	ID       int `json:"id"`
	Quantity int `json:"quantity"`
}

type CreateOrderRequest struct {
	Items           []OrderItemRef  `json:"items"`
	DeliveryAddress string          `json:"delivery_address"`
	BillingAddress  string          `json:"billing_address"`
	BillingName     string          `json:"billing_name,omitempty"`
	TaxID           string          `json:"tax_id,omitempty"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
}

func (c *OrderClient) Create(ctx context.Context, req CreateOrderRequest) (models.Order, error) {
	if len(req.Items) == 0 {
		return models.Order{}, fmt.Errorf("no items selected for order")
	}

	var order models.Order
	if err := c.gw.JSON(ctx, http.MethodPost, "/orders/", req, &order); err != nil {
		return models.Order{}, err
	}

	c.logger.WithFields(logrus.Fields{
		"order_id":     order.ID,
		"total_amount": order.TotalAmount.String(),
		"status":       order.Status,
	}).Info("Order placed")
	return order, nil
}

func (c *OrderClient) List(ctx context.Context) ([]models.Order, error) {
	var orders []models.Order
	if err := c.gw.JSON(ctx, http.MethodGet, "/orders/", nil, &orders); err != nil {
		return nil, err
	}
	c.logger.WithField("count", len(orders)).Debug("Retrieved orders")
	return orders, nil
}

func (c *OrderClient) Get(ctx context.Context, id int) (models.Order, error) {
	var order models.Order
	if err := c.gw.JSON(ctx, http.MethodGet, fmt.Sprintf("/orders/%d/", id), nil, &order); err != nil {
		return models.Order{}, err
	}
	return order, nil
}

// History returns the current user's past orders, newest first.
func (c *OrderClient) History(ctx context.Context) ([]models.Order, error) {
	var orders []models.Order
	if err := c.gw.JSON(ctx, http.MethodGet, "/orders/history/", nil, &orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// UpdateStatus moves an order to a new status. Admin only; the status is
// validated locally so a typo never reaches the backend.
func (c *OrderClient) UpdateStatus(ctx context.Context, id int, status string) error {
	if err := models.ValidateStatus(status); err != nil {
		return err
	}

	payload := map[string]string{"status": status}
	if err := c.gw.JSON(ctx, http.MethodPost, fmt.Sprintf("/orders/%d/update-status/", id), payload, nil); err != nil {
		return err
	}

	c.logger.WithFields(logrus.Fields{
		"order_id": id,
		"status":   status,
	}).Info("Order status updated")
	return nil
}
