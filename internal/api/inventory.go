package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/rxdesk/rxdesk/internal/gateway"
	"github.com/rxdesk/rxdesk/pkg/models"
)

type InventoryClient struct {
	gw     *gateway.Gateway
	logger *logrus.Logger
}

func NewInventoryClient(gw *gateway.Gateway, logger *logrus.Logger) *InventoryClient {
	return &InventoryClient{gw: gw, logger: logger}
}

func (c *InventoryClient) List(ctx context.Context) ([]models.InventoryItem, error) {
	var items []models.InventoryItem
	if err := c.gw.JSON(ctx, http.MethodGet, "/inventory/", nil, &items); err != nil {
		return nil, err
	}
	c.logger.WithField("count", len(items)).Debug("Retrieved inventory items")
	return items, nil
}

func (c *InventoryClient) Get(ctx context.Context, id int) (models.InventoryItem, error) {
	var item models.InventoryItem
	if err := c.gw.JSON(ctx, http.MethodGet, fmt.Sprintf("/inventory/%d/", id), nil, &item); err != nil {
		return models.InventoryItem{}, err
	}
	return item, nil
}

func (c *InventoryClient) Create(ctx context.Context, item models.InventoryItem) (models.InventoryItem, error) {
	var created models.InventoryItem
	if err := c.gw.JSON(ctx, http.MethodPost, "/inventory/", item, &created); err != nil {
		return models.InventoryItem{}, err
	}

	c.logger.WithFields(logrus.Fields{
		"item_id": created.ID,
		"sku":     created.SKU,
	}).Info("Inventory item created")
	return created, nil
}

func (c *InventoryClient) Update(ctx context.Context, id int, item models.InventoryItem) (models.InventoryItem, error) {
	var updated models.InventoryItem
	if err := c.gw.JSON(ctx, http.MethodPut, fmt.Sprintf("/inventory/%d/", id), item, &updated); err != nil {
		return models.InventoryItem{}, err
	}
	c.logger.WithField("item_id", id).Info("Inventory item updated")
	return updated, nil
}

func (c *InventoryClient) Delete(ctx context.Context, id int) error {
	if err := c.gw.JSON(ctx, http.MethodDelete, fmt.Sprintf("/inventory/%d/", id), nil, nil); err != nil {
		return err
	}
	c.logger.WithField("item_id", id).Info("Inventory item deleted")
	return nil
}

// LowStock returns the items sitting below their reorder threshold.
func (c *InventoryClient) LowStock(ctx context.Context) ([]models.InventoryItem, error) {
	var items []models.InventoryItem
	if err := c.gw.JSON(ctx, http.MethodGet, "/low-stock/", nil, &items); err != nil {
		return nil, err
	}
	c.logger.WithField("count", len(items)).Debug("Retrieved low-stock items")
	return items, nil
}

// DownloadReport fetches the inventory CSV export as raw bytes.
func (c *InventoryClient) DownloadReport(ctx context.Context) ([]byte, error) {
	data, err := c.gw.Download(ctx, "/inventory-report/")
	if err != nil {
		return nil, err
	}
	c.logger.WithField("bytes", len(data)).Info("Downloaded inventory report")
	return data, nil
}
