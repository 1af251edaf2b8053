package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/rxdesk/rxdesk/internal/gateway"
	"github.com/rxdesk/rxdesk/pkg/models"
)

type SupplierClient struct {
	gw     *gateway.Gateway
	logger *logrus.Logger
}

func NewSupplierClient(gw *gateway.Gateway, logger *logrus.Logger) *SupplierClient {
	return &SupplierClient{gw: gw, logger: logger}
}

func (c *SupplierClient) List(ctx context.Context) ([]models.Supplier, error) {
	var suppliers []models.Supplier
	if err := c.gw.JSON(ctx, http.MethodGet, "/suppliers/", nil, &suppliers); err != nil {
		return nil, err
	}
	c.logger.WithField("count", len(suppliers)).Debug("Retrieved suppliers")
	return suppliers, nil
}

func (c *SupplierClient) Get(ctx context.Context, id int) (models.Supplier, error) {
	var supplier models.Supplier
	if err := c.gw.JSON(ctx, http.MethodGet, fmt.Sprintf("/suppliers/%d/", id), nil, &supplier); err != nil {
		return models.Supplier{}, err
	}
	return supplier, nil
}

// Create validates the GST number locally before dispatching, so a malformed
// value never leaves the client.
func (c *SupplierClient) Create(ctx context.Context, supplier models.Supplier) (models.Supplier, error) {
	supplier.GSTNumber = models.NormalizeGST(supplier.GSTNumber)
	if err := models.ValidateGST(supplier.GSTNumber); err != nil {
		return models.Supplier{}, err
	}

	var created models.Supplier
	if err := c.gw.JSON(ctx, http.MethodPost, "/suppliers/", supplier, &created); err != nil {
		return models.Supplier{}, err
	}

	c.logger.WithFields(logrus.Fields{
		"supplier_id": created.ID,
		"name":        created.Name,
	}).Info("Supplier created")
	return created, nil
}

func (c *SupplierClient) Update(ctx context.Context, id int, supplier models.Supplier) (models.Supplier, error) {
	supplier.GSTNumber = models.NormalizeGST(supplier.GSTNumber)
	if err := models.ValidateGST(supplier.GSTNumber); err != nil {
		return models.Supplier{}, err
	}

	var updated models.Supplier
	if err := c.gw.JSON(ctx, http.MethodPut, fmt.Sprintf("/suppliers/%d/", id), supplier, &updated); err != nil {
		return models.Supplier{}, err
	}
	c.logger.WithField("supplier_id", id).Info("Supplier updated")
	return updated, nil
}

func (c *SupplierClient) Delete(ctx context.Context, id int) error {
	if err := c.gw.JSON(ctx, http.MethodDelete, fmt.Sprintf("/suppliers/%d/", id), nil, nil); err != nil {
		return err
	}
	c.logger.WithField("supplier_id", id).Info("Supplier deleted")
	return nil
}
