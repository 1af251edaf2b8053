package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/rxdesk/rxdesk/internal/gateway"
	"github.com/rxdesk/rxdesk/pkg/models"
)

type fakeCreds struct {
	access  string
	refresh string
	cleared bool
}

func (f *fakeCreds) Access(ctx context.Context) (string, error)  { return f.access, nil }
func (f *fakeCreds) Refresh(ctx context.Context) (string, error) { return f.refresh, nil }
func (f *fakeCreds) SetAccess(ctx context.Context, token string) error {
	f.access = token
	return nil
}
func (f *fakeCreds) SetPair(ctx context.Context, pair models.TokenPair) error {
	f.access, f.refresh = pair.Access, pair.Refresh
	return nil
}
func (f *fakeCreds) Clear(ctx context.Context) error {
	f.access, f.refresh = "", ""
	f.cleared = true
	return nil
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return logger
}

func TestLoginStoresTokenPair(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/token/" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		var payload map[string]string
		json.NewDecoder(r.Body).Decode(&payload)
		if payload["username"] != "alice" || payload["password"] != "s3cret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(models.TokenPair{Access: "acc-1", Refresh: "ref-1"})
	}))
	defer srv.Close()

	creds := &fakeCreds{}
	gw := gateway.New(srv.URL, creds, testLogger())
	client := NewAuthClient(gw, creds, testLogger())

	pair, err := client.Login(context.Background(), "alice", "s3cret")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if pair.Access != "acc-1" || pair.Refresh != "ref-1" {
		t.Errorf("Unexpected token pair: %+v", pair)
	}
	if creds.access != "acc-1" || creds.refresh != "ref-1" {
		t.Errorf("Expected credentials persisted, got %+v", creds)
	}
}

func TestLogoutClearsCredentials(t *testing.T) {
	creds := &fakeCreds{access: "acc-1", refresh: "ref-1"}
	gw := gateway.New("http://unused", creds, testLogger())
	client := NewAuthClient(gw, creds, testLogger())

	if err := client.Logout(context.Background()); err != nil {
		t.Fatalf("Logout failed: %v", err)
	}
	if !creds.cleared {
		t.Error("Expected credentials cleared on logout")
	}
}

func TestCreateSupplierRejectsBadGSTBeforeDispatch(t *testing.T) {
	dispatched := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		dispatched = true
	}))
	defer srv.Close()

	gw := gateway.New(srv.URL, &fakeCreds{access: "acc-1"}, testLogger())
	client := NewSupplierClient(gw, testLogger())

	_, err := client.Create(context.Background(), models.Supplier{
		Name:      "Acme Pharma",
		GSTNumber: "not-a-gst",
		Address:   "12 Mill Road",
	})
	if err == nil {
		t.Fatal("Expected GST validation error")
	}
	if dispatched {
		t.Error("Invalid GST must not reach the network")
	}
}

func TestCreateSupplierUppercasesGST(t *testing.T) {
	var gotGST string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var supplier models.Supplier
		json.NewDecoder(r.Body).Decode(&supplier)
		gotGST = supplier.GSTNumber
		supplier.ID = 3
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(supplier)
	}))
	defer srv.Close()

	gw := gateway.New(srv.URL, &fakeCreds{access: "acc-1"}, testLogger())
	client := NewSupplierClient(gw, testLogger())

	created, err := client.Create(context.Background(), models.Supplier{
		Name:      "Acme Pharma",
		GSTNumber: "22aaaaa0000a1z5",
		Address:   "12 Mill Road",
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if gotGST != "22AAAAA0000A1Z5" {
		t.Errorf("Expected GST uppercased before dispatch, got %q", gotGST)
	}
	if created.ID != 3 {
		t.Errorf("Expected server-assigned id 3, got %d", created.ID)
	}
}

func TestCreateOrderRequiresItems(t *testing.T) {
	gw := gateway.New("http://unused", &fakeCreds{}, testLogger())
	client := NewOrderClient(gw, testLogger())

	_, err := client.Create(context.Background(), CreateOrderRequest{})
	if err == nil {
		t.Fatal("Expected error for empty order")
	}
}

func TestCreateOrderCarriesBearerAndDecodesOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if auth := r.Header.Get("Authorization"); auth != "Bearer acc-1" {
			t.Errorf("Expected bearer credential, got %q", auth)
		}
		var req CreateOrderRequest
		json.NewDecoder(r.Body).Decode(&req)
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(models.Order{
			ID:              42,
			TotalAmount:     req.TotalAmount,
			DeliveryAddress: req.DeliveryAddress,
			Status:          models.StatusPending,
		})
	}))
	defer srv.Close()

	gw := gateway.New(srv.URL, &fakeCreds{access: "acc-1"}, testLogger())
	client := NewOrderClient(gw, testLogger())

	order, err := client.Create(context.Background(), CreateOrderRequest{
		Items:           []OrderItemRef{{ID: 1, Quantity: 2}},
		DeliveryAddress: "1 Main St, Pune, MH 411001",
		TotalAmount:     decimal.RequireFromString("199.50"),
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if order.ID != 42 {
		t.Errorf("Expected server-assigned order id 42, got %d", order.ID)
	}
	if order.Status != models.StatusPending {
		t.Errorf("Expected PENDING status, got %s", order.Status)
	}
}

func TestUpdateStatusRejectsUnknownStatus(t *testing.T) {
	dispatched := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		dispatched = true
	}))
	defer srv.Close()

	gw := gateway.New(srv.URL, &fakeCreds{access: "acc-1"}, testLogger())
	client := NewOrderClient(gw, testLogger())

	if err := client.UpdateStatus(context.Background(), 7, "LOST"); err == nil {
		t.Fatal("Expected invalid status error")
	}
	if dispatched {
		t.Error("Invalid status must not reach the network")
	}
}

func TestLowStockDecodesItems(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/low-stock/" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode([]models.InventoryItem{
			{ID: 1, Name: "Paracetamol 500mg", SKU: "PARA-500", Quantity: 4, Threshold: 20},
		})
	}))
	defer srv.Close()

	gw := gateway.New(srv.URL, &fakeCreds{access: "acc-1"}, testLogger())
	client := NewInventoryClient(gw, testLogger())

	items, err := client.LowStock(context.Background())
	if err != nil {
		t.Fatalf("LowStock failed: %v", err)
	}
	if len(items) != 1 || items[0].Shortfall() != 16 {
		t.Errorf("Unexpected low-stock items: %+v", items)
	}
}
