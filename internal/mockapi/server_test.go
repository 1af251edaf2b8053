package mockapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/rxdesk/rxdesk/internal/gateway"
	"github.com/rxdesk/rxdesk/internal/ws"
	"github.com/rxdesk/rxdesk/pkg/models"
)

func newTestServer(t *testing.T) (*httptest.Server, *TokenIssuer) {
	t.Helper()

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	store := NewStore()
	if err := store.Seed(); err != nil {
		t.Fatalf("failed to seed store: %v", err)
	}

	issuer := NewTokenIssuer("test-secret", 15*time.Minute, 24*time.Hour)
	hub := ws.NewHub(logger)
	go hub.Run()
	srv := NewServer(store, NewMemOrderStore(), issuer, hub, logger)

	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts, issuer
}

func doJSON(t *testing.T, ts *httptest.Server, method, path, token string, body interface{}) *http.Response {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, ts.URL+path, reader)
	if err != nil {
		t.Fatalf("failed to build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, out interface{}) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
}

func loginAdmin(t *testing.T, ts *httptest.Server) models.TokenPair {
	t.Helper()
	resp := doJSON(t, ts, "POST", "/api/token/", "", map[string]string{
		"username": "admin",
		"password": "admin",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login status = %d, want 200", resp.StatusCode)
	}
	var pair models.TokenPair
	decodeBody(t, resp, &pair)
	if pair.Access == "" || pair.Refresh == "" {
		t.Fatal("login returned empty tokens")
	}
	return pair
}

func TestLoginBadPassword(t *testing.T) {
	ts, _ := newTestServer(t)
	resp := doJSON(t, ts, "POST", "/api/token/", "", map[string]string{
		"username": "admin",
		"password": "wrong",
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}
}

func TestMeRequiresAuth(t *testing.T) {
	ts, _ := newTestServer(t)

	resp := doJSON(t, ts, "GET", "/me/", "", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("unauthenticated status = %d, want 401", resp.StatusCode)
	}

	pair := loginAdmin(t, ts)
	resp = doJSON(t, ts, "GET", "/me/", pair.Access, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("authenticated status = %d, want 200", resp.StatusCode)
	}
	var me models.User
	decodeBody(t, resp, &me)
	if me.Username != "admin" || !me.IsStaff {
		t.Errorf("me = %+v, want staff admin", me)
	}
}

func TestRegisterAndDuplicate(t *testing.T) {
	ts, _ := newTestServer(t)
	payload := map[string]interface{}{
		"username": "priya",
		"password": "s3cret",
		"email":    "priya@example.com",
		"mobile":   "9000000001",
		"age":      31,
		"gender":   "F",
		"address":  "4 Lake View, Mumbai",
	}

	resp := doJSON(t, ts, "POST", "/register/", "", payload)
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register status = %d, want 201", resp.StatusCode)
	}

	resp = doJSON(t, ts, "POST", "/register/", "", payload)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("duplicate register status = %d, want 409", resp.StatusCode)
	}
}

func TestRegisterMissingFields(t *testing.T) {
	ts, _ := newTestServer(t)
	resp := doJSON(t, ts, "POST", "/register/", "", map[string]string{"username": "x"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	var fields map[string][]string
	decodeBody(t, resp, &fields)
	if len(fields["password"]) == 0 || len(fields["email"]) == 0 {
		t.Errorf("missing field errors, got %v", fields)
	}
}

func TestRefreshIssuesAccess(t *testing.T) {
	ts, _ := newTestServer(t)
	pair := loginAdmin(t, ts)

	resp := doJSON(t, ts, "POST", "/api/token/refresh/", "", map[string]string{"refresh": pair.Refresh})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("refresh status = %d, want 200", resp.StatusCode)
	}
	var out map[string]string
	decodeBody(t, resp, &out)
	if out["access"] == "" {
		t.Error("refresh returned empty access token")
	}

	resp = doJSON(t, ts, "POST", "/api/token/refresh/", "", map[string]string{"refresh": "garbage"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("bad refresh status = %d, want 401", resp.StatusCode)
	}
}

func TestInventoryCRUD(t *testing.T) {
	ts, _ := newTestServer(t)
	pair := loginAdmin(t, ts)

	item := models.InventoryItem{
		Name:      "Cetirizine 10mg",
		SKU:       "CET-10",
		Quantity:  60,
		Threshold: 20,
		Price:     decimal.RequireFromString("6.25"),
	}
	resp := doJSON(t, ts, "POST", "/inventory/", pair.Access, item)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d, want 201", resp.StatusCode)
	}
	var created models.InventoryItem
	decodeBody(t, resp, &created)
	if created.ID == 0 || created.User != "admin" {
		t.Fatalf("created = %+v", created)
	}

	// Same SKU for the same user is rejected.
	resp = doJSON(t, ts, "POST", "/inventory/", pair.Access, item)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("duplicate sku status = %d, want 400", resp.StatusCode)
	}
	var fields map[string][]string
	decodeBody(t, resp, &fields)
	if len(fields["sku"]) == 0 {
		t.Errorf("want sku field error, got %v", fields)
	}

	created.Quantity = 10
	resp = doJSON(t, ts, "PUT", fmt.Sprintf("/inventory/%d/", created.ID), pair.Access, created)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("update status = %d, want 200", resp.StatusCode)
	}
	var updated models.InventoryItem
	decodeBody(t, resp, &updated)
	if updated.Quantity != 10 {
		t.Errorf("quantity = %d, want 10", updated.Quantity)
	}

	resp = doJSON(t, ts, "DELETE", fmt.Sprintf("/inventory/%d/", created.ID), pair.Access, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete status = %d, want 204", resp.StatusCode)
	}

	resp = doJSON(t, ts, "GET", fmt.Sprintf("/inventory/%d/", created.ID), pair.Access, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("get after delete status = %d, want 404", resp.StatusCode)
	}
}

func TestSupplierGSTValidation(t *testing.T) {
	ts, _ := newTestServer(t)
	pair := loginAdmin(t, ts)

	resp := doJSON(t, ts, "POST", "/suppliers/", pair.Access, models.Supplier{
		Name:      "Shady Distributors",
		GSTNumber: "not-a-gst",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	var fields map[string][]string
	decodeBody(t, resp, &fields)
	if len(fields["gst_number"]) == 0 || fields["gst_number"][0] != gstFormatError {
		t.Errorf("gst errors = %v", fields["gst_number"])
	}

	// Lowercase input is normalized before validation.
	resp = doJSON(t, ts, "POST", "/suppliers/", pair.Access, models.Supplier{
		Name:      "Medline Traders",
		GSTNumber: "27abcde1234f1z9",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want 201", resp.StatusCode)
	}
	var created models.Supplier
	decodeBody(t, resp, &created)
	if created.GSTNumber != "27ABCDE1234F1Z9" {
		t.Errorf("gst = %q, want uppercased", created.GSTNumber)
	}
}

func TestLowStockAndReport(t *testing.T) {
	ts, _ := newTestServer(t)
	pair := loginAdmin(t, ts)

	resp := doJSON(t, ts, "GET", "/low-stock/", pair.Access, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("low-stock status = %d, want 200", resp.StatusCode)
	}
	var low []models.InventoryItem
	decodeBody(t, resp, &low)
	if len(low) != 2 {
		t.Errorf("low stock items = %d, want 2", len(low))
	}

	resp = doJSON(t, ts, "GET", "/inventory-report/", pair.Access, nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("report status = %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/csv" {
		t.Errorf("content type = %q, want text/csv", ct)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read report: %v", err)
	}
	body := string(data)
	if !strings.HasPrefix(body, "Name,SKU,Quantity,Price,Supplier,Expiration Date,Threshold,Added By") {
		t.Errorf("unexpected csv header: %q", strings.SplitN(body, "\n", 2)[0])
	}
	if !strings.Contains(body, "PARA-500") {
		t.Error("csv missing seeded item")
	}
}

func TestCreateOrder(t *testing.T) {
	ts, _ := newTestServer(t)
	pair := loginAdmin(t, ts)

	resp := doJSON(t, ts, "GET", "/inventory/", pair.Access, nil)
	var items []models.InventoryItem
	decodeBody(t, resp, &items)
	if len(items) == 0 {
		t.Fatal("no seeded inventory")
	}
	para := items[0]
	for _, it := range items {
		if it.SKU == "PARA-500" {
			para = it
		}
	}

	resp = doJSON(t, ts, "POST", "/orders/", pair.Access, map[string]interface{}{
		"items":            []map[string]int{{"id": para.ID, "quantity": 4}},
		"delivery_address": "4 Lake View, Mumbai",
		"billing_name":     "Admin",
		"billing_address":  "4 Lake View, Mumbai",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create order status = %d, want 201", resp.StatusCode)
	}
	var order models.Order
	decodeBody(t, resp, &order)
	if order.Status != models.StatusPending {
		t.Errorf("status = %q, want %q", order.Status, models.StatusPending)
	}
	want := para.Price.Mul(decimal.NewFromInt(4))
	if !order.TotalAmount.Equal(want) {
		t.Errorf("total = %s, want %s", order.TotalAmount, want)
	}
	if len(order.Items) != 1 || !order.Items[0].PriceAtOrder.Equal(para.Price) {
		t.Errorf("order items = %+v", order.Items)
	}

	// Stock is decremented by the ordered quantity.
	resp = doJSON(t, ts, "GET", fmt.Sprintf("/inventory/%d/", para.ID), pair.Access, nil)
	var after models.InventoryItem
	decodeBody(t, resp, &after)
	if after.Quantity != para.Quantity-4 {
		t.Errorf("quantity after order = %d, want %d", after.Quantity, para.Quantity-4)
	}
}

func TestCreateOrderInsufficientStock(t *testing.T) {
	ts, _ := newTestServer(t)
	pair := loginAdmin(t, ts)

	resp := doJSON(t, ts, "GET", "/inventory/", pair.Access, nil)
	var items []models.InventoryItem
	decodeBody(t, resp, &items)

	resp = doJSON(t, ts, "POST", "/orders/", pair.Access, map[string]interface{}{
		"items":            []map[string]int{{"id": items[0].ID, "quantity": 100000}},
		"delivery_address": "somewhere",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	var fields map[string][]string
	decodeBody(t, resp, &fields)
	if len(fields["items"]) == 0 {
		t.Errorf("want items field error, got %v", fields)
	}
}

func TestUpdateOrderStatus(t *testing.T) {
	ts, _ := newTestServer(t)
	admin := loginAdmin(t, ts)

	resp := doJSON(t, ts, "POST", "/register/", "", map[string]interface{}{
		"username": "clerk", "password": "pw", "email": "clerk@example.com",
	})
	resp.Body.Close()
	resp = doJSON(t, ts, "POST", "/api/token/", "", map[string]string{"username": "clerk", "password": "pw"})
	var clerk models.TokenPair
	decodeBody(t, resp, &clerk)

	resp = doJSON(t, ts, "GET", "/inventory/", admin.Access, nil)
	var items []models.InventoryItem
	decodeBody(t, resp, &items)

	resp = doJSON(t, ts, "POST", "/orders/", admin.Access, map[string]interface{}{
		"items":            []map[string]int{{"id": items[0].ID, "quantity": 1}},
		"delivery_address": "somewhere",
	})
	var order models.Order
	decodeBody(t, resp, &order)

	// Non-staff callers cannot change status.
	resp = doJSON(t, ts, "POST", fmt.Sprintf("/orders/%d/update-status/", order.ID), clerk.Access, map[string]string{"status": "SHIPPED"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("non-staff status = %d, want 403", resp.StatusCode)
	}

	resp = doJSON(t, ts, "POST", fmt.Sprintf("/orders/%d/update-status/", order.ID), admin.Access, map[string]string{"status": "TELEPORTED"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("invalid status = %d, want 400", resp.StatusCode)
	}

	resp = doJSON(t, ts, "POST", fmt.Sprintf("/orders/%d/update-status/", order.ID), admin.Access, map[string]string{"status": "shipped"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("update status = %d, want 200", resp.StatusCode)
	}
	var updated models.Order
	decodeBody(t, resp, &updated)
	if updated.Status != models.StatusShipped {
		t.Errorf("status = %q, want %q", updated.Status, models.StatusShipped)
	}
}

func TestOrderVisibility(t *testing.T) {
	ts, _ := newTestServer(t)
	admin := loginAdmin(t, ts)

	resp := doJSON(t, ts, "POST", "/register/", "", map[string]interface{}{
		"username": "clerk", "password": "pw", "email": "clerk@example.com",
	})
	resp.Body.Close()
	resp = doJSON(t, ts, "POST", "/api/token/", "", map[string]string{"username": "clerk", "password": "pw"})
	var clerk models.TokenPair
	decodeBody(t, resp, &clerk)

	resp = doJSON(t, ts, "GET", "/inventory/", admin.Access, nil)
	var items []models.InventoryItem
	decodeBody(t, resp, &items)

	resp = doJSON(t, ts, "POST", "/orders/", admin.Access, map[string]interface{}{
		"items":            []map[string]int{{"id": items[0].ID, "quantity": 1}},
		"delivery_address": "somewhere",
	})
	var order models.Order
	decodeBody(t, resp, &order)

	resp = doJSON(t, ts, "GET", "/orders/", clerk.Access, nil)
	var clerkOrders []models.Order
	decodeBody(t, resp, &clerkOrders)
	if len(clerkOrders) != 0 {
		t.Errorf("clerk sees %d orders, want 0", len(clerkOrders))
	}

	resp = doJSON(t, ts, "GET", fmt.Sprintf("/orders/%d/", order.ID), clerk.Access, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("clerk get order status = %d, want 404", resp.StatusCode)
	}
}

type testCreds struct {
	access, refresh string
}

func (c *testCreds) Access(ctx context.Context) (string, error)  { return c.access, nil }
func (c *testCreds) Refresh(ctx context.Context) (string, error) { return c.refresh, nil }
func (c *testCreds) SetAccess(ctx context.Context, token string) error {
	c.access = token
	return nil
}
func (c *testCreds) Clear(ctx context.Context) error {
	c.access, c.refresh = "", ""
	return nil
}

// An expired access token with a valid refresh token should be transparently
// renewed on the first 401 from the backend.
func TestGatewayRefreshAgainstServer(t *testing.T) {
	ts, _ := newTestServer(t)
	pair := loginAdmin(t, ts)

	expiredIssuer := NewTokenIssuer("test-secret", -time.Minute, 24*time.Hour)
	stale, err := expiredIssuer.IssueAccess("admin")
	if err != nil {
		t.Fatalf("failed to issue stale token: %v", err)
	}

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	creds := &testCreds{access: stale, refresh: pair.Refresh}
	gw := gateway.New(ts.URL, creds, logger)

	var me models.User
	if err := gw.JSON(context.Background(), "GET", "/me/", nil, &me); err != nil {
		t.Fatalf("JSON after expiry: %v", err)
	}
	if me.Username != "admin" {
		t.Errorf("username = %q, want admin", me.Username)
	}
	if creds.access == stale {
		t.Error("access token was not refreshed")
	}
}
