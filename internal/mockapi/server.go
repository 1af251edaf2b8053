package mockapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/rxdesk/rxdesk/internal/breaker"
	"github.com/rxdesk/rxdesk/internal/events"
	"github.com/rxdesk/rxdesk/internal/report"
	"github.com/rxdesk/rxdesk/internal/ws"
	"github.com/rxdesk/rxdesk/pkg/models"
)

const gstFormatError = "Invalid GST format. Expected format: 22AAAAA0000A1Z5"

// Publisher pushes order lifecycle events to an external broker. Nil when
// the mock backend runs without Kafka.
type Publisher interface {
	PublishOrderCreated(event events.OrderCreatedEvent) error
	PublishStatusChanged(event events.OrderStatusChangedEvent) error
}

type Server struct {
	store      *Store
	orders     OrderStore
	issuer     *TokenIssuer
	hub        *ws.Hub
	publisher  Publisher
	pubBreaker *breaker.Breaker
	logger     *logrus.Logger
}

func NewServer(store *Store, orders OrderStore, issuer *TokenIssuer, hub *ws.Hub, logger *logrus.Logger) *Server {
	return &Server{
		store:      store,
		orders:     orders,
		issuer:     issuer,
		hub:        hub,
		pubBreaker: breaker.New("kafka-publish", 0, 0, logger),
		logger:     logger,
	}
}

// SetPublisher enables broker notifications for order events.
func (s *Server) SetPublisher(p Publisher) {
	s.publisher = p
}

func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/health", s.handleHealth).Methods("GET")
	r.HandleFunc("/api/token/", s.handleLogin).Methods("POST")
	r.HandleFunc("/api/token/refresh/", s.handleRefresh).Methods("POST")
	r.HandleFunc("/register/", s.handleRegister).Methods("POST")
	r.HandleFunc("/ws", s.hub.ServeWS)

	auth := r.NewRoute().Subrouter()
	auth.Use(s.requireAuth)
	auth.HandleFunc("/me/", s.handleMe).Methods("GET")
	auth.HandleFunc("/inventory/", s.handleListItems).Methods("GET")
	auth.HandleFunc("/inventory/", s.handleCreateItem).Methods("POST")
	auth.HandleFunc("/inventory/{id:[0-9]+}/", s.handleGetItem).Methods("GET")
	auth.HandleFunc("/inventory/{id:[0-9]+}/", s.handleUpdateItem).Methods("PUT")
	auth.HandleFunc("/inventory/{id:[0-9]+}/", s.handleDeleteItem).Methods("DELETE")
	auth.HandleFunc("/suppliers/", s.handleListSuppliers).Methods("GET")
	auth.HandleFunc("/suppliers/", s.handleCreateSupplier).Methods("POST")
	auth.HandleFunc("/suppliers/{id:[0-9]+}/", s.handleGetSupplier).Methods("GET")
	auth.HandleFunc("/suppliers/{id:[0-9]+}/", s.handleUpdateSupplier).Methods("PUT")
	auth.HandleFunc("/suppliers/{id:[0-9]+}/", s.handleDeleteSupplier).Methods("DELETE")
	auth.HandleFunc("/low-stock/", s.handleLowStock).Methods("GET")
	auth.HandleFunc("/inventory-report/", s.handleInventoryReport).Methods("GET")
	auth.HandleFunc("/orders/", s.handleCreateOrder).Methods("POST")
	auth.HandleFunc("/orders/", s.handleListOrders).Methods("GET")
	auth.HandleFunc("/orders/history/", s.handleListOrders).Methods("GET")
	auth.HandleFunc("/orders/{id:[0-9]+}/", s.handleGetOrder).Methods("GET")
	auth.HandleFunc("/orders/{id:[0-9]+}/update-status/", s.handleUpdateOrderStatus).Methods("POST")
	return r
}

type contextKey string

const userContextKey contextKey = "user"

func contextWithUser(ctx context.Context, user *User) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}

func userFromContext(ctx context.Context) *User {
	user, _ := ctx.Value(userContextKey).(*User)
	return user
}

func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			writeDetail(w, http.StatusUnauthorized, "Authentication credentials were not provided.")
			return
		}
		username, err := s.issuer.VerifyAccess(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			writeDetail(w, http.StatusUnauthorized, "Given token not valid for any token type")
			return
		}
		user, ok := s.store.GetUser(username)
		if !ok {
			writeDetail(w, http.StatusUnauthorized, "User not found")
			return
		}
		ctx := contextWithUser(r.Context(), user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	user, ok := s.store.GetUser(req.Username)
	if !ok || checkPassword(user.PasswordHash, req.Password) != nil {
		writeDetail(w, http.StatusUnauthorized, "No active account found with the given credentials")
		return
	}

	access, refresh, err := s.issuer.IssuePair(user.Username)
	if err != nil {
		s.logger.WithError(err).Error("Failed to issue token pair")
		writeDetail(w, http.StatusInternalServerError, "Failed to issue tokens")
		return
	}

	s.logger.WithField("username", user.Username).Info("User logged in")
	writeJSON(w, http.StatusOK, models.TokenPair{Access: access, Refresh: refresh})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Refresh string `json:"refresh"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Refresh == "" {
		writeFieldErrors(w, http.StatusBadRequest, map[string][]string{"refresh": {"This field is required."}})
		return
	}

	username, err := s.issuer.VerifyRefresh(req.Refresh)
	if err != nil {
		writeDetail(w, http.StatusUnauthorized, "Token is invalid or expired")
		return
	}

	access, err := s.issuer.IssueAccess(username)
	if err != nil {
		s.logger.WithError(err).Error("Failed to issue access token")
		writeDetail(w, http.StatusInternalServerError, "Failed to issue tokens")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"access": access})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
		Email    string `json:"email"`
		Mobile   string `json:"mobile"`
		Age      int    `json:"age"`
		Gender   string `json:"gender"`
		Address  string `json:"address"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	fields := map[string][]string{}
	if req.Username == "" {
		fields["username"] = []string{"This field is required."}
	}
	if req.Password == "" {
		fields["password"] = []string{"This field is required."}
	}
	if req.Email == "" {
		fields["email"] = []string{"This field is required."}
	}
	if len(fields) > 0 {
		writeFieldErrors(w, http.StatusBadRequest, fields)
		return
	}

	hash, err := hashPassword(req.Password)
	if err != nil {
		s.logger.WithError(err).Error("Failed to hash password")
		writeDetail(w, http.StatusInternalServerError, "Failed to create user")
		return
	}

	user := &User{
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: hash,
		Mobile:       req.Mobile,
		Age:          req.Age,
		Gender:       req.Gender,
		Address:      req.Address,
	}
	if err := s.store.CreateUser(user); err != nil {
		writeFieldErrors(w, http.StatusConflict, map[string][]string{"username": {"A user with that username already exists."}})
		return
	}

	s.logger.WithField("username", user.Username).Info("User registered")
	writeJSON(w, http.StatusCreated, models.User{Username: user.Username, Email: user.Email})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())
	writeJSON(w, http.StatusOK, models.User{
		Username: user.Username,
		Email:    user.Email,
		IsStaff:  user.IsStaff,
	})
}

func (s *Server) handleListItems(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())
	writeJSON(w, http.StatusOK, s.store.ListItems(user.Username, user.IsStaff))
}

func (s *Server) handleCreateItem(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())
	var item models.InventoryItem
	if err := json.NewDecoder(r.Body).Decode(&item); err != nil {
		writeDetail(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if fields := s.validateItem(user.Username, &item, 0); len(fields) > 0 {
		writeFieldErrors(w, http.StatusBadRequest, fields)
		return
	}

	item.User = user.Username
	created := s.store.CreateItem(item)
	s.logger.WithFields(logrus.Fields{"sku": created.SKU, "user": user.Username}).Info("Inventory item created")
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleGetItem(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())
	item, ok := s.store.GetItem(pathID(r))
	if !ok || !canSeeItem(user, item) {
		writeDetail(w, http.StatusNotFound, "Not found.")
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (s *Server) handleUpdateItem(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())
	id := pathID(r)
	existing, ok := s.store.GetItem(id)
	if !ok || !canSeeItem(user, existing) {
		writeDetail(w, http.StatusNotFound, "Not found.")
		return
	}

	var item models.InventoryItem
	if err := json.NewDecoder(r.Body).Decode(&item); err != nil {
		writeDetail(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if fields := s.validateItem(existing.User, &item, id); len(fields) > 0 {
		writeFieldErrors(w, http.StatusBadRequest, fields)
		return
	}

	updated, _ := s.store.UpdateItem(id, item)
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleDeleteItem(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())
	id := pathID(r)
	item, ok := s.store.GetItem(id)
	if !ok || !canSeeItem(user, item) {
		writeDetail(w, http.StatusNotFound, "Not found.")
		return
	}
	s.store.DeleteItem(id)
	w.WriteHeader(http.StatusNoContent)
}

// validateItem checks required fields, SKU uniqueness per owner and the
// supplier reference. It also resolves the embedded supplier from the id.
func (s *Server) validateItem(owner string, item *models.InventoryItem, excludeID int) map[string][]string {
	fields := map[string][]string{}
	if item.Name == "" {
		fields["name"] = []string{"This field is required."}
	}
	if item.SKU == "" {
		fields["sku"] = []string{"This field is required."}
	} else if s.store.SKUExists(owner, item.SKU, excludeID) {
		fields["sku"] = []string{"You already have an item with this SKU."}
	}
	if item.Quantity < 0 {
		fields["quantity"] = []string{"Ensure this value is greater than or equal to 0."}
	}
	if item.Price.IsNegative() {
		fields["price"] = []string{"Ensure this value is greater than or equal to 0."}
	}
	if item.SupplierID != 0 {
		supplier, ok := s.store.GetSupplier(item.SupplierID)
		if !ok {
			fields["supplier_id"] = []string{"Supplier does not exist."}
		} else {
			item.Supplier = &supplier
		}
	}
	return fields
}

func (s *Server) handleListSuppliers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.store.ListSuppliers())
}

func (s *Server) handleCreateSupplier(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())
	var supplier models.Supplier
	if err := json.NewDecoder(r.Body).Decode(&supplier); err != nil {
		writeDetail(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if fields := validateSupplier(&supplier); len(fields) > 0 {
		writeFieldErrors(w, http.StatusBadRequest, fields)
		return
	}

	supplier.CreatedBy = user.Username
	created := s.store.CreateSupplier(supplier)
	s.logger.WithField("supplier", created.Name).Info("Supplier created")
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleGetSupplier(w http.ResponseWriter, r *http.Request) {
	supplier, ok := s.store.GetSupplier(pathID(r))
	if !ok {
		writeDetail(w, http.StatusNotFound, "Not found.")
		return
	}
	writeJSON(w, http.StatusOK, supplier)
}

func (s *Server) handleUpdateSupplier(w http.ResponseWriter, r *http.Request) {
	id := pathID(r)
	var supplier models.Supplier
	if err := json.NewDecoder(r.Body).Decode(&supplier); err != nil {
		writeDetail(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if fields := validateSupplier(&supplier); len(fields) > 0 {
		writeFieldErrors(w, http.StatusBadRequest, fields)
		return
	}

	updated, ok := s.store.UpdateSupplier(id, supplier)
	if !ok {
		writeDetail(w, http.StatusNotFound, "Not found.")
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleDeleteSupplier(w http.ResponseWriter, r *http.Request) {
	if !s.store.DeleteSupplier(pathID(r)) {
		writeDetail(w, http.StatusNotFound, "Not found.")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func validateSupplier(supplier *models.Supplier) map[string][]string {
	fields := map[string][]string{}
	if supplier.Name == "" {
		fields["name"] = []string{"This field is required."}
	}
	supplier.GSTNumber = models.NormalizeGST(supplier.GSTNumber)
	if err := models.ValidateGST(supplier.GSTNumber); err != nil {
		fields["gst_number"] = []string{gstFormatError}
	}
	return fields
}

func (s *Server) handleLowStock(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())
	writeJSON(w, http.StatusOK, s.store.LowStockItems(user.Username, user.IsStaff))
}

func (s *Server) handleInventoryReport(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())
	items := s.store.ListItems(user.Username, user.IsStaff)

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="inventory_report.csv"`)
	if err := report.WriteCSV(w, items); err != nil {
		s.logger.WithError(err).Error("Failed to write inventory report")
	}
}

type createOrderRequest struct {
	Items []struct {
		ID       int `json:"id"`
		Quantity int `json:"quantity"`
	} `json:"items"`
	DeliveryAddress string          `json:"delivery_address"`
	BillingAddress  string          `json:"billing_address"`
	BillingName     string          `json:"billing_name"`
	TaxID           string          `json:"tax_id"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
}

func (s *Server) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())
	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if len(req.Items) == 0 {
		writeFieldErrors(w, http.StatusBadRequest, map[string][]string{"items": {"This list may not be empty."}})
		return
	}
	if req.DeliveryAddress == "" {
		writeFieldErrors(w, http.StatusBadRequest, map[string][]string{"delivery_address": {"This field is required."}})
		return
	}

	// Snapshot prices from the inventory and check stock before anything
	// is decremented.
	lines := make([]models.OrderItem, 0, len(req.Items))
	snapshot := make([]models.InventoryItem, 0, len(req.Items))
	computed := decimal.Zero
	for _, ref := range req.Items {
		if ref.Quantity <= 0 {
			writeFieldErrors(w, http.StatusBadRequest, map[string][]string{"items": {"Quantity must be a positive integer."}})
			return
		}
		item, ok := s.store.GetItem(ref.ID)
		if !ok {
			writeFieldErrors(w, http.StatusBadRequest, map[string][]string{"items": {fmt.Sprintf("Item %d does not exist.", ref.ID)}})
			return
		}
		if item.Quantity < ref.Quantity {
			writeFieldErrors(w, http.StatusBadRequest, map[string][]string{"items": {fmt.Sprintf("Insufficient stock for %s.", item.Name)}})
			return
		}
		lines = append(lines, models.OrderItem{
			ItemID:       item.ID,
			ItemName:     item.Name,
			ItemSKU:      item.SKU,
			Quantity:     ref.Quantity,
			PriceAtOrder: item.Price,
		})
		snapshot = append(snapshot, item)
		computed = computed.Add(item.Price.Mul(decimal.NewFromInt(int64(ref.Quantity))))
	}

	// Discounts are applied on the client, so a caller supplied total wins
	// as long as it is positive and no larger than the raw item sum.
	total := computed
	if req.TotalAmount.IsPositive() && req.TotalAmount.LessThanOrEqual(computed) {
		total = req.TotalAmount
	}

	now := time.Now()
	order := models.Order{
		User:            user.Username,
		Items:           lines,
		TotalAmount:     total,
		DeliveryAddress: req.DeliveryAddress,
		BillingName:     req.BillingName,
		BillingAddress:  req.BillingAddress,
		TaxID:           req.TaxID,
		Status:          models.StatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	saved, err := s.orders.Save(order)
	if err != nil {
		s.logger.WithError(err).Error("Failed to save order")
		writeDetail(w, http.StatusInternalServerError, "Failed to create order")
		return
	}

	for i, ref := range req.Items {
		item := snapshot[i]
		item.Quantity -= ref.Quantity
		s.store.UpdateItem(item.ID, item)
	}

	s.logger.WithFields(logrus.Fields{
		"order_id": saved.ID,
		"user":     saved.User,
		"total":    saved.TotalAmount.StringFixed(2),
	}).Info("Order created")

	s.hub.OrderCreated(&saved)
	s.publishCreated(saved)
	writeJSON(w, http.StatusCreated, saved)
}

func (s *Server) handleListOrders(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())
	orders, err := s.orders.List(user.Username, user.IsStaff)
	if err != nil {
		s.logger.WithError(err).Error("Failed to list orders")
		writeDetail(w, http.StatusInternalServerError, "Failed to list orders")
		return
	}
	if orders == nil {
		orders = []models.Order{}
	}
	writeJSON(w, http.StatusOK, orders)
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())
	order, err := s.orders.Get(pathID(r))
	if err != nil || (!user.IsStaff && order.User != user.Username) {
		writeDetail(w, http.StatusNotFound, "Not found.")
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (s *Server) handleUpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())
	if !user.IsStaff {
		writeDetail(w, http.StatusForbidden, "You do not have permission to perform this action.")
		return
	}

	var req struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	status := strings.ToUpper(req.Status)
	if err := models.ValidateStatus(status); err != nil {
		writeFieldErrors(w, http.StatusBadRequest, map[string][]string{"status": {err.Error()}})
		return
	}

	old, updated, err := s.orders.UpdateStatus(pathID(r), status)
	if err == ErrNotFound {
		writeDetail(w, http.StatusNotFound, "Not found.")
		return
	}
	if err != nil {
		s.logger.WithError(err).Error("Failed to update order status")
		writeDetail(w, http.StatusInternalServerError, "Failed to update order status")
		return
	}

	s.logger.WithFields(logrus.Fields{
		"order_id":   updated.ID,
		"old_status": old,
		"new_status": status,
	}).Info("Order status updated")

	s.hub.StatusChanged(&updated, old)
	s.publishStatusChanged(updated, old)
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) publishCreated(order models.Order) {
	if s.publisher == nil {
		return
	}
	err := s.pubBreaker.Do(func() error {
		return s.publisher.PublishOrderCreated(events.OrderCreatedEvent{
			OrderID:     order.ID,
			User:        order.User,
			TotalAmount: order.TotalAmount.StringFixed(2),
			Status:      order.Status,
			CreatedAt:   order.CreatedAt,
		})
	})
	if err != nil {
		s.logger.WithError(err).WithField("order_id", order.ID).Warn("Failed to publish order created event")
	}
}

func (s *Server) publishStatusChanged(order models.Order, oldStatus string) {
	if s.publisher == nil {
		return
	}
	err := s.pubBreaker.Do(func() error {
		return s.publisher.PublishStatusChanged(events.OrderStatusChangedEvent{
			OrderID:   order.ID,
			OldStatus: oldStatus,
			NewStatus: order.Status,
		})
	})
	if err != nil {
		s.logger.WithError(err).WithField("order_id", order.ID).Warn("Failed to publish status changed event")
	}
}

func canSeeItem(user *User, item models.InventoryItem) bool {
	return user.IsStaff || item.User == user.Username
}

func pathID(r *http.Request) int {
	id, _ := strconv.Atoi(mux.Vars(r)["id"])
	return id
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

func writeFieldErrors(w http.ResponseWriter, status int, fields map[string][]string) {
	writeJSON(w, status, fields)
}
