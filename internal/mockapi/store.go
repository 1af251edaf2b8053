package mockapi

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rxdesk/rxdesk/pkg/models"
)

var ErrNotFound = errors.New("not found")

// User is an account record held by the mock backend.
type User struct {
	Username     string
	Email        string
	PasswordHash []byte
	IsStaff      bool
	Mobile       string
	Age          int
	Gender       string
	Address      string
}

// Store is the in-memory state behind the mock backend: users, suppliers
// and inventory. Orders live behind OrderStore so they can optionally be
// kept in Postgres.
type Store struct {
	mu sync.RWMutex

	users     map[string]*User
	suppliers map[int]*models.Supplier
	items     map[int]*models.InventoryItem

	nextSupplierID int
	nextItemID     int
}

func NewStore() *Store {
	return &Store{
		users:          make(map[string]*User),
		suppliers:      make(map[int]*models.Supplier),
		items:          make(map[int]*models.InventoryItem),
		nextSupplierID: 1,
		nextItemID:     1,
	}
}

func (s *Store) CreateUser(u *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.users[u.Username]; exists {
		return errors.New("username taken")
	}
	s.users[u.Username] = u
	return nil
}

func (s *Store) GetUser(username string) (*User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[username]
	return u, ok
}

func (s *Store) CreateSupplier(supplier models.Supplier) models.Supplier {
	s.mu.Lock()
	defer s.mu.Unlock()
	supplier.ID = s.nextSupplierID
	s.nextSupplierID++
	s.suppliers[supplier.ID] = &supplier
	return supplier
}

func (s *Store) ListSuppliers() []models.Supplier {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Supplier, 0, len(s.suppliers))
	for _, supplier := range s.suppliers {
		out = append(out, *supplier)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Store) GetSupplier(id int) (models.Supplier, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	supplier, ok := s.suppliers[id]
	if !ok {
		return models.Supplier{}, false
	}
	return *supplier, true
}

func (s *Store) UpdateSupplier(id int, supplier models.Supplier) (models.Supplier, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.suppliers[id]
	if !ok {
		return models.Supplier{}, false
	}
	supplier.ID = id
	supplier.CreatedBy = existing.CreatedBy
	s.suppliers[id] = &supplier
	return supplier, true
}

func (s *Store) DeleteSupplier(id int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.suppliers[id]; !ok {
		return false
	}
	delete(s.suppliers, id)
	return true
}

func (s *Store) CreateItem(item models.InventoryItem) models.InventoryItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	item.ID = s.nextItemID
	s.nextItemID++
	item.CreatedAt = time.Now()
	s.items[item.ID] = &item
	return item
}

// SKUExists reports whether the user already has an item with this SKU,
// excluding excludeID for updates.
func (s *Store) SKUExists(username, sku string, excludeID int) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, item := range s.items {
		if item.User == username && item.SKU == sku && item.ID != excludeID {
			return true
		}
	}
	return false
}

// ListItems returns the caller's items, or everything for staff.
func (s *Store) ListItems(username string, staff bool) []models.InventoryItem {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.InventoryItem, 0, len(s.items))
	for _, item := range s.items {
		if staff || item.User == username {
			out = append(out, *item)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Store) GetItem(id int) (models.InventoryItem, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.items[id]
	if !ok {
		return models.InventoryItem{}, false
	}
	return *item, true
}

func (s *Store) UpdateItem(id int, item models.InventoryItem) (models.InventoryItem, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.items[id]
	if !ok {
		return models.InventoryItem{}, false
	}
	item.ID = id
	item.User = existing.User
	item.CreatedAt = existing.CreatedAt
	s.items[id] = &item
	return item, true
}

func (s *Store) DeleteItem(id int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[id]; !ok {
		return false
	}
	delete(s.items, id)
	return true
}

// LowStockItems returns items below their threshold, scoped like ListItems.
func (s *Store) LowStockItems(username string, staff bool) []models.InventoryItem {
	items := s.ListItems(username, staff)
	out := items[:0]
	for _, item := range items {
		if item.Quantity < item.Threshold {
			out = append(out, item)
		}
	}
	return out
}

// Seed loads a demo admin account and a starter inventory so the client has
// something to talk to out of the box.
func (s *Store) Seed() error {
	hash, err := hashPassword("admin")
	if err != nil {
		return err
	}
	if err := s.CreateUser(&User{
		Username:     "admin",
		Email:        "admin@example.com",
		PasswordHash: hash,
		IsStaff:      true,
	}); err != nil {
		return err
	}

	acme := s.CreateSupplier(models.Supplier{
		Name:      "Acme Pharma",
		GSTNumber: "22AAAAA0000A1Z5",
		Phone:     "9876543210",
		Address:   "12 Mill Road, Pune",
		CreatedBy: "admin",
	})

	seedItems := []models.InventoryItem{
		{Name: "Paracetamol 500mg", SKU: "PARA-500", Quantity: 120, Threshold: 40, Price: decimal.RequireFromString("12.50")},
		{Name: "Amoxicillin 250mg", SKU: "AMOX-250", Quantity: 15, Threshold: 30, Price: decimal.RequireFromString("45.00")},
		{Name: "Ibuprofen 400mg", SKU: "IBU-400", Quantity: 8, Threshold: 25, Price: decimal.RequireFromString("8.00")},
	}
	for _, item := range seedItems {
		item.User = "admin"
		item.Supplier = &acme
		s.CreateItem(item)
	}
	return nil
}

// OrderStore abstracts order persistence; orders default to memory and move
// to Postgres when a DSN is configured.
type OrderStore interface {
	Save(order models.Order) (models.Order, error)
	List(username string, staff bool) ([]models.Order, error)
	Get(id int) (models.Order, error)
	UpdateStatus(id int, status string) (old string, updated models.Order, err error)
}

type memOrderStore struct {
	mu     sync.RWMutex
	orders map[int]*models.Order
	nextID int
}

func NewMemOrderStore() OrderStore {
	return &memOrderStore{
		orders: make(map[int]*models.Order),
		nextID: 1,
	}
}

func (s *memOrderStore) Save(order models.Order) (models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	order.ID = s.nextID
	s.nextID++
	s.orders[order.ID] = &order
	return order, nil
}

func (s *memOrderStore) List(username string, staff bool) ([]models.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Order, 0, len(s.orders))
	for _, order := range s.orders {
		if staff || order.User == username {
			out = append(out, *order)
		}
	}
	// Newest first, like the real backend.
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *memOrderStore) Get(id int) (models.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	order, ok := s.orders[id]
	if !ok {
		return models.Order{}, ErrNotFound
	}
	return *order, nil
}

func (s *memOrderStore) UpdateStatus(id int, status string) (string, models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[id]
	if !ok {
		return "", models.Order{}, ErrNotFound
	}
	old := order.Status
	order.Status = status
	order.UpdatedAt = time.Now()
	return old, *order, nil
}
