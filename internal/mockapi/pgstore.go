package mockapi

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/rxdesk/rxdesk/pkg/models"
)

// pgOrderStore keeps orders in Postgres so they survive mock backend
// restarts. Line items are stored as a JSON column; the mock backend never
// queries into them.
type pgOrderStore struct {
	db     *sql.DB
	logger *logrus.Logger
}

func NewPGOrderStore(dsn string, logger *logrus.Logger) (OrderStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &pgOrderStore{db: db, logger: logger}
	if err := store.createTables(); err != nil {
		db.Close()
		return nil, err
	}
	logger.Info("Postgres order store ready")
	return store, nil
}

func (s *pgOrderStore) createTables() error {
	query := `
	CREATE TABLE IF NOT EXISTS orders (
		id SERIAL PRIMARY KEY,
		username TEXT NOT NULL,
		items JSONB NOT NULL,
		total_amount NUMERIC(10,2) NOT NULL,
		delivery_address TEXT NOT NULL,
		billing_name TEXT NOT NULL DEFAULT '',
		billing_address TEXT NOT NULL,
		tax_id TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_orders_username ON orders(username);`

	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}
	return nil
}

func (s *pgOrderStore) Save(order models.Order) (models.Order, error) {
	items, err := json.Marshal(order.Items)
	if err != nil {
		return models.Order{}, fmt.Errorf("failed to marshal order items: %w", err)
	}

	err = s.db.QueryRow(
		`INSERT INTO orders (username, items, total_amount, delivery_address, billing_name, billing_address, tax_id, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10) RETURNING id`,
		order.User, items, order.TotalAmount, order.DeliveryAddress,
		order.BillingName, order.BillingAddress, order.TaxID,
		order.Status, order.CreatedAt, order.UpdatedAt,
	).Scan(&order.ID)
	if err != nil {
		return models.Order{}, fmt.Errorf("failed to insert order: %w", err)
	}
	return order, nil
}

func (s *pgOrderStore) List(username string, staff bool) ([]models.Order, error) {
	query := `SELECT id, username, items, total_amount, delivery_address, billing_name, billing_address, tax_id, status, created_at, updated_at
		  FROM orders WHERE ($1 OR username = $2) ORDER BY created_at DESC`

	rows, err := s.db.Query(query, staff, username)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	defer rows.Close()

	var orders []models.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	return orders, rows.Err()
}

func (s *pgOrderStore) Get(id int) (models.Order, error) {
	row := s.db.QueryRow(
		`SELECT id, username, items, total_amount, delivery_address, billing_name, billing_address, tax_id, status, created_at, updated_at
		 FROM orders WHERE id = $1`, id)

	order, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Order{}, ErrNotFound
	}
	return order, err
}

func (s *pgOrderStore) UpdateStatus(id int, status string) (string, models.Order, error) {
	var old string
	err := s.db.QueryRow(`SELECT status FROM orders WHERE id = $1`, id).Scan(&old)
	if errors.Is(err, sql.ErrNoRows) {
		return "", models.Order{}, ErrNotFound
	}
	if err != nil {
		return "", models.Order{}, fmt.Errorf("failed to read order status: %w", err)
	}

	if _, err := s.db.Exec(`UPDATE orders SET status = $1, updated_at = $2 WHERE id = $3`, status, time.Now(), id); err != nil {
		return "", models.Order{}, fmt.Errorf("failed to update order status: %w", err)
	}

	order, err := s.Get(id)
	if err != nil {
		return "", models.Order{}, err
	}
	return old, order, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanOrder(row rowScanner) (models.Order, error) {
	var order models.Order
	var items []byte

	err := row.Scan(&order.ID, &order.User, &items, &order.TotalAmount,
		&order.DeliveryAddress, &order.BillingName, &order.BillingAddress,
		&order.TaxID, &order.Status, &order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		return models.Order{}, err
	}

	if err := json.Unmarshal(items, &order.Items); err != nil {
		return models.Order{}, fmt.Errorf("failed to unmarshal order items: %w", err)
	}
	return order, nil
}
