package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

var (
	ErrOrderNotFound    = errors.New("order not found")
	ErrInvalidOrderItem = errors.New("order item violates storage constraints")
)

// Repository is the persistence contract the service is constructed with.
// Item retrieval is a separate, explicitly-called operation: callers that
// want an order's items pay a visible extra round-trip per order.
type Repository interface {
	List(ctx context.Context) ([]Order, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Order, error)
	ListItemsByOrderID(ctx context.Context, orderID uuid.UUID) ([]OrderItem, error)
	SearchByCustomerName(ctx context.Context, customerName string) ([]Order, error)
	Create(ctx context.Context, order *Order) error
	UpdateStatus(ctx context.Context, orderID uuid.UUID, newStatus OrderStatus) error
	Delete(ctx context.Context, orderID uuid.UUID) error
}

type postgresRepository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &postgresRepository{db: db}
}

const orderColumns = "id, customer_name, status, total, created_at, updated_at"

func scanOrder(row pgx.Row, o *Order) error {
	return row.Scan(&o.ID, &o.CustomerName, &o.Status, &o.Total, &o.CreatedAt, &o.UpdatedAt)
}

func (r *postgresRepository) List(ctx context.Context) ([]Order, error) {
	query := `
		SELECT ` + orderColumns + `
		FROM orders
		ORDER BY created_at DESC
	`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query orders: %w", err)
	}
	defer rows.Close()

	return collectOrders(rows)
}

func (r *postgresRepository) GetByID(ctx context.Context, id uuid.UUID) (*Order, error) {
	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE id = $1
	`

	var order Order
	err := scanOrder(r.db.QueryRow(ctx, query, id), &order)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}

		return nil, fmt.Errorf("repository: failed to select order by id %s: %w", id, err)
	}

	return &order, nil
}

func (r *postgresRepository) ListItemsByOrderID(ctx context.Context, orderID uuid.UUID) ([]OrderItem, error) {
	query := `
		SELECT id, order_id, price, quantity, created_at, updated_at
		FROM order_items
		WHERE order_id = $1
		ORDER BY created_at
	`

	rows, err := r.db.Query(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query order items for order id %s: %w", orderID, err)
	}
	defer rows.Close()

	orderItems := make([]OrderItem, 0)
	for rows.Next() {
		var item OrderItem
		err := rows.Scan(
			&item.ID,
			&item.OrderID,
			&item.Price,
			&item.Quantity,
			&item.CreatedAt,
			&item.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("repository: failed to scan order item for order id %s: %w", orderID, err)
		}
		orderItems = append(orderItems, item)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: error iterating order items for order id %s: %w", orderID, err)
	}

	return orderItems, nil
}

// SearchByCustomerName filters by exact customer name. The name is always
// bound as a query parameter, never spliced into the SQL text, so metacharacters
// in the input match literally or not at all.
func (r *postgresRepository) SearchByCustomerName(ctx context.Context, customerName string) ([]Order, error) {
	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE customer_name = $1
		ORDER BY created_at DESC
	`

	rows, err := r.db.Query(ctx, query, customerName)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to search orders by customer name: %w", err)
	}
	defer rows.Close()

	return collectOrders(rows)
}

// Create persists the order row and all of its item rows in a single
// transaction: either the full order with k items becomes durable, or nothing
// does.
func (r *postgresRepository) Create(ctx context.Context, orderInput *Order) (err error) {
	orderID, genErr := uuid.NewV4()
	if genErr != nil {
		return fmt.Errorf("repository: failed to generate order ID: %w", genErr)
	}
	orderInput.ID = orderID

	tx, beginErr := r.db.Begin(ctx)
	if beginErr != nil {
		return fmt.Errorf("repository: failed to begin transaction: %w", beginErr)
	}
	defer func() {
		if err != nil {
			log.Warn().Err(err).Stringer("order_id_attempted", orderID).Msg("Transaction for Create failed, rolling back")
			if rbErr := tx.Rollback(ctx); rbErr != nil {
				log.Error().Err(rbErr).Stringer("order_id_attempted", orderID).Msg("Failed to rollback transaction")
			}
		} else {
			if commitErr := tx.Commit(ctx); commitErr != nil {
				err = fmt.Errorf("repository: failed to commit transaction: %w", commitErr)
			}
		}
	}()

	now := time.Now().UTC()
	orderInput.CreatedAt = now
	orderInput.UpdatedAt = now

	queryOrder := `
		INSERT INTO orders (id, customer_name, status, total, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err = tx.Exec(ctx, queryOrder,
		orderID,
		orderInput.CustomerName,
		string(orderInput.Status),
		orderInput.Total,
		orderInput.CreatedAt,
		orderInput.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("repository: failed to insert order: %w", mapConstraintError(err))
	}

	queryItem := `
		INSERT INTO order_items (id, order_id, price, quantity, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	for i := range orderInput.OrderItems {
		item := &orderInput.OrderItems[i]

		itemID, genErr := uuid.NewV4()
		if genErr != nil {
			return fmt.Errorf("repository: failed to generate order item ID: %w", genErr)
		}
		item.ID = itemID
		item.OrderID = orderID
		item.CreatedAt = now
		item.UpdatedAt = now

		_, err = tx.Exec(ctx, queryItem,
			item.ID,
			item.OrderID,
			item.Price,
			item.Quantity,
			item.CreatedAt,
			item.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("repository: failed to insert order item for order %s: %w", orderID, mapConstraintError(err))
		}
	}

	return nil
}

func (r *postgresRepository) UpdateStatus(ctx context.Context, orderID uuid.UUID, newStatus OrderStatus) error {
	query := `
		UPDATE orders
		SET status = $1, updated_at = $2
		WHERE id = $3
	`

	cmdTag, err := r.db.Exec(ctx, query,
		string(newStatus),
		time.Now().UTC(),
		orderID,
	)
	if err != nil {
		return fmt.Errorf("repository: failed to update order status %s: %w", orderID, err)
	}

	if cmdTag.RowsAffected() == 0 {
		return ErrOrderNotFound
	}

	return nil
}

// Delete removes the order row; item rows go with it through the
// ON DELETE CASCADE constraint. Deleting an id that does not exist is a
// silent no-op.
func (r *postgresRepository) Delete(ctx context.Context, orderID uuid.UUID) error {
	query := `
		DELETE FROM orders
		WHERE id = $1
	`

	_, err := r.db.Exec(ctx, query, orderID)
	if err != nil {
		return fmt.Errorf("repository: failed to delete order %s: %w", orderID, err)
	}

	return nil
}

func collectOrders(rows pgx.Rows) ([]Order, error) {
	orders := make([]Order, 0)
	for rows.Next() {
		var order Order
		if err := scanOrder(rows, &order); err != nil {
			return nil, fmt.Errorf("repository: failed to scan order: %w", err)
		}
		order.OrderItems = make([]OrderItem, 0)
		orders = append(orders, order)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: error iterating orders: %w", err)
	}

	return orders, nil
}

func mapConstraintError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.CheckViolation {
		return fmt.Errorf("%w: %s", ErrInvalidOrderItem, pgErr.ConstraintName)
	}

	return err
}
