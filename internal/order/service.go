package order

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
)

var allowedTransitions = map[OrderStatus]map[OrderStatus]bool{
	StatusNew: {
		StatusProcessing: true,
		StatusShipped:    true,
		StatusCancelled:  true,
	},
	StatusProcessing: {
		StatusShipped:   true,
		StatusCancelled: true,
	},
	StatusShipped: {
		StatusDelivered: true,
	},
	StatusDelivered: {},
	StatusCancelled: {},
}

var (
	ErrInvalidStatus           = errors.New("unknown order status")
	ErrInvalidStatusTransition = errors.New("invalid order status transition")
)

type Service interface {
	ListOrders(ctx context.Context) ([]Order, error)
	GetOrderByID(ctx context.Context, id uuid.UUID) (*Order, error)
	SearchByCustomerName(ctx context.Context, customerName string) ([]Order, error)
	CreateOrder(ctx context.Context, orderInput *Order) (*Order, error)
	UpdateOrderStatus(ctx context.Context, orderID uuid.UUID, newStatus OrderStatus) error
	DeleteOrder(ctx context.Context, orderID uuid.UUID) error
	OrderTotal(ctx context.Context, orderID uuid.UUID) (float64, error)
}

type service struct {
	orderRepo Repository
}

func NewService(orderRepo Repository) Service {
	return &service{
		orderRepo: orderRepo,
	}
}

// ListOrders returns every order with its items attached. Items are fetched
// with one extra repository call per order, so the cost is O(n) round-trips
// for n orders. The loop is deliberate: the item fetch is an explicit
// operation, not something hidden behind field access.
func (s *service) ListOrders(ctx context.Context) ([]Order, error) {
	orders, err := s.orderRepo.List(ctx)
	if err != nil {
		log.Error().Err(err).Msg("service: failed to list orders in repository")
		return nil, fmt.Errorf("service: failed to list orders: %w", err)
	}

	if err := s.attachItems(ctx, orders); err != nil {
		return nil, err
	}

	return orders, nil
}

func (s *service) GetOrderByID(ctx context.Context, id uuid.UUID) (*Order, error) {
	order, err := s.orderRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			log.Warn().Stringer("order_id", id).Msg("service: order not found by id")
			return nil, ErrOrderNotFound
		}

		log.Error().Err(err).Msg("service: failed to fetch order by id in repository")
		return nil, fmt.Errorf("service: failed to fetch order by id: %w", err)
	}

	items, err := s.orderRepo.ListItemsByOrderID(ctx, id)
	if err != nil {
		log.Error().Err(err).Stringer("order_id", id).Msg("service: failed to fetch order items in repository")
		return nil, fmt.Errorf("service: failed to fetch order items: %w", err)
	}
	order.OrderItems = items

	return order, nil
}

func (s *service) SearchByCustomerName(ctx context.Context, customerName string) ([]Order, error) {
	orders, err := s.orderRepo.SearchByCustomerName(ctx, customerName)
	if err != nil {
		log.Error().Err(err).Str("customer_name", customerName).Msg("service: failed to search orders in repository")
		return nil, fmt.Errorf("service: failed to search orders by customer name: %w", err)
	}

	if err := s.attachItems(ctx, orders); err != nil {
		return nil, err
	}

	return orders, nil
}

// CreateOrder validates the input, computes the denormalized total from the
// items and persists the order atomically: the order row and all item rows
// land in one transaction, never a partial prefix.
func (s *service) CreateOrder(ctx context.Context, orderInput *Order) (*Order, error) {
	if orderInput.CustomerName == "" {
		return nil, errors.New("service: customer name must not be empty")
	}

	if len(orderInput.OrderItems) == 0 {
		log.Warn().Msg("service: attempt to create order with no items")
		return nil, errors.New("service: order must contain at least one item")
	}

	total := 0.0
	for i := range orderInput.OrderItems {
		item := &orderInput.OrderItems[i]

		if item.Quantity <= 0 {
			return nil, fmt.Errorf("service: order item quantity must be greater than zero, got %d", item.Quantity)
		}

		if item.Price < 0 {
			return nil, fmt.Errorf("service: order item price cannot be negative, got %f", item.Price)
		}

		item.ID = uuid.Nil
		item.OrderID = uuid.Nil

		total += float64(item.Quantity) * item.Price
	}

	orderInput.ID = uuid.Nil
	orderInput.Status = StatusNew
	orderInput.Total = total

	if err := s.orderRepo.Create(ctx, orderInput); err != nil {
		log.Error().Err(err).Msg("service: failed to create order in repository")
		return nil, fmt.Errorf("service: failed to create order: %w", err)
	}

	log.Info().Stringer("order_id", orderInput.ID).Str("customer_name", orderInput.CustomerName).Msg("service: order created")

	return orderInput, nil
}

func (s *service) UpdateOrderStatus(ctx context.Context, orderID uuid.UUID, newStatus OrderStatus) error {
	if !newStatus.IsValid() {
		log.Warn().Stringer("order_id", orderID).Str("new_status", string(newStatus)).Msg("service: rejected unknown order status")
		return fmt.Errorf("%w: %q", ErrInvalidStatus, string(newStatus))
	}

	currentOrder, err := s.orderRepo.GetByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			log.Warn().Stringer("order_id", orderID).Stringer("new_status", newStatus).Msg("service: order not found, cannot update status")
			return ErrOrderNotFound
		}
		log.Error().Err(err).Stringer("order_id", orderID).Msg("service: failed to get order for status update")
		return fmt.Errorf("service: failed to get order for status update: %w", err)
	}

	if currentOrder.Status == newStatus {
		log.Info().Stringer("order_id", orderID).Stringer("status", newStatus).Msg("service: order status unchanged, no update needed")
		return nil
	}

	if !allowedTransitions[currentOrder.Status][newStatus] {
		log.Warn().
			Stringer("order_id", currentOrder.ID).
			Stringer("current_status", currentOrder.Status).
			Stringer("new_status", newStatus).
			Msg("service: invalid status transition attempt")
		return fmt.Errorf("%w: %s to %s", ErrInvalidStatusTransition, currentOrder.Status, newStatus)
	}

	err = s.orderRepo.UpdateStatus(ctx, orderID, newStatus)
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			return ErrOrderNotFound
		}
		log.Error().Err(err).Stringer("order_id", orderID).Stringer("new_status", newStatus).Msg("service: failed to update order status in repository")
		return fmt.Errorf("service: failed to update order status: %w", err)
	}

	log.Info().Stringer("order_id", orderID).Stringer("old_status", currentOrder.Status).Stringer("new_status", newStatus).Msg("service: order status updated")
	return nil
}

// DeleteOrder removes the order unconditionally. A missing id is not an
// error: the end state (no such order) is the same either way.
func (s *service) DeleteOrder(ctx context.Context, orderID uuid.UUID) error {
	if err := s.orderRepo.Delete(ctx, orderID); err != nil {
		log.Error().Err(err).Stringer("order_id", orderID).Msg("service: failed to delete order in repository")
		return fmt.Errorf("service: failed to delete order: %w", err)
	}

	log.Info().Stringer("order_id", orderID).Msg("service: order deleted")
	return nil
}

// OrderTotal recomputes the order total from its item rows as
// sum(price * quantity). An order with no items totals zero. This is the
// authoritative figure; the stored Order.Total is a cache written at
// creation time.
func (s *service) OrderTotal(ctx context.Context, orderID uuid.UUID) (float64, error) {
	if _, err := s.orderRepo.GetByID(ctx, orderID); err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			return 0, ErrOrderNotFound
		}
		return 0, fmt.Errorf("service: failed to fetch order for total: %w", err)
	}

	items, err := s.orderRepo.ListItemsByOrderID(ctx, orderID)
	if err != nil {
		log.Error().Err(err).Stringer("order_id", orderID).Msg("service: failed to fetch order items for total")
		return 0, fmt.Errorf("service: failed to fetch order items for total: %w", err)
	}

	total := 0.0
	for _, item := range items {
		total += float64(item.Quantity) * item.Price
	}

	return total, nil
}

func (s *service) attachItems(ctx context.Context, orders []Order) error {
	for i := range orders {
		items, err := s.orderRepo.ListItemsByOrderID(ctx, orders[i].ID)
		if err != nil {
			log.Error().Err(err).Stringer("order_id", orders[i].ID).Msg("service: failed to fetch order items in repository")
			return fmt.Errorf("service: failed to fetch items for order %s: %w", orders[i].ID, err)
		}
		orders[i].OrderItems = items
	}

	return nil
}
