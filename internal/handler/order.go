package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/orders-api/internal/order"
)

type CreateOrderItemRequest struct {
	Price    float64 `json:"price" validate:"gte=0"`
	Quantity int     `json:"quantity" validate:"required,gt=0"`
}

type CreateOrderRequest struct {
	CustomerName string                   `json:"customer_name" validate:"required"`
	OrderItems   []CreateOrderItemRequest `json:"order_items" validate:"required,min=1,dive"`
}

type OrderItemResponse struct {
	ID       uuid.UUID `json:"id"`
	OrderID  uuid.UUID `json:"order_id"`
	Price    float64   `json:"price"`
	Quantity int       `json:"quantity"`
}

type OrderResponse struct {
	ID           uuid.UUID           `json:"id"`
	CustomerName string              `json:"customer_name"`
	Status       order.OrderStatus   `json:"status"`
	Total        float64             `json:"total"`
	OrderItems   []OrderItemResponse `json:"order_items"`
	CreatedAt    time.Time           `json:"created_at"`
	UpdatedAt    time.Time           `json:"updated_at"`
}

type OrderTotalResponse struct {
	OrderID uuid.UUID `json:"order_id"`
	Total   float64   `json:"total"`
}

// OrderHandler handles HTTP requests for orders.
type OrderHandler struct {
	service  order.Service
	validate *validator.Validate
}

func NewOrderHandler(service order.Service) *OrderHandler {
	return &OrderHandler{
		service:  service,
		validate: validator.New(),
	}
}

// RegisterRoutes mounts the order endpoints. Reads are open; status updates
// and deletes go through requireAuth.
func (h *OrderHandler) RegisterRoutes(router chi.Router, requireAuth func(http.Handler) http.Handler) {
	router.Route("/api/orders", func(r chi.Router) {
		r.Get("/", h.handleListOrders)
		r.Get("/search", h.handleSearchOrders)
		r.Post("/", h.handleCreateOrder)
		r.Get("/{id}", h.handleGetOrderByID)
		r.Get("/{id}/total", h.handleOrderTotal)

		r.Group(func(r chi.Router) {
			r.Use(requireAuth)
			r.Put("/{id}/status", h.handleUpdateStatus)
			r.Delete("/{id}", h.handleDeleteOrder)
		})
	})
}

func (h *OrderHandler) handleListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.service.ListOrders(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("Failed to list orders via service")
		respondWithError(w, mapErrorToStatusCode(err), "Failed to list orders")
		return
	}

	respondWithJSON(w, http.StatusOK, toOrderResponses(orders))
}

func (h *OrderHandler) handleGetOrderByID(w http.ResponseWriter, r *http.Request) {
	orderID, ok := parseIDParam(w, r)
	if !ok {
		return
	}

	foundOrder, err := h.service.GetOrderByID(r.Context(), orderID)
	if err != nil {
		if errors.Is(err, order.ErrOrderNotFound) {
			respondWithError(w, http.StatusNotFound, "Order not found")
			return
		}

		log.Error().Err(err).Msg("Failed to get order by id via service")
		respondWithError(w, mapErrorToStatusCode(err), "Failed to get order")
		return
	}

	respondWithJSON(w, http.StatusOK, toOrderResponse(*foundOrder))
}

func (h *OrderHandler) handleSearchOrders(w http.ResponseWriter, r *http.Request) {
	customerName := r.URL.Query().Get("customerName")
	if customerName == "" {
		respondWithError(w, http.StatusBadRequest, "customerName query parameter is required")
		return
	}

	orders, err := h.service.SearchByCustomerName(r.Context(), customerName)
	if err != nil {
		log.Error().Err(err).Msg("Failed to search orders via service")
		respondWithError(w, mapErrorToStatusCode(err), "Failed to search orders")
		return
	}

	respondWithJSON(w, http.StatusOK, toOrderResponses(orders))
}

func (h *OrderHandler) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	var requestPayload CreateOrderRequest

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(&requestPayload); err != nil {
		log.Error().Err(err).Msg("Failed to decode request body")
		respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request payload: %v", err))
		return
	}

	if err := h.validate.Struct(requestPayload); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			respondWithJSON(w, http.StatusBadRequest, ValidationErrorResponse{
				Error:   "Validation failed",
				Details: formatValidationErrors(validationErrors),
			})
		} else {
			log.Error().Err(err).Type("validation_error_type", err).Msg("Unexpected error type during validation")
			respondWithError(w, http.StatusInternalServerError, "Internal validation error")
		}
		return
	}

	domainOrder := order.Order{
		CustomerName: requestPayload.CustomerName,
		OrderItems:   make([]order.OrderItem, 0, len(requestPayload.OrderItems)),
	}
	for _, item := range requestPayload.OrderItems {
		domainOrder.OrderItems = append(domainOrder.OrderItems, order.OrderItem{
			Price:    item.Price,
			Quantity: item.Quantity,
		})
	}

	createdOrder, err := h.service.CreateOrder(r.Context(), &domainOrder)
	if err != nil {
		log.Error().Err(err).Msg("Failed to create order via service")
		respondWithError(w, mapErrorToStatusCode(err), "Failed to create order")
		return
	}

	respondWithJSON(w, http.StatusCreated, toOrderResponse(*createdOrder))
}

func (h *OrderHandler) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	orderID, ok := parseIDParam(w, r)
	if !ok {
		return
	}

	statusParam := r.URL.Query().Get("status")
	if statusParam == "" {
		respondWithError(w, http.StatusBadRequest, "status query parameter is required")
		return
	}

	err := h.service.UpdateOrderStatus(r.Context(), orderID, order.OrderStatus(statusParam))
	if err != nil {
		statusCode := mapErrorToStatusCode(err)

		var clientMessage string
		switch {
		case errors.Is(err, order.ErrOrderNotFound):
			clientMessage = "Order not found"
		case errors.Is(err, order.ErrInvalidStatus):
			clientMessage = fmt.Sprintf("Unknown order status %q", statusParam)
		case errors.Is(err, order.ErrInvalidStatusTransition):
			clientMessage = err.Error()
		default:
			log.Error().Err(err).Msg("Failed to update order status via service")
			clientMessage = "Failed to update order status"
		}

		respondWithError(w, statusCode, clientMessage)
		return
	}

	updatedOrder, err := h.service.GetOrderByID(r.Context(), orderID)
	if err != nil {
		log.Error().Err(err).Msg("Failed to reload order after status update")
		respondWithError(w, mapErrorToStatusCode(err), "Failed to get order")
		return
	}

	respondWithJSON(w, http.StatusOK, toOrderResponse(*updatedOrder))
}

func (h *OrderHandler) handleDeleteOrder(w http.ResponseWriter, r *http.Request) {
	orderID, ok := parseIDParam(w, r)
	if !ok {
		return
	}

	if err := h.service.DeleteOrder(r.Context(), orderID); err != nil {
		log.Error().Err(err).Msg("Failed to delete order via service")
		respondWithError(w, mapErrorToStatusCode(err), "Failed to delete order")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *OrderHandler) handleOrderTotal(w http.ResponseWriter, r *http.Request) {
	orderID, ok := parseIDParam(w, r)
	if !ok {
		return
	}

	total, err := h.service.OrderTotal(r.Context(), orderID)
	if err != nil {
		if errors.Is(err, order.ErrOrderNotFound) {
			respondWithError(w, http.StatusNotFound, "Order not found")
			return
		}

		log.Error().Err(err).Msg("Failed to compute order total via service")
		respondWithError(w, mapErrorToStatusCode(err), "Failed to compute order total")
		return
	}

	respondWithJSON(w, http.StatusOK, OrderTotalResponse{OrderID: orderID, Total: total})
}

func parseIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	idParam := chi.URLParam(r, "id")
	orderID, err := uuid.FromString(idParam)
	if err != nil {
		log.Warn().Err(err).Str("order_id", idParam).Msg("Failed to parse id parameter from URL")
		respondWithError(w, http.StatusBadRequest, "Invalid id parameter")
		return uuid.Nil, false
	}

	return orderID, true
}

func toOrderResponse(o order.Order) OrderResponse {
	items := make([]OrderItemResponse, 0, len(o.OrderItems))
	for _, item := range o.OrderItems {
		items = append(items, OrderItemResponse{
			ID:       item.ID,
			OrderID:  item.OrderID,
			Price:    item.Price,
			Quantity: item.Quantity,
		})
	}

	return OrderResponse{
		ID:           o.ID,
		CustomerName: o.CustomerName,
		Status:       o.Status,
		Total:        o.Total,
		OrderItems:   items,
		CreatedAt:    o.CreatedAt,
		UpdatedAt:    o.UpdatedAt,
	}
}

func toOrderResponses(orders []order.Order) []OrderResponse {
	responses := make([]OrderResponse, 0, len(orders))
	for _, o := range orders {
		responses = append(responses, toOrderResponse(o))
	}
	return responses
}
