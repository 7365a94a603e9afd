package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/example/commerce-core/internal/api/middleware"
	"github.com/example/commerce-core/internal/apperr"
	"github.com/example/commerce-core/internal/domain/order"
)

// Handlers handles order-related HTTP requests.
type Handlers struct {
	orders *order.Service
}

func NewHandlers(orders *order.Service) *Handlers {
	return &Handlers{orders: orders}
}

// CreateOrderRequest is the order placement request body.
type CreateOrderRequest struct {
	Items           []order.LineInput    `json:"items"`
	Addresses       []order.AddressInput `json:"addresses"`
	PaymentMethodID string               `json:"payment_method_id"`
}

// Order Handlers

func (h *Handlers) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req CreateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	o, err := h.orders.CreateOrder(r.Context(), middleware.GetUserID(r.Context()), req.Items, req.Addresses, req.PaymentMethodID)
	if err != nil {
		respondAppError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, o)
}

func (h *Handlers) GetOrders(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var (
		orders []*order.Order
		err    error
	)
	if status := r.URL.Query().Get("status"); status != "" {
		orders, err = h.orders.ListUserOrdersByStatus(r.Context(), userID, order.Status(status))
	} else {
		orders, err = h.orders.ListUserOrders(r.Context(), userID)
	}
	if err != nil {
		respondAppError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, orders)
}

func (h *Handlers) GetOrder(w http.ResponseWriter, r *http.Request) {
	id := extractPathParam(r.URL.Path, "/orders/")

	o, err := h.orders.GetOrder(r.Context(), middleware.GetUserID(r.Context()), id)
	if err != nil {
		respondAppError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, o)
}

func (h *Handlers) GetOrderByNumber(w http.ResponseWriter, r *http.Request) {
	raw := extractPathParam(r.URL.Path, "/orders/number/")
	number, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		respondJSONError(w, "Invalid order number", http.StatusBadRequest)
		return
	}

	o, err := h.orders.GetOrderByNumber(r.Context(), middleware.GetUserID(r.Context()), number)
	if err != nil {
		respondAppError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, o)
}

func (h *Handlers) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSuffix(extractPathParam(r.URL.Path, "/orders/"), "/status")

	var req struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	o, err := h.orders.UpdateOrderStatus(r.Context(), middleware.GetUserID(r.Context()), id, order.Status(req.Status))
	if err != nil {
		respondAppError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, o)
}

func (h *Handlers) UpdateOrderItemStatus(w http.ResponseWriter, r *http.Request) {
	// /orders/{id}/items/{itemID}/status
	rest := extractPathParam(r.URL.Path, "/orders/")
	parts := strings.Split(rest, "/")
	if len(parts) != 4 || parts[1] != "items" || parts[3] != "status" {
		respondJSONError(w, "Not found", http.StatusNotFound)
		return
	}
	orderID, itemID := parts[0], parts[2]

	var req struct {
		Status       string `json:"status"`
		OnHoldReason string `json:"on_hold_reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	o, err := h.orders.UpdateOrderItemStatus(r.Context(), middleware.GetUserID(r.Context()), orderID, itemID, order.ItemStatus(req.Status), req.OnHoldReason)
	if err != nil {
		respondAppError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, o)
}

func (h *Handlers) BulkUpdateItemStatus(w http.ResponseWriter, r *http.Request) {
	// /orders/{id}/items/status
	rest := extractPathParam(r.URL.Path, "/orders/")
	orderID := strings.TrimSuffix(rest, "/items/status")

	var req struct {
		ItemIDs      []string `json:"item_ids"`
		Status       string   `json:"status"`
		OnHoldReason string   `json:"on_hold_reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	results, err := h.orders.BulkUpdateItemStatus(r.Context(), middleware.GetUserID(r.Context()), orderID, req.ItemIDs, order.ItemStatus(req.Status), req.OnHoldReason)
	if err != nil {
		respondAppError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"results": results})
}

func (h *Handlers) RecordPayment(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSuffix(extractPathParam(r.URL.Path, "/orders/"), "/payment")

	var req struct {
		Provider    string `json:"provider"`
		ProviderRef string `json:"provider_ref"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	o, err := h.orders.RecordPayment(r.Context(), middleware.GetUserID(r.Context()), id, req.Provider, req.ProviderRef)
	if err != nil {
		respondAppError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, o)
}

func (h *Handlers) CancelOrder(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSuffix(extractPathParam(r.URL.Path, "/orders/"), "/cancel")

	o, err := h.orders.CancelOrder(r.Context(), middleware.GetUserID(r.Context()), id)
	if err != nil {
		respondAppError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, o)
}

// Helper functions

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondJSONError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// respondAppError maps an error kind to an HTTP status and hides internal
// causes behind the error's client-facing message.
func respondAppError(w http.ResponseWriter, err error) {
	respondJSONError(w, apperr.Message(err), httpStatus(err))
}

func httpStatus(err error) int {
	switch apperr.KindOf(err) {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindUnauthorized:
		return http.StatusUnauthorized
	case apperr.KindForbidden:
		return http.StatusForbidden
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindConflict:
		return http.StatusConflict
	case apperr.KindDependency:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func extractPathParam(path, prefix string) string {
	return strings.TrimPrefix(path, prefix)
}
