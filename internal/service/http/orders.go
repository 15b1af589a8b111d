package httpsvc

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shop/internal/domain"
	"github.com/vladislavdragonenkov/shop/internal/service/orders"
)

type orderHandler struct {
	svc         *orders.Engine
	logger      *log.Entry
	idempotency func(http.Handler) http.Handler
}

// orderItemRequest: позиция заказа. Цену клиента принимаем, но считаем по каталогу.
type orderItemRequest struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
	UnitPrice *int64 `json:"unitPrice"`
}

type createOrderRequest struct {
	UserID          string             `json:"userId"`
	Items           []orderItemRequest `json:"items"`
	ShippingAddress string             `json:"shippingAddress"`
	BillingAddress  string             `json:"billingAddress"`
	Notes           string             `json:"notes"`
	CouponCode      string             `json:"couponCode"`
	ShippingMethod  string             `json:"shippingMethod"`
	PaymentMethod   string             `json:"paymentMethod"`
}

type statusRequest struct {
	Status         string  `json:"status"`
	TrackingNumber string  `json:"trackingNumber"`
	Notes          *string `json:"notes"`
	Reason         string  `json:"reason"`
}

// updateOrderRequest: тело PATCH /orders/{id}. Наличие status переводит запрос в смену статуса.
type updateOrderRequest struct {
	Status          *string `json:"status"`
	TrackingNumber  string  `json:"trackingNumber"`
	Reason          string  `json:"reason"`
	Notes           *string `json:"notes"`
	ShippingAddress *string `json:"shippingAddress"`
	BillingAddress  *string `json:"billingAddress"`
	ShippingMethod  *string `json:"shippingMethod"`
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

func (h *orderHandler) Routes(r chi.Router) {
	r.With(h.idempotency).Post("/", h.create)
	r.Get("/", h.list)
	r.Get("/{id}", h.get)
	r.Get("/{id}/invoice", h.invoice)
	r.Get("/{id}/history", h.history)
	r.Patch("/{id}", h.update)
	r.Patch("/{id}/status", h.updateStatus)
	r.Patch("/{id}/cancel", h.cancel)
	r.Delete("/{id}", h.remove)
}

func (h *orderHandler) create(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	items := make([]orders.ItemInput, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, orders.ItemInput{ProductID: item.ProductID, Quantity: item.Quantity})
	}
	order, err := h.svc.Create(r.Context(), orders.CreateInput{
		UserID:          req.UserID,
		Items:           items,
		ShippingAddress: req.ShippingAddress,
		BillingAddress:  req.BillingAddress,
		Notes:           req.Notes,
		CouponCode:      req.CouponCode,
		ShippingMethod:  req.ShippingMethod,
		PaymentMethod:   req.PaymentMethod,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeData(w, http.StatusCreated, "Order created successfully", newOrderResponse(order))
}

func (h *orderHandler) list(w http.ResponseWriter, r *http.Request) {
	filter, page, err := parseOrderQuery(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	filter.UserID = newQueryReader(r).String("userId")
	result, err := h.svc.List(r.Context(), filter, page)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, "Orders retrieved successfully", toPage(result, newOrderResponse))
}

func (h *orderHandler) get(w http.ResponseWriter, r *http.Request) {
	order, err := h.svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, "Order retrieved successfully", newOrderResponse(order))
}

func (h *orderHandler) invoice(w http.ResponseWriter, r *http.Request) {
	inv, err := h.svc.Invoice(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, "Invoice generated successfully", newInvoiceResponse(inv))
}

func (h *orderHandler) history(w http.ResponseWriter, r *http.Request) {
	changes, err := h.svc.History(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, "Order history retrieved successfully", mapSlice(changes, newStatusChangeResponse))
}

func (h *orderHandler) update(w http.ResponseWriter, r *http.Request) {
	var req updateOrderRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	id := chi.URLParam(r, "id")

	if req.Status != nil {
		if req.ShippingAddress != nil || req.BillingAddress != nil || req.ShippingMethod != nil {
			writeError(w, r, h.logger, badRequest("status cannot be combined with address or shipping method changes"))
			return
		}
		order, err := h.svc.UpdateStatus(r.Context(), id, orders.StatusInput{
			Status:         *req.Status,
			TrackingNumber: req.TrackingNumber,
			Notes:          req.Notes,
			Reason:         req.Reason,
		})
		if err != nil {
			writeError(w, r, h.logger, err)
			return
		}
		writeData(w, http.StatusOK, "Order status updated successfully", newOrderResponse(order))
		return
	}

	order, err := h.svc.Update(r.Context(), id, orders.UpdateInput{
		ShippingAddress: req.ShippingAddress,
		BillingAddress:  req.BillingAddress,
		Notes:           req.Notes,
		ShippingMethod:  req.ShippingMethod,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, "Order updated successfully", newOrderResponse(order))
}

func (h *orderHandler) updateStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if req.Status == "" {
		writeError(w, r, h.logger, badRequest("status is required"))
		return
	}
	order, err := h.svc.UpdateStatus(r.Context(), chi.URLParam(r, "id"), orders.StatusInput(req))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, "Order status updated successfully", newOrderResponse(order))
}

func (h *orderHandler) cancel(w http.ResponseWriter, r *http.Request) {
	var req cancelRequest
	if err := decodeOptionalJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	order, err := h.svc.Cancel(r.Context(), chi.URLParam(r, "id"), req.Reason)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, "Order cancelled successfully", newOrderResponse(order))
}

// remove отменяет заказ; сам заказ остаётся в истории.
func (h *orderHandler) remove(w http.ResponseWriter, r *http.Request) {
	if _, err := h.svc.Cancel(r.Context(), chi.URLParam(r, "id"), "deleted via API"); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func parseOrderQuery(r *http.Request) (domain.OrderFilter, domain.PageRequest, error) {
	q := newQueryReader(r)
	filter := domain.OrderFilter{
		Status:    domain.OrderStatus(strings.ToLower(q.String("status"))),
		DateFrom:  q.TimePtr("dateFrom", false),
		DateTo:    q.TimePtr("dateTo", true),
		MinAmount: q.Int64Ptr("minAmount"),
		MaxAmount: q.Int64Ptr("maxAmount"),
	}
	page := q.Page()
	return filter, page, q.Err()
}
