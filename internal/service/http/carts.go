package httpsvc

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shop/internal/service/carts"
)

type cartHandler struct {
	svc    *carts.Service
	logger *log.Entry
}

type createCartRequest struct {
	UserID string `json:"userId"`
}

type addCartItemRequest struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

type updateCartItemRequest struct {
	Quantity *int `json:"quantity"`
}

func (h *cartHandler) Routes(r chi.Router) {
	r.Post("/", h.create)
	r.Get("/{id}", h.get)
	r.Post("/{id}/items", h.addItem)
	r.Put("/{id}/items/{productId}", h.updateItem)
	r.Delete("/{id}/items/{productId}", h.removeItem)
	r.Delete("/{id}/items", h.clear)
	r.Delete("/{id}", h.remove)
}

func (h *cartHandler) create(w http.ResponseWriter, r *http.Request) {
	var req createCartRequest
	if err := decodeOptionalJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	cart, err := h.svc.Create(r.Context(), req.UserID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeData(w, http.StatusCreated, "Cart created successfully", newCartResponse(cart))
}

func (h *cartHandler) get(w http.ResponseWriter, r *http.Request) {
	cart, err := h.svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, "Cart retrieved successfully", newCartResponse(cart))
}

func (h *cartHandler) addItem(w http.ResponseWriter, r *http.Request) {
	var req addCartItemRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if req.ProductID == "" {
		writeError(w, r, h.logger, badRequest("productId is required"))
		return
	}
	cart, err := h.svc.AddItem(r.Context(), chi.URLParam(r, "id"), req.ProductID, req.Quantity)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeData(w, http.StatusCreated, "Item added to cart", newCartResponse(cart))
}

// updateItem задаёт количество; ноль или меньше удаляет позицию.
func (h *cartHandler) updateItem(w http.ResponseWriter, r *http.Request) {
	var req updateCartItemRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if req.Quantity == nil {
		writeError(w, r, h.logger, badRequest("quantity is required"))
		return
	}
	cart, err := h.svc.UpdateItem(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "productId"), *req.Quantity)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, "Cart item updated", newCartResponse(cart))
}

func (h *cartHandler) removeItem(w http.ResponseWriter, r *http.Request) {
	cart, err := h.svc.RemoveItem(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "productId"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, "Item removed from cart", newCartResponse(cart))
}

func (h *cartHandler) clear(w http.ResponseWriter, r *http.Request) {
	if _, err := h.svc.Clear(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *cartHandler) remove(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
