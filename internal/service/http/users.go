package httpsvc

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shop/internal/domain"
	"github.com/vladislavdragonenkov/shop/internal/service/users"
)

type userHandler struct {
	svc    *users.Service
	logger *log.Entry
}

type createUserRequest struct {
	FirstName       string `json:"firstName"`
	LastName        string `json:"lastName"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	PhoneNumber     string `json:"phoneNumber"`
	Role            string `json:"role"`
	ShippingAddress string `json:"shippingAddress"`
	BillingAddress  string `json:"billingAddress"`
	DateOfBirth     string `json:"dateOfBirth"`
	MarketingOptIn  bool   `json:"marketingOptIn"`
}

type updateUserRequest struct {
	FirstName       *string `json:"firstName"`
	LastName        *string `json:"lastName"`
	Email           *string `json:"email"`
	Password        *string `json:"password"`
	PhoneNumber     *string `json:"phoneNumber"`
	Role            *string `json:"role"`
	ShippingAddress *string `json:"shippingAddress"`
	BillingAddress  *string `json:"billingAddress"`
	DateOfBirth     *string `json:"dateOfBirth"`
	MarketingOptIn  *bool   `json:"marketingOptIn"`
	EmailVerified   *bool   `json:"emailVerified"`
	IsActive        *bool   `json:"isActive"`
}

func (h *userHandler) Routes(r chi.Router) {
	r.Post("/", h.create)
	r.Get("/", h.list)
	r.Get("/{id}", h.get)
	r.Get("/{id}/orders", h.orders)
	r.Patch("/{id}", h.update)
	r.Delete("/{id}", h.remove)
}

func (h *userHandler) create(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	user, err := h.svc.Create(r.Context(), users.CreateInput(req))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeData(w, http.StatusCreated, "User created successfully", newUserResponse(user))
}

func (h *userHandler) list(w http.ResponseWriter, r *http.Request) {
	q := newQueryReader(r)
	filter := domain.UserFilter{
		IsActive: q.BoolPtr("isActive"),
		Search:   q.String("search"),
	}
	page := q.Page()
	if err := q.Err(); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if raw := q.String("role"); raw != "" {
		role, err := domain.ParseUserRole(raw)
		if err != nil {
			writeError(w, r, h.logger, err)
			return
		}
		filter.Role = role
	}
	result, err := h.svc.List(r.Context(), filter, page)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, "Users retrieved successfully", toPage(result, newUserResponse))
}

func (h *userHandler) get(w http.ResponseWriter, r *http.Request) {
	user, err := h.svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, "User retrieved successfully", newUserResponse(user))
}

func (h *userHandler) orders(w http.ResponseWriter, r *http.Request) {
	filter, page, err := parseOrderQuery(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	result, err := h.svc.Orders(r.Context(), chi.URLParam(r, "id"), filter, page)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, "User orders retrieved successfully", toPage(result, newOrderResponse))
}

func (h *userHandler) update(w http.ResponseWriter, r *http.Request) {
	var req updateUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	user, err := h.svc.Update(r.Context(), chi.URLParam(r, "id"), users.UpdateInput(req))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, "User updated successfully", newUserResponse(user))
}

func (h *userHandler) remove(w http.ResponseWriter, r *http.Request) {
	if _, err := h.svc.Remove(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
