package httpsvc

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shop/internal/domain"
	"github.com/vladislavdragonenkov/shop/internal/service/catalog"
)

type productHandler struct {
	svc    *catalog.ProductService
	logger *log.Entry
}

type createProductRequest struct {
	SKU         string   `json:"sku"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Price       int64    `json:"price"`
	Category    string   `json:"category"`
	Tags        []string `json:"tags"`
	ImageURL    string   `json:"imageUrl"`
	Images      []string `json:"images"`
	Weight      int      `json:"weight"`
	Dimensions  string   `json:"dimensions"`
	Stock       int      `json:"stock"`
	Status      string   `json:"status"`
}

type updateProductRequest struct {
	SKU         *string   `json:"sku"`
	Name        *string   `json:"name"`
	Description *string   `json:"description"`
	Price       *int64    `json:"price"`
	Category    *string   `json:"category"`
	Tags        *[]string `json:"tags"`
	ImageURL    *string   `json:"imageUrl"`
	Images      *[]string `json:"images"`
	Weight      *int      `json:"weight"`
	Dimensions  *string   `json:"dimensions"`
	Stock       *int      `json:"stock"`
	Status      *string   `json:"status"`
}

type stockRequest struct {
	Quantity *int `json:"quantity"`
}

func (h *productHandler) Routes(r chi.Router) {
	r.Post("/", h.create)
	r.Get("/", h.list)
	r.Get("/categories", h.categories)
	r.Get("/{id}", h.get)
	r.Get("/{id}/related", h.related)
	r.Patch("/{id}", h.update)
	r.Patch("/{id}/stock", h.adjustStock)
	r.Delete("/{id}", h.remove)
}

func (h *productHandler) create(w http.ResponseWriter, r *http.Request) {
	var req createProductRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	product, err := h.svc.Create(r.Context(), catalog.ProductInput{
		SKU:         req.SKU,
		Name:        req.Name,
		Description: req.Description,
		Price:       req.Price,
		Category:    req.Category,
		Tags:        req.Tags,
		ImageURL:    req.ImageURL,
		Images:      req.Images,
		Weight:      req.Weight,
		Dimensions:  req.Dimensions,
		Stock:       req.Stock,
		Status:      req.Status,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeData(w, http.StatusCreated, "Product created successfully", newProductResponse(product))
}

func (h *productHandler) list(w http.ResponseWriter, r *http.Request) {
	q := newQueryReader(r)
	filter := domain.ProductFilter{
		Category: q.String("category"),
		Search:   q.String("search"),
		Tag:      q.String("tag"),
		MinPrice: q.Int64Ptr("minPrice"),
		MaxPrice: q.Int64Ptr("maxPrice"),
		IsActive: q.BoolPtr("isActive"),
	}
	page := q.Page()
	if err := q.Err(); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if raw := q.String("status"); raw != "" {
		status, err := domain.ParseProductStatus(raw)
		if err != nil {
			writeError(w, r, h.logger, err)
			return
		}
		filter.Status = status
	}
	result, err := h.svc.List(r.Context(), filter, page)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, "Products retrieved successfully", toPage(result, newProductResponse))
}

func (h *productHandler) categories(w http.ResponseWriter, r *http.Request) {
	names, err := h.svc.Categories(r.Context())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, "Categories retrieved successfully", names)
}

func (h *productHandler) get(w http.ResponseWriter, r *http.Request) {
	product, err := h.svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, "Product retrieved successfully", newProductResponse(product))
}

func (h *productHandler) related(w http.ResponseWriter, r *http.Request) {
	q := newQueryReader(r)
	limit := q.Int("limit")
	if err := q.Err(); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	related, err := h.svc.Related(r.Context(), chi.URLParam(r, "id"), limit)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, "Related products retrieved successfully", mapSlice(related, newProductResponse))
}

func (h *productHandler) update(w http.ResponseWriter, r *http.Request) {
	var req updateProductRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	patch := catalog.ProductPatch{
		SKU:         req.SKU,
		Name:        req.Name,
		Description: req.Description,
		Price:       req.Price,
		Category:    req.Category,
		ImageURL:    req.ImageURL,
		Weight:      req.Weight,
		Dimensions:  req.Dimensions,
		Stock:       req.Stock,
		Status:      req.Status,
	}
	if req.Tags != nil {
		patch.Tags = *req.Tags
		if patch.Tags == nil {
			patch.Tags = []string{}
		}
	}
	if req.Images != nil {
		patch.Images = *req.Images
		if patch.Images == nil {
			patch.Images = []string{}
		}
	}
	product, err := h.svc.Update(r.Context(), chi.URLParam(r, "id"), patch)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, "Product updated successfully", newProductResponse(product))
}

// adjustStock применяет знаковую дельту: положительная пополняет склад, отрицательная списывает.
func (h *productHandler) adjustStock(w http.ResponseWriter, r *http.Request) {
	var req stockRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if req.Quantity == nil {
		writeError(w, r, h.logger, badRequest("quantity is required"))
		return
	}
	product, err := h.svc.AdjustStock(r.Context(), chi.URLParam(r, "id"), *req.Quantity)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, "Stock updated successfully", newProductResponse(product))
}

func (h *productHandler) remove(w http.ResponseWriter, r *http.Request) {
	if _, err := h.svc.Remove(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
