package httpsvc

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shop/internal/domain"
	"github.com/vladislavdragonenkov/shop/internal/service/catalog"
)

type categoryHandler struct {
	svc    *catalog.CategoryService
	logger *log.Entry
}

type createCategoryRequest struct {
	Name            string `json:"name"`
	Slug            string `json:"slug"`
	Description     string `json:"description"`
	ParentID        string `json:"parentId"`
	ImageURL        string `json:"imageUrl"`
	Icon            string `json:"icon"`
	MetaTitle       string `json:"metaTitle"`
	MetaDescription string `json:"metaDescription"`
	SortOrder       int    `json:"sortOrder"`
	IsActive        *bool  `json:"isActive"`
	IsFeatured      bool   `json:"isFeatured"`
}

type updateCategoryRequest struct {
	Name            *string `json:"name"`
	Slug            *string `json:"slug"`
	Description     *string `json:"description"`
	ParentID        *string `json:"parentId"`
	ImageURL        *string `json:"imageUrl"`
	Icon            *string `json:"icon"`
	MetaTitle       *string `json:"metaTitle"`
	MetaDescription *string `json:"metaDescription"`
	SortOrder       *int    `json:"sortOrder"`
	IsActive        *bool   `json:"isActive"`
	IsFeatured      *bool   `json:"isFeatured"`
}

type categoryProductsResponse struct {
	Category categoryResponse              `json:"category"`
	Products pageResponse[productResponse] `json:"products"`
}

func (h *categoryHandler) Routes(r chi.Router) {
	r.Post("/", h.create)
	r.Get("/", h.list)
	r.Get("/tree", h.tree)
	r.Get("/featured", h.featured)
	r.Get("/slug/{slug}", h.getBySlug)
	r.Get("/{id}", h.get)
	r.Get("/{id}/products", h.products)
	r.Patch("/{id}", h.update)
	r.Delete("/{id}", h.remove)
}

func (h *categoryHandler) create(w http.ResponseWriter, r *http.Request) {
	var req createCategoryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	category, err := h.svc.Create(r.Context(), catalog.CategoryInput{
		Name:            req.Name,
		Slug:            req.Slug,
		Description:     req.Description,
		ParentID:        req.ParentID,
		ImageURL:        req.ImageURL,
		Icon:            req.Icon,
		MetaTitle:       req.MetaTitle,
		MetaDescription: req.MetaDescription,
		SortOrder:       req.SortOrder,
		IsActive:        req.IsActive,
		IsFeatured:      req.IsFeatured,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeData(w, http.StatusCreated, "Category created successfully", newCategoryResponse(category))
}

func (h *categoryHandler) list(w http.ResponseWriter, r *http.Request) {
	q := newQueryReader(r)
	filter := domain.CategoryFilter{
		IsActive:   q.BoolPtr("isActive"),
		IsFeatured: q.BoolPtr("isFeatured"),
		Search:     q.String("search"),
	}
	if r.URL.Query().Has("parentId") {
		parentID := q.String("parentId")
		filter.ParentID = &parentID
	}
	page := q.Page()
	if err := q.Err(); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	result, err := h.svc.List(r.Context(), filter, page)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, "Categories retrieved successfully", toPage(result, newCategoryResponse))
}

func (h *categoryHandler) tree(w http.ResponseWriter, r *http.Request) {
	q := newQueryReader(r)
	opts := catalog.TreeOptions{
		IncludeInactive: q.Bool("includeInactive"),
		MaxDepth:        q.Int("maxDepth"),
	}
	if err := q.Err(); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	nodes, err := h.svc.Tree(r.Context(), opts)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, "Category tree retrieved successfully", mapSlice(nodes, newCategoryNodeResponse))
}

func (h *categoryHandler) featured(w http.ResponseWriter, r *http.Request) {
	q := newQueryReader(r)
	limit := q.Int("limit")
	if err := q.Err(); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	categories, err := h.svc.Featured(r.Context(), limit)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, "Featured categories retrieved successfully", mapSlice(categories, newCategoryResponse))
}

func (h *categoryHandler) get(w http.ResponseWriter, r *http.Request) {
	view, err := h.svc.View(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, "Category retrieved successfully", newCategoryViewResponse(view))
}

func (h *categoryHandler) getBySlug(w http.ResponseWriter, r *http.Request) {
	view, err := h.svc.ViewBySlug(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, "Category retrieved successfully", newCategoryViewResponse(view))
}

func (h *categoryHandler) products(w http.ResponseWriter, r *http.Request) {
	q := newQueryReader(r)
	filter := domain.ProductFilter{
		Search:   q.String("search"),
		MinPrice: q.Int64Ptr("minPrice"),
		MaxPrice: q.Int64Ptr("maxPrice"),
		IsActive: q.BoolPtr("isActive"),
	}
	page := q.Page()
	if err := q.Err(); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	view, products, err := h.svc.Products(r.Context(), chi.URLParam(r, "id"), filter, page)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, "Category products retrieved successfully", categoryProductsResponse{
		Category: newCategoryViewResponse(view),
		Products: toPage(products, newProductResponse),
	})
}

func (h *categoryHandler) update(w http.ResponseWriter, r *http.Request) {
	var req updateCategoryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	category, err := h.svc.Update(r.Context(), chi.URLParam(r, "id"), catalog.CategoryPatch{
		Name:            req.Name,
		Slug:            req.Slug,
		Description:     req.Description,
		ParentID:        req.ParentID,
		ImageURL:        req.ImageURL,
		Icon:            req.Icon,
		MetaTitle:       req.MetaTitle,
		MetaDescription: req.MetaDescription,
		SortOrder:       req.SortOrder,
		IsActive:        req.IsActive,
		IsFeatured:      req.IsFeatured,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, "Category updated successfully", newCategoryResponse(category))
}

func (h *categoryHandler) remove(w http.ResponseWriter, r *http.Request) {
	q := newQueryReader(r)
	force := q.Bool("force")
	if err := q.Err(); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if _, err := h.svc.Remove(r.Context(), chi.URLParam(r, "id"), force); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
