// Package catalog управляет товарами и категориями магазина.
package catalog

import (
	"cmp"
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shop/internal/domain"
	"github.com/vladislavdragonenkov/shop/internal/textutil"
)

const (
	defaultRelatedLimit = 5
	maxRelatedLimit     = 20
)

// ProductService: операции над товарами.
type ProductService struct {
	repo   domain.ProductRepository
	logger *log.Entry
	now    func() time.Time
}

// NewProductService создаёт сервис товаров. logger может быть nil.
func NewProductService(repo domain.ProductRepository, logger *log.Entry) *ProductService {
	if logger == nil {
		logger = log.New().WithField("component", "products")
	}
	return &ProductService{
		repo:   repo,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// ProductInput: данные нового товара.
type ProductInput struct {
	SKU         string
	Name        string
	Description string
	Price       int64
	Category    string
	Tags        []string
	ImageURL    string
	Images      []string
	Weight      int
	Dimensions  string
	Stock       int
	Status      string
}

// ProductPatch: частичное обновление товара; nil означает «не менять».
type ProductPatch struct {
	SKU         *string
	Name        *string
	Description *string
	Price       *int64
	Category    *string
	Tags        []string
	ImageURL    *string
	Images      []string
	Weight      *int
	Dimensions  *string
	Stock       *int
	Status      *string
}

// Create добавляет товар. SKU уникален, статус по умолчанию active.
func (s *ProductService) Create(ctx context.Context, in ProductInput) (domain.Product, error) {
	status := domain.ProductStatusActive
	if in.Status != "" {
		parsed, err := domain.ParseProductStatus(in.Status)
		if err != nil {
			return domain.Product{}, err
		}
		status = parsed
	}
	now := s.now()
	product := domain.Product{
		ID:          uuid.NewString(),
		SKU:         in.SKU,
		Name:        in.Name,
		Description: textutil.Sanitize(in.Description),
		Price:       in.Price,
		Category:    in.Category,
		Tags:        in.Tags,
		ImageURL:    strings.TrimSpace(in.ImageURL),
		Images:      in.Images,
		Weight:      in.Weight,
		Dimensions:  in.Dimensions,
		Stock:       in.Stock,
		Status:      status,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	product.Normalize()
	product.SyncStockStatus()
	if err := product.Validate(); err != nil {
		return domain.Product{}, err
	}
	if err := s.repo.Create(ctx, product); err != nil {
		return domain.Product{}, err
	}
	s.logger.WithFields(log.Fields{"product_id": product.ID, "sku": product.SKU}).Info("product created")
	return product, nil
}

// Get возвращает товар по идентификатору.
func (s *ProductService) Get(ctx context.Context, id string) (domain.Product, error) {
	product, err := s.repo.Get(ctx, id)
	if err != nil {
		return domain.Product{}, productNotFound(id, err)
	}
	return product, nil
}

// List возвращает страницу товаров; по умолчанию новые первыми.
func (s *ProductService) List(ctx context.Context, filter domain.ProductFilter, page domain.PageRequest) (domain.Page[domain.Product], error) {
	page, err := page.Normalize("createdAt", domain.SortDesc)
	if err != nil {
		return domain.Page[domain.Product]{}, err
	}
	if !domain.ProductSortKeys.Has(page.SortBy) {
		return domain.Page[domain.Product]{}, domain.InvalidSortKey(page.SortBy, domain.ProductSortKeys.Names())
	}
	if filter.MinPrice != nil && filter.MaxPrice != nil && *filter.MinPrice > *filter.MaxPrice {
		return domain.Page[domain.Product]{}, domain.Validationf("minPrice must not exceed maxPrice")
	}
	filter.Category = strings.ToLower(strings.TrimSpace(filter.Category))
	return s.repo.List(ctx, filter, page)
}

// Update применяет частичные изменения; смена SKU повторно проверяет уникальность.
func (s *ProductService) Update(ctx context.Context, id string, patch ProductPatch) (domain.Product, error) {
	var status domain.ProductStatus
	if patch.Status != nil {
		parsed, err := domain.ParseProductStatus(*patch.Status)
		if err != nil {
			return domain.Product{}, err
		}
		status = parsed
	}

	product, err := s.repo.Update(ctx, id, func(p *domain.Product) error {
		if patch.SKU != nil {
			p.SKU = *patch.SKU
		}
		if patch.Name != nil {
			p.Name = *patch.Name
		}
		if patch.Description != nil {
			p.Description = textutil.Sanitize(*patch.Description)
		}
		if patch.Price != nil {
			p.Price = *patch.Price
		}
		if patch.Category != nil {
			p.Category = *patch.Category
		}
		if patch.Tags != nil {
			p.Tags = patch.Tags
		}
		if patch.ImageURL != nil {
			p.ImageURL = strings.TrimSpace(*patch.ImageURL)
		}
		if patch.Images != nil {
			p.Images = patch.Images
		}
		if patch.Weight != nil {
			p.Weight = *patch.Weight
		}
		if patch.Dimensions != nil {
			p.Dimensions = *patch.Dimensions
		}
		if patch.Stock != nil {
			p.Stock = *patch.Stock
		}
		if status != "" {
			p.Status = status
		}
		p.Normalize()
		p.SyncStockStatus()
		p.UpdatedAt = s.now()
		return p.Validate()
	})
	if err != nil {
		return domain.Product{}, productNotFound(id, err)
	}
	return product, nil
}

// Remove снимает товар с продажи (status=inactive).
func (s *ProductService) Remove(ctx context.Context, id string) (domain.Product, error) {
	product, err := s.repo.Update(ctx, id, func(p *domain.Product) error {
		p.Status = domain.ProductStatusInactive
		p.UpdatedAt = s.now()
		return nil
	})
	if err != nil {
		return domain.Product{}, productNotFound(id, err)
	}
	s.logger.WithField("product_id", id).Info("product deactivated")
	return product, nil
}

// AdjustStock изменяет остаток на delta; уход в минус: ошибка "Insufficient stock".
func (s *ProductService) AdjustStock(ctx context.Context, id string, delta int) (domain.Product, error) {
	updated, err := s.repo.AdjustStock(ctx, []domain.StockAdjustment{{ProductID: id, Delta: delta}})
	if err != nil {
		if errors.Is(err, domain.ErrInsufficientStock) {
			return domain.Product{}, domain.ErrInsufficientStock
		}
		return domain.Product{}, productNotFound(id, err)
	}
	return updated[0], nil
}

// Categories возвращает категории активных товаров.
func (s *ProductService) Categories(ctx context.Context) ([]string, error) {
	return s.repo.Categories(ctx)
}

// Related подбирает активные товары той же категории или с общими тегами.
// Сначала идут товары с большим числом общих тегов, затем по имени.
func (s *ProductService) Related(ctx context.Context, id string, limit int) ([]domain.Product, error) {
	switch {
	case limit < 0:
		return nil, domain.Validationf("limit must be a positive integer")
	case limit == 0:
		limit = defaultRelatedLimit
	case limit > maxRelatedLimit:
		limit = maxRelatedLimit
	}

	product, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	type scored struct {
		product domain.Product
		shared  int
	}
	var candidates []scored
	active := domain.ProductFilter{Status: domain.ProductStatusActive}
	err = s.each(ctx, active, func(p domain.Product) {
		if p.ID == product.ID {
			return
		}
		shared := 0
		for _, tag := range product.Tags {
			if p.HasTag(tag) {
				shared++
			}
		}
		if shared > 0 || (product.Category != "" && p.Category == product.Category) {
			candidates = append(candidates, scored{product: p, shared: shared})
		}
	})
	if err != nil {
		return nil, err
	}

	slices.SortFunc(candidates, func(a, b scored) int {
		if c := cmp.Compare(b.shared, a.shared); c != 0 {
			return c
		}
		return domain.CompareText(a.product.Name, b.product.Name)
	})
	out := make([]domain.Product, 0, min(limit, len(candidates)))
	for _, c := range candidates[:min(limit, len(candidates))] {
		out = append(out, c.product)
	}
	return out, nil
}

// each обходит все товары под фильтром страницами максимального размера.
func (s *ProductService) each(ctx context.Context, filter domain.ProductFilter, fn func(domain.Product)) error {
	req := domain.PageRequest{Page: 1, Limit: domain.MaxPageLimit, SortBy: "name", SortOrder: domain.SortAsc}
	for {
		page, err := s.repo.List(ctx, filter, req)
		if err != nil {
			return err
		}
		for _, p := range page.Items {
			fn(p)
		}
		if req.Page >= page.TotalPages {
			return nil
		}
		req.Page++
	}
}

func productNotFound(id string, err error) error {
	if errors.Is(err, domain.ErrProductNotFound) {
		return domain.Describe(domain.ErrProductNotFound, "Product with ID %s not found", id)
	}
	return err
}
