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
	defaultFeaturedLimit = 10
	maxFeaturedLimit     = 50
	maxDescriptionLength = 500
)

// CategoryService: операции над категориями каталога.
type CategoryService struct {
	repo     domain.CategoryRepository
	products *ProductService
	logger   *log.Entry
	now      func() time.Time
}

// NewCategoryService создаёт сервис категорий. Товары нужны для подсчёта
// productCount и выборки товаров категории.
func NewCategoryService(repo domain.CategoryRepository, products *ProductService, logger *log.Entry) *CategoryService {
	if logger == nil {
		logger = log.New().WithField("component", "categories")
	}
	return &CategoryService{
		repo:     repo,
		products: products,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// CategoryInput: данные новой категории. Пустой Slug строится из Name.
type CategoryInput struct {
	Name        string
	Slug        string
	Description string
	ParentID    string
	ImageURL    string
	Icon        string
	MetaTitle   string
	// MetaDescription: описание для поисковиков, до 300 символов.
	MetaDescription string
	SortOrder       int
	IsActive        *bool
	IsFeatured      bool
}

// CategoryPatch: частичное обновление категории.
type CategoryPatch struct {
	Name        *string
	Slug        *string
	Description *string
	// ParentID: указатель на пустую строку делает категорию корневой.
	ParentID        *string
	ImageURL        *string
	Icon            *string
	MetaTitle       *string
	MetaDescription *string
	SortOrder       *int
	IsActive        *bool
	IsFeatured      *bool
}

// CategoryView: категория с числом активных товаров.
type CategoryView struct {
	domain.Category
	ProductCount int
}

// CategoryNode: узел дерева категорий.
type CategoryNode struct {
	domain.Category
	Children []CategoryNode
}

// TreeOptions управляет построением дерева.
type TreeOptions struct {
	IncludeInactive bool
	// MaxDepth ограничивает глубину; 0: без ограничения.
	MaxDepth int
}

// Create добавляет категорию; slug уникален, родитель должен существовать.
func (s *CategoryService) Create(ctx context.Context, in CategoryInput) (domain.Category, error) {
	slug := strings.ToLower(strings.TrimSpace(in.Slug))
	if slug == "" {
		slug = domain.Slugify(in.Name)
	}
	active := true
	if in.IsActive != nil {
		active = *in.IsActive
	}
	now := s.now()
	category := domain.Category{
		ID:              uuid.NewString(),
		Name:            strings.TrimSpace(in.Name),
		Slug:            slug,
		Description:     textutil.Sanitize(in.Description),
		ParentID:        strings.TrimSpace(in.ParentID),
		ImageURL:        strings.TrimSpace(in.ImageURL),
		Icon:            strings.TrimSpace(in.Icon),
		MetaTitle:       strings.TrimSpace(in.MetaTitle),
		MetaDescription: strings.TrimSpace(in.MetaDescription),
		SortOrder:       in.SortOrder,
		IsActive:        active,
		IsFeatured:      in.IsFeatured,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := validateCategory(category); err != nil {
		return domain.Category{}, err
	}
	if category.ParentID != "" {
		if _, err := s.Get(ctx, category.ParentID); err != nil {
			return domain.Category{}, err
		}
	}
	if err := s.repo.Create(ctx, category); err != nil {
		return domain.Category{}, err
	}
	s.logger.WithFields(log.Fields{"category_id": category.ID, "slug": category.Slug}).Info("category created")
	return category, nil
}

// Get возвращает категорию по идентификатору.
func (s *CategoryService) Get(ctx context.Context, id string) (domain.Category, error) {
	category, err := s.repo.Get(ctx, id)
	if err != nil {
		return domain.Category{}, categoryNotFound("ID "+id, err)
	}
	return category, nil
}

// View возвращает категорию вместе с числом активных товаров.
func (s *CategoryService) View(ctx context.Context, id string) (CategoryView, error) {
	category, err := s.Get(ctx, id)
	if err != nil {
		return CategoryView{}, err
	}
	return s.view(ctx, category)
}

// ViewBySlug: то же, что View, но по slug.
func (s *CategoryService) ViewBySlug(ctx context.Context, slug string) (CategoryView, error) {
	category, err := s.repo.GetBySlug(ctx, strings.ToLower(slug))
	if err != nil {
		return CategoryView{}, categoryNotFound("slug "+slug, err)
	}
	return s.view(ctx, category)
}

// List возвращает страницу категорий; по умолчанию по sortOrder.
func (s *CategoryService) List(ctx context.Context, filter domain.CategoryFilter, page domain.PageRequest) (domain.Page[domain.Category], error) {
	page, err := page.Normalize("sortOrder", domain.SortAsc)
	if err != nil {
		return domain.Page[domain.Category]{}, err
	}
	if !domain.CategorySortKeys.Has(page.SortBy) {
		return domain.Page[domain.Category]{}, domain.InvalidSortKey(page.SortBy, domain.CategorySortKeys.Names())
	}
	return s.repo.List(ctx, filter, page)
}

// Tree строит дерево категорий по parentId. Узлы сортируются по sortOrder, затем по имени.
// Потомки неактивной категории скрываются вместе с ней.
func (s *CategoryService) Tree(ctx context.Context, opts TreeOptions) ([]CategoryNode, error) {
	if opts.MaxDepth < 0 {
		return nil, domain.Validationf("maxDepth must be non-negative")
	}
	all, err := s.repo.All(ctx)
	if err != nil {
		return nil, err
	}
	children := make(map[string][]domain.Category, len(all))
	for _, c := range all {
		if !opts.IncludeInactive && !c.IsActive {
			continue
		}
		children[c.ParentID] = append(children[c.ParentID], c)
	}
	for _, list := range children {
		slices.SortFunc(list, compareCategories)
	}

	var build func(parentID string, depth int) []CategoryNode
	build = func(parentID string, depth int) []CategoryNode {
		list := children[parentID]
		nodes := make([]CategoryNode, 0, len(list))
		for _, c := range list {
			node := CategoryNode{Category: c, Children: []CategoryNode{}}
			if opts.MaxDepth == 0 || depth < opts.MaxDepth {
				node.Children = build(c.ID, depth+1)
			}
			nodes = append(nodes, node)
		}
		return nodes
	}
	return build("", 1), nil
}

// Featured возвращает активные избранные категории.
func (s *CategoryService) Featured(ctx context.Context, limit int) ([]domain.Category, error) {
	switch {
	case limit < 0:
		return nil, domain.Validationf("limit must be a positive integer")
	case limit == 0:
		limit = defaultFeaturedLimit
	case limit > maxFeaturedLimit:
		limit = maxFeaturedLimit
	}
	yes := true
	page, err := s.repo.List(ctx, domain.CategoryFilter{IsActive: &yes, IsFeatured: &yes},
		domain.PageRequest{Page: 1, Limit: limit, SortBy: "sortOrder", SortOrder: domain.SortAsc})
	if err != nil {
		return nil, err
	}
	return page.Items, nil
}

// Update применяет изменения, проверяя уникальность slug и отсутствие циклов.
func (s *CategoryService) Update(ctx context.Context, id string, patch CategoryPatch) (domain.Category, error) {
	if patch.ParentID != nil && *patch.ParentID != "" {
		if err := s.checkParent(ctx, id, *patch.ParentID); err != nil {
			return domain.Category{}, err
		}
	}
	category, err := s.repo.Update(ctx, id, func(c *domain.Category) error {
		if patch.Name != nil {
			c.Name = strings.TrimSpace(*patch.Name)
		}
		if patch.Slug != nil {
			c.Slug = strings.ToLower(strings.TrimSpace(*patch.Slug))
		}
		if patch.Description != nil {
			c.Description = textutil.Sanitize(*patch.Description)
		}
		if patch.ParentID != nil {
			c.ParentID = strings.TrimSpace(*patch.ParentID)
		}
		if patch.ImageURL != nil {
			c.ImageURL = strings.TrimSpace(*patch.ImageURL)
		}
		setTrimmed(&c.Icon, patch.Icon)
		setTrimmed(&c.MetaTitle, patch.MetaTitle)
		setTrimmed(&c.MetaDescription, patch.MetaDescription)
		if patch.SortOrder != nil {
			c.SortOrder = *patch.SortOrder
		}
		if patch.IsActive != nil {
			c.IsActive = *patch.IsActive
		}
		if patch.IsFeatured != nil {
			c.IsFeatured = *patch.IsFeatured
		}
		c.UpdatedAt = s.now()
		return validateCategory(*c)
	})
	if err != nil {
		return domain.Category{}, categoryNotFound("ID "+id, err)
	}
	return category, nil
}

// Remove деактивирует категорию. Без force категория с активными товарами
// или подкатегориями не удаляется.
func (s *CategoryService) Remove(ctx context.Context, id string, force bool) (domain.Category, error) {
	category, err := s.Get(ctx, id)
	if err != nil {
		return domain.Category{}, err
	}
	if !force {
		view, err := s.view(ctx, category)
		if err != nil {
			return domain.Category{}, err
		}
		hasChildren, err := s.hasActiveChildren(ctx, id)
		if err != nil {
			return domain.Category{}, err
		}
		if view.ProductCount > 0 || hasChildren {
			return domain.Category{}, domain.ErrCategoryInUse
		}
	}
	removed, err := s.repo.Update(ctx, id, func(c *domain.Category) error {
		c.IsActive = false
		c.UpdatedAt = s.now()
		return nil
	})
	if err != nil {
		return domain.Category{}, categoryNotFound("ID "+id, err)
	}
	s.logger.WithFields(log.Fields{"category_id": id, "force": force}).Info("category deactivated")
	return removed, nil
}

// Products возвращает товары категории (по slug).
func (s *CategoryService) Products(ctx context.Context, id string, filter domain.ProductFilter, page domain.PageRequest) (CategoryView, domain.Page[domain.Product], error) {
	view, err := s.View(ctx, id)
	if err != nil {
		return CategoryView{}, domain.Page[domain.Product]{}, err
	}
	filter.Category = view.Slug
	products, err := s.products.List(ctx, filter, page)
	if err != nil {
		return CategoryView{}, domain.Page[domain.Product]{}, err
	}
	return view, products, nil
}

func (s *CategoryService) view(ctx context.Context, category domain.Category) (CategoryView, error) {
	yes := true
	page, err := s.products.repo.List(ctx, domain.ProductFilter{Category: category.Slug, IsActive: &yes},
		domain.PageRequest{Page: 1, Limit: 1, SortBy: "name", SortOrder: domain.SortAsc})
	if err != nil {
		return CategoryView{}, err
	}
	return CategoryView{Category: category, ProductCount: page.Total}, nil
}

func (s *CategoryService) hasActiveChildren(ctx context.Context, id string) (bool, error) {
	yes := true
	page, err := s.repo.List(ctx, domain.CategoryFilter{ParentID: &id, IsActive: &yes},
		domain.PageRequest{Page: 1, Limit: 1, SortBy: "sortOrder", SortOrder: domain.SortAsc})
	if err != nil {
		return false, err
	}
	return page.Total > 0, nil
}

// checkParent убеждается, что родитель существует и id не встречается среди его предков.
func (s *CategoryService) checkParent(ctx context.Context, id, parentID string) error {
	if parentID == id {
		return domain.Validationf("Category cannot be its own parent")
	}
	all, err := s.repo.All(ctx)
	if err != nil {
		return err
	}
	byID := make(map[string]domain.Category, len(all))
	for _, c := range all {
		byID[c.ID] = c
	}
	if _, ok := byID[parentID]; !ok {
		return domain.Describe(domain.ErrCategoryNotFound, "Category with ID %s not found", parentID)
	}
	for cur, steps := parentID, 0; cur != "" && steps <= len(byID); steps++ {
		if cur == id {
			return domain.Validationf("Category parent would create a cycle")
		}
		cur = byID[cur].ParentID
	}
	return nil
}

func validateCategory(c domain.Category) error {
	if len(c.Description) > maxDescriptionLength {
		return domain.Validationf("Category description must be at most %d characters", maxDescriptionLength)
	}
	return c.Validate()
}

func compareCategories(a, b domain.Category) int {
	if c := cmp.Compare(a.SortOrder, b.SortOrder); c != 0 {
		return c
	}
	return domain.CompareText(a.Name, b.Name)
}

func categoryNotFound(key string, err error) error {
	if errors.Is(err, domain.ErrCategoryNotFound) {
		return domain.Describe(domain.ErrCategoryNotFound, "Category with %s not found", key)
	}
	return err
}

func setTrimmed(dst *string, src *string) {
	if src != nil {
		*dst = strings.TrimSpace(*src)
	}
}
