package domain

import (
	"regexp"
	"strings"
	"time"
)

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

// Category: раздел каталога. Товар ссылается на категорию по slug.
type Category struct {
	ID          string
	Name        string
	Slug        string
	Description string
	// ParentID пустой у корневых категорий.
	ParentID   string
	ImageURL   string
	Icon       string
	// MetaTitle и MetaDescription уходят в SEO-теги витрины.
	MetaTitle       string
	MetaDescription string
	SortOrder       int
	IsActive        bool
	IsFeatured      bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Slugify строит slug из названия: "Home & Garden" -> "home-garden".
func Slugify(name string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			dash = false
		case b.Len() > 0 && !dash:
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

// Validate проверяет поля категории.
func (c Category) Validate() error {
	switch {
	case strings.TrimSpace(c.Name) == "":
		return Validationf("Category name is required")
	case len(c.Name) > 100:
		return Validationf("Category name must be at most 100 characters")
	case !slugPattern.MatchString(c.Slug):
		return Validationf("Invalid category slug: %s", c.Slug)
	case c.SortOrder < 0:
		return Validationf("Category sortOrder must be non-negative")
	case c.ParentID != "" && c.ParentID == c.ID:
		return Validationf("Category cannot be its own parent")
	case len(c.Icon) > 100:
		return Validationf("Category icon must be at most 100 characters")
	case len(c.MetaTitle) > 200:
		return Validationf("Category metaTitle must be at most 200 characters")
	case len(c.MetaDescription) > 300:
		return Validationf("Category metaDescription must be at most 300 characters")
	}
	return nil
}

// CategoryFilter: условия выборки категорий.
type CategoryFilter struct {
	// ParentID: nil не фильтрует, пустая строка оставляет только корневые.
	ParentID   *string
	IsActive   *bool
	IsFeatured *bool
	Search     string
}

// Match проверяет, подходит ли категория под фильтр.
func (f CategoryFilter) Match(c Category) bool {
	if f.ParentID != nil && c.ParentID != *f.ParentID {
		return false
	}
	if f.IsActive != nil && c.IsActive != *f.IsActive {
		return false
	}
	if f.IsFeatured != nil && c.IsFeatured != *f.IsFeatured {
		return false
	}
	if f.Search != "" && !containsFold(c.Name+" "+c.Description, f.Search) {
		return false
	}
	return true
}

// CategorySortKeys: допустимые ключи сортировки категорий.
var CategorySortKeys = SortKeys[Category]{
	"name":      func(a, b Category) int { return CompareText(a.Name, b.Name) },
	"slug":      func(a, b Category) int { return CompareText(a.Slug, b.Slug) },
	"sortOrder": func(a, b Category) int { return compareInt(a.SortOrder, b.SortOrder) },
	"createdAt": func(a, b Category) int { return a.CreatedAt.Compare(b.CreatedAt) },
}
