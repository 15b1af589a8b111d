package domain

import (
	"net/url"
	"strings"
	"time"
)

// ProductStatus: статус товара в каталоге.
type ProductStatus string

const (
	// ProductStatusActive: товар продаётся.
	ProductStatusActive ProductStatus = "active"
	// ProductStatusInactive: товар снят с продажи (soft delete).
	ProductStatusInactive ProductStatus = "inactive"
	// ProductStatusOutOfStock: активный товар с нулевым остатком.
	ProductStatusOutOfStock ProductStatus = "out_of_stock"
)

// ParseProductStatus приводит строку к ProductStatus.
func ParseProductStatus(raw string) (ProductStatus, error) {
	status := ProductStatus(strings.ToLower(strings.TrimSpace(raw)))
	switch status {
	case ProductStatusActive, ProductStatusInactive, ProductStatusOutOfStock:
		return status, nil
	default:
		return "", Validationf("Invalid product status: %s", raw)
	}
}

// Product: товар каталога. Цена хранится в центах.
type Product struct {
	ID          string
	SKU         string
	Name        string
	Description string
	Price       int64
	Category    string
	Tags        []string
	ImageURL    string
	Images      []string
	// Weight: вес в граммах, 0 если не указан.
	Weight     int
	Dimensions string
	Stock      int
	Status     ProductStatus
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Clone возвращает копию товара без общих срезов.
func (p Product) Clone() Product {
	cp := p
	if p.Tags != nil {
		cp.Tags = append([]string(nil), p.Tags...)
	}
	if p.Images != nil {
		cp.Images = append([]string(nil), p.Images...)
	}
	return cp
}

// InStock сообщает, есть ли товар на складе.
func (p Product) InStock() bool {
	return p.Stock > 0
}

// IsActive: товар не снят с продажи (out_of_stock считается активным).
func (p Product) IsActive() bool {
	return p.Status != ProductStatusInactive
}

// FormattedPrice возвращает цену в виде "$99.99".
func (p Product) FormattedPrice() string {
	return FormatPrice(p.Price)
}

// SyncStockStatus согласует статус с остатком. Снятые с продажи товары не трогаем.
func (p *Product) SyncStockStatus() {
	switch {
	case p.Status == ProductStatusInactive:
	case p.Stock == 0:
		p.Status = ProductStatusOutOfStock
	case p.Status == ProductStatusOutOfStock:
		p.Status = ProductStatusActive
	}
}

// HasTag проверяет наличие тега без учёта регистра.
func (p Product) HasTag(tag string) bool {
	for _, t := range p.Tags {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}

// Normalize приводит поля к каноническому виду.
func (p *Product) Normalize() {
	p.SKU = strings.ToUpper(strings.TrimSpace(p.SKU))
	p.Name = strings.TrimSpace(p.Name)
	p.Category = strings.ToLower(strings.TrimSpace(p.Category))
	tags := p.Tags[:0:0]
	seen := make(map[string]struct{}, len(p.Tags))
	for _, tag := range p.Tags {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag == "" {
			continue
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		tags = append(tags, tag)
	}
	p.Tags = tags
	images := p.Images[:0:0]
	for _, image := range p.Images {
		if image = strings.TrimSpace(image); image != "" {
			images = append(images, image)
		}
	}
	p.Images = images
	p.Dimensions = strings.TrimSpace(p.Dimensions)
}

// Validate проверяет поля товара.
func (p Product) Validate() error {
	switch {
	case p.Name == "":
		return Validationf("Product name is required")
	case len(p.Name) > 255:
		return Validationf("Product name must be at most 255 characters")
	case p.SKU == "":
		return Validationf("Product SKU is required")
	case p.Price < 0:
		return Validationf("Product price must be non-negative")
	case p.Stock < 0:
		return Validationf("Product stock must be non-negative")
	case p.Category == "":
		return Validationf("Product category is required")
	case p.Weight < 0:
		return Validationf("Product weight must be non-negative")
	}
	for _, image := range p.Images {
		if !isHTTPURL(image) {
			return Validationf("Invalid image URL: %s", image)
		}
	}
	return nil
}

func isHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// StockAdjustment: изменение остатка товара на Delta единиц.
type StockAdjustment struct {
	ProductID string
	Delta     int
}

// ApplyStock проверяет и применяет изменение остатка к копии товара.
func ApplyStock(p Product, delta int, now time.Time) (Product, error) {
	if p.Stock+delta < 0 {
		return p, &InsufficientStockError{
			ProductID:   p.ID,
			ProductName: p.Name,
			Available:   p.Stock,
			Requested:   -delta,
		}
	}
	p.Stock += delta
	p.SyncStockStatus()
	p.UpdatedAt = now
	return p, nil
}

// ProductFilter: условия выборки товаров.
type ProductFilter struct {
	Category string
	Search   string
	Tag      string
	MinPrice *int64
	MaxPrice *int64
	Status   ProductStatus
	IsActive *bool
}

// Match проверяет, подходит ли товар под фильтр.
func (f ProductFilter) Match(p Product) bool {
	if f.Category != "" && !strings.EqualFold(p.Category, f.Category) {
		return false
	}
	if f.Search != "" && !containsFold(p.Name+" "+p.Description, f.Search) {
		return false
	}
	if f.Tag != "" && !p.HasTag(f.Tag) {
		return false
	}
	if f.MinPrice != nil && p.Price < *f.MinPrice {
		return false
	}
	if f.MaxPrice != nil && p.Price > *f.MaxPrice {
		return false
	}
	if f.Status != "" && p.Status != f.Status {
		return false
	}
	if f.IsActive != nil && p.IsActive() != *f.IsActive {
		return false
	}
	return true
}

// ProductSortKeys: допустимые ключи сортировки товаров.
var ProductSortKeys = SortKeys[Product]{
	"name":      func(a, b Product) int { return CompareText(a.Name, b.Name) },
	"price":     func(a, b Product) int { return compareInt(a.Price, b.Price) },
	"stock":     func(a, b Product) int { return compareInt(a.Stock, b.Stock) },
	"sku":       func(a, b Product) int { return CompareText(a.SKU, b.SKU) },
	"category":  func(a, b Product) int { return CompareText(a.Category, b.Category) },
	"createdAt": func(a, b Product) int { return a.CreatedAt.Compare(b.CreatedAt) },
	"updatedAt": func(a, b Product) int { return a.UpdatedAt.Compare(b.UpdatedAt) },
}
