package httpsvc

import (
	"time"

	"github.com/vladislavdragonenkov/shop/internal/domain"
	"github.com/vladislavdragonenkov/shop/internal/service/catalog"
	"github.com/vladislavdragonenkov/shop/internal/service/orders"
)

type pageResponse[T any] struct {
	Items      []T `json:"items"`
	Total      int `json:"total"`
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	TotalPages int `json:"totalPages"`
}

func toPage[T, R any](p domain.Page[T], fn func(T) R) pageResponse[R] {
	mapped := domain.MapPage(p, fn)
	return pageResponse[R]{
		Items:      mapped.Items,
		Total:      mapped.Total,
		Page:       mapped.Page,
		Limit:      mapped.Limit,
		TotalPages: mapped.TotalPages,
	}
}

func mapSlice[T, R any](items []T, fn func(T) R) []R {
	out := make([]R, 0, len(items))
	for _, item := range items {
		out = append(out, fn(item))
	}
	return out
}

type productResponse struct {
	ID             string    `json:"id"`
	SKU            string    `json:"sku"`
	Name           string    `json:"name"`
	Description    string    `json:"description"`
	Price          int64     `json:"price"`
	FormattedPrice string    `json:"formattedPrice"`
	Category       string    `json:"category"`
	Tags           []string  `json:"tags"`
	ImageURL       string    `json:"imageUrl,omitempty"`
	Images         []string  `json:"images"`
	Weight         int       `json:"weight,omitempty"`
	Dimensions     string    `json:"dimensions,omitempty"`
	Stock          int       `json:"stock"`
	InStock        bool      `json:"inStock"`
	Status         string    `json:"status"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

func newProductResponse(p domain.Product) productResponse {
	tags := p.Tags
	if tags == nil {
		tags = []string{}
	}
	images := p.Images
	if images == nil {
		images = []string{}
	}
	return productResponse{
		ID:             p.ID,
		SKU:            p.SKU,
		Name:           p.Name,
		Description:    p.Description,
		Price:          p.Price,
		FormattedPrice: p.FormattedPrice(),
		Category:       p.Category,
		Tags:           tags,
		ImageURL:       p.ImageURL,
		Images:         images,
		Weight:         p.Weight,
		Dimensions:     p.Dimensions,
		Stock:          p.Stock,
		InStock:        p.InStock(),
		Status:         string(p.Status),
		CreatedAt:      p.CreatedAt,
		UpdatedAt:      p.UpdatedAt,
	}
}

type userResponse struct {
	ID                  string     `json:"id"`
	FirstName           string     `json:"firstName"`
	LastName            string     `json:"lastName"`
	FullName            string     `json:"fullName"`
	Email               string     `json:"email"`
	Role                string     `json:"role"`
	PhoneNumber         string     `json:"phoneNumber,omitempty"`
	ShippingAddress     string     `json:"shippingAddress,omitempty"`
	BillingAddress      string     `json:"billingAddress,omitempty"`
	DateOfBirth         string     `json:"dateOfBirth,omitempty"`
	MarketingOptIn      bool       `json:"marketingOptIn"`
	EmailVerified       bool       `json:"emailVerified"`
	LastLoginAt         *time.Time `json:"lastLoginAt"`
	IsActive            bool       `json:"isActive"`
	OrderCount          int        `json:"orderCount"`
	TotalSpent          int64      `json:"totalSpent"`
	FormattedTotalSpent string     `json:"formattedTotalSpent"`
	CreatedAt           time.Time  `json:"createdAt"`
	UpdatedAt           time.Time  `json:"updatedAt"`
}

func newUserResponse(u domain.User) userResponse {
	return userResponse{
		ID:                  u.ID,
		FirstName:           u.FirstName,
		LastName:            u.LastName,
		FullName:            u.FullName(),
		Email:               u.Email,
		Role:                string(u.Role),
		PhoneNumber:         u.PhoneNumber,
		ShippingAddress:     u.ShippingAddress,
		BillingAddress:      u.BillingAddress,
		DateOfBirth:         u.DateOfBirth,
		MarketingOptIn:      u.MarketingOptIn,
		EmailVerified:       u.EmailVerified,
		LastLoginAt:         u.LastLoginAt,
		IsActive:            u.IsActive,
		OrderCount:          u.OrderCount,
		TotalSpent:          u.TotalSpent,
		FormattedTotalSpent: domain.FormatPrice(u.TotalSpent),
		CreatedAt:           u.CreatedAt,
		UpdatedAt:           u.UpdatedAt,
	}
}

type orderItemResponse struct {
	ProductID           string `json:"productId"`
	ProductName         string `json:"productName"`
	ProductSKU          string `json:"productSku"`
	Quantity            int    `json:"quantity"`
	UnitPrice           int64  `json:"unitPrice"`
	FormattedUnitPrice  string `json:"formattedUnitPrice"`
	TotalPrice          int64  `json:"totalPrice"`
	FormattedTotalPrice string `json:"formattedTotalPrice"`
}

type orderResponse struct {
	ID                    string              `json:"id"`
	OrderNumber           string              `json:"orderNumber"`
	UserID                string              `json:"userId"`
	Items                 []orderItemResponse `json:"items"`
	Subtotal              int64               `json:"subtotal"`
	Tax                   int64               `json:"tax"`
	ShippingCost          int64               `json:"shippingCost"`
	Discount              int64               `json:"discount"`
	TotalAmount           int64               `json:"totalAmount"`
	FormattedTotal        string              `json:"formattedTotal"`
	Status                string              `json:"status"`
	AllowedTransitions    []string            `json:"allowedTransitions"`
	ShippingMethod        string              `json:"shippingMethod"`
	PaymentMethod         string              `json:"paymentMethod,omitempty"`
	CouponCode            string              `json:"couponCode,omitempty"`
	ShippingAddress       string              `json:"shippingAddress"`
	BillingAddress        string              `json:"billingAddress"`
	Notes                 string              `json:"notes,omitempty"`
	TrackingNumber        string              `json:"trackingNumber,omitempty"`
	EstimatedDeliveryDate *time.Time          `json:"estimatedDeliveryDate,omitempty"`
	Version               int64               `json:"version"`
	CreatedAt             time.Time           `json:"createdAt"`
	UpdatedAt             time.Time           `json:"updatedAt"`
}

func newOrderResponse(o domain.Order) orderResponse {
	items := make([]orderItemResponse, 0, len(o.Items))
	for _, item := range o.Items {
		items = append(items, orderItemResponse{
			ProductID:           item.ProductID,
			ProductName:         item.ProductName,
			ProductSKU:          item.SKU,
			Quantity:            item.Quantity,
			UnitPrice:           item.UnitPrice,
			FormattedUnitPrice:  domain.FormatPrice(item.UnitPrice),
			TotalPrice:          item.TotalPrice,
			FormattedTotalPrice: domain.FormatPrice(item.TotalPrice),
		})
	}
	return orderResponse{
		ID:                    o.ID,
		OrderNumber:           o.OrderNumber,
		UserID:                o.UserID,
		Items:                 items,
		Subtotal:              o.Subtotal,
		Tax:                   o.Tax,
		ShippingCost:          o.ShippingCost,
		Discount:              o.Discount,
		TotalAmount:           o.TotalAmount,
		FormattedTotal:        domain.FormatPrice(o.TotalAmount),
		Status:                string(o.Status),
		AllowedTransitions:    allowedTransitions(o.Status),
		ShippingMethod:        string(o.ShippingMethod),
		PaymentMethod:         string(o.PaymentMethod),
		CouponCode:            o.CouponCode,
		ShippingAddress:       o.ShippingAddress,
		BillingAddress:        o.BillingAddress,
		Notes:                 o.Notes,
		TrackingNumber:        o.TrackingNumber,
		EstimatedDeliveryDate: o.EstimatedDeliveryDate,
		Version:               o.Version,
		CreatedAt:             o.CreatedAt,
		UpdatedAt:             o.UpdatedAt,
	}
}

// allowedTransitions: статусы, в которые заказ можно перевести через PATCH /orders/{id}/status.
func allowedTransitions(status domain.OrderStatus) []string {
	next := domain.NextStatuses(status)
	out := make([]string, 0, len(next))
	for _, s := range next {
		out = append(out, string(s))
	}
	return out
}

type invoiceResponse struct {
	InvoiceNumber string        `json:"invoiceNumber"`
	GeneratedAt   time.Time     `json:"generatedAt"`
	Order         orderResponse `json:"order"`
}

func newInvoiceResponse(inv orders.Invoice) invoiceResponse {
	return invoiceResponse{
		InvoiceNumber: inv.InvoiceNumber,
		GeneratedAt:   inv.GeneratedAt,
		Order:         newOrderResponse(inv.Order),
	}
}

type statusChangeResponse struct {
	From       string    `json:"from,omitempty"`
	To         string    `json:"to"`
	Reason     string    `json:"reason,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}

func newStatusChangeResponse(c domain.StatusChange) statusChangeResponse {
	return statusChangeResponse{
		From:       string(c.From),
		To:         string(c.To),
		Reason:     c.Reason,
		OccurredAt: c.Occurred,
	}
}

type cartItemResponse struct {
	ProductID      string `json:"productId"`
	ProductName    string `json:"productName"`
	UnitPrice      int64  `json:"unitPrice"`
	Quantity       int    `json:"quantity"`
	TotalPrice     int64  `json:"totalPrice"`
	FormattedPrice string `json:"formattedPrice"`
}

type cartResponse struct {
	ID             string             `json:"id"`
	UserID         string             `json:"userId,omitempty"`
	Items          []cartItemResponse `json:"items"`
	ItemCount      int                `json:"itemCount"`
	Total          int64              `json:"total"`
	FormattedTotal string             `json:"formattedTotal"`
	CreatedAt      time.Time          `json:"createdAt"`
	UpdatedAt      time.Time          `json:"updatedAt"`
}

func newCartResponse(c domain.Cart) cartResponse {
	items := make([]cartItemResponse, 0, len(c.Items))
	for _, item := range c.Items {
		items = append(items, cartItemResponse{
			ProductID:      item.ProductID,
			ProductName:    item.ProductName,
			UnitPrice:      item.UnitPrice,
			Quantity:       item.Quantity,
			TotalPrice:     item.TotalPrice,
			FormattedPrice: domain.FormatPrice(item.UnitPrice),
		})
	}
	return cartResponse{
		ID:             c.ID,
		UserID:         c.UserID,
		Items:          items,
		ItemCount:      c.ItemCount(),
		Total:          c.Total,
		FormattedTotal: domain.FormatPrice(c.Total),
		CreatedAt:      c.CreatedAt,
		UpdatedAt:      c.UpdatedAt,
	}
}

type categoryResponse struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Slug            string    `json:"slug"`
	Description     string    `json:"description,omitempty"`
	ParentID        string    `json:"parentId,omitempty"`
	ImageURL        string    `json:"imageUrl,omitempty"`
	Icon            string    `json:"icon,omitempty"`
	MetaTitle       string    `json:"metaTitle,omitempty"`
	MetaDescription string    `json:"metaDescription,omitempty"`
	SortOrder       int       `json:"sortOrder"`
	IsActive        bool      `json:"isActive"`
	IsFeatured      bool      `json:"isFeatured"`
	ProductCount    *int      `json:"productCount,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

func newCategoryResponse(c domain.Category) categoryResponse {
	return categoryResponse{
		ID:              c.ID,
		Name:            c.Name,
		Slug:            c.Slug,
		Description:     c.Description,
		ParentID:        c.ParentID,
		ImageURL:        c.ImageURL,
		Icon:            c.Icon,
		MetaTitle:       c.MetaTitle,
		MetaDescription: c.MetaDescription,
		SortOrder:       c.SortOrder,
		IsActive:        c.IsActive,
		IsFeatured:      c.IsFeatured,
		CreatedAt:       c.CreatedAt,
		UpdatedAt:       c.UpdatedAt,
	}
}

func newCategoryViewResponse(v catalog.CategoryView) categoryResponse {
	resp := newCategoryResponse(v.Category)
	count := v.ProductCount
	resp.ProductCount = &count
	return resp
}

type categoryNodeResponse struct {
	categoryResponse
	Children []categoryNodeResponse `json:"children"`
}

func newCategoryNodeResponse(n catalog.CategoryNode) categoryNodeResponse {
	return categoryNodeResponse{
		categoryResponse: newCategoryResponse(n.Category),
		Children:         mapSlice(n.Children, newCategoryNodeResponse),
	}
}
