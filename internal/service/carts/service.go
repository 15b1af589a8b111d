// Package carts ведёт корзины покупателей. Корзина не резервирует остатки
// и не связана с заказами.
package carts

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

// Service: операции над корзинами.
type Service struct {
	carts    domain.CartRepository
	products domain.ProductRepository
	logger   *log.Entry
	now      func() time.Time
}

// NewService создаёт сервис корзин.
func NewService(carts domain.CartRepository, products domain.ProductRepository, logger *log.Entry) *Service {
	if logger == nil {
		logger = log.New().WithField("component", "carts")
	}
	return &Service{
		carts:    carts,
		products: products,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Create создаёт пустую корзину. userID необязателен.
func (s *Service) Create(ctx context.Context, userID string) (domain.Cart, error) {
	now := s.now()
	cart := domain.Cart{
		ID:        uuid.NewString(),
		UserID:    userID,
		Items:     []domain.CartItem{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.carts.Create(ctx, cart); err != nil {
		return domain.Cart{}, err
	}
	return cart, nil
}

// Get возвращает корзину.
func (s *Service) Get(ctx context.Context, id string) (domain.Cart, error) {
	cart, err := s.carts.Get(ctx, id)
	if err != nil {
		return domain.Cart{}, cartNotFound(id, err)
	}
	return cart, nil
}

// AddItem добавляет товар; если он уже в корзине, количество суммируется.
func (s *Service) AddItem(ctx context.Context, id, productID string, quantity int) (domain.Cart, error) {
	if quantity < 1 {
		return domain.Cart{}, domain.Validationf("Quantity must be at least 1")
	}
	product, err := s.products.Get(ctx, productID)
	if err != nil {
		if errors.Is(err, domain.ErrProductNotFound) {
			return domain.Cart{}, domain.Describe(domain.ErrProductNotFound, "Product with ID %s not found", productID)
		}
		return domain.Cart{}, err
	}
	if !product.IsActive() {
		return domain.Cart{}, domain.Validationf("Product %s is not available", product.Name)
	}

	return s.mutate(ctx, id, func(c *domain.Cart) error {
		if i := c.IndexOf(productID); i >= 0 {
			c.Items[i].Quantity += quantity
			return nil
		}
		c.Items = append(c.Items, domain.CartItem{
			ProductID:   product.ID,
			ProductName: product.Name,
			UnitPrice:   product.Price,
			Quantity:    quantity,
		})
		return nil
	})
}

// UpdateItem задаёт количество; ноль или меньше удаляет строку.
func (s *Service) UpdateItem(ctx context.Context, id, productID string, quantity int) (domain.Cart, error) {
	return s.mutate(ctx, id, func(c *domain.Cart) error {
		i := c.IndexOf(productID)
		if i < 0 {
			return itemNotFound(productID)
		}
		if quantity <= 0 {
			c.Items = append(c.Items[:i], c.Items[i+1:]...)
			return nil
		}
		c.Items[i].Quantity = quantity
		return nil
	})
}

// RemoveItem удаляет строку товара.
func (s *Service) RemoveItem(ctx context.Context, id, productID string) (domain.Cart, error) {
	return s.mutate(ctx, id, func(c *domain.Cart) error {
		i := c.IndexOf(productID)
		if i < 0 {
			return itemNotFound(productID)
		}
		c.Items = append(c.Items[:i], c.Items[i+1:]...)
		return nil
	})
}

// Clear очищает корзину.
func (s *Service) Clear(ctx context.Context, id string) (domain.Cart, error) {
	return s.mutate(ctx, id, func(c *domain.Cart) error {
		c.Items = []domain.CartItem{}
		return nil
	})
}

// Delete удаляет корзину.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.carts.Delete(ctx, id); err != nil {
		return cartNotFound(id, err)
	}
	return nil
}

// mutate применяет fn, обновляет цены из каталога и пересчитывает итог.
func (s *Service) mutate(ctx context.Context, id string, fn func(*domain.Cart) error) (domain.Cart, error) {
	cart, err := s.carts.Update(ctx, id, func(c *domain.Cart) error {
		if err := fn(c); err != nil {
			return err
		}
		s.refreshPrices(ctx, c)
		c.Recalculate()
		c.UpdatedAt = s.now()
		return nil
	})
	if err != nil {
		return domain.Cart{}, cartNotFound(id, err)
	}
	return cart, nil
}

// refreshPrices подтягивает текущие цены. Если товар недоступен, остаётся последняя известная цена.
func (s *Service) refreshPrices(ctx context.Context, c *domain.Cart) {
	for i := range c.Items {
		product, err := s.products.Get(ctx, c.Items[i].ProductID)
		if err != nil {
			s.logger.WithError(err).WithFields(log.Fields{
				"cart_id":    c.ID,
				"product_id": c.Items[i].ProductID,
			}).Debug("keep last known price")
			continue
		}
		c.Items[i].UnitPrice = product.Price
		c.Items[i].ProductName = product.Name
	}
}

func cartNotFound(id string, err error) error {
	if errors.Is(err, domain.ErrCartNotFound) {
		return domain.Describe(domain.ErrCartNotFound, "Cart with ID %s not found", id)
	}
	return err
}

func itemNotFound(productID string) error {
	return domain.Describe(domain.ErrCartItemNotFound, "Product with ID %s not found in cart", productID)
}
