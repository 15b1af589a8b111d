package orders_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/vladislavdragonenkov/shop/internal/domain"
	"github.com/vladislavdragonenkov/shop/internal/metrics"
	"github.com/vladislavdragonenkov/shop/internal/service/orders"
	"github.com/vladislavdragonenkov/shop/internal/service/users"
	"github.com/vladislavdragonenkov/shop/internal/storage/memory"
)

var fixedNow = time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)

type pendingOutbox interface {
	domain.OutboxRepository
	AllPending() []domain.OutboxMessage
}

type fixture struct {
	engine   *orders.Engine
	products domain.ProductRepository
	orders   domain.OrderRepository
	users    *users.Service
	outbox   pendingOutbox
	registry *prometheus.Registry
	userID   string
}

func newFixture(t *testing.T, opts ...orders.Option) *fixture {
	t.Helper()
	return newFixtureWith(t, memory.NewOrderRepository(), memory.NewProductRepository(), opts...)
}

func newFixtureWith(t *testing.T, orderRepo domain.OrderRepository, productRepo domain.ProductRepository, opts ...orders.Option) *fixture {
	t.Helper()
	f := &fixture{
		products: productRepo,
		orders:   orderRepo,
		users:    users.NewService(memory.NewUserRepository(), users.WithHashCost(bcrypt.MinCost)),
		outbox:   memory.NewOutboxRepository(),
		registry: prometheus.NewRegistry(),
	}
	base := []orders.Option{
		orders.WithClock(func() time.Time { return fixedNow }),
		orders.WithHistory(memory.NewHistoryRepository()),
		orders.WithOutbox(f.outbox),
		orders.WithMetrics(metrics.NewOrderMetrics(f.registry)),
	}
	f.engine = orders.NewEngine(f.orders, f.products, f.users, append(base, opts...)...)

	user, err := f.users.Create(context.Background(), users.CreateInput{
		FirstName: "John", LastName: "Doe", Email: "john.doe@example.com",
	})
	require.NoError(t, err)
	f.userID = user.ID
	return f
}

func (f *fixture) addProduct(t *testing.T, id string, price int64, stock int) {
	t.Helper()
	require.NoError(t, f.products.Create(context.Background(), domain.Product{
		ID:     id,
		SKU:    "SKU-" + id,
		Name:   "Product " + id,
		Price:  price,
		Stock:  stock,
		Status: domain.ProductStatusActive,
	}))
}

func (f *fixture) stock(t *testing.T, id string) int {
	t.Helper()
	p, err := f.products.Get(context.Background(), id)
	require.NoError(t, err)
	return p.Stock
}

func (f *fixture) order(t *testing.T, items ...orders.ItemInput) domain.Order {
	t.Helper()
	order, err := f.engine.Create(context.Background(), orders.CreateInput{
		UserID:          f.userID,
		Items:           items,
		ShippingAddress: "1 Main St",
	})
	require.NoError(t, err)
	return order
}

func TestEngine_CreateReservesStockAndComputesTotals(t *testing.T) {
	f := newFixture(t)
	f.addProduct(t, "p1", 9999, 5)

	order := f.order(t, orders.ItemInput{ProductID: "p1", Quantity: 2})

	assert.Equal(t, domain.OrderStatusPending, order.Status)
	assert.Equal(t, "ORD-2024-001", order.OrderNumber)
	assert.Equal(t, int64(19998), order.Subtotal)
	assert.Equal(t, int64(1600), order.Tax)
	assert.Equal(t, int64(999), order.ShippingCost)
	assert.Equal(t, int64(22597), order.TotalAmount)
	assert.Equal(t, "1 Main St", order.BillingAddress)
	assert.Equal(t, domain.ShippingStandard, order.ShippingMethod)
	require.Len(t, order.Items, 1)
	assert.Equal(t, "SKU-p1", order.Items[0].SKU)
	assert.Empty(t, order.ValidateInvariants())
	assert.Equal(t, 3, f.stock(t, "p1"))

	second := f.order(t, orders.ItemInput{ProductID: "p1", Quantity: 1})
	assert.Equal(t, "ORD-2024-002", second.OrderNumber)

	user, err := f.users.Get(context.Background(), f.userID)
	require.NoError(t, err)
	assert.Equal(t, 2, user.OrderCount)
	assert.Equal(t, order.TotalAmount+second.TotalAmount, user.TotalSpent)

	assert.Equal(t, 2.0, metricValue(t, f.registry, "shop_orders_created_total"))
}

func TestEngine_CreateCancelRestoresStock(t *testing.T) {
	f := newFixture(t)
	f.addProduct(t, "p1", 1000, 5)

	order := f.order(t, orders.ItemInput{ProductID: "p1", Quantity: 2})
	require.Equal(t, 3, f.stock(t, "p1"))

	cancelled, err := f.engine.Cancel(context.Background(), order.ID, "changed mind")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusCancelled, cancelled.Status)
	assert.Equal(t, 5, f.stock(t, "p1"))

	user, err := f.users.Get(context.Background(), f.userID)
	require.NoError(t, err)
	assert.Zero(t, user.OrderCount)
	assert.Zero(t, user.TotalSpent)

	_, err = f.engine.Cancel(context.Background(), order.ID, "")
	require.ErrorIs(t, err, domain.ErrOrderAlreadyCancelled)
	assert.Equal(t, "Order is already cancelled", domain.Message(err))
	assert.Equal(t, 5, f.stock(t, "p1"))
}

func TestEngine_CreateInsufficientStockLeavesStockUnchanged(t *testing.T) {
	f := newFixture(t)
	f.addProduct(t, "p1", 1000, 3)

	_, err := f.engine.Create(context.Background(), orders.CreateInput{
		UserID:          f.userID,
		Items:           []orders.ItemInput{{ProductID: "p1", Quantity: 5}},
		ShippingAddress: "1 Main St",
	})
	require.ErrorIs(t, err, domain.ErrInsufficientStock)
	require.ErrorIs(t, err, domain.ErrValidation)
	assert.Equal(t, "Insufficient stock for product Product p1. Available: 3, Requested: 5", domain.Message(err))
	assert.Equal(t, 3, f.stock(t, "p1"))
	assert.Equal(t, 1.0, metricValue(t, f.registry, "shop_stock_reservations_rejected_total"))
}

func TestEngine_CreateIsAllOrNothing(t *testing.T) {
	f := newFixture(t)
	f.addProduct(t, "a", 1000, 5)
	f.addProduct(t, "b", 1000, 1)

	_, err := f.engine.Create(context.Background(), orders.CreateInput{
		UserID:          f.userID,
		Items:           []orders.ItemInput{{ProductID: "a", Quantity: 2}, {ProductID: "b", Quantity: 2}},
		ShippingAddress: "1 Main St",
	})
	require.ErrorIs(t, err, domain.ErrInsufficientStock)
	assert.Equal(t, 5, f.stock(t, "a"))
	assert.Equal(t, 1, f.stock(t, "b"))
}

// failingOrders отказывает на выбранном шаге сохранения нового заказа.
type failingOrders struct {
	domain.OrderRepository
	numberErr error
	createErr error
}

func (r *failingOrders) NextOrderNumber(ctx context.Context, year int) (int64, error) {
	if r.numberErr != nil {
		return 0, r.numberErr
	}
	return r.OrderRepository.NextOrderNumber(ctx, year)
}

func (r *failingOrders) Create(ctx context.Context, order domain.Order) error {
	if r.createErr != nil {
		return r.createErr
	}
	return r.OrderRepository.Create(ctx, order)
}

func TestEngine_CreateReleasesStockWhenPersistFails(t *testing.T) {
	tests := []struct {
		name    string
		repo    *failingOrders
		wantErr string
	}{
		{
			name:    "order number",
			repo:    &failingOrders{numberErr: errors.New("sequence unavailable")},
			wantErr: "allocate order number: sequence unavailable",
		},
		{
			name:    "insert",
			repo:    &failingOrders{createErr: errors.New("disk full")},
			wantErr: "create order: disk full",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.repo.OrderRepository = memory.NewOrderRepository()
			f := newFixtureWith(t, tt.repo, memory.NewProductRepository())
			f.addProduct(t, "a", 1000, 5)
			f.addProduct(t, "b", 500, 2)

			_, err := f.engine.Create(context.Background(), orders.CreateInput{
				UserID:          f.userID,
				Items:           []orders.ItemInput{{ProductID: "a", Quantity: 3}, {ProductID: "b", Quantity: 2}},
				ShippingAddress: "1 Main St",
			})
			require.EqualError(t, err, tt.wantErr)

			assert.Equal(t, 5, f.stock(t, "a"))
			assert.Equal(t, 2, f.stock(t, "b"))
			assert.Empty(t, f.outbox.AllPending())
			assert.Zero(t, metricValue(t, f.registry, "shop_orders_created_total"))

			user, err := f.users.Get(context.Background(), f.userID)
			require.NoError(t, err)
			assert.Zero(t, user.OrderCount)
		})
	}
}

// racingProducts списывает остаток сразу после первого чтения товара,
// как параллельный заказ между проверкой и резервированием.
type racingProducts struct {
	domain.ProductRepository
	once  sync.Once
	taken int
}

func (r *racingProducts) Get(ctx context.Context, id string) (domain.Product, error) {
	product, err := r.ProductRepository.Get(ctx, id)
	if err == nil {
		r.once.Do(func() {
			_, _ = r.ProductRepository.AdjustStock(ctx, []domain.StockAdjustment{{ProductID: id, Delta: -r.taken}})
		})
	}
	return product, err
}

func TestEngine_CreateRejectsStockTakenAfterCheck(t *testing.T) {
	products := &racingProducts{ProductRepository: memory.NewProductRepository(), taken: 2}
	f := newFixtureWith(t, memory.NewOrderRepository(), products)
	f.addProduct(t, "a", 1000, 3)

	_, err := f.engine.Create(context.Background(), orders.CreateInput{
		UserID:          f.userID,
		Items:           []orders.ItemInput{{ProductID: "a", Quantity: 2}},
		ShippingAddress: "1 Main St",
	})
	require.ErrorIs(t, err, domain.ErrInsufficientStock)

	var stockErr *domain.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, 1, stockErr.Available)
	assert.Equal(t, 2, stockErr.Requested)

	assert.Equal(t, 1, f.stock(t, "a"))
	assert.Empty(t, f.outbox.AllPending())
	assert.Equal(t, 1.0, metricValue(t, f.registry, "shop_stock_reservations_rejected_total"))
}

func TestEngine_CreateAggregatesRepeatedProducts(t *testing.T) {
	f := newFixture(t)
	f.addProduct(t, "a", 1000, 5)

	_, err := f.engine.Create(context.Background(), orders.CreateInput{
		UserID:          f.userID,
		Items:           []orders.ItemInput{{ProductID: "a", Quantity: 3}, {ProductID: "a", Quantity: 3}},
		ShippingAddress: "1 Main St",
	})
	var stockErr *domain.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, 6, stockErr.Requested)
	assert.Equal(t, 5, f.stock(t, "a"))
}

func TestEngine_CreateValidation(t *testing.T) {
	f := newFixture(t)
	f.addProduct(t, "p1", 1000, 5)
	ctx := context.Background()
	item := []orders.ItemInput{{ProductID: "p1", Quantity: 1}}

	cases := []struct {
		name string
		in   orders.CreateInput
		kind error
		msg  string
	}{
		{"unknown user", orders.CreateInput{UserID: "nobody", Items: item, ShippingAddress: "x"}, domain.ErrNotFound, "User with ID nobody not found"},
		{"no items", orders.CreateInput{UserID: f.userID, ShippingAddress: "x"}, domain.ErrValidation, "Order must contain at least one item"},
		{"zero quantity", orders.CreateInput{UserID: f.userID, Items: []orders.ItemInput{{ProductID: "p1"}}, ShippingAddress: "x"}, domain.ErrValidation, "Item 1: quantity must be at least 1"},
		{"unknown product", orders.CreateInput{UserID: f.userID, Items: []orders.ItemInput{{ProductID: "zz", Quantity: 1}}, ShippingAddress: "x"}, domain.ErrNotFound, "Product with ID zz not found"},
		{"no address", orders.CreateInput{UserID: f.userID, Items: item}, domain.ErrValidation, "Shipping address is required"},
		{"bad shipping", orders.CreateInput{UserID: f.userID, Items: item, ShippingAddress: "x", ShippingMethod: "drone"}, domain.ErrValidation, "Invalid shipping method: drone"},
		{"bad payment", orders.CreateInput{UserID: f.userID, Items: item, ShippingAddress: "x", PaymentMethod: "barter"}, domain.ErrValidation, "Invalid payment method: barter"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.engine.Create(ctx, tc.in)
			require.ErrorIs(t, err, tc.kind)
			assert.Equal(t, tc.msg, domain.Message(err))
		})
	}
	assert.Equal(t, 5, f.stock(t, "p1"))
}

func TestEngine_CreateRejectsInactiveProductAndUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addProduct(t, "p1", 1000, 5)
	_, err := f.products.Update(ctx, "p1", func(p *domain.Product) error {
		p.Status = domain.ProductStatusInactive
		return nil
	})
	require.NoError(t, err)

	_, err = f.engine.Create(ctx, orders.CreateInput{
		UserID: f.userID, Items: []orders.ItemInput{{ProductID: "p1", Quantity: 1}}, ShippingAddress: "x",
	})
	require.ErrorIs(t, err, domain.ErrValidation)
	assert.Equal(t, "Product Product p1 is not available", domain.Message(err))

	f.addProduct(t, "p2", 1000, 5)
	_, err = f.users.Remove(ctx, f.userID)
	require.NoError(t, err)
	_, err = f.engine.Create(ctx, orders.CreateInput{
		UserID: f.userID, Items: []orders.ItemInput{{ProductID: "p2", Quantity: 1}}, ShippingAddress: "x",
	})
	require.ErrorIs(t, err, domain.ErrValidation)
	assert.Equal(t, 5, f.stock(t, "p2"))
}

func TestEngine_CreateWithCouponAndShipping(t *testing.T) {
	f := newFixture(t)
	f.addProduct(t, "p1", 2500, 10)

	order, err := f.engine.Create(context.Background(), orders.CreateInput{
		UserID:          f.userID,
		Items:           []orders.ItemInput{{ProductID: "p1", Quantity: 2}},
		ShippingAddress: "1 Main St",
		BillingAddress:  "PO Box 1",
		ShippingMethod:  "Express",
		PaymentMethod:   "paypal",
		CouponCode:      "percent10",
		Notes:           "<b>ring twice</b>",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(5000), order.Subtotal)
	assert.Equal(t, int64(400), order.Tax)
	assert.Equal(t, int64(1499), order.ShippingCost)
	assert.Equal(t, int64(500), order.Discount)
	assert.Equal(t, int64(6399), order.TotalAmount)
	assert.Equal(t, "PERCENT10", order.CouponCode)
	assert.Equal(t, "PO Box 1", order.BillingAddress)
	assert.Equal(t, "ring twice", order.Notes)
	assert.Equal(t, domain.PaymentMethodPayPal, order.PaymentMethod)
}

func TestEngine_UpdateStatusFollowsTable(t *testing.T) {
	f := newFixture(t)
	f.addProduct(t, "p1", 1000, 5)
	ctx := context.Background()
	order := f.order(t, orders.ItemInput{ProductID: "p1", Quantity: 1})

	_, err := f.engine.UpdateStatus(ctx, order.ID, orders.StatusInput{Status: "delivered"})
	require.ErrorIs(t, err, domain.ErrValidation)
	assert.Equal(t, "Invalid status transition from pending to delivered", domain.Message(err))

	got, err := f.engine.Get(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusPending, got.Status)

	for _, status := range []string{"confirmed", "processing"} {
		_, err = f.engine.UpdateStatus(ctx, order.ID, orders.StatusInput{Status: status})
		require.NoError(t, err)
	}
	shipped, err := f.engine.UpdateStatus(ctx, order.ID, orders.StatusInput{Status: "shipped", TrackingNumber: "TRK123456789"})
	require.NoError(t, err)
	assert.Equal(t, "TRK123456789", shipped.TrackingNumber)
	require.NotNil(t, shipped.EstimatedDeliveryDate)
	assert.Equal(t, fixedNow.AddDate(0, 0, 5), *shipped.EstimatedDeliveryDate)

	_, err = f.engine.Cancel(ctx, order.ID, "")
	require.ErrorIs(t, err, domain.ErrValidation)

	_, err = f.engine.UpdateStatus(ctx, order.ID, orders.StatusInput{Status: "delivered"})
	require.NoError(t, err)

	_, err = f.engine.Cancel(ctx, order.ID, "")
	require.ErrorIs(t, err, domain.ErrOrderDelivered)
	assert.Equal(t, "Cannot cancel a delivered order", domain.Message(err))

	refunded, err := f.engine.UpdateStatus(ctx, order.ID, orders.StatusInput{Status: "refunded"})
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusRefunded, refunded.Status)
	assert.Equal(t, 4, f.stock(t, "p1"))

	_, err = f.engine.UpdateStatus(ctx, order.ID, orders.StatusInput{Status: "teleported"})
	require.ErrorIs(t, err, domain.ErrValidation)
}

// txOrders сохраняет заказ и возвращает остатки одним шагом, как хранилище с общей транзакцией.
type txOrders struct {
	domain.OrderRepository
	products   domain.ProductRepository
	restockErr error
	calls      int
}

func (r *txOrders) SaveWithRestock(ctx context.Context, order domain.Order, restock []domain.StockAdjustment) error {
	r.calls++
	if r.restockErr != nil {
		return r.restockErr
	}
	if err := r.OrderRepository.Save(ctx, order); err != nil {
		return err
	}
	_, err := r.products.AdjustStock(ctx, restock)
	return err
}

func TestEngine_CancelRestocksInsideSave(t *testing.T) {
	products := memory.NewProductRepository()
	repo := &txOrders{OrderRepository: memory.NewOrderRepository(), products: products}
	f := newFixtureWith(t, repo, products)
	f.addProduct(t, "a", 1000, 5)
	order := f.order(t, orders.ItemInput{ProductID: "a", Quantity: 2}, orders.ItemInput{ProductID: "a", Quantity: 1})
	require.Equal(t, 2, f.stock(t, "a"))

	cancelled, err := f.engine.Cancel(context.Background(), order.ID, "changed mind")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusCancelled, cancelled.Status)
	assert.Equal(t, 1, repo.calls)
	assert.Equal(t, 5, f.stock(t, "a"))
}

func TestEngine_CancelKeepsOrderWhenRestockFails(t *testing.T) {
	products := memory.NewProductRepository()
	repo := &txOrders{OrderRepository: memory.NewOrderRepository(), products: products}
	f := newFixtureWith(t, repo, products)
	f.addProduct(t, "a", 1000, 5)
	order := f.order(t, orders.ItemInput{ProductID: "a", Quantity: 2})

	repo.restockErr = errors.New("connection lost")
	_, err := f.engine.Cancel(context.Background(), order.ID, "")
	require.ErrorIs(t, err, repo.restockErr)

	stored, err := f.engine.Get(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusPending, stored.Status)
	assert.Equal(t, 3, f.stock(t, "a"))

	pending := f.outbox.AllPending()
	require.Len(t, pending, 1)
	assert.Equal(t, orders.EventOrderCreated, pending[0].EventType)

	repo.restockErr = nil
	_, err = f.engine.Cancel(context.Background(), order.ID, "")
	require.NoError(t, err)
	assert.Equal(t, 5, f.stock(t, "a"))
}

func TestEngine_RefusesToSaveInconsistentOrder(t *testing.T) {
	f := newFixture(t)
	f.addProduct(t, "a", 1000, 5)
	order := f.order(t, orders.ItemInput{ProductID: "a", Quantity: 1})

	corrupted, err := f.orders.Get(context.Background(), order.ID)
	require.NoError(t, err)
	corrupted.TotalAmount++
	require.NoError(t, f.orders.Save(context.Background(), corrupted))

	_, err = f.engine.UpdateStatus(context.Background(), order.ID, orders.StatusInput{Status: "confirmed"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "total amount")

	stored, err := f.orders.Get(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusPending, stored.Status)
}

func TestEngine_UpdateStatusToCancelledRestocks(t *testing.T) {
	f := newFixture(t)
	f.addProduct(t, "p1", 1000, 5)
	ctx := context.Background()
	order := f.order(t, orders.ItemInput{ProductID: "p1", Quantity: 4})

	_, err := f.engine.UpdateStatus(ctx, order.ID, orders.StatusInput{Status: "confirmed"})
	require.NoError(t, err)
	cancelled, err := f.engine.UpdateStatus(ctx, order.ID, orders.StatusInput{Status: "cancelled", Reason: "out of area"})
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusCancelled, cancelled.Status)
	assert.Equal(t, 5, f.stock(t, "p1"))
}

func TestEngine_HistoryAndOutbox(t *testing.T) {
	f := newFixture(t)
	f.addProduct(t, "p1", 1000, 5)
	ctx := context.Background()
	order := f.order(t, orders.ItemInput{ProductID: "p1", Quantity: 1})

	_, err := f.engine.UpdateStatus(ctx, order.ID, orders.StatusInput{Status: "confirmed", Reason: "paid"})
	require.NoError(t, err)
	_, err = f.engine.Cancel(ctx, order.ID, "customer request")
	require.NoError(t, err)

	history, err := f.engine.History(ctx, order.ID)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, domain.OrderStatus(""), history[0].From)
	assert.Equal(t, domain.OrderStatusPending, history[0].To)
	assert.Equal(t, domain.OrderStatusPending, history[1].From)
	assert.Equal(t, domain.OrderStatusConfirmed, history[1].To)
	assert.Equal(t, "paid", history[1].Reason)
	assert.Equal(t, domain.OrderStatusCancelled, history[2].To)
	assert.Equal(t, "customer request", history[2].Reason)

	pending := f.outbox.AllPending()
	require.Len(t, pending, 3)
	assert.Equal(t, orders.EventOrderCreated, pending[0].EventType)
	assert.Equal(t, orders.EventOrderStatusChanged, pending[1].EventType)
	assert.Equal(t, orders.EventOrderCancelled, pending[2].EventType)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(pending[2].Payload, &payload))
	assert.Equal(t, order.ID, payload["order_id"])
	assert.Equal(t, "confirmed", payload["from"])
	assert.Equal(t, "cancelled", payload["status"])

	_, err = f.engine.History(ctx, "missing")
	require.ErrorIs(t, err, domain.ErrOrderNotFound)
}

func TestEngine_UpdateOnlyPending(t *testing.T) {
	f := newFixture(t)
	f.addProduct(t, "p1", 1000, 5)
	ctx := context.Background()
	order := f.order(t, orders.ItemInput{ProductID: "p1", Quantity: 1})

	method := "overnight"
	notes := "leave at door"
	updated, err := f.engine.Update(ctx, order.ID, orders.UpdateInput{ShippingMethod: &method, Notes: &notes})
	require.NoError(t, err)
	assert.Equal(t, domain.ShippingOvernight, updated.ShippingMethod)
	assert.Equal(t, int64(2999), updated.ShippingCost)
	assert.Equal(t, int64(1000+80+2999), updated.TotalAmount)
	assert.Equal(t, "leave at door", updated.Notes)
	assert.Empty(t, updated.ValidateInvariants())

	empty := "  "
	_, err = f.engine.Update(ctx, order.ID, orders.UpdateInput{ShippingAddress: &empty})
	require.ErrorIs(t, err, domain.ErrValidation)

	_, err = f.engine.UpdateStatus(ctx, order.ID, orders.StatusInput{Status: "confirmed"})
	require.NoError(t, err)
	_, err = f.engine.Update(ctx, order.ID, orders.UpdateInput{Notes: &notes})
	require.ErrorIs(t, err, domain.ErrOrderNotModifiable)
	assert.Equal(t, "Only pending orders can be modified", domain.Message(err))
}

func TestEngine_ListAndInvoice(t *testing.T) {
	f := newFixture(t)
	f.addProduct(t, "p1", 1000, 50)
	ctx := context.Background()
	for i := 1; i <= 5; i++ {
		f.order(t, orders.ItemInput{ProductID: "p1", Quantity: i})
	}

	page, err := f.engine.List(ctx, domain.OrderFilter{UserID: f.userID}, domain.PageRequest{Page: 1, Limit: 2, SortBy: "totalAmount", SortOrder: domain.SortDesc})
	require.NoError(t, err)
	assert.Equal(t, 5, page.Total)
	assert.Equal(t, 3, page.TotalPages)
	require.Len(t, page.Items, 2)
	assert.Greater(t, page.Items[0].TotalAmount, page.Items[1].TotalAmount)

	_, err = f.engine.List(ctx, domain.OrderFilter{}, domain.PageRequest{SortBy: "price"})
	require.ErrorIs(t, err, domain.ErrValidation)
	_, err = f.engine.List(ctx, domain.OrderFilter{Status: "lost"}, domain.PageRequest{})
	require.ErrorIs(t, err, domain.ErrValidation)

	invoice, err := f.engine.Invoice(ctx, page.Items[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "INV-"+page.Items[0].OrderNumber[len("ORD-"):], invoice.InvoiceNumber)
	assert.Equal(t, fixedNow, invoice.GeneratedAt)

	_, err = f.engine.Invoice(ctx, "missing")
	require.ErrorIs(t, err, domain.ErrNotFound)
	assert.Equal(t, "Order with ID missing not found", domain.Message(err))
}

func TestEngine_ConcurrentOrdersNeverOversell(t *testing.T) {
	f := newFixture(t)
	f.addProduct(t, "p1", 1000, 10)

	var wg sync.WaitGroup
	var succeeded atomic.Int32
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.engine.Create(context.Background(), orders.CreateInput{
				UserID:          f.userID,
				Items:           []orders.ItemInput{{ProductID: "p1", Quantity: 1}},
				ShippingAddress: "1 Main St",
			})
			if err == nil {
				succeeded.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(10), succeeded.Load())
	assert.Equal(t, 0, f.stock(t, "p1"))
}

// conflictingOrders отвечает конфликтом версий на первые n вызовов Save.
type conflictingOrders struct {
	domain.OrderRepository
	conflicts atomic.Int32
}

func (r *conflictingOrders) Save(ctx context.Context, order domain.Order) error {
	if r.conflicts.Add(-1) >= 0 {
		return domain.ErrOrderVersionConflict
	}
	return r.OrderRepository.Save(ctx, order)
}

func TestEngine_RetriesVersionConflicts(t *testing.T) {
	products := memory.NewProductRepository()
	repo := &conflictingOrders{OrderRepository: memory.NewOrderRepository()}
	userSvc := users.NewService(memory.NewUserRepository(), users.WithHashCost(bcrypt.MinCost))
	engine := orders.NewEngine(repo, products, userSvc)
	ctx := context.Background()

	user, err := userSvc.Create(ctx, users.CreateInput{FirstName: "A", LastName: "B", Email: "a@b.io"})
	require.NoError(t, err)
	require.NoError(t, products.Create(ctx, domain.Product{ID: "p1", SKU: "P1", Name: "P1", Price: 100, Stock: 1, Status: domain.ProductStatusActive}))
	order, err := engine.Create(ctx, orders.CreateInput{UserID: user.ID, Items: []orders.ItemInput{{ProductID: "p1", Quantity: 1}}, ShippingAddress: "x"})
	require.NoError(t, err)

	repo.conflicts.Store(2)
	confirmed, err := engine.UpdateStatus(ctx, order.ID, orders.StatusInput{Status: "confirmed"})
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusConfirmed, confirmed.Status)
	assert.Equal(t, int64(1), confirmed.Version)

	repo.conflicts.Store(5)
	_, err = engine.UpdateStatus(ctx, order.ID, orders.StatusInput{Status: "processing"})
	require.ErrorIs(t, err, domain.ErrOrderVersionConflict)
	require.ErrorIs(t, err, domain.ErrConflict)
}

func metricValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() == name {
			return mf.GetMetric()[0].GetCounter().GetValue()
		}
	}
	t.Fatalf("metric %s not registered", name)
	return 0
}
