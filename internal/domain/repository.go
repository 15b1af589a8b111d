package domain

import "context"

// ProductRepository описывает хранилище товаров.
type ProductRepository interface {
	// Create сохраняет новый товар; ErrDuplicateSKU, если SKU занят.
	Create(ctx context.Context, product Product) error
	// Get возвращает товар или ErrProductNotFound.
	Get(ctx context.Context, id string) (Product, error)
	GetBySKU(ctx context.Context, sku string) (Product, error)
	List(ctx context.Context, filter ProductFilter, page PageRequest) (Page[Product], error)
	// Update применяет fn к актуальной версии товара под блокировкой записи.
	Update(ctx context.Context, id string, fn func(*Product) error) (Product, error)
	// AdjustStock атомарно применяет все изменения остатков либо ни одного.
	AdjustStock(ctx context.Context, adjustments []StockAdjustment) ([]Product, error)
	// Categories возвращает отсортированный список категорий активных товаров.
	Categories(ctx context.Context) ([]string, error)
}

// UserRepository описывает хранилище пользователей.
type UserRepository interface {
	// Create сохраняет пользователя; ErrDuplicateEmail, если email уже встречался.
	Create(ctx context.Context, user User) error
	Get(ctx context.Context, id string) (User, error)
	GetByEmail(ctx context.Context, email string) (User, error)
	List(ctx context.Context, filter UserFilter, page PageRequest) (Page[User], error)
	// Update применяет fn и повторно проверяет уникальность email.
	Update(ctx context.Context, id string, fn func(*User) error) (User, error)
}

// OrderRepository описывает требования к хранилищу заказов.
type OrderRepository interface {
	// Create сохраняет новый заказ. Возвращает ошибку, если запись с таким ID уже существует.
	Create(ctx context.Context, order Order) error
	// Get возвращает заказ по идентификатору или ErrOrderNotFound, если его нет.
	Get(ctx context.Context, id string) (Order, error)
	List(ctx context.Context, filter OrderFilter, page PageRequest) (Page[Order], error)
	// Save применяет обновления к заказу с учётом optimistic locking.
	Save(ctx context.Context, order Order) error
	// NextOrderNumber выдаёт следующий порядковый номер заказа за год.
	NextOrderNumber(ctx context.Context, year int) (int64, error)
}

// RestockingOrderSaver реализуют хранилища, где заказы и товары лежат в одной базе:
// сохранение заказа и возврат остатков выполняются атомарно.
type RestockingOrderSaver interface {
	SaveWithRestock(ctx context.Context, order Order, restock []StockAdjustment) error
}

// CartRepository описывает хранилище корзин.
type CartRepository interface {
	Create(ctx context.Context, cart Cart) error
	Get(ctx context.Context, id string) (Cart, error)
	// Update применяет fn к корзине под блокировкой записи.
	Update(ctx context.Context, id string, fn func(*Cart) error) (Cart, error)
	Delete(ctx context.Context, id string) error
}

// CategoryRepository описывает хранилище категорий.
type CategoryRepository interface {
	// Create сохраняет категорию; ErrDuplicateSlug, если slug занят.
	Create(ctx context.Context, category Category) error
	Get(ctx context.Context, id string) (Category, error)
	GetBySlug(ctx context.Context, slug string) (Category, error)
	List(ctx context.Context, filter CategoryFilter, page PageRequest) (Page[Category], error)
	// All возвращает все категории без пагинации (для построения дерева).
	All(ctx context.Context) ([]Category, error)
	Update(ctx context.Context, id string, fn func(*Category) error) (Category, error)
}
