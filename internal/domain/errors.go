package domain

import (
	"errors"
	"fmt"
)

// Классы ошибок. HTTP-слой отображает их в коды ответа.
var (
	// ErrNotFound: сущность отсутствует в хранилище.
	ErrNotFound = errors.New("not found")
	// ErrValidation: некорректный ввод или нарушение бизнес-правила.
	ErrValidation = errors.New("validation failed")
	// ErrConflict: нарушение уникальности или конкурентное изменение.
	ErrConflict = errors.New("conflict")
)

var (
	// ErrProductNotFound возвращается, если товар не найден в репозитории.
	ErrProductNotFound = newError(ErrNotFound, "product not found")
	// ErrUserNotFound возвращается, если пользователь не найден.
	ErrUserNotFound = newError(ErrNotFound, "user not found")
	// ErrOrderNotFound возвращается, если заказ не найден в репозитории.
	ErrOrderNotFound = newError(ErrNotFound, "order not found")
	// ErrCartNotFound возвращается, если корзина не найдена.
	ErrCartNotFound = newError(ErrNotFound, "cart not found")
	// ErrCartItemNotFound: в корзине нет позиции с указанным товаром.
	ErrCartItemNotFound = newError(ErrNotFound, "cart item not found")
	// ErrCategoryNotFound возвращается, если категория не найдена.
	ErrCategoryNotFound = newError(ErrNotFound, "category not found")
	// ErrIdempotencyKeyNotFound: запись по idempotency-key отсутствует.
	ErrIdempotencyKeyNotFound = newError(ErrNotFound, "idempotency key not found")

	// ErrDuplicateSKU: товар с таким SKU уже существует.
	ErrDuplicateSKU = newError(ErrConflict, "Product with this SKU already exists")
	// ErrDuplicateEmail: email уже занят (в том числе деактивированным пользователем).
	ErrDuplicateEmail = newError(ErrConflict, "User with this email already exists")
	// ErrDuplicateSlug: категория с таким slug уже существует.
	ErrDuplicateSlug = newError(ErrConflict, "Category with this slug already exists")
	// ErrDuplicateID: запись с таким идентификатором уже сохранена.
	ErrDuplicateID = newError(ErrConflict, "entity with this id already exists")
	// ErrOrderVersionConflict сигнализирует о конфликте версий при сохранении.
	ErrOrderVersionConflict = newError(ErrConflict, "Order was modified concurrently, retry the request")
	// ErrIdempotencyKeyAlreadyExists: ключ уже использован с тем же запросом.
	ErrIdempotencyKeyAlreadyExists = newError(ErrConflict, "idempotency key already exists")
	// ErrIdempotencyHashMismatch: ключ повторно использован с другим телом запроса.
	ErrIdempotencyHashMismatch = newError(ErrConflict, "Idempotency-Key was already used with a different request")

	// ErrInsufficientStock: остаток товара не позволяет списание.
	ErrInsufficientStock = newError(ErrValidation, "Insufficient stock")
	// ErrItemsRequired: заказ без позиций.
	ErrItemsRequired = newError(ErrValidation, "Order must contain at least one item")
	// ErrOrderNotModifiable: изменять можно только заказы в статусе pending.
	ErrOrderNotModifiable = newError(ErrValidation, "Only pending orders can be modified")
	// ErrOrderAlreadyCancelled: повторная отмена.
	ErrOrderAlreadyCancelled = newError(ErrValidation, "Order is already cancelled")
	// ErrOrderDelivered: доставленный заказ отменить нельзя.
	ErrOrderDelivered = newError(ErrValidation, "Cannot cancel a delivered order")
	// ErrWeakPassword: пароль не проходит проверку сложности.
	ErrWeakPassword = newError(ErrValidation, "Password does not meet security requirements")
	// ErrIdempotencyKeyRequired: пустой idempotency-key.
	ErrIdempotencyKeyRequired = newError(ErrValidation, "idempotency key is required")
	// ErrIdempotencyRequestHashRequired: не передан хэш запроса.
	ErrIdempotencyRequestHashRequired = newError(ErrValidation, "idempotency request hash is required")
	// ErrCategoryInUse: у категории есть товары или подкатегории.
	ErrCategoryInUse = newError(ErrValidation, "Category has products or subcategories")
	// ErrOutboxPublish: ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")
	// ErrOutboxMessageNotFound: отметка несуществующего события outbox.
	ErrOutboxMessageNotFound = errors.New("outbox message not found")
)

// Error: ошибка с сообщением для клиента. Kind задаёт класс ошибки (или более
// конкретный sentinel), errors.Is проходит по цепочке до него.
type Error struct {
	Kind    error
	Message string
}

func newError(kind error, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Kind
}

// ClientMessage возвращает текст, пригодный для ответа API.
func (e *Error) ClientMessage() string {
	return e.Message
}

// Describe создаёт ошибку с собственным сообщением поверх cause.
func Describe(cause error, format string, args ...any) error {
	return &Error{Kind: cause, Message: fmt.Sprintf(format, args...)}
}

// Validationf создаёт ошибку класса ErrValidation.
func Validationf(format string, args ...any) error {
	return Describe(ErrValidation, format, args...)
}

// InvalidTransitionError описывает запрещённый переход статуса заказа.
type InvalidTransitionError struct {
	From OrderStatus
	To   OrderStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("Invalid status transition from %s to %s", e.From, e.To)
}

func (e *InvalidTransitionError) Unwrap() error {
	return ErrValidation
}

func (e *InvalidTransitionError) ClientMessage() string {
	return e.Error()
}

// InsufficientStockError возвращается при попытке увести остаток в минус.
type InsufficientStockError struct {
	ProductID   string
	ProductName string
	Available   int
	Requested   int
}

func (e *InsufficientStockError) Error() string {
	name := e.ProductName
	if name == "" {
		name = e.ProductID
	}
	return fmt.Sprintf("Insufficient stock for product %s. Available: %d, Requested: %d", name, e.Available, e.Requested)
}

func (e *InsufficientStockError) Unwrap() error {
	return ErrInsufficientStock
}

func (e *InsufficientStockError) ClientMessage() string {
	return e.Error()
}

type clientMessager interface {
	ClientMessage() string
}

// Message возвращает первое клиентское сообщение в цепочке ошибки.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var cm clientMessager
	if errors.As(err, &cm) {
		return cm.ClientMessage()
	}
	return err.Error()
}

// IsVersionConflict проверяет, является ли ошибка конфликтом версий.
func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrOrderVersionConflict)
}

// IsNotFound, IsValidation и IsConflict классифицируют ошибку по классу.
func IsNotFound(err error) bool   { return errors.Is(err, ErrNotFound) }
func IsValidation(err error) bool { return errors.Is(err, ErrValidation) }
func IsConflict(err error) bool   { return errors.Is(err, ErrConflict) }
