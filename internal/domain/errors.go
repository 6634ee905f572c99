package domain

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	// ErrValidation — некорректный или неполный запрос.
	ErrValidation = errors.New("validation failed")
	// ErrInsufficientStock — на складе меньше единиц товара, чем запрошено.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrTotalMismatch — заявленная сумма заказа не совпадает с суммой позиций.
	ErrTotalMismatch = errors.New("order total does not match line items sum")
	// ErrLineItemNotFound — позиция не найдена или принадлежит другому заказу.
	ErrLineItemNotFound = errors.New("line item not found")
	// ErrCustomerNotFound возвращается, если бизнес-клиент не найден.
	ErrCustomerNotFound = errors.New("customer not found")
	// ErrProductNotFound возвращается, если товар не найден.
	ErrProductNotFound = errors.New("product not found")
	// ErrCategoryNotFound возвращается, если категория не найдена.
	ErrCategoryNotFound = errors.New("category not found")
	// ErrOfferNotFound возвращается, если акция не найдена.
	ErrOfferNotFound = errors.New("offer not found")
	// ErrOrderNotFound возвращается, если заказ не найден в репозитории.
	ErrOrderNotFound = errors.New("order not found")
	// ErrHasExistingOrders — клиента нельзя удалить, пока у него есть заказы.
	ErrHasExistingOrders = errors.New("customer has existing orders")
	// ErrIllegalStatusTransition — недопустимый переход статуса заказа.
	ErrIllegalStatusTransition = errors.New("illegal order status transition")
	// ErrDuplicate — нарушение уникальности (email клиента, имя категории).
	ErrDuplicate = errors.New("duplicate entity")
	// ErrConcurrentUpdate — транзакция не прошла из-за конкурентных изменений
	// (deadlock или конфликт сериализации); запрос можно повторить.
	ErrConcurrentUpdate = errors.New("concurrent update conflict")
	// ErrReadOnlyTx — попытка записи в read-only транзакции.
	ErrReadOnlyTx = errors.New("write attempted in read-only transaction")

	// ErrOutboxPublish — ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")

	// ErrIdempotencyKeyRequired — пустой idempotency-key.
	ErrIdempotencyKeyRequired = errors.New("idempotency key is required")
	// ErrIdempotencyRequestHashRequired — пустой хэш запроса.
	ErrIdempotencyRequestHashRequired = errors.New("idempotency request hash is required")
	// ErrIdempotencyKeyAlreadyExists — ключ уже занят запросом с тем же payload.
	ErrIdempotencyKeyAlreadyExists = errors.New("idempotency key already exists")
	// ErrIdempotencyHashMismatch — ключ уже использован с другим payload.
	ErrIdempotencyHashMismatch = errors.New("idempotency key reused with different request")
	// ErrIdempotencyKeyNotFound — запись по ключу не найдена.
	ErrIdempotencyKeyNotFound = errors.New("idempotency key not found")
)

// ValidationError описывает некорректное поле запроса.
type ValidationError struct {
	Field  string
	Reason string
}

// NewValidationError создаёт ошибку валидации для поля.
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// InsufficientStockError несёт контекст для повторной попытки с исправленным количеством.
type InsufficientStockError struct {
	ProductID string
	Requested int32
	Available int32
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s: requested %d, available %d",
		e.ProductID, e.Requested, e.Available)
}

func (e *InsufficientStockError) Unwrap() error { return ErrInsufficientStock }

// TotalMismatchError — заявленная сумма против вычисленной по позициям.
type TotalMismatchError struct {
	Declared decimal.Decimal
	Computed decimal.Decimal
}

func (e *TotalMismatchError) Error() string {
	return fmt.Sprintf("total price %s does not match line items sum %s",
		e.Declared.StringFixed(2), e.Computed.StringFixed(2))
}

func (e *TotalMismatchError) Unwrap() error { return ErrTotalMismatch }

// IsNotFound сообщает, относится ли ошибка к отсутствующей сущности.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrCustomerNotFound) ||
		errors.Is(err, ErrProductNotFound) ||
		errors.Is(err, ErrCategoryNotFound) ||
		errors.Is(err, ErrOfferNotFound) ||
		errors.Is(err, ErrOrderNotFound) ||
		errors.Is(err, ErrLineItemNotFound)
}

// IsIdempotencyConflict проверяет, связана ли ошибка с повторным использованием ключа.
func IsIdempotencyConflict(err error) bool {
	return errors.Is(err, ErrIdempotencyKeyAlreadyExists) || errors.Is(err, ErrIdempotencyHashMismatch)
}
