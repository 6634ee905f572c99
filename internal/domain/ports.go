package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// CategoryRepository хранит категории каталога.
type CategoryRepository interface {
	// CreateCategory сохраняет категорию; ErrDuplicate при совпадении имени.
	CreateCategory(ctx context.Context, category Category) (Category, error)
	GetCategory(ctx context.Context, id string) (Category, error)
	ListCategories(ctx context.Context) ([]Category, error)
	UpdateCategory(ctx context.Context, category Category) (Category, error)
	// DeleteCategory удаляет категорию вместе с её товарами.
	DeleteCategory(ctx context.Context, id string) error
}

// ProductFilter ограничивает выборку товаров.
type ProductFilter struct {
	CategoryID string
}

// ProductRepository хранит товары и их складские остатки.
type ProductRepository interface {
	CreateProduct(ctx context.Context, product Product) (Product, error)
	GetProduct(ctx context.Context, id string) (Product, error)
	ListProducts(ctx context.Context, filter ProductFilter) ([]Product, error)
	UpdateProduct(ctx context.Context, product Product) (Product, error)
	// DeleteProduct удаляет товар и ссылающиеся на него позиции заказов.
	DeleteProduct(ctx context.Context, id string) error
	// AdjustStock атомарно меняет остаток на delta и пересчитывает IsInStock.
	// При delta < 0 и нехватке остатка возвращает *InsufficientStockError, ничего не меняя.
	AdjustStock(ctx context.Context, id string, delta int32) (Product, error)
}

// OfferRepository хранит акции.
type OfferRepository interface {
	CreateOffer(ctx context.Context, offer Offer) (Offer, error)
	GetOffer(ctx context.Context, id string) (Offer, error)
	ListOffers(ctx context.Context) ([]Offer, error)
	UpdateOffer(ctx context.Context, offer Offer) (Offer, error)
	DeleteOffer(ctx context.Context, id string) error
}

// CustomerRepository хранит бизнес-клиентов и их кэшбэк-баланс.
type CustomerRepository interface {
	// CreateCustomer сохраняет клиента; ErrDuplicate при совпадении email.
	CreateCustomer(ctx context.Context, customer BusinessUser) (BusinessUser, error)
	GetCustomer(ctx context.Context, id string) (BusinessUser, error)
	ListCustomers(ctx context.Context) ([]BusinessUser, error)
	FindCustomerByPhone(ctx context.Context, phone string) (BusinessUser, error)
	FindCustomersByCompany(ctx context.Context, companyName string) ([]BusinessUser, error)
	// UpdateCustomer меняет профиль клиента. Кэшбэк-баланс не меняется.
	UpdateCustomer(ctx context.Context, customer BusinessUser) (BusinessUser, error)
	// AddCashback атомарно увеличивает баланс на amount.
	AddCashback(ctx context.Context, id string, amount decimal.Decimal) (BusinessUser, error)
	DeleteCustomer(ctx context.Context, id string) error
}

// OrderRepository хранит заказы и их позиции.
type OrderRepository interface {
	// CreateOrder сохраняет шапку заказа; позиции добавляются через InsertLineItem.
	CreateOrder(ctx context.Context, order Order) (Order, error)
	// GetOrder возвращает заказ вместе с позициями.
	GetOrder(ctx context.Context, id string) (Order, error)
	ListOrders(ctx context.Context) ([]Order, error)
	ListOrdersByCustomers(ctx context.Context, customerIDs []string) ([]Order, error)
	CountOrdersByCustomer(ctx context.Context, customerID string) (int, error)
	// UpdateOrder перезаписывает изменяемые поля шапки заказа.
	UpdateOrder(ctx context.Context, order Order) (Order, error)
	// DeleteOrder удаляет заказ вместе с позициями.
	DeleteOrder(ctx context.Context, id string) error
	InsertLineItem(ctx context.Context, item OrderProduct) (OrderProduct, error)
	// GetLineItem возвращает ErrLineItemNotFound, если позиция не принадлежит заказу.
	GetLineItem(ctx context.Context, orderID, itemID string) (OrderProduct, error)
	UpdateLineItem(ctx context.Context, item OrderProduct) (OrderProduct, error)
}

// TimelineRepository хранит события жизненного цикла заказа.
type TimelineRepository interface {
	Append(ctx context.Context, event TimelineEvent) error
	List(ctx context.Context, orderID string) ([]TimelineEvent, error)
}

// OutboxWriter ставит событие в transactional outbox внутри текущей транзакции.
type OutboxWriter interface {
	Enqueue(ctx context.Context, msg OutboxMessage) (OutboxMessage, error)
}

// Tx — единица работы над хранилищем. Все изменения фиксируются вместе или не фиксируются вовсе.
type Tx interface {
	Categories() CategoryRepository
	Products() ProductRepository
	Offers() OfferRepository
	Customers() CustomerRepository
	Orders() OrderRepository
	Timeline() TimelineRepository
	Outbox() OutboxWriter
}

// Store открывает транзакции над долговременным хранилищем.
type Store interface {
	// WithinTx выполняет fn в транзакции; ошибка fn откатывает все изменения.
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	// View выполняет fn в read-only транзакции.
	View(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// OutboxPublisher публикует события из transactional outbox.
type OutboxPublisher interface {
	// Publish передаёт событие наружу; должен быть идемпотентным.
	Publish(ctx context.Context, event OutboxMessage) error
}

// OutboxRepository используется воркером публикации outbox.
type OutboxRepository interface {
	OutboxWriter
	PullPending(ctx context.Context, limit int) ([]OutboxMessage, error)
	Stats(ctx context.Context) (OutboxStats, error)
	MarkSent(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string) error
}

// IdempotencyRepository хранит состояние обработки запросов по idempotency-key.
type IdempotencyRepository interface {
	CreateProcessing(ctx context.Context, key, requestHash string, ttlAt time.Time) (IdempotencyRecord, error)
	Get(ctx context.Context, key string) (IdempotencyRecord, error)
	MarkDone(ctx context.Context, key string, responseBody []byte, httpStatus int) error
	MarkFailed(ctx context.Context, key string, responseBody []byte, httpStatus int) error
	// Release освобождает ключ в статусе processing, чтобы повтор выполнил запрос заново.
	// Завершённые и отсутствующие ключи не трогаются.
	Release(ctx context.Context, key string) error
	DeleteExpired(ctx context.Context, before time.Time, limit int) (int, error)
}

// OutboxMessage хранит данные для публикуемого события.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
	CreatedAt     time.Time
}

// OutboxStats описывает текущее состояние backlog transactional outbox.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}
