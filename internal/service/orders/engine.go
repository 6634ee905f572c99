package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/wholesale/internal/domain"
	"github.com/vladislavdragonenkov/wholesale/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/wholesale/internal/metrics"
	"github.com/vladislavdragonenkov/wholesale/internal/service/catalog"
	"github.com/vladislavdragonenkov/wholesale/internal/service/ledger"
)

const (
	operationCreate = "create_order"
	operationUpdate = "update_order"
	operationDelete = "delete_order"

	aggregateOrder    = "order"
	aggregateCustomer = "customer"
)

// Engine оформляет, изменяет и удаляет заказы. Каждая операция выполняется
// в одной транзакции хранилища: при ошибке на любом шаге не остаётся ни заказа,
// ни позиций, ни списаний со склада, ни начисленного кэшбэка.
type Engine struct {
	store             domain.Store
	logger            *log.Entry
	metrics           *metrics.OrderMetrics
	strictTransitions bool
	now               clock
}

// Option настраивает Engine.
type Option func(*Engine)

// WithLogger задаёт логгер движка.
func WithLogger(logger *log.Entry) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithMetrics включает метрики движка.
func WithMetrics(m *metrics.OrderMetrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithStrictStatusTransitions включает или отключает проверку переходов статуса.
func WithStrictStatusTransitions(strict bool) Option {
	return func(e *Engine) { e.strictTransitions = strict }
}

// WithClock подменяет источник времени (для тестов).
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// NewEngine создаёт движок заказов. По умолчанию переходы статуса проверяются.
func NewEngine(store domain.Store, opts ...Option) *Engine {
	e := &Engine{
		store:             store,
		logger:            log.New().WithField("component", "order-engine"),
		strictTransitions: true,
		now:               func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// CreateOrder проверяет запрос, списывает остатки, сохраняет заказ с позициями
// и начисляет кэшбэк. Всё выполняется атомарно.
func (e *Engine) CreateOrder(ctx context.Context, in CreateOrderInput) (domain.Order, error) {
	done := e.track(operationCreate)

	order := domain.Order{
		CustomerID:      strings.TrimSpace(in.CustomerID),
		TotalPrice:      in.TotalPrice,
		ShippingAddress: in.ShippingAddress,
		BillingAddress:  in.BillingAddress,
		Status:          domain.OrderStatusPending,
		PaymentTerms:    in.PaymentTerms,
		OrderType:       in.OrderType,
		CashbackApplied: decimal.Zero,
		Items:           make([]domain.OrderProduct, 0, len(in.Items)),
	}
	for i, item := range in.Items {
		line, err := newLineItem(item)
		if err != nil {
			err = fmt.Errorf("line item %d: %w", i, err)
			done(err)
			return domain.Order{}, err
		}
		order.Items = append(order.Items, line)
	}

	if err := validateNewOrder(&order); err != nil {
		e.recordRejection(err)
		done(err)
		return domain.Order{}, err
	}

	var created domain.Order
	err := e.store.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		if _, err := tx.Customers().GetCustomer(ctx, order.CustomerID); err != nil {
			return err
		}
		for _, item := range order.Items {
			if _, err := tx.Products().GetProduct(ctx, item.ProductID); err != nil {
				return err
			}
		}

		var err error
		created, err = e.commitNewOrder(ctx, tx, order, true)
		return err
	})
	if err != nil {
		e.recordRejection(err)
		e.logger.WithError(err).WithFields(log.Fields{
			"customer_id": order.CustomerID,
			"total_price": order.TotalPrice.StringFixed(2),
			"items":       len(order.Items),
		}).Warn("order creation rejected")
		done(err)
		return domain.Order{}, err
	}

	deltas := stockDeltas(created.Items)
	for _, productID := range catalog.SortedProductIDs(deltas) {
		e.metrics.RecordStockMovement(deltas[productID])
	}
	e.metrics.RecordCashback(created.CashbackApplied)
	e.logger.WithFields(log.Fields{
		"order_id":         created.ID,
		"customer_id":      created.CustomerID,
		"total_price":      created.TotalPrice.StringFixed(2),
		"cashback_applied": created.CashbackApplied.String(),
	}).Info("order created")
	done(nil)
	return created, nil
}

// commitNewOrder списывает остатки, сохраняет шапку заказа, позиции и кэшбэк.
// Остатки проверяются и списываются до первой записи заказа. applyCashback
// выставляет только путь оформления: изменение заказа кэшбэк не пересчитывает.
func (e *Engine) commitNewOrder(ctx context.Context, tx domain.Tx, order domain.Order, applyCashback bool) (domain.Order, error) {
	items := order.Items
	if err := catalog.ApplyStockDeltas(ctx, tx, stockDeltas(items)); err != nil {
		return domain.Order{}, err
	}

	header, err := tx.Orders().CreateOrder(ctx, order)
	if err != nil {
		return domain.Order{}, fmt.Errorf("persist order: %w", err)
	}

	header.Items = make([]domain.OrderProduct, 0, len(items))
	for _, item := range items {
		item.OrderID = header.ID
		persisted, err := persistLineItem(ctx, tx, item)
		if err != nil {
			return domain.Order{}, err
		}
		header.Items = append(header.Items, persisted)
	}

	if err := e.appendTimeline(ctx, tx, header.ID, domain.TimelineOrderCreated, "status "+string(header.Status)); err != nil {
		return domain.Order{}, err
	}

	if applyCashback {
		cashback, err := ledger.AccrueCashback(ctx, tx, header.CustomerID, header.TotalPrice)
		if err != nil {
			return domain.Order{}, err
		}
		if cashback.IsPositive() {
			header.CashbackApplied = cashback
			lines := header.Items
			if header, err = tx.Orders().UpdateOrder(ctx, header); err != nil {
				return domain.Order{}, fmt.Errorf("store cashback: %w", err)
			}
			header.Items = lines
			if err := e.appendTimeline(ctx, tx, header.ID, domain.TimelineCashbackAccrued, cashback.String()); err != nil {
				return domain.Order{}, err
			}
			if err := e.enqueueCashbackEvent(ctx, tx, header, cashback); err != nil {
				return domain.Order{}, err
			}
		}
	}

	if err := e.enqueueOrderEvent(ctx, tx, kafka.EventTypeOrderCreated, header, nil); err != nil {
		return domain.Order{}, err
	}
	return header, nil
}

// newLineItem переносит позицию запроса в доменную модель. Обе цены обязательны.
func newLineItem(in LineItemInput) (domain.OrderProduct, error) {
	price, err := requiredMoney("price", in.Price)
	if err != nil {
		return domain.OrderProduct{}, err
	}
	wholesale, err := requiredMoney("wholesale_price", in.WholesalePrice)
	if err != nil {
		return domain.OrderProduct{}, err
	}
	return domain.OrderProduct{
		ProductID:      strings.TrimSpace(in.ProductID),
		Quantity:       in.Quantity,
		Price:          price,
		WholesalePrice: wholesale,
	}, nil
}

// stockDeltas суммирует списания по товарам: одна дельта на товар.
func stockDeltas(items []domain.OrderProduct) map[string]int32 {
	deltas := make(map[string]int32, len(items))
	for _, item := range items {
		deltas[item.ProductID] -= item.Quantity
	}
	return deltas
}

// persistLineItem сохраняет новую позицию. Остаток списывается вызывающим кодом
// в той же транзакции до записи позиций.
func persistLineItem(ctx context.Context, tx domain.Tx, item domain.OrderProduct) (domain.OrderProduct, error) {
	item.RecomputeTotal()
	persisted, err := tx.Orders().InsertLineItem(ctx, item)
	if err != nil {
		return domain.OrderProduct{}, fmt.Errorf("persist line item: %w", err)
	}
	return persisted, nil
}

// UpdateOrder применяет patch к изменяемым полям и передаёт позиции в Reconcile.
// Кэшбэк не пересчитывается. Сумма заказа не сверяется с позициями.
func (e *Engine) UpdateOrder(ctx context.Context, orderID string, patch OrderPatch, changes []LineItemChange) (domain.Order, error) {
	done := e.track(operationUpdate)

	if err := validatePatch(patch); err != nil {
		done(err)
		return domain.Order{}, err
	}

	var (
		updated        domain.Order
		previousStatus domain.OrderStatus
		movements      []int32
	)
	err := e.store.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		current, err := tx.Orders().GetOrder(ctx, orderID)
		if err != nil {
			return err
		}
		previousStatus = current.Status

		next := applyPatch(current, patch)
		if next.Status != current.Status {
			if e.strictTransitions && !current.Status.CanTransitionTo(next.Status) {
				return fmt.Errorf("%w: %s -> %s", domain.ErrIllegalStatusTransition, current.Status, next.Status)
			}
		}
		if _, err := tx.Orders().UpdateOrder(ctx, next); err != nil {
			return fmt.Errorf("persist order: %w", err)
		}
		if next.Status != current.Status {
			reason := fmt.Sprintf("%s -> %s", current.Status, next.Status)
			if err := e.appendTimeline(ctx, tx, orderID, domain.TimelineStatusChanged, reason); err != nil {
				return err
			}
		}

		if len(changes) > 0 {
			if movements, err = reconcile(ctx, tx, orderID, changes); err != nil {
				return err
			}
			reason := fmt.Sprintf("%d line items", len(changes))
			if err := e.appendTimeline(ctx, tx, orderID, domain.TimelineItemsAmended, reason); err != nil {
				return err
			}
		}

		if updated, err = tx.Orders().GetOrder(ctx, orderID); err != nil {
			return err
		}
		return e.enqueueOrderEvent(ctx, tx, kafka.EventTypeOrderUpdated, updated, map[string]interface{}{
			"previous_status": string(previousStatus),
			"amended_items":   len(changes),
		})
	})
	if err != nil {
		e.recordRejection(err)
		e.logger.WithError(err).WithField("order_id", orderID).Warn("order update rejected")
		done(err)
		return domain.Order{}, err
	}

	for _, delta := range movements {
		e.metrics.RecordStockMovement(delta)
	}
	e.logger.WithFields(log.Fields{
		"order_id":        orderID,
		"status":          updated.Status,
		"previous_status": previousStatus,
		"amended_items":   len(changes),
	}).Info("order updated")
	done(nil)
	return updated, nil
}

// DeleteOrder удаляет заказ вместе с позициями. Остатки и кэшбэк не возвращаются.
func (e *Engine) DeleteOrder(ctx context.Context, orderID string) error {
	done := e.track(operationDelete)

	err := e.store.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		order, err := tx.Orders().GetOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if err := tx.Orders().DeleteOrder(ctx, orderID); err != nil {
			return err
		}
		return e.enqueueOrderEvent(ctx, tx, kafka.EventTypeOrderDeleted, order, nil)
	})
	if err != nil {
		done(err)
		return err
	}
	e.logger.WithField("order_id", orderID).Info("order deleted")
	done(nil)
	return nil
}

func validateNewOrder(order *domain.Order) error {
	var errs []error
	if !order.OrderType.Valid() {
		errs = append(errs, domain.NewValidationError("order_type", fmt.Sprintf("must be %s or %s", domain.OrderTypeOnline, domain.OrderTypeOffline)))
	}
	if strings.TrimSpace(order.ShippingAddress) == "" {
		errs = append(errs, domain.NewValidationError("shipping_address", "is required"))
	}
	if strings.TrimSpace(order.BillingAddress) == "" {
		errs = append(errs, domain.NewValidationError("billing_address", "is required"))
	}
	if strings.TrimSpace(order.PaymentTerms) == "" {
		errs = append(errs, domain.NewValidationError("payment_terms", "is required"))
	}
	if len(errs) > 0 {
		return errs[0]
	}
	if errs = order.ValidateInvariants(); len(errs) > 0 {
		return errs[0]
	}
	return nil
}

func validatePatch(patch OrderPatch) error {
	if patch.TotalPrice != nil && (patch.TotalPrice.IsNegative() || !domain.IsMoney(*patch.TotalPrice)) {
		return domain.NewValidationError("total_price", "must be a non-negative amount with at most two decimal places")
	}
	if patch.Status != nil && !patch.Status.Valid() {
		return domain.NewValidationError("status", fmt.Sprintf("unknown status %q", *patch.Status))
	}
	if patch.OrderType != nil && !patch.OrderType.Valid() {
		return domain.NewValidationError("order_type", fmt.Sprintf("unknown order type %q", *patch.OrderType))
	}
	return nil
}

func applyPatch(order domain.Order, patch OrderPatch) domain.Order {
	if patch.TotalPrice != nil {
		order.TotalPrice = *patch.TotalPrice
	}
	if patch.ShippingAddress != nil {
		order.ShippingAddress = *patch.ShippingAddress
	}
	if patch.BillingAddress != nil {
		order.BillingAddress = *patch.BillingAddress
	}
	if patch.Status != nil {
		order.Status = *patch.Status
	}
	if patch.PaymentTerms != nil {
		order.PaymentTerms = *patch.PaymentTerms
	}
	if patch.OrderType != nil {
		order.OrderType = *patch.OrderType
	}
	return order
}

func (e *Engine) appendTimeline(ctx context.Context, tx domain.Tx, orderID, eventType, reason string) error {
	err := tx.Timeline().Append(ctx, domain.TimelineEvent{
		OrderID:  orderID,
		Type:     eventType,
		Reason:   reason,
		Occurred: e.now(),
	})
	if err != nil {
		return fmt.Errorf("append timeline event: %w", err)
	}
	e.metrics.RecordTimelineEvent()
	return nil
}

func (e *Engine) enqueueOrderEvent(ctx context.Context, tx domain.Tx, eventType kafka.EventType, order domain.Order, metadata map[string]interface{}) error {
	event := kafka.NewOrderEvent(eventType, order.ID, order.CustomerID, string(order.Status), metadata)
	event.Timestamp = e.now()
	event.TotalPrice = order.TotalPrice.StringFixed(2)
	event.CashbackApplied = order.CashbackApplied.String()
	return e.enqueue(ctx, tx, aggregateOrder, order.ID, string(eventType), event)
}

func (e *Engine) enqueueCashbackEvent(ctx context.Context, tx domain.Tx, order domain.Order, amount decimal.Decimal) error {
	customer, err := tx.Customers().GetCustomer(ctx, order.CustomerID)
	if err != nil {
		return err
	}
	event := kafka.NewCashbackEvent(customer.ID, order.ID, amount.String(), customer.CashbackAmount.String())
	event.Timestamp = e.now()
	return e.enqueue(ctx, tx, aggregateCustomer, customer.ID, string(kafka.EventTypeCashbackAccrued), event)
}

func (e *Engine) enqueue(ctx context.Context, tx domain.Tx, aggregateType, aggregateID, eventType string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", eventType, err)
	}
	_, err = tx.Outbox().Enqueue(ctx, domain.OutboxMessage{
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     eventType,
		Payload:       data,
	})
	if err != nil {
		return fmt.Errorf("enqueue %s event: %w", eventType, err)
	}
	e.metrics.RecordOutboxEvent()
	return nil
}

// track начинает замер операции; возвращаемая функция фиксирует исход.
func (e *Engine) track(operation string) func(err error) {
	start := time.Now()
	e.metrics.OperationStarted()
	return func(err error) {
		e.metrics.OperationFinished()
		e.metrics.ObserveOperation(operation, outcomeOf(err), time.Since(start))
	}
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeSuccess
	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrInsufficientStock),
		errors.Is(err, domain.ErrTotalMismatch),
		errors.Is(err, domain.ErrIllegalStatusTransition),
		domain.IsNotFound(err):
		return metrics.OutcomeRejected
	default:
		return metrics.OutcomeError
	}
}

func (e *Engine) recordRejection(err error) {
	switch {
	case errors.Is(err, domain.ErrInsufficientStock):
		e.metrics.RecordStockConflict()
	case errors.Is(err, domain.ErrTotalMismatch):
		e.metrics.RecordTotalMismatch()
	case errors.Is(err, domain.ErrIllegalStatusTransition):
		e.metrics.RecordIllegalTransition()
	}
}
