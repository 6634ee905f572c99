package orders

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/wholesale/internal/domain"
	"github.com/vladislavdragonenkov/wholesale/internal/service/catalog"
)

// Reconcile применяет входящие позиции к заказу orderID внутри транзакции tx.
// Позиция с ID меняет существующую строку заказа, остаток корректируется на разницу
// количеств. Позиция без ID добавляется как новая. Строки заказа, которых нет
// во входящем списке, не трогаются.
func Reconcile(ctx context.Context, tx domain.Tx, orderID string, changes []LineItemChange) error {
	_, err := reconcile(ctx, tx, orderID, changes)
	return err
}

// amendmentPlan — итоговое состояние позиций и суммарные изменения остатков.
type amendmentPlan struct {
	added   []domain.OrderProduct
	amended map[string]domain.OrderProduct
	order   []string
	deltas  map[string]int32
}

// reconcile сначала строит план по всем позициям, затем меняет остатки
// в порядке ID товаров и только после этого пишет позиции.
// Возвращает изменения остатков по товарам: отрицательные для списаний.
func reconcile(ctx context.Context, tx domain.Tx, orderID string, changes []LineItemChange) ([]int32, error) {
	plan := amendmentPlan{
		amended: make(map[string]domain.OrderProduct),
		deltas:  make(map[string]int32),
	}
	for i, change := range changes {
		var err error
		if strings.TrimSpace(change.ID) == "" {
			err = plan.add(orderID, change)
		} else {
			err = plan.amend(ctx, tx, orderID, change)
		}
		if err != nil {
			return nil, fmt.Errorf("line item %d: %w", i, err)
		}
	}

	if err := catalog.ApplyStockDeltas(ctx, tx, plan.deltas); err != nil {
		return nil, err
	}

	for _, item := range plan.added {
		if _, err := persistLineItem(ctx, tx, item); err != nil {
			return nil, err
		}
	}
	for _, id := range plan.order {
		item := plan.amended[id]
		item.RecomputeTotal()
		if _, err := tx.Orders().UpdateLineItem(ctx, item); err != nil {
			return nil, fmt.Errorf("persist line item: %w", err)
		}
	}

	movements := make([]int32, 0, len(plan.deltas))
	for _, productID := range catalog.SortedProductIDs(plan.deltas) {
		if delta := plan.deltas[productID]; delta != 0 {
			movements = append(movements, delta)
		}
	}
	return movements, nil
}

// add планирует новую позицию: количество и обе цены обязательны.
func (p *amendmentPlan) add(orderID string, change LineItemChange) error {
	if change.Quantity == nil {
		return domain.NewValidationError("quantity", "is required")
	}
	price, err := requiredMoney("price", change.Price)
	if err != nil {
		return err
	}
	wholesale, err := requiredMoney("wholesale_price", change.WholesalePrice)
	if err != nil {
		return err
	}

	item := domain.OrderProduct{
		OrderID:        orderID,
		ProductID:      strings.TrimSpace(change.ProductID),
		Quantity:       *change.Quantity,
		Price:          price,
		WholesalePrice: wholesale,
	}
	if err := item.Validate(); err != nil {
		return err
	}
	p.added = append(p.added, item)
	p.deltas[item.ProductID] -= item.Quantity
	return nil
}

// amend планирует изменение существующей позиции. Непереданные поля сохраняют
// текущие значения, товар позиции менять нельзя.
func (p *amendmentPlan) amend(ctx context.Context, tx domain.Tx, orderID string, change LineItemChange) error {
	current, seen := p.amended[change.ID]
	if !seen {
		var err error
		if current, err = tx.Orders().GetLineItem(ctx, orderID, change.ID); err != nil {
			return err
		}
	}
	productID := strings.TrimSpace(change.ProductID)
	if productID != "" && productID != current.ProductID {
		return domain.NewValidationError("product_id", "cannot be changed on an existing line item")
	}

	next := current
	if change.Quantity != nil {
		next.Quantity = *change.Quantity
	}
	if change.Price != nil {
		next.Price = *change.Price
	}
	if change.WholesalePrice != nil {
		next.WholesalePrice = *change.WholesalePrice
	}
	if err := next.Validate(); err != nil {
		return err
	}

	if !seen {
		p.order = append(p.order, change.ID)
	}
	p.amended[change.ID] = next
	p.deltas[current.ProductID] -= next.Quantity - current.Quantity
	return nil
}

func requiredMoney(field string, v *decimal.Decimal) (decimal.Decimal, error) {
	if v == nil {
		return decimal.Decimal{}, domain.NewValidationError(field, "is required")
	}
	return *v, nil
}
