package catalog

import (
	"context"
	"fmt"
	"sort"

	"github.com/vladislavdragonenkov/wholesale/internal/domain"
)

// CheckStock проверяет, что товара на складе не меньше qty. Остаток не меняется.
// Окончательную гарантию даёт DecrementStock: между проверкой и списанием
// в другой транзакции остаток мог уменьшиться.
func CheckStock(ctx context.Context, tx domain.Tx, productID string, qty int32) error {
	if err := requirePositive(qty); err != nil {
		return err
	}
	product, err := tx.Products().GetProduct(ctx, productID)
	if err != nil {
		return err
	}
	if product.StockQuantity < qty {
		return &domain.InsufficientStockError{
			ProductID: productID,
			Requested: qty,
			Available: product.StockQuantity,
		}
	}
	return nil
}

// DecrementStock списывает qty единиц одной условной операцией над остатком.
// При нехватке возвращает *domain.InsufficientStockError и ничего не меняет.
func DecrementStock(ctx context.Context, tx domain.Tx, productID string, qty int32) error {
	if err := requirePositive(qty); err != nil {
		return err
	}
	if _, err := tx.Products().AdjustStock(ctx, productID, -qty); err != nil {
		return fmt.Errorf("decrement stock of %s: %w", productID, err)
	}
	return nil
}

// IncrementStock возвращает qty единиц на склад.
func IncrementStock(ctx context.Context, tx domain.Tx, productID string, qty int32) error {
	if err := requirePositive(qty); err != nil {
		return err
	}
	if _, err := tx.Products().AdjustStock(ctx, productID, qty); err != nil {
		return fmt.Errorf("increment stock of %s: %w", productID, err)
	}
	return nil
}

// ApplyStockDeltas меняет остатки нескольких товаров: отрицательная дельта
// списывается с проверкой остатка, положительная возвращается на склад.
// Товары обрабатываются по возрастанию ID, так что параллельные транзакции
// берут блокировки строк товаров в одном порядке.
func ApplyStockDeltas(ctx context.Context, tx domain.Tx, deltas map[string]int32) error {
	for _, productID := range SortedProductIDs(deltas) {
		delta := deltas[productID]
		switch {
		case delta < 0:
			if err := CheckStock(ctx, tx, productID, -delta); err != nil {
				return err
			}
			if err := DecrementStock(ctx, tx, productID, -delta); err != nil {
				return err
			}
		case delta > 0:
			if err := IncrementStock(ctx, tx, productID, delta); err != nil {
				return err
			}
		}
	}
	return nil
}

// SortedProductIDs возвращает ключи deltas по возрастанию.
func SortedProductIDs(deltas map[string]int32) []string {
	ids := make([]string, 0, len(deltas))
	for id := range deltas {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func requirePositive(qty int32) error {
	if qty <= 0 {
		return domain.NewValidationError("quantity", "must be positive")
	}
	return nil
}
