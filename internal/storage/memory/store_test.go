package memory_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/wholesale/internal/domain"
	"github.com/vladislavdragonenkov/wholesale/internal/storage/memory"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type fixture struct {
	store    *memory.Store
	customer domain.BusinessUser
	product  domain.Product
}

func newFixture(t *testing.T, stock int32) fixture {
	t.Helper()
	ctx := context.Background()
	store := memory.NewStore()

	var f fixture
	f.store = store
	err := store.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		category, err := tx.Categories().CreateCategory(ctx, domain.Category{Name: "Tea"})
		if err != nil {
			return err
		}
		f.product, err = tx.Products().CreateProduct(ctx, domain.Product{
			CategoryID:    category.ID,
			Name:          "Green tea",
			Price:         dec("2.00"),
			StockQuantity: stock,
		})
		if err != nil {
			return err
		}
		f.customer, err = tx.Customers().CreateCustomer(ctx, domain.BusinessUser{
			CompanyName: "Leaf Ltd",
			Email:       "buyer@leaf.test",
			Phone:       "+1234567890",
		})
		return err
	})
	if err != nil {
		t.Fatalf("fixture setup failed: %v", err)
	}
	return f
}

func (f fixture) productStock(t *testing.T) domain.Product {
	t.Helper()
	var product domain.Product
	err := f.store.View(context.Background(), func(ctx context.Context, tx domain.Tx) error {
		var err error
		product, err = tx.Products().GetProduct(ctx, f.product.ID)
		return err
	})
	if err != nil {
		t.Fatalf("get product failed: %v", err)
	}
	return product
}

func TestStore_RollbackDiscardsAllWrites(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()
	boom := errors.New("boom")

	err := f.store.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		order, err := tx.Orders().CreateOrder(ctx, domain.Order{CustomerID: f.customer.ID, TotalPrice: dec("8")})
		if err != nil {
			return err
		}
		if _, err := tx.Products().AdjustStock(ctx, f.product.ID, -4); err != nil {
			return err
		}
		if _, err := tx.Customers().AddCashback(ctx, f.customer.ID, dec("0.40")); err != nil {
			return err
		}
		if _, err := tx.Outbox().Enqueue(ctx, domain.OutboxMessage{AggregateID: order.ID}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	if got := f.productStock(t).StockQuantity; got != 10 {
		t.Fatalf("expected stock 10 after rollback, got %d", got)
	}
	err = f.store.View(ctx, func(ctx context.Context, tx domain.Tx) error {
		orders, err := tx.Orders().ListOrders(ctx)
		if err != nil {
			return err
		}
		if len(orders) != 0 {
			t.Fatalf("expected no orders after rollback, got %d", len(orders))
		}
		customer, err := tx.Customers().GetCustomer(ctx, f.customer.ID)
		if err != nil {
			return err
		}
		if !customer.CashbackAmount.IsZero() {
			t.Fatalf("expected zero cashback after rollback, got %s", customer.CashbackAmount)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("view failed: %v", err)
	}
	if pending := f.store.Outbox().AllPending(); len(pending) != 0 {
		t.Fatalf("expected empty outbox after rollback, got %d", len(pending))
	}
}

func TestStore_ViewIsReadOnly(t *testing.T) {
	f := newFixture(t, 1)

	err := f.store.View(context.Background(), func(ctx context.Context, tx domain.Tx) error {
		_, err := tx.Products().AdjustStock(ctx, f.product.ID, 1)
		return err
	})
	if !errors.Is(err, domain.ErrReadOnlyTx) {
		t.Fatalf("expected ErrReadOnlyTx, got %v", err)
	}
}

func TestStore_CanceledContext(t *testing.T) {
	store := memory.NewStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := store.WithinTx(ctx, func(context.Context, domain.Tx) error {
		called = true
		return nil
	})
	if !errors.Is(err, context.Canceled) || called {
		t.Fatalf("expected canceled tx without calling fn, got err=%v called=%v", err, called)
	}
}

func TestProductRepository_AdjustStockKeepsFloor(t *testing.T) {
	f := newFixture(t, 3)
	ctx := context.Background()

	err := f.store.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		_, err := tx.Products().AdjustStock(ctx, f.product.ID, -4)
		return err
	})
	var stockErr *domain.InsufficientStockError
	if !errors.As(err, &stockErr) {
		t.Fatalf("expected InsufficientStockError, got %v", err)
	}
	if stockErr.Requested != 4 || stockErr.Available != 3 {
		t.Fatalf("unexpected error context: %+v", stockErr)
	}

	err = f.store.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		product, err := tx.Products().AdjustStock(ctx, f.product.ID, -3)
		if err != nil {
			return err
		}
		if product.StockQuantity != 0 || product.IsInStock {
			t.Fatalf("expected empty stock and is_in_stock=false, got %+v", product)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("adjust stock failed: %v", err)
	}

	if _, err := adjust(f, "missing", -1); !errors.Is(err, domain.ErrProductNotFound) {
		t.Fatalf("expected ErrProductNotFound, got %v", err)
	}
}

func adjust(f fixture, productID string, delta int32) (domain.Product, error) {
	var product domain.Product
	err := f.store.WithinTx(context.Background(), func(ctx context.Context, tx domain.Tx) error {
		var err error
		product, err = tx.Products().AdjustStock(ctx, productID, delta)
		return err
	})
	return product, err
}

func TestProductRepository_ConcurrentDecrementsNeverOversell(t *testing.T) {
	f := newFixture(t, 10)

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := adjust(f, f.product.ID, -1); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if succeeded != 10 {
		t.Fatalf("expected exactly 10 successful decrements, got %d", succeeded)
	}
	if got := f.productStock(t).StockQuantity; got != 0 {
		t.Fatalf("expected stock 0, got %d", got)
	}
}

func TestCustomerRepository_GuardsAndLookups(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()

	err := f.store.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		_, err := tx.Customers().CreateCustomer(ctx, domain.BusinessUser{CompanyName: "Other", Email: f.customer.Email})
		return err
	})
	if !errors.Is(err, domain.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate for repeated email, got %v", err)
	}

	err = f.store.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		if _, err := tx.Orders().CreateOrder(ctx, domain.Order{CustomerID: f.customer.ID}); err != nil {
			return err
		}
		return tx.Customers().DeleteCustomer(ctx, f.customer.ID)
	})
	if !errors.Is(err, domain.ErrHasExistingOrders) {
		t.Fatalf("expected ErrHasExistingOrders, got %v", err)
	}

	err = f.store.View(ctx, func(ctx context.Context, tx domain.Tx) error {
		found, err := tx.Customers().FindCustomerByPhone(ctx, "+1234567890")
		if err != nil {
			return err
		}
		if found.ID != f.customer.ID {
			t.Fatalf("expected customer %s, got %s", f.customer.ID, found.ID)
		}
		if _, err := tx.Customers().FindCustomerByPhone(ctx, "+1000000000"); !errors.Is(err, domain.ErrCustomerNotFound) {
			t.Fatalf("expected ErrCustomerNotFound, got %v", err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("view failed: %v", err)
	}
}

func TestCustomerRepository_UpdateKeepsCashback(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()

	err := f.store.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		if _, err := tx.Customers().AddCashback(ctx, f.customer.ID, dec("5.00")); err != nil {
			return err
		}
		changed := f.customer
		changed.ContactPerson = "New contact"
		changed.CashbackAmount = dec("999")
		updated, err := tx.Customers().UpdateCustomer(ctx, changed)
		if err != nil {
			return err
		}
		if !updated.CashbackAmount.Equal(dec("5.00")) {
			t.Fatalf("expected cashback 5.00 to survive update, got %s", updated.CashbackAmount)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("tx failed: %v", err)
	}
}

func TestOrderRepository_LineItemsAndCascade(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()
	clock := time.Now().UTC()

	var orderID, itemID string
	err := f.store.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		order, err := tx.Orders().CreateOrder(ctx, domain.Order{CustomerID: f.customer.ID, Status: domain.OrderStatusPending})
		if err != nil {
			return err
		}
		orderID = order.ID
		for _, qty := range []int32{1, 2, 3} {
			item, err := tx.Orders().InsertLineItem(ctx, domain.OrderProduct{OrderID: order.ID, ProductID: f.product.ID, Quantity: qty})
			if err != nil {
				return err
			}
			itemID = item.ID
		}
		return tx.Timeline().Append(ctx, domain.TimelineEvent{OrderID: order.ID, Type: domain.TimelineOrderCreated, Occurred: clock})
	})
	if err != nil {
		t.Fatalf("tx failed: %v", err)
	}

	err = f.store.View(ctx, func(ctx context.Context, tx domain.Tx) error {
		order, err := tx.Orders().GetOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if len(order.Items) != 3 || order.Items[0].Quantity != 1 || order.Items[2].Quantity != 3 {
			t.Fatalf("expected items in insertion order, got %+v", order.Items)
		}
		if _, err := tx.Orders().GetLineItem(ctx, "other-order", itemID); !errors.Is(err, domain.ErrLineItemNotFound) {
			t.Fatalf("expected ErrLineItemNotFound for foreign order, got %v", err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("view failed: %v", err)
	}

	err = f.store.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		return tx.Orders().DeleteOrder(ctx, orderID)
	})
	if err != nil {
		t.Fatalf("delete failed: %v", err)
	}

	err = f.store.View(ctx, func(ctx context.Context, tx domain.Tx) error {
		if _, err := tx.Orders().GetLineItem(ctx, orderID, itemID); !errors.Is(err, domain.ErrLineItemNotFound) {
			t.Fatalf("expected line items to be deleted with order, got %v", err)
		}
		events, err := tx.Timeline().List(ctx, orderID)
		if err != nil {
			return err
		}
		if len(events) != 0 {
			t.Fatalf("expected timeline to be deleted with order, got %d", len(events))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("view failed: %v", err)
	}
}

func TestCategoryRepository_DeleteCascadesProducts(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()

	err := f.store.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		if _, err := tx.Categories().CreateCategory(ctx, domain.Category{Name: "Tea"}); !errors.Is(err, domain.ErrDuplicate) {
			t.Fatalf("expected ErrDuplicate for category name, got %v", err)
		}
		return tx.Categories().DeleteCategory(ctx, f.product.CategoryID)
	})
	if err != nil {
		t.Fatalf("delete category failed: %v", err)
	}

	err = f.store.View(ctx, func(ctx context.Context, tx domain.Tx) error {
		_, err := tx.Products().GetProduct(ctx, f.product.ID)
		return err
	})
	if !errors.Is(err, domain.ErrProductNotFound) {
		t.Fatalf("expected product to be deleted with category, got %v", err)
	}
}

func TestOutboxRepository_PullMarkAndStats(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()
	repo := store.Outbox()

	first, err := repo.Enqueue(ctx, domain.OutboxMessage{AggregateType: "order", AggregateID: "o-1", EventType: "order.created"})
	if err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}
	if first.ID == "" {
		t.Fatal("expected generated id")
	}
	if _, err := repo.Enqueue(ctx, domain.OutboxMessage{AggregateType: "order", AggregateID: "o-2", EventType: "order.created"}); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}

	stats, err := repo.Stats(ctx)
	if err != nil {
		t.Fatalf("stats failed: %v", err)
	}
	if stats.PendingCount != 2 || stats.OldestPendingAt.IsZero() {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	batch, err := repo.PullPending(ctx, 1)
	if err != nil {
		t.Fatalf("pull failed: %v", err)
	}
	if len(batch) != 1 {
		t.Fatalf("expected 1 message, got %d", len(batch))
	}

	if err := repo.MarkSent(ctx, first.ID); err != nil {
		t.Fatalf("mark sent failed: %v", err)
	}
	if err := repo.MarkFailed(ctx, "missing"); !errors.Is(err, domain.ErrOutboxPublish) {
		t.Fatalf("expected ErrOutboxPublish, got %v", err)
	}
	if pending := repo.AllPending(); len(pending) != 1 || pending[0].AggregateID != "o-2" {
		t.Fatalf("expected only o-2 pending, got %+v", pending)
	}
}
