package orders_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/vladislavdragonenkov/wholesale/internal/domain"
	"github.com/vladislavdragonenkov/wholesale/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/wholesale/internal/metrics"
	"github.com/vladislavdragonenkov/wholesale/internal/service/orders"
	"github.com/vladislavdragonenkov/wholesale/internal/storage/memory"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func decp(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func qty(n int32) *int32 { return &n }

type EngineSuite struct {
	suite.Suite

	ctx    context.Context
	store  *memory.Store
	engine *orders.Engine

	category domain.Category
}

func TestEngineSuite(t *testing.T) {
	suite.Run(t, new(EngineSuite))
}

func (s *EngineSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = memory.NewStore()
	s.engine = orders.NewEngine(s.store,
		orders.WithMetrics(metrics.NewOrderMetricsWithRegisterer(prometheus.NewRegistry())))

	s.Require().NoError(s.store.WithinTx(s.ctx, func(ctx context.Context, tx domain.Tx) error {
		var err error
		s.category, err = tx.Categories().CreateCategory(ctx, domain.Category{Name: "Tea"})
		return err
	}))
}

func (s *EngineSuite) product(name string, stock int32, price string) domain.Product {
	var product domain.Product
	s.Require().NoError(s.store.WithinTx(s.ctx, func(ctx context.Context, tx domain.Tx) error {
		var err error
		product, err = tx.Products().CreateProduct(ctx, domain.Product{
			CategoryID:     s.category.ID,
			Name:           name,
			Price:          dec(price),
			WholesalePrice: dec(price),
			StockQuantity:  stock,
		})
		return err
	}))
	return product
}

func (s *EngineSuite) customer(company, referral string) domain.BusinessUser {
	var customer domain.BusinessUser
	s.Require().NoError(s.store.WithinTx(s.ctx, func(ctx context.Context, tx domain.Tx) error {
		var err error
		customer, err = tx.Customers().CreateCustomer(ctx, domain.BusinessUser{
			CompanyName:   company,
			ContactPerson: "Buyer",
			Email:         company + "-" + referral + "@example.com",
			Phone:         "+14155550100",
			ReferralCode:  referral,
		})
		return err
	}))
	return customer
}

func (s *EngineSuite) reloadProduct(id string) domain.Product {
	var product domain.Product
	s.Require().NoError(s.store.View(s.ctx, func(ctx context.Context, tx domain.Tx) error {
		var err error
		product, err = tx.Products().GetProduct(ctx, id)
		return err
	}))
	return product
}

func (s *EngineSuite) reloadCustomer(id string) domain.BusinessUser {
	var customer domain.BusinessUser
	s.Require().NoError(s.store.View(s.ctx, func(ctx context.Context, tx domain.Tx) error {
		var err error
		customer, err = tx.Customers().GetCustomer(ctx, id)
		return err
	}))
	return customer
}

func (s *EngineSuite) orderCount() int {
	list, err := s.engine.ListOrders(s.ctx)
	s.Require().NoError(err)
	return len(list)
}

func newInput(customerID, total string, items ...orders.LineItemInput) orders.CreateOrderInput {
	return orders.CreateOrderInput{
		CustomerID:      customerID,
		TotalPrice:      dec(total),
		ShippingAddress: "1 Dock Street",
		BillingAddress:  "1 Dock Street",
		PaymentTerms:    "Net 30",
		OrderType:       domain.OrderTypeOnline,
		Items:           items,
	}
}

func line(productID string, quantity int32, price string) orders.LineItemInput {
	return orders.LineItemInput{ProductID: productID, Quantity: quantity, Price: decp(price), WholesalePrice: decp(price)}
}

func (s *EngineSuite) TestCreateOrder_DecrementsStockAndComputesTotals() {
	p1 := s.product("P1", 10, "2.00")
	customer := s.customer("Acme", "")

	order, err := s.engine.CreateOrder(s.ctx, newInput(customer.ID, "8.00", line(p1.ID, 4, "2.00")))
	s.Require().NoError(err)

	s.Equal(domain.OrderStatusPending, order.Status)
	s.Require().Len(order.Items, 1)
	s.True(dec("8.00").Equal(order.Items[0].Total))
	s.True(order.CashbackApplied.IsZero())

	reloaded := s.reloadProduct(p1.ID)
	s.EqualValues(6, reloaded.StockQuantity)
	s.True(reloaded.IsInStock)
}

func (s *EngineSuite) TestCreateOrder_TotalMismatchLeavesNoTrace() {
	p1 := s.product("P1", 10, "2.00")
	customer := s.customer("Acme", "leafcoin")

	_, err := s.engine.CreateOrder(s.ctx, newInput(customer.ID, "9.00", line(p1.ID, 4, "2.00")))

	var mismatch *domain.TotalMismatchError
	s.Require().ErrorAs(err, &mismatch)
	s.True(dec("9.00").Equal(mismatch.Declared))
	s.True(dec("8.00").Equal(mismatch.Computed))
	s.EqualValues(10, s.reloadProduct(p1.ID).StockQuantity)
	s.Zero(s.orderCount())
	s.True(s.reloadCustomer(customer.ID).CashbackAmount.IsZero())
}

func (s *EngineSuite) TestCreateOrder_InsufficientStockIsAtomic() {
	plenty := s.product("Plenty", 50, "1.00")
	scarce := s.product("Scarce", 2, "3.00")
	customer := s.customer("Acme", "leafcoin")

	_, err := s.engine.CreateOrder(s.ctx, newInput(customer.ID, "19.00",
		line(plenty.ID, 10, "1.00"),
		line(scarce.ID, 3, "3.00"),
	))

	var stockErr *domain.InsufficientStockError
	s.Require().ErrorAs(err, &stockErr)
	s.Equal(scarce.ID, stockErr.ProductID)
	s.EqualValues(3, stockErr.Requested)
	s.EqualValues(2, stockErr.Available)

	s.EqualValues(50, s.reloadProduct(plenty.ID).StockQuantity)
	s.EqualValues(2, s.reloadProduct(scarce.ID).StockQuantity)
	s.Zero(s.orderCount())
	s.True(s.reloadCustomer(customer.ID).CashbackAmount.IsZero())
	s.Empty(s.store.Outbox().AllPending())
}

func (s *EngineSuite) TestCreateOrder_RepeatedProductCannotOversell() {
	p := s.product("P", 5, "1.00")
	customer := s.customer("Acme", "")

	_, err := s.engine.CreateOrder(s.ctx, newInput(customer.ID, "6.00",
		line(p.ID, 3, "1.00"),
		line(p.ID, 3, "1.00"),
	))

	s.Require().ErrorIs(err, domain.ErrInsufficientStock)
	s.EqualValues(5, s.reloadProduct(p.ID).StockQuantity)
	s.Zero(s.orderCount())
}

func (s *EngineSuite) TestCreateOrder_ConcurrentOrdersNeverOversell() {
	product := s.product("Matcha", 5, "3.00")
	customer := s.customer("Rush", "leafcoin")

	const attempts = 12
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
		rejected int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.engine.CreateOrder(s.ctx, newInput(customer.ID, "3.00", line(product.ID, 1, "3.00")))

			mu.Lock()
			defer mu.Unlock()
			var stockErr *domain.InsufficientStockError
			switch {
			case err == nil:
				accepted++
			case errors.As(err, &stockErr):
				rejected++
			default:
				s.T().Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	s.Equal(5, accepted)
	s.Equal(attempts-5, rejected)
	s.Equal(int32(0), s.reloadProduct(product.ID).StockQuantity)
	s.True(s.reloadCustomer(customer.ID).CashbackAmount.Equal(dec("0.75")))
}

func (s *EngineSuite) TestCreateOrder_Validation() {
	p := s.product("P", 5, "1.00")
	customer := s.customer("Acme", "")

	tests := []struct {
		name string
		in   orders.CreateOrderInput
		want error
	}{
		{name: "no items", in: newInput(customer.ID, "0.00"), want: domain.ErrValidation},
		{name: "zero quantity", in: newInput(customer.ID, "0.00", line(p.ID, 0, "1.00")), want: domain.ErrValidation},
		{name: "unknown product", in: newInput(customer.ID, "1.00", line("missing", 1, "1.00")), want: domain.ErrProductNotFound},
		{name: "unknown customer", in: newInput("missing", "1.00", line(p.ID, 1, "1.00")), want: domain.ErrCustomerNotFound},
		{name: "sub-cent price", in: newInput(customer.ID, "1.00", line(p.ID, 2, "0.505")), want: domain.ErrValidation},
	}
	badType := newInput(customer.ID, "1.00", line(p.ID, 1, "1.00"))
	badType.OrderType = "Mail"
	tests = append(tests, struct {
		name string
		in   orders.CreateOrderInput
		want error
	}{name: "unknown order type", in: badType, want: domain.ErrValidation})

	for _, tt := range tests {
		s.Run(tt.name, func() {
			_, err := s.engine.CreateOrder(s.ctx, tt.in)
			s.Require().ErrorIs(err, tt.want)
		})
	}
	s.EqualValues(5, s.reloadProduct(p.ID).StockQuantity)
	s.Zero(s.orderCount())
}

func (s *EngineSuite) TestCreateOrder_CashbackForLeafcoin() {
	p := s.product("Crate", 100, "10.00")
	leaf := s.customer("Leaf", "leafcoin")
	plain := s.customer("Plain", "friends")

	order, err := s.engine.CreateOrder(s.ctx, newInput(leaf.ID, "100.00", line(p.ID, 10, "10.00")))
	s.Require().NoError(err)
	s.True(dec("5.00").Equal(order.CashbackApplied), "cashback %s", order.CashbackApplied)
	s.True(dec("5.00").Equal(s.reloadCustomer(leaf.ID).CashbackAmount))

	second, err := s.engine.CreateOrder(s.ctx, newInput(leaf.ID, "10.10",
		orders.LineItemInput{ProductID: p.ID, Quantity: 1, Price: decp("10.10"), WholesalePrice: decp("9.00")}))
	s.Require().NoError(err)
	s.True(dec("0.505").Equal(second.CashbackApplied))
	s.True(dec("5.505").Equal(s.reloadCustomer(leaf.ID).CashbackAmount))

	other, err := s.engine.CreateOrder(s.ctx, newInput(plain.ID, "100.00", line(p.ID, 10, "10.00")))
	s.Require().NoError(err)
	s.True(other.CashbackApplied.IsZero())
	s.True(s.reloadCustomer(plain.ID).CashbackAmount.IsZero())
}

func (s *EngineSuite) TestCreateOrder_EnqueuesEventsAndTimeline() {
	p := s.product("Crate", 100, "10.00")
	leaf := s.customer("Leaf", "leafcoin")

	order, err := s.engine.CreateOrder(s.ctx, newInput(leaf.ID, "20.00", line(p.ID, 2, "10.00")))
	s.Require().NoError(err)

	pending := s.store.Outbox().AllPending()
	s.Require().Len(pending, 2)
	types := []string{pending[0].EventType, pending[1].EventType}
	s.ElementsMatch([]string{string(kafka.EventTypeCashbackAccrued), string(kafka.EventTypeOrderCreated)}, types)

	for _, msg := range pending {
		if msg.EventType != string(kafka.EventTypeOrderCreated) {
			continue
		}
		var event kafka.OrderEvent
		s.Require().NoError(json.Unmarshal(msg.Payload, &event))
		s.Equal(order.ID, event.OrderID)
		s.Equal("20.00", event.TotalPrice)
		s.Equal("Pending", event.Status)
	}

	details, err := s.engine.GetOrder(s.ctx, order.ID)
	s.Require().NoError(err)
	s.Equal("Leaf", details.CustomerName)
	s.Require().Len(details.LineItems, 1)
	s.Equal("Crate", details.LineItems[0].ProductName)
	s.Require().Len(details.Timeline, 2)
	s.Equal(domain.TimelineOrderCreated, details.Timeline[0].Type)
	s.Equal(domain.TimelineCashbackAccrued, details.Timeline[1].Type)
}

func (s *EngineSuite) TestUpdateOrder_AmendmentDelta() {
	p := s.product("P", 13, "1.00")
	customer := s.customer("Acme", "")

	order, err := s.engine.CreateOrder(s.ctx, newInput(customer.ID, "3.00", line(p.ID, 3, "1.00")))
	s.Require().NoError(err)
	s.EqualValues(10, s.reloadProduct(p.ID).StockQuantity)
	itemID := order.Items[0].ID

	updated, err := s.engine.UpdateOrder(s.ctx, order.ID, orders.OrderPatch{}, []orders.LineItemChange{
		{ID: itemID, ProductID: p.ID, Quantity: qty(5), Price: decp("1.00"), WholesalePrice: decp("1.00")},
	})
	s.Require().NoError(err)
	s.EqualValues(8, s.reloadProduct(p.ID).StockQuantity)
	s.True(dec("5.00").Equal(updated.Items[0].Total))

	_, err = s.engine.UpdateOrder(s.ctx, order.ID, orders.OrderPatch{}, []orders.LineItemChange{
		{ID: itemID, Quantity: qty(2), Price: decp("1.00"), WholesalePrice: decp("1.00")},
	})
	s.Require().NoError(err)
	s.EqualValues(11, s.reloadProduct(p.ID).StockQuantity)
}

func (s *EngineSuite) TestUpdateOrder_AmendmentBeyondStockRollsBack() {
	p := s.product("P", 5, "1.00")
	customer := s.customer("Acme", "")
	order, err := s.engine.CreateOrder(s.ctx, newInput(customer.ID, "3.00", line(p.ID, 3, "1.00")))
	s.Require().NoError(err)

	address := "2 New Street"
	_, err = s.engine.UpdateOrder(s.ctx, order.ID, orders.OrderPatch{ShippingAddress: &address}, []orders.LineItemChange{
		{ID: order.Items[0].ID, Quantity: qty(6), Price: decp("1.00"), WholesalePrice: decp("1.00")},
	})
	s.Require().ErrorIs(err, domain.ErrInsufficientStock)

	s.EqualValues(2, s.reloadProduct(p.ID).StockQuantity)
	details, err := s.engine.GetOrder(s.ctx, order.ID)
	s.Require().NoError(err)
	s.Equal("1 Dock Street", details.ShippingAddress)
	s.EqualValues(3, details.LineItems[0].Quantity)
}

func (s *EngineSuite) TestUpdateOrder_NewAndOmittedItems() {
	a := s.product("A", 10, "1.00")
	b := s.product("B", 10, "2.00")
	customer := s.customer("Acme", "")
	order, err := s.engine.CreateOrder(s.ctx, newInput(customer.ID, "4.00", line(a.ID, 4, "1.00")))
	s.Require().NoError(err)

	updated, err := s.engine.UpdateOrder(s.ctx, order.ID, orders.OrderPatch{}, []orders.LineItemChange{
		{ProductID: b.ID, Quantity: qty(3), Price: decp("2.00"), WholesalePrice: decp("1.50")},
	})
	s.Require().NoError(err)

	s.Require().Len(updated.Items, 2)
	s.EqualValues(4, updated.Items[0].Quantity)
	s.EqualValues(6, s.reloadProduct(a.ID).StockQuantity)
	s.EqualValues(7, s.reloadProduct(b.ID).StockQuantity)
	s.True(dec("4.00").Equal(updated.TotalPrice), "declared total is not recomputed")
}

func (s *EngineSuite) TestUpdateOrder_ForeignLineItem() {
	p := s.product("P", 10, "1.00")
	customer := s.customer("Acme", "")
	first, err := s.engine.CreateOrder(s.ctx, newInput(customer.ID, "1.00", line(p.ID, 1, "1.00")))
	s.Require().NoError(err)
	second, err := s.engine.CreateOrder(s.ctx, newInput(customer.ID, "1.00", line(p.ID, 1, "1.00")))
	s.Require().NoError(err)

	_, err = s.engine.UpdateOrder(s.ctx, second.ID, orders.OrderPatch{}, []orders.LineItemChange{
		{ID: first.Items[0].ID, Quantity: qty(2), Price: decp("1.00"), WholesalePrice: decp("1.00")},
	})
	s.Require().ErrorIs(err, domain.ErrLineItemNotFound)

	_, err = s.engine.UpdateOrder(s.ctx, second.ID, orders.OrderPatch{}, []orders.LineItemChange{
		{ID: "missing", Quantity: qty(2), Price: decp("1.00"), WholesalePrice: decp("1.00")},
	})
	s.Require().ErrorIs(err, domain.ErrLineItemNotFound)
	s.EqualValues(8, s.reloadProduct(p.ID).StockQuantity)
}

func (s *EngineSuite) TestUpdateOrder_ProductSwapRejected() {
	a := s.product("A", 10, "1.00")
	b := s.product("B", 10, "1.00")
	customer := s.customer("Acme", "")
	order, err := s.engine.CreateOrder(s.ctx, newInput(customer.ID, "1.00", line(a.ID, 1, "1.00")))
	s.Require().NoError(err)

	_, err = s.engine.UpdateOrder(s.ctx, order.ID, orders.OrderPatch{}, []orders.LineItemChange{
		{ID: order.Items[0].ID, ProductID: b.ID, Quantity: qty(1), Price: decp("1.00"), WholesalePrice: decp("1.00")},
	})
	var validationErr *domain.ValidationError
	s.Require().ErrorAs(err, &validationErr)
	s.Equal("product_id", validationErr.Field)
}

func (s *EngineSuite) TestUpdateOrder_DoesNotTouchCashback() {
	p := s.product("P", 100, "10.00")
	leaf := s.customer("Leaf", "leafcoin")
	order, err := s.engine.CreateOrder(s.ctx, newInput(leaf.ID, "100.00", line(p.ID, 10, "10.00")))
	s.Require().NoError(err)

	total := dec("500.00")
	updated, err := s.engine.UpdateOrder(s.ctx, order.ID, orders.OrderPatch{TotalPrice: &total}, nil)
	s.Require().NoError(err)

	s.True(total.Equal(updated.TotalPrice))
	s.True(dec("5.00").Equal(updated.CashbackApplied))
	s.True(dec("5.00").Equal(s.reloadCustomer(leaf.ID).CashbackAmount))
}

func (s *EngineSuite) TestUpdateOrder_StatusTransitions() {
	p := s.product("P", 10, "1.00")
	customer := s.customer("Acme", "")
	order, err := s.engine.CreateOrder(s.ctx, newInput(customer.ID, "1.00", line(p.ID, 1, "1.00")))
	s.Require().NoError(err)

	for _, next := range []domain.OrderStatus{domain.OrderStatusProcessing, domain.OrderStatusShipped, domain.OrderStatusDelivered} {
		status := next
		updated, err := s.engine.UpdateOrder(s.ctx, order.ID, orders.OrderPatch{Status: &status}, nil)
		s.Require().NoError(err)
		s.Equal(next, updated.Status)
	}

	back := domain.OrderStatusPending
	_, err = s.engine.UpdateOrder(s.ctx, order.ID, orders.OrderPatch{Status: &back}, nil)
	s.Require().ErrorIs(err, domain.ErrIllegalStatusTransition)

	details, err := s.engine.GetOrder(s.ctx, order.ID)
	s.Require().NoError(err)
	s.Equal(domain.OrderStatusDelivered, details.Status)

	changes := 0
	for _, event := range details.Timeline {
		if event.Type == domain.TimelineStatusChanged {
			changes++
		}
	}
	s.Equal(3, changes)
}

func (s *EngineSuite) TestUpdateOrder_UnknownOrder() {
	_, err := s.engine.UpdateOrder(s.ctx, "missing", orders.OrderPatch{}, nil)
	s.Require().ErrorIs(err, domain.ErrOrderNotFound)
}

func (s *EngineSuite) TestDeleteOrder_NoReversal() {
	p := s.product("P", 10, "10.00")
	leaf := s.customer("Leaf", "leafcoin")
	order, err := s.engine.CreateOrder(s.ctx, newInput(leaf.ID, "40.00", line(p.ID, 4, "10.00")))
	s.Require().NoError(err)

	s.Require().NoError(s.engine.DeleteOrder(s.ctx, order.ID))

	_, err = s.engine.GetOrder(s.ctx, order.ID)
	s.Require().ErrorIs(err, domain.ErrOrderNotFound)
	s.EqualValues(6, s.reloadProduct(p.ID).StockQuantity)
	s.True(dec("2.00").Equal(s.reloadCustomer(leaf.ID).CashbackAmount))
	s.Require().ErrorIs(s.engine.DeleteOrder(s.ctx, order.ID), domain.ErrOrderNotFound)
}

func (s *EngineSuite) TestListOrdersByCompany() {
	p := s.product("P", 10, "1.00")
	acme := s.customer("Acme", "")
	s.customer("Idle", "")
	_, err := s.engine.CreateOrder(s.ctx, newInput(acme.ID, "1.00", line(p.ID, 1, "1.00")))
	s.Require().NoError(err)

	found, err := s.engine.ListOrdersByCompany(s.ctx, "Acme")
	s.Require().NoError(err)
	s.Require().Len(found, 1)
	s.Equal("Acme", found[0].CustomerName)

	empty, err := s.engine.ListOrdersByCompany(s.ctx, "Idle")
	s.Require().NoError(err)
	s.Empty(empty)

	_, err = s.engine.ListOrdersByCompany(s.ctx, "acme")
	s.Require().ErrorIs(err, domain.ErrCustomerNotFound)
}

func TestEngine_PermissiveStatusTransitions(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	engine := orders.NewEngine(store, orders.WithStrictStatusTransitions(false))

	var product domain.Product
	var customer domain.BusinessUser
	require.NoError(t, store.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		category, err := tx.Categories().CreateCategory(ctx, domain.Category{Name: "Tea"})
		if err != nil {
			return err
		}
		if product, err = tx.Products().CreateProduct(ctx, domain.Product{
			CategoryID: category.ID, Name: "P", Price: dec("1.00"), WholesalePrice: dec("1.00"), StockQuantity: 1,
		}); err != nil {
			return err
		}
		customer, err = tx.Customers().CreateCustomer(ctx, domain.BusinessUser{
			CompanyName: "Acme", ContactPerson: "Buyer", Email: "buyer@acme.example", Phone: "+14155550100",
		})
		return err
	}))

	order, err := engine.CreateOrder(ctx, newInput(customer.ID, "1.00", line(product.ID, 1, "1.00")))
	require.NoError(t, err)

	delivered := domain.OrderStatusDelivered
	_, err = engine.UpdateOrder(ctx, order.ID, orders.OrderPatch{Status: &delivered}, nil)
	require.NoError(t, err)

	pending := domain.OrderStatusPending
	updated, err := engine.UpdateOrder(ctx, order.ID, orders.OrderPatch{Status: &pending}, nil)
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusPending, updated.Status)
}

func (s *EngineSuite) TestCreateOrder_MissingPriceRejected() {
	p := s.product("P", 5, "1.00")
	customer := s.customer("Acme", "")

	noWholesale := line(p.ID, 1, "1.00")
	noWholesale.WholesalePrice = nil
	noPrice := line(p.ID, 1, "1.00")
	noPrice.Price = nil

	tests := []struct {
		name  string
		item  orders.LineItemInput
		field string
	}{
		{name: "no wholesale price", item: noWholesale, field: "wholesale_price"},
		{name: "no price", item: noPrice, field: "price"},
	}
	for _, tt := range tests {
		s.Run(tt.name, func() {
			_, err := s.engine.CreateOrder(s.ctx, newInput(customer.ID, "1.00", tt.item))
			var validationErr *domain.ValidationError
			s.Require().ErrorAs(err, &validationErr)
			s.Equal(tt.field, validationErr.Field)
		})
	}
	s.EqualValues(5, s.reloadProduct(p.ID).StockQuantity)
	s.Zero(s.orderCount())
}

func (s *EngineSuite) TestUpdateOrder_QuantityOnlyKeepsPrices() {
	p := s.product("P", 10, "2.00")
	customer := s.customer("Acme", "")
	order, err := s.engine.CreateOrder(s.ctx, newInput(customer.ID, "6.00",
		orders.LineItemInput{ProductID: p.ID, Quantity: 3, Price: decp("2.00"), WholesalePrice: decp("1.50")}))
	s.Require().NoError(err)

	updated, err := s.engine.UpdateOrder(s.ctx, order.ID, orders.OrderPatch{}, []orders.LineItemChange{
		{ID: order.Items[0].ID, Quantity: qty(5)},
	})
	s.Require().NoError(err)

	s.Require().Len(updated.Items, 1)
	item := updated.Items[0]
	s.EqualValues(5, item.Quantity)
	s.True(dec("2.00").Equal(item.Price), "price %s", item.Price)
	s.True(dec("1.50").Equal(item.WholesalePrice), "wholesale price %s", item.WholesalePrice)
	s.True(dec("10.00").Equal(item.Total), "total %s", item.Total)
	s.EqualValues(5, s.reloadProduct(p.ID).StockQuantity)

	updated, err = s.engine.UpdateOrder(s.ctx, order.ID, orders.OrderPatch{}, []orders.LineItemChange{
		{ID: order.Items[0].ID, Price: decp("2.50")},
	})
	s.Require().NoError(err)
	s.EqualValues(5, updated.Items[0].Quantity)
	s.True(dec("12.50").Equal(updated.Items[0].Total))
	s.True(dec("1.50").Equal(updated.Items[0].WholesalePrice))
	s.EqualValues(5, s.reloadProduct(p.ID).StockQuantity)
}

func (s *EngineSuite) TestUpdateOrder_NewItemRequiresAllFields() {
	a := s.product("A", 10, "1.00")
	b := s.product("B", 10, "1.00")
	customer := s.customer("Acme", "")
	order, err := s.engine.CreateOrder(s.ctx, newInput(customer.ID, "1.00", line(a.ID, 1, "1.00")))
	s.Require().NoError(err)

	tests := []struct {
		name   string
		change orders.LineItemChange
		field  string
	}{
		{name: "no quantity", change: orders.LineItemChange{ProductID: b.ID, Price: decp("1.00"), WholesalePrice: decp("1.00")}, field: "quantity"},
		{name: "no price", change: orders.LineItemChange{ProductID: b.ID, Quantity: qty(1), WholesalePrice: decp("1.00")}, field: "price"},
		{name: "no wholesale price", change: orders.LineItemChange{ProductID: b.ID, Quantity: qty(1), Price: decp("1.00")}, field: "wholesale_price"},
	}
	for _, tt := range tests {
		s.Run(tt.name, func() {
			_, err := s.engine.UpdateOrder(s.ctx, order.ID, orders.OrderPatch{}, []orders.LineItemChange{tt.change})
			var validationErr *domain.ValidationError
			s.Require().ErrorAs(err, &validationErr)
			s.Equal(tt.field, validationErr.Field)
		})
	}
	s.EqualValues(10, s.reloadProduct(b.ID).StockQuantity)
}

func (s *EngineSuite) TestUpdateOrder_RepeatedLineItemNetsStock() {
	p := s.product("P", 10, "1.00")
	customer := s.customer("Acme", "")
	order, err := s.engine.CreateOrder(s.ctx, newInput(customer.ID, "4.00", line(p.ID, 4, "1.00")))
	s.Require().NoError(err)
	itemID := order.Items[0].ID

	updated, err := s.engine.UpdateOrder(s.ctx, order.ID, orders.OrderPatch{}, []orders.LineItemChange{
		{ID: itemID, Quantity: qty(9)},
		{ID: itemID, Quantity: qty(2)},
	})
	s.Require().NoError(err)
	s.EqualValues(2, updated.Items[0].Quantity)
	s.EqualValues(8, s.reloadProduct(p.ID).StockQuantity)
}

func (s *EngineSuite) TestCreateOrder_CrossOrderedProductsBothComplete() {
	a := s.product("A", 100, "1.00")
	b := s.product("B", 100, "1.00")
	customer := s.customer("Acme", "")

	const rounds = 20
	var wg sync.WaitGroup
	errs := make(chan error, 2*rounds)
	for i := 0; i < rounds; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := s.engine.CreateOrder(s.ctx, newInput(customer.ID, "2.00", line(a.ID, 1, "1.00"), line(b.ID, 1, "1.00")))
			errs <- err
		}()
		go func() {
			defer wg.Done()
			_, err := s.engine.CreateOrder(s.ctx, newInput(customer.ID, "2.00", line(b.ID, 1, "1.00"), line(a.ID, 1, "1.00")))
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		s.Require().NoError(err)
	}
	s.EqualValues(100-rounds*2, s.reloadProduct(a.ID).StockQuantity)
	s.EqualValues(100-rounds*2, s.reloadProduct(b.ID).StockQuantity)
	s.Equal(rounds*2, s.orderCount())
}
