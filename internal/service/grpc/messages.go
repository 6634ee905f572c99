package grpcsvc

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/vladislavdragonenkov/wholesale/internal/domain"
	"github.com/vladislavdragonenkov/wholesale/internal/service/orders"
)

// Сообщения сервиса передаются в google.protobuf.Struct. Денежные суммы принимаются
// строкой или числом и всегда отдаются строкой.

type lineItemMessage struct {
	ID             string           `json:"id,omitempty"`
	ProductID      string           `json:"productId"`
	Quantity       *int32           `json:"quantity"`
	Price          *decimal.Decimal `json:"price"`
	WholesalePrice *decimal.Decimal `json:"wholesalePrice"`
}

type createOrderRequest struct {
	CustomerID      string            `json:"customerId"`
	TotalPrice      decimal.Decimal   `json:"totalPrice"`
	ShippingAddress string            `json:"shippingAddress"`
	BillingAddress  string            `json:"billingAddress"`
	PaymentTerms    string            `json:"paymentTerms"`
	OrderType       string            `json:"orderType"`
	LineItems       []lineItemMessage `json:"lineItems"`
}

type orderIDRequest struct {
	OrderID string `json:"orderId"`
}

type updateOrderRequest struct {
	OrderID         string            `json:"orderId"`
	TotalPrice      *decimal.Decimal  `json:"totalPrice"`
	ShippingAddress *string           `json:"shippingAddress"`
	BillingAddress  *string           `json:"billingAddress"`
	Status          *string           `json:"status"`
	PaymentTerms    *string           `json:"paymentTerms"`
	OrderType       *string           `json:"orderType"`
	LineItems       []lineItemMessage `json:"lineItems"`
}

type listOrdersRequest struct {
	CompanyName string `json:"companyName"`
}

type lineItemView struct {
	ID             string `json:"id"`
	ProductID      string `json:"productId"`
	ProductName    string `json:"productName"`
	Quantity       int32  `json:"quantity"`
	Price          string `json:"price"`
	WholesalePrice string `json:"wholesalePrice"`
	Total          string `json:"total"`
}

type timelineView struct {
	Type     string    `json:"type"`
	Reason   string    `json:"reason,omitempty"`
	Occurred time.Time `json:"occurred"`
}

type orderView struct {
	ID              string         `json:"id"`
	CustomerID      string         `json:"customerId"`
	CustomerName    string         `json:"customerName"`
	OrderDate       time.Time      `json:"orderDate"`
	TotalPrice      string         `json:"totalPrice"`
	ShippingAddress string         `json:"shippingAddress"`
	BillingAddress  string         `json:"billingAddress"`
	Status          string         `json:"status"`
	PaymentTerms    string         `json:"paymentTerms"`
	OrderType       string         `json:"orderType"`
	CashbackApplied string         `json:"cashbackApplied"`
	LineItems       []lineItemView `json:"lineItems"`
	Timeline        []timelineView `json:"timeline,omitempty"`
}

type orderListView struct {
	Orders []orderView `json:"orders"`
}

// decodeStruct переносит поля Struct в типизированный запрос.
func decodeStruct(in *structpb.Struct, dst interface{}) error {
	if in == nil {
		return domain.NewValidationError("request", "is required")
	}
	raw, err := protojson.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode request struct: %w", err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return domain.NewValidationError("request", fmt.Sprintf("malformed payload: %v", err))
	}
	return nil
}

// encodeStruct сериализует ответ в Struct.
func encodeStruct(v interface{}) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode response: %w", err)
	}
	out := new(structpb.Struct)
	if err := protojson.Unmarshal(raw, out); err != nil {
		return nil, fmt.Errorf("decode response struct: %w", err)
	}
	return out, nil
}

func (r createOrderRequest) toInput() orders.CreateOrderInput {
	items := make([]orders.LineItemInput, 0, len(r.LineItems))
	for _, item := range r.LineItems {
		var quantity int32
		if item.Quantity != nil {
			quantity = *item.Quantity
		}
		items = append(items, orders.LineItemInput{
			ProductID:      item.ProductID,
			Quantity:       quantity,
			Price:          item.Price,
			WholesalePrice: item.WholesalePrice,
		})
	}
	return orders.CreateOrderInput{
		CustomerID:      r.CustomerID,
		TotalPrice:      r.TotalPrice,
		ShippingAddress: r.ShippingAddress,
		BillingAddress:  r.BillingAddress,
		PaymentTerms:    r.PaymentTerms,
		OrderType:       domain.OrderType(r.OrderType),
		Items:           items,
	}
}

func (r updateOrderRequest) toPatch() (orders.OrderPatch, []orders.LineItemChange) {
	patch := orders.OrderPatch{
		TotalPrice:      r.TotalPrice,
		ShippingAddress: r.ShippingAddress,
		BillingAddress:  r.BillingAddress,
		PaymentTerms:    r.PaymentTerms,
	}
	if r.Status != nil {
		status := domain.OrderStatus(*r.Status)
		patch.Status = &status
	}
	if r.OrderType != nil {
		orderType := domain.OrderType(*r.OrderType)
		patch.OrderType = &orderType
	}

	changes := make([]orders.LineItemChange, 0, len(r.LineItems))
	for _, item := range r.LineItems {
		changes = append(changes, orders.LineItemChange{
			ID:             item.ID,
			ProductID:      item.ProductID,
			Quantity:       item.Quantity,
			Price:          item.Price,
			WholesalePrice: item.WholesalePrice,
		})
	}
	return patch, changes
}

func newOrderView(d orders.OrderDetails) orderView {
	items := make([]lineItemView, 0, len(d.LineItems))
	for _, item := range d.LineItems {
		items = append(items, lineItemView{
			ID:             item.ID,
			ProductID:      item.ProductID,
			ProductName:    item.ProductName,
			Quantity:       item.Quantity,
			Price:          item.Price.StringFixed(2),
			WholesalePrice: item.WholesalePrice.StringFixed(2),
			Total:          item.Total.StringFixed(2),
		})
	}
	var timeline []timelineView
	for _, event := range d.Timeline {
		timeline = append(timeline, timelineView{Type: event.Type, Reason: event.Reason, Occurred: event.Occurred})
	}

	cashback := d.CashbackApplied.String()
	if domain.IsMoney(d.CashbackApplied) {
		cashback = d.CashbackApplied.StringFixed(2)
	}

	return orderView{
		ID:              d.ID,
		CustomerID:      d.CustomerID,
		CustomerName:    d.CustomerName,
		OrderDate:       d.OrderDate,
		TotalPrice:      d.TotalPrice.StringFixed(2),
		ShippingAddress: d.ShippingAddress,
		BillingAddress:  d.BillingAddress,
		Status:          string(d.Status),
		PaymentTerms:    d.PaymentTerms,
		OrderType:       string(d.OrderType),
		CashbackApplied: cashback,
		LineItems:       items,
		Timeline:        timeline,
	}
}
