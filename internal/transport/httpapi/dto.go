package httpapi

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/wholesale/internal/domain"
	"github.com/vladislavdragonenkov/wholesale/internal/service/catalog"
	"github.com/vladislavdragonenkov/wholesale/internal/service/orders"
)

// Денежные поля принимаются строкой или числом и отдаются строкой, чтобы не терять точность.

type businessUserRequest struct {
	CompanyName   string `json:"company_name"`
	ContactPerson string `json:"contact_person"`
	Email         string `json:"email"`
	Phone         string `json:"phone"`
	Address       string `json:"address"`
	UploadedFile  string `json:"uploaded_file"`
	ReferralCode  string `json:"referral_code"`
}

func (r businessUserRequest) toDomain(id string) domain.BusinessUser {
	return domain.BusinessUser{
		ID:            id,
		CompanyName:   r.CompanyName,
		ContactPerson: r.ContactPerson,
		Email:         r.Email,
		Phone:         r.Phone,
		Address:       r.Address,
		UploadedFile:  r.UploadedFile,
		ReferralCode:  r.ReferralCode,
	}
}

type businessUserResponse struct {
	ID             string    `json:"id"`
	CompanyName    string    `json:"company_name"`
	ContactPerson  string    `json:"contact_person"`
	Email          string    `json:"email"`
	Phone          string    `json:"phone"`
	Address        string    `json:"address"`
	UploadedFile   string    `json:"uploaded_file,omitempty"`
	ReferralCode   string    `json:"referral_code,omitempty"`
	CashbackAmount string    `json:"cashback_amount"`
	CreatedAt      time.Time `json:"created_at"`
}

func toBusinessUserResponse(u domain.BusinessUser) businessUserResponse {
	return businessUserResponse{
		ID:             u.ID,
		CompanyName:    u.CompanyName,
		ContactPerson:  u.ContactPerson,
		Email:          u.Email,
		Phone:          u.Phone,
		Address:        u.Address,
		UploadedFile:   u.UploadedFile,
		ReferralCode:   u.ReferralCode,
		CashbackAmount: cashbackString(u.CashbackAmount),
		CreatedAt:      u.CreatedAt,
	}
}

// phoneLookupResponse — сокращённая карточка клиента для поиска по телефону.
type phoneLookupResponse struct {
	CompanyName    string `json:"company_name"`
	ContactPerson  string `json:"contact_person"`
	Phone          string `json:"phone"`
	ReferralCode   string `json:"referral_code"`
	CashbackAmount string `json:"cashback_amount"`
}

type categoryRequest struct {
	Name  string `json:"name"`
	Image string `json:"image"`
}

type categoryResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Image     string    `json:"image,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func toCategoryResponse(c domain.Category) categoryResponse {
	return categoryResponse{ID: c.ID, Name: c.Name, Image: c.Image, CreatedAt: c.CreatedAt}
}

type productRequest struct {
	CategoryID           string          `json:"category_id"`
	ProductName          string          `json:"product_name"`
	ProductDetails       string          `json:"product_details"`
	Image                string          `json:"image"`
	Price                decimal.Decimal `json:"price"`
	WholesalePrice       decimal.Decimal `json:"wholesale_price"`
	MinimumOrderQuantity int32           `json:"minimum_order_quantity"`
	StockQuantity        int32           `json:"stock_quantity"`
}

func (r productRequest) toDomain(id string) domain.Product {
	return domain.Product{
		ID:                   id,
		CategoryID:           r.CategoryID,
		Name:                 r.ProductName,
		Details:              r.ProductDetails,
		Image:                r.Image,
		Price:                r.Price,
		WholesalePrice:       r.WholesalePrice,
		MinimumOrderQuantity: r.MinimumOrderQuantity,
		StockQuantity:        r.StockQuantity,
	}
}

type productResponse struct {
	ID                   string    `json:"id"`
	CategoryID           string    `json:"category_id"`
	CategoryName         string    `json:"category_name"`
	ProductName          string    `json:"product_name"`
	ProductDetails       string    `json:"product_details,omitempty"`
	Image                string    `json:"image,omitempty"`
	Price                string    `json:"price"`
	WholesalePrice       string    `json:"wholesale_price"`
	MinimumOrderQuantity int32     `json:"minimum_order_quantity"`
	StockQuantity        int32     `json:"stock_quantity"`
	IsInStock            bool      `json:"is_in_stock"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`
}

func toProductResponse(p catalog.ProductView) productResponse {
	return productResponse{
		ID:                   p.ID,
		CategoryID:           p.CategoryID,
		CategoryName:         p.CategoryName,
		ProductName:          p.Name,
		ProductDetails:       p.Details,
		Image:                p.Image,
		Price:                p.Price.StringFixed(2),
		WholesalePrice:       p.WholesalePrice.StringFixed(2),
		MinimumOrderQuantity: p.MinimumOrderQuantity,
		StockQuantity:        p.StockQuantity,
		IsInStock:            p.IsInStock,
		CreatedAt:            p.CreatedAt,
		UpdatedAt:            p.UpdatedAt,
	}
}

type offerRequest struct {
	Title                     string          `json:"title"`
	Description               string          `json:"description"`
	DiscountPercentage        decimal.Decimal `json:"discount_percentage"`
	ApplicableMinimumQuantity int32           `json:"applicable_minimum_quantity"`
	Image                     string          `json:"image"`
}

func (r offerRequest) toDomain(id string) domain.Offer {
	return domain.Offer{
		ID:                        id,
		Title:                     r.Title,
		Description:               r.Description,
		DiscountPercentage:        r.DiscountPercentage,
		ApplicableMinimumQuantity: r.ApplicableMinimumQuantity,
		Image:                     r.Image,
	}
}

type offerResponse struct {
	ID                        string    `json:"id"`
	Title                     string    `json:"title"`
	Description               string    `json:"description"`
	DiscountPercentage        string    `json:"discount_percentage"`
	ApplicableMinimumQuantity int32     `json:"applicable_minimum_quantity"`
	Image                     string    `json:"image,omitempty"`
	CreatedAt                 time.Time `json:"created_at"`
}

func toOfferResponse(o domain.Offer) offerResponse {
	return offerResponse{
		ID:                        o.ID,
		Title:                     o.Title,
		Description:               o.Description,
		DiscountPercentage:        o.DiscountPercentage.StringFixed(2),
		ApplicableMinimumQuantity: o.ApplicableMinimumQuantity,
		Image:                     o.Image,
		CreatedAt:                 o.CreatedAt,
	}
}

type lineItemRequest struct {
	ID             string           `json:"id,omitempty"`
	ProductID      string           `json:"product_id"`
	Quantity       *int32           `json:"quantity"`
	Price          *decimal.Decimal `json:"price"`
	WholesalePrice *decimal.Decimal `json:"wholesale_price"`
}

type createOrderRequest struct {
	CustomerID      string            `json:"customer_id"`
	TotalPrice      decimal.Decimal   `json:"total_price"`
	ShippingAddress string            `json:"shipping_address"`
	BillingAddress  string            `json:"billing_address"`
	PaymentTerms    string            `json:"payment_terms"`
	OrderType       string            `json:"order_type"`
	LineItems       []lineItemRequest `json:"line_items"`
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

// updateOrderRequest — отсутствующие поля не меняются; позиции без id добавляются к заказу.
type updateOrderRequest struct {
	TotalPrice      *decimal.Decimal  `json:"total_price"`
	ShippingAddress *string           `json:"shipping_address"`
	BillingAddress  *string           `json:"billing_address"`
	Status          *string           `json:"status"`
	PaymentTerms    *string           `json:"payment_terms"`
	OrderType       *string           `json:"order_type"`
	LineItems       []lineItemRequest `json:"line_items"`
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

type lineItemResponse struct {
	ID             string `json:"id"`
	ProductID      string `json:"product_id"`
	ProductName    string `json:"product_name"`
	Quantity       int32  `json:"quantity"`
	Price          string `json:"price"`
	WholesalePrice string `json:"wholesale_price"`
	Total          string `json:"total"`
}

type timelineEventResponse struct {
	Type     string    `json:"type"`
	Reason   string    `json:"reason,omitempty"`
	Occurred time.Time `json:"occurred"`
}

type orderResponse struct {
	ID              string                  `json:"id"`
	CustomerID      string                  `json:"customer_id"`
	CustomerName    string                  `json:"customer_name"`
	OrderDate       time.Time               `json:"order_date"`
	TotalPrice      string                  `json:"total_price"`
	ShippingAddress string                  `json:"shipping_address"`
	BillingAddress  string                  `json:"billing_address"`
	Status          string                  `json:"status"`
	PaymentTerms    string                  `json:"payment_terms"`
	OrderType       string                  `json:"order_type"`
	CashbackApplied string                  `json:"cashback_applied"`
	LineItems       []lineItemResponse      `json:"line_items"`
	Timeline        []timelineEventResponse `json:"timeline,omitempty"`
}

func toOrderResponse(d orders.OrderDetails) orderResponse {
	items := make([]lineItemResponse, 0, len(d.LineItems))
	for _, item := range d.LineItems {
		items = append(items, lineItemResponse{
			ID:             item.ID,
			ProductID:      item.ProductID,
			ProductName:    item.ProductName,
			Quantity:       item.Quantity,
			Price:          item.Price.StringFixed(2),
			WholesalePrice: item.WholesalePrice.StringFixed(2),
			Total:          item.Total.StringFixed(2),
		})
	}

	var timeline []timelineEventResponse
	for _, event := range d.Timeline {
		timeline = append(timeline, timelineEventResponse{Type: event.Type, Reason: event.Reason, Occurred: event.Occurred})
	}

	return orderResponse{
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
		CashbackApplied: cashbackString(d.CashbackApplied),
		LineItems:       items,
		Timeline:        timeline,
	}
}

func toOrderResponses(list []orders.OrderDetails) []orderResponse {
	result := make([]orderResponse, 0, len(list))
	for _, d := range list {
		result = append(result, toOrderResponse(d))
	}
	return result
}

// cashbackString печатает кэшбэк без потери точности: 5% от суммы может дать третий знак.
func cashbackString(amount decimal.Decimal) string {
	if domain.IsMoney(amount) {
		return amount.StringFixed(2)
	}
	return amount.String()
}
