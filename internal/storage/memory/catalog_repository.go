package memory

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/wholesale/internal/domain"
)

type categoryRepo struct{ tx *memTx }

func (r categoryRepo) CreateCategory(_ context.Context, category domain.Category) (domain.Category, error) {
	if err := r.tx.writable(); err != nil {
		return domain.Category{}, err
	}
	if r.nameTaken(category.Name, "") {
		return domain.Category{}, domain.ErrDuplicate
	}
	if category.ID == "" {
		category.ID = uuid.NewString()
	}
	if _, exists := r.tx.st.categories[category.ID]; exists {
		return domain.Category{}, domain.ErrDuplicate
	}
	category.CreatedAt = r.tx.now()
	r.tx.st.categories[category.ID] = category
	return category, nil
}

func (r categoryRepo) GetCategory(_ context.Context, id string) (domain.Category, error) {
	category, ok := r.tx.st.categories[id]
	if !ok {
		return domain.Category{}, domain.ErrCategoryNotFound
	}
	return category, nil
}

func (r categoryRepo) ListCategories(context.Context) ([]domain.Category, error) {
	result := make([]domain.Category, 0, len(r.tx.st.categories))
	for _, category := range r.tx.st.categories {
		result = append(result, category)
	}
	sortByCreated(result,
		func(c domain.Category) time.Time { return c.CreatedAt },
		func(c domain.Category) string { return c.ID })
	return result, nil
}

func (r categoryRepo) UpdateCategory(_ context.Context, category domain.Category) (domain.Category, error) {
	if err := r.tx.writable(); err != nil {
		return domain.Category{}, err
	}
	current, ok := r.tx.st.categories[category.ID]
	if !ok {
		return domain.Category{}, domain.ErrCategoryNotFound
	}
	if r.nameTaken(category.Name, category.ID) {
		return domain.Category{}, domain.ErrDuplicate
	}
	category.CreatedAt = current.CreatedAt
	r.tx.st.categories[category.ID] = category
	return category, nil
}

func (r categoryRepo) DeleteCategory(ctx context.Context, id string) error {
	if err := r.tx.writable(); err != nil {
		return err
	}
	if _, ok := r.tx.st.categories[id]; !ok {
		return domain.ErrCategoryNotFound
	}
	for productID, product := range r.tx.st.products {
		if product.CategoryID == id {
			if err := (productRepo{r.tx}).DeleteProduct(ctx, productID); err != nil {
				return err
			}
		}
	}
	delete(r.tx.st.categories, id)
	return nil
}

func (r categoryRepo) nameTaken(name, exceptID string) bool {
	for id, category := range r.tx.st.categories {
		if id != exceptID && category.Name == name {
			return true
		}
	}
	return false
}

type productRepo struct{ tx *memTx }

func (r productRepo) CreateProduct(_ context.Context, product domain.Product) (domain.Product, error) {
	if err := r.tx.writable(); err != nil {
		return domain.Product{}, err
	}
	if _, ok := r.tx.st.categories[product.CategoryID]; !ok {
		return domain.Product{}, domain.ErrCategoryNotFound
	}
	if product.ID == "" {
		product.ID = uuid.NewString()
	}
	if _, exists := r.tx.st.products[product.ID]; exists {
		return domain.Product{}, domain.ErrDuplicate
	}
	now := r.tx.now()
	product.CreatedAt = now
	product.UpdatedAt = now
	product.RefreshStockFlag()
	r.tx.st.products[product.ID] = product
	return product, nil
}

func (r productRepo) GetProduct(_ context.Context, id string) (domain.Product, error) {
	product, ok := r.tx.st.products[id]
	if !ok {
		return domain.Product{}, domain.ErrProductNotFound
	}
	return product, nil
}

func (r productRepo) ListProducts(_ context.Context, filter domain.ProductFilter) ([]domain.Product, error) {
	result := make([]domain.Product, 0, len(r.tx.st.products))
	for _, product := range r.tx.st.products {
		if filter.CategoryID != "" && product.CategoryID != filter.CategoryID {
			continue
		}
		result = append(result, product)
	}
	sortByCreated(result,
		func(p domain.Product) time.Time { return p.CreatedAt },
		func(p domain.Product) string { return p.ID })
	return result, nil
}

func (r productRepo) UpdateProduct(_ context.Context, product domain.Product) (domain.Product, error) {
	if err := r.tx.writable(); err != nil {
		return domain.Product{}, err
	}
	current, ok := r.tx.st.products[product.ID]
	if !ok {
		return domain.Product{}, domain.ErrProductNotFound
	}
	if _, ok := r.tx.st.categories[product.CategoryID]; !ok {
		return domain.Product{}, domain.ErrCategoryNotFound
	}
	product.CreatedAt = current.CreatedAt
	product.UpdatedAt = r.tx.now()
	product.RefreshStockFlag()
	r.tx.st.products[product.ID] = product
	return product, nil
}

func (r productRepo) DeleteProduct(_ context.Context, id string) error {
	if err := r.tx.writable(); err != nil {
		return err
	}
	if _, ok := r.tx.st.products[id]; !ok {
		return domain.ErrProductNotFound
	}
	for itemID, rec := range r.tx.st.lineItems {
		if rec.item.ProductID == id {
			delete(r.tx.st.lineItems, itemID)
		}
	}
	delete(r.tx.st.products, id)
	return nil
}

func (r productRepo) AdjustStock(_ context.Context, id string, delta int32) (domain.Product, error) {
	if err := r.tx.writable(); err != nil {
		return domain.Product{}, err
	}
	product, ok := r.tx.st.products[id]
	if !ok {
		return domain.Product{}, domain.ErrProductNotFound
	}
	if delta < 0 && product.StockQuantity < -delta {
		return domain.Product{}, &domain.InsufficientStockError{
			ProductID: id,
			Requested: -delta,
			Available: product.StockQuantity,
		}
	}
	product.StockQuantity += delta
	product.UpdatedAt = r.tx.now()
	product.RefreshStockFlag()
	r.tx.st.products[id] = product
	return product, nil
}

type offerRepo struct{ tx *memTx }

func (r offerRepo) CreateOffer(_ context.Context, offer domain.Offer) (domain.Offer, error) {
	if err := r.tx.writable(); err != nil {
		return domain.Offer{}, err
	}
	if offer.ID == "" {
		offer.ID = uuid.NewString()
	}
	if _, exists := r.tx.st.offers[offer.ID]; exists {
		return domain.Offer{}, domain.ErrDuplicate
	}
	offer.CreatedAt = r.tx.now()
	r.tx.st.offers[offer.ID] = offer
	return offer, nil
}

func (r offerRepo) GetOffer(_ context.Context, id string) (domain.Offer, error) {
	offer, ok := r.tx.st.offers[id]
	if !ok {
		return domain.Offer{}, domain.ErrOfferNotFound
	}
	return offer, nil
}

func (r offerRepo) ListOffers(context.Context) ([]domain.Offer, error) {
	result := make([]domain.Offer, 0, len(r.tx.st.offers))
	for _, offer := range r.tx.st.offers {
		result = append(result, offer)
	}
	sortByCreated(result,
		func(o domain.Offer) time.Time { return o.CreatedAt },
		func(o domain.Offer) string { return o.ID })
	return result, nil
}

func (r offerRepo) UpdateOffer(_ context.Context, offer domain.Offer) (domain.Offer, error) {
	if err := r.tx.writable(); err != nil {
		return domain.Offer{}, err
	}
	current, ok := r.tx.st.offers[offer.ID]
	if !ok {
		return domain.Offer{}, domain.ErrOfferNotFound
	}
	offer.CreatedAt = current.CreatedAt
	r.tx.st.offers[offer.ID] = offer
	return offer, nil
}

func (r offerRepo) DeleteOffer(_ context.Context, id string) error {
	if err := r.tx.writable(); err != nil {
		return err
	}
	if _, ok := r.tx.st.offers[id]; !ok {
		return domain.ErrOfferNotFound
	}
	delete(r.tx.st.offers, id)
	return nil
}

var (
	_ domain.CategoryRepository = categoryRepo{}
	_ domain.ProductRepository  = productRepo{}
	_ domain.OfferRepository    = offerRepo{}
)
