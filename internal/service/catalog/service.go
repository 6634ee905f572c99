package catalog

import (
	"context"
	"errors"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/wholesale/internal/domain"
)

// ProductView — товар вместе с названием категории, как его отдаёт API.
type ProductView struct {
	domain.Product
	CategoryName string
}

// Service управляет категориями, товарами и акциями.
type Service struct {
	store  domain.Store
	logger *log.Entry
}

// NewService создаёт сервис каталога.
func NewService(store domain.Store, logger *log.Entry) *Service {
	if logger == nil {
		logger = log.New().WithField("component", "catalog")
	}
	return &Service{store: store, logger: logger}
}

// CreateCategory добавляет категорию. Имя категории уникально.
func (s *Service) CreateCategory(ctx context.Context, category domain.Category) (domain.Category, error) {
	category.Name = strings.TrimSpace(category.Name)
	if err := category.Validate(); err != nil {
		return domain.Category{}, err
	}
	var created domain.Category
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		var err error
		created, err = tx.Categories().CreateCategory(ctx, category)
		return err
	})
	if err != nil {
		return domain.Category{}, err
	}
	s.logger.WithField("category_id", created.ID).Info("category created")
	return created, nil
}

// GetCategory возвращает категорию по идентификатору.
func (s *Service) GetCategory(ctx context.Context, id string) (domain.Category, error) {
	var category domain.Category
	err := s.store.View(ctx, func(ctx context.Context, tx domain.Tx) error {
		var err error
		category, err = tx.Categories().GetCategory(ctx, id)
		return err
	})
	return category, err
}

// ListCategories возвращает все категории в порядке создания.
func (s *Service) ListCategories(ctx context.Context) ([]domain.Category, error) {
	var categories []domain.Category
	err := s.store.View(ctx, func(ctx context.Context, tx domain.Tx) error {
		var err error
		categories, err = tx.Categories().ListCategories(ctx)
		return err
	})
	return categories, err
}

// UpdateCategory перезаписывает имя и изображение категории.
func (s *Service) UpdateCategory(ctx context.Context, category domain.Category) (domain.Category, error) {
	category.Name = strings.TrimSpace(category.Name)
	if err := category.Validate(); err != nil {
		return domain.Category{}, err
	}
	var updated domain.Category
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		var err error
		updated, err = tx.Categories().UpdateCategory(ctx, category)
		return err
	})
	return updated, err
}

// DeleteCategory удаляет категорию вместе с её товарами.
func (s *Service) DeleteCategory(ctx context.Context, id string) error {
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		return tx.Categories().DeleteCategory(ctx, id)
	})
	if err != nil {
		return err
	}
	s.logger.WithField("category_id", id).Info("category deleted")
	return nil
}

// CreateProduct добавляет товар в существующую категорию.
func (s *Service) CreateProduct(ctx context.Context, product domain.Product) (ProductView, error) {
	if err := product.Validate(); err != nil {
		return ProductView{}, err
	}
	product.RefreshStockFlag()

	var view ProductView
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		category, err := lookupCategory(ctx, tx, product.CategoryID)
		if err != nil {
			return err
		}
		created, err := tx.Products().CreateProduct(ctx, product)
		if err != nil {
			return err
		}
		view = ProductView{Product: created, CategoryName: category.Name}
		return nil
	})
	if err != nil {
		return ProductView{}, err
	}
	s.logger.WithFields(log.Fields{
		"product_id": view.ID,
		"stock":      view.StockQuantity,
	}).Info("product created")
	return view, nil
}

// GetProduct возвращает товар с названием категории.
func (s *Service) GetProduct(ctx context.Context, id string) (ProductView, error) {
	var view ProductView
	err := s.store.View(ctx, func(ctx context.Context, tx domain.Tx) error {
		product, err := tx.Products().GetProduct(ctx, id)
		if err != nil {
			return err
		}
		category, err := tx.Categories().GetCategory(ctx, product.CategoryID)
		if err != nil {
			return err
		}
		view = ProductView{Product: product, CategoryName: category.Name}
		return nil
	})
	return view, err
}

// ListProducts возвращает товары, при необходимости только одной категории.
func (s *Service) ListProducts(ctx context.Context, filter domain.ProductFilter) ([]ProductView, error) {
	var views []ProductView
	err := s.store.View(ctx, func(ctx context.Context, tx domain.Tx) error {
		products, err := tx.Products().ListProducts(ctx, filter)
		if err != nil {
			return err
		}
		names := make(map[string]string)
		views = make([]ProductView, 0, len(products))
		for _, product := range products {
			name, ok := names[product.CategoryID]
			if !ok {
				category, err := tx.Categories().GetCategory(ctx, product.CategoryID)
				if err != nil {
					return err
				}
				name = category.Name
				names[product.CategoryID] = name
			}
			views = append(views, ProductView{Product: product, CategoryName: name})
		}
		return nil
	})
	return views, err
}

// UpdateProduct перезаписывает товар. Остаток можно выставить напрямую (пополнение склада),
// признак наличия пересчитывается.
func (s *Service) UpdateProduct(ctx context.Context, product domain.Product) (ProductView, error) {
	if err := product.Validate(); err != nil {
		return ProductView{}, err
	}
	product.RefreshStockFlag()

	var view ProductView
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		category, err := lookupCategory(ctx, tx, product.CategoryID)
		if err != nil {
			return err
		}
		updated, err := tx.Products().UpdateProduct(ctx, product)
		if err != nil {
			return err
		}
		view = ProductView{Product: updated, CategoryName: category.Name}
		return nil
	})
	return view, err
}

// DeleteProduct удаляет товар; позиции заказов с ним удаляются каскадно.
func (s *Service) DeleteProduct(ctx context.Context, id string) error {
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		return tx.Products().DeleteProduct(ctx, id)
	})
	if err != nil {
		return err
	}
	s.logger.WithField("product_id", id).Info("product deleted")
	return nil
}

// CreateOffer добавляет акцию.
func (s *Service) CreateOffer(ctx context.Context, offer domain.Offer) (domain.Offer, error) {
	if err := offer.Validate(); err != nil {
		return domain.Offer{}, err
	}
	var created domain.Offer
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		var err error
		created, err = tx.Offers().CreateOffer(ctx, offer)
		return err
	})
	return created, err
}

// GetOffer возвращает акцию по идентификатору.
func (s *Service) GetOffer(ctx context.Context, id string) (domain.Offer, error) {
	var offer domain.Offer
	err := s.store.View(ctx, func(ctx context.Context, tx domain.Tx) error {
		var err error
		offer, err = tx.Offers().GetOffer(ctx, id)
		return err
	})
	return offer, err
}

// ListOffers возвращает все акции.
func (s *Service) ListOffers(ctx context.Context) ([]domain.Offer, error) {
	var offers []domain.Offer
	err := s.store.View(ctx, func(ctx context.Context, tx domain.Tx) error {
		var err error
		offers, err = tx.Offers().ListOffers(ctx)
		return err
	})
	return offers, err
}

// UpdateOffer перезаписывает акцию.
func (s *Service) UpdateOffer(ctx context.Context, offer domain.Offer) (domain.Offer, error) {
	if err := offer.Validate(); err != nil {
		return domain.Offer{}, err
	}
	var updated domain.Offer
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		var err error
		updated, err = tx.Offers().UpdateOffer(ctx, offer)
		return err
	})
	return updated, err
}

// DeleteOffer удаляет акцию.
func (s *Service) DeleteOffer(ctx context.Context, id string) error {
	return s.store.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		return tx.Offers().DeleteOffer(ctx, id)
	})
}

// lookupCategory превращает отсутствие категории в ошибку валидации поля category_id.
func lookupCategory(ctx context.Context, tx domain.Tx, id string) (domain.Category, error) {
	category, err := tx.Categories().GetCategory(ctx, id)
	if errors.Is(err, domain.ErrCategoryNotFound) {
		return domain.Category{}, domain.NewValidationError("category_id", "unknown category")
	}
	return category, err
}
