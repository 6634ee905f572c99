package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/wholesale/internal/domain"
)

// AccrueCashback начисляет клиенту кэшбэк за заказ на сумму orderTotal внутри транзакции tx.
// Для реферального кода "leafcoin" это ровно 5% суммы; для остальных клиентов
// возвращается ноль и баланс не меняется.
func AccrueCashback(ctx context.Context, tx domain.Tx, customerID string, orderTotal decimal.Decimal) (decimal.Decimal, error) {
	customer, err := tx.Customers().GetCustomer(ctx, customerID)
	if err != nil {
		return decimal.Zero, err
	}
	amount := customer.CashbackFor(orderTotal)
	if amount.IsZero() {
		return decimal.Zero, nil
	}
	if _, err := tx.Customers().AddCashback(ctx, customerID, amount); err != nil {
		return decimal.Zero, fmt.Errorf("accrue cashback for %s: %w", customerID, err)
	}
	return amount, nil
}

// Service управляет бизнес-клиентами.
type Service struct {
	store  domain.Store
	logger *log.Entry
}

// NewService создаёт сервис клиентов.
func NewService(store domain.Store, logger *log.Entry) *Service {
	if logger == nil {
		logger = log.New().WithField("component", "ledger")
	}
	return &Service{store: store, logger: logger}
}

// CreateCustomer регистрирует клиента с нулевым кэшбэк-балансом.
func (s *Service) CreateCustomer(ctx context.Context, customer domain.BusinessUser) (domain.BusinessUser, error) {
	customer = normalize(customer)
	customer.CashbackAmount = decimal.Zero
	if err := customer.Validate(); err != nil {
		return domain.BusinessUser{}, err
	}

	var created domain.BusinessUser
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		var err error
		created, err = tx.Customers().CreateCustomer(ctx, customer)
		return err
	})
	if err != nil {
		return domain.BusinessUser{}, err
	}
	s.logger.WithFields(log.Fields{
		"customer_id": created.ID,
		"company":     created.CompanyName,
	}).Info("business user created")
	return created, nil
}

// GetCustomer возвращает клиента по идентификатору.
func (s *Service) GetCustomer(ctx context.Context, id string) (domain.BusinessUser, error) {
	var customer domain.BusinessUser
	err := s.store.View(ctx, func(ctx context.Context, tx domain.Tx) error {
		var err error
		customer, err = tx.Customers().GetCustomer(ctx, id)
		return err
	})
	return customer, err
}

// ListCustomers возвращает всех клиентов в порядке регистрации.
func (s *Service) ListCustomers(ctx context.Context) ([]domain.BusinessUser, error) {
	var customers []domain.BusinessUser
	err := s.store.View(ctx, func(ctx context.Context, tx domain.Tx) error {
		var err error
		customers, err = tx.Customers().ListCustomers(ctx)
		return err
	})
	return customers, err
}

// UpdateCustomer меняет профиль клиента. Кэшбэк-баланс меняется только начислением.
func (s *Service) UpdateCustomer(ctx context.Context, customer domain.BusinessUser) (domain.BusinessUser, error) {
	customer = normalize(customer)
	customer.CashbackAmount = decimal.Zero
	if err := customer.Validate(); err != nil {
		return domain.BusinessUser{}, err
	}

	var updated domain.BusinessUser
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		var err error
		updated, err = tx.Customers().UpdateCustomer(ctx, customer)
		return err
	})
	return updated, err
}

// DeleteCustomer удаляет клиента. Если у клиента есть заказы, возвращает
// domain.ErrHasExistingOrders и ничего не меняет.
func (s *Service) DeleteCustomer(ctx context.Context, id string) error {
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		count, err := tx.Orders().CountOrdersByCustomer(ctx, id)
		if err != nil {
			return err
		}
		if count > 0 {
			return domain.ErrHasExistingOrders
		}
		return tx.Customers().DeleteCustomer(ctx, id)
	})
	if err != nil {
		if errors.Is(err, domain.ErrHasExistingOrders) {
			s.logger.WithField("customer_id", id).Warn("delete refused: customer has orders")
		}
		return err
	}
	s.logger.WithField("customer_id", id).Info("business user deleted")
	return nil
}

// FindByPhone ищет клиента по точному совпадению телефона.
func (s *Service) FindByPhone(ctx context.Context, phone string) (domain.BusinessUser, error) {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return domain.BusinessUser{}, domain.NewValidationError("phone", "is required")
	}
	var customer domain.BusinessUser
	err := s.store.View(ctx, func(ctx context.Context, tx domain.Tx) error {
		var err error
		customer, err = tx.Customers().FindCustomerByPhone(ctx, phone)
		return err
	})
	return customer, err
}

// FindByCompany возвращает клиентов с точно совпадающим названием компании.
func (s *Service) FindByCompany(ctx context.Context, companyName string) ([]domain.BusinessUser, error) {
	var customers []domain.BusinessUser
	err := s.store.View(ctx, func(ctx context.Context, tx domain.Tx) error {
		var err error
		customers, err = tx.Customers().FindCustomersByCompany(ctx, companyName)
		return err
	})
	return customers, err
}

func normalize(customer domain.BusinessUser) domain.BusinessUser {
	customer.CompanyName = strings.TrimSpace(customer.CompanyName)
	customer.ContactPerson = strings.TrimSpace(customer.ContactPerson)
	customer.Email = strings.TrimSpace(customer.Email)
	customer.Phone = strings.TrimSpace(customer.Phone)
	customer.ReferralCode = strings.TrimSpace(customer.ReferralCode)
	return customer
}
