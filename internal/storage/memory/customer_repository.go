package memory

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/wholesale/internal/domain"
)

type customerRepo struct{ tx *memTx }

func (r customerRepo) CreateCustomer(_ context.Context, customer domain.BusinessUser) (domain.BusinessUser, error) {
	if err := r.tx.writable(); err != nil {
		return domain.BusinessUser{}, err
	}
	if r.emailTaken(customer.Email, "") {
		return domain.BusinessUser{}, domain.ErrDuplicate
	}
	if customer.ID == "" {
		customer.ID = uuid.NewString()
	}
	if _, exists := r.tx.st.customers[customer.ID]; exists {
		return domain.BusinessUser{}, domain.ErrDuplicate
	}
	now := r.tx.now()
	customer.CreatedAt = now
	customer.UpdatedAt = now
	r.tx.st.customers[customer.ID] = customer
	return customer, nil
}

func (r customerRepo) GetCustomer(_ context.Context, id string) (domain.BusinessUser, error) {
	customer, ok := r.tx.st.customers[id]
	if !ok {
		return domain.BusinessUser{}, domain.ErrCustomerNotFound
	}
	return customer, nil
}

func (r customerRepo) ListCustomers(context.Context) ([]domain.BusinessUser, error) {
	return r.filter(func(domain.BusinessUser) bool { return true }), nil
}

// FindCustomerByPhone возвращает самого раннего клиента с этим телефоном.
func (r customerRepo) FindCustomerByPhone(_ context.Context, phone string) (domain.BusinessUser, error) {
	matches := r.filter(func(c domain.BusinessUser) bool { return c.Phone == phone })
	if len(matches) == 0 {
		return domain.BusinessUser{}, domain.ErrCustomerNotFound
	}
	return matches[0], nil
}

func (r customerRepo) FindCustomersByCompany(_ context.Context, companyName string) ([]domain.BusinessUser, error) {
	return r.filter(func(c domain.BusinessUser) bool { return c.CompanyName == companyName }), nil
}

func (r customerRepo) UpdateCustomer(_ context.Context, customer domain.BusinessUser) (domain.BusinessUser, error) {
	if err := r.tx.writable(); err != nil {
		return domain.BusinessUser{}, err
	}
	current, ok := r.tx.st.customers[customer.ID]
	if !ok {
		return domain.BusinessUser{}, domain.ErrCustomerNotFound
	}
	if r.emailTaken(customer.Email, customer.ID) {
		return domain.BusinessUser{}, domain.ErrDuplicate
	}
	customer.CashbackAmount = current.CashbackAmount
	customer.CreatedAt = current.CreatedAt
	customer.UpdatedAt = r.tx.now()
	r.tx.st.customers[customer.ID] = customer
	return customer, nil
}

func (r customerRepo) AddCashback(_ context.Context, id string, amount decimal.Decimal) (domain.BusinessUser, error) {
	if err := r.tx.writable(); err != nil {
		return domain.BusinessUser{}, err
	}
	customer, ok := r.tx.st.customers[id]
	if !ok {
		return domain.BusinessUser{}, domain.ErrCustomerNotFound
	}
	customer.CashbackAmount = customer.CashbackAmount.Add(amount)
	customer.UpdatedAt = r.tx.now()
	r.tx.st.customers[id] = customer
	return customer, nil
}

// DeleteCustomer отказывает, пока у клиента есть заказы.
func (r customerRepo) DeleteCustomer(_ context.Context, id string) error {
	if err := r.tx.writable(); err != nil {
		return err
	}
	if _, ok := r.tx.st.customers[id]; !ok {
		return domain.ErrCustomerNotFound
	}
	for _, order := range r.tx.st.orders {
		if order.CustomerID == id {
			return domain.ErrHasExistingOrders
		}
	}
	delete(r.tx.st.customers, id)
	return nil
}

func (r customerRepo) emailTaken(email, exceptID string) bool {
	for id, customer := range r.tx.st.customers {
		if id != exceptID && customer.Email == email {
			return true
		}
	}
	return false
}

func (r customerRepo) filter(keep func(domain.BusinessUser) bool) []domain.BusinessUser {
	result := make([]domain.BusinessUser, 0)
	for _, customer := range r.tx.st.customers {
		if keep(customer) {
			result = append(result, customer)
		}
	}
	sortByCreated(result,
		func(c domain.BusinessUser) time.Time { return c.CreatedAt },
		func(c domain.BusinessUser) string { return c.ID })
	return result
}

var _ domain.CustomerRepository = customerRepo{}
