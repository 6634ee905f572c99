package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/wholesale/internal/domain"
)

const customerColumns = `id, company_name, contact_person, email, phone, address, uploaded_file,
	referral_code, cashback_amount, created_at, updated_at`

type customerRepo struct{ tx *pgTx }

func (r customerRepo) CreateCustomer(ctx context.Context, customer domain.BusinessUser) (domain.BusinessUser, error) {
	if customer.ID == "" {
		customer.ID = uuid.NewString()
	}
	now := nowUTC()
	customer.CreatedAt, customer.UpdatedAt = now, now

	_, err := r.tx.q.ExecContext(ctx, `
		INSERT INTO business_users (`+customerColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`,
		customer.ID, customer.CompanyName, customer.ContactPerson, customer.Email, customer.Phone,
		customer.Address, customer.UploadedFile, customer.ReferralCode, customer.CashbackAmount,
		customer.CreatedAt, customer.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.BusinessUser{}, domain.ErrDuplicate
		}
		return domain.BusinessUser{}, fmt.Errorf("insert business user: %w", err)
	}
	return customer, nil
}

func (r customerRepo) GetCustomer(ctx context.Context, id string) (domain.BusinessUser, error) {
	return r.getOne(ctx, `SELECT `+customerColumns+` FROM business_users WHERE id = $1`, id)
}

func (r customerRepo) ListCustomers(ctx context.Context) ([]domain.BusinessUser, error) {
	return r.list(ctx, `SELECT `+customerColumns+` FROM business_users ORDER BY created_at, id`)
}

// FindCustomerByPhone возвращает самого раннего клиента с этим телефоном.
func (r customerRepo) FindCustomerByPhone(ctx context.Context, phone string) (domain.BusinessUser, error) {
	return r.getOne(ctx, `
		SELECT `+customerColumns+`
		FROM business_users
		WHERE phone = $1
		ORDER BY created_at, id
		LIMIT 1
	`, phone)
}

func (r customerRepo) FindCustomersByCompany(ctx context.Context, companyName string) ([]domain.BusinessUser, error) {
	return r.list(ctx, `
		SELECT `+customerColumns+`
		FROM business_users
		WHERE company_name = $1
		ORDER BY created_at, id
	`, companyName)
}

// UpdateCustomer не трогает cashback_amount: баланс меняет только AddCashback.
func (r customerRepo) UpdateCustomer(ctx context.Context, customer domain.BusinessUser) (domain.BusinessUser, error) {
	res, err := r.tx.q.ExecContext(ctx, `
		UPDATE business_users
		SET company_name = $2,
		    contact_person = $3,
		    email = $4,
		    phone = $5,
		    address = $6,
		    uploaded_file = $7,
		    referral_code = $8,
		    updated_at = $9
		WHERE id = $1
	`,
		customer.ID, customer.CompanyName, customer.ContactPerson, customer.Email, customer.Phone,
		customer.Address, customer.UploadedFile, customer.ReferralCode, nowUTC(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.BusinessUser{}, domain.ErrDuplicate
		}
		return domain.BusinessUser{}, fmt.Errorf("update business user: %w", err)
	}
	if err := affectedOne(res, domain.ErrCustomerNotFound); err != nil {
		return domain.BusinessUser{}, err
	}
	return r.GetCustomer(ctx, customer.ID)
}

// AddCashback увеличивает баланс одним UPDATE, без чтения-изменения-записи в приложении.
func (r customerRepo) AddCashback(ctx context.Context, id string, amount decimal.Decimal) (domain.BusinessUser, error) {
	customer, err := r.getOne(ctx, `
		UPDATE business_users
		SET cashback_amount = cashback_amount + $2,
		    updated_at = $3
		WHERE id = $1
		RETURNING `+customerColumns,
		id, amount, nowUTC(),
	)
	if err != nil {
		return domain.BusinessUser{}, err
	}
	return customer, nil
}

// DeleteCustomer отказывает при наличии заказов. FK с ON DELETE RESTRICT страхует от гонки с новым заказом.
func (r customerRepo) DeleteCustomer(ctx context.Context, id string) error {
	var hasOrders bool
	if err := r.tx.q.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM orders WHERE business_user_id = $1)
	`, id).Scan(&hasOrders); err != nil {
		return fmt.Errorf("check business user orders: %w", err)
	}
	if hasOrders {
		return domain.ErrHasExistingOrders
	}

	res, err := r.tx.q.ExecContext(ctx, `DELETE FROM business_users WHERE id = $1`, id)
	if err != nil {
		if isForeignKeyViolation(err) {
			return domain.ErrHasExistingOrders
		}
		return fmt.Errorf("delete business user: %w", err)
	}
	return affectedOne(res, domain.ErrCustomerNotFound)
}

func (r customerRepo) getOne(ctx context.Context, query string, args ...any) (domain.BusinessUser, error) {
	customer, err := scanCustomer(r.tx.q.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.BusinessUser{}, domain.ErrCustomerNotFound
	}
	if err != nil {
		return domain.BusinessUser{}, fmt.Errorf("query business user: %w", err)
	}
	return customer, nil
}

func (r customerRepo) list(ctx context.Context, query string, args ...any) ([]domain.BusinessUser, error) {
	rows, err := r.tx.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list business users: %w", err)
	}
	defer rows.Close()

	result := make([]domain.BusinessUser, 0)
	for rows.Next() {
		customer, err := scanCustomer(rows)
		if err != nil {
			return nil, fmt.Errorf("scan business user: %w", err)
		}
		result = append(result, customer)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate business users: %w", err)
	}
	return result, nil
}

func scanCustomer(row rowScanner) (domain.BusinessUser, error) {
	var c domain.BusinessUser
	err := row.Scan(
		&c.ID, &c.CompanyName, &c.ContactPerson, &c.Email, &c.Phone, &c.Address,
		&c.UploadedFile, &c.ReferralCode, &c.CashbackAmount, &c.CreatedAt, &c.UpdatedAt,
	)
	return c, err
}

var _ domain.CustomerRepository = customerRepo{}
