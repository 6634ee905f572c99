package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	// CashbackReferralCode — единственный реферальный код, дающий кэшбэк.
	CashbackReferralCode = "leafcoin"
)

// CashbackRate — доля суммы заказа, начисляемая по реферальному коду.
var CashbackRate = decimal.RequireFromString("0.05")

// BusinessUser — оптовый клиент (компания).
type BusinessUser struct {
	ID             string
	CompanyName    string
	ContactPerson  string
	Email          string
	Phone          string
	Address        string
	UploadedFile   string
	ReferralCode   string
	CashbackAmount decimal.Decimal
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// EligibleForCashback сообщает, начисляется ли клиенту кэшбэк.
func (u BusinessUser) EligibleForCashback() bool {
	return u.ReferralCode == CashbackReferralCode
}

// CashbackFor возвращает кэшбэк для суммы заказа: ровно 5%, без округления.
// Для клиентов без реферального кода результат нулевой.
func (u BusinessUser) CashbackFor(orderTotal decimal.Decimal) decimal.Decimal {
	if !u.EligibleForCashback() || !orderTotal.IsPositive() {
		return decimal.Zero
	}
	return orderTotal.Mul(CashbackRate)
}

// Validate проверяет обязательные поля клиента.
func (u BusinessUser) Validate() error {
	switch {
	case strings.TrimSpace(u.CompanyName) == "":
		return NewValidationError("company_name", "is required")
	case strings.TrimSpace(u.ContactPerson) == "":
		return NewValidationError("contact_person", "is required")
	case strings.TrimSpace(u.Email) == "" || !strings.Contains(u.Email, "@"):
		return NewValidationError("email", "must be a valid email address")
	case strings.TrimSpace(u.Phone) == "":
		return NewValidationError("phone", "is required")
	case u.CashbackAmount.IsNegative():
		return NewValidationError("cashback_amount", "must not be negative")
	}
	return nil
}
