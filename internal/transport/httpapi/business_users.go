package httpapi

import (
	"net/http"
	"regexp"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/vladislavdragonenkov/wholesale/internal/domain"
)

// phonePattern — допустимый формат телефона: до 15 цифр, опционально с + и кодом 1.
var phonePattern = regexp.MustCompile(`^\+?1?\d{9,15}$`)

func (h *Handler) listBusinessUsers(c echo.Context) error {
	customers, err := h.ledger.ListCustomers(c.Request().Context())
	if err != nil {
		return err
	}
	result := make([]businessUserResponse, 0, len(customers))
	for _, customer := range customers {
		result = append(result, toBusinessUserResponse(customer))
	}
	return c.JSON(http.StatusOK, result)
}

func (h *Handler) createBusinessUser(c echo.Context) error {
	var req businessUserRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	customer, err := h.ledger.CreateCustomer(c.Request().Context(), req.toDomain(""))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, toBusinessUserResponse(customer))
}

func (h *Handler) getBusinessUser(c echo.Context) error {
	customer, err := h.ledger.GetCustomer(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toBusinessUserResponse(customer))
}

func (h *Handler) updateBusinessUser(c echo.Context) error {
	var req businessUserRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	customer, err := h.ledger.UpdateCustomer(c.Request().Context(), req.toDomain(c.Param("id")))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toBusinessUserResponse(customer))
}

func (h *Handler) deleteBusinessUser(c echo.Context) error {
	if err := h.ledger.DeleteCustomer(c.Request().Context(), c.Param("id")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) lookupByPhone(c echo.Context) error {
	phone := strings.TrimSpace(c.QueryParam("phone"))
	if !phonePattern.MatchString(phone) {
		return domain.NewValidationError("phone", "must match +999999999 with 9 to 15 digits")
	}
	customer, err := h.ledger.FindByPhone(c.Request().Context(), phone)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, phoneLookupResponse{
		CompanyName:    customer.CompanyName,
		ContactPerson:  customer.ContactPerson,
		Phone:          customer.Phone,
		ReferralCode:   customer.ReferralCode,
		CashbackAmount: cashbackString(customer.CashbackAmount),
	})
}

// bind разбирает JSON-тело; ошибка разбора считается ошибкой валидации запроса.
func bind(c echo.Context, dst interface{}) error {
	if err := (&echo.DefaultBinder{}).BindBody(c, dst); err != nil {
		return domain.NewValidationError("body", "malformed JSON payload")
	}
	return nil
}
