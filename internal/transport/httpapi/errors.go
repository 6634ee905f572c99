package httpapi

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/wholesale/internal/domain"
)

// errorResponse — тело ответа с ошибкой. Поля контекста заполняются, чтобы клиент мог
// повторить запрос с исправленными данными.
type errorResponse struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	Field     string `json:"field,omitempty"`
	ProductID string `json:"product_id,omitempty"`
	Requested *int32 `json:"requested,omitempty"`
	Available *int32 `json:"available,omitempty"`
	Declared  string `json:"declared_total,omitempty"`
	Computed  string `json:"computed_total,omitempty"`
}

// renderError переводит ошибку сервисного слоя в HTTP-статус и тело ответа.
func renderError(err error) (int, errorResponse) {
	var (
		httpErr    *echo.HTTPError
		validation *domain.ValidationError
		stock      *domain.InsufficientStockError
		mismatch   *domain.TotalMismatchError
	)

	switch {
	case errors.As(err, &httpErr):
		return httpErr.Code, errorResponse{Error: codeFor(httpErr.Code), Message: fmt.Sprint(httpErr.Message)}
	case errors.As(err, &validation):
		return http.StatusBadRequest, errorResponse{Error: "validation_error", Message: validation.Error(), Field: validation.Field}
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest, errorResponse{Error: "validation_error", Message: err.Error()}
	case errors.As(err, &stock):
		return http.StatusConflict, errorResponse{
			Error:     "insufficient_stock",
			Message:   stock.Error(),
			ProductID: stock.ProductID,
			Requested: &stock.Requested,
			Available: &stock.Available,
		}
	case errors.As(err, &mismatch):
		return http.StatusUnprocessableEntity, errorResponse{
			Error:    "total_mismatch",
			Message:  mismatch.Error(),
			Declared: mismatch.Declared.StringFixed(2),
			Computed: mismatch.Computed.StringFixed(2),
		}
	case domain.IsNotFound(err):
		return http.StatusNotFound, errorResponse{Error: "not_found", Message: err.Error()}
	case errors.Is(err, domain.ErrHasExistingOrders):
		return http.StatusConflict, errorResponse{Error: "has_existing_orders", Message: err.Error()}
	case errors.Is(err, domain.ErrIllegalStatusTransition):
		return http.StatusConflict, errorResponse{Error: "illegal_status_transition", Message: err.Error()}
	case errors.Is(err, domain.ErrDuplicate):
		return http.StatusConflict, errorResponse{Error: "duplicate", Message: err.Error()}
	case errors.Is(err, domain.ErrIdempotencyHashMismatch):
		return http.StatusConflict, errorResponse{Error: "idempotency_key_reused", Message: err.Error()}
	case errors.Is(err, domain.ErrIdempotencyKeyAlreadyExists):
		return http.StatusConflict, errorResponse{Error: "request_in_progress", Message: err.Error()}
	case errors.Is(err, domain.ErrConcurrentUpdate):
		return http.StatusServiceUnavailable, errorResponse{Error: "concurrent_update", Message: domain.ErrConcurrentUpdate.Error()}
	default:
		return http.StatusInternalServerError, errorResponse{Error: "internal_error", Message: "internal server error"}
	}
}

func codeFor(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusMethodNotAllowed:
		return "method_not_allowed"
	case http.StatusTooManyRequests:
		return "rate_limited"
	default:
		return "http_error"
	}
}

// handleError — echo.HTTPErrorHandler: доменные ошибки получают свои статусы,
// подробности внутренних ошибок остаются только в логе.
func (h *Handler) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status, body := renderError(err)
	if status >= http.StatusInternalServerError {
		h.logger.WithError(err).WithFields(log.Fields{
			"method": c.Request().Method,
			"path":   c.Path(),
		}).Error("request failed")
	}

	if c.Request().Method == http.MethodHead {
		err = c.NoContent(status)
	} else {
		err = c.JSON(status, body)
	}
	if err != nil {
		h.logger.WithError(err).Warn("failed to write error response")
	}
}
