package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/vladislavdragonenkov/wholesale/internal/domain"
	"github.com/vladislavdragonenkov/wholesale/internal/service/idempotency"
)

// replayedHeader помечает ответ, взятый из кэша идемпотентности.
const replayedHeader = "Idempotent-Replayed"

func (h *Handler) listOrders(c echo.Context) error {
	list, err := h.orders.ListOrders(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toOrderResponses(list))
}

func (h *Handler) ordersByCompany(c echo.Context) error {
	list, err := h.orders.ListOrdersByCompany(c.Request().Context(), c.QueryParam("company_name"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toOrderResponses(list))
}

func (h *Handler) getOrder(c echo.Context) error {
	details, err := h.orders.GetOrder(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toOrderResponse(details))
}

// createOrder оформляет заказ. С заголовком Idempotency-Key повтор того же запроса
// получает сохранённый ответ, и кэшбэк со списанием остатков не выполняются повторно.
func (h *Handler) createOrder(c echo.Context) error {
	ctx := c.Request().Context()

	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return domain.NewValidationError("body", "cannot read request body")
	}
	var req createOrderRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return domain.NewValidationError("body", "malformed JSON payload")
	}

	key := strings.TrimSpace(c.Request().Header.Get(IdempotencyHeader))
	if key == "" || h.guard == nil {
		resp, _, err := h.placeOrder(ctx, req)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusCreated, resp)
	}

	record, replay, err := h.guard.Begin(ctx, key, idempotency.HashRequest("POST /api/orders", body))
	if err != nil {
		return err
	}
	if replay {
		c.Response().Header().Set(replayedHeader, "true")
		return c.JSONBlob(record.HTTPStatus, record.ResponseBody)
	}

	resp, committed, err := h.placeOrder(ctx, req)
	if err != nil {
		status, errBody := renderError(err)
		if status >= http.StatusInternalServerError && !committed {
			h.guard.Release(ctx, key)
			return err
		}
		if payload, marshalErr := json.Marshal(errBody); marshalErr == nil {
			h.guard.Fail(ctx, key, payload, status)
		} else {
			h.guard.Release(ctx, key)
		}
		return err
	}

	payload, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	h.guard.Complete(ctx, key, payload, http.StatusCreated)
	return c.JSONBlob(http.StatusCreated, payload)
}

// placeOrder оформляет заказ и читает его карточку. committed сообщает, что заказ
// уже сохранён, даже если чтение карточки не удалось.
func (h *Handler) placeOrder(ctx context.Context, req createOrderRequest) (resp orderResponse, committed bool, err error) {
	order, err := h.orders.CreateOrder(ctx, req.toInput())
	if err != nil {
		return orderResponse{}, false, err
	}
	details, err := h.orders.GetOrder(ctx, order.ID)
	if err != nil {
		return orderResponse{}, true, err
	}
	return toOrderResponse(details), true, nil
}

func (h *Handler) updateOrder(c echo.Context) error {
	var req updateOrderRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	ctx := c.Request().Context()
	patch, changes := req.toPatch()
	order, err := h.orders.UpdateOrder(ctx, c.Param("id"), patch, changes)
	if err != nil {
		return err
	}
	details, err := h.orders.GetOrder(ctx, order.ID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toOrderResponse(details))
}

func (h *Handler) deleteOrder(c echo.Context) error {
	if err := h.orders.DeleteOrder(c.Request().Context(), c.Param("id")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}
