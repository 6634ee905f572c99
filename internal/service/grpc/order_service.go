// Package grpcsvc публикует движок заказов как gRPC-сервис wholesale.v1.OrderService.
package grpcsvc

import (
	"context"
	"errors"

	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/vladislavdragonenkov/wholesale/internal/domain"
	"github.com/vladislavdragonenkov/wholesale/internal/service/idempotency"
	"github.com/vladislavdragonenkov/wholesale/internal/service/orders"
)

// OrderService реализует gRPC API поверх движка заказов.
type OrderService struct {
	engine *orders.Engine
	guard  *idempotency.Guard
	logger *log.Entry
}

// NewOrderService конструирует сервис. guard может быть nil: тогда idempotency-key игнорируется.
func NewOrderService(engine *orders.Engine, guard *idempotency.Guard, logger *log.Entry) *OrderService {
	if logger == nil {
		logger = log.WithField("component", "order-service")
	}
	return &OrderService{engine: engine, guard: guard, logger: logger}
}

// CreateOrder оформляет заказ. С metadata idempotency-key повтор получает сохранённый ответ.
func (s *OrderService) CreateOrder(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	return s.withIdempotency(ctx, methodCreateOrder, req, func(ctx context.Context) (*structpb.Struct, error) {
		var in createOrderRequest
		if err := decodeStruct(req, &in); err != nil {
			return nil, s.toStatus(err, methodCreateOrder)
		}
		order, err := s.engine.CreateOrder(ctx, in.toInput())
		if err != nil {
			return nil, s.toStatus(err, methodCreateOrder)
		}
		resp, err := s.loadOrder(ctx, order.ID, methodCreateOrder)
		if err != nil {
			return nil, committedError{err: err}
		}
		return resp, nil
	})
}

// GetOrder возвращает заказ с позициями и историей.
func (s *OrderService) GetOrder(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in orderIDRequest
	if err := decodeStruct(req, &in); err != nil {
		return nil, s.toStatus(err, methodGetOrder)
	}
	if in.OrderID == "" {
		return nil, status.Error(codes.InvalidArgument, "orderId is required")
	}
	return s.loadOrder(ctx, in.OrderID, methodGetOrder)
}

// UpdateOrder меняет поля заказа и сверяет позиции.
func (s *OrderService) UpdateOrder(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in updateOrderRequest
	if err := decodeStruct(req, &in); err != nil {
		return nil, s.toStatus(err, methodUpdateOrder)
	}
	if in.OrderID == "" {
		return nil, status.Error(codes.InvalidArgument, "orderId is required")
	}

	patch, changes := in.toPatch()
	if _, err := s.engine.UpdateOrder(ctx, in.OrderID, patch, changes); err != nil {
		return nil, s.toStatus(err, methodUpdateOrder)
	}
	return s.loadOrder(ctx, in.OrderID, methodUpdateOrder)
}

// DeleteOrder удаляет заказ вместе с позициями.
func (s *OrderService) DeleteOrder(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in orderIDRequest
	if err := decodeStruct(req, &in); err != nil {
		return nil, s.toStatus(err, methodDeleteOrder)
	}
	if in.OrderID == "" {
		return nil, status.Error(codes.InvalidArgument, "orderId is required")
	}
	if err := s.engine.DeleteOrder(ctx, in.OrderID); err != nil {
		return nil, s.toStatus(err, methodDeleteOrder)
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{}}, nil
}

// ListOrders возвращает все заказы или заказы компании, если задан companyName.
func (s *OrderService) ListOrders(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in listOrdersRequest
	if err := decodeStruct(req, &in); err != nil {
		return nil, s.toStatus(err, methodListOrders)
	}

	var (
		list []orders.OrderDetails
		err  error
	)
	if in.CompanyName != "" {
		list, err = s.engine.ListOrdersByCompany(ctx, in.CompanyName)
	} else {
		list, err = s.engine.ListOrders(ctx)
	}
	if err != nil {
		return nil, s.toStatus(err, methodListOrders)
	}

	view := orderListView{Orders: make([]orderView, 0, len(list))}
	for _, details := range list {
		view.Orders = append(view.Orders, newOrderView(details))
	}
	return s.encode(view, methodListOrders)
}

func (s *OrderService) loadOrder(ctx context.Context, orderID, method string) (*structpb.Struct, error) {
	details, err := s.engine.GetOrder(ctx, orderID)
	if err != nil {
		return nil, s.toStatus(err, method)
	}
	return s.encode(newOrderView(details), method)
}

func (s *OrderService) encode(v interface{}, method string) (*structpb.Struct, error) {
	out, err := encodeStruct(v)
	if err != nil {
		s.logger.WithError(err).WithField("method", method).Error("failed to encode response")
		return nil, status.Error(codes.Internal, "failed to encode response")
	}
	return out, nil
}

// toStatus переводит доменную ошибку в gRPC-статус. Внутренние ошибки логируются,
// клиент получает обезличенное сообщение.
func (s *OrderService) toStatus(err error, method string) error {
	if _, ok := status.FromError(err); ok {
		return err
	}

	switch {
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, domain.ErrValidation), errors.Is(err, domain.ErrTotalMismatch):
		return status.Error(codes.InvalidArgument, err.Error())
	case domain.IsNotFound(err):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, domain.ErrInsufficientStock),
		errors.Is(err, domain.ErrIllegalStatusTransition),
		errors.Is(err, domain.ErrHasExistingOrders):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, domain.ErrDuplicate):
		return status.Error(codes.AlreadyExists, err.Error())
	case errors.Is(err, domain.ErrConcurrentUpdate):
		s.logger.WithError(err).WithField("method", method).Warn("transaction aborted by concurrent update")
		return status.Error(codes.Aborted, domain.ErrConcurrentUpdate.Error())
	default:
		s.logger.WithError(err).WithField("method", method).Error("order service request failed")
		return status.Error(codes.Internal, "internal error")
	}
}

var _ OrderServiceServer = (*OrderService)(nil)
