package grpcsvc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName — полное имя gRPC-сервиса заказов.
const ServiceName = "wholesale.v1.OrderService"

const (
	methodCreateOrder = "CreateOrder"
	methodGetOrder    = "GetOrder"
	methodUpdateOrder = "UpdateOrder"
	methodDeleteOrder = "DeleteOrder"
	methodListOrders  = "ListOrders"
)

// OrderServiceServer — серверная сторона wholesale.v1.OrderService.
// Запросы и ответы передаются как google.protobuf.Struct с полями в lowerCamelCase.
type OrderServiceServer interface {
	CreateOrder(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	GetOrder(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	UpdateOrder(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	DeleteOrder(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	ListOrders(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

type unaryCall func(srv OrderServiceServer, ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)

func unaryMethod(name string, call unaryCall) grpc.MethodDesc {
	fullMethod := fullMethodName(name)
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(OrderServiceServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			return interceptor(ctx, in, info, func(ctx context.Context, req interface{}) (interface{}, error) {
				return call(srv.(OrderServiceServer), ctx, req.(*structpb.Struct))
			})
		},
	}
}

func fullMethodName(method string) string {
	return "/" + ServiceName + "/" + method
}

// OrderServiceDesc описывает сервис для grpc.Server.RegisterService.
var OrderServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*OrderServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryMethod(methodCreateOrder, OrderServiceServer.CreateOrder),
		unaryMethod(methodGetOrder, OrderServiceServer.GetOrder),
		unaryMethod(methodUpdateOrder, OrderServiceServer.UpdateOrder),
		unaryMethod(methodDeleteOrder, OrderServiceServer.DeleteOrder),
		unaryMethod(methodListOrders, OrderServiceServer.ListOrders),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "wholesale/v1/order_service.proto",
}

// RegisterOrderServiceServer регистрирует реализацию на gRPC-сервере.
func RegisterOrderServiceServer(s grpc.ServiceRegistrar, srv OrderServiceServer) {
	s.RegisterService(&OrderServiceDesc, srv)
}

// OrderServiceClient — клиент wholesale.v1.OrderService.
type OrderServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewOrderServiceClient создаёт клиента поверх соединения.
func NewOrderServiceClient(cc grpc.ClientConnInterface) *OrderServiceClient {
	return &OrderServiceClient{cc: cc}
}

func (c *OrderServiceClient) invoke(ctx context.Context, method string, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, fullMethodName(method), in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *OrderServiceClient) CreateOrder(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, methodCreateOrder, in, opts...)
}

func (c *OrderServiceClient) GetOrder(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, methodGetOrder, in, opts...)
}

func (c *OrderServiceClient) UpdateOrder(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, methodUpdateOrder, in, opts...)
}

func (c *OrderServiceClient) DeleteOrder(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, methodDeleteOrder, in, opts...)
}

func (c *OrderServiceClient) ListOrders(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, methodListOrders, in, opts...)
}
