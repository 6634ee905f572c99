package grpcsvc

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/vladislavdragonenkov/wholesale/internal/domain"
	"github.com/vladislavdragonenkov/wholesale/internal/service/idempotency"
)

// IdempotencyKeyHeader — ключ metadata с ключом идемпотентности.
const IdempotencyKeyHeader = "idempotency-key"

// committedError — ошибка после фиксации транзакции. Ключ с такой ошибкой
// не освобождается: повтор не должен выполнить запрос второй раз.
type committedError struct {
	err error
}

func (e committedError) Error() string { return e.err.Error() }

func (e committedError) Unwrap() error { return e.err }

func (e committedError) GRPCStatus() *status.Status { return status.Convert(e.err) }

type idempotencyErrorPayload struct {
	Code    int32  `json:"code"`
	Message string `json:"message"`
}

func (s *OrderService) withIdempotency(
	ctx context.Context,
	method string,
	req *structpb.Struct,
	handler func(context.Context) (*structpb.Struct, error),
) (*structpb.Struct, error) {
	key := readIdempotencyKey(ctx)
	if s.guard == nil || key == "" {
		return handler(ctx)
	}

	reqHash, err := buildRequestHash(method, req)
	if err != nil {
		s.logger.WithError(err).WithField("method", method).Warn("failed to build idempotency request hash")
		return nil, status.Error(codes.Internal, "failed to initialize idempotency request")
	}

	record, replay, err := s.guard.Begin(ctx, key, reqHash)
	switch {
	case errors.Is(err, domain.ErrIdempotencyHashMismatch):
		return nil, status.Error(codes.AlreadyExists, "idempotency key is already used with different request payload")
	case errors.Is(err, domain.ErrIdempotencyKeyAlreadyExists):
		return nil, status.Error(codes.Aborted, "request with the same idempotency key is already processing")
	case err != nil:
		s.logger.WithError(err).WithField("method", method).Warn("failed to create idempotency record")
		return nil, status.Error(codes.Internal, "failed to initialize idempotency request")
	case replay:
		return s.replay(record)
	}

	resp, runErr := handler(ctx)
	if runErr != nil {
		var committed committedError
		if errors.As(runErr, &committed) {
			s.storeFailure(ctx, key, committed.err)
			return nil, committed.err
		}
		s.cacheFailure(ctx, key, runErr)
		return nil, runErr
	}

	data, err := protojson.Marshal(resp)
	if err != nil {
		s.logger.WithError(err).WithField("idempotency_key", key).Warn("failed to encode idempotent success response")
		return resp, nil
	}
	s.guard.Complete(ctx, key, data, int(codes.OK))
	return resp, nil
}

func (s *OrderService) replay(record domain.IdempotencyRecord) (*structpb.Struct, error) {
	if record.Status == domain.IdempotencyStatusFailed {
		return nil, decodeFailure(record)
	}
	if len(record.ResponseBody) == 0 {
		return nil, status.Error(codes.Internal, "idempotency cache is empty")
	}
	resp := new(structpb.Struct)
	if err := protojson.Unmarshal(record.ResponseBody, resp); err != nil {
		s.logger.WithError(err).WithField("idempotency_key", record.Key).Warn("failed to decode cached idempotency response")
		return nil, status.Error(codes.Internal, "failed to decode cached idempotency response")
	}
	return resp, nil
}

// cacheFailure сохраняет отказ по бизнес-правилам. Сбой на стороне сервера
// освобождает ключ, чтобы повтор выполнил запрос заново.
func (s *OrderService) cacheFailure(ctx context.Context, key string, runErr error) {
	st := status.Convert(runErr)
	code := st.Code()
	if code == codes.OK || transientCode(code) {
		s.guard.Release(ctx, key)
		return
	}
	s.storeFailure(ctx, key, runErr)
}

// storeFailure сохраняет ошибку под ключом, чтобы повтор получил тот же ответ.
func (s *OrderService) storeFailure(ctx context.Context, key string, runErr error) {
	st := status.Convert(runErr)
	code := st.Code()
	if code == codes.OK {
		code = codes.Internal
	}

	payload, err := json.Marshal(idempotencyErrorPayload{
		Code:    int32(code), //nolint:gosec // codes.Code is a bounded enum value.
		Message: st.Message(),
	})
	if err != nil {
		s.logger.WithError(err).WithField("idempotency_key", key).Warn("failed to encode idempotency failure payload")
		payload = nil
	}
	s.guard.Fail(ctx, key, payload, int(code))
}

func transientCode(code codes.Code) bool {
	switch code {
	case codes.Internal, codes.Unknown, codes.Unavailable, codes.DataLoss,
		codes.DeadlineExceeded, codes.Canceled, codes.ResourceExhausted, codes.Aborted:
		return true
	default:
		return false
	}
}

func decodeFailure(record domain.IdempotencyRecord) error {
	const fallback = "previous request with the same idempotency key failed"

	var payload idempotencyErrorPayload
	if len(record.ResponseBody) > 0 && json.Unmarshal(record.ResponseBody, &payload) == nil {
		if code, ok := grpcCode(int(payload.Code)); ok && code != codes.OK {
			if payload.Message == "" {
				payload.Message = fallback
			}
			return status.Error(code, payload.Message)
		}
	}
	if code, ok := grpcCode(record.HTTPStatus); ok && code != codes.OK {
		return status.Error(code, fallback)
	}
	return status.Error(codes.Internal, fallback)
}

func grpcCode(value int) (codes.Code, bool) {
	if value < int(codes.OK) || value > int(codes.Unauthenticated) {
		return codes.Internal, false
	}
	return codes.Code(uint32(value)), true //nolint:gosec // range checked above.
}

func readIdempotencyKey(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	if values := md.Get(IdempotencyKeyHeader); len(values) > 0 {
		return strings.TrimSpace(values[0])
	}
	return ""
}

func buildRequestHash(method string, req proto.Message) (string, error) {
	data, err := proto.MarshalOptions{Deterministic: true}.Marshal(req)
	if err != nil {
		return "", err
	}
	return idempotency.HashRequest(fullMethodName(method), data), nil
}
