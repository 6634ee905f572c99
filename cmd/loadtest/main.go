package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	grpcsvc "github.com/vladislavdragonenkov/wholesale/internal/service/grpc"
)

const scenarioMethod = "scenario"

type loadMode string

const (
	modeCreate       loadMode = "create"
	modeCreateUpdate loadMode = "create-update"
	modeCreateDelete loadMode = "create-delete"
)

type config struct {
	grpcAddr    string
	httpAddr    string
	total       int
	concurrency int
	connections int
	timeout     time.Duration
	mode        loadMode
	price       decimal.Decimal
	quantity    int32
	outputPath  string
}

// orderClient — методы gRPC-клиента, которые использует сценарий.
type orderClient interface {
	CreateOrder(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	UpdateOrder(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	DeleteOrder(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
}

func parseConfig(args []string) (config, error) {
	var (
		cfg      config
		mode     string
		price    string
		quantity int
	)

	fs := flag.NewFlagSet("loadtest", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&cfg.grpcAddr, "addr", "localhost:50051", "gRPC target address")
	fs.StringVar(&cfg.httpAddr, "http", "http://localhost:8080", "REST API base URL for seeding")
	fs.IntVar(&cfg.total, "total", 400, "total scenarios to execute")
	fs.IntVar(&cfg.concurrency, "concurrency", 40, "number of concurrent workers")
	fs.IntVar(&cfg.connections, "connections", 20, "number of gRPC client connections")
	fs.DurationVar(&cfg.timeout, "timeout", 5*time.Second, "per-RPC timeout")
	fs.StringVar(&mode, "mode", string(modeCreate), "load mode: create | create-update | create-delete")
	fs.StringVar(&price, "price", "10.00", "unit price of the seeded product")
	fs.IntVar(&quantity, "quantity", 1, "quantity per order")
	fs.StringVar(&cfg.outputPath, "output", "", "optional JSON report output file path")
	if err := fs.Parse(args); err != nil {
		return config{}, err
	}

	switch loadMode(strings.TrimSpace(mode)) {
	case modeCreate, modeCreateUpdate, modeCreateDelete:
		cfg.mode = loadMode(strings.TrimSpace(mode))
	default:
		return config{}, fmt.Errorf("unsupported mode: %s", mode)
	}

	parsedPrice, err := decimal.NewFromString(strings.TrimSpace(price))
	if err != nil || !parsedPrice.IsPositive() {
		return config{}, fmt.Errorf("price must be a positive decimal, got %q", price)
	}
	cfg.price = parsedPrice

	switch {
	case cfg.total <= 0:
		return config{}, errors.New("total must be > 0")
	case cfg.concurrency <= 0:
		return config{}, errors.New("concurrency must be > 0")
	case cfg.connections <= 0:
		return config{}, errors.New("connections must be > 0")
	case cfg.timeout <= 0:
		return config{}, errors.New("timeout must be > 0")
	case quantity <= 0:
		return config{}, errors.New("quantity must be > 0")
	}
	cfg.quantity = int32(quantity)
	return cfg, nil
}

func main() {
	cfg, err := parseConfig(os.Args[1:])
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	startedAt := time.Now()
	runID := fmt.Sprintf("%d-%d", startedAt.UnixNano(), os.Getpid())

	// Запас с избытком: update-сценарий докладывает ещё одну единицу в заказ.
	stock := int32(cfg.total) * (cfg.quantity + 1)
	seedCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	fx, err := seedFixture(seedCtx, &http.Client{Timeout: cfg.timeout}, cfg.httpAddr, runID, stock, cfg.price.StringFixed(2))
	cancel()
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "seed failed: %v\n", err)
		os.Exit(1)
	}

	clients := make([]orderClient, 0, cfg.connections)
	for i := 0; i < cfg.connections; i++ {
		conn, dialErr := grpc.NewClient(cfg.grpcAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
		if dialErr != nil {
			_, _ = fmt.Fprintf(os.Stderr, "failed to create grpc client connection: %v\n", dialErr)
			os.Exit(1)
		}
		defer conn.Close()
		clients = append(clients, grpcsvc.NewOrderServiceClient(conn))
	}

	col := newCollector()
	runScenarios(clients, cfg, fx, runID, col)

	result := col.buildReport(startedAt, time.Since(startedAt))
	result.Mode = string(cfg.mode)
	printReport(os.Stdout, result)
	if cfg.outputPath != "" {
		if err := writeJSONReport(cfg.outputPath, result); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "failed to write report: %v\n", err)
			os.Exit(1)
		}
	}
	if result.Failed > 0 {
		os.Exit(1)
	}
}

func runScenarios(clients []orderClient, cfg config, fx fixture, runID string, col *collector) {
	jobs := make(chan int, cfg.concurrency*2)
	var wg sync.WaitGroup
	for workerID := 0; workerID < cfg.concurrency; workerID++ {
		wg.Add(1)
		go func(client orderClient) {
			defer wg.Done()
			for index := range jobs {
				_ = runScenario(client, cfg, fx, index, runID, col)
			}
		}(clients[workerID%len(clients)])
	}

	for i := 0; i < cfg.total; i++ {
		jobs <- i
	}
	close(jobs)
	wg.Wait()
}

func runScenario(client orderClient, cfg config, fx fixture, index int, runID string, col *collector) (err error) {
	start := time.Now()
	defer func() { col.record(scenarioMethod, time.Since(start), status.Code(err)) }()

	lineTotal := cfg.price.Mul(decimal.NewFromInt32(cfg.quantity))
	createReq, err := structpb.NewStruct(map[string]any{
		"customerId":      fx.customerID,
		"totalPrice":      lineTotal.StringFixed(2),
		"shippingAddress": "loadtest shipping",
		"billingAddress":  "loadtest billing",
		"paymentTerms":    "Net 30",
		"orderType":       "Online",
		"lineItems": []any{map[string]any{
			"productId":      fx.productID,
			"quantity":       float64(cfg.quantity),
			"price":          cfg.price.StringFixed(2),
			"wholesalePrice": cfg.price.StringFixed(2),
		}},
	})
	if err != nil {
		return status.Error(codes.InvalidArgument, err.Error())
	}

	created, err := call(col, "CreateOrder", cfg.timeout, fmt.Sprintf("lt-create-%s-%d", runID, index), func(ctx context.Context) (*structpb.Struct, error) {
		return client.CreateOrder(ctx, createReq)
	})
	if err != nil {
		return err
	}
	orderID := created.GetFields()["id"].GetStringValue()
	if orderID == "" {
		return status.Error(codes.Internal, "create response returned empty order id")
	}

	switch cfg.mode {
	case modeCreateUpdate:
		updateReq, _ := structpb.NewStruct(map[string]any{
			"orderId": orderID,
			"status":  "Processing",
		})
		_, err = call(col, "UpdateOrder", cfg.timeout, "", func(ctx context.Context) (*structpb.Struct, error) {
			return client.UpdateOrder(ctx, updateReq)
		})
	case modeCreateDelete:
		deleteReq, _ := structpb.NewStruct(map[string]any{"orderId": orderID})
		_, err = call(col, "DeleteOrder", cfg.timeout, "", func(ctx context.Context) (*structpb.Struct, error) {
			return client.DeleteOrder(ctx, deleteReq)
		})
	}
	return err
}

func call(col *collector, method string, timeout time.Duration, idempotencyKey string, fn func(ctx context.Context) (*structpb.Struct, error)) (*structpb.Struct, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if idempotencyKey != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, grpcsvc.IdempotencyKeyHeader, idempotencyKey)
	}

	start := time.Now()
	resp, err := fn(ctx)
	col.record(method, time.Since(start), status.Code(err))
	return resp, err
}
