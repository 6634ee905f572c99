// Package httpapi публикует каталог, клиентов и заказы через REST API на echo.
package httpapi

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/vladislavdragonenkov/wholesale/internal/service/catalog"
	"github.com/vladislavdragonenkov/wholesale/internal/service/idempotency"
	"github.com/vladislavdragonenkov/wholesale/internal/service/ledger"
	"github.com/vladislavdragonenkov/wholesale/internal/service/orders"
)

// IdempotencyHeader — заголовок с ключом идемпотентности для POST /api/orders.
const IdempotencyHeader = "Idempotency-Key"

// Services — прикладные сервисы, которые обслуживает API.
type Services struct {
	Catalog *catalog.Service
	Ledger  *ledger.Service
	Orders  *orders.Engine
	// Guard может быть nil: тогда Idempotency-Key игнорируется.
	Guard *idempotency.Guard
}

// Config задаёт параметры HTTP-слоя.
type Config struct {
	// RateLimitRPS ограничивает число запросов в секунду с одного IP; 0 отключает лимит.
	RateLimitRPS float64
	Logger       *log.Entry
}

// Handler содержит обработчики REST API.
type Handler struct {
	catalog *catalog.Service
	ledger  *ledger.Service
	orders  *orders.Engine
	guard   *idempotency.Guard
	logger  *log.Entry
}

// NewServer собирает echo с middleware и маршрутами /api.
func NewServer(services Services, cfg Config) *echo.Echo {
	logger := cfg.Logger
	if logger == nil {
		logger = log.WithField("component", "http-api")
	}
	h := &Handler{
		catalog: services.Catalog,
		ledger:  services.Ledger,
		orders:  services.Orders,
		guard:   services.Guard,
		logger:  logger,
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = h.handleError

	e.Use(middleware.Recover())
	e.Use(requestLogger(logger))
	if cfg.RateLimitRPS > 0 {
		e.Use(rateLimiter(cfg.RateLimitRPS))
	}

	h.Register(e.Group("/api"))
	return e
}

// Register добавляет маршруты API в группу.
func (h *Handler) Register(api *echo.Group) {
	users := api.Group("/business_users")
	users.GET("", h.listBusinessUsers)
	users.POST("", h.createBusinessUser)
	users.GET("/lookup", h.lookupByPhone)
	users.GET("/:id", h.getBusinessUser)
	users.PUT("/:id", h.updateBusinessUser)
	users.DELETE("/:id", h.deleteBusinessUser)

	categories := api.Group("/categories")
	categories.GET("", h.listCategories)
	categories.POST("", h.createCategory)
	categories.GET("/:id", h.getCategory)
	categories.PUT("/:id", h.updateCategory)
	categories.DELETE("/:id", h.deleteCategory)

	products := api.Group("/products")
	products.GET("", h.listProducts)
	products.POST("", h.createProduct)
	products.GET("/:id", h.getProduct)
	products.PUT("/:id", h.updateProduct)
	products.DELETE("/:id", h.deleteProduct)

	offers := api.Group("/offers")
	offers.GET("", h.listOffers)
	offers.POST("", h.createOffer)
	offers.GET("/:id", h.getOffer)
	offers.PUT("/:id", h.updateOffer)
	offers.DELETE("/:id", h.deleteOffer)

	orderRoutes := api.Group("/orders")
	orderRoutes.GET("", h.listOrders)
	orderRoutes.POST("", h.createOrder)
	orderRoutes.GET("/by_company", h.ordersByCompany)
	orderRoutes.GET("/:id", h.getOrder)
	orderRoutes.PUT("/:id", h.updateOrder)
	orderRoutes.PATCH("/:id", h.updateOrder)
	orderRoutes.DELETE("/:id", h.deleteOrder)
}

func requestLogger(logger *log.Entry) echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRemoteIP:  true,
		LogError:     true,
		HandleError:  true,
		LogRequestID: true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			entry := logger.WithFields(log.Fields{
				"method":     v.Method,
				"uri":        v.URI,
				"status":     v.Status,
				"latency_ms": v.Latency.Milliseconds(),
				"remote_ip":  v.RemoteIP,
			})
			switch {
			case v.Status >= http.StatusInternalServerError:
				entry.WithError(v.Error).Error("http request failed")
			case v.Error != nil:
				entry.WithError(v.Error).Info("http request rejected")
			default:
				entry.Debug("http request")
			}
			return nil
		},
	})
}

func rateLimiter(rps float64) echo.MiddlewareFunc {
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Store: middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
			Rate:      rate.Limit(rps),
			Burst:     burst,
			ExpiresIn: 3 * time.Minute,
		}),
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
		ErrorHandler: func(c echo.Context, err error) error {
			return c.JSON(http.StatusForbidden, errorResponse{Error: "forbidden", Message: err.Error()})
		},
		DenyHandler: func(c echo.Context, _ string, _ error) error {
			return c.JSON(http.StatusTooManyRequests, errorResponse{Error: "rate_limited", Message: "too many requests"})
		},
	})
}
