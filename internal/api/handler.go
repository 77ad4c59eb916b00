package api

import (
	"context"
	"net/http"
	"sort"
	"strconv"
	"time"

	"basket-order-service/internal/apperr"
	"basket-order-service/internal/models"
	"basket-order-service/internal/service"
	"basket-order-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const requestIDHeader = "X-Request-ID"

type OrderPlacer interface {
	PlaceOrder(ctx context.Context, req *service.CreateOrderRequest) (*service.CreateOrderResponse, error)
}

type CustomerResolver interface {
	Resolve(ctx context.Context, contact models.Contact) (int64, error)
}

type SubscriptionCreator interface {
	Create(ctx context.Context, req *service.CreateSubscriptionRequest) (*models.Subscription, error)
}

type LoyaltyRegistrar interface {
	Register(ctx context.Context, contact models.Contact, programID int64) (*service.RegistrationResult, error)
}

type Catalog interface {
	ListWeeklyProducts(ctx context.Context) ([]models.Product, error)
	ListBaskets(ctx context.Context) ([]models.Basket, error)
}

// ReadinessCheck reports whether a dependency can serve requests
type ReadinessCheck func(ctx context.Context) error

// Services groups the operations exposed over HTTP
type Services struct {
	Orders           OrderPlacer
	Customers        CustomerResolver
	Subscriptions    SubscriptionCreator
	Loyalty          LoyaltyRegistrar
	Catalog          Catalog
	LoyaltyProgramID int64
}

// Handler contains HTTP handlers
type Handler struct {
	svc    Services
	checks map[string]ReadinessCheck
	logger *zap.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(svc Services, checks map[string]ReadinessCheck) *Handler {
	return &Handler{
		svc:    svc,
		checks: checks,
		logger: util.GetLogger(),
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(requestIDMiddleware())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.POST("/customers/find-or-create", h.findOrCreateCustomer)
		v1.POST("/orders", h.createOrder)
		v1.POST("/subscriptions", h.createSubscription)
		v1.POST("/loyalty/register", h.registerLoyalty)
		v1.GET("/products", h.listProducts)
		v1.GET("/baskets", h.listBaskets)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck runs every registered check
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	failures := gin.H{}
	for _, name := range names {
		if err := h.checks[name](ctx); err != nil {
			failures[name] = err.Error()
		}
	}

	if len(failures) > 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"checks": failures,
			"time":   time.Now().Unix(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// findOrCreateCustomer resolves a contact to a customer id
func (h *Handler) findOrCreateCustomer(c *gin.Context) {
	var contact models.Contact
	if !bind(c, &contact) {
		return
	}

	customerID, err := h.svc.Customers.Resolve(c.Request.Context(), contact)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"customerId": customerID})
}

// createOrder handles order creation
func (h *Handler) createOrder(c *gin.Context) {
	var req service.CreateOrderRequest
	if !bind(c, &req) {
		return
	}
	req.IdempotencyKey = c.GetHeader("Idempotency-Key")

	resp, err := h.svc.Orders.PlaceOrder(c.Request.Context(), &req)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

// createSubscription handles subscription creation
func (h *Handler) createSubscription(c *gin.Context) {
	var req service.CreateSubscriptionRequest
	if !bind(c, &req) {
		return
	}

	sub, err := h.svc.Subscriptions.Create(c.Request.Context(), &req)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"subscriptionId": sub.ID,
		"subscription":   sub,
	})
}

// registerLoyalty enrolls a contact in the configured loyalty program
func (h *Handler) registerLoyalty(c *gin.Context) {
	var contact models.Contact
	if !bind(c, &contact) {
		return
	}

	result, err := h.svc.Loyalty.Register(c.Request.Context(), contact, h.svc.LoyaltyProgramID)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// listProducts returns the weekly products
func (h *Handler) listProducts(c *gin.Context) {
	products, err := h.svc.Catalog.ListWeeklyProducts(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, products)
}

// listBaskets returns the baskets with their composition
func (h *Handler) listBaskets(c *gin.Context) {
	baskets, err := h.svc.Catalog.ListBaskets(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, baskets)
}

func bind(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return false
	}
	return true
}

// fail maps err to its status and writes {error, details}
func (h *Handler) fail(c *gin.Context, err error) {
	code := apperr.CodeOf(err)
	meta := apperr.MetadataFor(code)

	if meta.HTTPStatus >= http.StatusInternalServerError {
		h.logger.Error("Request failed",
			zap.String("path", c.FullPath()),
			zap.String("request_id", c.GetString(requestIDHeader)),
			zap.String("code", string(code)),
			zap.Error(err))
	}

	body := gin.H{"error": meta.PublicMessage}
	if meta.DetailsAllowed {
		body["details"] = err.Error()
	}
	c.JSON(meta.HTTPStatus, body)
}

// requestIDMiddleware propagates or assigns a request id
func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.New().String()
		}
		c.Set(requestIDHeader, id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
