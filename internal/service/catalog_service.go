package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"basket-order-service/internal/erp"
	"basket-order-service/internal/models"
	"basket-order-service/internal/util"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	productsCacheKey = "catalog:products"
	basketsCacheKey  = "catalog:baskets"
)

// CatalogService lists the products and baskets offered this week
type CatalogService struct {
	gateway RPCGateway
	baskets *BasketResolver
	cache   Cache
	ttl     time.Duration
	logger  *zap.Logger
}

// NewCatalogService creates a new catalog service. cache may be nil.
func NewCatalogService(gateway RPCGateway, baskets *BasketResolver, cache Cache, ttl time.Duration) *CatalogService {
	return &CatalogService{
		gateway: gateway,
		baskets: baskets,
		cache:   cache,
		ttl:     ttl,
		logger:  util.GetLogger(),
	}
}

// ListWeeklyProducts returns every product variant available for sale. Its ids are the ones order lines take.
func (c *CatalogService) ListWeeklyProducts(ctx context.Context) ([]models.Product, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.ListWeeklyProducts")
	defer span.End()

	var products []models.Product
	if c.cached(ctx, "products", productsCacheKey, &products) {
		return products, nil
	}

	raw, err := c.gateway.Call(ctx, erp.ResourceProduct, erp.OpSearchRead,
		erp.Domain(erp.Cond("sale_ok", "=", true)),
		map[string]any{"fields": []string{"id", "name", "categ_id", "list_price"}})
	if err != nil && !erp.IsEmptyResult(err) {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}

	var records []productRecord
	if err == nil {
		if err := json.Unmarshal(raw, &records); err != nil {
			return nil, fmt.Errorf("failed to decode products: %w", err)
		}
	}

	products = make([]models.Product, 0, len(records))
	for _, r := range records {
		products = append(products, models.Product{
			ID:       r.ID,
			Name:     r.Name,
			Category: r.Category.Name,
			Price:    decimal.NewFromFloat(r.ListPrice),
		})
	}

	c.store(ctx, productsCacheKey, products)
	return products, nil
}

// ListBaskets returns every kit with its expanded composition.
// Kits without a usable recipe are left out.
func (c *CatalogService) ListBaskets(ctx context.Context) ([]models.Basket, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.ListBaskets")
	defer span.End()

	var baskets []models.Basket
	if c.cached(ctx, "baskets", basketsCacheKey, &baskets) {
		return baskets, nil
	}

	kits, err := c.baskets.listKits(ctx)
	if err != nil {
		return nil, err
	}

	baskets = make([]models.Basket, 0, len(kits))
	for _, record := range kits {
		kit, err := record.kit()
		var recipe []models.RecipeLine
		if err == nil {
			recipe, err = c.baskets.expandKit(ctx, kit)
		}
		if err != nil {
			var recipeErr *RecipeError
			if errors.As(err, &recipeErr) {
				c.logger.Debug("Skipping basket", zap.Int64("basket_id", record.ID), zap.String("reason", string(recipeErr.Kind)))
				continue
			}
			return nil, err
		}

		products, err := c.baskets.readProducts(ctx, recipeProductIDs(recipe), "id", "name", "categ_id")
		if err != nil {
			return nil, err
		}

		components := make([]models.BasketComponent, 0, len(recipe))
		for _, rl := range recipe {
			component := models.BasketComponent{
				ID:       rl.ProductID,
				Name:     rl.ProductName,
				Quantity: rl.Quantity,
			}
			if p, ok := products[rl.ProductID]; ok {
				component.Name = p.Name
				component.Category = p.Category.Name
			}
			components = append(components, component)
		}

		baskets = append(baskets, models.Basket{
			ID:       kit.ID,
			Name:     kit.Name,
			Price:    kit.Price,
			Products: components,
		})
	}

	c.store(ctx, basketsCacheKey, baskets)
	return baskets, nil
}

func (c *CatalogService) cached(ctx context.Context, catalog, key string, dst any) bool {
	if c.cache == nil {
		return false
	}
	found, err := c.cache.GetJSON(ctx, key, dst)
	switch {
	case err != nil:
		util.CatalogCacheTotal.WithLabelValues(catalog, "error").Inc()
		c.logger.Warn("Catalog cache read failed", zap.String("key", key), zap.Error(err))
		return false
	case !found:
		util.CatalogCacheTotal.WithLabelValues(catalog, "miss").Inc()
		return false
	}
	util.CatalogCacheTotal.WithLabelValues(catalog, "hit").Inc()
	return true
}

func (c *CatalogService) store(ctx context.Context, key string, value any) {
	if c.cache == nil || c.ttl <= 0 {
		return
	}
	if err := c.cache.SetJSON(ctx, key, value, c.ttl); err != nil {
		c.logger.Warn("Catalog cache write failed", zap.String("key", key), zap.Error(err))
	}
}
