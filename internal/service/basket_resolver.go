package service

import (
	"context"
	"encoding/json"
	"fmt"

	"basket-order-service/internal/erp"
	"basket-order-service/internal/models"
	"basket-order-service/internal/util"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// AdHocItem is one product picked individually by the customer
type AdHocItem struct {
	ProductID int64           `json:"id"`
	Quantity  float64         `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}

// BasketResolver turns either an ad-hoc product list or a kit into order lines
type BasketResolver struct {
	gateway RPCGateway
	logger  *zap.Logger
}

// NewBasketResolver creates a new basket resolver
func NewBasketResolver(gateway RPCGateway) *BasketResolver {
	return &BasketResolver{
		gateway: gateway,
		logger:  util.GetLogger(),
	}
}

type kitRecord struct {
	ID        int64   `json:"id"`
	Name      string  `json:"name"`
	ListPrice float64 `json:"list_price"`
	BOMIDs    []int64 `json:"bom_ids"`
}

// kit checks the kit carries exactly one recipe and returns it as a models.Kit.
func (k kitRecord) kit() (models.Kit, error) {
	switch len(k.BOMIDs) {
	case 0:
		return models.Kit{}, &RecipeError{Kind: BasketHasNoRecipe, BasketID: k.ID}
	case 1:
	default:
		return models.Kit{}, &RecipeError{Kind: BasketAmbiguousRecipe, BasketID: k.ID}
	}
	return models.Kit{
		ID:       k.ID,
		Name:     k.Name,
		Price:    decimal.NewFromFloat(k.ListPrice),
		RecipeID: k.BOMIDs[0],
	}, nil
}

type productRecord struct {
	ID        int64        `json:"id"`
	Name      string       `json:"name"`
	ListPrice float64      `json:"list_price"`
	Category  erp.Many2One `json:"categ_id"`
}

// ResolveAdHoc maps items to order lines one to one
func (r *BasketResolver) ResolveAdHoc(items []AdHocItem) ([]models.OrderLine, error) {
	lines := make([]models.OrderLine, 0, len(items))
	for i, item := range items {
		field := fmt.Sprintf("products[%d]", i)
		if item.ProductID <= 0 {
			return nil, inputErr(field+".id", "must be positive")
		}
		if item.Quantity <= 0 {
			return nil, inputErr(field+".quantity", "must be greater than zero")
		}
		if item.Price.IsNegative() {
			return nil, inputErr(field+".price", "must not be negative")
		}
		lines = append(lines, models.OrderLine{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: item.Price,
		})
	}
	return lines, nil
}

// ResolveKit expands the kit's recipe and prices each line from the catalog
func (r *BasketResolver) ResolveKit(ctx context.Context, basketID int64) ([]models.OrderLine, error) {
	ctx, span := util.StartSpan(ctx, "BasketResolver.ResolveKit")
	defer span.End()

	if basketID <= 0 {
		return nil, inputErr("basketId", "must be positive")
	}

	record, err := r.readKit(ctx, basketID)
	if err != nil {
		return nil, err
	}
	kit, err := record.kit()
	if err != nil {
		return nil, err
	}

	recipe, err := r.expandKit(ctx, kit)
	if err != nil {
		return nil, err
	}

	catalog, err := r.readProducts(ctx, recipeProductIDs(recipe), "id", "list_price")
	if err != nil {
		return nil, err
	}

	lines := make([]models.OrderLine, 0, len(recipe))
	for _, rl := range recipe {
		price := decimal.Zero
		if p, ok := catalog[rl.ProductID]; ok {
			price = decimal.NewFromFloat(p.ListPrice)
		} else {
			r.logger.Warn("Recipe product missing from catalog, priced at zero",
				zap.Int64("basket_id", basketID),
				zap.Int64("product_id", rl.ProductID))
		}
		lines = append(lines, models.OrderLine{
			ProductID: rl.ProductID,
			Quantity:  rl.Quantity,
			UnitPrice: price,
		})
	}

	r.logger.Info("Kit resolved",
		zap.Int64("basket_id", basketID),
		zap.Int64("recipe_id", kit.RecipeID),
		zap.Int("lines", len(lines)),
		zap.String("total", models.LinesTotal(lines).String()))
	return lines, nil
}

func (r *BasketResolver) readKit(ctx context.Context, basketID int64) (*kitRecord, error) {
	raw, err := r.gateway.Call(ctx, erp.ResourceProductTemplate, erp.OpSearchRead,
		erp.Domain(erp.Cond("id", "=", basketID)),
		map[string]any{"fields": []string{"id", "name", "list_price", "bom_ids"}, "limit": 1})
	if err != nil {
		// Searching by id: no payload means the kit does not exist.
		if erp.IsEmptyResult(err) {
			return nil, &RecipeError{Kind: BasketNotFound, BasketID: basketID}
		}
		return nil, fmt.Errorf("failed to read basket: %w", err)
	}

	var kits []kitRecord
	if err := json.Unmarshal(raw, &kits); err != nil {
		return nil, fmt.Errorf("failed to decode basket: %w", err)
	}
	if len(kits) == 0 {
		return nil, &RecipeError{Kind: BasketNotFound, BasketID: basketID}
	}
	return &kits[0], nil
}

// listKits returns every product flagged as a kit.
func (r *BasketResolver) listKits(ctx context.Context) ([]kitRecord, error) {
	raw, err := r.gateway.Call(ctx, erp.ResourceProductTemplate, erp.OpSearchRead,
		erp.Domain(erp.Cond("is_kits", "=", true)),
		map[string]any{"fields": []string{"id", "name", "list_price", "bom_ids"}, "order": "id asc"})
	if err != nil {
		if erp.IsEmptyResult(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list baskets: %w", err)
	}

	var kits []kitRecord
	if err := json.Unmarshal(raw, &kits); err != nil {
		return nil, fmt.Errorf("failed to decode baskets: %w", err)
	}
	return kits, nil
}

func (r *BasketResolver) expandKit(ctx context.Context, kit models.Kit) ([]models.RecipeLine, error) {
	recipe, err := r.expandRecipe(ctx, kit.RecipeID)
	if err != nil {
		return nil, err
	}
	if len(recipe) == 0 {
		return nil, &RecipeError{Kind: RecipeEmpty, BasketID: kit.ID}
	}
	return recipe, nil
}

// expandRecipe reads a bill of materials and returns its (product, quantity) pairs.
func (r *BasketResolver) expandRecipe(ctx context.Context, bomID int64) ([]models.RecipeLine, error) {
	raw, err := r.gateway.Call(ctx, erp.ResourceBOM, erp.OpRead, erp.IDs(bomID),
		map[string]any{"fields": []string{"bom_line_ids"}})
	if err != nil {
		if erp.IsEmptyResult(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read recipe %d: %w", bomID, err)
	}

	var boms []struct {
		LineIDs []int64 `json:"bom_line_ids"`
	}
	if err := json.Unmarshal(raw, &boms); err != nil {
		return nil, fmt.Errorf("failed to decode recipe %d: %w", bomID, err)
	}
	if len(boms) == 0 || len(boms[0].LineIDs) == 0 {
		return nil, nil
	}

	raw, err = r.gateway.Call(ctx, erp.ResourceBOMLine, erp.OpRead, erp.IDs(boms[0].LineIDs...),
		map[string]any{"fields": []string{"product_id", "product_qty"}})
	if err != nil {
		if erp.IsEmptyResult(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read recipe lines %d: %w", bomID, err)
	}

	var bomLines []struct {
		Product  erp.Many2One `json:"product_id"`
		Quantity float64      `json:"product_qty"`
	}
	if err := json.Unmarshal(raw, &bomLines); err != nil {
		return nil, fmt.Errorf("failed to decode recipe lines %d: %w", bomID, err)
	}

	recipe := make([]models.RecipeLine, 0, len(bomLines))
	for _, l := range bomLines {
		if l.Product.ID == 0 {
			continue
		}
		recipe = append(recipe, models.RecipeLine{
			ProductID:   l.Product.ID,
			ProductName: l.Product.Name,
			Quantity:    l.Quantity,
		})
	}
	return recipe, nil
}

func (r *BasketResolver) readProducts(ctx context.Context, ids []int64, fields ...string) (map[int64]productRecord, error) {
	byID := make(map[int64]productRecord, len(ids))
	if len(ids) == 0 {
		return byID, nil
	}

	raw, err := r.gateway.Call(ctx, erp.ResourceProduct, erp.OpSearchRead,
		erp.Domain(erp.Cond("id", "in", ids)),
		map[string]any{"fields": fields})
	if err != nil {
		if erp.IsEmptyResult(err) {
			return byID, nil
		}
		return nil, fmt.Errorf("failed to read products: %w", err)
	}

	var products []productRecord
	if err := json.Unmarshal(raw, &products); err != nil {
		return nil, fmt.Errorf("failed to decode products: %w", err)
	}
	for _, p := range products {
		byID[p.ID] = p
	}
	return byID, nil
}

func recipeProductIDs(recipe []models.RecipeLine) []int64 {
	ids := make([]int64, 0, len(recipe))
	seen := make(map[int64]bool, len(recipe))
	for _, rl := range recipe {
		if !seen[rl.ProductID] {
			seen[rl.ProductID] = true
			ids = append(ids, rl.ProductID)
		}
	}
	return ids
}
