package service

import (
	"context"
	"errors"
	"testing"

	"basket-order-service/internal/erp"
	"basket-order-service/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type kitFixture struct {
	id     int64
	bomIDs []int64
	lines  []map[string]any
	prices map[int64]float64
}

// install answers the calls made by a kit expansion.
func (k kitFixture) install(gw *fakeGateway) {
	gw.reply(erp.ResourceProductTemplate, erp.OpSearchRead, []map[string]any{{
		"id":         k.id,
		"name":       "Weekly basket",
		"list_price": 20,
		"bom_ids":    k.bomIDs,
	}})

	lineIDs := make([]int64, len(k.lines))
	for i := range k.lines {
		lineIDs[i] = int64(500 + i)
	}
	gw.reply(erp.ResourceBOM, erp.OpRead, []map[string]any{{"id": 3, "bom_line_ids": lineIDs}})
	gw.reply(erp.ResourceBOMLine, erp.OpRead, k.lines)

	gw.on(erp.ResourceProduct, erp.OpSearchRead, func(args []any, _ map[string]any) (any, error) {
		ids, _ := domainValue(args, "id").([]any)
		var out []map[string]any
		for _, raw := range ids {
			id := int64(raw.(float64))
			if price, ok := k.prices[id]; ok {
				out = append(out, map[string]any{
					"id":         id,
					"name":       "Product",
					"list_price": price,
					"categ_id":   []any{1, "Vegetables"},
				})
			}
		}
		return out, nil
	})
}

func twoLineKit() kitFixture {
	return kitFixture{
		id:     9,
		bomIDs: []int64{3},
		lines: []map[string]any{
			{"product_id": []any{1, "P1"}, "product_qty": 2},
			{"product_id": []any{2, "P2"}, "product_qty": 1},
		},
		prices: map[int64]float64{1: 4, 2: 6},
	}
}

func TestResolveAdHocTotal(t *testing.T) {
	resolver := NewBasketResolver(newFakeGateway())

	lines, err := resolver.ResolveAdHoc([]AdHocItem{
		{ProductID: 1, Quantity: 2, Price: decimal.NewFromInt(3)},
		{ProductID: 2, Quantity: 1, Price: decimal.NewFromInt(5)},
	})
	require.NoError(t, err)
	require.Len(t, lines, 2)
	assert.Equal(t, "11", models.LinesTotal(lines).String())
}

func TestResolveAdHocValidation(t *testing.T) {
	resolver := NewBasketResolver(newFakeGateway())

	tests := []struct {
		name  string
		item  AdHocItem
		field string
	}{
		{"missing id", AdHocItem{Quantity: 1}, "products[0].id"},
		{"zero quantity", AdHocItem{ProductID: 1}, "products[0].quantity"},
		{"negative price", AdHocItem{ProductID: 1, Quantity: 1, Price: decimal.NewFromInt(-1)}, "products[0].price"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := resolver.ResolveAdHoc([]AdHocItem{tt.item})
			var inputErr *InputError
			require.ErrorAs(t, err, &inputErr)
			assert.Equal(t, tt.field, inputErr.Field)
		})
	}
}

func TestResolveKitExpandsRecipe(t *testing.T) {
	gw := newFakeGateway()
	twoLineKit().install(gw)

	lines, err := NewBasketResolver(gw).ResolveKit(context.Background(), 9)
	require.NoError(t, err)
	require.Len(t, lines, 2)

	assert.Equal(t, int64(1), lines[0].ProductID)
	assert.Equal(t, 2.0, lines[0].Quantity)
	assert.Equal(t, "4", lines[0].UnitPrice.String())
	assert.Equal(t, int64(2), lines[1].ProductID)
	assert.Equal(t, 1.0, lines[1].Quantity)
	assert.Equal(t, "6", lines[1].UnitPrice.String())
	assert.Equal(t, "14", models.LinesTotal(lines).String())
}

func TestResolveKitPricesMissingProductAtZero(t *testing.T) {
	gw := newFakeGateway()
	kit := twoLineKit()
	delete(kit.prices, 2)
	kit.install(gw)

	lines, err := NewBasketResolver(gw).ResolveKit(context.Background(), 9)
	require.NoError(t, err)
	assert.True(t, lines[1].UnitPrice.IsZero())
	assert.Equal(t, "8", models.LinesTotal(lines).String())
}

func TestResolveKitRecipeErrors(t *testing.T) {
	tests := []struct {
		name  string
		setup func(gw *fakeGateway)
		kind  RecipeErrorKind
	}{
		{
			name: "not found",
			setup: func(gw *fakeGateway) {
				gw.reply(erp.ResourceProductTemplate, erp.OpSearchRead, []any{})
			},
			kind: BasketNotFound,
		},
		{
			name: "no recipe",
			setup: func(gw *fakeGateway) {
				kit := twoLineKit()
				kit.bomIDs = nil
				kit.install(gw)
			},
			kind: BasketHasNoRecipe,
		},
		{
			name: "two recipes",
			setup: func(gw *fakeGateway) {
				kit := twoLineKit()
				kit.bomIDs = []int64{3, 4}
				kit.install(gw)
			},
			kind: BasketAmbiguousRecipe,
		},
		{
			name: "empty recipe",
			setup: func(gw *fakeGateway) {
				kit := twoLineKit()
				kit.lines = nil
				kit.install(gw)
			},
			kind: RecipeEmpty,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw := newFakeGateway()
			tt.setup(gw)

			_, err := NewBasketResolver(gw).ResolveKit(context.Background(), 9)
			assert.True(t, errors.Is(err, &RecipeError{Kind: tt.kind}), "got %v", err)
			assert.Empty(t, gw.callsTo(erp.ResourceProduct, erp.OpSearchRead))
		})
	}
}

func TestResolveKitRejectsInvalidID(t *testing.T) {
	gw := newFakeGateway()
	_, err := NewBasketResolver(gw).ResolveKit(context.Background(), 0)
	var inputErr *InputError
	assert.ErrorAs(t, err, &inputErr)
	assert.Zero(t, gw.callCount())
}

func TestKitRecordCarriesSingleRecipe(t *testing.T) {
	kit, err := kitRecord{ID: 9, Name: "Small basket", ListPrice: 15, BOMIDs: []int64{3}}.kit()
	require.NoError(t, err)
	assert.Equal(t, int64(3), kit.RecipeID)
	assert.Equal(t, "Small basket", kit.Name)
	assert.True(t, decimal.NewFromInt(15).Equal(kit.Price))

	_, err = kitRecord{ID: 10, BOMIDs: []int64{3, 4}}.kit()
	assert.True(t, errors.Is(err, &RecipeError{Kind: BasketAmbiguousRecipe}))

	_, err = kitRecord{ID: 11}.kit()
	assert.True(t, errors.Is(err, &RecipeError{Kind: BasketHasNoRecipe}))
}

func TestResolveKitReadsRecipeFromKit(t *testing.T) {
	gw := newFakeGateway()
	fixture := twoLineKit()
	fixture.bomIDs = []int64{42}
	fixture.install(gw)

	_, err := NewBasketResolver(gw).ResolveKit(context.Background(), 9)
	require.NoError(t, err)

	reads := gw.callsTo(erp.ResourceBOM, erp.OpRead)
	require.Len(t, reads, 1)
	assert.Equal(t, []any{[]any{float64(42)}}, reads[0].Args)
}
