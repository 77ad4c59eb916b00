package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"basket-order-service/internal/erp"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListWeeklyProducts(t *testing.T) {
	gw := newFakeGateway()
	gw.reply(erp.ResourceProduct, erp.OpSearchRead, []map[string]any{
		{"id": 1, "name": "Carrots", "categ_id": []any{4, "Vegetables"}, "list_price": 2.5},
		{"id": 2, "name": "Honey", "categ_id": false, "list_price": 8},
	})

	products, err := NewCatalogService(gw, NewBasketResolver(gw), nil, 0).ListWeeklyProducts(context.Background())
	require.NoError(t, err)
	require.Len(t, products, 2)
	assert.Equal(t, "Carrots", products[0].Name)
	assert.Equal(t, "Vegetables", products[0].Category)
	assert.Equal(t, "2.5", products[0].Price.String())
	assert.Empty(t, products[1].Category)

	search := gw.callsTo(erp.ResourceProduct, erp.OpSearchRead)[0]
	assert.Equal(t, true, domainValue(search.Args, "sale_ok"))
	assert.Empty(t, gw.callsTo(erp.ResourceProductTemplate, erp.OpSearchRead))
}

func TestListWeeklyProductsUsesCache(t *testing.T) {
	gw := newFakeGateway()
	gw.reply(erp.ResourceProduct, erp.OpSearchRead, []map[string]any{
		{"id": 1, "name": "Carrots", "categ_id": []any{4, "Vegetables"}, "list_price": 2.5},
	})
	catalog := NewCatalogService(gw, NewBasketResolver(gw), newMemoryStore(), time.Minute)

	first, err := catalog.ListWeeklyProducts(context.Background())
	require.NoError(t, err)
	second, err := catalog.ListWeeklyProducts(context.Background())
	require.NoError(t, err)

	require.Len(t, second, 1)
	assert.Equal(t, first[0].Name, second[0].Name)
	assert.True(t, first[0].Price.Equal(second[0].Price))
	assert.Equal(t, 1, gw.callCount())
}

func TestListWeeklyProductsEmpty(t *testing.T) {
	gw := newFakeGateway()
	gw.reply(erp.ResourceProduct, erp.OpSearchRead, nil)

	products, err := NewCatalogService(gw, NewBasketResolver(gw), nil, 0).ListWeeklyProducts(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, products)
	assert.Empty(t, products)
}

func TestListBasketsSkipsKitsWithoutRecipe(t *testing.T) {
	gw := newFakeGateway()
	gw.reply(erp.ResourceProductTemplate, erp.OpSearchRead, []map[string]any{
		{"id": 9, "name": "Small basket", "list_price": 15, "bom_ids": []int64{3}},
		{"id": 10, "name": "Draft basket", "list_price": 20, "bom_ids": []int64{}},
	})
	gw.reply(erp.ResourceBOM, erp.OpRead, []map[string]any{{"id": 3, "bom_line_ids": []int64{500}}})
	gw.reply(erp.ResourceBOMLine, erp.OpRead, []map[string]any{{"product_id": []any{1, "P1"}, "product_qty": 2}})
	gw.reply(erp.ResourceProduct, erp.OpSearchRead, []map[string]any{
		{"id": 1, "name": "Carrots", "categ_id": []any{4, "Vegetables"}},
	})

	baskets, err := NewCatalogService(gw, NewBasketResolver(gw), nil, 0).ListBaskets(context.Background())
	require.NoError(t, err)
	require.Len(t, baskets, 1)
	assert.Equal(t, int64(9), baskets[0].ID)
	assert.Equal(t, "15", baskets[0].Price.String())
	require.Len(t, baskets[0].Products, 1)
	assert.Equal(t, "Carrots", baskets[0].Products[0].Name)
	assert.Equal(t, "Vegetables", baskets[0].Products[0].Category)
	assert.Equal(t, 2.0, baskets[0].Products[0].Quantity)

	search := gw.callsTo(erp.ResourceProductTemplate, erp.OpSearchRead)[0]
	assert.Equal(t, true, domainValue(search.Args, "is_kits"))
}

func TestListBasketsPropagatesRemoteFailure(t *testing.T) {
	gw := newFakeGateway()
	gw.fail(erp.ResourceProductTemplate, erp.OpSearchRead, errors.New("down"))

	_, err := NewCatalogService(gw, NewBasketResolver(gw), nil, 0).ListBaskets(context.Background())
	assert.ErrorContains(t, err, "down")
}
