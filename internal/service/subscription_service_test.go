package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSubscriptionModel = "sale.subscription"

func newTestSubscriptions(gw *fakeGateway, publisher EventPublisher, confirm string) *SubscriptionService {
	return NewSubscriptionService(gw, publisher, SubscriptionConfig{
		Resource:      testSubscriptionModel,
		ConfirmMethod: confirm,
		DefaultWeeks:  4,
	})
}

func TestCreateSubscription(t *testing.T) {
	gw := newFakeGateway()
	gw.reply(testSubscriptionModel, "create", []int64{31})
	publisher := &recordingPublisher{}

	sub, err := newTestSubscriptions(gw, publisher, "").Create(context.Background(), &CreateSubscriptionRequest{
		CustomerID:  42,
		BasketType:  "discovery",
		Weeks:       6,
		PickupPoint: "Farm shop",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(31), sub.ID)
	assert.Equal(t, 6, sub.Weeks)

	creates := gw.callsTo(testSubscriptionModel, "create")
	require.Len(t, creates, 1)
	values := creates[0].Args[0].(map[string]any)
	assert.Equal(t, float64(42), values["partner_id"])
	assert.Equal(t, "Basket subscription discovery", values["name"])
	assert.Equal(t, float64(6), values["recurring_rule_count"])
	assert.Equal(t, "Pickup point: Farm shop", values["description"])

	require.Len(t, publisher.subscriptionCreated, 1)
	assert.Equal(t, int64(31), publisher.subscriptionCreated[0].Subscription.ID)
}

func TestCreateSubscriptionDefaultsWeeks(t *testing.T) {
	gw := newFakeGateway()
	gw.reply(testSubscriptionModel, "create", 31)

	sub, err := newTestSubscriptions(gw, nil, "").Create(context.Background(), &CreateSubscriptionRequest{
		CustomerID: 42, BasketType: "classic", PickupPoint: "Farm shop",
	})
	require.NoError(t, err)
	assert.Equal(t, 4, sub.Weeks)
}

func TestCreateSubscriptionConfirmFailureIsLogged(t *testing.T) {
	gw := newFakeGateway()
	gw.reply(testSubscriptionModel, "create", 31)
	gw.fail(testSubscriptionModel, "action_confirm", errors.New("not allowed"))

	sub, err := newTestSubscriptions(gw, nil, "action_confirm").Create(context.Background(), &CreateSubscriptionRequest{
		CustomerID: 42, BasketType: "classic", PickupPoint: "Farm shop",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(31), sub.ID)
	assert.Len(t, gw.callsTo(testSubscriptionModel, "action_confirm"), 1)
}

func TestCreateSubscriptionValidation(t *testing.T) {
	tests := []struct {
		name  string
		req   CreateSubscriptionRequest
		field string
	}{
		{"no customer", CreateSubscriptionRequest{BasketType: "c", PickupPoint: "p"}, "customerId"},
		{"no basket type", CreateSubscriptionRequest{CustomerID: 1, PickupPoint: "p"}, "basketType"},
		{"no pickup point", CreateSubscriptionRequest{CustomerID: 1, BasketType: "c"}, "pickupPoint"},
		{"negative weeks", CreateSubscriptionRequest{CustomerID: 1, BasketType: "c", PickupPoint: "p", Weeks: -2}, "weeks"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw := newFakeGateway()
			_, err := newTestSubscriptions(gw, nil, "").Create(context.Background(), &tt.req)
			var inputErr *InputError
			require.ErrorAs(t, err, &inputErr)
			assert.Equal(t, tt.field, inputErr.Field)
			assert.Zero(t, gw.callCount())
		})
	}
}
