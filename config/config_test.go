package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("ERP_URL", "http://erp.local:8069/")

	cfg := Load()

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "http://erp.local:8069", cfg.ERP.URL)
	assert.Equal(t, 15*time.Second, cfg.ERP.CallTimeout)
	assert.Equal(t, "x_rgpd_consent", cfg.Business.CustomerConsentField)
	assert.Equal(t, 10.0, cfg.Business.LoyaltySignupBonus)
	assert.True(t, cfg.Business.LoyaltyAccrueOnOrder)
	assert.Equal(t, "sale.subscription", cfg.Business.SubscriptionModel)
	assert.Equal(t, 4, cfg.Business.SubscriptionDefaultWeeks)
	assert.Equal(t, 5*time.Minute, cfg.Business.CatalogCacheTTL)
	assert.Equal(t, 24*time.Hour, cfg.Business.IdempotencyTTL)
	assert.Equal(t, 5*time.Minute, cfg.Business.IdempotencyLockTTL)
	assert.True(t, cfg.Business.FulfillmentRetryEnabled)
}

func TestLoadBusinessOverrides(t *testing.T) {
	t.Setenv("LOYALTY_PROGRAM_ID", "3")
	t.Setenv("LOYALTY_ACCRUE_ON_ORDER", "false")
	t.Setenv("ORDER_CONFIRMATION_TEMPLATE_ID", "12")
	t.Setenv("SUBSCRIPTION_CONFIRM_METHOD", "action_confirm")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("FULFILLMENT_RETRY_ENABLED", "not-a-bool")

	cfg := Load()

	assert.Equal(t, int64(3), cfg.Business.LoyaltyProgramID)
	assert.False(t, cfg.Business.LoyaltyAccrueOnOrder)
	assert.Equal(t, int64(12), cfg.Business.ConfirmationTemplateID)
	assert.Equal(t, "action_confirm", cfg.Business.SubscriptionConfirmMethod)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.True(t, cfg.Business.FulfillmentRetryEnabled)
}
