package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig
	ERP      ERPConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Observ   ObservabilityConfig
	Business BusinessConfig
}

type ServerConfig struct {
	Port string
	Env  string
}

// ERPConfig holds the backend endpoint and the credentials used by the session manager.
type ERPConfig struct {
	URL         string
	DB          string
	Login       string
	Password    string
	CallTimeout time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type KafkaConfig struct {
	Brokers       []string
	TopicOrder    string
	ConsumerGroup string
}

type ObservabilityConfig struct {
	JaegerEndpoint string
	PrometheusPort string
}

// BusinessConfig carries the backend identifiers the pipeline needs.
// None of them may be hard-coded in service code.
type BusinessConfig struct {
	CustomerConsentField      string
	LoyaltyProgramID          int64
	LoyaltySignupBonus        float64
	LoyaltyAccrueOnOrder      bool
	ConfirmationTemplateID    int64
	SubscriptionModel         string
	SubscriptionConfirmMethod string
	SubscriptionDefaultWeeks  int
	CatalogCacheTTL           time.Duration
	IdempotencyTTL            time.Duration
	IdempotencyLockTTL        time.Duration
	FulfillmentRetryEnabled   bool
}

func Load() *Config {
	_ = godotenv.Load()

	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	callTimeout, _ := strconv.Atoi(getEnv("ERP_CALL_TIMEOUT_SECONDS", "15"))
	programID, _ := strconv.ParseInt(getEnv("LOYALTY_PROGRAM_ID", "0"), 10, 64)
	signupBonus, _ := strconv.ParseFloat(getEnv("LOYALTY_SIGNUP_BONUS", "10"), 64)
	templateID, _ := strconv.ParseInt(getEnv("ORDER_CONFIRMATION_TEMPLATE_ID", "0"), 10, 64)
	defaultWeeks, _ := strconv.Atoi(getEnv("SUBSCRIPTION_DEFAULT_WEEKS", "4"))
	catalogTTL, _ := strconv.Atoi(getEnv("CATALOG_CACHE_TTL_SECONDS", "300"))
	idempotencyTTL, _ := strconv.Atoi(getEnv("IDEMPOTENCY_TTL_SECONDS", "86400"))
	lockTTL, _ := strconv.Atoi(getEnv("IDEMPOTENCY_LOCK_TTL_SECONDS", "300"))

	cfg := &Config{
		Server: ServerConfig{
			Port: getEnv("PORT", "8080"),
			Env:  getEnv("ENV", "development"),
		},
		ERP: ERPConfig{
			URL:         strings.TrimRight(getEnv("ERP_URL", "http://localhost:8069"), "/"),
			DB:          getEnv("ERP_DB", ""),
			Login:       getEnv("ERP_LOGIN", ""),
			Password:    getEnv("ERP_PASSWORD", ""),
			CallTimeout: time.Duration(callTimeout) * time.Second,
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		Kafka: KafkaConfig{
			Brokers:       strings.Split(getEnv("KAFKA_BROKERS", "localhost:9092"), ","),
			TopicOrder:    getEnv("KAFKA_TOPIC_ORDER_EVENTS", "basket-order-events"),
			ConsumerGroup: getEnv("KAFKA_CONSUMER_GROUP", "fulfillment-retry-group"),
		},
		Observ: ObservabilityConfig{
			JaegerEndpoint: getEnv("JAEGER_ENDPOINT", "http://localhost:14268/api/traces"),
			PrometheusPort: getEnv("PROMETHEUS_PORT", "9090"),
		},
		Business: BusinessConfig{
			CustomerConsentField:      getEnv("CUSTOMER_CONSENT_FIELD", "x_rgpd_consent"),
			LoyaltyProgramID:          programID,
			LoyaltySignupBonus:        signupBonus,
			LoyaltyAccrueOnOrder:      getBool("LOYALTY_ACCRUE_ON_ORDER", true),
			ConfirmationTemplateID:    templateID,
			SubscriptionModel:         getEnv("SUBSCRIPTION_MODEL", "sale.subscription"),
			SubscriptionConfirmMethod: getEnv("SUBSCRIPTION_CONFIRM_METHOD", ""),
			SubscriptionDefaultWeeks:  defaultWeeks,
			CatalogCacheTTL:           time.Duration(catalogTTL) * time.Second,
			IdempotencyTTL:            time.Duration(idempotencyTTL) * time.Second,
			IdempotencyLockTTL:        time.Duration(lockTTL) * time.Second,
			FulfillmentRetryEnabled:   getBool("FULFILLMENT_RETRY_ENABLED", true),
		},
	}

	log.Printf("Config loaded: env=%s, port=%s, erp=%s", cfg.Server.Env, cfg.Server.Port, cfg.ERP.URL)
	return cfg
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getBool(key string, defaultVal bool) bool {
	val, err := strconv.ParseBool(getEnv(key, strconv.FormatBool(defaultVal)))
	if err != nil {
		return defaultVal
	}
	return val
}
