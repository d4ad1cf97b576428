package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

type Config struct {
	App           AppConfig
	Service       ServiceConfig
	DB            DBConfig
	Redis         RedisConfig
	JWT           JWTConfig
	Carrier       CarrierConfig
	Payment       PaymentConfig
	Warehouse     WarehouseConfig
	Fulfillment   FulfillmentConfig
	Notifications NotificationsConfig
	GCP           GCPConfig
	GCS           GCSConfig
	PubSub        PubSubConfig
	BigQuery      BigQueryConfig
	Outbox        OutboxConfig
	Cron          CronConfig
	RateLimit     RateLimitConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"STOREFRONT_APP_ENV" required:"true"`
	Port         string `envconfig:"STOREFRONT_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"STOREFRONT_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"STOREFRONT_LOG_WARN_STACK" default:"false"`
	AutoMigrate  bool   `envconfig:"STOREFRONT_AUTO_MIGRATE" default:"false"`

	CORSOrigins []string `envconfig:"STOREFRONT_CORS_ORIGINS"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"STOREFRONT_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"STOREFRONT_DB_DSN"`
	Driver string `envconfig:"STOREFRONT_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"STOREFRONT_DB_HOST"`
	LegacyPort     int    `envconfig:"STOREFRONT_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"STOREFRONT_DB_USER"`
	LegacyPassword string `envconfig:"STOREFRONT_DB_PASSWORD"`
	LegacyName     string `envconfig:"STOREFRONT_DB_NAME"`
	LegacySSLMode  string `envconfig:"STOREFRONT_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"STOREFRONT_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"STOREFRONT_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"STOREFRONT_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"STOREFRONT_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"STOREFRONT_REDIS_URL" required:"true"`
	Address      string        `envconfig:"STOREFRONT_REDIS_ADDR"`
	Password     string        `envconfig:"STOREFRONT_REDIS_PASSWORD"`
	DB           int           `envconfig:"STOREFRONT_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"STOREFRONT_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"STOREFRONT_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"STOREFRONT_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"STOREFRONT_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"STOREFRONT_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"STOREFRONT_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"STOREFRONT_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"STOREFRONT_JWT_EXPIRATION_MINUTES" default:"1440"`
}

// CarrierConfig points at the courier's CMU API.
type CarrierConfig struct {
	Name             string        `envconfig:"STOREFRONT_CARRIER_NAME" default:"delhivery"`
	BaseURL          string        `envconfig:"STOREFRONT_CARRIER_BASE_URL" default:"https://track.delhivery.com"`
	APIKey           string        `envconfig:"STOREFRONT_CARRIER_API_KEY" required:"true"`
	ClientName       string        `envconfig:"STOREFRONT_CARRIER_CLIENT_NAME"`
	Timeout          time.Duration `envconfig:"STOREFRONT_CARRIER_TIMEOUT" default:"15s"`
	TrackingURLTmpl  string        `envconfig:"STOREFRONT_CARRIER_TRACKING_URL" default:"https://www.delhivery.com/track/package/%s"`
	DefaultCountry   string        `envconfig:"STOREFRONT_CARRIER_COUNTRY" default:"India"`
	ProductSKUPrefix string        `envconfig:"STOREFRONT_CARRIER_SKU_PREFIX" default:"SKU"`
}

// TrackingURL renders the public tracking link for a waybill.
func (c CarrierConfig) TrackingURL(waybill string) string {
	if strings.TrimSpace(c.TrackingURLTmpl) == "" || waybill == "" {
		return ""
	}
	if !strings.Contains(c.TrackingURLTmpl, "%s") {
		return strings.TrimRight(c.TrackingURLTmpl, "/") + "/" + waybill
	}
	return fmt.Sprintf(c.TrackingURLTmpl, waybill)
}

type PaymentConfig struct {
	BaseURL          string        `envconfig:"STOREFRONT_PAYMENT_BASE_URL" default:"https://api.razorpay.com/v1"`
	KeyID            string        `envconfig:"STOREFRONT_PAYMENT_KEY_ID" required:"true"`
	KeySecret        string        `envconfig:"STOREFRONT_PAYMENT_KEY_SECRET" required:"true"`
	WebhookSecret    string        `envconfig:"STOREFRONT_PAYMENT_WEBHOOK_SECRET"`
	Currency         string        `envconfig:"STOREFRONT_PAYMENT_CURRENCY" default:"INR"`
	Timeout          time.Duration `envconfig:"STOREFRONT_PAYMENT_TIMEOUT" default:"10s"`
	RequireSignature bool          `envconfig:"STOREFRONT_PAYMENT_REQUIRE_SIGNATURE" default:"false"`
	WebhookEventTTL  time.Duration `envconfig:"STOREFRONT_PAYMENT_WEBHOOK_EVENT_TTL" default:"720h"`
}

// WarehouseConfig is the registered pickup location and return destination.
type WarehouseConfig struct {
	Name       string `envconfig:"STOREFRONT_WAREHOUSE_NAME" required:"true"`
	Street     string `envconfig:"STOREFRONT_WAREHOUSE_STREET"`
	City       string `envconfig:"STOREFRONT_WAREHOUSE_CITY"`
	State      string `envconfig:"STOREFRONT_WAREHOUSE_STATE"`
	Pincode    string `envconfig:"STOREFRONT_WAREHOUSE_PINCODE"`
	Phone      string `envconfig:"STOREFRONT_WAREHOUSE_PHONE"`
	PickupTime string `envconfig:"STOREFRONT_WAREHOUSE_PICKUP_TIME" default:"14:00:00"`
}

type FulfillmentConfig struct {
	FreeShippingThreshold decimal.Decimal `envconfig:"STOREFRONT_FREE_SHIPPING_THRESHOLD" default:"999"`
	ShippingFee           decimal.Decimal `envconfig:"STOREFRONT_SHIPPING_FEE" default:"50"`
	ReturnWindow          time.Duration   `envconfig:"STOREFRONT_RETURN_WINDOW" default:"72h"`
	DefaultWeightKG       float64         `envconfig:"STOREFRONT_DEFAULT_WEIGHT_KG" default:"0.5"`
	DefaultDimensionCM    float64         `envconfig:"STOREFRONT_DEFAULT_DIMENSION_CM" default:"10"`
	DocumentTimeout       time.Duration   `envconfig:"STOREFRONT_DOCUMENT_TIMEOUT" default:"30s"`
}

type NotificationsConfig struct {
	OpsMailbox    string        `envconfig:"STOREFRONT_NOTIFY_OPS_MAILBOX" required:"true"`
	Providers     []string      `envconfig:"STOREFRONT_NOTIFY_PROVIDERS" default:"pubsub,sms,smtp"`
	QueueSize     int           `envconfig:"STOREFRONT_NOTIFY_QUEUE_SIZE" default:"256"`
	Workers       int           `envconfig:"STOREFRONT_NOTIFY_WORKERS" default:"4"`
	SendTimeout   time.Duration `envconfig:"STOREFRONT_NOTIFY_SEND_TIMEOUT" default:"10s"`
	RetentionDays int           `envconfig:"STOREFRONT_NOTIFY_RETENTION_DAYS" default:"90"`

	SMTPHost     string `envconfig:"STOREFRONT_SMTP_HOST"`
	SMTPPort     int    `envconfig:"STOREFRONT_SMTP_PORT" default:"587"`
	SMTPUsername string `envconfig:"STOREFRONT_SMTP_USERNAME"`
	SMTPPassword string `envconfig:"STOREFRONT_SMTP_PASSWORD"`
	SMTPFrom     string `envconfig:"STOREFRONT_SMTP_FROM"`

	SMSAccessKeyID     string `envconfig:"STOREFRONT_SMS_ACCESS_KEY_ID"`
	SMSAccessKeySecret string `envconfig:"STOREFRONT_SMS_ACCESS_KEY_SECRET"`
	SMSEndpoint        string `envconfig:"STOREFRONT_SMS_ENDPOINT" default:"dysmsapi.aliyuncs.com"`
	SMSSignName        string `envconfig:"STOREFRONT_SMS_SIGN_NAME"`
	SMSTemplateCode    string `envconfig:"STOREFRONT_SMS_TEMPLATE_CODE"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"STOREFRONT_GCP_PROJECT_ID" required:"true"`
	CredentialsJSON        string `envconfig:"STOREFRONT_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"STOREFRONT_GOOGLE_APPLICATION_CREDENTIALS"`
}

type GCSConfig struct {
	BucketName string `envconfig:"STOREFRONT_GCS_BUCKET_NAME" required:"true"`
}

type PubSubConfig struct {
	DomainTopic              string `envconfig:"STOREFRONT_PUBSUB_DOMAIN_TOPIC" required:"true"`
	DomainSubscription       string `envconfig:"STOREFRONT_PUBSUB_DOMAIN_SUBSCRIPTION" required:"true"`
	NotificationTopic        string `envconfig:"STOREFRONT_PUBSUB_NOTIFICATION_TOPIC" default:"storefront-notifications"`
	NotificationSubscription string `envconfig:"STOREFRONT_PUBSUB_NOTIFICATION_SUBSCRIPTION"`
}

type BigQueryConfig struct {
	Dataset                string        `envconfig:"STOREFRONT_BIGQUERY_DATASET" default:"storefront"`
	FulfillmentEventsTable string        `envconfig:"STOREFRONT_BIGQUERY_FULFILLMENT_TABLE" default:"fulfillment_events"`
	EventDedupeTTL         time.Duration `envconfig:"STOREFRONT_BIGQUERY_DEDUPE_TTL" default:"720h"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"STOREFRONT_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"STOREFRONT_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"STOREFRONT_OUTBOX_MAX_ATTEMPTS" default:"10"`
	RetentionDays  int `envconfig:"STOREFRONT_OUTBOX_RETENTION_DAYS" default:"30"`
}

type CronConfig struct {
	TrackingSyncSpec string        `envconfig:"STOREFRONT_CRON_TRACKING_SYNC" default:"@every 30m"`
	RetentionSpec    string        `envconfig:"STOREFRONT_CRON_RETENTION" default:"@daily"`
	LockTTL          time.Duration `envconfig:"STOREFRONT_CRON_LOCK_TTL" default:"25m"`
	TrackingBatch    int           `envconfig:"STOREFRONT_CRON_TRACKING_BATCH" default:"100"`
}

type RateLimitConfig struct {
	OrderCreateWindow time.Duration `envconfig:"STOREFRONT_RATE_LIMIT_ORDER_CREATE_WINDOW" default:"1m"`
	OrderCreateLimit  int           `envconfig:"STOREFRONT_RATE_LIMIT_ORDER_CREATE_LIMIT" default:"10"`
	WebhookWindow     time.Duration `envconfig:"STOREFRONT_RATE_LIMIT_WEBHOOK_WINDOW" default:"1m"`
	WebhookLimit      int           `envconfig:"STOREFRONT_RATE_LIMIT_WEBHOOK_LIMIT" default:"120"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
