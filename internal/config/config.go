package config

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

var AppEnv Config

type VNPay struct {
	TmnCode     string
	HashSecret  string
	PayURL      string
	APIURL      string
	ReturnURL   string
	Timeout     time.Duration
	ExpireAfter time.Duration
}

type SMTP struct {
	Host     string
	Port     string
	User     string
	Password string
	From     string
}

type Config struct {
	Port        string
	MongoURI    string
	DBName      string
	JWTSecret   string
	OrderStore  string
	DatabaseURL string
	RedisAddr   string

	VNPay VNPay
	SMTP  SMTP

	NATSURL         string
	StanClusterID   string
	StanClientID    string
	NotifySubject   string
	NotifyWorkers   int
	NotifyQueueSize int
}

func Load() {
	if err := godotenv.Load(); err != nil {
		log.Println(".env not loaded:", err)
	}
	AppEnv = FromEnv()
}

// FromEnv reads the process environment without touching .env files.
func FromEnv() Config {
	return Config{
		Port:        getEnvOrDefault("PORT", "8080"),
		MongoURI:    getEnvOrDefault("MONGO_URI", ""),
		DBName:      getEnvOrDefault("DB_NAME", "heremarket"),
		JWTSecret:   getEnvOrDefault("JWT_SECRET", ""),
		OrderStore:  strings.ToLower(getEnvOrDefault("ORDER_STORE", "mongo")),
		DatabaseURL: getEnvOrDefault("DATABASE_URL", ""),
		RedisAddr:   getEnvOrDefault("REDIS_ADDR", ""),
		VNPay: VNPay{
			TmnCode:     getEnvOrDefault("VNPAY_TMN_CODE", ""),
			HashSecret:  getEnvOrDefault("VNPAY_HASH_SECRET", ""),
			PayURL:      getEnvOrDefault("VNPAY_PAY_URL", "https://sandbox.vnpayment.vn/paymentv2/vpcpay.html"),
			APIURL:      getEnvOrDefault("VNPAY_API_URL", "https://sandbox.vnpayment.vn/merchant_webapi/api/transaction"),
			ReturnURL:   getEnvOrDefault("VNPAY_RETURN_URL", ""),
			Timeout:     getDurationEnv("VNPAY_TIMEOUT_SECONDS", 10, time.Second),
			ExpireAfter: getDurationEnv("PAYMENT_EXPIRE_MINUTES", 15, time.Minute),
		},
		SMTP: SMTP{
			Host:     getEnvOrDefault("SMTP_HOST", ""),
			Port:     getEnvOrDefault("SMTP_PORT", "587"),
			User:     getEnvOrDefault("SMTP_USER", ""),
			Password: getEnvOrDefault("SMTP_PASSWORD", ""),
			From:     getEnvOrDefault("MAIL_FROM", "no-reply@heremarket.local"),
		},
		NATSURL:         getEnvOrDefault("NATS_URL", ""),
		StanClusterID:   getEnvOrDefault("STAN_CLUSTER_ID", "test-cluster"),
		StanClientID:    getEnvOrDefault("STAN_CLIENT_ID", "heremarket-orders"),
		NotifySubject:   getEnvOrDefault("NOTIFY_SUBJECT", "orders.events"),
		NotifyWorkers:   getIntEnv("NOTIFY_WORKERS", 2),
		NotifyQueueSize: getIntEnv("NOTIFY_QUEUE_SIZE", 256),
	}
}

// Validate reports every missing or inconsistent setting at once.
func (c Config) Validate() error {
	var errs []error
	if c.MongoURI == "" {
		errs = append(errs, errors.New("MONGO_URI is required"))
	}
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	switch c.OrderStore {
	case "mongo":
	case "postgres":
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required when ORDER_STORE=postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("ORDER_STORE must be mongo or postgres, got %q", c.OrderStore))
	}
	if (c.VNPay.TmnCode == "") != (c.VNPay.HashSecret == "") {
		errs = append(errs, errors.New("VNPAY_TMN_CODE and VNPAY_HASH_SECRET must be set together"))
	}
	if c.PaymentEnabled() && c.VNPay.ReturnURL == "" {
		errs = append(errs, errors.New("VNPAY_RETURN_URL is required when the gateway is enabled"))
	}
	return errors.Join(errs...)
}

func (c Config) PaymentEnabled() bool {
	return c.VNPay.TmnCode != "" && c.VNPay.HashSecret != ""
}

func (c Config) MailEnabled() bool {
	return c.SMTP.Host != ""
}

// Redacted is safe to log.
func (c Config) Redacted() string {
	return fmt.Sprintf("port=%s db=%s store=%s mongo=%s postgres=%s redis=%s vnpay.tmn=%s vnpay.secret=%s vnpay.pay=%s smtp=%s smtp.user=%s smtp.password=%s nats=%s subject=%s workers=%d queue=%d",
		c.Port, c.DBName, c.OrderStore, mask(c.MongoURI), mask(c.DatabaseURL), c.RedisAddr,
		c.VNPay.TmnCode, mask(c.VNPay.HashSecret), c.VNPay.PayURL,
		c.SMTP.Host, c.SMTP.User, mask(c.SMTP.Password),
		c.NATSURL, c.NotifySubject, c.NotifyWorkers, c.NotifyQueueSize)
}

func mask(secret string) string {
	if secret == "" {
		return "<unset>"
	}
	return "<redacted>"
}
