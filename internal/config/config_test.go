package config

import (
	"strings"
	"testing"
	"time"
)

func TestFromEnvDefaults(t *testing.T) {
	for _, key := range []string{"PORT", "ORDER_STORE", "VNPAY_TIMEOUT_SECONDS", "NOTIFY_WORKERS", "PAYMENT_EXPIRE_MINUTES"} {
		t.Setenv(key, "")
	}
	cfg := FromEnv()

	if cfg.Port != "8080" {
		t.Fatalf("expected default port, got %q", cfg.Port)
	}
	if cfg.OrderStore != "mongo" {
		t.Fatalf("expected mongo store, got %q", cfg.OrderStore)
	}
	if cfg.VNPay.Timeout != 10*time.Second || cfg.VNPay.ExpireAfter != 15*time.Minute {
		t.Fatalf("unexpected gateway durations %v %v", cfg.VNPay.Timeout, cfg.VNPay.ExpireAfter)
	}
	if cfg.NotifyWorkers != 2 {
		t.Fatalf("expected 2 workers, got %d", cfg.NotifyWorkers)
	}
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("ORDER_STORE", " Postgres ")
	t.Setenv("VNPAY_TIMEOUT_SECONDS", "3")
	t.Setenv("NOTIFY_QUEUE_SIZE", "not-a-number")

	cfg := FromEnv()
	if cfg.OrderStore != "postgres" {
		t.Fatalf("expected postgres, got %q", cfg.OrderStore)
	}
	if cfg.VNPay.Timeout != 3*time.Second {
		t.Fatalf("expected 3s timeout, got %v", cfg.VNPay.Timeout)
	}
	if cfg.NotifyQueueSize != 256 {
		t.Fatalf("expected fallback queue size, got %d", cfg.NotifyQueueSize)
	}
}

func TestValidate(t *testing.T) {
	valid := Config{MongoURI: "mongodb://localhost", JWTSecret: "s", OrderStore: "mongo"}
	if err := valid.Validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}

	bad := Config{OrderStore: "postgres", VNPay: VNPay{TmnCode: "TMN"}}
	err := bad.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"MONGO_URI", "JWT_SECRET", "DATABASE_URL", "VNPAY_HASH_SECRET"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("expected %s in %q", want, err.Error())
		}
	}

	gateway := valid
	gateway.VNPay = VNPay{TmnCode: "TMN", HashSecret: "x"}
	if err := gateway.Validate(); err == nil || !strings.Contains(err.Error(), "VNPAY_RETURN_URL") {
		t.Fatalf("expected return url error, got %v", err)
	}
}

func TestRedactedHidesSecrets(t *testing.T) {
	cfg := Config{
		MongoURI:    "mongodb://user:pw@host",
		DatabaseURL: "postgres://u:pw@host/db",
		VNPay:       VNPay{TmnCode: "TMN", HashSecret: "SUPERSECRET"},
		SMTP:        SMTP{Password: "mailpass"},
	}
	out := cfg.Redacted()
	for _, secret := range []string{"SUPERSECRET", "mailpass", "pw@host"} {
		if strings.Contains(out, secret) {
			t.Fatalf("redacted output leaks %q: %s", secret, out)
		}
	}
	if !strings.Contains(out, "vnpay.tmn=TMN") {
		t.Fatalf("expected merchant code in %s", out)
	}
}
