package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/heremarket/orders/internal/catalog"
	"github.com/heremarket/orders/internal/config"
	"github.com/heremarket/orders/internal/database"
	"github.com/heremarket/orders/internal/handlers"
	"github.com/heremarket/orders/internal/notify"
	"github.com/heremarket/orders/internal/orders"
	"github.com/heremarket/orders/internal/payment"
)

func main() {
	config.Load()
	cfg := config.AppEnv
	if err := cfg.Validate(); err != nil {
		log.Fatalf("[CONFIG] [ERROR] %v", err)
	}
	log.Println("[CONFIG] [INFO]", cfg.Redacted())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := database.Connect(cfg.MongoURI)
	if err != nil {
		log.Fatal(err)
	}
	db := client.Database(cfg.DBName)
	log.Println("MongoDB connected to:", db.Name())

	if err := database.EnsureOrderIndexes(db); err != nil {
		log.Printf("[DB] [WARN] order index warning: %v", err)
	}
	if err := database.EnsureCouponIndexes(db); err != nil {
		log.Printf("[DB] [WARN] coupon index warning: %v", err)
	}

	store, pool := openStore(ctx, cfg, db)

	dispatcher, closers := buildDispatcher(cfg, db)

	deps := orders.Deps{
		Store:    store,
		Catalog:  catalog.NewMongoCatalog(db),
		Coupons:  catalog.NewMongoCoupons(db),
		Notifier: dispatcher,
	}
	if cfg.PaymentEnabled() {
		gateway, err := payment.NewVNPay(payment.Config{
			TmnCode:     cfg.VNPay.TmnCode,
			HashSecret:  cfg.VNPay.HashSecret,
			PayURL:      cfg.VNPay.PayURL,
			APIURL:      cfg.VNPay.APIURL,
			ReturnURL:   cfg.VNPay.ReturnURL,
			ExpireAfter: cfg.VNPay.ExpireAfter,
			Timeout:     cfg.VNPay.Timeout,
		}, nil)
		if err != nil {
			log.Fatalf("[PAYMENT] [ERROR] %v", err)
		}
		deps.Gateway = gateway
	} else {
		log.Println("[PAYMENT] [WARN] VNPay credentials not set, online payment disabled")
	}
	svc := orders.NewService(deps)

	r := gin.Default()
	handlers.RegisterRoutes(r, svc, cfg.JWTSecret)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Printf("[HTTP] [INFO] listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("[HTTP] [ERROR] %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("[HTTP] [INFO] shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("[HTTP] [ERROR] shutdown: %v", err)
	}
	if err := dispatcher.Close(shutdownCtx); err != nil {
		log.Printf("[NOTIFY] [WARN] undelivered events dropped: %v", err)
	}
	for _, closer := range closers {
		if err := closer(); err != nil {
			log.Printf("[NOTIFY] [WARN] close: %v", err)
		}
	}
	if pool != nil {
		pool.Close()
	}
	if err := client.Disconnect(shutdownCtx); err != nil {
		log.Printf("[DB] [WARN] mongo disconnect: %v", err)
	}
}

// openStore picks the order store. Products, coupons and customers always
// live in MongoDB.
func openStore(ctx context.Context, cfg config.Config, db *mongo.Database) (orders.Store, *pgxpool.Pool) {
	if cfg.OrderStore != "postgres" {
		return orders.NewMongoStore(db), nil
	}

	pool, err := database.ConnectPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("[DB] [ERROR] postgres connect: %v", err)
	}
	if err := database.EnsurePostgresSchema(ctx, pool); err != nil {
		log.Fatalf("[DB] [ERROR] postgres schema: %v", err)
	}
	log.Println("[DB] [INFO] orders stored in PostgreSQL")
	return orders.NewPostgresStore(pool), pool
}

func buildDispatcher(cfg config.Config, db *mongo.Database) (*notify.Dispatcher, []func() error) {
	var closers []func() error
	senders := []notify.Sender{notify.LogSender{}}

	if cfg.MailEnabled() {
		senders = append(senders, notify.NewEmailSender(notify.SMTPConfig{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			User:     cfg.SMTP.User,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
		}, notify.NewMongoRecipients(db)))
	}

	if cfg.NATSURL != "" {
		publisher, err := notify.NewStanPublisher(cfg.NATSURL, cfg.StanClusterID, cfg.StanClientID, cfg.NotifySubject)
		if err != nil {
			log.Printf("[NOTIFY] [WARN] streaming disabled: %v", err)
		} else {
			senders = append(senders, publisher)
			closers = append(closers, publisher.Close)
		}
	}

	opts := notify.Options{Workers: cfg.NotifyWorkers, QueueSize: cfg.NotifyQueueSize}
	if cfg.RedisAddr != "" {
		deduper := notify.NewRedisDeduper(cfg.RedisAddr, "heremarket", 0)
		pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		err := deduper.Ping(pingCtx)
		cancel()
		if err != nil {
			log.Printf("[NOTIFY] [WARN] redis unreachable, deduplicating in memory: %v", err)
			_ = deduper.Close()
		} else {
			opts.Deduper = deduper
			closers = append(closers, deduper.Close)
		}
	}

	return notify.NewDispatcher(opts, senders...), closers
}
