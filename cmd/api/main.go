package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/Anezz12/gomealsaver-v2-sub001/internal/config"
	"github.com/Anezz12/gomealsaver-v2-sub001/internal/httpx"
	"github.com/Anezz12/gomealsaver-v2-sub001/internal/inventory"
	kafkax "github.com/Anezz12/gomealsaver-v2-sub001/internal/kafka"
	"github.com/Anezz12/gomealsaver-v2-sub001/internal/lifecycle"
	"github.com/Anezz12/gomealsaver-v2-sub001/internal/orders"
	"github.com/Anezz12/gomealsaver-v2-sub001/internal/payment"
	"github.com/Anezz12/gomealsaver-v2-sub001/internal/postgres"
	"github.com/Anezz12/gomealsaver-v2-sub001/internal/redisx"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}
	defer db.Close()

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	// Kafka producers
	pCreated := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderCreated, 1024)
	pCreated.Start(ctx)
	pTransitioned := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderTransitioned, 1024)
	pTransitioned.Start(ctx)

	// Repos & engine
	inv := &inventory.Repo{DB: db}
	repo := &orders.Repo{DB: db, Inv: inv}
	engine := &lifecycle.Engine{
		Store:           repo,
		Meals:           inv,
		Gateway:         payment.NewHTTPClient(cfg.GatewayBaseURL, cfg.GatewayServerKey),
		Created:         pCreated,
		Transitioned:    pTransitioned,
		Logger:          logger,
		ServiceName:     cfg.ServiceName,
		ServerKey:       cfg.GatewayServerKey,
		ServiceFeeCents: cfg.ServiceFeeCents,
		SessionTTL:      cfg.SessionTTL,
		ExpiryAge:       cfg.ExpiryAge,
		SweepMinAge:     cfg.SweepMinAge,
	}

	router := httpx.NewRouter()
	oh := &httpx.OrdersHandler{
		Service:  engine,
		Meals:    inv,
		Sessions: httpx.HeaderSessionProvider{},
		Cache:    &redisx.Cache{C: rdb},
	}
	oh.Register(router)
	wh := &httpx.WebhookHandler{Service: engine}
	wh.Register(router)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	// graceful shutdown
	go func() {
		log.Printf("HTTP listening at %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Println("shutting down...")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	pCreated.Close()
	pTransitioned.Close()
	cancel()
	pCreated.WaitClosed()
	pTransitioned.WaitClosed()
}
