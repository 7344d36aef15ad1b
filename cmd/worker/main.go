package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/Anezz12/gomealsaver-v2-sub001/internal/config"
	"github.com/Anezz12/gomealsaver-v2-sub001/internal/inventory"
	kafkax "github.com/Anezz12/gomealsaver-v2-sub001/internal/kafka"
	"github.com/Anezz12/gomealsaver-v2-sub001/internal/lifecycle"
	"github.com/Anezz12/gomealsaver-v2-sub001/internal/orders"
	"github.com/Anezz12/gomealsaver-v2-sub001/internal/payment"
	"github.com/Anezz12/gomealsaver-v2-sub001/internal/postgres"
	"github.com/Anezz12/gomealsaver-v2-sub001/internal/projection"
	"github.com/Anezz12/gomealsaver-v2-sub001/internal/reconcile"
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
		log.Fatalf("db: %v", err)
	}
	defer db.Close()

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	// The sweep can itself settle or expire orders, so it publishes
	// transition events like the API does.
	pTransitioned := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderTransitioned, 1024)
	pTransitioned.Start(ctx)

	inv := &inventory.Repo{DB: db}
	repo := &orders.Repo{DB: db, Inv: inv}
	engine := &lifecycle.Engine{
		Store:        repo,
		Meals:        inv,
		Gateway:      payment.NewHTTPClient(cfg.GatewayBaseURL, cfg.GatewayServerKey),
		Transitioned: pTransitioned,
		Logger:       logger,
		ServiceName:  cfg.ServiceName + "-worker",
		ServerKey:    cfg.GatewayServerKey,
		ExpiryAge:    cfg.ExpiryAge,
		SweepMinAge:  cfg.SweepMinAge,
	}

	// Status cache projector
	proj := &projection.Service{
		Redis:       rdb,
		Logger:      logger,
		ServiceName: cfg.ServiceName + "-projector",
	}
	group := getenv("PROJECTOR_GROUP", "status-projector")
	workers := mustAtoi(os.Getenv("PROJECTOR_WORKERS"), "4")
	cons := kafkax.NewConsumer(cfg.KafkaBrokers, group, orders.TopicOrderTransitioned, workers)

	go func() {
		log.Printf("projector started: group=%s topic=%s workers=%d", group, orders.TopicOrderTransitioned, workers)
		if err := cons.Start(ctx, proj.HandleTransitioned); err != nil {
			log.Printf("consumer exit: %v", err)
			cancel()
		}
	}()

	// Reconciliation sweep
	sweeper := &reconcile.Sweeper{
		Engine:   engine,
		Logger:   logger,
		Interval: cfg.SweepInterval,
		Workers:  cfg.SweepWorkers,
	}
	go sweeper.Run(ctx)

	// graceful shutdown
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Println("shutting down worker...")
	cancel()
	time.Sleep(500 * time.Millisecond)
	pTransitioned.Close()
	pTransitioned.WaitClosed()
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func mustAtoi(s, def string) int {
	if s == "" {
		s = def
	}
	i, err := strconv.Atoi(s)
	if err != nil {
		return 1
	}
	return i
}
