package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"

	"github.com/oakmarket/marketplace-api/internal/config"
	"github.com/oakmarket/marketplace-api/internal/handler"
	"github.com/oakmarket/marketplace-api/internal/metrics"
	"github.com/oakmarket/marketplace-api/internal/pricing"
	"github.com/oakmarket/marketplace-api/internal/repository"
	"github.com/oakmarket/marketplace-api/internal/service"
	"github.com/oakmarket/marketplace-api/internal/worker"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load()
	if err != nil {
		log.Error("load config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		userRepo     repository.UserRepository
		categoryRepo repository.CategoryRepository
		productRepo  repository.ProductRepository
		cartRepo     repository.CartRepository
		orderRepo    repository.OrderRepository
		reviewRepo   repository.ReviewRepository

		dbPool      *pgxpool.Pool
		redisClient *redis.Client
		amqpConn    *amqp.Connection
		amqpCh      *amqp.Channel
	)

	if cfg.DB.InMemory {
		// In-memory mode runs without any backing services; demo data is
		// seeded on startup.
		store := repository.NewMemoryStore()
		if err := store.Seed(ctx); err != nil {
			log.Error("seed store", "error", err)
			os.Exit(1)
		}
		userRepo = store.Users()
		categoryRepo = store.Categories()
		productRepo = store.Products()
		cartRepo = store.Cart()
		orderRepo = store.Orders()
		reviewRepo = store.Reviews()
		log.Info("running with in-memory store")
	} else {
		// PostgreSQL
		poolCfg, err := pgxpool.ParseConfig(cfg.DB.DSN())
		if err != nil {
			log.Error("parse db config", "error", err)
			os.Exit(1)
		}
		poolCfg.MaxConns = cfg.DB.MaxConns

		dbPool, err = pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			log.Error("connect to database", "error", err)
			os.Exit(1)
		}
		defer dbPool.Close()

		if err := dbPool.Ping(ctx); err != nil {
			log.Error("ping database", "error", err)
			os.Exit(1)
		}
		log.Info("connected to PostgreSQL")

		// Redis
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()

		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Error("connect to Redis", "error", err)
			os.Exit(1)
		}
		log.Info("connected to Redis")

		// RabbitMQ
		amqpConn, err = amqp.Dial(cfg.RabbitMQ.URL)
		if err != nil {
			log.Error("connect to RabbitMQ", "error", err)
			os.Exit(1)
		}
		defer amqpConn.Close()

		amqpCh, err = amqpConn.Channel()
		if err != nil {
			log.Error("open RabbitMQ channel", "error", err)
			os.Exit(1)
		}
		defer amqpCh.Close()

		if err := worker.SetupRabbitMQ(amqpCh); err != nil {
			log.Error("setup RabbitMQ", "error", err)
			os.Exit(1)
		}
		log.Info("connected to RabbitMQ")

		userRepo = repository.NewUserRepository(dbPool)
		categoryRepo = repository.NewCategoryRepository(dbPool)
		productRepo = repository.NewProductRepository(dbPool)
		cartRepo = repository.NewCartRepository(dbPool)
		orderRepo = repository.NewOrderRepository(dbPool)
		reviewRepo = repository.NewReviewRepository(dbPool)
	}

	calculator, err := pricing.NewCalculator(cfg.Pricing.TaxRate, cfg.Pricing.ShippingFee)
	if err != nil {
		log.Error("build pricing calculator", "error", err)
		os.Exit(1)
	}

	m := metrics.New()

	// Services
	authSvc := service.NewAuthService(userRepo, cfg.JWT.Secret, cfg.JWT.Expiration)
	categorySvc := service.NewCategoryService(categoryRepo, productRepo)
	productSvc := service.NewProductService(productRepo, categoryRepo, reviewRepo, redisClient)
	cartSvc := service.NewCartService(cartRepo, productRepo, m)
	orderSvc := service.NewOrderService(orderRepo, cartRepo, productRepo, calculator, redisClient, amqpCh, m)
	reviewSvc := service.NewReviewService(reviewRepo, productRepo, orderRepo, redisClient, m)

	router := handler.NewRouter(handler.RouterDeps{
		Auth:      handler.NewAuthHandler(authSvc),
		Category:  handler.NewCategoryHandler(categorySvc),
		Product:   handler.NewProductHandler(productSvc),
		Cart:      handler.NewCartHandler(cartSvc),
		Order:     handler.NewOrderHandler(orderSvc),
		Review:    handler.NewReviewHandler(reviewSvc),
		Health:    handler.NewHealthHandler(dbPool, redisClient, amqpConn),
		JWTSecret: cfg.JWT.Secret,
	})

	var orderWorker *worker.OrderWorker
	if amqpCh != nil {
		orderWorker = worker.NewOrderWorker(amqpCh, orderSvc, redisClient, log)
		if err := orderWorker.Start(ctx); err != nil {
			log.Error("start order worker", "error", err)
			os.Exit(1)
		}
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info("starting HTTP server", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown", "error", err)
	}

	if orderWorker != nil {
		orderWorker.Stop()
		time.Sleep(500 * time.Millisecond)
	}
	cancel()
	log.Info("server stopped")
}
