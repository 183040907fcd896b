package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prudhvinik1/possync/internal/config"
	"github.com/prudhvinik1/possync/internal/database"
	"github.com/prudhvinik1/possync/internal/handlers"
	"github.com/prudhvinik1/possync/internal/repositories"
	"github.com/prudhvinik1/possync/internal/services"
	"github.com/prudhvinik1/possync/internal/storage"
)

func main() {
	ctx := context.Background()

	godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize database connections
	postgresPool, err := database.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to create postgres pool: %v", err)
	}
	defer postgresPool.Close()

	// Redis being down is survivable: queue state degrades to the in-process
	// fallback store for the lifetime of this process.
	var store storage.Store
	if redisClient, err := database.NewRedisClient(ctx, cfg.RedisURL); err != nil {
		log.Printf("Redis unavailable, using in-process fallback store: %v", err)
		store = storage.NewMemoryStore()
	} else {
		defer redisClient.Close()
		store = storage.NewRedisStore(redisClient)
	}

	// Wire the sync engine
	itemRepo := repositories.NewStoreSyncItemRepository(store)
	entityRepo := repositories.NewPostgresEntityRepository(postgresPool)
	locks := services.NewLockCoordinator(store, cfg.LockTTL)

	queue := services.NewQueueService(itemRepo, cfg.EntityWeights)
	processor := services.NewProcessor(itemRepo, entityRepo, locks, cfg)
	delta := services.NewDeltaService(entityRepo)
	syncHandler := handlers.NewSyncHandler(queue, processor, delta)

	// Initialize HTTP Server
	router := chi.NewRouter()
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	router.Handle("/metrics", promhttp.Handler())

	router.Route("/sync", func(r chi.Router) {
		r.Use(handlers.TenantAuth(cfg.JWTSecret))
		syncHandler.Routes(r)
	})

	// Start Server
	server := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.ServerPort),
		Handler: router,
	}

	// graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("Shutting down server...")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		server.Shutdown(ctx)
	}()

	log.Printf("Starting server on port %s (durable queue store: %v)", cfg.ServerPort, store.Connected())
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatalf("Server error: %v", err)
	}

	log.Println("Server stopped gracefully")
}
