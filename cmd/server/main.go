package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/megacity/cab/config"
	"github.com/megacity/cab/internal/handler"
	"github.com/megacity/cab/internal/middleware"
	"github.com/megacity/cab/internal/notify"
	"github.com/megacity/cab/internal/receipt"
	"github.com/megacity/cab/internal/repository/postgres"
	"github.com/megacity/cab/internal/service"
	"github.com/megacity/cab/pkg/cache"
	"github.com/megacity/cab/pkg/db"
)

func main() {
	// ── Load configuration ──────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	loc, err := time.LoadLocation(cfg.Booking.Timezone)
	if err != nil {
		log.Fatalf("failed to load timezone %q: %v", cfg.Booking.Timezone, err)
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// ── Connect to PostgreSQL ───────────────────────────
	pgPool, err := db.NewPostgresPool(ctx, cfg.Postgres)
	if err != nil {
		log.Fatalf("failed to connect to PostgreSQL: %v", err)
	}
	defer pgPool.Close()
	log.Println("✓ PostgreSQL connected")

	// ── Connect to Redis ────────────────────────────────
	redisClient, err := cache.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		log.Fatalf("failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()
	log.Println("✓ Redis connected")

	// ── Notification queue ──────────────────────────────
	// The broker is optional: without it notices go to the process log.
	var notifier service.Notifier
	amqpNotifier, err := notify.NewAMQPNotifier(cfg.AMQP.URL, cfg.AMQP.Queue)
	if err != nil {
		log.Printf("⚠ RabbitMQ unavailable (%v); falling back to log notifier", err)
		notifier = notify.LogNotifier{}
	} else {
		defer amqpNotifier.Close()
		notifier = amqpNotifier
		go notify.StartConsumer(ctx, cfg.AMQP.URL, cfg.AMQP.Queue, cfg.Booking.NotificationLog)
		log.Println("✓ RabbitMQ connected")
	}

	// ── Initialize layers ───────────────────────────────
	store := postgres.NewStore(pgPool, redisClient)
	clock := service.NewClock(loc)
	pricing := service.Pricing{
		CancelWindow:     cfg.Booking.CancelWindow,
		CancelFeePercent: cfg.Booking.CancelFeePercent,
	}
	receipts := receipt.NewWriter(cfg.Booking.ReceiptDir)

	bookingSvc := service.NewBookingService(store, notifier, receipts, clock, pricing, loc)
	reconciler := service.NewReconciler(store, clock, cfg.Booking.ReconcileInterval)
	go reconciler.Run(ctx)

	bookingHandler := handler.NewBookingHandler(bookingSvc, loc)
	fleetHandler := handler.NewFleetHandler(store)

	// ── Setup router ────────────────────────────────────
	router := mux.NewRouter()

	// Health check endpoint.
	router.HandleFunc("/health", healthHandler(pgPool, redisClient)).Methods(http.MethodGet)

	// API v1 routes.
	api := router.PathPrefix("/api/v1").Subrouter()
	// Booking lifecycle
	api.HandleFunc("/bookings", bookingHandler.CreateBooking).Methods(http.MethodPost)
	api.HandleFunc("/bookings", bookingHandler.ListBookings).Methods(http.MethodGet)
	api.HandleFunc("/bookings/{id}", bookingHandler.GetBooking).Methods(http.MethodGet)
	api.HandleFunc("/bookings/{id}", bookingHandler.DeleteBooking).Methods(http.MethodDelete)
	api.HandleFunc("/bookings/{id}/confirm", bookingHandler.ConfirmBooking).Methods(http.MethodPost)
	api.HandleFunc("/bookings/{id}/cancel", bookingHandler.CancelBooking).Methods(http.MethodPost)
	api.HandleFunc("/customers/{id}/bookings", bookingHandler.ListCustomerBookings).Methods(http.MethodGet)
	// Fleet registration
	api.HandleFunc("/cars", fleetHandler.CreateCar).Methods(http.MethodPost)
	api.HandleFunc("/cars", fleetHandler.ListCars).Methods(http.MethodGet)
	api.HandleFunc("/drivers", fleetHandler.CreateDriver).Methods(http.MethodPost)
	api.HandleFunc("/drivers", fleetHandler.ListDrivers).Methods(http.MethodGet)
	api.HandleFunc("/customers", fleetHandler.CreateCustomer).Methods(http.MethodPost)

	// Wrap with CORS so Swagger UI (and other browser clients) can call the API.
	h := middleware.RequestLogger(middleware.Recoverer(middleware.CORS(router)))

	// ── Start HTTP server ───────────────────────────────
	srv := &http.Server{
		Addr:         cfg.Server.ServerAddr(),
		Handler:      h,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start in a goroutine so we can listen for shutdown signals.
	go func() {
		log.Printf("🚀 Server listening on %s", cfg.Server.ServerAddr())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	// ── Graceful shutdown ───────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("⏳ Shutting down server...")

	stop() // stops the reconciler and the queue consumer

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("server forced to shutdown: %v", err)
	}

	log.Println("✅ Server gracefully stopped")
}

// HealthResponse represents the /health endpoint response.
type HealthResponse struct {
	Status   string            `json:"status"`
	Services map[string]string `json:"services"`
}

// healthHandler returns an HTTP handler that checks PG and Redis connectivity.
func healthHandler(pgPool *pgxpool.Pool, redisClient *redis.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := HealthResponse{
			Status:   "ok",
			Services: make(map[string]string),
		}

		if err := db.HealthCheck(r.Context(), pgPool); err != nil {
			resp.Status = "degraded"
			resp.Services["postgres"] = "unhealthy: " + err.Error()
		} else {
			resp.Services["postgres"] = "healthy"
		}

		if err := cache.HealthCheck(r.Context(), redisClient); err != nil {
			resp.Status = "degraded"
			resp.Services["redis"] = "unhealthy: " + err.Error()
		} else {
			resp.Services["redis"] = "healthy"
		}

		w.Header().Set("Content-Type", "application/json")
		if resp.Status != "ok" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(resp)
	}
}
