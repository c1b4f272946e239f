package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/plugins/migratecmd"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"ticket-marketplace/config"
	"ticket-marketplace/internal/events"
	"ticket-marketplace/internal/handlers"
	"ticket-marketplace/internal/identity"
	"ticket-marketplace/internal/services"
	"ticket-marketplace/internal/services/gateway"
	"ticket-marketplace/internal/store"
	"ticket-marketplace/internal/store/memstore"
	"ticket-marketplace/internal/store/mongostore"
	"ticket-marketplace/internal/store/pbstore"
	_ "ticket-marketplace/migrations"
	"ticket-marketplace/monitoring"
	"ticket-marketplace/security"
	"ticket-marketplace/utils"
)

func Start() error {
	app := pocketbase.New()

	// Load configuration
	cfg := config.LoadConfig()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize Redis. Without it the service still works, minus the
	// session cache, the webhook fast path and rate limiting.
	redisClient, err := utils.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		slog.Warn("Redis unavailable, continuing without it", "error", err)
	} else {
		defer redisClient.Close()
	}

	st, err := openStore(ctx, app, cfg)
	if err != nil {
		return err
	}
	defer st.Close(context.Background())

	publisher := newPublisher(cfg)

	gw, err := newGateway(cfg)
	if err != nil {
		return err
	}

	// Initialize services
	catalog := services.NewCatalogService(st, nil)
	bookings := services.NewBookingService(st, publisher, nil)
	settlement := services.NewSettlement(st, publisher, nil)
	payments := services.NewPaymentService(st, gw, redisClient, settlement, services.PaymentConfig{
		Currency:   cfg.PaymentCurrency,
		ClientURL:  cfg.ClientURL,
		SessionTTL: cfg.CheckoutSessionTTL,
		DedupeTTL:  cfg.WebhookDedupeTTL,
	})

	// Initialize handlers
	server := &handlers.Server{
		Auth: &handlers.Authenticator{
			Verifier: identity.NewJWTVerifier(cfg.JWTSecret, cfg.JWTIssuer),
			Catalog:  catalog,
		},
		Bookings:    handlers.NewBookingHandler(bookings),
		Payments:    handlers.NewPaymentHandler(payments),
		Tickets:     handlers.NewTicketHandler(catalog),
		Admin:       handlers.NewAdminHandler(catalog, bookings),
		Health:      handlers.NewHealthHandler(redisClient),
		Development: cfg.IsDevelopment(),
	}

	var limiter *security.RateLimiter
	if redisClient != nil {
		limiter = security.NewRateLimiter(redisClient, cfg.BookingRateLimit, cfg.RateLimitWindow)
		server.Limiter = limiter
	}

	// Enable migrations
	migratecmd.MustRegister(app, app.RootCmd, migratecmd.Config{
		Automigrate: cfg.IsDevelopment(),
	})
	app.RootCmd.AddCommand(newReconcileCmd(bookings))

	// Start background tasks
	if redisClient != nil {
		go monitoring.NewMonitor(redisClient).Run(ctx)
	}
	if cfg.EnableMetrics {
		go serveMetrics(ctx, cfg.MetricsPort)
	}

	// Setup graceful shutdown
	go handleShutdown(cancel)

	app.OnServe().BindFunc(func(se *core.ServeEvent) error {
		if limiter != nil {
			se.Router.BindFunc(limiter.AntiBot())
		}
		server.Register(se.Router)

		log.Printf("Serving with store=%s payments=%s", cfg.StoreDriver, cfg.PaymentProvider)
		return se.Next()
	})

	// Start server
	if err := app.Start(); err != nil {
		log.Fatal(err)
	}
	return nil
}

func openStore(ctx context.Context, app *pocketbase.PocketBase, cfg *config.Config) (store.Store, error) {
	switch cfg.StoreDriver {
	case config.DriverMongo:
		s, err := mongostore.Connect(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, err
		}
		if err := s.EnsureIndexes(ctx); err != nil {
			_ = s.Close(ctx)
			return nil, err
		}
		return s, nil
	case config.DriverMemory:
		slog.Warn("Using the in-memory store, data is lost on restart")
		return memstore.New(), nil
	default:
		return pbstore.New(app), nil
	}
}

func newPublisher(cfg *config.Config) events.Publisher {
	if cfg.PubNubPublishKey == "" || cfg.PubNubSubscribeKey == "" {
		slog.Info("PubNub keys not set, lifecycle events are not published")
		return events.Nop{}
	}
	return events.NewPubNubPublisher(events.Config{
		PublishKey:   cfg.PubNubPublishKey,
		SubscribeKey: cfg.PubNubSubscribeKey,
		SecretKey:    cfg.PubNubSecretKey,
		UserID:       cfg.PubNubUserID,
		Channel:      cfg.PubNubChannel,
	})
}

func newGateway(cfg *config.Config) (gateway.Gateway, error) {
	factory := gateway.NewFactory()
	if cfg.PaymentProvider == config.ProviderStripe {
		return factory.Create(gateway.ProviderStripe, &gateway.StripeConfig{
			SecretKey:     cfg.StripeSecretKey,
			WebhookSecret: cfg.StripeWebhookSecret,
		})
	}
	return factory.Create(gateway.ProviderSandbox, &gateway.SandboxConfig{
		WebhookSecret:   cfg.SandboxWebhookSecret,
		CheckoutBaseURL: cfg.ClientURL,
	})
}

func serveMetrics(ctx context.Context, port string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: ":" + port, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Info("Metrics listening", "addr", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Metrics server stopped", "error", err)
	}
}

// handleShutdown handles graceful shutdown
func handleShutdown(cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan
	log.Println("Shutdown signal received, cleaning up...")
	cancel()
}
