package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	sghttp "github.com/Strob0t/spacegate/internal/adapter/http"
	"github.com/Strob0t/spacegate/internal/adapter/jwt"
	sgnats "github.com/Strob0t/spacegate/internal/adapter/nats"
	sgotel "github.com/Strob0t/spacegate/internal/adapter/otel"
	"github.com/Strob0t/spacegate/internal/adapter/spacecache"
	"github.com/Strob0t/spacegate/internal/adapter/ws"
	"github.com/Strob0t/spacegate/internal/config"
	"github.com/Strob0t/spacegate/internal/domain/authz"
	"github.com/Strob0t/spacegate/internal/domain/identity"
	"github.com/Strob0t/spacegate/internal/logger"
	"github.com/Strob0t/spacegate/internal/middleware"
	"github.com/Strob0t/spacegate/internal/port/cache"
	"github.com/Strob0t/spacegate/internal/port/directory"
	"github.com/Strob0t/spacegate/internal/port/messagequeue"
	"github.com/Strob0t/spacegate/internal/resilience"
	"github.com/Strob0t/spacegate/internal/service"
)

const (
	idempotencyTTL      = 10 * time.Minute
	idempotencyCacheMB  = 4
	limiterCleanupEvery = time.Minute
	limiterMaxIdle      = 10 * time.Minute
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "admin" {
		if err := runAdmin(os.Args[2:]); err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			os.Exit(1)
		}
		return
	}

	if err := run(os.Args[1:]); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	flags, err := config.ParseFlags(args)
	if err != nil {
		return fmt.Errorf("flags: %w", err)
	}
	cfg, cfgPath, err := config.LoadWithCLI(flags)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, logCloser := logger.New(cfg.Logging)
	defer logCloser.Close()
	slog.SetDefault(log)

	slog.Info("config loaded",
		"path", cfgPath,
		"port", cfg.Server.Port,
		"log_level", cfg.Logging.Level,
		"directory", cfg.Tenancy.Directory,
		"cache", cfg.Cache.Enabled,
		"super_admins", len(cfg.Auth.AllSuperAdmins()),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Telemetry ---
	otelShutdown, err := sgotel.Init(ctx, cfg.OTEL)
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(sctx); err != nil {
			slog.Warn("otel shutdown", "error", err)
		}
	}()
	metrics, err := sgotel.NewMetrics()
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	// --- Infrastructure ---
	store, closeStore, err := openDirectory(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	if err := ensureDefaultSpace(ctx, store.dir, cfg.Tenancy.DefaultSpaceID); err != nil {
		return fmt.Errorf("default space: %w", err)
	}

	var (
		queue messagequeue.Queue
		nc    *sgnats.Queue
	)
	if cfg.NATS.URL != "" {
		nc, err = sgnats.Connect(ctx, cfg.NATS.URL)
		if err != nil {
			return fmt.Errorf("nats: %w", err)
		}
		defer func() { _ = nc.Close() }()
		queue = nc
		slog.Info("nats connected", "url", cfg.NATS.URL)
	}

	// Directory cache. The tiered variant shares entries across instances
	// through a JetStream KV bucket.
	dir := store.dir
	var (
		invalidator service.Invalidator
		idemStore   cache.Cache
	)
	if cfg.Cache.Enabled {
		l1, err := spacecache.NewL1(cfg.Cache.L1MaxSizeMB << 20)
		if err != nil {
			return fmt.Errorf("l1 cache: %w", err)
		}
		defer l1.Close()

		var c cache.Cache = l1
		if nc != nil && cfg.Cache.L2Bucket != "" {
			kv, err := nc.KeyValue(ctx, cfg.Cache.L2Bucket, cfg.Cache.L2TTL)
			if err != nil {
				return fmt.Errorf("l2 cache: %w", err)
			}
			c = spacecache.NewTiered(l1, spacecache.NewL2(kv), cfg.Cache.L1TTL)
			slog.Info("tiered space cache enabled", "bucket", cfg.Cache.L2Bucket)
		}
		cached := spacecache.NewDirectory(store.dir, c, cfg.Cache.L1TTL)
		dir, invalidator, idemStore = cached, cached, c
	}
	if idemStore == nil {
		l1, err := spacecache.NewL1(idempotencyCacheMB << 20)
		if err != nil {
			return fmt.Errorf("idempotency cache: %w", err)
		}
		defer l1.Close()
		idemStore = l1
	}

	breaker := resilience.NewBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout,
		resilience.WithFailureFilter(service.IsDirectoryFailure),
		resilience.WithStateChange(func(from, to resilience.State) {
			slog.Warn("directory breaker state change", "from", from.String(), "to", to.String())
			metrics.RecordBreakerChange(context.Background(), to.String())
		}),
	)

	// --- Services ---
	policy := authz.NewPolicy(cfg.Auth.AllSuperAdmins())
	keys, err := openSigningKeys(ctx, cfg.Auth)
	if err != nil {
		return fmt.Errorf("signing keys: %w", err)
	}
	tokens := jwt.NewRotatingProvider(keys, cfg.Auth.Issuer, cfg.Auth.TokenTTL)
	// The hub re-checks admin rights before each event; spaces is set below.
	var spaces *service.SpaceService
	hub := ws.NewHub(func(ctx context.Context, spaceID string) (func(*identity.Identity) bool, error) {
		return spaces.AdminGate(ctx, spaceID)
	}, originPatterns(cfg.Server.CORSOrigin)...)
	defer hub.Close()

	events := service.NewSpaceEvents(queue, hub, invalidator)
	spaces = service.NewSpaceService(dir, policy, events, metrics)
	cancelEvents, err := events.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("space event subscriber: %w", err)
	}
	defer cancelEvents()

	handlers := &sghttp.Handlers{
		Spaces:    spaces,
		Resolver:  service.NewHostResolver(dir, cfg.Tenancy, breaker, metrics),
		Sessions:  service.NewSessionService(tokens, cfg.Auth.CookieName, metrics),
		Auth:      service.NewAuthService(store.users, tokens, policy, cfg.Auth.BcryptCost),
		Directory: store.dir,
		Events:    hub,
		BodyLimit: cfg.Server.BodyLimit,
	}

	loginLimiter := middleware.NewRateLimiter(cfg.Auth.LoginRate, cfg.Auth.LoginBurst, middleware.SpaceClientIP)
	loginLimiter.StartCleanup(ctx, limiterCleanupEvery, limiterMaxIdle)

	// --- HTTP ---
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(sghttp.Logger)
	r.Use(chimw.Recoverer)
	r.Use(timeoutUnlessUpgrade(cfg.Server.RequestTimeout))
	r.Use(sghttp.SecurityHeaders)
	r.Use(sghttp.CORS(cfg.Server.CORSOrigin))
	r.Use(sgotel.HTTPMiddleware(cfg.OTEL.ServiceName))

	sghttp.MountRoutes(r, handlers, sghttp.RouteOptions{
		LoginLimiter: loginLimiter,
		Idempotency:  middleware.Idempotency(idemStore, idempotencyTTL),
	})

	addr := ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server: %w", err)
		}
	case <-ctx.Done():
	}
	slog.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// directoryStore bundles the backend chosen by tenancy.directory.
type directoryStore struct {
	dir   directory.Directory
	users directory.UserStore
}

// timeoutUnlessUpgrade applies chi's Timeout to every request except
// websocket upgrades, which live as long as the client.
func timeoutUnlessUpgrade(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		timed := chimw.Timeout(d)(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
				next.ServeHTTP(w, r)
				return
			}
			timed.ServeHTTP(w, r)
		})
	}
}

// originPatterns turns the CORS origin into websocket origin patterns.
func originPatterns(origin string) []string {
	if origin == "" {
		return nil
	}
	if _, host, ok := strings.Cut(origin, "://"); ok {
		return []string{host}
	}
	return []string{origin}
}
