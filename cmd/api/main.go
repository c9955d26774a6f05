package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"

	"moneta.app/internal/auth"
	"moneta.app/internal/config"
	"moneta.app/internal/finance"
	"moneta.app/internal/httpapi"
	"moneta.app/internal/migrate"
	"moneta.app/internal/notify"
	"moneta.app/internal/obs"
	"moneta.app/internal/store/pg"
	"moneta.app/internal/users"
)

var (
	version = "0.1.0"
	commit  = ""
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// Observability: metrics registration and build_info
	obs.Init()
	obs.InitBuildInfo(version, commit)
	log.Printf("Starting moneta-api %s%s", version, cfg)

	var (
		userStore    users.Store        = users.NewInMemory()
		financeStore finance.Repository = finance.NewInMemory()
		notifyStore  notify.Store       = notify.NewInMemory()
		probe        httpapi.ReadyProbe
		pgStore      *pg.Store
	)

	// Database (when a DSN is set): migrations, repositories, readiness
	if cfg.PGDSN != "" {
		pgStore, err = pg.Open(cfg.PGDSN)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err = migrate.NewManager(pgStore.DB()).Up(ctx)
		cancel()
		if err != nil {
			log.Fatalf("migrate: %v", err)
		}
		userStore, financeStore, notifyStore = pgStore, pgStore, pgStore
		probe.DB = pgStore.DB()
	}

	var backend auth.Backend = auth.NewMemoryBackend()
	var redisBackend *auth.RedisBackend
	if cfg.RedisAddr != "" {
		redisBackend = auth.NewRedisBackend(auth.RedisConfig{
			Addr:     cfg.RedisAddr,
			DB:       cfg.RedisDB,
			Password: cfg.RedisPassword,
			EntryTTL: cfg.TokenTTL(),
		})
		backend = redisBackend
		probe.Cache = redisBackend
	}
	cache := auth.NewTokenCache(backend)

	tokens, err := auth.NewTokenService(cfg.JWTSecret, cfg.TokenTTL(), cache)
	if err != nil {
		log.Fatalf("token service: %v", err)
	}
	hasher, err := auth.NewHasher(cfg.PasswordHasher)
	if err != nil {
		log.Fatalf("hasher: %v", err)
	}

	userSvc := users.NewService(userStore, hasher, tokens, cache)
	notifySvc := notify.NewService(notifyStore, userSvc,
		notify.WithHub(notify.NewHub()),
		notify.WithSender(cfg.MailFrom),
	)
	financeSvc := finance.NewService(financeStore,
		finance.WithNotifier(notifySvc),
		finance.WithWarnPercent(cfg.BudgetWarnPercent),
	)

	if cfg.AdminEmail != "" && cfg.AdminPassword != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		admin, err := userSvc.EnsureAdmin(ctx, cfg.AdminEmail, cfg.AdminPassword)
		cancel()
		if err != nil {
			log.Fatalf("bootstrap admin: %v", err)
		}
		obs.Info("admin_ready", map[string]any{"user_id": admin.ID, "email": admin.Email})
	}

	// HTTP API
	api, err := httpapi.New(httpapi.Options{
		Users:        userSvc,
		Finance:      financeSvc,
		Notify:       notifySvc,
		Tokens:       tokens,
		TokenTTL:     cfg.TokenTTL(),
		Ready:        probe,
		Version:      version,
		RatePerSec:   cfg.RateLimitRPS,
		RateBurst:    cfg.RateLimitBurst,
		MaxBodyBytes: cfg.MaxBodyBytes,
	})
	if err != nil {
		log.Fatalf("http api: %v", err)
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// gRPC health
	health := httpapi.NewGRPCServer(probe, version)
	grpcSrv := grpc.NewServer()
	health.Register(grpcSrv)
	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		log.Fatalf("grpc listen: %v", err)
	}

	ctx, stopWatch := context.WithCancel(context.Background())
	go health.Watch(ctx, 10*time.Second)

	go func() {
		if err := grpcSrv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			log.Fatalf("grpc serve: %v", err)
		}
	}()
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()
	log.Printf("Listening http=%s grpc=%s", cfg.HTTPAddr, cfg.GRPCAddr)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")
	stopWatch()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(shutdownCtx)
	grpcSrv.GracefulStop()
	if redisBackend != nil {
		_ = redisBackend.Close()
	}
	if pgStore != nil {
		_ = pgStore.Close()
	}
	log.Println("Stopped")
}
