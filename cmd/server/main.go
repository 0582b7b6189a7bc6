package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"residence/internal/config"
	"residence/internal/db"
	"residence/internal/health"
	"residence/internal/http/middleware"
	"residence/internal/http/router"
	"residence/internal/lock"
	"residence/internal/logging"
	"residence/internal/notify"
	"residence/internal/repo"
	"residence/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	log, err := logging.New(cfg.LogLevel, cfg.LogDevelopment)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, cfg, log); err != nil {
		log.Fatal("server stopped", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	// --- Redis (optional) ---
	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		var err error
		if rdb, err = db.OpenRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB); err != nil {
			return err
		}
		defer rdb.Close()
	}

	// --- Store ---
	store, err := openStore(ctx, cfg, rdb, log)
	if err != nil {
		return err
	}
	defer func() {
		cctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := store.Close(cctx); err != nil {
			log.Warn("close store", zap.Error(err))
		}
	}()
	if rdb != nil {
		store.Sessions = repo.NewSessionRepoRedis(rdb)
	}

	// --- Notifications ---
	hub := notify.NewHub(log)
	go hub.Run()
	defer hub.Stop()

	dispatchers := notify.Multi{}
	if rdb != nil && cfg.NotifyChannel != "" {
		dispatchers = append(dispatchers, notify.NewRedisDispatcher(rdb, cfg.NotifyChannel))
		relay := notify.NewRelay(rdb, cfg.NotifyChannel, hub, log)
		go func() {
			if err := relay.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("notification relay", zap.Error(err))
			}
		}()
	} else {
		dispatchers = append(dispatchers, hub)
	}
	if cfg.AMQPURL != "" {
		amqp, err := notify.DialAMQP(cfg.AMQPURL, cfg.AMQPQueue)
		if err != nil {
			return err
		}
		defer amqp.Close()
		dispatchers = append(dispatchers, amqp)
	}

	// --- Services ---
	authSvc := service.NewAuthService(store.Users, store.Sessions, []byte(cfg.JWTSecret), cfg.SessionTTL)
	resSvc := service.NewReservationService(store.Facilities, store.Households, store.Reservations, dispatchers, log)
	facSvc := service.NewFacilityService(store.Facilities, store.Households, store.Users)
	calSvc := service.NewCalendarService(store.Facilities, store.Reservations)

	if err := authSvc.EnsureAdmin(ctx, cfg.AdminEmail, cfg.AdminPassword); err != nil {
		log.Warn("admin seed", zap.Error(err))
	}

	// --- HTTP ---
	if !cfg.LogDevelopment {
		gin.SetMode(gin.ReleaseMode)
	}
	sessions := "store"
	if rdb != nil {
		sessions = "redis"
	}
	engine, err := router.New(router.Deps{
		Auth:         authSvc,
		Reservations: resSvc,
		Facilities:   facSvc,
		Calendar:     calSvc,
		Hub:          hub,
		Limiter:      middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst),
		Origins:      cfg.CORSOrigins,
		Log:          log,
		Info:         gin.H{"db": cfg.StoreDriver, "sessions": sessions},
	})
	if err != nil {
		return err
	}
	c := cors.New(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization", middleware.RequestIDHeader},
		ExposedHeaders:   []string{middleware.RequestIDHeader},
		AllowCredentials: true,
	})
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           c.Handler(engine),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 2)
	go func() {
		log.Info("http listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- fmt.Errorf("http: %w", err)
		}
	}()

	// --- gRPC health ---
	if cfg.GRPCHealthAddr != "" {
		checks := map[string]health.Check{"store": store.Ping}
		if rdb != nil {
			checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
		}
		hs := health.New(checks, 10*time.Second, log)
		lis, err := net.Listen("tcp", cfg.GRPCHealthAddr)
		if err != nil {
			return fmt.Errorf("grpc health listen: %w", err)
		}
		go hs.Watch(ctx)
		go func() {
			log.Info("grpc health listening", zap.String("addr", cfg.GRPCHealthAddr))
			if err := hs.Serve(lis); err != nil {
				errc <- fmt.Errorf("grpc health: %w", err)
			}
		}()
		defer hs.Stop()
	}

	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err := <-errc:
		return err
	}
	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(sctx)
}

func openStore(ctx context.Context, cfg *config.Config, rdb *redis.Client, log *zap.Logger) (*repo.Store, error) {
	switch cfg.StoreDriver {
	case "memory":
		log.Warn("using in-memory store; data is lost on exit")
		return repo.NewMemoryStore(nil), nil
	case "postgres":
		gdb, err := db.OpenPostgres(cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		if err := repo.Migrate(gdb); err != nil {
			return nil, fmt.Errorf("migrate: %w", err)
		}
		return repo.NewPostgresStore(gdb, cfg.LockWait), nil
	default:
		mc, mdb, err := db.OpenMongo(ctx, cfg.MongoURI, cfg.MongoDB)
		if err != nil {
			return nil, err
		}
		if err := db.EnsureIndexes(ctx, mdb); err != nil {
			return nil, err
		}
		var locks lock.Locker = lock.NewLocal()
		if rdb != nil {
			locks = lock.NewRedis(rdb, cfg.LockTTL, cfg.LockWait, log)
		} else {
			log.Warn("no redis configured; facility locks are local to this process")
		}
		return repo.NewMongoStore(mc, mdb, locks), nil
	}
}
