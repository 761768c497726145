package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/capecontrol/capecontrol-auth/internal/config"
	"github.com/capecontrol/capecontrol-auth/internal/database"
	"github.com/capecontrol/capecontrol-auth/internal/handler"
	"github.com/capecontrol/capecontrol-auth/internal/middleware"
	"github.com/capecontrol/capecontrol-auth/internal/queue"
	"github.com/capecontrol/capecontrol-auth/internal/repository"
	"github.com/capecontrol/capecontrol-auth/internal/router"
	"github.com/capecontrol/capecontrol-auth/internal/service"
	"github.com/capecontrol/capecontrol-auth/internal/utils"
)

var serveMigrate bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		logger := newLogger(cfg.LogLevel, cfg.LogFormat, os.Stdout)
		slog.SetDefault(logger)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return serve(ctx, cfg, logger)
	},
}

func init() {
	serveCmd.Flags().BoolVar(&serveMigrate, "migrate", false, "apply the schema before serving (mysql store only)")
	rootCmd.AddCommand(serveCmd)
}

// stores groups the persistence ports of the service. pinger is nil for
// the in-memory store.
type stores struct {
	users    service.UserStore
	tokens   service.TokenLedger
	audit    service.AuditLog
	earnings service.EarningsSource
	pinger   handler.Pinger
	close    func()
}

func openStores(ctx context.Context, cfg config.Config, logger *slog.Logger) (stores, error) {
	if cfg.StoreDriver == config.DriverMemory {
		logger.Warn("using in-memory store; data is lost on restart")
		m := repository.NewMemoryStore()
		return stores{users: m, tokens: m, audit: m, earnings: m, close: func() {}}, nil
	}
	db, err := database.Open(ctx, cfg.DSN())
	if err != nil {
		return stores{}, err
	}
	if serveMigrate {
		if err := database.Migrate(ctx, db); err != nil {
			db.Close()
			return stores{}, err
		}
		logger.Info("schema applied")
	}
	return mysqlStores(db), nil
}

func mysqlStores(db *sql.DB) stores {
	return stores{
		users:    repository.NewUserRepo(db),
		tokens:   repository.NewTokenRepo(db),
		audit:    repository.NewAuditRepo(db),
		earnings: repository.NewEarningsRepo(db),
		pinger:   db,
		close:    func() { db.Close() },
	}
}

func serve(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.close()

	// Redis only backs optional features; without it they pass through.
	rdb, err := config.NewRedisClient(ctx)
	if err != nil {
		logger.Warn("redis unavailable; rate limiting, caching and denylist disabled", "err", err)
	} else {
		defer rdb.Close()
	}

	var (
		svcDeny service.Denylist
		mwDeny  middleware.AccessDenylist
	)
	if cfg.DenylistEnabled && rdb != nil {
		d := repository.NewRedisDenylist(rdb, os.Getenv("DENYLIST_PREFIX"))
		svcDeny, mwDeny = d, d
	}

	var notifier service.ResetNotifier = queue.LogNotifier{Logger: logger}
	if cfg.RabbitURL != "" {
		outbox := queue.NewOutbox(queue.NewPublisher(cfg.RabbitURL, logger), 256, 5*time.Second, logger)
		go outbox.Run(ctx)
		notifier = outbox
	}

	issuer := utils.NewIssuer(cfg.JWTSecret, cfg.JWTIssuer, cfg.AccessTTL, cfg.RefreshTTL)
	svc := service.NewAuthService(service.Deps{
		Users:    st.users,
		Tokens:   st.tokens,
		Audit:    st.audit,
		Earnings: st.earnings,
		Issuer:   issuer,
		Notifier: notifier,
		Denylist: svcDeny,
		Logger:   logger,
	}, service.Options{
		BcryptCost:    cfg.BcryptCost,
		Password:      cfg.Password,
		ResetTTL:      cfg.ResetTTL,
		RotateRefresh: cfg.RotateRefresh,
		ResetLinkBase: cfg.ResetLinkBase,
	})

	e := newEcho(logger)
	router.RegisterRoutes(e, st.pinger)
	router.RegisterAuth(e, handler.NewAuthHandler(svc), router.AuthMiddleware{
		Verifier: issuer,
		Denylist: mwDeny,
		Limiter:  limiter(rdb),
		Cache:    middleware.NewRedisCache(config.LoadCacheConfig(), rdb),
	})

	addr := ":" + cfg.Port
	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", addr, "env", cfg.Env, "store", cfg.StoreDriver)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}

func limiter(rdb *redis.Client) echo.MiddlewareFunc {
	return middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb)
}

// newEcho creates the server with request ids, structured access logs,
// panic recovery and a body size limit.
func newEcho(logger *slog.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(echomw.RequestIDWithConfig(echomw.RequestIDConfig{Generator: uuid.NewString}))
	e.Use(echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogStatus:    true,
		LogURI:       true,
		LogMethod:    true,
		LogLatency:   true,
		LogRemoteIP:  true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			attrs := []any{
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency_ms", v.Latency.Milliseconds(),
				"remote_ip", v.RemoteIP,
				"request_id", v.RequestID,
			}
			if v.Error != nil {
				logger.LogAttrs(c.Request().Context(), slog.LevelError, "request", slog.Group("http", attrs...), slog.String("err", v.Error.Error()))
				return nil
			}
			logger.Info("request", slog.Group("http", attrs...))
			return nil
		},
	}))
	e.Use(echomw.Recover())
	e.Use(echomw.BodyLimit("1M"))
	return e
}
