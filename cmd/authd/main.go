// Command authd runs the marketplace authentication service: login with
// optional TOTP second factor, two-factor enrollment, and the platform
// toggle, exposed as JSON endpoints.
//
// Configuration comes from the environment (a .env file is loaded when
// present):
//
//	ADDR            listen address, default ":8080"
//	DATABASE_URL    PostgreSQL connection string
//	REDIS_ADDR      Redis address, default "localhost:6379"
//	SESSION_SECRET  HS256 signing secret, required outside demo mode
//
// The -demo flag swaps PostgreSQL and Redis for in-process fakes and seeds
// a demo account, which is enough to exercise every endpoint locally.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"

	authcore "github.com/scriptbay/authcore"
	"github.com/scriptbay/authcore/httpapi"
	"github.com/scriptbay/authcore/password"
	"github.com/scriptbay/authcore/store/memory"
	"github.com/scriptbay/authcore/store/postgres"
)

func main() {
	demo := flag.Bool("demo", false, "run with in-process stores and a seeded demo account")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("skipping .env: %v", err)
	}

	if err := run(*demo); err != nil {
		log.Fatal(err)
	}
}

func run(demo bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		store       authcore.AccountStore
		redisClient redis.UniversalClient
		secret      []byte
	)

	if demo {
		mr, err := miniredis.Run()
		if err != nil {
			return err
		}
		defer mr.Close()
		redisClient = redis.NewClient(&redis.Options{Addr: mr.Addr()})

		memStore := memory.New()
		if err := seedDemoAccount(ctx, memStore); err != nil {
			return err
		}
		store = memStore
		secret = []byte("demo-session-secret-do-not-deploy")
		log.Println("demo mode: sign in as demo@scriptbay.dev / password123")
	} else {
		secret = []byte(os.Getenv("SESSION_SECRET"))
		if len(secret) == 0 {
			return errors.New("SESSION_SECRET is required")
		}

		pool, err := pgxpool.New(ctx, os.Getenv("DATABASE_URL"))
		if err != nil {
			return err
		}
		defer pool.Close()

		pgStore := postgres.New(pool)
		if err := pgStore.EnsureSchema(ctx); err != nil {
			return err
		}
		store = pgStore

		redisAddr := os.Getenv("REDIS_ADDR")
		if redisAddr == "" {
			redisAddr = "localhost:6379"
		}
		redisClient = redis.NewClient(&redis.Options{Addr: redisAddr})
		defer redisClient.Close()
	}

	engine, err := authcore.New().
		WithSessionSecret(secret).
		WithRedis(redisClient).
		WithAccountStore(store).
		WithAuditSink(authcore.NewJSONWriterSink(os.Stdout)).
		Build()
	if err != nil {
		return err
	}
	defer engine.Close()

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Recover())
	e.Use(echomw.Logger())
	e.Use(echomw.ContextTimeout(10 * time.Second))

	handler := httpapi.NewHandler(engine)
	if demo {
		handler.SecureCookies = false
	}
	httpapi.RegisterRoutes(e, handler)
	e.GET("/healthz", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	addr := os.Getenv("ADDR")
	if addr == "" {
		addr = ":8080"
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- e.Start(addr)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}

func seedDemoAccount(ctx context.Context, store *memory.Store) error {
	hasher, err := password.NewHasher(password.DefaultCost)
	if err != nil {
		return err
	}
	hash, err := hasher.Hash("password123")
	if err != nil {
		return err
	}
	return store.Create(ctx, &authcore.Account{
		ID:           uuid.NewString(),
		Email:        "demo@scriptbay.dev",
		Name:         "Demo User",
		PasswordHash: hash,
		Role:         authcore.RoleAdmin,
		Active:       true,
	})
}
