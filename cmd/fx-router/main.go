package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"

	"github.com/Checker-Finance/fx-router/internal/api"
	"github.com/Checker-Finance/fx-router/internal/deals"
	"github.com/Checker-Finance/fx-router/internal/multirail"
	"github.com/Checker-Finance/fx-router/internal/pricing"
	"github.com/Checker-Finance/fx-router/internal/publisher"
	"github.com/Checker-Finance/fx-router/internal/rates"
	"github.com/Checker-Finance/fx-router/internal/refdata"
	"github.com/Checker-Finance/fx-router/internal/routing"
	"github.com/Checker-Finance/fx-router/internal/rules"
	"github.com/Checker-Finance/fx-router/pkg/config"
	"github.com/Checker-Finance/fx-router/pkg/logger"
	pkgsecrets "github.com/Checker-Finance/fx-router/pkg/secrets"
	"github.com/Checker-Finance/fx-router/pkg/utils"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Load configuration ---
	cfg := config.Load()

	logger.Init(cfg.ServiceName, cfg.Env, cfg.LogLevel)
	logg := logger.S()
	logg.Info("starting [fx-router]...")
	if cfg.DatabaseURL != "" {
		logg.Info("mirroring deals to: ", utils.MaskDSN(cfg.DatabaseURL))
	}

	// --- Reference tables ---
	registry, err := refdata.NewRegistry(cfg.DataDir, logger.L())
	if err != nil {
		logg.Fatalw("failed to load reference tables", "error", err)
	}

	// --- Rules engine ---
	ruleEngine, err := rules.NewEngine(filepath.Join(cfg.DataDir, "rules.json"), cfg.RulesTimezone, logger.L())
	if err != nil {
		logg.Fatalw("failed to load rules", "error", err)
	}

	// --- Rate source + cache ---
	book := rates.NewStaticSource()
	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			DB:       cfg.RedisDB,
			Password: cfg.RedisPass,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			logg.Warnw("redis unavailable; rate cache disabled", "error", err)
			rdb = nil
		}
	}
	cached := rates.NewCached(book, rdb, cfg.RateTimeout, cfg.RateStaleTTL, logger.L())

	// --- Optional market-data websocket feed ---
	if cfg.RateFeedURL != "" {
		var resolver pkgsecrets.Provider
		if cfg.RateFeedSecret != "" {
			resolver, err = pkgsecrets.NewAWSProvider(cfg.AWSRegion)
			if err != nil {
				logg.Fatalw("failed to init AWS provider", "error", err)
			}
		}
		feed := rates.NewFeed(cfg.RateFeedURL, cfg.RateFeedSecret, book, resolver, logger.L())
		go feed.Start(ctx)
	}

	// --- NATS publisher ---
	var pub *publisher.Publisher
	nc, err := nats.Connect(cfg.NATSURL)
	if err != nil {
		logg.Warnw("NATS unavailable; event publishing disabled", "error", err)
	} else {
		defer nc.Drain() //nolint:errcheck
		pub, err = publisher.New(nc, cfg.DealSubject, cfg.ServiceName)
		if err != nil {
			logg.Fatalw("failed to init publisher", "error", err)
		}
	}

	// --- Optional Postgres mirror ---
	var pgPool *pgxpool.Pool
	if cfg.DatabaseURL != "" {
		pgPool, err = pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logg.Fatalw("failed to connect to postgres", "error", err)
		}
		defer pgPool.Close()
	}
	mirror := deals.NewMirror(pgPool, logger.L())

	// --- Deals store ---
	var events deals.Events
	if pub != nil {
		events = pub
	}
	dealStore, err := deals.NewStore(filepath.Join(cfg.DataDir, "deals.jsonl"), mirror, events, cfg.DealSubject, logger.L())
	if err != nil {
		logg.Fatalw("failed to open deals store", "error", err)
	}
	defer dealStore.Close() //nolint:errcheck

	// --- Engines ---
	pricingEngine, err := pricing.NewEngine(
		registry, cached, ruleEngine,
		filepath.Join(cfg.DataDir, cfg.NegotiatedFile),
		cfg.QuoteValidity, logger.L(),
	)
	if err != nil {
		logg.Fatalw("failed to init pricing engine", "error", err)
	}
	routingEngine := routing.NewEngine(registry, ruleEngine, logger.L())
	multiRailRouter := multirail.NewRouter(registry, cached, logger.L())

	// --- HTTP surface ---
	app := fiber.New()
	h := &api.Handler{
		Logger:    logger.L(),
		Registry:  registry,
		Rates:     cached,
		RateList:  book,
		Routing:   routingEngine,
		MultiRail: multiRailRouter,
		Pricing:   pricingEngine,
		Deals:     dealStore,
		Rules:     ruleEngine,
	}
	api.RegisterRoutes(app, h)

	go func() {
		logg.Infof("HTTP API listening on :%d", cfg.Port)
		if err := app.Listen(fmt.Sprintf(":%d", cfg.Port)); err != nil {
			logg.Fatalw("fiber.listen_failed", "error", err)
		}
	}()

	logg.Infow("[fx-router] running",
		"nats", cfg.NATSURL,
		"data_dir", cfg.DataDir,
		"rules_timezone", cfg.RulesTimezone,
	)

	<-ctx.Done()
	stop()
	logg.Info("shutting down [fx-router]...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	app.ShutdownWithContext(shutdownCtx) //nolint:errcheck
}
