package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/udisondev/clanregistry/internal/ban"
	"github.com/udisondev/clanregistry/internal/config"
	"github.com/udisondev/clanregistry/internal/db"
	"github.com/udisondev/clanregistry/internal/economy"
	"github.com/udisondev/clanregistry/internal/gameserver/clan"
	"github.com/udisondev/clanregistry/internal/gameserver/registry"
	"github.com/udisondev/clanregistry/internal/metrics"
	"github.com/udisondev/clanregistry/internal/ops"
)

var _ registry.SnapshotSaver = (*db.ClanRepository)(nil)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("shutting down", "signal", sig)
		cancel()
	}()

	if err := run(ctx); err != nil {
		slog.Error("fatal", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfgPath := config.Path()
	cfg, err := config.LoadClanServer(cfgPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.LogLevel),
	})))

	slog.Info("clan registry starting", "config", cfgPath)

	// Database
	if err := db.RunMigrations(ctx, cfg.Database.DSN()); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	slog.Info("database migrations applied")

	database, err := db.New(ctx, cfg.Database.DSN())
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer database.Close()
	slog.Info("database connected")

	checks := map[string]ops.Check{
		"postgres": database.Ping,
	}

	// Ban list: Redis when configured, process memory otherwise
	var bans registry.BanList
	redisClient, err := ban.NewClient(ctx, cfg.Redis)
	if err != nil {
		return fmt.Errorf("connecting to redis: %w", err)
	}
	if redisClient != nil {
		defer redisClient.Close() //nolint:errcheck
		list := ban.NewRedisList(redisClient)
		bans = list
		checks["redis"] = list.Health
		slog.Info("redis ban list enabled")
	} else {
		bans = ban.NewMemoryList()
		slog.Warn("redis not configured, ban list is not shared or durable")
	}

	// Economy. No currency backend is attached yet, so paid purchases are rejected.
	gate := economy.NewPriceGate(economy.Prices{
		Creation:     economy.Price{Enabled: cfg.Clans.PurchaseCreation, Amount: cfg.Clans.CreationPrice},
		Verification: economy.Price{Enabled: cfg.Clans.PurchaseVerification, Amount: cfg.Clans.VerificationPrice},
	}, nil)
	if cfg.Clans.PurchaseCreation || cfg.Clans.PurchaseVerification {
		slog.Warn("clan purchases enabled without an accounts backend, paid actions will be rejected",
			"creation", cfg.Clans.PurchaseCreation,
			"verification", cfg.Clans.PurchaseVerification)
	}

	// Metrics
	promReg := prometheus.NewRegistry()
	promReg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(promReg)

	reg, err := registry.Open(ctx, db.NewClanRepository(database.Pool()), registry.Options{
		Policy: clan.Policy{
			RequireVerification: cfg.Clans.RequireVerification,
			TagMinLength:        cfg.Clans.TagMinLength,
			TagMaxLength:        cfg.Clans.TagMaxLength,
			Unrivable:           cfg.Clans.UnrivableClans,
		},
		Notifier:       registry.NotifierFunc(logAffiliation),
		Bans:           bans,
		Gate:           gate,
		Metrics:        m,
		PersistTimeout: cfg.Registry.PersistTimeout,
		GateTimeout:    cfg.Registry.GateTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening clan registry: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return reg.RunFlushLoop(gctx, cfg.Registry.FlushInterval)
	})

	g.Go(func() error {
		srv := ops.NewServer(cfg.Ops.BindAddress, ops.New(reg, promReg, checks).Router())
		slog.Info("ops server listening", "address", cfg.Ops.BindAddress)
		if err := ops.Run(gctx, srv); err != nil {
			return fmt.Errorf("ops server: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// logAffiliation stands in for the game-side display refresh.
func logAffiliation(p *clan.Player, c *clan.Clan) {
	if c == nil {
		slog.Debug("affiliation changed", "player", p.Name, "clan", "")
		return
	}
	slog.Debug("affiliation changed", "player", p.Name, "clan", c.Tag, "color", c.ColorTag)
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
