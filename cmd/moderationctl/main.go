package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/autobahn/moderation/internal/bootstrap"
	"github.com/autobahn/moderation/internal/cli"
	"github.com/autobahn/moderation/internal/platform/config"
	"github.com/autobahn/moderation/internal/platform/database"
	"github.com/autobahn/moderation/internal/platform/logger"
)

const serviceName = "moderationctl"

// backend builds the components on first use, so `token` and `--help` never
// touch the database.
type backend struct {
	cfg        *config.Config
	logger     *slog.Logger
	components *bootstrap.Components
}

func (b *backend) Services(ctx context.Context) (*cli.Services, error) {
	if b.components == nil {
		c, err := bootstrap.Build(ctx, b.cfg, b.logger, bootstrap.Options{AppName: serviceName})
		if err != nil {
			return nil, err
		}
		b.components = c
	}
	return &cli.Services{
		Denylists: b.components.Denylists,
		Bans:      b.components.Bans,
		Sync:      b.components.Sync,
		Tags:      b.components.Tags,
	}, nil
}

func (b *backend) Migrate(ctx context.Context) error {
	if b.cfg.StorageDriver != "postgres" {
		return errors.New("migrate needs STORAGE_DRIVER=postgres")
	}
	dbPool, err := database.NewDBPool(ctx, b.cfg.PostgresDSN, b.cfg.DBMaxConns, b.logger)
	if err != nil {
		return err
	}
	defer dbPool.Close()
	return database.Migrate(ctx, dbPool)
}

func (b *backend) AdminSecret() string { return b.cfg.AdminJWTSecret }

func (b *backend) Close() {
	if b.components != nil {
		b.components.Close()
	}
}

func main() {
	cfg, err := config.Load(serviceName)
	if err != nil {
		fmt.Fprintln(os.Stderr, "moderationctl:", err)
		os.Exit(2)
	}
	// Logs go to stderr so that exports can be piped.
	appLogger := logger.NewWithWriter(cfg.LogLevel, os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	b := &backend{cfg: cfg, logger: appLogger}

	err = cli.NewRootCommand(b).ExecuteContext(ctx)
	b.Close()
	stop()
	if err != nil {
		os.Exit(1)
	}
}
