// Package bootstrap builds the moderation components from configuration. It
// is shared by moderation_service and moderationctl.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/autobahn/moderation/internal/banlist_service/adapters/snapshot"
	"github.com/autobahn/moderation/internal/banlist_service/adapters/spamwatch"
	banapp "github.com/autobahn/moderation/internal/banlist_service/app"
	banrepo "github.com/autobahn/moderation/internal/banlist_service/repository"
	banmem "github.com/autobahn/moderation/internal/banlist_service/repository/memory"
	banpg "github.com/autobahn/moderation/internal/banlist_service/repository/postgres"
	chatapp "github.com/autobahn/moderation/internal/chat_service/app"
	chatrepo "github.com/autobahn/moderation/internal/chat_service/repository"
	chatmem "github.com/autobahn/moderation/internal/chat_service/repository/memory"
	chatpg "github.com/autobahn/moderation/internal/chat_service/repository/postgres"
	"github.com/autobahn/moderation/internal/chat_service/repository/rediscache"
	dlapp "github.com/autobahn/moderation/internal/denylist_service/app"
	dlrepo "github.com/autobahn/moderation/internal/denylist_service/repository"
	dlmem "github.com/autobahn/moderation/internal/denylist_service/repository/memory"
	dlpg "github.com/autobahn/moderation/internal/denylist_service/repository/postgres"
	"github.com/autobahn/moderation/internal/denylist_service/resolver"
	"github.com/autobahn/moderation/internal/enforcement_service/adapters/natsplatform"
	"github.com/autobahn/moderation/internal/platform/cache"
	"github.com/autobahn/moderation/internal/platform/config"
	"github.com/autobahn/moderation/internal/platform/database"
	"github.com/autobahn/moderation/internal/platform/httpretry"
	"github.com/autobahn/moderation/internal/platform/messagebroker"
)

const userAgent = "moderation-resolver/1.0"

// Components are the application services built from one Config.
type Components struct {
	Denylists *dlapp.Manager
	Bans      *banapp.BanlistService
	Sync      *banapp.SyncCoordinator
	Tags      *chatapp.TagService

	// BanRepo, DenylistRepo, Resolver and Platform are exposed for the
	// enforcement engine.
	BanRepo      banrepo.BanRepository
	DenylistRepo dlrepo.DenylistRepository
	Resolver     *resolver.Resolver
	Platform *natsplatform.Client
	Redis    *redis.Client
	NATS     *messagebroker.NATSClient

	closers []func()
}

// Options select which connections Build must establish.
type Options struct {
	// RequireNATS fails Build when NATS is unreachable. Otherwise channel
	// resolution and ban events are disabled with a warning.
	RequireNATS bool
	AppName     string
}

// Close releases every connection opened by Build, last opened first.
func (c *Components) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
}

// Build opens storage, Redis and NATS as configured and wires the services.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts Options) (*Components, error) {
	c := &Components{}
	ok := false
	defer func() {
		if !ok {
			c.Close()
		}
	}()

	var (
		denylists dlrepo.DenylistRepository
		chats     chatrepo.ChatRepository
	)
	switch cfg.StorageDriver {
	case "memory":
		logger.Warn("Using in-memory storage, nothing survives a restart")
		denylists = dlmem.NewDenylistRepository()
		c.BanRepo = banmem.NewBanRepository()
		chats = chatmem.NewChatRepository()
	default:
		dbPool, err := database.NewDBPool(ctx, cfg.PostgresDSN, cfg.DBMaxConns, logger)
		if err != nil {
			return nil, err
		}
		c.closers = append(c.closers, dbPool.Close)
		if err := database.Migrate(ctx, dbPool); err != nil {
			return nil, err
		}
		denylists = dlpg.NewPgDenylistRepository(dbPool, logger)
		c.BanRepo = banpg.NewPgBanRepository(dbPool, logger)
		chats = chatpg.NewPgChatRepository(dbPool, logger)
	}

	rdb, err := cache.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, logger)
	if err != nil {
		return nil, err
	}
	if rdb != nil {
		c.Redis = rdb
		c.closers = append(c.closers, func() { _ = rdb.Close() })
		chats = rediscache.NewChatCache(chats, rdb, cfg.ChatCacheTTL, logger)
	}

	natsClient, err := messagebroker.NewNATSClient(cfg.NATSUrl, logger, opts.AppName)
	if err != nil {
		if opts.RequireNATS {
			return nil, err
		}
		logger.Warn("NATS unavailable, channel resolution and ban events disabled", "error", err)
	} else {
		c.NATS = natsClient
		c.closers = append(c.closers, natsClient.Close)
		c.Platform = natsplatform.NewClient(natsClient, cfg.PlatformSubjectPrefix, cfg.PlatformRequestTimeout, logger)
	}

	var directory resolver.Directory
	var publisher banapp.EventPublisher
	if c.Platform != nil {
		directory = c.Platform
		publisher = c.NATS
	}
	var follower resolver.RedirectFollower
	if cfg.FollowRedirects {
		follower = resolver.NewHTTPRedirectFollower(&http.Client{Timeout: cfg.ResolveTimeout}, userAgent)
	}
	res := resolver.New(directory, follower, resolver.Options{
		FirstPartyDomains:  cfg.FirstPartyDomains,
		FollowRedirects:    cfg.FollowRedirects,
		MHashWarnSymbol:    cfg.MHashWarnSymbol[0],
		MHashWarnThreshold: cfg.MHashWarnThreshold,
		HashWorkers:        int64(cfg.HashWorkers),
	}, logger)
	c.Denylists = dlapp.NewManager(denylists, res, cfg.MaxQueryItems, logger)
	c.DenylistRepo = denylists
	c.Resolver = res

	var authority banapp.Authority
	if cfg.AuthorityEnabled() {
		httpClient := httpretry.NewRetryClient(&http.Client{Timeout: 30 * time.Second}, cfg.AuthorityMaxRetries, logger)
		authority = spamwatch.NewClient(logger, cfg.AuthorityURL, cfg.AuthorityToken, httpClient)
		logger.Info("Ban authority configured", "url", cfg.AuthorityURL)
	}

	var archive banapp.SnapshotStore
	if cfg.SnapshotBucket != "" {
		store, err := snapshot.NewS3StoreFromEnv(ctx, cfg.SnapshotBucket, cfg.SnapshotRegion, logger)
		if err != nil {
			return nil, fmt.Errorf("snapshot store: %w", err)
		}
		archive = store
	}

	c.Bans = banapp.NewBanlistService(c.BanRepo, authority, publisher, cfg.BanEventsSubjectPrefix, cfg.AuthorityAdminID, logger)
	c.Sync = banapp.NewSyncCoordinator(c.BanRepo, authority, archive, banapp.SyncConfig{
		ChunkSize:      cfg.AuthorityChunkSize,
		ChunkPause:     cfg.AuthorityChunkPause,
		AdminID:        cfg.AuthorityAdminID,
		SnapshotPrefix: cfg.SnapshotPrefix,
	}, logger)
	c.Tags = chatapp.NewTagService(chats, logger)

	ok = true
	return c, nil
}
