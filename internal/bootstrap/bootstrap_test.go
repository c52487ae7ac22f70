package bootstrap

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autobahn/moderation/internal/denylist_service/domain"
	"github.com/autobahn/moderation/internal/platform/config"
)

func memoryConfig() *config.Config {
	return &config.Config{
		LogLevel:               "error",
		StorageDriver:          "memory",
		NATSUrl:                "nats://127.0.0.1:1",
		BanEventsSubjectPrefix: "moderation.bans",
		PlatformSubjectPrefix:  "platform",
		PlatformRequestTimeout: time.Second,
		MaxQueryItems:          45,
		MHashWarnSymbol:        "0",
		MHashWarnThreshold:     8,
		HashWorkers:            1,
		FirstPartyDomains:      config.DefaultFirstPartyDomains,
		ResolveTimeout:         time.Second,
		AuthorityChunkSize:     50,
		ChatCacheTTL:           time.Minute,
	}
}

func TestBuild_MemoryWithoutNATS(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	c, err := Build(context.Background(), memoryConfig(), logger, Options{AppName: "test"})
	require.NoError(t, err)
	defer c.Close()

	assert.Nil(t, c.NATS)
	assert.Nil(t, c.Platform)
	assert.Nil(t, c.Redis)

	report, err := c.Denylists.Add(context.Background(), domain.CategoryDomain, []string{"spam.example.com"})
	require.NoError(t, err)
	assert.Len(t, report.Added, 1)

	// The engine reads what the manager wrote.
	entry, err := c.DenylistRepo.GetByValue(context.Background(), domain.CategoryDomain, "example.com")
	require.NoError(t, err)
	assert.Equal(t, report.Added[0].Index, entry.Index)
	require.NotNil(t, c.Resolver)

	_, err = c.Bans.GlobalBan(context.Background(), 42, "", "")
	require.NoError(t, err)
	n, err := c.Bans.TotalCount(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestBuild_RequireNATS(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	_, err := Build(context.Background(), memoryConfig(), logger, Options{RequireNATS: true, AppName: "test"})
	assert.Error(t, err)
}

func TestBuild_RedisCachesTags(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := memoryConfig()
	cfg.RedisAddr = mr.Addr()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	c, err := Build(context.Background(), cfg, logger, Options{AppName: "test"})
	require.NoError(t, err)
	defer c.Close()
	require.NotNil(t, c.Redis)

	_, err = c.Tags.SetTag(context.Background(), -100, "grenzschutz", "silent")
	require.NoError(t, err)
	tags, err := c.Tags.TagsFor(context.Background(), -100)
	require.NoError(t, err)
	assert.Equal(t, "silent", tags["grenzschutz"])
	assert.True(t, mr.Exists("moderation:chat:-100"))
}
