package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autobahn/moderation/internal/admin_api_service/middleware"
	banapp "github.com/autobahn/moderation/internal/banlist_service/app"
	banmem "github.com/autobahn/moderation/internal/banlist_service/repository/memory"
	chatapp "github.com/autobahn/moderation/internal/chat_service/app"
	chatmem "github.com/autobahn/moderation/internal/chat_service/repository/memory"
	dlapp "github.com/autobahn/moderation/internal/denylist_service/app"
	dlmem "github.com/autobahn/moderation/internal/denylist_service/repository/memory"
	"github.com/autobahn/moderation/internal/denylist_service/resolver"
)

const testSecret = "cli-test-secret-0123456789"

type memoryBackend struct {
	services *Services
	migrated bool
}

func newMemoryBackend() *memoryBackend {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	bans := banmem.NewBanRepository()
	res := resolver.New(nil, nil, resolver.Options{FirstPartyDomains: []string{"t.me"}}, logger)
	return &memoryBackend{services: &Services{
		Denylists: dlapp.NewManager(dlmem.NewDenylistRepository(), res, 0, logger),
		Bans:      banapp.NewBanlistService(bans, nil, nil, "moderation.bans", 0, logger),
		Sync:      banapp.NewSyncCoordinator(bans, nil, nil, banapp.SyncConfig{}, logger),
		Tags:      chatapp.NewTagService(chatmem.NewChatRepository(), logger),
	}}
}

func (b *memoryBackend) Services(context.Context) (*Services, error) { return b.services, nil }
func (b *memoryBackend) Migrate(context.Context) error              { b.migrated = true; return nil }
func (b *memoryBackend) AdminSecret() string                        { return testSecret }
func (b *memoryBackend) Close()                                     {}

// run executes one command line against backend and returns stdout.
func run(t *testing.T, backend Backend, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand(backend)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand(newMemoryBackend())
	paths := [][]string{
		{"denylist", "add"}, {"denylist", "del"}, {"denylist", "query"}, {"denylist", "count"},
		{"banlist", "query"}, {"banlist", "count"}, {"banlist", "import"}, {"banlist", "export"}, {"banlist", "archive"},
		{"gban"}, {"ungban"},
		{"chat", "tags", "get"}, {"chat", "tags", "set"}, {"chat", "tags", "rm"},
		{"migrate"}, {"token"},
	}
	for _, path := range paths {
		t.Run(strings.Join(path, " "), func(t *testing.T) {
			sub, _, err := cmd.Find(path)
			require.NoError(t, err)
			assert.Equal(t, path[len(path)-1], sub.Name())
		})
	}
}

func TestInvalidFormat(t *testing.T) {
	_, err := run(t, newMemoryBackend(), "", "--format", "yaml", "denylist", "count")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestDenylistAddQueryDel(t *testing.T) {
	b := newMemoryBackend()

	out, err := run(t, b, "", "denylist", "add", "domain", "https://Spam.example.com/x", "t.me")
	require.NoError(t, err)
	assert.Contains(t, out, "Added:\n  1: example.com\n")
	assert.Contains(t, out, "Skipped:\n  t.me\n")

	out, err = run(t, b, "", "denylist", "add", "0x4", "spam.example.com")
	require.NoError(t, err)
	assert.Contains(t, out, "Existing:\n  1: example.com\n")

	out, err = run(t, b, "", "--format", "json", "denylist", "query", "domain")
	require.NoError(t, err)
	var q dlapp.QueryResult
	require.NoError(t, json.Unmarshal([]byte(out), &q))
	assert.EqualValues(t, 1, q.Total)
	require.Len(t, q.Items, 1)
	assert.Equal(t, "example.com", q.Items[0].Value)

	out, err = run(t, b, "", "denylist", "del", "domain", "spam.example.com", "other.example")
	require.NoError(t, err)
	assert.Contains(t, out, "Removed:\n  example.com\n")
	assert.Contains(t, out, "Skipped:\n  other.example\n")

	out, err = run(t, b, "", "denylist", "query", "domain", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "1: example.com (retired)")
}

func TestDenylistAdd_Errors(t *testing.T) {
	b := newMemoryBackend()

	_, err := run(t, b, "", "denylist", "add", "nope", "x")
	assert.Error(t, err)

	_, err = run(t, b, "", "denylist", "add", "file")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--file")

	_, err = run(t, b, "", "denylist", "add", "string")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least one token")
}

func TestDenylistAdd_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "payload.bin")
	require.NoError(t, os.WriteFile(path, []byte("malware"), 0o600))

	out, err := run(t, newMemoryBackend(), "", "--format", "json", "denylist", "add", "file", "--file", path)
	require.NoError(t, err)
	var report dlapp.Report
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	require.Len(t, report.Added, 1)
	assert.Len(t, report.Added[0].Value, 128)
}

func TestDenylistCount(t *testing.T) {
	b := newMemoryBackend()
	_, err := run(t, b, "", "denylist", "add", "string", "buy now", "free crypto")
	require.NoError(t, err)

	out, err := run(t, b, "", "denylist", "count")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 7)
	assert.Equal(t, "string   0x1  2", lines[1])
}

func TestGbanQueryUngban(t *testing.T) {
	b := newMemoryBackend()

	out, err := run(t, b, "", "gban", "777", "spam", "adding", "10+", "members", "-m", "evidence")
	require.NoError(t, err)
	assert.Equal(t, "Globally banned 777: spam adding 10+ members\n", out)

	out, err = run(t, b, "", "--format", "json", "banlist", "query", "777,778")
	require.NoError(t, err)
	var bans []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &bans))
	require.Len(t, bans, 1)
	assert.Equal(t, "evidence", bans[0]["message"])

	out, err = run(t, b, "", "banlist", "count", "--reason", "spam adding 10+ members")
	require.NoError(t, err)
	assert.Equal(t, "1\n", out)

	out, err = run(t, b, "", "ungban", "777")
	require.NoError(t, err)
	assert.Equal(t, "Ungbanned 777\n", out)

	out, err = run(t, b, "", "ungban", "777")
	require.NoError(t, err)
	assert.Equal(t, "777 was not banned\n", out)

	_, err = run(t, b, "", "gban", "abc")
	assert.Error(t, err)
}

func TestBanlistImportExport(t *testing.T) {
	b := newMemoryBackend()

	out, err := run(t, b, "id,reason\n111,spam\n222,flood\nbad,row\n", "--format", "json", "banlist", "import", "-")
	require.NoError(t, err)
	var res banapp.ImportResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, 2, res.Count)
	assert.Equal(t, 1, res.Skipped)

	out, err = run(t, b, "", "banlist", "export")
	require.NoError(t, err)
	assert.Equal(t, "id,reason\n111,spam\n222,flood\n", out)

	out, err = run(t, b, "", "banlist", "export", "--exclude", "111")
	require.NoError(t, err)
	assert.Equal(t, "id,reason\n222,flood\n", out)

	other := filepath.Join(t.TempDir(), "other.csv")
	require.NoError(t, os.WriteFile(other, []byte("id,reason\n222,flood\n"), 0o600))
	dest := filepath.Join(t.TempDir(), "diff.csv")
	_, err = run(t, b, "", "banlist", "export", "--diff", other, "-o", dest)
	require.NoError(t, err)
	written, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "id,reason\n111,spam\n", string(written))
}

func TestBanlistArchive_Disabled(t *testing.T) {
	_, err := run(t, newMemoryBackend(), "", "banlist", "archive")
	assert.ErrorIs(t, err, banapp.ErrArchiveDisabled)
}

func TestChatTags(t *testing.T) {
	b := newMemoryBackend()

	out, err := run(t, b, "", "chat", "tags", "get", "--", "-100")
	require.NoError(t, err)
	assert.Equal(t, "Chat -100 has no tags.\n", out)

	_, err = run(t, b, "", "chat", "tags", "set", "--", "-100", "polizei", "exclude")
	require.NoError(t, err)
	out, err = run(t, b, "", "chat", "tags", "set", "--", "-100", "grenzschutz", "silent")
	require.NoError(t, err)
	assert.Equal(t, "grenzschutz=silent\npolizei=exclude\n", out)

	out, err = run(t, b, "", "chat", "tags", "rm", "--", "-100", "polizei")
	require.NoError(t, err)
	assert.Equal(t, "grenzschutz=silent\n", out)
}

func TestMigrate(t *testing.T) {
	b := newMemoryBackend()
	out, err := run(t, b, "", "migrate")
	require.NoError(t, err)
	assert.True(t, b.migrated)
	assert.Equal(t, "Schema is up to date.\n", out)
}

func TestToken(t *testing.T) {
	out, err := run(t, newMemoryBackend(), "", "token", "--subject", "alice", "--ttl", "1h")
	require.NoError(t, err)

	op, err := middleware.ParseToken(testSecret, strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, "alice", op.Subject)
}
