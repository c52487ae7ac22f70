package http

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autobahn/moderation/internal/admin_api_service/middleware"
	banapp "github.com/autobahn/moderation/internal/banlist_service/app"
	bandomain "github.com/autobahn/moderation/internal/banlist_service/domain"
	banmemory "github.com/autobahn/moderation/internal/banlist_service/repository/memory"
	chatapp "github.com/autobahn/moderation/internal/chat_service/app"
	chatmemory "github.com/autobahn/moderation/internal/chat_service/repository/memory"
	denyapp "github.com/autobahn/moderation/internal/denylist_service/app"
	denymemory "github.com/autobahn/moderation/internal/denylist_service/repository/memory"
	"github.com/autobahn/moderation/internal/denylist_service/resolver"
)

const jwtSecret = "test-secret-0123456789"

type apiTestSetup struct {
	server *httptest.Server
	token  string
	bans   *banmemory.BanRepository
}

func setupAPI(t *testing.T) apiTestSetup {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	validate := validator.New()

	manager := denyapp.NewManager(denymemory.NewDenylistRepository(),
		resolver.New(nil, nil, resolver.Options{FirstPartyDomains: []string{"t.me"}}, logger), 0, logger)
	bans := banmemory.NewBanRepository()
	banService := banapp.NewBanlistService(bans, nil, nil, "moderation.bans", 0, logger)
	sync := banapp.NewSyncCoordinator(bans, nil, nil, banapp.SyncConfig{}, logger)
	tags := chatapp.NewTagService(chatmemory.NewChatRepository(), logger)

	router := NewRouter(jwtSecret, logger,
		NewDenylistHandler(manager, logger, validate),
		NewBanlistHandler(banService, sync, logger, validate),
		NewChatHandler(tags, logger, validate))
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	token, err := middleware.IssueToken(jwtSecret, "operator", time.Hour)
	require.NoError(t, err)
	return apiTestSetup{server: server, token: token, bans: bans}
}

func (s apiTestSetup) do(t *testing.T, method, path, body string) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, s.server.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+s.token)
	resp, err := s.server.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	payload, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, payload
}

func TestRouter_RequiresToken(t *testing.T) {
	s := setupAPI(t)

	resp, err := s.server.Client().Get(s.server.URL + "/api/v1/denylists")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, err = s.server.Client().Get(s.server.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRouter_DenylistAddTwice(t *testing.T) {
	s := setupAPI(t)

	resp, body := s.do(t, http.MethodPost, "/api/v1/denylists/domain", `{"items":["https://www.Example.com/path"]}`)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var first denyapp.Report
	require.NoError(t, json.Unmarshal(body, &first))
	require.Len(t, first.Added, 1)
	assert.Equal(t, "example.com", first.Added[0].Value)

	resp, body = s.do(t, http.MethodPost, "/api/v1/denylists/0x4", `{"items":["example.com","t.me"]}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var second denyapp.Report
	require.NoError(t, json.Unmarshal(body, &second))
	assert.Empty(t, second.Added)
	require.Len(t, second.Existing, 1)
	assert.Equal(t, first.Added[0].Index, second.Existing[0].Index)
	assert.Equal(t, []string{"t.me"}, second.Skipped)

	resp, body = s.do(t, http.MethodGet, "/api/v1/denylists/domain", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var query denyapp.QueryResult
	require.NoError(t, json.Unmarshal(body, &query))
	assert.Equal(t, int64(1), query.Total)

	resp, body = s.do(t, http.MethodPost, "/api/v1/denylists/domain/retire", `{"items":["example.com"]}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"removed":["example.com"]`)
}

func TestRouter_DenylistErrors(t *testing.T) {
	s := setupAPI(t)

	resp, _ := s.do(t, http.MethodPost, "/api/v1/denylists/nope", `{"items":["x"]}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = s.do(t, http.MethodPost, "/api/v1/denylists/string", `{}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = s.do(t, http.MethodPost, "/api/v1/denylists/file", `{"items":["abc"]}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = s.do(t, http.MethodGet, "/api/v1/denylists/string?indices=9..1", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRouter_GlobalBanAndUnban(t *testing.T) {
	s := setupAPI(t)

	resp, body := s.do(t, http.MethodPost, "/api/v1/bans", `{"user_id":555,"reason":"flood"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))

	resp, body = s.do(t, http.MethodGet, "/api/v1/bans?ids=555,556", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var users []bandomain.BannedUser
	require.NoError(t, json.Unmarshal(body, &users))
	require.Len(t, users, 1)
	assert.Equal(t, "flood", users[0].Reason)

	resp, body = s.do(t, http.MethodGet, "/api/v1/bans/count?reason=flood", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"reason":"flood","count":1}`, string(body))

	resp, _ = s.do(t, http.MethodPost, "/api/v1/bans", `{"user_id":0}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = s.do(t, http.MethodDelete, "/api/v1/bans/555", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = s.do(t, http.MethodDelete, "/api/v1/bans/555", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRouter_AutomatedBanConflict(t *testing.T) {
	s := setupAPI(t)
	resp, _ := s.do(t, http.MethodPost, "/api/v1/banlist/import", "id,reason\n9,Spambot[kv2 0x4 0x0001]\n")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = s.do(t, http.MethodPost, "/api/v1/bans", `{"user_id":9,"reason":"manual"}`)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestRouter_ImportAndExport(t *testing.T) {
	s := setupAPI(t)

	resp, body := s.do(t, http.MethodPost, "/api/v1/banlist/import", "id,reason\n111,spam\n111,spam2\n222,flood\n333,spam\n")
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var result banapp.ImportResult
	require.NoError(t, json.Unmarshal(body, &result))
	assert.Equal(t, 4, result.Count)
	assert.Equal(t, 3, result.Persisted)

	resp, body = s.do(t, http.MethodGet, "/api/v1/banlist/export", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/csv", resp.Header.Get("Content-Type"))
	assert.Equal(t, "id,reason\n111,spam2\n222,flood\n333,spam\n", string(body))

	resp, body = s.do(t, http.MethodGet, "/api/v1/banlist/export?exclude=111", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "id,reason\n222,flood\n333,spam\n", string(body))

	resp, body = s.do(t, http.MethodPost, "/api/v1/banlist/export/diff", "id,reason\n222,x\n")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "id,reason\n111,spam2\n333,spam\n", string(body))
}

func TestRouter_ChatTags(t *testing.T) {
	s := setupAPI(t)

	resp, body := s.do(t, http.MethodPut, "/api/v1/chats/-1001/tags/grenzschutz", `{"value":"silent"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	assert.JSONEq(t, `{"grenzschutz":"silent"}`, string(body))

	resp, body = s.do(t, http.MethodGet, "/api/v1/chats/-1001/tags", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"grenzschutz":"silent"}`, string(body))

	resp, body = s.do(t, http.MethodDelete, "/api/v1/chats/-1001/tags/grenzschutz", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{}`, string(body))

	resp, _ = s.do(t, http.MethodPut, "/api/v1/chats/abc/tags/x", `{"value":"y"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
