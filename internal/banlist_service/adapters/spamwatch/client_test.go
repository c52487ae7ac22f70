package spamwatch

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autobahn/moderation/internal/banlist_service/domain"
	"github.com/autobahn/moderation/internal/platform/httpretry"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	retry := httpretry.NewRetryClient(server.Client(), 2, logger, httpretry.WithBackOff(func() backoff.BackOff {
		return backoff.NewConstantBackOff(time.Millisecond)
	}))
	return NewClient(logger, server.URL+"/", "test-token", retry)
}

func TestClient_Permission(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/tokens/self", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":3,"permission":"Admin","userid":777}`))
	})

	perm, err := client.Permission(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.PermissionAdmin, perm)
	assert.True(t, perm.CanWrite())
}

func TestClient_AddBans(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/banlist", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var bans []domain.AuthorityBan
		require.NoError(t, json.NewDecoder(r.Body).Decode(&bans))
		assert.Equal(t, []domain.AuthorityBan{
			{ID: 1, Reason: "spam", Admin: 9},
			{ID: 2, Reason: "spam", Admin: 9},
		}, bans)
		w.WriteHeader(http.StatusNoContent)
	})

	err := client.AddBans(context.Background(), []domain.AuthorityBan{
		{ID: 1, Reason: "spam", Admin: 9},
		{ID: 2, Reason: "spam", Admin: 9},
	})
	assert.NoError(t, err)
}

func TestClient_AddBans_EmptyBatchSkipsRequest(t *testing.T) {
	var calls int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	})
	require.NoError(t, client.AddBans(context.Background(), nil))
	assert.Zero(t, atomic.LoadInt32(&calls))
}

func TestClient_RetriesTransientFailures(t *testing.T) {
	var calls int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	err := client.AddBans(context.Background(), []domain.AuthorityBan{{ID: 1, Reason: "spam"}})
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestClient_ErrorsWrapAuthorityUnavailable(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"code":403,"error":"Forbidden, your token does not have the right permission"}`))
	})

	err := client.AddBans(context.Background(), []domain.AuthorityBan{{ID: 1, Reason: "spam"}})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrAuthorityUnavailable)
	assert.Contains(t, err.Error(), "does not have the right permission")

	_, err = client.Permission(context.Background())
	assert.ErrorIs(t, err, domain.ErrAuthorityUnavailable)
}

func TestClient_DeleteBan(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		switch r.URL.Path {
		case "/banlist/42":
			w.WriteHeader(http.StatusNoContent)
		case "/banlist/43":
			w.WriteHeader(http.StatusNotFound)
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	})

	assert.NoError(t, client.DeleteBan(context.Background(), 42))
	assert.NoError(t, client.DeleteBan(context.Background(), 43))
	assert.ErrorIs(t, client.DeleteBan(context.Background(), 44), domain.ErrAuthorityUnavailable)
}
