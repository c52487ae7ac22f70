// Package spamwatch talks to a SpamWatch compatible ban authority.
package spamwatch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/autobahn/moderation/internal/banlist_service/domain"
	"github.com/autobahn/moderation/internal/platform/httpretry"
)

// maxErrorBody caps how much of an error response ends up in an error message.
const maxErrorBody = 200

type Client struct {
	logger     *slog.Logger
	httpClient httpretry.HTTPDoer
	baseURL    string
	token      string
}

// NewClient creates a Client. httpClient is normally an *httpretry.RetryClient.
func NewClient(logger *slog.Logger, baseURL, token string, httpClient httpretry.HTTPDoer) *Client {
	if httpClient == nil {
		httpClient = httpretry.NewRetryClient(nil, 3, logger)
	}
	return &Client{
		logger:     logger.With("authority", "spamwatch"),
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
	}
}

type tokenInfo struct {
	ID         int64             `json:"id"`
	Permission domain.Permission `json:"permission"`
	UserID     int64             `json:"userid"`
}

type errorResponse struct {
	Code  int    `json:"code"`
	Error string `json:"error"`
}

// Permission returns the permission level of the configured token.
func (c *Client) Permission(ctx context.Context) (domain.Permission, error) {
	var info tokenInfo
	if err := c.do(ctx, http.MethodGet, "/tokens/self", nil, &info); err != nil {
		return "", err
	}
	return info.Permission, nil
}

// AddBans submits one batch of bans.
func (c *Client) AddBans(ctx context.Context, bans []domain.AuthorityBan) error {
	if len(bans) == 0 {
		return nil
	}
	body, err := json.Marshal(bans)
	if err != nil {
		return fmt.Errorf("failed to marshal bans: %w", err)
	}
	if err := c.do(ctx, http.MethodPost, "/banlist", body, nil); err != nil {
		return err
	}
	c.logger.DebugContext(ctx, "Bans pushed to authority", "count", len(bans))
	return nil
}

// DeleteBan lifts the ban for id. A ban the authority does not know is not an error.
func (c *Client) DeleteBan(ctx context.Context, id int64) error {
	err := c.do(ctx, http.MethodDelete, "/banlist/"+strconv.FormatInt(id, 10), nil, nil)
	if err != nil && isStatus(err, http.StatusNotFound) {
		return nil
	}
	return err
}

type statusError struct {
	status  int
	message string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("authority returned status %d: %s", e.status, e.message)
}

func isStatus(err error, status int) bool {
	var se *statusError
	return errors.As(err, &se) && se.status == status
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("%w: building request: %v", domain.ErrAuthorityUnavailable, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.ErrorContext(ctx, "Authority request failed", "method", method, "path", path, "error", err)
		return fmt.Errorf("%w: %v", domain.ErrAuthorityUnavailable, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: reading response (status %d): %v", domain.ErrAuthorityUnavailable, resp.StatusCode, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		se := &statusError{status: resp.StatusCode, message: http.StatusText(resp.StatusCode)}
		var parsed errorResponse
		if json.Unmarshal(payload, &parsed) == nil && parsed.Error != "" {
			se.message = parsed.Error
		} else if len(payload) > 0 && len(payload) < maxErrorBody {
			se.message = string(payload)
		}
		c.logger.WarnContext(ctx, "Authority rejected request", "method", method, "path", path, "status_code", resp.StatusCode, "message", se.message)
		return fmt.Errorf("%w: %w", domain.ErrAuthorityUnavailable, se)
	}

	if out != nil && len(payload) > 0 {
		if err := json.Unmarshal(payload, out); err != nil {
			return fmt.Errorf("%w: decoding response: %v", domain.ErrAuthorityUnavailable, err)
		}
	}
	return nil
}
