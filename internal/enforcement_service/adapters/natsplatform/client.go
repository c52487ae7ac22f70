// Package natsplatform reaches the chat transport over NATS request/reply and
// feeds its events into the enforcement engine.
package natsplatform

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/autobahn/moderation/internal/enforcement_service/domain"
)

// Platform error codes that map to engine sentinels.
const (
	codeUserIDInvalid     = "USER_ID_INVALID"
	codeUserAlreadyBanned = "USER_ALREADY_BANNED"
)

// Requester is satisfied by *messagebroker.NATSClient.
type Requester interface {
	Request(ctx context.Context, subject string, data []byte) ([]byte, error)
}

// Client sends JSON commands to <prefix>.ban, <prefix>.admins, <prefix>.delete,
// <prefix>.send, <prefix>.entity and <prefix>.invite.
type Client struct {
	nc      Requester
	prefix  string
	timeout time.Duration
	logger  *slog.Logger
}

func NewClient(nc Requester, prefix string, timeout time.Duration, logger *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{nc: nc, prefix: prefix, timeout: timeout, logger: logger.With("component", "nats_platform")}
}

type command struct {
	ChatID      int64  `json:"chat_id,omitempty"`
	UserID      int64  `json:"user_id,omitempty"`
	MessageID   int64  `json:"message_id,omitempty"`
	Text        string `json:"text,omitempty"`
	DeleteAfter int64  `json:"delete_after_seconds,omitempty"`
	Handle      string `json:"handle,omitempty"`
	InviteHash  string `json:"invite_hash,omitempty"`
}

type replyError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type reply struct {
	OK     bool            `json:"ok"`
	Error  *replyError     `json:"error,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
}

func (c *Client) call(ctx context.Context, op string, cmd command, out any) error {
	subject := c.prefix + "." + op
	payload, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("marshalling %s command: %w", op, err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	raw, err := c.nc.Request(ctx, subject, payload)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", domain.ErrPlatformActionFailed, op, err)
	}

	var rep reply
	if err := json.Unmarshal(raw, &rep); err != nil {
		return fmt.Errorf("%w: %s: decoding reply: %v", domain.ErrPlatformActionFailed, op, err)
	}
	if !rep.OK {
		if rep.Error == nil {
			return fmt.Errorf("%w: %s: request rejected", domain.ErrPlatformActionFailed, op)
		}
		switch rep.Error.Code {
		case codeUserIDInvalid:
			return fmt.Errorf("%w: %s", domain.ErrInvalidUserID, rep.Error.Message)
		case codeUserAlreadyBanned:
			return fmt.Errorf("%w: %s", domain.ErrAlreadyBanned, rep.Error.Message)
		}
		return fmt.Errorf("%w: %s: %s %s", domain.ErrPlatformActionFailed, op, rep.Error.Code, rep.Error.Message)
	}
	if out != nil {
		if err := json.Unmarshal(rep.Result, out); err != nil {
			return fmt.Errorf("%w: %s: decoding result: %v", domain.ErrPlatformActionFailed, op, err)
		}
	}
	return nil
}

func (c *Client) Ban(ctx context.Context, chatID, userID int64) error {
	return c.call(ctx, "ban", command{ChatID: chatID, UserID: userID}, nil)
}

func (c *Client) AdminIDs(ctx context.Context, chatID int64) ([]int64, error) {
	var ids []int64
	if err := c.call(ctx, "admins", command{ChatID: chatID}, &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

func (c *Client) DeleteMessage(ctx context.Context, chatID, messageID int64) error {
	return c.call(ctx, "delete", command{ChatID: chatID, MessageID: messageID}, nil)
}

func (c *Client) SendMessage(ctx context.Context, chatID int64, text string, deleteAfter time.Duration) error {
	return c.call(ctx, "send", command{ChatID: chatID, Text: text, DeleteAfter: int64(deleteAfter / time.Second)}, nil)
}

type entityResult struct {
	ID int64 `json:"id"`
}

// GetEntity resolves a handle to a user, chat or channel id.
func (c *Client) GetEntity(ctx context.Context, handle string) (int64, error) {
	var res entityResult
	if err := c.call(ctx, "entity", command{Handle: handle}, &res); err != nil {
		return 0, err
	}
	if res.ID == 0 {
		return 0, errors.New("platform returned no entity id")
	}
	return res.ID, nil
}

// ResolveInviteLink returns the chat behind an invite hash.
func (c *Client) ResolveInviteLink(ctx context.Context, hash string) (int64, error) {
	var res entityResult
	if err := c.call(ctx, "invite", command{InviteHash: hash}, &res); err != nil {
		return 0, err
	}
	if res.ID == 0 {
		return 0, errors.New("platform returned no chat id")
	}
	return res.ID, nil
}
