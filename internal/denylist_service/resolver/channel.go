package resolver

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/autobahn/moderation/internal/denylist_service/domain"
)

var invitePattern = regexp.MustCompile(`(?:joinchat|join)(?:/|\?invite=)(.*|)`)

var handlePrefixes = []string{"https://", "http://", "www.", "t.me/", "telegram.me/", "telegram.dog/"}

func (r *Resolver) canonicalChannel(ctx context.Context, token string) (string, error) {
	if m := invitePattern.FindStringSubmatch(token); m != nil {
		return r.resolveInvite(ctx, m[1])
	}

	handle := token
	if strings.HasPrefix(token, "tg://resolve") {
		// tg://resolve?domain=<username>&start=<value>
		u, err := url.Parse(token)
		if err != nil {
			return "", fmt.Errorf("%w: %q", domain.ErrInvalidInput, token)
		}
		handle = u.Query().Get("domain")
	} else {
		handle, _, _ = strings.Cut(handle, "?")
		handle = strings.ReplaceAll(handle, "@", "")
		for _, p := range handlePrefixes {
			handle = strings.TrimPrefix(handle, p)
		}
		handle = strings.TrimSuffix(handle, "/")
	}
	if handle == "" {
		return "", fmt.Errorf("%w: %q", domain.ErrInvalidInput, token)
	}

	if id, err := strconv.ParseInt(handle, 10, 64); err == nil {
		return strconv.FormatInt(id, 10), nil
	}
	if r.directory == nil {
		return "", fmt.Errorf("%w: %q: no directory", domain.ErrUnresolvable, handle)
	}
	id, err := r.directory.GetEntity(ctx, handle)
	if err != nil {
		r.logger.WarnContext(ctx, "Could not resolve channel handle", "handle", handle, "error", err)
		return "", fmt.Errorf("%w: %q: %v", domain.ErrUnresolvable, handle, err)
	}
	return strconv.FormatInt(id, 10), nil
}

func (r *Resolver) resolveInvite(ctx context.Context, hash string) (string, error) {
	hash = strings.TrimSpace(hash)
	if hash == "" {
		return "", fmt.Errorf("%w: empty invite hash", domain.ErrInvalidInput)
	}
	if id, ok := decodeInviteHash(hash); ok {
		return strconv.FormatInt(id, 10), nil
	}
	if r.directory == nil {
		return "", fmt.Errorf("%w: invite %q: no directory", domain.ErrUnresolvable, hash)
	}
	id, err := r.directory.ResolveInviteLink(ctx, hash)
	if err != nil {
		r.logger.WarnContext(ctx, "Could not resolve invite link", "hash", hash, "error", err)
		return "", fmt.Errorf("%w: invite %q: %v", domain.ErrUnresolvable, hash, err)
	}
	return strconv.FormatInt(id, 10), nil
}

// decodeInviteHash reads the chat id out of a legacy invite hash: url-safe
// base64 of creator id (uint32), chat id (uint32) and, for channels, a random
// uint64, all big endian.
func decodeInviteHash(hash string) (int64, bool) {
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(hash, "="))
	if err != nil {
		return 0, false
	}
	if len(raw) != 16 && len(raw) != 12 {
		return 0, false
	}
	return int64(binary.BigEndian.Uint32(raw[4:8])), true
}
