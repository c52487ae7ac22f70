package resolver

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"

	"github.com/autobahn/moderation/internal/denylist_service/domain"
)

func (r *Resolver) canonicalDomain(ctx context.Context, token string) (string, error) {
	target := token
	if r.opts.FollowRedirects && r.follower != nil {
		final, err := r.follower.Follow(ctx, token)
		if err != nil {
			r.logger.WarnContext(ctx, "Following redirects failed, using token as given", "token", token, "error", err)
		} else {
			target = final
		}
	}
	return r.registrable(token, target)
}

// WrittenDomain is the domain form of token as it appears, without following
// redirects. It fails the same way Canonicalize does for the domain category.
func (r *Resolver) WrittenDomain(token string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", fmt.Errorf("%w: empty token", domain.ErrInvalidInput)
	}
	return r.registrable(token, token)
}

func (r *Resolver) registrable(token, target string) (string, error) {
	host := hostOf(target)
	if host == "" {
		return "", fmt.Errorf("%w: no host in %q", domain.ErrInvalidInput, token)
	}
	if r.isFirstParty(host) {
		return "", fmt.Errorf("%w: %s", domain.ErrFirstPartyDomain, host)
	}

	registrable := host
	if net.ParseIP(host) == nil {
		if base, err := publicsuffix.EffectiveTLDPlusOne(host); err == nil {
			registrable = base
		}
	}
	if r.isFirstParty(registrable) {
		return "", fmt.Errorf("%w: %s", domain.ErrFirstPartyDomain, registrable)
	}
	return registrable, nil
}

func (r *Resolver) isFirstParty(host string) bool {
	_, ok := r.firstParty[host]
	return ok
}

// hostOf extracts the lower-cased host from a URL or bare hostname.
func hostOf(raw string) string {
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.TrimSuffix(strings.ToLower(u.Hostname()), ".")
}

// HTTPRedirectFollower follows redirects with a plain GET and reports where
// the client ended up.
type HTTPRedirectFollower struct {
	client    *http.Client
	userAgent string
}

func NewHTTPRedirectFollower(client *http.Client, userAgent string) *HTTPRedirectFollower {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPRedirectFollower{client: client, userAgent: userAgent}
}

func (f *HTTPRedirectFollower) Follow(ctx context.Context, rawURL string) (string, error) {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("building request: %w", err)
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("following %s: %w", rawURL, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	return resp.Request.URL.String(), nil
}
