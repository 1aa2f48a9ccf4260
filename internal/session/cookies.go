package session

import (
	"context"
	"fmt"

	"github.com/go-rod/rod/lib/proto"
)

// Cookies lists cookies. With urls the browser filters to cookies those URLs
// would send; without, it returns the cookies of the current page.
func (s *Session) Cookies(ctx context.Context, urls []string) ([]*proto.NetworkCookie, error) {
	res, err := proto.NetworkGetCookies{Urls: urls}.Call(s.c(ctx))
	if err != nil {
		return nil, fmt.Errorf("session: get cookies: %w", err)
	}
	return res.Cookies, nil
}

// SetCookies writes cookies through the Network domain.
func (s *Session) SetCookies(ctx context.Context, cookies []*proto.NetworkCookieParam) error {
	if len(cookies) == 0 {
		return nil
	}
	if err := (proto.NetworkSetCookies{Cookies: cookies}).Call(s.c(ctx)); err != nil {
		return fmt.Errorf("session: set cookies: %w", err)
	}
	return nil
}

// DeleteCookies removes cookies matching name plus any of url/domain/path.
func (s *Session) DeleteCookies(ctx context.Context, name, url, domain, path string) error {
	req := proto.NetworkDeleteCookies{Name: name, URL: url, Domain: domain, Path: path}
	if err := req.Call(s.c(ctx)); err != nil {
		return fmt.Errorf("session: delete cookies %q: %w", name, err)
	}
	return nil
}

// ClearCookies wipes all browser cookies.
func (s *Session) ClearCookies(ctx context.Context) error {
	if err := (proto.NetworkClearBrowserCookies{}).Call(s.c(ctx)); err != nil {
		return fmt.Errorf("session: clear cookies: %w", err)
	}
	return nil
}
