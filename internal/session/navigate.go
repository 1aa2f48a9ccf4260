package session

import (
	"context"
	"fmt"
	"time"

	"github.com/go-rod/rod/lib/proto"
)

// NavigationResult reports where a navigation ended up. Completed is false
// when the load events never fired within the budget; the page is then
// assumed interactive enough to proceed (SPA shells and long-polling pages
// routinely never fire load).
type NavigationResult struct {
	URL       string        `json:"url"`
	Completed bool          `json:"completed"`
	Elapsed   time.Duration `json:"elapsed"`
}

// Navigate drives the page to url and waits for Page.loadEventFired or
// Page.frameStoppedLoading, whichever comes first. The timeout resolves
// rather than fails. net::ERR_ABORTED from Page.navigate is ignored:
// Chromium reports it for navigations superseded by redirects.
func (s *Session) Navigate(ctx context.Context, url string, timeout time.Duration) (*NavigationResult, error) {
	if timeout <= 0 {
		timeout = s.cfg.NavigateTimeout
	}
	start := time.Now()

	loaded := make(chan struct{}, 2)
	notify := func([]byte) {
		select {
		case loaded <- struct{}{}:
		default:
		}
	}
	offLoad := s.OnEvent("Page.loadEventFired", notify)
	defer offLoad()
	offStop := s.OnEvent("Page.frameStoppedLoading", notify)
	defer offStop()

	res, err := proto.PageNavigate{URL: url}.Call(s.c(ctx))
	if err != nil {
		if !isAbortText(err.Error()) {
			return nil, fmt.Errorf("session: navigate %s: %w", url, err)
		}
	} else if res.ErrorText != "" && !isAbortText(res.ErrorText) {
		return nil, fmt.Errorf("session: navigate %s: %s", url, res.ErrorText)
	}

	completed := false
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-loaded:
		completed = true
	case <-timer.C:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	s.InvalidateAXCache()

	current, err := s.CurrentURL(ctx)
	if err != nil {
		current = url
	}
	return &NavigationResult{URL: current, Completed: completed, Elapsed: time.Since(start)}, nil
}

// CurrentURL returns the top frame's current URL.
func (s *Session) CurrentURL(ctx context.Context) (string, error) {
	res, err := proto.PageGetNavigationHistory{}.Call(s.c(ctx))
	if err != nil {
		return "", fmt.Errorf("session: navigation history: %w", err)
	}
	if res.CurrentIndex < 0 || int(res.CurrentIndex) >= len(res.Entries) {
		return "", nil
	}
	return res.Entries[res.CurrentIndex].URL, nil
}

// NavigateHistory moves through session history by delta (-1 back, +1
// forward). Moving past either end is a no-op reporting the current URL.
func (s *Session) NavigateHistory(ctx context.Context, delta int) (*NavigationResult, error) {
	start := time.Now()
	res, err := proto.PageGetNavigationHistory{}.Call(s.c(ctx))
	if err != nil {
		return nil, fmt.Errorf("session: navigation history: %w", err)
	}
	idx := int(res.CurrentIndex) + delta
	if idx < 0 || idx >= len(res.Entries) {
		url, _ := s.CurrentURL(ctx)
		return &NavigationResult{URL: url, Completed: true, Elapsed: time.Since(start)}, nil
	}
	entry := res.Entries[idx]
	if err := (proto.PageNavigateToHistoryEntry{EntryID: entry.ID}).Call(s.c(ctx)); err != nil {
		return nil, fmt.Errorf("session: history entry %d: %w", entry.ID, err)
	}
	s.InvalidateAXCache()
	return &NavigationResult{URL: entry.URL, Completed: true, Elapsed: time.Since(start)}, nil
}

// Reload reloads the current page, optionally bypassing the cache.
func (s *Session) Reload(ctx context.Context, ignoreCache bool) error {
	if err := (proto.PageReload{IgnoreCache: ignoreCache}).Call(s.c(ctx)); err != nil {
		return fmt.Errorf("session: reload: %w", err)
	}
	s.InvalidateAXCache()
	return nil
}
