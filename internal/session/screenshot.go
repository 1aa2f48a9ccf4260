package session

import (
	"context"
	"fmt"

	"github.com/go-rod/rod/lib/proto"
)

// ScreenshotOptions controls capture format and extent.
type ScreenshotOptions struct {
	// FullPage captures the whole document, not just the viewport.
	FullPage bool
	// Format is png (default) or jpeg.
	Format string
	// Quality applies to jpeg only, 0-100.
	Quality int
}

// CaptureScreenshot returns encoded image bytes. Full-page capture clips to
// the document content size from Page.getLayoutMetrics and asks Chromium to
// render beyond the viewport.
func (s *Session) CaptureScreenshot(ctx context.Context, opts ScreenshotOptions) ([]byte, error) {
	format := proto.PageCaptureScreenshotFormatPng
	if opts.Format == "jpeg" {
		format = proto.PageCaptureScreenshotFormatJpeg
	}
	req := proto.PageCaptureScreenshot{Format: format}
	if format == proto.PageCaptureScreenshotFormatJpeg && opts.Quality > 0 {
		q := opts.Quality
		req.Quality = &q
	}

	if opts.FullPage {
		metrics, err := proto.PageGetLayoutMetrics{}.Call(s.c(ctx))
		if err != nil {
			return nil, fmt.Errorf("session: layout metrics: %w", err)
		}
		size := metrics.CSSContentSize
		if size == nil {
			size = metrics.ContentSize
		}
		if size != nil && size.Width > 0 && size.Height > 0 {
			req.Clip = &proto.PageViewport{
				X:      0,
				Y:      0,
				Width:  size.Width,
				Height: size.Height,
				Scale:  1,
			}
			req.CaptureBeyondViewport = true
		}
	}

	res, err := req.Call(s.c(ctx))
	if err != nil {
		return nil, fmt.Errorf("session: capture screenshot: %w", err)
	}
	return res.Data, nil
}
