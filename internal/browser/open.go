package browser

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/maltedev/catalog-crawler/internal/session"
)

const (
	BackendPlaywright = "playwright"
	BackendChromedp   = "chromedp"
	BackendStatic     = "static"
)

// Open starts a session on the named backend.
func Open(ctx context.Context, backend string, opts *Options, logger *slog.Logger) (session.Session, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	switch backend {
	case BackendPlaywright, "":
		b, err := New(opts)
		if err != nil {
			return nil, err
		}
		s, err := b.NewSession()
		if err != nil {
			b.Close()
			return nil, err
		}
		return s, nil
	case BackendChromedp:
		s, err := NewCDPSession(opts)
		if err != nil {
			return nil, err
		}
		return s, nil
	case BackendStatic:
		headers := make(map[string]string, len(opts.ExtraHeaders)+1)
		for k, v := range opts.ExtraHeaders {
			headers[k] = v
		}
		if opts.AcceptLanguage != "" {
			headers["Accept-Language"] = opts.AcceptLanguage
		}
		return session.NewStatic(session.StaticOptions{
			UserAgent: opts.UserAgent,
			Headers:   headers,
		}, logger), nil
	default:
		return nil, fmt.Errorf("unknown browser backend %q", backend)
	}
}
