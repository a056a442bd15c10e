package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/maltedev/catalog-crawler/internal/session"
)

// Bootstrapper produces a session that is ready to browse the catalog.
type Bootstrapper interface {
	Bootstrap(ctx context.Context) (session.Session, error)
}

// Opener starts a fresh browser session.
type Opener func(ctx context.Context) (session.Session, error)

// GuestBootstrap enters the storefront as a guest shopper for a delivery ZIP.
type GuestBootstrap struct {
	open      Opener
	homeURL   string
	zip       string
	selectors Selectors
	timings   Timings
	logger    *slog.Logger
}

func NewGuestBootstrap(open Opener, homeURL, zip string, selectors Selectors, timings Timings, logger *slog.Logger) *GuestBootstrap {
	if logger == nil {
		logger = slog.Default()
	}
	return &GuestBootstrap{
		open:      open,
		homeURL:   homeURL,
		zip:       zip,
		selectors: selectors,
		timings:   timings,
		logger:    logger.With("component", "guest_bootstrap"),
	}
}

func (g *GuestBootstrap) Bootstrap(ctx context.Context) (session.Session, error) {
	s, err := g.open(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open session: %w", err)
	}

	if err := g.AuthenticateGuest(ctx, s); err != nil {
		if closeErr := s.Close(); closeErr != nil {
			g.logger.Warn("failed to close session after bootstrap failure", "error", closeErr)
		}
		return nil, err
	}

	return s, nil
}

// AuthenticateGuest walks the guest entry flow on s.
func (g *GuestBootstrap) AuthenticateGuest(ctx context.Context, s session.Session) error {
	g.logger.Info("starting guest session", "url", g.homeURL, "zip", g.zip)

	if err := s.Navigate(ctx, g.homeURL); err != nil {
		return fmt.Errorf("failed to open home page: %w", err)
	}

	if err := g.clickText(ctx, s, g.selectors.ShopNow); err != nil {
		return err
	}
	if err := g.clickText(ctx, s, g.selectors.ContinueAsGuest); err != nil {
		return err
	}

	zipInput, err := s.WaitFor(ctx, g.selectors.ZipInput, g.timings.ListingWait)
	if err != nil {
		return fmt.Errorf("failed to find zip code input: %w", err)
	}
	if err := zipInput.Type(ctx, g.zip); err != nil {
		return fmt.Errorf("failed to enter zip code: %w", err)
	}

	if err := g.clickText(ctx, s, g.selectors.StartShopping); err != nil {
		return err
	}
	if err := session.Pause(ctx, g.timings.LoginSettle); err != nil {
		return err
	}

	g.logger.Info("guest session ready")
	return nil
}

func (g *GuestBootstrap) clickText(ctx context.Context, s session.Session, target TextTarget) error {
	el, err := FindByText(ctx, s, target)
	if err != nil {
		return fmt.Errorf("failed to find %q: %w", target.Contains, err)
	}
	if err := el.Click(ctx); err != nil {
		return fmt.Errorf("failed to click %q: %w", target.Contains, err)
	}
	return session.Pause(ctx, g.timings.ClickSettle)
}

// FindByText returns the first element matching target.Selector whose text
// contains target.Contains.
func FindByText(ctx context.Context, s session.Session, target TextTarget) (session.Element, error) {
	elements, err := s.FindAll(ctx, target.Selector)
	if err != nil {
		return nil, err
	}
	for _, el := range elements {
		text, err := el.Text(ctx)
		if err != nil {
			if errors.Is(err, session.ErrSessionClosed) {
				return nil, err
			}
			continue
		}
		if strings.Contains(text, target.Contains) {
			return el, nil
		}
	}
	return nil, session.ErrNotFound
}

// DirectBootstrap opens a session on the start URL without signing in.
type DirectBootstrap struct {
	open     Opener
	startURL string
}

func NewDirectBootstrap(open Opener, startURL string) *DirectBootstrap {
	return &DirectBootstrap{open: open, startURL: startURL}
}

func (d *DirectBootstrap) Bootstrap(ctx context.Context) (session.Session, error) {
	s, err := d.open(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open session: %w", err)
	}
	if d.startURL == "" {
		return s, nil
	}
	if err := s.Navigate(ctx, d.startURL); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("failed to open start page: %w", err)
	}
	return s, nil
}
