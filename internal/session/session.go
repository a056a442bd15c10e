// Package session defines the page-session capability the crawler drives.
//
// A Session is one serial stream of navigation state. Callers must not use the
// same Session from more than one goroutine at a time.
package session

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrTimeout is returned when a wait exceeds its timeout.
	ErrTimeout = errors.New("timed out waiting for element")
	// ErrNotFound is returned when a selector matches nothing.
	ErrNotFound = errors.New("element not found")
	// ErrSessionClosed is returned once the underlying browser or page is gone.
	ErrSessionClosed = errors.New("session closed")
	// ErrNotInteractive is returned when an element cannot be clicked or typed into.
	ErrNotInteractive = errors.New("element is not interactive")
)

// Element is a handle to a node located on the current page.
type Element interface {
	// Text returns the trimmed visible text of the element.
	Text(ctx context.Context) (string, error)
	// Attribute returns the named attribute; ok is false when it is absent.
	Attribute(ctx context.Context, name string) (value string, ok bool, err error)
	Click(ctx context.Context) error
	ScrollIntoView(ctx context.Context) error
	// Type enters text into an input element.
	Type(ctx context.Context, text string) error
	// FindAll locates descendants of the element.
	FindAll(ctx context.Context, selector string) ([]Element, error)
}

// Session navigates and inspects pages.
type Session interface {
	Navigate(ctx context.Context, url string) error
	// WaitFor blocks until selector matches an element or timeout elapses.
	WaitFor(ctx context.Context, selector string, timeout time.Duration) (Element, error)
	FindAll(ctx context.Context, selector string) ([]Element, error)
	CurrentURL(ctx context.Context) (string, error)
	Reload(ctx context.Context) error
	Back(ctx context.Context) error
	Close() error
}

// Find returns the first element matching selector.
func Find(ctx context.Context, s interface {
	FindAll(ctx context.Context, selector string) ([]Element, error)
}, selector string) (Element, error) {
	elements, err := s.FindAll(ctx, selector)
	if err != nil {
		return nil, err
	}
	if len(elements) == 0 {
		return nil, ErrNotFound
	}
	return elements[0], nil
}

// Pause waits for d or until ctx is done.
func Pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
