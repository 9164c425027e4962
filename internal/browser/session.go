// Package browser manages the headless Chrome process used by the scrapers.
package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/chromedp"
)

// Config controls the shared browser allocator.
type Config struct {
	Headless          bool
	MaxParallel       int
	UserAgent         string
	AcceptLanguage    string
	NavigationTimeout time.Duration
}

// Session owns one Chrome allocator. Tabs are acquired per scrape task and
// released on every exit path; Close tears the whole process tree down.
type Session struct {
	cfg         Config
	limiter     chan struct{}
	allocator   context.Context
	allocCancel context.CancelFunc
}

// New starts a browser allocator.
func New(cfg Config) (*Session, error) {
	if cfg.MaxParallel < 0 {
		return nil, fmt.Errorf("max parallel must be >= 0")
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = 45 * time.Second
	}
	if cfg.AcceptLanguage == "" {
		cfg.AcceptLanguage = "en,en_US"
	}
	var limiter chan struct{}
	if cfg.MaxParallel > 0 {
		limiter = make(chan struct{}, cfg.MaxParallel)
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("accept-lang", cfg.AcceptLanguage),
		chromedp.Flag("enable-automation", false),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	return &Session{
		cfg:         cfg,
		limiter:     limiter,
		allocator:   allocCtx,
		allocCancel: allocCancel,
	}, nil
}

// Close cancels the allocator context, ending the browser process.
func (s *Session) Close() {
	s.allocCancel()
}

// Tab acquires a parallelism slot and opens a fresh browser tab bound to the
// navigation timeout. The returned cancel releases both tab and slot and must
// be called on every exit path.
func (s *Session) Tab(ctx context.Context) (context.Context, context.CancelFunc, error) {
	if err := s.acquire(ctx); err != nil {
		return nil, nil, err
	}

	taskCtx, taskCancel := chromedp.NewContext(s.allocator)
	taskCtx, timeoutCancel := context.WithTimeout(taskCtx, s.cfg.NavigationTimeout)

	cancel := func() {
		timeoutCancel()
		taskCancel()
		s.release()
	}
	return taskCtx, cancel, nil
}

// SetupAction returns the chromedp action applied before each navigation.
func (s *Session) SetupAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if s.cfg.UserAgent == "" {
			return nil
		}
		if err := emulation.SetUserAgentOverride(s.cfg.UserAgent).Do(ctx); err != nil {
			return fmt.Errorf("set user-agent: %w", err)
		}
		return nil
	})
}

func (s *Session) acquire(ctx context.Context) error {
	if s.limiter == nil {
		return nil
	}
	select {
	case s.limiter <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("browser slot wait canceled: %w", ctx.Err())
	}
}

func (s *Session) release() {
	if s.limiter == nil {
		return
	}
	select {
	case <-s.limiter:
	default:
	}
}
