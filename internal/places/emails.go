package places

import (
	"context"
	"fmt"
	"time"

	"github.com/gocolly/colly/v2"
)

// EmailFetcher fetches a place website and extracts contact emails. Plain
// HTTP is enough here; the linked sites are ordinary business pages.
type EmailFetcher interface {
	Emails(ctx context.Context, websiteURL string) (string, error)
}

// CollyEmailFetcher implements EmailFetcher with a colly collector.
type CollyEmailFetcher struct {
	userAgent string
	timeout   time.Duration
}

// NewCollyEmailFetcher builds a fetcher.
func NewCollyEmailFetcher(userAgent string, timeout time.Duration) *CollyEmailFetcher {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &CollyEmailFetcher{userAgent: userAgent, timeout: timeout}
}

// Emails downloads the page and returns the comma-joined unique addresses
// found in its HTML.
func (f *CollyEmailFetcher) Emails(ctx context.Context, websiteURL string) (string, error) {
	c := colly.NewCollector(colly.Async(false))
	if f.userAgent != "" {
		c.UserAgent = f.userAgent
	}
	c.IgnoreRobotsTxt = true
	c.SetRequestTimeout(f.timeout)

	var (
		emails   string
		fetchErr error
	)
	c.OnResponse(func(r *colly.Response) {
		emails = extractEmails(string(r.Body))
	})
	c.OnError(func(_ *colly.Response, err error) {
		fetchErr = err
	})
	c.OnRequest(func(r *colly.Request) {
		select {
		case <-ctx.Done():
			r.Abort()
			fetchErr = ctx.Err()
		default:
		}
	})

	if err := c.Visit(websiteURL); err != nil {
		return "", fmt.Errorf("visit website: %w", err)
	}
	c.Wait()
	if fetchErr != nil {
		return "", fmt.Errorf("fetch website: %w", fetchErr)
	}
	return emails, nil
}
