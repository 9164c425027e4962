package products

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/compscout/compscout/internal/browser"
	"github.com/compscout/compscout/internal/landscape"
)

const (
	searchBoxSelector = `//*[@role="combobox"]`
	storeCardSelector = `//a[@data-testid="store-card"]`

	defaultStores  = 50
	settlePause    = 3 * time.Second
	keystrokeDelay = time.Second
)

// restaurantTabLabels select the restaurant vertical; the rendered label
// depends on the storefront locale.
var restaurantTabLabels = []string{"Restaurants", "Restaurantes"}

// Config controls the storefront scrape.
type Config struct {
	// StorefrontURL is the delivery storefront landing page.
	StorefrontURL string
	// MaxParallelStores bounds concurrent per-store extraction tabs.
	MaxParallelStores int
}

// Scraper implements landscape.ProductScraper with a headless browser.
type Scraper struct {
	cfg     Config
	session *browser.Session
	logger  *zap.Logger
}

// New builds a Scraper.
func New(cfg Config, session *browser.Session, logger *zap.Logger) *Scraper {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxParallelStores <= 0 {
		cfg.MaxParallelStores = 2
	}
	return &Scraper{cfg: cfg, session: session, logger: logger}
}

// storeRef pairs a store card's display name with its menu URL.
type storeRef struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// ScrapeProducts runs the storefront session (location, restaurant tab,
// query), then fans per-store menu extraction out over bounded tabs.
func (s *Scraper) ScrapeProducts(ctx context.Context, params landscape.ProductsParams) ([]landscape.ProductRecord, error) {
	if params.SearchQuery == "" {
		return nil, fmt.Errorf("%w: search query is required", landscape.ErrInvalidArgument)
	}
	if params.Location == "" {
		return nil, fmt.Errorf("%w: location is required", landscape.ErrInvalidArgument)
	}
	if s.cfg.StorefrontURL == "" {
		return nil, fmt.Errorf("%w: storefront URL is not configured", landscape.ErrInvalidArgument)
	}
	if params.MaxStores <= 0 {
		params.MaxStores = defaultStores
	}

	stores, err := s.collectStores(ctx, params)
	if err != nil {
		return nil, err
	}
	if len(stores) > params.MaxStores {
		stores = stores[:params.MaxStores]
	}
	s.logger.Info("store cards collected",
		zap.String("query", params.SearchQuery),
		zap.String("location", params.Location),
		zap.Int("stores", len(stores)),
	)

	results := make([][]landscape.ProductRecord, len(stores))
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(s.cfg.MaxParallelStores)
	for i, store := range stores {
		group.Go(func() error {
			rows, err := s.extractStore(groupCtx, store)
			if err != nil {
				// One broken store page should not sink the rest.
				if groupCtx.Err() != nil {
					return err
				}
				s.logger.Warn("store extraction failed", zap.String("store", store.Name), zap.Error(err))
				return nil
			}
			results[i] = rows
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}

	var records []landscape.ProductRecord
	for _, rows := range results {
		records = append(records, rows...)
	}
	return records, nil
}

// collectStores drives the storefront search session in one tab.
func (s *Scraper) collectStores(ctx context.Context, params landscape.ProductsParams) ([]storeRef, error) {
	tab, cancel, err := s.session.Tab(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()

	actions := []chromedp.Action{
		s.session.SetupAction(),
		chromedp.Navigate(s.cfg.StorefrontURL),
		chromedp.WaitVisible(searchBoxSelector),
		chromedp.SendKeys(searchBoxSelector, params.Location),
		chromedp.Sleep(keystrokeDelay),
		chromedp.SendKeys(searchBoxSelector, kb.Enter),
		chromedp.Sleep(settlePause),
		chromedp.WaitReady("body", chromedp.ByQuery),
	}
	// The restaurant tab is optional; some storefront variants land on it
	// already. Click whichever locale label is present.
	tabJS := restaurantTabClickJS()
	actions = append(actions,
		chromedp.Evaluate(tabJS, nil),
		chromedp.Sleep(keystrokeDelay),
		chromedp.WaitVisible(searchBoxSelector),
		chromedp.SendKeys(searchBoxSelector, params.SearchQuery),
		chromedp.SendKeys(searchBoxSelector, kb.Enter),
		chromedp.Sleep(settlePause),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)

	var stores []storeRef
	collectJS := `Array.from(document.querySelectorAll('a[data-testid="store-card"]'))
		.map(a => ({name: (a.querySelector('h3') || {}).innerText || '', url: a.href}))
		.filter(s => s.name !== '')
		.filter((s, i, all) => all.findIndex(o => o.url === s.url) === i)`
	actions = append(actions, chromedp.Evaluate(collectJS, &stores))

	if err := chromedp.Run(tab, actions...); err != nil {
		return nil, fmt.Errorf("storefront session: %w", err)
	}
	return stores, nil
}

func restaurantTabClickJS() string {
	return fmt.Sprintf(`(() => {
		const labels = [%q, %q];
		for (const li of document.querySelectorAll('li')) {
			if (labels.includes(li.textContent.trim())) { li.click(); return true; }
		}
		return false;
	})()`, restaurantTabLabels[0], restaurantTabLabels[1])
}

// extractStore opens its own tab and pulls the category/span structure.
func (s *Scraper) extractStore(ctx context.Context, store storeRef) ([]landscape.ProductRecord, error) {
	tab, cancel, err := s.session.Tab(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()

	var blocks []categoryBlock
	blocksJS := `Array.from(document.querySelectorAll('li'))
		.filter(li => li.querySelector('h3'))
		.map(li => ({
			category: li.querySelector('h3').innerText || '',
			spans: Array.from(li.querySelectorAll('span')).map(sp => sp.innerText || ''),
		}))`
	err = chromedp.Run(tab,
		s.session.SetupAction(),
		chromedp.Navigate(store.URL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(settlePause),
		chromedp.Evaluate(blocksJS, &blocks),
	)
	if err != nil {
		return nil, fmt.Errorf("load store page: %w", err)
	}
	return parseStoreMenu(store.Name, blocks), nil
}
