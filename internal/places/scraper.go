package places

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/compscout/compscout/internal/browser"
	"github.com/compscout/compscout/internal/landscape"
)

// DOM anchors on the maps result and place pages. These track the rendered
// markup and are expected to need occasional maintenance.
const (
	resultLinkSelector  = "a.hfpxzc"
	placeHeaderSelector = ".lMbq3e"
	infoRowSelector     = ".CsEnBe"
	resultFeedSelector  = `div[role="feed"]`
)

const (
	scrollStep      = 1500
	scrollPause     = 3 * time.Second
	defaultPlaces   = 10
	defaultScrolls  = 3
	searchURLFormat = "https://www.google.com/maps/search/%s"
)

// Config controls scrape pacing and the search endpoint.
type Config struct {
	SearchBaseURL string
	PlacePageQPS  float64
}

// Scraper implements landscape.PlaceScraper with a headless browser.
type Scraper struct {
	cfg     Config
	session *browser.Session
	pace    *rate.Limiter
	emails  EmailFetcher
	logger  *zap.Logger
}

// New builds a Scraper. The email fetcher may be nil to disable website
// email extraction regardless of job parameters.
func New(cfg Config, session *browser.Session, emails EmailFetcher, logger *zap.Logger) *Scraper {
	if logger == nil {
		logger = zap.NewNop()
	}
	limit := rate.Inf
	if cfg.PlacePageQPS > 0 {
		limit = rate.Limit(cfg.PlacePageQPS)
	}
	return &Scraper{
		cfg:     cfg,
		session: session,
		pace:    rate.NewLimiter(limit, 1),
		emails:  emails,
		logger:  logger,
	}
}

// ScrapePlaces runs every (query, location) combination, deduplicating by
// address and name across the whole run.
func (s *Scraper) ScrapePlaces(ctx context.Context, params landscape.PlacesParams) ([]landscape.PlaceRecord, error) {
	if len(params.SearchQueries) == 0 {
		return nil, fmt.Errorf("%w: at least one search query is required", landscape.ErrInvalidArgument)
	}
	if len(params.Locations) == 0 {
		params.Locations = []string{""}
	}
	if params.MaxPlaces <= 0 {
		params.MaxPlaces = defaultPlaces
	}
	if params.MaxScrolls <= 0 {
		params.MaxScrolls = defaultScrolls
	}

	var records []landscape.PlaceRecord
	tracker := newDedupeTracker()
	for _, query := range params.SearchQueries {
		for _, location := range params.Locations {
			combo, err := s.scrapeCombo(ctx, query, location, params, tracker)
			if err != nil {
				if ctx.Err() != nil {
					return nil, err
				}
				s.logger.Error("search combination failed",
					zap.String("query", query),
					zap.String("location", location),
					zap.Error(err),
				)
				continue
			}
			records = append(records, combo...)
		}
	}
	return records, nil
}

func (s *Scraper) scrapeCombo(
	ctx context.Context,
	query, location string,
	params landscape.PlacesParams,
	tracker *dedupeTracker,
) ([]landscape.PlaceRecord, error) {
	tab, cancel, err := s.session.Tab(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()

	urls, err := s.collectPlaceURLs(tab, query, location, params.MaxScrolls)
	if err != nil {
		return nil, err
	}
	s.logger.Info("search results collected",
		zap.String("query", query),
		zap.String("location", location),
		zap.Int("urls", len(urls)),
	)

	records := make([]landscape.PlaceRecord, 0, params.MaxPlaces)
	for _, placeURL := range urls {
		if len(records) >= params.MaxPlaces {
			break
		}
		if err := s.pace.Wait(ctx); err != nil {
			return nil, fmt.Errorf("pace wait: %w", err)
		}
		rec, ok, err := s.scrapePlace(ctx, tab, placeURL, query, location, params.ExtractEmails, tracker)
		if err != nil {
			if ctx.Err() != nil {
				return nil, err
			}
			s.logger.Warn("place extraction failed", zap.String("url", placeURL), zap.Error(err))
			continue
		}
		if ok {
			records = append(records, rec)
		}
	}
	return records, nil
}

func (s *Scraper) collectPlaceURLs(tab context.Context, query, location string, maxScrolls int) ([]string, error) {
	search := query
	if location != "" {
		search = fmt.Sprintf("%s in %s", query, location)
	}
	base := s.cfg.SearchBaseURL
	if base == "" {
		base = fmt.Sprintf(searchURLFormat, "")
	}
	searchURL := base + url.PathEscape(search)

	actions := []chromedp.Action{
		s.session.SetupAction(),
		chromedp.Navigate(searchURL),
		chromedp.WaitVisible(resultLinkSelector, chromedp.ByQuery),
	}
	// Scroll the result feed to force more listings to render.
	scrollJS := fmt.Sprintf(
		`(() => { const el = document.querySelector(%q) || document.documentElement; el.scrollBy(0, %d); })()`,
		resultFeedSelector, scrollStep,
	)
	for i := 0; i < maxScrolls; i++ {
		actions = append(actions,
			chromedp.Evaluate(scrollJS, nil),
			chromedp.Sleep(scrollPause),
		)
	}

	var urls []string
	collectJS := fmt.Sprintf(
		`Array.from(document.querySelectorAll(%q)).map(a => a.href)`,
		resultLinkSelector,
	)
	actions = append(actions, chromedp.Evaluate(collectJS, &urls))

	if err := chromedp.Run(tab, actions...); err != nil {
		return nil, fmt.Errorf("collect place urls: %w", err)
	}
	return urls, nil
}

func (s *Scraper) scrapePlace(
	ctx context.Context,
	tab context.Context,
	placeURL, query, location string,
	extractEmails bool,
	tracker *dedupeTracker,
) (landscape.PlaceRecord, bool, error) {
	var (
		headerText string
		rows       []infoRow
	)
	rowsJS := fmt.Sprintf(
		`Array.from(document.querySelectorAll(%q)).map(e => ({aria: e.getAttribute('aria-label') || '', text: e.innerText || '', href: e.getAttribute('href') || ''}))`,
		infoRowSelector,
	)
	err := chromedp.Run(tab,
		chromedp.Navigate(placeURL),
		chromedp.WaitVisible(placeHeaderSelector, chromedp.ByQuery),
		chromedp.Text(placeHeaderSelector, &headerText, chromedp.ByQuery),
		chromedp.Evaluate(rowsJS, &rows),
	)
	if err != nil {
		return landscape.PlaceRecord{}, false, fmt.Errorf("load place page: %w", err)
	}

	header, ok := parsePlaceHeader(headerText)
	if !ok {
		return landscape.PlaceRecord{}, false, nil
	}

	rec := landscape.PlaceRecord{
		SearchQuery: query,
		Location:    location,
		Name:        header.Name,
		Description: header.Description,
		Stars:       header.Stars,
		ReviewCount: header.ReviewCount,
		PriceRange:  header.PriceRange,
	}
	applyInfoRows(rows, &rec)

	if tracker.Seen(rec.Address, rec.Name) {
		return landscape.PlaceRecord{}, false, nil
	}

	if extractEmails && s.emails != nil && rec.Website != "" {
		emails, err := s.emails.Emails(ctx, rec.Website)
		if err != nil {
			s.logger.Warn("email extraction failed", zap.String("website", rec.Website), zap.Error(err))
		} else {
			rec.Emails = emails
		}
	}
	return rec, true, nil
}
