// Package collylister discovers the identifier catalog from the hub listing
// pages using gocolly.
package collylister

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/hubharvest/hubharvest/internal/harvest"
)

// Config controls collector behavior for catalog discovery.
type Config struct {
	BaseURL    string
	ModelsPath string
	UserAgent  string
	Timeout    time.Duration

	// MaxPages caps pagination; 0 walks until no Next link is found.
	MaxPages int
}

// Lister implements harvest.Lister by paginating the hub model index.
type Lister struct {
	cfg           Config
	creds         harvest.Credentials
	baseCollector *colly.Collector
	logger        *zap.Logger
}

// New builds a Lister. The credentials are attached to every listing request.
func New(cfg Config, creds harvest.Credentials, logger *zap.Logger) *Lister {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := colly.NewCollector(colly.Async(false))
	c.IgnoreRobotsTxt = true
	return &Lister{
		cfg:           cfg,
		creds:         creds,
		baseCollector: c,
		logger:        logger,
	}
}

// List walks the index pages following Next links and returns one entry per
// repository card. Discovery fails as a whole if any page fails; a partial
// catalog must never be frozen.
func (l *Lister) List(ctx context.Context) ([]harvest.CatalogEntry, error) {
	var entries []harvest.CatalogEntry

	next := l.cfg.BaseURL + l.cfg.ModelsPath
	pages := 0
	for next != "" {
		pageEntries, nextURL, err := l.scrapeIndexPage(ctx, next)
		if err != nil {
			return nil, fmt.Errorf("listing page %d: %w", pages+1, err)
		}
		entries = append(entries, pageEntries...)
		pages++
		l.logger.Debug("scraped listing page",
			zap.Int("page", pages),
			zap.Int("entries_total", len(entries)),
		)
		if l.cfg.MaxPages > 0 && pages >= l.cfg.MaxPages {
			break
		}
		next = nextURL
	}

	if len(entries) == 0 {
		return nil, fmt.Errorf("listing produced no entries")
	}
	return entries, nil
}

func (l *Lister) scrapeIndexPage(ctx context.Context, pageURL string) ([]harvest.CatalogEntry, string, error) {
	var (
		entries  []harvest.CatalogEntry
		nextURL  string
		fetchErr error
	)

	collector := l.baseCollector.Clone()
	if l.cfg.UserAgent != "" {
		collector.UserAgent = l.cfg.UserAgent
	}
	timeout := l.cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	collector.SetRequestTimeout(timeout)
	if len(l.creds.Cookies) > 0 {
		if err := collector.SetCookies(pageURL, l.creds.Cookies); err != nil {
			return nil, "", fmt.Errorf("setting cookies: %w", err)
		}
	}

	collector.OnHTML("article.overview-card-wrapper > a", func(e *colly.HTMLElement) {
		id := strings.Trim(e.Attr("href"), "/")
		if id == "" {
			return
		}
		entries = append(entries, harvest.CatalogEntry{
			ID:        harvest.Identifier(id),
			Downloads: parseCount(e.ChildText("span.downloads")),
			Likes:     parseCount(e.ChildText("span.likes")),
		})
	})

	collector.OnHTML("a", func(e *colly.HTMLElement) {
		if strings.TrimSpace(e.Text) != "Next" {
			return
		}
		href := e.Attr("href")
		switch {
		case href == "":
		case strings.HasPrefix(href, "http"):
			nextURL = href
		default:
			nextURL = l.cfg.BaseURL + l.cfg.ModelsPath + href
		}
	})

	collector.OnError(func(_ *colly.Response, err error) {
		fetchErr = err
	})

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(pageURL)
	}()

	select {
	case <-ctx.Done():
		return nil, "", fmt.Errorf("listing canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return nil, "", fmt.Errorf("visit failed: %w", err)
		}
		if fetchErr != nil {
			return nil, "", fmt.Errorf("response failed: %w", fetchErr)
		}
		return entries, nextURL, nil
	}
}

// parseCount converts the abbreviated card counters ("851", "1.2k", "3M")
// into plain integers. Unparseable text counts as zero.
func parseCount(s string) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	mult := 1.0
	switch {
	case strings.HasSuffix(s, "k"):
		mult, s = 1_000, strings.TrimSuffix(s, "k")
	case strings.HasSuffix(s, "M"):
		mult, s = 1_000_000, strings.TrimSuffix(s, "M")
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64)
	if err != nil {
		return 0
	}
	return int(v * mult)
}
