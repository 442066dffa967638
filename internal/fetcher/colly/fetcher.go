// Package collyfetcher implements harvest.Fetcher using gocolly. One Fetch
// walks the repository page, the tree page, the paginated commit listing and
// every per-commit tree page, downloading the README at each revision.
package collyfetcher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/hubharvest/hubharvest/internal/harvest"
)

// The hub paginates commit listings in pages of 50.
const commitsPerPage = 50

// Config controls collector behavior.
type Config struct {
	BaseURL   string
	UserAgent string
	Timeout   time.Duration

	// Delay is the pause between consecutive per-commit requests.
	Delay time.Duration
}

// Renderer executes a page with JavaScript enabled and returns the DOM.
type Renderer interface {
	Render(ctx context.Context, pageURL string, creds harvest.Credentials) ([]byte, error)
}

// ShellDetector decides when a plain fetch needs a headless retry.
type ShellDetector interface {
	ShouldPromote(statusCode int, body []byte) bool
}

// Fetcher implements harvest.Fetcher using the Colly collector.
type Fetcher struct {
	cfg           Config
	baseCollector *colly.Collector
	renderer      Renderer
	detector      ShellDetector
	logger        *zap.Logger
}

// New builds a Fetcher without headless promotion.
func New(cfg Config, logger *zap.Logger) *Fetcher {
	return NewWithRenderer(cfg, nil, nil, logger)
}

// NewWithRenderer builds a Fetcher that retries shell-looking repository
// pages through the renderer.
func NewWithRenderer(cfg Config, renderer Renderer, detector ShellDetector, logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := colly.NewCollector(colly.Async(false))
	c.IgnoreRobotsTxt = true
	return &Fetcher{cfg: cfg, baseCollector: c, renderer: renderer, detector: detector, logger: logger}
}

type commitRef struct {
	ID   string
	Date time.Time
}

// commitProps mirrors the JSON blob the hub embeds in each commit row.
type commitProps struct {
	Commit struct {
		Commit struct {
			ID string `json:"id"`
		} `json:"commit"`
		Date time.Time `json:"date"`
	} `json:"commit"`
}

// Fetch retrieves metadata and the full revision history for one repository.
//
// Error statuses from the hub are data, not failures: they are folded into
// the returned outcome so the caller can persist them. Only transport-level
// problems (DNS, timeouts, cancellation) surface as errors.
func (f *Fetcher) Fetch(ctx context.Context, entry harvest.CatalogEntry, creds harvest.Credentials) (harvest.FetchOutcome, error) {
	repoURL := f.cfg.BaseURL + "/" + string(entry.ID)
	meta, status, err := f.fetchRepoPage(ctx, repoURL, entry, creds)
	if err != nil {
		return harvest.FetchOutcome{}, err
	}
	if status >= 400 {
		return harvest.FetchOutcome{Kind: harvest.OutcomeTotal, StatusCode: status}, nil
	}
	if meta == nil {
		// 200 but no repository header rendered: a gated or otherwise
		// inaccessible page. No revision data is obtainable.
		return harvest.FetchOutcome{Kind: harvest.OutcomeTotal}, nil
	}

	commitCount, status, err := f.fetchTreePage(ctx, repoURL, creds)
	if err != nil {
		return harvest.FetchOutcome{}, err
	}
	if status >= 400 {
		return harvest.FetchOutcome{Kind: harvest.OutcomePartial, Metadata: meta, StatusCode: status}, nil
	}

	refs, status, err := f.fetchCommitListing(ctx, repoURL, commitCount, creds)
	if err != nil {
		return harvest.FetchOutcome{}, err
	}
	if status >= 400 {
		return harvest.FetchOutcome{Kind: harvest.OutcomePartial, Metadata: meta, StatusCode: status}, nil
	}

	revisions := make([]harvest.RevisionEntry, 0, len(refs))
	for i, ref := range refs {
		if i > 0 && f.cfg.Delay > 0 {
			select {
			case <-ctx.Done():
				return harvest.FetchOutcome{}, fmt.Errorf("fetch canceled: %w", ctx.Err())
			case <-time.After(f.cfg.Delay):
			}
		}
		rev, status, err := f.fetchRevision(ctx, repoURL, i, ref, creds)
		if err != nil {
			return harvest.FetchOutcome{}, err
		}
		if status >= 400 {
			return harvest.FetchOutcome{
				Kind:       harvest.OutcomePartial,
				Metadata:   meta,
				Revisions:  revisions,
				StatusCode: status,
			}, nil
		}
		revisions = append(revisions, rev)
	}

	return harvest.FetchOutcome{
		Kind:      harvest.OutcomeSuccess,
		Metadata:  meta,
		Revisions: revisions,
	}, nil
}

func (f *Fetcher) fetchRepoPage(ctx context.Context, repoURL string, entry harvest.CatalogEntry, creds harvest.Credentials) (*harvest.RepoMetadata, int, error) {
	var (
		owner, name string
		tags        []string
		sawHeader   bool
		body        []byte
	)
	status, err := f.visit(ctx, repoURL, creds, func(c *colly.Collector) {
		c.OnResponse(func(r *colly.Response) {
			body = append([]byte(nil), r.Body...)
		})
		c.OnHTML("header h1", func(_ *colly.HTMLElement) {
			sawHeader = true
		})
		c.OnHTML("header h1 div:nth-of-type(1) a", func(e *colly.HTMLElement) {
			owner = strings.TrimSpace(e.Text)
		})
		c.OnHTML("header h1 div:nth-of-type(2) a", func(e *colly.HTMLElement) {
			name = strings.TrimSpace(e.Text)
		})
		c.OnHTML("a.tag", func(e *colly.HTMLElement) {
			tags = append(tags, strings.TrimSpace(e.Text))
		})
	})
	if err != nil || status >= 400 {
		return nil, status, err
	}

	// Shell pages carry no repository header over plain HTTP. Retry once
	// with the renderer before giving up on the entity.
	if !sawHeader && f.renderer != nil && f.detector != nil && f.detector.ShouldPromote(status, body) {
		rendered, renderErr := f.renderer.Render(ctx, repoURL, creds)
		if renderErr != nil {
			f.logger.Warn("headless render failed",
				zap.String("url", repoURL),
				zap.Error(renderErr),
			)
		} else {
			owner, name, tags, sawHeader = parseRepoHTML(rendered)
		}
	}
	if !sawHeader {
		return nil, status, nil
	}

	// Single-segment repositories render only one header link.
	if owner == "" || name == "" {
		if parts := strings.SplitN(string(entry.ID), "/", 2); len(parts) == 2 {
			if owner == "" {
				owner = parts[0]
			}
			if name == "" {
				name = parts[1]
			}
		} else if name == "" {
			name = string(entry.ID)
		}
	}

	return &harvest.RepoMetadata{
		URL:       repoURL,
		Owner:     owner,
		Name:      name,
		Tags:      tags,
		Downloads: entry.Downloads,
		Likes:     entry.Likes,
	}, status, nil
}

func (f *Fetcher) fetchTreePage(ctx context.Context, repoURL string, creds harvest.Credentials) (int, int, error) {
	var spans []string
	status, err := f.visit(ctx, repoURL+"/tree/main?not-for-all-audiences=true", creds, func(c *colly.Collector) {
		c.OnHTML("header div a span", func(e *colly.HTMLElement) {
			spans = append(spans, e.Text)
		})
	})
	if err != nil || status >= 400 {
		return 0, status, err
	}
	// The second header span carries "N commits".
	if len(spans) < 2 {
		return 0, status, nil
	}
	return leadingInt(spans[1]), status, nil
}

func (f *Fetcher) fetchCommitListing(ctx context.Context, repoURL string, commitCount int, creds harvest.Credentials) ([]commitRef, int, error) {
	var refs []commitRef
	lastPage := commitCount / commitsPerPage
	for p := 0; p <= lastPage; p++ {
		pageURL := fmt.Sprintf("%s/commits/main?p=%d", repoURL, p)
		status, err := f.visit(ctx, pageURL, creds, func(c *colly.Collector) {
			c.OnHTML(`div[data-target="Commit"]`, func(e *colly.HTMLElement) {
				var props commitProps
				if jsonErr := json.Unmarshal([]byte(e.Attr("data-props")), &props); jsonErr != nil {
					return
				}
				if props.Commit.Commit.ID == "" {
					return
				}
				refs = append(refs, commitRef{ID: props.Commit.Commit.ID, Date: props.Commit.Date})
			})
		})
		if err != nil || status >= 400 {
			return nil, status, err
		}
	}
	return refs, 0, nil
}

func (f *Fetcher) fetchRevision(ctx context.Context, repoURL string, position int, ref commitRef, creds harvest.Credentials) (harvest.RevisionEntry, int, error) {
	commitURL := repoURL + "/tree/" + ref.ID
	var (
		files      []string
		readmeHref string
	)
	status, err := f.visit(ctx, commitURL, creds, func(c *colly.Collector) {
		c.OnHTML(`div[data-target="ViewerIndexTreeList"] ul li div a`, func(e *colly.HTMLElement) {
			files = append(files, strings.TrimSpace(e.Text))
		})
		c.OnHTML(`div[data-target="ViewerIndexTreeList"] ul li a[download]`, func(e *colly.HTMLElement) {
			href := e.Attr("href")
			if strings.Contains(strings.ToLower(href), "readme.md") {
				readmeHref = href
			}
		})
	})
	if err != nil || status >= 400 {
		return harvest.RevisionEntry{}, status, err
	}

	rev := harvest.RevisionEntry{
		Position:   position,
		CommitID:   ref.ID,
		CommitURL:  commitURL,
		CommitDate: ref.Date,
		Files:      files,
		StatusCode: 200,
	}
	if readmeHref == "" {
		return rev, 0, nil
	}

	var body []byte
	status, err = f.visit(ctx, f.cfg.BaseURL+readmeHref, creds, func(c *colly.Collector) {
		c.OnResponse(func(r *colly.Response) {
			body = append([]byte(nil), r.Body...)
		})
	})
	if err != nil || status >= 400 {
		return harvest.RevisionEntry{}, status, err
	}
	rev.ReadmeBody = body
	return rev, 0, nil
}

// visit runs a single GET through a cloned collector. An HTTP error status is
// returned as data with a nil error; transport failures return an error.
func (f *Fetcher) visit(ctx context.Context, pageURL string, creds harvest.Credentials, configure func(*colly.Collector)) (int, error) {
	collector := f.baseCollector.Clone()
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	timeout := f.cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	collector.SetRequestTimeout(timeout)
	if len(creds.Cookies) > 0 {
		if err := collector.SetCookies(pageURL, creds.Cookies); err != nil {
			return 0, fmt.Errorf("setting cookies: %w", err)
		}
	}

	var (
		status  int
		respErr error
	)
	collector.OnResponse(func(r *colly.Response) {
		status = r.StatusCode
	})
	collector.OnError(func(r *colly.Response, err error) {
		if r != nil {
			status = r.StatusCode
		}
		respErr = err
	})
	if configure != nil {
		configure(collector)
	}

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(pageURL)
	}()

	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("fetch canceled: %w", ctx.Err())
	case err := <-done:
		if status >= 400 {
			return status, nil
		}
		if err != nil {
			return 0, fmt.Errorf("visit %s: %w", pageURL, err)
		}
		if respErr != nil {
			return 0, fmt.Errorf("response %s: %w", pageURL, respErr)
		}
		return status, nil
	}
}

func parseRepoHTML(html []byte) (owner, name string, tags []string, sawHeader bool) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return "", "", nil, false
	}
	header := doc.Find("header h1")
	sawHeader = header.Length() > 0
	owner = strings.TrimSpace(header.Find("div:nth-of-type(1) a").First().Text())
	name = strings.TrimSpace(header.Find("div:nth-of-type(2) a").First().Text())
	doc.Find("a.tag").Each(func(_ int, s *goquery.Selection) {
		tags = append(tags, strings.TrimSpace(s.Text()))
	})
	return owner, name, tags, sawHeader
}

func leadingInt(s string) int {
	s = strings.TrimSpace(s)
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	n, _ := strconv.Atoi(s[:i])
	return n
}
