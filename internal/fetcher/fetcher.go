// Package fetcher retrieves remote pages and feeds and normalizes them
// into article candidates for the discovery pipeline.
package fetcher

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"
)

const (
	userAgent       = "topicwatch/1.0 (+https://github.com/topicwatch/topicwatch)"
	maxResponseSize = 10 << 20
)

// Page is a fetched web page reduced to the fields extraction cares about.
type Page struct {
	URL      string
	Title    string
	Date     *time.Time
	Markdown string
}

// FeedEntry is a single item from an RSS or Atom feed.
type FeedEntry struct {
	URL   string
	Title string
	Date  *time.Time
}

// Fetcher downloads pages and feeds under per-domain concurrency and
// pacing limits.
type Fetcher struct {
	client    *http.Client
	converter *md.Converter
	feeds     *gofeed.Parser
	limiter   *DomainLimiter
	logger    *slog.Logger
}

func New(timeout time.Duration, limiter *DomainLimiter, logger *slog.Logger) *Fetcher {
	return &Fetcher{
		client:    &http.Client{Timeout: timeout},
		converter: md.NewConverter("", true, nil),
		feeds:     gofeed.NewParser(),
		limiter:   limiter,
		logger:    logger,
	}
}

// Fetch downloads a page, extracts its title and publication date and
// converts the body to markdown.
func (f *Fetcher) Fetch(ctx context.Context, pageURL string) (*Page, error) {
	body, err := f.get(ctx, pageURL)
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", pageURL, err)
	}

	markdown, err := f.converter.ConvertString(body)
	if err != nil {
		return nil, fmt.Errorf("converting %s to markdown: %w", pageURL, err)
	}

	return &Page{
		URL:      pageURL,
		Title:    extractTitle(doc),
		Date:     extractDate(doc),
		Markdown: strings.TrimSpace(markdown),
	}, nil
}

// ParseFeed downloads and parses an RSS or Atom feed. Entries without a
// usable link are dropped; the entry date is the later of the published
// and updated timestamps when both are present.
func (f *Fetcher) ParseFeed(ctx context.Context, feedURL string) ([]FeedEntry, error) {
	body, err := f.get(ctx, feedURL)
	if err != nil {
		return nil, err
	}

	feed, err := f.feeds.ParseString(body)
	if err != nil {
		return nil, fmt.Errorf("parsing feed %s: %w", feedURL, err)
	}

	entries := make([]FeedEntry, 0, len(feed.Items))
	for _, item := range feed.Items {
		if item.Link == "" {
			continue
		}
		link, err := resolveURL(feedURL, item.Link)
		if err != nil {
			continue
		}
		entries = append(entries, FeedEntry{
			URL:   link,
			Title: strings.TrimSpace(item.Title),
			Date:  itemDate(item),
		})
	}
	return entries, nil
}

// EnumerateSiteArticles fetches a page and returns the distinct same-host
// article links found on it, resolved to absolute URLs. Fragments and
// query strings are stripped so variants of one article collapse.
func (f *Fetcher) EnumerateSiteArticles(ctx context.Context, siteURL string) ([]string, error) {
	body, err := f.get(ctx, siteURL)
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", siteURL, err)
	}

	base, err := url.Parse(siteURL)
	if err != nil {
		return nil, fmt.Errorf("parsing site url %s: %w", siteURL, err)
	}

	seen := make(map[string]struct{})
	var links []string
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(href, "#") ||
			strings.HasPrefix(href, "mailto:") || strings.HasPrefix(href, "javascript:") {
			return
		}
		ref, err := base.Parse(href)
		if err != nil {
			return
		}
		if ref.Scheme != "http" && ref.Scheme != "https" {
			return
		}
		if !strings.EqualFold(ref.Hostname(), base.Hostname()) {
			return
		}
		ref.Fragment = ""
		ref.RawQuery = ""
		normalized := ref.String()
		if normalized == siteURL || normalized == strings.TrimSuffix(siteURL, "/") {
			return
		}
		if _, dup := seen[normalized]; dup {
			return
		}
		seen[normalized] = struct{}{}
		links = append(links, normalized)
	})

	f.logger.Debug("enumerated site links", "url", siteURL, "count", len(links))
	return links, nil
}

func (f *Fetcher) get(ctx context.Context, rawURL string) (string, error) {
	release, err := f.limiter.Acquire(ctx, rawURL)
	if err != nil {
		return "", fmt.Errorf("waiting for domain slot for %s: %w", rawURL, err)
	}
	defer release()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("building request for %s: %w", rawURL, err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetching %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("fetching %s: unexpected status %d", rawURL, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", rawURL, err)
	}
	return string(body), nil
}

func extractTitle(doc *goquery.Document) string {
	if title, ok := doc.Find("meta[property='og:title']").Attr("content"); ok {
		if t := strings.TrimSpace(title); t != "" {
			return t
		}
	}
	return strings.TrimSpace(doc.Find("title").First().Text())
}

// dateFormats covers the timestamp shapes seen in article metadata.
var dateFormats = []string{
	time.RFC3339,
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	time.RFC1123,
	time.RFC1123Z,
}

func extractDate(doc *goquery.Document) *time.Time {
	candidates := []string{}
	if v, ok := doc.Find("meta[property='article:published_time']").Attr("content"); ok {
		candidates = append(candidates, v)
	}
	if v, ok := doc.Find("meta[itemprop='datePublished']").Attr("content"); ok {
		candidates = append(candidates, v)
	}
	if v, ok := doc.Find("meta[name='date']").Attr("content"); ok {
		candidates = append(candidates, v)
	}
	if v, ok := doc.Find("time[datetime]").First().Attr("datetime"); ok {
		candidates = append(candidates, v)
	}

	for _, raw := range candidates {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		for _, layout := range dateFormats {
			if t, err := time.Parse(layout, raw); err == nil {
				utc := t.UTC()
				return &utc
			}
		}
	}
	return nil
}

func itemDate(item *gofeed.Item) *time.Time {
	var t *time.Time
	if item.PublishedParsed != nil {
		v := item.PublishedParsed.UTC()
		t = &v
	}
	if item.UpdatedParsed != nil {
		v := item.UpdatedParsed.UTC()
		if t == nil || v.After(*t) {
			t = &v
		}
	}
	return t
}

func resolveURL(base, ref string) (string, error) {
	b, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	r, err := b.Parse(ref)
	if err != nil {
		return "", err
	}
	return r.String(), nil
}
