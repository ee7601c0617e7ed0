// Package discovery turns a configured source into the set of content items
// a run will extract events from: the base page itself, feed entries, or a
// link frontier expanded up to the source's separation depth.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/topicwatch/topicwatch/internal/config"
	"github.com/topicwatch/topicwatch/internal/fetcher"
	"github.com/topicwatch/topicwatch/internal/llm"
	"github.com/topicwatch/topicwatch/internal/models"
)

// ErrStageTimeout marks a discovery pass that exceeded its whole-stage
// deadline. It is fatal to the run.
var ErrStageTimeout = errors.New("discovery stage timed out")

// Item is one discovered content item, carrying the markdown the extraction
// stage will consume.
type Item struct {
	URL      string
	Title    string
	Date     time.Time
	Markdown string
	Depth    int

	visited bool
}

// ContentFetcher is the subset of the fetcher the engine needs.
type ContentFetcher interface {
	Fetch(ctx context.Context, url string) (*fetcher.Page, error)
	ParseFeed(ctx context.Context, url string) ([]fetcher.FeedEntry, error)
	EnumerateSiteArticles(ctx context.Context, url string) ([]string, error)
}

// Ledger answers whether a (url, date, topic) item was already processed.
type Ledger interface {
	Exists(ctx context.Context, ws models.WebSource) (bool, error)
}

// Engine discovers content items for a source.
type Engine struct {
	fetcher ContentFetcher
	llm     llm.Client
	ledger  Ledger
	cfg     config.DiscoveryConfig
	logger  *slog.Logger
}

func NewEngine(f ContentFetcher, client llm.Client, ledger Ledger, cfg config.DiscoveryConfig, logger *slog.Logger) *Engine {
	return &Engine{
		fetcher: f,
		llm:     client,
		ledger:  ledger,
		cfg:     cfg,
		logger:  logger,
	}
}

// Discover runs a full discovery pass for the source under the stage
// deadline. Items dated before the source's watermark, items without a
// date, and items already in the ledger are dropped. No returned item
// exceeds the source's separation depth.
func (e *Engine) Discover(ctx context.Context, source models.Source, topic models.Topic) ([]Item, error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.StageTimeout)
	defer cancel()

	seeds, err := e.seed(ctx, source)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", ErrStageTimeout, err)
		}
		return nil, fmt.Errorf("seeding discovery for source %s: %w", source.ID, err)
	}

	items, err := e.dedupe(ctx, source, seeds)
	if err != nil {
		return nil, err
	}

	items, err = e.expand(ctx, source, topic, items)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", ErrStageTimeout, err)
		}
		return nil, err
	}

	e.logger.Info("discovery finished",
		"source_id", source.ID,
		"items", len(items))
	return items, nil
}

// seed produces the initial frontier according to the source kind.
func (e *Engine) seed(ctx context.Context, source models.Source) ([]Item, error) {
	switch {
	case source.Kind == models.SourceKindRSS:
		return e.seedFromFeed(ctx, source)
	case source.DegreesOfSeparation == 0:
		return e.seedSinglePage(ctx, source)
	default:
		return e.seedFromSiteIndex(ctx, source)
	}
}

// seedSinglePage fetches exactly the base URL as the sole item.
func (e *Engine) seedSinglePage(ctx context.Context, source models.Source) ([]Item, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, e.cfg.FetchTimeout)
	defer cancel()

	page, err := e.fetcher.Fetch(fetchCtx, source.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("fetching base page: %w", err)
	}
	item := Item{
		URL:      page.URL,
		Title:    page.Title,
		Markdown: page.Markdown,
		Depth:    0,
	}
	if page.Date != nil {
		item.Date = *page.Date
	}
	return []Item{item}, nil
}

// seedFromFeed resolves feed entries newer than the watermark and fetches
// each one. The feed's own date wins over the page's extracted date.
func (e *Engine) seedFromFeed(ctx context.Context, source models.Source) ([]Item, error) {
	entries, err := e.fetcher.ParseFeed(ctx, source.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing feed: %w", err)
	}

	fresh := make([]fetcher.FeedEntry, 0, len(entries))
	for _, entry := range entries {
		if entry.Date == nil || !entry.Date.After(source.LastScrapedAt) {
			continue
		}
		fresh = append(fresh, entry)
	}
	e.logger.Info("feed parsed",
		"source_id", source.ID,
		"entries", len(entries),
		"fresh", len(fresh))

	items, failed := e.fetchAll(ctx, func(i int) string { return fresh[i].URL }, len(fresh),
		func(i int, page *fetcher.Page) Item {
			item := Item{
				URL:      page.URL,
				Title:    page.Title,
				Markdown: page.Markdown,
				Depth:    1,
				Date:     *fresh[i].Date,
			}
			if item.Title == "" {
				item.Title = fresh[i].Title
			}
			return item
		})
	if failed > 0 {
		e.logger.Warn("feed entry fetches failed", "source_id", source.ID, "failed", failed)
	}
	return items, ctx.Err()
}

// seedFromSiteIndex enumerates article links on the base page and fetches
// each as an item at depth 1, keeping only pages dated after the watermark.
func (e *Engine) seedFromSiteIndex(ctx context.Context, source models.Source) ([]Item, error) {
	enumCtx, cancel := context.WithTimeout(ctx, e.cfg.EnumerationTimeout)
	links, err := e.fetcher.EnumerateSiteArticles(enumCtx, source.BaseURL)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("enumerating site articles: %w", err)
	}
	e.logger.Info("site index enumerated", "source_id", source.ID, "links", len(links))

	items, failed := e.fetchAll(ctx, func(i int) string { return links[i] }, len(links),
		func(i int, page *fetcher.Page) Item {
			item := Item{
				URL:      page.URL,
				Title:    page.Title,
				Markdown: page.Markdown,
				Depth:    1,
			}
			if page.Date != nil {
				item.Date = *page.Date
			}
			return item
		})
	if failed > 0 {
		e.logger.Warn("article fetches failed", "source_id", source.ID, "failed", failed)
	}

	kept := items[:0]
	for _, item := range items {
		if !item.Date.IsZero() && item.Date.Before(source.LastScrapedAt) {
			continue
		}
		kept = append(kept, item)
	}
	return kept, ctx.Err()
}

// fetchAll downloads n pages concurrently, each under its own item-level
// timeout. Failures are counted but never abort the batch. The fetcher's
// domain limiter bounds concurrency per host.
func (e *Engine) fetchAll(ctx context.Context, urlAt func(int) string, n int, build func(int, *fetcher.Page) Item) ([]Item, int) {
	var (
		mu     sync.Mutex
		items  []Item
		failed int
		wg     sync.WaitGroup
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			fetchCtx, cancel := context.WithTimeout(ctx, e.cfg.FetchTimeout)
			defer cancel()

			page, err := e.fetcher.Fetch(fetchCtx, urlAt(i))
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				e.logger.Warn("item fetch failed", "url", urlAt(i), "error", err)
				failed++
				return
			}
			items = append(items, build(i, page))
		}(i)
	}
	wg.Wait()
	return items, failed
}

// dedupe drops dateless items and items already present in the ledger.
func (e *Engine) dedupe(ctx context.Context, source models.Source, items []Item) ([]Item, error) {
	kept := make([]Item, 0, len(items))
	dropped := 0
	for _, item := range items {
		if item.Date.IsZero() {
			e.logger.Info("dropping item without a date", "url", item.URL)
			dropped++
			continue
		}
		exists, err := e.ledger.Exists(ctx, models.WebSource{
			TopicID:       source.TopicID,
			URL:           item.URL,
			PublishedDate: item.Date.UTC(),
		})
		if err != nil {
			return nil, fmt.Errorf("checking ledger for %s: %w", item.URL, err)
		}
		if exists {
			dropped++
			continue
		}
		kept = append(kept, item)
	}
	if dropped > 0 {
		e.logger.Info("deduplicated items",
			"source_id", source.ID,
			"dropped", dropped,
			"kept", len(kept))
	}
	return kept, nil
}

// expand grows the frontier: every unvisited item below the depth limit has
// its content mined for further links, and each linked page becomes a new
// item one level deeper. The loop ends when no eligible items remain.
func (e *Engine) expand(ctx context.Context, source models.Source, topic models.Topic, items []Item) ([]Item, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var eligible []int
		for i := range items {
			if !items[i].visited && items[i].Depth < source.DegreesOfSeparation {
				eligible = append(eligible, i)
			}
		}
		if len(eligible) == 0 {
			return items, nil
		}
		e.logger.Info("expanding frontier",
			"source_id", source.ID,
			"frontier", len(items),
			"eligible", len(eligible))

		var (
			mu    sync.Mutex
			found []Item
			wg    sync.WaitGroup
		)
		for _, idx := range eligible {
			items[idx].visited = true
			wg.Add(1)
			go func(parent Item) {
				defer wg.Done()
				children, err := e.expandItem(ctx, source, topic, parent)
				if err != nil {
					e.logger.Warn("frontier expansion failed for item",
						"url", parent.URL, "error", err)
					return
				}
				mu.Lock()
				found = append(found, children...)
				mu.Unlock()
			}(items[idx])
		}
		wg.Wait()

		deduped, err := e.dedupe(ctx, source, found)
		if err != nil {
			return nil, err
		}

		// Items found in a previous iteration of this same pass are not in
		// the ledger yet, so the frontier is also checked directly.
		seen := make(map[string]struct{}, len(items))
		for _, item := range items {
			seen[frontierKey(item)] = struct{}{}
		}
		for _, item := range deduped {
			if _, dup := seen[frontierKey(item)]; dup {
				continue
			}
			seen[frontierKey(item)] = struct{}{}
			items = append(items, item)
		}
	}
}

// expandItem extracts candidate links from one item and fetches them as
// items one level deeper, keeping only pages dated at or after the
// watermark. The link's extracted date wins over the fetched page's date.
func (e *Engine) expandItem(ctx context.Context, source models.Source, topic models.Topic, parent Item) ([]Item, error) {
	links, err := e.llm.ExtractLinks(ctx, topic, parent.Markdown)
	if err != nil {
		return nil, fmt.Errorf("extracting links: %w", err)
	}
	if len(links) == 0 {
		return nil, nil
	}

	items, failed := e.fetchAll(ctx, func(i int) string { return links[i].URL }, len(links),
		func(i int, page *fetcher.Page) Item {
			item := Item{
				URL:      page.URL,
				Title:    page.Title,
				Markdown: page.Markdown,
				Depth:    parent.Depth + 1,
			}
			if links[i].Date != nil {
				item.Date = *links[i].Date
			} else if page.Date != nil {
				item.Date = *page.Date
			}
			if item.Title == "" {
				item.Title = links[i].Title
			}
			return item
		})

	kept := items[:0]
	outdated := 0
	for _, item := range items {
		if !item.Date.IsZero() && item.Date.Before(source.LastScrapedAt) {
			outdated++
			continue
		}
		kept = append(kept, item)
	}
	e.logger.Info("expanded item",
		"url", parent.URL,
		"links", len(links),
		"kept", len(kept),
		"outdated", outdated,
		"failed", failed)
	return kept, nil
}

func frontierKey(item Item) string {
	return item.URL + "|" + item.Date.UTC().Format(time.RFC3339)
}
