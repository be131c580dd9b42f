// Package fetcher downloads feeds and media for the detector.
package fetcher

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/mmcdole/gofeed"

	"repost_bot/internal/filter"
)

const userAgent = "RepostBot/1.0"

var (
	// ErrTooLarge is returned when a download exceeds its size limit.
	ErrTooLarge = errors.New("response exceeds size limit")
	// ErrEmptyBody is returned when a download has no content.
	ErrEmptyBody = errors.New("empty response body")
)

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Item is a feed entry that passed filtering.
type Item struct {
	Title     string
	Link      string
	GUID      string
	Published time.Time
}

// Fetcher downloads feeds and attachment bytes.
type Fetcher struct {
	client  HTTPClient
	timeout time.Duration
}

// New creates a Fetcher with the given HTTP client.
func New(client HTTPClient) *Fetcher {
	return &Fetcher{
		client:  client,
		timeout: 30 * time.Second,
	}
}

// Fetch downloads and parses an RSS or Atom feed from the given URL.
func (f *Fetcher) Fetch(ctx context.Context, url string) (*gofeed.Feed, error) {
	body, err := f.get(ctx, url, 5*1024*1024)
	if err != nil {
		return nil, err
	}

	parser := gofeed.NewParser()
	feed, err := parser.ParseString(string(body))
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}
	return feed, nil
}

// Download fetches the bytes at url. Bodies larger than limit, non-200
// responses and empty bodies are errors.
func (f *Fetcher) Download(ctx context.Context, url string, limit int64) ([]byte, error) {
	body, err := f.get(ctx, url, limit)
	if err != nil {
		return nil, err
	}
	if len(body) == 0 {
		return nil, ErrEmptyBody
	}
	return body, nil
}

func (f *Fetcher) get(ctx context.Context, url string, limit int64) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	if resp.ContentLength > limit {
		return nil, fmt.Errorf("%w: %d bytes", ErrTooLarge, resp.ContentLength)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if int64(len(body)) > limit {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrTooLarge, limit)
	}
	return body, nil
}

// ItemGUID returns the GUID for a feed item.
// If the item has no GUID, a SHA-256 hash of title+link is used.
func ItemGUID(item *gofeed.Item) string {
	if item.GUID != "" {
		return item.GUID
	}
	h := sha256.Sum256([]byte(item.Title + "|" + item.Link))
	return fmt.Sprintf("sha256:%x", h[:16])
}

// LinkItems returns the items that carry a link and pass rules.
func LinkItems(items []*gofeed.Item, rules *filter.Set) []Item {
	var out []Item
	for _, item := range items {
		if item.Link == "" {
			continue
		}
		if !rules.Match(filter.FeedItem{Title: item.Title, Description: item.Description}) {
			continue
		}
		it := Item{
			Title: item.Title,
			Link:  item.Link,
			GUID:  ItemGUID(item),
		}
		switch {
		case item.PublishedParsed != nil:
			it.Published = *item.PublishedParsed
		case item.UpdatedParsed != nil:
			it.Published = *item.UpdatedParsed
		}
		out = append(out, it)
	}
	return out
}
