// Package scheduler seeds the detector with links published by feeds.
package scheduler

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"repost_bot/internal/detector"
	"repost_bot/internal/fetcher"
	"repost_bot/internal/filter"
	"repost_bot/internal/model"
)

// Detector is the part of the detection engine the scheduler uses.
type Detector interface {
	Detect(event model.ContentEvent) (detector.Verdict, error)
}

// Scheduler periodically polls feeds and runs their item links through the
// detector, so that chat users who later post the same link see a notice
// naming the feed.
type Scheduler struct {
	urls     []string
	detector Detector
	fetcher  *fetcher.Fetcher
	rules    *filter.Set
	log      *slog.Logger
	tick     time.Duration
	now      func() time.Time

	mu sync.Mutex
	// GUIDs returned by the previous poll of each feed.
	seen map[string]map[string]struct{}
}

// New creates a Scheduler with the default HTTP client.
func New(urls []string, d Detector, rules *filter.Set, log *slog.Logger) *Scheduler {
	return NewWithFetcher(urls, d, fetcher.New(http.DefaultClient), rules, log)
}

// NewWithFetcher creates a Scheduler with a custom fetcher (useful for testing).
func NewWithFetcher(urls []string, d Detector, f *fetcher.Fetcher, rules *filter.Set, log *slog.Logger) *Scheduler {
	return &Scheduler{
		urls:     urls,
		detector: d,
		fetcher:  f,
		rules:    rules,
		log:      log,
		tick:     15 * time.Minute,
		now:      time.Now,
		seen:     make(map[string]map[string]struct{}),
	}
}

// SetTickInterval overrides the default 15-minute poll interval.
func (s *Scheduler) SetTickInterval(d time.Duration) {
	if d > 0 {
		s.tick = d
	}
}

// Run starts the scheduler loop, blocking until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	if len(s.urls) == 0 {
		return
	}
	s.log.Info("feed seeding started", "feeds", len(s.urls), "interval", s.tick, "filtered", !s.rules.Empty())

	s.checkAll(ctx)

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.checkAll(ctx)
		}
	}
}

func (s *Scheduler) checkAll(ctx context.Context) {
	for _, url := range s.urls {
		if ctx.Err() != nil {
			return
		}
		s.processFeed(ctx, url)
	}
}

func (s *Scheduler) processFeed(ctx context.Context, url string) {
	s.log.Debug("checking feed", "url", url)

	feed, err := s.fetcher.Fetch(ctx, url)
	if err != nil {
		s.log.Error("fetch feed", "url", url, "error", err)
		return
	}

	name := feed.Title
	if name == "" {
		name = url
	}

	s.mu.Lock()
	previous := s.seen[url]
	s.mu.Unlock()

	current := make(map[string]struct{}, len(feed.Items))
	counts := make(map[detector.Outcome]int)
	for _, item := range fetcher.LinkItems(feed.Items, s.rules) {
		current[item.GUID] = struct{}{}
		if _, ok := previous[item.GUID]; ok {
			continue
		}

		posted := item.Published
		if posted.IsZero() {
			posted = s.now().UTC()
		}
		v, err := s.detector.Detect(model.LinkEvent(item.Link, model.Origin{
			AuthorID:    "feed:" + url,
			AuthorName:  name,
			ChannelID:   "feed:" + url,
			MessageID:   item.GUID,
			MessageLink: item.Link,
			Timestamp:   posted,
		}))
		if err != nil {
			s.log.Warn("detect feed item", "url", url, "link", item.Link, "error", err)
			continue
		}
		counts[v.Outcome]++
		s.log.Debug("feed item checked", "url", url, "link", item.Link, "verdict", v.Outcome.String())
	}

	s.mu.Lock()
	s.seen[url] = current
	s.mu.Unlock()

	if n := counts[detector.FirstSeen] + counts[detector.Repost]; n > 0 {
		s.log.Info("seeded feed links",
			"url", url,
			"name", name,
			"first_seen", counts[detector.FirstSeen],
			"repost", counts[detector.Repost],
			"allowed", counts[detector.Allowed],
		)
	}
}
