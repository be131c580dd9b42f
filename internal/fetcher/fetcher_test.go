package fetcher

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/mmcdole/gofeed"

	"repost_bot/internal/filter"
)

type mockTransport struct {
	body       string
	statusCode int
	err        error
	gotUA      string
}

func (m *mockTransport) Do(req *http.Request) (*http.Response, error) {
	m.gotUA = req.Header.Get("User-Agent")
	if m.err != nil {
		return nil, m.err
	}
	return &http.Response{
		StatusCode: m.statusCode,
		Body:       io.NopCloser(bytes.NewBufferString(m.body)),
	}, nil
}

func loadFixture(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path) //nolint:gosec // test-only fixture loading
	if err != nil {
		t.Fatalf("read fixture %s: %v", path, err)
	}
	return string(data)
}

func TestFetch(t *testing.T) {
	xml := loadFixture(t, "../../testdata/sample.xml")

	tests := []struct {
		name      string
		transport *mockTransport
		wantTitle string
		wantItems int
		wantErr   bool
	}{
		{
			name:      "successful fetch",
			transport: &mockTransport{body: xml, statusCode: 200},
			wantTitle: "Meme Digest",
			wantItems: 4,
		},
		{
			name:      "http error status",
			transport: &mockTransport{body: "not found", statusCode: 404},
			wantErr:   true,
		},
		{
			name:      "network error",
			transport: &mockTransport{err: io.ErrUnexpectedEOF},
			wantErr:   true,
		},
		{
			name:      "invalid xml",
			transport: &mockTransport{body: "not xml at all", statusCode: 200},
			wantErr:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := New(tt.transport)
			feed, err := f.Fetch(context.Background(), "https://example.com/rss")

			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if diff := cmp.Diff(tt.wantTitle, feed.Title); diff != "" {
				t.Errorf("title mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(tt.wantItems, len(feed.Items)); diff != "" {
				t.Errorf("item count mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(userAgent, tt.transport.gotUA); diff != "" {
				t.Errorf("user agent mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDownload(t *testing.T) {
	tests := []struct {
		name      string
		transport *mockTransport
		limit     int64
		want      []byte
		wantErr   error
	}{
		{
			name:      "within limit",
			transport: &mockTransport{body: "PNGDATA", statusCode: 200},
			limit:     16,
			want:      []byte("PNGDATA"),
		},
		{
			name:      "exactly at limit",
			transport: &mockTransport{body: "1234", statusCode: 200},
			limit:     4,
			want:      []byte("1234"),
		},
		{
			name:      "over limit",
			transport: &mockTransport{body: strings.Repeat("x", 10), statusCode: 200},
			limit:     4,
			wantErr:   ErrTooLarge,
		},
		{
			name:      "empty body",
			transport: &mockTransport{body: "", statusCode: 200},
			limit:     4,
			wantErr:   ErrEmptyBody,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := New(tt.transport).Download(context.Background(), "https://cdn.example.com/a.png", tt.limit)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("body mismatch (-want +got):\n%s", diff)
			}
		})
	}

	t.Run("bad status", func(t *testing.T) {
		_, err := New(&mockTransport{body: "gone", statusCode: 410}).Download(context.Background(), "https://x", 100)
		if err == nil {
			t.Fatal("expected error, got nil")
		}
	})
}

func TestItemGUID(t *testing.T) {
	if diff := cmp.Diff("abc-123", ItemGUID(&gofeed.Item{GUID: "abc-123"})); diff != "" {
		t.Errorf("GUID mismatch (-want +got):\n%s", diff)
	}
	got := ItemGUID(&gofeed.Item{Title: "Post Without GUID", Link: "https://example.com/post-1"})
	if !strings.HasPrefix(got, "sha256:") {
		t.Errorf("expected sha256 prefix, got %q", got)
	}
}

func TestLinkItems(t *testing.T) {
	feed, err := gofeed.NewParser().ParseString(loadFixture(t, "../../testdata/sample.xml"))
	if err != nil {
		t.Fatalf("parse fixture: %v", err)
	}

	t.Run("items without links are skipped", func(t *testing.T) {
		items := LinkItems(feed.Items, nil)
		var links []string
		for _, it := range items {
			links = append(links, it.Link)
		}
		want := []string{
			"https://memes.example.com/cat-table?utm_source=rss",
			"https://ads.example.com/phone",
			"https://memes.example.com/dog-skate/",
		}
		if diff := cmp.Diff(want, links); diff != "" {
			t.Errorf("links mismatch (-want +got):\n%s", diff)
		}
		wantPublished := time.Date(2024, 6, 3, 9, 0, 0, 0, time.UTC)
		if !items[0].Published.Equal(wantPublished) {
			t.Errorf("published = %v, want %v", items[0].Published, wantPublished)
		}
	})

	t.Run("rules applied", func(t *testing.T) {
		rules, err := filter.Compile(nil, []string{"sponsored"})
		if err != nil {
			t.Fatalf("compile: %v", err)
		}
		var titles []string
		for _, it := range LinkItems(feed.Items, rules) {
			titles = append(titles, it.Title)
		}
		want := []string{"Cat falls off table", "Dog learns to skateboard"}
		if diff := cmp.Diff(want, titles); diff != "" {
			t.Errorf("titles mismatch (-want +got):\n%s", diff)
		}
	})
}
