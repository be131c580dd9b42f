package filter

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestMatch(t *testing.T) {
	tests := []struct {
		name    string
		item    FeedItem
		include []string
		exclude []string
		want    bool
	}{
		{
			name: "no rules passes everything",
			item: FeedItem{Title: "anything", Description: "whatever"},
			want: true,
		},
		{
			name:    "include word matches",
			item:    FeedItem{Title: "Kubernetes 1.32 released", Description: "New features"},
			include: []string{"kubernetes"},
			want:    true,
		},
		{
			name:    "include word no match",
			item:    FeedItem{Title: "Python update", Description: "New features"},
			include: []string{"kubernetes"},
			want:    false,
		},
		{
			name:    "include is case insensitive",
			item:    FeedItem{Title: "KUBERNETES release"},
			include: []string{"Kubernetes"},
			want:    true,
		},
		{
			name:    "exclude word blocks match",
			item:    FeedItem{Title: "Sponsored: best deals", Description: "Buy now"},
			exclude: []string{"sponsored"},
			want:    false,
		},
		{
			name:    "exclude wins over include",
			item:    FeedItem{Title: "Kubernetes sponsored post"},
			include: []string{"kubernetes"},
			exclude: []string{"sponsored"},
			want:    false,
		},
		{
			name:    "multiple includes OR logic",
			item:    FeedItem{Title: "Docker update"},
			include: []string{"kubernetes", "docker"},
			want:    true,
		},
		{
			name:    "description is matched too",
			item:    FeedItem{Title: "Weekly digest", Description: "a cat picture"},
			include: []string{"cat picture"},
			want:    true,
		},
		{
			name:    "regex include",
			item:    FeedItem{Title: "Release v2.10.1"},
			include: []string{`re:v\d+\.\d+`},
			want:    true,
		},
		{
			name:    "regex exclude",
			item:    FeedItem{Title: "[AD] new phone"},
			exclude: []string{`re:^\[ad\]`},
			want:    false,
		},
		{
			name:    "blank values ignored",
			item:    FeedItem{Title: "anything"},
			include: []string{"  "},
			want:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			set, err := Compile(tt.include, tt.exclude)
			if err != nil {
				t.Fatalf("compile: %v", err)
			}
			if diff := cmp.Diff(tt.want, set.Match(tt.item)); diff != "" {
				t.Errorf("Match mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestCompileInvalidRegex(t *testing.T) {
	if _, err := Compile([]string{"re:[unclosed"}, nil); err == nil {
		t.Error("expected error for invalid include regex")
	}
	if _, err := Compile(nil, []string{"re:(?P<"}); err == nil {
		t.Error("expected error for invalid exclude regex")
	}
}

func TestNilSet(t *testing.T) {
	var s *Set
	if !s.Match(FeedItem{Title: "x"}) {
		t.Error("nil set must match")
	}
	if !s.Empty() {
		t.Error("nil set must be empty")
	}
}
