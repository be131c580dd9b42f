package detector

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"repost_bot/internal/allowlist"
	"repost_bot/internal/cache"
	"repost_bot/internal/fingerprint"
	"repost_bot/internal/model"
)

func newEngine(t *testing.T, limit uint64, ignored model.ContentKind) *Engine {
	t.Helper()
	c, err := cache.New(limit)
	require.NoError(t, err)
	return New(fingerprint.New(), c, allowlist.New(), model.MonitoringConfig{Ignored: ignored})
}

func at(author string, minute int) model.Origin {
	return model.Origin{
		AuthorID:  author,
		ChannelID: "c1",
		MessageID: fmt.Sprintf("%s-%d", author, minute),
		Timestamp: time.Date(2024, 1, 1, 10, minute, 0, 0, time.UTC),
	}
}

func link(url, author string, minute int) model.ContentEvent {
	return model.LinkEvent(url, at(author, minute))
}

func image(data []byte, author string, minute int) model.ContentEvent {
	return model.AttachmentEvent(data, at(author, minute))
}

func detect(t *testing.T, e *Engine, ev model.ContentEvent) Verdict {
	t.Helper()
	v, err := e.Detect(ev)
	require.NoError(t, err)
	return v
}

func TestFirstSeenThenRepost(t *testing.T) {
	e := newEngine(t, 10, "")

	v := detect(t, e, link("https://example.com/post", "alice", 1))
	assert.Equal(t, FirstSeen, v.Outcome)
	assert.False(t, v.Fingerprint.IsZero())

	v = detect(t, e, link("https://example.com/post/?utm_source=x", "bob", 2))
	require.Equal(t, Repost, v.Outcome)
	if diff := cmp.Diff(at("alice", 1), v.Original); diff != "" {
		t.Errorf("original origin mismatch (-want +got):\n%s", diff)
	}

	v = detect(t, e, link("https://example.com/post", "carol", 3))
	require.Equal(t, Repost, v.Outcome)
	assert.Equal(t, "alice", v.Original.AuthorID, "third post must reference the first origin")
}

func TestImageRepost(t *testing.T) {
	e := newEngine(t, 10, "")
	png := []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 1, 2, 3}

	assert.Equal(t, FirstSeen, detect(t, e, image(png, "alice", 1)).Outcome)
	assert.Equal(t, Repost, detect(t, e, image(png, "bob", 2)).Outcome)

	other := append([]byte{}, png...)
	other[len(other)-1] = 4
	assert.Equal(t, FirstSeen, detect(t, e, image(other, "bob", 3)).Outcome)
}

func TestAllowSuppressesRepost(t *testing.T) {
	t.Run("never seen before", func(t *testing.T) {
		e := newEngine(t, 10, "")
		_, err := e.Allow(model.KindLink, []byte("https://example.com/meme/"))
		require.NoError(t, err)

		for i := 0; i < 3; i++ {
			v := detect(t, e, link("https://example.com/meme", "alice", i))
			assert.Equal(t, Allowed, v.Outcome)
		}
	})

	t.Run("already cached", func(t *testing.T) {
		e := newEngine(t, 10, "")
		png := []byte{1, 2, 3, 4}
		assert.Equal(t, FirstSeen, detect(t, e, image(png, "alice", 1)).Outcome)

		_, err := e.Allow(model.KindAttachment, png)
		require.NoError(t, err)
		assert.Equal(t, Allowed, detect(t, e, image(png, "bob", 2)).Outcome)

		// The first sighting stays recorded.
		st, err := e.Lookup(model.KindAttachment, png)
		require.NoError(t, err)
		assert.True(t, st.Seen)
		assert.True(t, st.Allowed)
		assert.Equal(t, "alice", st.Entry.FirstSeen.AuthorID)
	})

	t.Run("allowed content is not cached", func(t *testing.T) {
		e := newEngine(t, 10, "")
		_, err := e.Allow(model.KindLink, []byte("https://example.com/x"))
		require.NoError(t, err)
		detect(t, e, link("https://example.com/x", "alice", 1))

		assert.Zero(t, e.cache.Len())
	})

	t.Run("by fingerprint", func(t *testing.T) {
		e := newEngine(t, 10, "")
		v := detect(t, e, link("https://example.com/y", "alice", 1))
		assert.True(t, e.AllowFingerprint(v.Fingerprint))
		assert.False(t, e.AllowFingerprint(v.Fingerprint))
		assert.Equal(t, Allowed, detect(t, e, link("https://example.com/y", "bob", 2)).Outcome)
	})
}

func TestAllowRejectsMalformed(t *testing.T) {
	e := newEngine(t, 10, "")
	_, err := e.Allow(model.KindAttachment, nil)
	assert.ErrorIs(t, err, fingerprint.ErrMalformedPayload)
	assert.Zero(t, e.allowed.Len())
}

func TestIgnoredKind(t *testing.T) {
	e := newEngine(t, 10, model.KindAttachment)
	png := []byte{1, 2, 3}

	for i := 0; i < 2; i++ {
		v := detect(t, e, image(png, "alice", i))
		assert.Equal(t, Ignored, v.Outcome)
		assert.Equal(t, ReasonKindDisabled, v.Reason)
		assert.True(t, v.Fingerprint.IsZero())
	}
	assert.Zero(t, e.cache.Len())

	// Even malformed payloads of an ignored kind are not inspected.
	v := detect(t, e, image(nil, "alice", 3))
	assert.Equal(t, Ignored, v.Outcome)

	assert.Equal(t, FirstSeen, detect(t, e, link("https://a.example", "alice", 4)).Outcome)
	assert.Equal(t, Repost, detect(t, e, link("https://a.example", "bob", 5)).Outcome)
}

func TestMalformedPayload(t *testing.T) {
	e := newEngine(t, 10, "")

	_, err := e.Detect(image(nil, "alice", 1))
	assert.ErrorIs(t, err, fingerprint.ErrMalformedPayload)

	_, err = e.Detect(link("not a link at all ://", "alice", 1))
	assert.ErrorIs(t, err, fingerprint.ErrMalformedPayload)

	assert.Zero(t, e.cache.Len())
}

func TestBoundedGrowth(t *testing.T) {
	const limit = 4
	e := newEngine(t, limit, "")

	for i := 0; i <= limit; i++ {
		v := detect(t, e, link(fmt.Sprintf("https://example.com/%d", i), "alice", i))
		require.Equal(t, FirstSeen, v.Outcome)
	}
	assert.Equal(t, limit, e.cache.Len())

	v := detect(t, e, link("https://example.com/0", "bob", 30))
	assert.Equal(t, FirstSeen, v.Outcome, "evicted content reads as new")
}

func TestScenarioCacheLimitTwo(t *testing.T) {
	e := newEngine(t, 2, "")

	steps := []struct {
		url  string
		want Outcome
	}{
		{"https://a", FirstSeen},
		{"https://b", FirstSeen},
		{"https://c", FirstSeen}, // evicts a
		{"https://a", FirstSeen}, // evicts b
		{"https://c", Repost},
		{"https://b", FirstSeen},
	}

	var got []Outcome
	for i, s := range steps {
		got = append(got, detect(t, e, link(s.url, "alice", i)).Outcome)
	}

	var want []Outcome
	for _, s := range steps {
		want = append(want, s.want)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("outcomes mismatch (-want +got):\n%s", diff)
	}
}

func TestConcurrentDetect(t *testing.T) {
	e := newEngine(t, 100, "")
	const n = 50

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		outcomes = map[Outcome]int{}
		start    = make(chan struct{})
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			v, err := e.Detect(link("https://example.com/hot", fmt.Sprint(i), i))
			if err != nil {
				t.Error(err)
				return
			}
			mu.Lock()
			outcomes[v.Outcome]++
			mu.Unlock()
		}(i)
	}
	close(start)
	wg.Wait()

	assert.Equal(t, map[Outcome]int{FirstSeen: 1, Repost: n - 1}, outcomes)
}

func TestDetectAll(t *testing.T) {
	e := newEngine(t, 10, "")
	png := []byte{9, 9, 9}

	detect(t, e, link("https://old.example", "alice", 0))

	results := e.DetectAll([]model.ContentEvent{
		link("https://new.example", "bob", 1),
		link("https://new.example/", "bob", 1),
		link("https://old.example", "bob", 1),
		image(png, "bob", 1),
		image(nil, "bob", 1),
	})

	require.Len(t, results, 4)
	assert.Equal(t, FirstSeen, results[0].Verdict.Outcome)
	assert.Equal(t, Repost, results[1].Verdict.Outcome)
	assert.Equal(t, "alice", results[1].Verdict.Original.AuthorID)
	assert.Equal(t, FirstSeen, results[2].Verdict.Outcome)
	assert.ErrorIs(t, results[3].Err, fingerprint.ErrMalformedPayload)
}

func TestLookupIsReadOnly(t *testing.T) {
	e := newEngine(t, 10, "")

	st, err := e.Lookup(model.KindLink, []byte("https://example.com"))
	require.NoError(t, err)
	assert.False(t, st.Seen)
	assert.False(t, st.Allowed)
	assert.Zero(t, e.cache.Len())

	assert.Equal(t, FirstSeen, detect(t, e, link("https://example.com", "alice", 1)).Outcome)
}

func TestOutcomeString(t *testing.T) {
	got := []string{Ignored.String(), Allowed.String(), FirstSeen.String(), Repost.String()}
	want := []string{"ignored", "allowed", "first_seen", "repost"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Outcome.String mismatch (-want +got):\n%s", diff)
	}
}
