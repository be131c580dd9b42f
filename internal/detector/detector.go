// Package detector decides whether incoming content is a repost.
package detector

import (
	"fmt"

	"repost_bot/internal/allowlist"
	"repost_bot/internal/cache"
	"repost_bot/internal/fingerprint"
	"repost_bot/internal/model"
)

// Outcome is the result class of a detection.
type Outcome int

// Detection outcomes.
const (
	Ignored Outcome = iota
	Allowed
	FirstSeen
	Repost
)

func (o Outcome) String() string {
	switch o {
	case Ignored:
		return "ignored"
	case Allowed:
		return "allowed"
	case FirstSeen:
		return "first_seen"
	case Repost:
		return "repost"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// ReasonKindDisabled marks content whose kind is not monitored.
const ReasonKindDisabled = "kind-disabled"

// Verdict is the decision for a single ContentEvent. Reason is set only for
// Ignored, Original only for Repost. Fingerprint is zero for Ignored.
type Verdict struct {
	Outcome     Outcome
	Kind        model.ContentKind
	Reason      string
	Fingerprint fingerprint.Fingerprint
	Original    model.Origin
}

// Status is a read-only view of how content would currently be treated.
type Status struct {
	Fingerprint fingerprint.Fingerprint
	Entry       cache.Entry
	Seen        bool
	Allowed     bool
}

// Engine ties the fingerprinter, cache and allow-list together. It keeps no
// state of its own; all state lives in the injected stores.
type Engine struct {
	fingerprinter *fingerprint.Fingerprinter
	cache         *cache.Cache
	allowed       *allowlist.List
	cfg           model.MonitoringConfig
}

// New creates an Engine over the given stores.
func New(fp *fingerprint.Fingerprinter, c *cache.Cache, allowed *allowlist.List, cfg model.MonitoringConfig) *Engine {
	return &Engine{
		fingerprinter: fp,
		cache:         c,
		allowed:       allowed,
		cfg:           cfg,
	}
}

// Monitoring returns the monitoring configuration.
func (e *Engine) Monitoring() model.MonitoringConfig {
	return e.cfg
}

// Detect classifies event. Payloads without an identity are reported as
// fingerprint.ErrMalformedPayload and leave both stores untouched.
func (e *Engine) Detect(event model.ContentEvent) (Verdict, error) {
	if e.cfg.IsIgnored(event.Kind) {
		return Verdict{Outcome: Ignored, Kind: event.Kind, Reason: ReasonKindDisabled}, nil
	}

	fp, err := e.fingerprinter.Of(event.Kind, event.Payload)
	if err != nil {
		return Verdict{}, fmt.Errorf("fingerprint %s: %w", event.Kind, err)
	}
	return e.detect(event, fp), nil
}

func (e *Engine) detect(event model.ContentEvent, fp fingerprint.Fingerprint) Verdict {
	v := Verdict{Kind: event.Kind, Fingerprint: fp}

	if e.allowed.Contains(fp) {
		v.Outcome = Allowed
		return v
	}

	entry, present := e.cache.CheckAndInsert(fp, event.Origin)
	if !present {
		v.Outcome = FirstSeen
		return v
	}
	v.Outcome = Repost
	v.Original = entry.FirstSeen
	return v
}

// Result pairs an event from a batch with its verdict or error.
type Result struct {
	Event   model.ContentEvent
	Verdict Verdict
	Err     error
}

// DetectAll runs Detect over the items extracted from one message. An item
// whose fingerprint already occurred earlier in the same batch is skipped,
// so a message is never reported as reposting itself.
func (e *Engine) DetectAll(events []model.ContentEvent) []Result {
	results := make([]Result, 0, len(events))
	batch := make(map[fingerprint.Fingerprint]struct{}, len(events))

	for _, event := range events {
		if e.cfg.IsIgnored(event.Kind) {
			results = append(results, Result{
				Event:   event,
				Verdict: Verdict{Outcome: Ignored, Kind: event.Kind, Reason: ReasonKindDisabled},
			})
			continue
		}

		fp, err := e.fingerprinter.Of(event.Kind, event.Payload)
		if err != nil {
			results = append(results, Result{Event: event, Err: fmt.Errorf("fingerprint %s: %w", event.Kind, err)})
			continue
		}
		if _, dup := batch[fp]; dup {
			continue
		}
		batch[fp] = struct{}{}

		results = append(results, Result{Event: event, Verdict: e.detect(event, fp)})
	}
	return results
}

// Allow exempts content from future detection. The cache is not touched:
// an earlier first sighting stays recorded.
func (e *Engine) Allow(kind model.ContentKind, payload []byte) (fingerprint.Fingerprint, error) {
	fp, err := e.fingerprinter.Of(kind, payload)
	if err != nil {
		return fp, fmt.Errorf("fingerprint %s: %w", kind, err)
	}
	e.allowed.Allow(fp)
	return fp, nil
}

// AllowFingerprint exempts an already computed fingerprint. It reports
// whether fp was newly added.
func (e *Engine) AllowFingerprint(fp fingerprint.Fingerprint) bool {
	return e.allowed.Allow(fp)
}

// Lookup reports the current status of content without changing any state.
func (e *Engine) Lookup(kind model.ContentKind, payload []byte) (Status, error) {
	fp, err := e.fingerprinter.Of(kind, payload)
	if err != nil {
		return Status{}, fmt.Errorf("fingerprint %s: %w", kind, err)
	}
	entry, seen := e.cache.Get(fp)
	return Status{
		Fingerprint: fp,
		Entry:       entry,
		Seen:        seen,
		Allowed:     e.allowed.Contains(fp),
	}, nil
}
