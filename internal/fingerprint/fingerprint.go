// Package fingerprint derives stable identities for links and images.
package fingerprint

import (
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/blake2b"

	"repost_bot/internal/model"
)

// Size is the length of a Fingerprint in bytes.
const Size = blake2b.Size256

var (
	// ErrMalformedPayload is returned for payloads that have no identity,
	// such as empty attachments or links without a host.
	ErrMalformedPayload = errors.New("malformed payload")
	// ErrUnknownKind is returned for content kinds without a strategy.
	ErrUnknownKind = errors.New("unknown content kind")
)

// Fingerprint is the identity of a piece of content.
type Fingerprint [Size]byte

// String returns the lower-case hex form.
func (f Fingerprint) String() string {
	return hex.EncodeToString(f[:])
}

// Token returns the compact URL-safe form used in callback payloads.
func (f Fingerprint) Token() string {
	return base64.RawURLEncoding.EncodeToString(f[:])
}

// IsZero reports whether f is the zero value.
func (f Fingerprint) IsZero() bool {
	return f == Fingerprint{}
}

// ParseToken decodes a value produced by Token.
func ParseToken(s string) (Fingerprint, error) {
	return decode(s, base64.RawURLEncoding.DecodeString)
}

// ParseHex decodes a value produced by String.
func ParseHex(s string) (Fingerprint, error) {
	return decode(s, hex.DecodeString)
}

func decode(s string, fn func(string) ([]byte, error)) (Fingerprint, error) {
	var fp Fingerprint
	raw, err := fn(s)
	if err != nil {
		return fp, fmt.Errorf("decode fingerprint: %w", err)
	}
	if len(raw) != Size {
		return fp, fmt.Errorf("decode fingerprint: want %d bytes, got %d", Size, len(raw))
	}
	copy(fp[:], raw)
	return fp, nil
}

// canonicalizer turns a raw payload into the bytes that identify it.
type canonicalizer func(payload []byte) ([]byte, error)

// Fingerprinter computes fingerprints. It is safe for concurrent use and
// must be shared between detection and allow-listing so both apply the same
// normalization rules.
type Fingerprinter struct {
	links      *linkNormalizer
	strategies map[model.ContentKind]canonicalizer
}

// Option configures a Fingerprinter.
type Option func(*Fingerprinter)

// WithTrackingParams adds query parameter names stripped from links on top
// of the built-in set.
func WithTrackingParams(params ...string) Option {
	return func(f *Fingerprinter) {
		f.links.addTrackingParams(params...)
	}
}

// New creates a Fingerprinter.
func New(opts ...Option) *Fingerprinter {
	f := &Fingerprinter{links: newLinkNormalizer()}
	for _, opt := range opts {
		opt(f)
	}
	f.strategies = map[model.ContentKind]canonicalizer{
		model.KindLink:       f.canonicalLink,
		model.KindAttachment: canonicalAttachment,
	}
	return f
}

// Of returns the fingerprint of payload interpreted as kind.
func (f *Fingerprinter) Of(kind model.ContentKind, payload []byte) (Fingerprint, error) {
	canonical, err := f.Canonical(kind, payload)
	if err != nil {
		return Fingerprint{}, err
	}

	buf := make([]byte, 0, len(kind)+1+len(canonical))
	buf = append(buf, string(kind)...)
	buf = append(buf, 0)
	buf = append(buf, canonical...)
	return blake2b.Sum256(buf), nil
}

// Canonical returns the normalized bytes that Of hashes.
func (f *Fingerprinter) Canonical(kind model.ContentKind, payload []byte) ([]byte, error) {
	strategy, ok := f.strategies[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	return strategy(payload)
}

// NormalizeLink returns the canonical form of a link.
func (f *Fingerprinter) NormalizeLink(raw string) (string, error) {
	return f.links.normalize(raw)
}

func (f *Fingerprinter) canonicalLink(payload []byte) ([]byte, error) {
	s, err := f.links.normalize(string(payload))
	if err != nil {
		return nil, err
	}
	return []byte(s), nil
}

func canonicalAttachment(payload []byte) ([]byte, error) {
	if len(payload) == 0 {
		return nil, fmt.Errorf("%w: empty attachment", ErrMalformedPayload)
	}
	return payload, nil
}
