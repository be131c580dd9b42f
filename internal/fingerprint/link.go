package fingerprint

import (
	"fmt"
	"net/url"
	"slices"
	"strings"

	"golang.org/x/net/idna"
)

// Query parameters that only carry tracking data. Any key starting with
// "utm_" is stripped as well.
var defaultTrackingParams = []string{
	"fbclid", "gclid", "dclid", "gbraid", "wbraid", "msclkid", "yclid",
	"mc_cid", "mc_eid", "igshid", "igsh", "si", "ref_src", "ref_url",
	"_hsenc", "_hsmi", "mkt_tok", "spm", "feature",
}

type linkNormalizer struct {
	tracking map[string]struct{}
}

func newLinkNormalizer() *linkNormalizer {
	n := &linkNormalizer{tracking: make(map[string]struct{}, len(defaultTrackingParams))}
	n.addTrackingParams(defaultTrackingParams...)
	return n
}

func (n *linkNormalizer) addTrackingParams(params ...string) {
	for _, p := range params {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			n.tracking[p] = struct{}{}
		}
	}
}

func (n *linkNormalizer) isTracking(key string) bool {
	key = strings.ToLower(key)
	if strings.HasPrefix(key, "utm_") {
		return true
	}
	_, ok := n.tracking[key]
	return ok
}

// normalize rewrites a link into its canonical form:
// https scheme, lower-case ASCII host without "www." and default port,
// no trailing slashes, no tracking parameters, sorted query, no fragment.
func (n *linkNormalizer) normalize(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	s = strings.TrimSuffix(strings.TrimPrefix(s, "<"), ">")
	if s == "" {
		return "", fmt.Errorf("%w: empty link", ErrMalformedPayload)
	}
	switch {
	case strings.HasPrefix(s, "//"):
		s = "https:" + s
	case !strings.Contains(s, "://"):
		s = "https://" + s
	}

	u, err := url.Parse(s)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme == "http" {
		scheme = "https"
	}

	host := strings.TrimSuffix(strings.ToLower(u.Hostname()), ".")
	if host == "" {
		return "", fmt.Errorf("%w: link %q has no host", ErrMalformedPayload, raw)
	}
	if ascii, err := idna.Lookup.ToASCII(host); err == nil {
		host = ascii
	}
	host = strings.TrimPrefix(host, "www.")
	if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	if port := u.Port(); port != "" && port != "80" && port != "443" {
		host += ":" + port
	}

	u.RawPath = ""
	path := strings.TrimRight(u.EscapedPath(), "/")

	query := n.canonicalQuery(u.RawQuery)

	var b strings.Builder
	b.WriteString(scheme)
	b.WriteString("://")
	b.WriteString(host)
	b.WriteString(path)
	if query != "" {
		b.WriteByte('?')
		b.WriteString(query)
	}
	return b.String(), nil
}

// canonicalQuery drops tracking parameters and sorts the rest. A query that
// url.ParseQuery rejects (";" separators, bad escapes) is filtered pair by
// pair and kept verbatim, so distinct values never collapse.
func (n *linkNormalizer) canonicalQuery(raw string) string {
	if raw == "" {
		return ""
	}
	if query, err := url.ParseQuery(raw); err == nil {
		for key := range query {
			if n.isTracking(key) {
				query.Del(key)
			}
		}
		return query.Encode()
	}

	var pairs []string
	for _, pair := range strings.Split(raw, "&") {
		if pair == "" {
			continue
		}
		key, _, _ := strings.Cut(pair, "=")
		if k, err := url.QueryUnescape(key); err == nil {
			key = k
		}
		if n.isTracking(key) {
			continue
		}
		pairs = append(pairs, pair)
	}
	slices.Sort(pairs)
	return strings.Join(pairs, "&")
}
