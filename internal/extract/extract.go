// Package extract pulls checkable links out of chat message text.
package extract

import (
	"net/url"
	"strings"

	"mvdan.cc/xurls/v2"
)

var strict = xurls.Strict()

// Links returns the http(s) links found in text, in order of appearance and
// without exact duplicates.
func Links(text string) []string {
	if text == "" {
		return nil
	}
	var links []string
	seen := make(map[string]struct{})
	for _, m := range strict.FindAllString(text, -1) {
		if !IsWebLink(m) {
			continue
		}
		if _, ok := seen[m]; ok {
			continue
		}
		seen[m] = struct{}{}
		links = append(links, m)
	}
	return links
}

// IsWebLink reports whether s is an absolute http or https URL with a host.
func IsWebLink(s string) bool {
	u, err := url.Parse(strings.TrimSpace(s))
	if err != nil {
		return false
	}
	scheme := strings.ToLower(u.Scheme)
	return (scheme == "http" || scheme == "https") && u.Host != ""
}

// HasFlag reports whether text contains flag as a standalone word.
func HasFlag(text, flag string) bool {
	for _, f := range strings.Fields(text) {
		if f == flag {
			return true
		}
	}
	return false
}

// IsImageType reports whether a MIME content type describes an image.
func IsImageType(contentType string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(contentType)), "image/")
}
