// Package model defines the domain types used across the application.
package model

import (
	"fmt"
	"strings"
	"time"
)

// ContentKind defines the type of content a message carries.
type ContentKind string

// Supported content kinds. The empty kind means "none".
const (
	KindLink       ContentKind = "link"
	KindAttachment ContentKind = "attachment"
)

// ParseContentKind converts a configured type name into a ContentKind.
// An empty string yields the empty kind.
func ParseContentKind(s string) (ContentKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return "", nil
	case "link", "links", "url", "urls":
		return KindLink, nil
	case "attachment", "attachments", "image", "images":
		return KindAttachment, nil
	}
	return "", fmt.Errorf("unknown content type %q, use: link, attachment", s)
}

// Origin describes where and when a piece of content was posted.
type Origin struct {
	AuthorID    string
	AuthorName  string
	ChannelID   string
	MessageID   string
	MessageLink string
	Timestamp   time.Time
}

// ContentEvent is a single item extracted from an incoming message.
type ContentEvent struct {
	Kind    ContentKind
	Payload []byte
	Origin  Origin
}

// LinkEvent builds a ContentEvent for a link.
func LinkEvent(link string, origin Origin) ContentEvent {
	return ContentEvent{Kind: KindLink, Payload: []byte(link), Origin: origin}
}

// AttachmentEvent builds a ContentEvent for downloaded image bytes.
func AttachmentEvent(data []byte, origin Origin) ContentEvent {
	return ContentEvent{Kind: KindAttachment, Payload: data, Origin: origin}
}

// MonitoringConfig selects which content kinds are checked.
type MonitoringConfig struct {
	Ignored ContentKind
}

// IsIgnored reports whether content of the given kind is not checked.
func (c MonitoringConfig) IsIgnored(kind ContentKind) bool {
	return c.Ignored != "" && c.Ignored == kind
}

// RepostRecord is a history entry written for every detected repost.
type RepostRecord struct {
	ID                 string
	Kind               ContentKind
	Fingerprint        string
	ChannelID          string
	MessageID          string
	AuthorID           string
	AuthorName         string
	OriginalAuthorID   string
	OriginalAuthorName string
	OriginalLink       string
	OriginalPostedAt   time.Time
	DetectedAt         time.Time
}

// ReposterCount is the number of reposts attributed to one author.
type ReposterCount struct {
	AuthorID   string
	AuthorName string
	Count      int
}
