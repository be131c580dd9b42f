// Package notice renders the user-visible texts produced for detections.
package notice

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"repost_bot/internal/model"
)

// Age describes how long ago t was relative to now, in whole days:
// "earlier today" below one day, "N days ago" otherwise.
func Age(t, now time.Time) string {
	days := int(now.Sub(t).Hours() / 24)
	switch {
	case days < 1:
		return "earlier today"
	case days == 1:
		return "1 day ago"
	}
	return fmt.Sprintf("%d days ago", days)
}

// Repost formats the reply for a repost. mention is the gateway-specific
// reference to the original author.
func Repost(mention string, original model.Origin, now time.Time) string {
	var b strings.Builder
	b.WriteString("That's a repost! ")
	b.WriteString(mention)
	b.WriteString(" posted this ")
	b.WriteString(Age(original.Timestamp, now))
	if original.MessageLink != "" {
		b.WriteString(": ")
		b.WriteString(original.MessageLink)
	}
	return b.String()
}

// Stats formats repost statistics for a channel.
func Stats(total int, top []model.ReposterCount) string {
	if total == 0 {
		return "No reposts recorded here yet."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Reposts caught: %s\n", humanize.Comma(int64(total)))
	if len(top) > 0 {
		b.WriteString("\nTop reposters:\n")
		for i, r := range top {
			fmt.Fprintf(&b, "%d. %s (%s)\n", i+1, displayName(r.AuthorName, r.AuthorID), humanize.Comma(int64(r.Count)))
		}
	}
	return b.String()
}

// History formats the most recent repost records, newest first.
func History(records []model.RepostRecord, now time.Time) string {
	if len(records) == 0 {
		return "No reposts recorded here yet."
	}
	var b strings.Builder
	b.WriteString("Recent reposts:\n")
	for _, r := range records {
		fmt.Fprintf(&b, "\n%s reposted a %s %s", displayName(r.AuthorName, r.AuthorID), r.Kind,
			humanize.RelTime(r.DetectedAt, now, "ago", "from now"))
		fmt.Fprintf(&b, "\n   first posted by %s", displayName(r.OriginalAuthorName, r.OriginalAuthorID))
		if r.OriginalLink != "" {
			fmt.Fprintf(&b, ": %s", r.OriginalLink)
		}
	}
	return b.String()
}

// Bytes formats a byte count for log and error messages.
func Bytes(n int64) string {
	if n < 0 {
		n = 0
	}
	return humanize.IBytes(uint64(n))
}

func displayName(name, id string) string {
	if name != "" {
		return name
	}
	if id != "" {
		return id
	}
	return "someone"
}
