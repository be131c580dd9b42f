package bot

import (
	"fmt"
	"strings"
	"time"

	"repost_bot/internal/detector"
	"repost_bot/internal/notice"
)

const (
	startText = `Hi! I'm Repost Bot.

I keep track of links and images posted in this chat and point out when something has already been posted before.

Use /help for the full command reference.`

	helpText = `Detection runs on every message with links or images.

/allow <links...> - never flag these links again
/allow - as a reply to a message, allow its links and images
/allow - as a photo caption, allow that photo
/check <link> - show whether a link was seen or allowed
/stats - repost statistics for this chat
/history - recent reposts in this chat`
)

// FormatStatus describes the detector's view of a single link.
func FormatStatus(link string, st detector.Status, now time.Time) string {
	var b strings.Builder
	b.WriteString(link)
	b.WriteString("\n")
	switch {
	case st.Allowed:
		b.WriteString("Allowed: never flagged as a repost.")
	case st.Seen:
		first := st.Entry.FirstSeen
		fmt.Fprintf(&b, "First posted by %s %s.", displayAuthor(first.AuthorName, first.AuthorID), notice.Age(first.Timestamp, now))
		if first.MessageLink != "" {
			fmt.Fprintf(&b, "\n%s", first.MessageLink)
		}
	default:
		b.WriteString("Not seen yet.")
	}
	return b.String()
}

func displayAuthor(name, id string) string {
	if name != "" {
		return name
	}
	if id != "" {
		return id
	}
	return "someone"
}

func plural(n int, word string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, word)
	}
	return fmt.Sprintf("%d %ss", n, word)
}
