package bot

import (
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"repost_bot/internal/extract"
	"repost_bot/internal/model"
)

const allowCallbackPrefix = "allow:"

// MessageLinks returns the links a message carries: links written in its
// text or caption plus the targets of hidden text links.
func MessageLinks(msg *tgbotapi.Message) []string {
	text := msg.Text
	entities := msg.Entities
	if text == "" {
		text = msg.Caption
		entities = msg.CaptionEntities
	}

	links := extract.Links(text)
	seen := make(map[string]struct{}, len(links))
	for _, l := range links {
		seen[l] = struct{}{}
	}
	for _, e := range entities {
		if e.Type != "text_link" || e.URL == "" {
			continue
		}
		if _, ok := seen[e.URL]; ok {
			continue
		}
		seen[e.URL] = struct{}{}
		links = append(links, e.URL)
	}
	return links
}

// MessageImages returns the file IDs of the images a message carries: the
// largest size of a photo and image documents.
func MessageImages(msg *tgbotapi.Message) []string {
	var ids []string
	if n := len(msg.Photo); n > 0 {
		ids = append(ids, msg.Photo[n-1].FileID)
	}
	if msg.Document != nil && extract.IsImageType(msg.Document.MimeType) {
		ids = append(ids, msg.Document.FileID)
	}
	return ids
}

// MessageOrigin describes where a message was posted.
func MessageOrigin(msg *tgbotapi.Message) model.Origin {
	o := model.Origin{
		MessageID:   strconv.Itoa(msg.MessageID),
		MessageLink: MessageLink(msg),
		Timestamp:   msg.Time().UTC(),
	}
	if msg.Chat != nil {
		o.ChannelID = strconv.FormatInt(msg.Chat.ID, 10)
	}
	if msg.From != nil {
		o.AuthorID = strconv.FormatInt(msg.From.ID, 10)
		o.AuthorName = userName(msg.From)
	}
	return o
}

// MessageLink returns a t.me link to a message, or "" for chats that
// cannot be linked to (private chats and basic groups).
func MessageLink(msg *tgbotapi.Message) string {
	if msg.Chat == nil {
		return ""
	}
	if msg.Chat.UserName != "" {
		return fmt.Sprintf("https://t.me/%s/%d", msg.Chat.UserName, msg.MessageID)
	}
	if id := strconv.FormatInt(msg.Chat.ID, 10); strings.HasPrefix(id, "-100") {
		return fmt.Sprintf("https://t.me/c/%s/%d", strings.TrimPrefix(id, "-100"), msg.MessageID)
	}
	return ""
}

// IsAllowCaption reports whether a media caption is an /allow command.
// Telegram does not mark captions as commands.
func IsAllowCaption(caption string) bool {
	fields := strings.Fields(caption)
	if len(fields) == 0 {
		return false
	}
	cmd, _, _ := strings.Cut(fields[0], "@")
	return cmd == "/"+cmdAllow
}

// ParseAllowCallback extracts the fingerprint token of an Allow button.
func ParseAllowCallback(data string) (string, bool) {
	token, ok := strings.CutPrefix(data, allowCallbackPrefix)
	if !ok || token == "" {
		return "", false
	}
	return token, true
}

func userName(u *tgbotapi.User) string {
	if u.UserName != "" {
		return "@" + u.UserName
	}
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		return strconv.FormatInt(u.ID, 10)
	}
	return name
}
