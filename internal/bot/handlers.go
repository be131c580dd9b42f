package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"repost_bot/internal/detector"
	"repost_bot/internal/extract"
	"repost_bot/internal/fingerprint"
	"repost_bot/internal/model"
	"repost_bot/internal/notice"
)

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	events := b.collectEvents(ctx, msg, MessageOrigin(msg))
	if len(events) == 0 {
		return
	}

	for _, res := range b.engine.DetectAll(events) {
		if res.Err != nil {
			b.log.Warn("detect", "chat_id", msg.Chat.ID, "message_id", msg.MessageID, "kind", res.Event.Kind, "error", res.Err)
			continue
		}
		b.log.Debug("verdict",
			"chat_id", msg.Chat.ID,
			"message_id", msg.MessageID,
			"kind", res.Verdict.Kind,
			"verdict", res.Verdict.Outcome.String(),
			"fingerprint", res.Verdict.Fingerprint.String(),
		)
		if res.Verdict.Outcome == detector.Repost {
			b.notifyRepost(ctx, msg, res)
		}
	}
}

// collectEvents turns the links and images of msg into content events.
// Images are only downloaded when attachments are monitored.
func (b *Bot) collectEvents(ctx context.Context, msg *tgbotapi.Message, origin model.Origin) []model.ContentEvent {
	var events []model.ContentEvent
	for _, link := range MessageLinks(msg) {
		events = append(events, model.LinkEvent(link, origin))
	}

	if b.engine.Monitoring().IsIgnored(model.KindAttachment) {
		return events
	}
	for _, fileID := range MessageImages(msg) {
		data, err := b.downloadImage(ctx, fileID)
		if err != nil {
			b.log.Warn("download image", "chat_id", msg.Chat.ID, "message_id", msg.MessageID, "error", err)
			continue
		}
		events = append(events, model.AttachmentEvent(data, origin))
	}
	return events
}

func (b *Bot) downloadImage(ctx context.Context, fileID string) ([]byte, error) {
	url, err := b.api.GetFileDirectURL(fileID)
	if err != nil {
		return nil, fmt.Errorf("get file url: %w", err)
	}
	data, err := b.fetcher.Download(ctx, url, b.cfg.MaxAttachmentBytes)
	if err != nil {
		return nil, fmt.Errorf("download file: %w", err)
	}
	return data, nil
}

func (b *Bot) notifyRepost(ctx context.Context, msg *tgbotapi.Message, res detector.Result) {
	original := res.Verdict.Original

	reply := tgbotapi.NewMessage(msg.Chat.ID, notice.Repost(displayAuthor(original.AuthorName, original.AuthorID), original, b.now()))
	reply.ReplyToMessageID = msg.MessageID
	reply.DisableWebPagePreview = true
	reply.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Allow", allowCallbackPrefix+res.Verdict.Fingerprint.Token()),
		),
	)
	if _, err := b.api.Send(reply); err != nil {
		b.log.Error("send repost notice", "chat_id", msg.Chat.ID, "error", err)
	}

	record := &model.RepostRecord{
		Kind:               res.Verdict.Kind,
		Fingerprint:        res.Verdict.Fingerprint.String(),
		ChannelID:          res.Event.Origin.ChannelID,
		MessageID:          res.Event.Origin.MessageID,
		AuthorID:           res.Event.Origin.AuthorID,
		AuthorName:         res.Event.Origin.AuthorName,
		OriginalAuthorID:   original.AuthorID,
		OriginalAuthorName: original.AuthorName,
		OriginalLink:       original.MessageLink,
		OriginalPostedAt:   original.Timestamp,
	}
	if err := b.store.RecordRepost(ctx, record); err != nil {
		b.log.Error("record repost", "chat_id", msg.Chat.ID, "error", err)
		return
	}
	b.log.Info("repost detected",
		"chat_id", msg.Chat.ID,
		"message_id", msg.MessageID,
		"kind", res.Verdict.Kind,
		"author_id", record.AuthorID,
		"original_author_id", record.OriginalAuthorID,
	)
}

// handleAllow allow-lists the links in args, the links and images of the
// message being replied to, and the image the command is a caption of.
func (b *Bot) handleAllow(ctx context.Context, msg *tgbotapi.Message, args string) {
	chatID := msg.Chat.ID
	if msg.From == nil || !b.cfg.IsUserAllowed(strconv.FormatInt(msg.From.ID, 10)) {
		b.reply(chatID, "Only operators can allow content.")
		return
	}
	if args == "" && msg.Caption != "" {
		args = captionArgs(msg.Caption)
	}

	links := extract.Links(args)
	images := MessageImages(msg)
	if src := msg.ReplyToMessage; src != nil {
		links = append(links, MessageLinks(src)...)
		images = append(images, MessageImages(src)...)
	}

	if len(links) == 0 && len(images) == 0 {
		b.reply(chatID, "Usage: /allow <links...>, or reply /allow to a message with links or images.")
		return
	}

	var allowedLinks, allowedImages int
	for _, link := range links {
		if _, err := b.engine.Allow(model.KindLink, []byte(link)); err != nil {
			b.log.Warn("allow link", "chat_id", chatID, "link", link, "error", err)
			continue
		}
		allowedLinks++
	}
	for _, fileID := range images {
		data, err := b.downloadImage(ctx, fileID)
		if err != nil {
			b.log.Warn("download image", "chat_id", chatID, "error", err)
			continue
		}
		if _, err := b.engine.Allow(model.KindAttachment, data); err != nil {
			b.log.Warn("allow image", "chat_id", chatID, "error", err)
			continue
		}
		allowedImages++
	}

	b.log.Info("allowed content", "chat_id", chatID, "user_id", msg.From.ID, "links", allowedLinks, "images", allowedImages)

	if allowedLinks+allowedImages == 0 {
		b.reply(chatID, "Nothing could be allowed.")
		return
	}
	var parts []string
	if allowedLinks > 0 {
		parts = append(parts, plural(allowedLinks, "link"))
	}
	if allowedImages > 0 {
		parts = append(parts, plural(allowedImages, "image"))
	}
	b.reply(chatID, fmt.Sprintf("Allowed %s. They will not be flagged as reposts.", strings.Join(parts, " and ")))
}

func (b *Bot) handleCheck(chatID int64, args string) {
	if args == "" {
		b.reply(chatID, "Usage: /check <link>")
		return
	}

	link := strings.Fields(args)[0]
	if links := extract.Links(args); len(links) > 0 {
		link = links[0]
	}

	st, err := b.engine.Lookup(model.KindLink, []byte(link))
	if err != nil {
		if errors.Is(err, fingerprint.ErrMalformedPayload) {
			b.reply(chatID, fmt.Sprintf("%q is not a valid link.", link))
			return
		}
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	b.reply(chatID, FormatStatus(link, st, b.now()))
}

func (b *Bot) handleStats(ctx context.Context, chatID int64) {
	channel := strconv.FormatInt(chatID, 10)
	total, err := b.store.CountReposts(ctx, channel)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	top, err := b.store.TopReposters(ctx, channel, 5)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	b.reply(chatID, notice.Stats(total, top))
}

func (b *Bot) handleHistory(ctx context.Context, chatID int64) {
	records, err := b.store.ListReposts(ctx, strconv.FormatInt(chatID, 10), 10)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	b.reply(chatID, notice.History(records, b.now()))
}

func captionArgs(caption string) string {
	fields := strings.Fields(caption)
	if len(fields) < 2 {
		return ""
	}
	return strings.Join(fields[1:], " ")
}
