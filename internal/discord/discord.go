// Package discord is the Discord gateway: it feeds guild messages to the
// detector and replies to reposts.
package discord

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"golang.org/x/sync/semaphore"

	"repost_bot/internal/config"
	"repost_bot/internal/detector"
	"repost_bot/internal/extract"
	"repost_bot/internal/fetcher"
	"repost_bot/internal/model"
	"repost_bot/internal/notice"
	"repost_bot/internal/storage"
)

// AllowFlag in a message allow-lists its content instead of checking it.
const AllowFlag = "--allow"

const allowedReaction = "✅"

type discordSession interface {
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
	MessageReactionAdd(channelID, messageID, emojiID string, options ...discordgo.RequestOption) error
}

// Gateway connects the detector to a Discord bot session.
type Gateway struct {
	session discordSession
	engine  *detector.Engine
	store   storage.Storage
	cfg     *config.Config
	fetcher *fetcher.Fetcher
	log     *slog.Logger
	sem     *semaphore.Weighted
	now     func() time.Time

	// mu guards closed so that wg.Add never races the final wg.Wait.
	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup

	dg *discordgo.Session
}

// New creates a Gateway for the given bot token.
func New(token string, engine *detector.Engine, store storage.Storage, cfg *config.Config, log *slog.Logger) (*Gateway, error) {
	dg, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	dg.Identify.Intents = discordgo.IntentGuildMessages | discordgo.IntentMessageContent

	return &Gateway{
		session: dg,
		engine:  engine,
		store:   store,
		cfg:     cfg,
		fetcher: fetcher.New(http.DefaultClient),
		log:     log,
		sem:     semaphore.NewWeighted(int64(cfg.Workers)),
		now:     time.Now,
		dg:      dg,
	}, nil
}

// Run opens the gateway connection and handles messages until ctx is
// cancelled.
func (g *Gateway) Run(ctx context.Context) error {
	remove := g.dg.AddHandler(func(_ *discordgo.Session, m *discordgo.MessageCreate) {
		g.handleMessageCreate(ctx, m.Message)
	})
	defer remove()

	if err := g.dg.Open(); err != nil {
		return fmt.Errorf("open discord session: %w", err)
	}
	g.log.Info("discord session open")

	<-ctx.Done()

	err := g.dg.Close()
	g.drain()
	if err != nil {
		return fmt.Errorf("close discord session: %w", err)
	}
	return nil
}

// handleMessageCreate runs on discordgo's per-event goroutine; the
// semaphore bounds how many messages are processed at once.
func (g *Gateway) handleMessageCreate(ctx context.Context, m *discordgo.Message) {
	if m == nil || m.Author == nil || m.Author.Bot {
		return
	}
	if !g.track() {
		return
	}
	defer g.wg.Done()

	if err := g.sem.Acquire(ctx, 1); err != nil {
		return
	}
	defer g.sem.Release(1)

	if extract.HasFlag(m.Content, AllowFlag) {
		g.handleAllow(ctx, m)
		return
	}
	g.handleMessage(ctx, m)
}

// track registers an in-flight handler. It reports false once the gateway
// is draining.
func (g *Gateway) track() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return false
	}
	g.wg.Add(1)
	return true
}

// drain stops accepting handlers and waits for in-flight ones.
func (g *Gateway) drain() {
	g.mu.Lock()
	g.closed = true
	g.mu.Unlock()
	g.wg.Wait()
}

func (g *Gateway) handleMessage(ctx context.Context, m *discordgo.Message) {
	origin := MessageOrigin(m)

	var events []model.ContentEvent
	for _, link := range MessageLinks(m) {
		events = append(events, model.LinkEvent(link, origin))
	}
	if !g.engine.Monitoring().IsIgnored(model.KindAttachment) {
		for _, data := range g.downloadImages(ctx, m) {
			events = append(events, model.AttachmentEvent(data, origin))
		}
	}
	if len(events) == 0 {
		return
	}

	for _, res := range g.engine.DetectAll(events) {
		if res.Err != nil {
			g.log.Warn("detect", "channel_id", m.ChannelID, "message_id", m.ID, "kind", res.Event.Kind, "error", res.Err)
			continue
		}
		g.log.Debug("verdict",
			"channel_id", m.ChannelID,
			"message_id", m.ID,
			"kind", res.Verdict.Kind,
			"verdict", res.Verdict.Outcome.String(),
			"fingerprint", res.Verdict.Fingerprint.String(),
		)
		if res.Verdict.Outcome == detector.Repost {
			g.notifyRepost(ctx, m, res)
		}
	}
}

func (g *Gateway) notifyRepost(ctx context.Context, m *discordgo.Message, res detector.Result) {
	original := res.Verdict.Original

	send := &discordgo.MessageSend{
		Content:         notice.Repost(Mention(original), original, g.now()),
		Reference:       m.Reference(),
		AllowedMentions: &discordgo.MessageAllowedMentions{RepliedUser: true},
	}
	if IsSnowflake(original.AuthorID) {
		send.AllowedMentions.Users = []string{original.AuthorID}
	}
	if _, err := g.session.ChannelMessageSendComplex(m.ChannelID, send); err != nil {
		g.log.Error("send repost notice", "channel_id", m.ChannelID, "error", err)
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
	if err := g.store.RecordRepost(ctx, record); err != nil {
		g.log.Error("record repost", "channel_id", m.ChannelID, "error", err)
		return
	}
	g.log.Info("repost detected",
		"channel_id", m.ChannelID,
		"message_id", m.ID,
		"kind", res.Verdict.Kind,
		"author_id", record.AuthorID,
		"original_author_id", record.OriginalAuthorID,
	)
}

// handleAllow allow-lists the links, image attachments and image embeds of
// a message carrying the allow flag. The message itself is not checked.
func (g *Gateway) handleAllow(ctx context.Context, m *discordgo.Message) {
	if !g.cfg.IsUserAllowed(m.Author.ID) {
		g.log.Info("allow denied", "channel_id", m.ChannelID, "user_id", m.Author.ID)
		return
	}

	var links, images int
	for _, link := range MessageLinks(m) {
		if _, err := g.engine.Allow(model.KindLink, []byte(link)); err != nil {
			g.log.Warn("allow link", "channel_id", m.ChannelID, "link", link, "error", err)
			continue
		}
		links++
	}
	for _, data := range g.downloadImages(ctx, m) {
		if _, err := g.engine.Allow(model.KindAttachment, data); err != nil {
			g.log.Warn("allow image", "channel_id", m.ChannelID, "error", err)
			continue
		}
		images++
	}

	g.log.Info("allowed content", "channel_id", m.ChannelID, "user_id", m.Author.ID, "links", links, "images", images)
	if links+images == 0 {
		return
	}
	if err := g.session.MessageReactionAdd(m.ChannelID, m.ID, allowedReaction); err != nil {
		g.log.Error("add reaction", "channel_id", m.ChannelID, "error", err)
	}
}

func (g *Gateway) downloadImages(ctx context.Context, m *discordgo.Message) [][]byte {
	var out [][]byte
	for _, url := range MessageImageURLs(m) {
		data, err := g.fetcher.Download(ctx, url, g.cfg.MaxAttachmentBytes)
		if err != nil {
			g.log.Warn("download image", "channel_id", m.ChannelID, "message_id", m.ID, "size_limit", notice.Bytes(g.cfg.MaxAttachmentBytes), "error", err)
			continue
		}
		out = append(out, data)
	}
	return out
}

// MessageLinks returns the links written in a message and the URLs of its
// link embeds.
func MessageLinks(m *discordgo.Message) []string {
	links := extract.Links(m.Content)
	seen := make(map[string]struct{}, len(links))
	for _, l := range links {
		seen[l] = struct{}{}
	}
	for _, e := range m.Embeds {
		if e == nil || e.URL == "" || isImageEmbed(e) {
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

// MessageImageURLs returns the download URLs of image attachments and
// image embeds.
func MessageImageURLs(m *discordgo.Message) []string {
	var urls []string
	for _, a := range m.Attachments {
		if a != nil && extract.IsImageType(a.ContentType) {
			urls = append(urls, a.URL)
		}
	}
	for _, e := range m.Embeds {
		if !isImageEmbed(e) {
			continue
		}
		switch {
		case e.Image != nil && e.Image.URL != "":
			urls = append(urls, e.Image.URL)
		case e.Thumbnail != nil && e.Thumbnail.URL != "":
			urls = append(urls, e.Thumbnail.URL)
		case e.URL != "":
			urls = append(urls, e.URL)
		}
	}
	return urls
}

// isImageEmbed reports whether an embed is the image itself rather than a
// preview of a page; preview images are shared across unrelated pages.
func isImageEmbed(e *discordgo.MessageEmbed) bool {
	return e != nil && (e.Type == discordgo.EmbedTypeImage || e.Type == discordgo.EmbedTypeGifv)
}

// MessageOrigin describes where a message was posted.
func MessageOrigin(m *discordgo.Message) model.Origin {
	o := model.Origin{
		ChannelID:   m.ChannelID,
		MessageID:   m.ID,
		MessageLink: MessageLink(m),
		Timestamp:   m.Timestamp.UTC(),
	}
	if m.Author != nil {
		o.AuthorID = m.Author.ID
		o.AuthorName = m.Author.Username
	}
	return o
}

// MessageLink returns the jump link of a message.
func MessageLink(m *discordgo.Message) string {
	guild := m.GuildID
	if guild == "" {
		guild = "@me"
	}
	return fmt.Sprintf("https://discord.com/channels/%s/%s/%s", guild, m.ChannelID, m.ID)
}

// Mention returns how to refer to the author of an origin: a user mention
// for Discord users, the plain name for anything else (such as feeds).
func Mention(o model.Origin) string {
	if IsSnowflake(o.AuthorID) {
		return "<@" + o.AuthorID + ">"
	}
	if o.AuthorName != "" {
		return o.AuthorName
	}
	return "someone"
}

// IsSnowflake reports whether id looks like a Discord ID.
func IsSnowflake(id string) bool {
	if id == "" {
		return false
	}
	return strings.Trim(id, "0123456789") == ""
}
