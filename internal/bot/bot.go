// Package bot is the Telegram gateway: it feeds chat messages to the
// detector, replies to reposts and handles operator commands.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/sync/semaphore"

	"repost_bot/internal/config"
	"repost_bot/internal/detector"
	"repost_bot/internal/fetcher"
	"repost_bot/internal/storage"
)

const (
	cmdStart   = "start"
	cmdHelp    = "help"
	cmdAllow   = "allow"
	cmdCheck   = "check"
	cmdStats   = "stats"
	cmdHistory = "history"
)

type telegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	GetFileDirectURL(fileID string) (string, error)
	StopReceivingUpdates()
}

// Bot is the Telegram bot that checks messages for reposts.
type Bot struct {
	api     telegramAPI
	engine  *detector.Engine
	store   storage.Storage
	cfg     *config.Config
	fetcher *fetcher.Fetcher
	log     *slog.Logger
	sem     *semaphore.Weighted
	wg      sync.WaitGroup
	now     func() time.Time
}

// New creates a Bot with the given Telegram token, detector, history store
// and config.
func New(token string, engine *detector.Engine, store storage.Storage, cfg *config.Config, log *slog.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}

	return &Bot{
		api:     api,
		engine:  engine,
		store:   store,
		cfg:     cfg,
		fetcher: fetcher.New(http.DefaultClient),
		log:     log,
		sem:     semaphore.NewWeighted(int64(cfg.Workers)),
		now:     time.Now,
	}, nil
}

// Run starts the bot's long-polling loop, blocking until ctx is cancelled
// and all in-flight messages are handled.
func (b *Bot) Run(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)
	defer b.wg.Wait()

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			if err := b.sem.Acquire(ctx, 1); err != nil {
				b.api.StopReceivingUpdates()
				return
			}
			b.wg.Add(1)
			go func() {
				defer b.wg.Done()
				defer b.sem.Release(1)
				b.handleUpdate(ctx, update)
			}()
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	if update.CallbackQuery != nil {
		b.handleCallback(ctx, update.CallbackQuery)
		return
	}

	msg := update.Message
	if msg == nil {
		msg = update.ChannelPost
	}
	if msg == nil || (msg.From != nil && msg.From.IsBot) {
		return
	}

	switch {
	case msg.IsCommand():
		b.handleCommand(ctx, msg)
	case IsAllowCaption(msg.Caption):
		b.handleAllow(ctx, msg, "")
	default:
		b.handleMessage(ctx, msg)
	}
}

// SendMessage sends a text message to the given chat.
func (b *Bot) SendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.DisableWebPagePreview = true
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("send message", "chat_id", chatID, "error", err)
	}
}

func (b *Bot) reply(chatID int64, text string) {
	b.SendMessage(chatID, text)
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	cmd := msg.Command()
	args := strings.TrimSpace(msg.CommandArguments())
	chatID := msg.Chat.ID

	b.log.Debug("command", "cmd", cmd, "args", args, "chat_id", chatID)

	switch cmd {
	case cmdStart:
		b.reply(chatID, startText)
	case cmdHelp:
		b.reply(chatID, helpText)
	case cmdAllow:
		b.handleAllow(ctx, msg, args)
	case cmdCheck:
		b.handleCheck(chatID, args)
	case cmdStats:
		b.handleStats(ctx, chatID)
	case cmdHistory:
		b.handleHistory(ctx, chatID)
	default:
		// Commands addressed to other bots in a group are not ours to answer.
		if msg.Chat.IsPrivate() {
			b.reply(chatID, "Unknown command. Use /help for a list of commands.")
		}
	}
}
