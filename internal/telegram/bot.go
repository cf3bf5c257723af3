package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"meal-subscription/internal/coach"
	"meal-subscription/internal/config"
	"meal-subscription/internal/metrics"
	"meal-subscription/internal/subscription"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Sender is the part of the Telegram API the bot writes through.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Bot wraps the Telegram API and serves subscription commands.
type Bot struct {
	api          *tgbotapi.BotAPI
	sender       Sender
	registry     *subscription.Registry
	coach        *coach.Coach
	metricsStore *metrics.Store
	chats        *ChatRepository
	allowed      []int64
	logger       *slog.Logger
}

// NewBot initializes the Telegram Bot and sets the Webhook when one is configured.
func NewBot(
	cfg *config.Config,
	registry *subscription.Registry,
	advisor *coach.Coach,
	metricsStore *metrics.Store,
	chats *ChatRepository,
	logger *slog.Logger,
) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(cfg.TelegramBotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to init telegram api: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("telegram bot authorized", "account", api.Self.UserName)

	if cfg.TelegramWebhookURL != "" {
		wh, err := tgbotapi.NewWebhook(cfg.TelegramWebhookURL)
		if err != nil {
			return nil, fmt.Errorf("invalid webhook url %s: %w", cfg.TelegramWebhookURL, err)
		}
		resp, err := api.Request(wh)
		if err != nil {
			return nil, fmt.Errorf("failed to set webhook to %s: %w", cfg.TelegramWebhookURL, err)
		}
		logger.Info("telegram webhook set", "description", resp.Description)
	}

	b := newBot(api, registry, advisor, metricsStore, chats, cfg.TelegramAllowedUserIDs, logger)
	b.api = api
	return b, nil
}

func newBot(
	sender Sender,
	registry *subscription.Registry,
	advisor *coach.Coach,
	metricsStore *metrics.Store,
	chats *ChatRepository,
	allowed []int64,
	logger *slog.Logger,
) *Bot {
	if logger == nil {
		logger = slog.Default()
	}
	if advisor == nil {
		advisor = coach.New(nil, nil, logger)
	}
	return &Bot{
		sender:       sender,
		registry:     registry,
		coach:        advisor,
		metricsStore: metricsStore,
		chats:        chats,
		allowed:      allowed,
		logger:       logger.With("component", "telegram"),
	}
}

// HandleWebhook receives updates pushed by Telegram.
func (b *Bot) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	update, err := b.api.HandleUpdate(r)
	if err != nil {
		b.logger.Warn("error parsing update", "error", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	go b.handleUpdate(*update)
}

// Poll reads updates by long polling until ctx is done. Used when no webhook is configured.
func (b *Bot) Poll(ctx context.Context) {
	b.api.Request(tgbotapi.DeleteWebhookConfig{})

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := b.api.GetUpdatesChan(u)
	b.logger.Info("telegram long polling started")

	for {
		select {
		case update := <-updates:
			go b.handleUpdate(update)
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return
		}
	}
}

func (b *Bot) handleUpdate(update tgbotapi.Update) {
	msg := update.Message
	if msg == nil || msg.From == nil {
		return
	}

	if !b.isAllowed(msg.From.ID) {
		b.logger.Warn("unauthorized access attempt", "telegram_user_id", msg.From.ID, "username", msg.From.UserName)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if b.chats != nil {
		err := b.chats.Save(ctx, ChatBinding{UserID: msg.From.ID, ChatID: msg.Chat.ID, Username: msg.From.UserName})
		if err != nil {
			b.logger.Warn("failed to save chat binding", "error", err)
		}
	}

	reply := b.HandleCommand(ctx, msg.From.ID, msg.Command(), msg.CommandArguments())
	b.send(msg.Chat.ID, reply)
}

// isAllowed reports whether the user may use the bot. An empty allow list admits everyone.
func (b *Bot) isAllowed(userID int64) bool {
	return len(b.allowed) == 0 || slices.Contains(b.allowed, userID)
}

// HandleCommand runs one command for a Telegram user and returns the Markdown reply.
func (b *Bot) HandleCommand(ctx context.Context, telegramID int64, command, args string) string {
	store, err := b.registry.Get(ctx, UserKey(telegramID))
	if err != nil {
		b.logger.Error("failed to load subscription", "telegram_user_id", telegramID, "error", err)
		return errorText(err)
	}

	switch command {
	case "start", "plan":
		text := formatSubscription(store.Subscription())
		if command == "start" {
			text = "👋 *Welcome to your meal subscription!*\n\n" + text + "\n\n" + helpText
		}
		return text

	case "menu":
		return formatMenu(store.WeeklyMenu())

	case "pause":
		return b.handlePause(ctx, store, args)

	case "track":
		orderID := strings.TrimSpace(args)
		if orderID == "" {
			if d := store.CurrentDelivery(); d != nil {
				return formatDelivery(*d)
			}
			return "Usage: `/track <order-id>`"
		}
		d, err := store.StartDeliveryTracking(orderID)
		if err != nil {
			return errorText(err)
		}
		return formatDelivery(d) + "\n\n_I'll message you as your order moves._"

	case "impact":
		return formatImpact(store.CommunityImpact())

	case "coach":
		return b.handleCoach(ctx, store)

	case "follow":
		impact, err := b.coach.Follow(ctx, store, args)
		if err != nil {
			return errorText(err)
		}
		return fmt.Sprintf("💪 *Nice work!* Your health streak is now *%d* points.", impact.HealthStreakPoints)

	case "metrics":
		return b.handleMetrics(ctx)
	}
	return helpText
}

func (b *Bot) handlePause(ctx context.Context, store *subscription.Store, args string) string {
	var raw []string
	donate := false
	for _, f := range strings.Fields(args) {
		if strings.EqualFold(f, "donate") {
			donate = true
			continue
		}
		raw = append(raw, f)
	}
	dates, err := subscription.ParseDates(raw)
	if err != nil {
		return errorText(err)
	}
	impact, err := store.PauseSubscription(ctx, dates, donate)
	if err != nil {
		return errorText(err)
	}
	if !donate {
		return fmt.Sprintf("⏸ Paused for %d day(s).", len(dates))
	}
	return fmt.Sprintf("⏸ Paused and donated! 🙏\n\n%s", formatImpact(impact))
}

func (b *Bot) handleCoach(ctx context.Context, store *subscription.Store) string {
	menu := store.WeeklyMenu()
	text := formatReport(coach.Analyze(menu))
	if b.coach.TipsEnabled() {
		tip, err := b.coach.Tips(ctx, menu)
		if err != nil {
			b.logger.Warn("coach tip unavailable", "error", err)
		} else if tip != "" {
			text += "\n\n💡 " + escape(tip)
		}
	}
	return text
}

func (b *Bot) handleMetrics(ctx context.Context) string {
	if b.metricsStore == nil {
		return "Metrics are not enabled."
	}
	usage, err := b.metricsStore.GetDailyUsage(ctx, 7)
	if err != nil {
		return "❌ Error fetching metrics."
	}
	impact, err := b.metricsStore.GetDailyImpact(ctx, 7)
	if err != nil {
		return "❌ Error fetching metrics."
	}
	return formatMetrics(usage, impact, metrics.GetSysHealth("data"))
}

// PushDelivery sends a delivery update to the user's chat. Users who never
// talked to the bot are skipped.
func (b *Bot) PushDelivery(userID string, d subscription.DeliveryTracking) {
	telegramID, ok := ParseUserKey(userID)
	if !ok || b.chats == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	binding, err := b.chats.Get(ctx, telegramID)
	if err != nil {
		b.logger.Warn("failed to look up chat", "telegram_user_id", telegramID, "error", err)
		return
	}
	if binding == nil {
		return
	}
	b.send(binding.ChatID, formatDelivery(d))
}

func (b *Bot) send(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	if _, err := b.sender.Send(msg); err != nil {
		b.logger.Warn("failed to send message", "chat_id", chatID, "error", err)
	}
}

const userKeyPrefix = "tg-"

// UserKey is the registry user id of a Telegram user.
func UserKey(telegramID int64) string {
	return userKeyPrefix + strconv.FormatInt(telegramID, 10)
}

// ParseUserKey reverses UserKey.
func ParseUserKey(userID string) (int64, bool) {
	rest, ok := strings.CutPrefix(userID, userKeyPrefix)
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseInt(rest, 10, 64)
	return id, err == nil
}

func errorText(err error) string {
	var ve *subscription.ValidationError
	switch {
	case errors.As(err, &ve):
		return "⚠️ " + escape(ve.Error())
	case subscription.IsPersistence(err):
		return "⚠️ Saved for now, but I couldn't store it permanently. Please try again later."
	case errors.Is(err, subscription.ErrClosed):
		return "⚠️ The service is shutting down. Please try again in a moment."
	}
	return "❌ Something went wrong. Please try again."
}
