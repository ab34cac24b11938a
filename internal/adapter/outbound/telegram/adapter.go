package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/clawguard/clawguard/internal/domain/approver"
	"github.com/clawguard/clawguard/internal/domain/grant"
	"github.com/clawguard/clawguard/internal/domain/notify"
	"github.com/clawguard/clawguard/internal/domain/secret"
)

// Config configures the Telegram Notifier adapter.
type Config struct {
	Token string
	// PairingEnabled gates decisions on a prior /pair handshake. When
	// false, StaticChatID is the sole recipient and sole authorized
	// decider.
	PairingEnabled bool
	// PairingSecretHash is the Argon2id (or legacy sha256) hash an
	// approver's /pair <secret> command is checked against.
	PairingSecretHash string
	StaticChatID      int64
}

// ReplyResolver routes a decoded reply into the waiting PendingApproval.
// It returns false if no matching PendingApproval was found (already
// resolved, or an unknown/expired request id).
type ReplyResolver func(requestID string, decision grant.Decision) bool

// Adapter implements notify.Notifier over the Telegram Bot API.
type Adapter struct {
	cfg     Config
	store   approver.Store
	resolve ReplyResolver
	logger  *slog.Logger

	bot    BotClient
	newBot func(token string, opts ...bot.Option) (*bot.Bot, error)

	mu        sync.Mutex
	sentMsgID map[string]msgRef // request id -> chat/message to edit on reply

	cancel context.CancelFunc
}

type msgRef struct {
	chatID    int64
	messageID int
}

// NewAdapter constructs an Adapter. resolve is invoked whenever a
// callback-query reply passes the pairing check and decodes successfully.
func NewAdapter(cfg Config, store approver.Store, resolve ReplyResolver, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{
		cfg:       cfg,
		store:     store,
		resolve:   resolve,
		logger:    logger.With("adapter", "telegram"),
		sentMsgID: make(map[string]msgRef),
		newBot:    bot.New,
	}
}

// Start implements notify.Notifier: creates the bot client, registers the
// callback-query and command handlers, and begins long polling until
// Stop is called.
func (a *Adapter) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	b, err := a.newBot(a.cfg.Token)
	if err != nil {
		cancel()
		return fmt.Errorf("telegram: create bot: %w", err)
	}
	a.bot = newRealBotClient(b)

	a.bot.RegisterHandler(bot.HandlerTypeCallbackQueryData, "", bot.MatchTypePrefix, a.handleCallbackQuery)
	a.bot.RegisterHandler(bot.HandlerTypeMessageText, "/pair", bot.MatchTypePrefix, a.handlePair)
	a.bot.RegisterHandler(bot.HandlerTypeMessageText, "/unpair", bot.MatchTypeExact, a.handleUnpair)
	a.bot.RegisterHandler(bot.HandlerTypeMessageText, "/status", bot.MatchTypeExact, a.handleStatus)

	go a.bot.Start(ctx)
	return nil
}

// Stop implements notify.Notifier.
func (a *Adapter) Stop() {
	if a.cancel != nil {
		a.cancel()
	}
}

// Prompt implements notify.Notifier: renders p with the six TTL buttons
// to every paired approver (or the single static chat, when pairing is
// disabled).
func (a *Adapter) Prompt(p notify.Prompt) error {
	chatIDs, err := a.recipients()
	if err != nil {
		return fmt.Errorf("telegram: resolve recipients: %w", err)
	}
	if len(chatIDs) == 0 {
		return fmt.Errorf("telegram: no paired approver to notify")
	}

	text := renderPrompt(p)
	keyboard := buildKeyboard(p.RequestID)

	var sendErr error
	for _, chatID := range chatIDs {
		msg, err := a.bot.SendMessage(context.Background(), &bot.SendMessageParams{
			ChatID:      chatID,
			Text:        text,
			ReplyMarkup: keyboard,
		})
		if err != nil {
			sendErr = err
			continue
		}
		a.mu.Lock()
		a.sentMsgID[p.RequestID] = msgRef{chatID: chatID, messageID: msg.ID}
		a.mu.Unlock()
	}
	if sendErr != nil {
		return fmt.Errorf("telegram: send prompt: %w", sendErr)
	}
	return nil
}

func (a *Adapter) recipients() ([]int64, error) {
	if !a.cfg.PairingEnabled {
		return []int64{a.cfg.StaticChatID}, nil
	}
	paired, err := a.store.All(context.Background())
	if err != nil {
		return nil, err
	}
	out := make([]int64, 0, len(paired))
	for _, p := range paired {
		id, err := strconv.ParseInt(p.ChatID, 10, 64)
		if err != nil {
			continue
		}
		out = append(out, id)
	}
	return out, nil
}

func renderPrompt(p notify.Prompt) string {
	return fmt.Sprintf(
		"ClawGuard approval request\nservice: %s\nmethod: %s\npath: %s\nfrom: %s\nat: %s\nrequest: %s",
		p.Service, p.Method, p.Path, p.AgentAddress, p.RequestedAt.Local().Format(time.RFC1123), p.RequestID,
	)
}

func buildKeyboard(requestID string) *models.InlineKeyboardMarkup {
	row := func(label string, action notify.ChoiceAction) models.InlineKeyboardButton {
		return models.InlineKeyboardButton{Text: label, CallbackData: string(action) + ":" + requestID}
	}
	return &models.InlineKeyboardMarkup{
		InlineKeyboard: [][]models.InlineKeyboardButton{
			{row("Once", notify.ChoiceApproveOnce), row("15m", notify.ChoiceApprove15m)},
			{row("1h", notify.ChoiceApprove1h), row("8h", notify.ChoiceApprove8h)},
			{row("24h", notify.ChoiceApprove24h), row("Deny", notify.ChoiceDeny)},
		},
	}
}

func (a *Adapter) handleCallbackQuery(ctx context.Context, _ *bot.Bot, update *models.Update) {
	cq := update.CallbackQuery
	if cq == nil {
		return
	}
	chatID := strconv.FormatInt(cq.From.ID, 10)

	if a.cfg.PairingEnabled {
		paired, err := a.store.IsPaired(ctx, chatID)
		if err != nil || !paired {
			a.answer(ctx, cq.ID, "You are not a paired approver.")
			return
		}
	}

	action, requestID, ok := strings.Cut(cq.Data, ":")
	if !ok {
		a.answer(ctx, cq.ID, "Malformed reply.")
		return
	}

	choice := notify.ChoiceAction(action)
	displayName := displayNameOf(cq.From)
	decision := grant.Decision{ApprovedBy: displayName}
	if choice == notify.ChoiceDeny {
		decision.Approved = false
	} else if ttl, isApproval := choice.TTL(); isApproval {
		decision.Approved = true
		decision.TTL = ttl
	} else {
		a.answer(ctx, cq.ID, "Unknown action.")
		return
	}

	if !a.resolve(requestID, decision) {
		a.answer(ctx, cq.ID, "This request has expired.")
		return
	}

	a.answer(ctx, cq.ID, "Recorded.")
	a.editPrompt(ctx, requestID, choice, displayName)
}

func (a *Adapter) answer(ctx context.Context, callbackQueryID, text string) {
	_, err := a.bot.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{
		CallbackQueryID: callbackQueryID,
		Text:            text,
	})
	if err != nil {
		a.logger.Warn("failed to answer callback query", "error", err)
	}
}

func (a *Adapter) editPrompt(ctx context.Context, requestID string, choice notify.ChoiceAction, approver string) {
	a.mu.Lock()
	ref, ok := a.sentMsgID[requestID]
	delete(a.sentMsgID, requestID)
	a.mu.Unlock()
	if !ok {
		return
	}

	_, err := a.bot.EditMessageText(ctx, &bot.EditMessageTextParams{
		ChatID:    ref.chatID,
		MessageID: ref.messageID,
		Text:      fmt.Sprintf("request %s: %s by %s", requestID, choice, approver),
	})
	if err != nil {
		a.logger.Warn("failed to edit prompt message", "error", err)
	}
}

func displayNameOf(u models.User) string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		name = u.Username
	}
	if name == "" {
		name = strconv.FormatInt(u.ID, 10)
	}
	return name
}

func (a *Adapter) handlePair(ctx context.Context, b *bot.Bot, update *models.Update) {
	msg := update.Message
	if msg == nil {
		return
	}
	parts := strings.SplitN(strings.TrimSpace(msg.Text), " ", 2)
	if len(parts) != 2 {
		a.reply(ctx, msg.Chat.ID, "Usage: /pair <secret>")
		return
	}
	ok, err := secret.Verify(parts[1], a.cfg.PairingSecretHash)
	if err != nil || !ok {
		a.reply(ctx, msg.Chat.ID, "Invalid pairing secret.")
		return
	}
	chatID := strconv.FormatInt(msg.Chat.ID, 10)
	name := displayNameOf(*msg.From)
	if err := a.store.Pair(ctx, chatID, name, time.Now()); err != nil {
		a.logger.Error("failed to record pairing", "error", err)
		a.reply(ctx, msg.Chat.ID, "Pairing failed.")
		return
	}
	a.reply(ctx, msg.Chat.ID, "Paired as approver.")
}

func (a *Adapter) handleUnpair(ctx context.Context, b *bot.Bot, update *models.Update) {
	msg := update.Message
	if msg == nil {
		return
	}
	chatID := strconv.FormatInt(msg.Chat.ID, 10)
	if err := a.store.Unpair(ctx, chatID); err != nil {
		a.logger.Error("failed to unpair", "error", err)
	}
	a.reply(ctx, msg.Chat.ID, "Unpaired.")
}

func (a *Adapter) handleStatus(ctx context.Context, b *bot.Bot, update *models.Update) {
	msg := update.Message
	if msg == nil {
		return
	}
	chatID := strconv.FormatInt(msg.Chat.ID, 10)
	paired, err := a.store.IsPaired(ctx, chatID)
	if err != nil {
		a.reply(ctx, msg.Chat.ID, "Could not determine pairing status.")
		return
	}
	if paired {
		a.reply(ctx, msg.Chat.ID, "You are a paired approver.")
	} else {
		a.reply(ctx, msg.Chat.ID, "You are not paired.")
	}
}

func (a *Adapter) reply(ctx context.Context, chatID int64, text string) {
	_, err := a.bot.SendMessage(ctx, &bot.SendMessageParams{ChatID: chatID, Text: text})
	if err != nil {
		a.logger.Warn("failed to send reply", "error", err)
	}
}

var _ notify.Notifier = (*Adapter)(nil)
