package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/jitinkakkar/dorthy-ai/internal/chat"
	"github.com/jitinkakkar/dorthy-ai/internal/completeness"
	"github.com/jitinkakkar/dorthy-ai/internal/convert"
	"github.com/jitinkakkar/dorthy-ai/internal/models"
	"github.com/jitinkakkar/dorthy-ai/internal/workflow"
)

type Bot struct {
	api    *tgbotapi.BotAPI
	chat   *chat.Server
	router *workflow.Router
	logger *zap.Logger
}

func New(token string, chatServer *chat.Server, router *workflow.Router, logger *zap.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	return &Bot{
		api:    api,
		chat:   chatServer,
		router: router,
		logger: logger.With(zap.String("component", "telegram")),
	}, nil
}

// Start polls for updates until ctx is cancelled.
func (b *Bot) Start(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)
	b.logger.Info("Telegram bot started", zap.String("username", b.api.Self.UserName))

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if update.Message == nil {
				continue
			}
			go b.handleMessage(ctx, update.Message)
		}
	}
}

func (b *Bot) handleMessage(ctx context.Context, message *tgbotapi.Message) {
	// Handle commands
	if message.IsCommand() {
		b.handleCommand(ctx, message)
		return
	}

	threadID := threadIDFor(message.Chat.ID)
	item := messageToItem(message)

	if _, err := b.chat.EnsureThread(ctx, threadID); err != nil {
		b.logger.Error("Failed to load thread",
			zap.Error(err),
			zap.String("thread_id", threadID))
		b.sendErrorMessage(message.Chat.ID, "Sorry, something went wrong. Please try again.")
		return
	}

	b.sendTyping(message.Chat.ID)
	turn, err := b.chat.Respond(ctx, threadID, item)
	if err != nil {
		b.handleTurnError(message.Chat.ID, threadID, err)
		return
	}

	reply, err := b.chat.Collect(turn)
	if err != nil {
		b.handleTurnError(message.Chat.ID, threadID, err)
		return
	}
	if reply == "" {
		return
	}

	msg := tgbotapi.NewMessage(message.Chat.ID, reply)
	msg.ReplyToMessageID = message.MessageID
	if _, err := b.api.Send(msg); err != nil {
		b.logger.Error("Failed to send reply",
			zap.Error(err),
			zap.Int64("chat_id", message.Chat.ID))
	}
}

func (b *Bot) handleTurnError(chatID int64, threadID string, err error) {
	if errors.Is(err, convert.ErrUnsupportedContent) {
		b.sendMessage(chatID, "I can only read text messages for now. Could you type that out for me?")
		return
	}
	b.logger.Error("Failed to respond",
		zap.Error(err),
		zap.String("thread_id", threadID))
	b.sendErrorMessage(chatID, "Sorry, I couldn't answer that. Please try again.")
}

func (b *Bot) handleCommand(ctx context.Context, message *tgbotapi.Message) {
	switch message.Command() {
	case "start":
		b.handleStart(message)
	case "help":
		b.handleHelp(message)
	case "status":
		b.handleStatus(ctx, message)
	default:
		b.sendMessage(message.Chat.ID, "Unknown command. Use /help to see available commands.")
	}
}

func (b *Bot) handleStart(message *tgbotapi.Message) {
	welcome := `Hi! I'm Dorthy, your guide to first-time home buyer programs in Ontario. 🏡

Say hello to get started. I'll ask a few anonymous questions and then show you programs that may fit.
Use /help to see all available commands.`

	b.sendMessage(message.Chat.ID, welcome)
}

func (b *Bot) handleHelp(message *tgbotapi.Message) {
	help := `Available commands:
/start - Start the bot
/help - Show this help message
/status - Show what I still need to know

Just reply in plain text. Photos and files aren't supported.`

	b.sendMessage(message.Chat.ID, help)
}

func (b *Bot) handleStatus(ctx context.Context, message *tgbotapi.Message) {
	threadID := threadIDFor(message.Chat.ID)
	items, err := b.chat.Transcript(ctx, threadID)
	if err != nil || len(items) == 0 {
		b.sendMessage(message.Chat.ID, "We haven't started yet. Say hello to begin!")
		return
	}

	history, err := convert.ToAgentInput(items)
	if err != nil {
		b.logger.Error("Failed to convert history", zap.Error(err), zap.String("thread_id", threadID))
		b.sendErrorMessage(message.Chat.ID, "Sorry, failed to check your progress. Please try again later.")
		return
	}

	rec, err := b.router.Evaluate(ctx, history)
	if err != nil {
		b.logger.Error("Failed to evaluate profile",
			zap.Error(err),
			zap.String("thread_id", threadID))
		b.sendErrorMessage(message.Chat.ID, "Sorry, failed to check your progress. Please try again later.")
		return
	}

	msg := tgbotapi.NewMessage(message.Chat.ID, formatStatus(rec))
	msg.ParseMode = "MarkdownV2"
	if _, err := b.api.Send(msg); err != nil {
		b.logger.Error("Failed to send status message",
			zap.Error(err),
			zap.Int64("chat_id", message.Chat.ID))
	}
}

// threadIDFor maps a Telegram chat to its conversation thread.
func threadIDFor(chatID int64) string {
	return fmt.Sprintf("telegram:%d", chatID)
}

// messageToItem turns a Telegram message into a user item. Media become
// non-text parts, which the chat server rejects.
func messageToItem(message *tgbotapi.Message) *models.ThreadItem {
	text := message.Text
	if message.Caption != "" {
		text = message.Caption
	}

	item := &models.ThreadItem{Role: models.RoleUser}
	if text != "" {
		item.Content = append(item.Content, models.TextPart(models.InputTextContent, text))
	}
	if len(message.Photo) > 0 {
		photo := message.Photo[len(message.Photo)-1]
		item.Content = append(item.Content, models.ContentPart{Kind: models.ImageContent, Ref: photo.FileID})
	}
	if message.Document != nil {
		item.Content = append(item.Content, models.ContentPart{Kind: models.FileContent, Ref: message.Document.FileID})
	}
	if len(item.Content) == 0 {
		item.Content = append(item.Content, models.ContentPart{Kind: models.AttachmentContent})
	}
	return item
}

func formatStatus(rec completeness.Record) string {
	if rec.CompletedInfo {
		return escapeMarkdown("I have everything I need. Send any message to see programs that may fit! ✅")
	}

	missing := rec.Missing()
	response := fmt.Sprintf("*Still to cover \\(%d\\):*\n", len(missing))
	for _, name := range missing {
		response += escapeMarkdown("- "+strings.ReplaceAll(name, "_", " ")) + "\n"
	}
	return response
}

// escapeMarkdown escapes special characters for MarkdownV2
func escapeMarkdown(text string) string {
	specialChars := []string{"\\", "_", "*", "[", "]", "(", ")", "~", "`", ">", "#", "+", "-", "=", "|", "{", "}", ".", "!"}
	escaped := text
	for _, char := range specialChars {
		escaped = strings.ReplaceAll(escaped, char, "\\"+char)
	}
	return escaped
}

func (b *Bot) sendTyping(chatID int64) {
	if _, err := b.api.Request(tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping)); err != nil {
		b.logger.Debug("Failed to send typing action", zap.Error(err))
	}
}

func (b *Bot) sendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := b.api.Send(msg); err != nil {
		b.logger.Error("Failed to send message",
			zap.Error(err),
			zap.Int64("chat_id", chatID))
	}
}

func (b *Bot) sendErrorMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, "⚠️ "+text)
	if _, err := b.api.Send(msg); err != nil {
		b.logger.Error("Failed to send error message",
			zap.Error(err),
			zap.Int64("chat_id", chatID))
	}
}
